package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
)

type ShippingRate struct {
	Service     domainx.ShippingService
	Cost        decimal.Decimal
	TransitDays int
}

var shippingRates = map[domainx.ShippingService]ShippingRate{
	domainx.ShippingStandard:  {Service: domainx.ShippingStandard, Cost: decimal.RequireFromString("9.99"), TransitDays: 7},
	domainx.ShippingExpress:   {Service: domainx.ShippingExpress, Cost: decimal.RequireFromString("19.99"), TransitDays: 3},
	domainx.ShippingOvernight: {Service: domainx.ShippingOvernight, Cost: decimal.RequireFromString("39.99"), TransitDays: 1},
	domainx.ShippingTwoDay:    {Service: domainx.ShippingTwoDay, Cost: decimal.RequireFromString("29.99"), TransitDays: 2},
	domainx.ShippingFree:      {Service: domainx.ShippingFree, Cost: decimal.Zero, TransitDays: 10},
}

var westCoastSurcharge = decimal.RequireFromString("5.00")

func LookupShipping(service domainx.ShippingService) (ShippingRate, bool) {
	r, ok := shippingRates[domainx.ShippingService(strings.ToLower(strings.TrimSpace(string(service))))]
	return r, ok
}

type ShippingCost struct {
	BaseRate             decimal.Decimal `json:"base_rate"`
	DestinationSurcharge decimal.Decimal `json:"destination_surcharge"`
	TotalCost            decimal.Decimal `json:"total_cost"`
}

type ShippingTiming struct {
	ProcessingDays        int    `json:"processing_days"`
	TransitDays           int    `json:"transit_days"`
	TotalDays             int    `json:"total_days"`
	EstimatedShipDate     string `json:"estimated_ship_date"`
	EstimatedDeliveryDate string `json:"estimated_delivery_date"`
}

type ShippingEstimate struct {
	ShippingMethod string         `json:"shipping_method"`
	CostBreakdown  ShippingCost   `json:"cost_breakdown"`
	Timing         ShippingTiming `json:"timing"`
	DestinationZip string         `json:"destination_zip,omitempty"`
}

// EstimateShipping quotes cost and delivery dates. Unknown methods fall back to standard.
// West coast zips (leading 9) carry a surcharge and every method except overnight adds one
// processing day.
func EstimateShipping(method domainx.ShippingService, destinationZip string, now time.Time) ShippingEstimate {
	rate, ok := LookupShipping(method)
	if !ok {
		rate = shippingRates[domainx.ShippingStandard]
	}

	zip := strings.TrimSpace(destinationZip)
	surcharge := decimal.Zero
	if strings.HasPrefix(zip, "9") {
		surcharge = westCoastSurcharge
	}

	processing := 1
	if rate.Service == domainx.ShippingOvernight {
		processing = 0
	}
	total := rate.TransitDays + processing
	day := now.UTC()

	return ShippingEstimate{
		ShippingMethod: string(rate.Service),
		CostBreakdown: ShippingCost{
			BaseRate:             rate.Cost,
			DestinationSurcharge: surcharge,
			TotalCost:            domainx.RoundMoney(rate.Cost.Add(surcharge)),
		},
		Timing: ShippingTiming{
			ProcessingDays:        processing,
			TransitDays:           rate.TransitDays,
			TotalDays:             total,
			EstimatedShipDate:     day.AddDate(0, 0, processing).Format(time.DateOnly),
			EstimatedDeliveryDate: day.AddDate(0, 0, total).Format(time.DateOnly),
		},
		DestinationZip: zip,
	}
}
