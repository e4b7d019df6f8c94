package tool

import (
	"github.com/cloudwego/eino/schema"
)

type params map[string]*schema.ParameterInfo

func str(desc string) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: schema.String, Desc: desc}
}

func integer(desc string) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: schema.Integer, Desc: desc}
}

func number(desc string) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: schema.Number, Desc: desc}
}

func boolean(desc string) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: schema.Boolean, Desc: desc}
}

func timestamp(desc string) *schema.ParameterInfo {
	return str(desc + " (RFC 3339 or YYYY-MM-DD)")
}

func enum[T ~string](desc string, values []T) *schema.ParameterInfo {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return &schema.ParameterInfo{Type: schema.String, Desc: desc, Enum: out}
}

func strList(desc string) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: schema.Array, Desc: desc, ElemInfo: &schema.ParameterInfo{Type: schema.String}}
}

func objList(desc string, fields params) *schema.ParameterInfo {
	return &schema.ParameterInfo{
		Type:     schema.Array,
		Desc:     desc,
		ElemInfo: &schema.ParameterInfo{Type: schema.Object, SubParams: fields},
	}
}

func object(desc string, fields params) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: schema.Object, Desc: desc, SubParams: fields}
}

func req(p *schema.ParameterInfo) *schema.ParameterInfo {
	p.Required = true
	return p
}

func lineItems(desc string) *schema.ParameterInfo {
	return objList(desc, params{
		"product_id": req(str("Catalog product id")),
		"qty":        req(integer("Quantity, at least 1")),
	})
}

func shippingAddress() *schema.ParameterInfo {
	return object("Shipping address, defaults to the customer's address", params{
		"line1":       req(str("Street")),
		"line2":       str("Unit"),
		"city":        req(str("City")),
		"region":      str("State or region"),
		"postal_code": req(str("ZIP or postal code")),
		"country":     str("Country code"),
	})
}

// withRange adds <prefix>_after and <prefix>_before bounds to p.
func withRange(p params, prefix, what string) params {
	p[prefix+"_after"] = timestamp("Only include records " + what + " at or after this time")
	p[prefix+"_before"] = timestamp("Only include records " + what + " at or before this time")
	return p
}

func withLimit(p params) params {
	p["limit"] = integer("Maximum results, default 50, max 200")
	return p
}
