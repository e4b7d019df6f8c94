package store

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
)

//go:embed fixtures/corecraft.yaml
var defaultFixture []byte

// Fixture is a full data set. YAML keys follow the JSON field names of the domain types.
type Fixture struct {
	Customers      []*domainx.Customer             `json:"customers"`
	Employees      []*domainx.Employee             `json:"employees"`
	Products       []*domainx.Product              `json:"products"`
	Builds         []*domainx.Build                `json:"builds"`
	Orders         []*domainx.Order                `json:"orders"`
	Payments       []*domainx.Payment              `json:"payments"`
	Shipments      []*domainx.Shipment             `json:"shipments"`
	Tickets        []*domainx.SupportTicket        `json:"tickets"`
	Refunds        []*domainx.Refund               `json:"refunds"`
	Resolutions    []*domainx.Resolution           `json:"resolutions"`
	Escalations    []*domainx.Escalation           `json:"escalations"`
	KnowledgeBase  []*domainx.KnowledgeBaseArticle `json:"knowledge_base"`
	WarrantyClaims []*domainx.WarrantyClaim        `json:"warranty_claims"`
}

type fixtureTable struct {
	name  string
	model any
	len   int
}

// tables lists the fixture slices in foreign key order.
func (fx *Fixture) tables() []fixtureTable {
	return []fixtureTable{
		{"customers", &fx.Customers, len(fx.Customers)},
		{"employees", &fx.Employees, len(fx.Employees)},
		{"products", &fx.Products, len(fx.Products)},
		{"builds", &fx.Builds, len(fx.Builds)},
		{"orders", &fx.Orders, len(fx.Orders)},
		{"payments", &fx.Payments, len(fx.Payments)},
		{"shipments", &fx.Shipments, len(fx.Shipments)},
		{"support_tickets", &fx.Tickets, len(fx.Tickets)},
		{"refunds", &fx.Refunds, len(fx.Refunds)},
		{"resolutions", &fx.Resolutions, len(fx.Resolutions)},
		{"escalations", &fx.Escalations, len(fx.Escalations)},
		{"knowledge_base_articles", &fx.KnowledgeBase, len(fx.KnowledgeBase)},
		{"warranty_claims", &fx.WarrantyClaims, len(fx.WarrantyClaims)},
	}
}

// LoadFixture decodes YAML into a generic tree and re-encodes it as JSON so the domain
// json tags, decimal and time decoding apply unchanged.
func LoadFixture(r io.Reader) (*Fixture, error) {
	var tree any
	if err := yaml.NewDecoder(r).Decode(&tree); err != nil {
		if err == io.EOF {
			return &Fixture{}, nil
		}
		return nil, fmt.Errorf("decode fixture yaml: %w", err)
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("convert fixture to json: %w", err)
	}
	var fx Fixture
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return &fx, nil
}

func LoadFixtureFile(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadFixture(f)
}

// DefaultFixture returns the embedded CoreCraft demo data set.
func DefaultFixture() (*Fixture, error) {
	return LoadFixture(bytes.NewReader(defaultFixture))
}
