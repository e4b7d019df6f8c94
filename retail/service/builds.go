package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tanpawarit/corecraft-support/retail/compat"
	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
	eventx "github.com/tanpawarit/corecraft-support/retail/events"
	storex "github.com/tanpawarit/corecraft-support/retail/store"
)

type CreateBuildInput struct {
	Name       string   `json:"name"`
	CustomerID string   `json:"customer_id"`
	ProductIDs []string `json:"product_ids"`
}

// CreateBuild stores a named parts list. Product ids are kept sorted and repeats are allowed,
// so two sticks of the same memory kit appear twice.
func (s *Service) CreateBuild(ctx context.Context, in CreateBuildInput) (*domainx.Build, error) {
	if err := required("name", in.Name); err != nil {
		return nil, err
	}
	if err := required("customer_id", in.CustomerID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetCustomer(ctx, in.CustomerID); err != nil {
		return nil, notFound(err, "customer", in.CustomerID)
	}
	if _, err := s.loadProducts(ctx, in.ProductIDs); err != nil {
		return nil, err
	}

	b := s.newBuild(in.Name, in.CustomerID, in.ProductIDs)
	if err := s.store.SaveBuild(ctx, b); err != nil {
		return nil, err
	}
	s.publish(ctx, eventx.BuildSaved, b.ID, b)
	return b, nil
}

func (s *Service) newBuild(name, customerID string, productIDs []string) *domainx.Build {
	ids := append([]string{}, productIDs...)
	sort.Strings(ids)
	now := s.Now()
	return &domainx.Build{
		ID:         hashID("build_", name, customerID, strings.Join(ids, "|")),
		Name:       name,
		CustomerID: customerID,
		ProductIDs: ids,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// RequiredBuildCategories must each be covered by at least one part of a
// build ordered through CreateAndOrderBuild.
var RequiredBuildCategories = []domainx.ProductCategory{
	domainx.CategoryCPU, domainx.CategoryMotherboard, domainx.CategoryMemory,
	domainx.CategoryStorage, domainx.CategoryPSU, domainx.CategoryCase,
}

type CreateAndOrderBuildInput struct {
	CustomerID      string                  `json:"customer_id"`
	Name            string                  `json:"name"`
	Components      []OrderLineInput        `json:"components"`
	ShippingService domainx.ShippingService `json:"shipping_service,omitempty"`
	ShippingAddress *domainx.Address        `json:"shipping_address,omitempty"`
	ApprovedByID    string                  `json:"approved_by_id,omitempty"`
}

type CreateAndOrderBuildResult struct {
	Build         *domainx.Build `json:"build"`
	Order         *domainx.Order `json:"order"`
	Compatibility compat.Result  `json:"compatibility"`
}

// CreateAndOrderBuild saves a complete build and a pending order for its parts
// in one transaction. Every required category must be present and the parts
// must be compatible; warnings are returned but do not block. The order goes
// through the same checks and custom build approval as CreateOrder.
func (s *Service) CreateAndOrderBuild(ctx context.Context, in CreateAndOrderBuildInput) (*CreateAndOrderBuildResult, error) {
	if err := required("customer_id", in.CustomerID); err != nil {
		return nil, err
	}
	if err := required("name", in.Name); err != nil {
		return nil, err
	}
	if len(in.Components) == 0 {
		return nil, invalid("components must not be empty")
	}
	lines := make([]OrderLineInput, len(in.Components))
	var ids, partIDs []string
	for i, c := range in.Components {
		if strings.TrimSpace(c.ProductID) == "" {
			return nil, invalid("component %d missing product_id", i)
		}
		if c.Qty == 0 {
			c.Qty = 1
		}
		if c.Qty < 1 {
			return nil, invalid("component %s must have qty >= 1", c.ProductID)
		}
		lines[i] = c
		ids = append(ids, c.ProductID)
		for n := 0; n < c.Qty; n++ {
			partIDs = append(partIDs, c.ProductID)
		}
	}
	if _, err := s.store.GetCustomer(ctx, in.CustomerID); err != nil {
		return nil, notFound(err, "customer", in.CustomerID)
	}
	products, err := s.loadProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	have := map[domainx.ProductCategory]bool{}
	for _, p := range products {
		have[p.Category] = true
	}
	var missing []string
	for _, c := range RequiredBuildCategories {
		if !have[c] {
			missing = append(missing, string(c))
		}
	}
	if len(missing) > 0 {
		return nil, invalid("build is missing required component categories: %s", strings.Join(missing, ", "))
	}

	found := make([]*domainx.Product, 0, len(products))
	for _, p := range products {
		found = append(found, p)
	}
	check := compat.Check(partIDs, found)
	if !check.IsCompatible {
		return nil, invalid("build is not compatible: %s", strings.Join(check.Errors, "; "))
	}

	b := s.newBuild(in.Name, in.CustomerID, partIDs)
	o, err := s.newOrder(ctx, CreateOrderInput{
		CustomerID:      in.CustomerID,
		LineItems:       lines,
		BuildID:         b.ID,
		ShippingService: in.ShippingService,
		ShippingAddress: in.ShippingAddress,
		ApprovedByID:    in.ApprovedByID,
	}, b)
	if err != nil {
		return nil, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx storex.Store) error {
		if err := tx.SaveBuild(ctx, b); err != nil {
			return err
		}
		return tx.SaveOrder(ctx, o)
	})
	if err != nil {
		return nil, fmt.Errorf("save build order: %w", err)
	}
	s.publish(ctx, eventx.BuildSaved, b.ID, b)
	s.publish(ctx, eventx.OrderCreated, o.ID, o)
	return &CreateAndOrderBuildResult{Build: b, Order: o, Compatibility: check}, nil
}

type UpdateBuildInput struct {
	BuildID          string   `json:"build_id"`
	Name             *string  `json:"name,omitempty"`
	AddProductIDs    []string `json:"add_product_ids,omitempty"`
	RemoveProductIDs []string `json:"remove_product_ids,omitempty"`
}

// UpdateBuild renames a build and edits its parts. Removals apply before additions and each
// removal takes out one occurrence.
func (s *Service) UpdateBuild(ctx context.Context, in UpdateBuildInput) (*domainx.Build, error) {
	if err := required("build_id", in.BuildID); err != nil {
		return nil, err
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, invalid("name must not be empty")
	}
	b, err := s.store.GetBuild(ctx, in.BuildID)
	if err != nil {
		return nil, notFound(err, "build", in.BuildID)
	}
	if len(in.AddProductIDs) > 0 {
		if _, err := s.loadProducts(ctx, in.AddProductIDs); err != nil {
			return nil, err
		}
	}

	current := append([]string{}, b.ProductIDs...)
	var missing []string
	for _, id := range in.RemoveProductIDs {
		if !containsString(current, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, invalid("Products not in build: %s", strings.Join(missing, ", "))
	}
	for _, id := range in.RemoveProductIDs {
		current = removeOne(current, id)
	}
	current = append(current, in.AddProductIDs...)
	sort.Strings(current)

	if in.Name != nil {
		b.Name = *in.Name
	}
	b.ProductIDs = current
	b.UpdatedAt = s.Now()
	if err := s.store.SaveBuild(ctx, b); err != nil {
		return nil, fmt.Errorf("save build: %w", err)
	}
	s.publish(ctx, eventx.BuildSaved, b.ID, b)
	return b, nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func removeOne(list []string, v string) []string {
	for i, s := range list {
		if s == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

type SearchBuildsInput struct {
	BuildID       string     `json:"build_id,omitempty"`
	Name          string     `json:"name,omitempty"`
	CustomerID    string     `json:"customer_id,omitempty"`
	CreatedAfter  *Timestamp `json:"created_after,omitempty"`
	CreatedBefore *Timestamp `json:"created_before,omitempty"`
	Limit         int        `json:"limit,omitempty"`
}

func (s *Service) SearchBuilds(ctx context.Context, in SearchBuildsInput) ([]*domainx.Build, error) {
	return s.store.SearchBuilds(ctx, storex.BuildFilter{
		ID:         in.BuildID,
		Name:       in.Name,
		CustomerID: in.CustomerID,
		Created:    timeRange(in.CreatedAfter, in.CreatedBefore),
		Limit:      in.Limit,
	})
}
