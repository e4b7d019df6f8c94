package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
	eventx "github.com/tanpawarit/corecraft-support/retail/events"
	policyx "github.com/tanpawarit/corecraft-support/retail/policy"
	storex "github.com/tanpawarit/corecraft-support/retail/store"
)

type SearchTicketsInput struct {
	TicketID           string                 `json:"ticket_id,omitempty"`
	CustomerID         string                 `json:"customer_id,omitempty"`
	OrderID            string                 `json:"order_id,omitempty"`
	AssignedEmployeeID string                 `json:"assigned_employee_id,omitempty"`
	Status             domainx.TicketStatus   `json:"status,omitempty"`
	Priority           domainx.TicketPriority `json:"priority,omitempty"`
	TicketType         domainx.TicketType     `json:"ticket_type,omitempty"`
	Text               string                 `json:"text,omitempty"`
	CreatedAfter       *Timestamp             `json:"created_after,omitempty"`
	CreatedBefore      *Timestamp             `json:"created_before,omitempty"`
	UpdatedAfter       *Timestamp             `json:"updated_after,omitempty"`
	UpdatedBefore      *Timestamp             `json:"updated_before,omitempty"`
	ResolvedAfter      *Timestamp             `json:"resolved_after,omitempty"`
	ResolvedBefore     *Timestamp             `json:"resolved_before,omitempty"`
	Limit              int                    `json:"limit,omitempty"`
}

func (s *Service) SearchTickets(ctx context.Context, in SearchTicketsInput) ([]*domainx.SupportTicket, error) {
	if err := checkEnum("status", in.Status); err != nil {
		return nil, err
	}
	if err := checkEnum("priority", in.Priority); err != nil {
		return nil, err
	}
	if err := checkEnum("ticket_type", in.TicketType); err != nil {
		return nil, err
	}
	return s.store.SearchTickets(ctx, storex.TicketFilter{
		ID:                 in.TicketID,
		CustomerID:         in.CustomerID,
		OrderID:            in.OrderID,
		AssignedEmployeeID: in.AssignedEmployeeID,
		Status:             in.Status,
		Priority:           in.Priority,
		TicketType:         in.TicketType,
		Text:               in.Text,
		Created:            timeRange(in.CreatedAfter, in.CreatedBefore),
		Updated:            timeRange(in.UpdatedAfter, in.UpdatedBefore),
		Resolved:           timeRange(in.ResolvedAfter, in.ResolvedBefore),
		Limit:              in.Limit,
	})
}

type TicketHistoryInput struct {
	CustomerID      string     `json:"customer_id"`
	IncludeResolved *bool      `json:"include_resolved,omitempty"`
	CreatedAfter    *Timestamp `json:"created_after,omitempty"`
	CreatedBefore   *Timestamp `json:"created_before,omitempty"`
	UpdatedAfter    *Timestamp `json:"updated_after,omitempty"`
	UpdatedBefore   *Timestamp `json:"updated_before,omitempty"`
}

type TicketHistory struct {
	CustomerID        string                   `json:"customer_id"`
	Tickets           []*domainx.SupportTicket `json:"tickets"`
	Escalations       []*domainx.Escalation    `json:"escalations"`
	Resolutions       []*domainx.Resolution    `json:"resolutions"`
	RecentTicketCount int                      `json:"recent_ticket_count"`
	HighVolume        bool                     `json:"high_volume"`
}

// GetCustomerTicketHistory lists a customer's tickets with their escalations and resolutions.
// The before bounds are exclusive here, unlike the search tools. The high volume flag counts
// every ticket opened in the trailing window regardless of the other filters.
func (s *Service) GetCustomerTicketHistory(ctx context.Context, in TicketHistoryInput) (*TicketHistory, error) {
	if err := required("customer_id", in.CustomerID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetCustomer(ctx, in.CustomerID); err != nil {
		return nil, notFound(err, "customer", in.CustomerID)
	}

	tickets, err := s.store.SearchTickets(ctx, storex.TicketFilter{
		CustomerID: in.CustomerID,
		Created:    storex.TimeRange{After: in.CreatedAfter.Ptr(), Before: exclusive(in.CreatedBefore)},
		Updated:    storex.TimeRange{After: in.UpdatedAfter.Ptr(), Before: exclusive(in.UpdatedBefore)},
		Limit:      storex.MaxLimit,
	})
	if err != nil {
		return nil, err
	}

	out := &TicketHistory{
		CustomerID:  in.CustomerID,
		Tickets:     []*domainx.SupportTicket{},
		Escalations: []*domainx.Escalation{},
		Resolutions: []*domainx.Resolution{},
	}
	includeResolved := in.IncludeResolved == nil || *in.IncludeResolved
	for _, t := range tickets {
		if !includeResolved && t.Status.Finished() {
			continue
		}
		out.Tickets = append(out.Tickets, t)

		escs, err := s.store.SearchEscalations(ctx, storex.EscalationFilter{TicketID: t.ID, Limit: storex.MaxLimit})
		if err != nil {
			return nil, err
		}
		out.Escalations = append(out.Escalations, escs...)

		res, err := s.store.SearchResolutions(ctx, storex.ResolutionFilter{TicketID: t.ID, Limit: storex.MaxLimit})
		if err != nil {
			return nil, err
		}
		out.Resolutions = append(out.Resolutions, res...)
	}

	since := s.Now().Add(-policyx.HighVolumeWindow)
	recent, err := s.store.SearchTickets(ctx, storex.TicketFilter{
		CustomerID: in.CustomerID,
		Created:    storex.TimeRange{After: &since},
		Limit:      storex.MaxLimit,
	})
	if err != nil {
		return nil, err
	}
	out.RecentTicketCount = len(recent)
	out.HighVolume = len(recent) >= policyx.HighVolumeTicketCount
	return out, nil
}

func exclusive(t *Timestamp) *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time.Add(-time.Nanosecond)
	return &v
}

type UpdateTicketInput struct {
	TicketID           string                 `json:"ticket_id"`
	Status             domainx.TicketStatus   `json:"status,omitempty"`
	Priority           domainx.TicketPriority `json:"priority,omitempty"`
	AssignedEmployeeID string                 `json:"assigned_employee_id,omitempty"`
}

// UpdateTicketStatus changes status, priority or assignee. Resolving stamps resolved_at and
// reopening clears it.
func (s *Service) UpdateTicketStatus(ctx context.Context, in UpdateTicketInput) (*domainx.SupportTicket, error) {
	if err := required("ticket_id", in.TicketID); err != nil {
		return nil, err
	}
	if in.Status == "" && in.Priority == "" && in.AssignedEmployeeID == "" {
		return nil, invalid("one of status, priority or assigned_employee_id is required")
	}
	if err := checkEnum("status", in.Status); err != nil {
		return nil, err
	}
	if err := checkEnum("priority", in.Priority); err != nil {
		return nil, err
	}

	t, err := s.store.GetTicket(ctx, in.TicketID)
	if err != nil {
		return nil, notFound(err, "ticket", in.TicketID)
	}
	if in.AssignedEmployeeID != "" {
		if _, err := s.store.GetEmployee(ctx, in.AssignedEmployeeID); err != nil {
			return nil, notFound(err, "employee", in.AssignedEmployeeID)
		}
		t.AssignedEmployeeID = in.AssignedEmployeeID
	}
	if in.Priority != "" {
		t.Priority = in.Priority
	}

	now := s.Now()
	if in.Status != "" && in.Status != t.Status {
		if !domainx.CanTransitionTicket(t.Status, in.Status) {
			return nil, fmt.Errorf("%w: ticket %s cannot move from %s to %s", ErrInvalidTransition, t.ID, t.Status, in.Status)
		}
		switch {
		case in.Status == domainx.TicketResolved:
			t.ResolvedAt = &now
		case !in.Status.Finished():
			t.ResolvedAt = nil
		case t.ResolvedAt == nil:
			t.ResolvedAt = &now
		}
		t.Status = in.Status
	}
	t.UpdatedAt = now
	if err := s.store.SaveTicket(ctx, t); err != nil {
		return nil, err
	}
	s.publish(ctx, eventx.TicketUpdated, t.ID, t)
	return t, nil
}

type CreateEscalationInput struct {
	TicketID       string                 `json:"ticket_id"`
	EscalationType domainx.EscalationType `json:"escalation_type"`
	Destination    domainx.Destination    `json:"destination"`
	Notes          string                 `json:"notes,omitempty"`
}

func (s *Service) CreateEscalation(ctx context.Context, in CreateEscalationInput) (*domainx.Escalation, error) {
	if err := required("ticket_id", in.TicketID); err != nil {
		return nil, err
	}
	if in.EscalationType == "" || !in.EscalationType.Valid() {
		return nil, invalid("escalation_type %q is not a valid value", in.EscalationType)
	}
	if in.Destination == "" || !in.Destination.Valid() {
		return nil, invalid("destination %q is not a valid value", in.Destination)
	}
	if _, err := s.store.GetTicket(ctx, in.TicketID); err != nil {
		return nil, notFound(err, "ticket", in.TicketID)
	}

	e := &domainx.Escalation{
		ID:             "esc_" + s.newID(),
		TicketID:       in.TicketID,
		EscalationType: in.EscalationType,
		Destination:    in.Destination,
		Notes:          in.Notes,
		CreatedAt:      s.Now(),
	}
	if err := s.store.SaveEscalation(ctx, e); err != nil {
		return nil, err
	}
	s.publish(ctx, eventx.EscalationCreated, e.ID, e)
	return e, nil
}

type SearchEscalationsInput struct {
	EscalationID   string                 `json:"escalation_id,omitempty"`
	TicketID       string                 `json:"ticket_id,omitempty"`
	EscalationType domainx.EscalationType `json:"escalation_type,omitempty"`
	Destination    domainx.Destination    `json:"destination,omitempty"`
	Notes          string                 `json:"notes,omitempty"`
	CreatedAfter   *Timestamp             `json:"created_after,omitempty"`
	CreatedBefore  *Timestamp             `json:"created_before,omitempty"`
	ResolvedAfter  *Timestamp             `json:"resolved_after,omitempty"`
	ResolvedBefore *Timestamp             `json:"resolved_before,omitempty"`
	Limit          int                    `json:"limit,omitempty"`
}

func (s *Service) SearchEscalations(ctx context.Context, in SearchEscalationsInput) ([]*domainx.Escalation, error) {
	if err := checkEnum("escalation_type", in.EscalationType); err != nil {
		return nil, err
	}
	if err := checkEnum("destination", in.Destination); err != nil {
		return nil, err
	}
	return s.store.SearchEscalations(ctx, storex.EscalationFilter{
		ID:             in.EscalationID,
		TicketID:       in.TicketID,
		EscalationType: in.EscalationType,
		Destination:    in.Destination,
		NotesText:      in.Notes,
		Created:        timeRange(in.CreatedAfter, in.CreatedBefore),
		Resolved:       timeRange(in.ResolvedAfter, in.ResolvedBefore),
		Limit:          in.Limit,
	})
}

type CreateResolutionInput struct {
	TicketID       string                    `json:"ticket_id"`
	Outcome        domainx.ResolutionOutcome `json:"outcome"`
	LinkedRefundID string                    `json:"linked_refund_id,omitempty"`
	ResolvedByID   string                    `json:"resolved_by_id,omitempty"`
	Notes          string                    `json:"notes,omitempty"`
	CloseTicket    bool                      `json:"close_ticket,omitempty"`
	NotifyCustomer bool                      `json:"notify_customer,omitempty"`
}

type CreateResolutionResult struct {
	Resolution *domainx.Resolution    `json:"resolution"`
	Ticket     *domainx.SupportTicket `json:"ticket,omitempty"`
	Notified   bool                   `json:"notified"`
}

// CreateResolution records how a ticket was resolved, optionally marking the ticket resolved
// and notifying the customer. A failed notification is logged and reported, not returned.
func (s *Service) CreateResolution(ctx context.Context, in CreateResolutionInput) (*CreateResolutionResult, error) {
	if err := required("ticket_id", in.TicketID); err != nil {
		return nil, err
	}
	if in.Outcome == "" || !in.Outcome.Valid() {
		return nil, invalid("outcome %q is not a valid value", in.Outcome)
	}
	t, err := s.store.GetTicket(ctx, in.TicketID)
	if err != nil {
		return nil, notFound(err, "ticket", in.TicketID)
	}
	if in.LinkedRefundID != "" {
		if _, err := s.store.GetRefund(ctx, in.LinkedRefundID); err != nil {
			return nil, notFound(err, "refund", in.LinkedRefundID)
		}
	}
	if in.ResolvedByID != "" {
		if _, err := s.store.GetEmployee(ctx, in.ResolvedByID); err != nil {
			return nil, notFound(err, "employee", in.ResolvedByID)
		}
	}
	if in.CloseTicket && t.Status != domainx.TicketResolved && !domainx.CanTransitionTicket(t.Status, domainx.TicketResolved) {
		return nil, fmt.Errorf("%w: ticket %s cannot move from %s to %s", ErrInvalidTransition, t.ID, t.Status, domainx.TicketResolved)
	}

	now := s.Now()
	r := &domainx.Resolution{
		ID:             "res_" + s.newID(),
		TicketID:       in.TicketID,
		Outcome:        in.Outcome,
		LinkedRefundID: in.LinkedRefundID,
		ResolvedByID:   in.ResolvedByID,
		Notes:          in.Notes,
		CreatedAt:      now,
	}
	res := &CreateResolutionResult{Resolution: r}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx storex.Store) error {
		if err := tx.SaveResolution(ctx, r); err != nil {
			return err
		}
		if !in.CloseTicket || t.Status == domainx.TicketResolved {
			return nil
		}
		t.Status = domainx.TicketResolved
		t.ResolvedAt = &now
		t.UpdatedAt = now
		res.Ticket = t
		return tx.SaveTicket(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventx.ResolutionCreated, r.ID, r)
	if res.Ticket != nil {
		s.publish(ctx, eventx.TicketUpdated, t.ID, t)
	}
	if in.NotifyCustomer {
		res.Notified = s.notifyResolution(ctx, t, r)
	}
	return res, nil
}

func (s *Service) notifyResolution(ctx context.Context, t *domainx.SupportTicket, r *domainx.Resolution) bool {
	c, err := s.store.GetCustomer(ctx, t.CustomerID)
	if err != nil {
		log.Warn().Err(err).Str("ticket_id", t.ID).Msg("service: resolution notification skipped")
		return false
	}
	n := Notification{
		CustomerID:        c.ID,
		Email:             c.Email,
		Phone:             c.Phone,
		Channel:           "email",
		Subject:           fmt.Sprintf("Update on your support request %s", t.ID),
		Message:           resolutionMessage(c.Name, t, r),
		RelatedEntityType: "resolution",
		RelatedEntityID:   r.ID,
		SentAt:            s.Now(),
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		log.Warn().Err(err).Str("ticket_id", t.ID).Str("resolution_id", r.ID).Msg("service: resolution notification failed")
		return false
	}
	return true
}

func resolutionMessage(name string, t *domainx.SupportTicket, r *domainx.Resolution) string {
	msg := fmt.Sprintf("Hi %s, your request %q has been updated with outcome: %s.", name, t.Subject, r.Outcome)
	if r.Notes != "" {
		msg += " " + r.Notes
	}
	return msg
}

type SearchResolutionsInput struct {
	ResolutionID   string                    `json:"resolution_id,omitempty"`
	TicketID       string                    `json:"ticket_id,omitempty"`
	Outcome        domainx.ResolutionOutcome `json:"outcome,omitempty"`
	ResolvedByID   string                    `json:"resolved_by_id,omitempty"`
	LinkedRefundID string                    `json:"linked_refund_id,omitempty"`
	Notes          string                    `json:"notes,omitempty"`
	CreatedAfter   *Timestamp                `json:"created_after,omitempty"`
	CreatedBefore  *Timestamp                `json:"created_before,omitempty"`
	Limit          int                       `json:"limit,omitempty"`
}

func (s *Service) SearchResolutions(ctx context.Context, in SearchResolutionsInput) ([]*domainx.Resolution, error) {
	if err := checkEnum("outcome", in.Outcome); err != nil {
		return nil, err
	}
	return s.store.SearchResolutions(ctx, storex.ResolutionFilter{
		ID:             in.ResolutionID,
		TicketID:       in.TicketID,
		Outcome:        in.Outcome,
		ResolvedByID:   in.ResolvedByID,
		LinkedRefundID: in.LinkedRefundID,
		NotesText:      in.Notes,
		Created:        timeRange(in.CreatedAfter, in.CreatedBefore),
		Limit:          in.Limit,
	})
}
