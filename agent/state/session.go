package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SessionState is what the orchestrator persists between turns of one chat.
// Goals interleave through a LIFO stack: a higher priority goal suspends the
// active one, which resumes once the newer goal is done.
type SessionState struct {
	SessionID   string `json:"session_id"`
	WorkspaceID string `json:"workspace_id"`
	ChannelType string `json:"channel_type"`

	// CustomerID is the customer the chat acts for. Verified is set once the
	// customer passed verify_customer during this session.
	CustomerID string `json:"customer_id,omitempty"`
	Verified   bool   `json:"verified,omitempty"`

	ActiveGoalID string           `json:"active_goal_id,omitempty"`
	GoalStack    []string         `json:"goal_stack,omitempty"`
	Goals        map[string]*Goal `json:"goals,omitempty"`

	Turns     int       `json:"turns"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalBlocked   GoalStatus = "blocked"
	GoalSuspended GoalStatus = "suspended"
	GoalDone      GoalStatus = "done"
)

// Goal types understood by the specialists. The prefix selects the agent.
const (
	GoalSalesRecommend   = "sales.recommend"
	GoalSalesCustomBuild = "sales.custom_build"
	GoalSalesPlaceOrder  = "sales.place_order"

	GoalSupportOrderStatus = "support.order_status"
	GoalSupportCancel      = "support.cancel_order"
	GoalSupportRefund      = "support.refund"
	GoalSupportWarranty    = "support.warranty"
	GoalSupportTechnical   = "support.technical"
	GoalSupportAccount     = "support.account"
)

var goalPriorities = map[string]int{
	GoalSupportRefund:      100,
	GoalSupportCancel:      100,
	GoalSupportWarranty:    95,
	GoalSupportTechnical:   90,
	GoalSupportOrderStatus: 80,
	GoalSupportAccount:     70,
	GoalSalesPlaceOrder:    60,
	GoalSalesCustomBuild:   50,
	GoalSalesRecommend:     40,
}

// GoalTypes lists the known goal types in priority order.
func GoalTypes() []string {
	return []string{
		GoalSupportRefund, GoalSupportCancel, GoalSupportWarranty, GoalSupportTechnical,
		GoalSupportOrderStatus, GoalSupportAccount,
		GoalSalesPlaceOrder, GoalSalesCustomBuild, GoalSalesRecommend,
	}
}

// DefaultPriority returns the priority of a goal type. Unknown subtypes fall
// back to their family.
func DefaultPriority(goalType string) int {
	goalType = strings.TrimSpace(goalType)
	if p, ok := goalPriorities[goalType]; ok {
		return p
	}
	switch {
	case strings.HasPrefix(goalType, "support."):
		return 75
	case strings.HasPrefix(goalType, "sales."):
		return 45
	default:
		return 10
	}
}

// SupportedGoalType reports whether a specialist can own goalType.
func SupportedGoalType(goalType string) bool {
	goalType = strings.TrimSpace(goalType)
	for _, prefix := range []string{"sales.", "support."} {
		if strings.HasPrefix(goalType, prefix) && len(goalType) > len(prefix) {
			return true
		}
	}
	return false
}

type Goal struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Status       GoalStatus     `json:"status"`
	Priority     int            `json:"priority"`
	Slots        map[string]any `json:"slots,omitempty"`
	Missing      []string       `json:"missing,omitempty"`
	NextQuestion string         `json:"next_question,omitempty"`
	// ToolCalls counts tools executed on behalf of this goal.
	ToolCalls int       `json:"tool_calls,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (g *Goal) IsBlocked() bool {
	return g != nil && g.Status == GoalBlocked
}

func (g *Goal) IsDone() bool {
	return g != nil && g.Status == GoalDone
}

func (g *Goal) SetSlot(key string, val any) {
	if g.Slots == nil {
		g.Slots = make(map[string]any, 8)
	}
	if val == nil {
		delete(g.Slots, key)
		return
	}
	g.Slots[key] = val
}

// SlotString returns a slot as a trimmed string, or "" when unset.
func (g *Goal) SlotString(key string) string {
	if g == nil || g.Slots == nil {
		return ""
	}
	s, _ := g.Slots[key].(string)
	return strings.TrimSpace(s)
}

// SetMissing records what the goal still needs. A goal with missing slots is
// blocked; clearing them unblocks it. Done and suspended goals keep their status.
func (g *Goal) SetMissing(missing []string, nextQuestion string) {
	g.Missing = compact(missing)
	nextQuestion = strings.TrimSpace(nextQuestion)

	if len(g.Missing) == 0 {
		g.NextQuestion = ""
		if g.Status == GoalBlocked {
			g.Status = GoalActive
		}
		return
	}
	g.NextQuestion = nextQuestion
	if g.Status == GoalDone || g.Status == GoalSuspended {
		return
	}
	if nextQuestion == "" {
		return
	}
	g.Status = GoalBlocked
}

func compact(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

var (
	ErrNilGoalID         = errors.New("goal id is empty")
	ErrGoalNotFound      = errors.New("goal not found")
	ErrNoActiveGoal      = errors.New("no active goal")
	ErrStackCorrupt      = errors.New("goal stack corrupt")
	ErrInvalidTransition = errors.New("invalid goal transition")
	ErrCustomerMismatch  = errors.New("session belongs to another customer")
	errNilSession        = errors.New("nil session state")
)

func NewSessionState(sessionID, workspaceID, customerID, channelType string, now time.Time) *SessionState {
	return &SessionState{
		SessionID:   sessionID,
		WorkspaceID: workspaceID,
		CustomerID:  customerID,
		ChannelType: channelType,
		Goals:       make(map[string]*Goal, 4),
		Version:     1,
		UpdatedAt:   now.UTC(),
	}
}

func (s *SessionState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// BindCustomer marks the session verified for customerID. A session that
// already belongs to someone else is left untouched.
func (s *SessionState) BindCustomer(customerID string, now time.Time) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil
	}
	if s.CustomerID != "" && s.CustomerID != customerID {
		return fmt.Errorf("%w: %s cannot be bound to %s", ErrCustomerMismatch, s.SessionID, customerID)
	}
	s.CustomerID = customerID
	s.Verified = true
	s.Touch(now)
	return nil
}

func (s *SessionState) EnsureGoalsMap() {
	if s.Goals == nil {
		s.Goals = make(map[string]*Goal, 4)
	}
}

func (s *SessionState) ActiveGoal() *Goal {
	if s == nil || s.ActiveGoalID == "" || s.Goals == nil {
		return nil
	}
	return s.Goals[s.ActiveGoalID]
}

func (s *SessionState) GetGoal(goalID string) (*Goal, bool) {
	if s == nil || s.Goals == nil {
		return nil, false
	}
	g, ok := s.Goals[goalID]
	return g, ok
}

// OpenGoals returns goals that are not done, stack order first.
func (s *SessionState) OpenGoals() []*Goal {
	if s == nil {
		return nil
	}
	var out []*Goal
	seen := make(map[string]bool, len(s.Goals))
	for i := len(s.GoalStack) - 1; i >= 0; i-- {
		id := s.GoalStack[i]
		if g, ok := s.Goals[id]; ok && !seen[id] && !g.IsDone() {
			seen[id] = true
			out = append(out, g)
		}
	}
	return out
}

// AddGoal adds or replaces a goal.
func (s *SessionState) AddGoal(g *Goal) error {
	if s == nil {
		return errNilSession
	}
	if g == nil || g.ID == "" {
		return ErrNilGoalID
	}
	s.EnsureGoalsMap()
	s.Goals[g.ID] = g
	return nil
}

func (s *SessionState) pushGoal(goalID string) {
	if top, ok := s.peekGoal(); ok && top == goalID {
		return
	}
	s.GoalStack = append(s.GoalStack, goalID)
}

func (s *SessionState) popGoal() (string, bool) {
	if len(s.GoalStack) == 0 {
		return "", false
	}
	last := s.GoalStack[len(s.GoalStack)-1]
	s.GoalStack = s.GoalStack[:len(s.GoalStack)-1]
	return last, true
}

func (s *SessionState) peekGoal() (string, bool) {
	if len(s.GoalStack) == 0 {
		return "", false
	}
	return s.GoalStack[len(s.GoalStack)-1], true
}

// SetActiveGoal makes goalID active without suspending anything.
func (s *SessionState) SetActiveGoal(goalID string) error {
	if s == nil {
		return errNilSession
	}
	if goalID == "" {
		return ErrNilGoalID
	}
	if _, ok := s.GetGoal(goalID); !ok {
		return fmt.Errorf("%w: %s", ErrGoalNotFound, goalID)
	}
	s.ActiveGoalID = goalID
	s.pushGoal(goalID)
	return nil
}

// SuspendAndActivate suspends the active goal and pushes newGoalID on top.
// A blocked goal stays blocked when activated.
func (s *SessionState) SuspendAndActivate(newGoalID string, now time.Time) error {
	if s == nil {
		return errNilSession
	}
	if newGoalID == "" {
		return ErrNilGoalID
	}
	newGoal, ok := s.GetGoal(newGoalID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrGoalNotFound, newGoalID)
	}
	if newGoal.IsDone() {
		return fmt.Errorf("%w: cannot activate done goal %s", ErrInvalidTransition, newGoalID)
	}

	if cur := s.ActiveGoal(); cur != nil && cur.ID != newGoalID && !cur.IsDone() {
		cur.Status = GoalSuspended
		cur.UpdatedAt = now.UTC()
	}
	if newGoal.Status == "" || newGoal.Status == GoalSuspended {
		newGoal.Status = GoalActive
	}
	newGoal.UpdatedAt = now.UTC()

	s.ActiveGoalID = newGoalID
	s.pushGoal(newGoalID)
	s.Touch(now)
	return nil
}

// QueueGoal places a goal directly below the active one so it resumes when
// the active goal is done.
func (s *SessionState) QueueGoal(goalID string, now time.Time) error {
	if s == nil {
		return errNilSession
	}
	g, ok := s.GetGoal(goalID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrGoalNotFound, goalID)
	}
	if g.IsDone() {
		return fmt.Errorf("%w: cannot queue done goal %s", ErrInvalidTransition, goalID)
	}
	if s.ActiveGoalID == "" || s.ActiveGoalID == goalID {
		return s.SetActiveGoal(goalID)
	}
	s.removeFromStack(goalID)
	top := len(s.GoalStack) - 1
	if top < 0 {
		s.GoalStack = []string{goalID, s.ActiveGoalID}
	} else {
		s.GoalStack = append(s.GoalStack[:top], goalID, s.GoalStack[top])
	}
	if !g.IsBlocked() {
		g.Status = GoalSuspended
	}
	g.UpdatedAt = now.UTC()
	s.Touch(now)
	return nil
}

// MarkGoalDone closes a goal. Closing the active goal resumes the previous one.
func (s *SessionState) MarkGoalDone(goalID string, now time.Time) error {
	if s == nil {
		return errNilSession
	}
	if goalID == "" {
		return ErrNilGoalID
	}
	g, ok := s.GetGoal(goalID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrGoalNotFound, goalID)
	}
	g.Status = GoalDone
	g.NextQuestion = ""
	g.Missing = nil
	g.UpdatedAt = now.UTC()

	if s.ActiveGoalID == goalID {
		s.ResumePrevious(now)
	} else {
		s.removeFromStack(goalID)
	}
	s.Touch(now)
	return nil
}

func (s *SessionState) removeFromStack(goalID string) {
	out := s.GoalStack[:0]
	for _, id := range s.GoalStack {
		if id != goalID {
			out = append(out, id)
		}
	}
	s.GoalStack = out
}

// ResumePrevious drops the active goal from the stack and activates the next
// goal that is not done. It returns false when nothing is left.
func (s *SessionState) ResumePrevious(now time.Time) (string, bool) {
	if s == nil {
		return "", false
	}
	if top, ok := s.peekGoal(); ok && top == s.ActiveGoalID {
		s.popGoal()
	}
	for {
		prevID, ok := s.peekGoal()
		if !ok {
			s.ActiveGoalID = ""
			s.Touch(now)
			return "", false
		}
		prev, ok := s.GetGoal(prevID)
		if !ok || prev.IsDone() {
			s.popGoal()
			continue
		}
		if prev.Status == GoalSuspended {
			prev.Status = GoalActive
		}
		prev.UpdatedAt = now.UTC()
		s.ActiveGoalID = prevID
		s.Touch(now)
		return prevID, true
	}
}

func (s *SessionState) Validate() error {
	if s == nil {
		return errNilSession
	}
	if s.Goals == nil {
		if s.ActiveGoalID != "" {
			return fmt.Errorf("%w: active_goal_id=%s", ErrGoalNotFound, s.ActiveGoalID)
		}
		return nil
	}
	if s.ActiveGoalID != "" {
		if _, ok := s.Goals[s.ActiveGoalID]; !ok {
			return fmt.Errorf("%w: active_goal_id=%s", ErrGoalNotFound, s.ActiveGoalID)
		}
	}
	for _, id := range s.GoalStack {
		if _, ok := s.Goals[id]; !ok {
			return fmt.Errorf("%w: stack has missing goal_id=%s", ErrStackCorrupt, id)
		}
	}
	for _, g := range s.Goals {
		if g.Status == GoalBlocked && (len(g.Missing) == 0 || g.NextQuestion == "") {
			return fmt.Errorf("%w: blocked goal %s must have missing and next_question", ErrInvalidTransition, g.ID)
		}
	}
	return nil
}

func CreateGoal(id, goalType string, priority int, now time.Time) *Goal {
	if priority <= 0 {
		priority = DefaultPriority(goalType)
	}
	return &Goal{
		ID:        id,
		Type:      strings.TrimSpace(goalType),
		Status:    GoalActive,
		Priority:  priority,
		Slots:     make(map[string]any, 8),
		UpdatedAt: now.UTC(),
	}
}
