package orchestratornode

import (
	statex "github.com/tanpawarit/corecraft-support/agent/state"
)

// shouldInterleave reports whether candidate suspends the current goal.
// Ties keep the current goal so the customer is not bounced between topics.
func shouldInterleave(current *statex.Goal, candidate *statex.Goal) bool {
	if candidate == nil {
		return false
	}
	if current == nil || current.IsDone() {
		return true
	}
	if current.ID == candidate.ID {
		return false
	}
	return candidate.Priority > current.Priority
}
