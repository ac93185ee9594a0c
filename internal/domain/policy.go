package domain

import "fmt"

// CheckActivation decides whether target may become the active policy for
// its key, given the policies currently active for that same key.
func CheckActivation(target *Policy, activeForKey []*Policy) error {
	if target.Steps.IsEmpty() {
		return fmt.Errorf("%w: policy %s", ErrEmptyLine, target.ID)
	}
	for _, p := range activeForKey {
		if p.ID != target.ID {
			return fmt.Errorf("%w: policy %s is active for %s/%q",
				ErrDuplicateActiveScope, p.ID, target.DocType, target.Scope)
		}
	}
	return nil
}

// CheckSwap validates an atomic replace of the active policy for a key.
// outgoing may be inactive already; incoming must share its key.
func CheckSwap(outgoing, incoming *Policy, activeForKey []*Policy) error {
	if outgoing.ID == incoming.ID {
		return fmt.Errorf("%w: cannot swap policy %s with itself", ErrInvalidTransition, incoming.ID)
	}
	if outgoing.Key() != incoming.Key() {
		return fmt.Errorf("%w: policies %s and %s belong to different scopes",
			ErrInvalidTransition, outgoing.ID, incoming.ID)
	}
	var remaining []*Policy
	for _, p := range activeForKey {
		if p.ID != outgoing.ID {
			remaining = append(remaining, p)
		}
	}
	return CheckActivation(incoming, remaining)
}

// CheckDeletable refuses to delete an active policy.
func CheckDeletable(p *Policy) error {
	if p.Active {
		return fmt.Errorf("%w: deactivate policy %s before deleting it", ErrPolicyInUse, p.ID)
	}
	return nil
}

// CheckEditable refuses to change the steps of an active policy.
func CheckEditable(p *Policy) error {
	if p.Active {
		return fmt.Errorf("%w: deactivate policy %s before editing its steps", ErrPolicyInUse, p.ID)
	}
	return nil
}
