package domain

import "time"

// Terminal reports whether no further lifecycle transition is permitted.
func (inv ReviewInvitation) Terminal() bool {
	switch inv.Status {
	case InvitationDeclined, InvitationReportSubmitted, InvitationRevoked, InvitationInvalidated:
		return true
	}
	return false
}

// Display computes the user-facing state at the given instant. Expired and
// overdue are predicates over stored fields, never persisted: a pending
// invitation past its expiration date displays as expired, an accepted one
// past its due date with no report displays as overdue. The stored status
// is untouched, so editors can still act on the row afterwards.
func (inv ReviewInvitation) Display(now time.Time) DisplayStatus {
	switch inv.Status {
	case InvitationPending:
		if !inv.ExpirationDate.IsZero() && now.After(inv.ExpirationDate) {
			return DisplayExpired
		}
		return DisplayPending
	case InvitationAccepted:
		if !inv.DueDate.IsZero() && now.After(inv.DueDate) {
			return DisplayOverdue
		}
		return DisplayAccepted
	case InvitationDeclined:
		return DisplayDeclined
	case InvitationReportSubmitted:
		return DisplayReportSubmitted
	case InvitationRevoked:
		return DisplayRevoked
	case InvitationInvalidated:
		return DisplayInvalidated
	}
	return DisplayStatus(inv.Status)
}
