// Package lifecycle governs legal transitions for a single
// reviewer-manuscript invitation. Every transition is a single-row
// update; invariant violations fail immediately, there is no best-effort
// mode.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reviewdesk/internal/util"
	"reviewdesk/pkg/domain"
	"reviewdesk/pkg/store"
)

type Action string

const (
	ActionAccept         Action = "accept"
	ActionDecline        Action = "decline"
	ActionForceAccept    Action = "force_accept"
	ActionForceDecline   Action = "force_decline"
	ActionRevoke         Action = "revoke"
	ActionSubmitReport   Action = "submit_report"
	ActionInvalidate     Action = "invalidate"
	ActionReinstate      Action = "reinstate"
	ActionExtendDeadline Action = "extend_deadline"
	ActionRemind         Action = "remind"
)

var (
	// ErrInvalidTransition means the action is not legal from the
	// invitation's stored state. Always a caller bug, never coerced.
	ErrInvalidTransition = errors.New("invalid invitation transition")
	// ErrDuplicateActiveInvitation means a non-terminal invitation
	// already exists for the (reviewer, manuscript) pair.
	ErrDuplicateActiveInvitation = errors.New("active invitation already exists for reviewer and manuscript")
	// ErrReviewerQueued means the reviewer currently sits in the
	// manuscript's send queue; queue membership and invitation are
	// mutually exclusive for a pair.
	ErrReviewerQueued = errors.New("reviewer is queued for this manuscript")
	ErrUnknownAction  = errors.New("unknown invitation action")
	ErrNotFound       = errors.New("invitation not found")
)

const (
	DefaultDueIn     = 14 * 24 * time.Hour
	DefaultExpiresIn = 14 * 24 * time.Hour
)

// allowedSources is the explicit allow-list of stored states each action
// may fire from. Expired and overdue are display states over pending and
// accepted rows, so force actions and deadline extensions remain legal
// on rows that display as expired or overdue.
var allowedSources = map[Action][]domain.InvitationStatus{
	ActionAccept:         {domain.InvitationPending},
	ActionDecline:        {domain.InvitationPending},
	ActionForceAccept:    {domain.InvitationPending},
	ActionForceDecline:   {domain.InvitationPending},
	ActionRevoke:         {domain.InvitationPending},
	ActionSubmitReport:   {domain.InvitationAccepted},
	ActionInvalidate:     {domain.InvitationPending, domain.InvitationAccepted, domain.InvitationReportSubmitted},
	ActionReinstate:      {domain.InvitationInvalidated},
	ActionExtendDeadline: {domain.InvitationPending, domain.InvitationAccepted},
	ActionRemind:         {domain.InvitationPending},
}

// Machine applies lifecycle actions against the store.
type Machine struct {
	store     store.Store
	now       func() time.Time
	dueIn     time.Duration
	expiresIn time.Duration
}

type Option func(*Machine)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithDueIn sets the review deadline window for new invitations.
func WithDueIn(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.dueIn = d
		}
	}
}

// WithExpiresIn sets the response window for new invitations.
func WithExpiresIn(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.expiresIn = d
		}
	}
}

func New(s store.Store, opts ...Option) *Machine {
	m := &Machine{
		store:     s,
		now:       func() time.Time { return time.Now().UTC() },
		dueIn:     DefaultDueIn,
		expiresIn: DefaultExpiresIn,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Invite creates a pending invitation for the pair. A new round is only
// permitted once the previous invitation is terminal, and never while
// the reviewer sits in the manuscript's queue.
func (m *Machine) Invite(ctx context.Context, manuscriptID, reviewerID string) (domain.ReviewInvitation, error) {
	if _, ok, err := m.store.ActiveInvitation(ctx, manuscriptID, reviewerID); err != nil {
		return domain.ReviewInvitation{}, fmt.Errorf("check active invitation: %w", err)
	} else if ok {
		return domain.ReviewInvitation{}, ErrDuplicateActiveInvitation
	}
	state, err := m.store.QueueState(ctx, manuscriptID)
	if err != nil {
		return domain.ReviewInvitation{}, fmt.Errorf("check queue membership: %w", err)
	}
	for _, item := range state.Items {
		if item.ReviewerID == reviewerID {
			return domain.ReviewInvitation{}, ErrReviewerQueued
		}
	}
	round, err := m.store.LatestRound(ctx, manuscriptID, reviewerID)
	if err != nil {
		return domain.ReviewInvitation{}, fmt.Errorf("latest round: %w", err)
	}

	now := m.now()
	inv := domain.ReviewInvitation{
		ID:             util.NewUUID(),
		ManuscriptID:   manuscriptID,
		ReviewerID:     reviewerID,
		Status:         domain.InvitationPending,
		InvitedDate:    now,
		DueDate:        now.Add(m.dueIn),
		ExpirationDate: now.Add(m.expiresIn),
		Round:          round + 1,
		UpdatedAt:      now,
	}
	if err := m.store.InsertInvitation(ctx, inv); err != nil {
		return domain.ReviewInvitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	return inv, nil
}

// TransitionOpts carries per-action parameters.
type TransitionOpts struct {
	// Reason is appended to the invitation notes on invalidate/revoke.
	Reason string
	// NewDueDate overrides the recomputed deadline on extend_deadline.
	NewDueDate time.Time
}

// Transition applies one action to the invitation and persists the
// resulting row.
func (m *Machine) Transition(ctx context.Context, invitationID string, action Action, opts TransitionOpts) (domain.ReviewInvitation, error) {
	sources, known := allowedSources[action]
	if !known {
		return domain.ReviewInvitation{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	inv, ok, err := m.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return domain.ReviewInvitation{}, fmt.Errorf("load invitation: %w", err)
	}
	if !ok {
		return domain.ReviewInvitation{}, ErrNotFound
	}
	legal := false
	for _, s := range sources {
		if inv.Status == s {
			legal = true
			break
		}
	}
	if !legal {
		return domain.ReviewInvitation{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, inv.Status)
	}

	now := m.now()
	switch action {
	case ActionAccept, ActionForceAccept:
		inv.Status = domain.InvitationAccepted
		inv.ResponseDate = &now
	case ActionDecline, ActionForceDecline:
		inv.Status = domain.InvitationDeclined
		inv.ResponseDate = &now
	case ActionRevoke:
		inv.Status = domain.InvitationRevoked
		inv.Notes = appendNote(inv.Notes, "Revoked by editor", opts.Reason)
	case ActionSubmitReport:
		inv.Status = domain.InvitationReportSubmitted
	case ActionInvalidate:
		inv.Status = domain.InvitationInvalidated
		inv.InvalidatedAt = &now
		inv.Notes = appendNote(inv.Notes, "Invalidated", opts.Reason)
	case ActionReinstate:
		inv.Status = domain.InvitationReportSubmitted
		inv.InvalidatedAt = nil
		inv.Notes = appendNote(inv.Notes, "Report reinstated", "")
	case ActionExtendDeadline:
		due := opts.NewDueDate
		if due.IsZero() {
			due = now.Add(m.dueIn)
		}
		inv.DueDate = due
	case ActionRemind:
		inv.ReminderCount++
	}
	inv.UpdatedAt = now

	if err := m.store.UpdateInvitation(ctx, inv); err != nil {
		return domain.ReviewInvitation{}, fmt.Errorf("update invitation: %w", err)
	}
	return inv, nil
}

func appendNote(notes, label, reason string) string {
	entry := "[" + label + "]"
	if reason != "" {
		entry = "[" + label + ": " + reason + "]"
	}
	if notes == "" {
		return entry
	}
	return notes + " " + entry
}
