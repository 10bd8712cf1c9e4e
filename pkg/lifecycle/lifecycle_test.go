package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"reviewdesk/pkg/domain"
	"reviewdesk/pkg/store"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestInviteCreatesPendingRound(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	m := New(s, WithClock(fixedClock(now)))
	ctx := context.Background()

	inv, err := m.Invite(ctx, "ms1", "r1")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if inv.Status != domain.InvitationPending {
		t.Fatalf("status = %q, want pending", inv.Status)
	}
	if inv.Round != 1 {
		t.Fatalf("round = %d, want 1", inv.Round)
	}
	if !inv.DueDate.Equal(now.Add(DefaultDueIn)) {
		t.Fatalf("due date = %v", inv.DueDate)
	}

	// A second invite for the same pair must be rejected while the first
	// is non-terminal.
	if _, err := m.Invite(ctx, "ms1", "r1"); !errors.Is(err, ErrDuplicateActiveInvitation) {
		t.Fatalf("expected ErrDuplicateActiveInvitation, got: %v", err)
	}

	// Other pairs are unaffected.
	if _, err := m.Invite(ctx, "ms1", "r2"); err != nil {
		t.Fatalf("invite second reviewer: %v", err)
	}
	if _, err := m.Invite(ctx, "ms2", "r1"); err != nil {
		t.Fatalf("invite on second manuscript: %v", err)
	}
}

func TestInviteRejectedWhileQueued(t *testing.T) {
	s := store.NewMemoryStore()
	m := New(s)
	ctx := context.Background()

	item := domain.QueueItem{ID: "q1", ManuscriptID: "ms1", ReviewerID: "r1", Position: 0}
	if err := s.PutQueueOrder(ctx, "ms1", []domain.QueueItem{item}, 0); err != nil {
		t.Fatalf("seed queue: %v", err)
	}
	if _, err := m.Invite(ctx, "ms1", "r1"); !errors.Is(err, ErrReviewerQueued) {
		t.Fatalf("expected ErrReviewerQueued, got: %v", err)
	}
}

func TestInviteNewRoundAfterTerminal(t *testing.T) {
	s := store.NewMemoryStore()
	m := New(s)
	ctx := context.Background()

	first, err := m.Invite(ctx, "ms1", "r1")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := m.Transition(ctx, first.ID, ActionDecline, TransitionOpts{}); err != nil {
		t.Fatalf("decline: %v", err)
	}

	second, err := m.Invite(ctx, "ms1", "r1")
	if err != nil {
		t.Fatalf("re-invite after terminal: %v", err)
	}
	if second.Round != 2 {
		t.Fatalf("round = %d, want 2", second.Round)
	}
}

func TestTransitionTable(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, status domain.InvitationStatus) (*Machine, domain.ReviewInvitation) {
		t.Helper()
		s := store.NewMemoryStore()
		inv := domain.ReviewInvitation{
			ID: "inv1", ManuscriptID: "ms1", ReviewerID: "r1",
			Status: status, Round: 1,
			InvitedDate: time.Now().UTC().Add(-48 * time.Hour),
			DueDate:     time.Now().UTC().Add(12 * 24 * time.Hour),
		}
		if err := s.InsertInvitation(ctx, inv); err != nil {
			t.Fatalf("seed: %v", err)
		}
		return New(s), inv
	}

	t.Run("accept sets response date", func(t *testing.T) {
		m, inv := seed(t, domain.InvitationPending)
		got, err := m.Transition(ctx, inv.ID, ActionAccept, TransitionOpts{})
		if err != nil {
			t.Fatalf("accept: %v", err)
		}
		if got.Status != domain.InvitationAccepted || got.ResponseDate == nil {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("submit report from accepted", func(t *testing.T) {
		m, inv := seed(t, domain.InvitationAccepted)
		got, err := m.Transition(ctx, inv.ID, ActionSubmitReport, TransitionOpts{})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if got.Status != domain.InvitationReportSubmitted {
			t.Fatalf("status = %q", got.Status)
		}
	})

	t.Run("submit report from pending is illegal", func(t *testing.T) {
		m, inv := seed(t, domain.InvitationPending)
		if _, err := m.Transition(ctx, inv.ID, ActionSubmitReport, TransitionOpts{}); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got: %v", err)
		}
	})

	t.Run("terminal states reject every action", func(t *testing.T) {
		for _, status := range []domain.InvitationStatus{
			domain.InvitationDeclined, domain.InvitationRevoked,
		} {
			m, inv := seed(t, status)
			for _, action := range []Action{ActionAccept, ActionDecline, ActionRevoke, ActionSubmitReport, ActionRemind} {
				if _, err := m.Transition(ctx, inv.ID, action, TransitionOpts{}); !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("%s from %s: expected ErrInvalidTransition, got: %v", action, status, err)
				}
			}
		}
	})

	t.Run("invalidate allowed from report_submitted", func(t *testing.T) {
		m, inv := seed(t, domain.InvitationReportSubmitted)
		got, err := m.Transition(ctx, inv.ID, ActionInvalidate, TransitionOpts{Reason: "conflict of interest"})
		if err != nil {
			t.Fatalf("invalidate: %v", err)
		}
		if got.Status != domain.InvitationInvalidated || got.InvalidatedAt == nil {
			t.Fatalf("got %+v", got)
		}
		// Reinstate restores the report and clears the invalidation mark.
		back, err := m.Transition(ctx, inv.ID, ActionReinstate, TransitionOpts{})
		if err != nil {
			t.Fatalf("reinstate: %v", err)
		}
		if back.Status != domain.InvitationReportSubmitted || back.InvalidatedAt != nil {
			t.Fatalf("got %+v", back)
		}
	})

	t.Run("invalidate rejected from declined", func(t *testing.T) {
		m, inv := seed(t, domain.InvitationDeclined)
		if _, err := m.Transition(ctx, inv.ID, ActionInvalidate, TransitionOpts{}); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got: %v", err)
		}
	})

	t.Run("remind increments counter", func(t *testing.T) {
		m, inv := seed(t, domain.InvitationPending)
		got, err := m.Transition(ctx, inv.ID, ActionRemind, TransitionOpts{})
		if err != nil {
			t.Fatalf("remind: %v", err)
		}
		if got.ReminderCount != 1 || got.Status != domain.InvitationPending {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		m, inv := seed(t, domain.InvitationPending)
		if _, err := m.Transition(ctx, inv.ID, Action("explode"), TransitionOpts{}); !errors.Is(err, ErrUnknownAction) {
			t.Fatalf("expected ErrUnknownAction, got: %v", err)
		}
	})

	t.Run("missing invitation", func(t *testing.T) {
		m, _ := seed(t, domain.InvitationPending)
		if _, err := m.Transition(ctx, "nope", ActionAccept, TransitionOpts{}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestForceAcceptOnExpiredDisplay(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	m := New(s, WithClock(fixedClock(now)))
	ctx := context.Background()

	// Pending and past its expiration date: displays expired but the row
	// is still pending, so a force accept must succeed.
	inv := domain.ReviewInvitation{
		ID: "inv1", ManuscriptID: "ms1", ReviewerID: "r1",
		Status:         domain.InvitationPending,
		ExpirationDate: now.Add(-24 * time.Hour),
		Round:          1,
	}
	if err := s.InsertInvitation(ctx, inv); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if got := inv.Display(now); got != domain.DisplayExpired {
		t.Fatalf("display = %q, want expired", got)
	}

	got, err := m.Transition(ctx, inv.ID, ActionForceAccept, TransitionOpts{})
	if err != nil {
		t.Fatalf("force accept on expired: %v", err)
	}
	if got.Status != domain.InvitationAccepted {
		t.Fatalf("status = %q, want accepted", got.Status)
	}
}

func TestExtendDeadlineClearsOverdue(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	m := New(s, WithClock(fixedClock(now)))
	ctx := context.Background()

	inv := domain.ReviewInvitation{
		ID: "inv1", ManuscriptID: "ms1", ReviewerID: "r1",
		Status:  domain.InvitationAccepted,
		DueDate: now.Add(-48 * time.Hour),
		Round:   1,
	}
	if err := s.InsertInvitation(ctx, inv); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if got := inv.Display(now); got != domain.DisplayOverdue {
		t.Fatalf("display = %q, want overdue", got)
	}

	got, err := m.Transition(ctx, inv.ID, ActionExtendDeadline, TransitionOpts{NewDueDate: now.Add(7 * 24 * time.Hour)})
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if got.Status != domain.InvitationAccepted {
		t.Fatalf("status = %q", got.Status)
	}
	if got.Display(now) != domain.DisplayAccepted {
		t.Fatalf("display after extension = %q, want accepted", got.Display(now))
	}
}
