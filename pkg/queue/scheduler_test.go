package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"reviewdesk/pkg/domain"
	"reviewdesk/pkg/store"
)

type recordingNotifier struct {
	sent []domain.ReviewInvitation
}

func (n *recordingNotifier) InvitationQueued(_ context.Context, inv domain.ReviewInvitation) error {
	n.sent = append(n.sent, inv)
	return nil
}

// failingStore fails every invitation insert, leaving the rest of the
// store behavior intact.
type failingStore struct {
	store.Store
}

func (f *failingStore) InsertInvitation(context.Context, domain.ReviewInvitation) error {
	return errors.New("insert rejected")
}

func TestEnqueueAssignsDensePositions(t *testing.T) {
	s := store.NewMemoryStore()
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	sch := New(s, WithClock(func() time.Time { return start }))
	ctx := context.Background()

	for i, reviewer := range []string{"r1", "r2", "r3"} {
		item, err := sch.Enqueue(ctx, "ms1", reviewer, domain.PriorityNormal, "")
		if err != nil {
			t.Fatalf("enqueue %s: %v", reviewer, err)
		}
		if item.Position != i {
			t.Fatalf("%s position = %d, want %d", reviewer, item.Position, i)
		}
	}

	state, err := sch.Queue(ctx, "ms1")
	if err != nil {
		t.Fatalf("queue state: %v", err)
	}
	for i, item := range state.Items {
		if item.Position != i {
			t.Fatalf("item %d has position %d", i, item.Position)
		}
		want := start.Add(time.Duration(i+1) * DefaultSendInterval)
		if !item.ScheduledSendDate.Equal(want) {
			t.Fatalf("item %d scheduled at %v, want %v", i, item.ScheduledSendDate, want)
		}
	}
}

func TestEnqueueMutualExclusion(t *testing.T) {
	s := store.NewMemoryStore()
	sch := New(s)
	ctx := context.Background()

	inv := domain.ReviewInvitation{ID: "i1", ManuscriptID: "ms1", ReviewerID: "r1", Status: domain.InvitationPending, Round: 1}
	if err := s.InsertInvitation(ctx, inv); err != nil {
		t.Fatalf("seed invitation: %v", err)
	}
	if _, err := sch.Enqueue(ctx, "ms1", "r1", domain.PriorityNormal, ""); !errors.Is(err, ErrInvitationActive) {
		t.Fatalf("expected ErrInvitationActive, got: %v", err)
	}

	if _, err := sch.Enqueue(ctx, "ms1", "r2", domain.PriorityNormal, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := sch.Enqueue(ctx, "ms1", "r2", domain.PriorityNormal, ""); !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got: %v", err)
	}
}

func TestReorderMovesAndRenumbers(t *testing.T) {
	s := store.NewMemoryStore()
	sch := New(s)
	ctx := context.Background()

	for _, reviewer := range []string{"r0", "r1", "r2", "r3"} {
		if _, err := sch.Enqueue(ctx, "ms1", reviewer, domain.PriorityNormal, ""); err != nil {
			t.Fatalf("enqueue %s: %v", reviewer, err)
		}
	}

	items, err := sch.Reorder(ctx, "ms1", "r3", 1)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	wantOrder := []string{"r0", "r3", "r1", "r2"}
	if len(items) != len(wantOrder) {
		t.Fatalf("got %d items, want %d", len(items), len(wantOrder))
	}
	for i, item := range items {
		if item.ReviewerID != wantOrder[i] {
			t.Fatalf("position %d holds %s, want %s", i, item.ReviewerID, wantOrder[i])
		}
		if item.Position != i {
			t.Fatalf("%s position = %d, want %d", item.ReviewerID, item.Position, i)
		}
	}

	// Out-of-range targets clamp to the ends instead of failing.
	items, err = sch.Reorder(ctx, "ms1", "r0", 99)
	if err != nil {
		t.Fatalf("reorder to tail: %v", err)
	}
	if items[len(items)-1].ReviewerID != "r0" {
		t.Fatalf("expected r0 at the tail, got %s", items[len(items)-1].ReviewerID)
	}

	if _, err := sch.Reorder(ctx, "ms1", "ghost", 0); !errors.Is(err, ErrNotQueued) {
		t.Fatalf("expected ErrNotQueued, got: %v", err)
	}
}

func TestDequeueClosesGap(t *testing.T) {
	s := store.NewMemoryStore()
	sch := New(s)
	ctx := context.Background()

	for _, reviewer := range []string{"r0", "r1", "r2"} {
		if _, err := sch.Enqueue(ctx, "ms1", reviewer, domain.PriorityNormal, ""); err != nil {
			t.Fatalf("enqueue %s: %v", reviewer, err)
		}
	}
	if err := sch.Dequeue(ctx, "ms1", "r1"); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := sch.Dequeue(ctx, "ms1", "r1"); !errors.Is(err, ErrNotQueued) {
		t.Fatalf("expected ErrNotQueued, got: %v", err)
	}

	state, err := sch.Queue(ctx, "ms1")
	if err != nil {
		t.Fatalf("queue state: %v", err)
	}
	if len(state.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(state.Items))
	}
	for i, item := range state.Items {
		if item.Position != i {
			t.Fatalf("gap left at position %d", i)
		}
	}
}

func TestDispatchSendsDueItems(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	notifier := &recordingNotifier{}
	sch := New(s, WithClock(func() time.Time { return now }), WithNotifier(notifier))
	ctx := context.Background()

	for _, reviewer := range []string{"r1", "r2"} {
		if _, err := sch.Enqueue(ctx, "ms1", reviewer, domain.PriorityNormal, ""); err != nil {
			t.Fatalf("enqueue %s: %v", reviewer, err)
		}
	}
	if err := sch.SetActive(ctx, "ms1", true); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// Nothing is due yet: the head item is scheduled one interval out.
	res, err := sch.DispatchTick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(res.Sent) != 0 {
		t.Fatalf("sent %d invitations before the send date", len(res.Sent))
	}

	now = now.Add(DefaultSendInterval + time.Minute)
	res, err = sch.DispatchTick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(res.Sent) != 1 || res.Sent[0].ReviewerID != "r1" {
		t.Fatalf("sent = %+v, want one invitation for r1", res.Sent)
	}
	if res.Sent[0].Status != domain.InvitationPending || res.Sent[0].Round != 1 {
		t.Fatalf("dispatched invitation = %+v", res.Sent[0])
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifier got %d invitations, want 1", len(notifier.sent))
	}

	// The remainder is renumbered and rescheduled from the tick time.
	state, err := sch.Queue(ctx, "ms1")
	if err != nil {
		t.Fatalf("queue state: %v", err)
	}
	if len(state.Items) != 1 || state.Items[0].ReviewerID != "r2" || state.Items[0].Position != 0 {
		t.Fatalf("remaining queue = %+v", state.Items)
	}

	// A second tick at the same instant sends nothing.
	res, err = sch.DispatchTick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(res.Sent) != 0 {
		t.Fatalf("second tick re-sent %d invitations", len(res.Sent))
	}
}

func TestDispatchIgnoresPausedQueue(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	sch := New(s, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if _, err := sch.Enqueue(ctx, "ms1", "r1", domain.PriorityNormal, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	now = now.Add(2 * DefaultSendInterval)

	res, err := sch.DispatchTick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(res.Sent) != 0 {
		t.Fatalf("paused queue dispatched %d invitations", len(res.Sent))
	}
}

func TestDispatchDropsPairWithActiveInvitation(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	sch := New(s, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if _, err := sch.Enqueue(ctx, "ms1", "r1", domain.PriorityNormal, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := sch.SetActive(ctx, "ms1", true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	// An invitation created directly after queueing; the queue item must
	// be dropped rather than double-inviting.
	inv := domain.ReviewInvitation{ID: "i1", ManuscriptID: "ms1", ReviewerID: "r1", Status: domain.InvitationPending, Round: 1}
	if err := s.InsertInvitation(ctx, inv); err != nil {
		t.Fatalf("seed invitation: %v", err)
	}
	now = now.Add(2 * DefaultSendInterval)

	res, err := sch.DispatchTick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(res.Sent) != 0 {
		t.Fatalf("sent %d, want 0", len(res.Sent))
	}
	if len(res.Skipped) != 1 || res.Skipped[0].ReviewerID != "r1" {
		t.Fatalf("skipped = %+v", res.Skipped)
	}
	state, err := sch.Queue(ctx, "ms1")
	if err != nil {
		t.Fatalf("queue state: %v", err)
	}
	if len(state.Items) != 0 {
		t.Fatalf("dropped item still queued: %+v", state.Items)
	}
}

func TestDispatchFailureKeepsItemQueued(t *testing.T) {
	mem := store.NewMemoryStore()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	sch := New(&failingStore{Store: mem}, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if _, err := sch.Enqueue(ctx, "ms1", "r1", domain.PriorityNormal, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := sch.SetActive(ctx, "ms1", true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	now = now.Add(2 * DefaultSendInterval)

	res, err := sch.DispatchTick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(res.Sent) != 0 {
		t.Fatalf("sent %d, want 0", len(res.Sent))
	}
	if len(res.Failures) != 1 || res.Failures[0].ReviewerID != "r1" {
		t.Fatalf("failures = %+v", res.Failures)
	}
	state, err := sch.Queue(ctx, "ms1")
	if err != nil {
		t.Fatalf("queue state: %v", err)
	}
	if len(state.Items) != 1 {
		t.Fatalf("failed item must stay queued, got %+v", state.Items)
	}
}
