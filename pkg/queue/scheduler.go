// Package queue schedules deferred review invitations. Each manuscript
// owns one queue of reviewers with dense 0-based positions; every
// mutation is a full read-modify-write of the list guarded by the queue
// version, so positions never fragment.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reviewdesk/internal/util"
	"reviewdesk/pkg/domain"
	"reviewdesk/pkg/store"
)

var (
	// ErrInvitationActive means the reviewer already holds a non-terminal
	// invitation for the manuscript, so queueing would duplicate intent.
	ErrInvitationActive = errors.New("reviewer has an active invitation for this manuscript")
	ErrAlreadyQueued    = errors.New("reviewer is already queued for this manuscript")
	ErrNotQueued        = errors.New("reviewer is not queued for this manuscript")
)

const (
	// DefaultSendInterval spaces queued invitations a week apart: the
	// reviewer at position p is scheduled (p+1) intervals out.
	DefaultSendInterval = 7 * 24 * time.Hour
	maxOrderRetries     = 3
)

// Notifier receives the invitation created when a queue item is
// dispatched. Implementations must be safe for concurrent use.
type Notifier interface {
	InvitationQueued(ctx context.Context, inv domain.ReviewInvitation) error
}

// Scheduler owns queue mutations and the periodic dispatch pass.
type Scheduler struct {
	store        store.Store
	notifier     Notifier
	now          func() time.Time
	sendInterval time.Duration
	dueIn        time.Duration
	expiresIn    time.Duration
}

type Option func(*Scheduler)

// WithNotifier attaches the outbox that carries dispatched invitations.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithSendInterval sets the spacing between queued send dates.
func WithSendInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.sendInterval = d
		}
	}
}

// WithInvitationWindows sets the due and expiration windows stamped on
// invitations created at dispatch time.
func WithInvitationWindows(dueIn, expiresIn time.Duration) Option {
	return func(s *Scheduler) {
		if dueIn > 0 {
			s.dueIn = dueIn
		}
		if expiresIn > 0 {
			s.expiresIn = expiresIn
		}
	}
}

func New(st store.Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:        st,
		now:          func() time.Time { return time.Now().UTC() },
		sendInterval: DefaultSendInterval,
		dueIn:        14 * 24 * time.Hour,
		expiresIn:    14 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Queue returns the manuscript's queue state with the next scheduled
// send derived from the head item.
func (s *Scheduler) Queue(ctx context.Context, manuscriptID string) (store.QueueState, error) {
	state, err := s.store.QueueState(ctx, manuscriptID)
	if err != nil {
		return store.QueueState{}, err
	}
	if state.Control.Active && len(state.Items) > 0 {
		next := state.Items[0].ScheduledSendDate
		state.Control.NextScheduledSend = &next
	}
	return state, nil
}

// Enqueue appends the reviewer at the queue tail. The pair must hold
// neither a queue slot nor an active invitation.
func (s *Scheduler) Enqueue(ctx context.Context, manuscriptID, reviewerID string, priority domain.QueuePriority, notes string) (domain.QueueItem, error) {
	if _, ok, err := s.store.ActiveInvitation(ctx, manuscriptID, reviewerID); err != nil {
		return domain.QueueItem{}, fmt.Errorf("check active invitation: %w", err)
	} else if ok {
		return domain.QueueItem{}, ErrInvitationActive
	}
	if priority == "" {
		priority = domain.PriorityNormal
	}

	var added domain.QueueItem
	err := s.mutate(ctx, manuscriptID, func(items []domain.QueueItem, now time.Time) ([]domain.QueueItem, error) {
		for _, item := range items {
			if item.ReviewerID == reviewerID {
				return nil, ErrAlreadyQueued
			}
		}
		added = domain.QueueItem{
			ID:           util.NewUUID(),
			ManuscriptID: manuscriptID,
			ReviewerID:   reviewerID,
			Priority:     priority,
			Notes:        notes,
			CreatedAt:    now,
		}
		return append(items, added), nil
	})
	if err != nil {
		return domain.QueueItem{}, err
	}
	state, err := s.store.QueueState(ctx, manuscriptID)
	if err != nil {
		return domain.QueueItem{}, err
	}
	for _, item := range state.Items {
		if item.ID == added.ID {
			return item, nil
		}
	}
	return added, nil
}

// Dequeue removes the reviewer's slot and closes the gap.
func (s *Scheduler) Dequeue(ctx context.Context, manuscriptID, reviewerID string) error {
	return s.mutate(ctx, manuscriptID, func(items []domain.QueueItem, now time.Time) ([]domain.QueueItem, error) {
		out := items[:0]
		found := false
		for _, item := range items {
			if item.ReviewerID == reviewerID {
				found = true
				continue
			}
			out = append(out, item)
		}
		if !found {
			return nil, ErrNotQueued
		}
		return out, nil
	})
}

// Reorder moves the reviewer to position, shifting everything between
// the old and new slot by one. Position is clamped into range, so
// "move to the end" callers can pass any large value.
func (s *Scheduler) Reorder(ctx context.Context, manuscriptID, reviewerID string, position int) ([]domain.QueueItem, error) {
	err := s.mutate(ctx, manuscriptID, func(items []domain.QueueItem, now time.Time) ([]domain.QueueItem, error) {
		from := -1
		for i, item := range items {
			if item.ReviewerID == reviewerID {
				from = i
				break
			}
		}
		if from < 0 {
			return nil, ErrNotQueued
		}
		moved := items[from]
		rest := append(append([]domain.QueueItem{}, items[:from]...), items[from+1:]...)
		to := position
		if to < 0 {
			to = 0
		}
		if to > len(rest) {
			to = len(rest)
		}
		out := append(append([]domain.QueueItem{}, rest[:to]...), moved)
		return append(out, rest[to:]...), nil
	})
	if err != nil {
		return nil, err
	}
	state, err := s.store.QueueState(ctx, manuscriptID)
	if err != nil {
		return nil, err
	}
	return state.Items, nil
}

// SetActive pauses or resumes automatic dispatch for the manuscript.
func (s *Scheduler) SetActive(ctx context.Context, manuscriptID string, active bool) error {
	return s.store.SetQueueActive(ctx, manuscriptID, active)
}

// mutate runs one read-modify-write cycle against the queue: fn
// transforms the current item list, then the result is renumbered
// densely, rescheduled, and written under the version read at the
// start. Version conflicts retry the whole cycle.
func (s *Scheduler) mutate(ctx context.Context, manuscriptID string, fn func(items []domain.QueueItem, now time.Time) ([]domain.QueueItem, error)) error {
	var lastErr error
	for attempt := 0; attempt < maxOrderRetries; attempt++ {
		state, err := s.store.QueueState(ctx, manuscriptID)
		if err != nil {
			return err
		}
		now := s.now()
		items, err := fn(state.Items, now)
		if err != nil {
			return err
		}
		s.renumber(items, now)
		err = s.store.PutQueueOrder(ctx, manuscriptID, items, state.Control.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrQueueConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// renumber assigns dense positions and restacks the weekly send ladder
// from now, so a reorder moves send dates along with slots.
func (s *Scheduler) renumber(items []domain.QueueItem, now time.Time) {
	for i := range items {
		items[i].Position = i
		items[i].ScheduledSendDate = now.Add(time.Duration(i+1) * s.sendInterval)
	}
}

// DispatchSkip records a queue item dropped without sending, with the
// invariant that forced the drop.
type DispatchSkip struct {
	ManuscriptID string `json:"manuscriptId"`
	ReviewerID   string `json:"reviewerId"`
	Reason       string `json:"reason"`
}

// DispatchFailure records an item that could not be dispatched and
// stays queued for the next tick.
type DispatchFailure struct {
	ManuscriptID string `json:"manuscriptId"`
	ReviewerID   string `json:"reviewerId"`
	Err          error  `json:"-"`
}

type DispatchResult struct {
	Sent     []domain.ReviewInvitation
	Skipped  []DispatchSkip
	Failures []DispatchFailure
}

// DispatchTick converts every due queue item on every active queue into
// a pending invitation. Items whose send fails stay queued; items whose
// pair already holds an active invitation are dropped to restore the
// one-slot-per-pair invariant. One broken manuscript never blocks the
// rest of the pass.
func (s *Scheduler) DispatchTick(ctx context.Context) (DispatchResult, error) {
	var res DispatchResult
	manuscripts, err := s.store.ActiveQueueManuscripts(ctx)
	if err != nil {
		return res, fmt.Errorf("list active queues: %w", err)
	}
	for _, manuscriptID := range manuscripts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.dispatchManuscript(ctx, manuscriptID, &res); err != nil {
			res.Failures = append(res.Failures, DispatchFailure{ManuscriptID: manuscriptID, Err: err})
			slog.Warn("queue dispatch failed", "manuscript_id", manuscriptID, "error", err)
		}
	}
	return res, nil
}

func (s *Scheduler) dispatchManuscript(ctx context.Context, manuscriptID string, res *DispatchResult) error {
	state, err := s.store.QueueState(ctx, manuscriptID)
	if err != nil {
		return err
	}
	if !state.Control.Active {
		return nil
	}
	now := s.now()
	remaining := make([]domain.QueueItem, 0, len(state.Items))
	changed := false

	for _, item := range state.Items {
		if item.ScheduledSendDate.After(now) {
			remaining = append(remaining, item)
			continue
		}

		// Re-verify exclusivity at send time; the invitation may have
		// been created directly since the item was queued.
		if _, ok, err := s.store.ActiveInvitation(ctx, manuscriptID, item.ReviewerID); err != nil {
			remaining = append(remaining, item)
			res.Failures = append(res.Failures, DispatchFailure{ManuscriptID: manuscriptID, ReviewerID: item.ReviewerID, Err: err})
			continue
		} else if ok {
			changed = true
			res.Skipped = append(res.Skipped, DispatchSkip{
				ManuscriptID: manuscriptID,
				ReviewerID:   item.ReviewerID,
				Reason:       "active invitation already exists",
			})
			continue
		}

		inv, err := s.sendInvitation(ctx, manuscriptID, item, now)
		if err != nil {
			remaining = append(remaining, item)
			res.Failures = append(res.Failures, DispatchFailure{ManuscriptID: manuscriptID, ReviewerID: item.ReviewerID, Err: err})
			continue
		}
		changed = true
		res.Sent = append(res.Sent, inv)
	}

	if !changed {
		return nil
	}
	s.renumber(remaining, now)
	if err := s.store.PutQueueOrder(ctx, manuscriptID, remaining, state.Control.Version); err != nil {
		return fmt.Errorf("renumber after dispatch: %w", err)
	}
	return nil
}

func (s *Scheduler) sendInvitation(ctx context.Context, manuscriptID string, item domain.QueueItem, now time.Time) (domain.ReviewInvitation, error) {
	round, err := s.store.LatestRound(ctx, manuscriptID, item.ReviewerID)
	if err != nil {
		return domain.ReviewInvitation{}, fmt.Errorf("latest round: %w", err)
	}
	inv := domain.ReviewInvitation{
		ID:             util.NewUUID(),
		ManuscriptID:   manuscriptID,
		ReviewerID:     item.ReviewerID,
		Status:         domain.InvitationPending,
		InvitedDate:    now,
		DueDate:        now.Add(s.dueIn),
		ExpirationDate: now.Add(s.expiresIn),
		Round:          round + 1,
		Notes:          item.Notes,
		UpdatedAt:      now,
	}
	if err := s.store.InsertInvitation(ctx, inv); err != nil {
		return domain.ReviewInvitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	if s.notifier != nil {
		if err := s.notifier.InvitationQueued(ctx, inv); err != nil {
			// The invitation row exists; only the notification is lost.
			slog.Warn("invitation notification failed",
				"invitation_id", inv.ID, "manuscript_id", manuscriptID, "error", err)
		}
	}
	return inv, nil
}
