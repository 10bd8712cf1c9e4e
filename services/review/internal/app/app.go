// Package app wires the review engine: store, invitation state machine,
// queue scheduler, impact analyzer, and cleanup executor behind one
// facade the HTTP server calls.
package app

import (
	"context"
	"fmt"
	"time"

	"reviewdesk/pkg/cleanup"
	"reviewdesk/pkg/domain"
	"reviewdesk/pkg/lifecycle"
	"reviewdesk/pkg/queue"
	"reviewdesk/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	// Store overrides the database-backed store, used by tests.
	Store store.Store

	RedisAddr     string
	RedisPassword string
	OutboxStream  string

	DueDays          int
	ExpirationDays   int
	SendIntervalDays int
}

// App is the core application service.
type App struct {
	store     store.Store
	machine   *lifecycle.Machine
	scheduler *queue.Scheduler
	analyzer  *cleanup.Analyzer
	executor  *cleanup.Executor
}

// New constructs the application with database-backed storage and an
// optional redis outbox for dispatched invitations.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	dueIn := daysOrDefault(cfg.DueDays, 14)
	expiresIn := daysOrDefault(cfg.ExpirationDays, 14)
	sendInterval := daysOrDefault(cfg.SendIntervalDays, 7)

	schedulerOpts := []queue.Option{
		queue.WithSendInterval(sendInterval),
		queue.WithInvitationWindows(dueIn, expiresIn),
	}
	if cfg.RedisAddr != "" {
		outbox, err := queue.NewSendOutbox(queue.OutboxConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.OutboxStream,
		})
		if err != nil {
			return nil, fmt.Errorf("init send outbox: %w", err)
		}
		schedulerOpts = append(schedulerOpts, queue.WithNotifier(outbox))
	}

	return &App{
		store:     dataStore,
		machine:   lifecycle.New(dataStore, lifecycle.WithDueIn(dueIn), lifecycle.WithExpiresIn(expiresIn)),
		scheduler: queue.New(dataStore, schedulerOpts...),
		analyzer:  cleanup.NewAnalyzer(dataStore),
		executor:  cleanup.NewExecutor(dataStore),
	}, nil
}

func daysOrDefault(days, fallback int) time.Duration {
	if days <= 0 {
		days = fallback
	}
	return time.Duration(days) * 24 * time.Hour
}

// InvitationView is an invitation row plus its derived display state.
type InvitationView struct {
	domain.ReviewInvitation
	DisplayStatus domain.DisplayStatus `json:"displayStatus"`
}

func newView(inv domain.ReviewInvitation) InvitationView {
	return InvitationView{ReviewInvitation: inv, DisplayStatus: inv.Display(time.Now().UTC())}
}

// Manuscript resolves any identifier form.
func (a *App) Manuscript(ctx context.Context, identifier string) (domain.Manuscript, error) {
	return a.store.FindManuscript(ctx, identifier)
}

// Invitations lists the manuscript's invitations with display states.
func (a *App) Invitations(ctx context.Context, identifier string) ([]InvitationView, error) {
	ms, err := a.store.FindManuscript(ctx, identifier)
	if err != nil {
		return nil, err
	}
	invs, err := a.store.ListInvitationsByManuscript(ctx, ms.ID)
	if err != nil {
		return nil, err
	}
	views := make([]InvitationView, 0, len(invs))
	for _, inv := range invs {
		views = append(views, newView(inv))
	}
	return views, nil
}

// Invite sends a direct invitation, bypassing the queue.
func (a *App) Invite(ctx context.Context, identifier, reviewerID string) (InvitationView, error) {
	ms, err := a.store.FindManuscript(ctx, identifier)
	if err != nil {
		return InvitationView{}, err
	}
	inv, err := a.machine.Invite(ctx, ms.ID, reviewerID)
	if err != nil {
		return InvitationView{}, err
	}
	return newView(inv), nil
}

// InvitationAction applies a lifecycle action to an invitation.
func (a *App) InvitationAction(ctx context.Context, invitationID string, action lifecycle.Action, opts lifecycle.TransitionOpts) (InvitationView, error) {
	inv, err := a.machine.Transition(ctx, invitationID, action, opts)
	if err != nil {
		return InvitationView{}, err
	}
	return newView(inv), nil
}

// Queue returns the manuscript's send queue with control state.
func (a *App) Queue(ctx context.Context, identifier string) (store.QueueState, error) {
	ms, err := a.store.FindManuscript(ctx, identifier)
	if err != nil {
		return store.QueueState{}, err
	}
	return a.scheduler.Queue(ctx, ms.ID)
}

// EnqueueReviewer appends the reviewer at the queue tail.
func (a *App) EnqueueReviewer(ctx context.Context, identifier, reviewerID string, priority domain.QueuePriority, notes string) (domain.QueueItem, error) {
	ms, err := a.store.FindManuscript(ctx, identifier)
	if err != nil {
		return domain.QueueItem{}, err
	}
	return a.scheduler.Enqueue(ctx, ms.ID, reviewerID, priority, notes)
}

// DequeueReviewer removes the reviewer's queue slot.
func (a *App) DequeueReviewer(ctx context.Context, identifier, reviewerID string) error {
	ms, err := a.store.FindManuscript(ctx, identifier)
	if err != nil {
		return err
	}
	return a.scheduler.Dequeue(ctx, ms.ID, reviewerID)
}

// ReorderReviewer moves the reviewer to the target position.
func (a *App) ReorderReviewer(ctx context.Context, identifier, reviewerID string, position int) ([]domain.QueueItem, error) {
	ms, err := a.store.FindManuscript(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return a.scheduler.Reorder(ctx, ms.ID, reviewerID, position)
}

// SetQueueActive pauses or resumes the manuscript's queue.
func (a *App) SetQueueActive(ctx context.Context, identifier string, active bool) error {
	ms, err := a.store.FindManuscript(ctx, identifier)
	if err != nil {
		return err
	}
	return a.scheduler.SetActive(ctx, ms.ID, active)
}

// Impact runs the read-only cleanup analysis.
func (a *App) Impact(ctx context.Context, identifier string, onProgress cleanup.ProgressFunc) (cleanup.ImpactReport, error) {
	return a.analyzer.AnalyzeImpact(ctx, identifier, onProgress)
}

// Cleanup analyzes and then deletes the manuscript's linked records.
// With an empty reviewer list, every matched reviewer is targeted.
// Reviewers shared with other manuscripts are refused unless
// confirmShared is set.
func (a *App) Cleanup(ctx context.Context, identifier string, reviewerIDs []string, confirmShared bool, onProgress cleanup.ProgressFunc) (cleanup.DeletionSummary, error) {
	report, err := a.analyzer.AnalyzeImpact(ctx, identifier, onProgress)
	if err != nil {
		return cleanup.DeletionSummary{}, err
	}
	if len(reviewerIDs) == 0 {
		for _, r := range report.Reviewers {
			reviewerIDs = append(reviewerIDs, r.ID)
		}
	}
	if !confirmShared {
		if blocked := sharedAmong(report.SharedReviewers, reviewerIDs); len(blocked) > 0 {
			return cleanup.DeletionSummary{}, &SharedReviewersError{ReviewerIDs: blocked}
		}
	}
	return a.executor.DeleteManuscriptData(ctx, report.Manuscript.ID, reviewerIDs, onProgress)
}

// DispatchTick promotes due queue items across all active queues.
func (a *App) DispatchTick(ctx context.Context) (queue.DispatchResult, error) {
	return a.scheduler.DispatchTick(ctx)
}

func sharedAmong(shared []cleanup.SharedReviewer, requested []string) []string {
	sharedSet := make(map[string]struct{}, len(shared))
	for _, s := range shared {
		sharedSet[s.Reviewer.ID] = struct{}{}
	}
	var blocked []string
	for _, id := range requested {
		if _, ok := sharedSet[id]; ok {
			blocked = append(blocked, id)
		}
	}
	return blocked
}
