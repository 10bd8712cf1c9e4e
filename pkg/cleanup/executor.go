package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reviewdesk/pkg/store"
)

// ErrPartialDeletion signals that cleanup finished but at least one
// category failed; the summary carries the per-category detail.
var ErrPartialDeletion = errors.New("cleanup completed with failures")

type Category string

const (
	CategoryPublicationMatches Category = "publication_matches"
	CategoryPublications       Category = "publications"
	CategoryRetractions        Category = "retractions"
	CategoryQueueItems         Category = "queue_items"
	CategoryInvitations        Category = "invitations"
	CategoryMatches            Category = "matches"
	CategoryAssignments        Category = "assignments"
	CategoryReviewers          Category = "reviewers"
	CategoryManuscript         Category = "manuscript"
)

// CategoryFailure records one category that could not be deleted, or
// was skipped because rows depending on it survived.
type CategoryFailure struct {
	Category Category `json:"category"`
	Err      error    `json:"-"`
	Message  string   `json:"message"`
}

// DeletionSummary reports what a cleanup run actually removed.
type DeletionSummary struct {
	ManuscriptID string             `json:"manuscriptId"`
	Deleted      map[Category]int64 `json:"deleted"`
	Failures     []CategoryFailure  `json:"failures,omitempty"`
}

// Executor deletes a manuscript's linked records category by category.
// There is no wrapping transaction; each category stands alone and a
// failed category never aborts the independent ones.
type Executor struct {
	store           store.Store
	categoryTimeout time.Duration
}

type ExecutorOption func(*Executor)

// WithCategoryTimeout bounds each category's delete call.
func WithCategoryTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.categoryTimeout = d
		}
	}
}

func NewExecutor(s store.Store, opts ...ExecutorOption) *Executor {
	e := &Executor{store: s, categoryTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type categoryStep struct {
	category Category
	del      func(context.Context) (int64, error)
	// dependsOn lists child categories whose rows reference this one;
	// the step is skipped while any of them has a recorded failure.
	dependsOn []Category
}

// DeleteManuscriptData removes everything linked to the manuscript in
// dependency order: children first, then the reviewer rows, then the
// manuscript itself. reviewerIDs is the set the caller confirmed for
// deletion (shared reviewers may be held back by passing a subset).
// Cancellation is honored between categories, never mid-category.
func (e *Executor) DeleteManuscriptData(ctx context.Context, manuscriptID string, reviewerIDs []string, onProgress ProgressFunc) (DeletionSummary, error) {
	summary := DeletionSummary{
		ManuscriptID: manuscriptID,
		Deleted:      make(map[Category]int64),
	}
	report := func(msg string) {
		if onProgress != nil {
			onProgress(Progress{Phase: PhaseDelete, Message: msg})
		}
	}

	steps := []categoryStep{
		{category: CategoryPublicationMatches, del: func(c context.Context) (int64, error) {
			return e.store.DeletePublicationMatches(c, manuscriptID)
		}},
		{category: CategoryPublications, del: func(c context.Context) (int64, error) {
			return e.store.DeletePublicationsByReviewers(c, reviewerIDs)
		}},
		{category: CategoryRetractions, del: func(c context.Context) (int64, error) {
			return e.store.DeleteRetractionsByReviewers(c, reviewerIDs)
		}},
		{category: CategoryQueueItems, del: func(c context.Context) (int64, error) {
			return e.store.DeleteQueueItemsByReviewers(c, reviewerIDs)
		}},
		{category: CategoryInvitations, del: func(c context.Context) (int64, error) {
			return e.store.DeleteInvitationsByReviewers(c, reviewerIDs)
		}},
		{category: CategoryMatches, del: func(c context.Context) (int64, error) {
			return e.store.DeleteMatchesByReviewers(c, reviewerIDs)
		}},
		{category: CategoryAssignments, del: func(c context.Context) (int64, error) {
			return e.store.DeleteAssignments(c, manuscriptID)
		}},
		{
			category: CategoryReviewers,
			del: func(c context.Context) (int64, error) {
				return e.store.DeleteReviewers(c, reviewerIDs)
			},
			dependsOn: []Category{
				CategoryPublications, CategoryRetractions, CategoryQueueItems,
				CategoryInvitations, CategoryMatches,
			},
		},
		{
			category: CategoryManuscript,
			del: func(c context.Context) (int64, error) {
				n, err := e.store.DeleteManuscript(c, manuscriptID)
				return n, err
			},
			dependsOn: []Category{
				CategoryPublicationMatches, CategoryQueueItems,
				CategoryInvitations, CategoryMatches, CategoryAssignments,
			},
		},
	}

	failed := make(map[Category]bool)
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if blocked := firstFailedDependency(step.dependsOn, failed); blocked != "" {
			failed[step.category] = true
			summary.Failures = append(summary.Failures, CategoryFailure{
				Category: step.category,
				Message:  fmt.Sprintf("skipped: %s not fully deleted", blocked),
			})
			report(fmt.Sprintf("skipping %s, %s rows survived", step.category, blocked))
			continue
		}

		stepCtx, cancel := context.WithTimeout(ctx, e.categoryTimeout)
		n, err := step.del(stepCtx)
		cancel()
		if err != nil {
			failed[step.category] = true
			summary.Failures = append(summary.Failures, CategoryFailure{
				Category: step.category,
				Err:      err,
				Message:  err.Error(),
			})
			report(fmt.Sprintf("failed to delete %s: %v", step.category, err))
			continue
		}
		summary.Deleted[step.category] = n
		report(fmt.Sprintf("deleted %d %s", n, step.category))
	}

	if len(summary.Failures) > 0 {
		return summary, ErrPartialDeletion
	}
	return summary, nil
}

func firstFailedDependency(deps []Category, failed map[Category]bool) Category {
	for _, dep := range deps {
		if failed[dep] {
			return dep
		}
	}
	return ""
}
