package store

import (
	"context"
	"errors"

	"reviewdesk/pkg/domain"
)

var (
	// ErrManuscriptNotFound means no identifier form resolved to a row.
	ErrManuscriptNotFound = errors.New("manuscript not found")
	// ErrQueueConflict means the queue order changed under an optimistic write.
	ErrQueueConflict = errors.New("queue version conflict")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrQueueItemNotFound  = errors.New("queue item not found")
	ErrDuplicateMatch     = errors.New("match already exists for reviewer and manuscript")
)

// QueueState is one manuscript's send queue: control row plus items in
// position order.
type QueueState struct {
	Control domain.QueueControl
	Items   []domain.QueueItem
}

// Store is the entity store adapter. It owns no business logic; every
// method is a bounded read, write, or delete against the external
// relational store. All methods honor the context deadline.
type Store interface {
	// manuscripts
	// FindManuscript resolves any identifier form: primary UUID first,
	// then custom id, system id, submission id. ErrManuscriptNotFound
	// when nothing matches.
	FindManuscript(ctx context.Context, identifier string) (domain.Manuscript, error)
	ListManuscripts(ctx context.Context, ids []string) ([]domain.Manuscript, error)
	SaveManuscript(ctx context.Context, m domain.Manuscript) error
	DeleteManuscript(ctx context.Context, id string) (int64, error)

	// reviewers
	SaveReviewer(ctx context.Context, r domain.PotentialReviewer) error
	ListReviewers(ctx context.Context, ids []string) ([]domain.PotentialReviewer, error)
	DeleteReviewers(ctx context.Context, ids []string) (int64, error)

	// matches
	SaveMatch(ctx context.Context, m domain.Match) error
	ListMatchesByManuscript(ctx context.Context, manuscriptID string) ([]domain.Match, error)
	// ListMatchesByReviewers returns matches for the given reviewers on
	// manuscripts other than excludeManuscriptID (shared-reviewer probe).
	ListMatchesByReviewers(ctx context.Context, reviewerIDs []string, excludeManuscriptID string) ([]domain.Match, error)
	CountMatchesByReviewers(ctx context.Context, reviewerIDs []string) (int64, error)
	DeleteMatchesByReviewers(ctx context.Context, reviewerIDs []string) (int64, error)

	// invitations
	GetInvitation(ctx context.Context, id string) (domain.ReviewInvitation, bool, error)
	ListInvitationsByManuscript(ctx context.Context, manuscriptID string) ([]domain.ReviewInvitation, error)
	// ActiveInvitation returns the single non-terminal invitation for the
	// pair, if one exists.
	ActiveInvitation(ctx context.Context, manuscriptID, reviewerID string) (domain.ReviewInvitation, bool, error)
	// LatestRound returns the highest invitation_round recorded for the
	// pair, zero when the pair was never invited.
	LatestRound(ctx context.Context, manuscriptID, reviewerID string) (int, error)
	InsertInvitation(ctx context.Context, inv domain.ReviewInvitation) error
	UpdateInvitation(ctx context.Context, inv domain.ReviewInvitation) error
	CountInvitationsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error)
	DeleteInvitationsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error)

	// queue
	QueueState(ctx context.Context, manuscriptID string) (QueueState, error)
	// PutQueueOrder replaces the manuscript's queue with items (already
	// renumbered 0..n-1) iff the stored version still equals
	// expectedVersion; ErrQueueConflict otherwise.
	PutQueueOrder(ctx context.Context, manuscriptID string, items []domain.QueueItem, expectedVersion int64) error
	SetQueueActive(ctx context.Context, manuscriptID string, active bool) error
	ActiveQueueManuscripts(ctx context.Context) ([]string, error)
	CountQueueItemsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error)
	DeleteQueueItemsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error)

	// reviewer publication history
	SavePublication(ctx context.Context, p domain.Publication) error
	SaveRetraction(ctx context.Context, r domain.Retraction) error
	CountPublicationsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error)
	DeletePublicationsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error)
	CountRetractionsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error)
	DeleteRetractionsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error)

	// manuscript-linked records
	SavePublicationMatch(ctx context.Context, pm domain.PublicationMatch) error
	CountPublicationMatches(ctx context.Context, manuscriptID string) (int64, error)
	DeletePublicationMatches(ctx context.Context, manuscriptID string) (int64, error)
	SaveAssignment(ctx context.Context, a domain.Assignment) error
	CountAssignments(ctx context.Context, manuscriptID string) (int64, error)
	DeleteAssignments(ctx context.Context, manuscriptID string) (int64, error)
}

// IsTimeout reports whether err was caused by the caller-supplied
// deadline expiring on a store call.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
