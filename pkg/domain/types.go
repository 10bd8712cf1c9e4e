package domain

import "time"

type ManuscriptStatus string

const (
	ManuscriptSubmitted   ManuscriptStatus = "submitted"
	ManuscriptUnderReview ManuscriptStatus = "under_review"
	ManuscriptAccepted    ManuscriptStatus = "accepted"
	ManuscriptRejected    ManuscriptStatus = "rejected"
)

// InvitationStatus is the stored lifecycle state of a review invitation.
// Expired and overdue are never stored; they are display states derived
// from the row plus the current time (see DisplayStatus).
type InvitationStatus string

const (
	InvitationPending         InvitationStatus = "pending"
	InvitationAccepted        InvitationStatus = "accepted"
	InvitationDeclined        InvitationStatus = "declined"
	InvitationReportSubmitted InvitationStatus = "report_submitted"
	InvitationRevoked         InvitationStatus = "revoked"
	InvitationInvalidated     InvitationStatus = "invalidated"
)

type DisplayStatus string

const (
	DisplayPending         DisplayStatus = "pending"
	DisplayAccepted        DisplayStatus = "accepted"
	DisplayDeclined        DisplayStatus = "declined"
	DisplayReportSubmitted DisplayStatus = "report_submitted"
	DisplayRevoked         DisplayStatus = "revoked"
	DisplayInvalidated     DisplayStatus = "invalidated"
	DisplayExpired         DisplayStatus = "expired"
	DisplayOverdue         DisplayStatus = "overdue"
)

type QueuePriority string

const (
	PriorityHigh   QueuePriority = "high"
	PriorityNormal QueuePriority = "normal"
	PriorityLow    QueuePriority = "low"
)

type AssignmentRole string

const (
	RoleEditor       AssignmentRole = "editor"
	RoleAuthor       AssignmentRole = "author"
	RoleCollaborator AssignmentRole = "collaborator"
	RoleReviewer     AssignmentRole = "reviewer"
)

// Manuscript is a submission under review. Besides the primary UUID it
// carries up to three alternate identifiers, all of which must resolve
// to the same row.
type Manuscript struct {
	ID             string           `json:"id"`
	CustomID       string           `json:"customId,omitempty"`
	SystemID       string           `json:"systemId,omitempty"`
	SubmissionID   string           `json:"submissionId,omitempty"`
	Title          string           `json:"title"`
	Status         ManuscriptStatus `json:"status"`
	Tags           []string         `json:"tags,omitempty"`
	SubmissionDate time.Time        `json:"submissionDate"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// PotentialReviewer is a person in the reviewer pool, independent of any
// one manuscript. Email is unique across the pool.
type PotentialReviewer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Affiliation string    `json:"affiliation,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Match links a reviewer to a manuscript with a match score. At most one
// match exists per (reviewer, manuscript) pair.
type Match struct {
	ID           string    `json:"id"`
	ManuscriptID string    `json:"manuscriptId"`
	ReviewerID   string    `json:"reviewerId"`
	Score        float64   `json:"score"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ReviewInvitation struct {
	ID             string           `json:"id"`
	ManuscriptID   string           `json:"manuscriptId"`
	ReviewerID     string           `json:"reviewerId"`
	Status         InvitationStatus `json:"status"`
	InvitedDate    time.Time        `json:"invitedDate"`
	DueDate        time.Time        `json:"dueDate"`
	ExpirationDate time.Time        `json:"expirationDate"`
	ResponseDate   *time.Time       `json:"responseDate,omitempty"`
	InvalidatedAt  *time.Time       `json:"invalidatedAt,omitempty"`
	Round          int              `json:"round"`
	ReminderCount  int              `json:"reminderCount"`
	Notes          string           `json:"notes,omitempty"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// QueueItem is an ordered, not-yet-sent invitation intent. Position is a
// dense 0-based rank within one manuscript's queue.
type QueueItem struct {
	ID                string        `json:"id"`
	ManuscriptID      string        `json:"manuscriptId"`
	ReviewerID        string        `json:"reviewerId"`
	Position          int           `json:"position"`
	ScheduledSendDate time.Time     `json:"scheduledSendDate"`
	Priority          QueuePriority `json:"priority"`
	Notes             string        `json:"notes,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// QueueControl gates auto-dispatch for one manuscript's queue. Version
// guards queue order writes against concurrent renumbering.
type QueueControl struct {
	ManuscriptID      string     `json:"manuscriptId"`
	Active            bool       `json:"active"`
	Version           int64      `json:"-"`
	NextScheduledSend *time.Time `json:"nextScheduledSend,omitempty"`
}

// Publication is a bibliographic record from a reviewer's history.
type Publication struct {
	ID         string `json:"id"`
	ReviewerID string `json:"reviewerId"`
	Title      string `json:"title"`
	Journal    string `json:"journal,omitempty"`
	Year       int    `json:"year,omitempty"`
	DOI        string `json:"doi,omitempty"`
}

// Retraction is a retracted publication linked to a reviewer.
type Retraction struct {
	ID         string `json:"id"`
	ReviewerID string `json:"reviewerId"`
	Title      string `json:"title"`
	Reason     string `json:"reason,omitempty"`
	Year       int    `json:"year,omitempty"`
}

// PublicationMatch links a manuscript to a citation used during reviewer
// matching.
type PublicationMatch struct {
	ID           string `json:"id"`
	ManuscriptID string `json:"manuscriptId"`
	DOI          string `json:"doi,omitempty"`
	Title        string `json:"title,omitempty"`
}

// Assignment grants an internal user access to a manuscript.
type Assignment struct {
	ID           string         `json:"id"`
	UserID       string         `json:"userId"`
	ManuscriptID string         `json:"manuscriptId"`
	Role         AssignmentRole `json:"role"`
	IsActive     bool           `json:"isActive"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}
