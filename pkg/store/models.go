package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ManuscriptModel struct {
	ID             string `gorm:"primaryKey"`
	CustomID       string `gorm:"index"`
	SystemID       string `gorm:"index"`
	SubmissionID   string `gorm:"index"`
	Title          string `gorm:"not null"`
	Status         string `gorm:"not null"`
	Tags           datatypes.JSON
	SubmissionDate time.Time
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time
}

type ReviewerModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	Email       string `gorm:"uniqueIndex;not null"`
	Affiliation string
	CreatedAt   time.Time `gorm:"not null"`
}

type MatchModel struct {
	ID           string    `gorm:"primaryKey"`
	ManuscriptID string    `gorm:"not null;index;uniqueIndex:idx_match_pair"`
	ReviewerID   string    `gorm:"not null;index;uniqueIndex:idx_match_pair"`
	Score        float64   `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

type InvitationModel struct {
	ID             string    `gorm:"primaryKey"`
	ManuscriptID   string    `gorm:"not null;index"`
	ReviewerID     string    `gorm:"not null;index"`
	Status         string    `gorm:"not null;index"`
	InvitedDate    time.Time `gorm:"not null"`
	DueDate        time.Time
	ExpirationDate time.Time
	ResponseDate   *time.Time
	InvalidatedAt  *time.Time
	Round          int `gorm:"not null"`
	ReminderCount  int `gorm:"not null"`
	Notes          string
	UpdatedAt      time.Time
}

type QueueItemModel struct {
	ID                string `gorm:"primaryKey"`
	ManuscriptID      string `gorm:"not null;index;uniqueIndex:idx_queue_pos"`
	ReviewerID        string `gorm:"not null;index"`
	Position          int    `gorm:"not null;uniqueIndex:idx_queue_pos"`
	ScheduledSendDate time.Time
	Priority          string    `gorm:"not null"`
	Notes             string
	CreatedAt         time.Time `gorm:"not null"`
}

type QueueControlModel struct {
	ManuscriptID string `gorm:"primaryKey"`
	Active       bool   `gorm:"not null"`
	Version      int64  `gorm:"not null"`
	UpdatedAt    time.Time
}

type PublicationModel struct {
	ID         string `gorm:"primaryKey"`
	ReviewerID string `gorm:"not null;index"`
	Title      string `gorm:"not null"`
	Journal    string
	Year       int
	DOI        string
}

type RetractionModel struct {
	ID         string `gorm:"primaryKey"`
	ReviewerID string `gorm:"not null;index"`
	Title      string `gorm:"not null"`
	Reason     string
	Year       int
}

type PublicationMatchModel struct {
	ID           string `gorm:"primaryKey"`
	ManuscriptID string `gorm:"not null;index"`
	DOI          string
	Title        string
}

type AssignmentModel struct {
	ID           string    `gorm:"primaryKey"`
	UserID       string    `gorm:"not null;index"`
	ManuscriptID string    `gorm:"not null;index"`
	Role         string    `gorm:"not null"`
	IsActive     bool      `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}
