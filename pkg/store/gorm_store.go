package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"reviewdesk/pkg/domain"
)

const migrateLockID int64 = 48151623

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&ManuscriptModel{},
			&ReviewerModel{},
			&MatchModel{},
			&InvitationModel{},
			&QueueItemModel{},
			&QueueControlModel{},
			&PublicationModel{},
			&RetractionModel{},
			&PublicationMatchModel{},
			&AssignmentModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// FindManuscript resolves an identifier: primary UUID first, then
// custom id, then (UUID-shaped only) system id and submission id.
func (s *GormStore) FindManuscript(ctx context.Context, identifier string) (domain.Manuscript, error) {
	isUUID := false
	if _, err := uuid.Parse(identifier); err == nil {
		isUUID = true
	}

	var model ManuscriptModel
	try := func(cond string) (bool, error) {
		err := s.db.WithContext(ctx).First(&model, cond+" = ?", identifier).Error
		if err == nil {
			return true, nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	if isUUID {
		if ok, err := try("id"); err != nil {
			return domain.Manuscript{}, err
		} else if ok {
			return manuscriptFromModel(model), nil
		}
	}
	if ok, err := try("custom_id"); err != nil {
		return domain.Manuscript{}, err
	} else if ok {
		return manuscriptFromModel(model), nil
	}
	if isUUID {
		for _, col := range []string{"system_id", "submission_id"} {
			if ok, err := try(col); err != nil {
				return domain.Manuscript{}, err
			} else if ok {
				return manuscriptFromModel(model), nil
			}
		}
	}
	return domain.Manuscript{}, ErrManuscriptNotFound
}

func (s *GormStore) ListManuscripts(ctx context.Context, ids []string) ([]domain.Manuscript, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []ManuscriptModel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Manuscript, 0, len(models))
	for _, m := range models {
		res = append(res, manuscriptFromModel(m))
	}
	return res, nil
}

func (s *GormStore) SaveManuscript(ctx context.Context, m domain.Manuscript) error {
	model := manuscriptToModel(m)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"custom_id", "system_id", "submission_id", "title", "status", "tags", "submission_date", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) DeleteManuscript(ctx context.Context, id string) (int64, error) {
	tx := s.db.WithContext(ctx).Delete(&ManuscriptModel{}, "id = ?", id)
	if tx.Error != nil {
		return 0, tx.Error
	}
	// The control row lives and dies with the manuscript.
	if err := s.db.WithContext(ctx).Delete(&QueueControlModel{}, "manuscript_id = ?", id).Error; err != nil {
		return tx.RowsAffected, err
	}
	return tx.RowsAffected, nil
}

func (s *GormStore) SaveReviewer(ctx context.Context, r domain.PotentialReviewer) error {
	model := reviewerToModel(r)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "affiliation"}),
	}).Create(&model).Error
}

func (s *GormStore) ListReviewers(ctx context.Context, ids []string) ([]domain.PotentialReviewer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []ReviewerModel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.PotentialReviewer, 0, len(models))
	for _, m := range models {
		res = append(res, reviewerFromModel(m))
	}
	return res, nil
}

func (s *GormStore) DeleteReviewers(ctx context.Context, ids []string) (int64, error) {
	return s.deleteWhere(ctx, &ReviewerModel{}, "id IN ?", ids)
}

func (s *GormStore) SaveMatch(ctx context.Context, m domain.Match) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&MatchModel{}).
		Where("manuscript_id = ? AND reviewer_id = ? AND id <> ?", m.ManuscriptID, m.ReviewerID, m.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateMatch
	}
	model := matchToModel(m)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score"}),
	}).Create(&model).Error
}

func (s *GormStore) ListMatchesByManuscript(ctx context.Context, manuscriptID string) ([]domain.Match, error) {
	var models []MatchModel
	if err := s.db.WithContext(ctx).Where("manuscript_id = ?", manuscriptID).Order("score DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return matchesFromModels(models), nil
}

func (s *GormStore) ListMatchesByReviewers(ctx context.Context, reviewerIDs []string, excludeManuscriptID string) ([]domain.Match, error) {
	if len(reviewerIDs) == 0 {
		return nil, nil
	}
	var models []MatchModel
	if err := s.db.WithContext(ctx).
		Where("reviewer_id IN ? AND manuscript_id <> ?", reviewerIDs, excludeManuscriptID).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return matchesFromModels(models), nil
}

func (s *GormStore) CountMatchesByReviewers(ctx context.Context, reviewerIDs []string) (int64, error) {
	return s.countWhere(ctx, &MatchModel{}, "reviewer_id IN ?", reviewerIDs)
}

func (s *GormStore) DeleteMatchesByReviewers(ctx context.Context, reviewerIDs []string) (int64, error) {
	return s.deleteWhere(ctx, &MatchModel{}, "reviewer_id IN ?", reviewerIDs)
}

func (s *GormStore) GetInvitation(ctx context.Context, id string) (domain.ReviewInvitation, bool, error) {
	var model InvitationModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ReviewInvitation{}, false, nil
		}
		return domain.ReviewInvitation{}, false, err
	}
	return invitationFromModel(model), true, nil
}

func (s *GormStore) ListInvitationsByManuscript(ctx context.Context, manuscriptID string) ([]domain.ReviewInvitation, error) {
	var models []InvitationModel
	if err := s.db.WithContext(ctx).
		Where("manuscript_id = ?", manuscriptID).
		Order("invited_date DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ReviewInvitation, 0, len(models))
	for _, m := range models {
		res = append(res, invitationFromModel(m))
	}
	return res, nil
}

var terminalStatuses = []string{
	string(domain.InvitationDeclined),
	string(domain.InvitationReportSubmitted),
	string(domain.InvitationRevoked),
	string(domain.InvitationInvalidated),
}

func (s *GormStore) ActiveInvitation(ctx context.Context, manuscriptID, reviewerID string) (domain.ReviewInvitation, bool, error) {
	var model InvitationModel
	err := s.db.WithContext(ctx).
		Where("manuscript_id = ? AND reviewer_id = ? AND status NOT IN ?", manuscriptID, reviewerID, terminalStatuses).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ReviewInvitation{}, false, nil
		}
		return domain.ReviewInvitation{}, false, err
	}
	return invitationFromModel(model), true, nil
}

func (s *GormStore) LatestRound(ctx context.Context, manuscriptID, reviewerID string) (int, error) {
	var round sql.NullInt64
	err := s.db.WithContext(ctx).Model(&InvitationModel{}).
		Where("manuscript_id = ? AND reviewer_id = ?", manuscriptID, reviewerID).
		Select("MAX(round)").Scan(&round).Error
	if err != nil {
		return 0, err
	}
	return int(round.Int64), nil
}

func (s *GormStore) InsertInvitation(ctx context.Context, inv domain.ReviewInvitation) error {
	model := invitationToModel(inv)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *GormStore) UpdateInvitation(ctx context.Context, inv domain.ReviewInvitation) error {
	model := invitationToModel(inv)
	tx := s.db.WithContext(ctx).Model(&InvitationModel{}).Where("id = ?", inv.ID).Updates(map[string]any{
		"status":         model.Status,
		"due_date":       model.DueDate,
		"response_date":  model.ResponseDate,
		"invalidated_at": model.InvalidatedAt,
		"reminder_count": model.ReminderCount,
		"notes":          model.Notes,
		"updated_at":     model.UpdatedAt,
	})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrInvitationNotFound
	}
	return nil
}

func (s *GormStore) CountInvitationsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error) {
	return s.countWhere(ctx, &InvitationModel{}, "reviewer_id IN ?", reviewerIDs)
}

func (s *GormStore) DeleteInvitationsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error) {
	return s.deleteWhere(ctx, &InvitationModel{}, "reviewer_id IN ?", reviewerIDs)
}

func (s *GormStore) QueueState(ctx context.Context, manuscriptID string) (QueueState, error) {
	var control QueueControlModel
	err := s.db.WithContext(ctx).First(&control, "manuscript_id = ?", manuscriptID).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return QueueState{}, err
		}
		control = QueueControlModel{ManuscriptID: manuscriptID}
	}
	var models []QueueItemModel
	if err := s.db.WithContext(ctx).
		Where("manuscript_id = ?", manuscriptID).
		Order("position ASC").
		Find(&models).Error; err != nil {
		return QueueState{}, err
	}
	state := QueueState{
		Control: domain.QueueControl{
			ManuscriptID: manuscriptID,
			Active:       control.Active,
			Version:      control.Version,
		},
		Items: make([]domain.QueueItem, 0, len(models)),
	}
	for _, m := range models {
		state.Items = append(state.Items, queueItemFromModel(m))
	}
	if len(state.Items) > 0 {
		next := state.Items[0].ScheduledSendDate
		state.Control.NextScheduledSend = &next
	}
	return state, nil
}

// PutQueueOrder replaces the queue atomically, guarded by the optimistic
// version on the control row. Items must already carry dense positions.
func (s *GormStore) PutQueueOrder(ctx context.Context, manuscriptID string, items []domain.QueueItem, expectedVersion int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var control QueueControlModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&control, "manuscript_id = ?", manuscriptID).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			control = QueueControlModel{ManuscriptID: manuscriptID}
			if err := tx.Create(&control).Error; err != nil {
				return err
			}
		}
		if control.Version != expectedVersion {
			return ErrQueueConflict
		}
		if err := tx.Delete(&QueueItemModel{}, "manuscript_id = ?", manuscriptID).Error; err != nil {
			return err
		}
		for _, item := range items {
			model := queueItemToModel(item)
			if err := tx.Create(&model).Error; err != nil {
				return err
			}
		}
		return tx.Model(&QueueControlModel{}).
			Where("manuscript_id = ?", manuscriptID).
			Updates(map[string]any{"version": control.Version + 1, "updated_at": time.Now().UTC()}).Error
	})
}

func (s *GormStore) SetQueueActive(ctx context.Context, manuscriptID string, active bool) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "manuscript_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"active", "updated_at"}),
	}).Create(&QueueControlModel{
		ManuscriptID: manuscriptID,
		Active:       active,
		UpdatedAt:    time.Now().UTC(),
	}).Error
}

func (s *GormStore) ActiveQueueManuscripts(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&QueueControlModel{}).
		Where("active = ?", true).
		Pluck("manuscript_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *GormStore) CountQueueItemsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error) {
	return s.countWhere(ctx, &QueueItemModel{}, "reviewer_id IN ?", reviewerIDs)
}

func (s *GormStore) DeleteQueueItemsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error) {
	return s.deleteWhere(ctx, &QueueItemModel{}, "reviewer_id IN ?", reviewerIDs)
}

func (s *GormStore) SavePublication(ctx context.Context, p domain.Publication) error {
	model := PublicationModel(p)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "journal", "year", "doi"}),
	}).Create(&model).Error
}

func (s *GormStore) SaveRetraction(ctx context.Context, r domain.Retraction) error {
	model := RetractionModel(r)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "reason", "year"}),
	}).Create(&model).Error
}

func (s *GormStore) CountPublicationsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error) {
	return s.countWhere(ctx, &PublicationModel{}, "reviewer_id IN ?", reviewerIDs)
}

func (s *GormStore) DeletePublicationsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error) {
	return s.deleteWhere(ctx, &PublicationModel{}, "reviewer_id IN ?", reviewerIDs)
}

func (s *GormStore) CountRetractionsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error) {
	return s.countWhere(ctx, &RetractionModel{}, "reviewer_id IN ?", reviewerIDs)
}

func (s *GormStore) DeleteRetractionsByReviewers(ctx context.Context, reviewerIDs []string) (int64, error) {
	return s.deleteWhere(ctx, &RetractionModel{}, "reviewer_id IN ?", reviewerIDs)
}

func (s *GormStore) SavePublicationMatch(ctx context.Context, pm domain.PublicationMatch) error {
	model := PublicationMatchModel(pm)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"doi", "title"}),
	}).Create(&model).Error
}

func (s *GormStore) CountPublicationMatches(ctx context.Context, manuscriptID string) (int64, error) {
	return s.countWhere(ctx, &PublicationMatchModel{}, "manuscript_id = ?", manuscriptID)
}

func (s *GormStore) DeletePublicationMatches(ctx context.Context, manuscriptID string) (int64, error) {
	return s.deleteWhere(ctx, &PublicationMatchModel{}, "manuscript_id = ?", manuscriptID)
}

func (s *GormStore) SaveAssignment(ctx context.Context, a domain.Assignment) error {
	model := assignmentToModel(a)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "is_active", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) CountAssignments(ctx context.Context, manuscriptID string) (int64, error) {
	return s.countWhere(ctx, &AssignmentModel{}, "manuscript_id = ?", manuscriptID)
}

func (s *GormStore) DeleteAssignments(ctx context.Context, manuscriptID string) (int64, error) {
	return s.deleteWhere(ctx, &AssignmentModel{}, "manuscript_id = ?", manuscriptID)
}

func (s *GormStore) countWhere(ctx context.Context, model any, cond string, arg any) (int64, error) {
	if ids, ok := arg.([]string); ok && len(ids) == 0 {
		return 0, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where(cond, arg).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *GormStore) deleteWhere(ctx context.Context, model any, cond string, arg any) (int64, error) {
	if ids, ok := arg.([]string); ok && len(ids) == 0 {
		return 0, nil
	}
	tx := s.db.WithContext(ctx).Where(cond, arg).Delete(model)
	return tx.RowsAffected, tx.Error
}

// conversions

func manuscriptToModel(m domain.Manuscript) ManuscriptModel {
	tags, _ := json.Marshal(m.Tags)
	return ManuscriptModel{
		ID:             m.ID,
		CustomID:       m.CustomID,
		SystemID:       m.SystemID,
		SubmissionID:   m.SubmissionID,
		Title:          m.Title,
		Status:         string(m.Status),
		Tags:           datatypes.JSON(tags),
		SubmissionDate: m.SubmissionDate,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func manuscriptFromModel(m ManuscriptModel) domain.Manuscript {
	var tags []string
	if len(m.Tags) > 0 {
		_ = json.Unmarshal(m.Tags, &tags)
	}
	return domain.Manuscript{
		ID:             m.ID,
		CustomID:       m.CustomID,
		SystemID:       m.SystemID,
		SubmissionID:   m.SubmissionID,
		Title:          m.Title,
		Status:         domain.ManuscriptStatus(m.Status),
		Tags:           tags,
		SubmissionDate: m.SubmissionDate,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func reviewerToModel(r domain.PotentialReviewer) ReviewerModel {
	return ReviewerModel{ID: r.ID, Name: r.Name, Email: r.Email, Affiliation: r.Affiliation, CreatedAt: r.CreatedAt}
}

func reviewerFromModel(m ReviewerModel) domain.PotentialReviewer {
	return domain.PotentialReviewer{ID: m.ID, Name: m.Name, Email: m.Email, Affiliation: m.Affiliation, CreatedAt: m.CreatedAt}
}

func matchToModel(m domain.Match) MatchModel {
	return MatchModel{ID: m.ID, ManuscriptID: m.ManuscriptID, ReviewerID: m.ReviewerID, Score: m.Score, CreatedAt: m.CreatedAt}
}

func matchesFromModels(models []MatchModel) []domain.Match {
	res := make([]domain.Match, 0, len(models))
	for _, m := range models {
		res = append(res, domain.Match{ID: m.ID, ManuscriptID: m.ManuscriptID, ReviewerID: m.ReviewerID, Score: m.Score, CreatedAt: m.CreatedAt})
	}
	return res
}

func invitationToModel(inv domain.ReviewInvitation) InvitationModel {
	return InvitationModel{
		ID:             inv.ID,
		ManuscriptID:   inv.ManuscriptID,
		ReviewerID:     inv.ReviewerID,
		Status:         string(inv.Status),
		InvitedDate:    inv.InvitedDate,
		DueDate:        inv.DueDate,
		ExpirationDate: inv.ExpirationDate,
		ResponseDate:   inv.ResponseDate,
		InvalidatedAt:  inv.InvalidatedAt,
		Round:          inv.Round,
		ReminderCount:  inv.ReminderCount,
		Notes:          inv.Notes,
		UpdatedAt:      inv.UpdatedAt,
	}
}

func invitationFromModel(m InvitationModel) domain.ReviewInvitation {
	return domain.ReviewInvitation{
		ID:             m.ID,
		ManuscriptID:   m.ManuscriptID,
		ReviewerID:     m.ReviewerID,
		Status:         domain.InvitationStatus(m.Status),
		InvitedDate:    m.InvitedDate,
		DueDate:        m.DueDate,
		ExpirationDate: m.ExpirationDate,
		ResponseDate:   m.ResponseDate,
		InvalidatedAt:  m.InvalidatedAt,
		Round:          m.Round,
		ReminderCount:  m.ReminderCount,
		Notes:          m.Notes,
		UpdatedAt:      m.UpdatedAt,
	}
}

func queueItemToModel(q domain.QueueItem) QueueItemModel {
	return QueueItemModel{
		ID:                q.ID,
		ManuscriptID:      q.ManuscriptID,
		ReviewerID:        q.ReviewerID,
		Position:          q.Position,
		ScheduledSendDate: q.ScheduledSendDate,
		Priority:          string(q.Priority),
		Notes:             q.Notes,
		CreatedAt:         q.CreatedAt,
	}
}

func queueItemFromModel(m QueueItemModel) domain.QueueItem {
	return domain.QueueItem{
		ID:                m.ID,
		ManuscriptID:      m.ManuscriptID,
		ReviewerID:        m.ReviewerID,
		Position:          m.Position,
		ScheduledSendDate: m.ScheduledSendDate,
		Priority:          domain.QueuePriority(m.Priority),
		Notes:             m.Notes,
		CreatedAt:         m.CreatedAt,
	}
}

func assignmentToModel(a domain.Assignment) AssignmentModel {
	return AssignmentModel{
		ID:           a.ID,
		UserID:       a.UserID,
		ManuscriptID: a.ManuscriptID,
		Role:         string(a.Role),
		IsActive:     a.IsActive,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}
