package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/ctf-go-api/internal/models"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	ChallengeID *uint
	UserID      *uint
	Correct     *bool
}

// SubmissionRepository defines data operations for the append-only submission log.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	RecordSolve(ctx context.Context, submission *models.Submission, instanceID string) error
	HasSolved(ctx context.Context, challengeID, userID uint) (bool, error)
	SolvedChallengeIDs(ctx context.Context, userID uint) (map[uint]bool, error)
	CountSolves(ctx context.Context, challengeIDs []uint) (map[uint]int64, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{})
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.baseQuery(ctx)

	if filter.ChallengeID != nil {
		query = query.Where("challenge_id = ?", *filter.ChallengeID)
	}

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	if filter.Correct != nil {
		query = query.Where("type = ?", *filter.Correct)
	}

	var submissions []models.Submission
	if err := query.Order("id ASC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

// RecordSolve stores a correct submission, removes the running instance and queues its
// orchestrator teardown in one transaction.
func (r *submissionRepository) RecordSolve(ctx context.Context, submission *models.Submission, instanceID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(submission).Error; err != nil {
			return err
		}

		if err := tx.Where("id = ?", instanceID).Delete(&models.RunningChallenge{}).Error; err != nil {
			return err
		}

		pending := models.PendingTeardown{InstanceID: instanceID, Reason: models.TeardownReasonSolved}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instance_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"reason", "updated_at"}),
		}).Create(&pending).Error
	})
}

func (r *submissionRepository) HasSolved(ctx context.Context, challengeID, userID uint) (bool, error) {
	var count int64
	if err := r.baseQuery(ctx).
		Where("challenge_id = ? AND user_id = ? AND type = ?", challengeID, userID, true).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *submissionRepository) SolvedChallengeIDs(ctx context.Context, userID uint) (map[uint]bool, error) {
	var ids []uint
	if err := r.baseQuery(ctx).
		Where("user_id = ? AND type = ?", userID, true).
		Distinct().
		Pluck("challenge_id", &ids).Error; err != nil {
		return nil, err
	}

	solved := make(map[uint]bool, len(ids))
	for _, id := range ids {
		solved[id] = true
	}

	return solved, nil
}

// CountSolves returns the number of distinct users with a correct submission per challenge.
func (r *submissionRepository) CountSolves(ctx context.Context, challengeIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(challengeIDs))
	if len(challengeIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ChallengeID uint
		Solves      int64
	}
	if err := r.baseQuery(ctx).
		Select("challenge_id, COUNT(DISTINCT user_id) AS solves").
		Where("challenge_id IN ? AND type = ?", challengeIDs, true).
		Group("challenge_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.ChallengeID] = row.Solves
	}

	return counts, nil
}
