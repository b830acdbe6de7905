package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/dictation-api/internal/models"
)

// StudentIdentity is the self-reported identity students submit with.
type StudentIdentity struct {
	Grade      int
	ClassNum   int
	StudentNum int
}

// SubmissionRepository defines data operations for graded submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	ListByProblemSet(ctx context.Context, problemSetID uint) ([]models.Submission, error)
	LatestForStudent(ctx context.Context, identity StudentIdentity, sessionID string) (models.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) withAnswers(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Session").
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("sentence_number ASC")
		})
}

// Create stores the submission and its answers atomically. Nothing is visible until commit.
func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(submission).Error; err != nil {
			return err
		}

		if len(submission.Answers) == 0 {
			return nil
		}

		for i := range submission.Answers {
			submission.Answers[i].SubmissionID = submission.ID
		}

		return tx.Create(&submission.Answers).Error
	})
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.withAnswers(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

// ListByProblemSet returns submissions across every session of the problem set, newest first.
func (r *submissionRepository) ListByProblemSet(ctx context.Context, problemSetID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.db.WithContext(ctx).
		Joins("JOIN student_sessions ON student_sessions.id = submissions.session_id").
		Where("student_sessions.problem_set_id = ?", problemSetID).
		Order("submissions.submitted_at DESC, submissions.id DESC").
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}

	return submissions, nil
}

// LatestForStudent finds the newest submission for the identity, limited to one session when sessionID is set.
func (r *submissionRepository) LatestForStudent(ctx context.Context, identity StudentIdentity, sessionID string) (models.Submission, error) {
	query := r.withAnswers(ctx).
		Where("grade = ? AND class_num = ? AND student_num = ?", identity.Grade, identity.ClassNum, identity.StudentNum)

	if sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}

	var submission models.Submission
	if err := query.Order("submitted_at DESC, id DESC").First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}
