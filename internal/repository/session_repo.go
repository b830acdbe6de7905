package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/dictation-api/internal/models"
)

// SessionRepository defines data operations for student sessions.
type SessionRepository interface {
	FindOrCreate(ctx context.Context, candidate *models.StudentSession) (models.StudentSession, bool, error)
	GetByID(ctx context.Context, id string) (models.StudentSession, error)
	LatestForProblemSet(ctx context.Context, problemSetID uint) (models.StudentSession, error)
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository instantiates the repository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// FindOrCreate returns the newest session for the candidate's problem set, creating
// the candidate only when none exists. The bool reports whether an existing session was reused.
func (r *sessionRepository) FindOrCreate(ctx context.Context, candidate *models.StudentSession) (models.StudentSession, bool, error) {
	var (
		session models.StudentSession
		reused  bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var set models.ProblemSet
		if err := tx.Select("id").First(&set, candidate.ProblemSetID).Error; err != nil {
			return err
		}

		err := tx.Where("problem_set_id = ?", candidate.ProblemSetID).
			Order("created_at DESC").
			First(&session).Error
		if err == nil {
			reused = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Omit(clause.Associations).Create(candidate).Error; err != nil {
			return err
		}
		session = *candidate
		return nil
	})
	if err != nil {
		return models.StudentSession{}, false, err
	}

	return session, reused, nil
}

// GetByID loads the session with its problem set and ordered sentences.
func (r *sessionRepository) GetByID(ctx context.Context, id string) (models.StudentSession, error) {
	var session models.StudentSession
	err := r.db.WithContext(ctx).
		Preload("ProblemSet").
		Preload("ProblemSet.Sentences", func(db *gorm.DB) *gorm.DB {
			return db.Order("sentence_number ASC")
		}).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return models.StudentSession{}, err
	}

	return session, nil
}

func (r *sessionRepository) LatestForProblemSet(ctx context.Context, problemSetID uint) (models.StudentSession, error) {
	var session models.StudentSession
	err := r.db.WithContext(ctx).
		Where("problem_set_id = ?", problemSetID).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		return models.StudentSession{}, err
	}

	return session, nil
}
