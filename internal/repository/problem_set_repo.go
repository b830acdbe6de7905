package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/dictation-api/internal/models"
)

// ProblemSetRepository defines data operations for problem sets and their sentences.
type ProblemSetRepository interface {
	Create(ctx context.Context, set *models.ProblemSet) error
	List(ctx context.Context) ([]models.ProblemSetSummary, error)
	GetByID(ctx context.Context, id uint) (models.ProblemSet, error)
	UpdateTitle(ctx context.Context, id uint, title string) error
	GetSentence(ctx context.Context, id uint) (models.Sentence, error)
	UpdateSentenceText(ctx context.Context, id uint, text string) (models.Sentence, error)
	Delete(ctx context.Context, id uint) error
}

type problemSetRepository struct {
	db *gorm.DB
}

// NewProblemSetRepository instantiates the repository.
func NewProblemSetRepository(db *gorm.DB) ProblemSetRepository {
	return &problemSetRepository{db: db}
}

// Create stores the problem set and all of its sentences in one transaction.
func (r *problemSetRepository) Create(ctx context.Context, set *models.ProblemSet) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(set).Error; err != nil {
			return err
		}

		if len(set.Sentences) == 0 {
			return nil
		}

		for i := range set.Sentences {
			set.Sentences[i].ProblemSetID = set.ID
		}

		return tx.Create(&set.Sentences).Error
	})
}

func (r *problemSetRepository) List(ctx context.Context) ([]models.ProblemSetSummary, error) {
	var rows []models.ProblemSetSummary
	err := r.db.WithContext(ctx).
		Model(&models.ProblemSet{}).
		Select("problem_sets.id, problem_sets.title, problem_sets.created_at, COUNT(sentences.id) AS sentence_count").
		Joins("LEFT JOIN sentences ON sentences.problem_set_id = problem_sets.id").
		Group("problem_sets.id, problem_sets.title, problem_sets.created_at").
		Order("problem_sets.created_at DESC, problem_sets.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	return rows, nil
}

func (r *problemSetRepository) GetByID(ctx context.Context, id uint) (models.ProblemSet, error) {
	var set models.ProblemSet
	err := r.db.WithContext(ctx).
		Preload("Sentences", func(db *gorm.DB) *gorm.DB {
			return db.Order("sentence_number ASC")
		}).
		First(&set, id).Error
	if err != nil {
		return models.ProblemSet{}, err
	}

	return set, nil
}

func (r *problemSetRepository) UpdateTitle(ctx context.Context, id uint, title string) error {
	result := r.db.WithContext(ctx).
		Model(&models.ProblemSet{}).
		Where("id = ?", id).
		Update("title", title)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *problemSetRepository) GetSentence(ctx context.Context, id uint) (models.Sentence, error) {
	var sentence models.Sentence
	if err := r.db.WithContext(ctx).First(&sentence, id).Error; err != nil {
		return models.Sentence{}, err
	}

	return sentence, nil
}

// UpdateSentenceText changes only the text; the sentence keeps its number and id.
func (r *problemSetRepository) UpdateSentenceText(ctx context.Context, id uint, text string) (models.Sentence, error) {
	var sentence models.Sentence
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&sentence, id).Error; err != nil {
			return err
		}

		sentence.Text = text
		return tx.Model(&models.Sentence{}).
			Where("id = ?", id).
			Update("sentence_text", text).Error
	})
	if err != nil {
		return models.Sentence{}, err
	}

	return sentence, nil
}

// Delete removes the problem set and everything hanging off it, children first, in one transaction.
func (r *problemSetRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var set models.ProblemSet
		if err := tx.Select("id").First(&set, id).Error; err != nil {
			return err
		}

		var sessionIDs []string
		if err := tx.Model(&models.StudentSession{}).
			Where("problem_set_id = ?", id).
			Pluck("id", &sessionIDs).Error; err != nil {
			return err
		}

		if len(sessionIDs) > 0 {
			var submissionIDs []uint
			if err := tx.Model(&models.Submission{}).
				Where("session_id IN ?", sessionIDs).
				Pluck("id", &submissionIDs).Error; err != nil {
				return err
			}

			if len(submissionIDs) > 0 {
				if err := tx.Where("submission_id IN ?", submissionIDs).Delete(&models.Answer{}).Error; err != nil {
					return err
				}
				if err := tx.Where("id IN ?", submissionIDs).Delete(&models.Submission{}).Error; err != nil {
					return err
				}
			}

			if err := tx.Where("id IN ?", sessionIDs).Delete(&models.StudentSession{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("problem_set_id = ?", id).Delete(&models.Sentence{}).Error; err != nil {
			return err
		}

		return tx.Delete(&models.ProblemSet{}, id).Error
	})
}
