package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/acadex/acadex-api/internal/models"
)

// AssignmentRepository persists grading runs and their results.
type AssignmentRepository interface {
	// CreateGraded stores an assignment together with its files, results,
	// and per-question details in one transaction.
	CreateGraded(ctx context.Context, assignment *models.Assignment) error
	List(ctx context.Context, userID uint, limit, offset int) ([]models.Assignment, error)
	GetByID(ctx context.Context, id, userID uint) (models.Assignment, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates the repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) CreateGraded(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		results := assignment.Results
		assignment.Results = nil

		if err := tx.Create(assignment).Error; err != nil {
			return err
		}

		fileIDs := make(map[string]uint, len(assignment.Files))
		for _, file := range assignment.Files {
			fileIDs[file.FileID] = file.ID
		}

		for i := range results {
			results[i].AssignmentID = assignment.ID
			if id, ok := fileIDs[results[i].FileRef]; ok && results[i].FileRef != "" {
				fileID := id
				results[i].AssignmentFileID = &fileID
			}
		}

		if len(results) > 0 {
			if err := tx.Create(&results).Error; err != nil {
				return err
			}
		}
		assignment.Results = results
		return nil
	})
}

func (r *assignmentRepository) List(ctx context.Context, userID uint, limit, offset int) ([]models.Assignment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var assignments []models.Assignment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Preload("Results").
		Find(&assignments).Error
	return assignments, err
}

func (r *assignmentRepository) GetByID(ctx context.Context, id, userID uint) (models.Assignment, error) {
	var assignment models.Assignment
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Preload("Files").
		Preload("Results").
		Preload("Results.Details", func(db *gorm.DB) *gorm.DB {
			return db.Order("evaluation_details.order_index ASC")
		}).
		First(&assignment).Error
	return assignment, err
}
