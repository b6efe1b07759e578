package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/acadex/acadex-api/internal/models"
)

// EvaluationRepository manages stored evaluation results independently of
// their owning assignment, used by re-evaluation flows.
type EvaluationRepository interface {
	FileByFileID(ctx context.Context, fileID string) (models.AssignmentFile, error)
	ResultForFile(ctx context.Context, assignmentFileID uint) (models.EvaluationResult, error)
	// ReplaceResult overwrites a result and its details atomically.
	ReplaceResult(ctx context.Context, result *models.EvaluationResult, details []models.EvaluationDetail) error
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository instantiates the repository.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) FileByFileID(ctx context.Context, fileID string) (models.AssignmentFile, error) {
	var file models.AssignmentFile
	err := r.db.WithContext(ctx).Where("file_id = ?", fileID).First(&file).Error
	return file, err
}

func (r *evaluationRepository) ResultForFile(ctx context.Context, assignmentFileID uint) (models.EvaluationResult, error) {
	var result models.EvaluationResult
	err := r.db.WithContext(ctx).
		Where("assignment_file_id = ?", assignmentFileID).
		Preload("Details", func(db *gorm.DB) *gorm.DB {
			return db.Order("evaluation_details.order_index ASC")
		}).
		First(&result).Error
	return result, err
}

func (r *evaluationRepository) ReplaceResult(ctx context.Context, result *models.EvaluationResult, details []models.EvaluationDetail) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(result).Error; err != nil {
			return err
		}
		if err := tx.Where("evaluation_result_id = ?", result.ID).
			Delete(&models.EvaluationDetail{}).Error; err != nil {
			return err
		}
		if len(details) == 0 {
			return nil
		}
		for i := range details {
			details[i].ID = 0
			details[i].EvaluationResultID = result.ID
			details[i].OrderIndex = i
		}
		return tx.Create(&details).Error
	})
}
