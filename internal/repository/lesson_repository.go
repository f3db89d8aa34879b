package repository

import (
	"courseforge_backend/internal/model"

	"gorm.io/gorm"
)

type LessonRepository struct {
	DB *gorm.DB
}

func NewLessonRepository(db *gorm.DB) *LessonRepository {
	return &LessonRepository{DB: db}
}

func (r *LessonRepository) Create(lesson *model.Lesson) error {
	return r.DB.Create(lesson).Error
}

func (r *LessonRepository) CreateBatch(lessons []model.Lesson) error {
	return r.DB.Create(&lessons).Error
}

func (r *LessonRepository) FindByID(id uint) (*model.Lesson, error) {
	var lesson model.Lesson
	err := r.DB.First(&lesson, id).Error
	return &lesson, err
}

func (r *LessonRepository) ListByModule(moduleID uint) ([]model.Lesson, error) {
	var lessons []model.Lesson
	err := r.DB.Where("module_id = ?", moduleID).Order("number asc").Find(&lessons).Error
	return lessons, err
}

// ListRetryable 选出可重试的课时：failed 或 pending，且重试计数未达上限
func (r *LessonRepository) ListRetryable(moduleID uint, ceiling int) ([]model.Lesson, error) {
	var lessons []model.Lesson
	err := r.DB.Where("module_id = ? AND status IN ? AND retry_count < ?",
		moduleID, []model.GenerationStatus{model.StatusFailed, model.StatusPending}, ceiling).
		Order("number asc").Find(&lessons).Error
	return lessons, err
}

func (r *LessonRepository) Update(lesson *model.Lesson) error {
	return r.DB.Save(lesson).Error
}

func (r *LessonRepository) CountByStatus(moduleID uint, status model.GenerationStatus) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Lesson{}).
		Where("module_id = ? AND status = ?", moduleID, status).Count(&count).Error
	return count, err
}

// FindGenerating 返回该模块当前处于 generating 的课时（若有）
func (r *LessonRepository) FindGenerating(moduleID uint) (*model.Lesson, error) {
	var lesson model.Lesson
	err := r.DB.Where("module_id = ? AND status = ?", moduleID, model.StatusGenerating).
		First(&lesson).Error
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}
