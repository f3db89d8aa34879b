package repository

import (
	"courseforge_backend/internal/model"

	"gorm.io/gorm"
)

type StandaloneLessonRepository struct {
	DB *gorm.DB
}

func NewStandaloneLessonRepository(db *gorm.DB) *StandaloneLessonRepository {
	return &StandaloneLessonRepository{DB: db}
}

func (r *StandaloneLessonRepository) Create(lesson *model.StandaloneLesson) error {
	return r.DB.Create(lesson).Error
}

func (r *StandaloneLessonRepository) FindByID(id uint) (*model.StandaloneLesson, error) {
	var lesson model.StandaloneLesson
	err := r.DB.First(&lesson, id).Error
	return &lesson, err
}

func (r *StandaloneLessonRepository) FindBySlug(slug string) (*model.StandaloneLesson, error) {
	var lesson model.StandaloneLesson
	err := r.DB.Where("slug = ?", slug).First(&lesson).Error
	return &lesson, err
}

func (r *StandaloneLessonRepository) List(page, limit int) ([]model.StandaloneLesson, int64, error) {
	var lessons []model.StandaloneLesson
	var total int64

	if err := r.DB.Model(&model.StandaloneLesson{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.DB.Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&lessons).Error
	return lessons, total, err
}

func (r *StandaloneLessonRepository) Update(lesson *model.StandaloneLesson) error {
	return r.DB.Save(lesson).Error
}

func (r *StandaloneLessonRepository) Delete(id uint) error {
	return r.DB.Delete(&model.StandaloneLesson{}, id).Error
}
