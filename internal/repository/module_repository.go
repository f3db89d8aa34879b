package repository

import (
	"courseforge_backend/internal/model"

	"gorm.io/gorm"
)

type ModuleRepository struct {
	DB *gorm.DB
}

func NewModuleRepository(db *gorm.DB) *ModuleRepository {
	return &ModuleRepository{DB: db}
}

func (r *ModuleRepository) Create(module *model.Module) error {
	return r.DB.Create(module).Error
}

func (r *ModuleRepository) FindByID(id uint) (*model.Module, error) {
	var module model.Module
	err := r.DB.First(&module, id).Error
	return &module, err
}

func (r *ModuleRepository) FindByIDWithLessons(id uint) (*model.Module, error) {
	var module model.Module
	err := r.DB.Preload("Lessons", func(db *gorm.DB) *gorm.DB {
		return db.Order("number asc")
	}).First(&module, id).Error
	return &module, err
}

func (r *ModuleRepository) FindBySlug(slug string) (*model.Module, error) {
	var module model.Module
	err := r.DB.Where("slug = ?", slug).First(&module).Error
	return &module, err
}

func (r *ModuleRepository) List(page, limit int) ([]model.Module, int64, error) {
	var modules []model.Module
	var total int64

	if err := r.DB.Model(&model.Module{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.DB.Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&modules).Error
	return modules, total, err
}

func (r *ModuleRepository) Update(module *model.Module) error {
	return r.DB.Save(module).Error
}

// UpdateStatus 只更新状态和错误文本，避免覆盖并发写入的其他列
func (r *ModuleRepository) UpdateStatus(id uint, status model.GenerationStatus, lastError string) error {
	return r.DB.Model(&model.Module{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "last_error": lastError}).Error
}

func (r *ModuleRepository) Delete(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		// 级联删除课时
		if err := tx.Where("module_id = ?", id).Delete(&model.Lesson{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Module{}, id).Error
	})
}
