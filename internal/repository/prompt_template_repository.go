package repository

import (
	"courseforge_backend/internal/model"

	"gorm.io/gorm"
)

type PromptTemplateRepository struct {
	DB *gorm.DB
}

func NewPromptTemplateRepository(db *gorm.DB) *PromptTemplateRepository {
	return &PromptTemplateRepository{DB: db}
}

func (r *PromptTemplateRepository) Create(tpl *model.PromptTemplate) error {
	return r.DB.Create(tpl).Error
}

func (r *PromptTemplateRepository) FindByID(id uint) (*model.PromptTemplate, error) {
	var tpl model.PromptTemplate
	err := r.DB.First(&tpl, id).Error
	return &tpl, err
}

func (r *PromptTemplateRepository) FindByKey(key string) (*model.PromptTemplate, error) {
	var tpl model.PromptTemplate
	err := r.DB.Where("`key` = ?", key).First(&tpl).Error
	return &tpl, err
}

func (r *PromptTemplateRepository) List() ([]model.PromptTemplate, error) {
	var tpls []model.PromptTemplate
	err := r.DB.Order("`key` asc").Find(&tpls).Error
	return tpls, err
}

func (r *PromptTemplateRepository) Update(tpl *model.PromptTemplate) error {
	return r.DB.Save(tpl).Error
}

func (r *PromptTemplateRepository) Delete(id uint) error {
	return r.DB.Delete(&model.PromptTemplate{}, id).Error
}
