package service

import (
	"courseforge_backend/internal/model"
	"courseforge_backend/internal/repository"
	"courseforge_backend/internal/util"
	"errors"

	"gorm.io/gorm"
)

// PromptTemplateService 提示词模板管理，改模板即可调整生成行为，无需发版
type PromptTemplateService struct {
	Repo *repository.PromptTemplateRepository
}

func NewPromptTemplateService(repo *repository.PromptTemplateRepository) *PromptTemplateService {
	return &PromptTemplateService{Repo: repo}
}

func (s *PromptTemplateService) List() ([]model.PromptTemplate, error) {
	return s.Repo.List()
}

func (s *PromptTemplateService) Get(id uint) (*model.PromptTemplate, error) {
	tpl, err := s.Repo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrTemplateNotFound
		}
		return nil, err
	}
	return tpl, nil
}

func (s *PromptTemplateService) Create(key, template, description string) (*model.PromptTemplate, error) {
	if _, err := s.Repo.FindByKey(key); err == nil {
		return nil, util.ErrSlugTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tpl := &model.PromptTemplate{
		Key:         key,
		Template:    template,
		Description: description,
	}
	if err := s.Repo.Create(tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Update 只允许改模板正文和描述，Key 是稳定引用不可变
func (s *PromptTemplateService) Update(id uint, template, description string) (*model.PromptTemplate, error) {
	tpl, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	tpl.Template = template
	tpl.Description = description
	if err := s.Repo.Update(tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

func (s *PromptTemplateService) Delete(id uint) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	return s.Repo.Delete(id)
}
