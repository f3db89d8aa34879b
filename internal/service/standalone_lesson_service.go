package service

import (
	"courseforge_backend/internal/model"
	"courseforge_backend/internal/repository"
	"courseforge_backend/internal/util"
	"courseforge_backend/pkg/logger"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StandaloneLessonService 独立课时（不挂在任何模块下）的 CRUD
type StandaloneLessonService struct {
	Repo    *repository.StandaloneLessonRepository
	Storage *StorageService
	Hub     *GenerationHub
}

func NewStandaloneLessonService(repo *repository.StandaloneLessonRepository, storage *StorageService, hub *GenerationHub) *StandaloneLessonService {
	return &StandaloneLessonService{
		Repo:    repo,
		Storage: storage,
		Hub:     hub,
	}
}

func (s *StandaloneLessonService) Create(title, description string) (*model.StandaloneLesson, error) {
	slug := util.Slugify(title)
	if slug == "" {
		return nil, errors.New("title yields an empty slug")
	}

	if _, err := s.Repo.FindBySlug(slug); err == nil {
		return nil, util.ErrSlugTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	lesson := &model.StandaloneLesson{
		Title:       title,
		Slug:        slug,
		Description: description,
		Status:      model.StatusPending,
	}
	if err := s.Repo.Create(lesson); err != nil {
		return nil, err
	}
	return lesson, nil
}

func (s *StandaloneLessonService) Get(id uint) (*model.StandaloneLesson, error) {
	lesson, err := s.Repo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrLessonNotFound
		}
		return nil, err
	}
	return lesson, nil
}

func (s *StandaloneLessonService) List(page, limit int) ([]model.StandaloneLesson, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.Repo.List(page, limit)
}

func (s *StandaloneLessonService) Content(id uint) (content, podcast string, err error) {
	lesson, err := s.Get(id)
	if err != nil {
		return "", "", err
	}

	if lesson.ContentPath != "" {
		content, err = s.Storage.ReadArtifact(lesson.ContentPath)
		if err != nil {
			return "", "", err
		}
	}
	if lesson.PodcastPath != "" {
		podcast, err = s.Storage.ReadArtifact(lesson.PodcastPath)
		if err != nil {
			return "", "", err
		}
	}
	return content, podcast, nil
}

func (s *StandaloneLessonService) Delete(id uint) error {
	lesson, err := s.Get(id)
	if err != nil {
		return err
	}

	if err := s.Repo.Delete(id); err != nil {
		return err
	}

	if err := s.Storage.RemoveDir("standalone/" + lesson.Slug); err != nil {
		logger.Log.Warn("standalone artifact cleanup failed",
			zap.String("slug", lesson.Slug), zap.Error(err))
	}

	s.Hub.CloseJob(StandaloneJobID(id))
	return nil
}
