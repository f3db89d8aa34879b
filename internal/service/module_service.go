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

// ModuleService 模块的 CRUD；生成相关操作在 GenerationService
type ModuleService struct {
	Modules *repository.ModuleRepository
	Lessons *repository.LessonRepository
	Storage *StorageService
	Hub     *GenerationHub
}

func NewModuleService(modules *repository.ModuleRepository, lessons *repository.LessonRepository, storage *StorageService, hub *GenerationHub) *ModuleService {
	return &ModuleService{
		Modules: modules,
		Lessons: lessons,
		Storage: storage,
		Hub:     hub,
	}
}

// Create 按标题建模块，slug 由标题导出，冲突时报错
func (s *ModuleService) Create(title string) (*model.Module, error) {
	slug := util.Slugify(title)
	if slug == "" {
		return nil, errors.New("title yields an empty slug")
	}

	if _, err := s.Modules.FindBySlug(slug); err == nil {
		return nil, util.ErrSlugTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	module := &model.Module{
		Title:  title,
		Slug:   slug,
		Status: model.StatusPending,
	}
	if err := s.Modules.Create(module); err != nil {
		return nil, err
	}
	return module, nil
}

func (s *ModuleService) Get(id uint) (*model.Module, error) {
	module, err := s.Modules.FindByIDWithLessons(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrModuleNotFound
		}
		return nil, err
	}
	return module, nil
}

func (s *ModuleService) List(page, limit int) ([]model.Module, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.Modules.List(page, limit)
}

func (s *ModuleService) GetLesson(moduleID, lessonID uint) (*model.Lesson, error) {
	lesson, err := s.Lessons.FindByID(lessonID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrLessonNotFound
		}
		return nil, err
	}
	if lesson.ModuleID != moduleID {
		return nil, util.ErrLessonNotFound
	}
	return lesson, nil
}

// LessonContent 读取课时的正文与播客稿产物
func (s *ModuleService) LessonContent(moduleID, lessonID uint) (content, podcast string, err error) {
	lesson, err := s.GetLesson(moduleID, lessonID)
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

// Delete 删除模块及其课时、产物目录，并关闭该任务的全部进度流。
// 正在跑的后台任务不会被打断，它的后续写库会落在已删除的行上，无人可见。
func (s *ModuleService) Delete(id uint) error {
	module, err := s.Modules.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrModuleNotFound
		}
		return err
	}

	if err := s.Modules.Delete(id); err != nil {
		return err
	}

	if err := s.Storage.RemoveDir(module.Slug); err != nil {
		logger.Log.Warn("module artifact cleanup failed",
			zap.String("slug", module.Slug), zap.Error(err))
	}

	s.Hub.CloseJob(ModuleJobID(id))
	return nil
}
