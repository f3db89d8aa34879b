package service

import (
	"context"
	"courseforge_backend/internal/config"
	"courseforge_backend/internal/model"
	"courseforge_backend/internal/repository"
	"courseforge_backend/internal/util"
	"courseforge_backend/pkg/logger"
	"courseforge_backend/pkg/monitoring"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Completer 完成服务抽象，生产环境由 AIService 实现
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// EventSink 进度事件出口，生产环境由 GenerationHub 实现
type EventSink interface {
	Publish(jobID string, event model.GenerationEvent)
}

// GenerationService 课程生成流水线：
// 主题拆解 -> 逐课时生成正文与播客稿 -> 产物落盘 -> 汇总模块状态。
// 所有生成都在登记过的后台 goroutine 里跑，进度经 EventSink 广播，
// 每步状态先写库再通知，崩溃后库里的状态即是事实。
type GenerationService struct {
	modules    *repository.ModuleRepository
	lessons    *repository.LessonRepository
	standalone *repository.StandaloneLessonRepository
	templates  *repository.PromptTemplateRepository
	ai         Completer
	storage    *StorageService
	registry   *JobRegistry
	events     EventSink
	cfg        config.GenerationConfig
}

func NewGenerationService(
	modules *repository.ModuleRepository,
	lessons *repository.LessonRepository,
	standalone *repository.StandaloneLessonRepository,
	templates *repository.PromptTemplateRepository,
	ai Completer,
	storage *StorageService,
	registry *JobRegistry,
	events EventSink,
	cfg config.GenerationConfig,
) *GenerationService {
	if cfg.ExpansionAttempts <= 0 {
		cfg.ExpansionAttempts = 2
	}
	if cfg.RetryCeiling <= 0 {
		cfg.RetryCeiling = 3
	}
	if cfg.LessonMinWords <= 0 {
		cfg.LessonMinWords = 2700
	}
	if cfg.PodcastMinWords <= 0 {
		cfg.PodcastMinWords = 1000
	}
	return &GenerationService{
		modules:    modules,
		lessons:    lessons,
		standalone: standalone,
		templates:  templates,
		ai:         ai,
		storage:    storage,
		registry:   registry,
		events:     events,
		cfg:        cfg,
	}
}

// ModuleJobID 模块生成任务的标识，也是进度流订阅的频道名
func ModuleJobID(moduleID uint) string {
	return fmt.Sprintf("module:%d", moduleID)
}

// StandaloneJobID 独立课时生成任务的标识
func StandaloneJobID(lessonID uint) string {
	return fmt.Sprintf("standalone:%d", lessonID)
}

// StartModuleGeneration 启动整个模块的后台生成（拆解 + 全部课时），
// 立即返回；同一模块已有任务在跑则拒绝
func (s *GenerationService) StartModuleGeneration(moduleID uint) error {
	module, err := s.modules.FindByID(moduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrModuleNotFound
		}
		return err
	}

	jobID := ModuleJobID(moduleID)
	if s.registry.IsRunning(jobID) {
		return util.ErrGenerationInProgress
	}
	if module.Status == model.StatusCompleted {
		return util.ErrAlreadyCompleted
	}

	if !s.registry.Go(jobID, func() { s.runModuleJob(moduleID) }) {
		return util.ErrGenerationInProgress
	}
	return nil
}

// RetryModule 重新生成失败或遗留 pending 的课时，返回排入重试的课时数。
// 已完成的课时与重试次数达上限的课时不会被触碰。
func (s *GenerationService) RetryModule(moduleID uint) (int, error) {
	module, err := s.modules.FindByID(moduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, util.ErrModuleNotFound
		}
		return 0, err
	}

	jobID := ModuleJobID(moduleID)
	if s.registry.IsRunning(jobID) {
		return 0, util.ErrGenerationInProgress
	}
	if module.Status == model.StatusCompleted {
		return 0, util.ErrAlreadyCompleted
	}

	retryable, err := s.lessons.ListRetryable(moduleID, s.cfg.RetryCeiling)
	if err != nil {
		return 0, err
	}
	if len(retryable) == 0 {
		// 拆解都没做过的模块走完整生成
		all, err := s.lessons.ListByModule(moduleID)
		if err != nil {
			return 0, err
		}
		if len(all) == 0 {
			if !s.registry.Go(jobID, func() { s.runModuleJob(moduleID) }) {
				return 0, util.ErrGenerationInProgress
			}
			return 0, nil
		}
		return 0, util.ErrNothingToRetry
	}

	if !s.registry.Go(jobID, func() { s.runRetryJob(moduleID) }) {
		return 0, util.ErrGenerationInProgress
	}
	return len(retryable), nil
}

func (s *GenerationService) runModuleJob(moduleID uint) {
	ctx := context.Background()
	jobID := ModuleJobID(moduleID)

	module, err := s.modules.FindByIDWithLessons(moduleID)
	if err != nil {
		logger.Log.Error("generation job: load module failed",
			zap.Uint("moduleId", moduleID), zap.Error(err))
		return
	}

	s.modules.UpdateStatus(moduleID, model.StatusGenerating, "")

	if len(module.Lessons) == 0 {
		if err := s.breakdown(ctx, jobID, module); err != nil {
			s.modules.UpdateStatus(moduleID, model.StatusFailed, err.Error())
			s.events.Publish(jobID, model.GenerationEvent{
				Type: model.EventGenerationError,
				Data: map[string]interface{}{
					"moduleId":  moduleID,
					"error":     err.Error(),
					"kind":      string(Classify(err).Kind),
					"retryable": IsRetryable(err),
				},
			})
			return
		}

		module, err = s.modules.FindByIDWithLessons(moduleID)
		if err != nil {
			logger.Log.Error("generation job: reload module failed",
				zap.Uint("moduleId", moduleID), zap.Error(err))
			return
		}
	}

	s.runLessons(ctx, jobID, module, module.Lessons)
	s.finishModule(jobID, moduleID)
}

func (s *GenerationService) runRetryJob(moduleID uint) {
	ctx := context.Background()
	jobID := ModuleJobID(moduleID)

	module, err := s.modules.FindByID(moduleID)
	if err != nil {
		logger.Log.Error("retry job: load module failed",
			zap.Uint("moduleId", moduleID), zap.Error(err))
		return
	}

	s.modules.UpdateStatus(moduleID, model.StatusGenerating, "")

	retryable, err := s.lessons.ListRetryable(moduleID, s.cfg.RetryCeiling)
	if err != nil {
		logger.Log.Error("retry job: list lessons failed",
			zap.Uint("moduleId", moduleID), zap.Error(err))
		return
	}

	s.runLessons(ctx, jobID, module, retryable)
	s.finishModule(jobID, moduleID)
}

// runLessons 顺序生成一批课时，单课时失败只记录不中断
func (s *GenerationService) runLessons(ctx context.Context, jobID string, module *model.Module, batch []model.Lesson) {
	for i := range batch {
		lesson := batch[i]
		if lesson.Status == model.StatusCompleted {
			continue
		}
		if lesson.RetryCount >= s.cfg.RetryCeiling {
			logger.Log.Warn("lesson skipped, retry ceiling reached",
				zap.Uint("lessonId", lesson.ID), zap.Int("retryCount", lesson.RetryCount))
			continue
		}
		if err := s.generateLesson(ctx, jobID, module, &lesson); err != nil {
			logger.Log.Error("lesson generation failed",
				zap.Uint("moduleId", module.ID),
				zap.Int("number", lesson.Number),
				zap.Error(err))
		}
	}
}

// finishModule 汇总课时结果并写模块终态：全部完成才算完成，
// 否则记录 "N/M lessons completed" 并标记失败
func (s *GenerationService) finishModule(jobID string, moduleID uint) {
	all, err := s.lessons.ListByModule(moduleID)
	if err != nil {
		logger.Log.Error("finish module: list lessons failed",
			zap.Uint("moduleId", moduleID), zap.Error(err))
		return
	}

	completed := 0
	for _, l := range all {
		if l.Status == model.StatusCompleted {
			completed++
		}
	}

	if len(all) > 0 && completed == len(all) {
		s.modules.UpdateStatus(moduleID, model.StatusCompleted, "")
		s.events.Publish(jobID, model.GenerationEvent{
			Type: model.EventGenerationComplete,
			Data: map[string]interface{}{
				"moduleId":  moduleID,
				"completed": completed,
				"total":     len(all),
			},
		})
		return
	}

	summary := fmt.Sprintf("%d/%d lessons completed", completed, len(all))
	s.modules.UpdateStatus(moduleID, model.StatusFailed, summary)
	s.events.Publish(jobID, model.GenerationEvent{
		Type: model.EventGenerationError,
		Data: map[string]interface{}{
			"moduleId":  moduleID,
			"error":     summary,
			"completed": completed,
			"total":     len(all),
		},
	})
}

// breakdown 调用完成服务把主题拆成课时列表并落库（JSON 模式）
func (s *GenerationService) breakdown(ctx context.Context, jobID string, module *model.Module) error {
	s.events.Publish(jobID, model.GenerationEvent{
		Type: model.EventBreakdownStart,
		Data: map[string]interface{}{"moduleId": module.ID, "title": module.Title},
	})

	start := time.Now()
	tpl, err := s.templates.FindByKey(model.TplModuleBreakdown)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", util.ErrTemplateNotFound, model.TplModuleBreakdown)
		}
		return err
	}

	prompt := util.RenderTemplate(tpl.Template, map[string]interface{}{
		"topic": module.Title,
	})

	raw, err := s.ai.Complete(ctx, CompletionRequest{
		Prompt:   prompt,
		JSONMode: true,
		OnRetry:  s.retryObserver(jobID, "breakdown"),
	})
	if err != nil {
		monitoring.GenerationStepCounter.WithLabelValues("breakdown", "error").Inc()
		return err
	}

	plan, err := parseBreakdown(raw)
	if err != nil {
		monitoring.GenerationStepCounter.WithLabelValues("breakdown", "error").Inc()
		return err
	}
	if len(plan.Lessons) < 3 || len(plan.Lessons) > 12 {
		logger.Log.Warn("breakdown lesson count outside expected range",
			zap.Uint("moduleId", module.ID), zap.Int("count", len(plan.Lessons)))
	}

	module.Description = plan.Description
	module.LessonCount = len(plan.Lessons)
	module.Status = model.StatusGenerating
	if err := s.modules.Update(module); err != nil {
		return err
	}

	rows := make([]model.Lesson, 0, len(plan.Lessons))
	briefs := make([]model.LessonBrief, 0, len(plan.Lessons))
	for _, l := range plan.Lessons {
		rows = append(rows, model.Lesson{
			ModuleID:    module.ID,
			Number:      l.Number,
			Title:       l.Title,
			Description: l.Description,
			Status:      model.StatusPending,
		})
		briefs = append(briefs, model.LessonBrief{
			Number: l.Number,
			Title:  l.Title,
			Status: model.StatusPending,
		})
	}
	if err := s.lessons.CreateBatch(rows); err != nil {
		return err
	}

	monitoring.GenerationStepCounter.WithLabelValues("breakdown", "success").Inc()
	monitoring.GenerationDuration.WithLabelValues("breakdown").Observe(time.Since(start).Seconds())

	s.events.Publish(jobID, model.GenerationEvent{
		Type: model.EventBreakdownComplete,
		Data: map[string]interface{}{
			"moduleId":    module.ID,
			"description": plan.Description,
			"lessons":     briefs,
		},
	})
	return nil
}

type breakdownPlan struct {
	Description string `json:"description"`
	Lessons     []struct {
		Number      int    `json:"number"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"lessons"`
}

// parseBreakdown 解析拆解响应。模型偶尔会把 JSON 包进 markdown 代码栅栏，
// 这里取第一个 '{' 到最后一个 '}' 之间的内容再解析
func parseBreakdown(raw string) (*breakdownPlan, error) {
	text := strings.TrimSpace(raw)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}

	var plan breakdownPlan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, &ErrBadResponse{Reason: "breakdown is not valid JSON: " + err.Error()}
	}
	if len(plan.Lessons) == 0 {
		return nil, &ErrBadResponse{Reason: "breakdown response has no lessons"}
	}

	// 编号缺失或重复时按出现顺序重排
	seen := make(map[int]bool)
	normalize := false
	for _, l := range plan.Lessons {
		if l.Number <= 0 || seen[l.Number] {
			normalize = true
			break
		}
		seen[l.Number] = true
	}
	if normalize {
		for i := range plan.Lessons {
			plan.Lessons[i].Number = i + 1
		}
	} else {
		sort.Slice(plan.Lessons, func(i, j int) bool {
			return plan.Lessons[i].Number < plan.Lessons[j].Number
		})
	}

	return &plan, nil
}

// generateLesson 生成单个课时：先正文后播客稿，产物写入
// <slug>/NN.md 与 <slug>/NN_podcast.md，每步落库后推事件
func (s *GenerationService) generateLesson(ctx context.Context, jobID string, module *model.Module, lesson *model.Lesson) error {
	lesson.Status = model.StatusGenerating
	lesson.LastError = ""
	if err := s.lessons.Update(lesson); err != nil {
		return err
	}
	s.events.Publish(jobID, model.GenerationEvent{
		Type: model.EventLessonStart,
		Data: model.LessonBrief{ID: lesson.ID, Number: lesson.Number, Title: lesson.Title, Status: model.StatusGenerating},
	})

	start := time.Now()
	body, bodyWords, err := s.generateBody(ctx, jobID, module.Title, lesson.Number, lesson.Title, lesson.Description)
	if err != nil {
		monitoring.GenerationStepCounter.WithLabelValues("lesson_content", "error").Inc()
		return s.failLesson(jobID, lesson, err)
	}
	monitoring.GenerationStepCounter.WithLabelValues("lesson_content", "success").Inc()
	monitoring.GenerationDuration.WithLabelValues("lesson_content").Observe(time.Since(start).Seconds())

	contentPath, err := s.storage.SaveArtifact(
		fmt.Sprintf("%s/%02d.md", module.Slug, lesson.Number), body)
	if err != nil {
		return s.failLesson(jobID, lesson, err)
	}
	lesson.ContentPath = contentPath
	lesson.ContentWordCount = bodyWords
	if err := s.lessons.Update(lesson); err != nil {
		return err
	}
	s.events.Publish(jobID, model.GenerationEvent{
		Type: model.EventLessonContentComplete,
		Data: map[string]interface{}{
			"lessonId":  lesson.ID,
			"number":    lesson.Number,
			"wordCount": bodyWords,
			"path":      contentPath,
		},
	})

	start = time.Now()
	script, scriptWords, err := s.generatePodcast(ctx, jobID, lesson.Title, body)
	if err != nil {
		monitoring.GenerationStepCounter.WithLabelValues("lesson_podcast", "error").Inc()
		return s.failLesson(jobID, lesson, err)
	}
	monitoring.GenerationStepCounter.WithLabelValues("lesson_podcast", "success").Inc()
	monitoring.GenerationDuration.WithLabelValues("lesson_podcast").Observe(time.Since(start).Seconds())

	podcastPath, err := s.storage.SaveArtifact(
		fmt.Sprintf("%s/%02d_podcast.md", module.Slug, lesson.Number), script)
	if err != nil {
		return s.failLesson(jobID, lesson, err)
	}
	lesson.PodcastPath = podcastPath
	lesson.PodcastWordCount = scriptWords
	lesson.Status = model.StatusCompleted
	if err := s.lessons.Update(lesson); err != nil {
		return err
	}
	s.events.Publish(jobID, model.GenerationEvent{
		Type: model.EventLessonPodcastComplete,
		Data: map[string]interface{}{
			"lessonId":  lesson.ID,
			"number":    lesson.Number,
			"wordCount": scriptWords,
			"path":      podcastPath,
		},
	})

	return nil
}

// generateBody 生成课时正文并过字数闸门
func (s *GenerationService) generateBody(ctx context.Context, jobID, topic string, number int, title, description string) (string, int, error) {
	tpl, err := s.templates.FindByKey(model.TplLessonContent)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", 0, fmt.Errorf("%w: %s", util.ErrTemplateNotFound, model.TplLessonContent)
		}
		return "", 0, err
	}

	prompt := util.RenderTemplate(tpl.Template, map[string]interface{}{
		"topic":       topic,
		"number":      number,
		"title":       title,
		"description": description,
		"min_words":   s.cfg.LessonMinWords,
	})

	text, err := s.ai.Complete(ctx, CompletionRequest{
		Prompt:  prompt,
		OnRetry: s.retryObserver(jobID, "lesson_content"),
	})
	if err != nil {
		return "", 0, err
	}

	return s.ensureMinimumWords(ctx, jobID, text, title, s.cfg.LessonMinWords)
}

// generatePodcast 基于已生成的正文产出播客稿并过字数闸门
func (s *GenerationService) generatePodcast(ctx context.Context, jobID, title, body string) (string, int, error) {
	tpl, err := s.templates.FindByKey(model.TplLessonPodcast)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", 0, fmt.Errorf("%w: %s", util.ErrTemplateNotFound, model.TplLessonPodcast)
		}
		return "", 0, err
	}

	prompt := util.RenderTemplate(tpl.Template, map[string]interface{}{
		"title":     title,
		"content":   body,
		"min_words": s.cfg.PodcastMinWords,
	})

	text, err := s.ai.Complete(ctx, CompletionRequest{
		Prompt:  prompt,
		OnRetry: s.retryObserver(jobID, "lesson_podcast"),
	})
	if err != nil {
		return "", 0, err
	}

	return s.ensureMinimumWords(ctx, jobID, text, title, s.cfg.PodcastMinWords)
}

// ensureMinimumWords 字数闸门：不够下限就发扩写指令，最多扩写两轮，
// 达到下限即停；仍不够则接受现状，超长不截断
func (s *GenerationService) ensureMinimumWords(ctx context.Context, jobID, text, title string, minWords int) (string, int, error) {
	count := util.CountWords(text)
	if count >= minWords {
		return text, count, nil
	}

	tpl, err := s.templates.FindByKey(model.TplExpandContent)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", 0, fmt.Errorf("%w: %s", util.ErrTemplateNotFound, model.TplExpandContent)
		}
		return "", 0, err
	}

	for attempt := 0; attempt < s.cfg.ExpansionAttempts && count < minWords; attempt++ {
		prompt := util.RenderTemplate(tpl.Template, map[string]interface{}{
			"title":         title,
			"current_words": count,
			"min_words":     minWords,
			"text":          text,
		})

		expanded, err := s.ai.Complete(ctx, CompletionRequest{
			Prompt:  prompt,
			OnRetry: s.retryObserver(jobID, "expand"),
		})
		if err != nil {
			return "", 0, err
		}

		text = expanded
		count = util.CountWords(text)
		logger.Log.Info("content expanded",
			zap.String("title", title),
			zap.Int("attempt", attempt+1),
			zap.Int("words", count),
			zap.Int("minWords", minWords))
	}

	if count < minWords {
		logger.Log.Warn("content below word target after expansion",
			zap.String("title", title), zap.Int("words", count), zap.Int("minWords", minWords))
	}
	return text, count, nil
}

// failLesson 记录课时失败：状态置 failed、重试计数加一、保留错误文本，
// 然后带分类信息推事件。返回原始错误供上层日志
func (s *GenerationService) failLesson(jobID string, lesson *model.Lesson, cause error) error {
	cls := Classify(cause)
	lesson.Status = model.StatusFailed
	lesson.RetryCount++
	lesson.LastError = cause.Error()
	if err := s.lessons.Update(lesson); err != nil {
		logger.Log.Error("persist lesson failure state failed",
			zap.Uint("lessonId", lesson.ID), zap.Error(err))
	}

	s.events.Publish(jobID, model.GenerationEvent{
		Type: model.EventLessonError,
		Data: map[string]interface{}{
			"lessonId":   lesson.ID,
			"number":     lesson.Number,
			"error":      cause.Error(),
			"kind":       string(cls.Kind),
			"retryable":  cls.Retryable,
			"retryCount": lesson.RetryCount,
		},
	})
	return cause
}

// retryObserver 把完成服务的重试过程转成进度事件
func (s *GenerationService) retryObserver(jobID, step string) RetryObserver {
	return func(attempt int, err error, delay time.Duration) {
		s.events.Publish(jobID, model.GenerationEvent{
			Type: model.EventStatus,
			Data: map[string]interface{}{
				"step":    step,
				"retry":   attempt,
				"delayMs": delay.Milliseconds(),
				"error":   err.Error(),
			},
		})
	}
}

// ModuleStatus 组合状态视图：status 查询与 SSE 首帧共用
func (s *GenerationService) ModuleStatus(moduleID uint) (*model.ModuleStatusView, error) {
	module, err := s.modules.FindByIDWithLessons(moduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrModuleNotFound
		}
		return nil, err
	}

	view := &model.ModuleStatusView{
		ModuleID:     module.ID,
		Status:       module.Status,
		TotalLessons: len(module.Lessons),
		LastError:    module.LastError,
		Running:      s.registry.IsRunning(ModuleJobID(moduleID)),
	}

	var current *model.Lesson
	for i := range module.Lessons {
		l := &module.Lessons[i]
		switch l.Status {
		case model.StatusCompleted:
			view.Completed++
		case model.StatusFailed:
			view.Failed++
		case model.StatusGenerating:
			if current == nil {
				current = l
			}
		}
	}
	if current != nil {
		view.CurrentLesson = &model.LessonBrief{
			ID: current.ID, Number: current.Number, Title: current.Title, Status: current.Status,
		}
	}

	// 阶段由当前活跃课时推断：有正文产物说明正在写播客稿
	switch {
	case module.Status == model.StatusCompleted:
		view.Phase = model.PhaseComplete
	case len(module.Lessons) == 0:
		view.Phase = model.PhaseBreakdown
	case current != nil && current.ContentPath != "":
		view.Phase = model.PhasePodcast
	default:
		view.Phase = model.PhaseContent
	}

	return view, nil
}

// StartStandaloneGeneration 启动独立课时的后台生成
func (s *GenerationService) StartStandaloneGeneration(lessonID uint) error {
	lesson, err := s.standalone.FindByID(lessonID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrLessonNotFound
		}
		return err
	}

	jobID := StandaloneJobID(lessonID)
	if s.registry.IsRunning(jobID) {
		return util.ErrGenerationInProgress
	}
	if lesson.Status == model.StatusCompleted {
		return util.ErrAlreadyCompleted
	}
	if lesson.Status == model.StatusFailed && lesson.RetryCount >= s.cfg.RetryCeiling {
		return util.ErrRetryCeiling
	}

	if !s.registry.Go(jobID, func() { s.runStandaloneJob(lessonID) }) {
		return util.ErrGenerationInProgress
	}
	return nil
}

func (s *GenerationService) runStandaloneJob(lessonID uint) {
	ctx := context.Background()
	jobID := StandaloneJobID(lessonID)

	lesson, err := s.standalone.FindByID(lessonID)
	if err != nil {
		logger.Log.Error("standalone job: load lesson failed",
			zap.Uint("lessonId", lessonID), zap.Error(err))
		return
	}

	fail := func(cause error) {
		cls := Classify(cause)
		lesson.Status = model.StatusFailed
		lesson.RetryCount++
		lesson.LastError = cause.Error()
		if err := s.standalone.Update(lesson); err != nil {
			logger.Log.Error("persist standalone failure state failed",
				zap.Uint("lessonId", lessonID), zap.Error(err))
		}
		s.events.Publish(jobID, model.GenerationEvent{
			Type: model.EventGenerationError,
			Data: map[string]interface{}{
				"lessonId":   lesson.ID,
				"error":      cause.Error(),
				"kind":       string(cls.Kind),
				"retryable":  cls.Retryable,
				"retryCount": lesson.RetryCount,
			},
		})
	}

	lesson.Status = model.StatusGenerating
	lesson.LastError = ""
	if err := s.standalone.Update(lesson); err != nil {
		logger.Log.Error("standalone job: update status failed",
			zap.Uint("lessonId", lessonID), zap.Error(err))
		return
	}
	s.events.Publish(jobID, model.GenerationEvent{
		Type: model.EventLessonStart,
		Data: model.LessonBrief{ID: lesson.ID, Number: 1, Title: lesson.Title, Status: model.StatusGenerating},
	})

	body, bodyWords, err := s.generateBody(ctx, jobID, lesson.Title, 1, lesson.Title, lesson.Description)
	if err != nil {
		fail(err)
		return
	}
	contentPath, err := s.storage.SaveArtifact(
		fmt.Sprintf("standalone/%s/01.md", lesson.Slug), body)
	if err != nil {
		fail(err)
		return
	}
	lesson.ContentPath = contentPath
	lesson.ContentWordCount = bodyWords
	if err := s.standalone.Update(lesson); err != nil {
		logger.Log.Error("standalone job: persist content failed",
			zap.Uint("lessonId", lessonID), zap.Error(err))
		return
	}
	s.events.Publish(jobID, model.GenerationEvent{
		Type: model.EventLessonContentComplete,
		Data: map[string]interface{}{
			"lessonId":  lesson.ID,
			"wordCount": bodyWords,
			"path":      contentPath,
		},
	})

	script, scriptWords, err := s.generatePodcast(ctx, jobID, lesson.Title, body)
	if err != nil {
		fail(err)
		return
	}
	podcastPath, err := s.storage.SaveArtifact(
		fmt.Sprintf("standalone/%s/01_podcast.md", lesson.Slug), script)
	if err != nil {
		fail(err)
		return
	}
	lesson.PodcastPath = podcastPath
	lesson.PodcastWordCount = scriptWords
	lesson.Status = model.StatusCompleted
	if err := s.standalone.Update(lesson); err != nil {
		logger.Log.Error("standalone job: persist podcast failed",
			zap.Uint("lessonId", lessonID), zap.Error(err))
		return
	}
	s.events.Publish(jobID, model.GenerationEvent{
		Type: model.EventLessonPodcastComplete,
		Data: map[string]interface{}{
			"lessonId":  lesson.ID,
			"wordCount": scriptWords,
			"path":      podcastPath,
		},
	})
	s.events.Publish(jobID, model.GenerationEvent{
		Type: model.EventGenerationComplete,
		Data: map[string]interface{}{"lessonId": lesson.ID},
	})
}

// StandaloneStatus 独立课时的状态视图
func (s *GenerationService) StandaloneStatus(lessonID uint) (*model.StandaloneStatusView, error) {
	lesson, err := s.standalone.FindByID(lessonID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrLessonNotFound
		}
		return nil, err
	}

	view := &model.StandaloneStatusView{
		LessonID:  lesson.ID,
		Status:    lesson.Status,
		LastError: lesson.LastError,
		Running:   s.registry.IsRunning(StandaloneJobID(lessonID)),
	}
	switch {
	case lesson.Status == model.StatusCompleted:
		view.Phase = model.PhaseComplete
	case lesson.ContentPath != "":
		view.Phase = model.PhasePodcast
	default:
		view.Phase = model.PhaseContent
	}
	return view, nil
}
