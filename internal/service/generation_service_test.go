package service

import (
	"context"
	"courseforge_backend/internal/config"
	"courseforge_backend/internal/model"
	"courseforge_backend/internal/repository"
	"courseforge_backend/internal/util"
	"courseforge_backend/pkg/database"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	database.SeedPromptTemplates(db)
	return db
}

// fakeCompleter 按提示词内容分派到不同的 handler
type fakeCompleter struct {
	mu        sync.Mutex
	breakdown func() (string, error)
	content   func(prompt string) (string, error)
	podcast   func(prompt string) (string, error)
	expand    func(prompt string) (string, error)

	contentCalls []string
	expandCalls  int
}

func (f *fakeCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.Contains(req.Prompt, "curriculum designer"):
		return f.breakdown()
	case strings.Contains(req.Prompt, "Keep every existing sentence"):
		f.expandCalls++
		return f.expand(req.Prompt)
	case strings.Contains(req.Prompt, "podcast script"):
		return f.podcast(req.Prompt)
	default:
		f.contentCalls = append(f.contentCalls, req.Prompt)
		return f.content(req.Prompt)
	}
}

func (f *fakeCompleter) contentCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.contentCalls)
}

func (f *fakeCompleter) expandCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expandCalls
}

// eventRecorder 收集发布的事件供断言
type eventRecorder struct {
	mu     sync.Mutex
	events []model.GenerationEvent
}

func (r *eventRecorder) Publish(jobID string, event model.GenerationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.JobID = jobID
	r.events = append(r.events, event)
}

func (r *eventRecorder) typesSeen() []model.GenerationEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]model.GenerationEventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

func (r *eventRecorder) has(eventType model.GenerationEventType) bool {
	for _, tp := range r.typesSeen() {
		if tp == eventType {
			return true
		}
	}
	return false
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

type testPipeline struct {
	svc      *GenerationService
	fake     *fakeCompleter
	events   *eventRecorder
	modules  *repository.ModuleRepository
	lessons  *repository.LessonRepository
	solo     *repository.StandaloneLessonRepository
	storage  *StorageService
	registry *JobRegistry
}

func newTestPipeline(t *testing.T, db *gorm.DB) *testPipeline {
	t.Helper()

	fake := &fakeCompleter{
		breakdown: func() (string, error) {
			return `{"description":"a course","lessons":[
				{"number":1,"title":"First","description":"d1"},
				{"number":2,"title":"Second","description":"d2"},
				{"number":3,"title":"Third","description":"d3"}]}`, nil
		},
		content: func(string) (string, error) { return words(20), nil },
		podcast: func(string) (string, error) { return words(10), nil },
		expand:  func(string) (string, error) { return words(20), nil },
	}
	events := &eventRecorder{}
	storage := NewStorageService(&config.StorageConfig{Type: "local", ContentRoot: t.TempDir()})
	registry := NewJobRegistry()

	modules := repository.NewModuleRepository(db)
	lessons := repository.NewLessonRepository(db)
	solo := repository.NewStandaloneLessonRepository(db)
	templates := repository.NewPromptTemplateRepository(db)

	svc := NewGenerationService(modules, lessons, solo, templates, fake, storage, registry, events,
		config.GenerationConfig{
			LessonMinWords:    10,
			LessonMaxWords:    30,
			PodcastMinWords:   5,
			PodcastMaxWords:   15,
			ExpansionAttempts: 2,
			RetryCeiling:      3,
		})

	return &testPipeline{
		svc: svc, fake: fake, events: events,
		modules: modules, lessons: lessons, solo: solo,
		storage: storage, registry: registry,
	}
}

func seedModule(t *testing.T, p *testPipeline, title string) *model.Module {
	t.Helper()
	module := &model.Module{Title: title, Slug: util.Slugify(title), Status: model.StatusPending}
	require.NoError(t, p.modules.Create(module))
	return module
}

func TestBreakdownCreatesPendingLessons(t *testing.T) {
	p := newTestPipeline(t, newTestDB(t))
	module := seedModule(t, p, "Go Fundamentals")

	err := p.svc.breakdown(context.Background(), ModuleJobID(module.ID), module)
	require.NoError(t, err)

	reloaded, err := p.modules.FindByIDWithLessons(module.ID)
	require.NoError(t, err)
	assert.Equal(t, "a course", reloaded.Description)
	assert.Equal(t, 3, reloaded.LessonCount)
	require.Len(t, reloaded.Lessons, 3)
	for i, lesson := range reloaded.Lessons {
		assert.Equal(t, i+1, lesson.Number)
		assert.Equal(t, model.StatusPending, lesson.Status)
	}

	assert.True(t, p.events.has(model.EventBreakdownStart))
	assert.True(t, p.events.has(model.EventBreakdownComplete))
}

func TestBreakdownToleratesMarkdownFences(t *testing.T) {
	p := newTestPipeline(t, newTestDB(t))
	p.fake.breakdown = func() (string, error) {
		return "```json\n{\"description\":\"fenced\",\"lessons\":[{\"number\":1,\"title\":\"Only\",\"description\":\"d\"}]}\n```", nil
	}
	module := seedModule(t, p, "Fenced Topic")

	require.NoError(t, p.svc.breakdown(context.Background(), ModuleJobID(module.ID), module))

	reloaded, _ := p.modules.FindByIDWithLessons(module.ID)
	assert.Equal(t, "fenced", reloaded.Description)
	assert.Len(t, reloaded.Lessons, 1)
}

func TestParseBreakdown(t *testing.T) {
	t.Run("missing lessons array rejected", func(t *testing.T) {
		_, err := parseBreakdown(`{"description":"no lessons here"}`)
		var bad *ErrBadResponse
		assert.ErrorAs(t, err, &bad)
	})

	t.Run("invalid json rejected", func(t *testing.T) {
		_, err := parseBreakdown("not json at all")
		var bad *ErrBadResponse
		assert.ErrorAs(t, err, &bad)
	})

	t.Run("duplicate numbers renumbered", func(t *testing.T) {
		plan, err := parseBreakdown(`{"lessons":[
			{"number":1,"title":"a"},{"number":1,"title":"b"},{"number":0,"title":"c"}]}`)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, []int{plan.Lessons[0].Number, plan.Lessons[1].Number, plan.Lessons[2].Number})
	})

	t.Run("out of order numbers sorted", func(t *testing.T) {
		plan, err := parseBreakdown(`{"lessons":[
			{"number":3,"title":"c"},{"number":1,"title":"a"},{"number":2,"title":"b"}]}`)
		require.NoError(t, err)
		assert.Equal(t, "a", plan.Lessons[0].Title)
		assert.Equal(t, "c", plan.Lessons[2].Title)
	})
}

func TestFullModuleGeneration(t *testing.T) {
	p := newTestPipeline(t, newTestDB(t))
	module := seedModule(t, p, "Complete Course")

	p.svc.runModuleJob(module.ID)

	reloaded, err := p.modules.FindByIDWithLessons(module.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, reloaded.Status)
	assert.Empty(t, reloaded.LastError)
	require.Len(t, reloaded.Lessons, 3)

	for _, lesson := range reloaded.Lessons {
		assert.Equal(t, model.StatusCompleted, lesson.Status)
		assert.Equal(t, fmt.Sprintf("complete-course/%02d.md", lesson.Number), lesson.ContentPath)
		assert.Equal(t, fmt.Sprintf("complete-course/%02d_podcast.md", lesson.Number), lesson.PodcastPath)
		assert.Equal(t, 20, lesson.ContentWordCount)
		assert.Equal(t, 10, lesson.PodcastWordCount)

		content, err := p.storage.ReadArtifact(lesson.ContentPath)
		require.NoError(t, err)
		assert.Equal(t, 20, util.CountWords(content))
	}

	assert.True(t, p.events.has(model.EventGenerationComplete))
	assert.False(t, p.events.has(model.EventGenerationError))
}

func TestExpansionTriggeredBelowMinimum(t *testing.T) {
	p := newTestPipeline(t, newTestDB(t))
	p.fake.content = func(string) (string, error) { return words(5), nil }
	p.fake.expand = func(string) (string, error) { return words(12), nil }
	module := seedModule(t, p, "Short Content")

	p.svc.runModuleJob(module.ID)

	// 正文 3 次各扩写 1 轮即达标，播客稿 10 词本就达标
	assert.Equal(t, 3, p.fake.expandCallCount())

	reloaded, _ := p.modules.FindByIDWithLessons(module.ID)
	assert.Equal(t, model.StatusCompleted, reloaded.Status)
	for _, lesson := range reloaded.Lessons {
		assert.Equal(t, 12, lesson.ContentWordCount)
	}
}

func TestExpansionSkippedWhenInBand(t *testing.T) {
	p := newTestPipeline(t, newTestDB(t))
	module := seedModule(t, p, "In Band")

	p.svc.runModuleJob(module.ID)

	assert.Equal(t, 0, p.fake.expandCallCount())
}

func TestExpansionAcceptsShortAfterBudget(t *testing.T) {
	p := newTestPipeline(t, newTestDB(t))
	p.fake.breakdown = func() (string, error) {
		return `{"description":"d","lessons":[{"number":1,"title":"Only","description":"d"},
			{"number":2,"title":"Second","description":"d"},
			{"number":3,"title":"Third","description":"d"}]}`, nil
	}
	p.fake.content = func(string) (string, error) { return words(4), nil }
	p.fake.expand = func(string) (string, error) { return words(6), nil }
	module := seedModule(t, p, "Stubbornly Short")

	p.svc.runModuleJob(module.ID)

	// 每课时正文恰好扩写 2 轮后接受现状
	assert.Equal(t, 6, p.fake.expandCallCount())

	reloaded, _ := p.modules.FindByIDWithLessons(module.ID)
	assert.Equal(t, model.StatusCompleted, reloaded.Status)
	for _, lesson := range reloaded.Lessons {
		assert.Equal(t, model.StatusCompleted, lesson.Status)
		assert.Equal(t, 6, lesson.ContentWordCount)
	}
}

func seedModuleWithLessons(t *testing.T, p *testPipeline, title string, count int) *model.Module {
	t.Helper()
	module := seedModule(t, p, title)
	lessons := make([]model.Lesson, 0, count)
	for i := 1; i <= count; i++ {
		lessons = append(lessons, model.Lesson{
			ModuleID: module.ID,
			Number:   i,
			Title:    fmt.Sprintf("Lesson %d", i),
			Status:   model.StatusPending,
		})
	}
	require.NoError(t, p.lessons.CreateBatch(lessons))
	module.LessonCount = count
	require.NoError(t, p.modules.Update(module))
	return module
}

func TestPartialFailurePreservesCompletedLessons(t *testing.T) {
	p := newTestPipeline(t, newTestDB(t))
	module := seedModuleWithLessons(t, p, "Partial Failure", 5)

	// 第 3 课正文永远失败，其余照常
	p.fake.content = func(prompt string) (string, error) {
		if strings.Contains(prompt, "Lesson 3:") {
			return "", &ErrBadResponse{Reason: "model refused"}
		}
		return words(20), nil
	}

	p.svc.runModuleJob(module.ID)

	reloaded, err := p.modules.FindByIDWithLessons(module.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, reloaded.Status)
	assert.Equal(t, "4/5 lessons completed", reloaded.LastError)

	for _, lesson := range reloaded.Lessons {
		if lesson.Number == 3 {
			assert.Equal(t, model.StatusFailed, lesson.Status)
			assert.Equal(t, 1, lesson.RetryCount)
			assert.Contains(t, lesson.LastError, "model refused")
		} else {
			assert.Equal(t, model.StatusCompleted, lesson.Status)
		}
	}

	assert.True(t, p.events.has(model.EventLessonError))
	assert.True(t, p.events.has(model.EventGenerationError))

	// 重试只重新生成第 3 课
	contentCallsBefore := p.fake.contentCallCount()
	p.fake.mu.Lock()
	p.fake.content = func(string) (string, error) { return words(20), nil }
	p.fake.mu.Unlock()

	retryable, err := p.lessons.ListRetryable(module.ID, 3)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, 3, retryable[0].Number)

	p.svc.runRetryJob(module.ID)

	assert.Equal(t, contentCallsBefore+1, p.fake.contentCallCount())

	reloaded, _ = p.modules.FindByIDWithLessons(module.ID)
	assert.Equal(t, model.StatusCompleted, reloaded.Status)
	assert.Empty(t, reloaded.LastError)
}

func TestRetryCeilingExcludesLesson(t *testing.T) {
	p := newTestPipeline(t, newTestDB(t))
	module := seedModuleWithLessons(t, p, "Ceiling Reached", 1)

	lesson := &model.Lesson{}
	require.NoError(t, p.lessons.DB.Where("module_id = ?", module.ID).First(lesson).Error)
	lesson.Status = model.StatusFailed
	lesson.RetryCount = 3
	lesson.LastError = "kept failing"
	require.NoError(t, p.lessons.Update(lesson))
	require.NoError(t, p.modules.UpdateStatus(module.ID, model.StatusFailed, "0/1 lessons completed"))

	_, err := p.svc.RetryModule(module.ID)
	assert.ErrorIs(t, err, util.ErrNothingToRetry)

	// 全量生成也跳过达上限的课时
	p.svc.runLessons(context.Background(), ModuleJobID(module.ID), module, []model.Lesson{*lesson})
	assert.Equal(t, 0, p.fake.contentCallCount())
}

func TestStartModuleGenerationGuards(t *testing.T) {
	p := newTestPipeline(t, newTestDB(t))

	t.Run("unknown module", func(t *testing.T) {
		err := p.svc.StartModuleGeneration(9999)
		assert.ErrorIs(t, err, util.ErrModuleNotFound)
	})

	t.Run("already running", func(t *testing.T) {
		module := seedModule(t, p, "Running Module")
		require.True(t, p.registry.TryStart(ModuleJobID(module.ID)))
		defer p.registry.Finish(ModuleJobID(module.ID))

		err := p.svc.StartModuleGeneration(module.ID)
		assert.ErrorIs(t, err, util.ErrGenerationInProgress)
	})

	t.Run("already completed", func(t *testing.T) {
		module := seedModule(t, p, "Done Module")
		require.NoError(t, p.modules.UpdateStatus(module.ID, model.StatusCompleted, ""))

		err := p.svc.StartModuleGeneration(module.ID)
		assert.ErrorIs(t, err, util.ErrAlreadyCompleted)
	})
}

func TestBreakdownFailureMarksModule(t *testing.T) {
	p := newTestPipeline(t, newTestDB(t))
	p.fake.breakdown = func() (string, error) {
		return "", &apiError{StatusCode: 401, Body: "invalid key"}
	}
	module := seedModule(t, p, "Doomed Topic")

	p.svc.runModuleJob(module.ID)

	reloaded, _ := p.modules.FindByID(module.ID)
	assert.Equal(t, model.StatusFailed, reloaded.Status)
	assert.Contains(t, reloaded.LastError, "invalid key")
	assert.True(t, p.events.has(model.EventGenerationError))
}

func TestModuleStatusPhases(t *testing.T) {
	p := newTestPipeline(t, newTestDB(t))

	t.Run("no lessons means breakdown phase", func(t *testing.T) {
		module := seedModule(t, p, "Phase A")
		view, err := p.svc.ModuleStatus(module.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PhaseBreakdown, view.Phase)
		assert.False(t, view.Running)
	})

	t.Run("active lesson without body is content phase", func(t *testing.T) {
		module := seedModuleWithLessons(t, p, "Phase B", 2)
		lesson := &model.Lesson{}
		require.NoError(t, p.lessons.DB.Where("module_id = ? AND number = 1", module.ID).First(lesson).Error)
		lesson.Status = model.StatusGenerating
		require.NoError(t, p.lessons.Update(lesson))

		view, err := p.svc.ModuleStatus(module.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PhaseContent, view.Phase)
		require.NotNil(t, view.CurrentLesson)
		assert.Equal(t, 1, view.CurrentLesson.Number)
	})

	t.Run("active lesson with body is podcast phase", func(t *testing.T) {
		module := seedModuleWithLessons(t, p, "Phase C", 1)
		lesson := &model.Lesson{}
		require.NoError(t, p.lessons.DB.Where("module_id = ?", module.ID).First(lesson).Error)
		lesson.Status = model.StatusGenerating
		lesson.ContentPath = "phase-c/01.md"
		require.NoError(t, p.lessons.Update(lesson))

		view, err := p.svc.ModuleStatus(module.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PhasePodcast, view.Phase)
	})

	t.Run("completed module", func(t *testing.T) {
		module := seedModule(t, p, "Phase D")
		require.NoError(t, p.modules.UpdateStatus(module.ID, model.StatusCompleted, ""))
		view, err := p.svc.ModuleStatus(module.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PhaseComplete, view.Phase)
	})
}

func TestStandaloneGeneration(t *testing.T) {
	p := newTestPipeline(t, newTestDB(t))
	lesson := &model.StandaloneLesson{
		Title:  "Solo Lesson",
		Slug:   "solo-lesson",
		Status: model.StatusPending,
	}
	require.NoError(t, p.solo.Create(lesson))

	p.svc.runStandaloneJob(lesson.ID)

	reloaded, err := p.solo.FindByID(lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, reloaded.Status)
	assert.Equal(t, "standalone/solo-lesson/01.md", reloaded.ContentPath)
	assert.Equal(t, "standalone/solo-lesson/01_podcast.md", reloaded.PodcastPath)
	assert.Equal(t, 20, reloaded.ContentWordCount)
	assert.Equal(t, 10, reloaded.PodcastWordCount)

	view, err := p.svc.StandaloneStatus(lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseComplete, view.Phase)

	// 已完成的独立课时不能再次生成
	assert.ErrorIs(t, p.svc.StartStandaloneGeneration(lesson.ID), util.ErrAlreadyCompleted)
}

func TestStandaloneFailureAndCeiling(t *testing.T) {
	p := newTestPipeline(t, newTestDB(t))
	p.fake.content = func(string) (string, error) {
		return "", &apiError{StatusCode: 400, Body: "rejected"}
	}
	lesson := &model.StandaloneLesson{Title: "Failing Solo", Slug: "failing-solo", Status: model.StatusPending}
	require.NoError(t, p.solo.Create(lesson))

	p.svc.runStandaloneJob(lesson.ID)

	reloaded, _ := p.solo.FindByID(lesson.ID)
	assert.Equal(t, model.StatusFailed, reloaded.Status)
	assert.Equal(t, 1, reloaded.RetryCount)
	assert.Contains(t, reloaded.LastError, "rejected")

	reloaded.RetryCount = 3
	require.NoError(t, p.solo.Update(reloaded))
	assert.ErrorIs(t, p.svc.StartStandaloneGeneration(lesson.ID), util.ErrRetryCeiling)
}
