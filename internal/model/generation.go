package model

// GenerationEventType 生成进度事件类型
type GenerationEventType string

const (
	EventBreakdownStart        GenerationEventType = "breakdown_start"
	EventBreakdownComplete     GenerationEventType = "breakdown_complete"
	EventLessonStart           GenerationEventType = "lesson_start"
	EventLessonContentComplete GenerationEventType = "lesson_content_complete"
	EventLessonPodcastComplete GenerationEventType = "lesson_podcast_complete"
	EventLessonError           GenerationEventType = "lesson_error"
	EventGenerationComplete    GenerationEventType = "generation_complete"
	EventGenerationError       GenerationEventType = "generation_error"
	EventStatus                GenerationEventType = "status"
)

// GenerationEvent 推送给订阅端的进度通知，不落库
type GenerationEvent struct {
	Type  GenerationEventType `json:"type"`
	JobID string              `json:"jobId"`
	Data  interface{}         `json:"data,omitempty"`
}

// GenerationPhase 由当前活跃课时推断出的粗粒度阶段
type GenerationPhase string

const (
	PhaseBreakdown GenerationPhase = "breakdown"
	PhaseContent   GenerationPhase = "content"
	PhasePodcast   GenerationPhase = "podcast"
	PhaseComplete  GenerationPhase = "complete"
)

// LessonBrief 事件与状态视图里的课时摘要
type LessonBrief struct {
	ID     uint             `json:"id"`
	Number int              `json:"number"`
	Title  string           `json:"title"`
	Status GenerationStatus `json:"status"`
}

// ModuleStatusView 组合状态视图（status 查询与 SSE 首帧共用）
type ModuleStatusView struct {
	ModuleID      uint             `json:"moduleId"`
	Status        GenerationStatus `json:"status"`
	Phase         GenerationPhase  `json:"phase"`
	TotalLessons  int              `json:"totalLessons"`
	Completed     int              `json:"completed"`
	Failed        int              `json:"failed"`
	CurrentLesson *LessonBrief     `json:"currentLesson,omitempty"`
	LastError     string           `json:"lastError,omitempty"`
	Running       bool             `json:"running"`
}

// StandaloneStatusView 独立课时的状态视图
type StandaloneStatusView struct {
	LessonID  uint             `json:"lessonId"`
	Status    GenerationStatus `json:"status"`
	Phase     GenerationPhase  `json:"phase"`
	LastError string           `json:"lastError,omitempty"`
	Running   bool             `json:"running"`
}
