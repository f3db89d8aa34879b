package model

// GenerationStatus 模块与课时共用的生成状态机
type GenerationStatus string

const (
	StatusPending    GenerationStatus = "pending"
	StatusGenerating GenerationStatus = "generating"
	StatusCompleted  GenerationStatus = "completed"
	StatusFailed     GenerationStatus = "failed"
)

// Module 一个课程主题，拆解后拥有若干课时
type Module struct {
	BaseModel
	Title       string           `gorm:"size:255;not null" json:"title"`
	Slug        string           `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Description string           `gorm:"type:text" json:"description"`
	LessonCount int              `gorm:"default:0" json:"lessonCount"`
	Status      GenerationStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	LastError   string           `gorm:"type:text" json:"lastError,omitempty"`
	Lessons     []Lesson         `gorm:"foreignKey:ModuleID;constraint:OnDelete:CASCADE" json:"lessons,omitempty"`
}

func (Module) TableName() string {
	return "modules"
}

type Lesson struct {
	BaseModel
	ModuleID         uint             `gorm:"index;not null;uniqueIndex:idx_module_number,priority:1" json:"moduleId"`
	Number           int              `gorm:"not null;uniqueIndex:idx_module_number,priority:2" json:"number"`
	Title            string           `gorm:"size:255;not null" json:"title"`
	Description      string           `gorm:"type:text" json:"description"`
	ContentPath      string           `gorm:"size:512" json:"contentPath,omitempty"`
	PodcastPath      string           `gorm:"size:512" json:"podcastPath,omitempty"`
	ContentWordCount int              `gorm:"default:0" json:"contentWordCount"`
	PodcastWordCount int              `gorm:"default:0" json:"podcastWordCount"`
	Status           GenerationStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	RetryCount       int              `gorm:"default:0" json:"retryCount"`
	LastError        string           `gorm:"type:text" json:"lastError,omitempty"`
}

func (Lesson) TableName() string {
	return "lessons"
}

// StandaloneLesson 与 Lesson 同构，但不隶属于任何模块，由用户直接提交标题生成
type StandaloneLesson struct {
	BaseModel
	Title            string           `gorm:"size:255;not null" json:"title"`
	Slug             string           `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Description      string           `gorm:"type:text" json:"description"`
	ContentPath      string           `gorm:"size:512" json:"contentPath,omitempty"`
	PodcastPath      string           `gorm:"size:512" json:"podcastPath,omitempty"`
	ContentWordCount int              `gorm:"default:0" json:"contentWordCount"`
	PodcastWordCount int              `gorm:"default:0" json:"podcastWordCount"`
	Status           GenerationStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	RetryCount       int              `gorm:"default:0" json:"retryCount"`
	LastError        string           `gorm:"type:text" json:"lastError,omitempty"`
}

func (StandaloneLesson) TableName() string {
	return "standalone_lessons"
}
