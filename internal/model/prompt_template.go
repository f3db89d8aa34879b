package model

// PromptTemplate 提示词模板，占位符形如 {{name}}
type PromptTemplate struct {
	BaseModel
	Key         string `gorm:"size:100;uniqueIndex;not null" json:"key"`
	Template    string `gorm:"type:text;not null" json:"template"`
	Description string `gorm:"type:text" json:"description"`
}

func (PromptTemplate) TableName() string {
	return "prompt_templates"
}

// 内置模板 Key
const (
	TplModuleBreakdown = "module_breakdown"
	TplLessonContent   = "lesson_content"
	TplLessonPodcast   = "lesson_podcast"
	TplExpandContent   = "expand_content"
)
