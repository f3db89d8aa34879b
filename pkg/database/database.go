package database

import (
	"courseforge_backend/internal/config"
	"courseforge_backend/internal/model"
	"fmt"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	SeedPromptTemplates(db)

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Module{},
		&model.Lesson{},
		&model.StandaloneLesson{},
		&model.PromptTemplate{},
	)
}

// SeedPromptTemplates 启动时写入缺失的内置提示词模板，已存在的不覆盖
func SeedPromptTemplates(db *gorm.DB) {
	defaults := []model.PromptTemplate{
		{
			Key: model.TplModuleBreakdown,
			Template: "You are a curriculum designer. Break the topic \"{{topic}}\" into between 3 and 12 lessons " +
				"that build on each other. Respond with JSON only, in the shape " +
				"{\"description\": \"...\", \"lessons\": [{\"number\": 1, \"title\": \"...\", \"description\": \"...\"}]}.",
			Description: "将课程主题拆解为课时列表（JSON 模式）",
		},
		{
			Key: model.TplLessonContent,
			Template: "Write a complete lesson in markdown for the course \"{{topic}}\".\n" +
				"Lesson {{number}}: {{title}}\n{{description}}\n" +
				"Target length: at least {{min_words}} words. Use headings, examples and exercises.",
			Description: "生成课时正文",
		},
		{
			Key: model.TplLessonPodcast,
			Template: "Turn the following lesson into a conversational podcast script of at least {{min_words}} words, " +
				"spoken-style, no markdown headings.\nLesson title: {{title}}\n\nLesson content:\n{{content}}",
			Description: "根据课时正文生成播客讲稿",
		},
		{
			Key: model.TplExpandContent,
			Template: "The following text about \"{{title}}\" is {{current_words}} words, the target is {{min_words}}. " +
				"Keep every existing sentence verbatim and append further valuable material until the target is met.\n\n{{text}}",
			Description: "正文长度不足时的扩写指令",
		},
	}

	for _, tpl := range defaults {
		var count int64
		db.Model(&model.PromptTemplate{}).Where("`key` = ?", tpl.Key).Count(&count)
		if count == 0 {
			db.Create(&tpl)
		}
	}
}
