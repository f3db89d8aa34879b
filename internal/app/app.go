package app

import (
	"context"
	"courseforge_backend/internal/config"
	"courseforge_backend/internal/controller"
	"courseforge_backend/internal/middleware"
	"courseforge_backend/internal/repository"
	"courseforge_backend/internal/service"
	"courseforge_backend/pkg/database"
	"courseforge_backend/pkg/logger"
	"courseforge_backend/pkg/monitoring"
	"courseforge_backend/pkg/security"
	"courseforge_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user           *repository.UserRepository
	module         *repository.ModuleRepository
	lesson         *repository.LessonRepository
	standalone     *repository.StandaloneLessonRepository
	promptTemplate *repository.PromptTemplateRepository
}

type services struct {
	auth           *service.AuthService
	storage        *service.StorageService
	ai             *service.AIService
	registry       *service.JobRegistry
	hub            *service.GenerationHub
	generation     *service.GenerationService
	module         *service.ModuleService
	standalone     *service.StandaloneLessonService
	promptTemplate *service.PromptTemplateService
}

type controllers struct {
	auth           *controller.AuthController
	module         *controller.ModuleController
	standalone     *controller.StandaloneLessonController
	promptTemplate *controller.PromptTemplateController
	health         *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig 配置热更新回调入口
func (a *App) ApplyConfig(cfg *config.Config) {
	a.Config = cfg
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
	logger.Log.Info("config reloaded")
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:           repository.NewUserRepository(db),
		module:         repository.NewModuleRepository(db),
		lesson:         repository.NewLessonRepository(db),
		standalone:     repository.NewStandaloneLessonRepository(db),
		promptTemplate: repository.NewPromptTemplateRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(&cfg.Storage)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.ai = service.NewAIService(cfg.AI)
	s.registry = service.NewJobRegistry()

	s.hub = service.NewGenerationHub(rdb, cfg.Generation.KeepAliveSeconds)
	go s.hub.Run()

	s.generation = service.NewGenerationService(
		repos.module,
		repos.lesson,
		repos.standalone,
		repos.promptTemplate,
		s.ai,
		s.storage,
		s.registry,
		s.hub,
		cfg.Generation,
	)
	s.module = service.NewModuleService(repos.module, repos.lesson, s.storage, s.hub)
	s.standalone = service.NewStandaloneLessonService(repos.standalone, s.storage, s.hub)
	s.promptTemplate = service.NewPromptTemplateService(repos.promptTemplate)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:           controller.NewAuthController(s.auth),
		module:         controller.NewModuleController(s.module, s.generation, s.hub),
		standalone:     controller.NewStandaloneLessonController(s.standalone, s.generation, s.hub),
		promptTemplate: controller.NewPromptTemplateController(s.promptTemplate),
		health:         controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(middleware.RequestID())
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg.Server.Mode)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// redis 只承载多实例事件转发，单机部署允许缺席
		logger.Log.Warn("redis unavailable, progress events stay in-process", zap.Error(err))
		rdb = nil
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	if cfg.MigrateOnly {
		return app
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	gin.SetMode(ginMode(cfg.Server.Mode))
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("courseforge", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	return app
}

func ginMode(mode string) string {
	switch mode {
	case "release":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Log.Sync()
	log.Println("Server exiting")
}
