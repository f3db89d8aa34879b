package controller

import (
	"courseforge_backend/internal/service"
	"courseforge_backend/internal/util"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ModuleController struct {
	ModuleService     *service.ModuleService
	GenerationService *service.GenerationService
	Hub               *service.GenerationHub
}

func NewModuleController(moduleService *service.ModuleService, generationService *service.GenerationService, hub *service.GenerationHub) *ModuleController {
	return &ModuleController{
		ModuleService:     moduleService,
		GenerationService: generationService,
		Hub:               hub,
	}
}

func parseID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func pageParams(ctx *gin.Context) (int, int) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	return page, limit
}

// respondGenerationError 把生成相关的业务错误映射到 HTTP 状态码
func respondGenerationError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrModuleNotFound), errors.Is(err, util.ErrLessonNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrGenerationInProgress):
		util.Conflict(ctx, "generation already in progress")
	case errors.Is(err, util.ErrAlreadyCompleted):
		util.Conflict(ctx, "generation already completed")
	case errors.Is(err, util.ErrNothingToRetry):
		util.Conflict(ctx, "no retryable lessons")
	case errors.Is(err, util.ErrRetryCeiling):
		util.Conflict(ctx, "retry ceiling reached")
	default:
		util.LogInternalError(ctx, err)
	}
}

// swagger:model CreateModuleRequest
type CreateModuleRequest struct {
	Title    string `json:"title" binding:"required,min=3,max=255"`
	Generate bool   `json:"generate"` // 创建后立即启动后台生成
}

// CreateModule godoc
// @Summary 创建课程模块
// @Description 按主题创建模块，可选地立即启动后台生成
// @Tags 模块
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body CreateModuleRequest true "模块主题"
// @Success 201 {object} util.Response{data=model.Module} "创建成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 409 {object} util.Response "同名模块已存在"
// @Router /api/modules [post]
func (c *ModuleController) CreateModule(ctx *gin.Context) {
	var req CreateModuleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	module, err := c.ModuleService.Create(req.Title)
	if err != nil {
		if errors.Is(err, util.ErrSlugTaken) {
			util.Conflict(ctx, "a module with this title already exists")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	if req.Generate {
		if err := c.GenerationService.StartModuleGeneration(module.ID); err != nil {
			respondGenerationError(ctx, err)
			return
		}
	}

	util.Created(ctx, gin.H{
		"module": module,
		"jobId":  service.ModuleJobID(module.ID),
	})
}

// ListModules godoc
// @Summary 模块列表
// @Tags 模块
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/modules [get]
func (c *ModuleController) ListModules(ctx *gin.Context) {
	page, limit := pageParams(ctx)
	modules, total, err := c.ModuleService.List(page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  modules,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetModule godoc
// @Summary 模块详情（含课时列表）
// @Tags 模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "模块ID"
// @Success 200 {object} util.Response{data=model.Module}
// @Failure 404 {object} util.Response "模块不存在"
// @Router /api/modules/{id} [get]
func (c *ModuleController) GetModule(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	module, err := c.ModuleService.Get(id)
	if err != nil {
		respondGenerationError(ctx, err)
		return
	}
	util.Success(ctx, module)
}

// DeleteModule godoc
// @Summary 删除模块
// @Description 删除模块及其课时与生成产物，并关闭进度流
// @Tags 模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "模块ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response "模块不存在"
// @Router /api/modules/{id} [delete]
func (c *ModuleController) DeleteModule(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	if err := c.ModuleService.Delete(id); err != nil {
		respondGenerationError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": id})
}

// GenerateModule godoc
// @Summary 启动模块生成
// @Description 后台执行主题拆解与全部课时生成，立即返回 jobId
// @Tags 生成
// @Produce json
// @Security BearerAuth
// @Param id path int true "模块ID"
// @Success 202 {object} util.Response{data=object} "任务已接受"
// @Failure 404 {object} util.Response "模块不存在"
// @Failure 409 {object} util.Response "已有任务在执行或已完成"
// @Router /api/modules/{id}/generate [post]
func (c *ModuleController) GenerateModule(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	if err := c.GenerationService.StartModuleGeneration(id); err != nil {
		respondGenerationError(ctx, err)
		return
	}

	ctx.JSON(202, util.Response{Code: 202, Message: "accepted", Data: gin.H{"jobId": service.ModuleJobID(id)}})
}

// RetryModule godoc
// @Summary 重试失败课时
// @Description 重新生成失败或未生成的课时，已完成与达重试上限的课时不受影响
// @Tags 生成
// @Produce json
// @Security BearerAuth
// @Param id path int true "模块ID"
// @Success 202 {object} util.Response{data=object} "任务已接受"
// @Failure 404 {object} util.Response "模块不存在"
// @Failure 409 {object} util.Response "无可重试课时"
// @Router /api/modules/{id}/retry [post]
func (c *ModuleController) RetryModule(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	queued, err := c.GenerationService.RetryModule(id)
	if err != nil {
		respondGenerationError(ctx, err)
		return
	}

	ctx.JSON(202, util.Response{Code: 202, Message: "accepted", Data: gin.H{
		"jobId":  service.ModuleJobID(id),
		"queued": queued,
	}})
}

// ModuleStatus godoc
// @Summary 模块生成状态
// @Description 组合状态视图：模块状态、阶段、各课时进度
// @Tags 生成
// @Produce json
// @Security BearerAuth
// @Param id path int true "模块ID"
// @Success 200 {object} util.Response{data=model.ModuleStatusView}
// @Failure 404 {object} util.Response "模块不存在"
// @Router /api/modules/{id}/status [get]
func (c *ModuleController) ModuleStatus(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	view, err := c.GenerationService.ModuleStatus(id)
	if err != nil {
		respondGenerationError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// StreamModule godoc
// @Summary 模块生成进度流（SSE）
// @Description 首帧为当前状态快照，之后按事件推送，空闲期发注释保活
// @Tags 生成
// @Produce text/event-stream
// @Security BearerAuth
// @Param id path int true "模块ID"
// @Failure 404 {object} util.Response "模块不存在"
// @Router /api/modules/{id}/stream [get]
func (c *ModuleController) StreamModule(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	view, err := c.GenerationService.ModuleStatus(id)
	if err != nil {
		respondGenerationError(ctx, err)
		return
	}

	c.Hub.ServeSSE(ctx, service.ModuleJobID(id), view)
}

// ListLessons godoc
// @Summary 模块课时列表
// @Tags 模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "模块ID"
// @Success 200 {object} util.Response{data=[]model.Lesson}
// @Failure 404 {object} util.Response "模块不存在"
// @Router /api/modules/{id}/lessons [get]
func (c *ModuleController) ListLessons(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	module, err := c.ModuleService.Get(id)
	if err != nil {
		respondGenerationError(ctx, err)
		return
	}
	util.Success(ctx, module.Lessons)
}

// GetLesson godoc
// @Summary 课时详情
// @Tags 模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "模块ID"
// @Param lessonId path int true "课时ID"
// @Success 200 {object} util.Response{data=model.Lesson}
// @Failure 404 {object} util.Response "课时不存在"
// @Router /api/modules/{id}/lessons/{lessonId} [get]
func (c *ModuleController) GetLesson(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	lessonID, ok := parseID(ctx, "lessonId")
	if !ok {
		return
	}

	lesson, err := c.ModuleService.GetLesson(id, lessonID)
	if err != nil {
		respondGenerationError(ctx, err)
		return
	}
	util.Success(ctx, lesson)
}

// GetLessonContent godoc
// @Summary 课时正文与播客稿
// @Description 返回已生成的 markdown 正文与播客讲稿
// @Tags 模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "模块ID"
// @Param lessonId path int true "课时ID"
// @Success 200 {object} util.Response{data=object}
// @Failure 404 {object} util.Response "课时不存在"
// @Router /api/modules/{id}/lessons/{lessonId}/content [get]
func (c *ModuleController) GetLessonContent(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	lessonID, ok := parseID(ctx, "lessonId")
	if !ok {
		return
	}

	content, podcast, err := c.ModuleService.LessonContent(id, lessonID)
	if err != nil {
		respondGenerationError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"content": content,
		"podcast": podcast,
	})
}
