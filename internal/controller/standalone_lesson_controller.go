package controller

import (
	"courseforge_backend/internal/service"
	"courseforge_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type StandaloneLessonController struct {
	LessonService     *service.StandaloneLessonService
	GenerationService *service.GenerationService
	Hub               *service.GenerationHub
}

func NewStandaloneLessonController(lessonService *service.StandaloneLessonService, generationService *service.GenerationService, hub *service.GenerationHub) *StandaloneLessonController {
	return &StandaloneLessonController{
		LessonService:     lessonService,
		GenerationService: generationService,
		Hub:               hub,
	}
}

// swagger:model CreateStandaloneLessonRequest
type CreateStandaloneLessonRequest struct {
	Title       string `json:"title" binding:"required,min=3,max=255"`
	Description string `json:"description"`
	Generate    bool   `json:"generate"` // 创建后立即启动后台生成
}

// CreateLesson godoc
// @Summary 创建独立课时
// @Description 不挂在任何模块下的单课时，可选地立即启动生成
// @Tags 独立课时
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body CreateStandaloneLessonRequest true "课时标题"
// @Success 201 {object} util.Response{data=model.StandaloneLesson} "创建成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 409 {object} util.Response "同名课时已存在"
// @Router /api/standalone-lessons [post]
func (c *StandaloneLessonController) CreateLesson(ctx *gin.Context) {
	var req CreateStandaloneLessonRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	lesson, err := c.LessonService.Create(req.Title, req.Description)
	if err != nil {
		if errors.Is(err, util.ErrSlugTaken) {
			util.Conflict(ctx, "a lesson with this title already exists")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	if req.Generate {
		if err := c.GenerationService.StartStandaloneGeneration(lesson.ID); err != nil {
			respondGenerationError(ctx, err)
			return
		}
	}

	util.Created(ctx, gin.H{
		"lesson": lesson,
		"jobId":  service.StandaloneJobID(lesson.ID),
	})
}

// ListLessons godoc
// @Summary 独立课时列表
// @Tags 独立课时
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/standalone-lessons [get]
func (c *StandaloneLessonController) ListLessons(ctx *gin.Context) {
	page, limit := pageParams(ctx)
	lessons, total, err := c.LessonService.List(page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  lessons,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetLesson godoc
// @Summary 独立课时详情
// @Tags 独立课时
// @Produce json
// @Security BearerAuth
// @Param id path int true "课时ID"
// @Success 200 {object} util.Response{data=model.StandaloneLesson}
// @Failure 404 {object} util.Response "课时不存在"
// @Router /api/standalone-lessons/{id} [get]
func (c *StandaloneLessonController) GetLesson(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	lesson, err := c.LessonService.Get(id)
	if err != nil {
		respondGenerationError(ctx, err)
		return
	}
	util.Success(ctx, lesson)
}

// GetLessonContent godoc
// @Summary 独立课时正文与播客稿
// @Tags 独立课时
// @Produce json
// @Security BearerAuth
// @Param id path int true "课时ID"
// @Success 200 {object} util.Response{data=object}
// @Failure 404 {object} util.Response "课时不存在"
// @Router /api/standalone-lessons/{id}/content [get]
func (c *StandaloneLessonController) GetLessonContent(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	content, podcast, err := c.LessonService.Content(id)
	if err != nil {
		respondGenerationError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"content": content,
		"podcast": podcast,
	})
}

// GenerateLesson godoc
// @Summary 启动独立课时生成
// @Description 后台生成正文与播客稿，立即返回 jobId；失败后重复调用即为重试
// @Tags 生成
// @Produce json
// @Security BearerAuth
// @Param id path int true "课时ID"
// @Success 202 {object} util.Response{data=object} "任务已接受"
// @Failure 404 {object} util.Response "课时不存在"
// @Failure 409 {object} util.Response "已有任务在执行、已完成或达重试上限"
// @Router /api/standalone-lessons/{id}/generate [post]
func (c *StandaloneLessonController) GenerateLesson(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	if err := c.GenerationService.StartStandaloneGeneration(id); err != nil {
		respondGenerationError(ctx, err)
		return
	}

	ctx.JSON(202, util.Response{Code: 202, Message: "accepted", Data: gin.H{"jobId": service.StandaloneJobID(id)}})
}

// LessonStatus godoc
// @Summary 独立课时生成状态
// @Tags 生成
// @Produce json
// @Security BearerAuth
// @Param id path int true "课时ID"
// @Success 200 {object} util.Response{data=model.StandaloneStatusView}
// @Failure 404 {object} util.Response "课时不存在"
// @Router /api/standalone-lessons/{id}/status [get]
func (c *StandaloneLessonController) LessonStatus(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	view, err := c.GenerationService.StandaloneStatus(id)
	if err != nil {
		respondGenerationError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// StreamLesson godoc
// @Summary 独立课时生成进度流（SSE）
// @Tags 生成
// @Produce text/event-stream
// @Security BearerAuth
// @Param id path int true "课时ID"
// @Failure 404 {object} util.Response "课时不存在"
// @Router /api/standalone-lessons/{id}/stream [get]
func (c *StandaloneLessonController) StreamLesson(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	view, err := c.GenerationService.StandaloneStatus(id)
	if err != nil {
		respondGenerationError(ctx, err)
		return
	}

	c.Hub.ServeSSE(ctx, service.StandaloneJobID(id), view)
}

// DeleteLesson godoc
// @Summary 删除独立课时
// @Tags 独立课时
// @Produce json
// @Security BearerAuth
// @Param id path int true "课时ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response "课时不存在"
// @Router /api/standalone-lessons/{id} [delete]
func (c *StandaloneLessonController) DeleteLesson(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	if err := c.LessonService.Delete(id); err != nil {
		respondGenerationError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": id})
}
