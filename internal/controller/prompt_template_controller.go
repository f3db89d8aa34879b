package controller

import (
	"courseforge_backend/internal/service"
	"courseforge_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type PromptTemplateController struct {
	Service *service.PromptTemplateService
}

func NewPromptTemplateController(s *service.PromptTemplateService) *PromptTemplateController {
	return &PromptTemplateController{Service: s}
}

// ListTemplates godoc
// @Summary 提示词模板列表
// @Tags 提示词模板
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.PromptTemplate}
// @Router /api/prompt-templates [get]
func (c *PromptTemplateController) ListTemplates(ctx *gin.Context) {
	tpls, err := c.Service.List()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, tpls)
}

// GetTemplate godoc
// @Summary 提示词模板详情
// @Tags 提示词模板
// @Produce json
// @Security BearerAuth
// @Param id path int true "模板ID"
// @Success 200 {object} util.Response{data=model.PromptTemplate}
// @Failure 404 {object} util.Response "模板不存在"
// @Router /api/prompt-templates/{id} [get]
func (c *PromptTemplateController) GetTemplate(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	tpl, err := c.Service.Get(id)
	if err != nil {
		if errors.Is(err, util.ErrTemplateNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, tpl)
}

// swagger:model CreateTemplateRequest
type CreateTemplateRequest struct {
	Key         string `json:"key" binding:"required,min=3,max=100"`
	Template    string `json:"template" binding:"required"`
	Description string `json:"description"`
}

// CreateTemplate godoc
// @Summary 创建提示词模板
// @Tags 提示词模板
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body CreateTemplateRequest true "模板内容"
// @Success 201 {object} util.Response{data=model.PromptTemplate}
// @Failure 409 {object} util.Response "Key 已存在"
// @Router /api/prompt-templates [post]
func (c *PromptTemplateController) CreateTemplate(ctx *gin.Context) {
	var req CreateTemplateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	tpl, err := c.Service.Create(req.Key, req.Template, req.Description)
	if err != nil {
		if errors.Is(err, util.ErrSlugTaken) {
			util.Conflict(ctx, "template key already exists")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Created(ctx, tpl)
}

// swagger:model UpdateTemplateRequest
type UpdateTemplateRequest struct {
	Template    string `json:"template" binding:"required"`
	Description string `json:"description"`
}

// UpdateTemplate godoc
// @Summary 更新提示词模板
// @Description 只允许修改模板正文与描述，Key 不可变
// @Tags 提示词模板
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "模板ID"
// @Param body body UpdateTemplateRequest true "模板内容"
// @Success 200 {object} util.Response{data=model.PromptTemplate}
// @Failure 404 {object} util.Response "模板不存在"
// @Router /api/prompt-templates/{id} [put]
func (c *PromptTemplateController) UpdateTemplate(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req UpdateTemplateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	tpl, err := c.Service.Update(id, req.Template, req.Description)
	if err != nil {
		if errors.Is(err, util.ErrTemplateNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, tpl)
}

// DeleteTemplate godoc
// @Summary 删除提示词模板
// @Tags 提示词模板
// @Produce json
// @Security BearerAuth
// @Param id path int true "模板ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response "模板不存在"
// @Router /api/prompt-templates/{id} [delete]
func (c *PromptTemplateController) DeleteTemplate(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	if err := c.Service.Delete(id); err != nil {
		if errors.Is(err, util.ErrTemplateNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, gin.H{"deleted": id})
}
