package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mcpchat/mcpchat/server/model"
)

// PromptHandler 系统提示词的管理接口
type PromptHandler struct {
	DB     *gorm.DB
	UserID uint
}

type promptRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// List GET /api/prompts
func (h *PromptHandler) List(c *gin.Context) {
	prompts, err := model.ListSystemPrompts(h.DB, h.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, prompts)
}

// Create POST /api/prompts
func (h *PromptHandler) Create(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prompt := model.SystemPrompt{
		Title:   req.Title,
		Content: req.Content,
		UserID:  h.UserID,
	}
	if err := model.CreateSystemPrompt(h.DB, &prompt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, prompt)
}

// Update PUT /api/prompts/:id
func (h *PromptHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prompt, err := model.UpdateSystemPrompt(h.DB, id, req.Title, req.Content)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, prompt)
}

// SetDefault PUT /api/prompts/:id/default
// 默认提示词每用户唯一，旧默认在同一事务里被取消
func (h *PromptHandler) SetDefault(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := model.SetDefaultSystemPrompt(h.DB, h.UserID, id); err != nil {
		respondStoreError(c, err)
		return
	}
	prompt, err := model.GetSystemPrompt(h.DB, id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, prompt)
}

// Delete DELETE /api/prompts/:id
func (h *PromptHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := model.DeleteSystemPrompt(h.DB, id); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
