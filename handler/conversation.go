package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mcpchat/mcpchat/server/model"
)

// ConversationHandler 会话及其消息的管理接口
type ConversationHandler struct {
	DB     *gorm.DB
	UserID uint
}

// List GET /api/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	convs, err := model.ListConversations(h.DB, h.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, convs)
}

// Get GET /api/conversations/:id
func (h *ConversationHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	conv, err := model.GetConversation(h.DB, id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

type updateConversationRequest struct {
	Title          *string `json:"title"`
	SystemPromptID *uint   `json:"system_prompt_id"`
	EnabledTools   *[]uint `json:"enabled_tools"`
}

// Update PUT /api/conversations/:id
func (h *ConversationHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req updateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fields := map[string]interface{}{}
	if req.Title != nil {
		fields["title"] = *req.Title
	}
	if req.SystemPromptID != nil {
		fields["system_prompt_id"] = *req.SystemPromptID
	}
	if req.EnabledTools != nil {
		fields["enabled_tools"] = *req.EnabledTools
	}
	if len(fields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	conv, err := model.UpdateConversation(h.DB, id, fields)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Delete DELETE /api/conversations/:id
// 级联删除会话内的全部消息
func (h *ConversationHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := model.DeleteConversation(h.DB, id); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// Messages GET /api/conversations/:id/messages
// 按插入顺序返回消息
func (h *ConversationHandler) Messages(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if _, err := model.GetConversation(h.DB, id); err != nil {
		respondStoreError(c, err)
		return
	}
	msgs, err := model.ListMessages(h.DB, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// parseID 解析路径参数 :id，非法时直接写 400
func parseID(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id: " + raw})
		return 0, false
	}
	return uint(id), true
}

// respondStoreError 存储层错误统一映射：未找到 404，其余 500
func respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
