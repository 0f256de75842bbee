package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mcpchat/mcpchat/server/model"
)

// ToolHandler 工具配置的管理接口
type ToolHandler struct {
	DB     *gorm.DB
	UserID uint
}

type createToolRequest struct {
	Name          string         `json:"name" binding:"required"`
	Description   string         `json:"description"`
	Icon          string         `json:"icon"`
	Configuration map[string]any `json:"configuration"`
}

type updateToolRequest struct {
	Name          *string         `json:"name"`
	Description   *string         `json:"description"`
	Icon          *string         `json:"icon"`
	Configuration *map[string]any `json:"configuration"`
}

// List GET /api/tools
func (h *ToolHandler) List(c *gin.Context) {
	tools, err := model.ListMcpTools(h.DB, h.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tools)
}

// Create POST /api/tools
// 新建的工具默认启用
func (h *ToolHandler) Create(c *gin.Context) {
	var req createToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tool := model.McpTool{
		Name:          req.Name,
		Description:   req.Description,
		Icon:          req.Icon,
		Configuration: req.Configuration,
		UserID:        h.UserID,
		IsEnabled:     true,
	}
	if err := model.CreateMcpTool(h.DB, &tool); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tool)
}

// Update PUT /api/tools/:id
func (h *ToolHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req updateToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fields := map[string]interface{}{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Icon != nil {
		fields["icon"] = *req.Icon
	}
	if req.Configuration != nil {
		fields["configuration"] = *req.Configuration
	}
	if len(fields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	tool, err := model.UpdateMcpTool(h.DB, id, fields)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool)
}

// Toggle PUT /api/tools/:id/toggle
// 翻转启用状态，返回更新后的工具
func (h *ToolHandler) Toggle(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	tool, err := model.ToggleMcpTool(h.DB, id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool)
}

// Delete DELETE /api/tools/:id
func (h *ToolHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := model.DeleteMcpTool(h.DB, id); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
