package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mcpchat/mcpchat/server/chat"
	"github.com/mcpchat/mcpchat/server/llm"
	"github.com/mcpchat/mcpchat/server/model"
)

const requestTimeout = 120 * time.Second

// ChatRequest 前端提交一个回合
type ChatRequest struct {
	ConversationID uint   `json:"conversation_id"`
	SystemPromptID *uint  `json:"system_prompt_id"`
	Message        string `json:"message"`
	UseTool        bool   `json:"use_tool"`
}

// ChatResponse 回合结果
type ChatResponse struct {
	Content        string                `json:"content"`
	ConversationID uint                  `json:"conversation_id"`
	ToolCall       *model.ToolCallRecord `json:"tool_call,omitempty"`
	ToolResult     map[string]any        `json:"tool_result,omitempty"`
	AvailableTools []string              `json:"available_tools,omitempty"`
}

// ChatHandler 处理 /api/chat 请求
type ChatHandler struct {
	Assembler *chat.Assembler
	UserID    uint
}

func (h *ChatHandler) Handle(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	resp, err := h.Assembler.Submit(ctx, chat.TurnRequest{
		UserID:         h.UserID,
		ConversationID: req.ConversationID,
		SystemPromptID: req.SystemPromptID,
		Message:        req.Message,
		UseTool:        req.UseTool,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			status = http.StatusBadRequest
		case errors.Is(err, gorm.ErrRecordNotFound):
			status = http.StatusNotFound
		case errors.Is(err, llm.ErrUnavailable):
			status = http.StatusBadGateway
		}
		log.Printf("[Chat] submit failed: %v", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		Content:        resp.Content,
		ConversationID: resp.ConversationID,
		ToolCall:       resp.ToolCall,
		ToolResult:     resp.ToolResult,
		AvailableTools: resp.AvailableTools,
	})
}
