package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mcpchat/mcpchat/server/model"
)

func TestPromptCRUD(t *testing.T) {
	env := setupAPI(t, nil)

	// 创建
	w := env.do(t, http.MethodPost, "/api/prompts", gin.H{"title": "新提示词", "content": "内容"})
	if w.Code != http.StatusOK {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}
	var created model.SystemPrompt
	decodeJSON(t, w, &created)
	if created.ID == 0 || created.IsDefault {
		t.Errorf("unexpected created prompt: %+v", created)
	}

	// 更新
	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/prompts/%d", created.ID), gin.H{"title": "改名", "content": "新内容"})
	if w.Code != http.StatusOK {
		t.Fatalf("update failed: %d", w.Code)
	}
	var updated model.SystemPrompt
	decodeJSON(t, w, &updated)
	if updated.Title != "改名" || updated.Content != "新内容" {
		t.Errorf("unexpected updated prompt: %+v", updated)
	}

	// 删除
	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/prompts/%d", created.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", w.Code)
	}
	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/prompts/%d", created.ID), gin.H{"title": "x", "content": "y"})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestPromptCreateValidation(t *testing.T) {
	env := setupAPI(t, nil)

	w := env.do(t, http.MethodPost, "/api/prompts", gin.H{"title": "只有标题"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing content, got %d", w.Code)
	}
}

func TestSetDefaultPromptMovesFlag(t *testing.T) {
	env := setupAPI(t, nil)

	w := env.do(t, http.MethodPost, "/api/prompts", gin.H{"title": "候选", "content": "c"})
	var created model.SystemPrompt
	decodeJSON(t, w, &created)

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/prompts/%d/default", created.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("set default failed: %d %s", w.Code, w.Body.String())
	}

	// 默认每用户唯一
	prompts, err := model.ListSystemPrompts(env.db, env.user.ID)
	if err != nil {
		t.Fatal(err)
	}
	defaults := 0
	for _, p := range prompts {
		if p.IsDefault {
			defaults++
			if p.ID != created.ID {
				t.Errorf("default moved to wrong prompt: %d", p.ID)
			}
		}
	}
	if defaults != 1 {
		t.Errorf("expected exactly one default prompt, got %d", defaults)
	}
}

func TestSetDefaultPromptNotFound(t *testing.T) {
	env := setupAPI(t, nil)

	w := env.do(t, http.MethodPut, "/api/prompts/9999/default", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestToolToggle(t *testing.T) {
	env := setupAPI(t, nil)

	all, _ := model.ListMcpTools(env.db, env.user.ID)
	target := all[0]
	if !target.IsEnabled {
		t.Fatal("seeded tool should start enabled")
	}

	w := env.do(t, http.MethodPut, fmt.Sprintf("/api/tools/%d/toggle", target.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("toggle failed: %d", w.Code)
	}
	var toggled model.McpTool
	decodeJSON(t, w, &toggled)
	if toggled.IsEnabled {
		t.Error("expected tool disabled after toggle")
	}

	// 再翻转回来
	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/tools/%d/toggle", target.ID), nil)
	decodeJSON(t, w, &toggled)
	if !toggled.IsEnabled {
		t.Error("expected tool re-enabled after second toggle")
	}
}

func TestToolCreateDefaultsEnabled(t *testing.T) {
	env := setupAPI(t, nil)

	w := env.do(t, http.MethodPost, "/api/tools", gin.H{
		"name":          "custom_tool",
		"description":   "自定义工具",
		"configuration": gin.H{"endpoint": "https://example.com"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}
	var created model.McpTool
	decodeJSON(t, w, &created)
	if !created.IsEnabled {
		t.Error("new tool should be enabled by default")
	}
	if created.Configuration["endpoint"] != "https://example.com" {
		t.Errorf("configuration not persisted: %v", created.Configuration)
	}
}

func TestConversationUpdateAndDelete(t *testing.T) {
	env := setupAPI(t, nil)

	conv := model.Conversation{Title: "原标题", UserID: env.user.ID}
	if err := model.CreateConversation(env.db, &conv); err != nil {
		t.Fatal(err)
	}
	msg := model.Message{ConversationID: conv.ID, UserID: env.user.ID, Role: model.RoleUser, Content: "hi"}
	if err := model.AppendMessage(env.db, &msg); err != nil {
		t.Fatal(err)
	}

	// 改标题和启用工具
	w := env.do(t, http.MethodPut, fmt.Sprintf("/api/conversations/%d", conv.ID), gin.H{
		"title":         "新标题",
		"enabled_tools": []uint{1, 2},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update failed: %d %s", w.Code, w.Body.String())
	}
	var updated model.Conversation
	decodeJSON(t, w, &updated)
	if updated.Title != "新标题" || len(updated.EnabledTools) != 2 {
		t.Errorf("unexpected updated conversation: %+v", updated)
	}

	// 删除会话级联删除消息
	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/conversations/%d", conv.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", w.Code)
	}
	var count int64
	env.db.Model(&model.Message{}).Where("conversation_id = ?", conv.ID).Count(&count)
	if count != 0 {
		t.Errorf("expected messages cascade-deleted, got %d", count)
	}

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/messages", conv.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for deleted conversation, got %d", w.Code)
	}
}

func TestInvalidIDParam(t *testing.T) {
	env := setupAPI(t, nil)

	w := env.do(t, http.MethodGet, "/api/conversations/abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid id, got %d", w.Code)
	}
}
