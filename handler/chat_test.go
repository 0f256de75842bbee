package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mcpchat/mcpchat/server/chat"
	"github.com/mcpchat/mcpchat/server/config"
	"github.com/mcpchat/mcpchat/server/llm"
	"github.com/mcpchat/mcpchat/server/model"
	"github.com/mcpchat/mcpchat/server/tools"
)

// stubGateway 按队列返回预设响应
type stubGateway struct {
	queue []stubResult
}

type stubResult struct {
	resp llm.Response
	err  error
}

func (s *stubGateway) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if len(s.queue) == 0 {
		return llm.Response{Text: "ok"}, nil
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	return next.resp, next.err
}

type apiEnv struct {
	db     *gorm.DB
	gw     *stubGateway
	router *gin.Engine
	user   *model.User
}

func setupAPI(t *testing.T, queue []stubResult) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := model.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	user, err := model.Seed(db)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	gw := &stubGateway{queue: queue}
	reg := tools.NewRegistry(config.SearchConfig{})
	orch := chat.NewOrchestrator(gw, reg, tools.NewExecutor(nil))
	asm := chat.NewAssembler(db, gw, orch, nil)

	chatHandler := &ChatHandler{Assembler: asm, UserID: user.ID}
	convHandler := &ConversationHandler{DB: db, UserID: user.ID}
	promptHandler := &PromptHandler{DB: db, UserID: user.ID}
	toolHandler := &ToolHandler{DB: db, UserID: user.ID}

	r := gin.New()
	api := r.Group("/api")
	api.POST("/chat", chatHandler.Handle)
	api.GET("/conversations", convHandler.List)
	api.GET("/conversations/:id", convHandler.Get)
	api.PUT("/conversations/:id", convHandler.Update)
	api.DELETE("/conversations/:id", convHandler.Delete)
	api.GET("/conversations/:id/messages", convHandler.Messages)
	api.GET("/prompts", promptHandler.List)
	api.POST("/prompts", promptHandler.Create)
	api.PUT("/prompts/:id", promptHandler.Update)
	api.PUT("/prompts/:id/default", promptHandler.SetDefault)
	api.DELETE("/prompts/:id", promptHandler.Delete)
	api.GET("/tools", toolHandler.List)
	api.POST("/tools", toolHandler.Create)
	api.PUT("/tools/:id", toolHandler.Update)
	api.PUT("/tools/:id/toggle", toolHandler.Toggle)
	api.DELETE("/tools/:id", toolHandler.Delete)

	return &apiEnv{db: db, gw: gw, router: r, user: user}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response failed: %v, body=%s", err, w.Body.String())
	}
}

func TestChatEndpoint(t *testing.T) {
	env := setupAPI(t, []stubResult{
		{resp: llm.Response{Text: "你好"}},
	})

	w := env.do(t, http.MethodPost, "/api/chat", gin.H{"message": "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ChatResponse
	decodeJSON(t, w, &resp)
	if resp.Content != "你好" {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if resp.ConversationID == 0 {
		t.Error("expected conversation id in response")
	}

	// 消息端点按顺序返回 user + assistant
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/messages", resp.ConversationID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var msgs []model.Message
	decodeJSON(t, w, &msgs)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[1].Role != model.RoleAssistant {
		t.Errorf("unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}
}

func TestChatEndpointToolRound(t *testing.T) {
	env := setupAPI(t, []stubResult{
		{resp: llm.Response{
			ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_city_info", Arguments: map[string]any{"city": "北京"}}},
		}},
		{resp: llm.Response{Text: "北京是中国的首都。"}},
	})

	// 先建一个启用了工具的会话
	var toolIDs []uint
	all, _ := model.ListMcpTools(env.db, env.user.ID)
	for _, tool := range all {
		if tool.Name == "get_city_info" {
			toolIDs = append(toolIDs, tool.ID)
		}
	}
	conv := model.Conversation{Title: "t", UserID: env.user.ID, EnabledTools: toolIDs}
	if err := model.CreateConversation(env.db, &conv); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPost, "/api/chat", gin.H{
		"conversation_id": conv.ID,
		"message":         "介绍一下北京",
		"use_tool":        true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ChatResponse
	decodeJSON(t, w, &resp)
	if resp.ToolCall == nil {
		t.Fatal("expected tool call in response")
	}
	if resp.ToolCall.Name != "get_city_info" {
		t.Errorf("unexpected tool name: %s", resp.ToolCall.Name)
	}
	if resp.ToolResult["country"] != "中国" {
		t.Errorf("expected country 中国, got %v", resp.ToolResult["country"])
	}
}

func TestChatEndpointEmptyMessage(t *testing.T) {
	env := setupAPI(t, nil)

	w := env.do(t, http.MethodPost, "/api/chat", gin.H{"message": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestChatEndpointConversationNotFound(t *testing.T) {
	env := setupAPI(t, nil)

	w := env.do(t, http.MethodPost, "/api/chat", gin.H{"conversation_id": 9999, "message": "hi"})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestChatEndpointProviderUnavailable(t *testing.T) {
	env := setupAPI(t, []stubResult{
		{err: llm.ErrUnavailable},
	})

	w := env.do(t, http.MethodPost, "/api/chat", gin.H{"message": "hi"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}
