package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mcpchat/mcpchat/server/llm"
	"github.com/mcpchat/mcpchat/server/model"
)

// ErrEmptyMessage 回合边界的输入校验错误
var ErrEmptyMessage = errors.New("message must not be empty")

// 新会话标题取用户消息的前 50 个字符
const titleRuneLimit = 50

// TurnRequest 提交一个回合的输入
type TurnRequest struct {
	UserID         uint
	ConversationID uint  // 0 表示新建会话
	SystemPromptID *uint // 请求级提示词，覆盖会话存储的提示词
	Message        string
	UseTool        bool
}

// TurnResponse 回合结果的摘要
type TurnResponse struct {
	Content        string
	ConversationID uint
	ToolCall       *model.ToolCallRecord
	ToolResult     map[string]any
	AvailableTools []string
}

// TurnEvent 推送给 UI 的回合生命周期事件
type TurnEvent struct {
	TurnID         string         `json:"turn_id"`
	Type           string         `json:"type"`
	ConversationID uint           `json:"conversation_id"`
	Payload        map[string]any `json:"payload,omitempty"`
}

const (
	EventTurnStarted   = "turn_started"
	EventToolCall      = "tool_call"
	EventToolResult    = "tool_result"
	EventTurnCompleted = "turn_completed"
)

// Notifier 把回合事件送往外部（WebSocket hub 等）
type Notifier interface {
	Notify(event TurnEvent)
}

// Assembler 组装交给编排器/网关的消息序列，并持久化整个交换过程。
// 每个回合都从存储重读会话状态，进程内不缓存实体。
type Assembler struct {
	db       *gorm.DB
	gateway  Gateway
	orch     *Orchestrator
	notifier Notifier // 可为 nil
}

func NewAssembler(db *gorm.DB, gateway Gateway, orch *Orchestrator, notifier Notifier) *Assembler {
	return &Assembler{
		db:       db,
		gateway:  gateway,
		orch:     orch,
		notifier: notifier,
	}
}

// Submit 处理一个回合：加载上下文、调用模型（可选工具回合）、
// 按顺序持久化整个交换。用户消息在任何模型调用之前先落库，
// 下游失败也不会丢失。
func (a *Assembler) Submit(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}

	// 请求级提示词是引用校验：指向不存在的 id 在任何落库之前返回，
	// 不产生半个回合
	var promptText string
	promptResolved := false
	if req.SystemPromptID != nil {
		p, err := model.GetSystemPrompt(a.db, *req.SystemPromptID)
		if err != nil {
			return nil, err
		}
		promptText = p.Content
		promptResolved = true
	}

	conv, err := a.resolveConversation(req)
	if err != nil {
		return nil, err
	}

	history, err := model.ListMessages(a.db, conv.ID)
	if err != nil {
		return nil, err
	}

	// 用户消息先落库，失败的补全不能丢掉它
	userMsg := &model.Message{
		ConversationID: conv.ID,
		UserID:         req.UserID,
		Role:           model.RoleUser,
		Content:        req.Message,
	}
	if err := model.AppendMessage(a.db, userMsg); err != nil {
		return nil, err
	}

	turnID := uuid.New().String()
	a.notify(TurnEvent{TurnID: turnID, Type: EventTurnStarted, ConversationID: conv.ID})

	if !promptResolved {
		promptText, err = a.conversationPrompt(conv)
		if err != nil {
			return nil, err
		}
	}

	var enabled []model.McpTool
	var availableNames []string
	if req.UseTool {
		enabled = a.resolveEnabledTools(conv)
		if len(enabled) > 0 {
			promptText = appendToolUsageBlock(promptText, enabled)
			for _, t := range enabled {
				availableNames = append(availableNames, t.Name)
			}
		}
	}

	messages := buildMessages(promptText, history, req.Message)

	var outcome Outcome
	if len(enabled) > 0 {
		outcome, err = a.orch.Run(ctx, messages, enabled)
	} else {
		var resp llm.Response
		resp, err = a.gateway.Complete(ctx, llm.Request{Messages: messages})
		outcome = Outcome{FinalText: resp.Text}
	}
	if err != nil {
		return nil, err
	}

	if err := a.persistOutcome(conv, req.UserID, outcome); err != nil {
		return nil, err
	}

	if outcome.ToolCall != nil {
		a.notify(TurnEvent{
			TurnID: turnID, Type: EventToolCall, ConversationID: conv.ID,
			Payload: map[string]any{"tool_id": outcome.ToolCall.ToolID, "name": outcome.ToolCall.Name},
		})
		a.notify(TurnEvent{
			TurnID: turnID, Type: EventToolResult, ConversationID: conv.ID,
			Payload: map[string]any{"name": outcome.ToolCall.Name, "result": outcome.ToolResult},
		})
	}
	a.notify(TurnEvent{TurnID: turnID, Type: EventTurnCompleted, ConversationID: conv.ID})

	return &TurnResponse{
		Content:        outcome.FinalText,
		ConversationID: conv.ID,
		ToolCall:       outcome.ToolCall,
		ToolResult:     outcome.ToolResult,
		AvailableTools: availableNames,
	}, nil
}

func (a *Assembler) notify(event TurnEvent) {
	if a.notifier != nil {
		a.notifier.Notify(event)
	}
}

// resolveConversation 取出或新建会话。新会话标题取消息前 50 字符，
// 有默认提示词时自动挂上。
func (a *Assembler) resolveConversation(req TurnRequest) (*model.Conversation, error) {
	if req.ConversationID != 0 {
		return model.GetConversation(a.db, req.ConversationID)
	}

	conv := &model.Conversation{
		Title:  truncateTitle(req.Message),
		UserID: req.UserID,
	}
	defaultPrompt, err := model.GetDefaultSystemPrompt(a.db, req.UserID)
	if err != nil {
		return nil, err
	}
	if defaultPrompt != nil {
		conv.SystemPromptID = &defaultPrompt.ID
	}
	if err := model.CreateConversation(a.db, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// conversationPrompt 取会话存储的提示词。请求级提示词在 Submit 开头
// 已校验过；会话里残留的失效引用静默忽略。
func (a *Assembler) conversationPrompt(conv *model.Conversation) (string, error) {
	if conv.SystemPromptID != nil {
		p, err := model.GetSystemPrompt(a.db, *conv.SystemPromptID)
		if err == gorm.ErrRecordNotFound {
			log.Printf("[Chat] conversation %d references deleted prompt %d, skipping", conv.ID, *conv.SystemPromptID)
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return p.Content, nil
	}
	return "", nil
}

// resolveEnabledTools 在分发时过滤：只保留仍然存在且启用的工具，
// 失效的 ID 留在会话里不主动清理
func (a *Assembler) resolveEnabledTools(conv *model.Conversation) []model.McpTool {
	out := make([]model.McpTool, 0, len(conv.EnabledTools))
	for _, id := range conv.EnabledTools {
		t, err := model.GetMcpTool(a.db, id)
		if err != nil {
			continue
		}
		if !t.IsEnabled {
			continue
		}
		out = append(out, *t)
	}
	return out
}

// persistOutcome 按固定顺序落库：助手消息（带工具调用记录），
// 随后是携带结果的 tool 消息
func (a *Assembler) persistOutcome(conv *model.Conversation, userID uint, outcome Outcome) error {
	assistant := &model.Message{
		ConversationID: conv.ID,
		UserID:         userID,
		Role:           model.RoleAssistant,
		Content:        outcome.FinalText,
		ToolCall:       outcome.ToolCall,
	}
	if err := model.AppendMessage(a.db, assistant); err != nil {
		return err
	}

	if outcome.ToolCall != nil {
		toolMsg := &model.Message{
			ConversationID: conv.ID,
			UserID:         userID,
			Role:           model.RoleTool,
			Content:        outcome.ToolCall.Name,
			ToolResult:     outcome.ToolResult,
		}
		if err := model.AppendMessage(a.db, toolMsg); err != nil {
			return err
		}
	}
	return nil
}

// buildMessages 组装交给补全服务的完整消息序列：
// 系统提示 + 按插入顺序的历史 + 本次用户消息
func buildMessages(promptText string, history []model.Message, userMessage string) []llm.Message {
	out := make([]llm.Message, 0, len(history)+2)
	if promptText != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: promptText})
	}
	for _, m := range history {
		content := m.Content
		if m.Role == model.RoleTool && m.ToolResult != nil {
			content = serializeResult(m.ToolResult)
		}
		out = append(out, llm.Message{Role: m.Role, Content: content})
	}
	out = append(out, llm.Message{Role: llm.RoleUser, Content: userMessage})
	return out
}

func serializeResult(result map[string]any) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}

// appendToolUsageBlock 为不支持原生工具调用的服务在系统提示后面
// 附上机器可读的工具说明和标记语法
func appendToolUsageBlock(promptText string, enabled []model.McpTool) string {
	block := "\n\n可用工具列表：\n"
	for _, t := range enabled {
		block += fmt.Sprintf("- [ID:%d] %s：%s\n", t.ID, t.Name, t.Description)
	}
	block += "如需调用工具，请在回复中输出标记 [USE_TOOL:<工具ID>:<JSON参数>]，" +
		`例如 [USE_TOOL:1:{"city":"北京"}]。不需要工具时正常回答即可。`

	if promptText == "" {
		return block[2:] // 去掉开头空行
	}
	return promptText + block
}

func truncateTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= titleRuneLimit {
		return message
	}
	return string(runes[:titleRuneLimit]) + "..."
}
