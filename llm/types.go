package llm

import "errors"

// ErrUnavailable 补全服务不可达或返回错误，由调用方决定兜底行为
var ErrUnavailable = errors.New("completion provider unavailable")

// Message 带角色标签的上下文消息
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // 助手发起的工具调用
	ToolCallID string     // role 为 tool 时对应的调用 ID
}

// ToolDeclaration 提供给补全服务的工具声明
type ToolDeclaration struct {
	Name        string
	Description string
	InputSchema map[string]any // JSON Schema 形式的参数描述
}

// ToolCall 补全服务请求调用的工具及参数
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Request 单次补全请求
type Request struct {
	Messages    []Message
	Tools       []ToolDeclaration
	ToolChoice  string   // "auto" | "none"，为空且无工具时不传
	Temperature *float32 // nil 表示使用配置的默认值，显式 0 是合法取值
}

// Response 补全结果：纯文本回答，或一组待执行的工具调用
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)
