package chat

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/mcpchat/mcpchat/server/llm"
	"github.com/mcpchat/mcpchat/server/model"
	"github.com/mcpchat/mcpchat/server/tools"
)

// Gateway 补全服务的最小接口
type Gateway interface {
	Complete(ctx context.Context, req llm.Request) (llm.Response, error)
}

// CallSource 标识工具调用请求的来源
type CallSource int

const (
	// SourceNative API 返回的结构化 tool_calls
	SourceNative CallSource = iota
	// SourceTextMarker 纯文本回复中的 [USE_TOOL:...] 标记，
	// 用于不支持原生工具调用的服务
	SourceTextMarker
)

// RequestedToolCall 两种来源在分发前统一收敛到的调用请求
type RequestedToolCall struct {
	Source    CallSource
	CallID    string // native 调用的 ID，marker 来源为空
	ToolID    uint
	Name      string
	Arguments map[string]any
}

// 每个回合最多处理一个工具调用；补全服务请求多个时只取第一个
const maxToolCallsPerTurn = 1

// markerPattern 匹配 [USE_TOOL:<id>:<json-parameters>]
var markerPattern = regexp.MustCompile(`\[USE_TOOL:(\d+):(\{.*?\})\]`)

// DetectMarker 在纯文本回复中识别工具调用标记。
// 返回解析出的调用请求和去掉标记后的文本。
func DetectMarker(text string) (RequestedToolCall, string, bool) {
	match := markerPattern.FindStringSubmatch(text)
	if match == nil {
		return RequestedToolCall{}, text, false
	}

	toolID, err := strconv.ParseUint(match[1], 10, 32)
	if err != nil {
		return RequestedToolCall{}, text, false
	}

	args := map[string]any{}
	if err := json.Unmarshal([]byte(match[2]), &args); err != nil {
		// 参数不是合法 JSON 时按空参数处理
		args = map[string]any{}
	}

	cleaned := strings.TrimSpace(markerPattern.ReplaceAllString(text, ""))
	return RequestedToolCall{
		Source:    SourceTextMarker,
		ToolID:    uint(toolID),
		Arguments: args,
	}, cleaned, true
}

// Outcome 单个回合的编排结果
type Outcome struct {
	FinalText  string
	ToolCall   *model.ToolCallRecord
	ToolResult map[string]any
}

// Orchestrator 驱动两段式请求循环：第一趟让模型回答或请求工具，
// 若请求了工具则执行并在第二趟拿到最终回答。
type Orchestrator struct {
	gateway  Gateway
	registry *tools.Registry
	executor *tools.Executor
}

func NewOrchestrator(gateway Gateway, registry *tools.Registry, executor *tools.Executor) *Orchestrator {
	return &Orchestrator{
		gateway:  gateway,
		registry: registry,
		executor: executor,
	}
}

// Declarations 返回会话启用子集对应的工具声明
func (o *Orchestrator) Declarations(enabled []model.McpTool) []llm.ToolDeclaration {
	available := o.registry.List()
	out := make([]llm.ToolDeclaration, 0, len(enabled))
	for _, d := range available {
		for _, t := range enabled {
			if t.Name == d.Name {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// Run 执行一个带工具的回合。messages 已包含系统提示、历史和本次用户
// 消息；enabled 是会话启用且仍然存在的工具。
// 补全服务第一趟失败时退回到无工具的直接补全；第二趟失败时退回第一趟
// 的文本，保证调用方总能拿到回答。
func (o *Orchestrator) Run(ctx context.Context, messages []llm.Message, enabled []model.McpTool) (Outcome, error) {
	declarations := o.Declarations(enabled)

	first, err := o.gateway.Complete(ctx, llm.Request{
		Messages:   messages,
		Tools:      declarations,
		ToolChoice: "auto",
	})
	if err != nil {
		log.Printf("[Orchestrator] first pass failed, falling back to direct completion: %v", err)
		direct, derr := o.gateway.Complete(ctx, llm.Request{Messages: messages})
		if derr != nil {
			return Outcome{}, derr
		}
		// 系统提示仍带着标记语法说明，兜底回合不执行工具，
		// 模型输出的标记要剥掉，不能漏进最终回答
		text := direct.Text
		if _, cleaned, ok := DetectMarker(text); ok {
			log.Println("[Orchestrator] marker in fallback response stripped")
			text = cleaned
		}
		return Outcome{FinalText: text}, nil
	}

	requested, leadIn, ok := o.requestedCall(first, enabled)
	if !ok {
		return Outcome{FinalText: first.Text}, nil
	}

	result := o.executeTool(ctx, requested)

	record := &model.ToolCallRecord{
		ToolID:     requested.ToolID,
		Name:       requested.Name,
		Parameters: requested.Arguments,
	}

	finalText, err := o.secondPass(ctx, messages, requested, leadIn, result)
	if err != nil {
		// 第二趟失败时退回第一趟的文本，不让整个回合失败
		log.Printf("[Orchestrator] second pass failed, returning first-pass text: %v", err)
		finalText = leadIn
		if finalText == "" {
			finalText = "工具已执行，但生成最终回答失败。"
		}
	}

	return Outcome{
		FinalText:  finalText,
		ToolCall:   record,
		ToolResult: result,
	}, nil
}

// requestedCall 从第一趟响应中提取工具调用请求。原生 tool_calls 优先，
// 其次是文本标记；两种来源收敛到同一 RequestedToolCall。
func (o *Orchestrator) requestedCall(resp llm.Response, enabled []model.McpTool) (RequestedToolCall, string, bool) {
	if len(resp.ToolCalls) > 0 {
		if len(resp.ToolCalls) > maxToolCallsPerTurn {
			log.Printf("[Orchestrator] provider requested %d tool calls, processing first only", len(resp.ToolCalls))
		}
		call := resp.ToolCalls[0]
		requested := RequestedToolCall{
			Source:    SourceNative,
			CallID:    call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
		}
		requested.ToolID = resolveToolID(call.Name, enabled)
		return requested, resp.Text, true
	}

	marker, cleaned, ok := DetectMarker(resp.Text)
	if !ok {
		return RequestedToolCall{}, resp.Text, false
	}
	if tool := findToolByID(marker.ToolID, enabled); tool != nil {
		marker.Name = tool.Name
	}
	return marker, cleaned, true
}

// executeTool 执行工具并把任何失败转成 {success:false, error} 结果，
// 错误结果同样持久化并返回给模型，不中断回合
func (o *Orchestrator) executeTool(ctx context.Context, requested RequestedToolCall) map[string]any {
	if requested.Name == "" {
		return map[string]any{
			"success": false,
			"error":   "requested tool not found among enabled tools",
		}
	}

	result, err := o.executor.Execute(ctx, requested.Name, requested.Arguments)
	if err != nil {
		log.Printf("[Orchestrator] tool %s execution failed: %v", requested.Name, err)
		return map[string]any{
			"success": false,
			"error":   err.Error(),
		}
	}
	return result
}

// secondPass 把工具结果喂回模型取得最终回答。原生来源带完整的
// tool_call/tool 消息对；marker 来源没有原生调用 ID，tool 消息由
// 网关降级为 system 形式。
func (o *Orchestrator) secondPass(ctx context.Context, messages []llm.Message, requested RequestedToolCall, leadIn string, result map[string]any) (string, error) {
	serialized, err := json.Marshal(result)
	if err != nil {
		serialized = []byte(`{"success":false,"error":"failed to serialize tool result"}`)
	}

	round := make([]llm.Message, 0, len(messages)+2)
	round = append(round, messages...)

	if requested.Source == SourceNative {
		round = append(round, llm.Message{
			Role:    llm.RoleAssistant,
			Content: leadIn,
			ToolCalls: []llm.ToolCall{{
				ID:        requested.CallID,
				Name:      requested.Name,
				Arguments: requested.Arguments,
			}},
		})
		round = append(round, llm.Message{
			Role:       llm.RoleTool,
			Content:    string(serialized),
			ToolCallID: requested.CallID,
		})
	} else {
		round = append(round, llm.Message{Role: llm.RoleAssistant, Content: leadIn})
		round = append(round, llm.Message{Role: llm.RoleTool, Content: string(serialized)})
	}

	resp, err := o.gateway.Complete(ctx, llm.Request{Messages: round})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// resolveToolID 把模型选择的工具名映射回存储的工具 ID。
// 先按声明名精确匹配；兜底用名称/描述的子串匹配。
func resolveToolID(name string, enabled []model.McpTool) uint {
	for _, t := range enabled {
		if t.Name == name {
			return t.ID
		}
	}

	lower := strings.ToLower(name)
	for _, t := range enabled {
		if strings.Contains(strings.ToLower(t.Name), lower) ||
			strings.Contains(strings.ToLower(t.Description), lower) {
			return t.ID
		}
	}
	return 0
}

func findToolByID(id uint, enabled []model.McpTool) *model.McpTool {
	for i := range enabled {
		if enabled[i].ID == id {
			return &enabled[i]
		}
	}
	return nil
}
