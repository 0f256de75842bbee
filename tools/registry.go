package tools

import (
	"log"
	"sync"

	"github.com/mcpchat/mcpchat/server/config"
	"github.com/mcpchat/mcpchat/server/llm"
)

// Registry 持有本进程可用的工具声明。内置工具始终可用，
// 搜索工具依赖配置中的 API key，缺失时只是不注册，不算错误。
type Registry struct {
	mu           sync.RWMutex
	cfg          config.SearchConfig
	declarations []llm.ToolDeclaration
	search       *SearchClient
	initialized  bool
}

func NewRegistry(cfg config.SearchConfig) *Registry {
	return &Registry{cfg: cfg}
}

// Initialize 执行一次性装配。部分初始化是常态：可选工具缺配置时
// 跳过注册，内置工具不受影响。
func (r *Registry) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil
	}

	r.declarations = builtinDeclarations()

	if r.cfg.APIKey == "" {
		log.Println("[Tools] search api key not configured, web_search disabled")
	} else {
		r.search = NewSearchClient(r.cfg)
		r.declarations = append(r.declarations, searchDeclaration())
		log.Println("[Tools] web_search registered")
	}

	r.initialized = true
	return nil
}

// List 返回当前全部工具声明。可重复调用且无副作用；
// 未初始化时先做一次惰性初始化。
func (r *Registry) List() []llm.ToolDeclaration {
	r.mu.RLock()
	ready := r.initialized
	r.mu.RUnlock()
	if !ready {
		if err := r.Initialize(); err != nil {
			log.Printf("[Tools] lazy initialize failed: %v", err)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolDeclaration, len(r.declarations))
	copy(out, r.declarations)
	return out
}

// Find 按名称查找声明
func (r *Registry) Find(name string) (llm.ToolDeclaration, bool) {
	for _, d := range r.List() {
		if d.Name == name {
			return d, true
		}
	}
	return llm.ToolDeclaration{}, false
}

// SearchClient 返回搜索客户端，未配置时为 nil
func (r *Registry) SearchClient() *SearchClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.search
}

// Shutdown 释放注册表持有的资源
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.declarations = nil
	r.search = nil
	r.initialized = false
}

func builtinDeclarations() []llm.ToolDeclaration {
	return []llm.ToolDeclaration{
		{
			Name:        "get_weather",
			Description: "查询指定城市的当前天气",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{
						"type":        "string",
						"description": "城市名称，例如：北京",
					},
				},
				"required": []string{"city"},
			},
		},
		{
			Name:        "get_city_info",
			Description: "查询城市的基本信息（国家、人口、特色）",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{
						"type":        "string",
						"description": "城市名称，例如：上海",
					},
				},
				"required": []string{"city"},
			},
		},
	}
}

func searchDeclaration() llm.ToolDeclaration {
	return llm.ToolDeclaration{
		Name:        "web_search",
		Description: "通过外部搜索引擎检索实时信息",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "搜索关键词",
				},
				"search_depth": map[string]any{
					"type":        "string",
					"enum":        []string{"basic", "advanced"},
					"description": "搜索深度，默认 basic",
				},
				"include_domains": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "只包含这些域名的结果",
				},
				"exclude_domains": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "排除这些域名的结果",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "最多返回的结果条数",
				},
			},
			"required": []string{"query"},
		},
	}
}
