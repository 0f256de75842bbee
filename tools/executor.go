package tools

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// ExecutionError 工具执行失败。Status 为远程调用的 HTTP 状态码，
// 本地失败时为 0。
type ExecutionError struct {
	Tool    string
	Status  int
	Message string
}

func (e *ExecutionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("tool %s failed with status %d: %s", e.Tool, e.Status, e.Message)
	}
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// Executor 按工具名分发执行。内置工具是参数的纯函数（天气带随机），
// web_search 走远程搜索客户端。
type Executor struct {
	search *SearchClient // nil 时 web_search 不可用

	mu  sync.Mutex
	rng *rand.Rand
}

func NewExecutor(search *SearchClient) *Executor {
	return &Executor{
		search: search,
		rng:    rand.New(rand.NewSource(rand.Int63())),
	}
}

// Execute 执行指定工具并返回结果对象。未知城市等退化情况是合法结果
// 而非错误；只有真正的执行失败（远程调用失败等）返回 *ExecutionError。
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	switch name {
	case "get_weather":
		return e.getWeather(args), nil
	case "get_city_info":
		return getCityInfo(args), nil
	case "web_search":
		return e.webSearch(ctx, args)
	default:
		// 未知工具名退化为提示性结果，不中断整个回合
		return map[string]any{
			"message": fmt.Sprintf("未知工具 %q，可用工具：%s", name, strings.Join(e.knownTools(), ", ")),
		}, nil
	}
}

func (e *Executor) knownTools() []string {
	names := []string{"get_weather", "get_city_info"}
	if e.search != nil {
		names = append(names, "web_search")
	}
	return names
}

var weatherConditions = []string{"晴", "多云", "阴", "小雨", "雷阵雨", "小雪"}

func (e *Executor) getWeather(args map[string]any) map[string]any {
	city, _ := args["city"].(string)
	if city == "" {
		city = "未知城市"
	}

	e.mu.Lock()
	condition := weatherConditions[e.rng.Intn(len(weatherConditions))]
	temperature := e.rng.Intn(35) - 5 // -5°C ~ 29°C
	humidity := e.rng.Intn(60) + 30   // 30% ~ 89%
	e.mu.Unlock()

	return map[string]any{
		"city":        city,
		"weather":     condition,
		"temperature": fmt.Sprintf("%d°C", temperature),
		"humidity":    fmt.Sprintf("%d%%", humidity),
	}
}

type cityRecord struct {
	Country     string
	Population  string
	Description string
}

var cityTable = map[string]cityRecord{
	"北京": {"中国", "2154万", "中国首都，政治文化中心"},
	"上海": {"中国", "2487万", "中国经济金融中心"},
	"广州": {"中国", "1868万", "华南地区中心城市"},
	"深圳": {"中国", "1756万", "中国科技创新之城"},
	"东京": {"日本", "1396万", "日本首都，全球最大都市圈之一"},
	"纽约": {"美国", "839万", "美国金融中心"},
	"伦敦": {"英国", "898万", "英国首都，国际金融中心"},
	"巴黎": {"法国", "216万", "法国首都，艺术与时尚之都"},
}

func getCityInfo(args map[string]any) map[string]any {
	city, _ := args["city"].(string)
	record, ok := cityTable[city]
	if !ok {
		// 查不到时返回占位记录，这是合法结果不是错误
		return map[string]any{
			"city":        city,
			"country":     "未知",
			"population":  "未知",
			"description": "暂无该城市的资料",
		}
	}
	return map[string]any{
		"city":        city,
		"country":     record.Country,
		"population":  record.Population,
		"description": record.Description,
	}
}

func (e *Executor) webSearch(ctx context.Context, args map[string]any) (map[string]any, error) {
	if e.search == nil {
		return nil, &ExecutionError{Tool: "web_search", Message: "search client not configured"}
	}

	query, _ := args["query"].(string)
	if query == "" {
		return nil, &ExecutionError{Tool: "web_search", Message: "missing required parameter: query"}
	}

	opts := SearchOptions{}
	if depth, ok := args["search_depth"].(string); ok {
		opts.SearchDepth = depth
	}
	opts.IncludeDomains = stringSlice(args["include_domains"])
	opts.ExcludeDomains = stringSlice(args["exclude_domains"])
	if n, ok := args["max_results"].(float64); ok {
		opts.MaxResults = int(n)
	}

	return e.search.Search(ctx, query, opts)
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
