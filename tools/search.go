package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/mcpchat/mcpchat/server/config"
)

const (
	SearchDepthBasic    = "basic"
	SearchDepthAdvanced = "advanced"
)

// SearchClient 调用外部搜索 API（Tavily 风格的 keyed endpoint）
type SearchClient struct {
	apiKey     string
	baseURL    string
	maxResults int
	httpClient *http.Client
}

func NewSearchClient(cfg config.SearchConfig) *SearchClient {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return &SearchClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SearchOptions 搜索请求的可调参数
type SearchOptions struct {
	SearchDepth    string
	IncludeDomains []string
	ExcludeDomains []string
	MaxResults     int
}

type searchRequest struct {
	APIKey         string   `json:"api_key"`
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
	MaxResults     int      `json:"max_results"`
}

// Search 执行一次搜索，结果作为不透明 JSON 透传。
// 非 2xx 状态或传输失败返回 *ExecutionError。
func (c *SearchClient) Search(ctx context.Context, query string, opts SearchOptions) (map[string]any, error) {
	depth := opts.SearchDepth
	if depth != SearchDepthAdvanced {
		depth = SearchDepthBasic
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = c.maxResults
	}

	body, err := json.Marshal(searchRequest{
		APIKey:         c.apiKey,
		Query:          query,
		SearchDepth:    depth,
		IncludeDomains: opts.IncludeDomains,
		ExcludeDomains: opts.ExcludeDomains,
		MaxResults:     maxResults,
	})
	if err != nil {
		return nil, &ExecutionError{Tool: "web_search", Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, &ExecutionError{Tool: "web_search", Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ExecutionError{Tool: "web_search", Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ExecutionError{Tool: "web_search", Status: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ExecutionError{Tool: "web_search", Status: resp.StatusCode, Message: string(data)}
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &ExecutionError{Tool: "web_search", Status: resp.StatusCode, Message: "invalid response: " + err.Error()}
	}
	return result, nil
}
