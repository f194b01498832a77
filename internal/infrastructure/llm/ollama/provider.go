package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"

	"github.com/shuseikawaguchi/kaizen/internal/domain/llm"
)

// OllamaProvider はOllama APIプロバイダーの実装。
// 同一プロンプトへの応答をLRUでキャッシュし、再試行時のAPI呼び出しを省く。
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
	cache   *lru.Cache[uint64, string]
}

// NewOllamaProvider は新しいOllamaProviderを作成。
// cacheSizeが0以下の場合、応答キャッシュは無効になる。
func NewOllamaProvider(baseURL, model string, timeout time.Duration, cacheSize int) (*OllamaProvider, error) {
	p := &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout: timeout, // Ollamaは遅い場合があるため長めに設定する
		},
	}
	if cacheSize > 0 {
		cache, err := lru.New[uint64, string](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create response cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

// Generate はLLM生成を実行
func (p *OllamaProvider) Generate(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	key := xxh3.HashString(req.SystemPrompt + "\x00" + req.Prompt)
	if p.cache != nil {
		if content, ok := p.cache.Get(key); ok {
			return llm.GenerateResponse{Content: content, FinishReason: "cache"}, nil
		}
	}

	// Ollama APIリクエスト
	ollamaReq := map[string]interface{}{
		"model":  p.model,
		"prompt": req.Prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}
	if req.SystemPrompt != "" {
		ollamaReq["system"] = req.SystemPrompt
	}

	reqBody, err := json.Marshal(ollamaReq)
	if err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return llm.GenerateResponse{}, fmt.Errorf("ollama API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	// レスポンスパース
	var ollamaResp struct {
		Response   string `json:"response"`
		Done       bool   `json:"done"`
		DoneReason string `json:"done_reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	finish := ollamaResp.DoneReason
	if finish == "" {
		finish = "stop"
	}
	if p.cache != nil {
		p.cache.Add(key, ollamaResp.Response)
	}

	return llm.GenerateResponse{
		Content:      ollamaResp.Response,
		FinishReason: finish,
	}, nil
}

// Name はプロバイダー名を返す
func (p *OllamaProvider) Name() string {
	return fmt.Sprintf("ollama-%s", p.model)
}
