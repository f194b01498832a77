package llm

import "context"

// GenerateRequest はLLM生成リクエスト
type GenerateRequest struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// GenerateResponse はLLM生成レスポンス
type GenerateResponse struct {
	Content      string
	FinishReason string
}

// LLMProvider はLLMプロバイダーの抽象化
type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
	Name() string
}
