package ai

import (
	"context"
	"fmt"

	"github.com/zhouzirui/karen-os/backend/internal/config"
)

// NewGenerator 根据配置选择生成服务；未配置任何凭证时返回 Unavailable。
func NewGenerator(ctx context.Context, cfg config.AIConfig) (Generator, string, error) {
	switch provider := cfg.ResolvedProvider(); provider {
	case config.ProviderGemini:
		gen, err := NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, provider, err
		}
		return gen, provider, nil
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, provider, fmt.Errorf("failed to create chat model: %w", err)
		}
		gen, err := NewEinoGenerator(ctx, chatModel)
		if err != nil {
			return nil, provider, err
		}
		return gen, provider, nil
	default:
		return Unavailable{}, "", nil
	}
}
