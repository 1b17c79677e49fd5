package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// EinoGenerator runs a chat-template → chat-model chain compiled with eino.
type EinoGenerator struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewEinoGenerator compiles the generation chain around chatModel.
func NewEinoGenerator(ctx context.Context, chatModel model.BaseChatModel) (*EinoGenerator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &EinoGenerator{chain: runnable}, nil
}

// Generate 执行一次对话链调用，温度通过模型选项按请求传入。
func (g *EinoGenerator) Generate(ctx context.Context, req Request) (string, error) {
	input := map[string]any{
		"system": req.SystemInstruction,
		"query":  req.Prompt,
	}

	response, err := g.chain.Invoke(ctx, input,
		compose.WithChatModelOption(model.WithTemperature(req.Temperature)),
	)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil {
		return "", nil
	}
	return response.Content, nil
}
