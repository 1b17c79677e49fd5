package ai

import (
	"context"
	"errors"
)

// ErrGeneratorUnavailable 表示没有配置可用的大模型。
var ErrGeneratorUnavailable = errors.New("generation service unavailable")

// Request is a single round trip to the remote generation service.
type Request struct {
	Prompt            string
	SystemInstruction string
	Temperature       float32
}

// Generator 抽象远程生成服务：一次请求，一次完整回复，不做流式输出。
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Unavailable is the generator used when no provider is configured.
type Unavailable struct{}

// Generate always fails with ErrGeneratorUnavailable.
func (Unavailable) Generate(context.Context, Request) (string, error) {
	return "", ErrGeneratorUnavailable
}
