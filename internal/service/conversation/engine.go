// Package conversation sends utterances to the generation service and records the replies.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/karen-os/backend/internal/analysis/emotion"
	"github.com/zhouzirui/karen-os/backend/internal/logging"
	"github.com/zhouzirui/karen-os/backend/internal/metrics"
	"github.com/zhouzirui/karen-os/backend/internal/model/chat"
	"github.com/zhouzirui/karen-os/backend/internal/model/persona"
	"github.com/zhouzirui/karen-os/backend/internal/model/settings"
	"github.com/zhouzirui/karen-os/backend/internal/service/ai"
	"github.com/zhouzirui/karen-os/backend/internal/service/speech"
)

const (
	StandardTemperature float32 = 0.7
	EvilPlanTemperature float32 = 1.2
)

var ErrEmptyUtterance = errors.New("utterance is empty")

// Transcript is the append side of the transcript store.
type Transcript interface {
	Append(message chat.Message) (chat.Message, error)
}

// Speaker hands reply text to the speech output controller.
type Speaker interface {
	Speak(text string, s settings.Settings, onDone func()) (speech.Utterance, error)
}

// Engine 负责对话主流程：记录用户消息、选择提示词、调用生成服务并解析回复情绪。
// Record、Prepare 与 Apply 只能在会话调度协程中调用；Generate 可在任意协程中执行。
type Engine struct {
	transcript Transcript
	generator  ai.Generator
	persona    persona.Persona
	speaker    Speaker
	timeout    time.Duration
	log        zerolog.Logger
	emotion    emotion.Label
}

// NewEngine creates a conversation engine for the given persona.
func NewEngine(transcript Transcript, generator ai.Generator, p persona.Persona, speaker Speaker, timeout time.Duration, log zerolog.Logger) *Engine {
	if generator == nil {
		generator = ai.Unavailable{}
	}
	return &Engine{
		transcript: transcript,
		generator:  generator,
		persona:    p,
		speaker:    speaker,
		timeout:    timeout,
		log:        logging.Component(log, "conversation"),
		emotion:    emotion.Neutral,
	}
}

// Emotion returns the current emotion signal consumed by the avatar.
func (e *Engine) Emotion() emotion.Label {
	return e.emotion
}

// Record 立即把用户消息追加到对话记录，返回清理后的文本。
func (e *Engine) Record(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyUtterance
	}

	if _, err := e.transcript.Append(chat.Message{Role: chat.RoleUser, Content: text}); err != nil {
		return "", fmt.Errorf("append user message: %w", err)
	}
	return text, nil
}

// Request 根据触发短语选择提示词与温度。
func (e *Engine) Request(text string) ai.Request {
	req := ai.Request{
		Prompt:            text,
		SystemInstruction: e.persona.SystemInstruction,
		Temperature:       StandardTemperature,
	}
	if e.isEvilPlan(text) {
		req.Prompt = e.persona.EvilPlanPrompt
		req.Temperature = EvilPlanTemperature
	}
	return req
}

// Prepare runs Record and Request.
func (e *Engine) Prepare(text string) (ai.Request, error) {
	text, err := e.Record(text)
	if err != nil {
		return ai.Request{}, err
	}
	return e.Request(text), nil
}

func (e *Engine) isEvilPlan(text string) bool {
	if e.persona.EvilPlanPrompt == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, trigger := range e.persona.EvilPlanTriggers {
		if trigger != "" && strings.Contains(lower, strings.ToLower(trigger)) {
			return true
		}
	}
	return false
}

// Generate performs the remote call, bounded by the configured timeout.
func (e *Engine) Generate(ctx context.Context, req ai.Request) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	started := time.Now()
	reply, err := e.generator.Generate(ctx, req)
	metrics.GenerationLatency.Observe(time.Since(started).Seconds())
	return reply, err
}

// Apply 记录生成结果。失败时追加固定的 sad 兜底消息且不重试。
func (e *Engine) Apply(reply string, genErr error, s settings.Settings) chat.Message {
	if genErr != nil {
		metrics.GenerationFailures.Inc()
		e.log.Warn().Err(genErr).Msg("generation request failed")
		return e.appendAssistant(e.persona.FallbackLine, emotion.Sad)
	}

	if strings.TrimSpace(reply) == "" {
		reply = e.persona.EmptyReplyLine
	}

	parsed := emotion.ParseReply(reply)
	if parsed.Text == "" {
		parsed.Text = e.persona.EmptyReplyLine
	}

	msg := e.appendAssistant(parsed.Text, parsed.Emotion)
	e.emotion = parsed.Emotion
	metrics.Replies.WithLabelValues(string(parsed.Emotion)).Inc()

	if s.EnableTTS && e.speaker != nil {
		if _, err := e.speaker.Speak(parsed.Text, s, nil); err != nil {
			e.log.Warn().Err(err).Msg("speech output failed")
		}
	}
	return msg
}

// Handle runs Prepare, Generate and Apply in sequence on the calling goroutine.
func (e *Engine) Handle(ctx context.Context, text string, s settings.Settings) (chat.Message, error) {
	req, err := e.Prepare(text)
	if err != nil {
		return chat.Message{}, err
	}
	reply, genErr := e.Generate(ctx, req)
	return e.Apply(reply, genErr, s), nil
}

func (e *Engine) appendAssistant(content string, label emotion.Label) chat.Message {
	msg, err := e.transcript.Append(chat.Message{
		Role:    chat.RoleAssistant,
		Content: content,
		Emotion: label,
	})
	if err != nil {
		e.log.Error().Err(err).Msg("append assistant message failed")
	}
	return msg
}
