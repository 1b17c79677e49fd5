// Package session owns the single voice-chat session and serializes every state change.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/karen-os/backend/internal/analysis/emotion"
	"github.com/zhouzirui/karen-os/backend/internal/logging"
	"github.com/zhouzirui/karen-os/backend/internal/metrics"
	"github.com/zhouzirui/karen-os/backend/internal/model/chat"
	"github.com/zhouzirui/karen-os/backend/internal/model/persona"
	"github.com/zhouzirui/karen-os/backend/internal/model/settings"
	"github.com/zhouzirui/karen-os/backend/internal/render/avatar"
	"github.com/zhouzirui/karen-os/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/karen-os/backend/internal/service/chat"
	"github.com/zhouzirui/karen-os/backend/internal/service/command"
	"github.com/zhouzirui/karen-os/backend/internal/service/conversation"
	"github.com/zhouzirui/karen-os/backend/internal/service/speech"
	"github.com/zhouzirui/karen-os/backend/internal/service/voice"
)

// ErrStopped is returned once Run has exited.
var ErrStopped = errors.New("session controller stopped")

const eventBuffer = 64

// AvatarSink receives the rendering parameters derived from every state change.
type AvatarSink interface {
	Update(p avatar.Params)
}

// Options configures a Controller.
type Options struct {
	Language   string
	MaxPending int
	Timeout    time.Duration
	Settings   settings.Settings
	Avatar     AvatarSink
}

// Controller 是会话的唯一所有者。所有事件由 Run 中的调度协程逐个处理，
// 只有远程生成调用在独立协程中执行，结果再作为事件回到调度协程。
type Controller struct {
	transcript *chatservice.Service
	persona    persona.Persona
	engine     *conversation.Engine
	voice      *voice.Controller
	speech     *speech.Controller
	router     *command.Router
	avatar     AvatarSink
	log        zerolog.Logger

	settings   settings.Settings
	maxPending int
	pending    []string
	generating bool
	runCtx     context.Context

	events  chan event
	done    chan struct{}
	running sync.Once

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
	last    Snapshot
}

// New wires a session for persona p. The transcript is seeded with the persona's opening line.
func New(transcript *chatservice.Service, generator ai.Generator, p persona.Persona, capturer voice.Capturer, synth speech.Synthesizer, opts Options, log zerolog.Logger) *Controller {
	if opts.MaxPending < 0 {
		opts.MaxPending = 0
	}

	speechCtl := speech.NewController(synth, opts.Language, log)
	c := &Controller{
		transcript: transcript,
		persona:    p,
		engine:     conversation.NewEngine(transcript, generator, p, speechCtl, opts.Timeout, log),
		voice:      voice.NewController(capturer, log),
		speech:     speechCtl,
		router:     command.NewRouter(),
		avatar:     opts.Avatar,
		log:        logging.Component(log, "session"),
		settings:   opts.Settings.Clamp(),
		maxPending: opts.MaxPending,
		events:     make(chan event, eventBuffer),
		done:       make(chan struct{}),
		subs:       make(map[int]chan Snapshot),
	}

	if p.OpeningLine != "" {
		if _, err := transcript.Append(chat.Message{
			Role:    chat.RoleAssistant,
			Content: p.OpeningLine,
			Emotion: emotion.Neutral,
		}); err != nil {
			c.log.Warn().Err(err).Msg("seed opening line failed")
		}
	}
	return c
}

// Run processes events until ctx is cancelled. It may be called only once.
func (c *Controller) Run(ctx context.Context) error {
	started := false
	c.running.Do(func() { started = true })
	if !started {
		return errors.New("session controller already running")
	}
	defer close(c.done)

	c.runCtx = ctx
	c.publish()
	c.log.Info().Str("session", c.transcript.Session().ID).Str("persona", c.persona.ID).Msg("session started")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("session stopped")
			return ctx.Err()
		case ev := <-c.events:
			c.dispatch(ev)
			c.publish()
		}
	}
}

func (c *Controller) dispatch(ev event) {
	c.log.Debug().Str("event", ev.eventName()).Msg("dispatch")

	switch e := ev.(type) {
	case captureStarted:
		c.voice.Started()
	case captureResult:
		if text, ok := c.voice.Result(e.final, e.interim); ok {
			c.handleUtterance(text)
		}
	case captureEnded:
		c.voice.Ended(c.settings.ContinuousListening)
	case toggleMic:
		c.voice.Toggle()
	case submitText:
		e.reply <- c.handleUtterance(e.text)
	case speechEnded:
		c.speech.Ended(e.utteranceID)
	case cancelSpeech:
		c.speech.Cancel()
	case updateSettings:
		c.settings = c.settings.Apply(e.patch)
		e.reply <- c.settings
	case clientConnected:
		c.speech.SetVoices(e.voices)
	case clientDisconnected:
		c.voice.Stop()
		c.speech.Cancel()
	case generationDone:
		c.finishGeneration(e.reply, e.err)
	case snapshotRequest:
		e.reply <- c.snapshot()
	default:
		c.log.Warn().Str("event", ev.eventName()).Msg("unhandled event")
	}
}

// handleUtterance 先匹配本地命令；否则立即记录用户消息，生成进行中时按先进先出排队。
func (c *Controller) handleUtterance(text string) Outcome {
	if cmd, ok := c.router.Route(text, c); ok {
		c.log.Info().Str("command", string(cmd)).Msg("local command")
		metrics.Commands.WithLabelValues(string(cmd)).Inc()
		metrics.Utterances.WithLabelValues(string(OutcomeCommand)).Inc()
		return OutcomeCommand
	}

	text, err := c.engine.Record(text)
	if err != nil {
		c.log.Debug().Err(err).Msg("utterance ignored")
		return OutcomeIgnored
	}

	if c.generating {
		if len(c.pending) >= c.maxPending {
			c.log.Warn().Int("pending", len(c.pending)).Msg("pending utterance queue full, dropping")
			metrics.Utterances.WithLabelValues(string(OutcomeDropped)).Inc()
			return OutcomeDropped
		}
		c.pending = append(c.pending, text)
		metrics.Utterances.WithLabelValues(string(OutcomeQueued)).Inc()
		return OutcomeQueued
	}

	c.startGeneration(text)
	metrics.Utterances.WithLabelValues(string(OutcomeConversation)).Inc()
	return OutcomeConversation
}

func (c *Controller) startGeneration(text string) {
	req := c.engine.Request(text)

	c.voice.Begin()
	c.generating = true

	ctx := c.runCtx
	go func() {
		reply, err := c.engine.Generate(ctx, req)
		select {
		case c.events <- generationDone{reply: reply, err: err}:
		case <-c.done:
		}
	}()
}

func (c *Controller) finishGeneration(reply string, err error) {
	c.engine.Apply(reply, err, c.settings)
	c.voice.Finish()
	c.generating = false

	if len(c.pending) > 0 {
		next := c.pending[0]
		c.pending = c.pending[1:]
		c.startGeneration(next)
	}
}

// CancelSpeech silences speech output.
func (c *Controller) CancelSpeech() {
	c.speech.Cancel()
}

// ClearTranscript empties the transcript.
func (c *Controller) ClearTranscript() {
	c.transcript.Clear()
}

// ToggleHighContrast flips the high-contrast display flag.
func (c *Controller) ToggleHighContrast() {
	c.settings.HighContrast = !c.settings.HighContrast
}

func (c *Controller) snapshot() Snapshot {
	session := c.transcript.Session()
	return Snapshot{
		SessionID:        session.ID,
		PersonaID:        session.PersonaID,
		VoiceState:       c.voice.State(),
		Interim:          c.voice.Interim(),
		Emotion:          c.engine.Emotion(),
		Speaking:         c.speech.Speaking(),
		CaptureAvailable: c.voice.Available(),
		Generating:       c.generating,
		Pending:          len(c.pending),
		Messages:         c.transcript.Len(),
		Settings:         c.settings,
	}
}

// publish 将最新快照推送给头像循环与订阅者，快照未变化时跳过。
func (c *Controller) publish() {
	snap := c.snapshot()

	if c.avatar != nil {
		c.avatar.Update(avatar.Params{
			Emotion:   snap.Emotion,
			Speaking:  snap.Speaking,
			Listening: snap.VoiceState == voice.Listening,
		})
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if snap == c.last {
		return
	}
	c.last = snap
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Subscribe 返回快照推送通道及取消函数。消费过慢的订阅者会丢失中间快照。
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

// Transcript exposes the read side of the transcript store.
func (c *Controller) Transcript() *chatservice.Service {
	return c.transcript
}

func (c *Controller) send(ctx context.Context, ev event) error {
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func request[T any](ctx context.Context, c *Controller, build func(reply chan T) event) (T, error) {
	var zero T
	reply := make(chan T, 1)
	if err := c.send(ctx, build(reply)); err != nil {
		return zero, err
	}

	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	return request(ctx, c, func(reply chan Snapshot) event { return snapshotRequest{reply: reply} })
}

// SubmitText handles text as a finalized utterance and reports what happened to it.
func (c *Controller) SubmitText(ctx context.Context, text string) (Outcome, error) {
	return request(ctx, c, func(reply chan Outcome) event { return submitText{text: text, reply: reply} })
}

// UpdateSettings applies a partial update and returns the resulting settings.
func (c *Controller) UpdateSettings(ctx context.Context, patch settings.Patch) (settings.Settings, error) {
	return request(ctx, c, func(reply chan settings.Settings) event { return updateSettings{patch: patch, reply: reply} })
}

// ToggleMic starts capture when inactive and stops it otherwise.
func (c *Controller) ToggleMic(ctx context.Context) error {
	return c.send(ctx, toggleMic{})
}

// StopSpeech cancels speech output.
func (c *Controller) StopSpeech(ctx context.Context) error {
	return c.send(ctx, cancelSpeech{})
}

// CaptureStarted records that the host began capturing.
func (c *Controller) CaptureStarted(ctx context.Context) error {
	return c.send(ctx, captureStarted{})
}

// CaptureResult delivers one transcription update.
func (c *Controller) CaptureResult(ctx context.Context, final, interim string) error {
	return c.send(ctx, captureResult{final: final, interim: interim})
}

// CaptureEnded records the end of the host capture session.
func (c *Controller) CaptureEnded(ctx context.Context) error {
	return c.send(ctx, captureEnded{})
}

// SpeechEnded records the end of playback for utteranceID.
func (c *Controller) SpeechEnded(ctx context.Context, utteranceID string) error {
	return c.send(ctx, speechEnded{utteranceID: utteranceID})
}

// ClientConnected registers the voices offered by a newly attached host.
func (c *Controller) ClientConnected(ctx context.Context, voices []speech.Voice) error {
	return c.send(ctx, clientConnected{voices: voices})
}

// ClientDisconnected resets capture and speech after the host detaches.
func (c *Controller) ClientDisconnected(ctx context.Context) error {
	return c.send(ctx, clientDisconnected{})
}
