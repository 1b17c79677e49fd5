package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/karen-os/backend/internal/analysis/emotion"
	"github.com/zhouzirui/karen-os/backend/internal/model/chat"
	"github.com/zhouzirui/karen-os/backend/internal/model/persona"
	"github.com/zhouzirui/karen-os/backend/internal/model/settings"
	"github.com/zhouzirui/karen-os/backend/internal/render/avatar"
	"github.com/zhouzirui/karen-os/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/karen-os/backend/internal/service/chat"
	"github.com/zhouzirui/karen-os/backend/internal/service/speech"
	"github.com/zhouzirui/karen-os/backend/internal/service/voice"
)

type gatedGenerator struct {
	mu      sync.Mutex
	calls   []ai.Request
	release chan struct{}
	reply   string
	err     error
}

func (g *gatedGenerator) Generate(ctx context.Context, req ai.Request) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()

	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.reply, g.err
}

func (g *gatedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakeCapturer struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (f *fakeCapturer) Available() bool { return true }

func (f *fakeCapturer) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeCapturer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

type fakeSynth struct {
	mu      sync.Mutex
	spoken  []speech.Utterance
	cancels int
}

func (f *fakeSynth) Speak(u speech.Utterance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, u)
	return nil
}

func (f *fakeSynth) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func (f *fakeSynth) last() (speech.Utterance, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.spoken) == 0 {
		return speech.Utterance{}, false
	}
	return f.spoken[len(f.spoken)-1], true
}

type recordingAvatar struct {
	mu     sync.Mutex
	params avatar.Params
}

func (r *recordingAvatar) Update(p avatar.Params) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params = p
}

func (r *recordingAvatar) get() avatar.Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params
}

type harness struct {
	ctl    *Controller
	gen    *gatedGenerator
	synth  *fakeSynth
	capt   *fakeCapturer
	avatar *recordingAvatar
	ctx    context.Context
}

func newHarness(t *testing.T, gen *gatedGenerator, maxPending int) *harness {
	t.Helper()

	p, ok := persona.NewMemoryStore(persona.Seed()).FindByID("karen")
	require.True(t, ok)

	h := &harness{
		gen:    gen,
		synth:  &fakeSynth{},
		capt:   &fakeCapturer{},
		avatar: &recordingAvatar{},
	}
	h.ctl = New(chatservice.NewService(p.ID), gen, p, h.capt, h.synth, Options{
		Language:   "pt-BR",
		MaxPending: maxPending,
		Settings:   settings.Defaults(),
		Avatar:     h.avatar,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.ctl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	h.ctx = ctx
	return h
}

func (h *harness) snapshot(t *testing.T) Snapshot {
	t.Helper()
	snap, err := h.ctl.Snapshot(h.ctx)
	require.NoError(t, err)
	return snap
}

func (h *harness) waitFor(t *testing.T, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		snap = h.snapshot(t)
		return cond(snap)
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func (h *harness) listen(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctl.ToggleMic(h.ctx))
	require.NoError(t, h.ctl.CaptureStarted(h.ctx))
	h.waitFor(t, func(s Snapshot) bool { return s.VoiceState == voice.Listening })
}

func TestOpeningLineSeeded(t *testing.T) {
	h := newHarness(t, &gatedGenerator{}, 4)

	messages := h.ctl.Transcript().Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, chat.RoleAssistant, messages[0].Role)
	assert.Equal(t, emotion.Neutral, messages[0].Emotion)

	snap := h.snapshot(t)
	assert.Equal(t, voice.Inactive, snap.VoiceState)
	assert.Equal(t, emotion.Neutral, snap.Emotion)
	assert.True(t, snap.CaptureAvailable)
}

func TestClearCommandSkipsGeneration(t *testing.T) {
	gen := &gatedGenerator{reply: "nunca"}
	h := newHarness(t, gen, 4)
	h.listen(t)

	require.NoError(t, h.ctl.CaptureResult(h.ctx, "Karen, limpe a tela", ""))

	snap := h.waitFor(t, func(s Snapshot) bool { return s.Messages == 0 })
	assert.Equal(t, voice.Listening, snap.VoiceState, "voice state unaffected")
	assert.Zero(t, gen.callCount())
}

func TestContrastCommandToggles(t *testing.T) {
	h := newHarness(t, &gatedGenerator{}, 4)

	outcome, err := h.ctl.SubmitText(h.ctx, "karen, modo escuro")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommand, outcome)
	assert.True(t, h.snapshot(t).Settings.HighContrast)

	_, err = h.ctl.SubmitText(h.ctx, "karen, modo escuro")
	require.NoError(t, err)
	assert.False(t, h.snapshot(t).Settings.HighContrast)
	assert.Equal(t, 1, h.ctl.Transcript().Len(), "commands never reach the transcript")
}

func TestVoiceUtterancePassesThroughProcessing(t *testing.T) {
	gen := &gatedGenerator{release: make(chan struct{}), err: errors.New("boom")}
	h := newHarness(t, gen, 4)
	h.listen(t)

	require.NoError(t, h.ctl.CaptureResult(h.ctx, "", "ol"))
	h.waitFor(t, func(s Snapshot) bool { return s.Interim == "ol" })

	require.NoError(t, h.ctl.CaptureResult(h.ctx, "olá karen", ""))
	snap := h.waitFor(t, func(s Snapshot) bool { return s.VoiceState == voice.Processing })
	assert.True(t, snap.Generating)
	assert.Empty(t, snap.Interim)

	close(gen.release)
	snap = h.waitFor(t, func(s Snapshot) bool { return !s.Generating })
	assert.Equal(t, voice.Inactive, snap.VoiceState)

	messages := h.ctl.Transcript().Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "olá karen", messages[1].Content)
	assert.Equal(t, "Maldito Siri Cascudo! Tive um erro de conexão.", messages[2].Content)
	assert.Equal(t, emotion.Sad, messages[2].Emotion)
}

func TestReplyIsSpokenAndDrivesAvatar(t *testing.T) {
	gen := &gatedGenerator{reply: "Surpresa! [EMOTION: SURPRISED]"}
	h := newHarness(t, gen, 4)

	outcome, err := h.ctl.SubmitText(h.ctx, "oi")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConversation, outcome)

	snap := h.waitFor(t, func(s Snapshot) bool { return s.Speaking })
	assert.Equal(t, emotion.Surprised, snap.Emotion)
	assert.Equal(t, avatar.Params{Emotion: emotion.Surprised, Speaking: true}, h.avatar.get())

	u, ok := h.synth.last()
	require.True(t, ok)
	assert.Equal(t, "Surpresa!", u.Text)
	assert.Equal(t, "pt-BR", u.Language)

	require.NoError(t, h.ctl.SpeechEnded(h.ctx, u.ID))
	h.waitFor(t, func(s Snapshot) bool { return !s.Speaking })
}

func TestStopCommandCancelsSpeech(t *testing.T) {
	h := newHarness(t, &gatedGenerator{reply: "Ok."}, 4)

	_, err := h.ctl.SubmitText(h.ctx, "oi")
	require.NoError(t, err)
	h.waitFor(t, func(s Snapshot) bool { return s.Speaking })

	outcome, err := h.ctl.SubmitText(h.ctx, "Karen, pare!")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommand, outcome)
	assert.False(t, h.snapshot(t).Speaking)
}

func TestOverlappingUtterancesQueue(t *testing.T) {
	gen := &gatedGenerator{release: make(chan struct{}), reply: "Ok. [EMOTION: HAPPY]"}
	h := newHarness(t, gen, 1)

	first, err := h.ctl.SubmitText(h.ctx, "um")
	require.NoError(t, err)
	second, err := h.ctl.SubmitText(h.ctx, "dois")
	require.NoError(t, err)
	third, err := h.ctl.SubmitText(h.ctx, "três")
	require.NoError(t, err)

	assert.Equal(t, OutcomeConversation, first)
	assert.Equal(t, OutcomeQueued, second)
	assert.Equal(t, OutcomeDropped, third)
	assert.Equal(t, 1, h.snapshot(t).Pending)

	close(gen.release)
	h.waitFor(t, func(s Snapshot) bool { return !s.Generating && s.Pending == 0 })
	assert.Equal(t, 2, gen.callCount())

	var contents []string
	for _, msg := range h.ctl.Transcript().Messages()[1:] {
		contents = append(contents, msg.Content)
	}
	assert.Equal(t, []string{"um", "dois", "três", "Ok.", "Ok."}, contents, "user messages are recorded on arrival, even when dropped")
}

func TestUpdateSettings(t *testing.T) {
	h := newHarness(t, &gatedGenerator{}, 4)

	rate := 5.0
	continuous := true
	updated, err := h.ctl.UpdateSettings(h.ctx, settings.Patch{VoiceRate: &rate, ContinuousListening: &continuous})
	require.NoError(t, err)
	assert.Equal(t, 2.0, updated.VoiceRate)
	assert.True(t, updated.ContinuousListening)

	h.listen(t)
	require.NoError(t, h.ctl.CaptureEnded(h.ctx))
	snap := h.waitFor(t, func(s Snapshot) bool { return !s.Generating })
	assert.Equal(t, voice.Listening, snap.VoiceState, "continuous listening restarts capture")

	h.capt.mu.Lock()
	assert.Equal(t, 2, h.capt.starts)
	h.capt.mu.Unlock()
}

func TestToggleMicStops(t *testing.T) {
	h := newHarness(t, &gatedGenerator{}, 4)
	h.listen(t)

	require.NoError(t, h.ctl.ToggleMic(h.ctx))
	h.waitFor(t, func(s Snapshot) bool { return s.VoiceState == voice.Inactive })

	require.NoError(t, h.ctl.CaptureEnded(h.ctx))
	snap := h.snapshot(t)
	assert.Equal(t, voice.Inactive, snap.VoiceState)
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	h := newHarness(t, &gatedGenerator{}, 4)
	updates, cancel := h.ctl.Subscribe()
	defer cancel()

	require.NoError(t, h.ctl.ToggleMic(h.ctx))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.VoiceState == voice.Listening {
				return
			}
		case <-deadline:
			t.Fatal("no listening snapshot published")
		}
	}
}

func TestRequestsFailAfterStop(t *testing.T) {
	p := persona.Seed()[0]
	ctl := New(chatservice.NewService(p.ID), &gatedGenerator{}, p, nil, nil, Options{Settings: settings.Defaults()}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, ctl.Run(ctx), context.Canceled)

	_, err := ctl.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}
