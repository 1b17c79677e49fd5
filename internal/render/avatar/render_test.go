package avatar

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/karen-os/backend/internal/analysis/emotion"
)

func fixedRandom(v float64) func() float64 {
	return func() float64 { return v }
}

func TestRenderIdle(t *testing.T) {
	g := Geometry{Width: 100, Height: 40, SampleStep: 10}
	frame := Render(0, Params{Emotion: emotion.Neutral}, g, fixedRandom(0))

	require.Len(t, frame.Points, 10)
	assert.Equal(t, "#39FF14", frame.Color)
	assert.Nil(t, frame.Ring)
	for _, p := range frame.Points {
		want := 20 + math.Sin(p.X*idleFrequency)*idleAmplitude
		assert.InDelta(t, want, p.Y, 1e-9)
	}
}

func TestRenderSpeakingAngry(t *testing.T) {
	g := Geometry{Width: 50, Height: 40, SampleStep: 5}
	phase := 1.5
	frame := Render(phase, Params{Emotion: emotion.Angry, Speaking: true}, g, fixedRandom(0))

	amplitude := 30 + math.Sin(phase*0.2)*20
	frequency := speakingFrequency * 2
	for _, p := range frame.Points {
		assert.InDelta(t, 20+math.Sin(p.X*frequency+phase)*amplitude, p.Y, 1e-9)
	}
	assert.Equal(t, emotion.ColorFor(emotion.Angry), frame.Color)
}

func TestRenderListeningUsesJitter(t *testing.T) {
	g := Geometry{Width: 20, Height: 40, SampleStep: 10}
	frame := Render(0, Params{Emotion: emotion.Sad, Listening: true}, g, fixedRandom(0.5))

	amplitude := (10 + 0.5*5) * 0.5
	for _, p := range frame.Points {
		assert.InDelta(t, 20+math.Sin(p.X*listeningFrequency)*amplitude, p.Y, 1e-9)
	}
}

func TestRenderSpeakingTakesPriority(t *testing.T) {
	g := Geometry{Width: 10, Height: 40, SampleStep: 1}
	calls := 0
	Render(0, Params{Speaking: true, Listening: true}, g, func() float64 {
		calls++
		return 0
	})
	assert.Zero(t, calls)
}

func TestRenderSurprisedRing(t *testing.T) {
	frame := Render(math.Pi/2, Params{Emotion: emotion.Surprised}, DefaultGeometry(8), fixedRandom(0))

	require.NotNil(t, frame.Ring)
	assert.Equal(t, 400.0, frame.Ring.X)
	assert.Equal(t, 200.0, frame.Ring.Y)
	assert.InDelta(t, 50.0, frame.Ring.Radius, 1e-9)
	assert.Len(t, frame.Points, 100)
}

func TestRenderUnknownEmotionFallsBack(t *testing.T) {
	frame := Render(0, Params{Emotion: "bored"}, DefaultGeometry(100), fixedRandom(0))
	assert.Equal(t, emotion.ColorFor(emotion.Neutral), frame.Color)
}

func TestLoopResetsPhaseOnChange(t *testing.T) {
	loop := NewLoop(nil, DefaultGeometry(100), 30, zerolog.Nop())
	assert.Equal(t, Params{Emotion: emotion.Neutral}, loop.Params())

	loop.Step()
	second := loop.Step()
	assert.InDelta(t, PhaseStep, second.Phase, 1e-9)

	loop.Update(Params{Emotion: emotion.Neutral})
	assert.InDelta(t, 2*PhaseStep, loop.Step().Phase, 1e-9, "unchanged params keep the phase")

	loop.Update(Params{Emotion: emotion.Happy, Speaking: true})
	assert.Zero(t, loop.Step().Phase)
	assert.Equal(t, emotion.Happy, loop.Params().Emotion)
}

type recordingSurface struct {
	mu     sync.Mutex
	frames []Frame
}

func (s *recordingSurface) Draw(frame Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSurface) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestLoopRunStopsOnCancel(t *testing.T) {
	surface := &recordingSurface{}
	loop := NewLoop(surface, DefaultGeometry(100), 200, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return surface.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}
