package avatar

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/karen-os/backend/internal/analysis/emotion"
	"github.com/zhouzirui/karen-os/backend/internal/logging"
)

// Surface receives rendered frames.
type Surface interface {
	Draw(frame Frame) error
}

// Loop 按固定帧率重绘头像。参数变化时相位归零，相当于重新挂载。
type Loop struct {
	surface  Surface
	geometry Geometry
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	params Params
	phase  float64
	random func() float64
}

// NewLoop creates a redraw loop at fps frames per second.
func NewLoop(surface Surface, geometry Geometry, fps int, log zerolog.Logger) *Loop {
	if fps < 1 {
		fps = 1
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Loop{
		surface:  surface,
		geometry: geometry,
		interval: time.Second / time.Duration(fps),
		log:      logging.Component(log, "avatar"),
		params:   Params{Emotion: emotion.Neutral},
		random:   rng.Float64,
	}
}

// Update 设置新的渲染参数，参数实际变化时重置相位。可在任意协程调用。
func (l *Loop) Update(p Params) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p == l.params {
		return
	}
	l.params = p
	l.phase = 0
}

// Params returns the parameters currently rendered.
func (l *Loop) Params() Params {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.params
}

// Step renders the current frame and advances the phase.
func (l *Loop) Step() Frame {
	l.mu.Lock()
	defer l.mu.Unlock()

	frame := Render(l.phase, l.params, l.geometry, l.random)
	l.phase += PhaseStep
	return frame
}

// Run draws frames until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			frame := l.Step()
			if l.surface == nil {
				continue
			}
			if err := l.surface.Draw(frame); err != nil {
				l.log.Debug().Err(err).Msg("draw frame failed")
			}
		}
	}
}
