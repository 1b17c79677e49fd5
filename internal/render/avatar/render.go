// Package avatar computes the animated waveform that represents the assistant.
package avatar

import (
	"math"

	"github.com/zhouzirui/karen-os/backend/internal/analysis/emotion"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 400

	// PhaseStep is the phase advance per frame.
	PhaseStep = 0.15

	idleAmplitude      = 2.0
	idleFrequency      = 0.05
	speakingBase       = 30.0
	speakingSwing      = 20.0
	speakingFrequency  = 0.1
	listeningBase      = 10.0
	listeningJitter    = 5.0
	listeningFrequency = 0.2
	ringRadius         = 40.0
	ringSwing          = 10.0
	strokeWidth        = 3
)

// Params are the inputs that select the waveform shape.
type Params struct {
	Emotion   emotion.Label `json:"emotion"`
	Speaking  bool          `json:"speaking"`
	Listening bool          `json:"listening"`
}

// Geometry describes the drawing surface.
type Geometry struct {
	Width      int `json:"width"`
	Height     int `json:"height"`
	SampleStep int `json:"sampleStep"`
}

// DefaultGeometry returns the 800x400 canvas sampled every step pixels.
func DefaultGeometry(step int) Geometry {
	return Geometry{Width: DefaultWidth, Height: DefaultHeight, SampleStep: step}
}

// Point is one sample of the waveform polyline.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Ring is the pulsing circle overlaid for the surprised emotion.
type Ring struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// Frame 是一帧绘制结果，由宿主端直接描线。
type Frame struct {
	Phase       float64 `json:"phase"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Color       string  `json:"color"`
	StrokeWidth int     `json:"strokeWidth"`
	Points      []Point `json:"points"`
	Ring        *Ring   `json:"ring,omitempty"`
}

// Render 根据相位与参数计算一帧波形。除 random 外没有副作用，random 需返回 [0,1) 的值。
func Render(phase float64, p Params, g Geometry, random func() float64) Frame {
	if g.Width <= 0 {
		g.Width = DefaultWidth
	}
	if g.Height <= 0 {
		g.Height = DefaultHeight
	}
	if g.SampleStep <= 0 {
		g.SampleStep = 1
	}

	label := p.Emotion
	if !label.Valid() {
		label = emotion.Neutral
	}
	ampMod := emotion.AmplitudeModifier(label)
	freqMod := emotion.FrequencyModifier(label)
	midY := float64(g.Height) / 2

	frame := Frame{
		Phase:       phase,
		Width:       g.Width,
		Height:      g.Height,
		Color:       emotion.ColorFor(label),
		StrokeWidth: strokeWidth,
		Points:      make([]Point, 0, g.Width/g.SampleStep+1),
	}

	for x := 0; x < g.Width; x += g.SampleStep {
		amplitude, frequency := idleAmplitude, idleFrequency
		switch {
		case p.Speaking:
			amplitude = speakingBase + math.Sin(phase*0.2)*speakingSwing
			frequency = speakingFrequency
		case p.Listening:
			amplitude = listeningBase + random()*listeningJitter
			frequency = listeningFrequency
		}
		amplitude *= ampMod
		frequency *= freqMod

		fx := float64(x)
		frame.Points = append(frame.Points, Point{X: fx, Y: midY + math.Sin(fx*frequency+phase)*amplitude})
	}

	if label == emotion.Surprised {
		frame.Ring = &Ring{
			X:      float64(g.Width) / 2,
			Y:      midY,
			Radius: ringRadius + math.Sin(phase)*ringSwing,
		}
	}
	return frame
}
