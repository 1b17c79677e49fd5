package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings 描述用户可调的语音与界面参数。
type Settings struct {
	VoiceRate           float64 `json:"voiceRate" yaml:"voiceRate"`
	VoicePitch          float64 `json:"voicePitch" yaml:"voicePitch"`
	VoiceVolume         float64 `json:"voiceVolume" yaml:"voiceVolume"`
	EnableTTS           bool    `json:"enableTTS" yaml:"enableTTS"`
	ContinuousListening bool    `json:"continuousListening" yaml:"continuousListening"`
	HighContrast        bool    `json:"highContrast" yaml:"highContrast"`
	MicSensitivity      float64 `json:"micSensitivity" yaml:"micSensitivity"`
	SelectedVoice       string  `json:"selectedVoice" yaml:"selectedVoice"`
}

// Defaults returns the initial settings of a new session.
func Defaults() Settings {
	return Settings{
		VoiceRate:           1.0,
		VoicePitch:          0.9,
		VoiceVolume:         0.8,
		EnableTTS:           true,
		ContinuousListening: false,
		HighContrast:        false,
		MicSensitivity:      0.5,
		SelectedVoice:       "Google português do Brasil",
	}
}

// Clamp forces every numeric field into its allowed range.
func (s Settings) Clamp() Settings {
	s.VoiceRate = clamp(s.VoiceRate, 0.5, 2.0)
	s.VoicePitch = clamp(s.VoicePitch, 0.5, 2.0)
	s.VoiceVolume = clamp(s.VoiceVolume, 0, 1)
	s.MicSensitivity = clamp(s.MicSensitivity, 0, 1)
	return s
}

// Patch 表示部分更新，nil 字段保持原值。
type Patch struct {
	VoiceRate           *float64 `json:"voiceRate,omitempty"`
	VoicePitch          *float64 `json:"voicePitch,omitempty"`
	VoiceVolume         *float64 `json:"voiceVolume,omitempty"`
	EnableTTS           *bool    `json:"enableTTS,omitempty"`
	ContinuousListening *bool    `json:"continuousListening,omitempty"`
	HighContrast        *bool    `json:"highContrast,omitempty"`
	MicSensitivity      *float64 `json:"micSensitivity,omitempty"`
	SelectedVoice       *string  `json:"selectedVoice,omitempty"`
}

// Apply returns s with the non-nil fields of p applied and clamped.
func (s Settings) Apply(p Patch) Settings {
	if p.VoiceRate != nil {
		s.VoiceRate = *p.VoiceRate
	}
	if p.VoicePitch != nil {
		s.VoicePitch = *p.VoicePitch
	}
	if p.VoiceVolume != nil {
		s.VoiceVolume = *p.VoiceVolume
	}
	if p.EnableTTS != nil {
		s.EnableTTS = *p.EnableTTS
	}
	if p.ContinuousListening != nil {
		s.ContinuousListening = *p.ContinuousListening
	}
	if p.HighContrast != nil {
		s.HighContrast = *p.HighContrast
	}
	if p.MicSensitivity != nil {
		s.MicSensitivity = *p.MicSensitivity
	}
	if p.SelectedVoice != nil {
		s.SelectedVoice = *p.SelectedVoice
	}
	return s.Clamp()
}

// LoadFile 从 YAML 文件读取默认设置，文件中缺失的字段沿用 Defaults。
func LoadFile(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}

	s := Defaults()
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	return s.Clamp(), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
