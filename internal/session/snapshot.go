package session

import (
	"github.com/zhouzirui/karen-os/backend/internal/analysis/emotion"
	"github.com/zhouzirui/karen-os/backend/internal/model/settings"
	"github.com/zhouzirui/karen-os/backend/internal/service/voice"
)

// Snapshot 是会话状态的只读视图，推送给 SSE 与实时客户端。
type Snapshot struct {
	SessionID        string            `json:"sessionId"`
	PersonaID        string            `json:"personaId"`
	VoiceState       voice.State       `json:"voiceState"`
	Interim          string            `json:"interim"`
	Emotion          emotion.Label     `json:"emotion"`
	Speaking         bool              `json:"speaking"`
	CaptureAvailable bool              `json:"captureAvailable"`
	Generating       bool              `json:"generating"`
	Pending          int               `json:"pending"`
	Messages         int               `json:"messages"`
	Settings         settings.Settings `json:"settings"`
}

// Outcome describes how a submitted utterance was handled.
type Outcome string

const (
	OutcomeCommand      Outcome = "command"
	OutcomeConversation Outcome = "conversation"
	OutcomeQueued       Outcome = "queued"
	OutcomeDropped      Outcome = "dropped"
	OutcomeIgnored      Outcome = "ignored"
)
