package realtime

import (
	"encoding/json"

	"github.com/zhouzirui/karen-os/backend/internal/service/speech"
)

// Inbound message types sent by the host page.
const (
	TypeHello          = "hello"
	TypeCaptureStarted = "capture.started"
	TypeCaptureResult  = "capture.result"
	TypeCaptureEnded   = "capture.ended"
	TypeSpeechEnded    = "speech.ended"
	TypeMicToggle      = "mic.toggle"
	TypeText           = "text"
	TypeSpeechCancel   = "speech.cancel"
	TypeSettings       = "settings"
)

// Outbound message types sent to the host page.
const (
	TypeState        = "state"
	TypeCaptureStart = "capture.start"
	TypeCaptureStop  = "capture.stop"
	TypeSpeechSpeak  = "speech.speak"
	TypeAvatarFrame  = "avatar.frame"
	TypeOutcome      = "text.outcome"
	TypeError        = "error"
)

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// HelloMessage 是宿主连接后上报的能力描述。
type HelloMessage struct {
	CaptureSupported bool           `json:"captureSupported"`
	Voices           []speech.Voice `json:"voices"`
}

// CaptureResultMessage carries one transcription update.
type CaptureResultMessage struct {
	FinalText   string `json:"finalText"`
	InterimText string `json:"interimText"`
}

// SpeechEndedMessage reports the end of playback.
type SpeechEndedMessage struct {
	UtteranceID string `json:"utteranceId"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}
