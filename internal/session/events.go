package session

import (
	"github.com/zhouzirui/karen-os/backend/internal/model/settings"
	"github.com/zhouzirui/karen-os/backend/internal/service/speech"
)

// event 是调度协程处理的事件，每种宿主回调对应一个具体类型。
type event interface {
	eventName() string
}

type captureStarted struct{}

type captureResult struct {
	final   string
	interim string
}

type captureEnded struct{}

type toggleMic struct{}

type submitText struct {
	text  string
	reply chan Outcome
}

type speechEnded struct {
	utteranceID string
}

type cancelSpeech struct{}

type updateSettings struct {
	patch settings.Patch
	reply chan settings.Settings
}

type clientConnected struct {
	voices []speech.Voice
}

type clientDisconnected struct{}

type generationDone struct {
	reply string
	err   error
}

type snapshotRequest struct {
	reply chan Snapshot
}

func (captureStarted) eventName() string     { return "capture.started" }
func (captureResult) eventName() string      { return "capture.result" }
func (captureEnded) eventName() string       { return "capture.ended" }
func (toggleMic) eventName() string          { return "mic.toggle" }
func (submitText) eventName() string         { return "text" }
func (speechEnded) eventName() string        { return "speech.ended" }
func (cancelSpeech) eventName() string       { return "speech.cancel" }
func (updateSettings) eventName() string     { return "settings" }
func (clientConnected) eventName() string    { return "client.connected" }
func (clientDisconnected) eventName() string { return "client.disconnected" }
func (generationDone) eventName() string     { return "generation.done" }
func (snapshotRequest) eventName() string    { return "snapshot" }
