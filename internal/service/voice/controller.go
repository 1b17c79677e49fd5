// Package voice tracks the speech-capture state machine.
package voice

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/karen-os/backend/internal/logging"
)

// State 表示语音采集状态，同一时刻只有一个取值。
type State string

const (
	Inactive   State = "inactive"
	Listening  State = "listening"
	Processing State = "processing"
)

// Capturer is the host-side continuous speech-to-text collaborator.
type Capturer interface {
	Available() bool
	Start() error
	Stop() error
}

// Controller 管理 inactive/listening/processing 状态转换。
// 它不是并发安全的，只能由会话调度协程调用。
type Controller struct {
	capturer  Capturer
	log       zerolog.Logger
	state     State
	capturing bool
	stopped   bool
	interim   string
}

// NewController creates a controller in the inactive state.
func NewController(capturer Capturer, log zerolog.Logger) *Controller {
	return &Controller{
		capturer: capturer,
		log:      logging.Component(log, "voice"),
		state:    Inactive,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Interim returns the live, not yet finalized transcription.
func (c *Controller) Interim() string {
	return c.interim
}

// Capturing reports whether a host capture session is running.
func (c *Controller) Capturing() bool {
	return c.capturing
}

// Available 表示宿主环境是否提供语音采集能力。
func (c *Controller) Available() bool {
	return c.capturer != nil && c.capturer.Available()
}

// Start begins continuous capture. It is a no-op unless the controller is inactive.
func (c *Controller) Start() bool {
	if !c.Available() {
		c.log.Debug().Msg("capture unavailable, ignoring start")
		return false
	}
	if c.state != Inactive {
		return false
	}
	if c.capturing {
		// 宿主的采集会话仍在运行，只恢复监听状态。
		c.stopped = false
		c.transition(Listening)
		return true
	}
	if err := c.capturer.Start(); err != nil {
		c.log.Warn().Err(err).Msg("capture start failed")
		return false
	}

	c.stopped = false
	c.transition(Listening)
	return true
}

// Stop cancels capture from any state and suppresses auto-restart.
func (c *Controller) Stop() {
	if c.Available() && (c.capturing || c.state == Listening) {
		if err := c.capturer.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("capture stop failed")
		}
	}
	c.stopped = true
	c.capturing = false
	c.interim = ""
	c.transition(Inactive)
}

// Toggle 对应麦克风按钮：inactive 时开始采集，否则停止。
func (c *Controller) Toggle() {
	if c.state == Inactive {
		c.Start()
		return
	}
	c.Stop()
}

// Started records that the host capture session is running.
func (c *Controller) Started() {
	c.capturing = true
	if c.state == Inactive && !c.stopped {
		c.transition(Listening)
	}
}

// Result 处理一次采集结果。interim 覆盖实时转写；final 非空时清空实时转写并返回
// 定稿话语。状态不在这里改变：本地命令不影响语音状态，交给对话引擎前需调用 Begin。
func (c *Controller) Result(final, interim string) (string, bool) {
	final = strings.TrimSpace(final)
	if final == "" {
		c.interim = interim
		return "", false
	}

	c.interim = ""
	return final, true
}

// Begin marks an utterance as handed to the conversation engine.
func (c *Controller) Begin() {
	c.transition(Processing)
}

// Ended handles the end of the host capture session.
func (c *Controller) Ended(continuous bool) {
	c.capturing = false

	if continuous && !c.stopped && c.Available() {
		if err := c.capturer.Start(); err != nil {
			c.log.Warn().Err(err).Msg("capture auto-restart failed")
		} else {
			if c.state == Inactive {
				c.transition(Listening)
			}
			return
		}
	}

	if c.state == Listening {
		c.interim = ""
		c.transition(Inactive)
	}
}

// Finish 在对话引擎得到回复或失败后调用，仅把 processing 恢复为 inactive。
func (c *Controller) Finish() {
	if c.state == Processing {
		c.transition(Inactive)
	}
}

func (c *Controller) transition(next State) {
	if c.state == next {
		return
	}
	c.log.Debug().Str("from", string(c.state)).Str("to", string(next)).Msg("voice state")
	c.state = next
}
