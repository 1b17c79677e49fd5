package speech

import (
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/karen-os/backend/internal/logging"
	"github.com/zhouzirui/karen-os/backend/internal/model/settings"
)

// Voice 描述宿主环境提供的一个合成音色。
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"lang"`
}

// Utterance is one text-to-speech playback request.
type Utterance struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Rate     float64 `json:"rate"`
	Pitch    float64 `json:"pitch"`
	Volume   float64 `json:"volume"`
	Language string  `json:"lang"`
	VoiceID  string  `json:"voiceId,omitempty"`
}

// Synthesizer is the host-side text-to-speech collaborator.
type Synthesizer interface {
	Speak(u Utterance) error
	Cancel() error
}

// Controller 保证同一时刻最多只有一条语音在播放。
// 它不是并发安全的，只能由会话调度协程调用。
type Controller struct {
	synth    Synthesizer
	language string
	log      zerolog.Logger
	voices   []Voice
	current  string
	onDone   func()
}

// NewController creates a speech output controller for the target language.
func NewController(synth Synthesizer, language string, log zerolog.Logger) *Controller {
	return &Controller{
		synth:    synth,
		language: language,
		log:      logging.Component(log, "speech"),
	}
}

// SetVoices replaces the list of voices offered by the host.
func (c *Controller) SetVoices(voices []Voice) {
	c.voices = append([]Voice(nil), voices...)
}

// Speaking reports whether an utterance is currently playing.
func (c *Controller) Speaking() bool {
	return c.current != ""
}

// Speak 取消正在播放的语音并开始播放 text。onDone 仅在本次播放正常结束时调用一次。
func (c *Controller) Speak(text string, s settings.Settings, onDone func()) (Utterance, error) {
	c.Cancel()

	s = s.Clamp()
	u := Utterance{
		ID:       uuid.NewString(),
		Text:     text,
		Rate:     s.VoiceRate,
		Pitch:    s.VoicePitch,
		Volume:   s.VoiceVolume,
		Language: c.language,
		VoiceID:  c.selectVoice(s.SelectedVoice),
	}

	if c.synth == nil {
		return Utterance{}, ErrSynthesizerUnavailable
	}
	if err := c.synth.Speak(u); err != nil {
		return Utterance{}, err
	}

	c.current = u.ID
	c.onDone = onDone
	c.log.Debug().Str("utterance", u.ID).Str("voice", u.VoiceID).Int("chars", len(text)).Msg("speaking")
	return u, nil
}

// Cancel silences the current utterance. Its completion callback is dropped.
func (c *Controller) Cancel() {
	if c.synth != nil {
		if err := c.synth.Cancel(); err != nil {
			c.log.Warn().Err(err).Msg("speech cancel failed")
		}
	}
	c.current = ""
	c.onDone = nil
}

// Ended records the end of playback for utteranceID.
func (c *Controller) Ended(utteranceID string) {
	if utteranceID == "" || utteranceID != c.current {
		return
	}

	done := c.onDone
	c.current = ""
	c.onDone = nil
	if done != nil {
		done()
	}
}

func (c *Controller) selectVoice(preferred string) string {
	preferred = strings.TrimSpace(preferred)
	if preferred != "" {
		for _, v := range c.voices {
			if v.ID == preferred || v.Name == preferred {
				return v.ID
			}
		}
	}

	for _, v := range c.voices {
		if strings.EqualFold(v.Language, c.language) {
			return v.ID
		}
	}

	if len(c.voices) > 0 {
		return c.voices[0].ID
	}
	return ""
}
