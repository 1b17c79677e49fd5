package command

import "strings"

// Command identifies a local control phrase.
type Command string

const (
	StopSpeaking   Command = "stop_speaking"
	ClearScreen    Command = "clear_screen"
	ToggleContrast Command = "toggle_contrast"
)

// Actions 由会话控制器实现，承载本地命令的副作用。
type Actions interface {
	CancelSpeech()
	ClearTranscript()
	ToggleHighContrast()
}

type rule struct {
	command Command
	phrases []string
}

// Router 在话语到达对话引擎之前拦截本地控制短语。
type Router struct {
	rules []rule
}

// NewRouter returns a router with the built-in pt-BR phrases, evaluated in priority order.
func NewRouter() *Router {
	return &Router{rules: []rule{
		{command: StopSpeaking, phrases: []string{"karen, pare", "karen, silêncio"}},
		{command: ClearScreen, phrases: []string{"karen, limpe a tela"}},
		{command: ToggleContrast, phrases: []string{"karen, modo escuro"}},
	}}
}

// Match returns the first command whose phrase is contained in text, case-insensitively.
func (r *Router) Match(text string) (Command, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return "", false
	}

	for _, rl := range r.rules {
		for _, phrase := range rl.phrases {
			if strings.Contains(normalized, phrase) {
				return rl.command, true
			}
		}
	}
	return "", false
}

// Route 匹配并执行命令。返回 false 表示话语应继续交给对话引擎。
func (r *Router) Route(text string, actions Actions) (Command, bool) {
	cmd, ok := r.Match(text)
	if !ok {
		return "", false
	}

	switch cmd {
	case StopSpeaking:
		actions.CancelSpeech()
	case ClearScreen:
		actions.ClearTranscript()
	case ToggleContrast:
		actions.ToggleHighContrast()
	}
	return cmd, true
}
