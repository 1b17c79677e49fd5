package emotion

import (
	"regexp"
	"strings"
)

var markerPattern = regexp.MustCompile(`(?i)\[\s*EMOTION\s*:\s*(\w+)\s*\]`)

// Reply is a model reply with its emotion marker resolved.
type Reply struct {
	Text    string
	Emotion Label
}

// ExtractMarker 返回文本中第一个 [EMOTION: NAME] 标记对应的情绪。
// 没有标记或标记名称不在封闭集合中时返回 false。
func ExtractMarker(text string) (Label, bool) {
	match := markerPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return Parse(match[1])
}

// StripMarkers 删除文本中的全部情绪标记。
func StripMarkers(text string) string {
	return strings.TrimSpace(markerPattern.ReplaceAllString(text, ""))
}

// ParseReply 解析模型回复：提取情绪（缺省为 neutral）并清理展示文本。
func ParseReply(text string) Reply {
	label, ok := ExtractMarker(text)
	if !ok {
		label = Neutral
	}
	return Reply{Text: StripMarkers(text), Emotion: label}
}
