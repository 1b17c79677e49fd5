package emotion

import "strings"

// Label 表示头像与回复可携带的情绪标签，取值为封闭集合。
type Label string

const (
	Neutral   Label = "neutral"
	Happy     Label = "happy"
	Sad       Label = "sad"
	Angry     Label = "angry"
	Surprised Label = "surprised"
	Evil      Label = "evil"
)

type profile struct {
	color     string
	amplitude float64
	frequency float64
}

var profiles = map[Label]profile{
	Neutral:   {color: "#39FF14", amplitude: 1, frequency: 1},
	Happy:     {color: "#f1c40f", amplitude: 1, frequency: 1},
	Sad:       {color: "#3498db", amplitude: 0.5, frequency: 1},
	Angry:     {color: "#e74c3c", amplitude: 1, frequency: 2},
	Surprised: {color: "#9b59b6", amplitude: 1, frequency: 1},
	Evil:      {color: "#8e44ad", amplitude: 1.5, frequency: 0.5},
}

// Labels returns the closed label set in display order.
func Labels() []Label {
	return []Label{Neutral, Happy, Sad, Angry, Surprised, Evil}
}

// Parse 严格解析情绪名称，未知值返回 false。
func Parse(raw string) (Label, bool) {
	label := Label(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := profiles[label]; !ok {
		return "", false
	}
	return label, true
}

// Normalize 解析情绪名称，未知值回退到 neutral。
func Normalize(raw string) Label {
	if label, ok := Parse(raw); ok {
		return label
	}
	return Neutral
}

// Valid reports whether the label belongs to the closed set.
func (l Label) Valid() bool {
	_, ok := profiles[l]
	return ok
}

func lookup(label Label) profile {
	if p, ok := profiles[label]; ok {
		return p
	}
	return profiles[Neutral]
}

// ColorFor 返回情绪对应的波形颜色。
func ColorFor(label Label) string {
	return lookup(label).color
}

// AmplitudeModifier 返回情绪对波形振幅的倍率。
func AmplitudeModifier(label Label) float64 {
	return lookup(label).amplitude
}

// FrequencyModifier 返回情绪对波形频率的倍率。
func FrequencyModifier(label Label) float64 {
	return lookup(label).frequency
}
