package chat

import (
	"time"

	"github.com/zhouzirui/karen-os/backend/internal/analysis/emotion"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 是会话中的一条记录，追加后不可修改。
type Message struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Emotion   emotion.Label `json:"emotion,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
