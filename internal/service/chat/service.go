package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/karen-os/backend/internal/analysis/emotion"
	"github.com/zhouzirui/karen-os/backend/internal/model/chat"
)

var (
	ErrEmptyContent = errors.New("message content is required")
	ErrInvalidRole  = errors.New("message role must be user or assistant")
)

const recentActivity = 5

// Service 维护单个会话的有序消息记录（只追加，可整体清空）。
type Service struct {
	mu       sync.RWMutex
	session  chat.Session
	messages []chat.Message
	now      func() time.Time
}

// NewService bootstraps the transcript for a session bound to a persona.
func NewService(personaID string) *Service {
	return &Service{
		session: chat.Session{
			ID:        uuid.NewString(),
			PersonaID: personaID,
			CreatedAt: time.Now().UTC(),
		},
		messages: make([]chat.Message, 0, 16),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Session returns the session descriptor.
func (s *Service) Session() chat.Session {
	return s.session
}

// Append 追加一条消息并返回带有 ID 与时间戳的副本。
func (s *Service) Append(message chat.Message) (chat.Message, error) {
	if message.Role != chat.RoleUser && message.Role != chat.RoleAssistant {
		return chat.Message{}, ErrInvalidRole
	}
	if strings.TrimSpace(message.Content) == "" {
		return chat.Message{}, ErrEmptyContent
	}

	message.ID = uuid.NewString()
	if message.Timestamp.IsZero() {
		message.Timestamp = s.now()
	}

	s.mu.Lock()
	s.messages = append(s.messages, message)
	s.mu.Unlock()

	return message, nil
}

// Clear empties the transcript; later appends start again from index 0.
func (s *Service) Clear() {
	s.mu.Lock()
	s.messages = make([]chat.Message, 0, 16)
	s.mu.Unlock()
}

// Messages returns a copy of the transcript in insertion order.
func (s *Service) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// Len returns the number of messages.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// EmotionStat is one row of the emotion histogram.
type EmotionStat struct {
	Emotion emotion.Label `json:"emotion"`
	Count   int           `json:"count"`
	Percent float64       `json:"percent"`
}

// Stats 汇总指标面板所需的数据。
type Stats struct {
	Messages          int            `json:"messages"`
	Words             int            `json:"words"`
	AssistantMessages int            `json:"assistantMessages"`
	Emotions          []EmotionStat  `json:"emotions"`
	Recent            []chat.Message `json:"recent"`
}

// Stats computes counters over the current transcript.
func (s *Service) Stats() Stats {
	messages := s.Messages()

	counts := make(map[emotion.Label]int)
	stats := Stats{Messages: len(messages)}
	for _, msg := range messages {
		stats.Words += len(strings.Fields(msg.Content))
		if msg.Role != chat.RoleAssistant {
			continue
		}
		stats.AssistantMessages++
		if msg.Emotion != "" {
			counts[msg.Emotion]++
		}
	}

	for _, label := range emotion.Labels() {
		row := EmotionStat{Emotion: label, Count: counts[label]}
		if stats.AssistantMessages > 0 {
			row.Percent = float64(row.Count) / float64(stats.AssistantMessages) * 100
		}
		stats.Emotions = append(stats.Emotions, row)
	}

	start := len(messages) - recentActivity
	if start < 0 {
		start = 0
	}
	stats.Recent = messages[start:]
	return stats
}

// ExportFileName returns the download name for an export taken at t.
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("karen-logs-%d.json", t.UnixMilli())
}

// Export writes the full transcript as an indented JSON array.
func (s *Service) Export(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.Messages()); err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return nil
}
