package chat

import "time"

// Session captures the single in-memory conversation owned by the process.
type Session struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"personaId"`
	CreatedAt time.Time `json:"createdAt"`
}
