// Package realtime bridges the host page to the session over a websocket.
// The connected page provides speech capture, speech synthesis and the avatar canvas.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/karen-os/backend/internal/logging"
	"github.com/zhouzirui/karen-os/backend/internal/metrics"
	"github.com/zhouzirui/karen-os/backend/internal/middleware"
	"github.com/zhouzirui/karen-os/backend/internal/model/settings"
	"github.com/zhouzirui/karen-os/backend/internal/render/avatar"
	"github.com/zhouzirui/karen-os/backend/internal/service/speech"
	"github.com/zhouzirui/karen-os/backend/internal/session"
)

// ErrNoClient is returned when no host page is connected.
var ErrNoClient = errors.New("no realtime client connected")

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	sendBuffer   = 64
)

// Session is the part of the session controller the hub drives.
type Session interface {
	Snapshot(ctx context.Context) (session.Snapshot, error)
	Subscribe() (<-chan session.Snapshot, func())
	CaptureStarted(ctx context.Context) error
	CaptureResult(ctx context.Context, final, interim string) error
	CaptureEnded(ctx context.Context) error
	SpeechEnded(ctx context.Context, utteranceID string) error
	ToggleMic(ctx context.Context) error
	SubmitText(ctx context.Context, text string) (session.Outcome, error)
	StopSpeech(ctx context.Context) error
	UpdateSettings(ctx context.Context, patch settings.Patch) (settings.Settings, error)
	ClientConnected(ctx context.Context, voices []speech.Voice) error
	ClientDisconnected(ctx context.Context) error
}

type client struct {
	conn             *websocket.Conn
	send             chan outgoingMessage
	captureSupported bool
	closeOnce        sync.Once
	done             chan struct{}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub 同一时刻只服务一个宿主页面，新连接会替换旧连接。
// 它同时实现 voice.Capturer、speech.Synthesizer 与 avatar.Surface。
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.Mutex
	current *client
	session Session
}

// NewHub creates a hub accepting browser connections from allowedOrigins.
// Attach must be called before serving connections.
func NewHub(log zerolog.Logger, allowedOrigins []string) *Hub {
	originAllowed := middleware.OriginMatcher(allowedOrigins)
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 非浏览器客户端不携带 Origin。
				origin := r.Header.Get("Origin")
				return origin == "" || originAllowed(origin)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		log: logging.Component(log, "realtime"),
	}
}

// Attach binds the hub to the session it forwards host events to.
func (h *Hub) Attach(s Session) {
	h.mu.Lock()
	h.session = s
	h.mu.Unlock()
}

// RegisterRoutes 注册WebSocket路由
func (h *Hub) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.ServeWS)
}

// Run forwards session snapshots to the connected page until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	s := h.sessionRef()
	if s == nil {
		return errors.New("realtime hub is not attached to a session")
	}

	updates, cancel := s.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-updates:
			_ = h.enqueue(TypeState, snap)
		}
	}
}

// ServeWS upgrades the request and serves the host protocol.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	s := h.sessionRef()
	if s == nil {
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan outgoingMessage, sendBuffer),
		done: make(chan struct{}),
	}
	h.replace(c)
	h.log.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.writePump(c)

	if snap, err := s.Snapshot(ctx); err == nil {
		_ = h.enqueueTo(c, TypeState, snap)
	}

	h.readPump(ctx, c, s)

	if h.release(c) {
		if err := s.ClientDisconnected(ctx); err != nil {
			h.log.Debug().Err(err).Msg("client disconnect not delivered")
		}
	}
	h.log.Info().Str("remote", r.RemoteAddr).Msg("client disconnected")
}

func (h *Hub) readPump(ctx context.Context, c *client, s Session) {
	defer c.close()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Msg("read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := h.handleMessage(ctx, c, s, msg); err != nil {
			h.log.Warn().Err(err).Str("type", msg.Type).Msg("message rejected")
			_ = h.enqueueTo(c, TypeError, map[string]string{"message": err.Error()})
		}
	}
}

func (h *Hub) handleMessage(ctx context.Context, c *client, s Session, msg inboundMessage) error {
	switch msg.Type {
	case TypeHello:
		var hello HelloMessage
		if err := decodeData(msg.Data, &hello); err != nil {
			return err
		}
		h.mu.Lock()
		c.captureSupported = hello.CaptureSupported
		h.mu.Unlock()
		return s.ClientConnected(ctx, hello.Voices)
	case TypeCaptureStarted:
		return s.CaptureStarted(ctx)
	case TypeCaptureResult:
		var result CaptureResultMessage
		if err := decodeData(msg.Data, &result); err != nil {
			return err
		}
		return s.CaptureResult(ctx, result.FinalText, result.InterimText)
	case TypeCaptureEnded:
		return s.CaptureEnded(ctx)
	case TypeSpeechEnded:
		var ended SpeechEndedMessage
		if err := decodeData(msg.Data, &ended); err != nil {
			return err
		}
		return s.SpeechEnded(ctx, ended.UtteranceID)
	case TypeMicToggle:
		return s.ToggleMic(ctx)
	case TypeText:
		var text TextMessage
		if err := decodeData(msg.Data, &text); err != nil {
			return err
		}
		outcome, err := s.SubmitText(ctx, text.Text)
		if err != nil {
			return err
		}
		return h.enqueueTo(c, TypeOutcome, map[string]session.Outcome{"outcome": outcome})
	case TypeSpeechCancel:
		return s.StopSpeech(ctx)
	case TypeSettings:
		var patch settings.Patch
		if err := decodeData(msg.Data, &patch); err != nil {
			return err
		}
		_, err := s.UpdateSettings(ctx, patch)
		return err
	default:
		return fmt.Errorf("unsupported message type %q", msg.Type)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Str("type", msg.Type).Msg("write failed")
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

// replace 设置新的当前连接并关闭旧连接。
func (h *Hub) replace(c *client) {
	h.mu.Lock()
	old := h.current
	h.current = c
	h.mu.Unlock()

	if old != nil {
		h.log.Info().Msg("replacing previous client")
		old.close()
	}
	metrics.ConnectedClients.Set(1)
}

// release clears c if it is still the current connection.
func (h *Hub) release(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != c {
		return false
	}
	h.current = nil
	metrics.ConnectedClients.Set(0)
	return true
}

func (h *Hub) sessionRef() Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

func (h *Hub) enqueue(msgType string, data interface{}) error {
	h.mu.Lock()
	c := h.current
	h.mu.Unlock()
	if c == nil {
		return ErrNoClient
	}
	return h.enqueueTo(c, msgType, data)
}

func (h *Hub) enqueueTo(c *client, msgType string, data interface{}) error {
	msg := outgoingMessage{Type: msgType, Data: data, Timestamp: time.Now().UnixMilli()}
	select {
	case <-c.done:
		return ErrNoClient
	case c.send <- msg:
		return nil
	default:
		return fmt.Errorf("send buffer full, dropped %s", msgType)
	}
}

// Available reports whether the connected page can capture speech.
func (h *Hub) Available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil && h.current.captureSupported
}

// Start asks the page to begin continuous capture.
func (h *Hub) Start() error {
	return h.enqueue(TypeCaptureStart, nil)
}

// Stop asks the page to stop capture.
func (h *Hub) Stop() error {
	return h.enqueue(TypeCaptureStop, nil)
}

// Speak asks the page to play u.
func (h *Hub) Speak(u speech.Utterance) error {
	return h.enqueue(TypeSpeechSpeak, u)
}

// Cancel silences the page. Without a page there is nothing to silence.
func (h *Hub) Cancel() error {
	if err := h.enqueue(TypeSpeechCancel, nil); err != nil && !errors.Is(err, ErrNoClient) {
		return err
	}
	return nil
}

// Draw sends an avatar frame. Frames are dropped while no page is connected.
func (h *Hub) Draw(frame avatar.Frame) error {
	if err := h.enqueue(TypeAvatarFrame, frame); err != nil && !errors.Is(err, ErrNoClient) {
		return err
	}
	return nil
}

func decodeData(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return errors.New("message data is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid message data: %w", err)
	}
	return nil
}
