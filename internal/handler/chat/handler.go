// Package chat serves the session, transcript and metrics-panel endpoints.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/karen-os/backend/internal/logging"
	"github.com/zhouzirui/karen-os/backend/internal/model/settings"
	chatService "github.com/zhouzirui/karen-os/backend/internal/service/chat"
	"github.com/zhouzirui/karen-os/backend/internal/session"
	"github.com/zhouzirui/karen-os/backend/pkg/utils"
)

const keepAliveInterval = 15 * time.Second

// Session is the part of the session controller exposed over HTTP.
type Session interface {
	Snapshot(ctx context.Context) (session.Snapshot, error)
	Subscribe() (<-chan session.Snapshot, func())
	SubmitText(ctx context.Context, text string) (session.Outcome, error)
	ToggleMic(ctx context.Context) error
	StopSpeech(ctx context.Context) error
	UpdateSettings(ctx context.Context, patch settings.Patch) (settings.Settings, error)
}

// Handler 会话服务的HTTP处理器
type Handler struct {
	session    Session
	transcript *chatService.Service
	log        zerolog.Logger
	now        func() time.Time
}

// New 创建会话处理器
func New(s Session, transcript *chatService.Service, log zerolog.Logger) *Handler {
	return &Handler{
		session:    s,
		transcript: transcript,
		log:        logging.Component(log, "http"),
		now:        time.Now,
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/session", func(sr chi.Router) {
		sr.Get("/", h.handleSnapshot)
		sr.Get("/messages", h.handleMessages)
		sr.Post("/utterances", h.handleUtterance)
		sr.Post("/mic", h.handleToggleMic)
		sr.Post("/speech/cancel", h.handleCancelSpeech)
		sr.Patch("/settings", h.handleSettings)
		sr.Get("/metrics", h.handleMetrics)
		sr.Get("/export", h.handleExport)
		sr.Get("/events", h.handleEvents)
	})
}

// handleSnapshot 返回当前会话状态
func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.Snapshot(r.Context())
	if err != nil {
		h.respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.transcript.Messages())
}

// handleUtterance 提交一条定稿文本，等同于一次语音识别结果
func (h *Handler) handleUtterance(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	outcome, err := h.session.SubmitText(r.Context(), payload.Text)
	if err != nil {
		h.respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]session.Outcome{"outcome": outcome})
}

func (h *Handler) handleToggleMic(w http.ResponseWriter, r *http.Request) {
	if err := h.session.ToggleMic(r.Context()); err != nil {
		h.respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) handleCancelSpeech(w http.ResponseWriter, r *http.Request) {
	if err := h.session.StopSpeech(r.Context()); err != nil {
		h.respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleSettings 局部更新设置，数值越界时被截断到允许范围
func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := utils.DecodeJSON(r, &patch); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.session.UpdateSettings(r.Context(), patch)
	if err != nil {
		h.respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.transcript.Stats())
}

// handleExport 以附件形式导出完整对话记录
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	name := chatService.ExportFileName(h.now())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)

	if err := h.transcript.Export(w); err != nil {
		h.log.Warn().Err(err).Msg("export failed")
	}
}

// handleEvents 以SSE推送会话状态快照
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	updates, cancel := h.session.Subscribe()
	defer cancel()

	snap, err := h.session.Snapshot(ctx)
	if err != nil {
		h.respondSessionError(w, err)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, "state", snap); err != nil {
		return
	}
	h.log.Debug().Msg("event stream opened")

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Msg("event stream closed")
			return
		case snap := <-updates:
			if err := utils.SendSSEEvent(w, flusher, "state", snap); err != nil {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "keepalive"); err != nil {
				return
			}
		}
	}
}

func (h *Handler) respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrStopped):
		utils.RespondError(w, http.StatusServiceUnavailable, "session unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		utils.RespondError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		h.log.Error().Err(err).Msg("session request failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
