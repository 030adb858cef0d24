package httpx

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"example.com/remindbot/internal/scheduler"
	"example.com/remindbot/internal/telegram"
	"example.com/remindbot/pkg/response"
)

const maxBodyBytes = 1 << 20

// UpdateHandler consumes one Telegram update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd telegram.Update) bool
}

type Ticker interface {
	Tick(ctx context.Context, now time.Time) (int, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	mux     *http.ServeMux
	bot     UpdateHandler
	ticker  Ticker
	pinger  Pinger
	secret  string
	now     func() time.Time
	logger  *slog.Logger
	handler http.Handler
}

// New builds the router. pinger may be nil, in which case /readyz always
// reports ready.
func New(bot UpdateHandler, ticker Ticker, pinger Pinger, secret string, now func() time.Time, logger *slog.Logger) *Handler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &Handler{
		mux:    http.NewServeMux(),
		bot:    bot,
		ticker: ticker,
		pinger: pinger,
		secret: secret,
		now:    now,
		logger: logger,
	}
	h.routes()
	h.handler = WithRequestID(Logging(logger)(h.mux))
	return h
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /healthz", h.health)
	h.mux.HandleFunc("GET /readyz", h.ready)
	h.mux.HandleFunc("POST /webhook/{secret}", h.webhook)
	h.mux.HandleFunc("GET /tick/{secret}", h.tick)
	h.mux.HandleFunc("POST /tick/{secret}", h.tick)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "store")
			return
		}
	}
	response.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// webhook always acknowledges a correctly addressed update with 200 so
// Telegram does not redeliver it; malformed or chatless updates are dropped.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	if !h.secretMatches(r) {
		http.NotFound(w, r)
		return
	}
	var upd telegram.Update
	if err := decodeJSON(r, &upd); err != nil {
		h.logger.Warn("webhook: undecodable update", "error", err, "request_id", RequestIDFromContext(r.Context()))
		response.JSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	// The reply is sent even if Telegram drops the connection meanwhile.
	if !h.bot.HandleUpdate(context.WithoutCancel(r.Context()), upd) {
		h.logger.Debug("webhook: update without chat ignored", "update_id", upd.UpdateID)
	}
	response.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) tick(w http.ResponseWriter, r *http.Request) {
	if !h.secretMatches(r) {
		http.NotFound(w, r)
		return
	}
	sent, err := h.ticker.Tick(context.WithoutCancel(r.Context()), h.now())
	switch {
	case errors.Is(err, scheduler.ErrTickInProgress):
		h.logger.Info("tick: previous tick still running")
	case err != nil:
		h.logger.Error("tick failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
	}
	response.JSON(w, http.StatusOK, map[string]any{"ok": true, "sent": sent})
}

func (h *Handler) secretMatches(r *http.Request) bool {
	got := r.PathValue("secret")
	return h.secret != "" && subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

// decodeJSON reads exactly one JSON value. Unknown fields are accepted since
// Telegram updates carry many fields the bot never reads.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data")
	}
	return nil
}

func writeError(w http.ResponseWriter, code int, msg string) {
	response.JSON(w, code, map[string]string{"error": msg})
}
