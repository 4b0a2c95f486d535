package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/thesammykins/onlydrives-alert-bot/internal/storage"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterOptions configure the administrative HTTP surface.
type RouterOptions struct {
	CORSOrigins []string
	Metrics     http.Handler
	Health      Pinger
}

// ErrorResponse is the error shape of every failed request.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type handler struct {
	svc    *Service
	health Pinger
	logger zerolog.Logger
}

// NewRouter builds the chi router.
func NewRouter(svc *Service, opts RouterOptions, logger zerolog.Logger) *chi.Mux {
	h := &handler{svc: svc, health: opts.Health, logger: logger.With().Str("component", "admin").Logger()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	if len(opts.CORSOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		})
		r.Use(c.Handler)
	}

	r.Get("/healthz", h.healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.status)

		r.Get("/settings", h.getSettings)
		r.Delete("/settings", h.resetSettings)
		r.Put("/settings/{key}", h.putSetting)
		r.Delete("/settings/{key}", h.deleteSetting)

		r.Get("/subscriptions/{userID}", h.listSubscriptions)
		r.Post("/subscriptions/{userID}", h.addSubscription)
		r.Delete("/subscriptions/{userID}/{sku}", h.removeSubscription)
	})
	return r
}

func (h *handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("admin request")
	})
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("health check failed")
			writeError(w, http.StatusServiceUnavailable, "unhealthy", "storage unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) getSettings(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.ShowSettings(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) resetSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reset(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type settingRequest struct {
	Value string `json:"value"`
}

func (h *handler) putSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "body must be {\"value\": \"...\"}")
		return
	}
	if err := h.svc.ApplySetting(r.Context(), chi.URLParam(r, "key"), req.Value); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deleteSetting(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearSetting(r.Context(), chi.URLParam(r, "key")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type subscriptionView struct {
	SKU       string    `json:"sku"`
	Delivery  string    `json:"delivery"`
	ChannelID string    `json:"channel_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.svc.ListSubscriptions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]subscriptionView, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subscriptionView{SKU: sub.SKU, Delivery: string(sub.Mode), ChannelID: sub.ChannelID, CreatedAt: sub.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

type subscribeRequest struct {
	SKU       string `json:"sku"`
	Delivery  string `json:"delivery"`
	ChannelID string `json:"channel_id"`
}

func (h *handler) addSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed subscription body")
		return
	}
	created, err := h.svc.Subscribe(r.Context(), chi.URLParam(r, "userID"), req.SKU, storage.DeliveryMode(req.Delivery), req.ChannelID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !created {
		writeError(w, http.StatusConflict, "already_subscribed", "already subscribed to this SKU; remove it first to change delivery")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"created": true})
}

func (h *handler) removeSubscription(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.Unsubscribe(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "sku"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "not_subscribed", "no subscription for this SKU")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps service errors to responses; internal details stay in the log.
func (h *handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidValue):
		writeError(w, http.StatusBadRequest, "invalid_value", err.Error())
	case errors.Is(err, ErrUnknownSetting):
		writeError(w, http.StatusNotFound, "unknown_setting", err.Error())
	default:
		h.logger.Error().Err(err).Msg("admin request failed")
		writeError(w, http.StatusInternalServerError, "internal", "request failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	resp := ErrorResponse{}
	resp.Error.Code = code
	resp.Error.Message = message
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, resp)
}
