// Package agentapi локальный HTTP API агента для GUI: статус подписки, учёт
// использования, дневной лимит, демо, оплата и выход из аккаунта.
package agentapi

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magabrotheeeer/cohost-credits/internal/http/response"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
	"github.com/magabrotheeeer/cohost-credits/internal/licenseclient"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
	"github.com/magabrotheeeer/cohost-credits/internal/services/dailylimit"
)

// Tracker учёт использования функций.
type Tracker interface {
	TrackSTTUsage(ctx context.Context, durationSeconds float64, sttType string) (float64, error)
	TrackTTSUsage(ctx context.Context, text, ttsType string) (float64, error)
	TrackAIUsage(ctx context.Context, tokensUsed int) (float64, error)
	TrackTranslateUsage(ctx context.Context, wordCount int) (float64, error)
	GetCurrentCreditBalance(ctx context.Context) (float64, error)
}

// License проверка лицензии и операции с аккаунтом.
type License interface {
	Validate(ctx context.Context, forceRefresh bool) models.LicenseResult
	Login(ctx context.Context, email string) (models.SubscriptionStatus, error)
	TrackUsage(ctx context.Context, minutes float64) error
	ActivateDemo(ctx context.Context) (models.SubscriptionStatus, error)
	DemoStatus(ctx context.Context) (*models.DemoResponse, error)
	CreatePayment(ctx context.Context, pkg string) (*models.PaymentCreateResponse, error)
	ClearAllCachesForLogout() error
}

// Limit дневной лимит времени работы.
type Limit interface {
	StartSession() time.Time
	EndSession() (models.Session, error)
	CanStartApp() (bool, float64, float64)
	Status() models.LimitStatus
}

// StatusReader чтение локального статуса подписки.
type StatusReader interface {
	LoadOrZero() models.SubscriptionStatus
}

// LoginRequest тело POST /login.
type LoginRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// UsageRequest тело POST /usage/{component}. Для tts единицы считаются по Text.
type UsageRequest struct {
	Units   float64 `json:"units" validate:"gte=0"`
	Variant string  `json:"variant"`
	Text    string  `json:"text"`
}

// TimeUsageRequest тело POST /usage-time.
type TimeUsageRequest struct {
	Minutes float64 `json:"minutes" validate:"gte=0"`
}

// PaymentRequest тело POST /payment.
type PaymentRequest struct {
	Package string `json:"package" validate:"required"`
}

// UsageResult ответ на учёт использования.
type UsageResult struct {
	Component models.Component `json:"component"`
	Credits   float64          `json:"credits"`
	Balance   float64          `json:"balance"`
}

// StatusView сводка для статус-бара и вкладки профиля.
type StatusView struct {
	Subscription models.SubscriptionStatus `json:"subscription"`
	Limit        models.LimitStatus        `json:"limit"`
}

// Handler обработчики локального API.
type Handler struct {
	log      *slog.Logger
	tracker  Tracker
	license  License
	limit    Limit
	status   StatusReader
	validate *validator.Validate
}

// New создаёт обработчики.
func New(log *slog.Logger, tracker Tracker, license License, limit Limit, status StatusReader) *Handler {
	return &Handler{
		log:      log,
		tracker:  tracker,
		license:  license,
		limit:    limit,
		status:   status,
		validate: validator.New(),
	}
}

// Router маршруты локального API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/status", h.Status)
	r.Post("/login", h.Login)
	r.Post("/validate", h.Validate)
	r.Post("/usage/{component}", h.TrackUsage)
	r.Post("/usage-time", h.TrackTime)
	r.Get("/limit", h.LimitStatus)
	r.Post("/session/start", h.StartSession)
	r.Post("/session/end", h.EndSession)
	r.Post("/demo/activate", h.ActivateDemo)
	r.Get("/demo/status", h.DemoStatus)
	r.Post("/payment", h.CreatePayment)
	r.Post("/logout", h.Logout)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// Status GET /status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.StatusOKWithData(StatusView{
		Subscription: h.status.LoadOrZero(),
		Limit:        h.limit.Status(),
	}))
}

// Login POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	const op = "agentapi.Login"
	log := h.log.With(slog.String("op", op))

	var req LoginRequest
	if !h.decode(w, r, log, &req) {
		return
	}
	if _, err := h.license.Login(r.Context(), req.Email); err != nil {
		h.fail(w, r, log, err)
		return
	}
	res := h.license.Validate(r.Context(), true)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"subscription": h.status.LoadOrZero(),
		"license":      res,
	}))
}

// Validate POST /validate?force=true
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	render.JSON(w, r, response.StatusOKWithData(h.license.Validate(r.Context(), force)))
}

// TrackUsage POST /usage/{component}
func (h *Handler) TrackUsage(w http.ResponseWriter, r *http.Request) {
	const op = "agentapi.TrackUsage"
	log := h.log.With(slog.String("op", op))

	component := models.Component(chi.URLParam(r, "component"))
	if !component.Valid() {
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("unknown component"))
		return
	}
	var req UsageRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	if component == models.ComponentAI || component == models.ComponentTranslate {
		if !isCount(req.Units) {
			log.Info("invalid unit count", slog.Float64("units", req.Units))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("units must be a whole number"))
			return
		}
	}

	var (
		credits float64
		err     error
	)
	ctx := r.Context()
	switch component {
	case models.ComponentSTT:
		credits, err = h.tracker.TrackSTTUsage(ctx, req.Units, req.Variant)
	case models.ComponentTTS:
		credits, err = h.tracker.TrackTTSUsage(ctx, req.Text, req.Variant)
	case models.ComponentAI:
		credits, err = h.tracker.TrackAIUsage(ctx, int(req.Units))
	case models.ComponentTranslate:
		credits, err = h.tracker.TrackTranslateUsage(ctx, int(req.Units))
	}
	if err != nil {
		h.fail(w, r, log, err)
		return
	}

	balance, err := h.tracker.GetCurrentCreditBalance(ctx)
	if err != nil {
		log.Warn("failed to read balance", sl.Err(err))
	}
	render.JSON(w, r, response.StatusOKWithData(UsageResult{
		Component: component,
		Credits:   credits,
		Balance:   balance,
	}))
}

// TrackTime POST /usage-time
func (h *Handler) TrackTime(w http.ResponseWriter, r *http.Request) {
	const op = "agentapi.TrackTime"
	log := h.log.With(slog.String("op", op))

	var req TimeUsageRequest
	if !h.decode(w, r, log, &req) {
		return
	}
	if err := h.license.TrackUsage(r.Context(), req.Minutes); err != nil {
		h.fail(w, r, log, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	render.JSON(w, r, response.StatusOKWithData(req))
}

// LimitStatus GET /limit
func (h *Handler) LimitStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.StatusOKWithData(h.limit.Status()))
}

// StartSession POST /session/start. Отказывает, если дневной лимит исчерпан.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	const op = "agentapi.StartSession"
	log := h.log.With(slog.String("op", op))

	allowed, used, remaining := h.limit.CanStartApp()
	if !allowed {
		log.Info("daily limit reached", slog.Float64("used_hours", used))
		h.fail(w, r, log, models.ErrDailyLimitReached)
		return
	}
	start := h.limit.StartSession()
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"start":           start,
		"used_hours":      used,
		"remaining_hours": remaining,
	}))
}

// EndSession POST /session/end
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	const op = "agentapi.EndSession"
	log := h.log.With(slog.String("op", op))

	session, err := h.limit.EndSession()
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(session))
}

// ActivateDemo POST /demo/activate
func (h *Handler) ActivateDemo(w http.ResponseWriter, r *http.Request) {
	const op = "agentapi.ActivateDemo"
	log := h.log.With(slog.String("op", op))

	st, err := h.license.ActivateDemo(r.Context())
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(st))
}

// DemoStatus GET /demo/status
func (h *Handler) DemoStatus(w http.ResponseWriter, r *http.Request) {
	const op = "agentapi.DemoStatus"
	log := h.log.With(slog.String("op", op))

	resp, err := h.license.DemoStatus(r.Context())
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(resp))
}

// CreatePayment POST /payment
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	const op = "agentapi.CreatePayment"
	log := h.log.With(slog.String("op", op))

	var req PaymentRequest
	if !h.decode(w, r, log, &req) {
		return
	}
	resp, err := h.license.CreatePayment(r.Context(), req.Package)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(resp))
}

// Logout POST /logout. Активная сессия закрывается до очистки файлов.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	const op = "agentapi.Logout"
	log := h.log.With(slog.String("op", op))

	if _, err := h.limit.EndSession(); err != nil && !errors.Is(err, dailylimit.ErrNoActiveSession) {
		log.Warn("failed to close session on logout", sl.Err(err))
	}
	if err := h.license.ClearAllCachesForLogout(); err != nil {
		h.fail(w, r, log, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(nil))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		log.Error("validation failed", sl.Err(err))
		var verrs validator.ValidationErrors
		w.WriteHeader(http.StatusUnprocessableEntity)
		if errors.As(err, &verrs) {
			render.JSON(w, r, response.ValidationError(verrs))
		} else {
			render.JSON(w, r, response.Error("invalid request"))
		}
		return false
	}
	return true
}

// maxCount предел счётчиков токенов и слов в одном запросе.
const maxCount = math.MaxInt32

// isCount сообщает, что units целое число от 0 до maxCount.
func isCount(units float64) bool {
	return units >= 0 && units <= maxCount && units == math.Trunc(units)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	var apiErr *licenseclient.APIError
	switch {
	case errors.Is(err, models.ErrNotLoggedIn):
		status, msg = http.StatusUnauthorized, "not logged in"
	case errors.Is(err, models.ErrDemoAlreadyUsed):
		status, msg = http.StatusConflict, "demo already used today"
	case errors.Is(err, models.ErrAccountPaid):
		status, msg = http.StatusConflict, "account already paid"
	case errors.Is(err, models.ErrDailyLimitReached):
		status, msg = http.StatusForbidden, "daily usage limit reached"
	case errors.Is(err, dailylimit.ErrNoActiveSession):
		status, msg = http.StatusConflict, "no active session"
	case errors.As(err, &apiErr):
		status, msg = http.StatusBadGateway, apiErr.Message
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", sl.Err(err))
	} else {
		log.Info("request rejected", sl.Err(err))
	}
	w.WriteHeader(status)
	render.JSON(w, r, response.Error(msg))
}
