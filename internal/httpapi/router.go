package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"clinic-roomsync/internal/api"
	"clinic-roomsync/internal/billing"
	"clinic-roomsync/internal/consumer"
	"clinic-roomsync/internal/domain"
	"clinic-roomsync/internal/realtime"
	"clinic-roomsync/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RoomService 房间 store
type RoomService interface {
	Snapshot() store.RoomState
	Statistics() domain.RoomStatistics
	RoomByID(id domain.ID) (domain.Room, bool)
	FetchRooms(ctx context.Context, filters domain.RoomFilters) ([]domain.Room, error)
	UpdateRoomStatus(ctx context.Context, id domain.ID, status domain.RoomStatus) (domain.Room, error)
	ScheduleMaintenance(ctx context.Context, id domain.ID) (domain.Room, error)
	CompleteMaintenance(ctx context.Context, id domain.ID) (domain.Room, error)
	CheckRoomAvailability(ctx context.Context, id domain.ID) (domain.RoomAvailability, error)
}

// AdmissionService 住院 store
type AdmissionService interface {
	Snapshot() store.AdmissionState
	Statistics() domain.AdmissionStatistics
	AdmissionByID(id domain.ID) (domain.Admission, bool)
	PatientAdmissions(ctx context.Context, patientID domain.ID) ([]domain.Admission, error)
	CreateAdmission(ctx context.Context, input domain.AdmissionInput) (domain.Admission, error)
	DischargePatient(ctx context.Context, id domain.ID, input domain.DischargeInput) (domain.DischargeResult, error)
	PreviewBilling(id domain.ID, dischargeDate time.Time, additionalChargesCents int64) (domain.BillingSummary, error)
	FetchServerStatistics(ctx context.Context) (api.ServerStatistics, error)
}

// RealtimeStatus 实时通道状态
type RealtimeStatus interface {
	State() realtime.ConnectionState
}

// JournalStatus 事件日志指标
type JournalStatus interface {
	Metrics() consumer.Metrics
}

// Deps 路由依赖；Journal 可为空
type Deps struct {
	Rooms      RoomService
	Admissions AdmissionService
	Realtime   RealtimeStatus
	Journal    JournalStatus
	Calculator *billing.Calculator
}

type handler struct {
	deps   Deps
	logger *zap.Logger
}

// NewRouter 创建 HTTP 路由
func NewRouter(deps Deps, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Calculator == nil {
		deps.Calculator = billing.NewCalculator(billing.DefaultConfig())
	}
	h := &handler{deps: deps, logger: logger.With(zap.String("component", "http"))}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/realtime", h.realtimeState)

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", h.listRooms)
			r.Get("/available", h.listAvailableRooms)
			r.Get("/statistics", h.roomStatistics)
			r.Get("/{id}", h.getRoom)
			r.Get("/{id}/availability", h.checkRoomAvailability)
			r.Patch("/{id}/status", h.updateRoomStatus)
			r.Post("/{id}/maintenance", h.scheduleMaintenance)
			r.Delete("/{id}/maintenance", h.completeMaintenance)
		})

		r.Route("/admissions", func(r chi.Router) {
			r.Get("/", h.listAdmissions)
			r.Post("/", h.createAdmission)
			r.Get("/active", h.listActiveAdmissions)
			r.Get("/statistics", h.admissionStatistics)
			r.Get("/statistics/server", h.serverAdmissionStatistics)
			r.Get("/patient/{patientID}", h.patientAdmissions)
			r.Get("/{id}", h.getAdmission)
			r.Post("/{id}/discharge", h.dischargePatient)
		})

		r.Post("/billing/preview", h.previewBilling)
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"status":   "ok",
		"realtime": h.deps.Realtime.State(),
	}))
}

func (h *handler) realtimeState(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"connection": h.deps.Realtime.State()}
	if h.deps.Journal != nil {
		out["journal"] = h.deps.Journal.Metrics()
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func idParam(r *http.Request) domain.ID {
	return domain.ID(chi.URLParam(r, "id"))
}

// writeError 按错误类型映射 HTTP 状态码
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var (
		validationErr *domain.ValidationError
		durationErr   *domain.InvalidDurationError
		stateErr      *domain.InvalidStateError
		conflictErr   *domain.StateConflictError
		transportErr  *domain.TransportError
		apiErr        *domain.APIError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &durationErr), errors.Is(err, billing.ErrNegativeAmount):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &stateErr), errors.As(err, &conflictErr):
		status = http.StatusConflict
	case errors.As(err, &transportErr), errors.Is(err, store.ErrStoreClosed):
		status = http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, Fail(domain.Message(err)))
}

func (h *handler) badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, Fail(message))
}
