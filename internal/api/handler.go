package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/Dirigent/internal/breaker"
	"github.com/shaiso/Dirigent/internal/domain"
	"github.com/shaiso/Dirigent/internal/engine"
	"github.com/shaiso/Dirigent/internal/orchestrator"
	"github.com/shaiso/Dirigent/internal/registry"
)

// Handler — HTTP обработчики API оркестратора.
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	engine       *engine.Engine
	registry     *registry.Registry
	circuits     *breaker.Manager
	logger       *slog.Logger
}

// Config — конфигурация Handler.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Engine       *engine.Engine
	Registry     *registry.Registry
	Circuits     *breaker.Manager
	Logger       *slog.Logger
}

// NewHandler создаёт Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orchestrator: cfg.Orchestrator,
		engine:       cfg.Engine,
		registry:     cfg.Registry,
		circuits:     cfg.Circuits,
		logger:       logger,
	}
}

// Orchestrate выполняет запрос оркестрации.
// POST /api/v1/orchestrate
func (h *Handler) Orchestrate(w http.ResponseWriter, r *http.Request) {
	var req domain.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	result, err := h.orchestrator.Orchestrate(r.Context(), &req)
	if err != nil {
		h.writeOrchestrationError(w, result, err)
		return
	}

	Success(w, result)
}

// writeOrchestrationError отображает ошибку оркестрации в HTTP статус.
// Частичный результат (failed instance, имя стадии) уходит вместе с ошибкой.
func (h *Handler) writeOrchestrationError(w http.ResponseWriter, result *domain.OrchestrationResult, err error) {
	if errors.Is(err, registry.ErrNoAvailableBackend) || errors.Is(err, orchestrator.ErrBackendUnavailable) {
		JSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{Code: ErrCodeUnavailable, Message: err.Error()},
		})
		return
	}

	// Падения вызовов, критических шагов и стадий pipeline — ошибки
	// upstream'а; частичный результат уходит вместе с ними.
	JSON(w, http.StatusBadGateway, ErrorResponse{
		Error: ErrorDetail{Code: ErrCodeUpstreamError, Message: err.Error(), Result: result},
	})
}

// CreateTemplate регистрирует workflow-шаблон.
// POST /api/v1/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl domain.WorkflowTemplate
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if err := h.engine.RegisterTemplate(&tmpl); err != nil {
		switch {
		case errors.Is(err, engine.ErrDuplicateTemplate):
			Conflict(w, err.Error())
		case errors.Is(err, engine.ErrInvalidTemplate):
			BadRequest(w, err.Error())
		default:
			InternalError(w, h.logger, err)
		}
		return
	}

	Created(w, tmpl)
}

// ListTemplates возвращает зарегистрированные шаблоны.
// GET /api/v1/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates := h.engine.Templates()
	List(w, templates, len(templates))
}

// backendView — профиль backend'а с runtime-состоянием.
type backendView struct {
	*domain.BackendProfile

	// CurrentLoad — вызовы в полёте.
	CurrentLoad int `json:"current_load"`

	// LoadRatio — отношение load/capacity.
	LoadRatio float64 `json:"load_ratio"`

	// CircuitState — состояние контура.
	CircuitState breaker.State `json:"circuit_state"`
}

// ListBackends возвращает все backend'ы с их текущим состоянием.
// GET /api/v1/backends
func (h *Handler) ListBackends(w http.ResponseWriter, r *http.Request) {
	profiles := h.registry.List()

	views := make([]backendView, 0, len(profiles))
	for _, p := range profiles {
		views = append(views, backendView{
			BackendProfile: p,
			CurrentLoad:    h.registry.Load(p.ID),
			LoadRatio:      h.registry.LoadRatio(p.ID),
			CircuitState:   h.circuits.State(p.ID),
		})
	}
	List(w, views, len(views))
}

// GetCircuit возвращает снимок контура backend'а.
// GET /api/v1/backends/{id}/circuit
func (h *Handler) GetCircuit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := h.registry.Get(id); err != nil {
		NotFound(w, "backend not found: "+id)
		return
	}

	Success(w, h.circuits.SnapshotFor(id))
}

// GetMetrics возвращает снимок счётчиков оркестрации.
// GET /api/v1/metrics
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	Success(w, h.orchestrator.MetricsSnapshot())
}
