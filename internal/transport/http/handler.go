package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"regcast/internal/filter"
	"regcast/internal/metadata"
	"regcast/internal/registry/models"
	"regcast/internal/transport/http/shared"
	dErrors "regcast/pkg/domain-errors"
	"regcast/pkg/requestcontext"
)

// Service defines the registry operations the HTTP layer exposes.
type Service interface {
	Register(ctx context.Context, req models.RegisterRequest) (models.Identity, error)
	Unregister(ctx context.Context, id string) (int, error)
	Enumerate(ctx context.Context, f filter.Node, pageSize int, pageToken string) (models.Page, error)
	Multicast(ctx context.Context, f filter.Node, payload []byte, opts models.MulticastOptions) (*models.MulticastReport, error)
}

// Handler is the thin HTTP layer. It delegates to the coordinator without
// embedding registry logic so transport concerns remain isolated.
type Handler struct {
	logger   *slog.Logger
	registry Service
}

// NewHandler creates the registry HTTP handler.
func NewHandler(registry Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, registry: registry}
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/registry/identities", h.handleRegister)
	r.Delete("/registry/identities/{id}", h.handleUnregister)
	r.Post("/registry/enumerate", h.handleEnumerate)
	r.Post("/registry/multicast", h.handleMulticast)
}

type registerRequest struct {
	ID       string         `json:"id"`
	Address  string         `json:"address,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	TTL      duration       `json:"ttl,omitempty"`
	Replace  bool           `json:"replace,omitempty"`
}

type enumerateRequest struct {
	Filter    *filter.Definition `json:"filter,omitempty"`
	PageSize  int                `json:"page_size,omitempty"`
	PageToken string             `json:"page_token,omitempty"`
}

type multicastRequest struct {
	Filter  *filter.Definition `json:"filter,omitempty"`
	Payload json.RawMessage    `json:"payload"`
	Options multicastOptions   `json:"options,omitempty"`
}

type multicastOptions struct {
	MaxConcurrency   int      `json:"max_concurrency,omitempty"`
	PerTargetTimeout duration `json:"per_target_timeout,omitempty"`
	RetryAttempts    int      `json:"retry_attempts,omitempty"`
	RetryBackoff     duration `json:"retry_backoff,omitempty"`
	Deadline         duration `json:"deadline,omitempty"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		h.warn(ctx, "invalid register request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	meta, err := metadata.MapFromAny(req.Metadata)
	if err != nil {
		h.warn(ctx, "invalid register metadata", err)
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid metadata"))
		return
	}

	identity, err := h.registry.Register(ctx, models.RegisterRequest{
		ID:       req.ID,
		Address:  req.Address,
		Metadata: meta,
		TTL:      time.Duration(req.TTL),
		Replace:  req.Replace,
	})
	if err != nil {
		h.logFailure(ctx, "register failed", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, identity)
}

func (h *Handler) handleUnregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	removed, err := h.registry.Unregister(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.logFailure(ctx, "unregister failed", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) handleEnumerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req enumerateRequest
	if err := decodeBody(r, &req); err != nil {
		h.warn(ctx, "invalid enumerate request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	node, err := h.parseFilter(ctx, req.Filter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	page, err := h.registry.Enumerate(ctx, node, req.PageSize, req.PageToken)
	if err != nil {
		h.logFailure(ctx, "enumerate failed", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleMulticast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req multicastRequest
	if err := decodeBody(r, &req); err != nil {
		h.warn(ctx, "invalid multicast request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	node, err := h.parseFilter(ctx, req.Filter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	report, err := h.registry.Multicast(ctx, node, req.Payload, models.MulticastOptions{
		MaxConcurrency:   req.Options.MaxConcurrency,
		PerTargetTimeout: time.Duration(req.Options.PerTargetTimeout),
		RetryAttempts:    req.Options.RetryAttempts,
		RetryBackoff:     time.Duration(req.Options.RetryBackoff),
		Deadline:         time.Duration(req.Options.Deadline),
	})
	if err != nil {
		h.logFailure(ctx, "multicast failed", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, report)
}

// parseFilter turns an optional filter definition into an AST node. A nil
// definition matches every identity.
func (h *Handler) parseFilter(ctx context.Context, def *filter.Definition) (filter.Node, error) {
	if def == nil {
		return nil, nil
	}
	node, err := filter.Parse(def)
	if err != nil {
		h.warn(ctx, "malformed filter", err)
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed filter")
	}
	return node, nil
}

func (h *Handler) warn(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	log := h.logger.ErrorContext
	if dErrors.HasCode(err, dErrors.CodeBadRequest) || dErrors.HasCode(err, dErrors.CodeConflict) {
		log = h.logger.WarnContext
	}
	log(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// duration accepts Go duration strings ("30s") and raw nanosecond counts.
type duration time.Duration

func (d *duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*d = duration(n)
	return nil
}
