package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/papermes/internal/accounts"
	"github.com/dvloznov/papermes/internal/api/middleware"
	"github.com/dvloznov/papermes/internal/prompts"
	"github.com/dvloznov/papermes/internal/tools"
)

// Surface is the tool, resource and prompt service. *tools.Service satisfies it.
type Surface interface {
	Tools() []tools.ToolInfo
	Resources() []tools.ResourceInfo
	Prompts() []prompts.Definition
	AccountsResource(ctx context.Context) []accounts.Account
	CreateTransactionsFromArgs(ctx context.Context, args map[string]any) tools.Result
	RenderPrompt(ctx context.Context, name string, args map[string]any) (string, error)
}

// SurfaceHandler serves the /tools, /resources and /prompts endpoints.
type SurfaceHandler struct {
	svc Surface
	log zerolog.Logger
}

// NewSurfaceHandler creates a new surface handler.
func NewSurfaceHandler(svc Surface, log zerolog.Logger) *SurfaceHandler {
	return &SurfaceHandler{svc: svc, log: log}
}

// ListTools handles GET /tools
func (h *SurfaceHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"tools": h.svc.Tools()})
}

// ListResources handles GET /resources
func (h *SurfaceHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"resources": h.svc.Resources()})
}

// ListPrompts handles GET /prompts
func (h *SurfaceHandler) ListPrompts(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"prompts": h.svc.Prompts()})
}

// GetAccounts handles GET /resources/accounts
// The ledger being unreachable yields an empty list, not an error.
func (h *SurfaceHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.svc.AccountsResource(r.Context()))
}

// CreateTransactions handles POST /tools/create_transactions
// Tool failures are reported in the result body with status 200.
func (h *SurfaceHandler) CreateTransactions(w http.ResponseWriter, r *http.Request) {
	args, err := decodeArgs(r.Body)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res := h.svc.CreateTransactionsFromArgs(r.Context(), args)
	middleware.WriteJSON(w, http.StatusOK, res)
}

// RenderPrompt handles POST /prompts/{name}
// The body is {"arguments": {...}}; an empty body means no arguments.
func (h *SurfaceHandler) RenderPrompt(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req struct {
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	content, err := h.svc.RenderPrompt(r.Context(), name, req.Arguments)
	if err != nil {
		h.log.Error().Err(err).Str("prompt", name).Msg("Failed to render prompt")
		middleware.WriteErr(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"name":    name,
		"content": content,
	})
}

func decodeArgs(body io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
