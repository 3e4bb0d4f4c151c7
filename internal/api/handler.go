package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/flowdag/internal/config"
	"github.com/gyaneshwarpardhi/flowdag/internal/dag"
	"github.com/gyaneshwarpardhi/flowdag/internal/engine"
)

const maxBodyBytes = 1 << 20

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng    *engine.Engine
	loader *config.Loader
	mux    *http.ServeMux
}

// graphView is the JSON shape of a built workflow.
type graphView struct {
	Workflow string               `json:"workflow,omitempty"`
	Nodes    int                  `json:"nodes"`
	Order    []string             `json:"order"`
	Edges    []dag.Edge           `json:"edges"`
	Dispatch *config.DispatchConf `json:"dispatch,omitempty"`
	Plan     *engine.Step         `json:"plan"`
}

func newGraphView(name string, g *dag.Graph, conf *config.DispatchConf) graphView {
	edges := g.Edges()
	if edges == nil {
		edges = []dag.Edge{}
	}
	return graphView{
		Workflow: name,
		Nodes:    g.Len(),
		Order:    g.TopologicalSort(),
		Edges:    edges,
		Dispatch: conf,
		Plan:     engine.Plan(g),
	}
}

// New creates an HTTP handler and registers all routes.
func New(eng *engine.Engine, loader *config.Loader) http.Handler {
	h := &Handler{eng: eng, loader: loader, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/workflows/validate", h.validateWorkflow)
	h.mux.HandleFunc("GET /v1/workflow", h.currentWorkflow)
	h.mux.HandleFunc("POST /v1/workflow/reload", h.reloadWorkflow)
	h.mux.HandleFunc("POST /v1/workflow/dry-run", h.dryRun)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// POST /v1/workflows/validate?format=yaml|hcl: build a workflow without loading it.
func (h *Handler) validateWorkflow(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("workflow exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %s", err))
		return
	}
	format := r.URL.Query().Get("format")
	switch format {
	case "":
		format = "yaml"
	case "yaml", "yml", "hcl":
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
		return
	}

	cfg, err := config.Parse("request."+format, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := config.Validate(cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	g, err := dag.Build(cfg)
	if err != nil {
		writeBuildError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newGraphView(cfg.Workflow.Name, g, cfg.Workflow.Dispatch))
}

// GET /v1/workflow: the loaded workflow in dispatch order.
func (h *Handler) currentWorkflow(w http.ResponseWriter, r *http.Request) {
	conf := h.eng.Dispatch()
	writeJSON(w, http.StatusOK, newGraphView(h.loader.Config().Workflow.Name, h.eng.Graph(), &conf))
}

// POST /v1/workflow/reload: re-read the workflow file from disk.
func (h *Handler) reloadWorkflow(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := config.Validate(cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	// Rebuild and swap the DAG.
	g, err := dag.Build(cfg)
	if err != nil {
		writeBuildError(w, err)
		return
	}
	h.eng.Swap(g, *cfg.Workflow.Dispatch)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded": true,
		"workflow": cfg.Workflow.Name,
		"nodes":    g.Len(),
	})
}

// POST /v1/workflow/dry-run: walk the loaded plan without running anything
// and report the order in which tasks were handed out.
func (h *Handler) dryRun(w http.ResponseWriter, r *http.Request) {
	var (
		mu      sync.Mutex
		visited []string
	)
	res, err := h.eng.Run(r.Context(), func(_ context.Context, path string, _ any) error {
		mu.Lock()
		visited = append(visited, path)
		mu.Unlock()
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":     res,
		"visited": visited,
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
