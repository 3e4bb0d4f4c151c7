package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gyaneshwarpardhi/flowdag/internal/dag"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope. Kind is set when a graph
// operation rejected the workflow.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeBuildError reports a failed dag.Build as 422 with the error kind.
func writeBuildError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var gerr *dag.Error
	if errors.As(err, &gerr) {
		resp.Kind = gerr.Kind.Error()
	}
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}
