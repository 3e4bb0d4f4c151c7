package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/gyaneshwarpardhi/flowdag/internal/api"
	"github.com/gyaneshwarpardhi/flowdag/internal/config"
	"github.com/gyaneshwarpardhi/flowdag/internal/dag"
	"github.com/gyaneshwarpardhi/flowdag/internal/engine"
)

const pipelineYAML = `
version: v1
workflow:
  name: nightly
  nodes:
    - {name: fetch, task: {run: fetch.sh}}
    - name: prep
      pipeline:
        steps:
          - {name: clean, task: {run: clean.sh}}
          - {name: split, task: {run: split.sh}}
  edges:
    - {from: fetch, to: prep}
`

const cycleYAML = `
version: v1
workflow:
  name: loop
  nodes:
    - {name: a, task: {run: a}}
    - {name: b, task: {run: b}}
  edges:
    - {from: a, to: b}
    - {from: b, to: a}
`

const pipelineHCL = `
version = "v1"

workflow "nightly" {
  node "fetch" {
    task { run = "fetch.sh" }
  }
  node "prep" {
    pipeline {
      step "clean" {
        task { run = "clean.sh" }
      }
      step "split" {
        task { run = "split.sh" }
      }
    }
  }
  edge {
    from = "fetch"
    to   = "prep"
  }
}
`

type graphResp struct {
	Workflow string     `json:"workflow"`
	Nodes    int        `json:"nodes"`
	Order    []string   `json:"order"`
	Edges    []dag.Edge `json:"edges"`

	Dispatch config.DispatchConf `json:"dispatch"`
}

type errResp struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newServer loads doc from a temp file and serves it the way cmd/flowdag does.
func newServer(t *testing.T, doc string) (*httptest.Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	loader, err := config.NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	g, err := dag.Build(loader.Config())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	eng := engine.New(ctx, g, *loader.Config().Workflow.Dispatch)
	srv := httptest.NewServer(api.New(eng, loader))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		eng.Shutdown()
	})
	return srv, path
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "text/plain", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestValidate(t *testing.T) {
	srv, _ := newServer(t, pipelineYAML)

	for _, tc := range []struct{ format, body string }{
		{"yaml", pipelineYAML},
		{"hcl", pipelineHCL},
	} {
		t.Run(tc.format, func(t *testing.T) {
			resp := post(t, srv.URL+"/v1/workflows/validate?format="+tc.format, tc.body)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status %d", resp.StatusCode)
			}
			var got graphResp
			decode(t, resp, &got)
			if got.Workflow != "nightly" || got.Nodes != 2 {
				t.Errorf("view: %+v", got)
			}
			if !reflect.DeepEqual(got.Order, []string{"fetch", "prep"}) {
				t.Errorf("order: %v", got.Order)
			}
		})
	}
}

func TestValidate_Rejected(t *testing.T) {
	srv, _ := newServer(t, pipelineYAML)

	cases := []struct {
		name   string
		query  string
		body   string
		status int
		kind   string
	}{
		{"cycle", "", cycleYAML, http.StatusUnprocessableEntity, dag.ErrCycleRejected.Error()},
		{"invalid workflow", "", "version: v1\nworkflow: {}\n", http.StatusUnprocessableEntity, ""},
		{"malformed", "", "workflow: [", http.StatusBadRequest, ""},
		{"unknown format", "?format=toml", pipelineYAML, http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/v1/workflows/validate"+tc.query, tc.body)
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}
			var got errResp
			decode(t, resp, &got)
			if got.Error == "" || got.Kind != tc.kind {
				t.Errorf("error body: %+v", got)
			}
		})
	}
}

func TestValidate_OversizedBody(t *testing.T) {
	srv, _ := newServer(t, pipelineYAML)

	// The closing edge sits past the size limit; the document must be
	// refused rather than judged on its first megabyte.
	doc := strings.Join([]string{
		"version: v1",
		"workflow:",
		"  name: big",
		"  nodes:",
		"    - {name: a, task: {run: a}}",
		"    - {name: b, task: {run: b}}",
		"  edges:",
		"    - {from: a, to: b}",
		"# " + strings.Repeat("x", 1<<20),
		"    - {from: b, to: a}",
		"",
	}, "\n")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/workflows/validate", strings.NewReader(doc))
	srv.Config.Handler.ServeHTTP(rec, req)
	resp := rec.Result()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
	var got errResp
	decode(t, resp, &got)
	if !strings.Contains(got.Error, "exceeds") {
		t.Errorf("error body: %+v", got)
	}
}

func TestCurrentWorkflow(t *testing.T) {
	srv, _ := newServer(t, pipelineYAML)

	resp, err := http.Get(srv.URL + "/v1/workflow")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	var got graphResp
	decode(t, resp, &got)
	if got.Workflow != "nightly" {
		t.Errorf("workflow: %q", got.Workflow)
	}
	if !reflect.DeepEqual(got.Edges, []dag.Edge{{Src: "fetch", Dest: "prep"}}) {
		t.Errorf("edges: %v", got.Edges)
	}
}

func TestReload(t *testing.T) {
	srv, path := newServer(t, pipelineYAML)

	updated := "version: v1\nworkflow:\n  name: single\n  dispatch: {timeout_ms: 1500}\n  nodes:\n    - {name: only, task: {run: only}}\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	resp := post(t, srv.URL+"/v1/workflow/reload", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reload status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/v1/workflow")
	if err != nil {
		t.Fatal(err)
	}
	var got graphResp
	decode(t, resp, &got)
	if got.Workflow != "single" || !reflect.DeepEqual(got.Order, []string{"only"}) {
		t.Errorf("after reload: %+v", got)
	}
	if got.Dispatch.TimeoutMs != 1500 {
		t.Errorf("reloaded timeout_ms not applied: %+v", got.Dispatch)
	}

	// A cyclic workflow is refused and the previous graph stays live.
	if err := os.WriteFile(path, []byte(cycleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	resp = post(t, srv.URL+"/v1/workflow/reload", "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/workflow")
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &got)
	if !reflect.DeepEqual(got.Order, []string{"only"}) {
		t.Errorf("graph replaced by rejected workflow: %v", got.Order)
	}
}

func TestDryRun(t *testing.T) {
	srv, _ := newServer(t, pipelineYAML)

	resp := post(t, srv.URL+"/v1/workflow/dry-run", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var got struct {
		Run     engine.RunResult `json:"run"`
		Visited []string         `json:"visited"`
	}
	decode(t, resp, &got)
	want := []string{"fetch", "prep/clean", "prep/split"}
	if !reflect.DeepEqual(got.Visited, want) {
		t.Errorf("visited %v, want %v", got.Visited, want)
	}
	if got.Run.Tasks != 3 || got.Run.RunID == "" {
		t.Errorf("run: %+v", got.Run)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t, pipelineYAML)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]string
	decode(t, resp, &got)
	if resp.StatusCode != http.StatusOK || got["status"] != "ok" {
		t.Errorf("healthz: %d %v", resp.StatusCode, got)
	}
}
