package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"gopkg.in/yaml.v3"
)

// Loader reads a workflow file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *WorkflowConfig
	onChange []func(*WorkflowConfig)
	watcher  *fsnotify.Watcher
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Config returns the current (latest) configuration.
func (l *Loader) Config() *WorkflowConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the config reloads.
func (l *Loader) OnChange(fn func(*WorkflowConfig)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the config on file changes.
// Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						slog.Warn("config reload failed, keeping previous workflow", "path", l.path, "err", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "path", l.path, "err", err)
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload forces an immediate re-read of the config file.
func (l *Loader) Reload() (*WorkflowConfig, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*WorkflowConfig), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (*WorkflowConfig, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	return Parse(l.path, data)
}

// Parse decodes a workflow document. The format follows the extension of
// filename: .hcl for HCL, anything else is YAML.
func Parse(filename string, data []byte) (*WorkflowConfig, error) {
	var cfg WorkflowConfig
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".hcl":
		if err := hclsimple.Decode(filename, data, nil, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", filename, err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", filename, err)
		}
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *WorkflowConfig) {
	if cfg.Workflow.Dispatch == nil {
		cfg.Workflow.Dispatch = &DispatchConf{}
	}
	d := cfg.Workflow.Dispatch
	if d.Workers == 0 {
		d.Workers = 8
	}
	if d.QueueDepth == 0 {
		d.QueueDepth = d.Workers * 10
	}
	if d.TimeoutMs == 0 {
		d.TimeoutMs = 30000
	}
}
