// Package preview hands out short-lived local URLs for the selected video so
// the browser can play it before the backend returns a processed version.
package preview

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alicas/linecall-agent/internal/workflow"
)

const RoutePrefix = "/preview/"

type pathed interface {
	Path() string
}

// Registry maps preview tokens to files on disk.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]string
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{entries: make(map[string]string), logger: logger}
}

// Issue returns a new preview reference for file, or "" when the file has no
// local path to serve.
func (r *Registry) Issue(file workflow.File) string {
	p, ok := file.(pathed)
	if !ok || p.Path() == "" {
		return ""
	}
	token := uuid.NewString()

	r.mu.Lock()
	r.entries[token] = p.Path()
	r.mu.Unlock()

	r.logger.Debug("preview issued", "token", token, "name", file.Name())
	return RoutePrefix + token
}

// Release forgets a reference returned by Issue. Unknown refs are ignored.
func (r *Registry) Release(ref string) {
	token := tokenFromRef(ref)
	r.mu.Lock()
	_, ok := r.entries[token]
	delete(r.entries, token)
	r.mu.Unlock()

	if ok {
		r.logger.Debug("preview released", "token", token)
	}
}

// Lookup returns the path registered for token.
func (r *Registry) Lookup(token string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[token]
	return p, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func tokenFromRef(ref string) string {
	if len(ref) > len(RoutePrefix) && ref[:len(RoutePrefix)] == RoutePrefix {
		return ref[len(RoutePrefix):]
	}
	return ref
}
