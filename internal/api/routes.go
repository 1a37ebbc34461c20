package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alicas/linecall-agent/internal/logging"
	"github.com/alicas/linecall-agent/internal/preview"
	"github.com/alicas/linecall-agent/internal/render"
	"github.com/alicas/linecall-agent/internal/session"
	"github.com/alicas/linecall-agent/internal/workflow"
)

const (
	pingTimeout = 2 * time.Second
	// multipartOverhead allows for form boundaries and headers on top of the
	// file itself.
	multipartOverhead = 1 << 20
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	if cfg.RunContext == nil {
		cfg.RunContext = context.Background()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard(cfg.Logger))
		r.Get("/", pageHandler(cfg))
		r.Get("/preview/{token}", previewHandler(cfg))
		r.Head("/preview/{token}", previewHandler(cfg))
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/selection", uploadSelectionHandler(cfg))
		r.Post("/selection/path", selectPathHandler(cfg))
		r.Put("/options", optionsHandler(cfg))
		r.Post("/run", runHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

// pageHandler serves the browser page. Visiting it with ?token= stores the
// token in a cookie and redirects to the clean URL.
func pageHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := r.URL.Query().Get("token"); token != "" {
			stored, err := cfg.Repository.GetConfig(r.Context(), session.KeyAuthToken)
			if err == nil && stored != "" && token == stored {
				http.SetCookie(w, &http.Cookie{
					Name:     TokenCookie,
					Value:    token,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteStrictMode,
				})
			} else {
				cfg.Logger.Warn("ignoring invalid page token", "provided", logging.SanitizeToken(token))
			}
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		backendURL := ""
		if cfg.Backend != nil {
			backendURL = cfg.Backend.BaseURL()
		}
		data := render.NewPageData(render.NewView(cfg.Controller.Snapshot()), cfg.Version, backendURL)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := render.Page(w, data); err != nil {
			cfg.Logger.Error("failed to render page", "error", err)
		}
	}
}

func previewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")
		if err := cfg.Previews.ServeToken(w, r, token); err != nil {
			cfg.Logger.Error("preview error", "error", err)
		}
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{View: render.NewView(cfg.Controller.Snapshot())}

		if cfg.Backend != nil {
			resp.Backend.URL = cfg.Backend.BaseURL()
			ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			msg, err := cfg.Backend.Ping(ctx)
			cancel()
			if err != nil {
				resp.Backend.Error = err.Error()
			} else {
				resp.Backend.Reachable = true
				resp.Backend.Message = msg
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

// uploadSelectionHandler stores the "file" part of a multipart body in the
// upload cache and selects it.
func uploadSelectionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes+multipartOverhead)
		}

		mr, err := r.MultipartReader()
		if err != nil {
			WriteError(w, http.StatusBadRequest, "multipart body required", "BAD_REQUEST")
			return
		}

		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				WriteError(w, http.StatusBadRequest, "file field is required", "BAD_REQUEST")
				return
			}
			if err != nil {
				WriteError(w, http.StatusBadRequest, "invalid multipart body", "BAD_REQUEST")
				return
			}
			if part.FormName() != "file" {
				part.Close()
				continue
			}

			name := part.FileName()
			if name == "" {
				name = "upload"
			}
			file, err := cfg.Uploads.Save(name, part)
			part.Close()
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) || errors.Is(err, preview.ErrTooLarge) {
					WriteError(w, http.StatusRequestEntityTooLarge, "file too large", "TOO_LARGE")
					return
				}
				cfg.Logger.Error("failed to cache upload", "error", err)
				WriteError(w, http.StatusInternalServerError, "failed to store upload", "INTERNAL_ERROR")
				return
			}

			cfg.Controller.SelectFile(file)
			WriteJSON(w, http.StatusOK, render.NewView(cfg.Controller.Snapshot()))
			return
		}
	}
}

func selectPathHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectPathRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		file, err := workflow.NewLocalFile(expandHome(strings.TrimSpace(req.Path)))
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		cfg.Controller.SelectFile(file)
		cfg.Logger.Info("file selected", "path", logging.SanitizePath(file.Path()))
		WriteJSON(w, http.StatusOK, render.NewView(cfg.Controller.Snapshot()))
	}
}

func optionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OptionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		var mode workflow.Mode
		var shot workflow.ShotType
		var err error
		if req.Mode != "" {
			if mode, err = workflow.ParseMode(req.Mode); err != nil {
				writeWorkflowError(w, err)
				return
			}
		}
		if req.ShotType != "" {
			if shot, err = workflow.ParseShotType(req.ShotType); err != nil {
				writeWorkflowError(w, err)
				return
			}
		}

		if mode != "" {
			if err := cfg.Controller.SetMode(mode); err != nil {
				writeWorkflowError(w, err)
				return
			}
		}
		if shot != "" {
			if err := cfg.Controller.SetShotType(shot); err != nil {
				writeWorkflowError(w, err)
				return
			}
		}

		WriteJSON(w, http.StatusOK, render.NewView(cfg.Controller.Snapshot()))
	}
}

func runHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Controller.Start(cfg.RunContext); err != nil {
			writeWorkflowError(w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, render.NewView(cfg.Controller.Snapshot()))
	}
}

func writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrNoSelection):
		WriteError(w, http.StatusBadRequest, err.Error(), "NO_SELECTION")
	case errors.Is(err, workflow.ErrInvalidOption):
		WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_OPTION")
	case errors.Is(err, workflow.ErrRunInFlight):
		WriteError(w, http.StatusConflict, err.Error(), "RUN_IN_FLIGHT")
	case errors.Is(err, workflow.ErrOptionsFrozen):
		WriteError(w, http.StatusConflict, err.Error(), "OPTIONS_FROZEN")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
