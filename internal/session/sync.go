package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alicas/linecall-agent/internal/workflow"
)

const (
	KeyDeviceID  = "device_id"
	KeyAuthToken = "auth_token"
)

// EnsureDeviceID returns the stored device id, creating one on first start.
func EnsureDeviceID(ctx context.Context, repo Repository) (string, error) {
	if existing, err := repo.GetConfig(ctx, KeyDeviceID); err == nil && existing != "" {
		return existing, nil
	}
	id := uuid.NewString()
	if err := repo.SetConfig(ctx, KeyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

// EnsureAuthToken returns the bearer token guarding the local API.
func EnsureAuthToken(ctx context.Context, repo Repository) (string, error) {
	if existing, err := repo.GetConfig(ctx, KeyAuthToken); err == nil && existing != "" {
		return existing, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	if err := repo.SetConfig(ctx, KeyAuthToken, token); err != nil {
		return "", err
	}
	return token, nil
}

// FromSnapshot builds the row to persist for a controller snapshot.
func FromSnapshot(snap workflow.Snapshot) *Session {
	s := &Session{
		Mode:     string(snap.Options.Mode),
		ShotType: string(snap.Options.ShotType),
	}
	if snap.Selection != nil {
		if lf, ok := snap.Selection.File.(*workflow.LocalFile); ok {
			s.SelectionPath = lf.Path()
			s.SelectionName = lf.Name()
			s.SelectionOwned = lf.Owned()
		}
	}
	return s
}

// Options returns the stored options, falling back to defaults for values a
// newer or older agent wrote that this one does not understand.
func (s *Session) Options() workflow.Options {
	opts := workflow.DefaultOptions()
	if m, err := workflow.ParseMode(s.Mode); err == nil {
		opts.Mode = m
	}
	if st, err := workflow.ParseShotType(s.ShotType); err == nil {
		opts.ShotType = st
	}
	return opts
}

// Selection reopens the stored file. It returns nil when nothing was
// selected or the file no longer exists.
func (s *Session) Selection() *workflow.LocalFile {
	if s.SelectionPath == "" {
		return nil
	}
	var f *workflow.LocalFile
	var err error
	if s.SelectionOwned {
		f, err = workflow.NewOwnedFile(s.SelectionPath, s.SelectionName)
	} else {
		f, err = workflow.NewLocalFile(s.SelectionPath)
	}
	if err != nil {
		return nil
	}
	return f
}

// Persister writes controller snapshots to the repository.
type Persister struct {
	repo    Repository
	logger  *slog.Logger
	timeout time.Duration
}

func NewPersister(repo Repository, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Persister{repo: repo, logger: logger, timeout: 5 * time.Second}
}

// Observe is registered with workflow.Controller.OnChange.
func (p *Persister) Observe(snap workflow.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.repo.SaveSession(ctx, FromSnapshot(snap)); err != nil {
		p.logger.Warn("failed to persist session", "error", err)
	}
}

// Restore loads the saved session into c: options first, then the selection
// if its file is still on disk. It returns the restored file, if any.
func Restore(ctx context.Context, repo Repository, c *workflow.Controller) (*workflow.LocalFile, error) {
	s, err := repo.LoadSession(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	opts := s.Options()
	if err := c.SetMode(opts.Mode); err != nil {
		return nil, err
	}
	if err := c.SetShotType(opts.ShotType); err != nil {
		return nil, err
	}
	f := s.Selection()
	if f != nil {
		c.SelectFile(f)
	}
	return f, nil
}
