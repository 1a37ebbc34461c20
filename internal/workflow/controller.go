package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alicas/linecall-agent/internal/logging"
)

// Backend is the remote analysis service.
type Backend interface {
	// Upload transmits the file and returns the backend's opaque filename.
	Upload(ctx context.Context, file File) (string, error)
	// Process analyzes a previously uploaded file.
	Process(ctx context.Context, filename string, opts Options) (*Processed, error)
	// MediaURL turns the basename of a processed video into a playable URL.
	MediaURL(basename string) string
}

// Processed is the backend's answer to a process request.
type Processed struct {
	OutputVideo string
	Decisions   []Decision
}

// Previewer issues and releases local playable references for selections.
type Previewer interface {
	Issue(file File) string
	Release(ref string)
}

// Snapshot is a consistent copy of the controller's state.
type Snapshot struct {
	State     State
	Selection *Selection
	Options   Options

	seq uint64
}

type Config struct {
	Backend   Backend
	Previewer Previewer
	Options   Options
	Logger    *slog.Logger
}

// Controller owns the selection, the options and the workflow state. All
// mutation happens under mu; backend calls happen outside it and their
// effects are applied only if the run is still current.
type Controller struct {
	backend  Backend
	previews Previewer
	logger   *slog.Logger

	mu        sync.Mutex
	selection *Selection
	options   Options
	state     State
	gen       uint64
	seq       uint64
	observers []func(Snapshot)

	// busy counts runs still reading a selection's file; orphaned marks
	// superseded selections whose file is discarded when the last run ends.
	busy     map[*Selection]int
	orphaned map[*Selection]bool

	notifyMu  sync.Mutex
	delivered uint64
}

type run struct {
	id   string
	gen  uint64
	sel  *Selection
	file File
	opts Options
}

func NewController(cfg Config) *Controller {
	opts := cfg.Options
	if opts.Validate() != nil {
		opts = DefaultOptions()
	}
	previews := cfg.Previewer
	if previews == nil {
		previews = noPreviews{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		backend:  cfg.Backend,
		previews: previews,
		logger:   logger,
		options:  opts,
		state:    Idle(),
		busy:     make(map[*Selection]int),
		orphaned: make(map[*Selection]bool),
	}
}

// OnChange registers fn to be called with a snapshot after every change.
// Observers run on the goroutine that made the change, outside the lock, one
// delivery at a time. A snapshot older than one already delivered is dropped,
// so observers never see the state move backwards. Observers must not call
// back into the controller.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.options
}

// SelectFile replaces the selection, discards any result or failure and
// resets the state to Idle. A run still in flight keeps going but its
// outcome is dropped.
func (c *Controller) SelectFile(file File) {
	c.mu.Lock()
	old := c.selection
	c.selection = &Selection{File: file, PreviewRef: c.previews.Issue(file)}
	c.gen++
	c.state = Idle()
	inUse := old != nil && c.busy[old] > 0
	if inUse {
		c.orphaned[old] = true
	}
	snap := c.commitLocked()
	c.mu.Unlock()

	if old != nil {
		if old.PreviewRef != "" {
			c.previews.Release(old.PreviewRef)
		}
		if !inUse {
			c.discard(old.File)
		}
	}
	c.logger.Info("file selected", "name", file.Name(), "size", file.Size())
	c.notify(snap)
}

func (c *Controller) SetMode(m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	return c.updateOptions(func(o *Options) { o.Mode = m })
}

func (c *Controller) SetShotType(st ShotType) error {
	if _, err := ParseShotType(string(st)); err != nil {
		return err
	}
	return c.updateOptions(func(o *Options) { o.ShotType = st })
}

func (c *Controller) updateOptions(apply func(*Options)) error {
	c.mu.Lock()
	if c.state.InFlight() {
		c.mu.Unlock()
		return ErrOptionsFrozen
	}
	apply(&c.options)
	snap := c.commitLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// Run performs one upload/process run and blocks until it ends. The returned
// error is the cause of a failed run; the state already reflects it.
func (c *Controller) Run(ctx context.Context) error {
	r, err := c.begin()
	if err != nil {
		return err
	}
	return c.execute(ctx, r)
}

// Start checks the preconditions of Run synchronously and runs the backend
// calls in the background.
func (c *Controller) Start(ctx context.Context) error {
	r, err := c.begin()
	if err != nil {
		return err
	}
	go func() {
		_ = c.execute(ctx, r)
	}()
	return nil
}

func (c *Controller) begin() (run, error) {
	c.mu.Lock()
	if c.selection == nil {
		c.mu.Unlock()
		return run{}, ErrNoSelection
	}
	if !CanTransition(c.state.Status(), StatusUploading) {
		c.mu.Unlock()
		return run{}, ErrRunInFlight
	}
	c.gen++
	r := run{
		id:   uuid.NewString(),
		gen:  c.gen,
		sel:  c.selection,
		file: c.selection.File,
		opts: c.options,
	}
	c.busy[r.sel]++
	c.state = Uploading()
	snap := c.commitLocked()
	c.mu.Unlock()

	c.logger.Info("run started", "run_id", r.id, "file", r.file.Name(),
		"mode", r.opts.Mode, "shot_type", r.opts.ShotType)
	c.notify(snap)
	return r, nil
}

func (c *Controller) execute(ctx context.Context, r run) error {
	defer c.finish(r)
	logger := logging.WithRunID(c.logger, r.id)

	filename, err := c.backend.Upload(ctx, r.file)
	if err != nil {
		logger.Error("upload failed", "error", err)
		if !c.advance(r, Failed(MsgUploadFailed)) {
			return ErrSuperseded
		}
		return fmt.Errorf("upload: %w", err)
	}
	logger.Info("upload complete", "filename", filename)

	if !c.advance(r, Processing()) {
		return ErrSuperseded
	}

	out, err := c.backend.Process(ctx, filename, r.opts)
	if err != nil {
		logger.Error("processing failed", "error", err)
		if !c.advance(r, Failed(MsgProcessingFailed)) {
			return ErrSuperseded
		}
		return fmt.Errorf("process: %w", err)
	}

	result := Result{
		ProcessedVideoRef: c.backend.MediaURL(Basename(out.OutputVideo)),
		Decisions:         out.Decisions,
	}
	if !c.advance(r, Succeeded(result)) {
		return ErrSuperseded
	}
	logger.Info("run succeeded", "decisions", len(result.Decisions), "media", result.ProcessedVideoRef)
	return nil
}

// advance applies next if r is still the current run and the transition is
// legal. On success the original preview is released.
func (c *Controller) advance(r run, next State) bool {
	c.mu.Lock()
	if r.gen != c.gen || !CanTransition(c.state.Status(), next.Status()) {
		c.mu.Unlock()
		c.logger.Debug("discarding stale run outcome", "run_id", r.id, "state", next.String())
		return false
	}
	c.state = next
	var released string
	if next.Status() == StatusSucceeded && c.selection != nil {
		released = c.selection.PreviewRef
		c.selection.PreviewRef = ""
	}
	snap := c.commitLocked()
	c.mu.Unlock()

	if released != "" {
		c.previews.Release(released)
	}
	c.notify(snap)
	return true
}

// finish drops the run's hold on its selection and discards the file if the
// selection was superseded while the run was still reading it.
func (c *Controller) finish(r run) {
	c.mu.Lock()
	c.busy[r.sel]--
	orphan := false
	if c.busy[r.sel] <= 0 {
		delete(c.busy, r.sel)
		orphan = c.orphaned[r.sel]
		delete(c.orphaned, r.sel)
	}
	c.mu.Unlock()

	if orphan {
		c.discard(r.file)
	}
}

func (c *Controller) discard(f File) {
	if d, ok := f.(Discarder); ok {
		if err := d.Discard(); err != nil {
			c.logger.Warn("failed to discard superseded file", "name", f.Name(), "error", err)
		}
	}
}

// commitLocked numbers a snapshot of a change that observers must see.
func (c *Controller) commitLocked() Snapshot {
	c.seq++
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{State: c.state, Options: c.options, seq: c.seq}
	if c.selection != nil {
		sel := *c.selection
		snap.Selection = &sel
	}
	return snap
}

func (c *Controller) notify(snap Snapshot) {
	c.mu.Lock()
	observers := append([]func(Snapshot){}, c.observers...)
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if snap.seq <= c.delivered {
		c.logger.Debug("dropping superseded snapshot", "state", snap.State.String())
		return
	}
	c.delivered = snap.seq
	for _, fn := range observers {
		fn(snap)
	}
}

type noPreviews struct{}

func (noPreviews) Issue(File) string { return "" }
func (noPreviews) Release(string)    {}
