package ui

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"
	"github.com/ncruces/zenity"

	"github.com/alicas/linecall-agent/internal/ui/menu"
	"github.com/alicas/linecall-agent/internal/workflow"
)

//go:embed icon.png
var iconBytes []byte

type Tray struct {
	ctrl    *workflow.Controller
	ctx     context.Context
	pageURL string
	logger  *slog.Logger

	statusItem *systray.MenuItem
	fileItem   *systray.MenuItem
	callItem   *systray.MenuItem
	runItem    *systray.MenuItem

	mu sync.Mutex

	onQuit func()
}

type TrayConfig struct {
	Controller *workflow.Controller
	// Context bounds runs started from the menu.
	Context context.Context
	PageURL string
	Logger  *slog.Logger
	OnQuit  func()
}

func NewTray(cfg TrayConfig) *Tray {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	t := &Tray{
		ctrl:    cfg.Controller,
		ctx:     ctx,
		pageURL: cfg.PageURL,
		logger:  cfg.Logger,
		onQuit:  cfg.OnQuit,
	}
	cfg.Controller.OnChange(t.Update)
	return t
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Line Call")
	systray.SetTooltip("ALiCaS-B line-call agent")

	t.mu.Lock()
	t.statusItem = systray.AddMenuItem("Status: Idle", "Current workflow state")
	t.statusItem.Disable()
	t.fileItem = systray.AddMenuItem("File: none", "Selected video")
	t.fileItem.Disable()
	t.callItem = systray.AddMenuItem("Last call: -", "Final call of the last analysis")
	t.callItem.Disable()

	systray.AddSeparator()

	openItem := systray.AddMenuItem("Open Line Call", "Open the line-call page in the browser")
	selectItem := systray.AddMenuItem("Select Video...", "Choose a rally video to analyze")
	t.runItem = systray.AddMenuItem("Analyze", "Upload and analyze the selected video")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit the line-call agent")
	t.mu.Unlock()

	t.Update(t.ctrl.Snapshot())

	go func() {
		for {
			select {
			case <-openItem.ClickedCh:
				if err := menu.OpenBrowser(t.pageURL); err != nil {
					t.logger.Error("failed to open browser", "error", err)
				}
			case <-selectItem.ClickedCh:
				go t.pickVideo()
			case <-t.runItem.ClickedCh:
				t.startRun()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) startRun() {
	err := t.ctrl.Start(t.ctx)
	switch {
	case err == nil:
	case errors.Is(err, workflow.ErrNoSelection), errors.Is(err, workflow.ErrRunInFlight):
		t.logger.Info("analyze ignored", "reason", err)
	default:
		t.logger.Error("failed to start run", "error", err)
	}
}

// pickVideo opens the native file dialog and selects the chosen video.
func (t *Tray) pickVideo() {
	path, err := zenity.SelectFile(
		zenity.Title("Select a rally video"),
		zenity.FileFilters{
			{
				Name:     "Videos",
				Patterns: []string{"*.mp4", "*.mov", "*.avi", "*.mkv", "*.webm"},
			},
		},
	)
	if err != nil {
		if !errors.Is(err, zenity.ErrCanceled) {
			t.logger.Error("file picker failed", "error", err)
		}
		return
	}

	file, err := workflow.NewLocalFile(path)
	if err != nil {
		t.logger.Warn("cannot select video", "error", err)
		return
	}
	t.ctrl.SelectFile(file)
	t.logger.Info("video selected from tray", "name", file.Name())
}

// Update refreshes the menu. It is registered with the controller and is a
// no-op until the tray is ready.
func (t *Tray) Update(snap workflow.Snapshot) {
	l := menu.LabelsFor(snap)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.statusItem == nil {
		return
	}
	t.statusItem.SetTitle(l.Status)
	t.fileItem.SetTitle(l.File)
	t.callItem.SetTitle(l.LastCall)
	if l.CanRun {
		t.runItem.Enable()
	} else {
		t.runItem.Disable()
	}
}
