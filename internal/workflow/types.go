// Package workflow holds the selection state and the upload/process state
// machine that drives one line-call analysis run against the backend.
package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoSelection   = errors.New("no file selected")
	ErrRunInFlight   = errors.New("a run is already in progress")
	ErrOptionsFrozen = errors.New("options cannot change while a run is in progress")
	ErrInvalidOption = errors.New("invalid processing option")
	ErrSuperseded    = errors.New("run superseded by a newer selection")
)

// Failure messages stored on a Failed state.
const (
	MsgUploadFailed     = "upload failed"
	MsgProcessingFailed = "processing failed"
)

type Mode string

const (
	ModeSingles Mode = "singles"
	ModeDoubles Mode = "doubles"
)

type ShotType string

const (
	ShotServe ShotType = "serve"
	ShotRally ShotType = "rally"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSingles, ModeDoubles:
		return m, nil
	}
	return "", fmt.Errorf("%w: mode %q", ErrInvalidOption, s)
}

func ParseShotType(s string) (ShotType, error) {
	switch st := ShotType(strings.ToLower(strings.TrimSpace(s))); st {
	case ShotServe, ShotRally:
		return st, nil
	}
	return "", fmt.Errorf("%w: shot type %q", ErrInvalidOption, s)
}

// Options are the user-selectable processing parameters. A run takes a copy
// of them when it starts and never reads the live value again.
type Options struct {
	Mode     Mode     `json:"mode"`
	ShotType ShotType `json:"shot_type"`
}

func DefaultOptions() Options {
	return Options{Mode: ModeSingles, ShotType: ShotServe}
}

func (o Options) Validate() error {
	if _, err := ParseMode(string(o.Mode)); err != nil {
		return err
	}
	if _, err := ParseShotType(string(o.ShotType)); err != nil {
		return err
	}
	return nil
}

type Call string

const (
	CallIn  Call = "IN"
	CallOut Call = "OUT"
)

func ParseCall(s string) (Call, error) {
	switch c := Call(strings.ToUpper(strings.TrimSpace(s))); c {
	case CallIn, CallOut:
		return c, nil
	}
	return "", fmt.Errorf("unknown line call %q", s)
}

// Decision is one detected impact. Decisions are ordered chronologically.
type Decision struct {
	Frame int  `json:"frame"`
	Call  Call `json:"decision"`
}

type Result struct {
	ProcessedVideoRef string     `json:"processed_video_ref"`
	Decisions         []Decision `json:"decisions"`
}

// Final returns the last decision, which is the call for the rally.
func (r Result) Final() (Decision, bool) {
	if len(r.Decisions) == 0 {
		return Decision{}, false
	}
	return r.Decisions[len(r.Decisions)-1], true
}

func (r Result) clone() Result {
	out := Result{ProcessedVideoRef: r.ProcessedVideoRef}
	if r.Decisions != nil {
		out.Decisions = append(make([]Decision, 0, len(r.Decisions)), r.Decisions...)
	}
	return out
}

type Status string

const (
	StatusIdle       Status = "idle"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// CanTransition reports whether the state machine allows from -> to.
// Succeeded and Failed may start a new run directly; a new selection
// resets any state to Idle and is not checked here.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusIdle:
		return to == StatusUploading
	case StatusUploading:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusSucceeded || to == StatusFailed
	case StatusSucceeded, StatusFailed:
		return to == StatusUploading
	}
	return false
}

// State is the single live workflow state. Only the constructors below
// produce values, so a Succeeded state always carries a Result.
type State struct {
	status  Status
	result  *Result
	message string
}

func Idle() State       { return State{status: StatusIdle} }
func Uploading() State  { return State{status: StatusUploading} }
func Processing() State { return State{status: StatusProcessing} }

func Succeeded(r Result) State {
	c := r.clone()
	return State{status: StatusSucceeded, result: &c}
}

func Failed(message string) State {
	return State{status: StatusFailed, message: message}
}

func (s State) Status() Status {
	if s.status == "" {
		return StatusIdle
	}
	return s.status
}

// Result returns a copy of the result of a Succeeded state.
func (s State) Result() (Result, bool) {
	if s.result == nil {
		return Result{}, false
	}
	return s.result.clone(), true
}

// Message is the failure message of a Failed state.
func (s State) Message() string {
	return s.message
}

// InFlight is true while the backend is being called.
func (s State) InFlight() bool {
	st := s.Status()
	return st == StatusUploading || st == StatusProcessing
}

func (s State) String() string {
	if s.status == StatusFailed {
		return fmt.Sprintf("%s(%s)", s.status, s.message)
	}
	return string(s.Status())
}
