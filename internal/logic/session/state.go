package session

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/cjeanneret/BoothGo/internal/debug"
)

// State is the position of a session in its lifecycle.
type State string

const (
	Idle         State = "idle"
	Initializing State = "initializing"
	Live         State = "live"
	Countdown    State = "countdown"
	Capturing    State = "capturing"
	Ready        State = "ready"
	Compositing  State = "compositing"
	Preview      State = "preview"
	Uploading    State = "uploading"
	Failed       State = "error"
	Closed       State = "closed"
)

// Transition events.
const (
	evOpen          = "open"
	evReady         = "ready"
	evCountdown     = "countdown"
	evFire          = "fire"
	evResume        = "resume"
	evComplete      = "complete"
	evCompose       = "compose"
	evComposed      = "composed"
	evComposeFailed = "compose_failed"
	evUpload        = "upload"
	evUploadFailed  = "upload_failed"
	evUploaded      = "uploaded"
	evClose         = "close"
)

func states(ss ...State) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

// newMachine builds the lifecycle state machine. Callbacks only log; every
// transition is driven by the session loop.
func newMachine(id string) *fsm.FSM {
	return fsm.NewFSM(
		string(Idle),
		fsm.Events{
			{Name: evOpen, Src: states(Idle), Dst: string(Initializing)},
			{Name: evReady, Src: states(Initializing), Dst: string(Live)},
			{Name: evCountdown, Src: states(Live), Dst: string(Countdown)},
			{Name: evFire, Src: states(Countdown), Dst: string(Capturing)},
			{Name: evResume, Src: states(Capturing), Dst: string(Live)},
			{Name: evComplete, Src: states(Capturing), Dst: string(Ready)},
			{Name: evCompose, Src: states(Ready, Failed), Dst: string(Compositing)},
			{Name: evComposed, Src: states(Compositing), Dst: string(Preview)},
			{Name: evComposeFailed, Src: states(Compositing), Dst: string(Failed)},
			{Name: evUpload, Src: states(Preview), Dst: string(Uploading)},
			{Name: evUploadFailed, Src: states(Uploading), Dst: string(Preview)},
			{Name: evUploaded, Src: states(Uploading), Dst: string(Closed)},
			{Name: evClose, Src: states(Idle, Initializing, Live, Countdown, Capturing, Ready, Compositing, Preview, Uploading, Failed), Dst: string(Closed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				debug.State(e.Src, e.Dst)
				debug.Verbose("Session %s: %s", id, e.Event)
			},
		},
	)
}
