package calibration

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-parallax/pkg/frustum"
	"github.com/teslashibe/go-parallax/pkg/geom"
)

var (
	// ErrNotActive is returned when a session operation needs a running session.
	ErrNotActive = errors.New("calibration: session not active")

	// ErrAlreadyActive is returned by Start on a running session.
	ErrAlreadyActive = errors.New("calibration: session already active")

	// ErrInvalidSliders means the slider values cannot be committed.
	ErrInvalidSliders = errors.New("calibration: invalid slider values")
)

// State is a step of the calibration procedure.
type State int

const (
	StateOff State = iota
	StateLeft
	StateRight
	StateBottom
	StateTop
	StateSliders
	StateReset
)

// step describes one row of the procedure.
type step struct {
	name   string
	prompt string
	next   State
}

// procedure is the ordered state table. Transitions only move forward;
// Cancel is the only way back to Off before Reset.
var procedure = map[State]step{
	StateOff:     {"off", "", StateLeft},
	StateLeft:    {"left", "Line your head up with the left edge of the screen", StateRight},
	StateRight:   {"right", "Line your head up with the right edge of the screen", StateBottom},
	StateBottom:  {"bottom", "Line your head up with the bottom edge of the screen", StateTop},
	StateTop:     {"top", "Line your head up with the top edge of the screen", StateSliders},
	StateSliders: {"sliders", "Set your distance and screen size, then hold still and confirm", StateReset},
	StateReset:   {"reset", "Saving calibration", StateOff},
}

// String returns the state name.
func (s State) String() string {
	if st, ok := procedure[s]; ok {
		return st.name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Prompt returns the instruction shown while in s.
func (s State) Prompt() string {
	return procedure[s].prompt
}

// Next returns the following state in the procedure.
func (s State) Next() State {
	if st, ok := procedure[s]; ok {
		return st.next
	}
	return StateOff
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for st, row := range procedure {
		if row.name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("calibration: unknown state %q", b)
}

// Sliders are the values the viewer sets in the final step.
type Sliders struct {
	DistanceCm float64 `json:"distance_cm"`
	DiagonalIn float64 `json:"diagonal_in"`
}

// Validate checks both sliders are positive.
func (s Sliders) Validate() error {
	if !(s.DistanceCm > 0) || math.IsInf(s.DistanceCm, 0) {
		return fmt.Errorf("%w: distance %v", ErrInvalidSliders, s.DistanceCm)
	}
	// The diagonal must stay finite once converted to centimeters
	if !(s.DiagonalIn > 0) || math.IsInf(s.DiagonalIn*frustum.CmPerInch, 0) {
		return fmt.Errorf("%w: diagonal %v", ErrInvalidSliders, s.DiagonalIn)
	}
	return nil
}

// Result is what a completed session commits.
type Result struct {
	Constants Constants `json:"constants"`
	Sliders   Sliders   `json:"sliders"`
}

// Session is one run of the calibration procedure.
//
// Bounds recorded along the way live in a working copy. Nothing reaches
// the caller until the Sliders step commits, so cancelling at any point
// leaves the previous constants untouched.
type Session struct {
	ID        uuid.UUID
	StartedAt time.Time

	state   State
	working Constants
	result  *Result

	// OnTransition is called after every state change.
	OnTransition func(from, to State)
}

// NewSession creates an idle session seeded with the current constants.
func NewSession(current Constants) *Session {
	return &Session{
		state:   StateOff,
		working: current,
	}
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Active reports whether the procedure is running.
func (s *Session) Active() bool {
	return s.state != StateOff
}

// Working returns the in-progress constants.
func (s *Session) Working() Constants {
	return s.working
}

// Start moves Off -> Left and assigns a new session ID.
func (s *Session) Start(current Constants) error {
	if s.state != StateOff {
		return fmt.Errorf("%w: in state %s", ErrAlreadyActive, s.state)
	}
	s.ID = uuid.New()
	s.StartedAt = time.Now()
	s.working = current
	s.result = nil
	s.transition(StateLeft)
	return nil
}

// Next captures the value for the current step and advances. eyes is the
// smoothed eye pair at the moment the viewer confirmed; sliders are only
// read in the Sliders step. On error the state does not change.
func (s *Session) Next(eyes geom.EyePair, sliders Sliders) (State, error) {
	center := eyes.Center()

	switch s.state {
	case StateOff:
		return s.state, ErrNotActive
	case StateLeft, StateRight, StateBottom, StateTop:
		if !eyes.Finite() {
			return s.state, fmt.Errorf("%w: no eyes to record", ErrDegenerateSeparation)
		}
	}

	switch s.state {
	case StateLeft:
		s.working.Left = center.X
	case StateRight:
		s.working.Right = center.X
	case StateBottom:
		s.working.Bottom = center.Y
	case StateTop:
		s.working.Top = center.Y
	case StateSliders:
		if err := s.commit(eyes, sliders); err != nil {
			return s.state, err
		}
	}

	s.transition(s.state.Next())
	return s.state, nil
}

func (s *Session) commit(eyes geom.EyePair, sliders Sliders) error {
	if err := sliders.Validate(); err != nil {
		return err
	}
	if err := s.working.ValidateBounds(); err != nil {
		return err
	}
	focal, err := DeriveFocalLength(sliders.DistanceCm, eyes)
	if err != nil {
		return err
	}
	s.working.FocalLength = focal
	s.result = &Result{Constants: s.working, Sliders: sliders}
	return nil
}

// Cancel abandons the session from any state and discards the working copy.
func (s *Session) Cancel() {
	if s.state == StateOff {
		return
	}
	s.result = nil
	s.transition(StateOff)
}

// Result returns the committed values once the session reached Reset.
func (s *Session) Result() (Result, bool) {
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

func (s *Session) transition(to State) {
	from := s.state
	s.state = to
	if s.OnTransition != nil {
		s.OnTransition(from, to)
	}
}
