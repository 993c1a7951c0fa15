package execution

import "errors"

var (
	// ErrNilConfig is returned when the configuration is nil.
	ErrNilConfig = errors.New("execution mode config is nil")

	// ErrNilVUFactory is returned when no VU factory is configured.
	ErrNilVUFactory = errors.New("vu factory is nil")

	// ErrNoStages is returned when no stages are defined for ramping modes.
	ErrNoStages = errors.New("no stages defined for ramping mode")

	// ErrInvalidStage is returned for a stage with a negative duration or target.
	ErrInvalidStage = errors.New("invalid stage")

	// ErrModeAlreadyRunning is returned when trying to start a mode that is already running.
	ErrModeAlreadyRunning = errors.New("execution mode is already running")

	// ErrUnknownMode is returned when no mode is registered under a name.
	ErrUnknownMode = errors.New("unknown execution mode")
)
