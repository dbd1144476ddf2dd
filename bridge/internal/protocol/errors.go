package protocol

import "errors"

// Error taxonomy. Callers branch with errors.Is; the concrete cause is
// carried by wrapping (fmt.Errorf("%w: ...", ErrConnection)).
var (
	// ErrConnection: channel unavailable or disconnected at send time.
	// Never retried automatically; the next send reconnects lazily.
	ErrConnection = errors.New("native helper unavailable")

	// ErrProtocol: inbound message missing a job id, or a response
	// lacking a success flag.
	ErrProtocol = errors.New("native protocol violation")

	// ErrValidation: the request was rejected before any message was
	// sent. No job id is ever allocated for these.
	ErrValidation = errors.New("invalid download request")

	// ErrJob: the helper reported a failure for an accepted job.
	ErrJob = errors.New("download job failed")
)
