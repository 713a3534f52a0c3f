package params

import (
	"context"
	"time"

	"sjsage522/flatworker/logger"
)

// DefaultPollInterval bounds how long the gate sleeps between presence checks
const DefaultPollInterval = 30 * time.Second

// Gate blocks ingestion until the required parameters are present
type Gate struct {
	params   *Params
	poll     time.Duration
	required []string
}

// NewGate creates a gate over params. With no required keys given, all of
// RequiredKeys are required.
func NewGate(params *Params, poll time.Duration, required ...string) *Gate {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if len(required) == 0 {
		required = RequiredKeys
	}
	return &Gate{params: params, poll: poll, required: required}
}

// Wait returns once every required parameter is set, or when ctx is done.
// Presence is rechecked after every wakeup, whether it came from the signal or
// the poll timer, so a signal raised between check and wait cannot stall it.
func (g *Gate) Wait(ctx context.Context) error {
	log := logger.ForGate()
	timer := time.NewTimer(g.poll)
	defer timer.Stop()

	logged := false
	for {
		missing := g.params.Missing(g.required...)
		if len(missing) == 0 {
			// Consume a pending signal; the next cycle checks presence again anyway
			select {
			case <-g.params.Ready():
			default:
			}
			return nil
		}

		if !logged {
			log.Info().Strs("missing", missing).Msg("Waiting for operating parameters")
			logged = true
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(g.poll)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.params.Ready():
		case <-timer.C:
		}
	}
}
