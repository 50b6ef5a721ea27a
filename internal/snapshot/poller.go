package snapshot

import (
	"context"
	"time"

	"github.com/javanstorm/stasis/internal/transport"
)

// WaitReport describes a completed agent wait.
type WaitReport struct {
	Attempts int
	Elapsed  time.Duration
	Thawed   int
}

// Poller waits for the guest agent to come up and thaws it.
type Poller struct {
	o        *Orchestrator
	maxWait  time.Duration
	interval time.Duration
}

// Poller returns a Poller that retries for at most maxWait, sleeping
// interval between attempts.
func (o *Orchestrator) Poller(maxWait, interval time.Duration) *Poller {
	return &Poller{o: o, maxWait: maxWait, interval: interval}
}

// Run polls until the agent answers a ping, then thaws it on the same
// connection. Connection and ping failures are retried silently; only
// an exhausted budget, a cancelled ctx or a failed thaw is returned.
func (p *Poller) Run(ctx context.Context) (*WaitReport, error) {
	o := p.o
	ep := o.cfg.Agent
	start := o.clock.Now()
	rep := &WaitReport{}
	var lastErr error

	o.state = Idle
	o.transition(Connecting)
	o.logger.Info().
		Str("endpoint", ep.String()).
		Dur("max_wait", p.maxWait).
		Dur("poll_interval", p.interval).
		Msg("Waiting for guest agent...")

	for o.clock.Since(start) < p.maxWait {
		if err := ctx.Err(); err != nil {
			rep.Elapsed = o.clock.Since(start)
			return rep, o.fail(StageWait, err)
		}
		rep.Attempts++

		thawed, ok, err := p.attempt(ctx, ep)
		if ok {
			rep.Elapsed = o.clock.Since(start)
			if err != nil {
				return rep, err
			}
			rep.Thawed = thawed
			return rep, nil
		}
		lastErr = err
		o.logger.Debug().Err(err).Int("attempt", rep.Attempts).Msg("Guest agent not ready")

		select {
		case <-ctx.Done():
			rep.Elapsed = o.clock.Since(start)
			return rep, o.fail(StageWait, ctx.Err())
		case <-o.clock.After(p.interval):
		}
	}

	rep.Elapsed = o.clock.Since(start)
	return rep, o.fail(StageWait, &WaitTimeoutError{
		Elapsed:  rep.Elapsed,
		Attempts: rep.Attempts,
		LastErr:  lastErr,
	})
}

// attempt makes one try at reaching the agent. ok is true once the agent
// answered a ping; err is then the thaw outcome.
func (p *Poller) attempt(ctx context.Context, ep transport.Endpoint) (thawed int, ok bool, err error) {
	o := p.o
	if err := ep.Exists(); err != nil {
		return 0, false, err
	}

	agent, err := o.dialAgent(ctx, ep, transport.Polling)
	if err != nil {
		return 0, false, err
	}
	defer agent.Close()

	if err := agent.Ping(); err != nil {
		return 0, false, err
	}

	o.logger.Info().Msg("Guest agent is responsive")
	thawed, err = o.finishUnfreeze(agent)
	return thawed, true, err
}
