// Package snapshot coordinates a crash-consistent VM snapshot across the
// guest agent and the hypervisor monitor.
//
// A run freezes the guest filesystems, asks the monitor to save the VM
// state, thaws the filesystems and powers the VM down. Once a freeze has
// succeeded the thaw is always attempted, whatever the snapshot step did,
// and a failing snapshot and a failing thaw are both reported.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"k8s.io/utils/clock"

	"github.com/javanstorm/stasis/internal/timing"
	"github.com/javanstorm/stasis/internal/transport"
	"github.com/javanstorm/stasis/pkg/guestagent"
	"github.com/javanstorm/stasis/pkg/hypervisor"
)

// AgentConn is a guest agent channel bound to the connection it owns.
type AgentConn interface {
	guestagent.Agent
	io.Closer
}

// MonitorConn is a monitor channel bound to the connection it owns.
type MonitorConn interface {
	hypervisor.Monitor
	io.Closer
}

// AgentDialer opens a guest agent channel.
type AgentDialer func(ctx context.Context, ep transport.Endpoint, policy transport.Policy) (AgentConn, error)

// MonitorDialer opens a monitor channel.
type MonitorDialer func(ctx context.Context, ep transport.Endpoint, policy transport.Policy) (MonitorConn, error)

type agentConn struct {
	*guestagent.QGA
	conn *transport.Conn
}

func (c *agentConn) Close() error { return c.conn.Close() }

type monitorConn struct {
	*hypervisor.QMP
	conn *transport.Conn
}

func (c *monitorConn) Close() error { return c.conn.Close() }

// DialAgent returns an AgentDialer that speaks QGA over transport.Dial.
func DialAgent(logger zerolog.Logger) AgentDialer {
	return func(ctx context.Context, ep transport.Endpoint, policy transport.Policy) (AgentConn, error) {
		conn, err := transport.Dial(ctx, ep, policy, logger)
		if err != nil {
			return nil, err
		}
		return &agentConn{QGA: guestagent.NewQGA(conn), conn: conn}, nil
	}
}

// DialMonitor returns a MonitorDialer that speaks QMP over transport.Dial.
func DialMonitor(logger zerolog.Logger) MonitorDialer {
	return func(ctx context.Context, ep transport.Endpoint, policy transport.Policy) (MonitorConn, error) {
		conn, err := transport.Dial(ctx, ep, policy, logger)
		if err != nil {
			return nil, err
		}
		return &monitorConn{QMP: hypervisor.NewQMP(conn), conn: conn}, nil
	}
}

// Config describes one VM to snapshot.
type Config struct {
	Agent        transport.Endpoint
	Monitor      transport.Endpoint
	SnapshotName string
}

// Report describes what a run did. It is returned even when the run fails.
type Report struct {
	State           State
	Frozen          int
	Thawed          int
	MonitorResponse string
	Phases          []timing.Phase
	FreezeWindow    time.Duration // time the guest spent frozen
	Elapsed         time.Duration
}

// Orchestrator drives the snapshot state machine for one VM.
// It is not safe for concurrent use; each run is strictly sequential.
type Orchestrator struct {
	cfg         Config
	dialAgent   AgentDialer
	dialMonitor MonitorDialer
	clock       clock.Clock
	logger      zerolog.Logger
	state       State
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger state transitions and failures are reported to.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithAgentDialer replaces how guest agent channels are opened.
func WithAgentDialer(d AgentDialer) Option {
	return func(o *Orchestrator) { o.dialAgent = d }
}

// WithMonitorDialer replaces how monitor channels are opened.
func WithMonitorDialer(d MonitorDialer) Option {
	return func(o *Orchestrator) { o.dialMonitor = d }
}

// New returns an Orchestrator for cfg.
func New(cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		clock:  clock.RealClock{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.dialAgent == nil {
		o.dialAgent = DialAgent(o.logger)
	}
	if o.dialMonitor == nil {
		o.dialMonitor = DialMonitor(o.logger)
	}
	return o
}

// State returns the state the last run reached.
func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) transition(to State) {
	from := o.state
	o.state = to
	o.logger.Info().Stringer("from", from).Stringer("state", to).Msg("State transition")
}

func (o *Orchestrator) logEndpoint(ep transport.Endpoint) *zerolog.Event {
	return o.logger.Info().
		Str("endpoint", ep.String()).
		Str("kind", string(ep.Kind())).
		Dur("timeout", ep.Timeout())
}

func (o *Orchestrator) fail(stage Stage, err error) error {
	o.state = Failed
	o.logger.Error().Err(err).Str("stage", string(stage)).Stringer("state", Failed).Msg("Operation failed")
	return &StageError{Stage: stage, Err: err}
}

// Snapshot runs the full cycle: connect, negotiate, freeze, save state,
// thaw, power down.
func (o *Orchestrator) Snapshot(ctx context.Context) (rep *Report, err error) {
	rep = &Report{}
	timer := timing.NewWithClock(o.clock)
	o.state = Idle
	defer func() {
		rep.State = o.state
		rep.Phases = timer.Phases()
		rep.Elapsed = timer.Total()
	}()

	o.transition(Connecting)
	// Check both endpoints before touching either.
	for _, ep := range []transport.Endpoint{o.cfg.Monitor, o.cfg.Agent} {
		if err := ep.Exists(); err != nil {
			return rep, o.fail(StageConnect, err)
		}
	}

	o.logEndpoint(o.cfg.Monitor).Msg("Connecting to monitor socket...")
	mon, err := o.dialMonitor(ctx, o.cfg.Monitor, transport.Eager)
	if err != nil {
		return rep, o.fail(StageConnect, fmt.Errorf("monitor: %w", err))
	}
	defer mon.Close()

	o.logEndpoint(o.cfg.Agent).Msg("Connecting to guest agent socket...")
	agent, err := o.dialAgent(ctx, o.cfg.Agent, transport.Eager)
	if err != nil {
		return rep, o.fail(StageConnect, fmt.Errorf("guest agent: %w", err))
	}
	defer agent.Close()
	timer.Mark("connect")

	o.logger.Info().Msg("Negotiating monitor capabilities...")
	if err := mon.Negotiate(); err != nil {
		return rep, o.fail(StageHandshake, err)
	}
	timer.Mark("handshake")
	info := mon.Info()
	o.logger.Info().
		Str("qemu_version", info.Version).
		Str("qemu_package", info.Package).
		Strs("capabilities", info.Capabilities).
		Msg("Monitor capabilities negotiated")
	o.transition(CapabilitiesNegotiated)

	o.logger.Info().Msg("Freezing filesystem...")
	frozen, err := agent.Freeze()
	if err != nil {
		return rep, o.fail(StageFreeze, err)
	}
	rep.Frozen = frozen
	timer.Mark("freeze")
	o.transition(Frozen)
	o.logger.Info().Int("frozen_count", frozen).Msg("Filesystem frozen successfully")

	// The guest is frozen: from here the thaw runs no matter what the
	// snapshot step returns, and both outcomes are reported.
	snapErr := o.saveState(mon, rep)
	timer.Mark("snapshot")
	o.transition(SnapshotAttempted)

	thawed, thawErr := o.thaw(agent)
	timer.Mark("thaw")
	rep.Thawed = thawed
	rep.FreezeWindow = timer.Span("snapshot", "thaw")

	if err := multierr.Combine(snapErr, thawErr); err != nil {
		o.state = Failed
		o.logger.Error().Err(err).Stringer("state", Failed).Msg("Snapshot cycle failed")
		return rep, err
	}
	o.transition(Thawed)

	o.transition(ShuttingDown)
	o.logger.Info().Msg("Shutting down VM...")
	if err := mon.PowerDown(); err != nil {
		return rep, o.fail(StageShutdown, err)
	}
	timer.Mark("shutdown")
	o.logger.Info().Msg("VM shutdown initiated successfully")

	o.transition(Done)
	o.logger.Info().Object("phases", timer).Dur("freeze_window", rep.FreezeWindow).
		Msg("All operations completed successfully")
	return rep, nil
}

// saveState issues savevm and records the raw response. Only an empty
// response counts as success; the monitor offers no stronger signal.
func (o *Orchestrator) saveState(mon hypervisor.Monitor, rep *Report) error {
	o.logger.Info().Str("snapshot", o.cfg.SnapshotName).Msg("Taking snapshot")

	resp, err := mon.HumanMonitorCommand("savevm " + o.cfg.SnapshotName)
	rep.MonitorResponse = resp
	if err != nil {
		o.logger.Error().Err(err).Str("stage", string(StageSnapshot)).Msg("Failed to take snapshot")
		return &StageError{Stage: StageSnapshot, Err: err}
	}
	if resp != "" {
		o.logger.Error().Str("response", resp).Str("stage", string(StageSnapshot)).Msg("Snapshot might have failed")
		return &StageError{
			Stage: StageSnapshot,
			Err:   fmt.Errorf("%w: snapshot might have failed: %s", hypervisor.ErrMonitorCommandFailed, resp),
		}
	}

	o.logger.Info().Str("snapshot", o.cfg.SnapshotName).Msg("Snapshot taken successfully")
	return nil
}

// thaw is the thaw step shared by the snapshot cycle, Unfreeze and the
// agent poller.
func (o *Orchestrator) thaw(agent guestagent.Agent) (int, error) {
	o.logger.Info().Msg("Thawing filesystem...")

	thawed, err := agent.Thaw()
	if err != nil {
		o.logger.Error().Err(err).Str("stage", string(StageThaw)).Msg("Failed to thaw filesystem")
		return 0, &StageError{Stage: StageThaw, Err: err}
	}

	o.logger.Info().Int("thawed_count", thawed).Msg("Filesystem thawed successfully")
	return thawed, nil
}

// Unfreeze thaws the guest without freezing or snapshotting first. The
// agent endpoint must already exist.
func (o *Orchestrator) Unfreeze(ctx context.Context) (int, error) {
	o.state = Idle
	o.transition(Connecting)

	if err := o.cfg.Agent.Exists(); err != nil {
		return 0, o.fail(StageConnect, err)
	}

	o.logEndpoint(o.cfg.Agent).Msg("Connecting to guest agent socket...")
	agent, err := o.dialAgent(ctx, o.cfg.Agent, transport.Eager)
	if err != nil {
		return 0, o.fail(StageConnect, fmt.Errorf("guest agent: %w", err))
	}
	defer agent.Close()

	return o.finishUnfreeze(agent)
}

func (o *Orchestrator) finishUnfreeze(agent guestagent.Agent) (int, error) {
	thawed, err := o.thaw(agent)
	if err != nil {
		o.state = Failed
		return 0, err
	}
	o.transition(Thawed)
	o.transition(Done)
	return thawed, nil
}
