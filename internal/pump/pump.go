// Package pump is the Pump Loop (C11): a single-threaded, non-reentrant
// periodic tick that runs the liveness watchdog, accounts capacity,
// and — for every non-terminal, non-paused plan — sweeps pending nodes
// into readiness, asks the Scheduler for a dispatch set, and hands each
// selected node to the Node Executor (spec §4.6). The tick/grace-period
// shape is grounded on the teacher's RunnerLoop in
// internal/engine/runner.go, generalized from "one repo, one trigger
// file" to "every loaded plan, every tick."
package pump

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/re-cinq/dagline/internal/capacity"
	"github.com/re-cinq/dagline/internal/events"
	"github.com/re-cinq/dagline/internal/executor"
	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/scheduler"
	"github.com/re-cinq/dagline/internal/state"
	"github.com/re-cinq/dagline/internal/store"
	"github.com/re-cinq/dagline/internal/watchdog"
)

// watchdogEveryNTicks matches spec §4.6 step 1: "every ~10 ticks."
const watchdogEveryNTicks = 10

// ExecutorFactory builds (or returns a cached) Node Executor bound to a
// plan's repository — plans sharing a repo path may share one Executor
// for its Git Gateway connection, but that's the factory's choice.
type ExecutorFactory func(plan *model.Plan) (*executor.Executor, error)

// Pump owns the periodic tick over every plan the Store knows about.
type Pump struct {
	store       *store.Store
	capacity    *capacity.Coordinator
	newExecutor ExecutorFactory
	interval    time.Duration
	log         zerolog.Logger

	ticks uint64

	// machines holds one state.Machine per plan for the current tick.
	// Tick rebuilds it after reloading every plan from the Store, so each
	// Machine wraps the same *model.Plan that this tick's transitions,
	// executor goroutines and writes use, and its mutex guards all of
	// them (spec §5's single-writer guarantee).
	machines map[string]*state.Machine

	// emit is the observable-events seam (spec §6): planStarted fires
	// the first tick a plan's computed status becomes running,
	// planCompleted the first tick it becomes terminal.
	emit       events.Emitter
	lastStatus map[string]model.PlanStatus
}

// New builds a Pump. newExecutor is called once per plan encountered;
// callers typically cache by plan.RepoPath inside it.
func New(st *store.Store, cap *capacity.Coordinator, newExecutor ExecutorFactory, interval time.Duration, log zerolog.Logger) *Pump {
	return &Pump{
		store:       st,
		capacity:    cap,
		newExecutor: newExecutor,
		interval:    interval,
		log:         log,
		machines:    make(map[string]*state.Machine),
		lastStatus:  make(map[string]model.PlanStatus),
	}
}

// SetEmitter wires an observable-events sink into this Pump, and into
// every state.Machine it builds from here on (existing cached machines
// are updated too, so wiring this after a plan's first tick still
// works).
func (p *Pump) SetEmitter(emit events.Emitter) {
	p.emit = emit
	for _, m := range p.machines {
		m.SetEmitter(emit)
	}
}

// Run ticks every interval until ctx is canceled.
func (p *Pump) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil {
				p.log.Error().Err(err).Msg("pump tick failed")
			}
		}
	}
}

// Tick runs exactly one pass over every loaded plan (spec §4.6). It is
// not reentrant: callers (Run) must not invoke it concurrently with
// itself.
func (p *Pump) Tick(ctx context.Context) error {
	p.ticks++

	ids, err := p.store.ListPlanIDs()
	if err != nil {
		return err
	}

	plans := make([]*model.Plan, 0, len(ids))
	for _, id := range ids {
		plan, err := p.store.ReadPlanMetadata(id)
		if err != nil {
			p.log.Warn().Str("plan", id).Err(err).Msg("skipping unreadable plan this tick")
			continue
		}
		plans = append(plans, plan)
	}
	p.machines = make(map[string]*state.Machine, len(plans))

	if p.ticks%watchdogEveryNTicks == 0 {
		p.runWatchdog(plans)
	}

	localRunning := 0
	for _, plan := range plans {
		n := workPerformingCount(plan, model.StatusRunning, model.StatusScheduled)
		localRunning += n
		if err := p.capacity.PublishLocal(plan.ID, n > 0, localRunning); err != nil {
			p.log.Warn().Str("plan", plan.ID).Err(err).Msg("publishing capacity to registry")
		}
	}
	globalRunning := p.capacity.GlobalRunning()

	g, gctx := errgroup.WithContext(ctx)
	for _, plan := range plans {
		plan := plan
		if plan.Paused {
			continue
		}
		m := p.machineFor(plan)
		status := m.ComputePlanStatus()
		p.noteStatusChange(plan.ID, status)
		if state.PlanStatusTerminal(status) {
			continue
		}

		dispatched, err := p.tickPlan(gctx, g, plan, m, globalRunning)
		if err != nil {
			p.log.Error().Str("plan", plan.ID).Err(err).Msg("tick failed for plan")
			continue
		}
		globalRunning += dispatched
	}

	return g.Wait()
}

// tickPlan runs the per-plan body of one tick (spec §4.6 step 3) and
// returns how many nodes it dispatched this tick, so the caller can
// keep its running global-capacity estimate current across plans
// within the same tick.
func (p *Pump) tickPlan(ctx context.Context, g *errgroup.Group, plan *model.Plan, m *state.Machine, globalRunning int) (int, error) {
	now := time.Now()
	if plan.StartedAt == nil && m.ComputePlanStatus() == model.PlanRunning {
		plan.StartedAt = &now
	}

	for nodeID, s := range plan.NodeStates {
		if s.Status == model.StatusPending {
			m.PromotePendingIfReady(nodeID)
		}
	}

	planRunning := workPerformingCount(plan, model.StatusRunning, model.StatusScheduled)
	ids := scheduler.Select(plan, m, planRunning, p.capacity.GlobalMax(), globalRunning)

	ex, err := p.newExecutor(plan)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, nodeID := range ids {
		nodeID := nodeID
		// A node that has already recorded an attempt is being
		// dispatched again because Lifecycle.Retry re-armed it (a fresh
		// node's Attempt is still 0 the first time it's scheduled) —
		// spec §3's trigger={initial,retry,auto-heal}; auto-heal itself
		// is handled inside RunNode, never by a second pump dispatch.
		trigger := model.TriggerInitial
		if s := plan.NodeStates[nodeID]; s != nil && s.Attempt > 0 {
			trigger = model.TriggerRetry
		}
		// scheduler.Select's counts are a snapshot taken at the top of
		// this tick; the semaphore is the admission gate across every
		// plan, holding one slot per node dispatched and not yet
		// finished. A node that finds no free slot waits for next tick
		// rather than blocking this one.
		if !p.capacity.TryAcquire() {
			continue
		}
		if err := m.Transition(nodeID, model.StatusScheduled, "dispatched by pump"); err != nil {
			p.capacity.Release()
			p.log.Warn().Str("plan", plan.ID).Str("node", nodeID).Err(err).Msg("scheduler proposed an illegal transition")
			continue
		}
		g.Go(func() error {
			defer p.capacity.Release()
			if err := ex.RunNode(ctx, m, plan, nodeID, trigger); err != nil {
				p.log.Error().Str("plan", plan.ID).Str("node", nodeID).Err(err).Msg("node execution returned an error")
			}
			return nil // one node's failure never aborts the group's other nodes
		})
		dispatched++
	}

	if err := p.store.WritePlanMetadata(plan); err != nil {
		return dispatched, err
	}
	return dispatched, nil
}

func (p *Pump) machineFor(plan *model.Plan) *state.Machine {
	if m, ok := p.machines[plan.ID]; ok {
		return m
	}
	m := state.New(plan)
	m.SetEmitter(p.emit)
	p.machines[plan.ID] = m
	return m
}

// noteStatusChange publishes planStarted/planCompleted the first tick a
// plan's computed status crosses into running or terminal.
func (p *Pump) noteStatusChange(planID string, status model.PlanStatus) {
	prev := p.lastStatus[planID]
	p.lastStatus[planID] = status
	if prev == status {
		return
	}
	if status == model.PlanRunning {
		p.publish(events.Event{Type: events.PlanStarted, PlanID: planID})
	}
	if state.PlanStatusTerminal(status) {
		p.publish(events.Event{Type: events.PlanCompleted, PlanID: planID, Status: string(status)})
	}
}

func (p *Pump) publish(ev events.Event) {
	if p.emit == nil {
		return
	}
	p.emit(ev)
}

func (p *Pump) runWatchdog(plans []*model.Plan) {
	for _, plan := range plans {
		m := p.machineFor(plan)
		dead := watchdog.Sweep(m, plan)
		if len(dead) == 0 {
			continue
		}
		if err := p.store.WritePlanMetadata(plan); err != nil {
			p.log.Error().Str("plan", plan.ID).Err(err).Msg("persisting plan after watchdog sweep")
		}
		for _, d := range dead {
			p.log.Warn().Str("plan", plan.ID).Str("node", d.NodeID).Int("pid", d.PID).Msg("watchdog force-failed node: process died")
		}
	}
}

func workPerformingCount(plan *model.Plan, statuses ...model.NodeStatus) int {
	want := make(map[model.NodeStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	byID := plan.NodesByID()
	count := 0
	for nodeID, s := range plan.NodeStates {
		if !want[s.Status] {
			continue
		}
		if n, ok := byID[nodeID]; ok && scheduler.IsWorkPerforming(n) {
			count++
		}
	}
	return count
}
