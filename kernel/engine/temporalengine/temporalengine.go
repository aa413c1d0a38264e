// Package temporalengine is a contract-only cycle adapter over
// go.temporal.io/sdk that does not implement engine.Engine: it exists to meet the distributed-marshalling-boundary
// contracts the out-of-scope durable layer must satisfy (§1/NEW), not to be
// a production Temporal integration. A *plan.Plan cannot itself cross a
// workflow/activity boundary (Temporal requires serializable payloads, and
// "no persistence of live plan state" is a hard non-goal, §1); every cycle
// therefore runs as a single activity against a plan already resident in
// this process's PlanRegistry, with the workflow only providing Temporal's
// durable-retry envelope around that activity call. Grounded on the
// teacher's runtime/agent/engine/temporal adapter, with Options trimmed to
// Client/ClientOptions, TaskQueue, Logger and the tracing/metrics switches,
// and to the one activity this kernel needs instead of a general
// workflow/activity registry.
package temporalengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/taskplan/kernel/engine"
	"github.com/taskplan/kernel/plan"
	"github.com/taskplan/kernel/telemetry"
)

const runCycleWorkflowName = "taskplan.RunCycle"
const runCycleActivityName = "taskplan.RunCycleActivity"

// PlanRegistry maps a plan ID to the in-process *plan.Plan it names, so the
// activity handler (which only receives serializable input) can find the
// plan it must run a cycle against.
type PlanRegistry struct {
	mu    sync.RWMutex
	plans map[string]*plan.Plan
}

// NewPlanRegistry constructs an empty registry.
func NewPlanRegistry() *PlanRegistry {
	return &PlanRegistry{plans: make(map[string]*plan.Plan)}
}

// Register associates id with p, overwriting any previous registration.
func (r *PlanRegistry) Register(id string, p *plan.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[id] = p
}

// Lookup returns the plan registered under id, if any.
func (r *PlanRegistry) Lookup(id string) (*plan.Plan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[id]
	return p, ok
}

// CycleInput is the serializable activity/workflow input for one cycle.
type CycleInput struct {
	PlanID   string
	Seconds  int64
	Micros   int32
	External []plan.ExternalEvent
}

// CycleResult is the serializable activity/workflow output: a summary of
// engine.CycleReport, since errs.SynchronousEventProcessingMultipleErrors
// does not round-trip through Temporal's JSON data converter.
type CycleResult struct {
	Seconds      int64
	Micros       int32
	ErrorCount   int
	GarbagedIDs  []plan.ID
	FinalizedIDs []plan.ID
}

// Options configures the Temporal engine adapter. Either Client or
// ClientOptions must be provided, mirroring the teacher's adapter.
type Options struct {
	Client        client.Client
	ClientOptions *client.Options
	TaskQueue     string
	Logger        telemetry.Logger
	DisableTracing bool
	DisableMetrics bool
}

// Engine runs each cycle as a Temporal workflow wrapping a single activity
// execution, against a plan looked up from Registry. Its RunCycle/Run
// signatures carry an explicit planID the generic engine.Engine interface
// has no room for (a durable workflow needs a stable external identity to
// resume against; the in-process engine.Engine assumes a single plan value
// is identity enough) — so this type deliberately does not implement
// engine.Engine, it only shares RunOneCycle with it.
type Engine struct {
	client      client.Client
	closeClient bool
	taskQueue   string
	logger      telemetry.Logger

	Registry *PlanRegistry

	w       worker.Worker
	started bool
	mu      sync.Mutex
}

// New constructs a Temporal-backed engine. The caller must still call
// StartWorker before Run/RunCycle can make progress, mirroring the
// teacher's explicit worker lifecycle.
func New(opts Options) (*Engine, error) {
	if opts.TaskQueue == "" {
		return nil, fmt.Errorf("temporalengine: task queue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}

	cli := opts.Client
	closeClient := false
	if cli == nil {
		if opts.ClientOptions == nil {
			return nil, fmt.Errorf("temporalengine: client options are required when Client is nil")
		}
		clientOpts := *opts.ClientOptions
		if !opts.DisableTracing {
			interceptor, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{})
			if err != nil {
				return nil, fmt.Errorf("temporalengine: tracing interceptor: %w", err)
			}
			clientOpts.Interceptors = append(clientOpts.Interceptors, interceptor)
		}
		if !opts.DisableMetrics {
			clientOpts.MetricsHandler = temporalotel.NewMetricsHandler(temporalotel.MetricsHandlerOptions{})
		}
		c, err := client.NewLazyClient(clientOpts)
		if err != nil {
			return nil, fmt.Errorf("temporalengine: create client: %w", err)
		}
		cli = c
		closeClient = true
	}

	return &Engine{
		client:      cli,
		closeClient: closeClient,
		taskQueue:   opts.TaskQueue,
		logger:      logger,
		Registry:    NewPlanRegistry(),
	}, nil
}

// StartWorker registers the cycle workflow/activity and starts polling the
// task queue. Call once before driving any cycles.
func (e *Engine) StartWorker() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	e.w = worker.New(e.client, e.taskQueue, worker.Options{})
	e.w.RegisterWorkflowWithOptions(e.runCycleWorkflow, workflow.RegisterOptions{Name: runCycleWorkflowName})
	e.w.RegisterActivityWithOptions(e.runCycleActivity, activity.RegisterOptions{Name: runCycleActivityName})
	if err := e.w.Start(); err != nil {
		return fmt.Errorf("temporalengine: start worker: %w", err)
	}
	e.started = true
	return nil
}

// Close stops the worker and, if this Engine created the client, closes it.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.w != nil {
		e.w.Stop()
	}
	if e.closeClient {
		e.client.Close()
	}
}

func (e *Engine) runCycleWorkflow(ctx workflow.Context, in CycleInput) (CycleResult, error) {
	ao := workflow.ActivityOptions{StartToCloseTimeout: 30 * time.Second}
	actx := workflow.WithActivityOptions(ctx, ao)
	var res CycleResult
	err := workflow.ExecuteActivity(actx, runCycleActivityName, in).Get(actx, &res)
	return res, err
}

func (e *Engine) runCycleActivity(ctx context.Context, in CycleInput) (CycleResult, error) {
	p, ok := e.Registry.Lookup(in.PlanID)
	if !ok {
		return CycleResult{}, fmt.Errorf("temporalengine: plan %q not registered", in.PlanID)
	}
	clock := func() time.Time { return time.Unix(in.Seconds, int64(in.Micros)*1000) }
	report := engine.RunOneCycle(p, in.External, clock, e.logger, ctx)
	return CycleResult{
		Seconds:      report.Seconds,
		Micros:       report.Micros,
		ErrorCount:   len(report.Errors),
		GarbagedIDs:  report.GarbagedIDs,
		FinalizedIDs: report.FinalizedIDs,
	}, nil
}

// RunCycle registers p under planID in e.Registry and executes exactly one
// cycle via a durable Temporal workflow run.
func (e *Engine) RunCycle(ctx context.Context, planID string, p *plan.Plan, external []plan.ExternalEvent) (engine.CycleReport, error) {
	e.Registry.Register(planID, p)
	now := time.Now()
	in := CycleInput{PlanID: planID, Seconds: now.Unix(), Micros: int32(now.Nanosecond() / 1000), External: external}

	run, err := e.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{TaskQueue: e.taskQueue}, runCycleWorkflowName, in)
	if err != nil {
		return engine.CycleReport{}, fmt.Errorf("temporalengine: start workflow: %w", err)
	}
	var res CycleResult
	if err := run.Get(ctx, &res); err != nil {
		return engine.CycleReport{}, fmt.Errorf("temporalengine: workflow run: %w", err)
	}
	return engine.CycleReport{
		Seconds:      res.Seconds,
		Micros:       res.Micros,
		GarbagedIDs:  res.GarbagedIDs,
		FinalizedIDs: res.FinalizedIDs,
	}, nil
}

// Run drives cycles at the given period until ctx is cancelled, draining
// queue and delegating each cycle to RunCycle under planID.
func (e *Engine) Run(ctx context.Context, planID string, p *plan.Plan, queue engine.ExternalQueue, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			external, err := queue.Drain(ctx)
			if err != nil {
				e.logger.Error(ctx, "external queue drain failed", "error", err)
				continue
			}
			if _, err := e.RunCycle(ctx, planID, p, external); err != nil {
				e.logger.Error(ctx, "cycle failed", "error", err)
			}
		}
	}
}
