package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"dossier/internal/events"
	"dossier/internal/evidence"
	"dossier/internal/logging"
	"dossier/internal/tools"
	"dossier/internal/types"
	"dossier/internal/usage"
)

// Stage names used in events and errors.
const (
	StageOrchestrator = "orchestrator"
	StagePivot        = "pivot"
	StageResolver     = "resolver"
	StageWriter       = "writer"
	StageJudge        = "judge"
)

// Controller drives one run through the state machine. It is the only
// writer of the run's status, evidence and event log.
type Controller struct {
	id      string
	query   string
	stages  Stages
	invoker *tools.Invoker
	limits  Limits
	log     *events.Log
	logger  *logging.Logger

	// Owned by the goroutine running Execute.
	store *evidence.Store

	mu         sync.RWMutex
	status     types.Status
	stage      string
	step       int
	createdAt  time.Time
	finishedAt time.Time
	calls      []evidence.ToolCall
	items      []evidence.Evidence
	profiles   []types.EntityProfile
	drafts     []types.Draft
	verdicts   []types.Verdict
	report     *types.Report
	err        error

	finished chan struct{}
}

// NewController creates a controller for a pending run.
func NewController(id, query string, stages Stages, invoker *tools.Invoker, limits Limits, log *events.Log) *Controller {
	return &Controller{
		id:        id,
		query:     query,
		stages:    stages,
		invoker:   invoker,
		limits:    limits.normalized(),
		log:       log,
		logger:    logging.Get(logging.CategoryPipeline).With("run_id", id),
		store:     evidence.NewStore(),
		status:    types.StatusPending,
		createdAt: time.Now(),
		finished:  make(chan struct{}),
	}
}

// ID returns the run identifier.
func (c *Controller) ID() string {
	return c.id
}

// Finished is closed once Execute has emitted done.
func (c *Controller) Finished() <-chan struct{} {
	return c.finished
}

// Execute runs the investigation to a terminal status. The returned error
// is non-nil only when the run failed; a report that did not pass the
// judge is returned with a nil error.
func (c *Controller) Execute(ctx context.Context) (*types.Report, error) {
	defer close(c.finished)

	ctx, cancel := context.WithTimeout(usage.WithRun(ctx, c.id), c.limits.RunTimeout)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryPipeline, "run "+c.id)
	defer timer.Stop()

	c.info("", "investigation started: %q", c.query)

	report, err := c.execute(ctx)
	if err != nil {
		c.fail(err)
		return nil, err
	}

	c.mu.Lock()
	c.report = report
	c.mu.Unlock()

	c.emit(events.KindReport, events.ReportPayload{Report: *report})
	c.done(types.StatusCompleted)
	return report, nil
}

func (c *Controller) execute(ctx context.Context) (*types.Report, error) {
	if err := c.advance(SignalStart); err != nil {
		return nil, err
	}
	if err := c.gather(ctx); err != nil {
		return nil, err
	}
	if err := c.advance(SignalGathered); err != nil {
		return nil, err
	}
	profiles, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.advance(SignalResolved); err != nil {
		return nil, err
	}
	return c.draftAndJudge(ctx, profiles)
}

// =============================================================================
// GATHERING
// =============================================================================

func (c *Controller) gather(ctx context.Context) error {
	deadline := time.Now().Add(c.limits.GatherBudget)
	var review *types.Review
	var followUps []string
	entities := c.analyzeQuery(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: StageOrchestrator, Err: fmt.Errorf("run deadline reached while gathering: %w", err)}
		}

		step := c.currentStep()
		if step >= c.limits.StepCeiling {
			c.info(StageOrchestrator, "step ceiling of %d reached; gathering stops", c.limits.StepCeiling)
			return nil
		}
		if time.Now().After(deadline) {
			c.info(StageOrchestrator, "gathering budget of %v spent; gathering stops", c.limits.GatherBudget)
			return nil
		}
		if n := c.limits.SufficientEvidence; n > 0 && len(c.store.WithData()) >= n {
			c.info(StageOrchestrator, "%d evidence items with data collected; gathering stops", len(c.store.WithData()))
			return nil
		}

		c.setStage(StageOrchestrator)
		in := DecideInput{
			Query:       c.query,
			Entities:    entities,
			Evidence:    c.store.All(),
			Calls:       c.store.Calls(),
			Step:        step,
			StepCeiling: c.limits.StepCeiling,
			Catalog:     c.invoker.Registry().Catalog(),
			Review:      review,
			FollowUps:   followUps,
		}
		action, err := runStage(ctx, StageOrchestrator, func(ctx context.Context) (types.Action, error) {
			return c.stages.Orchestrator.Decide(ctx, in)
		})
		if err != nil {
			return err
		}
		step = c.nextStep()

		if action.IsStop() {
			c.info(StageOrchestrator, "orchestrator stopped gathering: %s", action.Reason)
			return nil
		}

		inv, err := c.invoker.Invoke(ctx, c.store, StageOrchestrator, action.Tool, action.Args)
		if errors.Is(err, tools.ErrUnknownTool) {
			c.warn(StageOrchestrator, "orchestrator chose unknown tool %q; treating as stop", action.Tool)
			return nil
		}
		if err != nil {
			return &StageError{Stage: StageOrchestrator, Err: err}
		}
		c.recordCall(inv)

		if step%c.limits.PivotInterval != 0 || step >= c.limits.StepCeiling {
			continue
		}

		c.setStage(StagePivot)
		rin := ReviewInput{
			Query:    c.query,
			Entities: entities,
			Evidence: c.store.All(),
			Calls:    c.store.Calls(),
			Previous: review,
		}
		rv, err := runStage(ctx, StagePivot, func(ctx context.Context) (types.Review, error) {
			return c.stages.Pivot.Review(ctx, rin)
		})
		if err != nil {
			c.warn(StagePivot, "pivot review skipped: %v", err)
			continue
		}

		review = &rv
		followUps = rv.RefinedQueries
		if len(followUps) > c.limits.MaxFollowUps {
			followUps = followUps[:c.limits.MaxFollowUps]
		}
		if rv.NoGaps {
			c.info(StagePivot, "pivot found no gaps")
			if c.limits.StopOnNoGaps {
				return nil
			}
			continue
		}
		c.info(StagePivot, "pivot found %d gap(s); follow-ups: %s", len(rv.Gaps), strings.Join(followUps, " | "))
	}
}

// analyzeQuery names the subjects of the query when the orchestrator can.
// Any failure falls back to the raw query as the only entity.
func (c *Controller) analyzeQuery(ctx context.Context) []string {
	fallback := []string{c.query}
	an, ok := c.stages.Orchestrator.(EntityAnalyzer)
	if !ok {
		return fallback
	}

	c.setStage(StageOrchestrator)
	entities, err := runStage(ctx, StageOrchestrator, func(ctx context.Context) ([]string, error) {
		return an.AnalyzeQuery(ctx, c.query)
	})
	if err != nil {
		c.warn(StageOrchestrator, "query analysis failed, using the query as the entity: %v", err)
		return fallback
	}
	if len(entities) == 0 {
		return fallback
	}
	c.info(StageOrchestrator, "identified entities: %s", strings.Join(entities, " | "))
	return entities
}

func (c *Controller) recordCall(inv *tools.Invocation) {
	c.mu.Lock()
	c.calls = append(c.calls, inv.Call)
	c.items = append(c.items, inv.Evidence...)
	c.mu.Unlock()

	noData := len(inv.Evidence) == 1 && inv.Evidence[0].NoData
	payload := events.ToolCallPayload{
		Seq:        inv.Call.Seq,
		Tool:       inv.Call.Tool,
		Args:       inv.Call.Args,
		Items:      len(inv.Evidence),
		NoData:     noData,
		DurationMs: inv.Duration.Milliseconds(),
	}
	if noData {
		payload.Items = 0
		payload.Note = inv.Evidence[0].Note
	}
	c.emit(events.KindToolCall, payload)

	if inv.Failed() {
		c.warn(StageOrchestrator, "tool %s failed, recorded as no data: %v", inv.Call.Tool, inv.Err)
	}
}

// =============================================================================
// RESOLUTION
// =============================================================================

func (c *Controller) resolve(ctx context.Context) ([]types.EntityProfile, error) {
	c.setStage(StageResolver)
	in := ResolveInput{Query: c.query, Evidence: c.store.All()}
	raw, err := runStage(ctx, StageResolver, func(ctx context.Context) ([]types.EntityProfile, error) {
		return c.stages.Resolver.Resolve(ctx, in)
	})
	if err != nil {
		return nil, err
	}

	profiles, faults := SanitizeProfiles(raw, c.store)
	for _, f := range faults {
		c.warn(StageResolver, "%s", f)
	}

	c.mu.Lock()
	c.profiles = profiles
	c.mu.Unlock()

	if len(profiles) == 0 {
		c.info(StageResolver, "no verifiable subject data")
		return nil, nil
	}
	c.info(StageResolver, "resolved %d profile(s)", len(profiles))
	for _, p := range profiles {
		if p.Ambiguous() {
			c.warn(StageResolver, "profile %s (%s) conflicts with other evidence; identities may be conflated", p.ID, p.Name)
		}
	}
	return profiles, nil
}

// =============================================================================
// DRAFTING AND JUDGING
// =============================================================================

func (c *Controller) draftAndJudge(ctx context.Context, profiles []types.EntityProfile) (*types.Report, error) {
	noData := len(profiles) == 0
	all := c.store.All()
	var reasons []string
	rejections := 0

	for gen := 0; ; gen++ {
		c.setStage(StageWriter)
		din := DraftInput{
			Query:           c.query,
			Profiles:        profiles,
			Evidence:        all,
			NoData:          noData,
			Generation:      gen,
			PriorRejections: reasons,
		}
		d, err := runStage(ctx, StageWriter, func(ctx context.Context) (types.Draft, error) {
			return c.stages.Writer.Draft(ctx, din)
		})
		if err != nil {
			return nil, err
		}
		d.Generation = gen
		d.NoData = noData

		c.mu.Lock()
		c.drafts = append(c.drafts, d)
		c.mu.Unlock()
		if err := c.advance(SignalDrafted); err != nil {
			return nil, err
		}

		c.setStage(StageJudge)
		v := CheckDisclosure(d, profiles)
		if v.Approved {
			vin := VerifyInput{Query: c.query, Draft: d, Profiles: profiles, Evidence: all}
			v, err = runStage(ctx, StageJudge, func(ctx context.Context) (types.Verdict, error) {
				return c.stages.Judge.Verify(ctx, vin)
			})
			if err != nil {
				return nil, err
			}
		}

		c.mu.Lock()
		c.verdicts = append(c.verdicts, v)
		c.mu.Unlock()

		if !v.Approved {
			rejections++
		}
		sig := JudgeSignal(v, rejections, c.limits.RedraftCeiling)
		if err := c.advance(sig); err != nil {
			return nil, err
		}

		switch sig {
		case SignalApproved:
			c.info(StageJudge, "draft %d approved", gen)
			r := types.ApprovedReport(d, rejections)
			return &r, nil
		case SignalExhausted:
			c.warn(StageJudge, "redraft ceiling of %d reached; releasing draft %d marked as failing the quality check", c.limits.RedraftCeiling, gen)
			r := types.FailedReport(d, rejections, v)
			return &r, nil
		}

		reasons = rejectionReasons(v)
		c.warn(StageJudge, "draft %d rejected: %s", gen, strings.Join(reasons, "; "))
	}
}

func rejectionReasons(v types.Verdict) []string {
	if len(v.UnsupportedClaims) > 0 {
		return append([]string(nil), v.UnsupportedClaims...)
	}
	if v.Reasoning != "" {
		return []string{v.Reasoning}
	}
	return []string{"judge rejected the draft without citing a claim"}
}

// =============================================================================
// STATE AND EVENTS
// =============================================================================

// runStage calls a stage and converts errors and panics into StageErrors.
func runStage[T any](ctx context.Context, stage string, fn func(context.Context) (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, err = fn(ctx)
	if err != nil {
		return out, &StageError{Stage: stage, Err: err}
	}
	return out, nil
}

func (c *Controller) advance(sig Signal) error {
	c.mu.Lock()
	from := c.status
	to, err := Transition(from, sig)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.status = to
	if to.Terminal() {
		c.finishedAt = time.Now()
		c.stage = ""
	}
	c.mu.Unlock()

	c.logger.Debug("%s -> %s (%s)", from, to, sig)
	c.emit(events.KindStageChange, events.StageChangePayload{From: from, To: to})
	return nil
}

func (c *Controller) fail(err error) {
	stage := "controller"
	var se *StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}

	c.mu.Lock()
	c.err = err
	c.mu.Unlock()

	c.logger.Error("run failed: %v", err)
	c.emit(events.KindError, events.ErrorPayload{Stage: stage, Message: err.Error()})
	if aerr := c.advance(SignalCrash); aerr != nil {
		c.logger.Error("crash transition: %v", aerr)
	}
	c.done(types.StatusFailed)
}

func (c *Controller) done(status types.Status) {
	if _, err := c.log.Done(status); err != nil {
		c.logger.Warn("done event not published: %v", err)
	}
	c.logger.Info("run finished: %s", status)
}

func (c *Controller) emit(kind events.Kind, payload any) {
	if _, err := c.log.Publish(kind, payload); err != nil {
		c.logger.Warn("dropped %s event: %v", kind, err)
	}
}

func (c *Controller) info(stage, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Info("%s", msg)
	c.emit(events.KindLog, events.LogPayload{Level: events.LevelInfo, Stage: stage, Message: msg})
}

func (c *Controller) warn(stage, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Warn("%s", msg)
	c.emit(events.KindLog, events.LogPayload{Level: events.LevelWarn, Stage: stage, Message: msg})
}

func (c *Controller) setStage(stage string) {
	c.mu.Lock()
	c.stage = stage
	c.mu.Unlock()
}

func (c *Controller) currentStep() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.step
}

func (c *Controller) nextStep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step++
	return c.step
}

// Snapshot returns a copy of the run's current state.
func (c *Controller) Snapshot() Run {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r := Run{
		ID:         c.id,
		Query:      c.query,
		Status:     c.status,
		Stage:      c.stage,
		Step:       c.step,
		CreatedAt:  c.createdAt,
		FinishedAt: c.finishedAt,
		Calls:      append([]evidence.ToolCall(nil), c.calls...),
		Evidence:   append([]evidence.Evidence(nil), c.items...),
		Profiles:   append([]types.EntityProfile(nil), c.profiles...),
		Drafts:     append([]types.Draft(nil), c.drafts...),
		Verdicts:   append([]types.Verdict(nil), c.verdicts...),
	}
	if c.report != nil {
		rep := *c.report
		r.Report = &rep
	}
	if c.err != nil {
		r.Error = c.err.Error()
	}
	return r
}
