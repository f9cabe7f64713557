package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"dossier/internal/events"
	"dossier/internal/logging"
	"dossier/internal/tools"
	"dossier/internal/usage"
)

// Archive persists finished runs.
type Archive interface {
	SaveRun(ctx context.Context, run Run, log []events.Event) error
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Stages        Stages
	Invoker       *tools.Invoker
	Limits        Limits
	Bus           *events.Bus
	MaxConcurrent int
	// Archive is optional.
	Archive Archive
	// Usage, when set, loses a run's counters once the run is swept.
	Usage *usage.Tracker
}

// Service accepts queries and runs each as an independent investigation.
type Service struct {
	stages  Stages
	invoker *tools.Invoker
	limits  Limits
	bus     *events.Bus
	archive Archive
	usage   *usage.Tracker
	slots   *semaphore.Weighted

	// Runs outlive the request that submitted them.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	runs    map[string]*Controller
	closing bool
}

// NewService creates a service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		stages:  cfg.Stages,
		invoker: cfg.Invoker,
		limits:  cfg.Limits,
		bus:     cfg.Bus,
		archive: cfg.Archive,
		usage:   cfg.Usage,
		slots:   semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		baseCtx: ctx,
		cancel:  cancel,
		runs:    make(map[string]*Controller),
	}
}

// Catalog returns the tools runs may call.
func (s *Service) Catalog() []tools.Spec {
	return s.invoker.Registry().Catalog()
}

// Submit creates a run and starts it in the background. The returned ID is
// valid immediately; the run waits for a free slot before gathering.
func (s *Service) Submit(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return "", ErrShuttingDown
	}

	id := uuid.NewString()
	log, err := s.bus.Open(id)
	if err != nil {
		return "", err
	}
	ctrl := NewController(id, query, s.stages, s.invoker, s.limits, log)
	s.runs[id] = ctrl

	s.wg.Add(1)
	go s.execute(ctrl, log)

	logging.Pipeline("Submitted run %s: %q", id, query)
	return id, nil
}

func (s *Service) execute(ctrl *Controller, log *events.Log) {
	defer s.wg.Done()

	if err := s.slots.Acquire(s.baseCtx, 1); err != nil {
		// Shut down before the run got a slot; it still gets a terminal event.
		ctrl.fail(&StageError{Stage: "controller", Err: fmt.Errorf("not started: %w", err)})
		close(ctrl.finished)
		return
	}
	defer s.slots.Release(1)

	_, _ = ctrl.Execute(s.baseCtx)

	if s.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.archive.SaveRun(ctx, ctrl.Snapshot(), log.Events(0)); err != nil {
			logging.Get(logging.CategoryStore).Error("archive run %s: %v", ctrl.ID(), err)
		}
	}
}

func (s *Service) controller(id string) (*Controller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctrl, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return ctrl, nil
}

// Snapshot returns the current state of a run.
func (s *Service) Snapshot(id string) (Run, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return Run{}, err
	}
	return ctrl.Snapshot(), nil
}

// Subscribe streams a run's events with Seq > after. Cancelling ctx ends
// the subscription without affecting the run.
func (s *Service) Subscribe(ctx context.Context, id string, after int64) (<-chan events.Event, error) {
	log, ok := s.bus.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return log.Subscribe(ctx, after), nil
}

// Wait blocks until the run finishes or ctx ends.
func (s *Service) Wait(ctx context.Context, id string) (Run, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return Run{}, err
	}
	select {
	case <-ctrl.Finished():
		return ctrl.Snapshot(), nil
	case <-ctx.Done():
		return ctrl.Snapshot(), ctx.Err()
	}
}

// Sweep drops expired event logs and forgets the runs they belonged to.
func (s *Service) Sweep() int {
	removed := s.bus.Sweep()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ctrl := range s.runs {
		if _, ok := s.bus.Get(id); ok {
			continue
		}
		select {
		case <-ctrl.Finished():
			delete(s.runs, id)
			s.usage.Forget(id)
		default:
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Shutdown stops accepting runs and waits for in-flight runs. If ctx ends
// first, remaining runs are cancelled and fail.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-drained
		return ctx.Err()
	}
}
