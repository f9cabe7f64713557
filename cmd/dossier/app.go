package main

import (
	"context"
	"fmt"

	"dossier/internal/config"
	"dossier/internal/events"
	"dossier/internal/logging"
	"dossier/internal/perception"
	"dossier/internal/pipeline"
	"dossier/internal/server"
	"dossier/internal/stages"
	"dossier/internal/store"
	"dossier/internal/tools"
	"dossier/internal/tools/research"
	"dossier/internal/usage"
)

// newRegistry registers the retrieval tools described by cfg.
func newRegistry(cfg *config.Config) (*tools.Registry, error) {
	reg := tools.NewRegistry()
	ws := cfg.Tools.WebSearch
	err := research.RegisterAll(reg, research.Options{
		WebSearchEnabled: ws.Enabled,
		Endpoint:         ws.Endpoint,
		MaxResults:       ws.MaxResults,
		CacheSize:        ws.CacheSize,
		CacheTTL:         cfg.GetCacheTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	return reg, nil
}

// newStages builds the language-model-backed stages.
func newStages(ctx context.Context, cfg *config.Config, tracker *usage.Tracker) (pipeline.Stages, error) {
	names := []string{
		pipeline.StageOrchestrator,
		pipeline.StagePivot,
		pipeline.StageResolver,
		pipeline.StageWriter,
		pipeline.StageJudge,
	}
	clients, err := perception.StageClients(ctx, cfg, tracker, names...)
	if err != nil {
		return pipeline.Stages{}, err
	}

	opts := stages.DefaultOptions()
	opts.ParseRetries = cfg.Pipeline.StageRetries
	opts.MaxFollowUps = cfg.Pipeline.MaxFollowUps

	return stages.New(stages.Clients{
		Orchestrator: clients[pipeline.StageOrchestrator],
		Pivot:        clients[pipeline.StagePivot],
		Resolver:     clients[pipeline.StageResolver],
		Writer:       clients[pipeline.StageWriter],
		Judge:        clients[pipeline.StageJudge],
	}, opts), nil
}

// openArchive opens the run archive when it is enabled.
func openArchive(cfg *config.Config) (*store.Archive, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	return store.Open(cfg.Archive.Path)
}

// app holds the wired service and what it was built from.
type app struct {
	svc     *pipeline.Service
	archive *store.Archive // nil when archiving is disabled
	usage   *usage.Tracker
}

// server builds the HTTP adapter, leaving the archive interface nil when
// archiving is disabled.
func (a *app) server(cfg server.Config) *server.Server {
	cfg.Usage = a.usage
	if a.archive != nil {
		return server.New(cfg, a.svc, a.archive)
	}
	return server.New(cfg, a.svc, nil)
}

// Close releases the archive, if any.
func (a *app) Close() {
	if a.archive == nil {
		return
	}
	if err := a.archive.Close(); err != nil {
		logging.Get(logging.CategoryStore).Error("close archive: %v", err)
	}
}

// logUsage writes the token totals to the API log.
func (a *app) logUsage() {
	stats := a.usage.Stats()
	for stage, c := range stats.ByStage {
		logging.API("tokens stage=%s calls=%d input=%d output=%d", stage, c.Calls, c.Input, c.Output)
	}
	logging.API("tokens total calls=%d input=%d output=%d", stats.Total.Calls, stats.Total.Input, stats.Total.Output)
}

// newApp validates cfg and wires a pipeline service.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	reg, err := newRegistry(cfg)
	if err != nil {
		return nil, err
	}
	tracker := usage.NewTracker()
	st, err := newStages(ctx, cfg, tracker)
	if err != nil {
		return nil, err
	}
	archive, err := openArchive(cfg)
	if err != nil {
		return nil, err
	}

	scfg := pipeline.ServiceConfig{
		Stages:        st,
		Invoker:       tools.NewInvoker(reg, cfg.Pipeline.GetToolTimeout()),
		Limits:        pipeline.LimitsFromConfig(cfg.Pipeline),
		Bus:           events.NewBus(cfg.Events.GetRetention(), cfg.Events.GetAckGrace()),
		MaxConcurrent: cfg.Server.MaxConcurrentRuns,
		Usage:         tracker,
	}
	if archive != nil {
		scfg.Archive = archive
	}

	logging.Boot("service ready: provider=%s tools=%v archive=%t", cfg.LLM.Provider, reg.Names(), archive != nil)
	return &app{svc: pipeline.NewService(scfg), archive: archive, usage: tracker}, nil
}
