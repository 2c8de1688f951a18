package main

import (
	"fmt"
	"os"
	"time"

	"github.com/user/healthchat/internal/config"
	"github.com/user/healthchat/internal/engine"
	"github.com/user/healthchat/internal/gateway"
	"github.com/user/healthchat/internal/planner"
	"github.com/user/healthchat/internal/resolver"
	"github.com/user/healthchat/internal/state"
	"github.com/user/healthchat/internal/store"
	"github.com/user/healthchat/internal/syncer"
	"github.com/user/healthchat/internal/terms"
	"github.com/user/healthchat/internal/types"
	"github.com/user/healthchat/pkg/mcp"
)

// app holds the components shared by the commands.
type app struct {
	cfg       *config.Config
	records   types.RecordStore
	client    *mcp.Client
	history   *state.HistoryLog
	summaries *state.SummaryStore
	engine    *engine.Engine
	syncer    *syncer.Orchestrator
}

func newApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	translator := terms.New()
	if cfg.GlossaryPath != "" {
		if err := translator.LoadOverrides(cfg.GlossaryPath); err != nil {
			return nil, fmt.Errorf("load glossary: %w", err)
		}
	}

	records, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	warmup := mcp.WarmupNever
	if cfg.MCP.WarmupBeforeCall {
		warmup = mcp.WarmupBeforeCall
	}
	client := mcp.New(cfg.MCP.URL,
		mcp.WithCallTimeout(time.Duration(cfg.MCP.CallTimeoutSeconds)*time.Second),
		mcp.WithWarmup(warmup),
	)

	history := state.NewHistoryLog(cfg.DataDir)
	summaries := state.NewSummaryStore(cfg.DataDir)

	eng := engine.New(planner.New(translator), resolver.New(records), types.ParseSubject(cfg.Subject),
		engine.WithRemote(engine.NewRemoteResolver(client, cfg.MCP.Tool)),
		engine.WithHistoryLog(history),
		engine.WithHistorySize(cfg.HistorySize),
	)

	retry := gateway.NoRetry()
	if cfg.Sync.MaxAttempts > 1 {
		retry = gateway.DefaultRetryPolicy()
		retry.MaxAttempts = cfg.Sync.MaxAttempts
	}
	orch := syncer.New(client, cfg.MCP.Tool, records,
		syncer.WithRetry(retry),
		syncer.WithSummaryStore(summaries),
	)

	return &app{
		cfg:       cfg,
		records:   records,
		client:    client,
		history:   history,
		summaries: summaries,
		engine:    eng,
		syncer:    orch,
	}, nil
}

func (a *app) Close() error {
	return a.records.Close()
}

// subjectArg picks the subject from args, falling back to the configured one.
func (a *app) subjectArg(args []string) (types.SubjectID, error) {
	if len(args) > 0 {
		if s := types.ParseSubject(args[0]); s != "" {
			return s, nil
		}
	}
	if s := types.ParseSubject(a.cfg.Subject); s != "" {
		return s, nil
	}
	return "", fmt.Errorf("no subject given and none configured (set one with: healthchat config set subject <id>)")
}
