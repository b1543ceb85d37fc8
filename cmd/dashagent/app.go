package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"dashagent/internal/backup"
	"dashagent/internal/config"
	"dashagent/internal/dataset"
	"dashagent/internal/executor"
	"dashagent/internal/files"
	"dashagent/internal/journal"
	"dashagent/internal/layout"
	"dashagent/internal/logging"
	"dashagent/internal/planner"

	"go.uber.org/zap"
)

// app is one opened workspace: configuration plus every component a command
// may need. It implements ui.Backend.
type app struct {
	workspace  string
	cfg        *config.Config
	layoutPath string

	backups *backup.Manager
	editor  *files.Editor
	source  dataset.Source // nil without a configured dataset
	journal *journal.Store // nil when disabled
	exec    *executor.Executor

	planner planner.Planner // created on first use
	log     *zap.Logger
}

type appOptions struct {
	Workspace  string
	ConfigPath string
	Policy     string // overrides execution.policy when set
	Logger     *zap.Logger
}

func openApp(opts appOptions) (*app, error) {
	ws := opts.Workspace
	if ws == "" {
		ws = "."
	}
	ws, err := filepath.Abs(ws)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}

	cfgPath := opts.ConfigPath
	if cfgPath == "" {
		cfgPath = config.DefaultPath(ws)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if opts.Policy != "" {
		cfg.Execution.Policy = strings.ToLower(strings.TrimSpace(opts.Policy))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	if err := logging.Initialize(ws, cfg.Logging.Options()); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	a := &app{
		workspace:  ws,
		cfg:        cfg,
		layoutPath: config.Resolve(ws, cfg.Project.LayoutFile),
		log:        log,
	}

	a.backups = backup.NewManager(backup.Options{
		Dir:         config.Resolve(ws, cfg.Backup.Dir),
		LayoutPath:  a.layoutPath,
		ProjectRoot: ws,
		Compress:    cfg.Backup.Compress,
	})

	guard, err := files.NewGuard(ws, cfg.Files.AllowedExtensions)
	if err != nil {
		return nil, err
	}
	a.editor = files.NewEditor(guard)
	a.editor.SetAuditCallback(func(ev files.AuditEvent) {
		log.Debug("file operation",
			zap.String("op", string(ev.Op)),
			zap.String("path", ev.Path),
			zap.Bool("success", ev.Success),
			zap.String("error", ev.Error))
	})

	if cfg.Dataset.Path != "" {
		src, err := dataset.Open(config.Resolve(ws, cfg.Dataset.Path), cfg.Dataset.Table)
		if err != nil {
			return nil, fmt.Errorf("open dataset: %w", err)
		}
		a.source = src
	}

	if cfg.Journal.Enabled {
		store, err := journal.Open(config.Resolve(ws, cfg.Journal.Path))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.journal = store
	}

	policy, err := executor.ParsePolicy(cfg.Execution.Policy)
	if err != nil {
		a.Close()
		return nil, err
	}

	execOpts := executor.Options{
		LayoutPath: a.layoutPath,
		Backups:    a.backups,
		Editor:     a.editor,
		Dataset:    a.source,
		Policy:     policy,
		Inspect: dataset.Options{
			RowLimit:   cfg.Dataset.RowLimit,
			SampleMode: dataset.SampleMode(cfg.Dataset.SampleMode),
			Top:        cfg.Dataset.Top,
		},
	}
	// A nil *journal.Store must not reach the interface field.
	if a.journal != nil {
		execOpts.Journal = a.journal
	}
	a.exec = executor.New(execOpts)

	log.Debug("workspace opened",
		zap.String("workspace", ws),
		zap.String("layout", a.layoutPath),
		zap.String("policy", string(policy)),
		zap.Bool("dataset", a.source != nil),
		zap.Bool("journal", a.journal != nil))
	return a, nil
}

// Close releases the dataset and journal handles.
func (a *app) Close() {
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			a.log.Warn("close dataset", zap.Error(err))
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Warn("close journal", zap.Error(err))
		}
	}
	logging.CloseAll()
}

// Execute runs JSON command input.
func (a *app) Execute(ctx context.Context, input string) (*executor.BatchResult, error) {
	res, err := a.exec.RunInput(ctx, []byte(input))
	if err != nil {
		a.log.Warn("batch rejected", zap.Error(err))
		return nil, err
	}
	a.log.Info("batch finished",
		zap.String("batch", res.BatchID),
		zap.Int("commands", len(res.Results)),
		zap.Int("failed", res.Failed()),
		zap.Bool("halted", res.Halted))
	return res, nil
}

// Ask plans commands for prose and runs them.
func (a *app) Ask(ctx context.Context, prose string) (*executor.BatchResult, string, error) {
	p, err := a.plannerFor(ctx)
	if err != nil {
		return nil, "", err
	}
	raws, reply, err := planner.Commands(ctx, p, prose, a.plannerContext(ctx))
	if err != nil {
		return nil, reply, err
	}
	res, err := a.exec.RunRaw(ctx, raws, nil)
	return res, reply, err
}

func (a *app) plannerFor(ctx context.Context) (planner.Planner, error) {
	if a.planner != nil {
		return a.planner, nil
	}
	g, err := planner.NewGemini(ctx, planner.GeminiConfig{
		APIKey:  a.cfg.LLM.APIKey,
		Model:   a.cfg.LLM.Model,
		Timeout: a.cfg.GetLLMTimeout(),
	})
	if err != nil {
		return nil, err
	}
	a.log.Debug("planner ready", zap.String("model", g.Model()))
	a.planner = g
	return g, nil
}

// plannerContext gathers what the model may reference. Missing pieces are
// left empty rather than failing the request.
func (a *app) plannerContext(ctx context.Context) planner.Context {
	var pc planner.Context
	if tabs, err := a.Tabs(); err == nil {
		pc.Tabs = tabs
	} else {
		a.log.Debug("planner context: no tabs", zap.Error(err))
	}
	if a.source != nil {
		if cols, err := a.source.Columns(ctx); err == nil {
			pc.Columns = cols
		} else {
			a.log.Debug("planner context: no columns", zap.Error(err))
		}
	}
	return pc
}

// Tabs lists the live layout's tab names.
func (a *app) Tabs() ([]string, error) {
	doc, err := layout.Load(a.layoutPath)
	if err != nil {
		return nil, err
	}
	return doc.Names(), nil
}

// SetPolicy changes the failure policy for later batches.
func (a *app) SetPolicy(name string) error {
	p, err := executor.ParsePolicy(name)
	if err != nil {
		return err
	}
	a.exec.SetPolicy(p)
	a.log.Info("policy changed", zap.String("policy", string(p)))
	return nil
}

// requireDataset returns the source or a descriptive error.
func (a *app) requireDataset() (dataset.Source, error) {
	if a.source == nil {
		return nil, errors.New("no dataset configured (set dataset.path in .dashagent/config.yaml or DASHAGENT_DATASET)")
	}
	return a.source, nil
}
