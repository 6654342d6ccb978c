package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	codeact "github.com/nevindra/codeact"
	"github.com/nevindra/codeact/code"
	"github.com/nevindra/codeact/internal/config"
	"github.com/nevindra/codeact/mcp"
	"github.com/nevindra/codeact/observer"
	"github.com/nevindra/codeact/provider/responses"
	"github.com/nevindra/codeact/skills"
	"github.com/nevindra/codeact/store/file"
	"github.com/nevindra/codeact/store/postgres"
	redisstore "github.com/nevindra/codeact/store/redis"
	"github.com/nevindra/codeact/store/sqlite"
	"github.com/nevindra/codeact/tools/crypto"
	"github.com/nevindra/codeact/tools/news"
	"github.com/nevindra/codeact/tools/web"
)

const version = "0.1.0"

// deps is everything a run needs, plus the resources to release after it.
type deps struct {
	agent       *codeact.Agent
	checkpoints codeact.Checkpointer
	closers     []func() error
}

func (d *deps) Close() error {
	var errs []error
	for _, c := range slices.Backward(d.closers) {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// wire builds the agent and checkpoint store from cfg. inst may be nil.
func wire(ctx context.Context, cfg config.Config, logger *slog.Logger, inst *observer.Instruments) (*deps, error) {
	d := &deps{}
	fail := func(err error) (*deps, error) {
		d.Close()
		return nil, err
	}

	cp, closeCP, err := openCheckpointer(ctx, cfg.Checkpoint, logger)
	if err != nil {
		return fail(err)
	}
	d.checkpoints = cp
	if closeCP != nil {
		d.closers = append(d.closers, closeCP)
	}

	// Subprocess snippets have no api object, so Defined actions are
	// reachable only through the in-process runner.
	inProcess := cfg.Sandbox.Strategy == "inprocess"
	if !inProcess && (len(cfg.Tools.Enabled) > 0 || cfg.MCP.Command != "") {
		logger.Warn("subprocess sandbox: built-in tools and mcp disabled",
			"tools", cfg.Tools.Enabled, "mcp", cfg.MCP.Command)
	}

	var actions []codeact.Action
	if inProcess {
		actions, err = builtinActions(cfg.Tools, logger)
		if err != nil {
			return fail(err)
		}
	}
	if inProcess && cfg.MCP.Command != "" {
		client, err := mcp.ConnectCommand(ctx, "codeact", version, cfg.MCP.Command, cfg.MCP.Args...)
		if err != nil {
			return fail(err)
		}
		d.closers = append(d.closers, client.Close)
		mcpActions, err := client.Actions()
		if err != nil {
			return fail(err)
		}
		for _, a := range mcpActions {
			actions = append(actions, a)
		}
	}

	runner, skillsAction, err := newRunner(cfg.Sandbox, logger)
	if err != nil {
		return fail(err)
	}
	if skillsAction != nil {
		actions = append(actions, skillsAction)
	}
	registry, err := codeact.NewRegistry(actions...)
	if err != nil {
		return fail(err)
	}

	var provider codeact.Provider = responses.NewProvider(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL,
		responses.WithLogger(logger))
	if cfg.Limits.RetryAttempts > 0 {
		provider = codeact.WithRetry(provider,
			codeact.RetryMaxAttempts(cfg.Limits.RetryAttempts),
			codeact.RetryLogger(logger))
	}
	if cfg.Limits.RPM > 0 {
		provider = codeact.WithRateLimit(provider, cfg.Limits.RPM, 1)
	}

	opts := []codeact.AgentOption{
		codeact.WithRegistry(registry),
		codeact.WithToolRounds(cfg.Agent.ToolRounds),
		codeact.WithSandboxTimeout(cfg.Agent.SandboxTimeout),
		codeact.WithLogger(logger),
	}
	if inst != nil {
		provider = observer.WrapProvider(provider, cfg.LLM.Model, inst)
		runner = observer.WrapRunner(runner, inst)
		opts = append(opts, codeact.WithTracer(observer.NewTracer()))
	}
	d.agent = codeact.NewAgent(provider, runner, opts...)
	return d, nil
}

// builtinActions returns the enabled built-in Defined actions.
func builtinActions(cfg config.ToolsConfig, logger *slog.Logger) ([]codeact.Action, error) {
	var out []codeact.Action
	for _, name := range cfg.Enabled {
		var (
			a   *codeact.DefinedAction
			err error
		)
		switch name {
		case crypto.ActionName:
			a, err = crypto.New(crypto.WithLogger(logger)).Action()
		case news.ActionName:
			a, err = news.New(cfg.TavilyAPIKey, news.WithLogger(logger)).Action()
		case web.ActionName:
			a, err = web.New().Action()
		default:
			return nil, fmt.Errorf("unknown tool %q in tools.enabled", name)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// newRunner builds the configured sandbox. The subprocess strategy also
// returns the skills action when skills are allowed.
func newRunner(cfg config.SandboxConfig, logger *slog.Logger) (codeact.CodeRunner, codeact.Action, error) {
	opts := []code.Option{code.WithLogger(logger)}
	if cfg.MaxOutput > 0 {
		opts = append(opts, code.WithMaxOutput(cfg.MaxOutput))
	}
	if cfg.Strategy == "inprocess" {
		return code.NewInProcessRunner(opts...), nil, nil
	}

	opts = append(opts,
		code.WithInterpreter(cfg.Interpreter),
		code.WithSourceRoot(cfg.SourceRoot),
		code.WithSkillsDir(cfg.SkillsDir),
		code.WithAllowedSkills(cfg.AllowedSkills...),
		code.WithEnvSecrets(cfg.EnvSecrets...),
	)
	r, err := code.NewSubprocessRunner(opts...)
	if err != nil {
		return nil, nil, err
	}
	if len(cfg.AllowedSkills) == 0 {
		return r, nil, nil
	}
	skillsDir := cfg.SkillsDir
	if !filepath.IsAbs(skillsDir) {
		skillsDir = filepath.Join(cfg.SourceRoot, skillsDir)
	}
	action, err := skills.NewAction(cfg.SourceRoot, skillsDir, cfg.AllowedSkills)
	if err != nil {
		return nil, nil, err
	}
	return r, action, nil
}

// openCheckpointer returns the configured store and its closer. An empty
// backend disables checkpoints.
func openCheckpointer(ctx context.Context, cfg config.CheckpointConfig, logger *slog.Logger) (codeact.Checkpointer, func() error, error) {
	switch cfg.Backend {
	case "":
		return nil, nil, nil
	case "file":
		return file.New(cfg.Path), nil, nil
	case "sqlite":
		s := sqlite.New(cfg.Path, sqlite.WithLogger(logger))
		if err := s.Init(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: connect: %w", err)
		}
		s := postgres.New(pool)
		if err := s.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, func() error { pool.Close(); return nil }, nil
	case "redis":
		opt, err := goredis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		client := goredis.NewClient(opt)
		return redisstore.New(client), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
}
