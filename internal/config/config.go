package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM        LLMConfig        `toml:"llm"`
	Agent      AgentConfig      `toml:"agent"`
	Sandbox    SandboxConfig    `toml:"sandbox"`
	Checkpoint CheckpointConfig `toml:"checkpoint"`
	Tools      ToolsConfig      `toml:"tools"`
	MCP        MCPConfig        `toml:"mcp"`
	Observer   ObserverConfig   `toml:"observer"`
	Limits     LimitsConfig     `toml:"limits"`
}

type LLMConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

type AgentConfig struct {
	ToolRounds     int           `toml:"tool_rounds"`
	SandboxTimeout time.Duration `toml:"sandbox_timeout"`
	Prompt         string        `toml:"prompt"`
}

type SandboxConfig struct {
	Strategy      string   `toml:"strategy"` // "inprocess" or "subprocess"
	Interpreter   string   `toml:"interpreter"`
	SourceRoot    string   `toml:"source_root"`
	SkillsDir     string   `toml:"skills_dir"`
	AllowedSkills []string `toml:"allowed_skills"`
	EnvSecrets    []string `toml:"env_secrets"`
	MaxOutput     int      `toml:"max_output"`
}

type CheckpointConfig struct {
	Backend string `toml:"backend"` // "file", "sqlite", "postgres", "redis" or "" for none
	Path    string `toml:"path"`
	DSN     string `toml:"dsn"`
	Session string `toml:"session"`
}

type ToolsConfig struct {
	Enabled      []string `toml:"enabled"`
	TavilyAPIKey string   `toml:"tavily_api_key"`
}

type MCPConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

type ObserverConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
}

type LimitsConfig struct {
	RPM           int `toml:"rpm"`
	RetryAttempts int `toml:"retry_attempts"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM:   LLMConfig{BaseURL: "https://api.openai.com/v1", Model: "gpt-4.1-mini"},
		Agent: AgentConfig{ToolRounds: 3, SandboxTimeout: 10 * time.Second},
		Sandbox: SandboxConfig{
			Strategy:    "inprocess",
			Interpreter: "bun",
			SourceRoot:  ".",
			SkillsDir:   "skills",
			MaxOutput:   50 * 1024,
		},
		Checkpoint: CheckpointConfig{Backend: "file", Path: ".codeact/checkpoints", Session: "default"},
		Tools:      ToolsConfig{Enabled: []string{"get_cryptoInfo", "search_news", "fetch_page"}},
		Observer:   ObserverConfig{ServiceName: "codeact"},
		Limits:     LimitsConfig{RetryAttempts: 3},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins). A missing
// file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = "codeact.toml"
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("config: %w", err)
	default:
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	str(&cfg.LLM.APIKey, "CODEACT_LLM_API_KEY", "OPENAI_API_KEY")
	str(&cfg.LLM.BaseURL, "CODEACT_LLM_BASE_URL")
	str(&cfg.LLM.Model, "CODEACT_LLM_MODEL")
	str(&cfg.Sandbox.Strategy, "CODEACT_SANDBOX_STRATEGY")
	str(&cfg.Sandbox.Interpreter, "CODEACT_SANDBOX_INTERPRETER")
	str(&cfg.Checkpoint.Backend, "CODEACT_CHECKPOINT_BACKEND")
	str(&cfg.Checkpoint.DSN, "CODEACT_CHECKPOINT_DSN")
	str(&cfg.Checkpoint.Session, "CODEACT_CHECKPOINT_SESSION")
	str(&cfg.Tools.TavilyAPIKey, "CODEACT_TAVILY_API_KEY", "TAVILY_API_KEY")

	if v := os.Getenv("CODEACT_AGENT_TOOL_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.ToolRounds = n
		}
	}
	if v := os.Getenv("CODEACT_AGENT_SANDBOX_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Agent.SandboxTimeout = d
		}
	}
	if v := os.Getenv("CODEACT_SANDBOX_ALLOWED_SKILLS"); v != "" {
		cfg.Sandbox.AllowedSkills = splitList(v)
	}
	if v := os.Getenv("CODEACT_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports settings no component can run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Sandbox.Strategy {
	case "inprocess", "subprocess":
	default:
		errs = append(errs, fmt.Errorf("config: sandbox.strategy %q: want inprocess or subprocess", c.Sandbox.Strategy))
	}
	switch c.Checkpoint.Backend {
	case "", "file", "sqlite":
	case "postgres", "redis":
		if c.Checkpoint.DSN == "" {
			errs = append(errs, fmt.Errorf("config: checkpoint.dsn is required for %s", c.Checkpoint.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown checkpoint.backend %q", c.Checkpoint.Backend))
	}
	if c.Agent.ToolRounds < 1 {
		errs = append(errs, fmt.Errorf("config: agent.tool_rounds must be at least 1, got %d", c.Agent.ToolRounds))
	}
	if c.Agent.SandboxTimeout <= 0 {
		errs = append(errs, errors.New("config: agent.sandbox_timeout must be positive"))
	}
	return errors.Join(errs...)
}
