// Binary skills-mcp is an MCP server over stdio. It exposes the built-in
// actions (get_cryptoInfo, search_news) and a search_skills tool, and serves
// every TypeScript skill source as a resource.
//
// Usage in .mcp.json:
//
//	{
//	  "mcpServers": {
//	    "codeact-skills": {
//	      "type": "stdio",
//	      "command": "go",
//	      "args": ["run", "github.com/nevindra/codeact/cmd/skills-mcp@latest", "-skills", "./skills"]
//	    }
//	  }
//	}
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	codeact "github.com/nevindra/codeact"
	"github.com/nevindra/codeact/internal/config"
	"github.com/nevindra/codeact/mcp"
	"github.com/nevindra/codeact/skills"
	"github.com/nevindra/codeact/tools/crypto"
	"github.com/nevindra/codeact/tools/news"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", os.Getenv("CODEACT_CONFIG"), "path to codeact.toml")
	skillsDir := flag.String("skills", "", "skills directory (default from config)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	// stdout carries the protocol; logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if *skillsDir == "" {
		*skillsDir = cfg.Sandbox.SkillsDir
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	actions, resources, err := build(*skillsDir, cfg.Tools.TavilyAPIKey, logger)
	if err != nil {
		logger.Error("build tools", "error", err)
		os.Exit(1)
	}
	logger.Info("skills-mcp serving", "tools", len(actions), "resources", len(resources))

	srv := mcp.NewServer("codeact-skills", version, actions, resources...)
	if err := mcp.Serve(ctx, srv); err != nil && ctx.Err() == nil {
		logger.Error("serve", "error", err)
		os.Exit(1)
	}
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"Keywords to look for in skill sources, e.g. crypto price"`
}

// build assembles the server's tools and resources. A missing skills
// directory leaves only the built-in actions.
func build(skillsDir, tavilyKey string, logger *slog.Logger) ([]*codeact.DefinedAction, []mcp.Resource, error) {
	cryptoAction, err := crypto.New(crypto.WithLogger(logger)).Action()
	if err != nil {
		return nil, nil, err
	}
	newsAction, err := news.New(tavilyKey, news.WithLogger(logger)).Action()
	if err != nil {
		return nil, nil, err
	}
	actions := []*codeact.DefinedAction{cryptoAction, newsAction}

	names, err := skills.List(skillsDir)
	if err != nil {
		logger.Warn("skills unavailable", "dir", skillsDir, "error", err)
		return actions, nil, nil
	}
	sources, err := skills.Sources(skillsDir, names)
	if err != nil {
		return nil, nil, err
	}

	idx := newSearchIndex(sources)
	search, err := codeact.Define("search_skills",
		"Search the TypeScript skill library by keyword. Returns matching files with their resource URIs.",
		func(_ context.Context, in searchArgs) (string, error) {
			return formatHits(in.Query, idx.search(in.Query)), nil
		})
	if err != nil {
		return nil, nil, err
	}
	actions = append(actions, search)

	resources := make([]mcp.Resource, 0, len(sources))
	for _, s := range sources {
		resources = append(resources, mcp.Resource{
			URI:         resourceURI(s),
			Name:        s.Path,
			Description: "Skill source: " + s.Skill,
			MIMEType:    "text/typescript",
			Read:        func(context.Context) (string, error) { return s.Content, nil },
		})
	}
	return actions, resources, nil
}

func resourceURI(s skills.Source) string { return "skill://" + s.Path }
