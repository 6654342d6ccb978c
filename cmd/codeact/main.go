// Binary codeact runs one agent turn from the command line.
//
//	codeact "What is 2 BTC worth in USD?"
//	echo "summarise https://go.dev/blog" | codeact -session blog
//
// The conversation is resumed from the configured checkpoint store and saved
// back after the run, without system messages. Events stream to stdout as
// text (or JSON lines with -json); -html prints the final answer as HTML.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	codeact "github.com/nevindra/codeact"
	"github.com/nevindra/codeact/internal/config"
	"github.com/nevindra/codeact/observer"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", os.Getenv("CODEACT_CONFIG"), "path to codeact.toml")
		session    = flag.String("session", "", "checkpoint session (default from config)")
		reset      = flag.Bool("reset", false, "clear the session before running")
		jsonOut    = flag.Bool("json", false, "print events as JSON lines")
		htmlOut    = flag.Bool("html", false, "print only the final answer, rendered as HTML")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		return 2
	}
	if *session != "" {
		cfg.Checkpoint.Session = *session
	}

	input, err := readInput(flag.Args(), os.Stdin)
	if err != nil {
		logger.Error("read input", "error", err)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		i, shutdown, err := observer.Init(ctx, cfg.Observer.ServiceName)
		if err != nil {
			logger.Error("init observer", "error", err)
			return 1
		}
		defer shutdown(context.WithoutCancel(ctx))
		inst = i
	}

	deps, err := wire(ctx, cfg, logger, inst)
	if err != nil {
		logger.Error("wire", "error", err)
		return 1
	}
	defer deps.Close()

	if *reset && deps.checkpoints != nil {
		if err := deps.checkpoints.Clear(ctx, cfg.Checkpoint.Session); err != nil {
			logger.Error("clear session", "error", err)
			return 1
		}
	}

	msgs := []codeact.Message{codeact.UserMessage(input)}
	if deps.checkpoints != nil {
		msgs, err = codeact.Resume(ctx, deps.checkpoints, cfg.Checkpoint.Session, msgs...)
		if err != nil {
			logger.Error("load checkpoint", "error", err)
			return 1
		}
	}
	if cfg.Agent.Prompt != "" {
		msgs = append([]codeact.Message{codeact.SystemMessage(cfg.Agent.Prompt)}, msgs...)
	}

	var p printer
	switch {
	case *jsonOut:
		p = &jsonPrinter{w: os.Stdout}
	case *htmlOut:
		p = &htmlPrinter{w: os.Stdout}
	default:
		p = &textPrinter{out: os.Stdout, diag: os.Stderr}
	}
	sink := p.Print
	if inst != nil {
		sink = observer.WrapSink(ctx, sink, inst)
	}

	conv, runErr := deps.agent.Run(ctx, msgs, sink)
	if err := p.Flush(); err != nil {
		logger.Error("render output", "error", err)
	}

	if deps.checkpoints != nil {
		cp := codeact.NewCheckpoint(cfg.Checkpoint.Session, conv)
		if err := deps.checkpoints.Save(context.WithoutCancel(ctx), cp); err != nil {
			logger.Error("save checkpoint", "error", err)
			return 1
		}
	}
	if runErr != nil {
		return 1
	}
	return 0
}

// readInput joins args, or reads r when there are none.
func readInput(args []string, r io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no input: pass a message as arguments or on stdin")
	}
	return text, nil
}
