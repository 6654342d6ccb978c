package code

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	codeact "github.com/nevindra/codeact"
)

// SubprocessRunner executes snippets with an external TypeScript interpreter.
// Code is validated first, written to a uniquely named file in the source
// root and run as "<interpreter> <file>" without a shell, with a fixed
// environment allow-list. Implements codeact.CodeRunner.
type SubprocessRunner struct {
	cfg       runnerConfig
	validator *Validator
	env       []string
}

// compile-time check
var _ codeact.CodeRunner = (*SubprocessRunner)(nil)

// NewSubprocessRunner creates a SubprocessRunner. The environment is
// snapshotted here; later changes to the process environment are not seen.
func NewSubprocessRunner(opts ...Option) (*SubprocessRunner, error) {
	cfg := newConfig(opts)
	root, err := filepath.Abs(cfg.sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("code runner: source root: %w", err)
	}
	cfg.sourceRoot = root
	v, err := NewValidator(cfg.sourceRoot, cfg.skillsDir)
	if err != nil {
		return nil, fmt.Errorf("code runner: %w", err)
	}
	return &SubprocessRunner{cfg: cfg, validator: v, env: snapshotEnv(cfg.envAllow)}, nil
}

// Validator returns the static validator applied before every run.
func (r *SubprocessRunner) Validator() *Validator { return r.validator }

func snapshotEnv(names []string) []string {
	var env []string
	seen := make(map[string]bool, len(names))
	for _, k := range names {
		if seen[k] {
			continue
		}
		seen[k] = true
		if v := os.Getenv(k); v != "" {
			env = append(env, k+"="+v)
		}
	}
	return env
}

// Run validates and executes req.Code. It never returns an error: every
// outcome is encoded in the returned text with one of the markers
// [BLOCKED], [STDERR], [TRUNCATED], [TIMEOUT], [EXIT_CODE] or [ERROR].
func (r *SubprocessRunner) Run(ctx context.Context, req codeact.CodeRequest) codeact.CodeResult {
	if err := r.validator.Validate(req.Code, r.cfg.allowedSkills); err != nil {
		r.cfg.logger.Warn("snippet blocked", "action", req.Action, "reason", err.Error())
		return codeact.CodeResult{Stdout: "[BLOCKED] " + err.Error()}
	}

	timeout := r.cfg.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	file := filepath.Join(r.cfg.sourceRoot, ".sandbox-"+uuid.NewString()+".ts")
	defer os.Remove(file)

	out, err := r.exec(ctx, file, req.Code, timeout)
	if err != nil {
		out.lines = append(out.lines, "[ERROR] "+err.Error())
	}
	return codeact.CodeResult{Stdout: strings.Join(out.lines, "\n")}
}

type execOutput struct {
	lines []string
}

func (r *SubprocessRunner) exec(ctx context.Context, file, code string, timeout time.Duration) (execOutput, error) {
	var out execOutput
	if err := os.WriteFile(file, []byte(code), 0o600); err != nil {
		return out, fmt.Errorf("write snippet: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(r.cfg.interpreter, file)
	cmd.Dir = r.cfg.sourceRoot
	cmd.Env = r.env
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return out, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return out, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return out, fmt.Errorf("start %s: %w", r.cfg.interpreter, err)
	}
	start := time.Now()

	kill := sync.OnceFunc(func() { killProcess(cmd) })
	capture := &capture{limit: r.cfg.maxOutput, onOverflow: kill}

	var timedOut atomic.Bool
	stop := context.AfterFunc(runCtx, func() {
		timedOut.Store(errors.Is(runCtx.Err(), context.DeadlineExceeded))
		kill()
	})

	var g errgroup.Group
	g.Go(func() error { return capture.drain(stdout, &capture.stdout) })
	g.Go(func() error { return capture.drain(stderr, &capture.stderr) })
	drainErr := g.Wait()
	waitErr := cmd.Wait()
	stop()

	r.cfg.logger.Debug("snippet finished",
		"file", filepath.Base(file),
		"duration", time.Since(start),
		"bytes", capture.total,
		"timed_out", timedOut.Load(),
		"truncated", capture.overflowed())

	if s := strings.TrimRight(capture.stdout.String(), " \t\r\n"); s != "" {
		out.lines = append(out.lines, s)
	}
	if s := strings.TrimRight(capture.stderr.String(), " \t\r\n"); s != "" {
		out.lines = append(out.lines, "[STDERR] "+s)
	}
	if capture.overflowed() {
		out.lines = append(out.lines, fmt.Sprintf("[TRUNCATED] Output exceeded %d bytes", r.cfg.maxOutput))
	}
	if drainErr != nil && !errors.Is(drainErr, errOverflow) {
		return out, fmt.Errorf("read output: %w", drainErr)
	}

	var exitErr *exec.ExitError
	switch {
	case timedOut.Load() && !capture.overflowed():
		out.lines = append(out.lines, fmt.Sprintf("[TIMEOUT] Exceeded %gs", timeout.Seconds()))
	case capture.overflowed():
	case errors.As(waitErr, &exitErr):
		if exitErr.ExitCode() == -1 {
			// Terminated by a signal we did not send.
			out.lines = append(out.lines, fmt.Sprintf("[TIMEOUT] Exceeded %gs", timeout.Seconds()))
		} else {
			out.lines = append(out.lines, fmt.Sprintf("[EXIT_CODE] %d", exitErr.ExitCode()))
		}
	case waitErr != nil:
		return out, waitErr
	}
	return out, nil
}

var errOverflow = errors.New("output limit exceeded")

// capture collects stdout and stderr under one cumulative byte budget.
type capture struct {
	limit      int
	onOverflow func()

	mu       sync.Mutex
	total    int
	overflow bool
	stdout   bytes.Buffer
	stderr   bytes.Buffer
}

func (c *capture) drain(r io.Reader, dst *bytes.Buffer) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 && !c.write(dst, buf[:n]) {
			c.onOverflow()
			// Keep reading so the pipe does not block the dying process.
			_, _ = io.Copy(io.Discard, r)
			return errOverflow
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// write appends p within budget and reports whether the budget still holds.
func (c *capture) write(dst *bytes.Buffer, p []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overflow {
		return false
	}
	room := c.limit - c.total
	if len(p) > room {
		dst.Write(p[:max(room, 0)])
		c.total = c.limit
		c.overflow = true
		return false
	}
	dst.Write(p)
	c.total += len(p)
	return true
}

func (c *capture) overflowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overflow
}
