// Package executor runs submitted code through per-language toolchains
// under a wall-clock timeout and normalizes the outcome into an
// ExecutionResult.
//
// Code runs as the server's OS user. The only isolation is the timeout, the
// output cap and the process-group kill; production deployments must add
// container or seccomp isolation around this service.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"codecollab/backend/internal/config"
	"codecollab/backend/internal/models"
	"codecollab/backend/internal/workspace"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Service is the execution service.
type Service struct {
	workspaces *workspace.Manager
	toolchains map[models.Language]Toolchain
	timeout    time.Duration
	maxOutput  int
	slots      *semaphore.Weighted
	logger     *zap.Logger
}

// Options configures a Service. Zero values fall back to config defaults.
type Options struct {
	Timeout       time.Duration
	MaxOutput     int
	MaxConcurrent int
	// GOOS selects the dispatch table; defaults to runtime.GOOS.
	GOOS string
}

// NewService creates an execution service backed by the given workspaces.
func NewService(workspaces *workspace.Manager, opts Options, logger *zap.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultExecTimeout
	}
	if opts.MaxOutput <= 0 {
		opts.MaxOutput = config.DefaultMaxOutputBytes
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = config.DefaultMaxConcurrent
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		workspaces: workspaces,
		toolchains: Toolchains(opts.GOOS),
		timeout:    opts.Timeout,
		maxOutput:  opts.MaxOutput,
		slots:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logger:     logger,
	}
}

// Languages returns the languages accepted by Execute and by Analyze.
func (s *Service) Languages() (run, analyze []models.Language) {
	for _, lang := range models.Languages {
		tc, ok := s.toolchains[lang]
		if !ok {
			continue
		}
		run = append(run, lang)
		if tc.Analyze != nil {
			analyze = append(analyze, lang)
		}
	}
	return run, analyze
}

// Execute runs code and returns its normalized result. A returned error
// means the request itself was invalid or could not be scheduled; program
// failures are reported through the result.
func (s *Service) Execute(ctx context.Context, code, language string) (*models.ExecutionResult, error) {
	if code == "" || language == "" {
		return nil, ErrMissingInput
	}
	lang, ok := models.ParseLanguage(language)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	tc, ok := s.toolchains[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	out, err := s.run(ctx, code, lang, tc.Run)
	if err != nil {
		return nil, err
	}
	return out.result(s.timeout), nil
}

// Analyze syntax-checks interpreted languages without running them.
func (s *Service) Analyze(ctx context.Context, code, language string) (*models.ExecutionResult, error) {
	if code == "" || language == "" {
		return nil, ErrMissingInput
	}
	lang, ok := models.ParseLanguage(language)
	if !ok {
		return nil, ErrAnalyzeUnsupported
	}
	tc, ok := s.toolchains[lang]
	if !ok || tc.Analyze == nil {
		return nil, ErrAnalyzeUnsupported
	}

	out, err := s.run(ctx, code, lang, tc.Analyze)
	if err != nil {
		return nil, err
	}

	res := out.result(s.timeout)
	if !res.Succeeded {
		if line, ok := ExtractLine(res.Output, out.file); ok {
			res.Output = fmt.Sprintf("%s (line %d)", strings.TrimRight(res.Output, "\n"), line)
		}
		res.Error = res.Output
		return res, nil
	}
	res.Output = config.NoSyntaxErrorsMessage
	return res, nil
}

func (s *Service) run(ctx context.Context, code string, lang models.Language, steps func(*workspace.Workspace) []Step) (*outcome, error) {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for execution slot: %w", err)
	}
	defer s.slots.Release(1)

	ws, err := s.workspaces.Allocate(code, lang)
	if err != nil {
		return nil, fmt.Errorf("allocate workspace: %w", err)
	}
	defer ws.Release()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	var out *outcome
	for _, step := range steps(ws) {
		out = s.runStep(runCtx, ws, step)
		if out.failed() {
			break
		}
	}
	out.file = ws.DisplayName
	out.scrub(ws.Dir)

	s.logger.Info("execution finished",
		zap.String("language", lang.String()),
		zap.Bool("succeeded", !out.failed()),
		zap.Bool("timed_out", out.timedOut),
		zap.Duration("duration", time.Since(started)))
	return out, nil
}

func (s *Service) runStep(ctx context.Context, ws *workspace.Workspace, step Step) *outcome {
	cmd := exec.CommandContext(ctx, step.Binary, step.Args...)
	cmd.Dir = ws.Dir
	cmd.Env = append(os.Environ(), step.Env...)

	stdout := &limitedWriter{max: s.maxOutput}
	stderr := &limitedWriter{max: s.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = config.ProcessWaitDelay

	err := cmd.Run()
	// Reap anything the program forked into the background.
	if sweepAfterRun {
		if kerr := killProcessGroup(cmd); kerr != nil {
			s.logger.Warn("process group cleanup failed", zap.String("binary", step.Binary), zap.Error(kerr))
		}
	}

	out := &outcome{
		stdout: stdout.String(),
		stderr: stderr.String(),
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		out.timedOut = true
		out.exitCode = -1
	case err == nil:
	case errors.Is(ctx.Err(), context.Canceled):
		out.exitCode = -1
		out.reason = "Execution canceled"
	case errors.Is(err, exec.ErrNotFound):
		out.exitCode = -1
		out.reason = fmt.Sprintf("%s is not available on this server", step.Binary)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.exitCode = exitErr.ExitCode()
			out.reason = fmt.Sprintf("Process exited with code %d", out.exitCode)
		} else {
			out.exitCode = -1
			out.reason = fmt.Sprintf("failed to run %s: %v", step.Binary, err)
			s.logger.Error("process start failed", zap.String("binary", step.Binary), zap.Error(err))
		}
	}
	return out
}

// outcome is the raw result of the last step that ran.
type outcome struct {
	stdout   string
	stderr   string
	exitCode int
	timedOut bool
	reason   string
	// file is the source file's base name, used to anchor line extraction.
	file string
}

// scrub strips the workspace directory from diagnostics so clients only
// see file names relative to their own code.
func (o *outcome) scrub(dir string) {
	prefix := dir + string(filepath.Separator)
	o.stderr = strings.ReplaceAll(o.stderr, prefix, "")
	o.reason = strings.ReplaceAll(o.reason, prefix, "")
}

func (o *outcome) failed() bool {
	return o.timedOut || o.exitCode != 0 || o.stderr != ""
}

// result applies the exit semantics: nonzero exit or any stderr is a
// failure reported as stderr, else the reason, else stdout.
func (o *outcome) result(timeout time.Duration) *models.ExecutionResult {
	if o.timedOut {
		msg := fmt.Sprintf("Execution timed out after %s", timeout)
		if o.stderr != "" {
			msg += "\n\n" + o.stderr
		}
		return &models.ExecutionResult{Succeeded: false, Output: msg, Error: msg}
	}

	if o.failed() {
		msg := o.stderr
		if msg == "" {
			msg = o.reason
		}
		if msg == "" {
			msg = o.stdout
		}
		return &models.ExecutionResult{Succeeded: false, Output: msg, Error: msg}
	}

	if o.stdout == "" {
		return &models.ExecutionResult{Succeeded: true, Output: config.NoOutputPlaceholder}
	}
	return &models.ExecutionResult{Succeeded: true, Output: o.stdout}
}

var linePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bline (\d+)`),
	regexp.MustCompile(`:(\d+):`),
	regexp.MustCompile(`(?m):(\d+)\s*$`),
}

// ExtractLine finds a best-effort line number in toolchain diagnostics.
// A location in file wins over the generic patterns, which would otherwise
// pick up toolchain-internal frames. Attribution varies across toolchain
// versions.
func ExtractLine(diagnostic, file string) (int, bool) {
	patterns := linePatterns
	if file != "" {
		anchored := regexp.MustCompile(regexp.QuoteMeta(file) + `(?:", line |:)(\d+)`)
		patterns = append([]*regexp.Regexp{anchored}, linePatterns...)
	}
	for _, re := range patterns {
		if m := re.FindStringSubmatch(diagnostic); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

const truncationMarker = "\n... output truncated"

// limitedWriter keeps at most max bytes and silently discards the rest.
type limitedWriter struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	remaining := w.max - w.buf.Len()
	if remaining <= 0 {
		w.truncated = w.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		w.truncated = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *limitedWriter) String() string {
	if w.truncated {
		return w.buf.String() + truncationMarker
	}
	return w.buf.String()
}
