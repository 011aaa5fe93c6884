package sitepatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/sokinpui/sitepatch/cli"
	"github.com/sokinpui/sitepatch/internal/config"
	"github.com/sokinpui/sitepatch/internal/fs"
	"github.com/sokinpui/sitepatch/internal/logging"
	"github.com/sokinpui/sitepatch/internal/nvim"
	"github.com/sokinpui/sitepatch/internal/parser"
	"github.com/sokinpui/sitepatch/internal/patcher"
	"github.com/sokinpui/sitepatch/internal/source"
	"github.com/sokinpui/sitepatch/internal/state"
	"github.com/sokinpui/sitepatch/internal/stream"
	"github.com/sokinpui/sitepatch/model"
)

// ProgressUpdate is a callback function to report progress.
type ProgressUpdate func(current, total int)

// Sink receives the files changed by a turn, undo or redo after they are
// committed.
type Sink interface {
	Push(files []model.File, progress func(int)) (updated, failed []string, err error)
	Close() error
}

// App orchestrates turns over one project directory.
type App struct {
	cfg            *cli.Config
	logger         *slog.Logger
	closeLog       func() error
	stateManager   *state.Manager
	writer         *fs.Writer
	sourceProvider *source.SourceProvider
	openSink       func() (Sink, error)

	// turnMu serializes turns, undo and redo.
	turnMu sync.Mutex
	mu     sync.RWMutex
	files  []model.File

	progressCallback ProgressUpdate
	updateCallback   func(stream.Update)
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// New creates a new App for the project in cfg.Dir, creating the directory if
// needed. A nil cfg uses the current directory and default settings.
func New(cfg *cli.Config) (*App, error) {
	if cfg == nil {
		cfg = &cli.Config{Config: config.Default(), Dir: "."}
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}
	cfg.Dir = dir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}

	logger, closeLog, err := logging.New(filepath.Join(dir, fs.StateDirName, "logs"), cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	stateManager, err := state.New(dir)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}
	files, err := fs.Load(dir)
	if err != nil {
		closeLog()
		return nil, err
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		closeLog:       closeLog,
		stateManager:   stateManager,
		writer:         fs.NewWriter(dir),
		sourceProvider: source.New(),
		files:          files,
	}
	if cfg.Nvim {
		a.openSink = func() (Sink, error) {
			return nvim.New(dir, !cfg.Buffer)
		}
	}
	logger.Debug("project loaded", "dir", dir, "files", len(files))
	return a, nil
}

// Close releases the log file.
func (a *App) Close() error {
	return a.closeLog()
}

// Logger returns the diagnostic logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

// SetUpdateCallback sets a function to be called after every parse pass of a
// running turn.
func (a *App) SetUpdateCallback(cb func(stream.Update)) {
	a.updateCallback = cb
}

// SetSink replaces the editor sink opened for each commit. A nil open
// disables it.
func (a *App) SetSink(open func() (Sink, error)) {
	a.openSink = open
}

// Files returns a copy of the current project file set.
func (a *App) Files() []model.File {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.files)
}

// File returns the current version of path.
func (a *App) File(path string) (model.File, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, f := range a.files {
		if f.Path == path {
			return f, true
		}
	}
	return model.File{}, false
}

// Parse runs one parse pass of buffer against the current file set without
// committing anything.
func (a *App) Parse(buffer string) model.ParsedResponse {
	return parser.Parse(buffer, a.Files())
}

// Execute executes the main application logic based on the configuration.
// Summary paths are made relative to the working directory.
func (a *App) Execute(ctx context.Context) (summary model.Summary, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	switch {
	case a.cfg.Undo:
		summary, err = a.Undo()
	case a.cfg.Redo:
		summary, err = a.Redo()
	default:
		summary, err = a.processContent(ctx)
	}
	a.relativizeSummaryPaths(&summary)
	return summary, err
}

// processContent opens the configured source and runs a turn over it.
func (a *App) processContent(ctx context.Context) (model.Summary, error) {
	r, kind, err := a.sourceProvider.Open(ctx, source.Options{
		Input:  a.cfg.Input,
		Follow: a.cfg.Follow,
		Idle:   a.cfg.IdleTimeout,
	})
	if err != nil {
		return model.Summary{}, err
	}
	defer r.Close()

	a.logger.Debug("reading turn", "source", kind)
	return a.RunTurn(ctx, r)
}

// RunTurn streams one model response from r into the project. Committed
// changes are written to disk (unless in dry-run or buffer-only mode), pushed
// to the editor sink and recorded for undo, also when the turn ends early. A
// cancelled turn returns its summary with Aborted set and a nil error.
// Summary paths are project relative.
func (a *App) RunTurn(ctx context.Context, r io.Reader) (model.Summary, error) {
	a.turnMu.Lock()
	defer a.turnMu.Unlock()

	base := a.Files()
	ctrl := stream.New(base,
		stream.WithLogger(a.logger),
		stream.WithChunkSize(a.cfg.ChunkSize),
		stream.WithUpdates(a.updateCallback),
	)
	res, runErr := ctrl.Run(ctx, r)

	summary := model.Summary{
		TurnID:       res.TurnID,
		Message:      res.Parsed.MessageContent,
		ProjectTitle: res.Parsed.ProjectTitle,
		Model:        res.Model,
		Tokens:       res.Tokens,
		Aborted:      res.Aborted,
	}

	var streamErr *model.StreamError
	switch {
	case runErr == nil:
	case errors.As(runErr, &streamErr):
		summary.Message = errorMessage(streamErr)
	case errors.Is(runErr, context.Canceled):
		runErr = nil
	}

	if a.cfg.DryRun {
		summary.Created, summary.Modified = res.Created, res.Modified
		return summary, runErr
	}

	created, modified, failed, err := a.commit(res.TurnID, base, res.Files, res.Created, res.Modified)
	summary.Created, summary.Modified, summary.Failed = created, modified, failed
	if err != nil && runErr == nil {
		runErr = err
	}
	return summary, runErr
}

// commit persists the changed files of a turn and records it in history.
func (a *App) commit(turnID string, base, files []model.File, created, modified []string) (okCreated, okModified, failed []string, err error) {
	changed := patcher.Pick(files, created, modified)
	if len(changed) == 0 {
		return nil, nil, nil, nil
	}

	written := make(map[string]bool, len(changed))
	if a.cfg.Buffer {
		for _, f := range changed {
			written[f.Path] = true
		}
	} else {
		paths, failedWrites, werr := a.writer.Apply(changed)
		if werr != nil {
			a.logger.Warn("write failed", "turn", turnID, "error", werr)
		}
		failed = append(failed, failedWrites...)
		for _, p := range paths {
			written[p] = true
		}
	}

	okCreated = filterPaths(created, written)
	okModified = filterPaths(modified, written)

	committed := files
	if len(failed) > 0 {
		committed = withoutFailed(base, files, failed)
	}
	a.mu.Lock()
	a.files = committed
	a.mu.Unlock()

	if !a.cfg.Buffer && len(okCreated)+len(okModified) > 0 {
		if _, err := a.stateManager.Record(turnID, base, committed, okCreated, okModified); err != nil {
			return okCreated, okModified, failed, fmt.Errorf("failed to record turn: %w", err)
		}
	}

	sinkFailed, err := a.push(patcher.Pick(committed, okCreated, okModified))
	failed = append(failed, sinkFailed...)

	a.logger.Info("turn committed",
		"turn", turnID,
		"created", len(okCreated),
		"modified", len(okModified),
		"failed", len(failed),
	)
	return okCreated, okModified, failed, err
}

// push sends files to the editor sink, if one is configured.
func (a *App) push(files []model.File) ([]string, error) {
	if a.openSink == nil || len(files) == 0 {
		return nil, nil
	}
	sink, err := a.openSink()
	if err != nil {
		return nil, err
	}
	defer sink.Close()

	total := len(files)
	var progress func(int)
	if a.progressCallback != nil {
		a.progressCallback(0, total)
		progress = func(current int) {
			a.progressCallback(current, total)
		}
	}

	_, failed, err := sink.Push(files, progress)
	return failed, err
}

// Undo reverts the last applied turn.
func (a *App) Undo() (model.Summary, error) {
	return a.history(a.stateManager.Undo, "Undid turn %s.", "No turn to undo.")
}

// Redo re-applies the last undone turn.
func (a *App) Redo() (model.Summary, error) {
	return a.history(a.stateManager.Redo, "Redid turn %s.", "No turn to redo.")
}

func (a *App) history(step func() (state.Result, error), doneMsg, emptyMsg string) (model.Summary, error) {
	a.turnMu.Lock()
	defer a.turnMu.Unlock()

	res, err := step()
	if errors.Is(err, state.ErrNothingToUndo) || errors.Is(err, state.ErrNothingToRedo) {
		return model.Summary{Message: emptyMsg}, nil
	}
	if err != nil {
		return model.Summary{}, err
	}

	files, err := fs.Load(a.cfg.Dir)
	if err != nil {
		return model.Summary{}, err
	}
	a.mu.Lock()
	a.files = files
	a.mu.Unlock()

	sinkFailed, err := a.push(patcher.Pick(files, res.Done))

	summary := model.Summary{
		TurnID:   res.TurnID,
		Modified: res.Done,
		Failed:   append(res.Failed, sinkFailed...),
		Message:  fmt.Sprintf(doneMsg, res.TurnID),
	}
	return summary, err
}

// relativizeSummaryPaths converts project paths in a summary to be relative
// to the current working directory for cleaner display.
func (a *App) relativizeSummaryPaths(summary *model.Summary) {
	wd, err := os.Getwd()
	if err != nil {
		return
	}

	makeRelative := func(paths []string) []string {
		if paths == nil {
			return nil
		}
		rel := make([]string, len(paths))
		for i, p := range paths {
			abs := filepath.Join(a.cfg.Dir, filepath.FromSlash(p))
			if r, err := filepath.Rel(wd, abs); err == nil {
				rel[i] = filepath.ToSlash(r)
			} else {
				rel[i] = p
			}
		}
		return rel
	}

	summary.Created = makeRelative(summary.Created)
	summary.Modified = makeRelative(summary.Modified)
	summary.Failed = makeRelative(summary.Failed)
}

func errorMessage(e *model.StreamError) string {
	if e.ShowProMessage {
		return "You have exceeded your monthly included credits. Please consider upgrading to a pro plan."
	}
	return "Error: " + e.MessageError
}

func filterPaths(paths []string, keep map[string]bool) []string {
	var out []string
	for _, p := range paths {
		if keep[p] {
			out = append(out, p)
		}
	}
	return out
}

// withoutFailed reverts failed paths in files to their base version, or drops
// them when they did not exist before.
func withoutFailed(base, files []model.File, failed []string) []model.File {
	prev := make(map[string]model.File, len(base))
	for _, f := range base {
		prev[f.Path] = f
	}
	bad := make(map[string]bool, len(failed))
	for _, p := range failed {
		bad[p] = true
	}

	out := make([]model.File, 0, len(files))
	for _, f := range files {
		if !bad[f.Path] {
			out = append(out, f)
			continue
		}
		if old, ok := prev[f.Path]; ok {
			out = append(out, old)
		}
	}
	return out
}
