package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sokinpui/sitepatch/internal/logging"
	"github.com/sokinpui/sitepatch/internal/parser"
	"github.com/sokinpui/sitepatch/internal/patcher"
	"github.com/sokinpui/sitepatch/model"
)

const defaultChunkSize = 4096

// Update is emitted after every parse pass of a running turn.
type Update struct {
	TurnID       string
	Message      string
	ProjectTitle string
	// Files is the working file set after this pass.
	Files []model.File
	// Changed holds the files produced by this pass only.
	Changed []model.File
	Model   string
	Done    bool
}

// Result describes a finished, aborted or failed turn.
type Result struct {
	TurnID   string
	Parsed   model.ParsedResponse
	Files    []model.File
	Created  []string
	Modified []string
	Model    string
	Tokens   int
	Aborted  bool
	Buffer   string
}

// Controller owns the buffer of one generation turn. It re-parses the buffer
// on every chunk and folds the result into its working file set.
type Controller struct {
	turnID    string
	base      []model.File
	working   []model.File
	onUpdate  func(Update)
	logger    *slog.Logger
	chunkSize int
}

// Option configures a Controller.
type Option func(*Controller)

// WithUpdates registers fn to be called after each parse pass.
func WithUpdates(fn func(Update)) Option {
	return func(c *Controller) { c.onUpdate = fn }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithChunkSize sets the read size used when pulling from the stream.
func WithChunkSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// New creates a controller for one turn over base, the file set as it stood
// before the turn.
func New(base []model.File, opts ...Option) *Controller {
	c := &Controller{
		turnID:    uuid.New().String(),
		base:      base,
		working:   base,
		logger:    logging.Discard(),
		chunkSize: defaultChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type readResult struct {
	data []byte
	err  error
}

// Run consumes r until EOF, an error payload, a read error or ctx is done.
// The returned Result is never nil; it holds the last committed file set even
// when err is non-nil. An error payload is returned as *model.StreamError. If
// r is an io.Closer it is closed when ctx is done.
func (c *Controller) Run(ctx context.Context, r io.Reader) (*Result, error) {
	res := &Result{TurnID: c.turnID}

	chunks := make(chan readResult)
	go c.read(ctx, r, chunks)

	var (
		buf     strings.Builder
		pending []byte
	)

	for {
		select {
		case <-ctx.Done():
			if closer, ok := r.(io.Closer); ok {
				closer.Close()
			}
			c.logger.Info("turn cancelled", "turn", c.turnID, "bytes", buf.Len())
			res.Aborted = true
			c.finish(res, buf.String())
			return res, ctx.Err()

		case chunk, ok := <-chunks:
			if !ok {
				if len(pending) > 0 {
					buf.Write(pending)
				}
				text := buf.String()
				if err := c.inspect(res, text); err != nil {
					return res, err
				}
				c.step(res, text, true)
				c.finish(res, text)
				c.logger.Info("turn complete",
					"turn", c.turnID,
					"bytes", len(text),
					"files", len(res.Parsed.Files),
					"tokens", res.Tokens,
				)
				return res, nil
			}
			if chunk.err != nil {
				res.Aborted = true
				c.finish(res, buf.String())
				return res, fmt.Errorf("read stream: %w", chunk.err)
			}

			pending = append(pending, chunk.data...)
			n := completePrefix(pending)
			buf.Write(pending[:n])
			pending = append(pending[:0], pending[n:]...)

			text := buf.String()
			if err := c.inspect(res, text); err != nil {
				return res, err
			}
			c.step(res, text, false)
		}
	}
}

func (c *Controller) read(ctx context.Context, r io.Reader, out chan<- readResult) {
	defer close(out)
	for {
		data := make([]byte, c.chunkSize)
		n, err := r.Read(data)
		if n > 0 {
			select {
			case out <- readResult{data: data[:n]}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			select {
			case out <- readResult{err: err}:
			case <-ctx.Done():
			}
			return
		}
	}
}

// inspect handles the out-of-band signals multiplexed into the text stream.
func (c *Controller) inspect(res *Result, text string) error {
	if streamErr, ok := ExtractStreamError(text); ok {
		c.logger.Warn("stream error payload",
			"turn", c.turnID,
			"error", streamErr.MessageError,
			"show_pro_message", streamErr.ShowProMessage,
		)
		res.Aborted = true
		c.finish(res, text)
		return streamErr
	}
	if id, ok := ExtractSwitchedModel(text); ok && id != res.Model {
		c.logger.Info("model switched", "turn", c.turnID, "model", id)
		res.Model = id
	}
	return nil
}

func (c *Controller) step(res *Result, text string, done bool) {
	parsed := parser.Parse(parseable(text), c.base)
	if len(parsed.Files) > 0 {
		c.working = patcher.Merge(c.working, parsed.Files)
	}
	res.Parsed = parsed

	c.logger.Debug("parse pass",
		"turn", c.turnID,
		"bytes", len(text),
		"files", len(parsed.Files),
		"done", done,
	)

	if c.onUpdate != nil {
		c.onUpdate(Update{
			TurnID:       c.turnID,
			Message:      parsed.MessageContent,
			ProjectTitle: parsed.ProjectTitle,
			Files:        c.working,
			Changed:      parsed.Files,
			Model:        res.Model,
			Done:         done,
		})
	}
}

func (c *Controller) finish(res *Result, text string) {
	res.Buffer = text
	res.Files = c.working
	res.Created, res.Modified = patcher.Changes(c.base, c.working)
	res.Tokens = CountTokens(parseable(text))
}

// completePrefix returns the length of the longest prefix of b that does not
// end inside a multi-byte UTF-8 sequence.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}

// ReadAll runs a turn over a complete in-memory response.
func ReadAll(ctx context.Context, base []model.File, content string, opts ...Option) (*Result, error) {
	return New(base, opts...).Run(ctx, bytes.NewReader([]byte(content)))
}
