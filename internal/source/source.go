package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/sokinpui/sitepatch/internal/stream"
)

// Kind names where a turn's input comes from.
type Kind string

const (
	KindFile      Kind = "file"
	KindFollow    Kind = "follow"
	KindStdin     Kind = "stdin"
	KindClipboard Kind = "clipboard"
)

// Options selects the input of a turn.
type Options struct {
	Input  string
	Follow bool
	Idle   time.Duration
}

// SourceProvider determines and opens the source of a turn.
type SourceProvider struct {
	stdin         *os.File
	readClipboard func() (string, error)
}

// New creates a new SourceProvider.
func New() *SourceProvider {
	return &SourceProvider{
		stdin:         os.Stdin,
		readClipboard: clipboard.ReadAll,
	}
}

// Open returns a reader over the model response: the named input file
// (followed while it grows when requested), stdin if piped, else the
// clipboard.
func (sp *SourceProvider) Open(ctx context.Context, opts Options) (io.ReadCloser, Kind, error) {
	if opts.Input != "" {
		if opts.Follow {
			r, err := stream.Follow(ctx, opts.Input, opts.Idle)
			return r, KindFollow, err
		}
		f, err := os.Open(opts.Input)
		if err != nil {
			return nil, KindFile, fmt.Errorf("failed to open input: %w", err)
		}
		return f, KindFile, nil
	}

	if sp.isPiped() {
		return io.NopCloser(sp.stdin), KindStdin, nil
	}

	content, err := sp.readClipboard()
	if err != nil {
		return nil, KindClipboard, fmt.Errorf("failed to read from clipboard: %w", err)
	}
	return io.NopCloser(strings.NewReader(content)), KindClipboard, nil
}

func (sp *SourceProvider) isPiped() bool {
	if sp.stdin == nil {
		return false
	}
	stat, err := sp.stdin.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice == 0
}
