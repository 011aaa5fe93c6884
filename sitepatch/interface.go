package sitepatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/sokinpui/sitepatch/cli"
	"github.com/sokinpui/sitepatch/internal/config"
)

// Config for using sitepatch as a library.
type Config struct {
	// Dir is the project directory. Empty means the working directory.
	Dir string
	// Nvim loads changed files into Neovim buffers.
	Nvim bool
	// Buffer updates Neovim buffers without saving them to disk.
	Buffer bool
	// DryRun parses without writing anything.
	DryRun bool
}

// Apply runs one complete model response against the project and returns
// the created, modified and failed paths keyed by "Created", "Modified" and
// "Failed".
func Apply(content string, config Config) (map[string][]string, error) {
	app, err := New(cliConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sitepatch app: %w", err)
	}
	defer app.Close()

	summary, err := app.RunTurn(context.Background(), strings.NewReader(content))
	if err != nil {
		return nil, err
	}

	result := map[string][]string{
		"Created":  summary.Created,
		"Modified": summary.Modified,
		"Failed":   summary.Failed,
	}

	return result, nil
}

func cliConfig(c Config) *cli.Config {
	dir := c.Dir
	if dir == "" {
		dir = "."
	}
	settings := config.Default()
	settings.Nvim = c.Nvim || c.Buffer
	settings.Buffer = c.Buffer
	return &cli.Config{
		Config: settings,
		Dir:    dir,
		DryRun: c.DryRun,
	}
}
