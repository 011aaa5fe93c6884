package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/sokinpui/sitepatch/internal/config"
)

// Config holds the resolved settings of one invocation.
type Config struct {
	config.Config

	// Dir is the project directory the file set lives in.
	Dir        string
	ConfigPath string
	// Input names a file holding the model response. Empty means stdin when
	// piped, else the clipboard.
	Input  string
	Follow bool
	DryRun bool
	// MessageHTML prints the chat message rendered as HTML.
	MessageHTML bool
	Undo        bool
	Redo        bool
	Serve       bool
}

// ParseFlags parses os.Args and resolves the configuration.
func ParseFlags() (*Config, error) {
	return Parse(os.Args[1:])
}

// Parse defines and parses command-line flags using pflag, then layers them
// over the settings file and environment.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	flags := pflag.NewFlagSet("sitepatch", pflag.ContinueOnError)

	defaultCfg := config.Default()
	var (
		addr      string
		idle      time.Duration
		chunkSize int
		nvim      bool
		buffer    bool
		noTUI     bool
		debug     bool
	)

	flags.StringVarP(&cfg.Dir, "dir", "C", ".", "Project directory.")
	flags.StringVarP(&cfg.ConfigPath, "config", "c", "", "Settings file (default <dir>/"+config.FileName+").")
	flags.StringVarP(&cfg.Input, "input", "i", "", "Read the model response from this file instead of stdin or the clipboard.")
	flags.BoolVarP(&cfg.Follow, "follow", "f", false, "Keep reading --input as it grows until it goes idle.")
	flags.DurationVar(&idle, "idle-timeout", defaultCfg.IdleTimeout, "End a followed input after this long without new data.")
	flags.IntVar(&chunkSize, "chunk-size", defaultCfg.ChunkSize, "Read size used when consuming the stream.")
	flags.BoolVarP(&nvim, "nvim", "n", false, "Load changed files into Neovim buffers.")
	flags.BoolVarP(&buffer, "buffer", "b", false, "Update buffers in Neovim without saving them to disk.")
	flags.BoolVar(&cfg.DryRun, "dry-run", false, "Parse and report without writing anything.")
	flags.BoolVar(&cfg.MessageHTML, "message-html", false, "Print the chat message as HTML to stdout.")
	flags.BoolVar(&noTUI, "no-tui", false, "Disable the live view and print a plain summary.")
	flags.BoolVar(&debug, "debug", false, "Write debug logs under <dir>/.sitepatch/logs.")
	flags.BoolVarP(&cfg.Serve, "serve", "s", false, "Serve the project over HTTP.")
	flags.StringVar(&addr, "addr", defaultCfg.Addr, "Listen address for --serve.")

	// Mutually exclusive history group
	flags.BoolVarP(&cfg.Undo, "undo", "u", false, "Undo the last applied turn.")
	flags.BoolVarP(&cfg.Redo, "redo", "r", false, "Redo the last undone turn.")

	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: sitepatch [flags]")
		fmt.Fprintln(os.Stderr, "\nApply a streamed model response to a static web project.")
		fmt.Fprintln(os.Stderr, "\nExample: curl -N $PROXY/ask | sitepatch -C ./site")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Undo && cfg.Redo {
		return nil, fmt.Errorf("--undo and --redo are mutually exclusive")
	}
	if cfg.Follow && cfg.Input == "" {
		return nil, fmt.Errorf("--follow requires --input")
	}
	if cfg.Serve && (cfg.Undo || cfg.Redo) {
		return nil, fmt.Errorf("--serve cannot be combined with --undo or --redo")
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project directory: %w", err)
	}
	cfg.Dir = dir

	settings, err := config.Load(cfg.Dir, cfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	if flags.Changed("addr") {
		settings.Addr = addr
	}
	if flags.Changed("idle-timeout") {
		settings.IdleTimeout = idle
	}
	if flags.Changed("chunk-size") {
		settings.ChunkSize = chunkSize
	}
	if flags.Changed("nvim") {
		settings.Nvim = nvim
	}
	if flags.Changed("buffer") {
		settings.Buffer = buffer
	}
	if flags.Changed("no-tui") {
		settings.NoTUI = noTUI
	}
	if flags.Changed("debug") {
		settings.Debug = debug
	}
	if settings.Buffer {
		settings.Nvim = true
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	cfg.Config = settings

	return cfg, nil
}
