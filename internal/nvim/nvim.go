package nvim

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/neovim/go-client/nvim"

	"github.com/sokinpui/sitepatch/internal/fs"
	"github.com/sokinpui/sitepatch/model"
)

// Manager handles the connection and interaction with a Neovim instance.
type Manager struct {
	nvim          *nvim.Nvim
	root          string
	save          bool
	isSelfStarted bool
	cmd           *exec.Cmd
	socketPath    string
}

// New connects to the Neovim instance named by $NVIM or
// $NVIM_LISTEN_ADDRESS, or starts a headless one. Buffers are written to disk
// after each push when save is set. Project paths are resolved against root.
func New(root string, save bool) (*Manager, error) {
	for _, env := range []string{"NVIM", "NVIM_LISTEN_ADDRESS"} {
		if addr := os.Getenv(env); addr != "" {
			if v, err := nvim.Dial(addr); err == nil {
				return &Manager{nvim: v, root: root, save: save}, nil
			}
		}
	}

	tmpDir, err := os.MkdirTemp("", "sitepatch-nvim-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for nvim: %w", err)
	}
	socketPath := filepath.Join(tmpDir, "nvim.sock")

	cmd := exec.Command("nvim", "--headless", "--clean", "--listen", socketPath)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to start headless nvim: %w. Is 'nvim' in your PATH?", err)
	}

	// Wait for the socket file to appear.
	for i := 0; i < 20; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	v, err := nvim.Dial(socketPath)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to connect to headless nvim: %w", err)
	}

	m := &Manager{
		nvim:          v,
		root:          root,
		save:          save,
		isSelfStarted: true,
		cmd:           cmd,
		socketPath:    socketPath,
	}
	if err := v.Command("set noswapfile"); err != nil {
		m.Close()
		return nil, fmt.Errorf("configure headless nvim: %w", err)
	}
	return m, nil
}

// Close disconnects from Neovim and cleans up if it was self-started.
func (m *Manager) Close() error {
	var err error
	if m.nvim != nil {
		err = m.nvim.Close()
	}
	if m.isSelfStarted && m.cmd != nil && m.cmd.Process != nil {
		if kerr := m.cmd.Process.Kill(); kerr == nil {
			m.cmd.Wait()
			os.RemoveAll(filepath.Dir(m.socketPath))
		}
	}
	return err
}

// processSequentially runs processFn over items in order, reporting progress
// after each one.
func processSequentially[T any](
	items []T,
	processFn func(item T) (path string, success bool),
	progressCb func(int),
) (succeeded, failed []string) {
	for i, item := range items {
		path, success := processFn(item)
		if success {
			succeeded = append(succeeded, path)
		} else {
			failed = append(failed, path)
		}
		if progressCb != nil {
			progressCb(i + 1)
		}
	}
	return succeeded, failed
}

// Push loads each file's content into its buffer, then saves all buffers
// unless the manager is in buffer-only mode.
func (m *Manager) Push(files []model.File, progressCb func(int)) (updated, failed []string, err error) {
	updated, failed = processSequentially(files, func(f model.File) (string, bool) {
		return f.Path, m.updateBuffer(f.Path, f.Content)
	}, progressCb)

	if m.save && len(updated) > 0 {
		if err := m.SaveAllBuffers(); err != nil {
			return updated, failed, err
		}
	}
	return updated, failed, nil
}

func (m *Manager) updateBuffer(rel, content string) bool {
	absPath, err := fs.Resolve(m.root, rel)
	if err != nil {
		return false
	}

	var escaped string
	if err := m.nvim.Call("fnameescape", &escaped, absPath); err != nil {
		return false
	}

	b := m.nvim.NewBatch()
	b.Command("edit! " + escaped)
	b.SetBufferLines(0, 0, -1, true, toLines(content))
	return b.Execute() == nil
}

// SaveAllBuffers writes all modified buffers to disk.
func (m *Manager) SaveAllBuffers() error {
	if err := m.nvim.Command("wa!"); err != nil {
		return fmt.Errorf("save buffers: %w", err)
	}
	return nil
}

// toLines splits content into buffer lines. A trailing newline does not
// produce an extra empty line.
func toLines(content string) [][]byte {
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	out := make([][]byte, len(lines))
	for i, l := range lines {
		out[i] = []byte(l)
	}
	return out
}
