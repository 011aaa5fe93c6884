package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sokinpui/sitepatch/internal/fs"
	"github.com/sokinpui/sitepatch/model"
)

const (
	stateFileName = "state"
	turnsDirName  = "turns"
	beforeDir     = "before"
	afterDir      = "after"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Operation is one file written by a turn.
type Operation struct {
	Action string
	Path   string
	// ContentHash is the SHA-256 of the file after the turn.
	ContentHash string
	// PrevHash is the SHA-256 of the file before the turn. Modify only.
	PrevHash string
}

// HistoryEntry is one applied turn.
type HistoryEntry struct {
	ID         string
	Timestamp  int64
	Operations []Operation
}

// State is the parsed state file.
type State struct {
	History      []HistoryEntry
	CurrentIndex int
}

// Result lists the paths handled by an undo or redo.
type Result struct {
	TurnID string
	Done   []string
	Failed []string
}

// Manager keeps the turn history of one project directory.
type Manager struct {
	StateDir  string
	statePath string
	state     *State
	writer    *fs.Writer
}

// New loads the history of the project rooted at root, creating the state
// directory if needed.
func New(root string) (*Manager, error) {
	stateDir := filepath.Join(root, fs.StateDirName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("could not create state directory: %w", err)
	}
	m := &Manager{
		StateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		writer:    fs.NewWriter(root),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// History returns the recorded turns and the index of the current one.
func (m *Manager) History() ([]HistoryEntry, int) {
	return m.state.History, m.state.CurrentIndex
}

func (m *Manager) load() error {
	m.state = &State{CurrentIndex: -1}

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read state file: %w", err)
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	blocks := strings.Split(content, "\n\n")
	if len(blocks) == 0 || strings.TrimSpace(blocks[0]) == "" {
		return nil
	}

	index, err := strconv.Atoi(strings.TrimSpace(blocks[0]))
	if err != nil {
		return fmt.Errorf("invalid state file: could not parse current index: %w", err)
	}
	m.state.CurrentIndex = index

	for _, block := range blocks[1:] {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")

		tsField, id, _ := strings.Cut(lines[0], " ")
		ts, err := strconv.ParseInt(tsField, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid state file: could not parse timestamp from '%s': %w", lines[0], err)
		}
		entry := HistoryEntry{ID: id, Timestamp: ts}

		opLines := lines[1:]
		i := 0
		for i < len(opLines) {
			if i+3 > len(opLines) {
				return fmt.Errorf("invalid state file: incomplete operation record")
			}
			op := Operation{
				Action:      opLines[i],
				Path:        opLines[i+1],
				ContentHash: opLines[i+2],
			}
			i += 3
			if op.Action == fs.ActionModify {
				if i >= len(opLines) {
					return fmt.Errorf("invalid state file: incomplete modify operation record")
				}
				op.PrevHash = opLines[i]
				i++
			}
			entry.Operations = append(entry.Operations, op)
		}
		m.state.History = append(m.state.History, entry)
	}

	if m.state.CurrentIndex >= len(m.state.History) {
		return fmt.Errorf("invalid state file: index %d out of range", m.state.CurrentIndex)
	}
	return nil
}

func (m *Manager) save() error {
	blocks := []string{strconv.Itoa(m.state.CurrentIndex)}

	for _, entry := range m.state.History {
		lines := []string{fmt.Sprintf("%d %s", entry.Timestamp, entry.ID)}
		for _, op := range entry.Operations {
			lines = append(lines, op.Action, op.Path, op.ContentHash)
			if op.Action == fs.ActionModify {
				lines = append(lines, op.PrevHash)
			}
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	if err := os.WriteFile(m.statePath, []byte(strings.Join(blocks, "\n\n")), 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

func (m *Manager) snapshots(id, kind string) *fs.Writer {
	return fs.NewWriter(filepath.Join(m.StateDir, turnsDirName, id, kind))
}

func (m *Manager) snapshot(id, kind, path string) (string, error) {
	abs, err := fs.Resolve(filepath.Join(m.StateDir, turnsDirName, id, kind), path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read %s snapshot of %s: %w", kind, path, err)
	}
	return string(data), nil
}

// Record adds turn id to the history. before and after are the file sets on
// either side of the turn; created and modified name the paths the turn wrote.
// Entries past the current index are discarded.
func (m *Manager) Record(id string, before, after []model.File, created, modified []string) (HistoryEntry, error) {
	prev := index(before)
	next := index(after)

	entry := HistoryEntry{
		ID:        id,
		Timestamp: time.Now().UTC().Unix(),
	}
	for _, p := range created {
		if err := m.snapshots(id, afterDir).Write(p, next[p]); err != nil {
			return HistoryEntry{}, err
		}
		entry.Operations = append(entry.Operations, Operation{
			Action:      fs.ActionCreate,
			Path:        p,
			ContentHash: fs.SHA256(next[p]),
		})
	}
	for _, p := range modified {
		if err := m.snapshots(id, beforeDir).Write(p, prev[p]); err != nil {
			return HistoryEntry{}, err
		}
		if err := m.snapshots(id, afterDir).Write(p, next[p]); err != nil {
			return HistoryEntry{}, err
		}
		entry.Operations = append(entry.Operations, Operation{
			Action:      fs.ActionModify,
			Path:        p,
			ContentHash: fs.SHA256(next[p]),
			PrevHash:    fs.SHA256(prev[p]),
		})
	}

	if m.state.CurrentIndex < len(m.state.History)-1 {
		for _, dropped := range m.state.History[m.state.CurrentIndex+1:] {
			os.RemoveAll(filepath.Join(m.StateDir, turnsDirName, dropped.ID))
		}
		m.state.History = m.state.History[:m.state.CurrentIndex+1]
	}
	m.state.History = append(m.state.History, entry)
	m.state.CurrentIndex++

	return entry, m.save()
}

// Undo reverts the current turn on disk. A file whose content no longer
// matches what the turn wrote is left alone and reported as failed.
func (m *Manager) Undo() (Result, error) {
	if m.state.CurrentIndex < 0 {
		return Result{}, ErrNothingToUndo
	}
	entry := m.state.History[m.state.CurrentIndex]
	res := Result{TurnID: entry.ID}

	for _, op := range entry.Operations {
		if m.undo(entry.ID, op) {
			res.Done = append(res.Done, op.Path)
		} else {
			res.Failed = append(res.Failed, op.Path)
		}
	}

	m.state.CurrentIndex--
	return res, m.save()
}

func (m *Manager) undo(id string, op Operation) bool {
	current, err := m.writer.Hash(op.Path)
	if err != nil {
		// A created file that is already gone needs no undo.
		return errors.Is(err, os.ErrNotExist) && op.Action == fs.ActionCreate
	}
	if current != op.ContentHash {
		return false
	}

	switch op.Action {
	case fs.ActionCreate:
		return m.writer.Remove(op.Path) == nil
	case fs.ActionModify:
		content, err := m.snapshot(id, beforeDir, op.Path)
		if err != nil {
			return false
		}
		return m.writer.Write(op.Path, content) == nil
	}
	return false
}

// Redo re-applies the turn after the current one. A file that changed since
// the undo is left alone and reported as failed.
func (m *Manager) Redo() (Result, error) {
	next := m.state.CurrentIndex + 1
	if next >= len(m.state.History) {
		return Result{}, ErrNothingToRedo
	}
	entry := m.state.History[next]
	res := Result{TurnID: entry.ID}

	for _, op := range entry.Operations {
		if m.redo(entry.ID, op) {
			res.Done = append(res.Done, op.Path)
		} else {
			res.Failed = append(res.Failed, op.Path)
		}
	}

	m.state.CurrentIndex = next
	return res, m.save()
}

func (m *Manager) redo(id string, op Operation) bool {
	current, err := m.writer.Hash(op.Path)
	switch op.Action {
	case fs.ActionCreate:
		if err == nil && current != op.ContentHash {
			// Something else now lives at this path.
			return false
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return false
		}
	case fs.ActionModify:
		if err != nil || current != op.PrevHash {
			return false
		}
	default:
		return false
	}

	content, err := m.snapshot(id, afterDir, op.Path)
	if err != nil {
		return false
	}
	return m.writer.Write(op.Path, content) == nil
}

func index(files []model.File) map[string]string {
	m := make(map[string]string, len(files))
	for _, f := range files {
		m[f.Path] = f.Content
	}
	return m
}
