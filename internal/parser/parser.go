package parser

import (
	"strings"

	"github.com/sokinpui/sitepatch/internal/patcher"
	"github.com/sokinpui/sitepatch/model"
)

// ManifestPath is owned by the publish workflow; the model may never write it.
const ManifestPath = "README.md"

// Parse turns the accumulated buffer of the current turn into chat text,
// project title and the set of files the buffer creates or modifies. current
// is the file set as it stood before the turn. Parse never fails: malformed
// or still-streaming blocks are skipped until a later buffer completes them.
func Parse(buffer string, current []model.File) model.ParsedResponse {
	pass := newFileSet(current)

	if strings.Contains(buffer, SearchStart) {
		for _, op := range ExtractEdits(buffer) {
			pass.applyEdit(op)
		}
	}
	if strings.Contains(buffer, StartFileContent) {
		parseFileBlocks(buffer, pass)
	}

	return model.ParsedResponse{
		MessageContent: ExtractMessageContent(buffer),
		Files:          pass.files(),
		ProjectTitle:   ExtractProjectTitle(buffer),
	}
}

// ExtractEdits returns the complete search/replace blocks of buffer in order
// of appearance. A trailing block without REPLACE_END is never returned.
func ExtractEdits(buffer string) []model.EditOperation {
	sections := strings.Split(buffer, SearchStart)
	if len(sections) < 2 {
		return nil
	}
	sections = sections[1:]

	var ops []model.EditOperation
	for i, section := range sections {
		isLast := i == len(sections)-1
		body, _, closed := strings.Cut(section, ReplaceEnd)
		if isLast && !closed {
			continue
		}
		if op, ok := parseEditBlock(body); ok {
			ops = append(ops, op)
		}
	}
	return ops
}

func parseEditBlock(body string) (model.EditOperation, bool) {
	searchRegion, replaceRegion, found := strings.Cut(body, Divider)
	if !found {
		return model.EditOperation{}, false
	}

	pathLine, searchRegion, _ := splitFirstLine(searchRegion)
	path, ok := ValidateFilename(pathLine)
	if !ok {
		return model.EditOperation{}, false
	}

	searchText, ok := ExtractFence(searchRegion)
	if !ok {
		return model.EditOperation{}, false
	}
	replaceText, ok := ExtractFence(replaceRegion)
	if !ok {
		return model.EditOperation{}, false
	}
	// Empty search inserts at the top and empty replace deletes; only an
	// edit with neither carries no instruction.
	if searchText == "" && replaceText == "" {
		return model.EditOperation{}, false
	}

	return model.EditOperation{
		Path:        path,
		SearchText:  searchText,
		ReplaceText: replaceText,
	}, true
}

func parseFileBlocks(buffer string, pass *fileSet) {
	sections := strings.Split(buffer, StartFileContent)[1:]
	for _, section := range sections {
		raw, _, closed := strings.Cut(section, EndFileContent)

		pathLine, rest, terminated := splitFirstLine(raw)
		if !terminated && !closed {
			// The path itself is still streaming in.
			continue
		}
		path, ok := ValidateFilename(pathLine)
		if !ok {
			continue
		}

		content, fenced := ExtractFence(rest)
		if !fenced {
			content = strings.TrimSpace(rest)
			if content == "" && pass.existedBefore(path) {
				continue
			}
		}
		pass.set(model.File{Path: path, Content: content})
	}
}

// fileSet accumulates the files touched by one parse pass, keeping first-seen
// order. A later write to the same path replaces the earlier one in place.
type fileSet struct {
	before  map[string]model.File
	order   []string
	touched map[string]model.File
}

func newFileSet(current []model.File) *fileSet {
	before := make(map[string]model.File, len(current))
	for _, f := range current {
		if _, dup := before[f.Path]; !dup {
			before[f.Path] = f
		}
	}
	return &fileSet{
		before:  before,
		touched: make(map[string]model.File),
	}
}

func (s *fileSet) existedBefore(path string) bool {
	_, ok := s.before[path]
	return ok
}

// lookup prefers a version produced earlier in this pass.
func (s *fileSet) lookup(path string) (model.File, bool) {
	if f, ok := s.touched[path]; ok {
		return f, true
	}
	f, ok := s.before[path]
	return f, ok
}

func (s *fileSet) set(f model.File) {
	if _, ok := s.touched[f.Path]; !ok {
		s.order = append(s.order, f.Path)
	}
	s.touched[f.Path] = f
}

func (s *fileSet) applyEdit(op model.EditOperation) {
	target, ok := s.lookup(op.Path)
	if !ok {
		s.set(model.File{Path: op.Path, Content: op.ReplaceText})
		return
	}
	if updated, changed := patcher.ApplyEdit(target.Content, op.SearchText, op.ReplaceText); changed {
		s.set(model.File{Path: op.Path, Content: updated})
	}
}

func (s *fileSet) files() []model.File {
	files := make([]model.File, 0, len(s.order))
	for _, path := range s.order {
		if path == ManifestPath {
			continue
		}
		files = append(files, s.touched[path])
	}
	return files
}
