package patcher

import (
	"strings"

	"github.com/sokinpui/sitepatch/model"
)

// ApplyEdit replaces the first occurrence of search in content with replace.
// An empty search inserts replace at the top. changed is false when search
// does not occur, in which case content is returned untouched.
func ApplyEdit(content, search, replace string) (string, bool) {
	if search != "" && !strings.Contains(content, search) {
		return content, false
	}
	updated := strings.Replace(content, search, replace, 1)
	return updated, updated != content
}

// IsIndexPage reports whether path names the project's entry page.
func IsIndexPage(path string) bool {
	switch strings.ToLower(path) {
	case "/", "index", "/index", "index.html", "/index.html":
		return true
	}
	return false
}

// Merge folds incoming into current and returns the resulting file set. A
// file already present is replaced in place; a new index page goes first and
// every other new file is appended. With no incoming files current is
// returned as is.
func Merge(current, incoming []model.File) []model.File {
	if len(incoming) == 0 {
		return current
	}

	var front []model.File
	merged := make([]model.File, len(current), len(current)+len(incoming))
	copy(merged, current)

	position := make(map[string]int, len(merged))
	for i, f := range merged {
		position[f.Path] = i
	}
	frontPosition := make(map[string]int)

	for _, f := range incoming {
		if i, ok := position[f.Path]; ok {
			merged[i] = f
			continue
		}
		if i, ok := frontPosition[f.Path]; ok {
			front[i] = f
			continue
		}
		if IsIndexPage(f.Path) {
			frontPosition[f.Path] = len(front)
			front = append(front, f)
			continue
		}
		position[f.Path] = len(merged)
		merged = append(merged, f)
	}

	if len(front) == 0 {
		return merged
	}
	return append(front, merged...)
}

// Changes compares two file sets and lists the paths that are new in after
// and the paths whose content differs, both in after's order.
func Changes(before, after []model.File) (created, modified []string) {
	previous := make(map[string]string, len(before))
	for _, f := range before {
		previous[f.Path] = f.Content
	}
	for _, f := range after {
		content, existed := previous[f.Path]
		switch {
		case !existed:
			created = append(created, f.Path)
		case content != f.Content:
			modified = append(modified, f.Path)
		}
	}
	return created, modified
}

// Pick returns the files of set whose path is listed in paths, in set's order.
func Pick(set []model.File, paths ...[]string) []model.File {
	wanted := make(map[string]struct{})
	for _, group := range paths {
		for _, p := range group {
			wanted[p] = struct{}{}
		}
	}
	var picked []model.File
	for _, f := range set {
		if _, ok := wanted[f.Path]; ok {
			picked = append(picked, f)
		}
	}
	return picked
}
