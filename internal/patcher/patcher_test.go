package patcher

import (
	"reflect"
	"testing"

	"github.com/sokinpui/sitepatch/model"
)

func TestApplyEdit(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		search      string
		replace     string
		want        string
		wantChanged bool
	}{
		{"first match", "a b a", "a", "c", "c b a", true},
		{"absent search", "a b", "x", "y", "a b", false},
		{"empty search inserts at top", "body", "", "head\n", "head\nbody", true},
		{"same text is not a change", "a b", "a", "a", "a b", false},
		{"empty content with empty search", "", "", "new", "new", true},
		{"deletion", "keep drop", " drop", "", "keep", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := ApplyEdit(tt.content, tt.search, tt.replace)
			if got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
			if changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v", changed, tt.wantChanged)
			}
		})
	}
}

func TestIsIndexPage(t *testing.T) {
	for _, p := range []string{"/", "index", "/index", "index.html", "/index.html", "INDEX.HTML", "/Index"} {
		if !IsIndexPage(p) {
			t.Errorf("IsIndexPage(%q) = false", p)
		}
	}
	for _, p := range []string{"", "about.html", "pages/index.html", "index.htm", "index.html.bak"} {
		if IsIndexPage(p) {
			t.Errorf("IsIndexPage(%q) = true", p)
		}
	}
}

func TestMerge(t *testing.T) {
	current := []model.File{
		{Path: "style.css", Content: "a{}"},
		{Path: "script.js", Content: "1"},
	}

	t.Run("no incoming keeps current", func(t *testing.T) {
		got := Merge(current, nil)
		if !reflect.DeepEqual(got, current) {
			t.Fatalf("Merge = %#v", got)
		}
	})

	t.Run("replaces in place", func(t *testing.T) {
		got := Merge(current, []model.File{{Path: "script.js", Content: "2"}})
		want := []model.File{
			{Path: "style.css", Content: "a{}"},
			{Path: "script.js", Content: "2"},
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Merge = %#v, want %#v", got, want)
		}
	})

	t.Run("new index page goes first", func(t *testing.T) {
		got := Merge(current, []model.File{
			{Path: "about.html", Content: "about"},
			{Path: "index.html", Content: "home"},
		})
		want := []model.File{
			{Path: "index.html", Content: "home"},
			{Path: "style.css", Content: "a{}"},
			{Path: "script.js", Content: "1"},
			{Path: "about.html", Content: "about"},
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Merge = %#v, want %#v", got, want)
		}
	})

	t.Run("existing index page stays put", func(t *testing.T) {
		files := []model.File{{Path: "a.css", Content: ""}, {Path: "index.html", Content: "old"}}
		got := Merge(files, []model.File{{Path: "index.html", Content: "new"}})
		want := []model.File{{Path: "a.css", Content: ""}, {Path: "index.html", Content: "new"}}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Merge = %#v, want %#v", got, want)
		}
	})

	t.Run("duplicate incoming paths collapse", func(t *testing.T) {
		got := Merge(nil, []model.File{
			{Path: "a.js", Content: "1"},
			{Path: "a.js", Content: "2"},
			{Path: "index.html", Content: "x"},
			{Path: "index.html", Content: "y"},
		})
		want := []model.File{
			{Path: "index.html", Content: "y"},
			{Path: "a.js", Content: "2"},
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Merge = %#v, want %#v", got, want)
		}
	})

	t.Run("does not mutate current", func(t *testing.T) {
		Merge(current, []model.File{{Path: "style.css", Content: "changed"}})
		if current[0].Content != "a{}" {
			t.Errorf("current mutated: %#v", current)
		}
	})
}

func TestChanges(t *testing.T) {
	before := []model.File{
		{Path: "index.html", Content: "old"},
		{Path: "style.css", Content: "same"},
	}
	after := []model.File{
		{Path: "index.html", Content: "new"},
		{Path: "style.css", Content: "same"},
		{Path: "app.js", Content: "1"},
	}

	created, modified := Changes(before, after)

	if !reflect.DeepEqual(created, []string{"app.js"}) {
		t.Errorf("created = %v", created)
	}
	if !reflect.DeepEqual(modified, []string{"index.html"}) {
		t.Errorf("modified = %v", modified)
	}
}

func TestPick(t *testing.T) {
	set := []model.File{{Path: "a"}, {Path: "b"}, {Path: "c"}}
	got := Pick(set, []string{"c"}, []string{"a", "missing"})
	want := []model.File{{Path: "a"}, {Path: "c"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Pick = %#v, want %#v", got, want)
	}
}
