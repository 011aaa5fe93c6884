package sitepatch_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/sokinpui/sitepatch/cli"
	"github.com/sokinpui/sitepatch/internal/config"
	"github.com/sokinpui/sitepatch/internal/stream"
	"github.com/sokinpui/sitepatch/model"
	"github.com/sokinpui/sitepatch/sitepatch"
)

const (
	createIndex = "Building your site.\n=== START_PROJECT_NAME\nCafe 🍩\n=== END_PROJECT_NAME\n" +
		"=== START_FILE_CONTENT index.html\n```html\n<h1>Cafe</h1>\n```\n=== END_FILE_CONTENT\n" +
		"=== START_FILE_CONTENT style.css\n```css\nh1 { color: brown; }\n```\n=== END_FILE_CONTENT\nEnjoy!"

	editIndex = "Renaming.\n=== SEARCH index.html\n```html\n<h1>Cafe</h1>\n```\n=======\n```html\n<h1>Bakery</h1>\n```\n=== REPLACE"
)

func newApp(t *testing.T, mutate ...func(*cli.Config)) (*sitepatch.App, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &cli.Config{Config: config.Default(), Dir: dir}
	for _, m := range mutate {
		m(cfg)
	}
	app, err := sitepatch.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create sitepatch app: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app, dir
}

func readProjectFile(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

type recordingSink struct {
	pushed [][]model.File
	closed int
}

func (s *recordingSink) Push(files []model.File, progress func(int)) ([]string, []string, error) {
	s.pushed = append(s.pushed, files)
	var paths []string
	for i, f := range files {
		paths = append(paths, f.Path)
		if progress != nil {
			progress(i + 1)
		}
	}
	return paths, nil, nil
}

func (s *recordingSink) Close() error {
	s.closed++
	return nil
}

func TestRunTurnLifecycle(t *testing.T) {
	app, dir := newApp(t)
	ctx := context.Background()

	t.Run("create", func(t *testing.T) {
		summary, err := app.RunTurn(ctx, strings.NewReader(createIndex))
		if err != nil {
			t.Fatalf("RunTurn: %v", err)
		}
		if !reflect.DeepEqual(summary.Created, []string{"index.html", "style.css"}) {
			t.Errorf("Created = %v", summary.Created)
		}
		if summary.ProjectTitle != "Cafe 🍩" {
			t.Errorf("ProjectTitle = %q", summary.ProjectTitle)
		}
		if !strings.HasPrefix(summary.Message, "Building your site.") || !strings.HasSuffix(summary.Message, "Enjoy!") {
			t.Errorf("Message = %q", summary.Message)
		}
		if got := readProjectFile(t, dir, "index.html"); got != "<h1>Cafe</h1>" {
			t.Errorf("index.html = %q", got)
		}
	})

	t.Run("edit", func(t *testing.T) {
		summary, err := app.RunTurn(ctx, strings.NewReader(editIndex))
		if err != nil {
			t.Fatalf("RunTurn: %v", err)
		}
		if !reflect.DeepEqual(summary.Modified, []string{"index.html"}) || len(summary.Created) != 0 {
			t.Errorf("summary = %#v", summary)
		}
		if got := readProjectFile(t, dir, "index.html"); got != "<h1>Bakery</h1>" {
			t.Errorf("index.html = %q", got)
		}
		if f, ok := app.File("index.html"); !ok || f.Content != "<h1>Bakery</h1>" {
			t.Errorf("File = %#v, %v", f, ok)
		}
	})

	t.Run("undo edit", func(t *testing.T) {
		summary, err := app.Undo()
		if err != nil {
			t.Fatalf("Undo: %v", err)
		}
		if !reflect.DeepEqual(summary.Modified, []string{"index.html"}) {
			t.Errorf("Modified = %v", summary.Modified)
		}
		if got := readProjectFile(t, dir, "index.html"); got != "<h1>Cafe</h1>" {
			t.Errorf("index.html = %q", got)
		}
		if f, _ := app.File("index.html"); f.Content != "<h1>Cafe</h1>" {
			t.Errorf("in-memory index.html = %q", f.Content)
		}
	})

	t.Run("redo edit", func(t *testing.T) {
		if _, err := app.Redo(); err != nil {
			t.Fatalf("Redo: %v", err)
		}
		if got := readProjectFile(t, dir, "index.html"); got != "<h1>Bakery</h1>" {
			t.Errorf("index.html = %q", got)
		}
		summary, err := app.Redo()
		if err != nil || summary.Message != "No turn to redo." {
			t.Errorf("second Redo = %#v, %v", summary, err)
		}
	})

	t.Run("index first", func(t *testing.T) {
		files := app.Files()
		if len(files) != 2 || files[0].Path != "index.html" {
			t.Errorf("Files = %#v", files)
		}
	})
}

func TestRunTurnStreamError(t *testing.T) {
	app, dir := newApp(t)

	content := "Starting\n=== START_FILE_CONTENT a.js\n```js\nlet a = 1;\n```\n=== END_FILE_CONTENT\n\n" +
		`__ERROR__:{"messageError":"Upstream timeout","isError":true}`

	summary, err := app.RunTurn(context.Background(), strings.NewReader(content))

	var streamErr *model.StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("err = %v, want *model.StreamError", err)
	}
	if !summary.Aborted || summary.Message != "Error: Upstream timeout" {
		t.Errorf("summary = %#v", summary)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "a.js")); !os.IsNotExist(statErr) {
		t.Errorf("a.js written although no pass was committed before the error: %v", statErr)
	}
}

func TestRunTurnCancelledKeepsCommittedPass(t *testing.T) {
	app, dir := newApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pr, pw := io.Pipe()
	app.SetUpdateCallback(func(u stream.Update) {
		if len(u.Changed) > 0 {
			cancel()
		}
	})

	go func() {
		pw.Write([]byte("=== START_FILE_CONTENT a.js\n```js\nlet a = 1;\n```\n=== END_FILE_CONTENT\n"))
	}()

	summary, err := app.RunTurn(ctx, pr)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if !summary.Aborted {
		t.Error("summary not marked aborted")
	}
	if got := readProjectFile(t, dir, "a.js"); got != "let a = 1;" {
		t.Errorf("a.js = %q", got)
	}

	if _, err := app.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.js")); !os.IsNotExist(err) {
		t.Error("aborted turn could not be undone")
	}
}

func TestRunTurnPushesToSink(t *testing.T) {
	app, _ := newApp(t)
	sink := &recordingSink{}
	app.SetSink(func() (sitepatch.Sink, error) { return sink, nil })

	var progress []int
	app.SetProgressCallback(func(current, total int) {
		progress = append(progress, current)
	})

	if _, err := app.RunTurn(context.Background(), strings.NewReader(createIndex)); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if len(sink.pushed) != 1 || len(sink.pushed[0]) != 2 {
		t.Fatalf("pushed = %#v", sink.pushed)
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times", sink.closed)
	}
	if !reflect.DeepEqual(progress, []int{0, 1, 2}) {
		t.Errorf("progress = %v", progress)
	}
}

func TestBufferModeSkipsDisk(t *testing.T) {
	app, dir := newApp(t, func(c *cli.Config) { c.Buffer = true })
	sink := &recordingSink{}
	app.SetSink(func() (sitepatch.Sink, error) { return sink, nil })

	summary, err := app.RunTurn(context.Background(), strings.NewReader(createIndex))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(summary.Created) != 2 || len(sink.pushed) != 1 {
		t.Errorf("summary = %#v, pushed = %d", summary, len(sink.pushed))
	}
	if _, err := os.Stat(filepath.Join(dir, "index.html")); !os.IsNotExist(err) {
		t.Errorf("buffer mode wrote to disk: %v", err)
	}
}

func TestParseDoesNotCommit(t *testing.T) {
	app, _ := newApp(t)

	parsed := app.Parse(createIndex)
	if len(parsed.Files) != 2 {
		t.Fatalf("Files = %#v", parsed.Files)
	}
	if len(app.Files()) != 0 {
		t.Errorf("Parse committed files: %#v", app.Files())
	}
}

func TestExecuteFromInputFile(t *testing.T) {
	input := filepath.Join(t.TempDir(), "response.md")
	if err := os.WriteFile(input, []byte(createIndex), 0644); err != nil {
		t.Fatal(err)
	}
	app, dir := newApp(t, func(c *cli.Config) { c.Input = input })

	summary, err := app.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(summary.Created) != 2 {
		t.Errorf("Created = %v", summary.Created)
	}
	if got := readProjectFile(t, dir, "style.css"); got != "h1 { color: brown; }" {
		t.Errorf("style.css = %q", got)
	}
}

func TestUndoWithEmptyHistory(t *testing.T) {
	app, _ := newApp(t)
	summary, err := app.Undo()
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if summary.Message != "No turn to undo." {
		t.Errorf("Message = %q", summary.Message)
	}
}
