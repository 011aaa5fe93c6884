package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sokinpui/sitepatch/model"
)

type fakeProject struct {
	files   []model.File
	body    string
	summary model.Summary
	err     error
	undone  int
}

func (p *fakeProject) Files() []model.File { return p.files }

func (p *fakeProject) File(path string) (model.File, bool) {
	for _, f := range p.files {
		if f.Path == path {
			return f, true
		}
	}
	return model.File{}, false
}

func (p *fakeProject) RunTurn(ctx context.Context, r io.Reader) (model.Summary, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return model.Summary{}, err
	}
	p.body = string(data)
	return p.summary, p.err
}

func (p *fakeProject) Undo() (model.Summary, error) {
	p.undone++
	return model.Summary{TurnID: "t1", Modified: []string{"index.html"}, Message: "Undid turn t1."}, nil
}

func (p *fakeProject) Redo() (model.Summary, error) {
	return model.Summary{}, errors.New("redo target changed on disk")
}

func newTestRouter(p *fakeProject) http.Handler {
	return NewRouter(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestRouter(&fakeProject{files: []model.File{{Path: "index.html"}}})
	rec := do(t, h, http.MethodGet, "/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Files != 1 {
		t.Errorf("resp = %#v", resp)
	}
}

func TestFiles(t *testing.T) {
	p := &fakeProject{files: []model.File{
		{Path: "index.html", Content: "<h1>Hi</h1>"},
		{Path: "css/site.css", Content: "body{}"},
	}}
	h := newTestRouter(p)

	t.Run("list", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/files", "")
		var entries []fileEntry
		if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
			t.Fatal(err)
		}
		if len(entries) != 2 || entries[0].Path != "index.html" || entries[0].Bytes != 11 {
			t.Errorf("entries = %#v", entries)
		}
	})

	t.Run("nested file", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/files/css/site.css", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
			t.Errorf("Content-Type = %q", ct)
		}
		if rec.Body.String() != "body{}" {
			t.Errorf("body = %q", rec.Body.String())
		}
	})

	t.Run("missing", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/files/nope.js", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestRunTurn(t *testing.T) {
	p := &fakeProject{summary: model.Summary{
		TurnID:  "abc",
		Created: []string{"index.html"},
		Message: "Here is **your** page.\n\n```js\nlet a = 1;\n```",
	}}
	h := newTestRouter(p)

	rec := do(t, h, http.MethodPost, "/turns", "raw model output")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if p.body != "raw model output" {
		t.Errorf("project received %q", p.body)
	}

	var resp turnResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.TurnID != "abc" || len(resp.Created) != 1 {
		t.Errorf("summary = %#v", resp.Summary)
	}
	if !strings.Contains(resp.MessageHTML, "<strong>your</strong>") {
		t.Errorf("message_html = %q", resp.MessageHTML)
	}
	if len(resp.Snippets) != 1 || resp.Snippets[0].Lang != "js" {
		t.Errorf("snippets = %#v", resp.Snippets)
	}
}

func TestRunTurnStreamError(t *testing.T) {
	p := &fakeProject{
		summary: model.Summary{Aborted: true, Message: "Error: quota"},
		err:     &model.StreamError{MessageError: "quota", IsError: true},
	}
	rec := do(t, newTestRouter(p), http.MethodPost, "/turns", "x")

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp turnResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "quota" || !resp.Aborted {
		t.Errorf("resp = %#v", resp)
	}
}

func TestUndoRedo(t *testing.T) {
	p := &fakeProject{}
	h := newTestRouter(p)

	rec := do(t, h, http.MethodPost, "/undo", "")
	if rec.Code != http.StatusOK || p.undone != 1 {
		t.Errorf("undo status = %d, calls = %d", rec.Code, p.undone)
	}

	rec = do(t, h, http.MethodPost, "/redo", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("redo status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "changed on disk") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := do(t, h, http.MethodGet, "/", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, "127.0.0.1:0", http.NotFoundHandler(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run = %v", err)
	}
}
