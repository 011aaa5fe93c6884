package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sokinpui/sitepatch/model"
)

func TestProgressBar(t *testing.T) {
	var out bytes.Buffer
	p := &ProgressBar{out: &out, prefix: "Syncing"}

	p.Set(1, 2)
	if !strings.Contains(out.String(), "[1/2] 50.0%") {
		t.Errorf("output = %q", out.String())
	}
	if strings.HasSuffix(out.String(), "\n") {
		t.Error("line finished before the bar was full")
	}

	p.Set(2, 2)
	if !strings.HasSuffix(out.String(), "[2/2] 100.0%\n") {
		t.Errorf("output = %q", out.String())
	}
}

func TestProgressBarEmpty(t *testing.T) {
	var out bytes.Buffer
	p := &ProgressBar{out: &out}
	p.draw()
	if out.Len() != 0 {
		t.Errorf("drew %q for an empty total", out.String())
	}
}

func TestSummaryTitle(t *testing.T) {
	if got := summaryTitle(model.Summary{ProjectTitle: "Cafe"}); got != "Cafe" {
		t.Errorf("title = %q", got)
	}
	if got := summaryTitle(model.Summary{}); got != "Update Summary" {
		t.Errorf("title = %q", got)
	}
}
