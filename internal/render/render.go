package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Snippet is a fenced code block found in a chat message.
type Snippet struct {
	// Hint is the paragraph immediately preceding the block.
	Hint string `json:"hint,omitempty"`
	// Lang is the info string of the fence (e.g., "html", "css").
	Lang    string `json:"lang,omitempty"`
	Content string `json:"content"`
}

// MessageHTML renders a chat message as HTML. Raw HTML in the message is
// omitted from the output.
func MessageHTML(message string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(message), &buf); err != nil {
		return "", fmt.Errorf("render message: %w", err)
	}
	return buf.String(), nil
}

// Snippets returns every fenced code block of a chat message in order.
func Snippets(message string) ([]Snippet, error) {
	source := []byte(message)
	root := markdown.Parser().Parse(text.NewReader(source))

	var snippets []Snippet
	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var s Snippet
		if block.Info != nil {
			s.Lang = string(block.Language(source))
		}

		var content bytes.Buffer
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			content.Write(line.Value(source))
		}
		s.Content = content.String()

		if prev := block.PreviousSibling(); prev != nil {
			if p, ok := prev.(*ast.Paragraph); ok {
				s.Hint = strings.TrimSpace(string(p.Lines().Value(source)))
			}
		}

		snippets = append(snippets, s)
		return ast.WalkSkipChildren, nil
	}

	if err := ast.Walk(root, walker); err != nil {
		return nil, err
	}
	return snippets, nil
}
