package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	codeact "github.com/nevindra/codeact"
)

type printer interface {
	Print(codeact.Event)
	Flush() error
}

// textPrinter streams answer text to out and tool activity to diag.
type textPrinter struct {
	out, diag io.Writer
}

func (p *textPrinter) Print(ev codeact.Event) {
	switch ev.Type {
	case codeact.EventTextDelta:
		fmt.Fprint(p.out, ev.Delta)
	case codeact.EventTextEnd:
		fmt.Fprintln(p.out)
	case codeact.EventToolStart:
		fmt.Fprintf(p.diag, "[round %d] %s\n", ev.ToolRound, ev.Name)
	case codeact.EventToolResult:
		fmt.Fprintf(p.diag, "[round %d] %s ->\n%s\n", ev.ToolRound, ev.Name, ev.OutputPreview)
	case codeact.EventError:
		fmt.Fprintf(p.diag, "error (%s): %s\n", ev.Kind, ev.Message)
	}
}

func (p *textPrinter) Flush() error { return nil }

// jsonPrinter writes one JSON object per event.
type jsonPrinter struct {
	w   io.Writer
	err error
}

func (p *jsonPrinter) Print(ev codeact.Event) {
	if p.err != nil {
		return
	}
	p.err = json.NewEncoder(p.w).Encode(ev)
}

func (p *jsonPrinter) Flush() error { return p.err }

// htmlPrinter keeps the last completed answer and renders it on Flush.
type htmlPrinter struct {
	w    io.Writer
	text string
	fail string
}

func (p *htmlPrinter) Print(ev codeact.Event) {
	switch ev.Type {
	case codeact.EventTextEnd:
		p.text = ev.FullText
	case codeact.EventError:
		p.fail = ev.Message
	}
}

func (p *htmlPrinter) Flush() error {
	src := p.text
	if src == "" && p.fail != "" {
		src = "**Error:** " + p.fail
	}
	out, err := renderHTML(src)
	if err != nil {
		return err
	}
	_, err = io.WriteString(p.w, out)
	return err
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderHTML converts markdown to HTML. Raw HTML in the source is escaped.
func renderHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
