// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package textsource extracts the plain text fed into annotation prompts.
// A pre-extracted sidecar .txt next to the PDF wins over running the
// extraction tool, so large corpora can be prepared once up front.
package textsource

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Source extracts plain text from a paper PDF.
type Source interface {
	Extract(ctx context.Context, pdfPath string) (string, error)
}

// ExtractionError marks a paper whose text could not be produced. It is
// permanent: retrying the same file yields the same failure, so the batch
// layer records it and moves on instead of burning retry budget.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting text from %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Retryable reports false: extraction failures are not transient.
func (e *ExtractionError) Retryable() bool { return false }

// Pdftotext shells out to the poppler pdftotext binary, reading up to
// MaxPages pages (0 means all).
type Pdftotext struct {
	MaxPages int
}

// Extract runs pdftotext on pdfPath and returns its stdout.
func (p *Pdftotext) Extract(ctx context.Context, pdfPath string) (string, error) {
	args := []string{"-q"}
	if p.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(p.MaxPages))
	}
	args = append(args, pdfPath, "-")

	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "pdftotext", args...)
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return "", &ExtractionError{Path: pdfPath, Err: err}
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", &ExtractionError{Path: pdfPath, Err: fmt.Errorf("pdftotext produced no text")}
	}
	return text, nil
}

// Cached prefers a sidecar .txt file next to the PDF, falling back to the
// wrapped source when none exists.
type Cached struct {
	Fallback Source
}

// Extract returns the sidecar text when present, otherwise delegates.
func (c *Cached) Extract(ctx context.Context, pdfPath string) (string, error) {
	sidecar := strings.TrimSuffix(pdfPath, ".pdf") + ".txt"
	if data, err := os.ReadFile(sidecar); err == nil {
		text := strings.TrimSpace(string(data))
		if text != "" {
			return text, nil
		}
	}
	if c.Fallback == nil {
		return "", &ExtractionError{Path: pdfPath, Err: fmt.Errorf("no sidecar text and no extraction backend")}
	}
	return c.Fallback.Extract(ctx, pdfPath)
}

// truncationMarker is appended when Clip drops text.
const truncationMarker = "\n\n[... text truncated ...]"

// Clip bounds text to maxChars, appending a marker so the prompt makes the
// truncation visible to the model. The cut backs off to a rune boundary so a
// multi-byte character is never split. maxChars <= 0 disables clipping.
func Clip(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + truncationMarker
}
