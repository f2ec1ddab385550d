// Package state persists the consecutive-failure record that carries the
// monitor's memory from one run to the next.
package state

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	keyFailures = "failures"
	keyReason   = "reason"

	// ReasonHealthy is recorded after a healthy observation.
	ReasonHealthy = "healthy"

	// MaxReasonLen bounds a stored reason in bytes, well under maxLineSize.
	MaxReasonLen = 1024

	maxLineSize = 64 * 1024
)

var ErrCorrupt = errors.New("state: corrupt record")

// MonitorState is the record read at the start and written at the end of every run.
type MonitorState struct {
	Failures int    `json:"failures" yaml:"failures"`
	Reason   string `json:"reason" yaml:"reason"`
}

// Healthy reports whether the last observation was healthy.
func (s MonitorState) Healthy() bool {
	return s.Failures == 0
}

func (s MonitorState) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int(keyFailures, s.Failures),
		slog.String(keyReason, s.Reason),
	)
}

// Parse reads `key=value` lines. Blank lines, `#` comments, lines without `=`
// and unknown keys are skipped. A failures value that is not a non-negative
// integer yields ErrCorrupt.
func Parse(r io.Reader) (MonitorState, error) {
	var st MonitorState

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case keyFailures:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return MonitorState{}, fmt.Errorf("%w: line %d: invalid failures %q", ErrCorrupt, lineNo, value)
			}
			st.Failures = n
		case keyReason:
			st.Reason = value
		}
	}

	if err := scanner.Err(); err != nil {
		return MonitorState{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return st, nil
}

// Format renders the record with exactly two keys and a trailing newline.
func Format(s MonitorState) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s=%d\n", keyFailures, s.Failures)
	fmt.Fprintf(&buf, "%s=%s\n", keyReason, CleanReason(s.Reason))
	return buf.Bytes()
}

// CleanReason puts a reason on a single trimmed line of at most MaxReasonLen
// bytes, cut on a rune boundary. Whatever it returns survives Format and Parse
// unchanged.
func CleanReason(reason string) string {
	reason = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, reason)
	reason = strings.TrimSpace(reason)
	if len(reason) <= MaxReasonLen {
		return reason
	}

	cut := MaxReasonLen
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return strings.TrimSpace(reason[:cut])
}
