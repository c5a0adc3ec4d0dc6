// Package pty implements the Terminal Multiplexer (§4.F): one reader
// goroutine per chat PTY, UTF-8-safe decoding, ANSI-aware prompt submission
// detection, and bounded drop-oldest fan-out to attached listeners.
//
// Grounded on kandev's internal/agentctl/server/process (interactive_runner.go,
// interactive_output.go) turn-detection state machine, adapted from
// "detect when the agent is idle" to "detect when the user submitted a line".
package pty

import "regexp"

// ansiStripper is a small streaming state machine that removes CSI/OSC/DCS
// escape sequences from a byte stream, carrying a partial escape prefix
// across chunk boundaries (§4.F, §9 "regex-heavy text sanitization").
type ansiStripper struct {
	carry []byte
}

const (
	stNormal = iota
	stEsc
	stCSI
	stOSC
	stDCS
)

// Strip removes ANSI escape sequences from chunk, returning the visible text
// and retaining any incomplete trailing escape sequence for the next call.
func (a *ansiStripper) Strip(chunk []byte) []byte {
	data := append(a.carry, chunk...)
	a.carry = nil

	out := make([]byte, 0, len(data))
	state := stNormal
	i := 0
	escStart := -1

	for i < len(data) {
		b := data[i]
		switch state {
		case stNormal:
			if b == 0x1b {
				state = stEsc
				escStart = i
			} else {
				out = append(out, b)
			}
		case stEsc:
			switch {
			case b == '[':
				state = stCSI
			case b == ']':
				state = stOSC
			case b == 'P' || b == 'X' || b == '^' || b == '_':
				state = stDCS
			case b == 'O':
				// SS3 sequences (e.g. \x1bOM for Enter on some terminals) are
				// not stripped: the ESC O prefix is emitted here and the final
				// byte follows in normal state, so the caller sees all of it.
				out = append(out, data[escStart:i+1]...)
				state = stNormal
			default:
				// Unrecognized single-byte escape; treat as consumed.
				state = stNormal
			}
		case stCSI:
			if b >= 0x40 && b <= 0x7e {
				if string(data[escStart:i+1]) == "\x1b[13~" {
					// keypad Enter is kept so the input normalizer can match it
					out = append(out, data[escStart:i+1]...)
				}
				state = stNormal
			}
		case stOSC:
			if b == 0x07 || (b == '\\' && i > 0 && data[i-1] == 0x1b) {
				state = stNormal
			}
		case stDCS:
			if b == 0x07 || (b == '\\' && i > 0 && data[i-1] == 0x1b) {
				state = stNormal
			}
		}
		i++
	}

	if state != stNormal && escStart >= 0 {
		a.carry = append(a.carry, data[escStart:]...)
	}
	return out
}

// oscColorResponse matches OSC color query responses like "]11;rgb:ff/ff/ff"
// which terminals emit unsolicited and which must never be mistaken for a
// submitted prompt or cached as a title (§4.F "terminal control heuristic").
var oscColorResponse = regexp.MustCompile(`\][0-9]+;rgb:[0-9a-fA-F]{2,4}/[0-9a-fA-F]{2,4}/[0-9a-fA-F]{2,4}`)

// LooksLikeTerminalControlPayload reports whether text is a terminal control
// response fragment rather than user-authored content. Used both to filter
// prompt submission candidates and, on state load, to discard a cached title
// that was accidentally captured from one (§4.A normalization).
func LooksLikeTerminalControlPayload(text string) bool {
	return oscColorResponse.MatchString(text)
}
