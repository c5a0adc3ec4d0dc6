package pty

import (
	"strings"
	"sync"
)

// MaxPromptChars caps a submitted prompt line before it enters history.
const MaxPromptChars = 2000

const (
	backspaceDEL = 0x7f
	backspaceBS  = 0x08
	lineClear    = 0x15 // Ctrl-U
)

// enterSequences lists every byte sequence the normalizer treats as Enter.
// None is a prefix of another, and the escape-prefixed ones are matched as
// whole sequences, so "\x1bOM" isn't mistaken for a bare ESC.
var enterSequences = [][]byte{
	[]byte("\x1bOM"),
	[]byte("\x1b[13~"),
	[]byte("\r"),
	[]byte("\n"),
}

// InputNormalizer tracks one chat's buffered input line and ANSI-stripping
// carry state across PTY input writes, guarded by its own mutex (§5
// "chat_input_lock").
type InputNormalizer struct {
	mu       sync.Mutex
	buf      strings.Builder
	stripper ansiStripper
}

// NewInputNormalizer returns an empty normalizer.
func NewInputNormalizer() *InputNormalizer {
	return &InputNormalizer{}
}

// Feed processes one chunk of raw input bytes (as typed into the terminal,
// before the child process sees it) and returns a submitted prompt if Enter
// was detected in this chunk.
func (n *InputNormalizer) Feed(raw []byte) (prompt string, submitted bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	stripped := n.stripper.Strip(raw)

	i := 0
	for i < len(stripped) {
		if seqLen, isEnter := matchEnter(stripped[i:]); isEnter {
			line := compactWhitespace(n.buf.String())
			n.buf.Reset()
			i += seqLen
			if line == "" || LooksLikeTerminalControlPayload(line) {
				continue
			}
			if len(line) > MaxPromptChars {
				line = line[:MaxPromptChars]
			}
			prompt, submitted = line, true
			continue
		}

		b := stripped[i]
		switch {
		case b == backspaceDEL || b == backspaceBS:
			s := n.buf.String()
			if len(s) > 0 {
				n.buf.Reset()
				n.buf.WriteString(s[:len(s)-1])
			}
		case b == lineClear:
			n.buf.Reset()
		case b < 0x20:
			// discard other control bytes
		default:
			n.buf.WriteByte(b)
		}
		i++
	}

	return prompt, submitted
}

func matchEnter(data []byte) (length int, ok bool) {
	for _, seq := range enterSequences {
		if len(data) >= len(seq) && string(data[:len(seq)]) == string(seq) {
			return len(seq), true
		}
	}
	return 0, false
}

func compactWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
