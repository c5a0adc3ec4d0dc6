package pty

import "testing"

func TestInputNormalizer_EnterSubmitsPrompt(t *testing.T) {
	n := NewInputNormalizer()

	if _, ok := n.Feed([]byte("hello")); ok {
		t.Fatal("unexpected submission before Enter")
	}
	prompt, ok := n.Feed([]byte("\r"))
	if !ok || prompt != "hello" {
		t.Fatalf("expected submission %q, got %q ok=%v", "hello", prompt, ok)
	}
}

func TestInputNormalizer_SS3EnterVariant(t *testing.T) {
	n := NewInputNormalizer()
	n.Feed([]byte("hi"))
	prompt, ok := n.Feed([]byte("\x1bOM"))
	if !ok || prompt != "hi" {
		t.Fatalf("expected submission %q, got %q ok=%v", "hi", prompt, ok)
	}
}

func TestInputNormalizer_BackspaceEditsBuffer(t *testing.T) {
	n := NewInputNormalizer()
	n.Feed([]byte("hellx"))
	n.Feed([]byte{backspaceDEL})
	prompt, ok := n.Feed([]byte("o\r"))
	if !ok || prompt != "hello" {
		t.Fatalf("expected %q got %q ok=%v", "hello", prompt, ok)
	}
}

func TestInputNormalizer_LineClearDiscardsBuffer(t *testing.T) {
	n := NewInputNormalizer()
	n.Feed([]byte("garbage"))
	n.Feed([]byte{lineClear})
	prompt, ok := n.Feed([]byte("clean\r"))
	if !ok || prompt != "clean" {
		t.Fatalf("expected %q got %q ok=%v", "clean", prompt, ok)
	}
}

func TestInputNormalizer_OSCColorResponseNeverSubmitted(t *testing.T) {
	n := NewInputNormalizer()
	n.Feed([]byte("\x1b]11;rgb:ffff/ffff/ffff\x07"))
	prompt, ok := n.Feed([]byte("\r"))
	if ok {
		t.Fatalf("OSC color response should never be a submitted prompt, got %q", prompt)
	}
}

func TestInputNormalizer_EmptyLineNotSubmitted(t *testing.T) {
	n := NewInputNormalizer()
	if _, ok := n.Feed([]byte("\r")); ok {
		t.Fatal("empty line should not be submitted")
	}
}

func TestInputNormalizer_TruncatesLongPrompt(t *testing.T) {
	n := NewInputNormalizer()
	long := make([]byte, MaxPromptChars+500)
	for i := range long {
		long[i] = 'a'
	}
	n.Feed(long)
	prompt, ok := n.Feed([]byte("\r"))
	if !ok {
		t.Fatal("expected submission")
	}
	if len(prompt) != MaxPromptChars {
		t.Fatalf("expected length %d, got %d", MaxPromptChars, len(prompt))
	}
}

func TestInputNormalizer_ANSICarryAcrossChunks(t *testing.T) {
	n := NewInputNormalizer()
	n.Feed([]byte("ab\x1b["))
	n.Feed([]byte("2J"))
	prompt, ok := n.Feed([]byte("cd\r"))
	if !ok || prompt != "abcd" {
		t.Fatalf("expected %q got %q ok=%v", "abcd", prompt, ok)
	}
}
