package title

import (
	"strings"
	"testing"
)

func TestTruncate_ShortStringUnchanged(t *testing.T) {
	in := "refactor login"
	if got := Truncate(in); got != in {
		t.Fatalf("got %q, want %q", got, in)
	}
}

func TestTruncate_PrefersCleanBreak(t *testing.T) {
	in := "fix the authentication bug in the login flow, then write tests for it please"
	got := Truncate(in)
	if len([]rune(got)) > MaxTitleChars {
		t.Fatalf("result %q exceeds cap", got)
	}
	if want := "fix the authentication bug in the login flow"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTruncate_FallsBackToEllipsisOnNoCleanBreak(t *testing.T) {
	in := ""
	for i := 0; i < 100; i++ {
		in += "x"
	}
	got := Truncate(in)
	if len([]rune(got)) > MaxTitleChars {
		t.Fatalf("result %q exceeds cap", got)
	}
	if want := strings.Repeat("x", MaxTitleChars-1) + "…"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFirstNonEmptyLine_StripsQuotes(t *testing.T) {
	in := "\n\n\"Refactor login flow\"\nextra line\n"
	if got := FirstNonEmptyLine(in); got != "Refactor login flow" {
		t.Fatalf("got %q", got)
	}
}
