package wikilink

import (
	"strings"
	"testing"
)

func TestExtract_LabelDefaultsToTitle(t *testing.T) {
	got := Extract("see [[Alpha]]")
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Title != "Alpha" || got[0].Label != "Alpha" {
		t.Errorf("got %+v, want title=Alpha label=Alpha", got[0])
	}
}

func TestExtract_ExplicitLabel(t *testing.T) {
	got := Extract("see [[Alpha|A]]")
	if len(got) != 1 || got[0].Title != "Alpha" || got[0].Label != "A" {
		t.Fatalf("got %+v, want title=Alpha label=A", got)
	}
}

func TestExtract_BlankLabelFallsBack(t *testing.T) {
	got := Extract("[[ Alpha |   ]]")
	if len(got) != 1 || got[0].Title != "Alpha" || got[0].Label != "Alpha" {
		t.Fatalf("got %+v", got)
	}
}

func TestExtract_EmptyTitlesDropped(t *testing.T) {
	got := Extract("[[]] [[ ]] [[|label]] [[Real]]")
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1: %+v", len(got), got)
	}
	if got[0].Title != "Real" || got[0].Position != 0 {
		t.Errorf("got %+v, want Real at position 0", got[0])
	}
}

func TestExtract_OrderAndPositions(t *testing.T) {
	body := "[[One]] then [[Two|2]] and [[One]] again"
	got := Extract(body)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	wantTitles := []string{"One", "Two", "One"}
	for i, o := range got {
		if o.Title != wantTitles[i] {
			t.Errorf("[%d] title = %q, want %q", i, o.Title, wantTitles[i])
		}
		if o.Position != i {
			t.Errorf("[%d] position = %d", i, o.Position)
		}
		if !strings.HasPrefix(body[o.Start:], "[["+o.Title) {
			t.Errorf("[%d] start %d does not point at the link", i, o.Start)
		}
	}
}

func TestExtract_InlineCodeMasked(t *testing.T) {
	body := "code `[[Beta]]` but [[Gamma]] is real"
	got := Extract(body)
	if len(got) != 1 || got[0].Title != "Gamma" {
		t.Fatalf("got %+v, want only Gamma", got)
	}
	if got[0].Start != strings.Index(body, "[[Gamma]]") {
		t.Errorf("start = %d, offsets not preserved", got[0].Start)
	}
}

func TestExtract_DoubleBacktickSpan(t *testing.T) {
	got := Extract("``a ` [[Beta]]`` [[Gamma]]")
	if len(got) != 1 || got[0].Title != "Gamma" {
		t.Fatalf("got %+v, want only Gamma", got)
	}
}

func TestExtract_UnmatchedBacktickIsLiteral(t *testing.T) {
	got := Extract("a stray ` then [[Beta]]")
	if len(got) != 1 || got[0].Title != "Beta" {
		t.Fatalf("got %+v, want Beta", got)
	}
}

func TestExtract_FencedBlockMasked(t *testing.T) {
	body := "intro [[Alpha]]\n```go\nx := \"[[Beta]]\"\n```\nafter [[Gamma]]\n"
	got := Extract(body)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	if got[0].Title != "Alpha" || got[1].Title != "Gamma" {
		t.Errorf("got %+v", got)
	}
	if got[1].Position != 1 {
		t.Errorf("Gamma position = %d, want 1", got[1].Position)
	}
}

func TestExtract_TildeFenceNeedsLongEnoughCloser(t *testing.T) {
	body := "~~~~\n[[Beta]]\n~~~\n[[Still]]\n~~~~~\n[[Out]]"
	got := Extract(body)
	if len(got) != 1 || got[0].Title != "Out" {
		t.Fatalf("got %+v, want only Out", got)
	}
}

func TestExtract_MixedFenceCharsDoNotClose(t *testing.T) {
	body := "```\n~~~\n[[Beta]]\n```\n[[Out]]"
	got := Extract(body)
	if len(got) != 1 || got[0].Title != "Out" {
		t.Fatalf("got %+v, want only Out", got)
	}
}

func TestExtract_UnclosedFenceRunsToEnd(t *testing.T) {
	got := Extract("[[A]]\n```\n[[B]]\n[[C]]")
	if len(got) != 1 || got[0].Title != "A" {
		t.Fatalf("got %+v, want only A", got)
	}
}

func TestExtract_NoLinks(t *testing.T) {
	if got := Extract("plain text with [single] brackets"); len(got) != 0 {
		t.Errorf("got %+v, want none", got)
	}
	if got := Extract(""); len(got) != 0 {
		t.Errorf("empty body produced %+v", got)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	body := "[[A]] `[[B]]` [[C|c]]"
	a, b := Extract(body), Extract(body)
	if len(a) != len(b) {
		t.Fatal("non-deterministic length")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("[%d] %+v != %+v", i, a[i], b[i])
		}
	}
}

func TestMask_PreservesLengthAndNewlines(t *testing.T) {
	body := "a `code` b\n```\nfenced ünïcode\n```\nc"
	m := Mask(body)
	if len(m) != len(body) {
		t.Fatalf("len = %d, want %d", len(m), len(body))
	}
	if strings.Count(m, "\n") != strings.Count(body, "\n") {
		t.Error("newlines not preserved")
	}
	if strings.Contains(m, "code") || strings.Contains(m, "fenced") {
		t.Errorf("code not masked: %q", m)
	}
}

func TestExtract_InlineTripleBacktickIsNotFence(t *testing.T) {
	got := Extract("```[[Beta]]``` then [[Alpha]]\n\nSee [[Gamma]]\n")
	if len(got) != 2 || got[0].Title != "Alpha" || got[1].Title != "Gamma" {
		t.Fatalf("got %+v, want Alpha and Gamma", got)
	}
}

func TestExtract_TildeFenceInfoMayHoldBackticks(t *testing.T) {
	got := Extract("~~~ `info`\n[[Hidden]]\n~~~\nSee [[Shown]]\n")
	if len(got) != 1 || got[0].Title != "Shown" {
		t.Fatalf("got %+v, want only Shown", got)
	}
}
