package format

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"slackrelay/internal/domain"
)

func TestFormat_NoMetadata_ReturnsText(t *testing.T) {
	f := New(false)
	msg := domain.Message{
		Source:   domain.SourceCallback,
		Text:     "Deploy completed",
		Metadata: domain.Metadata{{Key: "source", Value: "CI"}},
	}
	if got := f.Format(msg); got != "Deploy completed" {
		t.Errorf("expected plain text, got %q", got)
	}
}

func TestFormat_NoMetadata_EscapesText(t *testing.T) {
	f := New(false)
	got := f.Format(domain.Message{Text: "a < b && c > d"})
	want := "a &lt; b &amp;&amp; c &gt; d"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFormat_DirectMessage_WithMetadata(t *testing.T) {
	f := New(true)
	msg := domain.Message{
		Source:    domain.SourceDirectMessage,
		SenderID:  "U123",
		Text:      "hello <team>",
		Timestamp: time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC),
	}
	want := "*From:* <@U123>\n*Time:* 2024-03-15 12:30:00 UTC\n\nhello &lt;team&gt;"
	if got := f.Format(msg); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFormat_DirectMessage_NoSenderNoTime(t *testing.T) {
	f := New(true)
	got := f.Format(domain.Message{Source: domain.SourceDirectMessage, Text: "hi"})
	if got != "\nhi" {
		t.Errorf("expected only body, got %q", got)
	}
}

func TestFormat_Callback_OrderedMetadata(t *testing.T) {
	f := New(true)
	msg := domain.Message{
		Source: domain.SourceCallback,
		Text:   "Build failed",
		Metadata: domain.Metadata{
			{Key: "zeta", Value: "1"},
			{Key: "source", Value: "CI"},
			{Key: "alpha", Value: "a&b"},
		},
	}
	want := "*Source:* CI\nzeta: 1\nalpha: a&amp;b\n\nBuild failed"
	if got := f.Format(msg); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFormat_Callback_DefaultSourceLabel(t *testing.T) {
	f := New(true)
	got := f.Format(domain.Message{Source: domain.SourceCallback, Text: "x"})
	if !strings.HasPrefix(got, "*Source:* external\n") {
		t.Errorf("expected default label, got %q", got)
	}
}

func TestFormat_RoundTripWithoutMetadata(t *testing.T) {
	f := New(false)
	for _, text := range []string{"a", "multi\nline text", strings.Repeat("x", MaxLength), "ünïcödé ✓"} {
		if got := f.Format(domain.Message{Text: text}); got != text {
			t.Errorf("round trip changed %q into %q", text, got)
		}
	}
}

func TestFormat_TruncatesAssembledContent(t *testing.T) {
	f := New(true)
	msg := domain.Message{
		Source:   domain.SourceCallback,
		Text:     strings.Repeat("y", 5000),
		Metadata: domain.Metadata{{Key: "source", Value: "CI"}},
	}
	got := f.Format(msg)
	if n := utf8.RuneCountInString(got); n != MaxLength {
		t.Fatalf("expected %d chars, got %d", MaxLength, n)
	}
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Error("expected truncation marker suffix")
	}
	if !strings.HasPrefix(got, "*Source:* CI") {
		t.Error("header must survive truncation")
	}
}

func TestFormat_LimitAppliesAfterHeader(t *testing.T) {
	// Text alone fits; text plus header does not.
	f := New(true)
	msg := domain.Message{Source: domain.SourceCallback, Text: strings.Repeat("z", MaxLength-5)}
	got := f.Format(msg)
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Error("expected truncation once header is prepended")
	}
}

func TestTruncate_ExactLimitUntouched(t *testing.T) {
	s := strings.Repeat("a", MaxLength)
	if Truncate(s) != s {
		t.Error("string at the limit must not be truncated")
	}
}

func TestTruncate_MultibyteBoundary(t *testing.T) {
	s := strings.Repeat("é", 5000)
	got := Truncate(s)
	if !utf8.ValidString(got) {
		t.Fatal("truncation produced invalid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != MaxLength {
		t.Errorf("expected %d chars, got %d", MaxLength, n)
	}
}

func TestParseSlackTimestamp(t *testing.T) {
	ts, ok := ParseSlackTimestamp("1700000000.000100")
	if !ok {
		t.Fatal("expected valid timestamp")
	}
	if ts.Unix() != 1700000000 {
		t.Errorf("expected 1700000000, got %d", ts.Unix())
	}
	if _, ok := ParseSlackTimestamp("not-a-ts"); ok {
		t.Error("expected invalid timestamp")
	}
	if _, ok := ParseSlackTimestamp(""); ok {
		t.Error("expected empty timestamp to be invalid")
	}
}
