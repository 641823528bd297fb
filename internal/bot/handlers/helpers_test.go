package handlers

import (
	"strings"
	"testing"
)

func TestParseCallbackID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		data    string
		prefix  string
		want    int64
		wantErr bool
	}{
		{"review_42", "review", 42, false},
		{"categorize_9000000000", "categorize", 9000000000, false},
		{"review_", "review", 0, true},
		{"review_abc", "review", 0, true},
		{"skip_42", "review", 0, true},
	}

	for _, tc := range tests {
		got, err := parseCallbackID(tc.data, tc.prefix)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseCallbackID(%q, %q) expected error", tc.data, tc.prefix)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseCallbackID(%q, %q) failed: %v", tc.data, tc.prefix, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseCallbackID(%q, %q) = %d, want %d", tc.data, tc.prefix, got, tc.want)
		}
	}
}

func TestParseCallbackIDPair(t *testing.T) {
	t.Parallel()

	first, second, err := parseCallbackIDPair("applyCategory_42_7", "applyCategory")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if first != 42 || second != 7 {
		t.Fatalf("got %d/%d, want 42/7", first, second)
	}

	if _, _, err := parseCallbackIDPair("applyCategory_42", "applyCategory"); err == nil {
		t.Fatal("expected error for missing second id")
	}
	if _, _, err := parseCallbackIDPair("applyCategory_a_b", "applyCategory"); err == nil {
		t.Fatal("expected error for non-numeric ids")
	}
}

func TestTagsOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text     string
		wantTags []string
		wantOK   bool
	}{
		{"#food #travel", []string{"food", "travel"}, true},
		{"#food", []string{"food"}, true},
		{"#food and more", nil, false},
		{"just some notes", nil, false},
		{"#", nil, false},
		{"", nil, false},
	}

	for _, tc := range tests {
		tags, ok := tagsOnly(tc.text)
		if ok != tc.wantOK {
			t.Errorf("tagsOnly(%q) ok = %v, want %v", tc.text, ok, tc.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if len(tags) != len(tc.wantTags) {
			t.Errorf("tagsOnly(%q) = %v, want %v", tc.text, tags, tc.wantTags)
			continue
		}
		for i := range tags {
			if tags[i] != tc.wantTags[i] {
				t.Errorf("tagsOnly(%q) = %v, want %v", tc.text, tags, tc.wantTags)
				break
			}
		}
	}
}

func TestParseTags(t *testing.T) {
	t.Parallel()

	tags := parseTags("#food travel  #fun")
	want := []string{"food", "travel", "fun"}
	if len(tags) != len(want) {
		t.Fatalf("parseTags = %v, want %v", tags, want)
	}
	for i := range tags {
		if tags[i] != want[i] {
			t.Fatalf("parseTags = %v, want %v", tags, want)
		}
	}
}

func TestTruncateNotes(t *testing.T) {
	t.Parallel()

	short := "some notes"
	if got := truncateNotes(short); got != short {
		t.Fatalf("short notes must pass through, got %q", got)
	}

	long := strings.Repeat("x", maxNotesLength+50)
	if got := truncateNotes(long); len(got) != maxNotesLength {
		t.Fatalf("expected notes capped at %d, got %d", maxNotesLength, len(got))
	}
}

func TestHumanInterval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		secs int64
		want string
	}{
		{0, "disabled"},
		{300, "every 5 minutes"},
		{1800, "every 30 minutes"},
		{3600, "every hour"},
		{14400, "every 4 hours"},
		{86400, "every 24 hours"},
	}

	for _, tc := range tests {
		if got := humanInterval(tc.secs); got != tc.want {
			t.Errorf("humanInterval(%d) = %q, want %q", tc.secs, got, tc.want)
		}
	}
}
