package util

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Brewing Better Coffee", "brewing-better-coffee"},
		{"  Hello,   World!  ", "hello-world"},
		{"already-a-slug", "already-a-slug"},
		{"", ""},
		{"!!!", ""},
	}

	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.want {
			t.Fatalf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this sentence is rather too long", 15, "this sentence…"},
		{"", 5, ""},
		{"whatever", 0, "whatever"},
	}

	for _, tt := range tests {
		if got := Truncate(tt.input, tt.limit); got != tt.want {
			t.Fatalf("Truncate(%q, %d) = %q, want %q", tt.input, tt.limit, got, tt.want)
		}
	}
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"a,b,c", []string{"a", "b", "c"}},
		{`["go", "testing"]`, []string{"go", "testing"}},
		{" spaced , out ", []string{"spaced", "out"}},
	}

	for _, tt := range tests {
		got := ParseTags(tt.input)
		if len(got) != len(tt.want) {
			t.Fatalf("ParseTags(%q) = %v, want %v", tt.input, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("ParseTags(%q) = %v, want %v", tt.input, got, tt.want)
			}
		}
	}
}
