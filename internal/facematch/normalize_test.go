package facematch

import "testing"

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Honza", "Honza"},
		{"Jiří", "Jiri"},
		{"café", "cafe"},
		{"naïve", "naive"},
		{"hello", "hello"},
		{"Žluťoučký kůň", "Zlutoucky kun"},
		{"สมชาย ใจดี", "สมชาย ใจดี"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := RemoveDiacritics(tt.input)
			if result != tt.expected {
				t.Errorf("RemoveDiacritics(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizePersonName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jan Novák", "jan novak"},
		{"jan-novak", "jan novak"},
		{"JOHN DOE", "john doe"},
		{"jan-novák", "jan novak"},
		{"  Somchai   Jaidee ", "somchai jaidee"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizePersonName(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizePersonName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNameMatches(t *testing.T) {
	tests := []struct {
		query string
		names []string
		want  bool
	}{
		{"novak", []string{"Jan Novák"}, true},
		{"ใจดี", []string{"สมชาย ใจดี", "Somchai Jaidee"}, true},
		{"JAIDEE", []string{"สมชาย ใจดี", "Somchai Jaidee"}, true},
		{"smith", []string{"Somchai Jaidee"}, false},
		{"", []string{"anyone"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := NameMatches(tt.query, tt.names...); got != tt.want {
				t.Errorf("NameMatches(%q, %v) = %v, want %v", tt.query, tt.names, got, tt.want)
			}
		})
	}
}
