package textmatch

import "testing"

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Whole Foods  ", "whole foods"},
		{"CAFÉ MÜNCHEN", "cafe munchen"},
		{"already lower", "already lower"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("POS PURCHASE STARBUCKS #123")
	want := []string{"pos", "purchase", "starbucks", "123"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTokenOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"starbucks"}, []string{"starbucks"}, 1},
		{"subset", []string{"pos", "purchase", "starbucks"}, []string{"starbucks"}, 1},
		{"disjoint", []string{"target"}, []string{"starbucks"}, 0},
		{"half of smaller", []string{"coffee", "bean"}, []string{"coffee", "shop"}, 0.5},
		{"empty", nil, []string{"x"}, 0},
		{"repeated tokens count once", []string{"a", "a", "b"}, []string{"a"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokenOverlap(tt.a, tt.b); got != tt.want {
				t.Errorf("TokenOverlap(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"starbucks", "starbucks", 0},
		{"starbucks 123", "starbucks 124", 1},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		atLeast float64
		below   float64
	}{
		{"identical after fold", "Whole Foods", "WHOLE FOODS", 1, 1.1},
		{"reference number drift", "STARBUCKS STORE #123", "STARBUCKS STORE #129", 0.9, 1},
		{"reordered tokens", "AMZN MKTP US", "US AMZN MKTP", 1, 1.1},
		{"unrelated", "SHELL OIL", "NETFLIX.COM", 0, 0.5},
		{"empty side", "", "anything", 0, 0.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if got < tt.atLeast || got >= tt.below {
				t.Errorf("Similarity(%q, %q) = %v, want [%v, %v)", tt.a, tt.b, got, tt.atLeast, tt.below)
			}
		})
	}
}
