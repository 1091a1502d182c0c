package textutil

import "testing"

func TestClean(t *testing.T) {
	cases := map[string]string{
		"  Recycling   Centre \n": "Recycling Centre",
		"one\ttwo":                "one two",
		"":                        "",
	}
	for input, expected := range cases {
		if got := Clean(input); got != expected {
			t.Fatalf("Clean(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestCanonicalKey(t *testing.T) {
	if CanonicalKey(" Cleanaway  Laverton ") != CanonicalKey("cleanaway laverton") {
		t.Fatal("keys should be case and whitespace insensitive")
	}
	if CanonicalKey("a b") == CanonicalKey("ab c") {
		t.Fatal("different strings should produce different keys")
	}
}
