// Package sha256 includes tests for the SHA-256 digest helper.
package sha256

import "testing"

// TestHexSumDeterministic ensures repeated hashing yields the same digest.
func TestHexSumDeterministic(t *testing.T) {
	t.Parallel()

	got := HexSum([]byte("hello world"))
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if again := HexSum([]byte("hello world")); again != got {
		t.Fatalf("expected deterministic digest, got %s vs %s", got, again)
	}
}
