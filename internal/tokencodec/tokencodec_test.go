package tokencodec

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestRoundTripVariousLengths(t *testing.T) {
	lengths := []int{0, 1, 100, 3583, 3584, 3585, 7000, 64 * 1024}
	for _, n := range lengths {
		data := make([]byte, n)
		if _, err := rand.Read(data); err != nil {
			t.Fatalf("rand.Read: %v", err)
		}
		parts := Split(data, DefaultChunkSize)
		got := Join(parts)
		if !bytes.Equal(got, data) {
			t.Fatalf("round trip mismatch for length %d", n)
		}
	}
}

func TestSplitOrderPreserving(t *testing.T) {
	data := []byte("abcdefghijklmnopqrstuvwxyz")
	parts := Split(data, 5)
	want := []string{"abcde", "fghij", "klmno", "pqrst", "uvwxy", "z"}
	if len(parts) != len(want) {
		t.Fatalf("len(parts) = %d, want %d", len(parts), len(want))
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Fatalf("parts[%d] = %q, want %q", i, parts[i], want[i])
		}
	}
}

func TestJoinEmpty(t *testing.T) {
	if got := Join(nil); len(got) != 0 {
		t.Fatalf("Join(nil) = %q, want empty", got)
	}
}
