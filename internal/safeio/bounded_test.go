package safeio

import (
	"strings"
	"testing"
)

func TestBoundedReadWithinLimit(t *testing.T) {
	data := strings.Repeat("a", 100)
	got, err := BoundedRead(strings.NewReader(data), 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != data {
		t.Errorf("got %d bytes, want %d", len(got), len(data))
	}
}

func TestBoundedReadExceedsLimit(t *testing.T) {
	data := strings.Repeat("a", 1000)
	_, err := BoundedRead(strings.NewReader(data), 100)
	if err == nil {
		t.Fatal("expected SizeExceeded error")
	}
}

func TestBoundedReadExactLimit(t *testing.T) {
	data := strings.Repeat("b", 64)
	got, err := BoundedRead(strings.NewReader(data), 64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 64 {
		t.Errorf("got %d bytes, want 64", len(got))
	}
}
