package util

import (
	"math"
	"testing"
)

func TestFiniteAndClamp(t *testing.T) {
	if Finite(math.NaN()) != 0 || Finite(math.Inf(1)) != 0 || Finite(1.5) != 1.5 {
		t.Fatalf("finite guard broken")
	}
	if Clamp(3, -2, 2) != 2 || Clamp(-3, -2, 2) != -2 || Clamp(0.5, -2, 2) != 0.5 {
		t.Fatalf("clamp broken")
	}
	if Round(1.23456, 2) != 1.23 {
		t.Fatalf("round broken: %v", Round(1.23456, 2))
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("  hello world  ", 8); got != "hello..." {
		t.Fatalf("unexpected %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
}
