package main

import (
	"testing"
	"time"
)

func TestTestEmail(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	if got, want := testEmail(now), "test1700000000123@example.com"; got != want {
		t.Fatalf("testEmail = %q, want %q", got, want)
	}
	if testEmail(now) == testEmail(now.Add(time.Millisecond)) {
		t.Fatal("expected distinct emails one millisecond apart")
	}
}
