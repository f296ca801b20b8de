// Package tassert provides common assertions for tests.
package tassert

import (
	"sync"
	"testing"
)

var (
	fatalities = make(map[string]bool)
	mu         sync.Mutex
)

func CheckFatal(t *testing.T, err error) {
	if err == nil {
		return
	}
	mu.Lock()
	if fatalities[t.Name()] {
		mu.Unlock()
		t.Logf("skipping %s, already fatal", t.Name())
	} else {
		fatalities[t.Name()] = true
		mu.Unlock()
		t.Fatalf("FATAL: %v", err)
	}
}

func CheckError(t *testing.T, err error) {
	if err != nil {
		t.Errorf("ERROR: %v", err)
	}
}

func Errorf(t *testing.T, cond bool, format string, args ...interface{}) {
	if !cond {
		t.Errorf(format, args...)
	}
}

func Fatalf(t *testing.T, cond bool, format string, args ...interface{}) {
	if !cond {
		t.Fatalf(format, args...)
	}
}
