package task

import (
	"testing"
)

func TestGoWait(t *testing.T) {
	release := make(chan struct{})
	h := Go(func() int {
		<-release
		return 42
	})

	if h.Done() {
		t.Fatal("task should still be running")
	}
	close(release)

	if got := h.Wait(); got != 42 {
		t.Errorf("Wait() = %d, want 42", got)
	}
	if !h.Done() {
		t.Error("Done should be true after Wait")
	}
	// Joining twice returns the same result
	if got := h.Wait(); got != 42 {
		t.Errorf("second Wait() = %d, want 42", got)
	}
}

func TestRunCompletesInline(t *testing.T) {
	ran := false
	h := Run(func() string {
		ran = true
		return "ok"
	})
	if !ran || !h.Done() {
		t.Fatal("Run should complete before returning")
	}
	if h.Wait() != "ok" {
		t.Error("unexpected result")
	}
}

func TestPanicSurfacesOnWait(t *testing.T) {
	h := Go(func() int {
		panic("boom")
	})

	defer func() {
		r := recover()
		pe, ok := r.(*PanicError)
		if !ok {
			t.Fatalf("expected *PanicError, got %T", r)
		}
		if pe.Value != "boom" {
			t.Errorf("panic value = %v, want boom", pe.Value)
		}
	}()
	h.Wait()
}
