package utils

import (
	"testing"
	"time"
)

func TestKeyedMutex_SerialisesPerKey(t *testing.T) {
	k := NewKeyedMutex()
	unlock := k.Lock("a")

	done := make(chan struct{})
	go func() {
		u := k.Lock("b") // other keys are not blocked
		u()
		close(done)
	}()
	<-done

	acquired := make(chan struct{})
	go func() {
		u := k.Lock("a")
		close(acquired)
		u()
	}()
	select {
	case <-acquired:
		t.Fatal("same key acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired

	k.Lock("a")()
	if n := k.held(); n != 0 {
		t.Errorf("expected released entries, got %d", n)
	}
}
