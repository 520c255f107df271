package syncprim

import (
	"errors"
	"testing"
	"time"

	"github.com/kolkov/kernelsync/internal/kernel/thread"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
)

// testTimeout bounds every wait for an asynchronous result.
const testTimeout = 2 * time.Second

// newThread creates a live guest thread.
func newThread(t *testing.T, id uid.UID, prio int32) *thread.ThreadState {
	t.Helper()
	th := thread.New(id, "t"+id.String(), prio)
	t.Cleanup(th.Exit)
	return th
}

// async runs a blocking call on its own goroutine.
func async(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	return ch
}

// recv waits for an async result.
func recv(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(testTimeout):
		t.Fatal("blocked call did not return")
		return nil
	}
}

// verifyPending checks that an async call is still blocked.
func verifyPending(t *testing.T, ch <-chan error) {
	t.Helper()
	select {
	case err := <-ch:
		t.Fatalf("call returned %v, want still blocked", err)
	case <-time.After(20 * time.Millisecond):
	}
}

// waitQueued polls until th is queued on p.
func waitQueued(t *testing.T, p *Primitive, th *thread.ThreadState) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !p.IsWaiting(th) {
		if time.Now().After(deadline) {
			t.Fatalf("thread %s never queued on %s", th.ID, p.UID)
		}
		time.Sleep(time.Millisecond)
	}
}

// wantErr checks err against a sentinel (nil meaning success).
func wantErr(t *testing.T, op string, err, want error) {
	t.Helper()
	if want == nil {
		if err != nil {
			t.Errorf("%s = %v, want nil", op, err)
		}
		return
	}
	if !errors.Is(err, want) {
		t.Errorf("%s = %v, want %v", op, err, want)
	}
}

// uidFor returns a distinct thread UID for worker i.
func uidFor(i int) uid.UID {
	return uid.UID(0x1000 + i)
}
