package thread

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
)

// verifyIdle checks that a thread is not blocked anywhere.
func verifyIdle(t *testing.T, th *ThreadState, want Status) {
	t.Helper()
	if th.Status() != want {
		t.Errorf("Status() = %s, want %s", th.Status(), want)
	}
	if th.WaitingOn() != uid.Invalid {
		t.Errorf("WaitingOn() = %s, want %s", th.WaitingOn(), uid.Invalid)
	}
}

// TestNew tests initial thread state.
func TestNew(t *testing.T) {
	th := New(0x41, "main", 160)
	if th.ID != 0x41 || th.Name != "main" {
		t.Errorf("New() = {%s %q}, want {0x41 \"main\"}", th.ID, th.Name)
	}
	if th.Priority() != 160 {
		t.Errorf("Priority() = %d, want 160", th.Priority())
	}
	if !th.Alive() {
		t.Error("Alive() = false, want true")
	}
	verifyIdle(t, th, StatusRunning)

	th.SetPriority(10)
	if th.Priority() != 10 {
		t.Errorf("Priority() after SetPriority = %d, want 10", th.Priority())
	}
}

// TestBlock_Outcomes tests each way a blocked thread resumes.
func TestBlock_Outcomes(t *testing.T) {
	closed := make(chan struct{})
	close(closed)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		ctx     context.Context
		ready   chan struct{}
		timeout time.Duration
		exit    bool
		want    error
	}{
		{"ready", context.Background(), closed, time.Second, false, nil},
		{"ready beats zero timeout", context.Background(), closed, 0, false, nil},
		{"timeout", context.Background(), make(chan struct{}), 5 * time.Millisecond, false, kerr.ErrTimeout},
		{"zero timeout", context.Background(), make(chan struct{}), 0, false, kerr.ErrTimeout},
		{"canceled", canceled, make(chan struct{}), -1, false, kerr.ErrWaitCanceled},
		{"exited", context.Background(), make(chan struct{}), -1, true, kerr.ErrThreadExited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := New(1, "t", 100)
			if tt.exit {
				th.Exit()
			}
			err := th.Block(tt.ctx, 0x99, tt.ready, tt.timeout)
			if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
				t.Errorf("Block() = %v, want %v", err, tt.want)
			}
			if th.WaitingOn() != uid.Invalid {
				t.Errorf("WaitingOn() after Block = %s, want %s", th.WaitingOn(), uid.Invalid)
			}
		})
	}
}

// TestBlock_StatusWhileWaiting tests the status observed by other threads.
func TestBlock_StatusWhileWaiting(t *testing.T) {
	th := New(1, "t", 100)
	ready := make(chan struct{})
	done := make(chan error)

	go func() {
		done <- th.Block(context.Background(), 0x77, ready, -1)
	}()

	deadline := time.Now().Add(time.Second)
	for th.Status() != StatusWaiting {
		if time.Now().After(deadline) {
			t.Fatal("thread never entered StatusWaiting")
		}
		time.Sleep(time.Millisecond)
	}
	if th.WaitingOn() != 0x77 {
		t.Errorf("WaitingOn() = %s, want 0x77", th.WaitingOn())
	}

	close(ready)
	if err := <-done; err != nil {
		t.Fatalf("Block() = %v, want nil", err)
	}
	verifyIdle(t, th, StatusRunning)
}

// TestExit tests teardown of a blocked thread.
func TestExit(t *testing.T) {
	th := New(1, "t", 100)
	done := make(chan error)
	go func() {
		done <- th.Block(context.Background(), 0x5, make(chan struct{}), -1)
	}()

	for th.Status() != StatusWaiting {
		time.Sleep(time.Millisecond)
	}
	th.Exit()
	th.Exit() // idempotent

	if err := <-done; !errors.Is(err, kerr.ErrThreadExited) {
		t.Errorf("Block() after Exit = %v, want ErrThreadExited", err)
	}
	if th.Alive() {
		t.Error("Alive() after Exit = true")
	}
	verifyIdle(t, th, StatusExited)
}

// TestStatus_String tests Status names.
func TestStatus_String(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{StatusRunning, "running"},
		{StatusWaiting, "waiting"},
		{StatusExited, "exited"},
		{Status(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", int32(tt.s), got, tt.want)
		}
	}
}
