package kernel_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/kolkov/kernelsync/kernel"
)

// Example demonstrates a recursive mutex held by one guest thread.
func Example() {
	s := kernel.New(kernel.DefaultConfig())
	main, _ := s.CreateThread("main", 160)

	id, _ := s.CreateMutex("render", 0, 0, kernel.NoOwner)
	m, _ := s.FindMutex(id)

	ctx := context.Background()
	_ = m.Lock(ctx, main, kernel.Forever)
	_ = m.Lock(ctx, main, kernel.Forever)
	fmt.Println(m.LockCount())

	_ = m.Unlock(main)
	_ = m.Unlock(main)
	fmt.Println(m.Owner() == nil)

	// Output:
	// 2
	// true
}

// Example_semaphore demonstrates polling a semaphore.
func Example_semaphore() {
	s := kernel.New(kernel.DefaultConfig())

	id, _ := s.CreateSemaphore("frames", 0, 1, 2)
	sema, _ := s.FindSemaphore(id)

	fmt.Println(sema.Poll(1))
	err := sema.Poll(1)
	fmt.Println(errors.Is(err, kernel.ErrWouldBlock))

	// Output:
	// <nil>
	// true
}

// Example_deletion shows that handles go stale once deleted.
func Example_deletion() {
	s := kernel.New(kernel.DefaultConfig())

	id, _ := s.CreateEventFlag("vblank", 0, 0)
	f, _ := s.FindEventFlag(id)
	_ = s.DeleteEventFlag(id)

	fmt.Println(errors.Is(f.Set(0x1), kernel.ErrInvalidHandle))
	_, err := s.FindEventFlag(id)
	fmt.Println(errors.Is(err, kernel.ErrInvalidHandle))

	// Output:
	// true
	// true
}
