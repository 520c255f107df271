// stress.go implements the 'kernelsync stress' command.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kolkov/kernelsync/kernel"
)

const (
	// vsyncInterval is the stress timer period in ticks.
	vsyncInterval = 16

	// vsyncFrames is how many timer fires the vsync thread waits for.
	vsyncFrames = 3

	// tickPeriod is the wall-clock time between two emulated ticks.
	tickPeriod = time.Millisecond
)

// stressCommand implements the 'kernelsync stress' command.
//
// Flow:
//  1. Resolve configuration (file, environment, flags)
//  2. Create the registry, the primitives and the guest threads
//  3. Run the workers, the vsync thread and the tick source concurrently
//  4. Verify the results and print the report with the final registry
//
// Example:
//
//	kernelsync stress -threads 16 -iterations 2000
func stressCommand(args []string) {
	cli, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := cli.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	report, err := runStress(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stress failed: %v\n", err)
		os.Exit(1)
	}

	out, err := yaml.Marshal(report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(out)
}

// stressReport is the outcome of one stress run.
type stressReport struct {
	Workers    int             `yaml:"workers"`
	Iterations int             `yaml:"iterations"`
	Counter    int64           `yaml:"counter"`
	PoolLimit  int32           `yaml:"pool_limit"`
	PoolPeak   int32           `yaml:"pool_peak"`
	Frames     int             `yaml:"frames"`
	Timeouts   int64           `yaml:"timeouts"`
	Flags      uint32          `yaml:"flags"`
	Elapsed    time.Duration   `yaml:"elapsed"`
	State      kernel.Snapshot `yaml:"state"`
}

// stressRig holds the objects every stress thread shares.
type stressRig struct {
	mutex   *kernel.Mutex
	cond    *kernel.Condvar
	pool    *kernel.Semaphore
	done    *kernel.EventFlag
	vsync   *kernel.Timer
	timeout time.Duration

	// counter is guarded by mutex.
	counter int64

	inUse    atomic.Int32
	peak     atomic.Int32
	timeouts atomic.Int64
}

// runStress runs the workload described by cfg.Stress.
//
// Each worker thread repeatedly takes a unit from a bounded semaphore pool,
// then increments a counter under the kernel mutex and broadcasts the
// condvar. The main thread waits on the condvar until every increment has
// landed and then on the event flag every worker sets when it finishes. A
// vsync thread waits on a repeating timer driven by a tick goroutine.
func runStress(ctx context.Context, cfg kernel.Config) (*stressReport, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := kernel.New(cfg)
	s.SetBaseTick(0)

	rig, err := newStressRig(s, cfg)
	if err != nil {
		return nil, err
	}

	mainThread, err := s.CreateThread("main", cfg.MainThreadPriority)
	if err != nil {
		return nil, err
	}

	workers := cfg.Stress.Threads
	iterations := cfg.Stress.Iterations
	var doneMask uint32
	threads := make([]*kernel.Thread, workers)
	for i := range threads {
		prio := min(cfg.MainThreadPriority+int32(i%8), kernel.MaxPriority)
		t, err := s.CreateThread(fmt.Sprintf("worker_%d", i), prio)
		if err != nil {
			return nil, err
		}
		threads[i] = t
		doneMask |= workerBit(i)
	}
	vs, err := s.CreateThread("vsync", cfg.MainThreadPriority)
	if err != nil {
		return nil, err
	}

	errs := make(chan error, workers+1)
	fail := func(err error) {
		errs <- err
		cancel()
	}

	// Tick source
	stopTicks := make(chan struct{})
	var ticks sync.WaitGroup
	ticks.Add(1)
	go func() {
		defer ticks.Done()
		ticker := time.NewTicker(tickPeriod)
		defer ticker.Stop()
		var tick uint64
		for {
			select {
			case <-stopTicks:
				return
			case <-ticker.C:
				tick++
				s.AdvanceTimers(tick)
			}
		}
	}()

	// Vsync thread
	frames := 0
	var vsyncDone sync.WaitGroup
	vsyncDone.Add(1)
	go func() {
		defer vsyncDone.Done()
		n, err := rig.waitFrames(ctx, vs, vsyncFrames)
		frames = n
		if err != nil {
			fail(fmt.Errorf("vsync: %w", err))
		}
	}()

	// Workers
	var wg sync.WaitGroup
	for i, t := range threads {
		wg.Add(1)
		go func(i int, t *kernel.Thread) {
			defer wg.Done()
			if err := rig.work(ctx, t, iterations); err != nil {
				fail(fmt.Errorf("%s: %w", t.Name, err))
				return
			}
			if err := rig.done.Set(workerBit(i)); err != nil {
				fail(err)
			}
		}(i, t)
	}

	total := int64(workers) * int64(iterations)
	watchErr := rig.awaitCounter(ctx, mainThread, total)
	var flags uint32
	if watchErr == nil {
		flags, watchErr = rig.awaitFlags(ctx, mainThread, doneMask)
	}
	if watchErr != nil {
		cancel()
	}

	wg.Wait()
	vsyncDone.Wait()
	close(stopTicks)
	ticks.Wait()

	close(errs)
	if err, ok := <-errs; ok {
		return nil, err
	}
	if watchErr != nil {
		return nil, fmt.Errorf("main: %w", watchErr)
	}

	for _, t := range append(threads, vs) {
		if err := s.ExitThread(t.ID); err != nil {
			return nil, err
		}
	}

	report := &stressReport{
		Workers:    workers,
		Iterations: iterations,
		Counter:    rig.counter,
		PoolLimit:  rig.pool.Max(),
		PoolPeak:   rig.peak.Load(),
		Frames:     frames,
		Timeouts:   rig.timeouts.Load(),
		Flags:      flags,
		Elapsed:    time.Since(start).Round(time.Millisecond),
		State:      s.Snapshot(),
	}
	if report.Counter != total {
		return report, fmt.Errorf("counter = %d, want %d", report.Counter, total)
	}
	if report.PoolPeak > report.PoolLimit {
		return report, fmt.Errorf("pool peak %d exceeds limit %d", report.PoolPeak, report.PoolLimit)
	}
	return report, nil
}

func newStressRig(s *kernel.State, cfg kernel.Config) (*stressRig, error) {
	limit := int32(max(cfg.Stress.Threads/2, 1))
	timeout := cfg.Stress.WaitTimeout
	if timeout == 0 {
		timeout = kernel.Forever
	}

	mid, err := s.CreateMutex("stress_mutex", 0, 0, kernel.NoOwner)
	if err != nil {
		return nil, err
	}
	cid, err := s.CreateCondvar("stress_cond", 0, mid)
	if err != nil {
		return nil, err
	}
	sid, err := s.CreateSemaphore("stress_pool", kernel.AttrNoSaturate, limit, limit)
	if err != nil {
		return nil, err
	}
	fid, err := s.CreateEventFlag("stress_done", 0, 0)
	if err != nil {
		return nil, err
	}
	tid, err := s.CreateTimer("stress_vsync", kernel.TimerAttributes{
		Thread: kernel.TimerThreadPriority,
		Notify: kernel.TimerNotifyAll,
		Reset:  kernel.TimerResetAutomatic,
	})
	if err != nil {
		return nil, err
	}

	rig := &stressRig{timeout: timeout}
	if rig.mutex, err = s.FindMutex(mid); err != nil {
		return nil, err
	}
	if rig.cond, err = s.FindCondvar(cid); err != nil {
		return nil, err
	}
	if rig.pool, err = s.FindSemaphore(sid); err != nil {
		return nil, err
	}
	if rig.done, err = s.FindEventFlag(fid); err != nil {
		return nil, err
	}
	if rig.vsync, err = s.FindTimer(tid); err != nil {
		return nil, err
	}
	if err := rig.vsync.SetEvent(vsyncInterval, true); err != nil {
		return nil, err
	}
	if _, err := rig.vsync.Start(0); err != nil {
		return nil, err
	}
	return rig, nil
}

// workerBit is the event flag bit worker i sets when it finishes.
func workerBit(i int) uint32 {
	return 1 << (i % 32)
}

// work runs one worker's iterations.
func (r *stressRig) work(ctx context.Context, t *kernel.Thread, iterations int) error {
	for range iterations {
		if err := r.usePool(ctx, t); err != nil {
			return err
		}
		if err := r.mutex.Lock(ctx, t, kernel.Forever); err != nil {
			return err
		}
		r.counter++
		if _, err := r.cond.Signal(kernel.SignalAll()); err != nil {
			_ = r.mutex.Unlock(t)
			return err
		}
		if err := r.mutex.Unlock(t); err != nil {
			return err
		}
	}
	return nil
}

// usePool takes one unit of the pool, records the occupancy and returns it.
func (r *stressRig) usePool(ctx context.Context, t *kernel.Thread) error {
	for {
		err := r.pool.Wait(ctx, t, 1, r.timeout)
		if err == nil {
			break
		}
		if !errors.Is(err, kernel.ErrTimeout) {
			return err
		}
		r.timeouts.Add(1)
	}

	n := r.inUse.Add(1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	r.inUse.Add(-1)
	return r.pool.Signal(1)
}

// awaitCounter blocks t on the condvar until counter reaches total.
func (r *stressRig) awaitCounter(ctx context.Context, t *kernel.Thread, total int64) error {
	if err := r.mutex.Lock(ctx, t, kernel.Forever); err != nil {
		return err
	}
	for r.counter < total {
		err := r.cond.Wait(ctx, t, r.timeout)
		if err == nil {
			continue
		}
		if errors.Is(err, kernel.ErrTimeout) {
			r.timeouts.Add(1)
			continue
		}
		if r.mutex.Owner() == t {
			_ = r.mutex.Unlock(t)
		}
		return err
	}
	return r.mutex.Unlock(t)
}

// awaitFlags blocks t until every bit of mask is set, clearing the flags.
func (r *stressRig) awaitFlags(ctx context.Context, t *kernel.Thread, mask uint32) (uint32, error) {
	for {
		flags, err := r.done.Wait(ctx, t, mask, kernel.WaitAnd|kernel.WaitClearAll, r.timeout)
		if err == nil {
			return flags, nil
		}
		if !errors.Is(err, kernel.ErrTimeout) {
			return 0, err
		}
		r.timeouts.Add(1)
	}
}

// waitFrames blocks t on the vsync timer until it has seen n fires.
func (r *stressRig) waitFrames(ctx context.Context, t *kernel.Thread, n int) (int, error) {
	frames := 0
	for frames < n {
		err := r.vsync.Wait(ctx, t, r.timeout)
		switch {
		case err == nil:
			frames++
		case errors.Is(err, kernel.ErrTimeout):
			r.timeouts.Add(1)
		default:
			return frames, err
		}
	}
	return frames, nil
}
