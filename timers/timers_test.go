package timers

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"
)

func running(t *testing.T, max int) (*Timers, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ts := NewTimers(max, nil)
	go ts.Run(ctx)
	if !ts.Wait(time.Second) {
		t.Fatal("timers didn't start running")
	}
	return ts, cancel
}

func TestTimersBasic(t *testing.T) {
	ts, cancel := running(t, 10)
	defer cancel()

	firings := make(chan string, 16)
	f := func(_ context.Context, t *Timer) {
		firings <- t.ID
	}

	add := func(id string, d time.Duration) {
		if err := ts.Add(&Timer{ID: id, At: time.Now().Add(d), F: f}); err != nil {
			t.Fatal(err)
		}
	}

	add("3", 200*time.Millisecond)
	add("2", 100*time.Millisecond)
	add("1", 20*time.Millisecond)
	if err := ts.Rem("2"); err != nil {
		t.Fatal(err)
	}
	add("5", 300*time.Millisecond)
	add("4", 250*time.Millisecond)
	if err := ts.Rem("5"); err != nil {
		t.Fatal(err)
	}
	add("6", 400*time.Millisecond)

	for _, want := range []string{"1", "3", "4", "6"} {
		select {
		case got := <-firings:
			if got != want {
				t.Fatalf("expected %s but got %s", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s didn't fire", want)
		}
	}

	select {
	case got := <-firings:
		t.Fatalf("unexpected %s", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTimersRemovedHeadDoesntFire(t *testing.T) {
	ts, cancel := running(t, 10)
	defer cancel()

	fired := make(chan bool, 1)
	ts.Add(&Timer{
		ID: "x",
		At: time.Now().Add(30 * time.Millisecond),
		F:  func(context.Context, *Timer) { fired <- true },
	})
	if err := ts.Rem("x"); err != nil {
		t.Fatal(err)
	}
	if err := ts.Rem("x"); err != NotFound {
		t.Fatal(err)
	}

	select {
	case <-fired:
		t.Fatal("removed timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTimersLimits(t *testing.T) {
	ts := NewTimers(2, nil)
	if err := ts.Add(&Timer{ID: "a"}); err != NotRunning {
		t.Fatal(err)
	}

	ts, cancel := running(t, 2)
	defer cancel()

	f := func(context.Context, *Timer) {}
	later := time.Now().Add(time.Hour)
	if err := ts.Add(&Timer{ID: "a", At: later, F: f}); err != nil {
		t.Fatal(err)
	}
	if err := ts.Add(&Timer{ID: "a", At: later, F: f}); err != IDExists {
		t.Fatal(err)
	}
	if err := ts.Add(&Timer{ID: "b", At: later.Add(-time.Minute), F: f}); err != nil {
		t.Fatal(err)
	}
	if err := ts.Add(&Timer{ID: "c", At: later, F: f}); err != TooMany {
		t.Fatal(err)
	}
	if p := ts.Pending(); len(p) != 2 || p[0] != "b" {
		t.Fatal(p)
	}
}

func TestTimersRepeat(t *testing.T) {
	ts, cancel := running(t, 10)
	defer cancel()

	var (
		mu sync.Mutex
		n  int
	)
	done := make(chan bool)
	next := func(now time.Time) time.Time {
		mu.Lock()
		defer mu.Unlock()
		if 3 <= n {
			return time.Time{}
		}
		return now.Add(10 * time.Millisecond)
	}
	err := ts.Repeat("tick", next, func(context.Context, *Timer) {
		mu.Lock()
		n++
		if n == 3 {
			close(done)
		}
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("didn't repeat")
	}
	time.Sleep(50 * time.Millisecond)
	if p := ts.Pending(); len(p) != 0 {
		t.Fatal(p)
	}
}

func TestTimersMany(t *testing.T) {
	const n = 50
	ts, cancel := running(t, n)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		err := ts.Add(&Timer{
			ID: strconv.Itoa(i),
			At: time.Now().Add(time.Duration(i%10) * time.Millisecond),
			F:  func(context.Context, *Timer) { wg.Done() },
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	waited := make(chan bool)
	go func() {
		wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal(ts.Pending())
	}
}
