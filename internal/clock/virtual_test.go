package clock

import (
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// The gating windows the realtime pipeline runs on. The virtual clock
// exists so tests can cross them without sleeping.
const (
	turnWindow = 10 * time.Second
	voteTTL    = 24 * time.Hour
)

func TestVirtualClockStartsAtGivenTime(t *testing.T) {
	vc := NewVirtualClock(epoch)
	if got := vc.Now(); !got.Equal(epoch) {
		t.Errorf("Now() = %v, want %v", got, epoch)
	}
}

func TestVirtualClockAdvanceAccumulates(t *testing.T) {
	vc := NewVirtualClock(epoch)
	vc.Advance(turnWindow)
	vc.Advance(turnWindow)

	want := epoch.Add(2 * turnWindow)
	if got := vc.Now(); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}

func TestVirtualClockSinceMeasuresVirtualTime(t *testing.T) {
	vc := NewVirtualClock(epoch)
	flagged := vc.Now()
	vc.Advance(turnWindow / 2)

	if got := vc.Since(flagged); got != turnWindow/2 {
		t.Errorf("Since() = %v, want %v", got, turnWindow/2)
	}
}

func TestVirtualClockSetJumpsPastVoteTTL(t *testing.T) {
	vc := NewVirtualClock(epoch)
	target := epoch.Add(voteTTL + time.Hour)
	vc.Set(target)

	if got := vc.Now(); !got.Equal(target) {
		t.Errorf("Now() after Set = %v, want %v", got, target)
	}
}

func TestVirtualClockRejectsTimeTravel(t *testing.T) {
	t.Run("negative advance", func(t *testing.T) {
		vc := NewVirtualClock(epoch)
		defer func() {
			if recover() == nil {
				t.Error("Advance(-1s) should panic")
			}
		}()
		vc.Advance(-time.Second)
	})

	t.Run("set into the past", func(t *testing.T) {
		vc := NewVirtualClock(epoch)
		vc.Advance(time.Hour)
		defer func() {
			if recover() == nil {
				t.Error("Set into the past should panic")
			}
		}()
		vc.Set(epoch)
	})
}

func TestVirtualClockAfterFiresOnceDeadlineReached(t *testing.T) {
	vc := NewVirtualClock(epoch)
	expired := vc.After(turnWindow)

	vc.Advance(turnWindow - time.Millisecond)
	select {
	case <-expired:
		t.Fatal("window fired before its deadline")
	default:
	}

	vc.Advance(time.Millisecond)
	select {
	case got := <-expired:
		if want := epoch.Add(turnWindow); !got.Equal(want) {
			t.Errorf("fired at %v, want %v", got, want)
		}
	default:
		t.Fatal("window did not fire at its deadline")
	}
}

func TestVirtualClockAfterFiresOnSet(t *testing.T) {
	vc := NewVirtualClock(epoch)
	expired := vc.After(voteTTL)

	vc.Set(epoch.Add(voteTTL))
	select {
	case <-expired:
	default:
		t.Fatal("Set to the deadline should fire the waiter")
	}
}

func TestVirtualClockAfterZeroFiresImmediately(t *testing.T) {
	vc := NewVirtualClock(epoch)
	select {
	case <-vc.After(0):
	default:
		t.Fatal("After(0) should fire without an advance")
	}
}

func TestVirtualClockIndependentWindows(t *testing.T) {
	// A turn throttle and a vote flag opened together expire on their own
	// schedules.
	vc := NewVirtualClock(epoch)
	turnDone := vc.After(turnWindow)
	voteDone := vc.After(voteTTL)

	vc.Advance(turnWindow)
	select {
	case <-turnDone:
	default:
		t.Error("turn window should have expired")
	}
	select {
	case <-voteDone:
		t.Error("vote flag expired with the turn window")
	default:
	}

	vc.Advance(voteTTL)
	select {
	case <-voteDone:
	default:
		t.Error("vote flag should have expired by now")
	}
}

func TestVirtualClockConcurrentReadersAndAdvancer(t *testing.T) {
	vc := NewVirtualClock(epoch)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = vc.Now()
			_ = vc.Since(epoch)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			vc.Advance(time.Millisecond)
		}
	}()
	wg.Wait()

	if got, want := vc.Now(), epoch.Add(200*time.Millisecond); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}

func TestClockImplementations(t *testing.T) {
	var _ Clock = NewRealClock()
	var _ Clock = NewVirtualClock(epoch)
}
