package job

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()

	if err := tr.Submit("a", "ENCODING", nil); err != nil {
		t.Fatal(err)
	}
	if st, _ := tr.Get("a"); st.State != "pending" {
		t.Errorf("state = %s, want pending", st.State)
	}
	if err := tr.Submit("a", "ENCODING", nil); !errors.Is(err, ErrJobActive) {
		t.Errorf("expected ErrJobActive on resubmit, got %v", err)
	}

	if err := tr.Begin("a", "ENCODING", nil); err != nil {
		t.Fatal(err)
	}
	if err := tr.Begin("a", "ENCODING", nil); !errors.Is(err, ErrJobActive) {
		t.Errorf("expected ErrJobActive, got %v", err)
	}
	if ids := tr.Active(); len(ids) != 1 || ids[0] != "a" {
		t.Errorf("Active() = %v", ids)
	}

	tr.End("a", nil, errors.New("boom"))
	st, _ := tr.Get("a")
	if st.State != "failed" || st.Error != "boom" {
		t.Errorf("status = %+v", st)
	}

	// a finished id can run again
	if err := tr.Begin("a", "ENCODING", nil); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	tr.End("a", nil, nil)
	if st, _ := tr.Get("a"); st.State != "completed" || st.Error != "" {
		t.Errorf("status = %+v", st)
	}
}

func TestTrackerCancel(t *testing.T) {
	tr := NewTracker()
	ctx, cancel := context.WithCancel(context.Background())

	if err := tr.Begin("b", "DOWNSAMPLING", cancel); err != nil {
		t.Fatal(err)
	}
	if err := tr.Cancel("b"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if ctx.Err() == nil {
		t.Error("cancel func was not called")
	}
	// the id stays taken until the cancelled run ends
	if err := tr.Submit("b", "DOWNSAMPLING", nil); !errors.Is(err, ErrJobActive) {
		t.Errorf("expected ErrJobActive before End, got %v", err)
	}
	if n := tr.Prune(0); n != 0 {
		t.Errorf("pruned %d jobs still stopping", n)
	}
	tr.End("b", ctx.Err(), ctx.Err())
	if st, _ := tr.Get("b"); st.State != "cancelled" {
		t.Errorf("state = %s, want cancelled", st.State)
	}
	if err := tr.Cancel("b"); err == nil {
		t.Error("cancelling twice should fail")
	}
	if err := tr.Submit("b", "DOWNSAMPLING", nil); err != nil {
		t.Errorf("resubmit after End: %v", err)
	}
	if err := tr.Cancel("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestTrackerPrune(t *testing.T) {
	tr := NewTracker()
	tr.Begin("done", "ENCODING", nil)
	tr.End("done", nil, nil)
	tr.Begin("running", "ENCODING", nil)

	time.Sleep(5 * time.Millisecond)
	if n := tr.Prune(time.Millisecond); n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	if _, ok := tr.Get("done"); ok {
		t.Error("finished job survived prune")
	}
	if _, ok := tr.Get("running"); !ok {
		t.Error("active job must never be pruned")
	}
}
