package service

import (
	"errors"
	"testing"

	"github.com/cardpulse/cardpulse/internal/domain"
)

func TestJobRegistry_MutualExclusion(t *testing.T) {
	r := NewJobRegistry()

	ctx, err := r.Acquire("job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx == nil {
		t.Fatal("expected run context")
	}
	if r.ActiveJobID() != "job-1" {
		t.Errorf("active = %q, want job-1", r.ActiveJobID())
	}

	if _, err := r.Acquire("job-2"); !errors.Is(err, domain.ErrJobAlreadyRunning) {
		t.Errorf("second acquire = %v, want ErrJobAlreadyRunning", err)
	}

	r.Release("job-1")
	if r.ActiveJobID() != "" {
		t.Errorf("slot not freed after release")
	}
	if _, err := r.Acquire("job-2"); err != nil {
		t.Errorf("acquire after release = %v", err)
	}
}

func TestJobRegistry_ReleaseWithStaleIDIsNoop(t *testing.T) {
	r := NewJobRegistry()

	if _, err := r.Acquire("job-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.Release("job-other")
	if r.ActiveJobID() != "job-1" {
		t.Errorf("stale release freed the slot")
	}
}

func TestJobRegistry_Cancel(t *testing.T) {
	r := NewJobRegistry()

	ctx, err := r.Acquire("job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Cancel("job-other") {
		t.Error("cancel with wrong ID reported success")
	}
	select {
	case <-ctx.Done():
		t.Fatal("context canceled by wrong-ID cancel")
	default:
	}

	if !r.Cancel("job-1") {
		t.Fatal("cancel with active ID reported failure")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("context not canceled")
	}

	// The slot stays held until the run itself releases it.
	if r.ActiveJobID() != "job-1" {
		t.Errorf("cancel freed the slot before release")
	}
}
