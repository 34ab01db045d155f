package stats

import (
	"sync"
	"testing"
)

func TestJobStats_Counters(t *testing.T) {
	s := NewJobStats()

	s.RecordSuccess()
	s.RecordSuccess()
	s.RecordFailure()
	s.RecordRetry()

	if got := s.Succeeded(); got != 2 {
		t.Errorf("expected 2 succeeded, got %d", got)
	}
	if got := s.Failed(); got != 1 {
		t.Errorf("expected 1 failed, got %d", got)
	}
	if got := s.Retried(); got != 1 {
		t.Errorf("expected 1 retried, got %d", got)
	}
	if got := s.Total(); got != 3 {
		t.Errorf("expected total 3, got %d", got)
	}
}

func TestJobStats_Reset(t *testing.T) {
	s := NewJobStats()
	s.RecordSuccess()
	s.RecordFailure()
	s.RecordRetry()

	s.Reset()

	if s.Total() != 0 || s.Retried() != 0 {
		t.Errorf("expected all counters zero after reset, got %s", s.String())
	}
}

func TestJobStats_String(t *testing.T) {
	s := NewJobStats()
	s.RecordSuccess()

	want := "succeeded=1 failed=0 retried=0 total=1"
	if got := s.String(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestJobStats_Concurrent(t *testing.T) {
	s := NewJobStats()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordSuccess()
			s.RecordRetry()
		}()
	}
	wg.Wait()

	if got := s.Succeeded(); got != 50 {
		t.Errorf("expected 50 succeeded, got %d", got)
	}
	if got := s.Retried(); got != 50 {
		t.Errorf("expected 50 retried, got %d", got)
	}
}
