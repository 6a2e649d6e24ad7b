package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"hrchat/internal/models"
)

func TestGetOrCreateAndAppend(t *testing.T) {
	r := NewRegistry(10, 20)

	s := r.GetOrCreate("s1")
	if s.ID != "s1" {
		t.Fatalf("unexpected session id %q", s.ID)
	}
	if err := r.AppendTurn("s1", models.RoleUser, "hello"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := r.AppendTurn("s1", models.RoleAssistant, "hi"); err != nil {
		t.Fatalf("append: %v", err)
	}

	turns, err := r.Window("s1", 10)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != models.RoleUser || turns[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected roles: %v %v", turns[0].Role, turns[1].Role)
	}
}

func TestAppendUnknownSession(t *testing.T) {
	r := NewRegistry(10, 20)
	if err := r.AppendTurn("nope", models.RoleUser, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWindowReturnsLastN(t *testing.T) {
	r := NewRegistry(10, 20)
	r.GetOrCreate("s1")
	for i := 0; i < 6; i++ {
		if err := r.AppendTurn("s1", models.RoleUser, "m"); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	turns, err := r.Window("s1", 4)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("expected window of 4, got %d", len(turns))
	}
}

func TestHistoryHardCap(t *testing.T) {
	r := NewRegistry(10, 5)
	r.GetOrCreate("s1")
	for i := 0; i < 12; i++ {
		if err := r.AppendTurn("s1", models.RoleUser, "m"); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	stats, err := r.Stats("s1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.MessageCount != 5 {
		t.Fatalf("expected history capped at 5, got %d", stats.MessageCount)
	}
}

func TestResetMintsNewIDAndOldIDIsEmpty(t *testing.T) {
	r := NewRegistry(10, 20)
	r.GetOrCreate("s1")
	if err := r.AppendTurn("s1", models.RoleUser, "hello"); err != nil {
		t.Fatalf("append: %v", err)
	}

	newID := r.Reset("s1")
	if newID == "" || newID == "s1" {
		t.Fatalf("expected a fresh session id, got %q", newID)
	}

	// A frontend that reuses the old id gets an empty conversation back.
	r.GetOrCreate("s1")
	turns, err := r.Window("s1", 10)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected empty history after reset, got %d turns", len(turns))
	}

	stats, err := r.Stats(newID)
	if err != nil {
		t.Fatalf("stats for minted id: %v", err)
	}
	if stats.MessageCount != 0 {
		t.Fatalf("expected fresh session to be empty, got %d", stats.MessageCount)
	}
}

func TestSweepRemovesOnlyStaleSessions(t *testing.T) {
	r := NewRegistry(10, 20)
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	r.GetOrCreate("old")
	clock = clock.Add(3 * time.Hour)
	r.GetOrCreate("fresh")

	removed := r.Sweep(2 * time.Hour)
	if len(removed) != 1 || removed[0] != "old" {
		t.Fatalf("expected only the old session removed, got %v", removed)
	}
	if _, err := r.Stats("old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale session should be gone, got %v", err)
	}
	if _, err := r.Stats("fresh"); err != nil {
		t.Fatalf("fresh session should survive: %v", err)
	}
}

func TestSweepDoesNotBlockOtherSessions(t *testing.T) {
	r := NewRegistry(10, 20)
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	r.GetOrCreate("busy")
	clock = clock.Add(3 * time.Hour)

	// hold the busy session's lock, as a slow completion inside Do would
	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = r.Do("busy", func(h *Handle) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	sweepDone := make(chan []string, 1)
	go func() { sweepDone <- r.Sweep(2 * time.Hour) }()

	created := make(chan struct{})
	go func() {
		r.GetOrCreate("other")
		close(created)
	}()
	select {
	case <-created:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("GetOrCreate for an unrelated session blocked behind the sweep")
	}

	removed := <-sweepDone
	for _, id := range removed {
		if id == "busy" {
			t.Fatalf("sweep removed a session with a turn in flight")
		}
	}
	close(release)
}

func TestCapEvictionWaitsForInFlightTurn(t *testing.T) {
	r := NewRegistry(2, 20)
	var evicted []string
	r.OnEvict(func(id string) { evicted = append(evicted, id) })

	r.GetOrCreate("a")

	entered := make(chan struct{})
	release := make(chan struct{})
	doDone := make(chan error, 1)
	go func() {
		doDone <- r.Do("a", func(h *Handle) error {
			close(entered)
			<-release
			h.Append(models.RoleUser, "still here")
			return nil
		})
	}()
	<-entered

	// "a" was promoted by Do, so adding "b" leaves "a" the eviction victim
	r.GetOrCreate("b")

	created := make(chan struct{})
	go func() {
		r.GetOrCreate("c")
		close(created)
	}()
	select {
	case <-created:
		t.Fatalf("eviction removed a session with a turn in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-created
	if err := <-doDone; err != nil {
		t.Fatalf("do: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("expected a evicted after its turn finished, got %v", evicted)
	}
}

func TestConcurrentAppendsExactCount(t *testing.T) {
	r := NewRegistry(10, 1000)
	r.GetOrCreate("s1")

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := r.AppendTurn("s1", models.RoleUser, "m"); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	stats, err := r.Stats("s1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.MessageCount != n {
		t.Fatalf("expected exactly %d turns, got %d", n, stats.MessageCount)
	}
}

func TestSessionCapEvictsOldestAndFiresHook(t *testing.T) {
	r := NewRegistry(2, 20)
	var evicted []string
	r.OnEvict(func(id string) { evicted = append(evicted, id) })

	r.GetOrCreate("a")
	r.GetOrCreate("b")
	r.GetOrCreate("c")

	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("expected oldest session a evicted, got %v", evicted)
	}
	if _, err := r.Stats("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("evicted session should be gone")
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 live sessions, got %d", r.Len())
	}
}

func TestDoSpansSelectAndAppend(t *testing.T) {
	r := NewRegistry(10, 20)
	r.GetOrCreate("s1")

	err := r.Do("s1", func(h *Handle) error {
		h.Append(models.RoleUser, "question")
		h.Append(models.RoleAssistant, "answer")
		if got := len(h.Window(10)); got != 2 {
			t.Fatalf("expected 2 turns inside Do, got %d", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}

	if err := r.Do("missing", func(h *Handle) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown session, got %v", err)
	}
}
