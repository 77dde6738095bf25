package core

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSessionStore_GetUnknownIsEmptyAndNotStored(t *testing.T) {
	s := NewSessionStore(5, 10, time.Hour)
	sess := s.Get("a")
	if len(sess.Transcript) != 0 || len(sess.LastProducts) != 0 || sess.MessageCount != 0 {
		t.Fatalf("expected empty session, got %+v", sess)
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
}

func TestSessionStore_GetReturnsCopy(t *testing.T) {
	s := NewSessionStore(5, 10, time.Hour)
	s.AppendTurn("a", "hi", "hello")
	sess := s.Get("a")
	sess.Transcript[0].User = "mutated"
	if s.Get("a").Transcript[0].User != "hi" {
		t.Fatalf("Get must return an independent copy")
	}
}

func TestSessionStore_ExpiresAfterThreshold(t *testing.T) {
	s := NewSessionStore(3, 10, time.Hour)
	s.SetLastProducts("a", []Candidate{candidate(product(1, "A", "a", 100, 80), ModalityImage)})

	for i := 1; i <= 2; i++ {
		if expired := s.Commit("a", TurnCommit{User: "u", Bot: "b"}); expired {
			t.Fatalf("turn %d should not expire", i)
		}
	}
	if got := s.Get("a"); got.MessageCount != 2 || len(got.Transcript) != 2 || len(got.LastProducts) != 1 {
		t.Fatalf("before expiry: %+v", got)
	}

	if expired := s.Commit("a", TurnCommit{User: "u", Bot: "b"}); !expired {
		t.Fatalf("third turn should expire the session")
	}
	got := s.Get("a")
	if got.MessageCount != 0 || len(got.Transcript) != 0 || len(got.LastProducts) != 0 {
		t.Fatalf("after expiry: %+v", got)
	}
	if s.Len() != 0 {
		t.Fatalf("Len after expiry = %d, want 0", s.Len())
	}

	s.Commit("a", TurnCommit{User: "again", Bot: "b"})
	if got := s.Get("a"); got.MessageCount != 1 || got.Transcript[0].User != "again" {
		t.Fatalf("after restart: %+v", got)
	}
}

func TestSessionStore_ManyExpiringSessionsAreRemoved(t *testing.T) {
	s := NewSessionStore(2, 10, time.Hour)
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("anon-%d", i)
		s.Commit(id, TurnCommit{User: "pp", Bot: "b"})
		s.Commit(id, TurnCommit{User: "pp", Bot: "b"})
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
}

func TestSessionStore_EvictIdle(t *testing.T) {
	s := NewSessionStore(100, 10, time.Hour)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.Commit("old", TurnCommit{User: "u", Bot: "b"})
	clock = clock.Add(50 * time.Minute)
	s.Commit("fresh", TurnCommit{User: "u", Bot: "b"})
	clock = clock.Add(20 * time.Minute)

	if n := s.EvictIdle(); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if s.Len() != 1 || s.Get("fresh").MessageCount != 1 || s.Get("old").MessageCount != 0 {
		t.Fatalf("wrong entry evicted: Len=%d", s.Len())
	}
}

func TestSessionStore_ExpiryRacesWithWriters(t *testing.T) {
	s := NewSessionStore(3, 100, time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Commit("shared", TurnCommit{User: "u", Bot: "b"})
		}()
	}
	wg.Wait()
	// 30 commits expire the session exactly ten times.
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
}

func TestSessionStore_IncrementAndMaybeExpire(t *testing.T) {
	s := NewSessionStore(2, 10, time.Hour)
	if s.IncrementAndMaybeExpire("a") {
		t.Fatalf("first increment should not expire")
	}
	if !s.IncrementAndMaybeExpire("a") {
		t.Fatalf("second increment should expire")
	}
	if s.Get("a").MessageCount != 0 {
		t.Fatalf("counter should reset")
	}
}

func TestSessionStore_TranscriptIsCapped(t *testing.T) {
	s := NewSessionStore(100, 3, time.Hour)
	for i := 0; i < 5; i++ {
		s.AppendTurn("a", fmt.Sprintf("u%d", i), fmt.Sprintf("b%d", i))
	}
	tr := s.Get("a").Transcript
	if len(tr) != 3 || tr[0].User != "u2" || tr[2].User != "u4" {
		t.Fatalf("unexpected transcript: %+v", tr)
	}
}

func TestSessionStore_CommitReplacesProductsOnlyWhenAsked(t *testing.T) {
	s := NewSessionStore(100, 10, time.Hour)
	old := []Candidate{candidate(product(1, "A", "a", 100, 80), ModalityImage)}
	s.SetLastProducts("a", old)

	s.Commit("a", TurnCommit{User: "u", Bot: "b", Products: nil, ReplaceProducts: false})
	if len(s.Get("a").LastProducts) != 1 {
		t.Fatalf("products should be carried forward")
	}

	s.Commit("a", TurnCommit{User: "u", Bot: "b", Products: nil, ReplaceProducts: true})
	if len(s.Get("a").LastProducts) != 0 {
		t.Fatalf("products should be replaced with the empty result")
	}
}

func TestSessionStore_ConcurrentCommitsAreNotLost(t *testing.T) {
	s := NewSessionStore(1000, 1000, time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Commit("shared", TurnCommit{User: fmt.Sprintf("u%d", i), Bot: "b"})
			s.Commit(fmt.Sprintf("own-%d", i), TurnCommit{User: "u", Bot: "b"})
		}(i)
	}
	wg.Wait()

	got := s.Get("shared")
	if got.MessageCount != 50 || len(got.Transcript) != 50 {
		t.Fatalf("lost updates: count=%d transcript=%d", got.MessageCount, len(got.Transcript))
	}
	if s.Len() != 51 {
		t.Fatalf("Len = %d, want 51", s.Len())
	}
}
