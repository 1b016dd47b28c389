package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func putCompletedSession(t *testing.T, s *Store, id string, totalBytes int64, elapsed time.Duration) {
	t.Helper()
	ctx := context.Background()
	loc := insertTestLocation(t, s, uuid.NewString())
	sess := &ImportSession{
		SessionID:  id,
		LocationID: loc.ID,
		Status:     SessionCompleted,
		TotalBytes: totalBytes,
		Resumable:  false,
	}
	if err := s.PutImportSession(ctx, sess); err != nil {
		t.Fatalf("put import session: %v", err)
	}
	end := nowUTC()
	start := end.Add(-elapsed)
	if _, err := s.DB.ExecContext(ctx,
		`UPDATE import_sessions SET created_at = ?, updated_at = ? WHERE session_id = ?`,
		formatTime(start), formatTime(end), id,
	); err != nil {
		t.Fatalf("backdate session: %v", err)
	}
}

func TestRecentThroughput_AveragesCompletedSessions(t *testing.T) {
	s := openTestStore(t)
	// 100MB in 10s, then 200MB in 10s -> 15MB/s average.
	putCompletedSession(t, s, "sess-1", 100*1024*1024, 10*time.Second)
	putCompletedSession(t, s, "sess-2", 200*1024*1024, 10*time.Second)

	rate, ok, err := s.RecentThroughput(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentThroughput() failed: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true with completed history")
	}
	wantRate := int64(300 * 1024 * 1024 / 20)
	if rate != wantRate {
		t.Errorf("rate = %d, want %d", rate, wantRate)
	}
}

func TestRecentThroughput_IgnoresOlderThanWindow(t *testing.T) {
	s := openTestStore(t)
	putCompletedSession(t, s, "sess-old", 1024*1024*1024, 1*time.Second)
	putCompletedSession(t, s, "sess-new", 10*1024*1024, 10*time.Second)

	rate, ok, err := s.RecentThroughput(context.Background(), 1)
	if err != nil {
		t.Fatalf("RecentThroughput() failed: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	wantRate := int64(10 * 1024 * 1024 / 10)
	if rate != wantRate {
		t.Errorf("rate = %d, want %d (window=1 should only see the most recent session)", rate, wantRate)
	}
}

func TestRecentThroughput_NoHistoryReturnsNotOK(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.RecentThroughput(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentThroughput() failed: %v", err)
	}
	if ok {
		t.Error("expected ok=false with no completed sessions")
	}
}
