package schedule

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	xerrors "VeemFlow-MCP/internal/errors"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	runAt := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	result, err := store.Create(ctx, json.RawMessage(`{"draft_id":"draft-1"}`), runAt, "2026-09-01T09:00:00Z")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Status != string(StatusScheduled) {
		t.Fatalf("unexpected status: %q", result.Status)
	}
	if result.RunAtUTC != "2026-09-01T09:00:00Z" {
		t.Fatalf("unexpected run_at_utc: %q", result.RunAtUTC)
	}

	record, err := store.Get(ctx, result.ScheduleID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(record.Draft) != `{"draft_id":"draft-1"}` {
		t.Fatalf("unexpected draft snapshot: %s", record.Draft)
	}
	if !record.RunAt.Equal(runAt) {
		t.Fatalf("unexpected run time: %v", record.RunAt)
	}
}

func TestMemoryStoreGetUnknownID(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "nope")
	if xerrors.CodeOf(err) != xerrors.CodeStorageFailure {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMemoryStoreListDueOrdersAndFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	late, _ := store.Create(ctx, json.RawMessage(`{}`), now.Add(-time.Minute), "late")
	early, _ := store.Create(ctx, json.RawMessage(`{}`), now.Add(-time.Hour), "early")
	if _, err := store.Create(ctx, json.RawMessage(`{}`), now.Add(time.Hour), "future"); err != nil {
		t.Fatalf("create: %v", err)
	}

	due, err := store.ListDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due records, got %d", len(due))
	}
	if due[0].ID != early.ScheduleID || due[1].ID != late.ScheduleID {
		t.Fatalf("expected earliest first, got %s then %s", due[0].ID, due[1].ID)
	}
}

func TestMemoryStoreDispatchedRecordsLeaveDueSet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	result, _ := store.Create(ctx, json.RawMessage(`{}`), now.Add(-time.Minute), "past")
	if err := store.MarkDispatched(ctx, result.ScheduleID); err != nil {
		t.Fatalf("mark dispatched: %v", err)
	}

	due, err := store.ListDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("dispatched record must not be listed, got %d", len(due))
	}

	record, _ := store.Get(ctx, result.ScheduleID)
	if record.Status != StatusDispatched {
		t.Fatalf("unexpected status: %q", record.Status)
	}
}

func TestMemoryStoreMarkFailedKeepsReason(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	result, _ := store.Create(ctx, json.RawMessage(`{}`), time.Now(), "now")
	if err := store.MarkFailed(ctx, result.ScheduleID, "provider refused"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	record, _ := store.Get(ctx, result.ScheduleID)
	if record.Status != StatusFailed || record.LastError != "provider refused" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestMemoryStoreListDueRespectsLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		if _, err := store.Create(ctx, json.RawMessage(`{}`), now.Add(-time.Minute), "past"); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	due, err := store.ListDue(ctx, now, 2)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(due))
	}
}
