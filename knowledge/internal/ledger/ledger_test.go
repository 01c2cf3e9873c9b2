package ledger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/hazyhaar/kbase/dbopen"
	"github.com/hazyhaar/kbase/knowledge/internal/store"

	_ "modernc.org/sqlite"
)

func setup(t *testing.T) (*Ledger, *store.Store, *bytes.Buffer) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	st := store.NewStore(db)
	if err := st.InsertSource(context.Background(), &store.Source{ID: "s1", Name: "s"}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return New(st, logger), st, &buf
}

func TestAppend_AssignsIDAndOrders(t *testing.T) {
	// WHAT: Appends get ULIDs; same-millisecond rows list newest first.
	// WHY: History is read as "what happened most recently".
	l, _, _ := setup(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		e := &store.FetchHistoryEntry{SourceID: "s1", FetchedAt: 1000, Status: store.HistorySuccess}
		if !l.Append(ctx, e) {
			t.Fatal("append failed")
		}
		if len(e.ID) != 26 {
			t.Fatalf("id not a ULID: %q", e.ID)
		}
		ids = append(ids, e.ID)
	}
	got, err := l.ListForSource(ctx, "s1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != ids[2] || got[2].ID != ids[0] {
		t.Fatalf("order: got %v, appended %v", got, ids)
	}
}

func TestListForSource_DefaultLimit(t *testing.T) {
	l, _, _ := setup(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		l.Append(ctx, &store.FetchHistoryEntry{SourceID: "s1", FetchedAt: int64(i), Status: store.HistoryFailed})
	}
	got, err := l.ListForSource(ctx, "s1", -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != DefaultLimit {
		t.Fatalf("got %d entries, want %d", len(got), DefaultLimit)
	}
	if got[0].FetchedAt != 14 {
		t.Errorf("newest first: got fetched_at %d", got[0].FetchedAt)
	}
}

func TestAppend_SwallowsErrors(t *testing.T) {
	// WHAT: A failing insert is logged, not returned.
	// WHY: History loss must never fail a fetch.
	l, _, logs := setup(t)
	ok := l.Append(context.Background(), &store.FetchHistoryEntry{SourceID: "unknown", FetchedAt: 1, Status: store.HistorySuccess})
	if ok {
		t.Fatal("append to unknown source should fail the foreign key")
	}
	if !strings.Contains(logs.String(), "ledger: append failed") {
		t.Errorf("missing log line: %q", logs.String())
	}
}
