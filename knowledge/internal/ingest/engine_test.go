package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/kbase/dbopen"
	"github.com/hazyhaar/kbase/knowledge/internal/fetch"
	"github.com/hazyhaar/kbase/knowledge/internal/kerr"
	"github.com/hazyhaar/kbase/knowledge/internal/ledger"
	"github.com/hazyhaar/kbase/knowledge/internal/normalize"
	"github.com/hazyhaar/kbase/knowledge/internal/store"

	_ "modernc.org/sqlite"
)

func noopValidator(_ string) error { return nil }

type harness struct {
	st      *store.Store
	engine  *Engine
	changes atomic.Int32
}

func newHarness(t *testing.T, tiers ...fetch.Strategy) *harness {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	h := &harness{st: store.NewStore(db)}
	if len(tiers) == 0 {
		tiers = []fetch.Strategy{fetch.NewDirect(fetch.Config{URLValidator: noopValidator})}
	}
	h.engine = NewEngine(h.st, ledger.New(h.st, nil), fetch.NewChain(nil, tiers...), normalize.New(false), Options{
		Timeout:  2 * time.Second,
		OnChange: func() { h.changes.Add(1) },
	})
	return h
}

func (h *harness) add(t *testing.T, src *store.Source) {
	t.Helper()
	if err := h.st.InsertSource(context.Background(), src); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) history(t *testing.T, id string) []*store.FetchHistoryEntry {
	t.Helper()
	got, err := h.st.ListHistory(context.Background(), id, 100)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func serve(t *testing.T, fn http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(fn)
	t.Cleanup(srv.Close)
	return srv
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		max   int
		want  string
		trunc bool
	}{
		{"abc", 3, "abc", false},
		{"abcd", 3, "abc" + TruncationMarker, true},
		{"åäöü", 2, "åä" + TruncationMarker, true},
		{"abc", 0, "abc", false},
		{"", 5, "", false},
	}
	for _, tc := range tests {
		got, trunc := Truncate(tc.in, tc.max)
		if got != tc.want || trunc != tc.trunc {
			t.Errorf("Truncate(%q, %d) = %q, %v", tc.in, tc.max, got, trunc)
		}
	}
}

func TestClip(t *testing.T) {
	// WHAT: The marker follows the fetched body length, the cut follows the text.
	// WHY: Markdown is shorter than the HTML it came from; content_length is the HTML.
	tests := []struct {
		text  string
		raw   int
		max   int
		want  string
		trunc bool
	}{
		{"short", 200, 50, "short" + TruncationMarker, true},
		{"abcdef", 200, 3, "abc" + TruncationMarker, true},
		{"abc", 3, 3, "abc", false},
		{"abcdef", 4, 4, "abcd", false},
		{"abc", 900, 0, "abc", false},
	}
	for _, tc := range tests {
		got, trunc := Clip(tc.text, tc.raw, tc.max)
		if got != tc.want || trunc != tc.trunc {
			t.Errorf("Clip(%q, %d, %d) = %q, %v", tc.text, tc.raw, tc.max, got, trunc)
		}
	}
}

func TestContentHash(t *testing.T) {
	// FNV-1a 64 of the empty string is the offset basis.
	if got := ContentHash(""); got != "cbf29ce484222325" {
		t.Errorf("empty: %s", got)
	}
	if ContentHash("a") == ContentHash("b") {
		t.Error("different content, same hash")
	}
}

func TestFetch_TruncatesLongContent(t *testing.T) {
	// WHAT: 80 characters with max 50 store 50 + marker, content_length 80.
	// WHY: content_length reports the original size, content stays bounded.
	body := strings.Repeat("A", 80)
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(body)) })
	h := newHarness(t)
	h.add(t, &store.Source{ID: "s", Name: "s", SourceType: store.SourceTypeWebpage, SourceURL: srv.URL, MaxContentLength: 50})

	out, err := h.engine.Fetch(context.Background(), "s")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := strings.Repeat("A", 50) + TruncationMarker
	src, _ := h.st.GetSource(context.Background(), "s")
	if src.Content != want {
		t.Errorf("content: got %q", src.Content)
	}
	if src.FetchStatus != store.StatusSuccess || src.LastFetched == nil || src.FetchError != nil {
		t.Errorf("state: status=%q last=%v err=%v", src.FetchStatus, src.LastFetched, src.FetchError)
	}
	if out.ContentLength != 80 || !out.Truncated || out.Tier != "direct" {
		t.Errorf("outcome: %+v", out)
	}

	hist := h.history(t, "s")
	if len(hist) != 1 {
		t.Fatalf("history rows: %d", len(hist))
	}
	e := hist[0]
	if e.Status != store.HistorySuccess || *e.ContentLength != 80 || *e.ContentHash != ContentHash(want) {
		t.Errorf("history: status=%q len=%d hash=%s", e.Status, *e.ContentLength, *e.ContentHash)
	}
	if e.FetchDurationMs == nil || e.ErrorMessage != nil {
		t.Errorf("history: duration=%v error=%v", e.FetchDurationMs, e.ErrorMessage)
	}
	if h.changes.Load() != 1 {
		t.Errorf("OnChange calls: %d", h.changes.Load())
	}
}

func TestFetch_NotFoundRecordsNothing(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Fetch(context.Background(), "ghost")
	if !errors.Is(err, kerr.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if h.changes.Load() != 0 {
		t.Error("OnChange should not run")
	}
}

func TestFetch_InternalSourceUntouched(t *testing.T) {
	// WHAT: Internal and URL-less sources are refused without any write.
	// WHY: Hand-authored content is never overwritten by a fetch.
	h := newHarness(t)
	h.add(t, &store.Source{ID: "int", Name: "int", Content: "hand written"})
	h.add(t, &store.Source{ID: "nourl", Name: "n", SourceType: store.SourceTypeForum})

	for _, id := range []string{"int", "nourl"} {
		_, err := h.engine.Fetch(context.Background(), id)
		if !errors.Is(err, kerr.ErrInvalidSource) {
			t.Fatalf("%s: got %v, want ErrInvalidSource", id, err)
		}
		if n := len(h.history(t, id)); n != 0 {
			t.Errorf("%s: %d history rows", id, n)
		}
	}
	src, _ := h.st.GetSource(context.Background(), "int")
	if src.Content != "hand written" || src.FetchStatus != store.StatusPending {
		t.Errorf("internal source modified: %+v", src)
	}
}

func TestFetch_FailureKeepsContent(t *testing.T) {
	// WHAT: A 404 marks the source failed, keeps content, logs one failed row.
	// WHY: The last good copy keeps serving the corpus.
	var fail atomic.Bool
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("good"))
	})
	h := newHarness(t)
	h.add(t, &store.Source{ID: "s", Name: "s", SourceType: store.SourceTypeWebpage, SourceURL: srv.URL})
	ctx := context.Background()

	if _, err := h.engine.Fetch(ctx, "s"); err != nil {
		t.Fatal(err)
	}
	before, _ := h.st.GetSource(ctx, "s")

	fail.Store(true)
	out, err := h.engine.Fetch(ctx, "s")
	if !errors.Is(err, kerr.ErrFetchFailed) {
		t.Fatalf("got %v, want ErrFetchFailed", err)
	}
	if out == nil || out.Status != store.HistoryFailed || !strings.Contains(out.Error, "404") {
		t.Errorf("outcome: %+v", out)
	}
	after, _ := h.st.GetSource(ctx, "s")
	if after.Content != "good" || *after.LastFetched != *before.LastFetched {
		t.Errorf("content or last_fetched changed: %q %v", after.Content, after.LastFetched)
	}
	if after.FetchStatus != store.StatusFailed || after.FetchError == nil || !strings.Contains(*after.FetchError, "404") {
		t.Errorf("failure state: %q %v", after.FetchStatus, after.FetchError)
	}
	hist := h.history(t, "s")
	if len(hist) != 2 || hist[0].Status != store.HistoryFailed || hist[0].ContentLength != nil {
		t.Fatalf("history: %+v", hist)
	}
}

func TestFetch_FallsBackToRelay(t *testing.T) {
	// WHAT: Direct 403 → relay body is stored and the tier is reported.
	origin := serve(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) })
	relaySrv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("relayed " + r.URL.Query().Get("url")))
	})
	cfg := fetch.Config{URLValidator: noopValidator}
	relay, err := fetch.NewRelay(relaySrv.URL, cfg)
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, fetch.NewDirect(cfg), relay)
	h.add(t, &store.Source{ID: "s", Name: "s", SourceType: store.SourceTypeExternal, SourceURL: origin.URL})

	out, err := h.engine.Fetch(context.Background(), "s")
	if err != nil {
		t.Fatal(err)
	}
	if out.Tier != "relay" {
		t.Errorf("tier: %q", out.Tier)
	}
	src, _ := h.st.GetSource(context.Background(), "s")
	if src.Content != "relayed "+origin.URL {
		t.Errorf("content: %q", src.Content)
	}
}

func TestFetch_SelectorMissIsPartial(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><p>hello</p></body></html>"))
	})
	h := newHarness(t)
	h.add(t, &store.Source{ID: "s", Name: "s", SourceType: store.SourceTypeWebpage, SourceURL: srv.URL, ContentSelector: "article"})

	out, err := h.engine.Fetch(context.Background(), "s")
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != store.HistoryPartial {
		t.Errorf("status: %q", out.Status)
	}
	src, _ := h.st.GetSource(context.Background(), "s")
	if src.FetchStatus != store.StatusSuccess || !strings.Contains(src.Content, "hello") {
		t.Errorf("source: %q %q", src.FetchStatus, src.Content)
	}
	if hist := h.history(t, "s"); hist[0].Status != store.HistoryPartial {
		t.Errorf("history status: %q", hist[0].Status)
	}
}

func TestFetch_AppliesAuth(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sekret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("private"))
	})
	h := newHarness(t)
	h.add(t, &store.Source{ID: "s", Name: "s", SourceType: store.SourceTypeAPI, SourceURL: srv.URL,
		RequiresAuth: true, AuthConfig: json.RawMessage(`{"type":"bearer","token":"sekret"}`)})
	h.add(t, &store.Source{ID: "noauth", Name: "n", SourceType: store.SourceTypeAPI, SourceURL: srv.URL,
		RequiresAuth: true})

	if _, err := h.engine.Fetch(context.Background(), "s"); err != nil {
		t.Fatalf("authorized fetch: %v", err)
	}
	_, err := h.engine.Fetch(context.Background(), "noauth")
	if !errors.Is(err, kerr.ErrFetchFailed) {
		t.Fatalf("missing auth_config: got %v", err)
	}
}

func TestFetch_Timeout(t *testing.T) {
	// WHAT: A hanging remote becomes a recorded failure after the timeout.
	// WHY: One slow site must not stall a bulk run.
	release := make(chan struct{})
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	st := store.NewStore(db)
	eng := NewEngine(st, ledger.New(st, nil),
		fetch.NewChain(nil, fetch.NewDirect(fetch.Config{URLValidator: noopValidator})),
		normalize.New(false), Options{Timeout: 100 * time.Millisecond})
	if err := st.InsertSource(context.Background(), &store.Source{ID: "s", Name: "s", SourceType: store.SourceTypeWebpage, SourceURL: srv.URL}); err != nil {
		t.Fatal(err)
	}

	_, err := eng.Fetch(context.Background(), "s")
	if !errors.Is(err, kerr.ErrFetchFailed) {
		t.Fatalf("got %v, want ErrFetchFailed", err)
	}
	if !strings.Contains(err.Error(), "timed out after 100ms") {
		t.Errorf("error: %v", err)
	}
	src, _ := st.GetSource(context.Background(), "s")
	if src.FetchStatus != store.StatusFailed {
		t.Errorf("status: %q", src.FetchStatus)
	}
}

func TestFetch_CallerDeadlineStillRecorded(t *testing.T) {
	// WHAT: A caller deadline shorter than the fetch still yields a failed
	// source and one history row.
	// WHY: A disconnecting admin client or a shutdown mid-run must not leave
	// the attempt unrecorded.
	release := make(chan struct{})
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	h := newHarness(t)
	h.add(t, &store.Source{ID: "s", Name: "s", SourceType: store.SourceTypeWebpage, SourceURL: srv.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	out, err := h.engine.Fetch(ctx, "s")
	if !errors.Is(err, kerr.ErrFetchFailed) {
		t.Fatalf("got %v, want ErrFetchFailed", err)
	}
	if strings.Contains(err.Error(), "timed out after") || !strings.Contains(err.Error(), "aborted by caller") {
		t.Errorf("error wording: %v", err)
	}
	if out == nil || out.Status != store.HistoryFailed {
		t.Errorf("outcome: %+v", out)
	}

	src, _ := h.st.GetSource(context.Background(), "s")
	if src.FetchStatus != store.StatusFailed || src.FetchError == nil {
		t.Errorf("state: status=%q err=%v", src.FetchStatus, src.FetchError)
	}
	hist := h.history(t, "s")
	if len(hist) != 1 || hist[0].Status != store.HistoryFailed {
		t.Fatalf("history: %+v", hist)
	}
	if h.changes.Load() != 1 {
		t.Errorf("OnChange calls: %d", h.changes.Load())
	}
}

func TestFetch_HistoryUsesStoreClock(t *testing.T) {
	// WHAT: Success and failure rows are both stamped by the store clock.
	// WHY: Newest-first history must follow the clock every other timestamp uses.
	var fail atomic.Bool
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	})
	h := newHarness(t)
	clock := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)
	h.st.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	h.add(t, &store.Source{ID: "s", Name: "s", SourceType: store.SourceTypeWebpage, SourceURL: srv.URL})
	ctx := context.Background()

	if _, err := h.engine.Fetch(ctx, "s"); err != nil {
		t.Fatal(err)
	}
	fail.Store(true)
	out, _ := h.engine.Fetch(ctx, "s")

	hist := h.history(t, "s")
	if len(hist) != 2 {
		t.Fatalf("history rows: %d", len(hist))
	}
	if hist[0].Status != store.HistoryFailed || hist[1].Status != store.HistorySuccess {
		t.Errorf("order: %q, %q", hist[0].Status, hist[1].Status)
	}
	if hist[0].FetchedAt <= hist[1].FetchedAt || out.FetchedAt != hist[0].FetchedAt {
		t.Errorf("timestamps: failed=%d success=%d outcome=%d", hist[0].FetchedAt, hist[1].FetchedAt, out.FetchedAt)
	}
}
