// CLAUDE:SUMMARY chi admin API over the Service: source CRUD, import, fetch, history, bulk runs, corpus, train, stats.
package knowledge

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/kbase/kit"
)

// Routes returns the admin API router. Mount it under a prefix such as /api;
// authentication and shield middleware are the caller's business.
func (svc *Service) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(kit.WithTransport(r.Context(), "http")))
		})
	})

	r.Get("/sources", func(w http.ResponseWriter, r *http.Request) {
		var (
			sources []*Source
			err     error
		)
		if r.URL.Query().Get("external") == "true" {
			sources, err = svc.ListExternalSources(r.Context())
		} else {
			sources, err = svc.ListSources(r.Context())
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, 200, redactAll(sources))
	})

	r.Post("/sources", func(w http.ResponseWriter, r *http.Request) {
		in := Source{IsActive: true}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, 400, map[string]string{"error": err.Error()})
			return
		}
		src, err := svc.CreateSource(r.Context(), &in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, 201, src.Redacted())
	})

	r.Post("/sources/import", func(w http.ResponseWriter, r *http.Request) {
		var raw []json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			writeJSON(w, 400, map[string]string{"error": err.Error()})
			return
		}
		in := make([]*Source, len(raw))
		for i, m := range raw {
			in[i] = &Source{IsActive: true}
			if err := json.Unmarshal(m, in[i]); err != nil {
				writeJSON(w, 400, map[string]string{"error": err.Error()})
				return
			}
		}
		if err := svc.UpsertSources(r.Context(), in); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, 200, map[string]int{"imported": len(in)})
	})

	r.Get("/sources/due", func(w http.ResponseWriter, r *http.Request) {
		due, err := svc.DueSources(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, 200, redactAll(due))
	})

	r.Get("/sources/{id}", func(w http.ResponseWriter, r *http.Request) {
		src, err := svc.GetSource(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if src == nil {
			writeJSON(w, 404, map[string]string{"error": "source not found"})
			return
		}
		writeJSON(w, 200, src.Redacted())
	})

	r.Patch("/sources/{id}", func(w http.ResponseWriter, r *http.Request) {
		var patch SourcePatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSON(w, 400, map[string]string{"error": err.Error()})
			return
		}
		src, err := svc.UpdateSource(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, 200, src.Redacted())
	})

	r.Delete("/sources/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteSource(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, 200, map[string]string{"status": "deleted"})
	})

	r.Post("/sources/{id}/fetch", func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.FetchSource(r.Context(), chi.URLParam(r, "id"))
		if err != nil && out != nil {
			writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "outcome": out})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, 200, out)
	})

	r.Post("/sources/{id}/reset", func(w http.ResponseWriter, r *http.Request) {
		src, err := svc.ResetSource(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, 200, src.Redacted())
	})

	r.Get("/sources/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		hist, err := svc.FetchHistory(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit", 10))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, 200, hist)
	})

	r.Post("/fetch-all", func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.FetchAllPending(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, 200, report)
	})

	r.Get("/fetch-all/progress", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, svc.Progress())
	})

	r.Get("/corpus", func(w http.ResponseWriter, r *http.Request) {
		text, err := svc.Corpus(r.Context(), r.URL.Query().Get("language"))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(200)
		w.Write([]byte(text))
	})

	r.Post("/train", func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Train(r.Context(), r.URL.Query().Get("language"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, 200, res)
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, 200, stats)
	})

	return r
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidSource):
		return 400
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrRunInProgress):
		return 409
	case errors.Is(err, ErrFetchFailed):
		return 502
	default:
		return 500
	}
}

func redactAll(sources []*Source) []*Source {
	out := make([]*Source, len(sources))
	for i, s := range sources {
		out[i] = s.Redacted()
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
