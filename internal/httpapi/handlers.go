package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/smurn/renat/internal/engine"
)

// getResponse.Value is a string, not []byte: the wire payload is
// opaque application data (typically the client's base64 ciphertext
// already), and JSON-encoding a []byte would base64 it a second time.
type getResponse struct {
	RecordID      string `json:"record_id"`
	RecordVersion int64  `json:"record_version"`
	Value         string `json:"value"`
}

type putResponse struct {
	RecordID      string `json:"record_id"`
	RecordVersion int64  `json:"record_version"`
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "record_id")
	pointer := chi.URLParam(r, "record_version")
	timeout := clampTimeout(r.URL.Query().Get("timeout"))

	now := time.Now()

	switch pointer {
	case "OLDEST":
		s.handleGetOldest(w, r, recordID, timeout, now)
	case "NEWEST":
		s.handleGetNewest(w, r, recordID, timeout, now)
	default:
		version, err := strconv.ParseInt(pointer, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "record_version must be a decimal integer or OLDEST/NEWEST")
			return
		}
		s.resolveVersion(w, r, recordID, version, timeout, now)
	}
}

// handleGetOldest resolves the OLDEST pointer. timeout==0 never touches
// the future path — it's a plain synchronous engine call, exactly as if
// no wait layer existed.
func (s *Server) handleGetOldest(w http.ResponseWriter, r *http.Request, recordID string, timeout time.Duration, now time.Time) {
	if timeout == 0 {
		version, err := s.store.OldestVersion(recordID, now)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.respondGet(w, recordID, version, now)
		return
	}

	fut, err := s.store.OldestVersionFuture(recordID, now)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	version, err := fut.Await(ctx)
	if err != nil {
		writeError(w, http.StatusNotFound, "")
		return
	}
	s.respondGet(w, recordID, version, time.Now())
}

// handleGetNewest resolves the NEWEST pointer. Same timeout==0 rule as
// handleGetOldest.
func (s *Server) handleGetNewest(w http.ResponseWriter, r *http.Request, recordID string, timeout time.Duration, now time.Time) {
	if timeout == 0 {
		version, err := s.store.NewestVersion(recordID, now)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.respondGet(w, recordID, version, now)
		return
	}

	fut, err := s.store.NewestVersionFuture(recordID, now)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	version, err := fut.Await(ctx)
	if err != nil {
		writeError(w, http.StatusNotFound, "")
		return
	}
	s.respondGet(w, recordID, version, time.Now())
}

// resolveVersion resolves a decimal record_version. timeout==0 is a
// direct engine Get: the future path, and its side effect of touching
// version-1 to protect it from eviction, is never entered for a plain
// non-waiting read.
func (s *Server) resolveVersion(w http.ResponseWriter, r *http.Request, recordID string, version int64, timeout time.Duration, now time.Time) {
	if timeout == 0 {
		data, err := s.store.Get(recordID, version, now)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, getResponse{RecordID: recordID, RecordVersion: version, Value: string(data)})
		return
	}

	fut, err := s.store.GetFuture(recordID, version, now)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	data, err := fut.Await(ctx)
	if err != nil {
		writeError(w, http.StatusNotFound, "")
		return
	}
	writeJSON(w, http.StatusOK, getResponse{RecordID: recordID, RecordVersion: version, Value: string(data)})
}

// respondGet re-fetches data for a version resolved through a pointer
// future; OLDEST/NEWEST futures complete with an int64, not the bytes
// themselves, so a synchronous Get closes the gap. Callers pass a now
// taken at or after the point the pointer resolved, so this is expected
// to hit.
func (s *Server) respondGet(w http.ResponseWriter, recordID string, version int64, now time.Time) {
	data, err := s.store.Get(recordID, version, now)
	if err != nil {
		writeError(w, http.StatusNotFound, "")
		return
	}
	writeJSON(w, http.StatusOK, getResponse{RecordID: recordID, RecordVersion: version, Value: string(data)})
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "record_id")
	pointer := chi.URLParam(r, "record_version")
	if pointer != "NEWEST" {
		writeError(w, http.StatusBadRequest, "record_version must be NEWEST on POST")
		return
	}

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	idepo := r.PostForm.Get("idepo")
	data := r.PostForm.Get("data")

	version, err := s.store.Put(recordID, idepo, []byte(data), time.Now())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, putResponse{RecordID: recordID, RecordVersion: version})
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrCapacity):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, "")
	default:
		wrapped := pkgerrors.Wrap(err, "unexpected engine error")
		s.log.Error("unhandled engine error", zap.Error(wrapped))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, map[string]string{"message": message})
}

func clampTimeout(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds) * time.Second
	if d > maxTimeout {
		d = maxTimeout
	}
	return d
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
