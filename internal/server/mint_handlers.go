package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"nmkrmint/internal/idempotency"
	"nmkrmint/internal/workflow"
)

const (
	idempotencyHeader = "X-Idempotency-Key"
	// runIDHeader lets a client pick the run id up front and poll
	// GET /api/v1/mints/{runID} while the submission is still executing.
	runIDHeader = "X-Mint-Run-ID"
)

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Service.MaxUploadBytes)
	ctx := r.Context()

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key != "" && s.replay(ctx, w, key) {
		return
	}

	input, err := s.parseMintForm(r)
	if err != nil {
		s.metrics.incSubmission("rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	runID, err := requestedRunID(r)
	if err != nil {
		s.metrics.incSubmission("rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run := workflow.NewRunWithID(runID, s.client, s.cfg.Mint, s.metrics)
	if key != "" {
		if live, loaded := s.inflight.LoadOrStore(key, run); loaded {
			log.Printf("[server] mint submission already in flight key=%q runId=%s", key, live.(*workflow.Run).ID())
			s.metrics.incSubmission("conflict")
			s.writeRun(w, http.StatusConflict, live.(*workflow.Run))
			return
		}
		defer s.inflight.Delete(key)
		// The previous holder of the key may have finished between the lookup and the reservation.
		if s.replay(ctx, w, key) {
			return
		}
	}
	if !s.runs.add(run) {
		s.metrics.incSubmission("rejected")
		http.Error(w, "run id already in use", http.StatusConflict)
		return
	}
	w.Header().Set("Location", "/api/v1/mints/"+run.ID())

	// A client disconnect must not abandon a half-provisioned run.
	s.metrics.runsInFlight.Inc()
	_, runErr := run.Execute(context.WithoutCancel(ctx), input)
	s.metrics.runsInFlight.Dec()

	status := statusForRunError(runErr)
	body, err := json.Marshal(run.Snapshot())
	if err != nil {
		http.Error(w, "failed to encode run", http.StatusInternalServerError)
		return
	}

	// Only completed runs are replayed; a failed run must be retryable from scratch.
	if key != "" && runErr == nil {
		record := idempotency.Record{
			RunID:      run.ID(),
			StatusCode: status,
			Response:   body,
			CreatedAt:  time.Now(),
			ExpiresAt:  time.Now().Add(s.cfg.Service.IdempotencyWindow),
		}
		if err := s.store.Save(ctx, key, record); err != nil {
			log.Printf("[server] idempotency save failed key=%q err=%v", key, err)
		}
	}

	if runErr != nil {
		s.metrics.incSubmission("failed")
	} else {
		s.metrics.incSubmission("created")
	}
	writeJSON(w, status, body)
}

// replay writes the stored response for key, if any. Lookup errors are
// logged and treated as a miss.
func (s *Server) replay(ctx context.Context, w http.ResponseWriter, key string) bool {
	existing, err := s.store.Get(ctx, key)
	if err != nil {
		log.Printf("[server] idempotency lookup failed key=%q err=%v", key, err)
		return false
	}
	if existing == nil {
		return false
	}
	log.Printf("[server] replaying mint submission key=%q runId=%s", key, existing.RunID)
	s.metrics.incSubmission("cached")
	writeJSON(w, existing.StatusCode, existing.Response)
	return true
}

func requestedRunID(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get(runIDHeader))
	if raw == "" {
		return uuid.NewString(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%s must be a UUID", runIDHeader)
	}
	return id.String(), nil
}

func (s *Server) writeRun(w http.ResponseWriter, status int, run *workflow.Run) {
	body, err := json.Marshal(run.Snapshot())
	if err != nil {
		http.Error(w, "failed to encode run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, body)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run := s.runs.get(chi.URLParam(r, "runID"))
	if run == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	s.writeRun(w, http.StatusOK, run)
}

func statusForRunError(err error) int {
	var remote *workflow.RemoteError
	var missing *workflow.MissingFieldError
	switch {
	case err == nil:
		return http.StatusCreated
	case errors.Is(err, workflow.ErrMissingImage):
		return http.StatusBadRequest
	case errors.As(err, &remote), errors.As(err, &missing):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseMintForm reads {tokenName, description, image, supply}. A missing
// image is not an error here; the workflow reports it.
func (s *Server) parseMintForm(r *http.Request) (workflow.Input, error) {
	if err := r.ParseMultipartForm(s.cfg.Service.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return workflow.Input{}, fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit)
		}
		return workflow.Input{}, fmt.Errorf("invalid multipart form: %w", err)
	}

	image, err := readFormImage(r, "image")
	if err != nil {
		return workflow.Input{}, err
	}

	return workflow.Input{
		TokenName:   r.FormValue("tokenName"),
		Description: r.FormValue("description"),
		Image:       image,
		Supply:      r.FormValue("supply"),
		CustomerIP:  clientIP(r),
	}, nil
}

func readFormImage(r *http.Request, field string) (*workflow.Image, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &workflow.Image{
		Filename: header.Filename,
		MimeType: imageMimeType(header, data),
		Bytes:    data,
	}, nil
}

func imageMimeType(header *multipart.FileHeader, data []byte) string {
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return http.DetectContentType(data)
}

// clientIP returns the caller address; RealIP has already applied proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "0.0.0.0"
	}
	return host
}

// runRegistry keeps the most recent runs for progress polling.
type runRegistry struct {
	mu    sync.RWMutex
	limit int
	order []string
	runs  map[string]*workflow.Run
}

func newRunRegistry(limit int) *runRegistry {
	if limit <= 0 {
		limit = 1
	}
	return &runRegistry{limit: limit, runs: make(map[string]*workflow.Run)}
}

// add registers run and reports false when its id is already taken.
func (rr *runRegistry) add(run *workflow.Run) bool {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	id := run.ID()
	if _, taken := rr.runs[id]; taken {
		return false
	}
	rr.runs[id] = run
	rr.order = append(rr.order, id)
	for len(rr.order) > rr.limit {
		delete(rr.runs, rr.order[0])
		rr.order = rr.order[1:]
	}
	return true
}

func (rr *runRegistry) get(id string) *workflow.Run {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return rr.runs[id]
}

func (rr *runRegistry) len() int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return len(rr.runs)
}
