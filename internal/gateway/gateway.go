// Package gateway exposes the ciphertext store and the job queue over HTTP.
package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/luxfi/fhe-integer/internal/queue"
	"github.com/luxfi/fhe-integer/internal/storage"
)

// MaxCiphertextBytes bounds uploaded ciphertext envelopes.
const MaxCiphertextBytes = 64 << 20

// JobRequest is the body of POST /job.
type JobRequest struct {
	Operation string   `json:"operation"`
	Operands  []string `json:"operands"`
}

// JobView is the JSON rendering of a job.
type JobView struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Operands  []string  `json:"operands"`
	Status    string    `json:"status"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func viewOf(job *queue.Job) JobView {
	return JobView{
		ID:        job.ID,
		Operation: job.Operation.String(),
		Operands:  job.Operands,
		Status:    job.Status.String(),
		Result:    job.ResultHandle,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}

// Gateway serves the HTTP API.
type Gateway struct {
	queue   queue.Queue
	storage storage.Storage
	log     zerolog.Logger
}

// New returns a gateway over q and store.
func New(q queue.Queue, store storage.Storage, logger zerolog.Logger) *Gateway {
	return &Gateway{
		queue:   q,
		storage: store,
		log:     logger.With().Str("component", "gateway").Logger(),
	}
}

// Handler returns the routes:
//
//	GET  /health
//	POST /store               body: radix ciphertext envelope
//	GET  /ciphertext/{handle}
//	POST /job                 body: JobRequest
//	GET  /job/{id}
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /store", g.store)
	mux.HandleFunc("GET /ciphertext/{handle}", g.ciphertext)
	mux.HandleFunc("POST /job", g.submit)
	mux.HandleFunc("GET /job/{id}", g.job)
	return mux
}

func (g *Gateway) store(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxCiphertextBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if _, err := storage.DecodeRadix(data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	handle, err := g.storage.Store(r.Context(), data)
	if err != nil {
		g.fail(w, "store ciphertext", err, http.StatusInsufficientStorage)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"handle": string(handle)})
}

func (g *Gateway) ciphertext(w http.ResponseWriter, r *http.Request) {
	handle := storage.Handle(r.PathValue("handle"))
	data, err := g.storage.Load(r.Context(), handle)
	switch {
	case errors.Is(err, storage.ErrInvalidHandle):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		g.fail(w, "load ciphertext", err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (g *Gateway) submit(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "decode request: "+err.Error(), http.StatusBadRequest)
		return
	}
	op, err := queue.ParseOp(req.Operation)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for i, h := range req.Operands {
		ok, err := g.storage.Exists(r.Context(), storage.Handle(h))
		if err != nil && !errors.Is(err, storage.ErrInvalidHandle) {
			g.fail(w, "check operand", err, http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, fmt.Sprintf("operand %d: unknown handle %q", i, h), http.StatusBadRequest)
			return
		}
	}

	id, err := newJobID()
	if err != nil {
		g.fail(w, "job id", err, http.StatusInternalServerError)
		return
	}
	job := &queue.Job{ID: id, Operation: op, Operands: req.Operands}
	if err := job.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := g.queue.Push(r.Context(), job); err != nil {
		g.fail(w, "push job", err, http.StatusServiceUnavailable)
		return
	}
	g.log.Info().Str("job", id).Stringer("op", op).Int("operands", len(job.Operands)).Msg("job queued")
	writeJSON(w, http.StatusAccepted, viewOf(job))
}

func (g *Gateway) job(w http.ResponseWriter, r *http.Request) {
	job, err := g.queue.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		g.fail(w, "get job", err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(job))
}

func (g *Gateway) fail(w http.ResponseWriter, what string, err error, code int) {
	g.log.Error().Err(err).Msg(what)
	http.Error(w, what+": "+err.Error(), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func newJobID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
