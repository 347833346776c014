// Package remotetest provides an in-process fake of the numbers service for
// tests across the module.
package remotetest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/polisai/polis-matrix/pkg/digest"
	"github.com/polisai/polis-matrix/pkg/domain"
	"github.com/polisai/polis-matrix/pkg/matrix"
)

// DefaultPassphrase is returned for a correct digest unless overridden.
const DefaultPassphrase = "Alas, poor Yorick!"

type rowKey struct {
	dataset domain.Dataset
	row     int
}

type override struct {
	status int
	body   string
	delay  time.Duration
}

// Server is a fake numbers service backed by fixed A and B datasets.
type Server struct {
	*httptest.Server

	size       int
	datasets   map[domain.Dataset][][]int
	wantDigest string

	mu             sync.Mutex
	initMethod     string
	initialised    bool
	initStatus     int
	overrides      map[rowKey]override
	validateStatus int
	passphrase     string
	lastDigest     string

	initCalls     atomic.Int64
	rowCalls      sync.Map // domain.Dataset -> *atomic.Int64
	validateCalls atomic.Int64
}

// NewServer starts a fake service serving a and b. Both must be square and
// the same size. The server is closed when the test ends.
func NewServer(t testing.TB, a, b [][]int) *Server {
	t.Helper()

	ma, err := matrix.FromRows(a)
	if err != nil {
		t.Fatalf("remotetest: dataset A: %v", err)
	}
	mb, err := matrix.FromRows(b)
	if err != nil {
		t.Fatalf("remotetest: dataset B: %v", err)
	}
	product, err := matrix.Multiply(context.Background(), ma, mb, 1)
	if err != nil {
		t.Fatalf("remotetest: product: %v", err)
	}

	s := &Server{
		size:           len(a),
		datasets:       map[domain.Dataset][][]int{domain.DatasetA: a, domain.DatasetB: b},
		wantDigest:     digest.Reduce(product).String(),
		initMethod:     http.MethodPost,
		overrides:      make(map[rowKey]override),
		validateStatus: http.StatusOK,
		passphrase:     DefaultPassphrase,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Close)
	return s
}

// BaseURL returns the service root, e.g. http://127.0.0.1:1234/api/numbers.
func (s *Server) BaseURL() string {
	return s.URL + "/api/numbers"
}

// WantDigest returns the digest the fake accepts.
func (s *Server) WantDigest() string {
	return s.wantDigest
}

// SetInitMethod changes the method the init endpoint accepts.
func (s *Server) SetInitMethod(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initMethod = method
}

// SetInitStatus forces the init endpoint to answer with status.
func (s *Server) SetInitStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initStatus = status
}

// SetRow makes a single row answer with status and a raw body.
func (s *Server) SetRow(dataset domain.Dataset, row, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[rowKey{dataset, row}] = override{status: status, body: body}
}

// DelayRow holds a single row response until d elapses or the client gives up.
func (s *Server) DelayRow(dataset domain.Dataset, row int, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.overrides[rowKey{dataset, row}]
	o.delay = d
	s.overrides[rowKey{dataset, row}] = o
}

// FailRow makes a single row answer success:false with cause.
func (s *Server) FailRow(dataset domain.Dataset, row int, cause string) {
	body, _ := json.Marshal(domain.RowResponse{Cause: &cause, Success: false})
	s.SetRow(dataset, row, http.StatusOK, string(body))
}

// SetValidateStatus forces the validate endpoint to answer with status.
func (s *Server) SetValidateStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validateStatus = status
}

// SetPassphrase changes the passphrase returned for a correct digest.
func (s *Server) SetPassphrase(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passphrase = p
}

// InitCalls returns how many init requests arrived.
func (s *Server) InitCalls() int {
	return int(s.initCalls.Load())
}

// RowCalls returns how many row requests arrived for dataset.
func (s *Server) RowCalls(dataset domain.Dataset) int {
	return int(s.rowCounter(dataset).Load())
}

// ValidateCalls returns how many validate requests arrived.
func (s *Server) ValidateCalls() int {
	return int(s.validateCalls.Load())
}

// LastDigest returns the digest submitted by the last validate call.
func (s *Server) LastDigest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDigest
}

func (s *Server) rowCounter(dataset domain.Dataset) *atomic.Int64 {
	v, _ := s.rowCalls.LoadOrStore(dataset, new(atomic.Int64))
	return v.(*atomic.Int64)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/numbers/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 2 && parts[0] == "init":
		s.handleInit(w, r, parts[1])
	case len(parts) == 3 && parts[1] == "row":
		s.handleRow(w, r, domain.Dataset(parts[0]), parts[2])
	case len(parts) == 1 && parts[0] == "validate":
		s.handleValidate(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request, sizeText string) {
	s.initCalls.Add(1)

	s.mu.Lock()
	method, forced := s.initMethod, s.initStatus
	s.mu.Unlock()

	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if forced != 0 {
		w.WriteHeader(forced)
		return
	}
	size, err := strconv.Atoi(sizeText)
	if err != nil || size != s.size {
		http.Error(w, fmt.Sprintf("fake serves size %d", s.size), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.initialised = true
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"value": size, "cause": nil, "success": true})
}

func (s *Server) handleRow(w http.ResponseWriter, r *http.Request, dataset domain.Dataset, rowText string) {
	s.rowCounter(dataset).Add(1)

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	row, err := strconv.Atoi(rowText)
	rows, known := s.datasets[dataset]
	if err != nil || !known || row < 0 || row >= len(rows) {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	initialised := s.initialised
	o, overridden := s.overrides[rowKey{dataset, row}]
	s.mu.Unlock()

	if o.delay > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(o.delay):
		}
	}

	if overridden && o.status != 0 {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(o.status)
		_, _ = io.WriteString(w, o.body)
		return
	}
	if !initialised {
		cause := "datasets not initialised"
		writeJSON(w, http.StatusOK, domain.RowResponse{Cause: &cause})
		return
	}
	writeJSON(w, http.StatusOK, domain.RowResponse{Value: rows[row], Success: true})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	s.validateCalls.Add(1)

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var submitted string
	if err := json.NewDecoder(r.Body).Decode(&submitted); err != nil {
		http.Error(w, "body must be a JSON string", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.lastDigest = submitted
	status, passphrase := s.validateStatus, s.passphrase
	s.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "validator unavailable", status)
		return
	}
	if submitted != s.wantDigest {
		http.Error(w, "Wrong hash", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, passphrase)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
