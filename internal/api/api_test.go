package api

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/soft40051/storagelb/internal/queue"
	"github.com/soft40051/storagelb/internal/registry"
	"github.com/soft40051/storagelb/internal/scheduler"
)

func newTestAPI() (*API, *queue.Queue) {
	q := queue.New(queue.WithCapacity(2))
	reg := registry.New()
	reg.Register("n1", "localhost", 9000)
	a := New(q, reg, scheduler.RoundRobin, nil, nil)
	return a, q
}

func TestUploadRejectsPathTraversalFileName(t *testing.T) {
	a, _ := newTestAPI()
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", strings.NewReader("body"))
	req.Header.Set("X-File-Name", "../etc/passwd")
	req.Header.Set("X-File-ID", "f1")
	req.Header.Set("X-File-Size", "10")

	rr := httptest.NewRecorder()
	a.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for path traversal, got %d", rr.Code)
	}
}

func TestUploadRejectsOversizeFile(t *testing.T) {
	a, _ := newTestAPI()
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", strings.NewReader("body"))
	req.Header.Set("X-File-Name", "report.pdf")
	req.Header.Set("X-File-ID", "f1")
	req.Header.Set("X-File-Size", strconv.FormatInt(defaultMaxFileSize+1, 10))

	rr := httptest.NewRecorder()
	a.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversize file, got %d", rr.Code)
	}
}

func TestUploadAcceptsValidRequestAndEnqueues(t *testing.T) {
	a, q := newTestAPI()
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", strings.NewReader("body"))
	req.Header.Set("X-File-Name", "report.pdf")
	req.Header.Set("X-File-ID", "f1")
	req.Header.Set("X-File-Size", "100")

	rr := httptest.NewRecorder()
	a.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if q.Size() != 1 {
		t.Fatalf("expected queue size 1, got %d", q.Size())
	}
}

func TestUploadReturns503WhenQueueFull(t *testing.T) {
	a, _ := newTestAPI()
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/files/upload", strings.NewReader("body"))
		req.Header.Set("X-File-Name", "f.pdf")
		req.Header.Set("X-File-ID", strconv.Itoa(i))
		req.Header.Set("X-File-Size", "10")
		rr := httptest.NewRecorder()
		a.Routes().ServeHTTP(rr, req)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", strings.NewReader("body"))
	req.Header.Set("X-File-Name", "overflow.pdf")
	req.Header.Set("X-File-ID", "overflow")
	req.Header.Set("X-File-Size", "10")
	rr := httptest.NewRecorder()
	a.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when queue is full, got %d", rr.Code)
	}
}

func TestDownloadRejectsTraversalFileID(t *testing.T) {
	a, _ := newTestAPI()
	req := httptest.NewRequest(http.MethodGet, "/api/files/weird..name/download", nil)
	rr := httptest.NewRecorder()
	a.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for traversal fileId, got %d", rr.Code)
	}
}

func TestHealthEndpointReportsQueueAndNodes(t *testing.T) {
	a, _ := newTestAPI()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	a.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "\"healthyNodes\":1") {
		t.Errorf("expected healthyNodes:1 in body, got %s", rr.Body.String())
	}
}
