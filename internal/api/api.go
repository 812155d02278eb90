// Package api implements the public HTTP surface that enqueues
// upload/download/delete requests and exposes health/status, with a
// per-remote-addr rate limiter guarding every queue-admitting route.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/google/uuid"
	"github.com/soft40051/storagelb/internal/apierr"
	"github.com/soft40051/storagelb/internal/idempotency"
	"github.com/soft40051/storagelb/internal/model"
	"github.com/soft40051/storagelb/internal/observability"
	"github.com/soft40051/storagelb/internal/queue"
	"github.com/soft40051/storagelb/internal/registry"
	"github.com/soft40051/storagelb/internal/scheduler"
)

const defaultMaxFileSize = 5 << 30 // 5 GiB

// Downloader performs the synchronous proxy mode (mode=sync): it forwards
// to a node and streams the response body back verbatim.
type Downloader interface {
	Download(w http.ResponseWriter, fileID string) error
}

type API struct {
	queue    *queue.Queue
	registry *registry.Registry
	policy   scheduler.PolicyName

	idempotency *idempotency.Store
	downloader  Downloader

	maxFileSize int64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(q *queue.Queue, reg *registry.Registry, policy scheduler.PolicyName, idem *idempotency.Store, downloader Downloader) *API {
	return &API{
		queue:       q,
		registry:    reg,
		policy:      policy,
		idempotency: idem,
		downloader:  downloader,
		maxFileSize: defaultMaxFileSize,
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/files/upload", a.admissionLimited(a.handleUpload))
	mux.HandleFunc("GET /api/files/{fileId}/download", a.admissionLimited(a.handleDownload))
	mux.HandleFunc("DELETE /api/files/{fileId}", a.admissionLimited(a.handleDelete))
	mux.HandleFunc("GET /api/health", a.handleHealth)
	return mux
}

// admissionLimited enforces a per-remote-addr token bucket ahead of every
// queue-admitting route, to absorb request storms before they reach the
// queue.
func (a *API) admissionLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.limiterFor(remoteKey(r)).Allow() {
			observability.APIRateLimited.WithLabelValues(r.URL.Path).Inc()
			w.Header().Set("Retry-After", "1")
			apierr.Write(w, apierr.New(apierr.BadRequest, "too many requests"))
			return
		}
		next(w, r)
	}
}

func (a *API) limiterFor(key string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(50), 100)
		a.limiters[key] = l
	}
	return l
}

func remoteKey(r *http.Request) string {
	host, _, err := splitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func splitHostPort(addr string) (string, string, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, "", nil
	}
	return addr[:idx], addr[idx+1:], nil
}

func validateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("missing X-File-Name")
	}
	if strings.Contains(name, "..") || strings.Contains(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("invalid file name")
	}
	return nil
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	fileName := r.Header.Get("X-File-Name")
	if err := validateFileName(fileName); err != nil {
		observability.APIRequestsTotal.WithLabelValues("upload", "400").Inc()
		apierr.Write(w, apierr.New(apierr.BadRequest, err.Error()))
		return
	}

	fileID := r.Header.Get("X-File-ID")
	if fileID == "" {
		fileID = uuid.NewString()
	}

	sizeHeader := r.Header.Get("X-File-Size")
	size, err := strconv.ParseInt(sizeHeader, 10, 64)
	if err != nil {
		observability.APIRequestsTotal.WithLabelValues("upload", "400").Inc()
		apierr.Write(w, apierr.New(apierr.BadRequest, "X-File-Size must be an integer"))
		return
	}
	if size > a.maxFileSize {
		observability.APIRequestsTotal.WithLabelValues("upload", "413").Inc()
		apierr.Write(w, apierr.New(apierr.PayloadTooLarge, "file exceeds MAX_FILE_SIZE"))
		return
	}

	if a.idempotency != nil {
		if rec, found := a.idempotency.Get(r.Context(), fileID); found {
			writeJSON(w, http.StatusCreated, map[string]any{"fileId": fileID, "status": rec.Status})
			return
		}
	}

	req := model.Request{
		ID:          fileID,
		Type:        model.Upload,
		FileName:    fileName,
		SizeBytes:   size,
		ArrivalTime: time.Now(),
		Payload:     r.Body,
	}

	if err := a.queue.Offer(req); err != nil {
		observability.APIRequestsTotal.WithLabelValues("upload", "503").Inc()
		apierr.Write(w, apierr.New(apierr.QueueFull, "queue is at capacity"))
		return
	}

	if a.idempotency != nil {
		a.idempotency.Put(r.Context(), idempotency.Record{FileID: fileID, Status: "queued"})
	}

	observability.APIRequestsTotal.WithLabelValues("upload", "201").Inc()
	writeJSON(w, http.StatusCreated, map[string]any{"fileId": fileID, "status": "queued"})
}

func (a *API) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fileId")
	if err := validateFileID(fileID); err != nil {
		observability.APIRequestsTotal.WithLabelValues("download", "400").Inc()
		apierr.Write(w, apierr.New(apierr.BadRequest, err.Error()))
		return
	}

	if r.URL.Query().Get("mode") == "sync" {
		if a.downloader == nil {
			observability.APIRequestsTotal.WithLabelValues("download", "500").Inc()
			apierr.Write(w, apierr.New(apierr.Internal, "synchronous download mode is not configured"))
			return
		}
		if err := a.downloader.Download(w, fileID); err != nil {
			observability.APIRequestsTotal.WithLabelValues("download", "502").Inc()
			apierr.Write(w, apierr.New(apierr.UpstreamError, err.Error()))
			return
		}
		observability.APIRequestsTotal.WithLabelValues("download", "200").Inc()
		return
	}

	req := model.Request{
		ID:          fileID,
		Type:        model.Download,
		ArrivalTime: time.Now(),
	}
	if err := a.queue.Offer(req); err != nil {
		observability.APIRequestsTotal.WithLabelValues("download", "503").Inc()
		apierr.Write(w, apierr.New(apierr.QueueFull, "queue is at capacity"))
		return
	}

	observability.APIRequestsTotal.WithLabelValues("download", "200").Inc()
	writeJSON(w, http.StatusOK, map[string]any{"fileId": fileID, "status": "queued"})
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fileId")
	if err := validateFileID(fileID); err != nil {
		observability.APIRequestsTotal.WithLabelValues("delete", "400").Inc()
		apierr.Write(w, apierr.New(apierr.BadRequest, err.Error()))
		return
	}

	req := model.Request{
		ID:          fileID,
		Type:        model.Delete,
		ArrivalTime: time.Now(),
	}
	if err := a.queue.Offer(req); err != nil {
		observability.APIRequestsTotal.WithLabelValues("delete", "503").Inc()
		apierr.Write(w, apierr.New(apierr.QueueFull, "queue is at capacity"))
		return
	}

	observability.APIRequestsTotal.WithLabelValues("delete", "200").Inc()
	writeJSON(w, http.StatusOK, map[string]any{"fileId": fileID, "status": "queued"})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"queueSize":    a.queue.Size(),
		"healthyNodes": a.registry.CountHealthy(),
		"totalNodes":   a.registry.Count(),
		"scheduler":    string(a.policy),
	})
}

func validateFileID(id string) error {
	if id == "" {
		return fmt.Errorf("missing fileId")
	}
	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return fmt.Errorf("invalid fileId")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
