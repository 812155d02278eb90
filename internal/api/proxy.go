package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/soft40051/storagelb/internal/model"
	"github.com/soft40051/storagelb/internal/registry"
	"github.com/soft40051/storagelb/internal/scheduler"
)

// SyncDownloader implements Downloader for mode=sync: it picks a healthy
// node directly (bypassing the queue) and streams the backend's response
// body back over the same HTTP exchange.
type SyncDownloader struct {
	registry *registry.Registry
	policy   scheduler.Policy
	client   *http.Client
}

func NewSyncDownloader(reg *registry.Registry, policy scheduler.Policy) *SyncDownloader {
	return &SyncDownloader{registry: reg, policy: policy, client: &http.Client{Timeout: 60 * time.Second}}
}

func (d *SyncDownloader) Download(w http.ResponseWriter, fileID string) error {
	healthy := d.registry.SnapshotHealthy()
	node, ok := d.policy.SelectNode(healthy, model.Request{ID: fileID, Type: model.Download})
	if !ok {
		return fmt.Errorf("no healthy nodes available")
	}

	url := fmt.Sprintf("http://%s/api/files/%s/download", node.Addr(), fileID)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-File-ID", fileID)
	req.Header.Set("X-LB-Request-Id", fileID)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	w.WriteHeader(resp.StatusCode)
	_, err = io.Copy(w, resp.Body)
	return err
}
