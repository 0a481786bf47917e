package uploader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ferryline/photoferry/config"
	"github.com/ferryline/photoferry/logger"
)

// Ensure PhotosUploader implements Provider interface
var _ Provider = (*PhotosUploader)(nil)

// PhotosUploader talks to the photo service's HTTP API. The service
// requires the full byte size and content hash before the upload starts,
// so every upload stats and hashes the local file first.
type PhotosUploader struct {
	config      *config.PhotosConfig
	client      *http.Client
	metaTimeout time.Duration
	log         logger.Logger

	mu     sync.Mutex
	albums map[string]string // title -> album id, cached per process
}

// NewPhotosUploader creates a new photo-service uploader.
func NewPhotosUploader(cfg *config.PhotosConfig, common *config.CommonUploaderConfig, log logger.Logger) (*PhotosUploader, error) {
	common.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid photos config: %w", err)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &PhotosUploader{
		config: cfg,
		// No client-level timeout: a media upload may legitimately run
		// for hours. Metadata calls are bounded per request instead.
		client:      &http.Client{},
		metaTimeout: time.Duration(common.TimeoutSeconds) * time.Second,
		log:         log,
	}, nil
}

// Upload sends the file, attached to the album when one is given.
func (u *PhotosUploader) Upload(ctx context.Context, localPath string, album string) (*Result, error) {
	st, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}

	hash, err := fileSHA256(localPath)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", localPath, err)
	}

	var albumID string
	if album != "" {
		albumID, err = u.ensureAlbum(ctx, album)
		if err != nil {
			return nil, fmt.Errorf("ensure album %q: %w", album, err)
		}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint("/v1/media"), f)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = st.Size()
	req.Header.Set("Authorization", "Bearer "+u.config.AuthToken)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Content-Sha256", hash)
	req.Header.Set("X-File-Name", filepath.Base(localPath))
	if albumID != "" {
		req.Header.Set("X-Album-Id", albumID)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("upload failed: %s", httpError(resp))
	}

	var out struct {
		MediaKey string `json:"media_key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if out.MediaKey == "" {
		return nil, fmt.Errorf("upload response missing media_key")
	}

	return &Result{MediaKey: out.MediaKey}, nil
}

// ensureAlbum returns the id of the album with the given title, creating
// it if needed. A conflict response means another run already created it
// and is treated as success.
func (u *PhotosUploader) ensureAlbum(ctx context.Context, title string) (string, error) {
	u.mu.Lock()
	if id, ok := u.albums[title]; ok {
		u.mu.Unlock()
		return id, nil
	}
	u.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, u.metaTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"title": title})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint("/v1/albums"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+u.config.AuthToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var id string
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var out struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decode album response: %w", err)
		}
		id = out.ID
	case http.StatusConflict:
		id, err = u.findAlbum(ctx, title)
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("create album failed: %s", httpError(resp))
	}

	if id == "" {
		return "", fmt.Errorf("album %q has no id", title)
	}

	u.mu.Lock()
	if u.albums == nil {
		u.albums = make(map[string]string)
	}
	u.albums[title] = id
	u.mu.Unlock()

	return id, nil
}

func (u *PhotosUploader) findAlbum(ctx context.Context, title string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		u.endpoint("/v1/albums")+"?title="+url.QueryEscape(title), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+u.config.AuthToken)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("list albums failed: %s", httpError(resp))
	}

	var out struct {
		Albums []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"albums"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode albums list: %w", err)
	}

	for _, a := range out.Albums {
		if a.Title == title {
			return a.ID, nil
		}
	}
	return "", fmt.Errorf("album %q not found after conflict", title)
}

func (u *PhotosUploader) endpoint(p string) string {
	return strings.TrimSuffix(u.config.BaseURL, "/") + p
}

// Close implements Provider.
func (u *PhotosUploader) Close() error { return nil }

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func httpError(resp *http.Response) string {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	text := strings.TrimSpace(string(snippet))
	if text == "" {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, text)
}
