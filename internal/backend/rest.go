package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Discord-compatible channel types.
const (
	channelTypeForum = 15
)

// RESTConfig configures a RESTBackend.
type RESTConfig struct {
	BaseURL string
	Token   string
	Rate    float64 // requests per second, <= 0 disables pacing
	Burst   int
	Timeout time.Duration
	Client  *http.Client
}

// RESTBackend talks to a Discord-compatible HTTP API: containers are forum channels,
// posts are forum threads and chunks are message attachments.
type RESTBackend struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	ready   atomic.Bool
}

// NewRESTBackend builds an unconnected REST backend.
func NewRESTBackend(cfg RESTConfig) *RESTBackend {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Inf, burst)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return &RESTBackend{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  client,
		limiter: limiter,
	}
}

// Connect verifies the credentials and marks the backend ready.
func (b *RESTBackend) Connect(ctx context.Context) error {
	var me struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := b.doJSON(ctx, "connect", http.MethodGet, "/users/@me", nil, &me); err != nil {
		return err
	}
	b.ready.Store(true)
	logrus.WithFields(logrus.Fields{
		"backend": "rest",
		"user_id": me.ID,
	}).Info("backend connected")
	return nil
}

// Close marks the backend unavailable and releases idle connections.
func (b *RESTBackend) Close() error {
	b.ready.Store(false)
	b.client.CloseIdleConnections()
	return nil
}

// Ready reports whether Connect has succeeded.
func (b *RESTBackend) Ready() bool {
	return b.ready.Load()
}

type idResponse struct {
	ID string `json:"id"`
}

// CreateContainer creates a forum channel under the guild or category parentID.
func (b *RESTBackend) CreateContainer(ctx context.Context, parentID, name string) (string, error) {
	var resp idResponse
	body := map[string]interface{}{"name": name, "type": channelTypeForum}
	if err := b.doJSON(ctx, "create container", http.MethodPost, "/guilds/"+parentID+"/channels", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CreatePost starts a thread in the container; the thread id is the post id.
func (b *RESTBackend) CreatePost(ctx context.Context, containerID, title, body string) (string, error) {
	var resp idResponse
	req := map[string]interface{}{
		"name":    truncate(title, 100),
		"message": map[string]string{"content": truncate(body, 2000)},
	}
	if err := b.doJSON(ctx, "create post", http.MethodPost, "/channels/"+containerID+"/threads", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UploadChunk posts data as the single attachment of a new message in the post.
func (b *RESTBackend) UploadChunk(ctx context.Context, postID string, data []byte, label string) (UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	payload, err := json.Marshal(map[string]interface{}{
		"content":     label,
		"attachments": []map[string]interface{}{{"id": 0, "filename": label}},
	})
	if err != nil {
		return UploadResult{}, err
	}
	if err := mw.WriteField("payload_json", string(payload)); err != nil {
		return UploadResult{}, err
	}
	part, err := mw.CreateFormFile("files[0]", label)
	if err != nil {
		return UploadResult{}, err
	}
	if _, err := part.Write(data); err != nil {
		return UploadResult{}, err
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, err
	}

	var msg struct {
		ID          string `json:"id"`
		Attachments []struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"attachments"`
	}
	resp, err := b.do(ctx, "upload chunk", http.MethodPost, b.baseURL+"/channels/"+postID+"/messages", &buf, mw.FormDataContentType(), true)
	if err != nil {
		return UploadResult{}, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return UploadResult{}, fmt.Errorf("upload chunk: decode response: %w", err)
	}
	if len(msg.Attachments) == 0 {
		return UploadResult{}, fmt.Errorf("upload chunk: message %s has no attachment", msg.ID)
	}
	return UploadResult{
		MessageID:    msg.ID,
		AttachmentID: msg.Attachments[0].ID,
		URL:          msg.Attachments[0].URL,
	}, nil
}

// DownloadChunk fetches attachment bytes. Credentials are only sent to the API host.
func (b *RESTBackend) DownloadChunk(ctx context.Context, url string) ([]byte, error) {
	resp, err := b.do(ctx, "download chunk", http.MethodGet, url, nil, "", strings.HasPrefix(url, b.baseURL+"/"))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// DeletePost deletes the thread and every chunk message in it. Missing posts are not an error.
func (b *RESTBackend) DeletePost(ctx context.Context, postID string) error {
	return ignoreNotFound(b.doJSON(ctx, "delete post", http.MethodDelete, "/channels/"+postID, nil, nil))
}

// DeleteContainer deletes the forum channel. Missing containers are not an error.
func (b *RESTBackend) DeleteContainer(ctx context.Context, containerID string) error {
	return ignoreNotFound(b.doJSON(ctx, "delete container", http.MethodDelete, "/channels/"+containerID, nil, nil))
}

// RenameContainer renames the forum channel.
func (b *RESTBackend) RenameContainer(ctx context.Context, containerID, newName string) error {
	body := map[string]string{"name": newName}
	return b.doJSON(ctx, "rename container", http.MethodPatch, "/channels/"+containerID, body, nil)
}

func (b *RESTBackend) doJSON(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}
	resp, err := b.do(ctx, op, method, b.baseURL+path, body, contentType, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (b *RESTBackend) do(ctx context.Context, op, method, url string, body io.Reader, contentType string, auth bool) (*http.Response, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth && b.token != "" {
		req.Header.Set("Authorization", "Bot "+b.token)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return nil, &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(snippet)),
	}
}

func ignoreNotFound(err error) error {
	if err != nil && errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
