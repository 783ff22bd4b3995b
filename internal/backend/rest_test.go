package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestREST(t *testing.T, handler http.HandlerFunc) (*RESTBackend, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRESTBackend(RESTConfig{BaseURL: srv.URL, Token: "secret"}), srv
}

func TestRESTConnectSendsBotToken(t *testing.T) {
	b, _ := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/@me", r.URL.Path)
		assert.Equal(t, "Bot secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"42","username":"vault"}`))
	})

	require.False(t, b.Ready())
	require.NoError(t, b.Connect(context.Background()))
	assert.True(t, b.Ready())
	require.NoError(t, b.Close())
	assert.False(t, b.Ready())
}

func TestRESTConnectRejected(t *testing.T) {
	b, _ := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"401: Unauthorized"}`))
	})

	err := b.Connect(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.False(t, b.Ready())
	assert.False(t, Retryable(err))
}

func TestRESTContainerAndPost(t *testing.T) {
	b, _ := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/guilds/root/channels":
			assert.Equal(t, "photos", body["name"])
			assert.EqualValues(t, channelTypeForum, body["type"])
			_, _ = w.Write([]byte(`{"id":"c1"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/channels/c1/threads":
			assert.Equal(t, "cat.png", body["name"])
			_, _ = w.Write([]byte(`{"id":"p1"}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/channels/c1":
			assert.Equal(t, "pictures", body["name"])
			_, _ = w.Write([]byte(`{"id":"c1"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()

	containerID, err := b.CreateContainer(ctx, "root", "photos")
	require.NoError(t, err)
	assert.Equal(t, "c1", containerID)

	postID, err := b.CreatePost(ctx, containerID, "cat.png", "size=10")
	require.NoError(t, err)
	assert.Equal(t, "p1", postID)

	require.NoError(t, b.RenameContainer(ctx, containerID, "pictures"))
}

func TestRESTUploadAndDownloadChunk(t *testing.T) {
	var cdn *httptest.Server
	b, _ := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/p1/messages", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Contains(t, r.FormValue("payload_json"), "cat.png.part0")
		f, _, err := r.FormFile("files[0]")
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(f)
		assert.Equal(t, "chunk-bytes", string(data))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":          "m1",
			"attachments": []map[string]string{{"id": "a1", "url": cdn.URL + "/attachments/a1"}},
		})
	})
	cdn = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("chunk-bytes"))
	}))
	t.Cleanup(cdn.Close)
	ctx := context.Background()

	res, err := b.UploadChunk(ctx, "p1", []byte("chunk-bytes"), "cat.png.part0")
	require.NoError(t, err)
	assert.Equal(t, "m1", res.MessageID)
	assert.Equal(t, "a1", res.AttachmentID)

	data, err := b.DownloadChunk(ctx, res.URL)
	require.NoError(t, err)
	assert.Equal(t, "chunk-bytes", string(data))
}

func TestRESTDeleteIgnoresMissing(t *testing.T) {
	b, _ := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	})
	assert.NoError(t, b.DeletePost(context.Background(), "gone"))
	assert.NoError(t, b.DeleteContainer(context.Background(), "gone"))
}

func TestRESTDownloadNotFound(t *testing.T) {
	b, srv := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := b.DownloadChunk(context.Background(), srv.URL+"/attachments/x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"server error", &StatusError{StatusCode: http.StatusBadGateway}, true},
		{"bad request", &StatusError{StatusCode: http.StatusBadRequest}, false},
		{"not found", ErrNotFound, false},
		{"canceled", context.Canceled, false},
		{"transport", errors.New("connection reset"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}
