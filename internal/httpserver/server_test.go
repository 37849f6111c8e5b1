package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blackmichael/postpilot/internal/config"
	"github.com/blackmichael/postpilot/internal/domain"
	"github.com/blackmichael/postpilot/internal/events"
	"github.com/blackmichael/postpilot/internal/sqlite"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPublisher struct {
	id  string
	err error
}

func (p *stubPublisher) Publish(context.Context, string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.id, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httptest.Server, *events.Bus, *sqlite.Store) {
	t.Helper()

	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "posts.db"), 3)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine, err := domain.NewEngine(store, domain.PublisherSet{"twitter": &stubPublisher{id: "x1"}}, nil, nil)
	require.NoError(t, err)

	bus := events.NewBus()
	cfg := &config.Config{Addr: ":0", DatabasePath: "unused", PollInterval: time.Minute, MaxRetries: 3}
	s := NewServer(cfg, engine, bus, testLogger())

	server := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(server.Close)
	return server, bus, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestServer_SchedulePost(t *testing.T) {
	server, _, store := newTestServer(t)

	resp := postJSON(t, server.URL+"/posts", map[string]any{
		"content":        "hello",
		"platform":       "twitter",
		"scheduled_time": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID string `json:"id"`
	}
	decodeJSON(t, resp, &created)
	require.NotEmpty(t, created.ID)

	post, err := store.GetPost(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, post.Status)
	assert.Equal(t, "hello", post.Content)
}

func TestServer_SchedulePost_Invalid(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/posts", map[string]any{"content": "hello"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, server.URL+"/posts", map[string]any{"content": "hello", "platform": "twitter"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing scheduled_time")
}

func TestServer_PublishNow(t *testing.T) {
	server, _, store := newTestServer(t)

	resp := postJSON(t, server.URL+"/publish", map[string]any{
		"content":   "hello",
		"platforms": []string{"twitter"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Results map[string]struct {
			PlatformPostID string `json:"platform_post_id"`
			Error          string `json:"error"`
			ErrorKind      string `json:"error_kind"`
		} `json:"results"`
	}
	decodeJSON(t, resp, &body)

	require.Contains(t, body.Results, "twitter")
	assert.Equal(t, "x1", body.Results["twitter"].PlatformPostID)
	assert.Empty(t, body.Results["twitter"].Error)

	// Immediate posts are never persisted.
	posts, err := store.ListPosts(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestServer_PublishNow_UnknownPlatform(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/publish", map[string]any{
		"content":   "hello",
		"platforms": []string{"myspace"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Results map[string]struct {
			Error     string `json:"error"`
			ErrorKind string `json:"error_kind"`
		} `json:"results"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, "permanent", body.Results["myspace"].ErrorKind)
}

func TestServer_GetPost(t *testing.T) {
	server, _, store := newTestServer(t)

	id, err := store.Insert(context.Background(), "hello", "twitter", time.Now().UTC())
	require.NoError(t, err)

	resp, err := http.Get(server.URL + "/posts/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decodeJSON(t, resp, &body)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, float64(0), body["retry_count"])
	assert.NotContains(t, body, "platform_post_id")
}

func TestServer_GetPost_NotFound(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/posts/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ListPosts(t *testing.T) {
	server, _, store := newTestServer(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, "a", "twitter", time.Now().UTC())
	require.NoError(t, err)
	sent, err := store.Insert(ctx, "b", "twitter", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.MarkSent(ctx, sent, "ext-1", time.Now().UTC()))

	resp, err := http.Get(server.URL + "/posts?status=sent")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Posts []map[string]any `json:"posts"`
	}
	decodeJSON(t, resp, &body)
	require.Len(t, body.Posts, 1)
	assert.Equal(t, sent, body.Posts[0]["id"])
	assert.Equal(t, "ext-1", body.Posts[0]["platform_post_id"])
}

func TestServer_ListPosts_BadParams(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/posts?status=bogus")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(server.URL + "/posts?limit=0")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_EventStream(t *testing.T) {
	server, bus, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Give the handler a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)

	sentEvent := events.DeliveryEvent{
		PostID:         "post-1",
		Platform:       "twitter",
		Outcome:        "sent",
		PlatformPostID: "ext-1",
		Time:           time.Now().UTC(),
	}
	bus.Publish(sentEvent)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.DeliveryEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, sentEvent.PostID, got.PostID)
	assert.Equal(t, sentEvent.Outcome, got.Outcome)
	assert.Equal(t, sentEvent.PlatformPostID, got.PlatformPostID)
}
