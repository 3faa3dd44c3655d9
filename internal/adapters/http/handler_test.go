package httpadapter_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/ylol-app/ylol/internal/adapters/http"
	"github.com/ylol-app/ylol/internal/adapters/llm"
	"github.com/ylol-app/ylol/internal/adapters/media"
	"github.com/ylol-app/ylol/internal/adapters/storage/memory"
	"github.com/ylol-app/ylol/internal/app/conversation"
	"github.com/ylol-app/ylol/internal/observability"
)

type noSleep struct{}

func (noSleep) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type testServer struct {
	handler http.Handler
	conv    *conversation.Conversation
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.NewSessionStore()
	conv, err := conversation.New(conversation.Deps{
		Responder: llm.NewMockLLM(),
		Store:     store,
		Uploader:  media.NewMemoryUploader(),
		Clock:     noSleep{},
		Logger:    observability.Discard(),
	}, conversation.Options{UserID: "test-user"})
	require.NoError(t, err)
	t.Cleanup(func() { conv.Close(context.Background()) })

	return &testServer{
		handler: httpadapter.NewServer(conv, store, "test-user"),
		conv:    conv,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	return w
}

type stateBody struct {
	Phase        string `json:"phase"`
	SessionID    string `json:"session_id"`
	ActiveMode   string `json:"active_mode"`
	ErrorMessage string `json:"error_message"`
	Messages     []struct {
		Author  string `json:"author"`
		Content string `json:"content"`
	} `json:"messages"`
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) stateBody {
	t.Helper()
	var st stateBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st), w.Body.String())
	return st
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	w := srv.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, r)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	w := srv.do(t, http.MethodOptions, "/messages", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestInitializeSeedsGreeting(t *testing.T) {
	srv := newTestServer(t)
	w := srv.do(t, http.MethodPost, "/initialize", "")
	require.Equal(t, http.StatusOK, w.Code)

	st := decodeState(t, w)
	assert.Equal(t, "idle", st.Phase)
	assert.Equal(t, "supportive", st.ActiveMode)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, "assistant", st.Messages[0].Author)
}

func TestSendMessageDeliversBubbles(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/initialize", "").Code)

	w := srv.do(t, http.MethodPost, "/messages", `{"text":"rough day"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	srv.conv.Wait()

	st := decodeState(t, srv.do(t, http.MethodGet, "/state", ""))
	assert.Equal(t, "idle", st.Phase)
	require.Len(t, st.Messages, 4)
	assert.Equal(t, "rough day", st.Messages[1].Content)
	assert.Equal(t, "assistant", st.Messages[2].Author)
	assert.Equal(t, "assistant", st.Messages[3].Author)
}

func TestSendMessageWithImage(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/initialize", "").Code)

	img := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff, 0xe0})
	w := srv.do(t, http.MethodPost, "/messages", `{"text":"look","images":[{"data":"`+img+`","mime_type":"image/jpeg"}]}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	srv.conv.Wait()

	st := decodeState(t, srv.do(t, http.MethodGet, "/state", ""))
	require.GreaterOrEqual(t, len(st.Messages), 3)
	assert.Equal(t, "look", st.Messages[1].Content)
	assert.Empty(t, st.ErrorMessage)
}

func TestSendMessageRejections(t *testing.T) {
	srv := newTestServer(t)

	// still loading
	assert.Equal(t, http.StatusConflict, srv.do(t, http.MethodPost, "/messages", `{"text":"hi"}`).Code)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/initialize", "").Code)
	assert.Equal(t, http.StatusConflict, srv.do(t, http.MethodPost, "/messages", `{"text":"   "}`).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/messages", `{"text":"hi","images":[{"data":"%%%"}]}`).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/messages", `not json`).Code)
}

func TestSwitchMode(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/initialize", "").Code)

	w := srv.do(t, http.MethodPost, "/mode", `{"mode":"challenging"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Switched bool      `json:"switched"`
		State    stateBody `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Switched)
	assert.Equal(t, "challenging", body.State.ActiveMode)

	w = srv.do(t, http.MethodPost, "/mode", `{"mode":"challenging"}`)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Switched)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/mode", `{"mode":"angry"}`).Code)
}

func TestFlushThenListSessions(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/initialize", "").Code)
	require.Equal(t, http.StatusAccepted, srv.do(t, http.MethodPost, "/messages", `{"text":"hello"}`).Code)
	srv.conv.Wait()

	w := srv.do(t, http.MethodPost, "/flush", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"started":true}`, w.Body.String())
	srv.conv.Wait()

	w = srv.do(t, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Sessions []struct {
			ID       string `json:"id"`
			Messages []any  `json:"messages"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	assert.Len(t, body.Sessions[0].Messages, 4)
}

func TestStateStream(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/state/stream", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	require.NotEmpty(t, data)

	var st stateBody
	require.NoError(t, json.Unmarshal([]byte(data), &st))
	assert.Equal(t, "loading", st.Phase)
	cancel()
}
