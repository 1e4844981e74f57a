package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NairaLink/chat_layer/internal/app/domain/user"
	"github.com/NairaLink/chat_layer/internal/app/services/users"
	"github.com/NairaLink/chat_layer/internal/app/storage/memory"
)

type recordingEngine struct {
	mu       sync.Mutex
	messages []string
}

func (e *recordingEngine) HandleMessage(_ context.Context, userID, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, userID+": "+text)
}

type recordingBroadcaster struct {
	message string
	count   int
	limit   int
}

func (b *recordingBroadcaster) Broadcast(userIDs []string, message string, limit int) int {
	b.message = message
	b.limit = limit
	b.count = len(userIDs)
	if limit > 0 && limit < b.count {
		b.count = limit
	}
	return b.count
}

func newTestServer(t *testing.T) (*Server, *recordingEngine, *recordingBroadcaster, *memory.Store) {
	t.Helper()
	store := memory.New()
	engine := &recordingEngine{}
	broadcaster := &recordingBroadcaster{}
	srv := New(Config{
		Engine:      engine,
		Broadcaster: broadcaster,
		Users:       users.New(store, nil),
		VerifyToken: "verify-me",
		JWTSecret:   "test-secret",
	}, nil)
	return srv, engine, broadcaster, store
}

func TestWebhookVerification(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookFansOutMessages(t *testing.T) {
	srv, engine, _, _ := newTestServer(t)

	payload := `{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [
						{"from": "u1", "text": {"body": "balance"}},
						{"from": "u2", "text": {"body": "send 100 to alice.cngn"}},
						{"from": "u3", "type": "image"}
					]
				}
			}]
		}]
	}`

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload)))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, engine.messages, 2)
	assert.Equal(t, "u1: balance", engine.messages[0])
	assert.Equal(t, "u2: send 100 to alice.cngn", engine.messages[1])
}

func TestWebhookAcksBadPayloads(t *testing.T) {
	srv, engine, _, _ := newTestServer(t)

	for _, body := range []string{"", "not json", `{"entry": "nope"}`} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
		assert.Equal(t, http.StatusOK, rec.Code, "payload %q", body)
	}
	assert.Empty(t, engine.messages)
}

func adminToken(t *testing.T, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ops"}).
		SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAdminBroadcastRequiresJWT(t *testing.T) {
	srv, _, broadcaster, store := newTestServer(t)
	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := store.CreateUser(context.Background(), user.User{ID: id})
		require.NoError(t, err)
	}

	body := `{"message": "cards are live", "limit": 2}`

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/broadcast", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/admin/broadcast", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "wrong-secret"))
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/broadcast", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "test-secret"))
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queued": 2}`, rec.Body.String())
	assert.Equal(t, "cards are live", broadcaster.message)
	assert.Equal(t, 2, broadcaster.limit)
}

func TestAdminBroadcastCapsRecipients(t *testing.T) {
	store := memory.New()
	broadcaster := &recordingBroadcaster{}
	srv := New(Config{
		Engine:       &recordingEngine{},
		Broadcaster:  broadcaster,
		Users:        users.New(store, nil),
		JWTSecret:    "test-secret",
		MaxBroadcast: 2,
	}, nil)
	for _, id := range []string{"u1", "u2", "u3", "u4"} {
		_, err := store.CreateUser(context.Background(), user.User{ID: id})
		require.NoError(t, err)
	}

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin/broadcast", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+adminToken(t, "test-secret"))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		return rec
	}

	// No caller limit still honours the configured ceiling.
	rec := send(`{"message": "hello"}`)
	assert.JSONEq(t, `{"queued": 2}`, rec.Body.String())
	assert.Equal(t, 2, broadcaster.limit)

	// A caller limit above the ceiling is clamped.
	rec = send(`{"message": "hello", "limit": 10}`)
	assert.JSONEq(t, `{"queued": 2}`, rec.Body.String())
	assert.Equal(t, 2, broadcaster.limit)

	// A caller limit under the ceiling passes through.
	rec = send(`{"message": "hello", "limit": 1}`)
	assert.JSONEq(t, `{"queued": 1}`, rec.Body.String())
	assert.Equal(t, 1, broadcaster.limit)
}

func TestAdminBroadcastValidatesBody(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/broadcast", strings.NewReader(`{"message": "  "}`))
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "test-secret"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}
