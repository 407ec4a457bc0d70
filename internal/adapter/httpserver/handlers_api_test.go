package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/platform/config"
	apperrors "github.com/pscheid92/chatrelay/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cachedEvents(ids ...string) [][]byte {
	items := make([][]byte, 0, len(ids))
	for _, id := range ids {
		items = append(items, []byte(fmt.Sprintf(`{"id":%q}`, id)))
	}
	return items
}

func decodeIDs(t *testing.T, body []byte) []string {
	t.Helper()
	var events []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &events))
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestHandleStats(t *testing.T) {
	srv := newTestServer(t,
		withConnections(domain.ConnectionSnapshot{Total: 3, ByOrigin: map[string]int{"10.0.0.1": 2, "10.0.0.2": 1}}),
		withCounter(&stubCounter{count: 42}),
	)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"total_connections": 3,
		"connections_by_ip": {"10.0.0.1": 2, "10.0.0.2": 1},
		"messages_sent_last_hour": 42
	}`, rec.Body.String())
}

func TestHandleStats_RequiresAPIKey(t *testing.T) {
	srv := newTestServer(t, withConfig(func(c *config.Config) { c.APIKey = "s3cret" }))

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "guess", http.StatusUnauthorized},
		{"correct key", "s3cret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			if tt.key != "" {
				req.Header.Set(headerAPIKey, tt.key)
			}

			rec := serve(srv, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandleStats_UnauthorizedBody(t *testing.T) {
	srv := newTestServer(t, withConfig(func(c *config.Config) { c.APIKey = "s3cret" }))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Invalid API key", resp.Error)
	assert.Equal(t, apperrors.TypeUnauthorized, resp.Type)
}

func TestHandleStats_CounterUnavailable(t *testing.T) {
	srv := newTestServer(t, withCounter(&stubCounter{err: errBackendDown}))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleRecentMessages_NewestFirst(t *testing.T) {
	srv := newTestServer(t, withRecent(&stubEvents{items: cachedEvents("E1", "E2", "E3")}))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/messages", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"E3", "E2", "E1"}, decodeIDs(t, rec.Body.Bytes()))
}

func TestHandleRecentMessages_Limit(t *testing.T) {
	srv := newTestServer(t, withRecent(&stubEvents{items: cachedEvents("E1", "E2", "E3")}))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/messages?limit=2", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"E3", "E2"}, decodeIDs(t, rec.Body.Bytes()))
}

func TestHandleRecentMessages_LimitCappedAtHistory(t *testing.T) {
	srv := newTestServer(t,
		withRecent(&stubEvents{items: cachedEvents("E1", "E2", "E3")}),
		withConfig(func(c *config.Config) { c.MessageHistoryLimit = 1 }),
	)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/messages?limit=500", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"E3"}, decodeIDs(t, rec.Body.Bytes()))
}

func TestHandleRecentMessages_Empty(t *testing.T) {
	srv := newTestServer(t)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/messages", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandleRecentMessages_SkipsMalformed(t *testing.T) {
	items := append(cachedEvents("E1"), []byte("{not json"))
	srv := newTestServer(t, withRecent(&stubEvents{items: items}))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/messages", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"E1"}, decodeIDs(t, rec.Body.Bytes()))
}

func TestHandleRecentMessages_InvalidLimit(t *testing.T) {
	srv := newTestServer(t)

	for _, limit := range []string{"abc", "0", "-5"} {
		t.Run(limit, func(t *testing.T) {
			rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/messages?limit="+limit, nil))

			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp apperrors.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, apperrors.TypeValidation, resp.Type)
			assert.Equal(t, limit, resp.Context["limit"])
		})
	}
}

func TestHandleRecentMessages_CacheUnavailable(t *testing.T) {
	srv := newTestServer(t, withRecent(&stubEvents{err: errBackendDown}))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/messages", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleWebSocket_UsesClientIP(t *testing.T) {
	attacher := &stubAttacher{}
	srv := newTestServer(t, withWebSocket(attacher))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "198.51.100.4:50000"
	serve(srv, req)

	assert.Equal(t, []string{"198.51.100.4"}, attacher.origins)
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
