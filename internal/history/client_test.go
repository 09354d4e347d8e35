package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotmic/internal/domain"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/", server.Client(), nil)
}

func TestLoadDecodesBothTurnShapes(t *testing.T) {
	t.Parallel()

	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/agent/chat/session_1", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"role":"user","parts":[{"text":"hello "},{"text":"there"}]},
			{"role":"model","parts":[{"text":"Hi."}]},
			{"role":"user","text":"how are you"},
			{"role":"assistant","text":"Fine."},
			{"role":"model","parts":[]}
		]`))
	})

	entries, err := client.Load(context.Background(), "session_1")
	require.NoError(t, err)
	assert.Equal(t, []domain.TranscriptEntry{
		{Role: domain.RoleUser, Text: "hello there"},
		{Role: domain.RoleAgent, Text: "Hi."},
		{Role: domain.RoleUser, Text: "how are you"},
		{Role: domain.RoleAgent, Text: "Fine."},
	}, entries)
}

func TestLoadNotFound(t *testing.T) {
	t.Parallel()

	client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})

	_, err := client.Load(context.Background(), "session_new")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestLoadServerErrorIncludesBody(t *testing.T) {
	t.Parallel()

	client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "database locked", http.StatusInternalServerError)
	})

	_, err := client.Load(context.Background(), "session_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "database locked")
}

func TestLoadRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	})

	_, err := client.Load(context.Background(), "session_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode history")
}

func TestDelete(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath string
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.Delete(context.Background(), "session_9"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/agent/chat/session_9", gotPath)
}

func TestList(t *testing.T) {
	t.Parallel()

	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agent/sessions", r.URL.Path)
		_, _ = w.Write([]byte(`["session_1","session_2"]`))
	})

	ids, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"session_1", "session_2"}, ids)
}

func TestListNullIsEmpty(t *testing.T) {
	t.Parallel()

	client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})

	ids, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NotNil(t, ids)
}

func TestEmptyBaseURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient("", nil, nil).List(context.Background())
	require.Error(t, err)
}
