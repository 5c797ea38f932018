package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notebridge/marksync/pkg/agent"
	"github.com/notebridge/marksync/pkg/bookmarks"
	"github.com/notebridge/marksync/pkg/state"
	"github.com/notebridge/marksync/pkg/storage"
	"github.com/notebridge/marksync/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *agent.Agent, *bookmarks.MemTree) {
	t.Helper()

	store := state.NewStore(storage.NewMemoryKV())
	broker := bookmarks.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	tree := bookmarks.NewMemTree(broker)
	a, err := agent.New(store, tree)
	require.NoError(t, err)
	t.Cleanup(a.Stop)

	return NewServer(a), a, tree
}

func (s *Server) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := s.request(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := s.request(t, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	st := decode[agent.Status](t, w)
	assert.Equal(t, 0, st.QueueDepth)
	assert.Equal(t, types.SessionDisconnected, st.Session.Status)
}

func TestConfigReadRedactsTokens(t *testing.T) {
	s, a, _ := newTestServer(t)

	require.NoError(t, a.SetConfig(&types.BridgeConfig{
		AutoSync:       true,
		ActiveClientID: "local",
		Profiles: []types.ClientProfile{
			{ClientID: "local", URL: "http://127.0.0.1:27123", Token: "secret", Enabled: true},
		},
	}))

	w := s.request(t, http.MethodGet, "/v1/config", nil)
	require.Equal(t, http.StatusOK, w.Code)

	cfg := decode[types.BridgeConfig](t, w)
	require.Len(t, cfg.Profiles, 1)
	assert.Equal(t, RedactedToken, cfg.Profiles[0].Token)
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestConfigPutKeepsRedactedTokens(t *testing.T) {
	s, a, _ := newTestServer(t)

	require.NoError(t, a.SetConfig(&types.BridgeConfig{
		AutoSync:       true,
		ActiveClientID: "local",
		Profiles: []types.ClientProfile{
			{ClientID: "local", URL: "http://127.0.0.1:27123", Token: "secret", Enabled: true},
		},
	}))

	// Read-modify-write: the client sends the redacted marker back.
	w := s.request(t, http.MethodGet, "/v1/config", nil)
	cfg := decode[types.BridgeConfig](t, w)
	cfg.AutoSync = false

	w = s.request(t, http.MethodPut, "/v1/config", cfg)
	require.Equal(t, http.StatusOK, w.Code)

	got := a.Config()
	assert.False(t, got.AutoSync)
	require.Len(t, got.Profiles, 1)
	assert.Equal(t, "secret", got.Profiles[0].Token, "redacted marker must not replace the stored token")
}

func TestConfigPutRejectsMalformedBody(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPut, "/v1/config", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncEndpointAccepted(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := s.request(t, http.MethodPost, "/v1/sync", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestBookmarkLifecycle(t *testing.T) {
	s, _, tree := newTestServer(t)

	// Create a folder, then a bookmark inside it.
	w := s.request(t, http.MethodPost, "/v1/bookmarks", CreateBookmarkRequest{
		ParentID: tree.RootID(),
		Title:    "Projects",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	folder := decode[bookmarks.Node](t, w)

	w = s.request(t, http.MethodPost, "/v1/bookmarks", CreateBookmarkRequest{
		ParentID: folder.ID,
		Title:    "Example",
		URL:      "https://example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	leaf := decode[bookmarks.Node](t, w)
	assert.Equal(t, folder.ID, leaf.ParentID)

	// Read it back directly and through the children listing.
	w = s.request(t, http.MethodGet, "/v1/bookmarks/"+leaf.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.request(t, http.MethodGet, "/v1/bookmarks/"+folder.ID+"/children", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listing := decode[struct {
		Children []bookmarks.Node `json:"children"`
	}](t, w)
	require.Len(t, listing.Children, 1)
	assert.Equal(t, leaf.ID, listing.Children[0].ID)

	// Retitle.
	title := "Example (renamed)"
	w = s.request(t, http.MethodPatch, "/v1/bookmarks/"+leaf.ID, UpdateBookmarkRequest{Title: &title})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[bookmarks.Node](t, w)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, "https://example.com", updated.URL)

	// Move back to the root.
	w = s.request(t, http.MethodPost, "/v1/bookmarks/"+leaf.ID+"/move", MoveBookmarkRequest{
		ParentID: tree.RootID(),
	})
	require.Equal(t, http.StatusOK, w.Code)
	moved := decode[bookmarks.Node](t, w)
	assert.Equal(t, tree.RootID(), moved.ParentID)

	// Delete the leaf, then the now-empty folder.
	w = s.request(t, http.MethodDelete, "/v1/bookmarks/"+leaf.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.request(t, http.MethodDelete, "/v1/bookmarks/"+folder.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRemoveNonEmptyFolderNeedsRecursive(t *testing.T) {
	s, _, tree := newTestServer(t)

	folder, err := tree.Create(tree.RootID(), "Keep", "", nil)
	require.NoError(t, err)
	_, err = tree.Create(folder.ID, "Inside", "https://ex/in", nil)
	require.NoError(t, err)

	w := s.request(t, http.MethodDelete, "/v1/bookmarks/"+folder.ID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.request(t, http.MethodDelete, "/v1/bookmarks/"+folder.ID+"?recursive=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.request(t, http.MethodGet, "/v1/bookmarks/"+folder.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRequiresParentID(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := s.request(t, http.MethodPost, "/v1/bookmarks", map[string]string{"title": "orphan"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownBookmarkIs404(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := s.request(t, http.MethodGet, "/v1/bookmarks/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventsGetAndClear(t *testing.T) {
	s, _, _ := newTestServer(t)

	// Sync records a timeline entry even when there is nothing to send.
	s.request(t, http.MethodPost, "/v1/sync", nil)

	w := s.request(t, http.MethodGet, "/v1/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Events []types.DebugEvent `json:"events"`
	}](t, w)
	assert.NotNil(t, body.Events)

	w = s.request(t, http.MethodDelete, "/v1/events", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.request(t, http.MethodGet, "/v1/events", nil)
	body = decode[struct {
		Events []types.DebugEvent `json:"events"`
	}](t, w)
	assert.Empty(t, body.Events)
}
