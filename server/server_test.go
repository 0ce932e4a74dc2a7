package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/evermind-ai/evermind/agent"
	"github.com/evermind-ai/evermind/auth"
	"github.com/evermind-ai/evermind/core"
	"github.com/evermind-ai/evermind/memory"
	"github.com/evermind-ai/evermind/memory/embedder/mock"
	chromemstore "github.com/evermind-ai/evermind/memory/store/chromem"
	"github.com/evermind-ai/evermind/server"
)

// turnExtractor promotes every user turn to a durable fact, which keeps
// the end-to-end flow observable without a language model.
type turnExtractor struct{}

func (turnExtractor) Extract(_ context.Context, turns []core.Turn) ([]memory.Fact, error) {
	var facts []memory.Fact
	for _, turn := range turns {
		if turn.Role == core.RoleUser {
			facts = append(facts, memory.Fact{Statement: "user said: " + turn.Content, Confidence: 1})
		}
	}
	return facts, nil
}

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return fmt.Sprintf("reply (%d prompt bytes)", len(prompt)), nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	authStore, err := auth.Open(filepath.Join(t.TempDir(), "users.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { authStore.Close() })

	store, err := chromemstore.New()
	gt.NoError(t, err)

	manager := memory.NewManager(store, mock.New(8), turnExtractor{}, nil)
	handler := agent.NewHandler(manager, echoGenerator{}, agent.Config{})

	srv := httptest.NewServer(server.New(authStore, handler, manager, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	gt.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	gt.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	gt.NoError(t, err)
	gt.NoError(t, json.Unmarshal(data, v))
}

func registerOwner(t *testing.T, srv *httptest.Server, email string) string {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/register", "", map[string]string{
		"email":    email,
		"password": "s3cret",
	})
	gt.Equal(t, resp.StatusCode, http.StatusCreated)
	var created map[string]string
	decodeBody(t, resp, &created)
	gt.True(t, created["token"] != "")
	return created["token"]
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	gt.NoError(t, err)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	resp.Body.Close()
}

func TestChatFlow(t *testing.T) {
	srv := newTestServer(t)
	token := registerOwner(t, srv, "alice@example.com")

	resp := postJSON(t, srv.URL+"/api/chat", token, map[string]string{
		"message": "I live in Lisbon",
	})
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	var chat map[string]string
	decodeBody(t, resp, &chat)
	gt.True(t, chat["reply"] != "")

	// The consolidated fact should now be listed.
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/memories", nil)
	gt.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	listResp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err)
	gt.Equal(t, listResp.StatusCode, http.StatusOK)

	var listing struct {
		Memories []memory.Record `json:"memories"`
	}
	decodeBody(t, listResp, &listing)
	gt.Equal(t, len(listing.Memories), 1)
	gt.Equal(t, listing.Memories[0].Text, "user said: I live in Lisbon")
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/chat", "", map[string]string{"message": "hi"})
	gt.Equal(t, resp.StatusCode, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestLoginAndLogout(t *testing.T) {
	srv := newTestServer(t)
	registerOwner(t, srv, "alice@example.com")

	resp := postJSON(t, srv.URL+"/api/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "s3cret",
	})
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	var login map[string]string
	decodeBody(t, resp, &login)
	token := login["token"]
	gt.True(t, token != "")

	resp = postJSON(t, srv.URL+"/api/logout", token, map[string]string{})
	gt.Equal(t, resp.StatusCode, http.StatusNoContent)
	resp.Body.Close()

	// The revoked token no longer authenticates.
	resp = postJSON(t, srv.URL+"/api/chat", token, map[string]string{"message": "hi"})
	gt.Equal(t, resp.StatusCode, http.StatusUnauthorized)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	gt.Equal(t, resp.StatusCode, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestDeleteMemoryScoping(t *testing.T) {
	srv := newTestServer(t)
	aliceToken := registerOwner(t, srv, "alice@example.com")
	bobToken := registerOwner(t, srv, "bob@example.com")

	resp := postJSON(t, srv.URL+"/api/chat", aliceToken, map[string]string{
		"message": "I play the cello",
	})
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	resp.Body.Close()

	recordID := listOnlyMemoryID(t, srv, aliceToken)

	// Another owner cannot delete it.
	resp = doDelete(t, srv.URL+"/api/memories/"+recordID, bobToken)
	gt.Equal(t, resp.StatusCode, http.StatusForbidden)
	resp.Body.Close()

	resp = doDelete(t, srv.URL+"/api/memories/"+recordID, aliceToken)
	gt.Equal(t, resp.StatusCode, http.StatusNoContent)
	resp.Body.Close()

	// A second delete finds nothing.
	resp = doDelete(t, srv.URL+"/api/memories/"+recordID, aliceToken)
	gt.Equal(t, resp.StatusCode, http.StatusNotFound)
	resp.Body.Close()
}

func TestClearMemories(t *testing.T) {
	srv := newTestServer(t)
	token := registerOwner(t, srv, "alice@example.com")

	for _, msg := range []string{"I live in Lisbon", "I play the cello"} {
		resp := postJSON(t, srv.URL+"/api/chat", token, map[string]string{"message": msg})
		gt.Equal(t, resp.StatusCode, http.StatusOK)
		resp.Body.Close()
	}

	resp := doDelete(t, srv.URL+"/api/memories", token)
	gt.Equal(t, resp.StatusCode, http.StatusNoContent)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/memories", nil)
	gt.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	listResp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err)
	var listing struct {
		Memories []memory.Record `json:"memories"`
	}
	decodeBody(t, listResp, &listing)
	gt.Equal(t, len(listing.Memories), 0)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv := newTestServer(t)
	token := registerOwner(t, srv, "alice@example.com")

	resp := postJSON(t, srv.URL+"/api/chat", token, map[string]string{"message": "   "})
	gt.Equal(t, resp.StatusCode, http.StatusBadRequest)
	resp.Body.Close()
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	srv := newTestServer(t)
	registerOwner(t, srv, "alice@example.com")

	resp := postJSON(t, srv.URL+"/api/register", "", map[string]string{
		"email":    "alice@example.com",
		"password": "other",
	})
	gt.Equal(t, resp.StatusCode, http.StatusConflict)
	resp.Body.Close()
}

func listOnlyMemoryID(t *testing.T, srv *httptest.Server, token string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/memories", nil)
	gt.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err)
	var listing struct {
		Memories []memory.Record `json:"memories"`
	}
	decodeBody(t, resp, &listing)
	gt.Equal(t, len(listing.Memories), 1)
	return listing.Memories[0].ID
}

func doDelete(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	gt.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err)
	return resp
}
