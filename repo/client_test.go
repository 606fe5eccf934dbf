package repo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New(Config{Org: "agenthatchery", Repo: "cradle", PAT: "test-pat"})
	c.httpClient = srv.Client()
	c.baseURL = srv.URL
	return c, srv.Close
}

func TestGetFile_DecodesBase64Content(t *testing.T) {
	c, closeSrv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token test-pat", r.Header.Get("Authorization"))
		resp := contentResponse{Content: base64.StdEncoding.EncodeToString([]byte("package main")), SHA: "abc123"}
		_ = json.NewEncoder(w).Encode(resp)
	})
	defer closeSrv()

	file, err := c.GetFile(context.Background(), "main.go", "main")
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, "package main", file.Content)
	assert.Equal(t, "abc123", file.SHA)
}

func TestGetFile_NotFoundReturnsNil(t *testing.T) {
	c, closeSrv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer closeSrv()

	file, err := c.GetFile(context.Background(), "missing.go", "main")
	require.NoError(t, err)
	assert.Nil(t, file)
}

func TestPutFile_SendsBase64EncodedContent(t *testing.T) {
	var gotBody putFileBody
	c, closeSrv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})
	defer closeSrv()

	err := c.PutFile(context.Background(), "main.go", "package main", "update", "evolve-1", "sha1")
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(gotBody.Content)
	require.NoError(t, err)
	assert.Equal(t, "package main", string(decoded))
	assert.Equal(t, "sha1", gotBody.SHA)
	assert.Equal(t, "evolve-1", gotBody.Branch)
}

func TestMergeBranch_NoContentIsSuccess(t *testing.T) {
	c, closeSrv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	defer closeSrv()

	assert.NoError(t, c.MergeBranch(context.Background(), "evolve-1", "main", ""))
}

func TestMergeBranch_ErrorStatusPropagates(t *testing.T) {
	c, closeSrv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	defer closeSrv()

	assert.Error(t, c.MergeBranch(context.Background(), "evolve-1", "main", ""))
}

func TestCreateBranch_UnprocessableEntityMeansAlreadyExists(t *testing.T) {
	call := 0
	c, closeSrv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		call++
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(refObject{})
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	defer closeSrv()

	assert.NoError(t, c.CreateBranch(context.Background(), "evolve-1", "main"))
	assert.Equal(t, 2, call)
}

func TestEnsureRepoExists_CreatesWhenMissing(t *testing.T) {
	calls := []string{}
	c, closeSrv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	defer closeSrv()

	require.NoError(t, c.EnsureRepoExists(context.Background()))
	assert.Len(t, calls, 2)
}

func TestEnsureRepoExists_NoopWhenPresent(t *testing.T) {
	calls := 0
	c, closeSrv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	defer closeSrv()

	require.NoError(t, c.EnsureRepoExists(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestPushFiles_UpsertsEachFile(t *testing.T) {
	puts := 0
	c, closeSrv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			puts++
			w.WriteHeader(http.StatusOK)
		}
	})
	defer closeSrv()

	err := c.PushFiles(context.Background(), map[string]string{
		"a.go": "package a",
		"b.go": "package b",
	}, "evolve-1", "evolve")
	require.NoError(t, err)
	assert.Equal(t, 2, puts)
}
