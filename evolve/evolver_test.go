package evolve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthatchery/cradle/llm"
	"github.com/agenthatchery/cradle/repo"
	"github.com/agenthatchery/cradle/sandbox"
)

type scriptedProvider struct {
	response string
}

func (s *scriptedProvider) Name() string       { return "scripted" }
func (s *scriptedProvider) Model() string      { return "test-model" }
func (s *scriptedProvider) CostPer1K() float64 { return 0 }

func (s *scriptedProvider) Complete(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: s.response, Provider: "scripted"}, nil
}

func newTestRouter(response string) *llm.Router {
	return llm.NewRouter([]llm.ProviderSpec{{Provider: &scriptedProvider{response: response}, Priority: 1}}, nil)
}

type fakeMemory struct {
	stored map[string]any
}

func (f *fakeMemory) Store(ctx context.Context, key string, value any, tags []string, description, tier string) error {
	if f.stored == nil {
		f.stored = make(map[string]any)
	}
	f.stored[key] = value
	return nil
}

type fakeAudit struct {
	records []string
}

func (f *fakeAudit) Record(ctx context.Context, kind, subjectID, status, detail string) error {
	f.records = append(f.records, fmt.Sprintf("%s/%s/%s", kind, subjectID, status))
	return nil
}

// writeTempSource creates a minimal whitelisted source tree so readSource
// has something to snapshot without touching the real module root.
func writeTempSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "skills"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skills", "skill.go"), []byte("package skills\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example\n"), 0o644))
	return dir
}

// githubStub serves just enough of the GitHub REST surface for a full
// evolve() cycle: ref lookup, branch create, content get/put, merge,
// branch delete.
func githubStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org/repo/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"object": map[string]string{"sha": "base-sha"}})
	})
	mux.HandleFunc("/repos/org/repo/git/refs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/repos/org/repo/contents/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			w.WriteHeader(http.StatusOK)
		}
	})
	mux.HandleFunc("/repos/org/repo/merges", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/repos/org/repo/git/refs/heads/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return httptest.NewServer(mux)
}

func newTestRepoClient(t *testing.T, srv *httptest.Server) *repo.Client {
	t.Helper()
	return repo.New(repo.Config{Org: "org", Repo: "repo", PAT: "token", BaseURL: srv.URL})
}

func TestExtractJSON_AllFourStrategies(t *testing.T) {
	var out proposal

	require.True(t, extractJSON(`{"description":"d","files":{"a.go":"x"},"risk":"low"}`, &out))
	assert.Equal(t, "d", out.Description)

	out = proposal{}
	require.True(t, extractJSON("```json\n{\"description\":\"fenced\",\"files\":{},\"risk\":\"low\"}\n```", &out))
	assert.Equal(t, "fenced", out.Description)

	out = proposal{}
	require.True(t, extractJSON(`noise {"description":"spanned","files":{},"risk":"low"} trailing`, &out))
	assert.Equal(t, "spanned", out.Description)

	out = proposal{}
	require.True(t, extractJSON(`{"description":"repaired","files":{},"risk":"low",}`, &out))
	assert.Equal(t, "repaired", out.Description)

	require.False(t, extractJSON("not json at all", &out))
}

func TestReadSource_CollectsWhitelistedGoFilesAndRootFiles(t *testing.T) {
	dir := writeTempSource(t)
	files, err := readSource(dir)
	require.NoError(t, err)
	assert.Contains(t, files, "skills/skill.go")
	assert.Contains(t, files, "go.mod")
}

func TestReadSource_MissingRootFilesAreSkippedSilently(t *testing.T) {
	dir := t.TempDir()
	files, err := readSource(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestProposeImprovement_RejectsHighRisk(t *testing.T) {
	router := newTestRouter(`{"description":"d","files":{"skills/x.go":"content"},"risk":"high"}`)
	e := New(Config{}, router, sandbox.NewDriver(nil), nil, nil, nil, nil)

	_, err := e.proposeImprovement(context.Background(), map[string]string{"skills/x.go": "old"})
	assert.Error(t, err)
}

func TestProposeImprovement_StripsProtectedFiles(t *testing.T) {
	router := newTestRouter(fmt.Sprintf(
		`{"description":"d","files":{%q:"new main","skills/x.go":"new skill"},"risk":"low"}`,
		entryFile,
	))
	e := New(Config{}, router, sandbox.NewDriver(nil), nil, nil, nil, nil)

	p, err := e.proposeImprovement(context.Background(), map[string]string{"skills/x.go": "old"})
	require.NoError(t, err)
	assert.NotContains(t, p.Files, entryFile)
	assert.Contains(t, p.Files, "skills/x.go")
}

func TestProposeImprovement_RejectsWhenOnlyProtectedFilesProposed(t *testing.T) {
	router := newTestRouter(fmt.Sprintf(`{"description":"d","files":{%q:"new"},"risk":"low"}`, entryFile))
	e := New(Config{}, router, sandbox.NewDriver(nil), nil, nil, nil, nil)

	_, err := e.proposeImprovement(context.Background(), map[string]string{})
	assert.Error(t, err)
}

func TestProposeImprovement_TrimsToOneFile(t *testing.T) {
	router := newTestRouter(`{"description":"d","files":{"skills/a.go":"a","skills/b.go":"b"},"risk":"medium"}`)
	e := New(Config{}, router, sandbox.NewDriver(nil), nil, nil, nil, nil)

	p, err := e.proposeImprovement(context.Background(), map[string]string{})
	require.NoError(t, err)
	assert.Len(t, p.Files, 1)
}

func TestEvolve_NoImprovementProposedReturnsFriendlySummary(t *testing.T) {
	router := newTestRouter(`{"description":"d","files":{},"risk":"high"}`)
	dir := writeTempSource(t)
	audit := &fakeAudit{}
	e := New(Config{SourceDir: dir}, router, sandbox.NewDriver(nil), nil, nil, audit, nil)

	summary := e.Evolve(context.Background())
	assert.Contains(t, summary, "no improvement proposed")
	assert.Len(t, audit.records, 1)
}

func TestEvolve_FullCycleCreatesBranchPushesMergesAndRequestsRestart(t *testing.T) {
	srv := githubStub(t)
	defer srv.Close()

	router := newTestRouter(`{"description":"add a helper","files":{"skills/x.go":"package skills\n// new\n"},"risk":"low"}`)
	repoClient := newTestRepoClient(t, srv)
	dir := writeTempSource(t)
	mem := &fakeMemory{}
	audit := &fakeAudit{}

	e := New(Config{SourceDir: dir}, router, sandbox.NewDriver(nil), repoClient, mem, audit, nil)
	restarted := false
	e.RequestRestart = func() { restarted = true }

	summary := e.Evolve(context.Background())
	assert.Contains(t, summary, "evolution #1 pushed")
	assert.True(t, restarted)
	assert.Contains(t, mem.stored, "evolution:1")
	require.Len(t, audit.records, 1)
	assert.Contains(t, audit.records[0], "succeeded")
}

func TestEvolve_SandboxTestFailureAbortsBeforePush(t *testing.T) {
	router := newTestRouter(`{"description":"d","files":{"skills/x.go":"bad"},"test_code":"exit 1","risk":"low"}`)
	dir := writeTempSource(t)
	mem := &fakeMemory{}
	audit := &fakeAudit{}

	e := New(Config{SourceDir: dir}, router, sandbox.NewDriver(nil), nil, mem, audit, nil)
	summary := e.Evolve(context.Background())

	assert.Contains(t, summary, "failed testing")
	assert.Contains(t, mem.stored, "evolution_failure:1")
}
