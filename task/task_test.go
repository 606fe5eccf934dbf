package task

import (
	"context"
	"testing"
	"time"

	"github.com/agenthatchery/cradle/llm"
	"github.com/agenthatchery/cradle/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTaskMetrics struct {
	statuses []string
}

func (f *fakeTaskMetrics) ObserveTaskOutcome(status string, elapsed time.Duration) {
	f.statuses = append(f.statuses, status)
}

type scriptedProvider struct {
	responses []string
	calls     int
}

func (s *scriptedProvider) Name() string       { return "scripted" }
func (s *scriptedProvider) Model() string      { return "test-model" }
func (s *scriptedProvider) CostPer1K() float64 { return 0 }

func (s *scriptedProvider) Complete(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return &llm.ChatResponse{Content: s.responses[idx], Provider: "scripted"}, nil
}

func newTestEngine(t *testing.T, responses ...string) *Engine {
	t.Helper()
	provider := &scriptedProvider{responses: responses}
	router := llm.NewRouter([]llm.ProviderSpec{{Provider: provider, Priority: 1}}, nil)
	return New(Config{
		LLM:     router,
		Sandbox: sandbox.NewDriver(nil),
	})
}

func TestExtractJSON_DirectParse(t *testing.T) {
	var out planJSON
	ok := extractJSON(`{"type":"direct_answer","answer":"42"}`, &out)
	require.True(t, ok)
	assert.Equal(t, "42", out.Answer)
}

func TestExtractJSON_FencedBlock(t *testing.T) {
	var out planJSON
	text := "Sure, here you go:\n```json\n{\"type\":\"direct_answer\",\"answer\":\"fenced\"}\n```"
	ok := extractJSON(text, &out)
	require.True(t, ok)
	assert.Equal(t, "fenced", out.Answer)
}

func TestExtractJSON_FirstToLastBrace(t *testing.T) {
	var out planJSON
	text := `some preamble { "type": "direct_answer", "answer": "spanned" } trailing notes`
	ok := extractJSON(text, &out)
	require.True(t, ok)
	assert.Equal(t, "spanned", out.Answer)
}

func TestExtractJSON_TrailingCommaRepair(t *testing.T) {
	var out planJSON
	text := `{"type": "direct_answer", "answer": "trailing",}`
	ok := extractJSON(text, &out)
	require.True(t, ok)
	assert.Equal(t, "trailing", out.Answer)
}

func TestExtractJSON_Unparseable(t *testing.T) {
	var out planJSON
	ok := extractJSON("not json at all", &out)
	assert.False(t, ok)
}

func TestEngine_AddTask_TracksParentChild(t *testing.T) {
	e := newTestEngine(t, `{"type":"direct_answer","answer":"ok"}`)
	parent := e.AddTask("parent task", "", "", "user")
	child := e.AddTask("child task", "", parent.ID, "self")

	got, ok := e.Get(parent.ID)
	require.True(t, ok)
	assert.Contains(t, got.Children, child.ID)
	assert.Equal(t, 2, e.PendingCount())
}

func TestEngine_ProcessNext_EmptyQueue(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestEngine_ProcessNext_DirectAnswer(t *testing.T) {
	e := newTestEngine(t, `{"type":"direct_answer","answer":"hello there"}`)
	e.AddTask("say hello", "", "", "user")

	result, err := e.ProcessNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "hello there", result.Result)
}

func TestEngine_ProcessNext_Decompose(t *testing.T) {
	e := newTestEngine(t, `{"type":"decompose","subtasks":[{"title":"step one","description":"first"},{"title":"step two","description":"second"}]}`)
	parent := e.AddTask("big task", "", "", "user")

	result, err := e.ProcessNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, StatusBlocked, result.Status)

	got, ok := e.Get(parent.ID)
	require.True(t, ok)
	assert.Len(t, got.Children, 2)
	assert.Equal(t, 2, e.PendingCount()) // two subtasks enqueued, parent already dequeued
}

func TestEngine_ProcessNext_FallsBackToDirectAnswerOnUnparseablePlan(t *testing.T) {
	e := newTestEngine(t, "I cannot help with that, sorry.")
	e.AddTask("do something unclear", "", "", "user")

	result, err := e.ProcessNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Contains(t, result.Result, "cannot help")
}

func TestEngine_StatusSummary_EmptyAndPopulated(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, "No tasks.", e.StatusSummary())

	e.AddTask("a task", "", "", "user")
	assert.Contains(t, e.StatusSummary(), "a task")
}

func TestEngine_Snapshot_ReturnsCopiesNotLiveTasks(t *testing.T) {
	e := newTestEngine(t)
	added := e.AddTask("a task", "", "", "user")

	snap := e.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, added.ID, snap[0].ID)

	snap[0].Title = "mutated"
	got, ok := e.Get(added.ID)
	require.True(t, ok)
	assert.Equal(t, "a task", got.Title)
}

func TestEngine_ProcessNext_ObservesTerminalOutcomeInMetrics(t *testing.T) {
	provider := &scriptedProvider{responses: []string{`{"type":"direct_answer","answer":"hi"}`}}
	router := llm.NewRouter([]llm.ProviderSpec{{Provider: provider, Priority: 1}}, nil)
	fm := &fakeTaskMetrics{}
	e := New(Config{LLM: router, Sandbox: sandbox.NewDriver(nil), Metrics: fm})

	e.AddTask("say hi", "", "", "user")
	_, err := e.ProcessNext(context.Background())
	require.NoError(t, err)

	require.Len(t, fm.statuses, 1)
	assert.Equal(t, string(StatusCompleted), fm.statuses[0])
}

func TestEngine_TotalCount_CountsAllTasksRegardlessOfStatus(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, 0, e.TotalCount())

	e.AddTask("one", "", "", "user")
	e.AddTask("two", "", "", "user")
	assert.Equal(t, 2, e.TotalCount())
}
