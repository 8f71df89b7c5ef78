package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/runger/sheetql/internal/ingest"
	"github.com/runger/sheetql/internal/llm"
	"github.com/runger/sheetql/internal/pipeline"
)

func writeTinyWorkbook(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tiny.xlsx")
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"region", "amount"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"north", 10}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"south", 20}))
	require.NoError(t, f.SaveAs(path))
	return path
}

func testOptions(t *testing.T) TurnOptions {
	return TurnOptions{
		Model:      "gpt-4o",
		Budget:     10 * time.Second,
		OutputPath: filepath.Join(t.TempDir(), "out.xlsx"),
	}
}

func TestStateTransitions(t *testing.T) {
	src := writeTinyWorkbook(t)
	mock := llm.NewMockCompleter(
		"amount",
		"SELECT SUM(amount) AS total FROM data",
		"The total amount is 30.",
	)
	p := pipeline.New(mock, ingest.NewCache(), nil, t.TempDir())

	sess := &Session{UserID: "u1"}
	assert.Equal(t, StateIdle, sess.State)

	sess.SelectFile(File{ID: "1", Name: "tiny.xlsx", Path: src}, ActionQuestion)
	assert.Equal(t, StateWaitingQuery, sess.State)
	assert.Empty(t, sess.History)

	out, err := sess.Dispatch(context.Background(), p, "what is the total?", testOptions(t))
	require.NoError(t, err)
	assert.Equal(t, StateChatMode, sess.State)
	assert.Equal(t, "The total amount is 30.", out.Text)

	// One user turn and one assistant turn were appended.
	require.Len(t, sess.History, 2)
	assert.Equal(t, llm.RoleUser, sess.History[0].Role)
	assert.Equal(t, "what is the total?", sess.History[0].Content)
	assert.Equal(t, llm.RoleAssistant, sess.History[1].Role)
}

func TestTableDispatchReturnsToActionChoice(t *testing.T) {
	src := writeTinyWorkbook(t)
	mock := llm.NewMockCompleter(
		"region, amount",
		"SELECT region, amount FROM data",
		"The file lists both regions with their amounts.",
	)
	p := pipeline.New(mock, ingest.NewCache(), nil, t.TempDir())

	sess := &Session{UserID: "u1"}
	sess.SelectFile(File{ID: "1", Name: "tiny.xlsx", Path: src}, ActionTable)

	out, err := sess.Dispatch(context.Background(), p, "regions with amounts", testOptions(t))
	require.NoError(t, err)
	assert.NotEmpty(t, out.ArtifactPath)

	// Building a table does not enter chat mode: the user is back at
	// the action choice, with the file still selected.
	assert.Equal(t, StateIdle, sess.State)
	require.NotNil(t, sess.File)
	assert.Equal(t, "tiny.xlsx", sess.File.Name)

	sess.ChooseAction(ActionQuestion)
	assert.Equal(t, StateWaitingQuery, sess.State)
	assert.Len(t, sess.History, 2, "re-arming keeps the conversation")
}

func TestEndChatClearsHistoryRetainsFile(t *testing.T) {
	sess := &Session{UserID: "u1"}
	sess.SelectFile(File{ID: "1", Name: "tiny.xlsx", Path: "/tmp/tiny.xlsx"}, ActionQuestion)
	sess.History = []llm.Message{llm.User("q"), llm.Assistant("a")}
	sess.State = StateChatMode

	sess.EndChat()
	assert.Equal(t, StateIdle, sess.State)
	assert.Empty(t, sess.History)
	require.NotNil(t, sess.File)
	assert.Equal(t, "tiny.xlsx", sess.File.Name)
}

func TestCancelResetsImmediately(t *testing.T) {
	sess := &Session{UserID: "u1", State: StateWaitingQuery}
	sess.File = &File{ID: "1", Name: "tiny.xlsx"}
	sess.History = []llm.Message{llm.User("q")}

	sess.Cancel()
	assert.Equal(t, StateIdle, sess.State)
	assert.Empty(t, sess.History)
	assert.NotNil(t, sess.File)
}

func TestDispatchFailureLeavesHistoryUntouched(t *testing.T) {
	mock := llm.NewMockCompleter()
	p := pipeline.New(mock, ingest.NewCache(), nil, t.TempDir())

	sess := &Session{UserID: "u1"}
	sess.SelectFile(File{ID: "1", Name: "gone.xlsx", Path: "/nonexistent/gone.xlsx"}, ActionQuestion)

	_, err := sess.Dispatch(context.Background(), p, "anything", testOptions(t))
	require.Error(t, err)
	assert.Empty(t, sess.History)
	assert.Equal(t, StateWaitingQuery, sess.State)
}

func TestReportOnlyAppendsAssistantTurn(t *testing.T) {
	src := writeTinyWorkbook(t)
	mock := llm.NewMockCompleter(
		"region, amount",
		"SELECT region, amount FROM data",
		"The report lists both regions with their amounts.",
	)
	p := pipeline.New(mock, ingest.NewCache(), nil, t.TempDir())

	sess := &Session{UserID: "u1"}
	sess.SelectFile(File{ID: "1", Name: "tiny.xlsx", Path: src}, ActionQuestion)
	sess.History = []llm.Message{llm.User("earlier"), llm.Assistant("answer")}
	sess.State = StateChatMode

	out, err := sess.Report(context.Background(), p, testOptions(t))
	require.NoError(t, err)
	assert.NotEmpty(t, out.ArtifactPath)

	// The synthetic report request never enters the live history.
	require.Len(t, sess.History, 3)
	assert.Equal(t, llm.RoleAssistant, sess.History[2].Role)
	for _, m := range sess.History {
		assert.NotEqual(t, reportQuestion, m.Content)
	}
}

func TestStoreCreatesAndReusesSessions(t *testing.T) {
	store := NewStoreWithTTL(time.Minute)

	a := store.Get("alice")
	assert.Equal(t, StateIdle, a.State)
	a.State = StateChatMode

	again := store.Get("alice")
	assert.Same(t, a, again)
	assert.Equal(t, StateChatMode, again.State)

	b := store.Get("bob")
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, store.Len())

	store.Drop("alice")
	assert.Equal(t, 1, store.Len())
}
