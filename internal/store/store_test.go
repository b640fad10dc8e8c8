package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aios-dev/aios/internal/store"
	"github.com/aios-dev/aios/internal/testutil"
)

func setup(t *testing.T) *store.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	tdb, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	return store.New(tdb.Pool, nil)
}

func TestSessionLifecycle(t *testing.T) {
	st := setup(t)
	ctx := context.Background()

	t.Run("create with explicit id", func(t *testing.T) {
		sess, err := st.CreateSession(ctx, "my-session", "groceries")
		require.NoError(t, err)
		assert.Equal(t, "my-session", sess.ID)
		assert.Equal(t, "groceries", sess.Title)
		assert.Zero(t, sess.TotalTokens)
		assert.False(t, sess.CreatedAt.IsZero())
	})

	t.Run("create generates id when empty", func(t *testing.T) {
		sess, err := st.CreateSession(ctx, "", "")
		require.NoError(t, err)
		assert.NotEmpty(t, sess.ID)

		got, err := st.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, got.ID)
	})

	t.Run("get missing session", func(t *testing.T) {
		_, err := st.GetSession(ctx, "no-such-session")
		assert.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("list orders by creation time", func(t *testing.T) {
		sessions, err := st.ListSessions(ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, "my-session", sessions[0].ID)
	})

	t.Run("delete missing session", func(t *testing.T) {
		err := st.DeleteSession(ctx, "no-such-session")
		assert.ErrorIs(t, err, store.ErrSessionNotFound)
	})
}

func TestDeleteSessionCascadesToMessages(t *testing.T) {
	st := setup(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, "doomed", "")
	require.NoError(t, err)

	_, err = st.AddMessage(ctx, &store.Message{
		SessionID: sess.ID, Role: store.RoleUser, Content: "hi", TimestampMS: 100,
	})
	require.NoError(t, err)

	require.NoError(t, st.DeleteSession(ctx, sess.ID))

	_, err = st.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	msgs, err := st.History(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHistoryOrdering(t *testing.T) {
	st := setup(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, "ordered", "")
	require.NoError(t, err)

	// Inserted out of timestamp order, plus a same-millisecond pair that
	// must fall back to insertion order.
	for _, m := range []*store.Message{
		{SessionID: sess.ID, Role: store.RoleUser, Content: "third", TimestampMS: 300},
		{SessionID: sess.ID, Role: store.RoleUser, Content: "first", TimestampMS: 100},
		{SessionID: sess.ID, Role: store.RoleAssistant, Content: "second-a", TimestampMS: 200},
		{SessionID: sess.ID, Role: store.RoleAssistant, Content: "second-b", TimestampMS: 200},
	} {
		_, err := st.AddMessage(ctx, m)
		require.NoError(t, err)
	}

	msgs, err := st.History(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	var contents []string
	for _, m := range msgs {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"first", "second-a", "second-b", "third"}, contents)
}

func TestAddMessagePreservesNullFields(t *testing.T) {
	st := setup(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, "nulls", "")
	require.NoError(t, err)

	saved, err := st.AddMessage(ctx, &store.Message{
		SessionID: sess.ID, Role: store.RoleUser, Content: "plain", TimestampMS: 42,
	})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	msgs, err := st.History(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].ToolCallsJSON)
	assert.Nil(t, msgs[0].PromptTokens)
	assert.Nil(t, msgs[0].CompletionTokens)
	assert.Nil(t, msgs[0].TotalTokens)
}

func TestCompleteTurnIsAtomicAcrossCounters(t *testing.T) {
	st := setup(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, "counted", "")
	require.NoError(t, err)

	toolJSON := "[]"
	pt, ct, tt := int64(10), int64(5), int64(15)
	saved, err := st.CompleteTurn(ctx, &store.Message{
		SessionID: sess.ID, Role: store.RoleAssistant, Content: "answer",
		TimestampMS: 200, ToolCallsJSON: &toolJSON,
		PromptTokens: &pt, CompletionTokens: &ct, TotalTokens: &tt,
	}, store.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	got, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.PromptTokens)
	assert.Equal(t, int64(5), got.CompletionTokens)
	assert.Equal(t, int64(15), got.TotalTokens)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(15), stats.TotalTokens)

	// A second turn accumulates on top of the first.
	_, err = st.CompleteTurn(ctx, &store.Message{
		SessionID: sess.ID, Role: store.RoleAssistant, Content: "again",
		TimestampMS: 300, ToolCallsJSON: &toolJSON,
	}, store.Usage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5})
	require.NoError(t, err)

	got, err = st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.TotalTokens)

	stats, err = st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.PromptTokens)
	assert.Equal(t, int64(8), stats.CompletionTokens)
	assert.Equal(t, int64(20), stats.TotalTokens)
}

func TestCompleteTurnRollsBackOnBadSession(t *testing.T) {
	st := setup(t)
	ctx := context.Background()

	// The message insert violates the FK, so neither the session counters
	// nor the global stats may move.
	_, err := st.CompleteTurn(ctx, &store.Message{
		SessionID: "never-created", Role: store.RoleAssistant,
		Content: "orphan", TimestampMS: 100,
	}, store.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2})
	require.Error(t, err)
	assert.False(t, errors.Is(err, store.ErrSessionNotFound))

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalTokens)
}

func TestStatsLazilyCreatesSingletonRow(t *testing.T) {
	st := setup(t)
	ctx := context.Background()

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ID)
	assert.Zero(t, stats.PromptTokens)
	assert.Zero(t, stats.DeletedTotalTokens)

	again, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.ID, again.ID)
}
