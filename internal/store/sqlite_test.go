package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datachat-ai/datachat/internal/ops"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedSession(t *testing.T, s *Store) (*User, *Session) {
	t.Helper()
	ctx := context.Background()
	user, err := s.CreateUser(ctx, "alice", "hash", false)
	require.NoError(t, err)
	sess, err := s.CreateSession(ctx, user.ID, "sales analysis")
	require.NoError(t, err)
	return user, sess
}

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "bob", "bcrypt-hash", true)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := s.GetUser(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Name)
	assert.Equal(t, "bcrypt-hash", got.APIKeyHash)
	assert.True(t, got.Unlimited)

	_, err = s.GetUser(ctx, "nope")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user, sess := seedSession(t, s)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.UserID)

	require.NoError(t, s.RenameSession(ctx, sess.ID, "renamed"))
	got, err = s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	sessions, err := s.ListSessions(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	require.NoError(t, s.DeleteSession(ctx, sess.ID))
	_, err = s.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, s.RenameSession(ctx, sess.ID, "x"), ErrSessionNotFound)
	assert.ErrorIs(t, s.DeleteSession(ctx, sess.ID), ErrSessionNotFound)
}

func TestAppendExchangeAdvancesSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, sess := seedSession(t, s)

	later := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	ex := &Exchange{
		SessionID: sess.ID,
		Role:      RoleUser,
		Content:   "how are sales trending?",
		CreatedAt: later,
	}
	require.NoError(t, s.AppendExchange(ctx, ex))
	require.NotEmpty(t, ex.ID)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(later), "session updated_at should track the exchange")

	exchanges, err := s.ListExchanges(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, exchanges, 1)
	assert.Equal(t, "how are sales trending?", exchanges[0].Content)
}

func TestAppendExchangeUnknownSession(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendExchange(context.Background(), &Exchange{
		SessionID: "missing",
		Role:      RoleUser,
		Content:   "hello",
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAppendExchangeErrorPayloadInvariant(t *testing.T) {
	s := newTestStore(t)
	_, sess := seedSession(t, s)

	err := s.AppendExchange(context.Background(), &Exchange{
		SessionID: sess.ID,
		Role:      RoleAssistant,
		Content:   "something broke",
		Error:     "backend down",
		Chart:     &ops.Chart{Kind: "bar"},
	})
	assert.Error(t, err, "error exchanges must not carry payloads")
}

func TestExchangePayloadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, sess := seedSession(t, s)

	ex := &Exchange{
		SessionID: sess.ID,
		Role:      RoleAssistant,
		Content:   "revenue is trending up",
		Table: &ops.Table{
			Columns: []string{"month", "revenue"},
			Rows:    [][]any{{"jan", 100.0}},
		},
		Chart: &ops.Chart{
			Kind:   "line",
			Series: []ops.Series{{Name: "revenue", Values: []float64{100, 120}}},
		},
		Operations: []string{"line_chart"},
	}
	require.NoError(t, s.AppendExchange(ctx, ex))

	exchanges, err := s.ListExchanges(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, exchanges, 1)

	got := exchanges[0]
	require.NotNil(t, got.Table)
	assert.Equal(t, []string{"month", "revenue"}, got.Table.Columns)
	require.NotNil(t, got.Chart)
	assert.Equal(t, "line", got.Chart.Kind)
	assert.Equal(t, []string{"line_chart"}, got.Operations)
	assert.Empty(t, got.Error)
}

func TestDeleteSessionCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, sess := seedSession(t, s)

	require.NoError(t, s.AppendExchange(ctx, &Exchange{
		SessionID: sess.ID, Role: RoleUser, Content: "hi",
	}))
	require.NoError(t, s.DeleteSession(ctx, sess.ID))

	exchanges, err := s.ListExchanges(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, exchanges)
}

func TestCountUserExchangesSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user, sess := seedSession(t, s)
	sess2, err := s.CreateSession(ctx, user.ID, "second session")
	require.NoError(t, err)

	midnight := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	appendAt := func(sessID, role string, at time.Time) {
		require.NoError(t, s.AppendExchange(ctx, &Exchange{
			SessionID: sessID, Role: role, Content: "m", CreatedAt: at,
		}))
	}

	// Yesterday's message doesn't count; assistant replies never count;
	// both sessions of the same user do.
	appendAt(sess.ID, RoleUser, midnight.Add(-time.Hour))
	appendAt(sess.ID, RoleUser, midnight.Add(time.Hour))
	appendAt(sess.ID, RoleAssistant, midnight.Add(time.Hour))
	appendAt(sess2.ID, RoleUser, midnight.Add(2*time.Hour))

	count, err := s.CountUserExchangesSince(ctx, user.ID, midnight)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Another user's traffic is invisible.
	other, err := s.CreateUser(ctx, "mallory", "h", false)
	require.NoError(t, err)
	count, err = s.CountUserExchangesSince(ctx, other.ID, midnight)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestListExchangesSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, sess := seedSession(t, s)

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendExchange(ctx, &Exchange{
			SessionID: sess.ID, Role: RoleUser, Content: "m",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := s.ListExchangesSince(ctx, sess.ID, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
