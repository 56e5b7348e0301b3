package session_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/voice/capability"
	"github.com/tailored-agentic-units/voice/dispatch"
	"github.com/tailored-agentic-units/voice/session"
)

func backends(t *testing.T) map[string]func(t *testing.T) session.Store {
	t.Helper()
	return map[string]func(t *testing.T) session.Store{
		"memory": func(t *testing.T) session.Store {
			return session.NewMemoryStore()
		},
		"sqlite": func(t *testing.T) session.Store {
			s, err := session.NewSQLStore(filepath.Join(t.TempDir(), "sessions.db"), nil)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s session.Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestStore_CreateAndPreferences(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s session.Store) {
		ctx := context.Background()

		id1, err := s.Create(ctx, session.Preferences{Voice: "ava", Rate: 25})
		require.NoError(t, err)
		id2, err := s.Create(ctx, session.DefaultPreferences())
		require.NoError(t, err)
		assert.NotEqual(t, id1, id2)

		prefs, err := s.Preferences(ctx, id1)
		require.NoError(t, err)
		assert.Equal(t, session.Preferences{Language: "en-US", Voice: "ava", Rate: 10, Pitch: 1}, prefs)

		require.NoError(t, s.SetPreferences(ctx, id1, session.Preferences{Language: "fr-FR", Rate: 0.8, Pitch: 1.2}))
		prefs, err = s.Preferences(ctx, id1)
		require.NoError(t, err)
		assert.Equal(t, "fr-FR", prefs.Language)
		assert.Equal(t, 0.8, prefs.Rate)

		_, err = s.Preferences(ctx, "missing")
		assert.ErrorIs(t, err, session.ErrNotFound)
		assert.ErrorIs(t, s.SetPreferences(ctx, "missing", session.DefaultPreferences()), session.ErrNotFound)
	})
}

func TestStore_AppendAndHistory(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s session.Store) {
		ctx := context.Background()
		id, err := s.Create(ctx, session.DefaultPreferences())
		require.NoError(t, err)

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		result := &dispatch.Result{CapabilityID: "smarty-core", Action: "generate", Success: true, Message: "done"}

		stored, err := s.Append(ctx, id,
			session.Turn{Sender: session.SenderUser, Content: "generate smart code", Timestamp: base, Confidence: ptr(0.9)},
			session.Turn{Sender: session.SenderAssistant, Content: "done", Timestamp: base.Add(time.Second), Intent: "generate", Dispatch: result},
		)
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.NotEmpty(t, stored[0].ID)
		assert.Equal(t, session.KindUtterance, stored[0].Kind)
		assert.Equal(t, session.KindReply, stored[1].Kind)

		history, err := s.History(ctx, id)
		require.NoError(t, err)

		opts := cmp.Options{cmpopts.EquateApproxTime(0)}
		if diff := cmp.Diff(stored, history, opts); diff != "" {
			t.Errorf("history mismatch (-stored +history):\n%s", diff)
		}

		history[0].Content = "mutated"
		again, err := s.History(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "generate smart code", again[0].Content)
	})
}

func TestStore_TimestampsNonDecreasing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s session.Store) {
		ctx := context.Background()
		id, err := s.Create(ctx, session.DefaultPreferences())
		require.NoError(t, err)

		late := time.Now().Add(time.Hour)
		_, err = s.Append(ctx, id, session.Turn{Sender: session.SenderUser, Content: "first", Timestamp: late})
		require.NoError(t, err)
		_, err = s.Append(ctx, id,
			session.Turn{Sender: session.SenderAssistant, Content: "second", Timestamp: late.Add(-time.Minute)},
			session.Turn{Sender: session.SenderUser, Content: "third"},
		)
		require.NoError(t, err)

		history, err := s.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 3)
		for i := 0; i+1 < len(history); i++ {
			assert.False(t, history[i+1].Timestamp.Before(history[i].Timestamp), "turn %d precedes turn %d", i+1, i)
		}
	})
}

func TestStore_AppendValidation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s session.Store) {
		ctx := context.Background()
		id, err := s.Create(ctx, session.DefaultPreferences())
		require.NoError(t, err)

		tests := []struct {
			name string
			turn session.Turn
		}{
			{name: "unknown sender", turn: session.Turn{Sender: "robot", Content: "hi"}},
			{name: "empty content", turn: session.Turn{Sender: session.SenderUser}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := s.Append(ctx, id, session.Turn{Sender: session.SenderUser, Content: "ok"}, tt.turn)
				assert.ErrorIs(t, err, session.ErrInvalidTurn)
			})
		}

		history, err := s.History(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, history, "a rejected batch appends nothing")

		_, err = s.Append(ctx, "missing", session.Turn{Sender: session.SenderUser, Content: "hi"})
		assert.ErrorIs(t, err, session.ErrNotFound)
	})
}

func TestStore_Relationship(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s session.Store) {
		ctx := context.Background()
		id, err := s.Create(ctx, session.DefaultPreferences())
		require.NoError(t, err)

		growth := session.Growth{Trust: 0.4, Familiarity: 0.3, Rapport: -0.5, Experiences: 1}
		var rel session.Relationship
		for i := 0; i < 4; i++ {
			prev := rel
			rel, err = s.AdvanceRelationship(ctx, id, growth)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, rel.Trust, prev.Trust)
			assert.GreaterOrEqual(t, rel.Familiarity, prev.Familiarity)
		}

		assert.Equal(t, 1.0, rel.Trust)
		assert.Equal(t, 1.0, rel.Familiarity)
		assert.Equal(t, 0.0, rel.Rapport, "negative growth is ignored")
		assert.Equal(t, 4, rel.SharedExperiences)

		stored, err := s.Relationship(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, rel, stored)

		require.NoError(t, s.ResetRelationship(ctx, id))
		stored, err = s.Relationship(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, session.Relationship{}, stored)
	})
}

func TestStore_ExportAndDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s session.Store) {
		ctx := context.Background()
		id, err := s.Create(ctx, session.DefaultPreferences())
		require.NoError(t, err)

		_, err = s.Append(ctx, id,
			session.Turn{Sender: session.SenderUser, Content: "status", Confidence: ptr(0.75)},
			session.Turn{Sender: session.SenderAssistant, Kind: session.KindClarification, Content: "Could you say that again?"},
		)
		require.NoError(t, err)
		_, err = s.AdvanceRelationship(ctx, id, session.Growth{Familiarity: 0.1, Experiences: 1})
		require.NoError(t, err)

		exp, err := s.Export(ctx, id)
		require.NoError(t, err)

		data, err := json.Marshal(exp)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, id, decoded["sessionId"])

		msgs := decoded["messages"].([]any)
		require.Len(t, msgs, 2)
		first := msgs[0].(map[string]any)
		assert.Equal(t, "user", first["type"])
		assert.Equal(t, 0.75, first["confidence"])
		assert.Nil(t, first["intent"])
		for _, key := range []string{"id", "type", "content", "timestamp", "confidence", "intent"} {
			assert.Contains(t, first, key)
		}
		assert.Nil(t, msgs[1].(map[string]any)["confidence"])

		rel := decoded["relationship"].(map[string]any)
		assert.Equal(t, 1.0, rel["sharedExperiences"])

		require.NoError(t, s.Delete(ctx, id))
		_, err = s.History(ctx, id)
		assert.ErrorIs(t, err, session.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, id), session.ErrNotFound)
	})
}

func TestStore_ConcurrentAppend(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s session.Store) {
		ctx := context.Background()
		id, err := s.Create(ctx, session.DefaultPreferences())
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Append(ctx, id, session.Turn{Sender: session.SenderUser, Content: "hello"})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		history, err := s.History(ctx, id)
		require.NoError(t, err)
		assert.Len(t, history, 10)
		for i := 0; i+1 < len(history); i++ {
			assert.False(t, history[i+1].Timestamp.Before(history[i].Timestamp))
		}
	})
}

func TestMemoryStore_Closed(t *testing.T) {
	s := session.NewMemoryStore()
	id, err := s.Create(context.Background(), session.DefaultPreferences())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.History(context.Background(), id)
	assert.ErrorIs(t, err, session.ErrStoreClosed)
	_, err = s.Create(context.Background(), session.DefaultPreferences())
	assert.ErrorIs(t, err, session.ErrStoreClosed)
}

func TestSQLStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice.db")
	ctx := context.Background()

	s, err := session.NewSQLStore(path, nil)
	require.NoError(t, err)
	id, err := s.Create(ctx, session.Preferences{Language: "de-DE"})
	require.NoError(t, err)
	_, err = s.Append(ctx, id, session.Turn{Sender: session.SenderUser, Content: "hallo"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = session.NewSQLStore(path, nil)
	require.NoError(t, err)
	defer s.Close()

	history, err := s.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hallo", history[0].Content)

	prefs, err := s.Preferences(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "de-DE", prefs.Language)
}

func TestConfig(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.Merge(&session.Config{Backend: session.BackendSQLite})
	assert.Equal(t, session.BackendSQLite, cfg.Backend)

	_, err := session.New(&cfg, nil)
	assert.ErrorIs(t, err, capability.ErrConfiguration)

	cfg.Merge(&session.Config{Path: filepath.Join(t.TempDir(), "s.db"), ArchiveDir: t.TempDir()})
	s, err := session.New(&cfg, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.NotNil(t, cfg.NewArchive())

	_, err = session.New(&session.Config{Backend: "redis"}, nil)
	assert.ErrorIs(t, err, capability.ErrConfiguration)

	def := session.DefaultConfig()
	assert.Nil(t, def.NewArchive())
}
