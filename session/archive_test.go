package session_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/voice/session"
)

func TestArchive_SaveLoadList(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "archive")
	a := session.NewArchive(root)

	ids, err := a.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "missing root lists as empty")

	conf := 0.8
	exp := session.Export{
		SessionID: "b-session",
		Messages: []session.ExportMessage{{
			ID: "t1", Type: session.SenderUser, Content: "hello",
			Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Confidence: &conf,
		}},
		Relationship: session.Relationship{Familiarity: 0.1, SharedExperiences: 1},
	}
	require.NoError(t, a.Save(ctx, exp))
	require.NoError(t, a.Save(ctx, session.Export{SessionID: "a-session"}))

	ids, err = a.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-session", "b-session"}, ids)

	loaded, err := a.Load(ctx, "b-session")
	require.NoError(t, err)
	assert.Equal(t, exp.SessionID, loaded.SessionID)
	require.Len(t, loaded.Messages, 1)
	assert.True(t, exp.Messages[0].Timestamp.Equal(loaded.Messages[0].Timestamp))
	assert.Equal(t, 0.8, *loaded.Messages[0].Confidence)
	assert.Equal(t, exp.Relationship, loaded.Relationship)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temp files are renamed into place")
	}
}

func TestArchive_Errors(t *testing.T) {
	ctx := context.Background()
	a := session.NewArchive(t.TempDir())

	_, err := a.Load(ctx, "nobody")
	assert.ErrorIs(t, err, session.ErrArchiveEntry)

	for _, bad := range []string{"", "../escape", "a/b", ".hidden"} {
		assert.ErrorIs(t, a.Save(ctx, session.Export{SessionID: bad}), session.ErrArchiveEntry, bad)
	}

	require.NoError(t, a.Save(ctx, session.Export{SessionID: "gone"}))
	require.NoError(t, a.Delete(ctx, "gone"))
	require.NoError(t, a.Delete(ctx, "gone"))

	ids, err := a.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
