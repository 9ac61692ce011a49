package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadUser_RoundTrip(t *testing.T) {
	s := openStore(t)

	ts := time.Date(2026, 8, 24, 12, 30, 0, 0, time.UTC)
	rec := UserRecord{
		Username:  "alice",
		Followers: []string{"alice", "bob"},
		Following: []string{"alice"},
		Posts: []Post{
			{Username: "alice", Text: "second post", Timestamp: ts.Add(time.Minute)},
			{Username: "alice", Text: "first post", Timestamp: ts},
		},
	}
	require.NoError(t, s.SaveUser(rec))

	got, err := s.LoadUser("alice")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestSaveUser_FileLayout(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.SaveUser(UserRecord{
		Username:  "bob",
		Followers: []string{"bob"},
		Following: []string{"bob", "alice"},
	}))

	raw, err := os.ReadFile(s.UserPath("bob"))
	require.NoError(t, err)

	lines := strings.Split(string(raw), "\n")
	require.GreaterOrEqual(t, len(lines), 7)
	assert.Equal(t, "bob", lines[0])
	assert.Equal(t, markerFollowers, lines[1])
	assert.Equal(t, "bob", lines[2])
	assert.Equal(t, markerFollowing, lines[3])
	assert.Equal(t, "bob", lines[4])
	assert.Equal(t, "alice", lines[5])
	assert.Equal(t, markerPosts, lines[6])
}

func TestSaveUser_RewriteReplacesOldState(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.SaveUser(UserRecord{
		Username:  "carol",
		Followers: []string{"carol", "dave"},
		Following: []string{"carol"},
	}))
	require.NoError(t, s.SaveUser(UserRecord{
		Username:  "carol",
		Followers: []string{"carol"},
		Following: []string{"carol"},
	}))

	got, err := s.LoadUser("carol")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, got.Followers)
}

func TestLoadUser_Missing(t *testing.T) {
	s := openStore(t)

	_, err := s.LoadUser("nobody")
	assert.Error(t, err)
}

func TestLoadUser_TruncatedPost(t *testing.T) {
	s := openStore(t)

	body := "eve\n" + markerFollowers + "\neve\n" + markerFollowing + "\neve\n" + markerPosts + "\neve\ndangling text without timestamp\n"
	require.NoError(t, os.WriteFile(s.UserPath("eve"), []byte(body), 0o644))

	_, err := s.LoadUser("eve")
	assert.Error(t, err)
}

func TestIndex_AppendLoadDedup(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.AppendIndex("alice"))
	require.NoError(t, s.AppendIndex("bob"))
	require.NoError(t, s.AppendIndex("alice"))

	names, err := s.LoadIndex()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)
}

func TestLoadIndex_MissingFileIsEmpty(t *testing.T) {
	s := openStore(t)

	// Remove the index the constructor created so LoadIndex sees no file.
	require.NoError(t, os.Remove(filepath.Join(s.Dir(), IndexFile)))

	names, err := s.LoadIndex()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestReady(t *testing.T) {
	s := openStore(t)
	assert.NoError(t, s.Ready())
}
