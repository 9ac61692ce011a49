package social

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatnetlabs/chatnet/internal/v1/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewRegistry(st), st
}

func login(t *testing.T, r *Registry, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, r.Login(context.Background(), name))
	}
}

// collectStream records delivered posts.
type collectStream struct {
	mu    sync.Mutex
	posts []Post
	fail  bool
}

func (s *collectStream) Send(p Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("stream gone")
	}
	s.posts = append(s.posts, p)
	return nil
}

func (s *collectStream) snapshot() []Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Post, len(s.posts))
	copy(out, s.posts)
	return out
}

func TestLogin_DuplicateSessionRejected(t *testing.T) {
	r, _ := newTestRegistry(t)

	require.NoError(t, r.Login(context.Background(), "alice"))
	assert.ErrorIs(t, r.Login(context.Background(), "alice"), ErrDuplicate)

	r.Logout("alice")
	assert.NoError(t, r.Login(context.Background(), "alice"))
}

func TestLogin_CreatesSelfFollowingAccount(t *testing.T) {
	r, _ := newTestRegistry(t)
	login(t, r, "alice")

	res, err := r.List("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, res.AllUsers)
	assert.Equal(t, []string{"alice"}, res.Followers)
	assert.Equal(t, []string{"alice"}, res.Followees)
}

func TestFollow_Semantics(t *testing.T) {
	r, _ := newTestRegistry(t)
	login(t, r, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, r.Follow(ctx, "alice", "bob"))

	assert.ErrorIs(t, r.Follow(ctx, "alice", "bob"), ErrDuplicate)
	assert.ErrorIs(t, r.Follow(ctx, "alice", "alice"), ErrDuplicate)
	assert.ErrorIs(t, r.Follow(ctx, "alice", "ghost"), ErrUnknownUser)
	assert.ErrorIs(t, r.Follow(ctx, "ghost", "alice"), ErrUnknownUser)

	res, err := r.List("bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, res.Followers)
	assert.Equal(t, []string{"bob"}, res.Followees)
}

func TestUnFollow_Semantics(t *testing.T) {
	r, _ := newTestRegistry(t)
	login(t, r, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, r.Follow(ctx, "alice", "bob"))
	require.NoError(t, r.UnFollow(ctx, "alice", "bob"))

	assert.ErrorIs(t, r.UnFollow(ctx, "alice", "bob"), ErrNotFollowing)
	assert.ErrorIs(t, r.UnFollow(ctx, "alice", "alice"), ErrNotFollowing)
	assert.ErrorIs(t, r.UnFollow(ctx, "alice", "ghost"), ErrUnknownUser)

	res, err := r.List("bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, res.Followers)
}

func TestConcurrentMutualFollows_NoDeadlock(t *testing.T) {
	r, _ := newTestRegistry(t)
	login(t, r, "alice", "bob")
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = r.Follow(ctx, "alice", "bob")
				_ = r.UnFollow(ctx, "alice", "bob")
			}()
			go func() {
				defer wg.Done()
				_ = r.Follow(ctx, "bob", "alice")
				_ = r.UnFollow(ctx, "bob", "alice")
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("mutual follow/unfollow deadlocked")
	}
}

func TestPublish_FansOutToFollowersAndSelf(t *testing.T) {
	r, _ := newTestRegistry(t)
	login(t, r, "alice", "bob", "carol")
	ctx := context.Background()

	require.NoError(t, r.Follow(ctx, "bob", "alice"))

	aliceStream := &collectStream{}
	bobStream := &collectStream{}
	carolStream := &collectStream{}
	require.NoError(t, r.AttachTimeline("alice", aliceStream))
	require.NoError(t, r.AttachTimeline("bob", bobStream))
	require.NoError(t, r.AttachTimeline("carol", carolStream))

	post, err := r.Publish(ctx, "alice", "hello world")
	require.NoError(t, err)
	assert.Equal(t, "alice", post.Username)
	assert.Equal(t, "hello world", post.Text)

	// The author's own attached stream receives the post too.
	require.Len(t, aliceStream.snapshot(), 1)
	require.Len(t, bobStream.snapshot(), 1)
	assert.Equal(t, "hello world", bobStream.snapshot()[0].Text)

	// Non-followers receive nothing.
	assert.Empty(t, carolStream.snapshot())
}

func TestPublish_HistoryBoundedNewestFirst(t *testing.T) {
	r, _ := newTestRegistry(t)
	login(t, r, "alice")
	ctx := context.Background()

	for i := 0; i < maxPosts+5; i++ {
		_, err := r.Publish(ctx, "alice", fmt.Sprintf("post %d", i))
		require.NoError(t, err)
	}

	stream := &collectStream{}
	require.NoError(t, r.AttachTimeline("alice", stream))

	got := stream.snapshot()
	require.Len(t, got, maxPosts)
	assert.Equal(t, fmt.Sprintf("post %d", maxPosts+4), got[0].Text)
	assert.Equal(t, "post 5", got[maxPosts-1].Text)
}

func TestAttachTimeline_ReplaysBacklogBeforeLivePosts(t *testing.T) {
	r, _ := newTestRegistry(t)
	login(t, r, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, r.Follow(ctx, "bob", "alice"))
	_, err := r.Publish(ctx, "alice", "before attach")
	require.NoError(t, err)

	stream := &collectStream{}
	require.NoError(t, r.AttachTimeline("bob", stream))

	_, err = r.Publish(ctx, "alice", "after attach")
	require.NoError(t, err)

	got := stream.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "before attach", got[0].Text)
	assert.Equal(t, "after attach", got[1].Text)
}

func TestDetachTimeline_ReleasesSession(t *testing.T) {
	r, _ := newTestRegistry(t)
	login(t, r, "alice")

	stream := &collectStream{}
	require.NoError(t, r.AttachTimeline("alice", stream))

	r.DetachTimeline("alice", stream)

	// Session is free again and the old stream gets nothing new.
	assert.NoError(t, r.Login(context.Background(), "alice"))
	_, err := r.Publish(context.Background(), "alice", "silent")
	require.NoError(t, err)
	assert.Empty(t, stream.snapshot())
}

func TestBrokenStream_DetachesOnSendFailure(t *testing.T) {
	r, _ := newTestRegistry(t)
	login(t, r, "alice")
	ctx := context.Background()

	stream := &collectStream{fail: true}
	require.NoError(t, r.AttachTimeline("alice", stream))

	_, err := r.Publish(ctx, "alice", "lost")
	require.NoError(t, err)

	// A later working stream still attaches cleanly.
	good := &collectStream{}
	require.NoError(t, r.AttachTimeline("alice", good))
	require.Len(t, good.snapshot(), 1)
}

func TestRestart_RestoresUsersRelationsAndPosts(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(dir)
	require.NoError(t, err)

	r := NewRegistry(st)
	ctx := context.Background()
	login(t, r, "alice", "bob")
	require.NoError(t, r.Follow(ctx, "bob", "alice"))
	_, err = r.Publish(ctx, "alice", "survives restart")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st2, err := store.Open(dir)
	require.NoError(t, err)
	defer st2.Close()

	r2 := NewRegistry(st2)
	require.NoError(t, r2.Load(ctx))

	res, err := r2.List("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, res.AllUsers)
	assert.Equal(t, []string{"alice", "bob"}, res.Followers)

	stream := &collectStream{}
	require.NoError(t, r2.AttachTimeline("bob", stream))
	got := stream.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "survives restart", got[0].Text)

	// Restored users hold no session until they log in again.
	assert.NoError(t, r2.Login(ctx, "alice"))
}
