package social

import (
	"sync"

	"k8s.io/utils/set"

	"github.com/chatnetlabs/chatnet/internal/v1/store"
)

// User is one account. All mutable fields are guarded by mu except stream,
// which has its own leaf lock so slow timeline writes never stall follow or
// post bookkeeping for other users.
type User struct {
	username string

	mu        sync.Mutex
	followers set.Set[string]
	following set.Set[string]
	// posts holds the newest entry at index 0, at most maxPosts long.
	posts    []Post
	loggedIn bool

	streamMu sync.Mutex
	stream   TimelineStream
}

// newUser creates a fresh account. Every account follows itself, and the
// self-follow can never be removed.
func newUser(username string) *User {
	return &User{
		username:  username,
		followers: set.New(username),
		following: set.New(username),
	}
}

// userFromRecord rebuilds an account from its persisted state.
func userFromRecord(rec store.UserRecord) *User {
	u := &User{
		username:  rec.Username,
		followers: set.New(rec.Followers...),
		following: set.New(rec.Following...),
		posts:     rec.Posts,
	}
	// Older files may predate the implicit self-follow.
	u.followers.Insert(rec.Username)
	u.following.Insert(rec.Username)
	if len(u.posts) > maxPosts {
		u.posts = u.posts[:maxPosts]
	}
	return u
}

// Username returns the account name.
func (u *User) Username() string { return u.username }

// record snapshots the user's persistable state. Caller holds u.mu.
func (u *User) record() store.UserRecord {
	posts := make([]Post, len(u.posts))
	copy(posts, u.posts)
	return store.UserRecord{
		Username:  u.username,
		Followers: u.followers.SortedList(),
		Following: u.following.SortedList(),
		Posts:     posts,
	}
}

// pushPost inserts a post at the front and drops the oldest entry beyond
// the history bound. Caller holds u.mu.
func (u *User) pushPost(p Post) {
	u.posts = append([]Post{p}, u.posts...)
	if len(u.posts) > maxPosts {
		u.posts = u.posts[:maxPosts]
	}
}

// snapshotPosts copies the current history, newest first. Caller holds u.mu.
func (u *User) snapshotPosts() []Post {
	posts := make([]Post, len(u.posts))
	copy(posts, u.posts)
	return posts
}

// attachStream replaces the live timeline stream and replays the backlog
// through it. Holding streamMu across the replay keeps backlog posts and
// live deliveries from interleaving on the stream.
func (u *User) attachStream(s TimelineStream, backlog []Post) {
	u.streamMu.Lock()
	defer u.streamMu.Unlock()
	u.stream = s
	for _, p := range backlog {
		if err := s.Send(p); err != nil {
			u.stream = nil
			return
		}
	}
}

// detachStream clears the live stream if it is still the given one.
func (u *User) detachStream(s TimelineStream) {
	u.streamMu.Lock()
	defer u.streamMu.Unlock()
	if u.stream == s {
		u.stream = nil
	}
}

// deliver forwards a post to the attached stream, if any. A send failure
// detaches the stream; the transport's reader will notice the broken
// connection and finish the detach on its side too.
func (u *User) deliver(p Post) {
	u.streamMu.Lock()
	defer u.streamMu.Unlock()
	if u.stream == nil {
		return
	}
	if err := u.stream.Send(p); err != nil {
		u.stream = nil
	}
}
