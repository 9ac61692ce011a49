package social

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatnetlabs/chatnet/internal/v1/logging"
	"github.com/chatnetlabs/chatnet/internal/v1/metrics"
	"github.com/chatnetlabs/chatnet/internal/v1/store"
)

// Registry owns every user account and coordinates logins, follow
// relations, and post fan-out. All state changes are written through to the
// store before the corresponding call returns.
type Registry struct {
	mu    sync.Mutex
	users map[string]*User
	store *store.Store
}

// NewRegistry returns an empty registry backed by st.
func NewRegistry(st *store.Store) *Registry {
	return &Registry{
		users: make(map[string]*User),
		store: st,
	}
}

// Load restores every user named in the store's index. A missing or corrupt
// user file aborts startup: continuing with partial state would silently
// break follow relations.
func (r *Registry) Load(ctx context.Context) error {
	names, err := r.store.LoadIndex()
	if err != nil {
		return fmt.Errorf("social: load index: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		rec, err := r.store.LoadUser(name)
		if err != nil {
			return fmt.Errorf("social: restore user %s: %w", name, err)
		}
		r.users[name] = userFromRecord(rec)
		metrics.RegisteredUsers.Inc()
	}

	logging.Info(ctx, "social state restored", zap.Int("users", len(r.users)))
	return nil
}

// Login registers the session for username, creating the account on first
// contact. A user may hold at most one session; a second concurrent login
// returns ErrDuplicate.
func (r *Registry) Login(ctx context.Context, username string) error {
	r.mu.Lock()
	u, ok := r.users[username]
	if !ok {
		u = newUser(username)
		r.users[username] = u
	}
	r.mu.Unlock()

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.loggedIn {
		return ErrDuplicate
	}
	u.loggedIn = true

	if !ok {
		if err := r.store.SaveUser(u.record()); err != nil {
			return err
		}
		if err := r.store.AppendIndex(username); err != nil {
			return err
		}
		metrics.RegisteredUsers.Inc()
		logging.Info(ctx, "user registered", zap.String("username", username))
	}

	logging.Info(ctx, "user logged in", zap.String("username", username))
	return nil
}

// Logout releases the user's session so a later login succeeds.
func (r *Registry) Logout(username string) {
	r.mu.Lock()
	u, ok := r.users[username]
	r.mu.Unlock()
	if !ok {
		return
	}

	u.mu.Lock()
	u.loggedIn = false
	u.mu.Unlock()
}

// Follow makes follower follow target. Both users must exist; following
// yourself or someone you already follow returns ErrDuplicate.
func (r *Registry) Follow(ctx context.Context, follower, target string) error {
	fu, tu, err := r.pair(follower, target)
	if err != nil {
		return err
	}

	if fu == tu {
		// The self-follow always holds.
		return ErrDuplicate
	}

	first, second := lockOrder(fu, tu)
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if fu.following.Has(target) {
		return ErrDuplicate
	}
	fu.following.Insert(target)
	tu.followers.Insert(follower)

	if err := r.store.SaveUser(fu.record()); err != nil {
		return err
	}
	if err := r.store.SaveUser(tu.record()); err != nil {
		return err
	}

	logging.Info(ctx, "follow",
		zap.String("username", follower), zap.String("target", target))
	return nil
}

// UnFollow removes the follow relation. Unfollowing yourself or a user you
// do not follow returns ErrNotFollowing.
func (r *Registry) UnFollow(ctx context.Context, follower, target string) error {
	fu, tu, err := r.pair(follower, target)
	if err != nil {
		return err
	}

	if fu == tu {
		return ErrNotFollowing
	}

	first, second := lockOrder(fu, tu)
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if !fu.following.Has(target) {
		return ErrNotFollowing
	}
	fu.following.Delete(target)
	tu.followers.Delete(follower)

	if err := r.store.SaveUser(fu.record()); err != nil {
		return err
	}
	if err := r.store.SaveUser(tu.record()); err != nil {
		return err
	}

	logging.Info(ctx, "unfollow",
		zap.String("username", follower), zap.String("target", target))
	return nil
}

// List returns every registered username plus the caller's follower and
// followee sets, all sorted.
func (r *Registry) List(username string) (ListResult, error) {
	r.mu.Lock()
	u, ok := r.users[username]
	all := make([]string, 0, len(r.users))
	for name := range r.users {
		all = append(all, name)
	}
	r.mu.Unlock()

	if !ok {
		return ListResult{}, ErrUnknownUser
	}
	sort.Strings(all)

	u.mu.Lock()
	defer u.mu.Unlock()

	return ListResult{
		AllUsers:  all,
		Followers: u.followers.SortedList(),
		Followees: u.following.SortedList(),
	}, nil
}

// Publish timestamps a post by author and fans it out to every follower:
// each follower's history gains the post (oldest entry dropped beyond the
// bound), the change is persisted, and an attached timeline stream receives
// it live. The author follows themself, so their own history and stream are
// covered by the same pass.
func (r *Registry) Publish(ctx context.Context, author, text string) (Post, error) {
	r.mu.Lock()
	au, ok := r.users[author]
	r.mu.Unlock()
	if !ok {
		return Post{}, ErrUnknownUser
	}

	post := Post{Username: author, Text: text, Timestamp: time.Now().UTC()}

	au.mu.Lock()
	followerNames := au.followers.SortedList()
	au.mu.Unlock()

	r.mu.Lock()
	followers := make([]*User, 0, len(followerNames))
	for _, name := range followerNames {
		if fu, ok := r.users[name]; ok {
			followers = append(followers, fu)
		}
	}
	r.mu.Unlock()

	for _, fu := range followers {
		fu.mu.Lock()
		fu.pushPost(post)
		if err := r.store.SaveUser(fu.record()); err != nil {
			logging.Error(ctx, "persist timeline failed",
				zap.String("username", fu.username), zap.Error(err))
		}
		fu.deliver(post)
		fu.mu.Unlock()
	}

	metrics.Posts.Inc()
	logging.Info(ctx, "post published",
		zap.String("username", author), zap.Int("followers", len(followers)))
	return post, nil
}

// AttachTimeline connects a live stream for username and replays the stored
// history through it, newest first.
func (r *Registry) AttachTimeline(username string, stream TimelineStream) error {
	r.mu.Lock()
	u, ok := r.users[username]
	r.mu.Unlock()
	if !ok {
		return ErrUnknownUser
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.attachStream(stream, u.snapshotPosts())

	metrics.ActiveTimelineStreams.Inc()
	return nil
}

// DetachTimeline disconnects the stream and releases the user's session.
func (r *Registry) DetachTimeline(username string, stream TimelineStream) {
	r.mu.Lock()
	u, ok := r.users[username]
	r.mu.Unlock()
	if !ok {
		return
	}

	u.mu.Lock()
	u.loggedIn = false
	u.detachStream(stream)
	u.mu.Unlock()

	metrics.ActiveTimelineStreams.Dec()
}

// pair resolves both usernames, reporting ErrUnknownUser if either is
// missing.
func (r *Registry) pair(a, b string) (*User, *User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ua, ok := r.users[a]
	if !ok {
		return nil, nil, ErrUnknownUser
	}
	ub, ok := r.users[b]
	if !ok {
		return nil, nil, ErrUnknownUser
	}
	return ua, ub, nil
}

// lockOrder returns the two users in lexicographic username order so
// concurrent mutual follows cannot deadlock.
func lockOrder(a, b *User) (*User, *User) {
	if a.username < b.username {
		return a, b
	}
	return b, a
}
