// Package social implements the social-network engine: user accounts,
// follow relations, bounded per-user timelines, and live fan-out of new
// posts to attached timeline streams.
//
// Locking order is registry lock, then user locks (two users always in
// lexicographic username order), then the per-user stream lock, which is a
// leaf: it is never held while taking any other lock.
package social

import (
	"errors"

	"github.com/chatnetlabs/chatnet/internal/v1/store"
)

// Post is one timeline entry.
type Post = store.Post

// maxPosts bounds each user's retained timeline history.
const maxPosts = 20

var (
	// ErrDuplicate reports a login for an already-connected user, or a
	// follow that already holds.
	ErrDuplicate = errors.New("social: duplicate")

	// ErrUnknownUser reports an operation naming a user that does not exist.
	ErrUnknownUser = errors.New("social: unknown user")

	// ErrNotFollowing reports an unfollow of a relation that does not hold,
	// including the permanent self-follow.
	ErrNotFollowing = errors.New("social: not following")
)

// TimelineStream delivers posts to one attached timeline client.
type TimelineStream interface {
	Send(post Post) error
}

// ListResult is the snapshot returned by List.
type ListResult struct {
	// AllUsers is every registered username, sorted.
	AllUsers []string
	// Followers is the sorted set of users following the caller.
	Followers []string
	// Followees is the sorted set of users the caller follows.
	Followees []string
}
