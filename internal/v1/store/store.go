// Package store persists social-network state. Each user has one
// `<username>.usr` file that is rewritten in full on every state change, and
// a global append-only index file `server.dat` lists every known username so
// the service can find the user files on startup.
//
// The user file is plain text split into sections by reserved control-byte
// sentinel lines that cannot appear in usernames or post text:
//
//	<username>
//	\x1b\xad\xfe\xed      followers, one per line
//	\xc0\x01\xd0\x0d      following, one per line
//	\x12\x04\x57\xbe\xef  posts, as author/text/RFC3339-timestamp triples
package store

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	markerFollowers = "\x1b\xad\xfe\xed"
	markerFollowing = "\xc0\x01\xd0\x0d"
	markerPosts     = "\x12\x04\x57\xbe\xef"

	// IndexFile is the global username index, one name per line, append-only.
	IndexFile = "server.dat"

	userFileExt = ".usr"
)

// Post is one timeline entry.
type Post struct {
	Username  string
	Text      string
	Timestamp time.Time
}

// UserRecord is the persisted state of one user. Posts are stored in deque
// order: index 0 is the most recently inserted post.
type UserRecord struct {
	Username  string
	Followers []string
	Following []string
	Posts     []Post
}

// Store reads and writes social-network state under one directory.
type Store struct {
	dir string

	mu    sync.Mutex
	index *os.File
}

// Open prepares the data directory and opens the index file for appending.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	index, err := os.OpenFile(filepath.Join(dir, IndexFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: open index: %w", err)
	}
	return &Store{dir: dir, index: index}, nil
}

// Close releases the index file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Ready probes that the data directory is writable. Used by readiness checks.
func (s *Store) Ready() error {
	probe := filepath.Join(s.dir, ".ready")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("store: data dir not writable: %w", err)
	}
	return os.Remove(probe)
}

// UserPath returns the path of a user's state file.
func (s *Store) UserPath(username string) string {
	return filepath.Join(s.dir, username+userFileExt)
}

// AppendIndex appends a username to the global index and flushes it.
func (s *Store) AppendIndex(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintln(s.index, username); err != nil {
		return fmt.Errorf("store: append index: %w", err)
	}
	if err := s.index.Sync(); err != nil {
		return fmt.Errorf("store: sync index: %w", err)
	}
	return nil
}

// LoadIndex returns the known usernames in first-seen order, deduplicated.
func (s *Store) LoadIndex() ([]string, error) {
	f, err := os.Open(filepath.Join(s.dir, IndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read index: %w", err)
	}
	defer f.Close()

	var names []string
	seen := make(map[string]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("store: scan index: %w", err)
	}
	return names, nil
}

// SaveUser rewrites the user's state file in full.
func (s *Store) SaveUser(rec UserRecord) error {
	var buf bytes.Buffer

	fmt.Fprintln(&buf, rec.Username)

	fmt.Fprintln(&buf, markerFollowers)
	for _, name := range rec.Followers {
		fmt.Fprintln(&buf, name)
	}

	fmt.Fprintln(&buf, markerFollowing)
	for _, name := range rec.Following {
		fmt.Fprintln(&buf, name)
	}

	fmt.Fprintln(&buf, markerPosts)
	for _, post := range rec.Posts {
		fmt.Fprintln(&buf, post.Username)
		fmt.Fprintln(&buf, post.Text)
		fmt.Fprintln(&buf, post.Timestamp.Format(time.RFC3339))
	}

	if err := os.WriteFile(s.UserPath(rec.Username), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("store: save user %s: %w", rec.Username, err)
	}
	return nil
}

// LoadUser reads one user's state file back into a record.
func (s *Store) LoadUser(username string) (UserRecord, error) {
	f, err := os.Open(s.UserPath(username))
	if err != nil {
		return UserRecord{}, fmt.Errorf("store: load user %s: %w", username, err)
	}
	defer f.Close()

	rec := UserRecord{Username: username}

	const (
		sectionHeader = iota
		sectionFollowers
		sectionFollowing
		sectionPosts
	)
	section := sectionHeader

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()

		switch line {
		case markerFollowers:
			section = sectionFollowers
			continue
		case markerFollowing:
			section = sectionFollowing
			continue
		case markerPosts:
			section = sectionPosts
			continue
		}

		switch section {
		case sectionHeader:
			// The first line repeats the username; nothing to keep.
		case sectionFollowers:
			rec.Followers = append(rec.Followers, line)
		case sectionFollowing:
			rec.Following = append(rec.Following, line)
		case sectionPosts:
			post := Post{Username: line}
			if !sc.Scan() {
				return UserRecord{}, fmt.Errorf("store: user %s: truncated post text", username)
			}
			post.Text = sc.Text()
			if !sc.Scan() {
				return UserRecord{}, fmt.Errorf("store: user %s: truncated post timestamp", username)
			}
			ts, err := time.Parse(time.RFC3339, sc.Text())
			if err != nil {
				return UserRecord{}, fmt.Errorf("store: user %s: bad post timestamp: %w", username, err)
			}
			post.Timestamp = ts
			rec.Posts = append(rec.Posts, post)
		}
	}
	if err := sc.Err(); err != nil {
		return UserRecord{}, fmt.Errorf("store: scan user %s: %w", username, err)
	}
	return rec, nil
}
