package session

import (
	"context"
	"log"
	"sync"

	"greyboard.app/internal/board"
)

// Fetcher loads a board's durable shape from the remote store.
type Fetcher interface {
	FetchBoard(ctx context.Context, origin, slug, token string) (*board.Board, error)
}

// Registry owns the mapping from slug to live board session. At most one
// session exists per slug; Add never replaces a live one.
type Registry struct {
	log   *log.Logger
	fetch Fetcher

	mu     sync.RWMutex
	boards map[string]*LiveBoard
}

func NewRegistry(fetch Fetcher, logger *log.Logger) *Registry {
	return &Registry{
		log:    logger,
		fetch:  fetch,
		boards: make(map[string]*LiveBoard),
	}
}

// Add inserts b and returns it. If a session already exists for the slug
// the existing one is returned untouched; two connections racing a cold
// join both end up on the same canonical session.
func (r *Registry) Add(b *LiveBoard) *LiveBoard {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.boards[b.Slug]; ok {
		r.log.Printf("board (%s) already live, keeping existing session", b.Slug)
		return cur
	}
	r.boards[b.Slug] = b
	r.log.Printf("board (%s) created", b.Slug)
	return b
}

// Remove drops the session for slug, if any.
func (r *Registry) Remove(slug string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.boards[slug]; ok {
		delete(r.boards, slug)
		r.log.Printf("board (%s) removed", slug)
	}
}

// Get returns the live session for slug, or nil.
func (r *Registry) Get(slug string) *LiveBoard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.boards[slug]
}

// ListAll returns a snapshot of every live session.
func (r *Registry) ListAll() []*LiveBoard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*LiveBoard, 0, len(r.boards))
	for _, b := range r.boards {
		out = append(out, b)
	}
	return out
}

// FetchRemote loads the durable board for slug from the store at origin and
// wraps it in a fresh, not-yet-registered session. It holds no locks: the
// caller registers the result with Add once the fetch succeeds, so an
// aborted join leaves no residual state.
func (r *Registry) FetchRemote(ctx context.Context, origin, slug, token string) (*LiveBoard, error) {
	b, err := r.fetch.FetchBoard(ctx, origin, slug, token)
	if err != nil {
		return nil, err
	}
	return NewLiveBoard(*b), nil
}
