package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/raine/visual-tagger/internal/analyzer"
	"github.com/raine/visual-tagger/internal/preview"
	"github.com/rs/zerolog/log"
)

var (
	// ErrUnknownItem is returned when an operation names an identity that is
	// not (or no longer) in the store.
	ErrUnknownItem = errors.New("unknown item")
	// ErrNotFailed is returned when retry is requested for an item that is
	// not in the failed state.
	ErrNotFailed = errors.New("item is not in a failed state")
	// ErrPayloadUnavailable is returned when retry is requested but the
	// original image data is no longer held.
	ErrPayloadUnavailable = errors.New("item payload is no longer available")
)

// Store tracks per-item state for one session and owns the preview resources.
// Settlement events may arrive from any goroutine in any order; events for
// identities that were removed in the meantime are silently discarded.
type Store struct {
	mu       sync.RWMutex
	items    map[string]*Item
	order    []string
	previews preview.Provider
}

func NewStore(previews preview.Provider) *Store {
	return &Store{
		items:    make(map[string]*Item),
		previews: previews,
	}
}

// Submit registers a new item in the pending state and allocates its preview.
// The returned copy carries the generated identity.
func (s *Store) Submit(name string, data []byte) (Item, error) {
	handle, err := s.previews.Create(name, data)
	if err != nil {
		return Item{}, fmt.Errorf("failed to create preview for %s: %w", name, err)
	}

	item := &Item{
		ID:      uuid.NewString(),
		Name:    name,
		Data:    data,
		Preview: handle,
		State:   StatePending,
	}

	s.mu.Lock()
	s.items[item.ID] = item
	s.order = append(s.order, item.ID)
	s.mu.Unlock()

	log.Debug().Str("id", item.ID).Str("name", name).Msg("item submitted")
	return *item, nil
}

// Dispatch moves a pending item to loading. A no-op for any other state or
// an unknown identity.
func (s *Store) Dispatch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok || item.State != StatePending {
		return
	}
	item.State = StateLoading
	item.Progress = 0
}

// SetProgress updates the progress percentage of a loading item.
func (s *Store) SetProgress(id string, percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok || item.State != StateLoading {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	item.Progress = percent
}

// SettleSuccess attaches the analysis result and moves the item to tagged.
// Settlements for removed identities are discarded.
func (s *Store) SettleSuccess(id string, result *analyzer.Analysis) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		log.Debug().Str("id", id).Msg("item removed during analysis, discarding result")
		return
	}
	if item.State != StateLoading {
		return
	}
	item.State = StateTagged
	item.Progress = 100
	item.Result = result
	item.Err = nil
}

// SettleFailure attaches the classified error and moves the item to failed.
// Settlements for removed identities are discarded. Pending items may fail
// too: a cancelled batch settles items that were never dispatched.
func (s *Store) SettleFailure(id string, cerr *analyzer.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		log.Debug().Str("id", id).Msg("item removed during analysis, discarding failure")
		return
	}
	if item.State != StateLoading && item.State != StatePending {
		return
	}
	item.State = StateFailed
	item.Err = cerr
	item.Result = nil
}

// RequestRetry moves a failed item back to loading, reusing its identity and
// preview. Retry is rejected when the original payload is gone.
func (s *Store) RequestRetry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return ErrUnknownItem
	}
	if item.State != StateFailed {
		return ErrNotFailed
	}
	if len(item.Data) == 0 {
		return ErrPayloadUnavailable
	}
	item.State = StateLoading
	item.Progress = 0
	item.Err = nil
	return nil
}

// Remove evicts an item and releases its preview. Idempotent: removing an
// unknown or already-removed identity is a no-op. An in-flight analysis for
// the identity is not stopped; its settlement will be discarded.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return
	}
	s.releaseLocked(item)
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	log.Debug().Str("id", id).Msg("item removed")
}

// Clear evicts every item and releases all previews. Idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		s.releaseLocked(item)
	}
	s.items = make(map[string]*Item)
	s.order = nil
}

// releaseLocked releases an item's preview exactly once.
func (s *Store) releaseLocked(item *Item) {
	if item.Preview == nil {
		return
	}
	if err := s.previews.Release(item.Preview); err != nil {
		log.Warn().Err(err).Str("id", item.ID).Msg("failed to release preview")
	}
	item.Preview = nil
}

// Get returns a copy of the item, if present.
func (s *Store) Get(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Snapshot returns copies of all items in submission order.
func (s *Store) Snapshot() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.items[id])
	}
	return out
}

// Len returns the number of live items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
