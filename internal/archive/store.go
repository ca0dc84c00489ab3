// Package archive implements the document store: an append-only list of
// published documents plus an inverted index mapping words to the ids of
// the documents containing them.
package archive

import (
	"sync"

	"github.com/jkatz326/ngram/internal/index"
	"github.com/jkatz326/ngram/pkg/errors"
)

// DefaultShards is the inverted index shard count used when none is
// configured. Word cardinality is bounded in practice, so collisions cost
// scan time rather than correctness.
const DefaultShards = 128

type document struct {
	text      string
	committed bool
}

// Store holds published documents and their inverted index. The index and
// the document list are locked independently; no operation ever holds both
// locks at once. A consequence is a narrow visibility gap: a concurrent
// Search may return an id slightly before Retrieve of that id succeeds.
type Store struct {
	index *index.Map[string, uint64]

	mu   sync.RWMutex
	docs []document
}

// NewStore creates an empty Store whose inverted index has the given number
// of shards (DefaultShards if non-positive).
func NewStore(shards int) *Store {
	if shards <= 0 {
		shards = DefaultShards
	}
	return &Store{
		index: index.New[string, uint64](shards, index.StringHash),
	}
}

// Publish adds a document and returns its id. Ids are dense, monotonic and
// never reused: the id is the document's position in the store. The
// document's words are indexed before the text itself becomes retrievable.
func (s *Store) Publish(text string) uint64 {
	// Reserve the next id. The slot stays uncommitted while the words are
	// indexed, so concurrent publishes still get unique dense ids without
	// the document lock being held during index inserts.
	s.mu.Lock()
	id := uint64(len(s.docs))
	s.docs = append(s.docs, document{})
	s.mu.Unlock()

	for _, word := range Tokenize(text) {
		s.index.Insert(word, id)
	}

	s.mu.Lock()
	s.docs[id] = document{text: text, committed: true}
	s.mu.Unlock()
	return id
}

// Search returns the ids of all documents containing word, normalized the
// same way as at publish time. The slice is a fresh copy in shard-insertion
// order. Results are hints: an id may briefly precede its document's
// retrievability (see Store).
func (s *Store) Search(word string) []uint64 {
	return s.index.Lookup(Normalize(word))
}

// Retrieve returns the text of the document with the given id, or
// ErrDocumentNotFound if the id is out of range or not yet committed.
func (s *Store) Retrieve(id uint64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id >= uint64(len(s.docs)) || !s.docs[id].committed {
		return "", errors.Newf(errors.ErrDocumentNotFound, "id %d", id)
	}
	return s.docs[id].text, nil
}

// Len returns the number of document ids assigned so far.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
