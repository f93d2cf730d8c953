package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kuitang/notedeck/internal/notes"
	"github.com/kuitang/notedeck/internal/s3client"
)

// ErrNoteNotFound is returned by a Store for an unknown id.
var ErrNoteNotFound = errors.New("note not found")

// Store persists notes for the mock service.
type Store interface {
	Put(ctx context.Context, n notes.Note) error
	Get(ctx context.Context, id string) (*notes.Note, error)
	All(ctx context.Context) ([]notes.Note, error)
}

// MemoryStore keeps notes in a map.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]notes.Note
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]notes.Note)}
}

func (s *MemoryStore) Put(_ context.Context, n notes.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[n.ID] = n
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*notes.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byID[id]
	if !ok {
		return nil, ErrNoteNotFound
	}
	return &n, nil
}

func (s *MemoryStore) All(_ context.Context) ([]notes.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]notes.Note, 0, len(s.byID))
	for _, n := range s.byID {
		out = append(out, n)
	}
	return out, nil
}

const objectPrefix = "notes/"

// ObjectStore keeps each note as notes/{id}.json in an S3 bucket.
type ObjectStore struct {
	client *s3client.Client
}

func NewObjectStore(client *s3client.Client) *ObjectStore {
	return &ObjectStore{client: client}
}

func objectKey(id string) string {
	return objectPrefix + id + ".json"
}

func (s *ObjectStore) Put(ctx context.Context, n notes.Note) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode note %s: %w", n.ID, err)
	}
	return s.client.PutObject(ctx, objectKey(n.ID), raw, "application/json")
}

func (s *ObjectStore) Get(ctx context.Context, id string) (*notes.Note, error) {
	if strings.ContainsAny(id, "/\\") {
		return nil, ErrNoteNotFound
	}
	raw, err := s.client.GetObject(ctx, objectKey(id))
	if errors.Is(err, s3client.ErrObjectNotFound) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}
	var n notes.Note
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("failed to decode note %s: %w", id, err)
	}
	return &n, nil
}

func (s *ObjectStore) All(ctx context.Context) ([]notes.Note, error) {
	keys, err := s.client.ListKeys(ctx, objectPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]notes.Note, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimSuffix(strings.TrimPrefix(key, objectPrefix), ".json")
		n, err := s.Get(ctx, id)
		if errors.Is(err, ErrNoteNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, nil
}
