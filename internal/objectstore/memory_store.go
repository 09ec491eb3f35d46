package objectstore

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

// Object — сохранённый объект in-memory store.
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryStore хранит объекты в памяти процесса. Используется локально и в тестах.
type MemoryStore struct {
	mu       sync.RWMutex
	endpoint string
	objects  map[string]Object
}

// NewMemoryStore создаёт in-memory object store; endpoint используется только для построения URL.
func NewMemoryStore(endpoint string) *MemoryStore {
	return &MemoryStore{endpoint: endpoint, objects: make(map[string]Object)}
}

// Put сохраняет копию данных.
func (s *MemoryStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.FromContext(err)
	}
	stored := make([]byte, len(data))
	copy(stored, data)

	s.mu.Lock()
	s.objects[bucket+"/"+key] = Object{Data: stored, ContentType: contentType}
	s.mu.Unlock()

	return ObjectURL(s.endpoint, bucket, key), nil
}

// Get возвращает объект, если он был сохранён.
func (s *MemoryStore) Get(bucket, key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[bucket+"/"+key]
	return obj, ok
}

// Len возвращает число сохранённых объектов.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

var _ domain.ObjectStore = (*MemoryStore)(nil)
