// Package memstore provides in-memory QueueGateway and BlobGateway
// implementations. Intended for tests and local development, mirroring the
// shape (not the durability) of the Azure-backed gateways.
package memstore

import (
	"context"
	"iter"
	"sort"
	"strings"
	"sync"

	lokadcloud "github.com/ischyrus/lokad-cloud-storage"
	"github.com/ischyrus/lokad-cloud-storage/internal/idgen"
)

// QueueStore is an in-memory lokadcloud.QueueGateway.
type QueueStore struct {
	mu             sync.Mutex
	queues         map[string]*memQueue
	maxMessageSize int64
}

type memQueue struct {
	pending []memMessage
	leased  map[string]memMessage // popReceipt -> message
}

type memMessage struct {
	id   string
	body []byte
}

// NewQueueStore returns a ready to use in-memory queue gateway reporting
// maxMessageSize as its per-message byte ceiling. A maxMessageSize of 0
// defaults to 65536, matching Azure Queue Storage's own limit.
func NewQueueStore(maxMessageSize int64) *QueueStore {
	if maxMessageSize <= 0 {
		maxMessageSize = 65536
	}
	return &QueueStore{
		queues:         make(map[string]*memQueue),
		maxMessageSize: maxMessageSize,
	}
}

func (s *QueueStore) MaxMessageSize() int64 { return s.maxMessageSize }

func (s *QueueStore) ListQueues(_ context.Context, prefix string) iter.Seq2[string, error] {
	s.mu.Lock()
	names := make([]string, 0, len(s.queues))
	for name := range s.queues {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	s.mu.Unlock()
	sort.Strings(names)
	return func(yield func(string, error) bool) {
		for _, name := range names {
			if !yield(name, nil) {
				return
			}
		}
	}
}

func (s *QueueStore) CreateQueue(_ context.Context, queue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(queue)
	return nil
}

func (s *QueueStore) ensureLocked(queue string) *memQueue {
	q, ok := s.queues[queue]
	if !ok {
		q = &memQueue{leased: make(map[string]memMessage)}
		s.queues[queue] = q
	}
	return q
}

func (s *QueueStore) Enqueue(_ context.Context, queue string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[queue]
	if !ok {
		return lokadcloud.ErrQueueNotFound
	}
	q.pending = append(q.pending, memMessage{id: idgen.NewString(), body: append([]byte(nil), body...)})
	return nil
}

func (s *QueueStore) Receive(_ context.Context, queue string, maxCount int) ([]lokadcloud.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[queue]
	if !ok {
		return nil, nil
	}
	n := maxCount
	if n > len(q.pending) {
		n = len(q.pending)
	}
	out := make([]lokadcloud.RawMessage, 0, n)
	for i := 0; i < n; i++ {
		msg := q.pending[i]
		popReceipt := idgen.NewString()
		q.leased[popReceipt] = msg
		out = append(out, lokadcloud.RawMessage{
			Handle: lokadcloud.RawHandle{MessageID: msg.id, PopReceipt: popReceipt},
			Body:   append([]byte(nil), msg.body...),
		})
	}
	q.pending = q.pending[n:]
	return out, nil
}

func (s *QueueStore) Ack(_ context.Context, queue string, handle lokadcloud.RawHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[queue]; ok {
		delete(q.leased, handle.PopReceipt)
	}
	return nil
}

func (s *QueueStore) Clear(_ context.Context, queue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[queue]; ok {
		q.pending = nil
		q.leased = make(map[string]memMessage)
	}
	return nil
}

func (s *QueueStore) DeleteQueue(_ context.Context, queue string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.queues[queue]
	delete(s.queues, queue)
	return existed, nil
}

func (s *QueueStore) ApproximateCount(_ context.Context, queue string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[queue]
	if !ok {
		return 0, nil
	}
	return int64(len(q.pending)), nil
}

// BlobStore is an in-memory lokadcloud.BlobGateway.
type BlobStore struct {
	mu         sync.Mutex
	containers map[string]map[string][]byte
}

// NewBlobStore returns a ready to use in-memory blob gateway.
func NewBlobStore() *BlobStore {
	return &BlobStore{containers: make(map[string]map[string][]byte)}
}

func (s *BlobStore) CreateContainer(_ context.Context, container string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.containers[container] == nil {
		s.containers[container] = make(map[string][]byte)
	}
	return nil
}

func (s *BlobStore) PutBlob(_ context.Context, container, name string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blobs, ok := s.containers[container]
	if !ok {
		return lokadcloud.ErrContainerNotFound
	}
	blobs[name] = append([]byte(nil), body...)
	return nil
}

func (s *BlobStore) GetBlob(_ context.Context, container, name string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blobs, ok := s.containers[container]
	if !ok {
		return nil, false, nil
	}
	body, ok := blobs[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), body...), true, nil
}

func (s *BlobStore) DeleteBlob(_ context.Context, container, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if blobs, ok := s.containers[container]; ok {
		delete(blobs, name)
	}
	return nil
}

// ListBlobs returns the names of every blob under container whose name has
// the given prefix. Satisfies servicestate's optional listing capability;
// not part of lokadcloud.BlobGateway.
func (s *BlobStore) ListBlobs(_ context.Context, container, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blobs, ok := s.containers[container]
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(blobs))
	for name := range blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}
