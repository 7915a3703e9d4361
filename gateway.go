package lokadcloud

import (
	"context"
	"iter"
)

// RawHandle is the opaque token issued by the queue service when a message
// is received; it is required to acknowledge (delete) that specific
// delivery attempt. It mirrors the two tokens Azure Queue Storage's
// DequeueMessages/DeleteMessage pair actually requires.
type RawHandle struct {
	MessageID  string
	PopReceipt string
}

// RawMessage is one entry returned by QueueGateway.Receive: the handle
// needed to later acknowledge it, and its raw (still serialized) body.
type RawMessage struct {
	Handle RawHandle
	Body   []byte
}

// QueueGateway is a thin wrapper over the cloud queue service's primitives.
// Implementations apply the not-found -> empty/zero/false policy
// themselves; the provider never inspects ErrQueueNotFound for
// Receive/Clear/DeleteQueue/ApproximateCount (those never return it), and
// relies on it only from Enqueue, where lazy creation kicks in.
type QueueGateway interface {
	// ListQueues returns a lazy sequence of queue names with the given
	// prefix. Iteration stops early if the consumer stops pulling or an
	// error is yielded.
	ListQueues(ctx context.Context, prefix string) iter.Seq2[string, error]

	// Enqueue adds a message to queue. Returns ErrQueueNotFound if the
	// queue does not exist; callers apply the retry policy around a
	// CreateQueue + Enqueue sequence.
	Enqueue(ctx context.Context, queue string, body []byte) error

	// CreateQueue creates queue. Creating an already-existing queue is not
	// an error.
	CreateQueue(ctx context.Context, queue string) error

	// Receive dequeues up to maxCount messages. Returns an empty slice
	// (not an error) if the queue does not exist or has nothing ready.
	Receive(ctx context.Context, queue string, maxCount int) ([]RawMessage, error)

	// Ack permanently deletes a specific delivery.
	Ack(ctx context.Context, queue string, handle RawHandle) error

	// Clear empties queue. No-op if the queue does not exist.
	Clear(ctx context.Context, queue string) error

	// DeleteQueue removes queue entirely, reporting whether it existed.
	DeleteQueue(ctx context.Context, queue string) (bool, error)

	// ApproximateCount reports the queue's approximate message count, or 0
	// if it does not exist.
	ApproximateCount(ctx context.Context, queue string) (int64, error)

	// MaxMessageSize reports the cloud queue service's per-message byte
	// ceiling; payloads at or above this size must overflow to blob
	// storage.
	MaxMessageSize() int64
}

// BlobGateway is a thin, name-agnostic wrapper over the cloud blob service's
// primitives used to host overflowed message payloads. Blob naming is the
// caller's responsibility.
type BlobGateway interface {
	// PutBlob uploads body under container/name. Returns
	// ErrContainerNotFound if the container does not exist; callers apply
	// the retry policy around a CreateContainer + PutBlob sequence.
	PutBlob(ctx context.Context, container, name string, body []byte) error

	// CreateContainer creates container. Creating an already-existing
	// container is not an error.
	CreateContainer(ctx context.Context, container string) error

	// GetBlob downloads the blob at container/name. ok is false (with a nil
	// error) if the blob does not exist.
	GetBlob(ctx context.Context, container, name string) (body []byte, ok bool, err error)

	// DeleteBlob removes the blob at container/name. Absence is not an
	// error.
	DeleteBlob(ctx context.Context, container, name string) error
}
