package lokadcloud

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/ischyrus/lokad-cloud-storage/internal/clock"
	"github.com/ischyrus/lokad-cloud-storage/internal/idgen"
	"github.com/ischyrus/lokad-cloud-storage/internal/retry"
)

// DefaultTemporaryContainer is the blob container overflowed message bodies
// are uploaded to when a Provider is not given an explicit one.
const DefaultTemporaryContainer = "lokad-cloud-overflow"

// MaxInFlightDuration bounds how long an overflow blob is retained: it is
// stamped into the blob's name as an expiration date a janitor sweep (not
// part of this library) can use to reclaim stranded blobs.
const MaxInFlightDuration = 7 * 24 * time.Hour

// Provider is a generic Queue Storage Provider: it serializes messages of
// type T, routes oversized payloads through blob overflow, and tracks
// enough per-message state to later acknowledge or delete what it handed
// out. One Provider instance owns one in-flight registry; two Providers
// over the same underlying queues/containers track in-flight state
// independently of each other.
type Provider[T any] struct {
	queues QueueGateway
	blobs  BlobGateway

	clk      clock.Clock
	observer Observer
	registry *inFlightRegistry
	metrics  *providerMetrics

	retryConfig   retry.Config
	tempContainer string
}

// Option configures a Provider at construction time.
type Option[T any] func(*Provider[T])

// WithObserver sets the logging capability used for warnings about
// best-effort failures (metric registration, orphaned-wrapper cleanup).
func WithObserver[T any](o Observer) Option[T] {
	return func(p *Provider[T]) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithClock overrides the Provider's time source. Intended for tests.
func WithClock[T any](c clock.Clock) Option[T] {
	return func(p *Provider[T]) {
		if c != nil {
			p.clk = c
		}
	}
}

// WithRetryConfig overrides the backoff schedule used around the
// create-then-use races in putOverflowBlob and enqueue.
func WithRetryConfig[T any](cfg retry.Config) Option[T] {
	return func(p *Provider[T]) { p.retryConfig = cfg }
}

// WithTemporaryContainer overrides the blob container overflowed payloads
// are uploaded to.
func WithTemporaryContainer[T any](name string) Option[T] {
	return func(p *Provider[T]) {
		if name != "" {
			p.tempContainer = name
		}
	}
}

// New constructs a Provider over the given queue and blob gateways.
func New[T any](queues QueueGateway, blobs BlobGateway, opts ...Option[T]) (*Provider[T], error) {
	if queues == nil {
		return nil, errors.New("lokadcloud: queue gateway is required")
	}
	if blobs == nil {
		return nil, errors.New("lokadcloud: blob gateway is required")
	}
	p := &Provider[T]{
		queues:        queues,
		blobs:         blobs,
		clk:           clock.Real{},
		observer:      NoopObserver(),
		registry:      newInFlightRegistry(),
		retryConfig:   retry.DefaultConfig(),
		tempContainer: DefaultTemporaryContainer,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.metrics = newProviderMetrics(p)
	return p, nil
}

// List returns a lazy sequence of queue names starting with prefix.
func (p *Provider[T]) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return p.queues.ListQueues(ctx, prefix)
}

// Get receives up to maxCount messages from queue, transparently resolving
// any that overflowed to blob storage.
func (p *Provider[T]) Get(ctx context.Context, queue string, maxCount int) ([]T, error) {
	ctx, guard := withCallGuard(ctx)

	raws, err := p.queues.Receive(ctx, queue, maxCount)
	if err != nil {
		return nil, fmt.Errorf("lokadcloud: receive from queue %q: %w", queue, err)
	}
	if len(raws) == 0 {
		return nil, nil
	}

	type item struct {
		raw RawMessage
		dec decoded[T]
		key inFlightKey
	}
	items := make([]item, 0, len(raws))
	for _, raw := range raws {
		dec, err := deserialize[T](raw.Body)
		if err != nil {
			return nil, fmt.Errorf("lokadcloud: decode message from queue %q: %w", queue, err)
		}
		items = append(items, item{raw: raw, dec: dec, key: inFlightKey(raw.Body)})
	}

	entries := make([]batchEntry, 0, len(items))
	for _, it := range items {
		if it.dec.Wrapper != nil {
			entries = append(entries, batchEntry{key: it.key, handle: it.raw.Handle, overflowing: true, wrapper: *it.dec.Wrapper})
		} else {
			entries = append(entries, batchEntry{key: it.key, handle: it.raw.Handle, overflowing: false})
		}
	}
	p.registry.insertBatch(entries, guard)

	results := make([]T, 0, len(items))
	for _, it := range items {
		if it.dec.Value != nil {
			results = append(results, *it.dec.Value)
			continue
		}

		w := *it.dec.Wrapper
		body, ok, err := p.blobs.GetBlob(ctx, w.Container, w.Blob)
		if err != nil {
			p.observer.Warn("lokadcloud.overflow.resolve_failed",
				"queue", queue, "container", w.Container, "blob", w.Blob, "error", err)
			continue
		}
		if !ok {
			// Orphaned wrapper: the overflow blob is gone. Drop the message
			// rather than hand the caller a wrapper it cannot act on.
			if ackErr := p.queues.Ack(ctx, queue, it.raw.Handle); ackErr != nil {
				p.observer.Warn("lokadcloud.overflow.orphan_ack_failed", "queue", queue, "error", ackErr)
			}
			p.registry.popFront(it.key, guard)
			continue
		}

		resolved, err := deserialize[T](body)
		if err != nil || resolved.Value == nil {
			p.observer.Warn("lokadcloud.overflow.decode_failed",
				"queue", queue, "container", w.Container, "blob", w.Blob, "error", err)
			continue
		}
		p.registry.rekey(it.key, inFlightKey(body), guard)
		results = append(results, *resolved.Value)
	}
	return results, nil
}

// Put serializes msg and enqueues it onto queue, overflowing to blob
// storage if the serialized form reaches or exceeds the queue's message size
// ceiling.
func (p *Provider[T]) Put(ctx context.Context, queue string, msg T) error {
	return p.putOne(ctx, queue, msg)
}

// PutRange puts each of msgs onto queue independently. A failure on one
// message does not prevent the rest from being attempted; the returned
// slice has one entry per message, nil where that message succeeded.
func (p *Provider[T]) PutRange(ctx context.Context, queue string, msgs []T) []error {
	errs := make([]error, len(msgs))
	for i, m := range msgs {
		errs[i] = p.putOne(ctx, queue, m)
	}
	return errs
}

func (p *Provider[T]) putOne(ctx context.Context, queue string, msg T) error {
	buf, err := serializeValue(msg)
	if err != nil {
		return err
	}

	payload := buf
	if int64(len(buf)) >= p.queues.MaxMessageSize() {
		blobName := p.overflowBlobName(queue)
		if err := p.putOverflowBlob(ctx, blobName, buf); err != nil {
			return fmt.Errorf("lokadcloud: upload overflow blob for queue %q: %w", queue, err)
		}
		wrapperBytes, err := serializeWrapper(messageWrapper{Container: p.tempContainer, Blob: blobName})
		if err != nil {
			return err
		}
		payload = wrapperBytes
		p.metrics.addOverflow(ctx, queue)
	}

	if err := p.enqueue(ctx, queue, payload); err != nil {
		return fmt.Errorf("lokadcloud: enqueue to queue %q: %w", queue, err)
	}
	p.metrics.addPut(ctx, queue)
	return nil
}

func (p *Provider[T]) overflowBlobName(queue string) string {
	expiry := p.clk.Now().Add(MaxInFlightDuration).Format("2006-01-02")
	return fmt.Sprintf("%s/%s/%s", expiry, queue, idgen.NewString())
}

// putOverflowBlob uploads body under name, lazily creating the temporary
// container (under the retry policy) the first time it is needed.
func (p *Provider[T]) putOverflowBlob(ctx context.Context, name string, body []byte) error {
	err := p.blobs.PutBlob(ctx, p.tempContainer, name, body)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrContainerNotFound) {
		return err
	}
	if err := p.blobs.CreateContainer(ctx, p.tempContainer); err != nil {
		return err
	}
	return retry.Do(ctx, p.clk, p.observer, p.retryConfig, "put_overflow_blob",
		func(err error) bool { return errors.Is(err, ErrContainerNotFound) || IsTransient(err) },
		func(ctx context.Context) error {
			return p.blobs.PutBlob(ctx, p.tempContainer, name, body)
		})
}

// enqueue adds payload to queue, lazily creating the queue (under the
// retry policy) the first time it is needed.
func (p *Provider[T]) enqueue(ctx context.Context, queue string, payload []byte) error {
	err := p.queues.Enqueue(ctx, queue, payload)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrQueueNotFound) {
		return err
	}
	if err := p.queues.CreateQueue(ctx, queue); err != nil {
		return err
	}
	return retry.Do(ctx, p.clk, p.observer, p.retryConfig, "enqueue_after_create",
		func(err error) bool { return errors.Is(err, ErrQueueNotFound) || IsTransient(err) },
		func(ctx context.Context) error {
			return p.queues.Enqueue(ctx, queue, payload)
		})
}

// Delete acknowledges the in-flight delivery of msg on queue, deleting its
// overflow blob first if it overflowed. It reports false, nil if msg is not
// currently tracked as in-flight (tracking is keyed by the message value
// alone, not by queue), or if the underlying ack
// fails because the delivery was already orphaned (queue deleted, or the
// handle expired server-side); both are silent, not errors.
func (p *Provider[T]) Delete(ctx context.Context, queue string, msg T) (bool, error) {
	ctx, guard := withCallGuard(ctx)

	buf, err := serializeValue(msg)
	if err != nil {
		return false, err
	}
	key := inFlightKey(buf)

	handle, overflowing, wrapper, ok := p.registry.lookupFront(key, guard)
	if !ok {
		return false, nil
	}

	if overflowing {
		if err := p.blobs.DeleteBlob(ctx, wrapper.Container, wrapper.Blob); err != nil {
			p.observer.Warn("lokadcloud.overflow.delete_blob_failed",
				"queue", queue, "container", wrapper.Container, "blob", wrapper.Blob, "error", err)
		}
	}

	ackErr := p.queues.Ack(ctx, queue, handle)
	p.registry.popFront(key, guard)
	if ackErr != nil {
		return false, nil
	}
	p.metrics.addDelete(ctx, queue)
	return true, nil
}

// DeleteRange deletes each of msgs from queue independently, returning the
// count that were actually in-flight and acknowledged. It stops and returns
// the first error encountered serializing a message; gateway-level failures
// during ack are swallowed the same way Delete swallows them.
func (p *Provider[T]) DeleteRange(ctx context.Context, queue string, msgs []T) (int, error) {
	count := 0
	for _, m := range msgs {
		ok, err := p.Delete(ctx, queue, m)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

// Clear empties queue without deleting it.
func (p *Provider[T]) Clear(ctx context.Context, queue string) error {
	return p.queues.Clear(ctx, queue)
}

// DeleteQueue removes queue entirely, reporting whether it existed.
func (p *Provider[T]) DeleteQueue(ctx context.Context, queue string) (bool, error) {
	return p.queues.DeleteQueue(ctx, queue)
}

// GetApproximateCount reports queue's approximate message count.
func (p *Provider[T]) GetApproximateCount(ctx context.Context, queue string) (int64, error) {
	return p.queues.ApproximateCount(ctx, queue)
}
