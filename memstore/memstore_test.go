package memstore

import (
	"context"
	"errors"
	"testing"

	lokadcloud "github.com/ischyrus/lokad-cloud-storage"
)

func TestQueueStoreEnqueueReceiveAck(t *testing.T) {
	ctx := context.Background()
	q := NewQueueStore(0)

	if err := q.Enqueue(ctx, "q1", []byte("hi")); !errors.Is(err, lokadcloud.ErrQueueNotFound) {
		t.Fatalf("expected ErrQueueNotFound, got %v", err)
	}
	if err := q.CreateQueue(ctx, "q1"); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	if err := q.Enqueue(ctx, "q1", []byte("hi")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	count, err := q.ApproximateCount(ctx, "q1")
	if err != nil || count != 1 {
		t.Fatalf("count=%d err=%v", count, err)
	}

	msgs, err := q.Receive(ctx, "q1", 10)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Receive: msgs=%v err=%v", msgs, err)
	}
	if string(msgs[0].Body) != "hi" {
		t.Fatalf("unexpected body %q", msgs[0].Body)
	}

	if err := q.Ack(ctx, "q1", msgs[0].Handle); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	count, err = q.ApproximateCount(ctx, "q1")
	if err != nil || count != 0 {
		t.Fatalf("count after ack=%d err=%v", count, err)
	}
}

func TestQueueStoreMissingQueueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q := NewQueueStore(0)

	msgs, err := q.Receive(ctx, "missing", 10)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("Receive on missing queue: msgs=%v err=%v", msgs, err)
	}
	if err := q.Clear(ctx, "missing"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	existed, err := q.DeleteQueue(ctx, "missing")
	if err != nil || existed {
		t.Fatalf("DeleteQueue: existed=%v err=%v", existed, err)
	}
	count, err := q.ApproximateCount(ctx, "missing")
	if err != nil || count != 0 {
		t.Fatalf("ApproximateCount: count=%d err=%v", count, err)
	}
}

func TestQueueStoreListQueuesByPrefix(t *testing.T) {
	ctx := context.Background()
	q := NewQueueStore(0)
	for _, name := range []string{"orders-a", "orders-b", "invoices-a"} {
		if err := q.CreateQueue(ctx, name); err != nil {
			t.Fatalf("CreateQueue(%s): %v", name, err)
		}
	}

	var got []string
	for name, err := range q.ListQueues(ctx, "orders-") {
		if err != nil {
			t.Fatalf("unexpected iteration error: %v", err)
		}
		got = append(got, name)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matching queues, got %v", got)
	}
}

func TestBlobStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	b := NewBlobStore()

	if err := b.PutBlob(ctx, "c1", "n1", []byte("body")); !errors.Is(err, lokadcloud.ErrContainerNotFound) {
		t.Fatalf("expected ErrContainerNotFound, got %v", err)
	}
	if err := b.CreateContainer(ctx, "c1"); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	if err := b.PutBlob(ctx, "c1", "n1", []byte("body")); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}

	body, ok, err := b.GetBlob(ctx, "c1", "n1")
	if err != nil || !ok || string(body) != "body" {
		t.Fatalf("GetBlob: body=%q ok=%v err=%v", body, ok, err)
	}

	if err := b.DeleteBlob(ctx, "c1", "n1"); err != nil {
		t.Fatalf("DeleteBlob: %v", err)
	}
	_, ok, err = b.GetBlob(ctx, "c1", "n1")
	if err != nil || ok {
		t.Fatalf("expected blob gone after delete, ok=%v err=%v", ok, err)
	}
}

func TestBlobStoreMissingContainerGetIsNotAnError(t *testing.T) {
	ctx := context.Background()
	b := NewBlobStore()
	_, ok, err := b.GetBlob(ctx, "missing", "n1")
	if err != nil || ok {
		t.Fatalf("expected ok=false, nil error for missing container, got ok=%v err=%v", ok, err)
	}
}
