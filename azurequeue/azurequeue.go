// Package azurequeue implements lokadcloud.QueueGateway over Azure Queue
// Storage, the sibling service to the Blob Storage the azureblob package
// binds to.
package azurequeue

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	lokadcloud "github.com/ischyrus/lokad-cloud-storage"
)

// maxMessageSize is Azure Storage Queue's documented per-message ceiling.
const maxMessageSize = 65536

// Config controls connectivity to Azure Queue Storage.
type Config struct {
	Account    string
	AccountKey string
	Endpoint   string
	SASToken   string
}

// Store implements lokadcloud.QueueGateway backed by Azure Queue Storage.
//
// Message bodies are base64-encoded before being handed to the service and
// decoded on the way back out: the serializer's leading discriminator byte
// is a raw control byte, which Azure Queue Storage's XML transport does not
// accept as message text.
type Store struct {
	client *azqueue.Client
}

// New constructs a Store using cfg.
func New(cfg Config) (*Store, error) {
	if cfg.Account == "" {
		return nil, fmt.Errorf("azurequeue: account is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.queue.core.windows.net", cfg.Account)
	}

	var (
		client *azqueue.Client
		err    error
	)
	if cfg.SASToken != "" {
		endpointWithSAS, serr := appendSASToken(endpoint, cfg.SASToken)
		if serr != nil {
			return nil, serr
		}
		client, err = azqueue.NewClientWithNoCredential(endpointWithSAS, nil)
	} else {
		if cfg.AccountKey == "" {
			return nil, fmt.Errorf("azurequeue: account key or SAS token required")
		}
		cred, credErr := azqueue.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("azurequeue: build credentials: %w", credErr)
		}
		client, err = azqueue.NewClientWithSharedKeyCredential(endpoint, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("azurequeue: create client: %w", err)
	}
	return &Store{client: client}, nil
}

func appendSASToken(endpoint, sas string) (string, error) {
	sas = strings.TrimPrefix(sas, "?")
	if strings.Contains(endpoint, "?") {
		return endpoint + "&" + sas, nil
	}
	return endpoint + "?" + sas, nil
}

// MaxMessageSize reports Azure Storage Queue's per-message byte ceiling.
func (s *Store) MaxMessageSize() int64 { return maxMessageSize }

// ListQueues returns a lazy sequence of queue names with the given prefix.
func (s *Store) ListQueues(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		pager := s.client.NewListQueuesPager(&azqueue.ListQueuesOptions{Prefix: &prefix})
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield("", fmt.Errorf("azurequeue: list queues: %w", err))
				return
			}
			for _, q := range page.Queues {
				if q == nil || q.Name == nil {
					continue
				}
				if !yield(*q.Name, nil) {
					return
				}
			}
		}
	}
}

// CreateQueue creates queue. Creating an already-existing queue is not an
// error.
func (s *Store) CreateQueue(ctx context.Context, queue string) error {
	_, err := s.client.NewQueueClient(queue).Create(ctx, nil)
	if err != nil && !isQueueExists(err) {
		return fmt.Errorf("azurequeue: create queue: %w", err)
	}
	return nil
}

// Enqueue adds a message to queue.
func (s *Store) Enqueue(ctx context.Context, queue string, body []byte) error {
	encoded := base64.StdEncoding.EncodeToString(body)
	_, err := s.client.NewQueueClient(queue).EnqueueMessage(ctx, encoded, nil)
	if err != nil {
		if isNotFound(err) {
			return lokadcloud.ErrQueueNotFound
		}
		return fmt.Errorf("azurequeue: enqueue message: %w", err)
	}
	return nil
}

// Receive dequeues up to maxCount messages. Returns an empty slice if the
// queue does not exist or has nothing ready.
func (s *Store) Receive(ctx context.Context, queue string, maxCount int) ([]lokadcloud.RawMessage, error) {
	count := int32(maxCount)
	resp, err := s.client.NewQueueClient(queue).DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{
		NumberOfMessages: &count,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("azurequeue: dequeue messages: %w", err)
	}

	out := make([]lokadcloud.RawMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m == nil || m.MessageID == nil || m.PopReceipt == nil || m.MessageText == nil {
			continue
		}
		body, decErr := base64.StdEncoding.DecodeString(*m.MessageText)
		if decErr != nil {
			return nil, fmt.Errorf("azurequeue: decode message body: %w", decErr)
		}
		out = append(out, lokadcloud.RawMessage{
			Handle: lokadcloud.RawHandle{MessageID: *m.MessageID, PopReceipt: *m.PopReceipt},
			Body:   body,
		})
	}
	return out, nil
}

// Ack permanently deletes a specific delivery.
func (s *Store) Ack(ctx context.Context, queue string, handle lokadcloud.RawHandle) error {
	_, err := s.client.NewQueueClient(queue).DeleteMessage(ctx, handle.MessageID, handle.PopReceipt, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("azurequeue: delete message: %w", err)
	}
	return nil
}

// Clear empties queue. No-op if the queue does not exist.
func (s *Store) Clear(ctx context.Context, queue string) error {
	_, err := s.client.NewQueueClient(queue).ClearMessages(ctx, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("azurequeue: clear queue: %w", err)
	}
	return nil
}

// DeleteQueue removes queue entirely, reporting whether it existed.
func (s *Store) DeleteQueue(ctx context.Context, queue string) (bool, error) {
	_, err := s.client.NewQueueClient(queue).Delete(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("azurequeue: delete queue: %w", err)
	}
	return true, nil
}

// ApproximateCount reports queue's approximate message count, or 0 if it
// does not exist.
func (s *Store) ApproximateCount(ctx context.Context, queue string) (int64, error) {
	resp, err := s.client.NewQueueClient(queue).GetProperties(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("azurequeue: get queue properties: %w", err)
	}
	if resp.ApproximateMessagesCount == nil {
		return 0, nil
	}
	return int64(*resp.ApproximateMessagesCount), nil
}

func isQueueExists(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusConflict && strings.EqualFold(respErr.ErrorCode, "QueueAlreadyExists")
	}
	return false
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	return false
}
