package expo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/farm-api-push/internal/config"
	"github.com/farm-api-push/internal/domain"
	"golang.org/x/time/rate"
)

// Message is one push message in the Expo batch API shape.
type Message struct {
	To        string            `json:"to"`
	Title     string            `json:"title,omitempty"`
	Body      string            `json:"body,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Sound     string            `json:"sound,omitempty"`
	Priority  string            `json:"priority,omitempty"`
	ChannelID string            `json:"channelId,omitempty"`
}

// ErrorDetails carries the provider error code for a ticket or receipt.
type ErrorDetails struct {
	Error string `json:"error"`
}

// Ticket is the per-message acceptance result. A ticket confirms the relay
// accepted the message, not that it was delivered — delivery is confirmed by
// the receipt fetched later.
type Ticket struct {
	Status  string        `json:"status"`
	ID      string        `json:"id,omitempty"`
	Message string        `json:"message,omitempty"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// Receipt is the per-ticket delivery outcome.
type Receipt struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Details *ErrorDetails `json:"details,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// hardFailureCodes are the ticket/receipt error codes that prove the token
// can never be delivered to again. Anything else is treated as soft.
var hardFailureCodes = map[string]bool{
	"DeviceNotRegistered": true,
	"InvalidCredentials":  true,
	"MessageTooBig":       true,
	"MessageRateExceeded": true,
}

// IsHardFailure reports whether an Expo error code requires deactivating the
// device registration.
func IsHardFailure(code string) bool {
	return hardFailureCodes[code]
}

// Transport talks to the Expo push relay: chunked batch sends plus the
// receipts endpoint for the delayed second phase.
type Transport struct {
	client        *http.Client
	baseURL       string
	chunkSize     int
	limiter       *rate.Limiter
	retryAttempts uint64
	retryBackoff  time.Duration
}

func NewTransport(cfg config.Push) *Transport {
	chunk := cfg.ExpoChunkSize
	if chunk <= 0 {
		chunk = 100
	}
	return &Transport{
		client:    &http.Client{Timeout: 10 * time.Second},
		baseURL:   cfg.ExpoBaseURL,
		chunkSize: chunk,
		// One chunk POST every 200ms keeps a detection-run burst well under
		// the relay's rate ceiling.
		limiter:       rate.NewLimiter(rate.Every(200*time.Millisecond), 2),
		retryAttempts: uint64(cfg.RetryAttempts),
		retryBackoff:  cfg.RetryBackoff,
	}
}

// SendBatch sends all messages in chunks and returns one ticket per input
// message, in input order. A chunk that fails even after retries yields
// synthetic error tickets so the 1:1 correlation with messages holds.
func (t *Transport) SendBatch(ctx context.Context, messages []Message) ([]Ticket, error) {
	tickets := make([]Ticket, 0, len(messages))
	for start := 0; start < len(messages); start += t.chunkSize {
		end := start + t.chunkSize
		if end > len(messages) {
			end = len(messages)
		}
		chunk := messages[start:end]

		if err := t.limiter.Wait(ctx); err != nil {
			return tickets, err
		}
		chunkTickets, err := t.postChunk(ctx, chunk)
		if err != nil {
			for range chunk {
				tickets = append(tickets, Ticket{Status: StatusError, Message: err.Error()})
			}
			continue
		}
		tickets = append(tickets, chunkTickets...)
	}
	return tickets, nil
}

func (t *Transport) postChunk(ctx context.Context, chunk []Message) ([]Ticket, error) {
	var parsed struct {
		Data []Ticket `json:"data"`
	}
	err := t.withRetry(ctx, func() error {
		body, err := t.post(ctx, t.baseURL+"/push/send", chunk)
		if err != nil {
			return err
		}
		return backoffPermanentIf(json.Unmarshal(body, &parsed))
	})
	if err != nil {
		return nil, fmt.Errorf("expo send: %w", err)
	}
	if len(parsed.Data) != len(chunk) {
		return nil, fmt.Errorf("expo send: got %d tickets for %d messages", len(parsed.Data), len(chunk))
	}
	return parsed.Data, nil
}

// Receipts polls the receipts endpoint for the given ticket ids. Returns a
// map keyed by ticket id; tickets the relay has not resolved yet are simply
// absent and can be polled again.
func (t *Transport) Receipts(ctx context.Context, ticketIDs []string) (map[string]Receipt, error) {
	receipts := make(map[string]Receipt, len(ticketIDs))
	for start := 0; start < len(ticketIDs); start += t.chunkSize {
		end := start + t.chunkSize
		if end > len(ticketIDs) {
			end = len(ticketIDs)
		}
		chunk := ticketIDs[start:end]

		if err := t.limiter.Wait(ctx); err != nil {
			return receipts, err
		}
		var parsed struct {
			Data map[string]Receipt `json:"data"`
		}
		err := t.withRetry(ctx, func() error {
			body, err := t.post(ctx, t.baseURL+"/push/getReceipts", map[string][]string{"ids": chunk})
			if err != nil {
				return err
			}
			return backoffPermanentIf(json.Unmarshal(body, &parsed))
		})
		if err != nil {
			return receipts, fmt.Errorf("expo receipts: %w", err)
		}
		for id, rec := range parsed.Data {
			receipts[id] = rec
		}
	}
	return receipts, nil
}

// post issues one JSON POST. 5xx and 429 responses come back as plain errors
// so withRetry retries them; other 4xx are wrapped permanent.
func (t *Transport) post(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrProviderTransient)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", domain.ErrProviderTransient)
	}
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("expo responded %d: %w", resp.StatusCode, domain.ErrProviderTransient)
	case resp.StatusCode >= 400:
		return nil, backoff.Permanent(fmt.Errorf("expo responded %d: %w", resp.StatusCode, domain.ErrProviderRejected))
	}
	return body, nil
}

func (t *Transport) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.retryBackoff
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, t.retryAttempts), ctx))
}

func backoffPermanentIf(err error) error {
	if err != nil {
		return backoff.Permanent(err)
	}
	return nil
}
