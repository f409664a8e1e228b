package receipt

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/farm-api-push/internal/application/dispatch"
	"github.com/farm-api-push/internal/infrastructure/expo"
)

type receiptsAPI interface {
	Receipts(ctx context.Context, ticketIDs []string) (map[string]expo.Receipt, error)
}

type deactivator interface {
	MarkInactiveByToken(ctx context.Context, token string) error
}

// maxPolls bounds how many times a batch is checked before its remaining
// tickets are given up on. Expo keeps receipts around for a day, so a few
// delayed passes are enough.
const maxPolls = 3

type pendingBatch struct {
	notificationID string
	refs           []dispatch.TicketRef
	dueAt          time.Time
	polls          int
}

// Reconciler is the second phase of Expo delivery: a ticket only proves the
// relay accepted a message, the receipt carries the delivery outcome.
// Batches wait out the configured delay before the receipts endpoint is
// polled, independently of the send that produced them. Tickets the relay has
// not resolved yet, and batches whose fetch failed, are re-queued for another
// pass up to maxPolls times.
type Reconciler struct {
	expo      receiptsAPI
	lifecycle deactivator
	delay     time.Duration
	interval  time.Duration

	mu      sync.Mutex
	queue   []pendingBatch
	started bool

	stop chan struct{}
	done chan struct{}
}

func NewReconciler(expoT receiptsAPI, lifecycle deactivator, delay time.Duration) *Reconciler {
	if delay <= 0 {
		delay = 15 * time.Minute
	}
	return &Reconciler{
		expo:      expoT,
		lifecycle: lifecycle,
		delay:     delay,
		interval:  30 * time.Second,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Enqueue registers accepted tickets for a later receipt check. Safe to call
// from any goroutine, including after Stop (the batch is then just dropped).
func (r *Reconciler) Enqueue(notificationID string, refs []dispatch.TicketRef) {
	if len(refs) == 0 {
		return
	}
	r.mu.Lock()
	r.queue = append(r.queue, pendingBatch{
		notificationID: notificationID,
		refs:           refs,
		dueAt:          time.Now().Add(r.delay),
	})
	r.mu.Unlock()
}

func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.processDue(ctx, time.Now())
			}
		}
	}()
}

// Stop is a no-op when Start was never called.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return
	}
	close(r.stop)
	<-r.done
}

// processDue pops every batch whose delay has elapsed and applies its
// receipts. Hard receipt errors retire the device registration, exactly like
// hard ticket errors do at send time.
func (r *Reconciler) processDue(ctx context.Context, now time.Time) {
	r.mu.Lock()
	var due []pendingBatch
	var rest []pendingBatch
	for _, b := range r.queue {
		if b.dueAt.After(now) {
			rest = append(rest, b)
		} else {
			due = append(due, b)
		}
	}
	r.queue = rest
	r.mu.Unlock()

	for _, batch := range due {
		ids := make([]string, len(batch.refs))
		for i, ref := range batch.refs {
			ids[i] = ref.TicketID
		}

		receipts, err := r.expo.Receipts(ctx, ids)
		if err != nil {
			log.Printf("WARN: receipt check for notification %s failed: %v", batch.notificationID, err)
			r.requeue(batch, now)
			continue
		}

		var unresolved []dispatch.TicketRef
		for _, ref := range batch.refs {
			rec, ok := receipts[ref.TicketID]
			if !ok {
				unresolved = append(unresolved, ref)
				continue
			}
			if rec.Status != expo.StatusError {
				continue
			}
			code := ""
			if rec.Details != nil {
				code = rec.Details.Error
			}
			log.Printf("expo receipt error for notification %s: %s", batch.notificationID, code)
			if !expo.IsHardFailure(code) {
				continue
			}
			if err := r.lifecycle.MarkInactiveByToken(ctx, ref.Token); err != nil {
				log.Printf("WARN: deactivate token from receipt: %v", err)
			}
		}
		if len(unresolved) > 0 {
			r.requeue(pendingBatch{
				notificationID: batch.notificationID,
				refs:           unresolved,
				polls:          batch.polls,
			}, now)
		}
	}
}

func (r *Reconciler) requeue(b pendingBatch, now time.Time) {
	if b.polls+1 >= maxPolls {
		log.Printf("WARN: giving up on %d receipt(s) for notification %s after %d checks",
			len(b.refs), b.notificationID, b.polls+1)
		return
	}
	b.polls++
	b.dueAt = now.Add(r.delay)
	r.mu.Lock()
	r.queue = append(r.queue, b)
	r.mu.Unlock()
}
