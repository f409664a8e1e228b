package dispatch

import (
	"context"
	"sync"

	"github.com/farm-api-push/internal/domain"
	"github.com/farm-api-push/internal/infrastructure/expo"
	"github.com/farm-api-push/internal/pkg/pushtoken"
	"golang.org/x/sync/errgroup"
)

// ExpoTransport is the batched two-phase provider: one SendBatch accepts a
// whole provider group, receipts come later.
type ExpoTransport interface {
	SendBatch(ctx context.Context, messages []expo.Message) ([]expo.Ticket, error)
}

// FCMTransport is the unary provider: one call per device.
type FCMTransport interface {
	SendOne(ctx context.Context, token string, n *domain.Notification) (domain.AttemptOutcome, string)
}

// TicketRef correlates an accepted Expo ticket back to the device it was
// issued for, so receipt reconciliation can deactivate the right token.
type TicketRef struct {
	TicketID string
	DeviceID string
	Token    string
}

// Result aggregates everything one dispatch produced. The router has no side
// effects of its own; all state changes flow out through this value.
type Result struct {
	Attempts    []domain.DeliveryAttempt
	Deactivate  []string
	ExpoTickets []TicketRef
}

// Succeeded reports whether at least one delivery attempt went through.
func (r Result) Succeeded() bool {
	for _, a := range r.Attempts {
		if a.Outcome == domain.OutcomeSuccess {
			return true
		}
	}
	return false
}

// Router partitions a user's devices by classified provider and fans the
// notification out over the matching transports.
type Router struct {
	expo        ExpoTransport
	fcm         FCMTransport
	strict      bool
	concurrency int
}

func NewRouter(expoT ExpoTransport, fcmT FCMTransport, strictTokens bool, concurrency int) *Router {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Router{expo: expoT, fcm: fcmT, strict: strictTokens, concurrency: concurrency}
}

// Route delivers the notification to every active device. Expo devices go
// out as a single batch; FCM devices get one unary call each, all under the
// bounded worker pool. Inactive devices are skipped, unclassifiable tokens
// hard-fail immediately without touching a transport.
func (r *Router) Route(ctx context.Context, n *domain.Notification, devices []domain.Device) Result {
	var res Result
	var expoDevices, fcmDevices []domain.Device

	for _, d := range devices {
		if !d.IsActive {
			continue
		}
		c := pushtoken.Classify(d.Token, r.strict)
		if !c.Valid {
			res.Attempts = append(res.Attempts, domain.DeliveryAttempt{
				NotificationID: n.NotificationID,
				DeviceID:       d.DeviceID,
				Token:          d.Token,
				Transport:      "none",
				Outcome:        domain.OutcomeHardFail,
				ErrorCode:      "InvalidToken",
			})
			res.Deactivate = append(res.Deactivate, d.Token)
			continue
		}
		switch c.Provider {
		case domain.ProviderExpo:
			expoDevices = append(expoDevices, d)
		default:
			fcmDevices = append(fcmDevices, d)
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	if len(expoDevices) > 0 {
		g.Go(func() error {
			attempts, deactivate, tickets := r.sendExpo(gctx, n, expoDevices)
			mu.Lock()
			res.Attempts = append(res.Attempts, attempts...)
			res.Deactivate = append(res.Deactivate, deactivate...)
			res.ExpoTickets = append(res.ExpoTickets, tickets...)
			mu.Unlock()
			return nil
		})
	}

	for _, d := range fcmDevices {
		d := d
		g.Go(func() error {
			outcome, code := r.fcm.SendOne(gctx, d.Token, n)
			attempt := domain.DeliveryAttempt{
				NotificationID: n.NotificationID,
				DeviceID:       d.DeviceID,
				Token:          d.Token,
				Transport:      "fcm",
				Outcome:        outcome,
				ErrorCode:      code,
			}
			mu.Lock()
			res.Attempts = append(res.Attempts, attempt)
			if outcome == domain.OutcomeHardFail {
				res.Deactivate = append(res.Deactivate, d.Token)
			}
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return res
}

func (r *Router) sendExpo(ctx context.Context, n *domain.Notification, devices []domain.Device) ([]domain.DeliveryAttempt, []string, []TicketRef) {
	messages := make([]expo.Message, len(devices))
	for i, d := range devices {
		messages[i] = expo.Message{
			To:        d.Token,
			Title:     n.Title,
			Body:      n.Message,
			Data:      deepLinkData(n),
			Sound:     "default",
			Priority:  expoPriority(n.Priority),
			ChannelID: "farm-alerts",
		}
	}

	attempt := func(d domain.Device, outcome domain.AttemptOutcome, code string) domain.DeliveryAttempt {
		return domain.DeliveryAttempt{
			NotificationID: n.NotificationID,
			DeviceID:       d.DeviceID,
			Token:          d.Token,
			Transport:      "expo",
			Outcome:        outcome,
			ErrorCode:      code,
		}
	}

	var attempts []domain.DeliveryAttempt
	tickets, err := r.expo.SendBatch(ctx, messages)
	if err != nil || len(tickets) != len(devices) {
		for _, d := range devices {
			attempts = append(attempts, attempt(d, domain.OutcomeSoftFail, "BatchSendFailed"))
		}
		return attempts, nil, nil
	}

	var deactivate []string
	var refs []TicketRef
	for i, t := range tickets {
		d := devices[i]
		if t.Status == expo.StatusOK {
			attempts = append(attempts, attempt(d, domain.OutcomeSuccess, ""))
			refs = append(refs, TicketRef{TicketID: t.ID, DeviceID: d.DeviceID, Token: d.Token})
			continue
		}
		code := ""
		if t.Details != nil {
			code = t.Details.Error
		}
		if expo.IsHardFailure(code) {
			attempts = append(attempts, attempt(d, domain.OutcomeHardFail, code))
			deactivate = append(deactivate, d.Token)
		} else {
			attempts = append(attempts, attempt(d, domain.OutcomeSoftFail, code))
		}
	}
	return attempts, deactivate, refs
}

func deepLinkData(n *domain.Notification) map[string]string {
	data := map[string]string{
		"notification_id": n.NotificationID,
		"type":            string(n.Type),
	}
	if n.RelatedModelType != "" {
		data["related_model_type"] = n.RelatedModelType
		data["related_model_id"] = n.RelatedModelID
	}
	return data
}

func expoPriority(p domain.NotificationPriority) string {
	if p == domain.PriorityHigh {
		return "high"
	}
	return "default"
}
