package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/farm-api-push/internal/application/dispatch"
	"github.com/farm-api-push/internal/domain"
	"github.com/farm-api-push/internal/infrastructure/sns"
	"github.com/farm-api-push/internal/pkg/id"
	"github.com/farm-api-push/internal/pkg/validate"
)

// CreateRequest describes a notification to create and dispatch.
type CreateRequest struct {
	UserID           string                      `validate:"required"`
	Type             domain.NotificationType     `validate:"required"`
	Title            string                      `validate:"required"`
	Message          string                      `validate:"required"`
	Priority         domain.NotificationPriority `validate:"omitempty,oneof=low medium high"`
	RelatedModelType string
	RelatedModelID   string
	ScheduledFor     *time.Time
}

type Service interface {
	// Create persists the notification and dispatches it to the user's
	// active devices. Only store and configuration failures are returned;
	// per-device failures fold into the notification status.
	Create(ctx context.Context, req CreateRequest) (*domain.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, notificationID, userID string) (*domain.Notification, error)
}

type notificationStore interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	TransitionStatus(ctx context.Context, notificationID string, from, to domain.NotificationStatus) error
}

type deviceLister interface {
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error)
}

type deviceDeactivator interface {
	MarkInactiveByToken(ctx context.Context, token string) error
}

type dispatcher interface {
	Route(ctx context.Context, n *domain.Notification, devices []domain.Device) dispatch.Result
}

type receiptScheduler interface {
	Enqueue(notificationID string, refs []dispatch.TicketRef)
}

type contactDirectory interface {
	GetContact(ctx context.Context, userID string) (*domain.UserContact, error)
}

// ServiceDeps wires the engine. SMS and Contacts are optional; without them
// the no-device escalation is skipped.
type ServiceDeps struct {
	Repo      notificationStore
	Devices   deviceLister
	Lifecycle deviceDeactivator
	Router    dispatcher
	Receipts  receiptScheduler
	SMS       sns.SMSSender
	Contacts  contactDirectory
	Timeout   time.Duration
}

type service struct {
	repo      notificationStore
	devices   deviceLister
	lifecycle deviceDeactivator
	router    dispatcher
	receipts  receiptScheduler
	sms       sns.SMSSender
	contacts  contactDirectory
	timeout   time.Duration
}

func NewService(deps ServiceDeps) Service {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &service{
		repo:      deps.Repo,
		devices:   deps.Devices,
		lifecycle: deps.Lifecycle,
		router:    deps.Router,
		receipts:  deps.Receipts,
		sms:       deps.SMS,
		contacts:  deps.Contacts,
		timeout:   timeout,
	}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*domain.Notification, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityMedium
	}

	now := time.Now().UTC()
	n := &domain.Notification{
		NotificationID:   id.New(),
		UserID:           req.UserID,
		Type:             req.Type,
		Title:            req.Title,
		Message:          req.Message,
		Priority:         req.Priority,
		Status:           domain.StatusPending,
		RelatedModelType: req.RelatedModelType,
		RelatedModelID:   req.RelatedModelID,
		ScheduledFor:     req.ScheduledFor,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Put(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %v: %w", err, domain.ErrStore)
	}

	devices, err := s.devices.ListActiveByUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load active devices: %v: %w", err, domain.ErrStore)
	}
	if len(devices) == 0 {
		s.escalate(ctx, n)
		s.transition(ctx, n, domain.StatusFailed)
		return n, nil
	}

	// Dispatch runs under its own lifetime so the caller's deadline (or the
	// per-notification timeout below) never cancels in-flight provider calls.
	dispatchCtx := context.WithoutCancel(ctx)
	done := make(chan dispatch.Result, 1)
	go func() { done <- s.router.Route(dispatchCtx, n, devices) }()

	select {
	case res := <-done:
		s.finalize(ctx, n, res)
	case <-time.After(s.timeout):
		// Best status known so far is pending. Remaining attempts finish in
		// the background against a private copy, so the value returned to
		// the caller is never written after Create returns; the conditional
		// store transition keeps a late result from regressing whatever
		// happened in between.
		late := *n
		go func() {
			res := <-done
			s.finalize(dispatchCtx, &late, res)
		}()
	}
	return n, nil
}

// finalize applies the outcome of one dispatch: deactivations, the status
// transition, and the receipt follow-up for Expo tickets.
func (s *service) finalize(ctx context.Context, n *domain.Notification, res dispatch.Result) {
	for _, token := range res.Deactivate {
		if err := s.lifecycle.MarkInactiveByToken(ctx, token); err != nil {
			log.Printf("WARN: deactivate token after hard failure: %v", err)
		}
	}

	status := domain.StatusFailed
	if res.Succeeded() {
		status = domain.StatusSent
	}
	s.transition(ctx, n, status)

	if len(res.ExpoTickets) > 0 && s.receipts != nil {
		s.receipts.Enqueue(n.NotificationID, res.ExpoTickets)
	}
}

func (s *service) transition(ctx context.Context, n *domain.Notification, to domain.NotificationStatus) {
	err := s.repo.TransitionStatus(ctx, n.NotificationID, domain.StatusPending, to)
	if err != nil {
		// Conflict means another path already finalized it; anything else is
		// an operator problem.
		if !errors.Is(err, domain.ErrConflict) {
			log.Printf("WARN: notification %s status update failed: %v", n.NotificationID, err)
		}
		return
	}
	now := time.Now().UTC()
	n.Status = to
	n.UpdatedAt = now
	if to == domain.StatusSent {
		n.SentAt = &now
	}
}

// escalate sends a one-off SMS for a high-priority notification that has no
// device to land on. Best effort: the notification still ends failed.
func (s *service) escalate(ctx context.Context, n *domain.Notification) {
	if s.sms == nil || s.contacts == nil || n.Priority != domain.PriorityHigh {
		return
	}
	c, err := s.contacts.GetContact(ctx, n.UserID)
	if err != nil || c.Phone == "" {
		return
	}
	if err := s.sms.SendSMS(ctx, c.Phone, n.Title+": "+n.Message); err != nil {
		log.Printf("WARN: sms escalation for %s failed: %v", n.NotificationID, err)
	}
}

func (s *service) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.repo.ListUnread(ctx, userID)
}

func (s *service) MarkAsRead(ctx context.Context, notificationID, userID string) (*domain.Notification, error) {
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, fmt.Errorf("forbidden: %w", domain.ErrForbidden)
	}
	if n.Status == domain.StatusRead {
		return n, nil
	}
	if !domain.CanTransition(n.Status, domain.StatusRead) {
		return nil, fmt.Errorf("cannot mark %s notification read: %w", n.Status, domain.ErrConflict)
	}
	if err := s.repo.TransitionStatus(ctx, notificationID, n.Status, domain.StatusRead); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	n.Status = domain.StatusRead
	n.ReadAt = &now
	n.UpdatedAt = now
	return n, nil
}
