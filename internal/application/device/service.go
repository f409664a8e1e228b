package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farm-api-push/internal/domain"
	"github.com/farm-api-push/internal/pkg/id"
	"github.com/farm-api-push/internal/pkg/pushtoken"
	"github.com/farm-api-push/internal/pkg/validate"
)

// Service is the device lifecycle manager. Registration classifies the token
// once and stores the provider with the device; deactivation is the only
// mutation the push engine itself performs.
type Service interface {
	Register(ctx context.Context, userID string, req domain.RegisterDeviceRequest) (*domain.Device, error)
	List(ctx context.Context, userID string) ([]domain.Device, error)
	Deactivate(ctx context.Context, deviceID, userID string) error
	// MarkInactiveByToken retires a registration the providers reported dead.
	// Idempotent: unknown or already-inactive tokens are a no-op.
	MarkInactiveByToken(ctx context.Context, token string) error
}

type deviceStore interface {
	Put(ctx context.Context, d *domain.Device) error
	Get(ctx context.Context, deviceID string) (*domain.Device, error)
	GetByToken(ctx context.Context, token string) (*domain.Device, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error)
	Update(ctx context.Context, deviceID string, updates map[string]interface{}) error
}

type service struct {
	repo   deviceStore
	strict bool
}

func NewService(repo deviceStore, strictTokens bool) Service {
	return &service{repo: repo, strict: strictTokens}
}

func (s *service) Register(ctx context.Context, userID string, req domain.RegisterDeviceRequest) (*domain.Device, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	c := pushtoken.Classify(req.Token, s.strict)
	if !c.Valid {
		return nil, fmt.Errorf("unusable registration token: %w", domain.ErrInvalidToken)
	}

	now := time.Now().UTC()

	// Re-registering a known token rebinds it and is the one path that
	// reactivates a retired device.
	existing, err := s.repo.GetByToken(ctx, req.Token)
	if err == nil {
		updates := map[string]interface{}{
			"user_id":     userID,
			"provider":    string(c.Provider),
			"is_active":   true,
			"last_active": now.Format(time.RFC3339),
		}
		if req.Platform != "" {
			updates["platform"] = req.Platform
		}
		if err := s.repo.Update(ctx, existing.DeviceID, updates); err != nil {
			return nil, err
		}
		return s.repo.Get(ctx, existing.DeviceID)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	d := &domain.Device{
		DeviceID:   id.New(),
		UserID:     userID,
		Token:      req.Token,
		Provider:   c.Provider,
		Platform:   req.Platform,
		IsActive:   true,
		LastActive: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Put(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *service) List(ctx context.Context, userID string) ([]domain.Device, error) {
	return s.repo.ListActiveByUser(ctx, userID)
}

func (s *service) Deactivate(ctx context.Context, deviceID, userID string) error {
	d, err := s.repo.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	if d.UserID != userID {
		return fmt.Errorf("device belongs to another user: %w", domain.ErrForbidden)
	}
	if !d.IsActive {
		return nil
	}
	return s.repo.Update(ctx, deviceID, map[string]interface{}{"is_active": false})
}

func (s *service) MarkInactiveByToken(ctx context.Context, token string) error {
	d, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if !d.IsActive {
		return nil
	}
	return s.repo.Update(ctx, d.DeviceID, map[string]interface{}{"is_active": false})
}
