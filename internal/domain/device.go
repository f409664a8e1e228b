package domain

import "time"

type DeviceProvider string

const (
	ProviderExpo    DeviceProvider = "expo"
	ProviderFCM     DeviceProvider = "fcm"
	ProviderUnknown DeviceProvider = "unknown"
)

type RegisterDeviceRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"omitempty,oneof=ios android web"`
}

// Device is a push registration. Provider is set once when the token is
// classified at registration time and is never re-derived implicitly.
type Device struct {
	DeviceID   string         `json:"id" dynamodbav:"device_id"`
	UserID     string         `json:"user_id" dynamodbav:"user_id"`
	Token      string         `json:"token" dynamodbav:"token"`
	Provider   DeviceProvider `json:"provider" dynamodbav:"provider"`
	Platform   string         `json:"platform,omitempty" dynamodbav:"platform"`
	IsActive   bool           `json:"is_active" dynamodbav:"is_active"`
	LastActive time.Time      `json:"last_active" dynamodbav:"last_active"`
	CreatedAt  time.Time      `json:"created" dynamodbav:"created_at"`
	UpdatedAt  time.Time      `json:"updated" dynamodbav:"updated_at"`
}
