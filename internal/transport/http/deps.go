package http

import (
	"github.com/farm-api-push/internal/application/device"
	"github.com/farm-api-push/internal/application/notification"
	jwtinfra "github.com/farm-api-push/internal/infrastructure/jwt"
)

// Deps holds the application services the router exposes. Services are
// built in main because the notification engine owns background workers
// whose lifecycle outlives any single request.
type Deps struct {
	DeviceSvc       device.Service
	NotificationSvc notification.Service
	JWTProvider     *jwtinfra.Provider
}
