package domain

import "time"

type NotificationType string

const (
	NotificationLowStock    NotificationType = "low_stock"
	NotificationExpiry      NotificationType = "expiry"
	NotificationMaintenance NotificationType = "maintenance"
	NotificationVaccination NotificationType = "vaccination"
	NotificationBreeding    NotificationType = "breeding"
	NotificationGeneric     NotificationType = "generic"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
)

type NotificationStatus string

const (
	StatusPending NotificationStatus = "pending"
	StatusSent    NotificationStatus = "sent"
	StatusFailed  NotificationStatus = "failed"
	StatusRead    NotificationStatus = "read"
)

// CanTransition reports whether a notification status may move from one state
// to the other. Statuses are monotonic: pending → sent|failed, and read is
// only reachable from sent.
func CanTransition(from, to NotificationStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusSent || to == StatusFailed
	case StatusSent:
		return to == StatusRead
	default:
		return false
	}
}

type Notification struct {
	NotificationID   string               `json:"id" dynamodbav:"notification_id"`
	UserID           string               `json:"user_id" dynamodbav:"user_id"`
	Type             NotificationType     `json:"type" dynamodbav:"type"`
	Title            string               `json:"title" dynamodbav:"title"`
	Message          string               `json:"message" dynamodbav:"message"`
	Priority         NotificationPriority `json:"priority" dynamodbav:"priority"`
	Status           NotificationStatus   `json:"status" dynamodbav:"status"`
	RelatedModelType string               `json:"related_model_type,omitempty" dynamodbav:"related_model_type"`
	RelatedModelID   string               `json:"related_model_id,omitempty" dynamodbav:"related_model_id"`
	ScheduledFor     *time.Time           `json:"scheduled_for,omitempty" dynamodbav:"scheduled_for"`
	SentAt           *time.Time           `json:"sent_at,omitempty" dynamodbav:"sent_at"`
	ReadAt           *time.Time           `json:"read_at,omitempty" dynamodbav:"read_at"`
	CreatedAt        time.Time            `json:"created" dynamodbav:"created_at"`
	UpdatedAt        time.Time            `json:"updated" dynamodbav:"updated_at"`
}
