package domain

type AttemptOutcome string

const (
	OutcomeSuccess  AttemptOutcome = "success"
	OutcomeSoftFail AttemptOutcome = "soft_fail"
	OutcomeHardFail AttemptOutcome = "hard_fail"
)

// DeliveryAttempt records the result of one transport call for one device.
// Attempts are transient: they are aggregated into the notification status
// and into deactivation requests, then discarded.
type DeliveryAttempt struct {
	NotificationID string
	DeviceID       string
	Token          string
	Transport      string
	Outcome        AttemptOutcome
	ErrorCode      string
}
