package domain

// UserContact is the read-only slice of the user record the push engine
// needs: where to escalate when no device can be reached.
type UserContact struct {
	UserID string `json:"id" dynamodbav:"user_id"`
	Email  string `json:"email,omitempty" dynamodbav:"email"`
	Phone  string `json:"phone,omitempty" dynamodbav:"phone"`
}
