package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"github.com/cenkalti/backoff/v4"
	"github.com/farm-api-push/internal/config"
	"github.com/farm-api-push/internal/domain"
	"google.golang.org/api/option"
)

// primaryAPI is the slice of the Firebase messaging client the transport
// uses. *messaging.Client satisfies it.
type primaryAPI interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Transport delivers unary FCM pushes: the modern send API first, with a
// single fallback to the legacy HTTP endpoint on non-token errors.
type Transport struct {
	primary       primaryAPI
	client        *http.Client
	legacyURL     string
	serverKey     string
	retryAttempts uint64
	retryBackoff  time.Duration
}

// NewTransport initialises the Firebase client from the configured service
// account. At least one of the primary credentials file and the legacy server
// key must be configured; otherwise startup fails.
func NewTransport(ctx context.Context, cfg config.Push) (*Transport, error) {
	if cfg.FCMCredentialsFile == "" && cfg.FCMServerKey == "" {
		return nil, fmt.Errorf("neither FCM_CREDENTIALS_FILE nor FCM_SERVER_KEY is set: %w", domain.ErrConfiguration)
	}

	t := &Transport{
		client:        &http.Client{Timeout: 10 * time.Second},
		legacyURL:     cfg.FCMLegacyURL,
		serverKey:     cfg.FCMServerKey,
		retryAttempts: uint64(cfg.RetryAttempts),
		retryBackoff:  cfg.RetryBackoff,
	}

	if cfg.FCMCredentialsFile != "" {
		app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.FCMCredentialsFile))
		if err != nil {
			return nil, fmt.Errorf("init firebase app: %w", domain.ErrConfiguration)
		}
		mc, err := app.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("init messaging client: %w", domain.ErrConfiguration)
		}
		t.primary = mc
	} else {
		log.Println("WARN: FCM primary credentials missing, legacy-only delivery")
	}
	return t, nil
}

// newTestTransport wires a stub primary client; used by tests only.
func newTestTransport(primary primaryAPI, client *http.Client, legacyURL, serverKey string) *Transport {
	return &Transport{
		primary:       primary,
		client:        client,
		legacyURL:     legacyURL,
		serverKey:     serverKey,
		retryAttempts: 1,
		retryBackoff:  time.Millisecond,
	}
}

// SendOne pushes one notification to one token. The returned error code is
// the provider code for failed outcomes, empty on success.
func (t *Transport) SendOne(ctx context.Context, token string, n *domain.Notification) (domain.AttemptOutcome, string) {
	var primaryErr error
	if t.primary != nil {
		primaryErr = t.sendPrimary(ctx, buildMessage(token, n))
		if primaryErr == nil {
			return domain.OutcomeSuccess, ""
		}
		if code, hard := hardFailureCode(primaryErr); hard {
			// The token is provably dead; the legacy API cannot resurrect it.
			return domain.OutcomeHardFail, code
		}
	}

	if t.serverKey == "" {
		log.Printf("WARN: fcm primary failed with no legacy fallback configured: %v", primaryErr)
		return domain.OutcomeSoftFail, "primary-send-failed"
	}
	return t.sendLegacy(ctx, token, n)
}

func (t *Transport) sendPrimary(ctx context.Context, msg *messaging.Message) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.retryBackoff
	return backoff.Retry(func() error {
		_, err := t.primary.Send(ctx, msg)
		if err == nil {
			return nil
		}
		if transientError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, t.retryAttempts), ctx))
}

// legacyRequest is the legacy HTTP API body. Platform blocks collapse to the
// flat legacy fields.
type legacyRequest struct {
	To           string            `json:"to"`
	Priority     string            `json:"priority,omitempty"`
	Notification map[string]string `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type legacyResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		Error string `json:"error"`
	} `json:"results"`
}

func (t *Transport) sendLegacy(ctx context.Context, token string, n *domain.Notification) (domain.AttemptOutcome, string) {
	body, err := json.Marshal(legacyRequest{
		To:       token,
		Priority: legacyPriority(n.Priority),
		Notification: map[string]string{
			"title": n.Title,
			"body":  n.Message,
			"sound": "default",
		},
		Data: dataPayload(n),
	})
	if err != nil {
		return domain.OutcomeSoftFail, "marshal-legacy-request"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.legacyURL, bytes.NewReader(body))
	if err != nil {
		return domain.OutcomeSoftFail, "build-legacy-request"
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+t.serverKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return domain.OutcomeSoftFail, "legacy-unreachable"
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		return domain.OutcomeSoftFail, fmt.Sprintf("legacy-status-%d", resp.StatusCode)
	}

	var parsed legacyResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.OutcomeSoftFail, "legacy-bad-response"
	}
	if parsed.Success >= 1 {
		return domain.OutcomeSuccess, ""
	}
	if len(parsed.Results) > 0 {
		code := parsed.Results[0].Error
		switch code {
		case "NotRegistered", "InvalidRegistration", "MismatchSenderId":
			return domain.OutcomeHardFail, code
		default:
			return domain.OutcomeSoftFail, code
		}
	}
	return domain.OutcomeSoftFail, "legacy-send-failed"
}

func buildMessage(token string, n *domain.Notification) *messaging.Message {
	badge := 1
	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		// Echo identifying fields so the client can deep-link from the tray.
		Data: dataPayload(n),
		Android: &messaging.AndroidConfig{
			Priority: androidPriority(n.Priority),
			Notification: &messaging.AndroidNotification{
				ChannelID: "farm-alerts",
				Sound:     "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
					Badge: &badge,
				},
			},
		},
	}
}

func dataPayload(n *domain.Notification) map[string]string {
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

func androidPriority(p domain.NotificationPriority) string {
	if p == domain.PriorityHigh {
		return "high"
	}
	return "normal"
}

func legacyPriority(p domain.NotificationPriority) string {
	if p == domain.PriorityHigh {
		return "high"
	}
	return ""
}

// hardFailureCodes mirror the primary API's token-is-dead error codes. The
// string match covers stub errors and SDK versions whose predicates miss.
var hardFailureCodes = []string{
	"registration-token-not-registered",
	"invalid-registration-token",
	"invalid-recipient",
	"invalid-argument",
}

func hardFailureCode(err error) (string, bool) {
	if messaging.IsUnregistered(err) {
		return "registration-token-not-registered", true
	}
	if errorutils.IsInvalidArgument(err) {
		return "invalid-argument", true
	}
	s := err.Error()
	for _, code := range hardFailureCodes {
		if strings.Contains(s, code) {
			return code, true
		}
	}
	return "", false
}

func transientError(err error) bool {
	if errorutils.IsUnavailable(err) || errorutils.IsInternal(err) || errorutils.IsDeadlineExceeded(err) {
		return true
	}
	s := err.Error()
	for _, marker := range []string{"timeout", "deadline exceeded", "connection refused", "503", "500"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
