package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/farm-api-push/internal/domain"
	jwtinfra "github.com/farm-api-push/internal/infrastructure/jwt"
	"github.com/farm-api-push/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

type mockDeviceSvc struct{ mock.Mock }

func (m *mockDeviceSvc) Register(ctx context.Context, userID string, req domain.RegisterDeviceRequest) (*domain.Device, error) {
	args := m.Called(ctx, userID, req)
	if d, _ := args.Get(0).(*domain.Device); d != nil {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDeviceSvc) List(ctx context.Context, userID string) ([]domain.Device, error) {
	args := m.Called(ctx, userID)
	if ds, _ := args.Get(0).([]domain.Device); ds != nil {
		return ds, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDeviceSvc) Deactivate(ctx context.Context, deviceID, userID string) error {
	return m.Called(ctx, deviceID, userID).Error(0)
}

func (m *mockDeviceSvc) MarkInactiveByToken(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

// --- helpers ---

// withClaims injects authenticated claims the way middleware.Auth would.
func withClaims(r *http.Request, userID string) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.ClaimsKey, &jwtinfra.Claims{UserID: userID})
	return r.WithContext(ctx)
}

// withChiID injects a chi URL param "id" into the request context.
func withChiID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// --- tests ---

func TestDeviceRegister_HappyPath(t *testing.T) {
	svc := &mockDeviceSvc{}
	svc.On("Register", mock.Anything, "u-1", mock.MatchedBy(func(req domain.RegisterDeviceRequest) bool {
		return req.Token == "ExponentPushToken[aaaaaaaaaaaaaaaaaaaa]" && req.Platform == "ios"
	})).Return(&domain.Device{DeviceID: "d-1", UserID: "u-1", Provider: domain.ProviderExpo}, nil)

	h := NewDeviceHandler(svc)
	body, _ := json.Marshal(domain.RegisterDeviceRequest{
		Token:    "ExponentPushToken[aaaaaaaaaaaaaaaaaaaa]",
		Platform: "ios",
	})
	r := withClaims(httptest.NewRequest(http.MethodPost, "/v1/devices", bytes.NewReader(body)), "u-1")
	rr := httptest.NewRecorder()
	h.Register(rr, r)

	assert.Equal(t, http.StatusCreated, rr.Code)
	var resp domain.Device
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "d-1", resp.DeviceID)
	svc.AssertExpectations(t)
}

func TestDeviceRegister_MissingClaims(t *testing.T) {
	h := NewDeviceHandler(&mockDeviceSvc{})
	r := httptest.NewRequest(http.MethodPost, "/v1/devices", bytes.NewBufferString("{}"))
	rr := httptest.NewRecorder()
	h.Register(rr, r)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDeviceRegister_InvalidBody(t *testing.T) {
	h := NewDeviceHandler(&mockDeviceSvc{})
	r := withClaims(httptest.NewRequest(http.MethodPost, "/v1/devices", bytes.NewBufferString("not-json")), "u-1")
	rr := httptest.NewRecorder()
	h.Register(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeviceRegister_UnusableToken(t *testing.T) {
	svc := &mockDeviceSvc{}
	svc.On("Register", mock.Anything, "u-1", mock.Anything).Return(nil, domain.ErrInvalidToken)

	h := NewDeviceHandler(svc)
	body, _ := json.Marshal(domain.RegisterDeviceRequest{Token: "junk", Platform: "ios"})
	r := withClaims(httptest.NewRequest(http.MethodPost, "/v1/devices", bytes.NewReader(body)), "u-1")
	rr := httptest.NewRecorder()
	h.Register(rr, r)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeviceList_HappyPath(t *testing.T) {
	svc := &mockDeviceSvc{}
	svc.On("List", mock.Anything, "u-1").Return([]domain.Device{
		{DeviceID: "d-1"}, {DeviceID: "d-2"},
	}, nil)

	h := NewDeviceHandler(svc)
	r := withClaims(httptest.NewRequest(http.MethodGet, "/v1/devices", nil), "u-1")
	rr := httptest.NewRecorder()
	h.List(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp []domain.Device
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Len(t, resp, 2)
}

func TestDeviceDeactivate_Forbidden(t *testing.T) {
	svc := &mockDeviceSvc{}
	svc.On("Deactivate", mock.Anything, "d-1", "u-2").Return(domain.ErrForbidden)

	h := NewDeviceHandler(svc)
	r := withClaims(withChiID(httptest.NewRequest(http.MethodDelete, "/v1/devices/d-1", nil), "d-1"), "u-2")
	rr := httptest.NewRecorder()
	h.Deactivate(rr, r)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestDeviceDeactivate_HappyPath(t *testing.T) {
	svc := &mockDeviceSvc{}
	svc.On("Deactivate", mock.Anything, "d-1", "u-1").Return(nil)

	h := NewDeviceHandler(svc)
	r := withClaims(withChiID(httptest.NewRequest(http.MethodDelete, "/v1/devices/d-1", nil), "d-1"), "u-1")
	rr := httptest.NewRecorder()
	h.Deactivate(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}
