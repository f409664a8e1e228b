package device

import (
	"context"
	"testing"

	"github.com/farm-api-push/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDeviceStore struct{ mock.Mock }

func (m *mockDeviceStore) Put(ctx context.Context, d *domain.Device) error {
	return m.Called(ctx, d).Error(0)
}
func (m *mockDeviceStore) Get(ctx context.Context, deviceID string) (*domain.Device, error) {
	args := m.Called(ctx, deviceID)
	if d, _ := args.Get(0).(*domain.Device); d != nil {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockDeviceStore) GetByToken(ctx context.Context, token string) (*domain.Device, error) {
	args := m.Called(ctx, token)
	if d, _ := args.Get(0).(*domain.Device); d != nil {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockDeviceStore) ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error) {
	args := m.Called(ctx, userID)
	if ds, _ := args.Get(0).([]domain.Device); ds != nil {
		return ds, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockDeviceStore) Update(ctx context.Context, deviceID string, updates map[string]interface{}) error {
	return m.Called(ctx, deviceID, updates).Error(0)
}

const expoToken = "ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]"

func TestRegister_NewTokenClassifiesAndStores(t *testing.T) {
	repo := new(mockDeviceStore)
	svc := NewService(repo, false)

	repo.On("GetByToken", mock.Anything, expoToken).Return(nil, domain.ErrNotFound).Once()
	repo.On("Put", mock.Anything, mock.MatchedBy(func(d *domain.Device) bool {
		return d.Token == expoToken &&
			d.Provider == domain.ProviderExpo &&
			d.UserID == "u-1" &&
			d.IsActive
	})).Return(nil).Once()

	d, err := svc.Register(context.Background(), "u-1", domain.RegisterDeviceRequest{
		Token:    expoToken,
		Platform: "ios",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, d.DeviceID)
	assert.Equal(t, domain.ProviderExpo, d.Provider)
	repo.AssertExpectations(t)
}

func TestRegister_MalformedTokenRejected(t *testing.T) {
	repo := new(mockDeviceStore)
	svc := NewService(repo, false)

	_, err := svc.Register(context.Background(), "u-1", domain.RegisterDeviceRequest{
		Token:    "short",
		Platform: "android",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	repo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestRegister_StrictModeRejectsUncertainTokens(t *testing.T) {
	repo := new(mockDeviceStore)
	uncertain := "alongtokenthatmatchesneithershape1234"

	_, err := NewService(repo, true).Register(context.Background(), "u-1", domain.RegisterDeviceRequest{
		Token:    uncertain,
		Platform: "android",
	})
	require.ErrorIs(t, err, domain.ErrInvalidToken)

	// Lenient mode accepts the same token and routes it to FCM.
	repo.On("GetByToken", mock.Anything, uncertain).Return(nil, domain.ErrNotFound).Once()
	repo.On("Put", mock.Anything, mock.MatchedBy(func(d *domain.Device) bool {
		return d.Provider == domain.ProviderFCM
	})).Return(nil).Once()

	d, err := NewService(repo, false).Register(context.Background(), "u-1", domain.RegisterDeviceRequest{
		Token:    uncertain,
		Platform: "android",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderFCM, d.Provider)
}

func TestRegister_KnownTokenRebindsAndReactivates(t *testing.T) {
	repo := new(mockDeviceStore)
	svc := NewService(repo, false)
	existing := &domain.Device{DeviceID: "d-1", UserID: "u-old", Token: expoToken, IsActive: false}

	repo.On("GetByToken", mock.Anything, expoToken).Return(existing, nil).Once()
	repo.On("Update", mock.Anything, "d-1", mock.MatchedBy(func(updates map[string]interface{}) bool {
		return updates["user_id"] == "u-new" && updates["is_active"] == true
	})).Return(nil).Once()
	repo.On("Get", mock.Anything, "d-1").
		Return(&domain.Device{DeviceID: "d-1", UserID: "u-new", Token: expoToken, IsActive: true}, nil).Once()

	d, err := svc.Register(context.Background(), "u-new", domain.RegisterDeviceRequest{
		Token:    expoToken,
		Platform: "ios",
	})

	require.NoError(t, err)
	assert.Equal(t, "u-new", d.UserID)
	assert.True(t, d.IsActive)
	repo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestRegister_InvalidPlatformIsBadRequest(t *testing.T) {
	repo := new(mockDeviceStore)
	svc := NewService(repo, false)

	_, err := svc.Register(context.Background(), "u-1", domain.RegisterDeviceRequest{
		Token:    expoToken,
		Platform: "windows",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestDeactivate_OwnershipEnforced(t *testing.T) {
	repo := new(mockDeviceStore)
	svc := NewService(repo, false)

	repo.On("Get", mock.Anything, "d-1").
		Return(&domain.Device{DeviceID: "d-1", UserID: "u-1", IsActive: true}, nil).Once()

	err := svc.Deactivate(context.Background(), "d-1", "u-2")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeactivate_AlreadyInactiveIsNoop(t *testing.T) {
	repo := new(mockDeviceStore)
	svc := NewService(repo, false)

	repo.On("Get", mock.Anything, "d-1").
		Return(&domain.Device{DeviceID: "d-1", UserID: "u-1", IsActive: false}, nil).Once()

	require.NoError(t, svc.Deactivate(context.Background(), "d-1", "u-1"))
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkInactiveByToken_UnknownTokenIsNoop(t *testing.T) {
	repo := new(mockDeviceStore)
	svc := NewService(repo, false)

	repo.On("GetByToken", mock.Anything, "gone").Return(nil, domain.ErrNotFound).Once()

	require.NoError(t, svc.MarkInactiveByToken(context.Background(), "gone"))
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkInactiveByToken_RetiresActiveDevice(t *testing.T) {
	repo := new(mockDeviceStore)
	svc := NewService(repo, false)

	repo.On("GetByToken", mock.Anything, expoToken).
		Return(&domain.Device{DeviceID: "d-1", Token: expoToken, IsActive: true}, nil).Once()
	repo.On("Update", mock.Anything, "d-1", map[string]interface{}{"is_active": false}).
		Return(nil).Once()

	require.NoError(t, svc.MarkInactiveByToken(context.Background(), expoToken))
	repo.AssertExpectations(t)
}
