package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/farm-api-push/internal/application/notification"
	"github.com/farm-api-push/internal/domain"
	gocache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testCache() *gocache.Cache {
	return gocache.New(time.Hour, time.Minute)
}

type mockInventory struct{ mock.Mock }

func (m *mockInventory) ScanAll(ctx context.Context) ([]domain.InventoryItem, error) {
	args := m.Called(ctx)
	if items, _ := args.Get(0).([]domain.InventoryItem); items != nil {
		return items, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Create(ctx context.Context, req notification.CreateRequest) (*domain.Notification, error) {
	args := m.Called(ctx, req)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestRunLowStock_ThresholdFiltering(t *testing.T) {
	inv := new(mockInventory)
	n := new(mockNotifier)
	jobs := NewJobs(inv, n, testCache(), 0)

	inv.On("ScanAll", mock.Anything).Return([]domain.InventoryItem{
		{ItemID: "i-1", UserID: "u-1", Name: "Feed", Quantity: 2, MinQuantity: 5, Unit: "kg"},
		{ItemID: "i-2", UserID: "u-1", Name: "Hay", Quantity: 50, MinQuantity: 10},
		{ItemID: "i-3", UserID: "u-1", Name: "Salt", Quantity: 3, MinQuantity: 0},
	}, nil).Once()
	n.On("Create", mock.Anything, mock.MatchedBy(func(req notification.CreateRequest) bool {
		return req.RelatedModelID == "i-1" &&
			req.Type == domain.NotificationLowStock &&
			req.Priority == domain.PriorityMedium
	})).Return(&domain.Notification{}, nil).Once()

	created, err := jobs.RunLowStock(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, created)
	n.AssertExpectations(t)
}

func TestRunLowStock_OutOfStockIsHighPriority(t *testing.T) {
	inv := new(mockInventory)
	n := new(mockNotifier)
	jobs := NewJobs(inv, n, testCache(), 0)

	inv.On("ScanAll", mock.Anything).Return([]domain.InventoryItem{
		{ItemID: "i-1", UserID: "u-1", Name: "Feed", Quantity: 0, MinQuantity: 5},
	}, nil).Once()
	n.On("Create", mock.Anything, mock.MatchedBy(func(req notification.CreateRequest) bool {
		return req.Priority == domain.PriorityHigh && req.Title == "Out of stock: Feed"
	})).Return(&domain.Notification{}, nil).Once()

	created, err := jobs.RunLowStock(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, created)
	n.AssertExpectations(t)
}

func TestRunLowStock_DedupSuppressesRepeats(t *testing.T) {
	inv := new(mockInventory)
	n := new(mockNotifier)
	jobs := NewJobs(inv, n, testCache(), 0)

	items := []domain.InventoryItem{
		{ItemID: "i-1", UserID: "u-1", Name: "Feed", Quantity: 2, MinQuantity: 5},
	}
	inv.On("ScanAll", mock.Anything).Return(items, nil).Twice()
	n.On("Create", mock.Anything, mock.Anything).Return(&domain.Notification{}, nil).Once()

	first, err := jobs.RunLowStock(context.Background())
	require.NoError(t, err)
	second, err := jobs.RunLowStock(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
	n.AssertNumberOfCalls(t, "Create", 1)
}

func TestRunLowStock_CreateFailureIsNotDeduped(t *testing.T) {
	inv := new(mockInventory)
	n := new(mockNotifier)
	jobs := NewJobs(inv, n, testCache(), 0)

	items := []domain.InventoryItem{
		{ItemID: "i-1", UserID: "u-1", Name: "Feed", Quantity: 2, MinQuantity: 5},
	}
	inv.On("ScanAll", mock.Anything).Return(items, nil).Twice()
	n.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("store down")).Once()
	n.On("Create", mock.Anything, mock.Anything).Return(&domain.Notification{}, nil).Once()

	first, err := jobs.RunLowStock(context.Background())
	require.NoError(t, err)
	second, err := jobs.RunLowStock(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestRunLowStock_ScanErrorPropagates(t *testing.T) {
	inv := new(mockInventory)
	n := new(mockNotifier)
	jobs := NewJobs(inv, n, testCache(), 0)

	inv.On("ScanAll", mock.Anything).Return(nil, errors.New("throttled")).Once()

	_, err := jobs.RunLowStock(context.Background())
	require.Error(t, err)
	n.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRunExpiry_HorizonFiltering(t *testing.T) {
	inv := new(mockInventory)
	n := new(mockNotifier)
	jobs := NewJobs(inv, n, testCache(), 30*24*time.Hour)

	now := time.Now()
	inv.On("ScanAll", mock.Anything).Return([]domain.InventoryItem{
		{ItemID: "i-past", UserID: "u-1", Name: "Vaccine", ExpiryDate: ptrTime(now.Add(-24 * time.Hour))},
		{ItemID: "i-soon", UserID: "u-1", Name: "Medicine", ExpiryDate: ptrTime(now.Add(48 * time.Hour))},
		{ItemID: "i-later", UserID: "u-1", Name: "Seed", ExpiryDate: ptrTime(now.Add(20 * 24 * time.Hour))},
		{ItemID: "i-far", UserID: "u-1", Name: "Fertilizer", ExpiryDate: ptrTime(now.Add(60 * 24 * time.Hour))},
		{ItemID: "i-none", UserID: "u-1", Name: "Tools"},
	}, nil).Once()

	n.On("Create", mock.Anything, mock.MatchedBy(func(req notification.CreateRequest) bool {
		return req.RelatedModelID == "i-past" && req.Priority == domain.PriorityHigh &&
			req.Title == "Expired: Vaccine"
	})).Return(&domain.Notification{}, nil).Once()
	n.On("Create", mock.Anything, mock.MatchedBy(func(req notification.CreateRequest) bool {
		return req.RelatedModelID == "i-soon" && req.Priority == domain.PriorityHigh
	})).Return(&domain.Notification{}, nil).Once()
	n.On("Create", mock.Anything, mock.MatchedBy(func(req notification.CreateRequest) bool {
		return req.RelatedModelID == "i-later" && req.Priority == domain.PriorityMedium
	})).Return(&domain.Notification{}, nil).Once()

	created, err := jobs.RunExpiry(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, created)
	n.AssertExpectations(t)
}

func TestRunExpiry_DedupSuppressesRepeats(t *testing.T) {
	inv := new(mockInventory)
	n := new(mockNotifier)
	jobs := NewJobs(inv, n, testCache(), 30*24*time.Hour)

	items := []domain.InventoryItem{
		{ItemID: "i-1", UserID: "u-1", Name: "Vaccine", ExpiryDate: ptrTime(time.Now().Add(24 * time.Hour))},
	}
	inv.On("ScanAll", mock.Anything).Return(items, nil).Twice()
	n.On("Create", mock.Anything, mock.Anything).Return(&domain.Notification{}, nil).Once()

	first, err := jobs.RunExpiry(context.Background())
	require.NoError(t, err)
	second, err := jobs.RunExpiry(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
}

func TestRunLowStock_InjectedCacheControlsDedup(t *testing.T) {
	inv := new(mockInventory)
	n := new(mockNotifier)
	cache := testCache()
	jobs := NewJobs(inv, n, cache, 0)

	items := []domain.InventoryItem{
		{ItemID: "i-1", UserID: "u-1", Name: "Feed", Quantity: 2, MinQuantity: 5},
	}
	inv.On("ScanAll", mock.Anything).Return(items, nil).Times(3)
	n.On("Create", mock.Anything, mock.Anything).Return(&domain.Notification{}, nil).Twice()

	// A pre-seeded key suppresses the first pass entirely.
	cache.SetDefault("low_stock:i-1", struct{}{})
	created, err := jobs.RunLowStock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	// Evicting the key re-arms the detection.
	cache.Flush()
	created, err = jobs.RunLowStock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	cache.Flush()
	created, err = jobs.RunLowStock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	n.AssertNumberOfCalls(t, "Create", 2)
}

func TestFormatQty(t *testing.T) {
	assert.Equal(t, "2.5 kg", formatQty(2.5, "kg"))
	assert.Equal(t, "10", formatQty(10, ""))
}
