package detection

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/farm-api-push/internal/application/notification"
	"github.com/farm-api-push/internal/domain"
	gocache "github.com/patrickmn/go-cache"
)

type inventoryReader interface {
	ScanAll(ctx context.Context) ([]domain.InventoryItem, error)
}

type notifier interface {
	Create(ctx context.Context, req notification.CreateRequest) (*domain.Notification, error)
}

// Jobs holds the read-and-diff detection passes over inventory snapshots.
// The dedup cache suppresses repeat notifications for a condition that is
// still unresolved when the next scan comes around.
type Jobs struct {
	inventory inventoryReader
	notifier  notifier
	dedup     *gocache.Cache
	horizon   time.Duration
}

// NewJobs wires the detection passes. The dedup cache is supplied by the
// caller; a nil cache gets a 24h TTL default.
func NewJobs(inventory inventoryReader, n notifier, dedup *gocache.Cache, expiryHorizon time.Duration) *Jobs {
	if dedup == nil {
		dedup = gocache.New(24*time.Hour, 10*time.Minute)
	}
	if expiryHorizon <= 0 {
		expiryHorizon = 30 * 24 * time.Hour
	}
	return &Jobs{
		inventory: inventory,
		notifier:  n,
		dedup:     dedup,
		horizon:   expiryHorizon,
	}
}

// RunLowStock notifies owners of items at or under their minimum quantity.
// Returns the number of notifications created.
func (j *Jobs) RunLowStock(ctx context.Context) (int, error) {
	items, err := j.inventory.ScanAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("scan inventory: %w", err)
	}

	created := 0
	for _, item := range items {
		if item.MinQuantity <= 0 || item.Quantity > item.MinQuantity {
			continue
		}
		key := "low_stock:" + item.ItemID
		if _, hit := j.dedup.Get(key); hit {
			continue
		}

		priority := domain.PriorityMedium
		title := "Low stock: " + item.Name
		message := fmt.Sprintf("%s is down to %s (minimum %s).",
			item.Name, formatQty(item.Quantity, item.Unit), formatQty(item.MinQuantity, item.Unit))
		if item.Quantity <= 0 {
			priority = domain.PriorityHigh
			title = "Out of stock: " + item.Name
			message = fmt.Sprintf("%s has run out.", item.Name)
		}

		_, err := j.notifier.Create(ctx, notification.CreateRequest{
			UserID:           item.UserID,
			Type:             domain.NotificationLowStock,
			Title:            title,
			Message:          message,
			Priority:         priority,
			RelatedModelType: "inventory_item",
			RelatedModelID:   item.ItemID,
		})
		if err != nil {
			log.Printf("WARN: low-stock notification for item %s: %v", item.ItemID, err)
			continue
		}
		j.dedup.SetDefault(key, struct{}{})
		created++
	}
	return created, nil
}

// RunExpiry notifies owners of items expiring within the horizon, including
// items already past their date.
func (j *Jobs) RunExpiry(ctx context.Context) (int, error) {
	items, err := j.inventory.ScanAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("scan inventory: %w", err)
	}

	now := time.Now()
	created := 0
	for _, item := range items {
		if item.ExpiryDate == nil {
			continue
		}
		until := item.ExpiryDate.Sub(now)
		if until > j.horizon {
			continue
		}
		key := "expiry:" + item.ItemID
		if _, hit := j.dedup.Get(key); hit {
			continue
		}

		priority := domain.PriorityMedium
		var title, message string
		switch {
		case until <= 0:
			priority = domain.PriorityHigh
			title = "Expired: " + item.Name
			message = fmt.Sprintf("%s expired on %s.", item.Name, item.ExpiryDate.Format("2006-01-02"))
		case until <= 72*time.Hour:
			priority = domain.PriorityHigh
			title = "Expiring soon: " + item.Name
			message = fmt.Sprintf("%s expires on %s.", item.Name, item.ExpiryDate.Format("2006-01-02"))
		default:
			title = "Expiring: " + item.Name
			message = fmt.Sprintf("%s expires on %s.", item.Name, item.ExpiryDate.Format("2006-01-02"))
		}

		_, err := j.notifier.Create(ctx, notification.CreateRequest{
			UserID:           item.UserID,
			Type:             domain.NotificationExpiry,
			Title:            title,
			Message:          message,
			Priority:         priority,
			RelatedModelType: "inventory_item",
			RelatedModelID:   item.ItemID,
		})
		if err != nil {
			log.Printf("WARN: expiry notification for item %s: %v", item.ItemID, err)
			continue
		}
		j.dedup.SetDefault(key, struct{}{})
		created++
	}
	return created, nil
}

func formatQty(q float64, unit string) string {
	s := fmt.Sprintf("%g", q)
	if unit != "" {
		s += " " + unit
	}
	return s
}
