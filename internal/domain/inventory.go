package domain

import "time"

// InventoryItem is a snapshot row from the inventory domain. The detection
// jobs only read these; all mutation happens through the inventory API.
type InventoryItem struct {
	ItemID      string     `json:"id" dynamodbav:"item_id"`
	UserID      string     `json:"user_id" dynamodbav:"user_id"`
	Name        string     `json:"name" dynamodbav:"name"`
	Category    string     `json:"category,omitempty" dynamodbav:"category"`
	Unit        string     `json:"unit,omitempty" dynamodbav:"unit"`
	Quantity    float64    `json:"quantity" dynamodbav:"quantity"`
	MinQuantity float64    `json:"min_quantity" dynamodbav:"min_quantity"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty" dynamodbav:"expiry_date"`
	CreatedAt   time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time  `json:"updated" dynamodbav:"updated_at"`
}
