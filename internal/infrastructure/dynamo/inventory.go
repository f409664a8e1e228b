package dynamo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/farm-api-push/internal/domain"
)

// InventoryRepo provides read access to inventory snapshots for the detection
// jobs. Inventory mutation belongs to the inventory API, not this service.
type InventoryRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewInventoryRepo(client *dynamodb.Client, tableName string) *InventoryRepo {
	return &InventoryRepo{client: client, tableName: tableName}
}

// ScanAll returns every inventory item, following pagination. The detection
// jobs run once a day, so a full scan is acceptable here.
func (r *InventoryRepo) ScanAll(ctx context.Context) ([]domain.InventoryItem, error) {
	var items []domain.InventoryItem
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(r.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}
		var page []domain.InventoryItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		items = append(items, page...)
		if out.LastEvaluatedKey == nil {
			return items, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
