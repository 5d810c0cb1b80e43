package workflow

import (
	"context"

	"github.com/mmdatafocus/purchasing_backend/models"
)

// BuildArchiveRows snapshots every item of the given orders, in order then position.
func BuildArchiveRows(sources []*models.PurchaseOrder) []models.PurchaseOrderItemArchive {
	var rows []models.PurchaseOrderItemArchive
	for _, source := range sources {
		for _, item := range source.SortedItems() {
			row := item.ToArchive()
			row.PurchaseOrderId = source.ID
			rows = append(rows, row)
		}
	}
	return rows
}

// ArchiveSourceItems writes one archive row per source item. It must run before the sources are deleted.
func ArchiveSourceItems(ctx context.Context, store models.PurchaseOrderStore, sources []*models.PurchaseOrder) (int, error) {
	rows := BuildArchiveRows(sources)
	if len(rows) == 0 {
		return 0, nil
	}
	if err := store.BulkInsertArchiveRows(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
