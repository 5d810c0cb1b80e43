package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const archiveSheetName = "Archive"

var archiveHeadings = []string{"PurchaseOrderId", "Position", "ItemId", "UnitId", "Quantity", "UnitCost", "ArchivedAt"}

type PurchaseOrderArchiveResponse struct {
	PurchaseOrderId int                 `json:"purchaseOrderId"`
	Position        int                 `json:"position"`
	ItemId          int                 `json:"itemId"`
	UnitId          *int                `json:"unitId"`
	Quantity        decimal.Decimal     `json:"quantity"`
	UnitCost        decimal.NullDecimal `json:"unitCost"`
	ArchivedAt      time.Time           `json:"archivedAt"`
}

// GetPurchaseOrderArchiveReport lists the archived items of a merged-away purchase order by position.
func GetPurchaseOrderArchiveReport(ctx context.Context, db *gorm.DB, orderId int) ([]*PurchaseOrderArchiveResponse, error) {
	sql := `
SELECT
    a.purchase_order_id,
    a.position,
    a.item_id,
    a.unit_id,
    a.quantity,
    a.unit_cost,
    a.archived_at
FROM
    purchase_order_item_archives a
WHERE
    a.purchase_order_id = @orderId
ORDER BY
    a.position, a.id
`
	if db == nil {
		db = config.GetDB()
	}
	var records []*PurchaseOrderArchiveResponse
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{"orderId": orderId}).Scan(&records).Error; err != nil {
		config.LogError(config.GetLogger(), "purchaseOrderArchiveReport.go", "GetPurchaseOrderArchiveReport", "query archive", orderId, err)
		return nil, err
	}
	return records, nil
}

// WriteArchiveWorkbook writes rows as a single-sheet xlsx workbook.
func WriteArchiveWorkbook(rows []*PurchaseOrderArchiveResponse, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", archiveSheetName); err != nil {
		return err
	}

	for i, h := range archiveHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(archiveSheetName, cell, h); err != nil {
			return err
		}
	}

	for i, r := range rows {
		row := i + 2
		values := []interface{}{
			r.PurchaseOrderId,
			r.Position,
			r.ItemId,
			"",
			r.Quantity.String(),
			"",
			r.ArchivedAt.UTC().Format(time.RFC3339),
		}
		if r.UnitId != nil {
			values[3] = *r.UnitId
		}
		if r.UnitCost.Valid {
			values[5] = r.UnitCost.Decimal.String()
		}
		if err := f.SetSheetRow(archiveSheetName, fmt.Sprintf("A%d", row), &values); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func ExportPurchaseOrderArchive(ctx context.Context, db *gorm.DB, orderId int, w io.Writer) (int, error) {
	rows, err := GetPurchaseOrderArchiveReport(ctx, db, orderId)
	if err != nil {
		return 0, err
	}
	if err := WriteArchiveWorkbook(rows, w); err != nil {
		return 0, err
	}
	return len(rows), nil
}
