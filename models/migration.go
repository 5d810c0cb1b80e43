package models

import (
	"log"

	"github.com/mmdatafocus/purchasing_backend/config"
	"gorm.io/gorm"
)

func MigrateTable() {
	if err := AutoMigrateMergeTables(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

// AutoMigrateMergeTables creates or updates the tables the merge engine reads and writes.
func AutoMigrateMergeTables(db *gorm.DB) error {
	return db.AutoMigrate(
		&PurchaseOrder{}, &PurchaseOrderItem{}, &PurchaseOrderItemArchive{},
		&PurchaseInvoiceDraft{},
		&ActivityLog{},
		&PurchaseOrderMergeEvent{},
	)
}
