package models

import (
	"context"
	"errors"
	"fmt"
	"sort"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const archiveBatchSize = 200

// PurchaseOrderStore is the persistence boundary of the merge engine.
// Every method called on the store handed to WithinTransaction's callback joins that transaction.
type PurchaseOrderStore interface {
	WithinTransaction(ctx context.Context, fn func(tx PurchaseOrderStore) error) error

	// LoadOrdersWithItems locks and returns the orders that exist among ids, items sorted by position.
	// Missing ids are simply absent from the result.
	LoadOrdersWithItems(ctx context.Context, ids []int) ([]*PurchaseOrder, error)
	GetOrderWithItems(ctx context.Context, id int) (*PurchaseOrder, error)
	ReplaceOrderItems(ctx context.Context, orderId int, items []PurchaseOrderItem) error
	UpdateDeliveryCharge(ctx context.Context, orderId int, charge decimal.NullDecimal) error
	DeleteOrders(ctx context.Context, orderIds []int) error

	LoadDraftsByOrderIds(ctx context.Context, orderIds []int) (map[int]*PurchaseInvoiceDraft, error)
	SaveDraft(ctx context.Context, draft *PurchaseInvoiceDraft) error
	DeleteDrafts(ctx context.Context, draftIds []int) error

	BulkInsertArchiveRows(ctx context.Context, rows []PurchaseOrderItemArchive) error
	AppendActivityLogs(ctx context.Context, entries []ActivityLog) error
	EnqueueMergeEvent(ctx context.Context, event *PurchaseOrderMergeEvent) error
}

type GormPurchaseOrderStore struct {
	db *gorm.DB
}

func NewGormPurchaseOrderStore(db *gorm.DB) *GormPurchaseOrderStore {
	return &GormPurchaseOrderStore{db: db}
}

func (s *GormPurchaseOrderStore) WithinTransaction(ctx context.Context, fn func(tx PurchaseOrderStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormPurchaseOrderStore{db: tx})
	})
}

func (s *GormPurchaseOrderStore) LoadOrdersWithItems(ctx context.Context, ids []int) ([]*PurchaseOrder, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	// lock in ascending id order so overlapping merges queue instead of deadlocking
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)

	var orders []*PurchaseOrder
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id IN ?", sorted).
		Order("id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, wrapLockError(err, "load purchase orders")
	}
	return orders, nil
}

func (s *GormPurchaseOrderStore) GetOrderWithItems(ctx context.Context, id int) (*PurchaseOrder, error) {
	var order PurchaseOrder
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *GormPurchaseOrderStore) ReplaceOrderItems(ctx context.Context, orderId int, items []PurchaseOrderItem) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("purchase_order_id = ?", orderId).Delete(&PurchaseOrderItem{}).Error; err != nil {
		return wrapLockError(err, "delete purchase order items")
	}
	if len(items) == 0 {
		return nil
	}
	rows := make([]PurchaseOrderItem, len(items))
	for i, item := range items {
		item.ID = 0
		item.PurchaseOrderId = orderId
		rows[i] = item
	}
	if err := db.Create(&rows).Error; err != nil {
		return wrapLockError(err, "insert purchase order items")
	}
	return nil
}

func (s *GormPurchaseOrderStore) UpdateDeliveryCharge(ctx context.Context, orderId int, charge decimal.NullDecimal) error {
	err := s.db.WithContext(ctx).Model(&PurchaseOrder{}).
		Where("id = ?", orderId).
		Update("delivery_charge", charge).Error
	return wrapLockError(err, "update delivery charge")
}

// DeleteOrders removes the orders together with their live items and drafts. Archive rows are kept.
func (s *GormPurchaseOrderStore) DeleteOrders(ctx context.Context, orderIds []int) error {
	if len(orderIds) == 0 {
		return nil
	}
	db := s.db.WithContext(ctx)
	if err := db.Where("purchase_order_id IN ?", orderIds).Delete(&PurchaseOrderItem{}).Error; err != nil {
		return wrapLockError(err, "delete source items")
	}
	if err := db.Where("purchase_order_id IN ?", orderIds).Delete(&PurchaseInvoiceDraft{}).Error; err != nil {
		return wrapLockError(err, "delete source drafts")
	}
	if err := db.Where("id IN ?", orderIds).Delete(&PurchaseOrder{}).Error; err != nil {
		return wrapLockError(err, "delete source orders")
	}
	return nil
}

func (s *GormPurchaseOrderStore) LoadDraftsByOrderIds(ctx context.Context, orderIds []int) (map[int]*PurchaseInvoiceDraft, error) {
	result := make(map[int]*PurchaseInvoiceDraft)
	if len(orderIds) == 0 {
		return result, nil
	}
	var drafts []*PurchaseInvoiceDraft
	if err := s.db.WithContext(ctx).Where("purchase_order_id IN ?", orderIds).Find(&drafts).Error; err != nil {
		return nil, wrapLockError(err, "load invoice drafts")
	}
	for _, draft := range drafts {
		result[draft.PurchaseOrderId] = draft
	}
	return result, nil
}

func (s *GormPurchaseOrderStore) SaveDraft(ctx context.Context, draft *PurchaseInvoiceDraft) error {
	db := s.db.WithContext(ctx)
	if draft.ID == 0 {
		return wrapLockError(db.Create(draft).Error, "create invoice draft")
	}
	return wrapLockError(db.Save(draft).Error, "update invoice draft")
}

func (s *GormPurchaseOrderStore) DeleteDrafts(ctx context.Context, draftIds []int) error {
	if len(draftIds) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", draftIds).Delete(&PurchaseInvoiceDraft{}).Error
	return wrapLockError(err, "delete invoice drafts")
}

func (s *GormPurchaseOrderStore) BulkInsertArchiveRows(ctx context.Context, rows []PurchaseOrderItemArchive) error {
	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).CreateInBatches(&rows, archiveBatchSize).Error
	return wrapLockError(err, "insert archive rows")
}

func (s *GormPurchaseOrderStore) AppendActivityLogs(ctx context.Context, entries []ActivityLog) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&entries).Error
}

func (s *GormPurchaseOrderStore) EnqueueMergeEvent(ctx context.Context, event *PurchaseOrderMergeEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}

// MySQL 1205 (lock wait timeout) and 1213 (deadlock) mean another transaction holds the orders.
func wrapLockError(err error, action string) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) && (mysqlErr.Number == 1205 || mysqlErr.Number == 1213) {
		return fmt.Errorf("%s: purchase orders are locked by another transaction: %w", action, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}
