package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseOrder struct {
	ID             int                 `gorm:"primary_key" json:"id"`
	VendorId       int                 `gorm:"index;not null" json:"vendor_id"`
	UserId         int                 `gorm:"index;not null" json:"user_id"`
	OrderDate      time.Time           `gorm:"type:date;not null" json:"order_date"`
	ExpectedDate   time.Time           `gorm:"type:date;not null" json:"expected_date"`
	Received       bool                `gorm:"not null;default:false" json:"received"`
	DeliveryCharge decimal.NullDecimal `gorm:"type:decimal(20,4);default:null" json:"delivery_charge"`
	Items          []PurchaseOrderItem `gorm:"foreignKey:PurchaseOrderId;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderItem struct {
	ID              int                 `gorm:"primary_key" json:"id"`
	PurchaseOrderId int                 `gorm:"index;not null" json:"purchase_order_id"`
	ItemId          int                 `gorm:"index;not null" json:"item_id"`
	UnitId          *int                `gorm:"default:null" json:"unit_id"`
	ProductId       *int                `gorm:"default:null" json:"product_id"`
	UnitCost        decimal.NullDecimal `gorm:"type:decimal(20,4);default:null" json:"unit_cost"`
	Quantity        decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"quantity"`
	Position        int                 `gorm:"not null;default:0" json:"position"`
}

// PurchaseOrderItemArchive is written once per line item of a merged-away order and never changed.
type PurchaseOrderItemArchive struct {
	ID              int                 `gorm:"primary_key" json:"id"`
	PurchaseOrderId int                 `gorm:"index;not null" json:"purchase_order_id"`
	Position        int                 `gorm:"not null" json:"position"`
	ItemId          int                 `gorm:"not null" json:"item_id"`
	UnitId          *int                `gorm:"default:null" json:"unit_id"`
	Quantity        decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitCost        decimal.NullDecimal `gorm:"type:decimal(20,4);default:null" json:"unit_cost"`
	ArchivedAt      time.Time           `gorm:"autoCreateTime" json:"archived_at"`
}

// SortedItems returns a copy of the order's items in ascending position.
func (po PurchaseOrder) SortedItems() []PurchaseOrderItem {
	items := make([]PurchaseOrderItem, len(po.Items))
	copy(items, po.Items)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Position < items[j].Position
	})
	return items
}

// DeliveryChargeOrZero treats a missing charge as zero.
func (po PurchaseOrder) DeliveryChargeOrZero() decimal.Decimal {
	if po.DeliveryCharge.Valid {
		return po.DeliveryCharge.Decimal
	}
	return decimal.Zero
}

// HasDensePositions reports whether item positions are exactly 0..N-1.
func (po PurchaseOrder) HasDensePositions() bool {
	seen := make([]bool, len(po.Items))
	for _, item := range po.Items {
		if item.Position < 0 || item.Position >= len(seen) || seen[item.Position] {
			return false
		}
		seen[item.Position] = true
	}
	return true
}

func (item PurchaseOrderItem) ToArchive() PurchaseOrderItemArchive {
	return PurchaseOrderItemArchive{
		PurchaseOrderId: item.PurchaseOrderId,
		Position:        item.Position,
		ItemId:          item.ItemId,
		UnitId:          item.UnitId,
		Quantity:        item.Quantity,
		UnitCost:        item.UnitCost,
	}
}
