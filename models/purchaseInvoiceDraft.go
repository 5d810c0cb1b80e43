package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PurchaseInvoiceDraft is an in-progress vendor invoice attached to at most one purchase order.
type PurchaseInvoiceDraft struct {
	ID              int            `gorm:"primary_key" json:"id"`
	PurchaseOrderId int            `gorm:"uniqueIndex;not null" json:"purchase_order_id"`
	Payload         datatypes.JSON `gorm:"type:json" json:"payload"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type DraftPayload struct {
	InvoiceNumber  *string             `json:"invoice_number"`
	ReceivedDate   *string             `json:"received_date"`
	LocationId     *int                `json:"location_id"`
	Department     *string             `json:"department"`
	Gst            decimal.NullDecimal `json:"gst"`
	Pst            decimal.NullDecimal `json:"pst"`
	DeliveryCharge decimal.NullDecimal `json:"delivery_charge"`
	Items          []DraftItem         `json:"items"`
}

type DraftItem struct {
	ItemId           int                 `json:"item_id"`
	UnitId           *int                `json:"unit_id"`
	Quantity         decimal.Decimal     `json:"quantity"`
	Cost             decimal.NullDecimal `json:"cost"`
	ContainerDeposit decimal.NullDecimal `json:"container_deposit"`
	Position         *int                `json:"position"`
	GlCodeId         *int                `json:"gl_code_id"`
	LocationId       *int                `json:"location_id"`
}

// Data decodes the stored payload. An empty column decodes to an empty payload.
func (d PurchaseInvoiceDraft) Data() (*DraftPayload, error) {
	payload := &DraftPayload{Items: []DraftItem{}}
	if len(d.Payload) == 0 || string(d.Payload) == "null" {
		return payload, nil
	}
	if err := json.Unmarshal(d.Payload, payload); err != nil {
		return nil, fmt.Errorf("decode invoice draft %d: %w", d.ID, err)
	}
	if payload.Items == nil {
		payload.Items = []DraftItem{}
	}
	return payload, nil
}

func (d *PurchaseInvoiceDraft) SetData(payload *DraftPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode invoice draft for purchase order %d: %w", d.PurchaseOrderId, err)
	}
	d.Payload = datatypes.JSON(raw)
	return nil
}

// Positions lists the item positions present in the payload, skipping entries without one.
func (p DraftPayload) Positions() []int {
	positions := make([]int, 0, len(p.Items))
	for _, item := range p.Items {
		if item.Position != nil {
			positions = append(positions, *item.Position)
		}
	}
	return positions
}
