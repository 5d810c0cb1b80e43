package models

import (
	"time"

	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PurchaseOrderMergeEvent is the outbox row written in the merge transaction.
// Publishing happens after commit via the outbox dispatcher.
type PurchaseOrderMergeEvent struct {
	ID             int             `gorm:"primary_key;index:idx_merge_outbox_dispatch,priority:3" json:"id"`
	TargetOrderId  int             `gorm:"index;not null" json:"target_order_id"`
	SourceOrderIds datatypes.JSON  `gorm:"type:json" json:"source_order_ids"`
	ItemCount      int             `gorm:"not null;default:0" json:"item_count"`
	DeliveryCharge decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"delivery_charge"`
	DraftsMerged   int             `gorm:"not null;default:0" json:"drafts_merged"`
	UserId         *int            `gorm:"default:null" json:"user_id"`
	CorrelationId  string          `gorm:"size:64;index" json:"correlation_id"`
	MergedAt       time.Time       `gorm:"not null" json:"merged_at"`

	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_merge_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_merge_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// MergeEventMessage is the Pub/Sub body for a merge event.
type MergeEventMessage struct {
	EventId        int             `json:"event_id"`
	TargetOrderId  int             `json:"target_order_id"`
	SourceOrderIds []int           `json:"source_order_ids"`
	ItemCount      int             `json:"item_count"`
	DeliveryCharge decimal.Decimal `json:"delivery_charge"`
	DraftsMerged   int             `json:"drafts_merged"`
	UserId         *int            `json:"user_id"`
	CorrelationId  string          `json:"correlation_id"`
	MergedAt       time.Time       `json:"merged_at"`
}

func NewPurchaseOrderMergeEvent(targetId int, sourceIds []int, itemCount int, deliveryCharge decimal.Decimal, draftsMerged int, userId *int, correlationId string, mergedAt time.Time) (*PurchaseOrderMergeEvent, error) {
	ids, err := utils.MarshalToJSON(sourceIds)
	if err != nil {
		return nil, err
	}
	return &PurchaseOrderMergeEvent{
		TargetOrderId:  targetId,
		SourceOrderIds: datatypes.JSON(ids),
		ItemCount:      itemCount,
		DeliveryCharge: deliveryCharge,
		DraftsMerged:   draftsMerged,
		UserId:         userId,
		CorrelationId:  correlationId,
		MergedAt:       mergedAt,
		PublishStatus:  OutboxPublishStatusPending,
	}, nil
}

func (e PurchaseOrderMergeEvent) ToMessage() (MergeEventMessage, error) {
	var sourceIds []int
	if len(e.SourceOrderIds) > 0 {
		if err := utils.UnmarshalFromJSON([]byte(e.SourceOrderIds), &sourceIds); err != nil {
			return MergeEventMessage{}, err
		}
	}
	return MergeEventMessage{
		EventId:        e.ID,
		TargetOrderId:  e.TargetOrderId,
		SourceOrderIds: sourceIds,
		ItemCount:      e.ItemCount,
		DeliveryCharge: e.DeliveryCharge,
		DraftsMerged:   e.DraftsMerged,
		UserId:         e.UserId,
		CorrelationId:  e.CorrelationId,
		MergedAt:       e.MergedAt,
	}, nil
}
