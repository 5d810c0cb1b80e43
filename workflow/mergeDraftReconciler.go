package workflow

import (
	"sort"
	"strconv"
	"strings"

	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/shopspring/decimal"
)

// DraftReconciliation is the outcome of merging the invoice drafts of a merge.
type DraftReconciliation struct {
	// Payload is nil when neither the target nor any source had a draft.
	Payload *models.DraftPayload
	// MergedOrderIds lists the source orders whose drafts were absorbed, in merge order.
	MergedOrderIds []int
	// MergedDraftIds are the source draft rows to delete.
	MergedDraftIds []int
}

// ReconcileDrafts folds the source drafts into the target's draft.
// Header fields follow "empty adopts incoming, differing values conflict"; item entries are renumbered
// through positions and the result is backfilled so that every item of the merged order has an entry.
func ReconcileDrafts(
	targetOrderId int,
	targetDraft *models.PurchaseInvoiceDraft,
	sourceOrderIds []int,
	sourceDrafts map[int]*models.PurchaseInvoiceDraft,
	positions PositionMap,
	mergedItems []models.PurchaseOrderItem,
) (*DraftReconciliation, error) {
	result := &DraftReconciliation{}

	hasSourceDraft := false
	for _, id := range sourceOrderIds {
		if sourceDrafts[id] != nil {
			hasSourceDraft = true
			break
		}
	}
	if targetDraft == nil && !hasSourceDraft {
		return result, nil
	}

	base := &models.DraftPayload{Items: []models.DraftItem{}}
	if targetDraft != nil {
		decoded, err := targetDraft.Data()
		if err != nil {
			return nil, err
		}
		base = decoded
	}
	base.Items = remapDraftItems(base.Items, targetOrderId, positions)

	for _, sourceId := range sourceOrderIds {
		draft := sourceDrafts[sourceId]
		if draft == nil {
			continue
		}
		incoming, err := draft.Data()
		if err != nil {
			return nil, err
		}
		if err := mergeDraftHeader(base, incoming, targetOrderId, sourceId); err != nil {
			return nil, err
		}
		base.Items = append(base.Items, remapDraftItems(incoming.Items, sourceId, positions)...)
		result.MergedOrderIds = append(result.MergedOrderIds, sourceId)
		result.MergedDraftIds = append(result.MergedDraftIds, draft.ID)
	}

	base.Items = backfillDraftItems(base.Items, mergedItems)
	sortDraftItems(base.Items)
	result.Payload = base
	return result, nil
}

func remapDraftItems(items []models.DraftItem, orderId int, positions PositionMap) []models.DraftItem {
	remapped := make([]models.DraftItem, len(items))
	for i, item := range items {
		item.Position = positions.Remap(orderId, item.Position)
		remapped[i] = item
	}
	return remapped
}

func backfillDraftItems(items []models.DraftItem, mergedItems []models.PurchaseOrderItem) []models.DraftItem {
	represented := make(map[int]bool, len(items))
	for _, item := range items {
		if item.Position != nil {
			represented[*item.Position] = true
		}
	}
	for _, orderItem := range mergedItems {
		if represented[orderItem.Position] {
			continue
		}
		position := orderItem.Position
		items = append(items, models.DraftItem{
			ItemId:   orderItem.ItemId,
			UnitId:   orderItem.UnitId,
			Quantity: orderItem.Quantity,
			Cost:     orderItem.UnitCost,
			Position: &position,
		})
		represented[position] = true
	}
	return items
}

// entries without a position go last, keeping their relative order
func sortDraftItems(items []models.DraftItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Position, items[j].Position
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return *a < *b
	})
}

func mergeDraftHeader(base, incoming *models.DraftPayload, targetId, sourceId int) error {
	if err := mergeStringField("invoice_number", &base.InvoiceNumber, incoming.InvoiceNumber, targetId, sourceId); err != nil {
		return err
	}
	if err := mergeStringField("received_date", &base.ReceivedDate, incoming.ReceivedDate, targetId, sourceId); err != nil {
		return err
	}
	if err := mergeIntField("location_id", &base.LocationId, incoming.LocationId, targetId, sourceId); err != nil {
		return err
	}
	if err := mergeStringField("department", &base.Department, incoming.Department, targetId, sourceId); err != nil {
		return err
	}
	if err := mergeDecimalField("gst", &base.Gst, incoming.Gst, targetId, sourceId); err != nil {
		return err
	}
	if err := mergeDecimalField("pst", &base.Pst, incoming.Pst, targetId, sourceId); err != nil {
		return err
	}
	return mergeDecimalField("delivery_charge", &base.DeliveryCharge, incoming.DeliveryCharge, targetId, sourceId)
}

func blank(value *string) bool {
	return value == nil || strings.TrimSpace(*value) == ""
}

func mergeStringField(field string, base **string, incoming *string, targetId, sourceId int) error {
	if blank(incoming) {
		return nil
	}
	if blank(*base) {
		adopted := *incoming
		*base = &adopted
		return nil
	}
	if strings.TrimSpace(**base) != strings.TrimSpace(*incoming) {
		return draftConflict(field, targetId, **base, sourceId, *incoming)
	}
	return nil
}

func mergeIntField(field string, base **int, incoming *int, targetId, sourceId int) error {
	if incoming == nil {
		return nil
	}
	if *base == nil {
		adopted := *incoming
		*base = &adopted
		return nil
	}
	if **base != *incoming {
		return draftConflict(field, targetId, strconv.Itoa(**base), sourceId, strconv.Itoa(*incoming))
	}
	return nil
}

func mergeDecimalField(field string, base *decimal.NullDecimal, incoming decimal.NullDecimal, targetId, sourceId int) error {
	if !incoming.Valid {
		return nil
	}
	if !base.Valid {
		*base = incoming
		return nil
	}
	if !base.Decimal.Equal(incoming.Decimal) {
		return draftConflict(field, targetId, base.Decimal.String(), sourceId, incoming.Decimal.String())
	}
	return nil
}
