package workflow

import (
	"sort"

	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/shopspring/decimal"
)

// PositionKey identifies a line item by the order and position it had before the merge.
type PositionKey struct {
	OrderId  int
	Position int
}

// PositionMap maps every contributing (order, old position) to the item's new position on the target.
type PositionMap map[PositionKey]int

// Remap returns the new position for an entry of orderId, or the original one when it is unmapped.
func (m PositionMap) Remap(orderId int, position *int) *int {
	if position == nil {
		return nil
	}
	if newPosition, ok := m[PositionKey{OrderId: orderId, Position: *position}]; ok {
		return &newPosition
	}
	original := *position
	return &original
}

const targetPriority = -1

// aggregateKey is (item, unit, product, unit cost); nullable parts carry a presence flag
// so that "no unit cost" and a zero unit cost stay distinct.
type aggregateKey struct {
	ItemId     int
	HasUnit    bool
	UnitId     int
	HasProduct bool
	ProductId  int
	HasCost    bool
	UnitCost   string
}

type itemAggregate struct {
	item         models.PurchaseOrderItem
	priority     int
	position     int
	contributors []PositionKey
}

func keyOf(item models.PurchaseOrderItem) aggregateKey {
	key := aggregateKey{ItemId: item.ItemId}
	if item.UnitId != nil {
		key.HasUnit = true
		key.UnitId = *item.UnitId
	}
	if item.ProductId != nil {
		key.HasProduct = true
		key.ProductId = *item.ProductId
	}
	if item.UnitCost.Valid {
		key.HasCost = true
		// String drops trailing zeros, so 1.0 and 1.00 share a key
		key.UnitCost = item.UnitCost.Decimal.String()
	}
	return key
}

// AggregateItems combines the items of target and sources into the target's new item list.
// Items with the same aggregate key become one line whose quantity is the sum of all contributors
// and whose other attributes come from the first contributor in (order priority, position) rank:
// the target ranks first, then sources in the order given.
func AggregateItems(target *models.PurchaseOrder, sources []*models.PurchaseOrder) (PositionMap, []models.PurchaseOrderItem) {
	byKey := make(map[aggregateKey]*itemAggregate)
	var aggregates []*itemAggregate

	visit := func(order *models.PurchaseOrder, priority int) {
		for _, item := range order.SortedItems() {
			key := keyOf(item)
			contributor := PositionKey{OrderId: order.ID, Position: item.Position}
			if agg, ok := byKey[key]; ok {
				agg.item.Quantity = agg.item.Quantity.Add(item.Quantity)
				agg.contributors = append(agg.contributors, contributor)
				continue
			}
			agg := &itemAggregate{
				item:         item,
				priority:     priority,
				position:     item.Position,
				contributors: []PositionKey{contributor},
			}
			byKey[key] = agg
			aggregates = append(aggregates, agg)
		}
	}

	visit(target, targetPriority)
	for i, source := range sources {
		visit(source, i)
	}

	sort.SliceStable(aggregates, func(i, j int) bool {
		if aggregates[i].priority != aggregates[j].priority {
			return aggregates[i].priority < aggregates[j].priority
		}
		return aggregates[i].position < aggregates[j].position
	})

	positions := make(PositionMap)
	items := make([]models.PurchaseOrderItem, len(aggregates))
	for newPosition, agg := range aggregates {
		item := agg.item
		item.ID = 0
		item.PurchaseOrderId = target.ID
		item.Position = newPosition
		items[newPosition] = item
		for _, contributor := range agg.contributors {
			positions[contributor] = newPosition
		}
	}
	return positions, items
}

// sumDeliveryCharges adds the target's and every source's delivery charge, a missing charge counting as zero.
func sumDeliveryCharges(target *models.PurchaseOrder, sources []*models.PurchaseOrder) decimal.Decimal {
	total := target.DeliveryChargeOrZero()
	for _, source := range sources {
		total = total.Add(source.DeliveryChargeOrZero())
	}
	return total
}
