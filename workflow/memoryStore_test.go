package workflow

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/shopspring/decimal"
)

// memoryStore is a models.PurchaseOrderStore kept in maps. A failed transaction restores the snapshot taken when it began.
type memoryStore struct {
	orders   map[int]*models.PurchaseOrder
	drafts   map[int]*models.PurchaseInvoiceDraft
	archive  []models.PurchaseOrderItemArchive
	activity []models.ActivityLog
	events   []*models.PurchaseOrderMergeEvent

	nextItemId  int
	nextDraftId int

	// failOn makes the named method return errInjected.
	failOn string
	calls  []string
}

var errInjected = errors.New("injected store failure")

func newMemoryStore(orders ...*models.PurchaseOrder) *memoryStore {
	s := &memoryStore{
		orders:      map[int]*models.PurchaseOrder{},
		drafts:      map[int]*models.PurchaseInvoiceDraft{},
		nextItemId:  1000,
		nextDraftId: 500,
	}
	for _, order := range orders {
		s.orders[order.ID] = cloneOrder(order)
	}
	return s
}

func (s *memoryStore) addDraft(orderId int, payload models.DraftPayload) *models.PurchaseInvoiceDraft {
	s.nextDraftId++
	draft := &models.PurchaseInvoiceDraft{ID: s.nextDraftId, PurchaseOrderId: orderId}
	if err := draft.SetData(&payload); err != nil {
		panic(err)
	}
	s.drafts[draft.ID] = draft
	return draft
}

func (s *memoryStore) draftFor(orderId int) *models.PurchaseInvoiceDraft {
	for _, draft := range s.drafts {
		if draft.PurchaseOrderId == orderId {
			return draft
		}
	}
	return nil
}

func (s *memoryStore) called(method string) error {
	s.calls = append(s.calls, method)
	if s.failOn == method {
		return errInjected
	}
	return nil
}

type memorySnapshot struct {
	orders   map[int]*models.PurchaseOrder
	drafts   map[int]*models.PurchaseInvoiceDraft
	archive  []models.PurchaseOrderItemArchive
	activity []models.ActivityLog
	events   []*models.PurchaseOrderMergeEvent
}

func (s *memoryStore) snapshot() memorySnapshot {
	snap := memorySnapshot{
		orders:   map[int]*models.PurchaseOrder{},
		drafts:   map[int]*models.PurchaseInvoiceDraft{},
		archive:  append([]models.PurchaseOrderItemArchive(nil), s.archive...),
		activity: append([]models.ActivityLog(nil), s.activity...),
		events:   append([]*models.PurchaseOrderMergeEvent(nil), s.events...),
	}
	for id, order := range s.orders {
		snap.orders[id] = cloneOrder(order)
	}
	for id, draft := range s.drafts {
		snap.drafts[id] = cloneDraft(draft)
	}
	return snap
}

func (s *memoryStore) restore(snap memorySnapshot) {
	s.orders = snap.orders
	s.drafts = snap.drafts
	s.archive = snap.archive
	s.activity = snap.activity
	s.events = snap.events
}

func (s *memoryStore) WithinTransaction(ctx context.Context, fn func(tx models.PurchaseOrderStore) error) error {
	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memoryStore) LoadOrdersWithItems(ctx context.Context, ids []int) ([]*models.PurchaseOrder, error) {
	if err := s.called("LoadOrdersWithItems"); err != nil {
		return nil, err
	}
	var orders []*models.PurchaseOrder
	for _, id := range utils.UniqueIds(ids) {
		if order, ok := s.orders[id]; ok {
			orders = append(orders, cloneOrder(order))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (s *memoryStore) GetOrderWithItems(ctx context.Context, id int) (*models.PurchaseOrder, error) {
	if err := s.called("GetOrderWithItems"); err != nil {
		return nil, err
	}
	order, ok := s.orders[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	clone := cloneOrder(order)
	clone.Items = clone.SortedItems()
	return clone, nil
}

func (s *memoryStore) ReplaceOrderItems(ctx context.Context, orderId int, items []models.PurchaseOrderItem) error {
	if err := s.called("ReplaceOrderItems"); err != nil {
		return err
	}
	order := s.orders[orderId]
	order.Items = make([]models.PurchaseOrderItem, len(items))
	for i, item := range items {
		s.nextItemId++
		item.ID = s.nextItemId
		item.PurchaseOrderId = orderId
		order.Items[i] = item
	}
	return nil
}

func (s *memoryStore) UpdateDeliveryCharge(ctx context.Context, orderId int, charge decimal.NullDecimal) error {
	if err := s.called("UpdateDeliveryCharge"); err != nil {
		return err
	}
	s.orders[orderId].DeliveryCharge = charge
	return nil
}

func (s *memoryStore) DeleteOrders(ctx context.Context, orderIds []int) error {
	if err := s.called("DeleteOrders"); err != nil {
		return err
	}
	for _, id := range orderIds {
		delete(s.orders, id)
		for draftId, draft := range s.drafts {
			if draft.PurchaseOrderId == id {
				delete(s.drafts, draftId)
			}
		}
	}
	return nil
}

func (s *memoryStore) LoadDraftsByOrderIds(ctx context.Context, orderIds []int) (map[int]*models.PurchaseInvoiceDraft, error) {
	if err := s.called("LoadDraftsByOrderIds"); err != nil {
		return nil, err
	}
	wanted := map[int]bool{}
	for _, id := range orderIds {
		wanted[id] = true
	}
	result := map[int]*models.PurchaseInvoiceDraft{}
	for _, draft := range s.drafts {
		if wanted[draft.PurchaseOrderId] {
			result[draft.PurchaseOrderId] = cloneDraft(draft)
		}
	}
	return result, nil
}

func (s *memoryStore) SaveDraft(ctx context.Context, draft *models.PurchaseInvoiceDraft) error {
	if err := s.called("SaveDraft"); err != nil {
		return err
	}
	if draft.ID == 0 {
		if existing := s.draftFor(draft.PurchaseOrderId); existing != nil {
			return errors.New("duplicate draft for purchase order")
		}
		s.nextDraftId++
		draft.ID = s.nextDraftId
	}
	s.drafts[draft.ID] = cloneDraft(draft)
	return nil
}

func (s *memoryStore) DeleteDrafts(ctx context.Context, draftIds []int) error {
	if err := s.called("DeleteDrafts"); err != nil {
		return err
	}
	for _, id := range draftIds {
		delete(s.drafts, id)
	}
	return nil
}

func (s *memoryStore) BulkInsertArchiveRows(ctx context.Context, rows []models.PurchaseOrderItemArchive) error {
	if err := s.called("BulkInsertArchiveRows"); err != nil {
		return err
	}
	s.archive = append(s.archive, rows...)
	return nil
}

func (s *memoryStore) AppendActivityLogs(ctx context.Context, entries []models.ActivityLog) error {
	if err := s.called("AppendActivityLogs"); err != nil {
		return err
	}
	s.activity = append(s.activity, entries...)
	return nil
}

func (s *memoryStore) EnqueueMergeEvent(ctx context.Context, event *models.PurchaseOrderMergeEvent) error {
	if err := s.called("EnqueueMergeEvent"); err != nil {
		return err
	}
	s.events = append(s.events, event)
	return nil
}

func cloneOrder(order *models.PurchaseOrder) *models.PurchaseOrder {
	clone := *order
	clone.Items = append([]models.PurchaseOrderItem(nil), order.Items...)
	return &clone
}

func cloneDraft(draft *models.PurchaseInvoiceDraft) *models.PurchaseInvoiceDraft {
	clone := *draft
	clone.Payload = append(clone.Payload[:0:0], draft.Payload...)
	return &clone
}

// fixtures

var mergeDay = time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC)

func newOrder(id, vendorId int, items ...models.PurchaseOrderItem) *models.PurchaseOrder {
	order := &models.PurchaseOrder{
		ID:           id,
		VendorId:     vendorId,
		UserId:       1,
		OrderDate:    mergeDay.AddDate(0, 0, -7),
		ExpectedDate: mergeDay,
	}
	for i, item := range items {
		item.ID = id*100 + i
		item.PurchaseOrderId = id
		order.Items = append(order.Items, item)
	}
	return order
}

func newItem(itemId int, unitId int, cost string, qty string, position int) models.PurchaseOrderItem {
	item := models.PurchaseOrderItem{
		ItemId:   itemId,
		UnitId:   intPtr(unitId),
		Quantity: decimal.RequireFromString(qty),
		Position: position,
	}
	if cost != "" {
		item.UnitCost = decimal.NewNullDecimal(decimal.RequireFromString(cost))
	}
	return item
}

func withCharge(order *models.PurchaseOrder, charge string) *models.PurchaseOrder {
	order.DeliveryCharge = decimal.NewNullDecimal(decimal.RequireFromString(charge))
	return order
}

func intPtr(v int) *int {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func nullDec(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}
