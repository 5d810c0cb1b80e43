package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("purchasing-backend/workflow")

type mergeState string

const (
	mergeStateStart            mergeState = "Start"
	mergeStateValidated        mergeState = "Validated"
	mergeStateAggregated       mergeState = "Aggregated"
	mergeStateTargetMutated    mergeState = "TargetMutated"
	mergeStateDraftsReconciled mergeState = "DraftsReconciled"
	mergeStateSourcesArchived  mergeState = "SourcesArchived"
	mergeStateSourcesDeleted   mergeState = "SourcesDeleted"
	mergeStateLogged           mergeState = "Logged"
	mergeStateCommitted        mergeState = "Committed"
)

const (
	orderLockPrefix = "po-merge"
	orderLockTTL    = 30 * time.Second
)

// OrderLocker guards a set of purchase orders across processes for the length of a merge.
type OrderLocker interface {
	LockOrders(ctx context.Context, orderIds []int) (release func(), err error)
}

type RedisOrderLocker struct {
	Client *redislock.Client
	TTL    time.Duration
}

func NewRedisOrderLocker(client *redislock.Client) *RedisOrderLocker {
	return &RedisOrderLocker{Client: client, TTL: orderLockTTL}
}

func (l *RedisOrderLocker) LockOrders(ctx context.Context, orderIds []int) (func(), error) {
	release, err := utils.ObtainIdLocks(ctx, l.Client, orderLockPrefix, orderIds, l.TTL)
	if err != nil {
		var lockedErr *utils.IdLockedError
		if errors.As(err, &lockedErr) {
			return nil, invalidRequest("purchase order %d is being modified", lockedErr.Id)
		}
		return nil, err
	}
	return release, nil
}

type Merger struct {
	Store  models.PurchaseOrderStore
	Logger *logrus.Logger
	// Locker is optional; row locks inside the transaction are always taken.
	Locker OrderLocker
	// PublishEvents writes a merge event to the outbox in the merge transaction.
	PublishEvents bool
	Now           func() time.Time
}

func NewMerger(store models.PurchaseOrderStore, logger *logrus.Logger) *Merger {
	return &Merger{
		Store:         store,
		Logger:        logger,
		PublishEvents: config.MergeEventsEnabled(),
		Now:           time.Now,
	}
}

// MergePurchaseOrders merges sources into target on the process-wide database,
// with the redis guard when MERGE_REDIS_LOCK is on.
func MergePurchaseOrders(ctx context.Context, targetId int, sourceIds []int, opts MergeOptions) (*models.PurchaseOrder, error) {
	merger := NewMerger(models.NewGormPurchaseOrderStore(config.GetDB()), config.GetLogger())
	if config.MergeRedisLockEnabled() {
		merger.Locker = NewRedisOrderLocker(config.GetRedisLock())
	}
	return merger.MergePurchaseOrders(ctx, targetId, sourceIds, opts)
}

// MergePurchaseOrders folds the source orders into the target in one transaction and returns the
// reloaded target. On any error nothing is changed.
func (m *Merger) MergePurchaseOrders(ctx context.Context, targetId int, sourceIds []int, opts MergeOptions) (*models.PurchaseOrder, error) {
	sourceIds = utils.UniqueIds(sourceIds)

	correlationId, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || correlationId == "" {
		correlationId = uuid.NewString()
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
	}

	ctx, span := tracer.Start(ctx, "workflow.MergePurchaseOrders", trace.WithAttributes(
		attribute.Int("target_order_id", targetId),
		attribute.IntSlice("source_order_ids", sourceIds),
		attribute.String("correlation_id", correlationId),
	))
	defer span.End()

	fields := logrus.Fields{
		"field":            "MergePurchaseOrders",
		"correlation_id":   correlationId,
		"target_order_id":  targetId,
		"source_order_ids": sourceIds,
	}
	m.logState(fields, mergeStateStart)

	result, err := m.merge(ctx, targetId, sourceIds, opts, fields)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logFailure(fields, err)
		return nil, err
	}
	return result, nil
}

func (m *Merger) merge(ctx context.Context, targetId int, sourceIds []int, opts MergeOptions, fields logrus.Fields) (*models.PurchaseOrder, error) {
	if err := validateMergeRequest(targetId, sourceIds); err != nil {
		return nil, err
	}

	allIds := append([]int{targetId}, sourceIds...)
	if m.Locker != nil {
		release, err := m.Locker.LockOrders(ctx, allIds)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	recorder := NewActivityRecorder(ctx)
	if m.Now != nil {
		recorder.now = m.Now
	}

	err := m.Store.WithinTransaction(ctx, func(tx models.PurchaseOrderStore) error {
		orders, err := tx.LoadOrdersWithItems(ctx, allIds)
		if err != nil {
			return err
		}
		target, sources, err := splitLoadedOrders(orders, targetId, sourceIds)
		if err != nil {
			return err
		}

		if err := ValidateMerge(target, sources, opts); err != nil {
			return err
		}
		m.logState(fields, mergeStateValidated)

		positions, items := AggregateItems(target, sources)
		m.logState(fields, mergeStateAggregated)

		if err := tx.ReplaceOrderItems(ctx, target.ID, items); err != nil {
			return err
		}
		deliveryCharge := sumDeliveryCharges(target, sources)
		if err := tx.UpdateDeliveryCharge(ctx, target.ID, decimal.NewNullDecimal(deliveryCharge)); err != nil {
			return err
		}
		m.logState(fields, mergeStateTargetMutated)

		draftsMerged, err := m.mergeDrafts(ctx, tx, recorder, target, sourceIds, positions, items)
		if err != nil {
			return err
		}
		m.logState(fields, mergeStateDraftsReconciled)

		if _, err := ArchiveSourceItems(ctx, tx, sources); err != nil {
			return err
		}
		m.logState(fields, mergeStateSourcesArchived)

		if err := tx.DeleteOrders(ctx, sourceIds); err != nil {
			return err
		}
		m.logState(fields, mergeStateSourcesDeleted)

		recorder.Record("Merged purchase orders %s into %d", utils.JoinIds(sourceIds), target.ID)
		if err := recorder.Flush(ctx, tx); err != nil {
			return err
		}

		if m.PublishEvents {
			correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
			event, err := models.NewPurchaseOrderMergeEvent(target.ID, sourceIds, len(items), deliveryCharge,
				draftsMerged, utils.UserIdPtrFromContext(ctx), correlationId, m.now().UTC())
			if err != nil {
				return err
			}
			if err := tx.EnqueueMergeEvent(ctx, event); err != nil {
				return fmt.Errorf("enqueue merge event: %w", err)
			}
		}
		m.logState(fields, mergeStateLogged)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logState(fields, mergeStateCommitted)

	return m.Store.GetOrderWithItems(ctx, targetId)
}

// mergeDrafts reconciles and persists the invoice drafts and returns how many source drafts were absorbed.
func (m *Merger) mergeDrafts(
	ctx context.Context,
	tx models.PurchaseOrderStore,
	recorder *ActivityRecorder,
	target *models.PurchaseOrder,
	sourceIds []int,
	positions PositionMap,
	items []models.PurchaseOrderItem,
) (int, error) {
	drafts, err := tx.LoadDraftsByOrderIds(ctx, append([]int{target.ID}, sourceIds...))
	if err != nil {
		return 0, err
	}
	targetDraft := drafts[target.ID]
	delete(drafts, target.ID)

	reconciled, err := ReconcileDrafts(target.ID, targetDraft, sourceIds, drafts, positions, items)
	if err != nil {
		return 0, err
	}
	if reconciled.Payload == nil {
		return 0, nil
	}

	draft := targetDraft
	if draft == nil {
		draft = &models.PurchaseInvoiceDraft{PurchaseOrderId: target.ID}
	}
	if err := draft.SetData(reconciled.Payload); err != nil {
		return 0, err
	}
	if err := tx.SaveDraft(ctx, draft); err != nil {
		return 0, err
	}
	if err := tx.DeleteDrafts(ctx, reconciled.MergedDraftIds); err != nil {
		return 0, err
	}
	if len(reconciled.MergedOrderIds) > 0 {
		recorder.Record("Merged invoice drafts from purchase orders %s into purchase order %d",
			utils.JoinIds(reconciled.MergedOrderIds), target.ID)
	}
	return len(reconciled.MergedOrderIds), nil
}

// splitLoadedOrders returns the target and the sources in caller order, or NotFound listing every missing id.
func splitLoadedOrders(orders []*models.PurchaseOrder, targetId int, sourceIds []int) (*models.PurchaseOrder, []*models.PurchaseOrder, error) {
	byId := make(map[int]*models.PurchaseOrder, len(orders))
	for _, order := range orders {
		byId[order.ID] = order
	}

	var missing []int
	for _, id := range append([]int{targetId}, sourceIds...) {
		if byId[id] == nil {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Ints(missing)
		return nil, nil, notFound(missing)
	}

	sources := make([]*models.PurchaseOrder, len(sourceIds))
	for i, id := range sourceIds {
		sources[i] = byId[id]
	}
	return byId[targetId], sources, nil
}

func (m *Merger) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Merger) logState(fields logrus.Fields, state mergeState) {
	if m.Logger == nil {
		return
	}
	m.Logger.WithFields(fields).WithField("state", state).Debug("purchase order merge")
}

func (m *Merger) logFailure(fields logrus.Fields, err error) {
	if m.Logger == nil {
		return
	}
	var mergeErr *MergeError
	if errors.As(err, &mergeErr) {
		m.Logger.WithFields(fields).WithField("kind", mergeErr.Kind).Warn("purchase order merge rejected: " + mergeErr.Message)
		return
	}
	config.LogError(m.Logger, "purchaseOrderMerge.go", "MergePurchaseOrders", "merge failed", fields, err)
}
