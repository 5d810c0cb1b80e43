package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/mmdatafocus/purchasing_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func TestMergePurchaseOrdersAgainstMySQL(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "purchasing_test")
	t.Setenv("MERGE_REDIS_LOCK", "true")
	t.Setenv("MERGE_EVENTS", "true")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()
	config.GetLogger().SetLevel(logrus.DebugLevel)

	ctx := utils.SetUserIdInContext(context.Background(), 1)
	db := config.GetDB()
	expected := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	newOrder := func(vendorId int, charge string, items ...models.PurchaseOrderItem) *models.PurchaseOrder {
		order := &models.PurchaseOrder{
			VendorId:     vendorId,
			UserId:       1,
			OrderDate:    expected.AddDate(0, 0, -3),
			ExpectedDate: expected,
			Items:        items,
		}
		if charge != "" {
			order.DeliveryCharge = decimal.NewNullDecimal(decimal.RequireFromString(charge))
		}
		if err := db.WithContext(ctx).Create(order).Error; err != nil {
			t.Fatalf("create order: %v", err)
		}
		return order
	}
	unit := 1
	item := func(itemId int, cost, qty string, position int) models.PurchaseOrderItem {
		return models.PurchaseOrderItem{
			ItemId:   itemId,
			UnitId:   &unit,
			UnitCost: decimal.NewNullDecimal(decimal.RequireFromString(cost)),
			Quantity: decimal.RequireFromString(qty),
			Position: position,
		}
	}

	target := newOrder(7, "5", item(10, "1.0", "2", 0))
	source := newOrder(7, "", item(10, "1.00", "3", 0), item(11, "2.5", "4", 1))

	sourceDraft := &models.PurchaseInvoiceDraft{PurchaseOrderId: source.ID}
	invoice := "INV-77"
	if err := sourceDraft.SetData(&models.DraftPayload{InvoiceNumber: &invoice}); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if err := db.WithContext(ctx).Create(sourceDraft).Error; err != nil {
		t.Fatalf("create draft: %v", err)
	}

	merged, err := workflow.MergePurchaseOrders(ctx, target.ID, []int{source.ID}, workflow.DefaultMergeOptions())
	if err != nil {
		t.Fatalf("MergePurchaseOrders: %v", err)
	}
	if len(merged.Items) != 2 || !merged.Items[0].Quantity.Equal(decimal.NewFromInt(5)) || merged.Items[1].Position != 1 {
		t.Fatalf("unexpected merged items %+v", merged.Items)
	}
	if !merged.DeliveryChargeOrZero().Equal(decimal.NewFromInt(5)) {
		t.Fatalf("delivery charge = %s", merged.DeliveryChargeOrZero())
	}

	var archived []models.PurchaseOrderItemArchive
	if err := db.Where("purchase_order_id = ?", source.ID).Order("position").Find(&archived).Error; err != nil {
		t.Fatalf("load archive: %v", err)
	}
	if len(archived) != 2 || archived[1].Position != 1 || !archived[1].Quantity.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("unexpected archive rows %+v", archived)
	}

	var sourceCount int64
	db.Model(&models.PurchaseOrder{}).Where("id = ?", source.ID).Count(&sourceCount)
	if sourceCount != 0 {
		t.Fatalf("source order still exists")
	}

	var draft models.PurchaseInvoiceDraft
	if err := db.Where("purchase_order_id = ?", target.ID).First(&draft).Error; err != nil {
		t.Fatalf("target draft: %v", err)
	}
	payload, err := draft.Data()
	if err != nil {
		t.Fatalf("decode draft: %v", err)
	}
	if payload.InvoiceNumber == nil || *payload.InvoiceNumber != invoice || len(payload.Items) != 2 {
		t.Fatalf("unexpected draft %+v", payload)
	}

	var logs []models.ActivityLog
	db.Order("id").Find(&logs)
	if len(logs) != 2 || logs[1].Activity != fmt.Sprintf("Merged purchase orders %d into %d", source.ID, target.ID) {
		t.Fatalf("unexpected activity %+v", logs)
	}

	var events []models.PurchaseOrderMergeEvent
	db.Find(&events)
	if len(events) != 1 || events[0].TargetOrderId != target.ID || events[0].PublishStatus != models.OutboxPublishStatusPending {
		t.Fatalf("unexpected outbox rows %+v", events)
	}

	// a rejected merge changes nothing
	other := newOrder(8, "1", item(12, "1", "1", 0))
	_, err = workflow.MergePurchaseOrders(ctx, target.ID, []int{other.ID}, workflow.MergeOptions{})
	if !errors.Is(err, workflow.ErrIneligibleOrder) {
		t.Fatalf("expected vendor mismatch, got %v", err)
	}
	reloaded, err := models.NewGormPurchaseOrderStore(db).GetOrderWithItems(ctx, other.ID)
	if err != nil || len(reloaded.Items) != 1 {
		t.Fatalf("rejected source changed: %v %+v", err, reloaded)
	}

	_, err = workflow.MergePurchaseOrders(ctx, target.ID, []int{source.ID}, workflow.DefaultMergeOptions())
	var mergeErr *workflow.MergeError
	if !errors.As(err, &mergeErr) || mergeErr.Kind != workflow.ErrKindNotFound || mergeErr.MissingIds[0] != source.ID {
		t.Fatalf("expected NotFound for merged-away source, got %v", err)
	}
}
