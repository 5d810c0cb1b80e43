package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/mmdatafocus/purchasing_backend/workflow"
	"github.com/sirupsen/logrus"
)

type MergeRequest struct {
	TargetId  int   `validate:"required,gt=0"`
	SourceIds []int `validate:"required,min=1,dive,gt=0"`
	UserId    int   `validate:"gte=0"`
}

func main() {
	targetID := flag.Int("target", 0, "Required: id of the purchase order that absorbs the others")
	sourcesRaw := flag.String("sources", "", "Required: comma separated ids of the purchase orders to merge into the target")
	skipDateCheck := flag.Bool("skip-date-check", false, "Allow sources with a different expected date")
	userID := flag.Int("user-id", 0, "Optional: user recorded in the activity log")
	migrate := flag.Bool("migrate", false, "Run AutoMigrate for the merge tables before merging")
	flag.Parse()

	sourceIDs, err := utils.ParseIdList(*sourcesRaw)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	req := MergeRequest{TargetId: *targetID, SourceIds: sourceIDs, UserId: *userID}
	if err := utils.ValidateStruct(req); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if *migrate {
		models.MigrateTable()
	}
	if config.MergeRedisLockEnabled() {
		config.ConnectRedisWithRetry()
	}

	logger := config.GetLogger()
	ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())
	if req.UserId > 0 {
		ctx = utils.SetUserIdInContext(ctx, req.UserId)
	}

	opts := workflow.DefaultMergeOptions()
	if *skipDateCheck {
		opts.RequireExpectedDateMatch = false
	}

	merged, err := workflow.MergePurchaseOrders(ctx, req.TargetId, req.SourceIds, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.WithFields(logrus.Fields{
		"field":            "po-merge",
		"target_order_id":  merged.ID,
		"source_order_ids": utils.JoinIds(req.SourceIds),
	}).Info("purchase orders merged")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(merged); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
