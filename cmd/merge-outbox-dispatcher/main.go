package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/mmdatafocus/purchasing_backend/workflow"
	"github.com/sirupsen/logrus"
)

func main() {
	once := flag.Bool("once", false, "Dispatch a single batch and exit")
	batchSize := flag.Int("batch-size", 50, "Events claimed per batch")
	pollInterval := flag.Duration("poll-interval", 500*time.Millisecond, "Delay between batches")
	maxAttempts := flag.Int("max-attempts", 0, "Publish attempts before an event goes DEAD (default from MERGE_OUTBOX_MAX_ATTEMPTS)")
	ensureTopic := flag.Bool("ensure-topic", false, "Create the merge topic if it does not exist")
	requeueDead := flag.String("requeue-dead", "", "Move DEAD events back to PENDING and exit: comma separated event ids, or \"all\"")
	flag.Parse()

	// SIGTERM on revision shutdown; stop claiming and exit.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	if *requeueDead != "" {
		var ids []int
		if *requeueDead != "all" {
			parsed, err := utils.ParseIdList(*requeueDead)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			ids = parsed
		}
		n, err := workflow.RequeueDeadMergeEvents(ctx, db, ids)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("requeued %d merge events\n", n)
		return
	}

	if *ensureTopic {
		client, err := config.GetClient(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pubsub client: %v\n", err)
			os.Exit(1)
		}
		if _, err := config.CreateTopicIfNotExists(ctx, client, config.MergeTopicName()); err != nil {
			fmt.Fprintf(os.Stderr, "ensure topic: %v\n", err)
			os.Exit(1)
		}
	}

	dispatcher := workflow.NewOutboxDispatcher(db, logger)
	dispatcher.BatchSize = *batchSize
	dispatcher.PollInterval = *pollInterval
	if *maxAttempts > 0 {
		dispatcher.MaxAttempts = *maxAttempts
	}

	logger.WithFields(logrus.Fields{
		"field":         "merge-outbox-dispatcher",
		"dispatcher_id": dispatcher.DispatcherID,
		"topic":         config.MergeTopicName(),
	}).Info("dispatcher started")

	if *once {
		sent := dispatcher.DispatchOnce(ctx)
		fmt.Printf("published %d merge events\n", sent)
		return
	}
	dispatcher.Run(ctx)
}
