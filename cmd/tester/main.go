package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/config"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/jetstream"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/observer"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
)

// publishTask identifies one synthetic event within a batch.
type publishTask struct {
	BaseSubject string
	SessionID   string
	OrgID       string
}

// batchTask is a group of synthetic events handed to a single pool worker.
type batchTask struct {
	Tasks      []publishTask
	NatsClient jetstream.ClientInterface
}

const defaultBatchSize = 50

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	natsURL := flag.String("url", cfg.NATS.URL, "NATS server URL")
	subjectsStr := flag.String("subjects", "v1.messages.received,v1.messages.ack", "Comma-separated list of base NATS subjects")
	rate := flag.Int("rate", 100, "Target events per second (total)")
	duration := flag.Duration("duration", 1*time.Minute, "Load test duration")
	concurrency := flag.Int("concurrency", 10, "Number of concurrent workers")
	orgIDsStr := flag.String("org-ids", cfg.Org.ID, "Comma-separated list of org IDs")
	sessionCount := flag.Int("sessions", 5, "Number of distinct session IDs to spread events across")
	batchSize := flag.Int("batch-size", defaultBatchSize, "Number of events to publish per worker batch")
	metricsPort := flag.Int("metrics-port", 9091, "Port for Prometheus metrics endpoint")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "NATS Load Generator\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Publishes synthetic gateway events to NATS for load testing the archive engine.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *batchSize <= 0 {
		*batchSize = defaultBatchSize
		fmt.Printf("Invalid batch size, using default: %d\n", defaultBatchSize)
	}

	if err := logger.Initialize(*logLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := startMetricsServer(*metricsPort)
	var metricsWg sync.WaitGroup
	metricsWg.Add(1)
	go func() {
		defer metricsWg.Done()
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Metrics server shutdown error", zap.Error(err))
		}
	}()

	logger.Log.Info("Starting NATS load generator",
		zap.String("nats_url", *natsURL),
		zap.String("subjects", *subjectsStr),
		zap.Int("rate_per_sec", *rate),
		zap.Duration("duration", *duration),
		zap.Int("concurrency", *concurrency),
		zap.Int("batch_size", *batchSize),
		zap.String("org_ids", *orgIDsStr),
		zap.Int("metrics_port", *metricsPort),
	)

	natsClient, err := jetstream.NewClient(*natsURL)
	if err != nil {
		logger.Log.Fatal("Failed to connect to NATS", zap.String("url", *natsURL), zap.Error(err))
	}
	defer natsClient.Close()

	baseSubjects := strings.Split(*subjectsStr, ",")
	orgIDs := strings.Split(*orgIDsStr, ",")
	if len(baseSubjects) == 0 || baseSubjects[0] == "" {
		logger.Log.Fatal("No base subjects provided")
	}
	if len(orgIDs) == 0 || orgIDs[0] == "" {
		logger.Log.Fatal("No org IDs provided")
	}

	gofakeit.Seed(time.Now().UnixNano())

	// A fixed pool of session IDs so events for the same session interleave,
	// which is what the consumer's per-session locking actually has to handle.
	sessionIDs := make([]string, *sessionCount)
	for i := range sessionIDs {
		sessionIDs[i] = "line-" + gofakeit.LetterN(8)
	}

	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(*concurrency, func(data interface{}) {
		batchWorkerFunc(data, &wg)
	})
	if err != nil {
		logger.Log.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var loopWg sync.WaitGroup
	loopWg.Add(1)
	go runBatchLoadLoop(ctx, *rate, *duration, *batchSize, baseSubjects, orgIDs, sessionIDs, natsClient, pool, &wg, &loopWg)

	select {
	case sig := <-sigChan:
		logger.Log.Info("Received termination signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case <-ctx.Done():
	}

	loopWg.Wait()
	wg.Wait()

	cancel()
	metricsWg.Wait()
	logger.Log.Info("Load generator shutdown complete")
}

func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Failed to start Prometheus metrics server", zap.Error(err))
		}
	}()
	return server
}

// runBatchLoadLoop submits rate-limited batches of publish tasks to the pool.
func runBatchLoadLoop(ctx context.Context, rate int, duration time.Duration, batchSize int, subjects, orgs, sessions []string, nc jetstream.ClientInterface, pool *ants.PoolWithFunc, wg *sync.WaitGroup, loopWg *sync.WaitGroup) {
	defer loopWg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	durationTimer := time.NewTimer(duration)
	defer durationTimer.Stop()

	counter := 0
	currentBatch := make([]publishTask, 0, batchSize)

	submitBatch := func(batch []publishTask) {
		if len(batch) == 0 {
			return
		}
		wg.Add(len(batch))
		if err := pool.Invoke(batchTask{Tasks: batch, NatsClient: nc}); err != nil {
			logger.Log.Warn("Failed to invoke worker pool for batch", zap.Int("batch_task_count", len(batch)), zap.Error(err))
			wg.Add(-len(batch))
			for _, task := range batch {
				observer.IncLoadgenPublishErrors(task.BaseSubject, task.OrgID)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			submitBatch(currentBatch)
			return
		case <-durationTimer.C:
			logger.Log.Info("Load generation duration elapsed, submitting final partial batch")
			submitBatch(currentBatch)
			return
		case <-ticker.C:
			select {
			case <-ctx.Done():
				return
			default:
			}

			task := publishTask{
				BaseSubject: subjects[counter%len(subjects)],
				OrgID:       orgs[counter%len(orgs)],
				SessionID:   sessions[counter%len(sessions)],
			}
			counter++

			observer.IncLoadgenMessagesAttempted(task.BaseSubject, task.OrgID)
			currentBatch = append(currentBatch, task)

			if len(currentBatch) >= batchSize {
				submitBatch(currentBatch)
				currentBatch = make([]publishTask, 0, batchSize)
			}
		}
	}
}

// batchWorkerFunc publishes every task in a batch.
func batchWorkerFunc(data interface{}, wg *sync.WaitGroup) {
	batch := data.(batchTask)

	for _, task := range batch.Tasks {
		func(task publishTask) {
			defer wg.Done()

			payload := buildPayload(task)
			if payload == nil {
				logger.Log.Error("Unsupported base subject for payload generation", zap.String("subject", task.BaseSubject))
				observer.IncLoadgenPublishErrors(task.BaseSubject, task.OrgID)
				return
			}

			payloadBytes, err := json.Marshal(payload)
			if err != nil {
				logger.Log.Error("Failed to marshal payload",
					zap.String("subject", task.BaseSubject),
					zap.String("type", fmt.Sprintf("%T", payload)),
					zap.Error(err))
				observer.IncLoadgenPublishErrors(task.BaseSubject, task.OrgID)
				return
			}

			finalSubject := fmt.Sprintf("%s.%s", task.BaseSubject, task.OrgID)
			headers := map[string]string{"OrgID": task.OrgID}
			if err := batch.NatsClient.Publish(finalSubject, payloadBytes, headers); err != nil {
				logger.Log.Error("Failed to publish event", zap.String("subject", finalSubject), zap.Error(err))
				observer.IncLoadgenPublishErrors(task.BaseSubject, task.OrgID)
			} else {
				observer.IncLoadgenMessagesPublished(task.BaseSubject, task.OrgID)
			}
		}(task)
	}
}

// buildPayload generates a fake event body for the given base subject. Returns
// nil for subjects the generator does not know how to fabricate.
func buildPayload(task publishTask) interface{} {
	switch task.BaseSubject {
	case string(model.V1MessagesReceived):
		return model.NewMessageReceivedPayload(func(p *model.MessageReceivedPayload) {
			p.SessionID = task.SessionID
			p.OrgID = task.OrgID
		})
	case string(model.V1MessagesAck):
		return model.NewAckUpdatePayload(func(p *model.AckUpdatePayload) {
			p.SessionID = task.SessionID
			p.OrgID = task.OrgID
		})
	case string(model.V1ContactsUpdate):
		return model.NewContactUpdatePayload(func(p *model.ContactUpdatePayload) {
			p.SessionID = task.SessionID
			p.OrgID = task.OrgID
		})
	case string(model.V1ConnectionUpdate):
		return model.NewConnectionUpdatePayload(func(p *model.ConnectionUpdatePayload) {
			p.SessionID = task.SessionID
			p.OrgID = task.OrgID
		})
	default:
		return nil
	}
}
