// Package worker runs background jobs from Redis lists. Jobs that are not
// yet due, including retries, wait in a sorted set until a promoter moves
// them back onto their queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

type JobType string

const (
	JobTypeBlobCleanup JobType = "blob_cleanup"
	JobTypeOrphanSweep JobType = "orphan_sweep"
)

const (
	DefaultQueue     = "default"
	MaintenanceQueue = "maintenance"
)

type Job struct {
	ID        string                 `json:"id"`
	Type      JobType                `json:"type"`
	Queue     string                 `json:"queue"`
	Payload   map[string]interface{} `json:"payload"`
	Attempts  int                    `json:"attempts"`
	MaxTries  int                    `json:"max_tries"`
	CreatedAt time.Time              `json:"created_at"`
	ProcessAt time.Time              `json:"process_at"`
}

type JobHandler func(ctx context.Context, job *Job) error

// keys names the Redis keys under one prefix.
type keys struct {
	prefix string
}

func (k keys) queue(name string) string { return k.prefix + "queue:" + name }
func (k keys) scheduled() string        { return k.prefix + "scheduled" }
func (k keys) dead() string             { return k.prefix + "dead" }

type Worker struct {
	client       *redis.Client
	keys         keys
	handlers     map[JobType]JobHandler
	queues       []string
	pollInterval time.Duration
	jobTimeout   time.Duration
	retryBase    time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient  *redis.Client
	KeyPrefix    string
	PollInterval time.Duration
	JobTimeout   time.Duration
	// RetryBase is the first retry delay; each further attempt doubles it.
	RetryBase time.Duration
	Queues    []string
	Logger    *slog.Logger
}

func NewWorker(config WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 5 * time.Minute
	}
	if config.RetryBase <= 0 {
		config.RetryBase = 30 * time.Second
	}
	if len(config.Queues) == 0 {
		config.Queues = []string{DefaultQueue, MaintenanceQueue}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Worker{
		client:       config.RedisClient,
		keys:         keys{prefix: config.KeyPrefix},
		handlers:     make(map[JobType]JobHandler),
		queues:       config.Queues,
		pollInterval: config.PollInterval,
		jobTimeout:   config.JobTimeout,
		retryBase:    config.RetryBase,
		logger:       config.Logger,
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

// Start launches concurrency consumers plus one promoter for scheduled jobs.
func (w *Worker) Start(concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	w.logger.Info("starting worker", "concurrency", concurrency, "queues", w.queues)

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}

	w.wg.Add(1)
	go w.promoterLoop()
}

func (w *Worker) Stop() {
	w.logger.Info("stopping worker")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if err := w.processNextJob(w.ctx, w.pollInterval); err != nil && w.ctx.Err() == nil {
				w.logger.Error("error processing job", "error", err)
				select {
				case <-w.ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}
}

func (w *Worker) promoterLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.promoteDue(w.ctx); err != nil && w.ctx.Err() == nil {
				w.logger.Error("failed to promote scheduled jobs", "error", err)
			}
		}
	}
}

// processNextJob blocks up to wait for a job and runs it. It returns nil
// when no job arrived.
func (w *Worker) processNextJob(ctx context.Context, wait time.Duration) error {
	queueKeys := make([]string, len(w.queues))
	for i, q := range w.queues {
		queueKeys[i] = w.keys.queue(q)
	}

	result, err := w.client.BLPop(ctx, wait, queueKeys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}
	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}

	if w.now().Before(job.ProcessAt) {
		return w.schedule(ctx, &job)
	}
	return w.executeJob(ctx, &job)
}

func (w *Worker) executeJob(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		return w.moveToDeadQueue(ctx, job, fmt.Errorf("no handler registered for job type: %s", job.Type))
	}

	logger := w.logger.With("job_id", job.ID, "job_type", job.Type, "attempt", job.Attempts+1)
	logger.Info("processing job")

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	err := handler(jobCtx, job)
	if err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			logger.Warn("job failed, retrying", "max_tries", job.MaxTries, "error", err)
			return w.retryJob(ctx, job)
		}

		logger.Error("job failed permanently", "error", err)
		return w.moveToDeadQueue(ctx, job, err)
	}

	logger.Info("job completed")
	return nil
}

func (w *Worker) retryJob(ctx context.Context, job *Job) error {
	delay := w.retryBase * time.Duration(1<<(job.Attempts-1))
	job.ProcessAt = w.now().Add(delay)
	return w.schedule(ctx, job)
}

func (w *Worker) schedule(ctx context.Context, job *Job) error {
	return scheduleJob(ctx, w.client, w.keys, job)
}

// promoteDue moves scheduled jobs whose time has come back onto their
// queues. ZREM decides ownership, so concurrent promoters never duplicate a
// job.
func (w *Worker) promoteDue(ctx context.Context) (int, error) {
	due, err := w.client.ZRangeByScore(ctx, w.keys.scheduled(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", w.now().UnixMilli()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read scheduled jobs: %w", err)
	}

	promoted := 0
	for _, data := range due {
		removed, err := w.client.ZRem(ctx, w.keys.scheduled(), data).Result()
		if err != nil {
			return promoted, fmt.Errorf("failed to claim scheduled job: %w", err)
		}
		if removed == 0 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			w.logger.Error("dropping malformed scheduled job", "error", err)
			continue
		}
		if err := w.client.RPush(ctx, w.keys.queue(queueOf(&job)), data).Err(); err != nil {
			return promoted, fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
		}
		promoted++
	}
	return promoted, nil
}

func (w *Worker) moveToDeadQueue(ctx context.Context, job *Job, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    w.now(),
	}

	deadJobData, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return w.client.RPush(ctx, w.keys.dead(), deadJobData).Err()
}

func queueOf(job *Job) string {
	if job.Queue == "" {
		return DefaultQueue
	}
	return job.Queue
}

func scheduleJob(ctx context.Context, client *redis.Client, k keys, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return client.ZAdd(ctx, k.scheduled(), redis.Z{
		Score:  float64(job.ProcessAt.UnixMilli()),
		Member: data,
	}).Err()
}

// JobQueue is the producer side used by the API process and the CLI.
type JobQueue struct {
	client   *redis.Client
	keys     keys
	maxTries int
}

func NewJobQueue(client *redis.Client, keyPrefix string, maxTries int) *JobQueue {
	if maxTries <= 0 {
		maxTries = 3
	}
	return &JobQueue{client: client, keys: keys{prefix: keyPrefix}, maxTries: maxTries}
}

func (q *JobQueue) Enqueue(ctx context.Context, queue string, jobType JobType, payload map[string]interface{}) (*Job, error) {
	return q.EnqueueAt(ctx, queue, jobType, payload, time.Now())
}

// EnqueueAt pushes a job that runs no earlier than processAt.
func (q *JobQueue) EnqueueAt(ctx context.Context, queue string, jobType JobType, payload map[string]interface{}, processAt time.Time) (*Job, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:        id.String(),
		Type:      jobType,
		Queue:     queue,
		Payload:   payload,
		MaxTries:  q.maxTries,
		CreatedAt: time.Now().UTC(),
		ProcessAt: processAt.UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if processAt.After(time.Now()) {
		return job, scheduleJob(ctx, q.client, q.keys, job)
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return job, q.client.RPush(ctx, q.keys.queue(queueOf(job)), jobData).Err()
}

// EnqueueBlobCleanup queues removal of blobs whose records are gone.
func (q *JobQueue) EnqueueBlobCleanup(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := q.Enqueue(ctx, DefaultQueue, JobTypeBlobCleanup, map[string]interface{}{"keys": keys})
	return err
}

func (q *JobQueue) EnqueueOrphanSweep(ctx context.Context, dryRun bool) error {
	_, err := q.Enqueue(ctx, MaintenanceQueue, JobTypeOrphanSweep, map[string]interface{}{"dry_run": dryRun})
	return err
}

func (q *JobQueue) GetQueueSize(ctx context.Context, queue string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, q.keys.queue(queue)).Result()
}

// Stats reports queue depths for the health endpoint and the CLI.
func (q *JobQueue) Stats(ctx context.Context, queues ...string) (map[string]int64, error) {
	stats := make(map[string]int64, len(queues)+2)
	for _, name := range queues {
		n, err := q.GetQueueSize(ctx, name)
		if err != nil {
			return nil, err
		}
		stats[name] = n
	}

	scheduled, err := q.client.ZCard(ctx, q.keys.scheduled()).Result()
	if err != nil {
		return nil, err
	}
	stats["scheduled"] = scheduled

	dead, err := q.client.LLen(ctx, q.keys.dead()).Result()
	if err != nil {
		return nil, err
	}
	stats["dead"] = dead
	return stats, nil
}
