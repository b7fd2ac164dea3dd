// Package pipeline drives the bounded-parallel fetch, dedup, extraction and
// reconciliation of student mailboxes. A fixed-size worker pool bounds
// simultaneous mailbox connections; the extraction service carries its own
// independent cap inside the extractor.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"schedule-sync-go/internal/config"
	"schedule-sync-go/internal/dedup"
	"schedule-sync-go/internal/extractor"
	"schedule-sync-go/internal/mailbox"
	"schedule-sync-go/internal/metrics"
	"schedule-sync-go/internal/models"
	"schedule-sync-go/internal/pqueue"
	"schedule-sync-go/internal/reconcile"
)

// Directory provides the students whose mailboxes are processed and the
// durable fingerprints for warm-starting the dedup cache.
type Directory interface {
	Ping(ctx context.Context) error
	ListStudents(ctx context.Context) ([]models.Student, error)
	ListProcessedSince(ctx context.Context, since time.Time) ([]models.ProcessedMessage, error)
}

// Reconciler merges one extracted event into durable state
type Reconciler interface {
	Reconcile(ctx context.Context, msg models.RawMessage, event models.ScheduleEvent) (*reconcile.Outcome, error)
}

// Pipeline is the email-to-schedule reconciliation run driver
type Pipeline struct {
	cfg       *config.PipelineConfig
	source    mailbox.Source
	extract   extractor.Extractor
	engine    Reconciler
	cache     *dedup.Cache
	directory Directory
	metrics   *metrics.Metrics

	fetchTimeout time.Duration
}

// New creates a pipeline. metrics may be nil.
func New(cfg *config.PipelineConfig, source mailbox.Source, extract extractor.Extractor, engine Reconciler, cache *dedup.Cache, directory Directory, m *metrics.Metrics, fetchTimeout time.Duration) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		source:       source,
		extract:      extract,
		engine:       engine,
		cache:        cache,
		directory:    directory,
		metrics:      m,
		fetchTimeout: fetchTimeout,
	}
}

// WarmCache seeds the dedup cache from durable fingerprints, so a restart
// does not re-extract recently processed messages.
func (p *Pipeline) WarmCache(ctx context.Context) error {
	cutoff := time.Now().Add(-p.cfg.DedupRetention)
	processed, err := p.directory.ListProcessedSince(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, row := range processed {
		p.cache.MarkAt(row.StudentID, row.Fingerprint, row.ProcessedAt)
	}
	logrus.Infof("Warmed dedup cache with %d fingerprints", len(processed))
	return nil
}

// Run executes one full pipeline pass: probe every student's unread count,
// order identities by pending volume, and drain the queue with the worker
// pool. Per-identity failures land in the report; only losing the database
// aborts the run.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	if err := p.directory.Ping(ctx); err != nil {
		return nil, fmt.Errorf("persistence unavailable, aborting run: %w", err)
	}

	students, err := p.directory.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}

	report := newReport()
	identities := make(map[string]models.Identity, len(students))
	for _, student := range students {
		identities[student.StudentID] = models.Identity{
			StudentID: student.StudentID,
			Address:   student.Email,
			Secret:    student.Password,
		}
	}

	queue := pqueue.New()
	p.seedQueue(ctx, identities, queue, report)

	if p.metrics != nil {
		p.metrics.QueueDepth.Set(float64(queue.Len()))
	}
	logrus.Infof("Pipeline run starting: %d of %d students have pending mail", queue.Len(), len(students))

	d := newDispatcher(queue)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go d.watch(runCtx)

	g := new(errgroup.Group)
	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				id, ok := d.next(runCtx)
				if !ok {
					return nil
				}
				if p.metrics != nil {
					p.metrics.ActiveWorkers.Inc()
					p.metrics.QueueDepth.Set(float64(queue.Len()))
				}
				p.processIdentity(runCtx, identities[id], report)
				if p.metrics != nil {
					p.metrics.ActiveWorkers.Dec()
				}
				d.done()
			}
		})
	}
	g.Wait()

	report.finish()
	if p.metrics != nil {
		p.metrics.QueueDepth.Set(0)
		p.metrics.RunDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	}
	logrus.Infof("Pipeline run finished: %d succeeded, %d failed, %d drives, %d reschedules",
		len(report.Succeeded), len(report.Failed), report.DrivesCreated, report.Rescheduled)
	return report, nil
}

// seedQueue probes unread counts under the same worker cap and scores each
// identity by pending volume. A probe failure still queues the identity so
// the fetch stage, which retries, gets its chance.
func (p *Pipeline) seedQueue(ctx context.Context, identities map[string]models.Identity, queue *pqueue.Queue, report *Report) {
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Workers)

	for id, identity := range identities {
		id, identity := id, identity
		g.Go(func() error {
			probeCtx, cancel := p.withFetchTimeout(ctx)
			defer cancel()

			count, err := p.source.CountUnread(probeCtx, identity)
			if err != nil {
				logrus.Warnf("Unread probe failed for %s: %v", id, err)
				queue.Push(id, 1)
				return nil
			}
			queue.Push(id, count)
			return nil
		})
	}
	g.Wait()
}

func (p *Pipeline) withFetchTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.fetchTimeout > 0 {
		return context.WithTimeout(ctx, p.fetchTimeout)
	}
	return context.WithCancel(ctx)
}

// processIdentity fetches, deduplicates, extracts and reconciles one
// student's pending mail. Failures here never propagate to sibling workers.
func (p *Pipeline) processIdentity(ctx context.Context, identity models.Identity, report *Report) {
	messages, err := p.fetchWithRetry(ctx, identity)
	if err != nil {
		logrus.Errorf("Fetch failed for %s after retries: %v", identity.StudentID, err)
		if p.metrics != nil {
			p.metrics.FetchFailures.Inc()
		}
		report.fail(identity.StudentID, err.Error())
		return
	}
	if p.metrics != nil {
		p.metrics.MessagesFetched.Add(float64(len(messages)))
	}
	report.addFetched(len(messages))

	// dedup filter, preserving fetch order
	fresh := messages[:0]
	for _, msg := range messages {
		if p.cache.Seen(identity.StudentID, msg.Fingerprint) {
			report.addDeduped(1)
			if p.metrics != nil {
				p.metrics.MessagesDeduped.Inc()
			}
			continue
		}
		fresh = append(fresh, msg)
	}

	var processedUIDs []string
	for start := 0; start < len(fresh); start += p.cfg.BatchSize {
		// runs are cancellable between batch boundaries only
		if ctx.Err() != nil {
			break
		}

		end := start + p.cfg.BatchSize
		if end > len(fresh) {
			end = len(fresh)
		}
		batch := fresh[start:end]

		bodies := make([]string, len(batch))
		for i, msg := range batch {
			bodies[i] = msg.Body
		}

		if p.metrics != nil {
			p.metrics.ExtractionCalls.Inc()
		}
		events, err := p.extract.ExtractBatch(ctx, bodies)
		if err != nil {
			// degrade the whole batch to no-event; fingerprints are still
			// marked seen so unparseable mail is not retried forever
			logrus.Warnf("Extraction failed for %s, degrading batch of %d: %v", identity.StudentID, len(batch), err)
			if p.metrics != nil {
				p.metrics.ExtractionFailures.Inc()
			}
			events = make([]models.ScheduleEvent, len(batch))
			for i := range events {
				events[i] = models.NoEvent()
			}
		}

		for i, msg := range batch {
			outcome, err := p.engine.Reconcile(ctx, msg, events[i])
			if err != nil {
				// not marked seen: the write failed atomically, so the
				// message is retried on a later run
				logrus.Errorf("Reconcile failed for %s message %s: %v", identity.StudentID, msg.Fingerprint, err)
				report.addMessageFailure()
				continue
			}
			p.cache.Mark(identity.StudentID, msg.Fingerprint)
			processedUIDs = append(processedUIDs, msg.UID)
			report.record(outcome)
			p.countOutcome(outcome)
		}
	}

	if len(processedUIDs) > 0 {
		ackCtx, cancel := p.withFetchTimeout(ctx)
		if err := p.source.MarkRead(ackCtx, identity, processedUIDs); err != nil {
			// dedup cache and durable fingerprints cover the re-listing
			logrus.Warnf("Failed to mark %d messages read for %s: %v", len(processedUIDs), identity.StudentID, err)
		}
		cancel()
	}

	report.succeed(identity.StudentID)
}

// fetchWithRetry fetches an identity's unread mail with bounded attempts
// and exponential backoff. The connection is fully released before any
// extraction starts.
func (p *Pipeline) fetchWithRetry(ctx context.Context, identity models.Identity) ([]models.RawMessage, error) {
	attempts := p.cfg.FetchRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if p.metrics != nil {
			p.metrics.FetchCount.Inc()
		}

		fetchCtx, cancel := p.withFetchTimeout(ctx)
		messages, err := p.source.ListUnread(fetchCtx, identity)
		cancel()
		if err == nil {
			return messages, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			waitTime := time.Duration(attempt*attempt) * time.Second
			logrus.Warnf("Fetch failed for %s (attempt %d/%d), retrying in %v: %v",
				identity.StudentID, attempt, attempts, waitTime, err)
			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("failed to fetch mail after %d attempts: %w", attempts, lastErr)
}

func (p *Pipeline) countOutcome(outcome *reconcile.Outcome) {
	if p.metrics == nil {
		return
	}
	switch outcome.Kind {
	case reconcile.OutcomeDriveCreated:
		p.metrics.DrivesCreated.Inc()
	case reconcile.OutcomeRescheduled:
		p.metrics.ReschedulesCreated.Inc()
	case reconcile.OutcomeNoSlot:
		p.metrics.SlotExhaustions.Inc()
	}
}
