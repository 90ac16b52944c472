// Package sync decides between direct and queued submission and drains the
// offline queue when connectivity returns.
package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/cybertec-postgresql/submitq/internal/log"
	"github.com/cybertec-postgresql/submitq/internal/metrics"
	"github.com/cybertec-postgresql/submitq/internal/queue"
	"github.com/cybertec-postgresql/submitq/internal/submission"
)

// Messages shown to the user for each outcome
const (
	MessageSubmitted    = "Product added successfully!"
	MessageSavedOffline = "Product saved locally. It will be submitted once an internet connection is available."
	MessageInvalid      = "Please fill in the details correctly."
)

// appendTimeout bounds persisting a record once the caller's context is gone
const appendTimeout = 10 * time.Second

// Outcome is what a caller of Submit gets to see
type Outcome string

const (
	OutcomeSubmitted       Outcome = "submitted"
	OutcomeSavedOffline    Outcome = "saved_offline"
	OutcomeValidationError Outcome = "validation_error"
)

// Queue is the persistent store of pending records
type Queue interface {
	List(ctx context.Context) []queue.PendingRecord
	Append(ctx context.Context, record queue.PendingRecord) error
	Remove(ctx context.Context, id uuid.UUID) error
}

// Submitter sends one record to the remote service
type Submitter interface {
	Submit(ctx context.Context, record queue.PendingRecord) error
}

// Connectivity reports whether the remote service is believed reachable
type Connectivity interface {
	Current() bool
}

// Result of a Submit call
type Result struct {
	Outcome  Outcome
	Message  string
	RecordID uuid.UUID
}

// DrainReport summarizes one drain. Shared is set when the report was
// delivered to more than one concurrent caller.
type DrainReport struct {
	Attempted int
	Synced    int
	Failed    int
	Shared    bool
}

// Coordinator routes submissions and drains the queue. At most one drain
// runs at any time.
type Coordinator struct {
	queue  Queue
	client Submitter
	conn   Connectivity

	group   singleflight.Group
	trigger chan struct{}

	logger *logrus.Entry
}

// New wires a coordinator. Start Run to have drain requests served.
func New(q Queue, client Submitter, conn Connectivity) *Coordinator {
	return &Coordinator{
		queue:   q,
		client:  client,
		conn:    conn,
		trigger: make(chan struct{}, 1),
		logger:  log.WithComponent("sync"),
	}
}

// ConnectivityState returns the current reachability for display
func (c *Coordinator) ConnectivityState() bool {
	return c.conn.Current()
}

// Submit validates fields and either submits them directly or stores them
// for a later drain. Only validation problems are reported back; any other
// failure ends in OutcomeSavedOffline.
func (c *Coordinator) Submit(ctx context.Context, fields queue.Fields, attachment []byte) Result {
	logger := c.logger.WithField("state", "validating")
	if err := Validate(fields); err != nil {
		logger.WithError(err).Info("Submission rejected")
		metrics.SubmissionsTotal.WithLabelValues(string(OutcomeValidationError)).Inc()
		return Result{Outcome: OutcomeValidationError, Message: err.Error()}
	}

	record := queue.NewRecord(fields, attachment)
	logger = c.logger.WithField("id", record.ID)

	if c.conn.Current() {
		logger.WithField("state", "online_submit").Debug("Submitting directly")
		err := c.client.Submit(ctx, record)
		if err == nil {
			logger.WithField("state", "done").Info("Product submitted")
			metrics.SubmissionsTotal.WithLabelValues(string(OutcomeSubmitted)).Inc()
			return Result{Outcome: OutcomeSubmitted, Message: MessageSubmitted, RecordID: record.ID}
		}
		logger.WithError(err).WithField("reason", submission.ReasonOf(err)).
			Warn("Direct submission failed, queueing")
	}

	logger = logger.WithField("state", "queue_offline")
	// the caller may have given up already; the record is still kept
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
	defer cancel()
	if err := c.queue.Append(appendCtx, record); err != nil {
		logger.WithError(err).Error("Failed to persist record")
	} else {
		logger.WithField("state", "done").Info("Product saved offline")
	}
	metrics.SubmissionsTotal.WithLabelValues(string(OutcomeSavedOffline)).Inc()
	return Result{Outcome: OutcomeSavedOffline, Message: MessageSavedOffline, RecordID: record.ID}
}

// Drain submits every queued record once, removing those the server
// accepted. Concurrent callers wait for the drain already in flight and get
// its report instead of starting another.
func (c *Coordinator) Drain(ctx context.Context) DrainReport {
	v, _, shared := c.group.Do("drain", func() (any, error) {
		return c.drain(ctx), nil
	})
	report := v.(DrainReport)
	report.Shared = shared
	return report
}

func (c *Coordinator) drain(ctx context.Context) DrainReport {
	metrics.DrainsTotal.Inc()
	var report DrainReport

	records := c.queue.List(ctx)
	if len(records) == 0 {
		c.logger.Debug("Nothing to drain")
		return report
	}
	c.logger.WithField("pending", len(records)).Info("Draining offline queue")

	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		report.Attempted++
		logger := c.logger.WithField("id", record.ID)

		if err := c.client.Submit(ctx, record); err != nil {
			report.Failed++
			logger.WithError(err).WithField("reason", submission.ReasonOf(err)).
				Warn("Queued record not accepted, keeping it")
			continue
		}
		report.Synced++
		if err := c.queue.Remove(ctx, record.ID); err != nil {
			logger.WithError(err).Error("Record submitted but could not be removed from queue")
		}
	}

	c.logger.WithFields(logrus.Fields{
		"attempted": report.Attempted,
		"synced":    report.Synced,
		"failed":    report.Failed,
	}).Info("Drain finished")
	return report
}

// RequestDrain asks Run for a drain without blocking. At most one request
// is kept pending; further requests collapse into it.
func (c *Coordinator) RequestDrain() {
	select {
	case c.trigger <- struct{}{}:
	default:
		metrics.DrainSkippedTotal.Inc()
	}
}

// Run serves drain requests until ctx is cancelled. If the service is
// reachable at start, records left by a previous run are drained first.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("Starting sync coordinator")
	if c.conn.Current() {
		c.RequestDrain()
	}
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Sync coordinator stopped")
			return ctx.Err()
		case <-c.trigger:
			c.Drain(ctx)
		}
	}
}
