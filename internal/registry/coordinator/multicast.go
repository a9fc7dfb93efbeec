package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"regcast/internal/filter"
	"regcast/internal/registry/models"
	dErrors "regcast/pkg/domain-errors"
)

// Multicast resolves the identities matching f and delivers payload to
// each through the messaging slot. Delivery concurrency is decoupled from
// fan-out size: workers draw from the coordinator-wide pool plus an
// optional per-call ceiling, so N targets never means N in-flight
// publishes.
//
// The call fails only when target resolution fails. Per-target failures
// and timeouts are recorded in the report; a fully failed multicast is a
// successful call with zero deliveries. Every spawned worker observes
// cancellation and exits before Multicast returns.
func (c *Coordinator) Multicast(ctx context.Context, f filter.Node, payload []byte, opts models.MulticastOptions) (*models.MulticastReport, error) {
	ctx, span := c.tracer.Start(ctx, "registry.Multicast")
	defer span.End()

	targets, err := c.liveSnapshot(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "resolve multicast targets")
	}

	report := &models.MulticastReport{
		OperationID: uuid.NewString(),
		Targets:     len(targets),
	}
	c.metrics.ObserveFanout(len(targets))
	span.SetAttributes(attribute.Int("multicast.targets", len(targets)))

	if len(targets) == 0 {
		return report, nil
	}

	opts = c.resolveOptions(opts)
	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	// Per-call ceiling on top of the shared pool.
	callSlots := make(chan struct{}, opts.MaxConcurrency)

	results := make([]models.DeliveryResult, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		select {
		case callSlots <- struct{}{}:
		case <-ctx.Done():
			results[i] = unresolvedResult(target, ctx.Err())
			continue
		}
		if err := c.pool.Acquire(ctx, 1); err != nil {
			<-callSlots
			results[i] = unresolvedResult(target, err)
			continue
		}

		wg.Add(1)
		go func(i int, target models.Identity) {
			defer wg.Done()
			defer c.pool.Release(1)
			defer func() { <-callSlots }()
			c.metrics.DeliveryStarted()
			defer c.metrics.DeliveryDone()
			results[i] = c.deliver(ctx, target, payload, opts)
		}(i, target)
	}
	wg.Wait()

	report.Results = results
	for _, res := range results {
		switch res.Status {
		case models.DeliveryDelivered:
			report.Delivered++
		case models.DeliveryTimedOut:
			report.TimedOut++
		default:
			report.Failed++
		}
		c.metrics.ObserveDelivery(string(res.Status), res.Latency)
	}

	if c.logger != nil {
		c.logger.InfoContext(ctx, "multicast complete",
			"operation_id", report.OperationID,
			"targets", report.Targets,
			"delivered", report.Delivered,
			"failed", report.Failed,
			"timed_out", report.TimedOut,
		)
	}
	span.SetAttributes(
		attribute.Int("multicast.delivered", report.Delivered),
		attribute.Int("multicast.failed", report.Failed),
		attribute.Int("multicast.timed_out", report.TimedOut),
	)
	return report, nil
}

// deliver publishes to one target, retrying with exponential backoff. Each
// attempt is bounded by the per-target timeout; the operation context
// bounds the whole thing.
func (c *Coordinator) deliver(ctx context.Context, target models.Identity, payload []byte, opts models.MulticastOptions) models.DeliveryResult {
	start := time.Now()
	attempts := 0

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = opts.RetryBackoff
	exp.MaxElapsedTime = 0 // the attempt cap governs, not wall time
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(opts.RetryAttempts)), ctx)

	err := backoff.Retry(func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, opts.PerTargetTimeout)
		defer cancel()
		return c.messenger.Publish(attemptCtx, target.Address, payload)
	}, policy)

	res := models.DeliveryResult{
		Identity: target.ID,
		Address:  target.Address,
		Attempts: attempts,
		Latency:  time.Since(start),
	}
	switch {
	case err == nil:
		res.Status = models.DeliveryDelivered
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		res.Status = models.DeliveryTimedOut
		res.Err = err
	default:
		res.Status = models.DeliveryFailed
		res.Err = err
	}
	return res
}

// unresolvedResult marks a target whose delivery never started because the
// deadline elapsed (or the caller cancelled) while waiting for a pool slot.
func unresolvedResult(target models.Identity, err error) models.DeliveryResult {
	return models.DeliveryResult{
		Identity: target.ID,
		Address:  target.Address,
		Status:   models.DeliveryTimedOut,
		Err:      err,
	}
}

// resolveOptions fills per-call options from the coordinator config. A
// negative RetryAttempts disables retries for the call.
func (c *Coordinator) resolveOptions(opts models.MulticastOptions) models.MulticastOptions {
	if opts.MaxConcurrency <= 0 || opts.MaxConcurrency > c.cfg.MaxConcurrency {
		opts.MaxConcurrency = c.cfg.MaxConcurrency
	}
	if opts.PerTargetTimeout <= 0 {
		opts.PerTargetTimeout = c.cfg.DefaultTimeout
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	} else if opts.RetryAttempts == 0 {
		opts.RetryAttempts = c.cfg.RetryAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = c.cfg.RetryBackoff
	}
	return opts
}
