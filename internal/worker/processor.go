// Package worker consumes extract.requested events and drives the
// extraction runner.
package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/javierg83/lic-etl-semantic-extractor/internal/queue/streams"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/runner"
)

// RunnerAPI captures the runner surface the worker needs.
type RunnerAPI interface {
	Run(ctx context.Context, req runner.Request) ([]runner.Report, error)
}

// Entries left pending by a dead consumer are taken over once they sit
// idle this long; the scan itself runs at most once per reclaimEvery.
const (
	reclaimIdle  = time.Minute
	reclaimEvery = 30 * time.Second
)

// Processor drives extraction by consuming extract.requested events.
type Processor struct {
	logger   *log.Logger
	runner   RunnerAPI
	consumer *streams.Consumer
	stream   string
	tracer   trace.Tracer

	claimStart string
	lastClaim  time.Time

	jobCounter     otelmetric.Int64Counter
	conceptCounter otelmetric.Int64Counter
	rejectCounter  otelmetric.Int64Counter
}

// NewProcessor constructs a Processor.
func NewProcessor(logger *log.Logger, run RunnerAPI, cons *streams.Consumer, stream string, meter otelmetric.Meter, tracer trace.Tracer) *Processor {
	if logger == nil {
		logger = log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
	}
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("worker")
	}

	proc := &Processor{
		logger:     logger,
		runner:     run,
		consumer:   cons,
		stream:     stream,
		tracer:     tracer,
		claimStart: "0-0",
	}
	if meter != nil {
		var err error
		proc.jobCounter, err = meter.Int64Counter("worker_jobs_processed")
		if err != nil {
			logger.Printf("warn: create job counter failed: %v", err)
		}
		proc.conceptCounter, err = meter.Int64Counter("worker_concepts_extracted")
		if err != nil {
			logger.Printf("warn: create concept counter failed: %v", err)
		}
		proc.rejectCounter, err = meter.Int64Counter("worker_jobs_rejected")
		if err != nil {
			logger.Printf("warn: create reject counter failed: %v", err)
		}
	}
	return proc
}

// Start blocks, continuously processing extract.requested events until the
// context is cancelled. Every message is acknowledged exactly once; invalid
// payloads are dropped, never redelivered.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Printf("worker processor starting; consuming stream %s", p.stream)

	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("worker processor stopping: %v", ctx.Err())
			return nil
		default:
		}

		p.reclaim(ctx)

		msgs, err := p.consumer.Read(ctx, p.stream, streams.WithBlock(5*time.Second), streams.WithCount(16))
		if err != nil {
			p.logger.Printf("error reading stream: %v", err)
			time.Sleep(time.Second)
			continue
		}
		p.dispatch(ctx, msgs)
	}
}

func (p *Processor) dispatch(ctx context.Context, msgs []streams.Message) {
	for _, msg := range msgs {
		if err := p.Handle(ctx, msg); err != nil {
			p.logger.Printf("error handling message %s: %v", msg.ID, err)
		}
		if err := p.consumer.Ack(ctx, p.stream, msg.ID); err != nil {
			p.logger.Printf("warn: failed to ack message %s: %v", msg.ID, err)
		}
	}
}

// reclaim takes over entries another consumer read but never acked, so a
// crashed worker's jobs get retried instead of sitting pending forever.
func (p *Processor) reclaim(ctx context.Context) {
	if time.Since(p.lastClaim) < reclaimEvery {
		return
	}
	p.lastClaim = time.Now()

	msgs, next, err := p.consumer.AutoClaim(ctx, p.stream, reclaimIdle, p.claimStart, 16)
	if err != nil {
		p.logger.Printf("warn: autoclaim failed: %v", err)
		return
	}
	p.claimStart = next
	if len(msgs) > 0 {
		p.logger.Printf("reclaimed %d stale messages", len(msgs))
	}
	p.dispatch(ctx, msgs)
}

// Handle processes one extraction request. Structurally invalid requests
// are logged and dropped without error so the loop acknowledges them.
func (p *Processor) Handle(ctx context.Context, msg streams.Message) error {
	ctx, span := p.tracer.Start(ctx, "worker.handle_extract")
	defer span.End()

	var payload streams.ExtractRequested
	if err := json.Unmarshal(msg.Envelope.Data, &payload); err != nil {
		p.reject(ctx, msg.ID, "payload inválido: "+err.Error())
		return nil
	}
	if payload.LicitacionID == "" || len(payload.DocumentIDs) == 0 {
		p.reject(ctx, msg.ID, "licitacion_id y document_ids son obligatorios")
		return nil
	}

	p.logger.Printf("job received | tender=%s docs=%d concepto=%q debug=%v",
		payload.LicitacionID, len(payload.DocumentIDs), payload.Concepto, payload.Debug)

	reports, err := p.runner.Run(ctx, runner.Request{
		TenderID:    payload.LicitacionID,
		TenderName:  payload.NombreLicitacion,
		DocumentIDs: payload.DocumentIDs,
		Concept:     payload.Concepto,
		Debug:       payload.Debug,
	})
	if err != nil {
		return err
	}

	for _, rep := range reports {
		p.logger.Printf("concept done | tender=%s concepto=%s status=%s run_id=%d reason=%q",
			payload.LicitacionID, rep.Concept, rep.Status, rep.RunID, rep.Reason)
		if p.conceptCounter != nil {
			p.conceptCounter.Add(ctx, 1, otelmetric.WithAttributes(
				attribute.String("concepto", rep.Concept),
				attribute.String("status", rep.Status)))
		}
	}
	if p.jobCounter != nil {
		p.jobCounter.Add(ctx, 1)
	}
	return nil
}

func (p *Processor) reject(ctx context.Context, msgID, reason string) {
	p.logger.Printf("job rejected | msg=%s reason=%s", msgID, reason)
	if p.rejectCounter != nil {
		p.rejectCounter.Add(ctx, 1)
	}
}
