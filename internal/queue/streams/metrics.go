package streams

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	intakeMetricsOnce sync.Once
	extractRequests   otelmetric.Int64Counter
	extractDocuments  otelmetric.Int64Counter
	messagesDiscarded otelmetric.Int64Counter
)

func initIntakeMetrics() {
	meter := otel.Meter("licsem/queue/streams")
	var err error
	extractRequests, err = meter.Int64Counter(
		"extract_requests_total",
		otelmetric.WithDescription("Extraction requests published to streams"),
	)
	if err != nil {
		log.Printf("queue streams metrics init: extract_requests_total: %v", err)
	}
	extractDocuments, err = meter.Int64Counter(
		"extract_request_documents_total",
		otelmetric.WithDescription("Documents referenced by published extraction requests"),
	)
	if err != nil {
		log.Printf("queue streams metrics init: extract_request_documents_total: %v", err)
	}
	messagesDiscarded, err = meter.Int64Counter(
		"extract_messages_discarded_total",
		otelmetric.WithDescription("Stream entries dropped for failing envelope or schema validation"),
	)
	if err != nil {
		log.Printf("queue streams metrics init: extract_messages_discarded_total: %v", err)
	}
}

func recordIntakeMetrics(ctx context.Context, eventType string, payload []byte) {
	if eventType != EventExtractRequested {
		return
	}
	intakeMetricsOnce.Do(initIntakeMetrics)
	if extractRequests == nil {
		return
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return
	}
	concepto, _ := doc["concepto"].(string)
	attrs := otelmetric.WithAttributes(
		attribute.String("concepto", strings.TrimSpace(concepto)),
	)
	extractRequests.Add(contextOrBackground(ctx), 1, attrs)
	if arr, ok := doc["document_ids"].([]interface{}); ok && extractDocuments != nil {
		extractDocuments.Add(contextOrBackground(ctx), int64(len(arr)), attrs)
	}
}

func recordDiscard(ctx context.Context, reason string) {
	intakeMetricsOnce.Do(initIntakeMetrics)
	if messagesDiscarded == nil {
		return
	}
	messagesDiscarded.Add(contextOrBackground(ctx), 1,
		otelmetric.WithAttributes(attribute.String("motivo", reason)))
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
