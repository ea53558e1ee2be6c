package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsSchedulerCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncAdmissionDecision("Allowed")
	metrics.IncAdmissionDecision("min_interval")
	metrics.IncCommentProcessed()
	metrics.IncCommentFailed("max_retries")
	metrics.IncRetryScheduled()
	metrics.SetQueueDepth(4)
	metrics.ObserveDeliveryDuration(120 * time.Millisecond)

	if got := testutil.ToFloat64(metrics.admissionDecisionsTotal.WithLabelValues("allowed")); got != 1 {
		t.Fatalf("admission_decisions_total{allowed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.admissionDecisionsTotal.WithLabelValues("min_interval")); got != 1 {
		t.Fatalf("admission_decisions_total{min_interval} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.commentsProcessedTotal); got != 1 {
		t.Fatalf("comments_processed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.commentsFailedTotal.WithLabelValues("max_retries")); got != 1 {
		t.Fatalf("comments_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retriesScheduledTotal); got != 1 {
		t.Fatalf("retries_scheduled_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.queueDepth); got != 4 {
		t.Fatalf("queue_depth = %v, want 4", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncAdmissionDecision("allowed")
	metrics.IncCommentProcessed()
	metrics.IncCommentFailed("duplicate")
	metrics.IncRetryScheduled()
	metrics.SetQueueDepth(1)
	metrics.ObserveDeliveryDuration(time.Millisecond)

	if metrics.Handler() == nil {
		t.Fatal("Handler() on nil metrics should fall back to the default handler")
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
