package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	a.ConflictDetected()

	if got := testutil.ToFloat64(a.SlotConflicts); got != 1 {
		t.Errorf("expected 1 conflict on a, got %v", got)
	}
	if got := testutil.ToFloat64(b.SlotConflicts); got != 0 {
		t.Errorf("expected 0 conflicts on b, got %v", got)
	}
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics()
	m.TransitionRecorded("complete", nil)
	m.TransitionRecorded("complete", errors.New("not checked in"))
	m.DerivedRecordCreated("bill")
	m.Delivered("email", nil)
	m.Delivered("sms", errors.New("gateway down"))
	m.DeadLettered("sms")
	m.PendingObserved(7)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"complete ok", testutil.ToFloat64(m.AppointmentTransitions.WithLabelValues("complete", "ok")), 1},
		{"complete rejected", testutil.ToFloat64(m.AppointmentTransitions.WithLabelValues("complete", "rejected")), 1},
		{"bill", testutil.ToFloat64(m.DerivedRecords.WithLabelValues("bill")), 1},
		{"email sent", testutil.ToFloat64(m.NotificationsDelivered.WithLabelValues("email", "sent")), 1},
		{"sms failed", testutil.ToFloat64(m.NotificationsDelivered.WithLabelValues("sms", "failed")), 1},
		{"sms dead", testutil.ToFloat64(m.OutboxDead.WithLabelValues("sms")), 1},
		{"pending", testutil.ToFloat64(m.OutboxPending), 7},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest(http.MethodGet, "/api/bills/:id", http.StatusOK, 12*time.Millisecond)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), rec)
	if err := m.Handler()(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `hms_http_requests_total{method="GET",route="/api/bills/:id",status="200"} 1`) {
		t.Errorf("expected request counter in exposition, got:\n%s", body)
	}
}

func TestInitTracing_Disabled(t *testing.T) {
	tp, err := InitTracing(context.Background(), TracingConfig{ServiceName: "hms-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsSampled() {
		t.Error("expected spans not to be sampled when tracing is disabled")
	}
	span.End()
}
