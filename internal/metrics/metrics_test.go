package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistry_ExposesSeriesOnHandler(t *testing.T) {
	m := NewRegistry()
	m.IngestRequests.WithLabelValues("accepted").Inc()
	m.RecordsProcessed.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "ingest_requests_total") {
		t.Fatalf("expected ingest_requests_total in exposition, got:\n%s", body)
	}
	if !strings.Contains(body, "records_processed_total") {
		t.Fatalf("expected records_processed_total in exposition, got:\n%s", body)
	}
}

func TestIngestTimer_ObserveStatus(t *testing.T) {
	m := NewRegistry()
	timer := m.StartIngestTimer()
	time.Sleep(time.Millisecond)
	timer.ObserveStatus("accepted")

	if got := counterValue(m.RecordsProcessed); got != 1 {
		t.Fatalf("expected records_processed_total=1, got %v", got)
	}
}

func TestIngestTimer_ErrorStatusDoesNotCountProcessed(t *testing.T) {
	m := NewRegistry()
	timer := m.StartIngestTimer()
	timer.ObserveStatus("error")

	if got := counterValue(m.RecordsProcessed); got != 0 {
		t.Fatalf("expected records_processed_total to stay 0 on error, got %v", got)
	}
}

func TestRecordValidation_SetsRollingPassRate(t *testing.T) {
	m := NewRegistry()
	m.RecordValidation(true)
	m.RecordValidation(true)
	m.RecordValidation(false)

	var metric dto.Metric
	if err := m.ValidationPassRate.Write(&metric); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if got := metric.GetGauge().GetValue(); got != float64(2)/3 {
		t.Fatalf("expected validation_pass_rate=2/3, got %v", got)
	}
}

func TestStartThroughputSampler_StopsCleanly(t *testing.T) {
	m := NewRegistry()
	stop := m.StartThroughputSampler(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	stop()
}
