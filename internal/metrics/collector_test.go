package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.itemsTotal)
	assert.NotNil(t, collector.stageDuration)
	assert.NotNil(t, collector.categoryAccepted)
	assert.NotNil(t, collector.blobOperations)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/api/glb/:id", 200, 100*time.Millisecond, 2048)
	collector.RecordHTTPRequest("GET", "/api/glb/:id", 404, 5*time.Millisecond, 64)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/glb/:id", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/glb/:id", "4xx")))
}

func TestCollector_RecordItem(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordItem("dresses", "ok")
	collector.RecordItem("dresses", "ok")
	collector.RecordItem("dresses", "conversion_error")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.itemsTotal.WithLabelValues("dresses", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.itemsTotal.WithLabelValues("dresses", "conversion_error")))
}

func TestCollector_StageAndSize(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordStage("convert", 200*time.Millisecond)
	collector.RecordStage("analyze", 50*time.Millisecond)
	collector.RecordGLBSize(64 * 1024)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.stageDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.glbBytes))
}

func TestCollector_CategoryAccepted(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.SetCategoryAccepted("dresses", 2)
	collector.SetCategoryAccepted("tops", 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.categoryAccepted.WithLabelValues("dresses")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.categoryAccepted))

	collector.ResetCategoryAccepted()
	assert.Equal(t, 0, testutil.CollectAndCount(collector.categoryAccepted))
}

func TestCollector_RecordBlobSummaryAndRun(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordBlobSummary(3, 1, 0)
	collector.RecordRun("completed", 2*time.Second)

	assert.Equal(t, 3.0, testutil.ToFloat64(collector.blobOperations.WithLabelValues("uploaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.blobOperations.WithLabelValues("deleted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.runsTotal.WithLabelValues("completed")))
}

func TestCollector_RecordDatabaseQuery(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBQuery("postgres", "upsert", 20*time.Millisecond)

	count := testutil.CollectAndCount(collector.dbQueryDuration)
	assert.Greater(t, count, 0)
}

func TestCollector_UpdateConnectionPool(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBConnections("postgres", 10, 5)

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var collector *Collector

	assert.NotPanics(t, func() {
		collector.RecordHTTPRequest("GET", "/", 200, time.Millisecond, 0)
		collector.RecordItem("dresses", "ok")
		collector.RecordStage("convert", time.Millisecond)
		collector.RecordGLBSize(1)
		collector.SetCategoryAccepted("dresses", 1)
		collector.ResetCategoryAccepted()
		collector.RecordBlobSummary(1, 1, 1)
		collector.RecordRun("completed", time.Second)
		collector.RecordDBConnections("postgres", 1, 1)
		collector.RecordDBQuery("postgres", "ping", time.Millisecond)
	})
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	// 并发记录多个指标
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			collector.RecordHTTPRequest("GET", "/api/items", 200, 100*time.Millisecond, 1024)
			collector.RecordItem("dresses", "ok")
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.itemsTotal.WithLabelValues("dresses", "ok")))
}

func TestCollector_WriteTextfile(t *testing.T) {
	ns := nextTestNamespace()
	collector := NewCollector(ns, zap.NewNop())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collector.itemsTotal)
	collector.RecordItem("dresses", "ok")

	path := filepath.Join(t.TempDir(), "meshflow.prom")
	require.NoError(t, collector.WriteTextfile(path, registry))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), ns+`_pipeline_items_total{category="dresses",outcome="ok"} 1`))
}

func TestCollector_WriteTextfileBadPath(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())
	err := collector.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"), prometheus.NewRegistry())
	assert.Error(t, err)
}
