// Package metrics keeps process-local import counters and serves them in the
// Prometheus text format on /metrics.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

type counter struct {
	name string
	help string
	v    atomic.Uint64
}

var registry []*counter

func newCounter(name, help string) *counter {
	c := &counter{name: name, help: help}
	registry = append(registry, c)
	return c
}

var (
	batchesStarted     = newCounter("letters_import_batches_started_total", "Import runs started")
	batchesCompleted   = newCounter("letters_import_batches_completed_total", "Import runs completed")
	batchesFailed      = newCounter("letters_import_batches_failed_total", "Import runs aborted by a fatal error")
	documentsProcessed = newCounter("letters_import_documents_processed_total", "Documents that produced an import line")
	documentsSkipped   = newCounter("letters_import_documents_skipped_total", "Documents skipped after an extraction error")
	linesCreated       = newCounter("letters_import_lines_created_total", "Import lines persisted")
	lettersSaved       = newCounter("letters_saved_total", "Letters created from import lines")
	jobsReceived       = newCounter("letters_import_jobs_received_total", "Queue messages received")
	jobsCompleted      = newCounter("letters_import_jobs_completed_total", "Queue messages processed")
	jobsFailed         = newCounter("letters_import_jobs_failed_total", "Queue messages left for redelivery")
	jobsDropped        = newCounter("letters_import_jobs_deleted_unrecoverable_total", "Queue messages dropped without a retry")

	batchDuration = newHistogram("letters_import_batch_duration_ms", "Import run duration in milliseconds",
		[]float64{1000, 5000, 15000, 30000, 60000, 120000, 300000, 600000, 1800000})
)

func IncBatchStarted()      { batchesStarted.v.Add(1) }
func IncBatchCompleted()    { batchesCompleted.v.Add(1) }
func IncBatchFailed()       { batchesFailed.v.Add(1) }
func IncDocumentProcessed() { documentsProcessed.v.Add(1) }

// IncDocumentSkipped counts a document the extractor could not decode.
func IncDocumentSkipped() { documentsSkipped.v.Add(1) }
func IncLinesCreated()    { linesCreated.v.Add(1) }

// AddLettersSaved counts letters promoted by a save.
func AddLettersSaved(n int) {
	if n > 0 {
		lettersSaved.v.Add(uint64(n))
	}
}

func IncJobsReceived()  { jobsReceived.v.Add(1) }
func IncJobsCompleted() { jobsCompleted.v.Add(1) }

// IncJobsFailed counts messages left on the queue for redelivery.
func IncJobsFailed() { jobsFailed.v.Add(1) }

// IncJobsDeletedUnrecoverable counts messages deleted without a successful
// run: malformed payloads and imports that can never succeed.
func IncJobsDeletedUnrecoverable() { jobsDropped.v.Add(1) }

// ObserveBatchDurationMs records how long an import run took.
func ObserveBatchDurationMs(ms float64) {
	batchDuration.observe(max(ms, 0))
}

// Handler serves Render on /metrics.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

func Render() string {
	var b strings.Builder
	for _, c := range registry {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", c.name, c.help, c.name, c.name, c.v.Load())
	}
	batchDuration.write(&b)
	return b.String()
}

// histogram stores per-bucket counts; write turns them cumulative.
type histogram struct {
	name, help string
	bounds     []float64

	mu     sync.Mutex
	counts []uint64 // len(bounds)+1, last is +Inf
	sum    float64
	total  uint64
}

func newHistogram(name, help string, bounds []float64) *histogram {
	return &histogram{
		name:   name,
		help:   help,
		bounds: bounds,
		counts: make([]uint64, len(bounds)+1),
	}
}

func (h *histogram) observe(v float64) {
	i := sort.SearchFloat64s(h.bounds, v)
	h.mu.Lock()
	h.counts[i]++
	h.sum += v
	h.total++
	h.mu.Unlock()
}

func (h *histogram) write(w io.Writer) {
	h.mu.Lock()
	counts := append([]uint64(nil), h.counts...)
	sum, total := h.sum, h.total
	h.mu.Unlock()

	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	var cumulative uint64
	for i, bound := range h.bounds {
		cumulative += counts[i]
		fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", h.name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", h.name, total)
	fmt.Fprintf(w, "%s_sum %s\n%s_count %d\n", h.name, formatFloat(sum), h.name, total)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
