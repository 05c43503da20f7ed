package observability

import (
	"strconv"
	"sync"
)

// Metrics provides basic in-memory counters for queue activity and HTTP traffic.
type Metrics struct {
	mu           sync.Mutex
	queueOps     map[string]int64
	requestCount map[string]int64
	errorCount   map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		queueOps:     make(map[string]int64),
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for completed requests.
func (m *Metrics) RecordRequest(path, method string, status int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[path+"|"+method+"|"+strconv.Itoa(status)]++
}

// RecordQueueOp counts a queue operation (issued, called, completed, cancelled,
// no_show, transferred) for a department.
func (m *Metrics) RecordQueueOp(departmentID, op string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueOps[departmentID+"|"+op]++
}

// RecordError increments error counters keyed by request path and error code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[path+"|"+method+"|"+code]++
}

// QueueOpCount reads a single counter, used by the readiness endpoint and tests.
func (m *Metrics) QueueOpCount(departmentID, op string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueOps[departmentID+"|"+op]
}
