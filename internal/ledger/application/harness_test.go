package application

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/register/internal/infrastructure/memory"
	"github.com/zjrosen/register/internal/ledger/events"
	"github.com/zjrosen/register/internal/metrics"
	"github.com/zjrosen/register/internal/testutil"
)

// fakeClock returns BaseTime and moves forward one second per call.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testutil.BaseTime}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// harness wires the four managers over one memory store.
type harness struct {
	store     *memory.Store
	events    *events.Recorder
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	registers *RegisterManager
	txs       *TransactionManager
	dockets   *DocketManager
	queries   *QueryManager
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "test")
	clock := newFakeClock()
	ids := 0
	base := []Option{
		WithMetrics(m),
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			ids++
			return "reg" + strconv.Itoa(ids)
		}),
		WithSharedLocks(NewRegisterLocks()),
	}
	opts = append(base, opts...)

	store := memory.NewStore()
	rec := events.NewRecorder()
	return &harness{
		store:     store,
		events:    rec,
		registry:  reg,
		metrics:   m,
		registers: NewRegisterManager(store, rec, opts...),
		txs:       NewTransactionManager(store, rec, opts...),
		dockets:   NewDocketManager(store, rec, opts...),
		queries:   NewQueryManager(store, opts...),
	}
}

// counter returns the value of the named counter series whose labels include want.
func (h *harness) counter(t *testing.T, name string, want map[string]string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	series:
		for _, m := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue series
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
