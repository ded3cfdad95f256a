package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "stickerlab"

// LedgerMetrics tracks credit and sticker ledger mutations.
type LedgerMetrics struct {
	creditDeltas   *prometheus.CounterVec
	balance        prometheus.Gauge
	stickersStored prometheus.Counter
	corrupt        *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	creditDeltas := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credit_delta_total",
		Help:      "Credits added or removed, by direction.",
	}, []string{"direction"})
	balance := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "credit_balance",
		Help:      "Last observed credit balance.",
	})
	stickersStored := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stickers_recorded_total",
		Help:      "Stickers appended to the collection.",
	})
	corrupt := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sticker_collection_corrupt_total",
		Help:      "Times the stored sticker collection could not be decoded.",
	}, []string{"action"})
	reg.MustRegister(creditDeltas, balance, stickersStored, corrupt)
	return &LedgerMetrics{
		creditDeltas:   creditDeltas,
		balance:        balance,
		stickersStored: stickersStored,
		corrupt:        corrupt,
	}
}

// ObserveDelta counts a committed delta and records the resulting balance.
func (m *LedgerMetrics) ObserveDelta(amount, balance int) {
	if m == nil || m.creditDeltas == nil {
		return
	}
	direction := "credit"
	value := float64(amount)
	if amount < 0 {
		direction = "debit"
		value = -value
	}
	m.creditDeltas.WithLabelValues(direction).Add(value)
	m.balance.Set(float64(balance))
}

// SetBalance records a balance read without a mutation.
func (m *LedgerMetrics) SetBalance(balance int) {
	if m == nil || m.balance == nil {
		return
	}
	m.balance.Set(float64(balance))
}

// IncStickerRecorded counts one appended sticker.
func (m *LedgerMetrics) IncStickerRecorded() {
	if m == nil || m.stickersStored == nil {
		return
	}
	m.stickersStored.Inc()
}

// IncCorrupt counts a corrupt collection read. action is "recovered" or "rejected".
func (m *LedgerMetrics) IncCorrupt(action string) {
	if m == nil || m.corrupt == nil {
		return
	}
	m.corrupt.WithLabelValues(normalizeLabel(action)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
