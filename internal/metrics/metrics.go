package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 汇总拉黑相关路径和聊天会话的指标。
// 零值或 nil 的 *Metrics 上调用任何方法都是安全的空操作。
type Metrics struct {
	guardDecisions   *prometheus.CounterVec
	visibilityHidden *prometheus.CounterVec
	blockMutations   *prometheus.CounterVec
	chatSessions     prometheus.Gauge
	chatTransitions  *prometheus.CounterVec
	chatReconnects   prometheus.Counter
	chatDuplicates   prometheus.Counter
	reconcileRemoved *prometheus.CounterVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "social",
			Name:      "guard_decisions_total",
			Help:      "Guarded interaction outcomes by action and result kind.",
		}, []string{"action", "outcome"}),
		visibilityHidden: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "social",
			Name:      "visibility_hidden_total",
			Help:      "Listing entries removed because of a block relation.",
		}, []string{"listing"}),
		blockMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "social",
			Name:      "block_mutations_total",
			Help:      "Block and unblock operations by outcome.",
		}, []string{"op", "outcome"}),
		chatSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "social",
			Name:      "chat_sessions_open",
			Help:      "Chat sessions currently open.",
		}),
		chatTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "social",
			Name:      "chat_state_transitions_total",
			Help:      "Chat session state transitions by target state.",
		}, []string{"state"}),
		chatReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "social",
			Name:      "chat_reconnects_total",
			Help:      "Live subscription re-establishments.",
		}),
		chatDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "social",
			Name:      "chat_duplicate_deliveries_total",
			Help:      "Live deliveries dropped as duplicates.",
		}),
		reconcileRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "social",
			Name:      "reconcile_removed_rows_total",
			Help:      "Rows removed by the relationship reconcile task.",
		}, []string{"table"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.guardDecisions,
			m.visibilityHidden,
			m.blockMutations,
			m.chatSessions,
			m.chatTransitions,
			m.chatReconnects,
			m.chatDuplicates,
			m.reconcileRemoved,
		)
	}
	return m
}

// Handler exposes the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) GuardDecision(action, outcome string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) Hidden(listing string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.visibilityHidden.WithLabelValues(listing).Add(float64(n))
}

func (m *Metrics) BlockMutation(op, outcome string) {
	if m == nil {
		return
	}
	m.blockMutations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.chatSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.chatSessions.Dec()
}

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.chatTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.chatReconnects.Inc()
}

func (m *Metrics) DuplicateDelivery() {
	if m == nil {
		return
	}
	m.chatDuplicates.Inc()
}

func (m *Metrics) Reconciled(table string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reconcileRemoved.WithLabelValues(table).Add(float64(n))
}
