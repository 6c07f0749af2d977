package notify

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// InstrumentedNotifier counts send outcomes per kind
type InstrumentedNotifier struct {
	next  Notifier
	sends *prometheus.CounterVec
}

// Instrument wraps next and registers its counter with reg
func Instrument(next Notifier, reg prometheus.Registerer) *InstrumentedNotifier {
	sends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "SMS notifications handed to the sink, by kind and result.",
	}, []string{"kind", "result"})
	reg.MustRegister(sends)
	return &InstrumentedNotifier{next: next, sends: sends}
}

func (n *InstrumentedNotifier) Send(ctx context.Context, msg Message) error {
	err := n.next.Send(ctx, msg)
	result := "ok"
	if err != nil {
		result = "error"
	}
	n.sends.WithLabelValues(string(msg.Kind), result).Inc()
	return err
}
