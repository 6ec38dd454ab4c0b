package prometheus

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"eproxy/interceptor"
	"eproxy/observability"
)

type InterceptorBuilder struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
	// Registerer defaults to prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// Build registers the collectors and returns an interceptor that measures the
// remote call of each invocation. Build panics when the collectors are
// already registered, like prometheus.MustRegister.
func (b *InterceptorBuilder) Build() interceptor.Interceptor {
	address := observability.GetOutboundIP()
	constLabels := map[string]string{
		"address": address,
		"kind":    "client",
	}
	summaryVec := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:   b.Namespace,
		Subsystem:   b.Subsystem,
		Help:        b.Help,
		Name:        b.Name + "_response",
		ConstLabels: constLabels,
		Objectives: map[float64]float64{
			0.5:   0.01,
			0.75:  0.01,
			0.9:   0.01,
			0.99:  0.001,
			0.999: 0.0001,
		},
	}, []string{"service", "method", "result"})

	absentCntVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   b.Namespace,
		Subsystem:   b.Subsystem,
		Name:        b.Name + "_absent_cnt",
		Help:        b.Help,
		ConstLabels: constLabels,
	}, []string{"service", "method"})

	reqCntVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   b.Namespace,
		Subsystem:   b.Subsystem,
		Name:        b.Name + "_active_req_cnt",
		Help:        b.Help,
		ConstLabels: constLabels,
	}, []string{"service", "method"})

	registerer := b.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerer.MustRegister(summaryVec, absentCntVec, reqCntVec)
	return interceptor.Func(func(ctx context.Context, inv *interceptor.Invocation) error {
		service, method := observability.SplitServiceID(inv.ServiceID)
		reqCnt := reqCntVec.WithLabelValues(service, method)
		reqCnt.Add(1)
		startTime := time.Now()
		msg := inv.Proceed(ctx)
		duration := float64(time.Since(startTime).Milliseconds())
		reqCnt.Sub(1)
		if msg == nil {
			absentCntVec.WithLabelValues(service, method).Inc()
			summaryVec.WithLabelValues(service, method, "absent").Observe(duration)
			return nil
		}
		summaryVec.WithLabelValues(service, method, "OK").Observe(duration)
		return nil
	})
}
