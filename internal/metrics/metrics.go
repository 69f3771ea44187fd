package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "quotes_total", Help: "Swap quotes computed"},
		[]string{"pair"},
	)
	SwapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "swaps_total", Help: "Swap transactions by terminal status"},
		[]string{"status"},
	)
	CommissionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "commissions_total", Help: "Referral commissions recorded"},
	)
	PriceSamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "price_samples_total", Help: "Price samples appended"},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(QuotesTotal, SwapsTotal, CommissionsTotal, PriceSamplesTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
