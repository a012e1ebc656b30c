package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helen2mqtt_poll_cycles_total",
			Help: "Total number of polling cycles per account and result",
		},
		[]string{"account", "result"},
	)

	PollDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helen2mqtt_poll_duration_seconds",
			Help:    "Polling cycle duration in seconds per account",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"account"},
	)

	LastPollTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "helen2mqtt_last_poll_timestamp",
			Help: "Unix timestamp of the last completed cycle per account",
		},
		[]string{"account"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helen2mqtt_api_requests_total",
			Help: "Total number of Helen API requests per endpoint and status code",
		},
		[]string{"endpoint", "code"},
	)

	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helen2mqtt_publish_total",
			Help: "Total number of publish attempts per transport and result",
		},
		[]string{"transport", "result"},
	)

	MonthConsumptionKWh = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "helen2mqtt_month_consumption_kwh",
			Help: "Current month consumption from the latest snapshot per account",
		},
		[]string{"account"},
	)

	MonthCostEur = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "helen2mqtt_month_cost_eur",
			Help: "Current month cost estimate from the latest snapshot per account",
		},
		[]string{"account"},
	)
)

// ObservePoll records the outcome of one polling cycle for an account
func ObservePoll(account string, startedAt time.Time, err error) {
	PollDurationSeconds.WithLabelValues(account).Observe(time.Since(startedAt).Seconds())
	LastPollTimestamp.WithLabelValues(account).Set(float64(time.Now().Unix()))
	result := "ok"
	if err != nil {
		result = "error"
	}
	PollCyclesTotal.WithLabelValues(account, result).Inc()
}

// ObserveAPIRequest records one Helen API request
func ObserveAPIRequest(endpoint string, status int) {
	APIRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// ObservePublish records one publish attempt over a transport
func ObservePublish(transport string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	PublishTotal.WithLabelValues(transport, result).Inc()
}

// UpdateSnapshot reflects the latest derived figures for an account
func UpdateSnapshot(account string, consumptionKWh, costEur float64) {
	MonthConsumptionKWh.WithLabelValues(account).Set(consumptionKWh)
	MonthCostEur.WithLabelValues(account).Set(costEur)
}

// Serve exposes the metrics endpoint on addr and blocks
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
