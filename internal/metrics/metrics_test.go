package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObservePoll(t *testing.T) {
	ObservePoll("poll-acct", time.Now(), nil)
	ObservePoll("poll-acct", time.Now(), errors.New("boom"))
	ObservePoll("poll-acct", time.Now(), nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(PollCyclesTotal.WithLabelValues("poll-acct", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(PollCyclesTotal.WithLabelValues("poll-acct", "error")))
	assert.Greater(t, testutil.ToFloat64(LastPollTimestamp.WithLabelValues("poll-acct")), 0.0)
}

func TestObserveAPIRequest(t *testing.T) {
	ObserveAPIRequest("contracts", 200)
	ObserveAPIRequest("contracts", 200)
	ObserveAPIRequest("contracts", 503)

	assert.Equal(t, 2.0, testutil.ToFloat64(APIRequestsTotal.WithLabelValues("contracts", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(APIRequestsTotal.WithLabelValues("contracts", "503")))
}

func TestObservePublish(t *testing.T) {
	ObservePublish("mqtt", nil)
	ObservePublish("http", errors.New("unreachable"))

	assert.Equal(t, 1.0, testutil.ToFloat64(PublishTotal.WithLabelValues("mqtt", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(PublishTotal.WithLabelValues("http", "error")))
}

func TestUpdateSnapshot(t *testing.T) {
	UpdateSnapshot("gauge-acct", 150.5, 17.79)

	assert.Equal(t, 150.5, testutil.ToFloat64(MonthConsumptionKWh.WithLabelValues("gauge-acct")))
	assert.Equal(t, 17.79, testutil.ToFloat64(MonthCostEur.WithLabelValues("gauge-acct")))
}
