package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterAndObserve(t *testing.T) {
	assert := assert.New(t)

	reg := prometheus.NewRegistry()
	assert.Nil(Register(reg))
	// Second registration on the same registry is rejected
	assert.NotNil(Register(reg))

	size := 3
	assert.Nil(RegisterStoreSize(reg, "vehicles", func() int { return size }))

	// Case 0: entity counters
	{
		before := testutil.ToFloat64(feedEntities.WithLabelValues("ut-feed", ResultAccepted))
		ObserveEntities("ut-feed", ResultAccepted, 4)
		ObserveEntities("ut-feed", ResultAccepted, 0)
		assert.Equal(before+4, testutil.ToFloat64(feedEntities.WithLabelValues("ut-feed", ResultAccepted)))
	}

	// Case 1: state gauge
	{
		SetFeedState("ut-feed", 1)
		assert.Equal(1.0, testutil.ToFloat64(feedState.WithLabelValues("ut-feed")))
		SetFeedState("ut-feed", 2)
		assert.Equal(2.0, testutil.ToFloat64(feedState.WithLabelValues("ut-feed")))
	}

	// Case 2: store size gauge reads the live value
	{
		count, err := testutil.GatherAndCount(reg, "livetransit_snapshot_entries")
		assert.Nil(err)
		assert.Equal(1, count)
		size = 7
		families, err := reg.Gather()
		assert.Nil(err)
		found := false
		for _, family := range families {
			if family.GetName() == "livetransit_snapshot_entries" {
				found = true
				assert.Equal(7.0, family.GetMetric()[0].GetGauge().GetValue())
			}
		}
		assert.True(found)
	}

	// Case 3: evictions only counted when non-zero
	{
		before := testutil.ToFloat64(snapshotEvictions.WithLabelValues("ut-store"))
		ObserveEvictions("ut-store", 0)
		ObserveEvictions("ut-store", 2)
		assert.Equal(before+2, testutil.ToFloat64(snapshotEvictions.WithLabelValues("ut-store")))
	}
}
