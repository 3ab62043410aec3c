package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alwitt/livetransit/decoder"
	"github.com/alwitt/livetransit/metrics"
	"github.com/alwitt/livetransit/snapshot"
	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

// testRegistry registry exposing the relay instruments
var testRegistry = func() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		panic(err)
	}
	return reg
}()

// publishCount current relay publish counter for a result label
func publishCount(t *testing.T, result string) float64 {
	families, err := testRegistry.Gather()
	assert.Nil(t, err)
	for _, family := range families {
		if family.GetName() != "livetransit_relay_publish_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func testRecord(key string, receivedAt time.Time, payload decoder.Document) snapshot.Record {
	return snapshot.Record{Key: key, ReceivedAt: receivedAt, Payload: payload}
}

type publishedMsg struct {
	subject string
	data    []byte
}

type testPublisher struct {
	lock      sync.Mutex
	published []publishedMsg
	failures  int
	block     chan struct{}
}

func (p *testPublisher) Publish(ctxt context.Context, subject string, data []byte) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctxt.Done():
			return ctxt.Err()
		}
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.failures > 0 {
		p.failures--
		return fmt.Errorf("nats: no responders available for request")
	}
	p.published = append(p.published, publishedMsg{subject: subject, data: data})
	return nil
}

func (p *testPublisher) count() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.published)
}

func (p *testPublisher) get(idx int) publishedMsg {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.published[idx]
}

func TestSanitizeSubjectToken(t *testing.T) {
	assert := assert.New(t)

	type testCase struct {
		input    string
		expected string
	}
	cases := []testCase{
		{input: "V1", expected: "V1"},
		{input: "vehicle 12", expected: "vehicle_12"},
		{input: "801.A", expected: "801_A"},
		{input: "a*b>c", expected: "a_b_c"},
		{input: "tab\there", expected: "tab_here"},
		{input: "", expected: "_"},
	}
	for idx, oneCase := range cases {
		assert.Equal(oneCase.expected, SanitizeSubjectToken(oneCase.input), "case %d", idx)
	}

	assert.Equal(
		"livetransit.vehicle_positions.LACMTA_1234",
		Subject("livetransit", decoder.VehiclePosition.String(), "LACMTA.1234"),
	)
}

func TestRelayParams(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	// Case 0: missing publisher
	{
		_, err := GetRelay(RelayParams{
			SubjectPrefix: "ut", QueueDepth: 1, PublishTimeout: time.Second,
		})
		assert.NotNil(err)
	}

	// Case 1: missing queue
	{
		_, err := GetRelay(RelayParams{
			Publisher: &testPublisher{}, SubjectPrefix: "ut", PublishTimeout: time.Second,
		})
		assert.NotNil(err)
	}
}

func TestRelayPublish(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	utCtxt, utCancel := context.WithCancel(context.Background())
	defer utCancel()

	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	publisher := &testPublisher{failures: 1}
	uut, err := GetRelay(RelayParams{
		Publisher:      publisher,
		SubjectPrefix:  "ut-relay",
		QueueDepth:     8,
		PublishTimeout: time.Second,
	})
	assert.Nil(err)
	failuresBefore := publishCount(t, metrics.ResultFailure)
	successBefore := publishCount(t, metrics.ResultSuccess)
	assert.Nil(uut.Start(utCtxt, &wg))

	// Case 0: first publish fails and is not retried
	uut.Forward(utCtxt, decoder.VehiclePosition, testRecord(
		"V0", stamp.Add(-time.Minute), decoder.Document{"id": "V0"},
	))
	// Case 1: delivered with the time the record was stored
	uut.Forward(utCtxt, decoder.TripUpdate, testRecord(
		"T 1", stamp, decoder.Document{"id": "T 1"},
	))

	assert.Eventually(func() bool {
		return publisher.count() == 1
	}, time.Second*2, time.Millisecond*10)
	assert.Eventually(func() bool {
		return publishCount(t, metrics.ResultSuccess) == successBefore+1
	}, time.Second, time.Millisecond*10)
	assert.Equal(failuresBefore+1, publishCount(t, metrics.ResultFailure))

	msg := publisher.get(0)
	assert.Equal("ut-relay.trip_updates.T_1", msg.subject)
	var parsed Message
	assert.Nil(json.Unmarshal(msg.data, &parsed))
	assert.Equal("T 1", parsed.Key)
	assert.Equal("trip_updates", parsed.Feed)
	assert.True(stamp.Equal(parsed.ReceivedAt))
	assert.Equal("T 1", parsed.Payload["id"])
	assert.Equal(uint64(0), uut.Dropped())
}

func TestRelayQueueOverflow(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	utCtxt, utCancel := context.WithCancel(context.Background())
	defer utCancel()

	publisher := &testPublisher{block: make(chan struct{})}
	uut, err := GetRelay(RelayParams{
		Publisher:      publisher,
		SubjectPrefix:  "ut-relay",
		QueueDepth:     2,
		PublishTimeout: time.Second * 10,
	})
	assert.Nil(err)

	droppedBefore := publishCount(t, metrics.ResultDropped)

	// Worker not running, queue holds two records
	for itr := 0; itr < 5; itr++ {
		uut.Forward(utCtxt, decoder.VehiclePosition, testRecord(
			fmt.Sprintf("V%d", itr), time.Now(), decoder.Document{},
		))
	}
	assert.Equal(uint64(3), uut.Dropped())
	assert.Equal(droppedBefore+3, publishCount(t, metrics.ResultDropped))

	assert.Nil(uut.Start(utCtxt, &wg))
	close(publisher.block)
	assert.Eventually(func() bool {
		return publisher.count() == 2
	}, time.Second*2, time.Millisecond*10)
	assert.Equal("ut-relay.vehicle_positions.V0", publisher.get(0).subject)
	assert.Equal("ut-relay.vehicle_positions.V1", publisher.get(1).subject)
}
