package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/dspfactory/core/metrics"
	"github.com/kilianp07/dspfactory/infra/logger"
)

// InfluxSink writes factory events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordFactoryEvent writes ev as a factory_event point.
func (s *InfluxSink) RecordFactoryEvent(ev coremetrics.FactoryEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, eventPoint(ev))
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func eventPoint(ev coremetrics.FactoryEvent) *write.Point {
	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}
	p := write.NewPointWithMeasurement("factory_event").
		AddTag("op", string(ev.Op)).
		AddTag("result", string(ev.Result))
	if ev.Backend != "" {
		p = p.AddTag("backend", ev.Backend)
	}
	return p.AddField("bytes", ev.Bytes).
		AddField("duration_ms", float64(ev.Duration.Microseconds())/1000).
		SetTime(at)
}
