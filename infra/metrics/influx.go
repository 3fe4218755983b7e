package metrics

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/dmolinero/pvbess/core/metrics"
	"github.com/dmolinero/pvbess/infra/logger"
)

// InfluxSink writes simulation events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(cfg coremetrics.Config) *InfluxSink {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and degrades to a
// NopSink when the health check fails, so a missing sink never blocks a run.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.Sink {
	sink := NewInfluxSink(cfg)
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

// RecordRun writes the run summary as one point.
func (s *InfluxSink) RecordRun(m coremetrics.RunMetrics) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("simulation_run").
		AddTag("run_id", m.RunID).
		AddField("steps", m.Steps).
		AddField("cycles", m.Cycles).
		AddField("extensions", m.Extensions).
		AddField("fallbacks", m.Fallbacks).
		AddField("charge_mwh", m.ChargeMWh).
		AddField("discharge_mwh", m.DischargeMWh).
		AddField("curtailment_mwh", m.CurtailmentMWh).
		AddField("duration_ms", m.Duration.Milliseconds()).
		SetTime(m.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordCycle writes one point per accepted cycle.
func (s *InfluxSink) RecordCycle(m coremetrics.CycleMetrics) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("simulation_cycle").
		AddTag("run_id", m.RunID).
		AddTag("fallback", strconv.FormatBool(m.Fallback)).
		AddField("start", m.Start).
		AddField("end", m.End).
		AddField("extensions", m.Extensions).
		SetTime(m.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close flushes and releases the underlying client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}
