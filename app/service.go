// Package app wires the simulation pipeline: ingest, dispatch, KPI
// aggregation, export and the optional metrics and MQTT side channels.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dmolinero/pvbess/config"
	"github.com/dmolinero/pvbess/core/kpi"
	coremetrics "github.com/dmolinero/pvbess/core/metrics"
	"github.com/dmolinero/pvbess/core/scheduler"
	"github.com/dmolinero/pvbess/core/series"
	"github.com/dmolinero/pvbess/infra/ingest"
	"github.com/dmolinero/pvbess/infra/logger"
	"github.com/dmolinero/pvbess/infra/metrics"
	"github.com/dmolinero/pvbess/infra/mqtt"
	"github.com/dmolinero/pvbess/pkg/export"
)

// Outcome is the result of one simulation: the dispatch trajectory, the KPI
// set and the cost inputs for the derived export columns.
type Outcome struct {
	RunID  string
	Result *scheduler.Result
	KPIs   kpi.KPIs
	Costs  export.Costs
}

// Service owns the long-lived collaborators of the pipeline.
type Service struct {
	cfg  *config.Config
	log  logger.Logger
	sink coremetrics.Sink
	pub  mqtt.Publisher
}

// New assembles a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	sink, err := metrics.NewSinks(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}
	s := &Service{
		cfg:  cfg,
		log:  logger.New("service"),
		sink: sink,
	}
	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPahoPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		s.pub = pub
	}
	return s, nil
}

// Simulate runs the full pipeline under the given configuration, which may
// differ from the service's base config when API overrides are applied.
func (s *Service) Simulate(ctx context.Context, cfg *config.Config) (*Outcome, error) {
	start := time.Now()
	runID := uuid.New().String()

	points, err := ingest.Load(cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sr := series.Derive(points)
	sched, err := scheduler.New(cfg.Simulation.Battery, cfg.Simulation.Dispatch, logger.New("scheduler"))
	if err != nil {
		return nil, err
	}
	res := sched.Run(sr)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k := kpi.Compute(res, cfg.Simulation.Battery, cfg.Economics, cfg.Data.PVMW)
	out := &Outcome{
		RunID:  runID,
		Result: res,
		KPIs:   k,
		Costs:  export.FromKPIs(k, cfg.Simulation.Battery.CapacityMWh),
	}
	s.record(out, time.Since(start))
	s.log.Infof("run %s: %d steps, %d cycles, %d extensions, %d fallbacks in %s",
		runID, sr.Len(), len(res.Cycles), res.Extensions(), res.Fallbacks(), time.Since(start))
	return out, nil
}

// record pushes the run and cycle events to the metrics sink. Sink errors
// are logged, never fatal.
func (s *Service) record(out *Outcome, dur time.Duration) {
	now := time.Now().UTC()
	res := out.Result
	run := coremetrics.RunMetrics{
		RunID:      out.RunID,
		Steps:      res.Series.Len(),
		Cycles:     len(res.Cycles),
		Extensions: res.Extensions(),
		Fallbacks:  res.Fallbacks(),
		Duration:   dur,
		Time:       now,
	}
	for i := range res.Charge {
		run.ChargeMWh += res.Charge[i]
		run.DischargeMWh += res.Discharge[i]
		run.CurtailmentMWh += res.Curtailment[i]
	}
	if err := s.sink.RecordRun(run); err != nil {
		s.log.Errorf("record run metrics: %v", err)
	}
	for _, c := range res.Cycles {
		ev := coremetrics.CycleMetrics{
			RunID: out.RunID, Start: c.Start, End: c.End,
			Extensions: c.Extensions, Fallback: c.Fallback, Time: now,
		}
		if err := s.sink.RecordCycle(ev); err != nil {
			s.log.Errorf("record cycle metrics: %v", err)
		}
	}
}

// Run executes a batch simulation with the base configuration and writes the
// result files into the output directory.
func (s *Service) Run(ctx context.Context) error {
	out, err := s.Simulate(ctx, s.cfg)
	if err != nil {
		return err
	}
	if err := s.writeOutputs(out); err != nil {
		return err
	}
	if s.pub != nil {
		if err := s.publish(out); err != nil {
			s.log.Errorf("publish schedule: %v", err)
		}
	}
	return nil
}

func (s *Service) writeOutputs(out *Outcome) error {
	dir := s.cfg.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := writeFile(filepath.Join(dir, "results.csv"), func(f *os.File) error {
		return export.WriteCSV(f, out.Result, out.Costs)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "results.json"), func(f *os.File) error {
		return export.WriteJSON(f, out.Result, out.Costs)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "kpis.json"), func(f *os.File) error {
		return export.WriteKPIJSON(f, out.KPIs)
	}); err != nil {
		return err
	}
	s.log.Infof("results written to %s", dir)
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// publish sends the dispatch schedule as net battery setpoints.
func (s *Service) publish(out *Outcome) error {
	res := out.Result
	sched := mqtt.Schedule{
		RunID:     out.RunID,
		Setpoints: make([]mqtt.Setpoint, res.Series.Len()),
	}
	for i := range sched.Setpoints {
		sched.Setpoints[i] = mqtt.Setpoint{
			Time:    res.Series.Times[i],
			PowerMW: res.Charge[i] - res.Discharge[i],
		}
	}
	return s.pub.PublishSchedule(sched)
}

// Config returns the service's base configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// Close flushes the metrics sink and disconnects the publisher.
func (s *Service) Close() error {
	if s.pub != nil {
		s.pub.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
