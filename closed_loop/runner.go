package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"carctrl-core/closed_loop/carcontroller"
	"carctrl-core/metrics"
	"carctrl-core/telemetry"
	"carctrl-core/utils"
)

// staleAfter is how long vehicle data may be missing before lateral
// control is withheld.
const staleAfter = 500 * time.Millisecond

type RunnerConfig struct {
	Interface string
	// CamInterface is the camera-side bus, read for the stock camera
	// frames we forward. Empty when the camera shares Interface.
	CamInterface  string
	MapPath       string
	ScenarioPath  string
	ParamsPath    string
	CarModel      string
	TelemetryPath string
}

type Runner struct {
	cfg    RunnerConfig
	log    *utils.Logger
	cmap   *utils.CANMap
	scen   Scenario
	params carcontroller.CarParams

	ctrl   *carcontroller.Controller
	packer *Packer
	state  *CarState
	pid    *SpeedPID

	writer  utils.CANWriter
	readers []utils.CANReader
	rec     *telemetry.Recorder

	stopping  atomic.Bool
	staleWarn bool
}

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	cmap, err := utils.LoadCANMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}

	scen, err := LoadScenario(cfg.ScenarioPath)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}

	params, err := LoadCarParams(cfg.ParamsPath, cfg.CarModel)
	if err != nil {
		return nil, fmt.Errorf("load car params: %w", err)
	}

	bus, err := utils.NewSocketCAN(ctx, cfg.Interface)
	if err != nil {
		return nil, err
	}
	readers := []utils.CANReader{bus}

	if cfg.CamInterface != "" && cfg.CamInterface != cfg.Interface {
		cam, err := utils.NewSocketCAN(ctx, cfg.CamInterface)
		if err != nil {
			_ = bus.Close()
			return nil, err
		}
		readers = append(readers, cam)
	}

	r, err := newRunner(cfg, log, cmap, scen, params, bus, readers...)
	if err != nil {
		r.Close()
		return nil, err
	}

	if cfg.TelemetryPath != "" {
		rec, err := telemetry.Open(ctx, cfg.TelemetryPath, telemetry.RunInfo{
			Car:        params.Model,
			Generation: params.Generation.String(),
			Scenario:   scen.Meta.Name,
		})
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open telemetry: %w", err)
		}
		r.rec = rec
		log.Info("Telemetry run %s -> %s", rec.RunID(), cfg.TelemetryPath)
	}

	return r, nil
}

// newRunner wires a runner over already opened transports. The returned
// runner owns them even when an error is returned.
func newRunner(cfg RunnerConfig, log *utils.Logger, cmap *utils.CANMap, scen Scenario,
	params carcontroller.CarParams, writer utils.CANWriter, readers ...utils.CANReader,
) (*Runner, error) {
	r := &Runner{
		cfg:     cfg,
		log:     log,
		cmap:    cmap,
		scen:    scen,
		params:  params,
		writer:  writer,
		readers: readers,
		state:   NewCarState(params),
	}

	ctrl, err := carcontroller.New(params)
	if err != nil {
		return r, fmt.Errorf("controller: %w", err)
	}
	r.ctrl = ctrl

	packer, err := NewPacker(cmap, params.Generation)
	if err != nil {
		return r, fmt.Errorf("packer: %w", err)
	}
	r.packer = packer

	if scen.SpeedPID != nil {
		r.pid = NewSpeedPID(*scen.SpeedPID)
		log.Info("Speed PID: Kp=%.2f Ki=%.2f Kd=%.2f accel=[%.1f, %.1f]",
			scen.SpeedPID.Kp, scen.SpeedPID.Ki, scen.SpeedPID.Kd, scen.SpeedPID.MinAccel, scen.SpeedPID.MaxAccel)
	}

	return r, nil
}

func (r *Runner) Close() {
	r.closeReaders()
	if r.writer != nil {
		_ = r.writer.Close()
	}
	if r.rec != nil {
		if err := r.rec.Close(context.Background()); err != nil {
			r.log.Error("Telemetry close failed: %v", err)
		}
		r.rec = nil
	}
}

func (r *Runner) closeReaders() {
	r.stopping.Store(true)
	for _, rd := range r.readers {
		_ = rd.Close()
	}
}

// Run drives the controller at DT until the scenario ends or ctx is done.
// Receive loops run alongside and stop with it.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting control: car=%s gen=%s interceptor=%v iface=%s scenario=%s duration=%.2fs",
		r.params.Model, r.params.Generation, r.params.Limits.EnableTorqueInterceptor,
		r.cfg.Interface, r.scen.Meta.Name, r.scen.Timing.DurationS)

	g, gctx := errgroup.WithContext(ctx)
	for _, rd := range r.readers {
		rd := rd
		g.Go(func() error { return r.receiveLoop(gctx, rd) })
	}
	g.Go(func() error {
		defer r.closeReaders()
		return r.controlLoop(gctx)
	})
	return g.Wait()
}

func (r *Runner) controlLoop(ctx context.Context) error {
	start := time.Now()
	ticker := time.NewTicker(carcontroller.DT)
	defer ticker.Stop()

	endAfter := time.Duration(r.scen.Timing.DurationS * float64(time.Second))

	for {
		select {
		case <-ctx.Done():
			r.log.Warn("Context canceled; stopping control at frame %d", r.ctrl.State().Frame)
			return ctx.Err()

		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if elapsed > endAfter {
				r.log.Info("Completed run. cycles=%d", r.ctrl.State().Frame)
				return nil
			}
			if err := r.step(ctx, elapsed.Seconds(), now); err != nil {
				return err
			}
		}
	}
}

// step runs one control cycle at scenario time t and transmits its
// commands in order.
func (r *Runner) step(ctx context.Context, t float64, now time.Time) error {
	began := time.Now()
	model := r.params.Model

	in := r.state.Input()
	intent := EvalIntent(&r.scen, t)
	if target, ok := TargetSpeedKph(&r.scen, t); ok {
		intent.Accel = r.pid.Update(target, r.state.SpeedKph(), carcontroller.DT.Seconds())
	} else if r.pid != nil {
		r.pid.Reset()
	}

	if age, ok := r.state.Age(frameEngineData, now); !ok || age > staleAfter {
		if intent.LatActive && !r.staleWarn {
			if ok {
				r.log.Warn("No %s for %v; withholding lateral control", frameEngineData, age)
			} else {
				r.log.Warn("No %s received yet; withholding lateral control", frameEngineData)
			}
			r.staleWarn = true
		}
		intent.LatActive = false
	} else if r.staleWarn {
		r.log.Info("%s back after %v", frameEngineData, age)
		r.staleWarn = false
	}

	frame := r.ctrl.State().Frame
	report, cmds := r.ctrl.Update(in, intent)

	for _, cmd := range cmds {
		f, err := r.packer.Pack(cmd)
		if err != nil {
			r.log.Error("Encode failed at t=%.3f: %v", t, err)
			return err
		}
		if err := r.writer.WriteFrame(ctx, f); err != nil {
			r.log.Critical("Transmit failed at t=%.3f: %v", t, err)
			return fmt.Errorf("transmit %s: %w", cmd.Kind, err)
		}
		metrics.TxFramesTotal.WithLabelValues(model, r.cmap.ByID[f.ID].Name).Inc()
		r.log.Trace("TX t=%.3f frame=%d kind=%s id=0x%X data=% X",
			t, frame, cmd.Kind, f.ID, f.Data[:f.Length])
	}

	metrics.ObserveCycle(model, report, cmds, time.Since(began), carcontroller.DT)

	if r.rec != nil {
		if err := r.rec.Record(ctx, telemetry.NewSample(frame, t, report, cmds)); err != nil {
			r.log.Error("Telemetry disabled: %v", err)
			_ = r.rec.Close(ctx)
			r.rec = nil
		}
	}

	if every := r.statusEvery(); every > 0 && frame%every == 0 {
		r.log.Debug("t=%.2f steer=%d ti=%d driver=%.0f standstill=%v cmds=%d",
			t, report.SteerOutputCAN, report.InterceptorSteerOutputCAN, in.DriverTorque, in.Standstill, len(cmds))
	}
	return nil
}

func (r *Runner) statusEvery() uint64 {
	if r.scen.Timing.LogHz <= 0 {
		return 0
	}
	n := math.Round(1 / (r.scen.Timing.LogHz * carcontroller.DT.Seconds()))
	return uint64(math.Max(n, 1))
}

func (r *Runner) receiveLoop(ctx context.Context, rd utils.CANReader) error {
	log := r.log.With("rx")
	log.Debug("RX loop started")
	defer log.Debug("RX loop stopped")

	model := r.params.Model
	for {
		f, err := rd.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || r.stopping.Load() {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("receive: bus closed")
			}
			return fmt.Errorf("receive: %w", err)
		}

		name, values, err := r.cmap.DecodeEinrideFrame(f)
		if err != nil {
			metrics.RxDropped.WithLabelValues(model, metrics.DropUnknown).Inc()
			log.Trace("RX skip id=0x%X: %v", f.ID, err)
			continue
		}
		if !r.cmap.ValidChecksum(f) {
			metrics.RxDropped.WithLabelValues(model, metrics.DropChecksum).Inc()
			log.Debug("RX bad checksum %s data=% X", name, f.Data[:f.Length])
			continue
		}

		r.state.Update(name, values, time.Now())
		metrics.RxFramesTotal.WithLabelValues(model, name).Inc()
		log.Trace("RX %s id=0x%X data=% X", name, f.ID, f.Data[:f.Length])
	}
}
