package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"carctrl-core/metrics"
	"carctrl-core/utils"
)

func main() {
	var (
		iface     = flag.String("iface", "vcan0", "SocketCAN interface of the vehicle bus")
		camIface  = flag.String("cam-iface", "", "SocketCAN interface of the camera bus (default: same as -iface)")
		mapPath   = flag.String("map", "config/can/can_map.csv", "Path to can_map.csv")
		scenPath  = flag.String("scenario", "config/scenarios/lane_keep_slalom_60s.json", "Scenario JSON file")
		params    = flag.String("params", "config/cars.yaml", "Car calibration YAML")
		car       = flag.String("car", "cx5", "Car model key in the calibration file")
		logLevel  = flag.String("log", "info", "trace|debug|info|warn|error|critical")
		metricsAt = flag.String("metrics", "", "Serve Prometheus metrics on this address, e.g. :9102")
		telemetry = flag.String("telemetry", "", "Record every cycle to this SQLite file")
	)
	flag.Parse()

	log, err := utils.NewFileLogger("closed_loop.log", utils.ParseLevel(*logLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open closed_loop.log: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	cfg := RunnerConfig{
		Interface:     *iface,
		CamInterface:  *camIface,
		MapPath:       *mapPath,
		ScenarioPath:  *scenPath,
		ParamsPath:    *params,
		CarModel:      *car,
		TelemetryPath: *telemetry,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *metricsAt != "" {
		mlog := log.With("metrics")
		go func() {
			if err := metrics.Serve(ctx, *metricsAt); err != nil {
				mlog.Error("%v", err)
			}
		}()
		mlog.Info("Serving on %s", *metricsAt)
	}

	runner, err := NewRunner(ctx, cfg, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}

	err = runner.Run(ctx)
	runner.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		os.Exit(1)
	}
}
