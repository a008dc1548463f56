// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/photontag/tagstreamd/internal/acquisition"
	"github.com/photontag/tagstreamd/internal/config"
	"github.com/photontag/tagstreamd/internal/debugapi"
	"github.com/photontag/tagstreamd/internal/device"
	"github.com/photontag/tagstreamd/internal/housekeeping"
	"github.com/photontag/tagstreamd/internal/jobmanager"
	"github.com/photontag/tagstreamd/internal/metrics"
	"github.com/photontag/tagstreamd/internal/processor"
	"github.com/photontag/tagstreamd/internal/publisher"
	"github.com/photontag/tagstreamd/internal/registry"
	"github.com/photontag/tagstreamd/internal/rpcapi"
	"github.com/photontag/tagstreamd/internal/tagfile"
	"github.com/photontag/tagstreamd/internal/telemetry"
	"github.com/photontag/tagstreamd/internal/timer"
	"github.com/photontag/tagstreamd/pkg/log"
	"github.com/photontag/tagstreamd/pkg/runtimeenv"
	"github.com/photontag/tagstreamd/pkg/tagio"
)

func main() {
	var flagGops bool
	var flagConfigFile string
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default config options by those specified in `config.json`")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := runtimeenv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	config.Init(flagConfigFile)
	cfg := config.Keys

	done := make(chan struct{})
	shutdown := make(chan struct{}, 1)

	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg)

	settings := make(chan registry.SettingEvent)
	reg2 := registry.New(cfg.Acquisition.PinnedWindow, settings)
	reg2.SetMetrics(collectors)

	var telemetryPub *telemetry.Publisher
	var errSink acquisition.ErrorSink
	var jobEventSink jobmanager.EventSink
	if cfg.Telemetry != nil {
		var err error
		telemetryPub, err = telemetry.New(*cfg.Telemetry)
		if err != nil {
			log.Fatalf("telemetry: %v", err)
		}
		defer telemetryPub.Close()
		errSink = telemetryPub
		jobEventSink = telemetryPub
	}

	jobs := jobmanager.New(cfg.JobManager.TickPeriodTicks, cfg.JobManager.Resolution, jobEventSink, done)

	var rate [device.NumChannels]float64
	for i := range rate {
		rate[i] = 1000
	}
	dev := device.NewSimDevice(time.Now().UnixNano(), rate)

	rawFrames := make(chan *tagio.RawFrame, 5)
	pubFrames := make(chan *tagio.PubFrame)

	tickPeriod, err := time.ParseDuration(cfg.Acquisition.TickPeriod)
	if err != nil {
		log.Fatalf("config: acquisition.tick-period: %v", err)
	}
	tm := timer.New(tickPeriod)

	acqCfg := acquisition.Config{
		Mode:         cfg.Acquisition.AcquisitionMode(),
		Calibrate:    cfg.Acquisition.Calibrate,
		DefaultVolts: cfg.Acquisition.DefaultVolts,
		FGPeriod:     cfg.Acquisition.FGPeriod,
		FGHigh:       cfg.Acquisition.FGHigh,
		PinnedWindow: cfg.Acquisition.PinnedWindow,
		TagChanCap:   cap(rawFrames),
	}
	controller := acquisition.New(acqCfg, dev, reg2, jobs, errSink, tm.Ticks(), settings, rawFrames, shutdown)

	proc := processor.New(reg2, cfg.Acquisition.PinnedWindow, rawFrames, pubFrames)

	pub := publisher.New(reg2, pubFrames)
	pub.SetMetrics(collectors)

	backend, err := tagfile.NewBackend(cfg.TagFile)
	if err != nil {
		log.Fatalf("tagfile: %v", err)
	}
	writer := tagfile.New(backend, done)

	grpcServer := grpc.NewServer()
	rpcServer := rpcapi.NewServer(reg2, jobs, controller)
	rpcServer.SetRecorder(writer)
	rpcapi.RegisterPublisherServer(grpcServer, rpcServer)
	rpcapi.RegisterTaggerServer(grpcServer, rpcServer)

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Fatal(err)
	}

	dbg := debugapi.New(cfg.DebugAddr, reg)
	dbg.RegisterCheck("device", deviceHealth{dev: dev})

	hk, err := housekeeping.New()
	if err != nil {
		log.Fatalf("housekeeping: %v", err)
	}
	rotationPeriod, err := time.ParseDuration(cfg.Housekeeping.TagFileRotation)
	if err != nil {
		log.Fatalf("housekeeping: tag-file-rotation: %v", err)
	}
	if err := hk.RegisterTagFileRotation(writer, rotationPeriod); err != nil {
		log.Fatalf("housekeeping: %v", err)
	}
	sweepPeriod, err := time.ParseDuration(cfg.Housekeeping.StaleJobSweep)
	if err != nil {
		log.Fatalf("housekeeping: stale-job-sweep: %v", err)
	}
	if err := hk.RegisterStaleJobSweep(jobs, sweepPeriod, cfg.Housekeeping.StaleJobMaxCycles); err != nil {
		log.Fatalf("housekeeping: %v", err)
	}
	throughputPeriod, err := time.ParseDuration(cfg.Housekeeping.ThroughputLog)
	if err != nil {
		log.Fatalf("housekeeping: throughput-log: %v", err)
	}
	frames := &housekeeping.Counter{}
	if err := hk.RegisterThroughputLog("frames", frames, throughputPeriod); err != nil {
		log.Fatalf("housekeeping: %v", err)
	}
	if err := hk.RegisterFunc("gauge-sync", func() {
		collectors.SetJobsWaiting(len(jobs.WaitingSnapshot()))
		collectors.SetSubscriberCount(reg2.SubscriberCount())
	}, time.Second); err != nil {
		log.Fatalf("housekeeping: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tm.Run(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := controller.Run(ctx); err != nil {
			log.Errorf("acquisition: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		proc.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		pub.Run(ctx)
	}()

	hk.Start()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("rpcapi: gRPC server listening at %s", cfg.Addr)
		if err := grpcServer.Serve(listener); err != nil {
			log.Errorf("rpcapi: serve: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("debugapi: HTTP server listening at %s", cfg.DebugAddr)
		if err := dbg.ListenAndServe(); err != nil {
			log.Errorf("debugapi: serve: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		log.Info("tagstreamd: received shutdown signal")
	case <-shutdown:
		log.Warn("tagstreamd: pipeline initiated shutdown (backpressure failure)")
	}

	runtimeenv.SystemdNotify(false, "shutting down")
	close(done)
	cancel()
	grpcServer.GracefulStop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := dbg.Shutdown(shutdownCtx); err != nil {
		log.Warnf("debugapi: shutdown: %v", err)
	}
	if err := hk.Shutdown(); err != nil {
		log.Warnf("housekeeping: shutdown: %v", err)
	}

	wg.Wait()
	log.Info("tagstreamd: graceful shutdown completed")
}

// deviceHealth reports a device unhealthy if its FPGA version cannot be
// read, for debugapi's /healthz.
type deviceHealth struct {
	dev device.Device
}

func (h deviceHealth) Healthy() error {
	if h.dev.GetFPGAVersion() < 0 {
		return fmt.Errorf("device: unexpected FPGA version")
	}
	return nil
}
