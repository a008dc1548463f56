// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config owns the process-wide Keys value cmd/tagstreamd populates
// at startup from a JSON document, the way the teacher's internal/config
// owns schema.ProgramConfig.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/photontag/tagstreamd/internal/acquisition"
	"github.com/photontag/tagstreamd/internal/tagfile"
	"github.com/photontag/tagstreamd/internal/telemetry"
	"github.com/photontag/tagstreamd/pkg/log"
)

// AcquisitionKeys configures internal/acquisition.Controller and the
// internal/timer.Timer that drives it.
type AcquisitionKeys struct {
	Mode         string  `json:"mode"`
	Calibrate    bool    `json:"calibrate"`
	DefaultVolts float64 `json:"default-volts"`
	FGPeriod     uint32  `json:"fg-period"`
	FGHigh       uint32  `json:"fg-high"`
	PinnedWindow uint32  `json:"pinned-window"`
	TickPeriod   string  `json:"tick-period"`
}

// AcquisitionMode maps the configured mode string to acquisition.Mode,
// defaulting to ModeTimetag for an empty or unrecognized value.
func (k AcquisitionKeys) AcquisitionMode() acquisition.Mode {
	if k.Mode == "logic" {
		return acquisition.ModeLogic
	}
	return acquisition.ModeTimetag
}

// JobManagerKeys configures internal/jobmanager.Manager.
type JobManagerKeys struct {
	TickPeriodTicks uint64  `json:"tick-period-ticks"`
	Resolution      float64 `json:"resolution"`
}

// HousekeepingKeys configures internal/housekeeping.Scheduler's registered
// jobs; each duration field is parsed with time.ParseDuration.
type HousekeepingKeys struct {
	TagFileRotation   string `json:"tag-file-rotation"`
	StaleJobSweep     string `json:"stale-job-sweep"`
	StaleJobMaxCycles uint64 `json:"stale-job-max-cycles"`
	ThroughputLog     string `json:"throughput-log"`
}

// Config is the top-level process configuration document.
type Config struct {
	Addr         string            `json:"addr"`
	DebugAddr    string            `json:"debug-addr"`
	Acquisition  AcquisitionKeys   `json:"acquisition"`
	JobManager   JobManagerKeys    `json:"job-manager"`
	TagFile      tagfile.Config    `json:"tag-file"`
	Telemetry    *telemetry.Config `json:"telemetry,omitempty"`
	Housekeeping HousekeepingKeys  `json:"housekeeping"`
}

// Keys holds the running process's configuration, populated by Init.
var Keys = Config{
	Addr:      ":9090",
	DebugAddr: ":8080",
	Acquisition: AcquisitionKeys{
		Mode:         "timetag",
		DefaultVolts: -0.5,
		TickPeriod:   "10ms",
	},
	JobManager: JobManagerKeys{
		TickPeriodTicks: 2_000_000, // 10ms at 5ns/tick, the acquisition tick period
		Resolution:      5e-9,
	},
	TagFile: tagfile.Config{Kind: "fs", Directory: "./var/tags"},
	Housekeeping: HousekeepingKeys{
		TagFileRotation:   "24h",
		StaleJobSweep:     "1m",
		StaleJobMaxCycles: 10080, // remaining-cycle count above which a waiting job is logged
		ThroughputLog:     "10s",
	},
}

// Init reads flagConfigFile, validates it against configSchema, and decodes
// it over Keys' defaults. A missing file is not an error (the defaults
// above are used as-is); any other read, validation, or decode failure is
// fatal, mirroring the teacher's own Init.
func Init(flagConfigFile string) {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatal(err)
		}
		return
	}

	if err := Validate(configSchema, raw); err != nil {
		log.Fatalf("config: validate: %v", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		log.Fatal(err)
	}
}
