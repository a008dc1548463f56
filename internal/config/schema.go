// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// configSchema validates the top-level process config document: listen
// addresses plus the per-component settings handed to internal/acquisition,
// internal/jobmanager, internal/tagfile, internal/telemetry, and
// internal/housekeeping at startup.
var configSchema = `
	{
  "type": "object",
  "properties": {
    "addr": {
      "description": "gRPC listen address for the rpcapi service (e.g. 'localhost:9090').",
      "type": "string"
    },
    "debug-addr": {
      "description": "HTTP listen address for /metrics and /healthz.",
      "type": "string"
    },
    "acquisition": {
      "type": "object",
      "properties": {
        "mode": {"type": "string", "enum": ["timetag", "logic"]},
        "calibrate": {"type": "boolean"},
        "default-volts": {"type": "number"},
        "fg-period": {"type": "integer", "minimum": 0},
        "fg-high": {"type": "integer", "minimum": 0},
        "pinned-window": {"type": "integer", "minimum": 0},
        "tick-period": {"type": "string"}
      }
    },
    "job-manager": {
      "type": "object",
      "properties": {
        "tick-period-ticks": {"type": "integer", "minimum": 1},
        "resolution": {"type": "number"}
      }
    },
    "tag-file": {
      "type": "object",
      "properties": {
        "kind": {"type": "string", "enum": ["fs", "s3"]},
        "directory": {"type": "string"},
        "bucket": {"type": "string"},
        "prefix": {"type": "string"},
        "region": {"type": "string"},
        "endpoint": {"type": "string"},
        "use-path-style": {"type": "boolean"},
        "access-key-id": {"type": "string"},
        "secret-access-key": {"type": "string"}
      }
    },
    "telemetry": {
      "type": ["object", "null"],
      "properties": {
        "address": {"type": "string"},
        "username": {"type": "string"},
        "password": {"type": "string"},
        "creds-file-path": {"type": "string"}
      }
    },
    "housekeeping": {
      "type": "object",
      "properties": {
        "tag-file-rotation": {"type": "string"},
        "stale-job-sweep": {"type": "string"},
        "stale-job-max-cycles": {"type": "integer", "minimum": 0},
        "throughput-log": {"type": "string"}
      }
    }
  },
  "required": ["addr"]
}`
