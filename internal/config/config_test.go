// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photontag/tagstreamd/internal/acquisition"
)

func TestInitMissingFileKeepsDefaults(t *testing.T) {
	Keys = Config{Addr: ":9090"}
	Init(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Equal(t, ":9090", Keys.Addr)
}

func TestInitDecodesOverridesOntoDefaults(t *testing.T) {
	Keys = Config{Addr: ":9090", DebugAddr: ":8080"}
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"addr":"0.0.0.0:443","acquisition":{"mode":"logic"}}`), 0o644))

	Init(path)
	assert.Equal(t, "0.0.0.0:443", Keys.Addr)
	assert.Equal(t, ":8080", Keys.DebugAddr)
	assert.Equal(t, "logic", Keys.Acquisition.Mode)
}

func TestAcquisitionModeDefaultsToTimetagOnUnrecognizedValue(t *testing.T) {
	k := AcquisitionKeys{}
	assert.Equal(t, acquisition.ModeTimetag, k.AcquisitionMode())

	k.Mode = "logic"
	assert.Equal(t, acquisition.ModeLogic, k.AcquisitionMode())
}
