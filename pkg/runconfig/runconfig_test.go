package runconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uint64p(v uint64) *uint64 { return &v }
func uint32p(v uint32) *uint32 { return &v }
func boolp(v bool) *bool       { return &v }

func TestRunRoundTripsThroughJSON(t *testing.T) {
	ts := time.Date(2022, 1, 19, 12, 35, 1, 0, time.UTC)
	original := Run{
		Description: "coincidence counting on channels 3 and 15",
		Version:     "1",
		Timestamp:   &ts,
		Limit: &Limit{
			Kind:     LimitDuration,
			Duration: "15m",
		},
		SaveCounts: boolp(true),
		SaveTags:   &SaveTags{Kind: SaveTagsFlag, Save: true},
		Duration:   uint64p(900),
		Singles: []Single{
			{Channel: 3},
			{Channel: 15, Counts: uint64p(12345)},
		},
		Coincidences: []Coincidence{
			{ChannelA: 3, ChannelB: 15, Window: uint32p(10), Counts: uint64p(42)},
		},
		ChannelSettings: []ChannelSettings{
			{Channel: 3, Invert: boolp(false), Delay: uint32p(0)},
		},
	}

	data, err := json.Marshal(&original)
	require.NoError(t, err)

	var decoded Run
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original, decoded)
}

func TestLoadRejectsDocumentMissingDescription(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"1"}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadDecodesAValidDeclaration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	doc := `{
		"description": "singles on channel 1",
		"singles": [{"channel": 1}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	run, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "singles on channel 1", run.Description)
	require.Len(t, run.Singles, 1)
	assert.Equal(t, uint8(1), run.Singles[0].Channel)
	assert.Nil(t, run.Singles[0].Counts)
}

func TestSaveWritesAValidatedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	run := &Run{
		Description: "recorded singles on channel 1",
		Singles:     []Single{{Channel: 1, Counts: uint64p(99)}},
	}

	require.NoError(t, Save(path, run))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, run.Description, loaded.Description)
	require.Len(t, loaded.Singles, 1)
	require.NotNil(t, loaded.Singles[0].Counts)
	assert.Equal(t, uint64(99), *loaded.Singles[0].Counts)
}

func TestRecordedNamePrefixesTimestamp(t *testing.T) {
	startedAt := time.Date(2022, 1, 19, 12, 35, 1, 0, time.UTC)
	got := RecordedName("myrunfile.json", startedAt)
	assert.Equal(t, "20220119T123501Z-myrunfile.json", got)
}

func TestRecordedTagFileNameReplacesExtension(t *testing.T) {
	got := RecordedTagFileName("20220119T123501Z-myrunfile.json")
	assert.Equal(t, "20220119T123501Z-myrunfile.tags.zst", got)
}
