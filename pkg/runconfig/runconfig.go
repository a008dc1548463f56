// Package runconfig decodes and validates the recording-run document (spec
// §6 "Configuration file"): the structured JSON description of what a tag
// acquisition run should capture, and — once a run has executed — what it
// actually captured. Declaration and recording share one Run type, the way
// tagtools::cfg::Run's optional fields are filled in progressively between
// declaring and recording a run (rwpeterson/tagger's tagsave tool); only the
// JSON schema validation approach (santhosh-tekuri/jsonschema/v5,
// CompileString-then-Validate) is carried over from the teacher's
// internal/config/validate.go, since the document shape itself has no
// teacher analogue.
package runconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LimitKind discriminates Limit's tagged-union fields.
type LimitKind int

const (
	LimitNone LimitKind = iota
	LimitDuration
	LimitSingles
	LimitCoincidence
)

// Limit caps a run by wall-clock duration or by event count on a singles or
// coincidence pattern.
type Limit struct {
	Kind              LimitKind `json:"kind"`
	Duration          string    `json:"duration,omitempty"` // parsed with time.ParseDuration
	SinglesChannel    uint8     `json:"singles-channel,omitempty"`
	SinglesCounts     uint64    `json:"singles-counts,omitempty"`
	CoincidenceA      uint8     `json:"coincidence-a,omitempty"`
	CoincidenceB      uint8     `json:"coincidence-b,omitempty"`
	CoincidenceWindow uint32    `json:"coincidence-window,omitempty"`
	CoincidenceCounts uint64    `json:"coincidence-counts,omitempty"`
}

// SaveTagsKind discriminates SaveTags' tagged-union fields.
type SaveTagsKind int

const (
	SaveTagsNone SaveTagsKind = iota
	SaveTagsFlag
	SaveTagsFile
)

// SaveTags either flags whether tags should be saved at all, or (once
// recorded) names the file they were saved to.
type SaveTags struct {
	Kind SaveTagsKind `json:"kind"`
	Save bool         `json:"save,omitempty"`
	Path string       `json:"path,omitempty"`
}

// Single declares (Counts nil) or records (Counts set) a singles pattern.
type Single struct {
	Channel uint8   `json:"channel"`
	Counts  *uint64 `json:"counts,omitempty"`
}

// Coincidence declares a channel pair, optionally with a window, and once
// recorded carries its observed count too.
type Coincidence struct {
	ChannelA uint8   `json:"channel-a"`
	ChannelB uint8   `json:"channel-b"`
	Window   *uint32 `json:"window,omitempty"`
	Counts   *uint64 `json:"counts,omitempty"`
}

// ChannelSettings records the stateful per-channel instrument settings that
// were in effect for a run. All three fields are optional: channel settings
// persist on the instrument across runs, so a declaration only needs to set
// what it wants to change.
type ChannelSettings struct {
	Channel   uint8    `json:"channel"`
	Invert    *bool    `json:"invert,omitempty"`
	Delay     *uint32  `json:"delay,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// Run is a recording-run document: either a declaration of what to capture,
// or (once Timestamp and the per-pattern Counts/Duration are filled in) a
// record of what was captured.
type Run struct {
	Description     string            `json:"description"`
	Version         string            `json:"version,omitempty"`
	Timestamp       *time.Time        `json:"timestamp,omitempty"`
	Limit           *Limit            `json:"limit,omitempty"`
	SaveCounts      *bool             `json:"save-counts,omitempty"`
	SaveTags        *SaveTags         `json:"save-tags,omitempty"`
	Tagmask         *uint16           `json:"tagmask,omitempty"`
	Duration        *uint64           `json:"duration,omitempty"`
	Singles         []Single          `json:"singles,omitempty"`
	Coincidences    []Coincidence     `json:"coincidences,omitempty"`
	ChannelSettings []ChannelSettings `json:"channel-settings,omitempty"`
}

// Load reads, validates, and decodes a Run document from path.
func Load(path string) (*Run, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runconfig: read %s: %w", path, err)
	}
	if err := Validate(raw); err != nil {
		return nil, fmt.Errorf("runconfig: validate %s: %w", path, err)
	}
	var run Run
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("runconfig: decode %s: %w", path, err)
	}
	return &run, nil
}

// Save validates and writes run to path, overwriting any existing file.
func Save(path string, run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("runconfig: encode: %w", err)
	}
	if err := Validate(data); err != nil {
		return fmt.Errorf("runconfig: validate before save: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("runconfig: write %s: %w", path, err)
	}
	return nil
}

// RecordedName derives the output filename for a recorded run from the
// declaration's path, prefixing the UTC timestamp the run started at —
// "myrunfile.json" -> "20220119T123501Z-myrunfile.json".
func RecordedName(declarationPath string, startedAt time.Time) string {
	dir, file := filepath.Split(declarationPath)
	return filepath.Join(dir, startedAt.UTC().Format("20060102T150405Z")+"-"+file)
}

// RecordedTagFileName derives the companion tag-file name for a recorded
// run, e.g. "20220119T123501Z-myrunfile.tags.zst" alongside
// "20220119T123501Z-myrunfile.json".
func RecordedTagFileName(recordedJSONPath string) string {
	ext := filepath.Ext(recordedJSONPath)
	return recordedJSONPath[:len(recordedJSONPath)-len(ext)] + ".tags.zst"
}
