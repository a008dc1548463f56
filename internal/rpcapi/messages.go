// Package rpcapi exposes the streaming core's capability RPC surface (spec
// §4.G/§6) as two hand-registered gRPC services, Publisher and Tagger, wired
// with a JSON wire codec instead of a generated protobuf one: there is no
// .proto/codegen step, only plain Go structs serialized by encoding/json.
package rpcapi

import "github.com/photontag/tagstreamd/pkg/tagio"

// Empty is the zero-field request/response for RPCs with nothing to say.
type Empty struct{}

// PatternSub is one entry of a ServiceSub's windowed pattern request; Window
// of zero means "use the global window" (§4.E).
type PatternSub struct {
	Patmask uint16
	Window  uint32
}

// ServiceSub is the subscribe request: a tag mask plus the pattern set the
// caller wants counts for.
type ServiceSub struct {
	Tagmask  uint16
	Patterns []PatternSub
}

// ServicePub is one pushed frame (§6's ServicePub schema type).
type ServicePub struct {
	Duration uint64
	Tagmask  uint16
	Tags     [][]tagio.Tag
	Patterns []tagio.PatternCount
}

// InputKind identifies which field of an InputSettings request is set.
type InputKind int

const (
	InputInversion InputKind = iota
	InputDelay
	InputThreshold
)

// InputSettings is the tagged-union set_input request (§4.G).
type InputSettings struct {
	Kind      InputKind
	Channel   uint8
	Invert    bool
	DelayTick uint32
	Volts     float64
}

// Inputs is the get_inputs response.
type Inputs struct {
	InversionMask uint16
	Delays        [16]uint32
	Thresholds    [16]float64
}

// Mode mirrors acquisition.Mode on the wire.
type Mode int32

const (
	ModeTimetag Mode = iota
	ModeLogic
)

// ModeResponse is query_mode's response.
type ModeResponse struct {
	Mode Mode
}

// WindowRequest is set_window's request.
type WindowRequest struct {
	Window uint32
}

// WindowResponse is get_window's response.
type WindowResponse struct {
	Window uint32
}

// JobReq is submit_job's request.
type JobReq struct {
	Patterns []uint16
	Duration uint64
	Handle   string
}

// JobStatus mirrors the §6 JobStatus enum.
type JobStatus int32

const (
	JobWaiting JobStatus = iota
	JobReady
	JobCancelled
	JobClaimed
	JobBadID
	JobRefused
)

var jobStatusNames = [...]string{"waiting", "ready", "cancelled", "claimed", "bad_id", "refused"}

// String implements fmt.Stringer, used for logging and telemetry payloads.
func (s JobStatus) String() string {
	if int(s) < 0 || int(s) >= len(jobStatusNames) {
		return "unknown"
	}
	return jobStatusNames[s]
}

// JobSubmission is submit_job's response: either a fresh job id or a refusal.
type JobSubmission struct {
	Refused bool
	Status  JobStatus
	ID      uint64
}

// JobIDRequest names a job for query_job_done/get_results/cancel_job.
type JobIDRequest struct {
	ID uint64
}

// JobStatusResponse is query_job_done's (and cancel_job's) response.
type JobStatusResponse struct {
	Status JobStatus
}

// Job is the §4.H/§6 job payload returned by get_results.
type Job struct {
	ID         uint64
	Patterns   []uint16
	Events     []uint64
	Window     int64
	Duration   uint64
	Finished   bool
	StartTag   int64
	StopTag    int64
	Meta       string
	Resolution float64
	Handle     string
}

// JobPayload is get_results' response: either a bad-query status or a payload.
type JobPayload struct {
	BadQuery bool
	Status   JobStatus
	Job      Job
}

// RecordingRequest is set_recording's request (DESIGN.md Open Question: who
// drives §4.J's Save/Reset messages). Enable true starts forwarding live
// frames into the tag file writer, opening it at Path (auto-generated when
// empty); Enable false stops forwarding and closes the currently open file.
type RecordingRequest struct {
	Enable bool
	Path   string
}
