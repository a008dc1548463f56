package rpcapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/photontag/tagstreamd/internal/publisher"
	"github.com/photontag/tagstreamd/internal/registry"
	"github.com/photontag/tagstreamd/pkg/bitmask"
	"github.com/photontag/tagstreamd/pkg/log"
	"github.com/photontag/tagstreamd/pkg/tagio"
)

// Registry is the subset of *registry.Registry the RPC server depends on.
type Registry interface {
	Subscribe(tagmask uint16, patterns []tagio.PatternKey, client registry.Pusher) *registry.Subscription
	SetInversionMask(mask uint16)
	SetDelay(ch uint8, ticks uint32)
	SetThreshold(ch uint8, volts float64)
	SetWindow(ticks uint32)
	GetWindow() uint32
	GetInputs() registry.Inputs
}

// JobManager is the subset of the batch job manager the Tagger service
// depends on (§4.G/§4.H); implemented by internal/jobmanager.Manager.
type JobManager interface {
	SubmitJob(patterns []uint16, durationTicks uint64, handle string) (id uint64, refused bool)
	QueryJobDone(id uint64) JobStatus
	GetResults(id uint64) (Job, JobStatus, bool)
	CancelJob(id uint64) JobStatus
}

// ModeQuerier reports the acquisition mode the controller was started in.
type ModeQuerier interface {
	Mode() Mode
}

// Recorder is the subset of *internal/tagfile.Writer the recording toggle
// (§4.J) depends on: it is optional (nil-safe), the same way
// internal/acquisition.ErrorSink and internal/jobmanager.EventSink are.
type Recorder interface {
	Save(tags []tagio.Tag, path string) error
	Reset() error
}

// Server implements both PublisherServer and TaggerServer against a shared
// Registry and JobManager.
type Server struct {
	reg      Registry
	jobs     JobManager
	mode     ModeQuerier
	recorder Recorder // optional; nil until SetRecorder is called

	recMu  sync.Mutex
	recSub *registry.Subscription
}

// NewServer constructs an RPC server backed by reg and jobs.
func NewServer(reg Registry, jobs JobManager, mode ModeQuerier) *Server {
	return &Server{reg: reg, jobs: jobs, mode: mode}
}

// SetRecorder wires the optional tag-file recording toggle. Without it,
// SetRecording refuses every request.
func (s *Server) SetRecorder(r Recorder) {
	s.recorder = r
}

// grpcPusher adapts a streaming Subscribe call into a registry.Pusher: each
// Push call is one frame sent down the subscriber's own stream.
type grpcPusher struct {
	stream Publisher_SubscribeServer
}

func (p *grpcPusher) Push(msg any) error {
	m, ok := msg.(*publisher.Message)
	if !ok {
		return fmt.Errorf("rpcapi: unexpected push payload type %T", msg)
	}
	pub := &ServicePub{
		Duration: m.Duration,
		Tagmask:  m.Tagmask,
		Tags:     m.TagChunks,
		Patterns: m.Patterns,
	}
	return p.stream.Send(pub)
}

// Subscribe registers the caller as a subscriber and blocks, pushing frames
// down the stream, until the client disconnects or the stream's context is
// cancelled; at that point the subscription is released.
func (s *Server) Subscribe(req *ServiceSub, stream Publisher_SubscribeServer) error {
	keys := make([]tagio.PatternKey, 0, len(req.Patterns))
	for _, p := range req.Patterns {
		keys = append(keys, tagio.PatternKey{Patmask: p.Patmask, Window: p.Window})
	}

	sub := s.reg.Subscribe(req.Tagmask, keys, &grpcPusher{stream: stream})
	defer sub.Release()

	log.Infof("rpcapi: subscriber %d registered (tagmask=%#04x, %d patterns)", sub.ID(), req.Tagmask, len(keys))
	<-stream.Context().Done()
	log.Infof("rpcapi: subscriber %d disconnected", sub.ID())
	return stream.Context().Err()
}

// recordingPusher is the Pusher a recording subscription hands to the
// registry: every pushed frame's tag chunks are appended to the open
// recording instead of going out over a gRPC stream.
type recordingPusher struct {
	recorder Recorder
	path     string
}

func (p *recordingPusher) Push(msg any) error {
	m, ok := msg.(*publisher.Message)
	if !ok {
		return fmt.Errorf("rpcapi: unexpected push payload type %T", msg)
	}
	for _, chunk := range m.TagChunks {
		if err := p.recorder.Save(chunk, p.path); err != nil {
			return err
		}
	}
	return nil
}

// SetRecording starts or stops forwarding live frames into the tag file
// writer (§4.J). The core itself never inspects recorded data; this is
// only the toggle the companion recording tool drives.
func (s *Server) SetRecording(_ context.Context, req *RecordingRequest) (*Empty, error) {
	if s.recorder == nil {
		return nil, fmt.Errorf("rpcapi: recording not configured")
	}

	s.recMu.Lock()
	defer s.recMu.Unlock()

	if req.Enable {
		if s.recSub != nil {
			return &Empty{}, nil
		}
		s.recSub = s.reg.Subscribe(0xffff, nil, &recordingPusher{recorder: s.recorder, path: req.Path})
		log.Infof("rpcapi: recording started (path=%q)", req.Path)
		return &Empty{}, nil
	}

	if s.recSub == nil {
		return &Empty{}, nil
	}
	s.recSub.Release()
	s.recSub = nil
	if err := s.recorder.Reset(); err != nil {
		return nil, fmt.Errorf("rpcapi: stop recording: %w", err)
	}
	log.Info("rpcapi: recording stopped")
	return &Empty{}, nil
}

// SetInput applies one tagged-union input change to the authoritative state
// and forwards it to the acquisition controller.
func (s *Server) SetInput(_ context.Context, in *InputSettings) (*Empty, error) {
	switch in.Kind {
	case InputInversion:
		mask := s.reg.GetInputs().InversionMask
		mask = bitmask.Change(mask, uint(in.Channel-1), in.Invert)
		s.reg.SetInversionMask(mask)
	case InputDelay:
		s.reg.SetDelay(in.Channel, in.DelayTick)
	case InputThreshold:
		s.reg.SetThreshold(in.Channel, in.Volts)
	default:
		return nil, fmt.Errorf("rpcapi: unknown input kind %d", in.Kind)
	}
	return &Empty{}, nil
}

// GetInputs returns the current authoritative input state.
func (s *Server) GetInputs(_ context.Context, _ *Empty) (*Inputs, error) {
	in := s.reg.GetInputs()
	return &Inputs{InversionMask: in.InversionMask, Delays: in.Delays, Thresholds: in.Thresholds}, nil
}

// QueryMode reports the fixed acquisition mode chosen at startup.
func (s *Server) QueryMode(_ context.Context, _ *Empty) (*ModeResponse, error) {
	return &ModeResponse{Mode: s.mode.Mode()}, nil
}

// SetWindow sets the global window; ignored (logged, not erred) if the CLI
// pinned it, mirroring registry.SetWindow's own silent-ignore behavior.
func (s *Server) SetWindow(_ context.Context, req *WindowRequest) (*Empty, error) {
	s.reg.SetWindow(req.Window)
	return &Empty{}, nil
}

// GetWindow returns the current global window (0 means "none").
func (s *Server) GetWindow(_ context.Context, _ *Empty) (*WindowResponse, error) {
	return &WindowResponse{Window: s.reg.GetWindow()}, nil
}

// SubmitJob forwards to the job manager, translating its refusal signal into
// the §6 JobSubmission schema.
func (s *Server) SubmitJob(_ context.Context, req *JobReq) (*JobSubmission, error) {
	id, refused := s.jobs.SubmitJob(req.Patterns, req.Duration, req.Handle)
	if refused {
		return &JobSubmission{Refused: true, Status: JobRefused}, nil
	}
	return &JobSubmission{ID: id}, nil
}

// QueryJobDone reports which of the job manager's four tables currently
// holds id.
func (s *Server) QueryJobDone(_ context.Context, req *JobIDRequest) (*JobStatusResponse, error) {
	return &JobStatusResponse{Status: s.jobs.QueryJobDone(req.ID)}, nil
}

// GetResults claims a ready job's payload, or reports why it isn't ready.
func (s *Server) GetResults(_ context.Context, req *JobIDRequest) (*JobPayload, error) {
	job, status, ok := s.jobs.GetResults(req.ID)
	if !ok {
		return &JobPayload{BadQuery: true, Status: status}, nil
	}
	return &JobPayload{Job: job}, nil
}

// CancelJob moves a waiting job to the cancelled table (DESIGN.md Open
// Question 3: the supplemented resolution of spec §9's cancel-RPC ambiguity).
func (s *Server) CancelJob(_ context.Context, req *JobIDRequest) (*JobStatusResponse, error) {
	return &JobStatusResponse{Status: s.jobs.CancelJob(req.ID)}, nil
}

var (
	_ PublisherServer = (*Server)(nil)
	_ TaggerServer    = (*Server)(nil)
)
