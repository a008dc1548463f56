// Package telemetry fans device error-flag events and batch job lifecycle
// transitions out onto NATS, a publish-only trim of pkg/nats/client.go's
// general-purpose pub/sub client: tagstreamd has no need to subscribe to
// anything, only to announce what just happened.
package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/photontag/tagstreamd/pkg/log"
)

const (
	errorSubject = "tagstreamd.errors"
	jobSubject   = "tagstreamd.jobs"
)

// Config mirrors pkg/nats/config.go's NatsConfig shape.
type Config struct {
	Address       string `json:"address"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	CredsFilePath string `json:"creds-file-path,omitempty"`
}

// ConfigSchema validates Config the way pkg/nats/config.go's ConfigSchema
// does for the teacher's NATS client.
const ConfigSchema = `{
    "type": "object",
    "description": "Configuration for the telemetry NATS publisher.",
    "properties": {
        "address": {
            "description": "Address of the NATS server (e.g., 'nats://localhost:4222').",
            "type": "string"
        },
        "username": {"type": "string"},
        "password": {"type": "string"},
        "creds-file-path": {"type": "string"}
    },
    "required": ["address"]
}`

// ErrorEvent is the wire payload for errorSubject.
type ErrorEvent struct {
	Tick  int64  `json:"tick"`
	Flags uint32 `json:"flags"`
	Text  string `json:"text"`
}

// JobEvent is the wire payload for jobSubject.
type JobEvent struct {
	ID     uint64 `json:"id"`
	Status string `json:"status"`
	Handle string `json:"handle"`
}

// Publisher is a publish-only NATS client, connected once at startup and
// reused for the process lifetime.
type Publisher struct {
	conn *nats.Conn
}

// New connects to cfg.Address and returns a Publisher. Reconnect/disconnect
// handlers log but never block publishing: nats.go queues outgoing
// messages locally while reconnecting.
func New(cfg Config) (*Publisher, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("telemetry: nats address is required")
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			log.Warnf("telemetry: nats disconnected: %v", err)
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		log.Infof("telemetry: nats reconnected to %s", nc.ConnectedUrl())
	}))
	opts = append(opts, nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
		log.Errorf("telemetry: nats error: %v", err)
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: connect to %s: %w", cfg.Address, err)
	}
	log.Infof("telemetry: connected to %s", cfg.Address)
	return &Publisher{conn: nc}, nil
}

// ReportError implements internal/acquisition.ErrorSink.
func (p *Publisher) ReportError(tick int64, flags uint32, text string) {
	p.publish(errorSubject, ErrorEvent{Tick: tick, Flags: flags, Text: text})
}

// ReportJobEvent publishes one batch job lifecycle transition
// (waiting/ready/cancelled/claimed).
func (p *Publisher) ReportJobEvent(id uint64, status, handle string) {
	p.publish(jobSubject, JobEvent{ID: id, Status: status, Handle: handle})
}

func (p *Publisher) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("telemetry: marshal %s event: %v", subject, err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		log.Errorf("telemetry: publish %s: %v", subject, err)
	}
}

// Close flushes and closes the underlying NATS connection.
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Flush(); err != nil {
		log.Warnf("telemetry: flush on close: %v", err)
	}
	p.conn.Close()
}
