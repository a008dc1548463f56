// Package tagfile implements the optional recording-tool collaborator of
// spec §4.J: a writer that runs on its own goroutine and, on request,
// streams tag batches into an on-disk (or object-store) container.
//
// Like internal/jobmanager, all state lives on one goroutine and is
// reached only through typed request/reply channels — Save and Reset are
// the two messages spec.md names.
package tagfile

import (
	"fmt"

	"github.com/photontag/tagstreamd/pkg/log"
	"github.com/photontag/tagstreamd/pkg/tagio"
)

type saveRequest struct {
	tags  []tagio.Tag
	path  string
	reply chan<- error
}

type resetRequest struct {
	reply chan<- error
}

// Writer drives a Backend through open/append/close in response to Save
// and Reset calls.
type Writer struct {
	backend Backend

	save  chan saveRequest
	reset chan resetRequest
	done  <-chan struct{}
}

// New starts a Writer's event-loop goroutine over backend. done is the
// process-wide shutdown broadcast channel (§5): closing it causes the
// writer to close any open recording and exit.
func New(backend Backend, done <-chan struct{}) *Writer {
	w := &Writer{
		backend: backend,
		save:    make(chan saveRequest),
		reset:   make(chan resetRequest),
		done:    done,
	}
	go w.run()
	return w
}

// Save appends tags to the currently open recording, opening one first
// (auto-generating a UTC-timestamped path when path is empty) if none is
// open yet.
func (w *Writer) Save(tags []tagio.Tag, path string) error {
	reply := make(chan error, 1)
	select {
	case w.save <- saveRequest{tags: tags, path: path, reply: reply}:
	case <-w.done:
		return fmt.Errorf("tagfile: writer shut down")
	}
	return <-reply
}

// Reset closes the currently open recording, if any. The next Save opens
// a fresh one.
func (w *Writer) Reset() error {
	reply := make(chan error, 1)
	select {
	case w.reset <- resetRequest{reply: reply}:
	case <-w.done:
		return fmt.Errorf("tagfile: writer shut down")
	}
	return <-reply
}

func (w *Writer) run() {
	open := false
	for {
		select {
		case <-w.done:
			if open {
				w.backend.Close()
			}
			return

		case req := <-w.save:
			req.reply <- w.handleSave(&open, req)

		case req := <-w.reset:
			req.reply <- w.handleReset(&open)
		}
	}
}

func (w *Writer) handleSave(open *bool, req saveRequest) error {
	if !*open {
		if err := w.backend.Open(req.path); err != nil {
			log.Errorf("tagfile: open recording: %v", err)
			return err
		}
		*open = true
		log.Info("tagfile: recording started")
	}
	if err := w.backend.Append(req.tags); err != nil {
		log.Errorf("tagfile: append tags: %v", err)
		return err
	}
	return nil
}

func (w *Writer) handleReset(open *bool) error {
	if !*open {
		return nil
	}
	err := w.backend.Close()
	*open = false
	if err != nil {
		log.Errorf("tagfile: close recording: %v", err)
		return err
	}
	log.Info("tagfile: recording closed")
	return nil
}
