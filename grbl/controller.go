// SPDX-License-Identifier: AGPL-3.0-or-later

// Package grbl drives a GRBL CNC motion controller over its serial
// line protocol: command submission with character-counting flow
// control, realtime command interleaving, response/report parsing and
// a derived machine-state view.
package grbl

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Kind identifies the controller family behind a driver handle.
type Kind string

const KindGrbl Kind = "grbl"

// GRBL docs recommend polling status at no more than 5 Hz.
const statusPollInterval = time.Second / 5

// Controller is a live driver for one GRBL board on one serial port.
// All methods are safe for concurrent use.
type Controller struct {
	path string

	tran  *transport
	flow  *charCount
	bcast *broadcaster
	proj  *projector

	quit     chan struct{}
	closeReq chan struct{}
	closeMu  sync.Mutex
	closed   bool
	done     chan struct{}
	wg       sync.WaitGroup

	errMu sync.Mutex
	err   error

	protoErrs chan error
}

// Open opens the serial port and starts the driver. baud 0 selects the
// standard 115200. recorder may be nil.
func Open(path string, baud int, recorder TrafficRecorder) (*Controller, error) {
	port, err := openPort(path, baud)
	if err != nil {
		return nil, err
	}
	return newController(port, path, recorder), nil
}

// newController assembles the driver around an already-open port.
func newController(port io.ReadWriteCloser, path string, recorder TrafficRecorder) *Controller {
	c := &Controller{
		path:      path,
		quit:      make(chan struct{}),
		closeReq:  make(chan struct{}),
		done:      make(chan struct{}),
		proj:      newProjector(),
		protoErrs: make(chan error, 16),
	}
	c.bcast = newBroadcaster(c.quit)
	c.tran = newTransport(port, recorder, c.quit)
	c.flow = newCharCount(c.tran.lines, c.quit)

	// Register the internal subscribers before any goroutine runs so
	// that no inbound message can be published ahead of them.
	responses := c.bcast.Subscribe(16)
	messages := c.bcast.Subscribe(16)

	c.wg.Add(3)
	go c.readPipeline()
	go c.trackResponses(responses)
	go c.projectState(messages)
	go c.pollStatus()
	go c.supervise()
	return c
}

// readPipeline frames, parses and fans out controller output.
func (c *Controller) readPipeline() {
	defer c.wg.Done()
	defer c.bcast.Close()

	for {
		select {
		case line := <-c.tran.inbound:
			msg, err := Parse(line)
			if err != nil {
				slog.Warn("Dropping protocol-violating line", "error", err)
				c.surface(err)
				continue
			}
			c.bcast.publish(msg)
		case <-c.quit:
			return
		}
	}
}

// trackResponses feeds ok/error messages to the flow controller.
func (c *Controller) trackResponses(sub <-chan Message) {
	defer c.wg.Done()

	for msg := range sub {
		r, ok := msg.(Response)
		if !ok {
			continue
		}
		if err := c.flow.Acknowledge(r); err != nil {
			slog.Warn("Dropping uncorrelated response", "error", err)
			c.surface(err)
		}
	}
}

// projectState feeds every message to the state projector.
func (c *Controller) projectState(sub <-chan Message) {
	defer c.wg.Done()
	defer c.proj.closeSubs()

	for msg := range sub {
		c.proj.Apply(msg)
	}
}

// pollStatus asks for a realtime status report at the recommended rate.
func (c *Controller) pollStatus() {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.SendRealtime(StatusReportQuery)
		case <-c.quit:
			return
		}
	}
}

// supervise waits for a fatal transport error or a close request, then
// tears the driver down: ticker and loops stop, outstanding submits
// fail, the port closes, subscriber channels close.
func (c *Controller) supervise() {
	var cause error
	select {
	case cause = <-c.tran.fatal:
		slog.Error("Controller link failed", "port", c.path, "error", cause)
	case <-c.closeReq:
	}

	c.errMu.Lock()
	c.err = cause
	c.errMu.Unlock()

	failWith := ErrCanceled
	if cause != nil {
		failWith = ErrTransportClosed
	}

	c.flow.Fail(failWith)
	close(c.quit)
	c.tran.port.Close()
	c.wg.Wait()
	close(c.done)
}

func (c *Controller) surface(err error) {
	select {
	case c.protoErrs <- err:
	default:
	}
}

// Submit sends one line command and waits for the controller's
// response. Cancelling ctx abandons the wait but not the line: it is
// already on the wire and its eventual response is discarded.
func (c *Controller) Submit(ctx context.Context, cmd LineCommand) (Response, error) {
	done, err := c.SubmitAsync(cmd)
	if err != nil {
		return Response{}, err
	}
	select {
	case res := <-done:
		return res.Response, res.Err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// SubmitAsync sends one line command; the returned channel resolves
// with the matching response in submission order.
func (c *Controller) SubmitAsync(cmd LineCommand) (<-chan SubmitResult, error) {
	return c.flow.Submit(cmd)
}

// SendRealtime emits a single-byte realtime command. It bypasses the
// flow controller and may overtake queued lines. Fire-and-forget.
func (c *Controller) SendRealtime(cmd RealtimeCommand) {
	select {
	case c.tran.realtime <- byte(cmd):
	case <-c.quit:
	}
}

// SubscribeState returns a latest-value stream of state snapshots,
// primed with the current one ({Idle, origin, origin} before the first
// status report).
func (c *Controller) SubscribeState() <-chan State {
	return c.proj.Subscribe()
}

// UnsubscribeState detaches a state stream.
func (c *Controller) UnsubscribeState(ch <-chan State) {
	c.proj.Unsubscribe(ch)
}

// LatestState returns the most recent state snapshot.
func (c *Controller) LatestState() State {
	return c.proj.Latest()
}

// Subscribe taps the raw parsed message stream. The tap participates in
// the fan-out's backpressure: stop draining it and the read pipeline
// stalls. Unsubscribe when done.
func (c *Controller) Subscribe(buf int) <-chan Message {
	return c.bcast.Subscribe(buf)
}

// Unsubscribe detaches a raw message tap.
func (c *Controller) Unsubscribe(ch <-chan Message) {
	c.bcast.Unsubscribe(ch)
}

// Errors streams non-fatal protocol errors (dropped reports,
// uncorrelated responses). Best-effort: the channel is buffered and
// overflow is discarded.
func (c *Controller) Errors() <-chan error {
	return c.protoErrs
}

// Description identifies the driver: its kind and the serial path.
func (c *Controller) Description() (Kind, string) {
	return KindGrbl, c.path
}

// Done is closed once the driver has fully terminated.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err reports why the driver terminated: nil after a clean Close, the
// transport error after a link failure. Undefined before Done.
func (c *Controller) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close shuts the driver down: pending submits fail with ErrCanceled
// and the port is released. Blocks until teardown completes.
func (c *Controller) Close() {
	c.closeMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.closeReq)
	}
	c.closeMu.Unlock()
	<-c.done
}
