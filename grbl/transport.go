// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"unicode"

	"go.bug.st/serial"
)

// defaultBaudRate is the standard GRBL link rate (115200 8N1).
const defaultBaudRate = 115200

// TrafficRecorder observes raw line traffic on the link. dir is "up"
// for controller-to-host, "down" for host-to-controller.
type TrafficRecorder interface {
	RecordLine(dir string, line string)
}

func openPort(path string, baud int) (io.ReadWriteCloser, error) {
	if baud == 0 {
		baud = defaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	slog.Info("Opened serial port", "port", path, "baud", baud)
	return port, nil
}

// transport owns the serial port. A reader goroutine frames inbound
// bytes into lines; a writer goroutine merges the gated line stream
// with the realtime byte stream. There is no ordering between the two
// outbound streams, but each is strictly ordered, and every command is
// a single Write call so realtime bytes are never stuck behind
// OS-coalesced line data.
type transport struct {
	port     io.ReadWriteCloser
	recorder TrafficRecorder

	lines    chan []byte
	realtime chan byte
	inbound  chan string

	fatal chan error
	quit  <-chan struct{}
}

func newTransport(port io.ReadWriteCloser, recorder TrafficRecorder, quit <-chan struct{}) *transport {
	tran := &transport{
		port:     port,
		recorder: recorder,
		lines:    make(chan []byte),
		realtime: make(chan byte, 16),
		inbound:  make(chan string),
		fatal:    make(chan error, 1),
		quit:     quit,
	}
	go tran.readLoop()
	go tran.writeLoop()
	return tran
}

func (t *transport) readLoop() {
	r := bufio.NewReader(t.port)
	for {
		lineBytes, err := r.ReadBytes('\n')
		if err != nil {
			t.reportFatal(err)
			return
		}

		// Discard CRs & non-printables.
		line := string(bytes.Map(func(r rune) rune {
			if r == '\r' || !unicode.IsPrint(r) {
				return -1
			}
			return r
		}, lineBytes))

		if line == "" {
			continue
		}

		if t.recorder != nil {
			t.recorder.RecordLine("up", line)
		}
		slog.Debug("Received", "line", line)

		select {
		case t.inbound <- line:
		case <-t.quit:
			return
		}
	}
}

func (t *transport) writeLoop() {
	for {
		select {
		case data := <-t.lines:
			if _, err := t.port.Write(data); err != nil {
				t.reportFatal(err)
				return
			}
			line := string(bytes.TrimSuffix(data, []byte{'\n'}))
			if t.recorder != nil {
				t.recorder.RecordLine("down", line)
			}
			slog.Debug("Sent", "line", line)

		case b := <-t.realtime:
			if _, err := t.port.Write([]byte{b}); err != nil {
				t.reportFatal(err)
				return
			}
			slog.Debug("Sent realtime", "byte", b)

		case <-t.quit:
			return
		}
	}
}

func (t *transport) reportFatal(err error) {
	select {
	case t.fatal <- err:
	default:
	}
}
