// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

import "errors"

var (
	// ErrTransportClosed terminates submit futures when the serial link
	// is lost.
	ErrTransportClosed = errors.New("grbl: transport closed")

	// ErrCanceled terminates submit futures on orderly driver shutdown.
	ErrCanceled = errors.New("grbl: canceled")

	// ErrLineTooLong rejects a line that can never fit the controller
	// receive buffer. Reported synchronously by Submit.
	ErrLineTooLong = errors.New("grbl: line exceeds controller receive buffer")
)
