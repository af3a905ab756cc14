// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

import "sync"

// State is the derived controller state published to observers. Both
// positions are millimeters regardless of the controller's report unit,
// and WorkPosition = MachinePosition - work coordinate offset.
type State struct {
	Status          MachineState
	MachinePosition Position
	WorkPosition    Position
}

// projector folds parsed messages into a coherent state snapshot. It
// remembers the report unit (from the $13 setting) and the last seen
// work coordinate offset, and publishes a fresh snapshot per status
// report with latest-value semantics: a subscriber that lags sees only
// the most recent snapshot.
type projector struct {
	unit Unit
	wco  Position

	mu      sync.Mutex
	current State
	subs    []chan State
}

func newProjector() *projector {
	return &projector{
		unit:    Millimeter,
		current: State{Status: StateIdle},
	}
}

// Apply folds one message into the model. Only settings dumps and
// status reports have any effect.
func (p *projector) Apply(msg Message) {
	switch m := msg.(type) {
	case Setting:
		if m.Code == SettingReportInInches {
			if m.Value != 0 {
				p.unit = Inch
			} else {
				p.unit = Millimeter
			}
		}

	case StatusReport:
		if m.WCO != nil {
			p.wco = p.unit.ToMillimeters(*m.WCO)
		}

		pos := p.unit.ToMillimeters(m.Position.Pos)
		var mpos, wpos Position
		if m.Position.Work {
			wpos = pos
			mpos = pos.Add(p.wco)
		} else {
			mpos = pos
			wpos = pos.Sub(p.wco)
		}

		p.publish(State{
			Status:          m.State,
			MachinePosition: mpos,
			WorkPosition:    wpos,
		})
	}
}

func (p *projector) publish(st State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = st
	for _, sub := range p.subs {
		// Drop the stale snapshot, if any, then offer the new one.
		select {
		case <-sub:
		default:
		}
		select {
		case sub <- st:
		default:
		}
	}
}

// Subscribe returns a latest-value channel primed with the current
// snapshot (initially Idle at the origin).
func (p *projector) Subscribe() <-chan State {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan State, 1)
	ch <- p.current
	p.subs = append(p.subs, ch)
	return ch
}

// Unsubscribe detaches and closes a state channel.
func (p *projector) Unsubscribe(ch <-chan State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, sub := range p.subs {
		if sub == ch {
			p.subs = append(p.subs[:i], p.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Latest returns the most recently published snapshot.
func (p *projector) Latest() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// closeSubs closes every state channel on driver teardown.
func (p *projector) closeSubs() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sub := range p.subs {
		close(sub)
	}
	p.subs = nil
}
