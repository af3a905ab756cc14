// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

import (
	"fmt"
	"strconv"
)

// LineCommand is anything sent to the controller as a newline-terminated
// line: plain G-code/MDI text or a '$' system command. Line commands go
// through the flow controller and are acknowledged with a Response.
type LineCommand interface {
	// CommandLine is the on-wire text without the trailing newline.
	CommandLine() string
}

// Line is a verbatim G-code or MDI line. The host does not parse or
// validate it.
type Line string

func (l Line) CommandLine() string { return string(l) }

// encodeLine frames a line command for the wire. One call, one write unit.
func encodeLine(cmd LineCommand) []byte {
	return append([]byte(cmd.CommandLine()), '\n')
}

type sysKind int

const (
	sysHelp sysKind = iota
	sysViewSettings
	sysWriteSetting
	sysViewParameters
	sysViewParserState
	sysViewBuildInfo
	sysViewStartupBlocks
	sysWriteStartupBlock
	sysToggleCheckMode
	sysKillAlarmLock
	sysRunHomingCycle
	sysRunJoggingMotion
	sysRestoreSettings
	sysRestoreParameters
	sysRestoreAll
	sysSleep
)

// SystemCommand is a '$' system command. Build one with the constructors
// below; the zero value is Help.
type SystemCommand struct {
	kind  sysKind
	code  uint8
	value float64
	n     uint8
	line  string
}

func ViewHelp() SystemCommand { return SystemCommand{kind: sysHelp} }

func ViewSettings() SystemCommand { return SystemCommand{kind: sysViewSettings} }

func ViewParameters() SystemCommand { return SystemCommand{kind: sysViewParameters} }

func ViewParserState() SystemCommand { return SystemCommand{kind: sysViewParserState} }

func ViewBuildInfo() SystemCommand { return SystemCommand{kind: sysViewBuildInfo} }

func ViewStartupBlocks() SystemCommand { return SystemCommand{kind: sysViewStartupBlocks} }

func ToggleCheckMode() SystemCommand { return SystemCommand{kind: sysToggleCheckMode} }

func KillAlarmLock() SystemCommand { return SystemCommand{kind: sysKillAlarmLock} }

func RunHomingCycle() SystemCommand { return SystemCommand{kind: sysRunHomingCycle} }

func RestoreSettings() SystemCommand { return SystemCommand{kind: sysRestoreSettings} }

func RestoreParameters() SystemCommand { return SystemCommand{kind: sysRestoreParameters} }

func RestoreAll() SystemCommand { return SystemCommand{kind: sysRestoreAll} }

func Sleep() SystemCommand { return SystemCommand{kind: sysSleep} }

func WriteSetting(code uint8, value float64) SystemCommand {
	return SystemCommand{kind: sysWriteSetting, code: code, value: value}
}

func WriteStartupBlock(n uint8, line string) SystemCommand {
	return SystemCommand{kind: sysWriteStartupBlock, n: n, line: line}
}

func RunJoggingMotion(line string) SystemCommand {
	return SystemCommand{kind: sysRunJoggingMotion, line: line}
}

func (c SystemCommand) CommandLine() string {
	switch c.kind {
	case sysHelp:
		return "$"
	case sysViewSettings:
		return "$$"
	case sysWriteSetting:
		return fmt.Sprintf("$%d=%s", c.code, strconv.FormatFloat(c.value, 'f', -1, 64))
	case sysViewParameters:
		return "$#"
	case sysViewParserState:
		return "$G"
	case sysViewBuildInfo:
		return "$I"
	case sysViewStartupBlocks:
		return "$N"
	case sysWriteStartupBlock:
		return fmt.Sprintf("$N%d=%s", c.n, c.line)
	case sysToggleCheckMode:
		return "$C"
	case sysKillAlarmLock:
		return "$X"
	case sysRunHomingCycle:
		return "$H"
	case sysRunJoggingMotion:
		return "$J=" + c.line
	case sysRestoreSettings:
		return "$RST=$"
	case sysRestoreParameters:
		return "$RST=#"
	case sysRestoreAll:
		return "$RST=*"
	case sysSleep:
		return "$SLP"
	}
	panic("unknown system command")
}

// RealtimeCommand is a single-byte command the firmware picks out of the
// serial stream immediately, bypassing its line buffer and the flow
// controller.
type RealtimeCommand byte

const (
	SoftReset            RealtimeCommand = 0x18
	StatusReportQuery    RealtimeCommand = '?'
	CycleStartResume     RealtimeCommand = '~'
	FeedHold             RealtimeCommand = '!'
	SafetyDoor           RealtimeCommand = 0x84
	JogCancel            RealtimeCommand = 0x85
	FeedOverrideReset    RealtimeCommand = 0x90
	FeedOverrideInc10    RealtimeCommand = 0x91
	FeedOverrideDec10    RealtimeCommand = 0x92
	FeedOverrideInc1     RealtimeCommand = 0x93
	FeedOverrideDec1     RealtimeCommand = 0x94
	RapidOverrideFull    RealtimeCommand = 0x95
	RapidOverrideHalf    RealtimeCommand = 0x96
	RapidOverrideQuarter RealtimeCommand = 0x97
	SpeedOverrideReset   RealtimeCommand = 0x99
	SpeedOverrideInc10   RealtimeCommand = 0x9A
	SpeedOverrideDec10   RealtimeCommand = 0x9B
	SpeedOverrideInc1    RealtimeCommand = 0x9C
	SpeedOverrideDec1    RealtimeCommand = 0x9D
	ToggleSpindleStop    RealtimeCommand = 0x9E
	ToggleFloodCoolant   RealtimeCommand = 0xA0
	ToggleMistCoolant    RealtimeCommand = 0xA1
)
