// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

import (
	"errors"
	"reflect"
	"testing"
)

func parseOK(t *testing.T, line string) Message {
	t.Helper()
	msg, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse(%q) returned error: %v", line, err)
	}
	return msg
}

func assertParse(t *testing.T, line string, want Message) {
	t.Helper()
	got := parseOK(t, line)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse(%q) = %#v, want %#v", line, got, want)
	}
}

func TestParseResponse(t *testing.T) {
	assertParse(t, "ok", Response{Ok: true})
	assertParse(t, "error:2", Response{Code: 2})
	assertParse(t, "error:255", Response{Code: 255})
}

func TestParseAlarm(t *testing.T) {
	assertParse(t, "ALARM:1", Alarm(1))
	assertParse(t, "ALARM:255", Alarm(255))
}

func TestParseSetting(t *testing.T) {
	assertParse(t, "$13=0", Setting{Code: 13, Value: 0})
	assertParse(t, "$100=250.0", Setting{Code: 100, Value: 250.0})
	assertParse(t, "$12=0.002", Setting{Code: 12, Value: 0.002})
	assertParse(t, "$30=1000", Setting{Code: 30, Value: 1000})
}

func TestParseStartupLine(t *testing.T) {
	assertParse(t, "$N0=G54", StartupLine{N: 0, Line: "G54"})
	// Empty startup block body is legal.
	assertParse(t, "$N1=", StartupLine{N: 1, Line: ""})
}

func TestParseBracketed(t *testing.T) {
	assertParse(t, "[MSG:Reset to continue]", Feedback("Reset to continue"))
	assertParse(t, "[MSG:'$H'|'$X' to unlock]", Feedback("'$H'|'$X' to unlock"))
	assertParse(t, "[GC:G0 G54 G17 G21 G90 G94 M5 M9 T0 F0.0 S0]",
		ParserState("G0 G54 G17 G21 G90 G94 M5 M9 T0 F0.0 S0"))
	assertParse(t, "[HLP:$$ $# $G $I $N $x=val $Nx=line $J=line $C $X $H ~ ! ? ctrl-x]",
		Help("$$ $# $G $I $N $x=val $Nx=line $J=line $C $X $H ~ ! ? ctrl-x"))
	assertParse(t, "[VER:1.1d.20161014:]", Version{Version: "1.1d.20161014"})
	assertParse(t, "[VER:1.1d.20161014:some note]", Version{Version: "1.1d.20161014", Note: "some note"})
	assertParse(t, "[OPT:VL,15,128]", BuildOptions("VL,15,128"))
}

func TestParseParameter(t *testing.T) {
	for _, line := range []string{
		"[G54:0.000,0.000,0.000]",
		"[G28:1.000,2.000,3.000]",
		"[G92:0.000,0.000,0.000]",
		"[TLO:0.000]",
		"[PRB:0.000,0.000,0.000:0]",
	} {
		got := parseOK(t, line)
		want := Parameter(line[1 : len(line)-1])
		if got != want {
			t.Errorf("Parse(%q) = %#v, want %#v", line, got, want)
		}
	}
}

func TestParseOther(t *testing.T) {
	for _, line := range []string{
		"Grbl 1.1f ['$' for help]",
		"[XYZ:whatever]",
		"$N",
		"$=5",
	} {
		if _, ok := parseOK(t, line).(Other); !ok {
			t.Errorf("Parse(%q): expected Other", line)
		}
	}
}

func TestParseMalformedNumericDowngrades(t *testing.T) {
	// Recognized shape, garbage number: downgraded, never an error.
	for _, line := range []string{
		"error:many",
		"error:999",
		"ALARM:xyz",
		"$13=fast",
		"<Idle|MPos:a,b,c>",
	} {
		if _, ok := parseOK(t, line).(Other); !ok {
			t.Errorf("Parse(%q): expected downgrade to Other", line)
		}
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestParseStatusReport(t *testing.T) {
	tests := []struct {
		line string
		want StatusReport
	}{
		{
			"<Idle|MPos:3.000,2.000,0.000|FS:0,0>",
			StatusReport{
				State:    StateIdle,
				Position: ReportPosition{Pos: Position{X: 3, Y: 2}},
				Feed:     floatPtr(0),
				Speed:    floatPtr(0),
			},
		},
		{
			"<Hold:0|MPos:5.000,2.000,0.000|FS:0,0>",
			StatusReport{
				State:    StateHoldComplete,
				Position: ReportPosition{Pos: Position{X: 5, Y: 2}},
				Feed:     floatPtr(0),
				Speed:    floatPtr(0),
			},
		},
		{
			"<Idle|WPos:5.000,2.000,0.000|FS:0,0|Ov:100,100,100>",
			StatusReport{
				State:     StateIdle,
				Position:  ReportPosition{Pos: Position{X: 5, Y: 2}, Work: true},
				Feed:      floatPtr(0),
				Speed:     floatPtr(0),
				Overrides: &Overrides{Feed: 100, Rapids: 100, Speed: 100},
			},
		},
		{
			"<Idle|MPos:5.000,2.000,0.000|FS:0,0|WCO:0.000,0.000,0.000>",
			StatusReport{
				State:    StateIdle,
				Position: ReportPosition{Pos: Position{X: 5, Y: 2}},
				Feed:     floatPtr(0),
				Speed:    floatPtr(0),
				WCO:      &Position{},
			},
		},
		{
			"<Run|MPos:23.036,1.620,0.000|F:500>",
			StatusReport{
				State:    StateRun,
				Position: ReportPosition{Pos: Position{X: 23.036, Y: 1.620}},
				Feed:     floatPtr(500),
			},
		},
		{
			"<Run|MPos:5.000,2.000,0.000|Ln:99999|Bf:15,128>",
			StatusReport{
				State:      StateRun,
				Position:   ReportPosition{Pos: Position{X: 5, Y: 2}},
				LineNumber: intPtr(99999),
				Buffer:     &BufferState{Planner: 15, Rx: 128},
			},
		},
		{
			"<Idle|MPos:5.000,2.000,0.000|Pn:XYZR>",
			StatusReport{
				State:    StateIdle,
				Position: ReportPosition{Pos: Position{X: 5, Y: 2}},
				Pins:     &InputPins{XLimit: true, YLimit: true, ZLimit: true, SoftReset: true},
			},
		},
		{
			"<Idle|MPos:5.000,2.000,0.000|A:SMF>",
			StatusReport{
				State:       StateIdle,
				Position:    ReportPosition{Pos: Position{X: 5, Y: 2}},
				Accessories: &Accessories{Spindle: SpindleCW, FloodCoolant: true, MistCoolant: true},
			},
		},
		{
			"<Door:3|MPos:0.000,0.000,0.000|FS:0,0>",
			StatusReport{
				State:    StateDoorResuming,
				Position: ReportPosition{},
				Feed:     floatPtr(0),
				Speed:    floatPtr(0),
			},
		},
	}

	for _, tc := range tests {
		assertParse(t, tc.line, tc.want)
	}
}

func intPtr(v int) *int { return &v }

func TestParseStatusReportProtocolErrors(t *testing.T) {
	for _, line := range []string{
		"<Idle>",
		"<Spinning|MPos:0.000,0.000,0.000>",
		"<Idle|Bf:15,128>",
		"<Idle|MPos:0.000,0.000,0.000|Qq:1>",
		"<Idle|MPos:0.000,0.000,0.000|Pn:XQ>",
		"<Idle|MPos:0.000,0.000,0.000|A:Z>",
	} {
		msg, err := Parse(line)
		if err == nil {
			t.Errorf("Parse(%q) = %#v, expected protocol error", line, msg)
			continue
		}
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Errorf("Parse(%q): expected *ProtocolError, got %T", line, err)
		}
	}
}

func TestResponseErrorText(t *testing.T) {
	if got := (Response{Code: 2}).ErrorText(); got != "Bad number format" {
		t.Errorf("error text for code 2: got %q", got)
	}
	if got := (Response{Code: 200}).ErrorText(); got != "200" {
		t.Errorf("error text for unknown code: got %q, want numeric fallback", got)
	}
	if got := (Response{Ok: true}).ErrorText(); got != "" {
		t.Errorf("error text for ok: got %q", got)
	}
}
