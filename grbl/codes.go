// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

import (
	"embed"
	"encoding/csv"
	"fmt"
	"strconv"
)

// The code tables ship as the CSV files the firmware project publishes.
// They are parsed once at package init and are read-only afterwards.

//go:embed assets/*.csv
var codeAssets embed.FS

// SettingDesc describes one '$' setting slot.
type SettingDesc struct {
	Name string
	Unit string
	Desc string
}

var (
	// AlarmCodes maps ALARM:n codes to their description.
	AlarmCodes map[uint8]string

	// ErrorCodes maps error:n codes to their short message.
	ErrorCodes map[uint8]string

	// BuildOptionCodes maps [OPT:...] characters to their description.
	BuildOptionCodes map[byte]string

	// SettingCodes maps '$' setting codes to their descriptor.
	SettingCodes map[uint8]SettingDesc
)

// SettingReportInInches is the code of the "Report in inches" setting,
// resolved from the setting table by name at init.
var SettingReportInInches uint8

func readCodeCSV(name string) [][]string {
	f, err := codeAssets.Open("assets/" + name)
	if err != nil {
		panic(fmt.Sprintf("grbl: missing code asset %s: %v", name, err))
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		panic(fmt.Sprintf("grbl: malformed code asset %s: %v", name, err))
	}
	if len(records) < 1 {
		panic(fmt.Sprintf("grbl: empty code asset %s", name))
	}
	// Drop the header row.
	return records[1:]
}

func mustCode(name, field string) uint8 {
	code, err := strconv.ParseUint(field, 10, 8)
	if err != nil {
		panic(fmt.Sprintf("grbl: bad code in asset %s: %q", name, field))
	}
	return uint8(code)
}

func init() {
	AlarmCodes = make(map[uint8]string)
	for _, rec := range readCodeCSV("alarm_codes_en_US.csv") {
		AlarmCodes[mustCode("alarm", rec[0])] = rec[2]
	}

	ErrorCodes = make(map[uint8]string)
	for _, rec := range readCodeCSV("error_codes_en_US.csv") {
		ErrorCodes[mustCode("error", rec[0])] = rec[1]
	}

	BuildOptionCodes = make(map[byte]string)
	for _, rec := range readCodeCSV("build_option_codes_en_US.csv") {
		if len(rec[0]) != 1 {
			panic(fmt.Sprintf("grbl: bad build option code %q", rec[0]))
		}
		BuildOptionCodes[rec[0][0]] = rec[1]
	}

	SettingCodes = make(map[uint8]SettingDesc)
	for _, rec := range readCodeCSV("setting_codes_en_US.csv") {
		code := mustCode("setting", rec[0])
		SettingCodes[code] = SettingDesc{Name: rec[1], Unit: rec[2], Desc: rec[3]}
		if rec[1] == "Report in inches" {
			SettingReportInInches = code
		}
	}
	if SettingReportInInches == 0 {
		panic("grbl: setting table has no \"Report in inches\" entry")
	}
}
