// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"grbl-host/grbl"
)

// consoleRealtime maps the single characters the firmware documents as
// immediate commands so they can be typed directly.
var consoleRealtime = map[string]grbl.RealtimeCommand{
	"?": grbl.StatusReportQuery,
	"!": grbl.FeedHold,
	"~": grbl.CycleStartResume,
}

// runConsole reads MDI lines from stdin, submits each one and prints
// the controller's verdict. Single-character realtime commands bypass
// the queue.
func runConsole(a *app) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		ctrl := a.controller()
		if ctrl == nil {
			fmt.Println(": controller not connected")
			continue
		}

		if rt, ok := consoleRealtime[line]; ok {
			ctrl.SendRealtime(rt)
			continue
		}

		resp, err := ctrl.Submit(context.Background(), grbl.Line(line))
		if err != nil {
			fmt.Printf(": %v\n", err)
			continue
		}
		if resp.Ok {
			fmt.Println(": ok")
		} else {
			fmt.Printf(": error: %s\n", resp.ErrorText())
		}
	}
}
