// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"grbl-host/grbl"
)

func fetchInitLines(filePath string) ([]string, error) {
	// Check if init file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		// Create empty init file
		if err := os.WriteFile(filePath, []byte(""), 0644); err != nil {
			return nil, fmt.Errorf("failed to create init file: %w", err)
		}
		slog.Info("Created empty init file", "path", filePath)
	} else if err != nil {
		return nil, fmt.Errorf("failed to check init file: %w", err)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read init file: %w", err)
	}

	var initLines []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			initLines = append(initLines, line)
		}
	}
	return initLines, nil
}

func writeInitLines(filePath string, lines []string) error {
	content := strings.Join(lines, "\n")
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write init file: %w", err)
	}
	return nil
}

// runInitLines submits the init file's lines once after the link comes
// up. A line the controller rejects is logged and the remaining lines
// still go out; a line that cannot be delivered is logged and stops the
// rest.
func runInitLines(ctrl *grbl.Controller, lines []string) {
	for _, line := range lines {
		resp, err := ctrl.Submit(context.Background(), grbl.Line(line))
		if err != nil {
			slog.Warn("Init line not delivered", "line", line, "error", err)
			return
		}
		if !resp.Ok {
			slog.Warn("Init line rejected", "line", line, "error", resp.ErrorText())
		}
	}
	if len(lines) > 0 {
		slog.Info("Init lines sent", "count", len(lines))
	}
}
