// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// trafficLine is one raw line exchanged with the controller.
type trafficLine struct {
	num     int
	dir     string // "up" for controller->host, "down" for host->controller
	content string
	time    time.Time
}

// formatHostTime formats a time.Time to the standard string format used
// by the API and the session log.
func formatHostTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05.000-07:00")
}

// lineLog keeps the numbered in-memory record of raw link traffic,
// mirrored to a per-session log file. It plugs into the driver as its
// traffic recorder.
type lineLog struct {
	mu      sync.RWMutex
	lines   []trafficLine
	nextNum int

	file  *os.File
	dirty bool
	done  chan struct{}
}

// newLineLog creates the log. logDir may be empty for memory-only
// operation; file trouble degrades to memory-only with a logged error.
func newLineLog(logDir string) *lineLog {
	ll := &lineLog{
		nextNum: 1,
		done:    make(chan struct{}),
	}
	if logDir == "" {
		return ll
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		slog.Error("Failed to create log directory", "dir", logDir, "error", err)
		return ll
	}

	filename := findNextSessionFile(logDir, time.Now())
	if filename == "" {
		slog.Error("Failed to read log directory, continuing without log file", "dir", logDir)
		return ll
	}

	logPath := filepath.Join(logDir, filename)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.Error("Failed to create log file", "path", logPath, "error", err)
		return ll
	}
	ll.file = file
	slog.Info("Created session log file", "path", logPath)

	go ll.flushLoop()
	return ll
}

// findNextSessionFile scans the log directory for existing session
// files and returns the next available filename for today.
func findNextSessionFile(logDir string, now time.Time) string {
	today := now.Format("2006-01-02")

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return ""
	}
	// Pattern to match: YYYY-MM-DD-sessN-serial.txt
	pattern := regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-sess(\d+)-serial\.txt$`)
	maxSession := -1

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := pattern.FindStringSubmatch(entry.Name())
		if len(matches) == 3 && matches[1] == today {
			sessionNum, err := strconv.Atoi(matches[2])
			if err == nil && sessionNum > maxSession {
				maxSession = sessionNum
			}
		}
	}

	return fmt.Sprintf("%s-sess%d-serial.txt", today, maxSession+1)
}

func (ll *lineLog) flushLoop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ll.mu.Lock()
			if ll.dirty && ll.file != nil {
				ll.file.Sync()
				ll.dirty = false
			}
			ll.mu.Unlock()
		case <-ll.done:
			return
		}
	}
}

// RecordLine appends one traffic line. Satisfies grbl.TrafficRecorder.
func (ll *lineLog) RecordLine(dir string, content string) {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	now := time.Now()
	l := trafficLine{
		num:     ll.nextNum,
		dir:     dir,
		content: content,
		time:    now,
	}
	ll.lines = append(ll.lines, l)
	ll.nextNum++

	if ll.file != nil {
		logLine := fmt.Sprintf("%s %d %s %s\n", formatHostTime(now), l.num, dir, content)
		if _, err := ll.file.WriteString(logLine); err != nil {
			slog.Error("Failed to write to log file", "error", err)
			return
		}
		ll.dirty = true
	}
}

// ScanRange represents either a line range or tail mode
type ScanRange interface {
	// Extract returns the lines from the given slice according to the scan range
	Extract(lines []trafficLine) []trafficLine
}

// RangeScan represents scanning from FromLine to ToLine
// Requirement: ToLine >= FromLine.
type RangeScan struct {
	FromLine *int // Start line (inclusive, 1-based), nil means from beginning
	ToLine   *int // End line (exclusive, 1-based), nil means to end
}

func (r RangeScan) Extract(lines []trafficLine) []trafficLine {
	start := 0
	if r.FromLine != nil && *r.FromLine > 0 {
		start = *r.FromLine - 1
		if start >= len(lines) {
			return []trafficLine{}
		}
	}

	end := len(lines)
	if r.ToLine != nil && *r.ToLine > 0 {
		end = *r.ToLine - 1 // Convert to 0-based
		if end > len(lines) {
			end = len(lines)
		}
	}

	return lines[start:end]
}

// TailScan represents scanning last N lines
type TailScan struct {
	N int // Number of lines from end
}

func (t TailScan) Extract(lines []trafficLine) []trafficLine {
	if t.N <= 0 {
		return []trafficLine{}
	}
	if t.N >= len(lines) {
		return lines
	}
	return lines[len(lines)-t.N:]
}

// QueryOptions specifies parameters for querying lines
type QueryOptions struct {
	// Range specification (optional: all lines if nil)
	Scan ScanRange

	// Filters (all are optional and combined with AND)
	FilterDir   string         // "up" or "down", empty means any
	FilterRegex *regexp.Regexp // Compiled regex, nil means no filter
}

// Query returns the lines matching the given options.
func (ll *lineLog) Query(opts QueryOptions) []trafficLine {
	ll.mu.RLock()
	defer ll.mu.RUnlock()

	lines := ll.lines
	if opts.Scan != nil {
		lines = opts.Scan.Extract(ll.lines)
	}

	var result []trafficLine
	for _, l := range lines {
		if opts.FilterDir != "" && l.dir != opts.FilterDir {
			continue
		}
		if opts.FilterRegex != nil && !opts.FilterRegex.MatchString(l.content) {
			continue
		}
		result = append(result, l)
	}
	return result
}

// Close flushes and closes the session log file.
func (ll *lineLog) Close() {
	close(ll.done)

	ll.mu.Lock()
	defer ll.mu.Unlock()
	if ll.file != nil {
		if ll.dirty {
			ll.file.Sync()
		}
		ll.file.Close()
		ll.file = nil
	}
}
