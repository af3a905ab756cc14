// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"

	"grbl-host/grbl"
)

func main() {
	configPath := flag.String("config", "", "YAML config file path")
	serialPath := flag.String("port", "", "Serial port path (overrides config)")
	baud := flag.Int("baud", 0, "Serial baud rate (0 selects 115200)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	logDir := flag.String("log-dir", "logs", "Directory for session log files")
	initFile := flag.String("init-file", "init.gcode", "Init file path")
	verbose := flag.Bool("verbose", false, "Verbose logging")
	flag.Parse()

	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	var cfg Config
	if *configPath != "" {
		c, err := loadConfig(*configPath)
		if err != nil {
			slog.Error("Failed to load config", "path", *configPath, "error", err)
			return
		}
		cfg = c
	}
	if *serialPath != "" {
		cfg.Controller.Path = *serialPath
	}
	if *baud != 0 {
		cfg.Controller.Baud = *baud
	}
	listen := cfg.Server.addr()
	if *addr != "" {
		listen = *addr
	}
	if cfg.Controller.Path == "" {
		slog.Error("No serial port configured; use -port or a config file")
		return
	}

	logDirAbs, err := filepath.Abs(*logDir)
	if err != nil {
		slog.Error("Failed to resolve log directory path", "logDir", *logDir, "error", err)
		return
	}
	initFileAbs, err := filepath.Abs(*initFile)
	if err != nil {
		slog.Error("Failed to resolve init file path", "initFile", *initFile, "error", err)
		return
	}
	if _, err := fetchInitLines(initFileAbs); err != nil {
		slog.Error("Init file error", "error", err)
		return
	}

	a := &app{
		serialPath: cfg.Controller.Path,
		initFile:   initFileAbs,
		lineLog:    newLineLog(logDirAbs),
		trends:     newTrendDB(),
	}
	defer a.lineLog.Close()
	a.jobs = InitJobSched(a.submitter)

	go a.maintainLink(cfg.Controller.Path, cfg.Controller.Baud)
	go runConsole(a)

	slog.Info("HTTP server started", "addr", listen)
	if err := StartHTTPServer(listen, a); err != nil {
		slog.Error("HTTP server error", "error", err)
	}
}

// maintainLink keeps one driver open against the configured port,
// reopening with exponential backoff after a link failure.
func (a *app) maintainLink(path string, baud int) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry forever

	for {
		var ctrl *grbl.Controller
		err := backoff.Retry(func() error {
			c, err := grbl.Open(path, baud, a.lineLog)
			if err != nil {
				slog.Warn("Failed to open controller", "port", path, "error", err)
				return err
			}
			ctrl = c
			return nil
		}, bo)
		if err != nil {
			// Not reachable without an elapsed-time limit.
			slog.Error("Giving up on controller", "port", path, "error", err)
			return
		}
		bo.Reset()

		a.setController(ctrl)
		go recordStateTrends(a.trends, ctrl)
		go drainProtocolErrors(ctrl)

		if lines, err := fetchInitLines(a.initFile); err == nil {
			runInitLines(ctrl, lines)
		} else {
			slog.Warn("Init file unreadable", "error", err)
		}

		<-ctrl.Done()
		a.setController(nil)
		err = ctrl.Err()
		if err == nil {
			return
		}
		slog.Error("Controller link lost; reconnecting", "port", path, "error", err)
	}
}

// drainProtocolErrors keeps the driver's error channel from sitting
// full; the driver has already logged each one.
func drainProtocolErrors(ctrl *grbl.Controller) {
	for {
		select {
		case err := <-ctrl.Errors():
			slog.Debug("Protocol error surfaced", "error", err)
		case <-ctrl.Done():
			return
		}
	}
}
