// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"regexp"
	"sync"
	"time"

	"grbl-host/grbl"
)

const hostVersion = "grbl-host 0.1.0"

var realtimeByName = map[string]grbl.RealtimeCommand{
	"soft-reset":             grbl.SoftReset,
	"status-report-query":    grbl.StatusReportQuery,
	"cycle-start-resume":     grbl.CycleStartResume,
	"feed-hold":              grbl.FeedHold,
	"safety-door":            grbl.SafetyDoor,
	"jog-cancel":             grbl.JogCancel,
	"feed-override-reset":    grbl.FeedOverrideReset,
	"feed-override-inc-10":   grbl.FeedOverrideInc10,
	"feed-override-dec-10":   grbl.FeedOverrideDec10,
	"feed-override-inc-1":    grbl.FeedOverrideInc1,
	"feed-override-dec-1":    grbl.FeedOverrideDec1,
	"rapid-override-full":    grbl.RapidOverrideFull,
	"rapid-override-half":    grbl.RapidOverrideHalf,
	"rapid-override-quarter": grbl.RapidOverrideQuarter,
	"speed-override-reset":   grbl.SpeedOverrideReset,
	"speed-override-inc-10":  grbl.SpeedOverrideInc10,
	"speed-override-dec-10":  grbl.SpeedOverrideDec10,
	"speed-override-inc-1":   grbl.SpeedOverrideInc1,
	"speed-override-dec-1":   grbl.SpeedOverrideDec1,
	"toggle-spindle-stop":    grbl.ToggleSpindleStop,
	"toggle-flood-coolant":   grbl.ToggleFloodCoolant,
	"toggle-mist-coolant":    grbl.ToggleMistCoolant,
}

// app wires the driver to the HTTP API, the console, the traffic log
// and the job scheduler. The driver handle is swapped on reconnect.
type app struct {
	serialPath string
	initFile   string

	lineLog *lineLog
	trends  *trendDB
	jobs    *JobSched

	mu   sync.Mutex
	ctrl *grbl.Controller
}

func (a *app) controller() *grbl.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctrl
}

func (a *app) setController(ctrl *grbl.Controller) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctrl = ctrl
}

// submitter adapts the current driver for the job scheduler.
func (a *app) submitter() lineSubmitter {
	ctrl := a.controller()
	if ctrl == nil {
		return nil
	}
	return ctrl
}

func (a *app) WriteLine(req *WriteLineRequest) (*WriteLineResponse, error) {
	now := func() float64 { return unixTime(time.Now()) }

	ctrl := a.controller()
	if ctrl == nil {
		return &WriteLineResponse{Error: "controller not connected", Time: now()}, nil
	}

	resp, err := ctrl.Submit(context.Background(), grbl.Line(req.Line))
	if err != nil {
		return &WriteLineResponse{Error: err.Error(), Time: now()}, nil
	}
	if !resp.Ok {
		return &WriteLineResponse{Error: resp.ErrorText(), Time: now()}, nil
	}
	return &WriteLineResponse{OK: true, Time: now()}, nil
}

func (a *app) SendRealtime(req *SendRealtimeRequest) (*SendRealtimeResponse, error) {
	if ctrl := a.controller(); ctrl != nil {
		ctrl.SendRealtime(realtimeByName[req.Command])
	}
	return &SendRealtimeResponse{}, nil
}

func (a *app) GetState(req *GetStateRequest) (*GetStateResponse, error) {
	var st grbl.State
	if ctrl := a.controller(); ctrl != nil {
		st = ctrl.LatestState()
	} else {
		st = grbl.State{Status: grbl.StateIdle}
	}

	return &GetStateResponse{
		Status:          st.Status.String(),
		MachinePosition: [3]float64{st.MachinePosition.X, st.MachinePosition.Y, st.MachinePosition.Z},
		WorkPosition:    [3]float64{st.WorkPosition.X, st.WorkPosition.Y, st.WorkPosition.Z},
		Time:            unixTime(time.Now()),
	}, nil
}

func (a *app) GetInfo(req *GetInfoRequest) (*GetInfoResponse, error) {
	resp := &GetInfoResponse{
		Version:     hostVersion,
		Controller:  string(grbl.KindGrbl),
		Description: a.serialPath,
	}
	if ctrl := a.controller(); ctrl != nil {
		kind, path := ctrl.Description()
		resp.Controller = string(kind)
		resp.Description = path
		resp.Connected = true
	}
	return resp, nil
}

func (a *app) QueryLines(req *QueryLinesRequest) (*QueryLinesResponse, error) {
	var filterRegex *regexp.Regexp
	if req.FilterRegex != "" {
		filterRegex, _ = regexp.Compile(req.FilterRegex)
	}

	opts := QueryOptions{
		FilterDir:   req.FilterDir,
		FilterRegex: filterRegex,
	}

	tailExists := req.Tail != nil
	rangeExists := req.FromLine != nil || req.ToLine != nil
	if tailExists {
		opts.Scan = TailScan{N: *req.Tail}
	} else if rangeExists {
		opts.Scan = RangeScan{FromLine: req.FromLine, ToLine: req.ToLine}
	}

	lines := a.lineLog.Query(opts)

	totalCount := len(lines)
	const maxLines = 1000 // Limit response to 1000 lines
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}

	resp := &QueryLinesResponse{
		Count: totalCount,
		Lines: make([]LineInfo, len(lines)),
		Now:   unixTime(time.Now()),
	}
	for i, l := range lines {
		resp.Lines[i] = LineInfo{
			LineNum: l.num,
			Dir:     l.dir,
			Content: l.content,
			Time:    unixTime(l.time),
		}
	}
	return resp, nil
}

func (a *app) QueryTS(req *QueryTSRequest) (*QueryTSResponse, error) {
	start := time.Unix(0, int64(req.Start*float64(time.Second)))
	end := time.Unix(0, int64(req.End*float64(time.Second)))
	step := time.Duration(float64(req.Step) * float64(time.Second))

	tms, valsMap := a.trends.SampleRanges(req.Query, start, end, step)

	resp := &QueryTSResponse{
		Times:  make([]float64, len(tms)),
		Values: valsMap,
	}
	for i, tm := range tms {
		resp.Times[i] = unixTime(tm)
	}
	return resp, nil
}

func (a *app) AddJob(req *AddJobRequest) (*AddJobResponse, error) {
	jobID, ok := a.jobs.AddJob(req.Lines)
	if !ok {
		return &AddJobResponse{}, nil
	}
	return &AddJobResponse{OK: true, JobID: &jobID}, nil
}

func (a *app) ListJobs(req *ListJobsRequest) (*ListJobsResponse, error) {
	jobs := a.jobs.ListJobs()
	resp := &ListJobsResponse{Jobs: make([]JobInfo, len(jobs))}
	for i, job := range jobs {
		info := JobInfo{
			JobID:     job.ID,
			Status:    string(job.Status),
			Error:     job.Error,
			TimeAdded: unixTime(job.TimeAdded),
		}
		if job.TimeStarted != nil {
			t := unixTime(*job.TimeStarted)
			info.TimeStarted = &t
		}
		if job.TimeEnded != nil {
			t := unixTime(*job.TimeEnded)
			info.TimeEnded = &t
		}
		resp.Jobs[i] = info
	}
	return resp, nil
}

func (a *app) Cancel(req *CancelRequest) (*CancelResponse, error) {
	return &CancelResponse{Canceled: a.jobs.CancelJob()}, nil
}

func (a *app) SetInit(req *SetInitRequest) (*SetInitResponse, error) {
	if err := writeInitLines(a.initFile, req.Lines); err != nil {
		return nil, err
	}
	return &SetInitResponse{}, nil
}

func (a *app) GetInit(req *GetInitRequest) (*GetInitResponse, error) {
	lines, err := fetchInitLines(a.initFile)
	if err != nil {
		return nil, err
	}
	return &GetInitResponse{Lines: lines}, nil
}
