// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"slices"
	"sync"
	"time"

	"grbl-host/grbl"
)

// trendDB is an in-memory time series of controller state samples,
// keyed by series name ("status", "mpos.x", ...). Entries per key are
// kept sorted by time.
type trendDB struct {
	mu   sync.RWMutex
	data map[string][]trendSample
}

type trendSample struct {
	t int64 // unix time in nanosec
	v any
}

func newTrendDB() *trendDB {
	return &trendDB{
		data: make(map[string][]trendSample),
	}
}

// Record inserts one sample. If (key, time) exactly matches existing
// data, it is overwritten. Amortized O(log N) when time is newer than
// the previous Record for the same key, O(N) otherwise.
func (db *trendDB) Record(key string, tm time.Time, value any) {
	db.mu.Lock()
	defer db.mu.Unlock()

	newS := trendSample{
		t: tm.UnixNano(),
		v: value,
	}
	samples, ok := db.data[key]
	if !ok {
		db.data[key] = []trendSample{newS}
		return
	}

	// Append case (most typical)
	if newS.t > samples[len(samples)-1].t {
		db.data[key] = append(samples, newS)
		return
	}

	i, found := slices.BinarySearchFunc(samples, newS.t, func(s trendSample, t int64) int {
		if s.t < t {
			return -1
		} else if s.t > t {
			return 1
		}
		return 0
	})
	if found {
		samples[i] = newS
	} else {
		db.data[key] = slices.Insert(samples, i, newS)
	}
}

func sampleTimes(start int64, end int64, step int64) []int64 {
	res := []int64{}
	curr := start
	for curr <= end {
		res = append(res, curr)
		curr += step
	}
	return res
}

// Find latest sample in [start, end]. Return nil if not found.
// O(log N) (where N=len(sorted))
func findLatestInWindow(start int64, end int64, sorted []trendSample) *trendSample {
	i, _ := slices.BinarySearchFunc(sorted, end, func(s trendSample, t int64) int {
		if s.t < t {
			return -1
		} else if s.t > t {
			return 1
		}
		return 0
	})
	i = min(i, len(sorted)-1) // binary search can return len(sorted)
	for i >= 0 {
		t := sorted[i].t
		if start <= t && t <= end {
			return &sorted[i]
		}
		if t < start {
			return nil
		}
		i--
	}
	return nil
}

// SampleRanges queries the time series of the given keys with periodic
// sampling. Query timestamps are start + step*0, start + step*1, ...
// up to and including end. For each timestamp T, the latest sample in
// window [T-step, T] is returned; nil when the window is empty. No
// interpolation between samples.
func (db *trendDB) SampleRanges(keys []string, start time.Time, end time.Time, step time.Duration) ([]time.Time, map[string][]any) {
	sampleTs := sampleTimes(start.UnixNano(), end.UnixNano(), step.Nanoseconds())

	db.mu.RLock()
	defer db.mu.RUnlock()

	tms := make([]time.Time, len(sampleTs))
	valsMap := make(map[string][]any)
	for i, t := range sampleTs {
		tms[i] = time.Unix(0, t)
	}
	for _, key := range keys {
		valsMap[key] = make([]any, len(sampleTs))
		samples, ok := db.data[key]
		if !ok {
			continue // all values are nil
		}
		for i, t := range sampleTs {
			s := findLatestInWindow(t-step.Nanoseconds(), t, samples)
			if s != nil {
				valsMap[key][i] = s.v
			}
		}
	}
	return tms, valsMap
}

// recordStateTrends folds a driver's state stream into the trend DB
// until the driver terminates.
func recordStateTrends(db *trendDB, ctrl *grbl.Controller) {
	sub := ctrl.SubscribeState()
	for st := range sub {
		now := time.Now()
		db.Record("status", now, st.Status.String())
		db.Record("mpos.x", now, st.MachinePosition.X)
		db.Record("mpos.y", now, st.MachinePosition.Y)
		db.Record("mpos.z", now, st.MachinePosition.Z)
		db.Record("wpos.x", now, st.WorkPosition.X)
		db.Record("wpos.y", now, st.WorkPosition.Y)
		db.Record("wpos.z", now, st.WorkPosition.Z)
	}
}
