package queue

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

func (e *Engine) loaderLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case id := <-e.notify:
			e.loadMess(id)
		case <-ticker.C:
			if e.freeIsFull() {
				e.reclaimSweep()
			}
		}
	}
}

func (e *Engine) freeIsFull() bool {
	e.freeMu.Lock()
	defer e.freeMu.Unlock()
	return e.freeCount == e.arenaSize
}

// loadMess loads mess/<id>, skipping files that are already tracked
// in-flight, not a regular file, or whose length-prefix marks them
// incomplete. Failures are logged and otherwise ignored per the "inaccessible
// files are skipped" failure model.
func (e *Engine) loadMess(id uint32) {
	e.inFlightMu.Lock()
	if _, ok := e.inFlight[id]; ok {
		e.inFlightMu.Unlock()
		return
	}
	e.inFlightMu.Unlock()

	path := filepath.Join(e.messDir, strconv.FormatUint(uint64(id), 10))
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	rounded := ((info.Size()-1)/roundingUnit + 1) * roundingUnit
	if rounded <= 0 {
		rounded = roundingUnit
	}

	if !e.acquireNode(rounded) {
		e.log.Debugf("queue: refusing mess/%d, no free node or memory budget", id)
		return
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		e.releaseNode(rounded)
		e.log.Error("queue: reading spill file", err, "flush_id", id)
		return
	}

	msg, err := parseSpillFile(buf)
	if err != nil {
		e.releaseNode(rounded)
		if err != errIncomplete {
			e.log.Error("queue: parsing spill file", err, "flush_id", id)
		}
		return
	}
	msg.roundedSize = rounded

	e.inFlightMu.Lock()
	e.inFlight[id] = struct{}{}
	e.inFlightMu.Unlock()

	e.usedMu.Lock()
	e.used = append(e.used, msg)
	e.usedMu.Unlock()
}

// reclaimSweep rescans mess/ for files not already tracked in-flight,
// recovering from a lost notification (the liveness fallback the design
// notes call "reclaim-by-dirent-sweep"). Entry order is whatever os.ReadDir
// returns, which is sorted by file name; the sweep applies no ordering of
// its own and nothing depends on that order (see SPEC_FULL.md §11).
func (e *Engine) reclaimSweep() {
	entries, err := os.ReadDir(e.messDir)
	if err != nil {
		e.log.Error("queue: reclaim sweep failed to read mess directory", err)
		return
	}

	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		id, err := strconv.ParseUint(ent.Name(), 10, 32)
		if err != nil {
			continue
		}
		e.loadMess(uint32(id))
	}
}
