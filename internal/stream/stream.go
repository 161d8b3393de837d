// Package stream turns changes to issues.jsonl into a feed of events.
//
// An Emitter keeps the last seen issue state and the file offset it has
// read up to. Appended bytes are parsed incrementally; a file that shrank
// was rewritten (compaction, archive) and is reloaded in full.
package stream

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dogcat/dogcat/internal/debug"
	"github.com/dogcat/dogcat/internal/jsonlfile"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/replay"
	"github.com/dogcat/dogcat/internal/types"
)

const (
	retryAttempts = 3
	retryDelay    = 50 * time.Millisecond
)

// Emitter computes events from successive states of one log file.
type Emitter struct {
	path   string
	by     string
	now    func() time.Time
	state  map[string]*types.Issue
	offset int64
}

// NewEmitter loads the current state of path. by is attributed to every
// event; now may be nil.
func NewEmitter(path, by string, now func() time.Time) *Emitter {
	if now == nil {
		now = time.Now
	}
	e := &Emitter{path: path, by: by, now: now}
	e.reload()
	return e
}

func (e *Emitter) reload() {
	e.state = map[string]*types.Issue{}
	e.offset = 0
	data, err := os.ReadFile(e.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			debug.Warn("stream: failed to read log", "path", e.path, "error", err)
		}
		return
	}
	end := completeLines(data)
	state, _ := replay.ReplayBytes(data[:end])
	e.state = live(state.Issues())
	e.offset = int64(end)
}

// Check reads whatever changed since the last call and returns the
// resulting events, sorted by issue id.
func (e *Emitter) Check() []types.Event {
	var size int64
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		var info os.FileInfo
		if info, err = os.Stat(e.path); err == nil {
			size = info.Size()
			break
		}
		time.Sleep(retryDelay)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && len(e.state) > 0 {
			old := e.state
			e.state, e.offset = map[string]*types.Issue{}, 0
			return e.diff(old, e.state)
		}
		return nil
	}

	old := e.state
	switch {
	case size < e.offset:
		e.reload()
	case size == e.offset:
		return nil
	default:
		next, err := e.readAppended()
		if err != nil {
			debug.Logf("stream: incremental read failed, reloading: %v", err)
			e.reload()
		} else {
			e.state = next
		}
	}
	return e.diff(old, e.state)
}

// readAppended applies the complete lines written after the offset to a
// copy of the state.
func (e *Emitter) readAppended() (map[string]*types.Issue, error) {
	f, err := os.Open(e.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Seek(e.offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	end := completeLines(data)

	next := make(map[string]*types.Issue, len(e.state))
	for id, issue := range e.state {
		next[id] = issue
	}
	for _, line := range jsonlfile.SplitLines(data[:end]) {
		rec, err := record.Parse(line)
		if err != nil {
			return nil, err
		}
		if rec == nil || rec.Kind != record.KindIssue {
			continue
		}
		issue := rec.Issue()
		if issue.IsTombstone() {
			delete(next, issue.FullID())
		} else {
			next[issue.FullID()] = issue
		}
	}
	e.offset += int64(end)
	return next, nil
}

func (e *Emitter) diff(old, next map[string]*types.Issue) []types.Event {
	ts := types.FormatTime(e.now())
	var events []types.Event
	for id, issue := range next {
		prev, ok := old[id]
		if !ok {
			events = append(events, types.Event{EventType: types.EventCreated, IssueID: id, Timestamp: ts, By: e.by, Title: issue.Title, Changes: types.TrackedChanges(nil, issue)})
			continue
		}
		changes := types.TrackedChanges(prev, issue)
		if len(changes) == 0 {
			continue
		}
		eventType := types.EventUpdated
		if ch, ok := changes["status"]; ok && ch.New == string(types.StatusClosed) {
			eventType = types.EventClosed
		}
		events = append(events, types.Event{EventType: eventType, IssueID: id, Timestamp: ts, By: e.by, Title: issue.Title, Changes: changes})
	}
	for id, issue := range old {
		if _, ok := next[id]; ok {
			continue
		}
		events = append(events, types.Event{
			EventType: types.EventDeleted,
			IssueID:   id,
			Timestamp: ts,
			By:        e.by,
			Title:     issue.Title,
			Changes:   map[string]types.FieldChange{"status": {Old: string(issue.Status), New: "deleted"}},
		})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].IssueID < events[j].IssueID })
	return events
}

// completeLines returns the length of data up to and including its last
// newline, so a line still being written is left for the next read.
func completeLines(data []byte) int {
	return bytes.LastIndexByte(data, '\n') + 1
}

func live(issues []*types.Issue) map[string]*types.Issue {
	m := make(map[string]*types.Issue, len(issues))
	for _, issue := range issues {
		if !issue.IsTombstone() {
			m[issue.FullID()] = issue
		}
	}
	return m
}
