// Package merge is a git merge driver that understands the dogcat log.
//
// git's line merge flags concurrent appends to issues.jsonl as conflicts.
// The driver instead merges record by record: the latest snapshot of each
// issue wins, edge records keep both sides' changes on top of the common
// ancestor, and events are deduplicated.
package merge

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dogcat/dogcat/internal/jsonlfile"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/types"
)

// Merge combines ours and theirs against their common ancestor base.
//
// The result holds issues and proposals (latest updated_at wins, ties go
// to theirs), then dependencies, then links, then events sorted by
// timestamp. Edge records are merged as logs: the base records once, then
// what ours appended, then what theirs appended, each side in its own
// order, so a removal made on either side stays after the add it undoes.
// Unparseable lines are dropped.
func Merge(base, ours, theirs []byte) []byte {
	baseRecs, ourRecs, theirRecs := parse(base), parse(ours), parse(theirs)

	snapshots := newOrdered()
	events := newOrdered()
	for _, rec := range append(ourRecs, theirRecs...) {
		switch rec.Kind {
		case record.KindIssue, record.KindProposal:
			key := rec.Kind.String() + "\x00" + rec.FullID()
			if prev, ok := snapshots.get(key); ok && timeOf(rec, "updated_at").Before(timeOf(prev, "updated_at")) {
				continue
			}
			snapshots.replace(key, rec)
		case record.KindEvent:
			key := rec.Str("issue_id") + "\x00" + rec.Str("timestamp") + "\x00" + rec.Str("event_type")
			if _, ok := events.get(key); !ok {
				events.replace(key, rec)
			}
		}
	}

	sortedEvents := events.values()
	sort.SliceStable(sortedEvents, func(i, j int) bool {
		return timeOf(sortedEvents[i], "timestamp").Before(timeOf(sortedEvents[j], "timestamp"))
	})

	var out [][]byte
	for _, rec := range snapshots.values() {
		out = append(out, rec.Line)
	}
	for _, kind := range []record.Kind{record.KindDependency, record.KindLink} {
		for _, rec := range mergeEdges(ofKind(baseRecs, kind), ofKind(ourRecs, kind), ofKind(theirRecs, kind)) {
			out = append(out, rec.Line)
		}
	}
	for _, rec := range sortedEvents {
		out = append(out, rec.Line)
	}
	return jsonlfile.Join(out)
}

// mergeEdges returns base followed by the records each side appended.
// A side's record counts as appended once the base occurrences of the same
// edge and op are used up, so a remove-then-re-add on one side keeps both
// records. A record theirs appended with the same bytes as one ours
// appended is the same change arriving twice and is kept once.
func mergeEdges(base, ours, theirs []*record.Record) []*record.Record {
	out := append([]*record.Record(nil), base...)
	added := func(side []*record.Record) []*record.Record {
		remaining := map[string]int{}
		for _, rec := range base {
			remaining[edgeKey(rec)]++
		}
		var recs []*record.Record
		for _, rec := range side {
			k := edgeKey(rec)
			if remaining[k] > 0 {
				remaining[k]--
				continue
			}
			recs = append(recs, rec)
		}
		return recs
	}

	seen := map[string]bool{}
	for _, rec := range added(ours) {
		seen[string(rec.Line)] = true
		out = append(out, rec)
	}
	for _, rec := range added(theirs) {
		if seen[string(rec.Line)] {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func parse(data []byte) []*record.Record {
	var recs []*record.Record
	for _, line := range jsonlfile.SplitLines(data) {
		rec, err := record.Parse(line)
		if err != nil || rec == nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs
}

func ofKind(recs []*record.Record, kind record.Kind) []*record.Record {
	var out []*record.Record
	for _, rec := range recs {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

// Files runs the driver the way git invokes it: the merged result
// replaces the ours file.
func Files(basePath, oursPath, theirsPath string) error {
	read := func(path string) ([]byte, error) {
		data, err := os.ReadFile(path) // #nosec G304 - paths come from git
		if os.IsNotExist(err) {
			return nil, nil
		}
		return data, err
	}
	base, err := read(basePath)
	if err != nil {
		return fmt.Errorf("reading base: %w", err)
	}
	ours, err := read(oursPath)
	if err != nil {
		return fmt.Errorf("reading ours: %w", err)
	}
	theirs, err := read(theirsPath)
	if err != nil {
		return fmt.Errorf("reading theirs: %w", err)
	}
	if err := jsonlfile.WriteAtomic(oursPath, Merge(base, ours, theirs)); err != nil {
		return fmt.Errorf("writing merge result: %w", err)
	}
	return nil
}

// timeOf parses a timestamp field; missing or malformed values sort first.
func timeOf(rec *record.Record, key string) time.Time {
	t, _ := types.ParseTime(rec.Str(key))
	return t
}

// edgeKey identifies an add or remove of one edge. Type is part of the key
// so the same pair can carry several dependency types.
func edgeKey(rec *record.Record) string {
	var k types.EdgeKey
	if rec.Kind == record.KindLink {
		k = rec.Link().Key()
	} else {
		k = rec.Dependency().Key()
	}
	return k.From + "\x00" + k.To + "\x00" + k.Type + "\x00" + rec.Op()
}

// ordered is an insertion-ordered map of records.
type ordered struct {
	keys []string
	recs map[string]*record.Record
}

func newOrdered() *ordered {
	return &ordered{recs: map[string]*record.Record{}}
}

func (o *ordered) get(key string) (*record.Record, bool) {
	r, ok := o.recs[key]
	return r, ok
}

// replace stores rec under key, keeping the key's first position.
func (o *ordered) replace(key string, rec *record.Record) {
	if _, ok := o.recs[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.recs[key] = rec
}

func (o *ordered) values() []*record.Record {
	out := make([]*record.Record, 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, o.recs[k])
	}
	return out
}
