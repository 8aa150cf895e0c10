// Package crontab edits cron tables while leaving lines it does not own
// untouched. Owned lines carry a trailing "# cronlock:<tag>" marker.
package crontab

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

const marker = "# cronlock:"

type Entry struct {
	Tag    string
	Rule   string
	Action string
}

// Line renders the entry as a crontab line.
func (e Entry) Line() string {
	return e.Rule + " " + escapeAction(e.Action) + " " + marker + e.Tag
}

type Table struct {
	mu      sync.Mutex
	backend Backend
}

func NewTable(b Backend) *Table { return &Table{backend: b} }

// Upsert replaces every entry tagged tag with a single new entry.
func (t *Table) Upsert(ctx context.Context, tag, rule, action string) error {
	if err := validTag(tag); err != nil {
		return err
	}
	if strings.ContainsAny(rule+action, "\n\r") {
		return fmt.Errorf("crontab: rule and action must be single-line")
	}
	return t.edit(ctx, func(lines []line) []line {
		out := dropTag(lines, tag)
		e := Entry{Tag: tag, Rule: strings.TrimSpace(rule), Action: strings.TrimSpace(action)}
		return append(out, line{raw: e.Line(), entry: &e})
	})
}

// RemoveAll deletes every entry tagged tag and reports how many were removed.
func (t *Table) RemoveAll(ctx context.Context, tag string) (int, error) {
	removed := 0
	err := t.edit(ctx, func(lines []line) []line {
		out := dropTag(lines, tag)
		removed = len(lines) - len(out)
		return out
	})
	return removed, err
}

// Find returns the first entry tagged tag.
func (t *Table) Find(ctx context.Context, tag string) (Entry, bool, error) {
	entries, err := t.Entries(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.Tag == tag {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// Entries lists the owned entries in table order.
func (t *Table) Entries(ctx context.Context) ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	raw, err := t.backend.Read(ctx)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, l := range parse(string(raw)) {
		if l.entry != nil {
			out = append(out, *l.entry)
		}
	}
	return out, nil
}

func (t *Table) edit(ctx context.Context, fn func([]line) []line) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	raw, err := t.backend.Read(ctx)
	if err != nil {
		return err
	}
	lines := fn(parse(string(raw)))
	return t.backend.Write(ctx, []byte(render(lines)))
}

func validTag(tag string) error {
	if strings.TrimSpace(tag) == "" || strings.ContainsAny(tag, "\n\r") {
		return fmt.Errorf("crontab: invalid tag %q", tag)
	}
	return nil
}

func dropTag(lines []line, tag string) []line {
	out := lines[:0:0]
	for _, l := range lines {
		if l.entry != nil && l.entry.Tag == tag {
			continue
		}
		out = append(out, l)
	}
	return out
}
