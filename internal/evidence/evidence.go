// Package evidence holds the append-only record of what retrieval tools
// returned during a single investigation run.
package evidence

import (
	"fmt"
	"time"
)

// ToolCall records one tool invocation. Immutable once recorded.
type ToolCall struct {
	Seq   int            `json:"seq"`
	Tool  string         `json:"tool"`
	Args  map[string]any `json:"args,omitempty"`
	Stage string         `json:"stage"`
	At    time.Time      `json:"at"`
}

// Finding is a single structured item returned by a tool.
type Finding struct {
	Source  string `json:"source"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Content string `json:"content"`
}

// Evidence is one item in the store. A call that returned nothing, or
// failed, yields exactly one Evidence with NoData set and a Note saying why.
type Evidence struct {
	ID      string   `json:"id"`
	CallSeq int      `json:"call_seq"`
	Tool    string   `json:"tool"`
	Data    *Finding `json:"data,omitempty"`
	NoData  bool     `json:"no_data"`
	Note    string   `json:"note,omitempty"`
}

// Store is the ordered evidence collection for one run.
// It is owned by the run's controller and is not safe for concurrent writers.
type Store struct {
	calls []ToolCall
	items []Evidence
	index map[string]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Record appends a tool call and the evidence it produced. The call's
// sequence number is assigned here. Findings become one Evidence each,
// identified as E<seq>.<n>; an empty result becomes a single no-data item.
func (s *Store) Record(tool string, args map[string]any, stage string, findings []Finding, note string) (ToolCall, []Evidence) {
	call := ToolCall{
		Seq:   len(s.calls) + 1,
		Tool:  tool,
		Args:  copyArgs(args),
		Stage: stage,
		At:    time.Now(),
	}
	s.calls = append(s.calls, call)

	var added []Evidence
	if len(findings) == 0 {
		added = append(added, Evidence{
			ID:      itemID(call.Seq, 1),
			CallSeq: call.Seq,
			Tool:    tool,
			NoData:  true,
			Note:    note,
		})
	}
	for i := range findings {
		f := findings[i]
		added = append(added, Evidence{
			ID:      itemID(call.Seq, i+1),
			CallSeq: call.Seq,
			Tool:    tool,
			Data:    &f,
			Note:    note,
		})
	}

	for _, e := range added {
		s.index[e.ID] = len(s.items)
		s.items = append(s.items, e)
	}
	return call, added
}

// All returns the evidence in append order.
func (s *Store) All() []Evidence {
	out := make([]Evidence, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the evidence with the given ID.
func (s *Store) Get(id string) (Evidence, bool) {
	i, ok := s.index[id]
	if !ok {
		return Evidence{}, false
	}
	return s.items[i], true
}

// Has reports whether id names an evidence item in this store.
func (s *Store) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of evidence items, including no-data ones.
func (s *Store) Len() int {
	return len(s.items)
}

// Calls returns the recorded tool calls in sequence order.
func (s *Store) Calls() []ToolCall {
	out := make([]ToolCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// WithData returns only the items that carry a payload.
func (s *Store) WithData() []Evidence {
	var out []Evidence
	for _, e := range s.items {
		if !e.NoData {
			out = append(out, e)
		}
	}
	return out
}

func itemID(seq, n int) string {
	return fmt.Sprintf("E%d.%d", seq, n)
}

func copyArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
