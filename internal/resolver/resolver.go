// Package resolver answers plans from the local record store.
package resolver

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/user/healthchat/internal/fhir"
	"github.com/user/healthchat/internal/types"
)

// Resolver reads records from a store and shapes them per a plan's filters.
type Resolver struct {
	store types.RecordStore
}

func New(store types.RecordStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the records matching the filters. Store failures are
// logged and yield an empty result, since a remote lookup can follow.
func (r *Resolver) Resolve(ctx context.Context, subject types.SubjectID, rt types.ResourceType, filters types.Filters, recordIndex *int) []types.Record {
	records, err := r.store.GetRecords(ctx, subject, rt)
	if err != nil {
		slog.Debug("local resolve failed", "subject", subject, "resource_type", rt, "error", err)
		return []types.Record{}
	}
	return Apply(records, filters, recordIndex)
}

// Apply runs the filter pipeline in memory: code search, status, sort,
// limit, then record index. The input slice is not modified.
func Apply(records []types.Record, filters types.Filters, recordIndex *int) []types.Record {
	out := make([]types.Record, 0, len(records))
	for _, rec := range records {
		if filters.CodeSearch != nil && !matchesCodeSearch(rec.Payload, filters.CodeSearch) {
			continue
		}
		if filters.Status != "" && !strings.EqualFold(fhir.Status(rec.Payload), filters.Status) {
			continue
		}
		out = append(out, rec)
	}

	if filters.Sort != nil {
		sortByDate(out, filters.Sort.Descending)
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	if recordIndex != nil {
		i := *recordIndex
		if i < 0 || i >= len(out) {
			return []types.Record{}
		}
		return []types.Record{out[i]}
	}
	return out
}

// Fields consulted when matching a code search.
var (
	codeFields = []string{"code.coding.code"}
	textFields = []string{"code.text", "code.coding.display"}
	freeText   = []string{"valueString", "note.text", "conclusion", "description"}
)

func matchesCodeSearch(payload map[string]any, cs *types.CodeSearch) bool {
	for _, path := range codeFields {
		for _, code := range fhir.Strings(payload, path) {
			for _, want := range cs.Codes {
				if code == want {
					return true
				}
			}
		}
	}

	terms := cs.Terms
	if len(terms) == 0 && cs.Bucket != "" {
		terms = []string{cs.Bucket}
	}
	for _, fields := range [][]string{textFields, freeText} {
		for _, path := range fields {
			for _, s := range fhir.Strings(payload, path) {
				if containsTerm(s, terms) {
					return true
				}
			}
		}
	}
	return false
}

func containsTerm(s string, terms []string) bool {
	s = strings.ToLower(s)
	for _, t := range terms {
		if t != "" && strings.Contains(s, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

type sortKey struct {
	raw    string
	t      time.Time
	parsed bool
	ok     bool
}

func keyFor(payload map[string]any) sortKey {
	raw, ok := fhir.RecordDate(payload)
	if !ok {
		return sortKey{}
	}
	t, parsed := fhir.ParseDate(raw)
	return sortKey{raw: raw, t: t, parsed: parsed, ok: true}
}

// sortByDate orders records by their first populated date field. Records
// without one go last in either direction and keep their relative order.
func sortByDate(records []types.Record, descending bool) {
	keys := make([]sortKey, len(records))
	for i := range records {
		keys[i] = keyFor(records[i].Payload)
	}
	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if !ka.ok || !kb.ok {
			return ka.ok && !kb.ok
		}
		c := compareKeys(ka, kb)
		if descending {
			return c > 0
		}
		return c < 0
	})

	sorted := make([]types.Record, len(records))
	for i, j := range idx {
		sorted[i] = records[j]
	}
	copy(records, sorted)
}

func compareKeys(a, b sortKey) int {
	if a.parsed && b.parsed {
		return a.t.Compare(b.t)
	}
	return strings.Compare(a.raw, b.raw)
}
