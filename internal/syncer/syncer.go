// Package syncer pulls a subject's full record set from the remote gateway
// into the local store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/healthchat/internal/fhir"
	"github.com/user/healthchat/internal/gateway"
	"github.com/user/healthchat/internal/types"
	"github.com/user/healthchat/pkg/mcp"
)

// PageSize is the _count ceiling sent with every search.
const PageSize = 1000

// FetchOrder is the fixed order of a sync run. Patient always comes first.
var FetchOrder = []types.ResourceType{
	types.Patient,
	types.Encounter,
	types.Observation,
	types.Condition,
	types.MedicationRequest,
	types.AllergyIntolerance,
	types.Immunization,
	types.DiagnosticReport,
	types.Procedure,
	types.DocumentReference,
}

// Orchestrator runs sync jobs. Types are fetched one after another, never in
// parallel, so the store sees a single writer per run.
type Orchestrator struct {
	invoker   mcp.ToolInvoker
	tool      string
	store     types.RecordStore
	summaries types.SummaryStore
	retry     *gateway.RetryPolicy
}

type Option func(*Orchestrator)

// WithRetry retries each type's fetch under policy.
func WithRetry(policy *gateway.RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = policy }
}

// WithSummaryStore persists each run's summary.
func WithSummaryStore(s types.SummaryStore) Option {
	return func(o *Orchestrator) { o.summaries = s }
}

func New(invoker mcp.ToolInvoker, tool string, store types.RecordStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		invoker: invoker,
		tool:    tool,
		store:   store,
		retry:   gateway.NoRetry(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type tracker struct {
	fn    types.ProgressFunc
	total int
	done  int
}

func (t *tracker) emit(rt types.ResourceType, status types.FetchStatus, count *int, errMsg string) {
	if status.Terminal() {
		t.done++
	}
	if t.fn == nil {
		return
	}
	frac := float64(t.done) / float64(t.total)
	t.fn(types.FetchProgress{
		ResourceType: rt,
		Status:       status,
		Count:        count,
		Error:        errMsg,
		Progress:     &frac,
	})
}

// FetchAll replaces every local record of subject with a fresh copy. A
// failing type is recorded in the summary and the run moves on; the only
// error returned is a failure to clear the store beforehand.
func (o *Orchestrator) FetchAll(ctx context.Context, subject types.SubjectID, onProgress types.ProgressFunc) (*types.Summary, error) {
	summary := &types.Summary{
		Subject:   subject,
		Counts:    make(map[types.ResourceType]int),
		Stored:    make(map[types.ResourceType]int),
		Errors:    []string{},
		StartedAt: time.Now(),
	}
	progress := &tracker{fn: onProgress, total: len(FetchOrder)}
	for _, rt := range FetchOrder {
		progress.emit(rt, types.FetchPending, nil, "")
	}

	if err := o.store.DeleteAllForSubject(ctx, subject); err != nil {
		return nil, fmt.Errorf("clear local records for %s: %w", subject, err)
	}

	completed := 0
	for _, rt := range FetchOrder {
		if ctx.Err() != nil {
			slog.Warn("sync stopped early", "subject", subject, "resource_type", rt, "error", ctx.Err())
			break
		}
		progress.emit(rt, types.FetchInProgress, nil, "")

		resources, err := o.fetchWithRetry(ctx, subject, rt)
		if err != nil {
			msg := fmt.Sprintf("%s: %v", rt, err)
			summary.Errors = append(summary.Errors, msg)
			slog.Warn("sync type failed", "subject", subject, "resource_type", rt, "error", err)
			progress.emit(rt, types.FetchError, nil, err.Error())
			continue
		}

		stored := o.storeAll(ctx, subject, rt, resources, summary)
		count := distinct(rt, resources)
		if rt == types.Patient {
			// One subject per run: Patient always counts as exactly one.
			count = 1
		}
		summary.Counts[rt] = count
		summary.Stored[rt] = stored
		summary.TotalResources += count
		completed++
		progress.emit(rt, types.FetchCompleted, &count, "")
	}

	summary.FinishedAt = time.Now()
	summary.Complete = completed == len(FetchOrder)

	if o.summaries != nil {
		if err := o.summaries.Save(ctx, summary); err != nil {
			slog.Warn("save sync summary failed", "subject", subject, "error", err)
		}
	}
	slog.Info("sync finished",
		"subject", subject,
		"total", summary.TotalResources,
		"errors", len(summary.Errors),
		"duration", summary.FinishedAt.Sub(summary.StartedAt))
	return summary, nil
}

func (o *Orchestrator) fetchWithRetry(ctx context.Context, subject types.SubjectID, rt types.ResourceType) ([]fhir.Resource, error) {
	var out []fhir.Resource
	err := o.retry.ExecuteContext(ctx, func(ctx context.Context) error {
		var err error
		out, err = o.fetch(ctx, subject, rt)
		return err
	})
	return out, err
}

func (o *Orchestrator) fetch(ctx context.Context, subject types.SubjectID, rt types.ResourceType) ([]fhir.Resource, error) {
	var path string
	if rt == types.Patient {
		path = fhir.ReadPath(types.Patient, string(subject))
	} else {
		path = fhir.SearchQuery{ResourceType: rt, Subject: subject, Count: PageSize}.Path()
	}

	res, err := o.invoker.InvokeTool(ctx, o.tool, fhir.RequestArgs(path))
	if err != nil {
		return nil, err
	}
	resources, err := fhir.ResourcesFromToolResult(res)
	if err != nil {
		return nil, err
	}
	if rt == types.Patient && len(resources) == 0 {
		return nil, errors.New("patient record not found")
	}
	return resources, nil
}

// storeAll upserts resources, counting successes. Store failures are kept
// apart from fetch failures.
// distinct counts resources of type rt by id. Servers sometimes repeat an
// entry across pages, and the store keeps only one copy.
func distinct(rt types.ResourceType, resources []fhir.Resource) int {
	seen := make(map[string]struct{}, len(resources))
	for _, res := range resources {
		if name, _ := res["resourceType"].(string); name != string(rt) {
			continue
		}
		id, _ := res["id"].(string)
		if id == "" {
			continue
		}
		seen[id] = struct{}{}
	}
	return len(seen)
}

func (o *Orchestrator) storeAll(ctx context.Context, subject types.SubjectID, rt types.ResourceType, resources []fhir.Resource, summary *types.Summary) int {
	stored := 0
	for _, rec := range fhir.ToRecords(subject, resources) {
		if rec.ResourceType != rt {
			slog.Debug("storing included resource", "requested", rt, "got", rec.ResourceType, "id", rec.ID)
		}
		if err := o.store.UpsertRecord(ctx, subject, rec); err != nil {
			summary.StoreErrors = append(summary.StoreErrors, fmt.Sprintf("%s/%s: %v", rec.ResourceType, rec.ID, err))
			continue
		}
		if rec.ResourceType == rt {
			stored++
		}
	}
	return stored
}
