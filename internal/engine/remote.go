package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/healthchat/internal/fhir"
	"github.com/user/healthchat/internal/resolver"
	"github.com/user/healthchat/internal/types"
	"github.com/user/healthchat/pkg/mcp"
)

var ErrNoSubject = errors.New("no subject selected")

// RemoteResolver answers plans through the FHIR request tool.
type RemoteResolver struct {
	invoker mcp.ToolInvoker
	tool    string
}

func NewRemoteResolver(invoker mcp.ToolInvoker, tool string) *RemoteResolver {
	return &RemoteResolver{invoker: invoker, tool: tool}
}

// Query builds the search the server runs for plan. Filtering the server
// cannot express is applied locally afterwards.
func Query(plan *types.Plan) fhir.SearchQuery {
	q := fhir.SearchQuery{
		ResourceType: plan.ResourceType,
		Subject:      plan.Subject,
		Status:       plan.Filters.Status,
		Count:        plan.Filters.Limit,
	}
	if plan.Filters.Sort != nil {
		q.SortByDate = true
		q.Descending = plan.Filters.Sort.Descending
	}
	// The page must reach the addressed record.
	if plan.RecordIndex != nil && q.Count <= *plan.RecordIndex {
		q.Count = *plan.RecordIndex + 1
	}
	// A code search filters after the fetch, so ask for a full page.
	if plan.Filters.CodeSearch != nil {
		q.Count = 0
	}
	return q
}

// Resolve fetches records for plan and shapes them like a local result.
func (r *RemoteResolver) Resolve(ctx context.Context, plan *types.Plan) ([]types.Record, error) {
	if plan.Subject == "" {
		return nil, ErrNoSubject
	}
	q := Query(plan)
	res, err := r.invoker.InvokeTool(ctx, r.tool, fhir.RequestArgs(q.Path()))
	if err != nil {
		return nil, err
	}
	resources, err := fhir.ResourcesFromToolResult(res)
	if err != nil {
		return nil, fmt.Errorf("read %s results: %w", plan.ResourceType, err)
	}

	var matching []types.Record
	for _, rec := range fhir.ToRecords(plan.Subject, resources) {
		if rec.ResourceType == plan.ResourceType {
			matching = append(matching, rec)
		}
	}
	return resolver.Apply(matching, plan.Filters, plan.RecordIndex), nil
}
