package fhir

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/user/healthchat/internal/types"
)

// patientParam lists types whose R4 search parameter for the owning patient is
// "patient" rather than "subject".
var patientParam = map[types.ResourceType]bool{
	types.AllergyIntolerance:  true,
	types.Immunization:        true,
	types.FamilyMemberHistory: true,
}

// SubjectParam returns the search parameter linking rt to its patient.
func SubjectParam(rt types.ResourceType) string {
	if patientParam[rt] {
		return "patient"
	}
	return "subject"
}

// SearchQuery describes a resource search.
type SearchQuery struct {
	ResourceType types.ResourceType
	Subject      types.SubjectID
	Status       string
	SortByDate   bool
	Descending   bool
	Count        int
}

// Path renders the search as a request path. Parameters are emitted in a
// fixed order and the subject reference keeps its slash.
func (q SearchQuery) Path() string {
	var params []string
	add := func(k, v string) {
		params = append(params, k+"="+strings.ReplaceAll(url.QueryEscape(v), "%2F", "/"))
	}
	if q.Subject != "" {
		add(SubjectParam(q.ResourceType), q.Subject.Reference())
	}
	if q.Status != "" {
		add("status", q.Status)
	}
	if q.SortByDate {
		if q.Descending {
			add("_sort", "-date")
		} else {
			add("_sort", "date")
		}
	}
	if q.Count > 0 {
		add("_count", strconv.Itoa(q.Count))
	}

	path := "/" + string(q.ResourceType)
	if len(params) > 0 {
		path += "?" + strings.Join(params, "&")
	}
	return path
}

// ReadPath is the direct read path of one resource.
func ReadPath(rt types.ResourceType, id string) string {
	return "/" + string(rt) + "/" + url.PathEscape(id)
}

// RequestArgs wraps a path in the HTTP-shaped request descriptor the FHIR
// request tool expects.
func RequestArgs(path string) map[string]any {
	return map[string]any{
		"request": map[string]any{
			"method": "GET",
			"path":   path,
			"body":   nil,
		},
	}
}
