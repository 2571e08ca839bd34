package chi

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	errBuilderOperator = errors.New("operator must be term, match, wildcard, or range")
	errBuilderBounds   = errors.New("range requires gte or lte")
)

// builderRequest is the structured query builder input. The built document
// goes through policy validation like a generated one, so an out-of-policy
// combination comes back as a rejection, not an error.
type builderRequest struct {
	Field    string `json:"field"`
	Operator string `json:"operator"` // term, match, wildcard, range
	Value    any    `json:"value"`
	Gte      any    `json:"gte"`
	Lte      any    `json:"lte"`
	Lookback string `json:"lookback"` // now-24h form; defaults to now-24h
	Size     int    `json:"size"`
	Index    string `json:"index"`
}

// Builder handles POST /api/builder.
func (s *Server) Builder(w http.ResponseWriter, r *http.Request) {
	var req builderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Field == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "field is required")
		return
	}

	doc, err := buildQuery(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	session := sessionFrom(r)
	answer, err := s.chat.Run(r.Context(), session.User, session.Role, req.Index, doc)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

func buildQuery(req builderRequest) (json.RawMessage, error) {
	var clause map[string]any
	switch req.Operator {
	case "term", "match", "wildcard":
		clause = map[string]any{req.Operator: map[string]any{req.Field: req.Value}}
	case "range":
		bounds := map[string]any{}
		if req.Gte != nil {
			bounds["gte"] = req.Gte
		}
		if req.Lte != nil {
			bounds["lte"] = req.Lte
		}
		if len(bounds) == 0 {
			return nil, errBuilderBounds
		}
		clause = map[string]any{"range": map[string]any{req.Field: bounds}}
	default:
		return nil, errBuilderOperator
	}

	lookback := req.Lookback
	if lookback == "" {
		lookback = "now-24h"
	}
	size := req.Size
	if size <= 0 {
		size = 50
	}

	doc := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					clause,
					map[string]any{"range": map[string]any{"@timestamp": map[string]any{"gte": lookback}}},
				},
			},
		},
		"size": size,
	}
	return json.Marshal(doc)
}
