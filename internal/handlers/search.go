package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/datalift/searchsync/internal/models"
	"github.com/datalift/searchsync/internal/search"
)

// SearchClient is the slice of the index service the read API consumes. It
// only reads what the sync engine writes; there is no direct coupling.
type SearchClient interface {
	Search(ctx context.Context, index string, body io.Reader) (search.SearchResult, error)
	GetMapping(ctx context.Context, index string) (map[string]models.FieldType, error)
	ListIndices(ctx context.Context) (json.RawMessage, error)
	Health(ctx context.Context) (json.RawMessage, error)
}

type SearchHandler struct {
	client SearchClient
	logger zerolog.Logger
}

func NewSearchHandler(client SearchClient, logger zerolog.Logger) *SearchHandler {
	return &SearchHandler{client: client, logger: logger}
}

type searchRequest struct {
	Index         string                 `json:"index"`
	QueryFields   map[string]interface{} `json:"query_fields"`
	Size          int                    `json:"size"`
	SortBy        map[string]string      `json:"sort_by"`
	SearchAfter   []interface{}          `json:"search_after"`
	Page          int                    `json:"page"`
	PageSize      int                    `json:"page_size"`
	Fields        []string               `json:"fields"`
	ExcludeFields []string               `json:"exclude_fields"`
}

type paginationMeta struct {
	TotalRecords   int      `json:"total_records"`
	PageSize       int      `json:"page_size"`
	CurrentPage    *int     `json:"current_page,omitempty"`
	TotalPages     *int     `json:"total_pages,omitempty"`
	HasNext        bool     `json:"has_next"`
	HasPrevious    bool     `json:"has_previous"`
	NextCursor     *string  `json:"next_cursor,omitempty"`
	SelectedFields []string `json:"selected_fields,omitempty"`
}

type searchResponse struct {
	Data []json.RawMessage `json:"data"`
	Meta paginationMeta    `json:"meta"`
}

// Search runs a structured query with either offset or cursor pagination.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if req.Index == "" {
		http.Error(w, "Index is required", http.StatusBadRequest)
		return
	}
	if len(req.Fields) > 0 && len(req.ExcludeFields) > 0 {
		http.Error(w, "Cannot specify both fields and exclude_fields", http.StatusBadRequest)
		return
	}
	req.Size = clamp(req.Size, 10)
	req.PageSize = clamp(req.PageSize, 10)
	if req.Page < 1 {
		req.Page = 1
	}

	query := map[string]interface{}{
		"query": buildBoolQuery(req.QueryFields),
		"sort":  buildSort(req.SortBy),
	}
	applySourceFilter(query, req.Fields, req.ExcludeFields)

	cursorMode := len(req.SearchAfter) > 0
	if cursorMode {
		query["size"] = req.Size
		query["search_after"] = req.SearchAfter
	} else {
		query["size"] = req.PageSize
		query["from"] = (req.Page - 1) * req.PageSize
	}

	result, err := h.runSearch(r.Context(), req.Index, query)
	if err != nil {
		http.Error(w, "Search failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	data, err := filterHits(result.Hits, req.Fields, req.ExcludeFields)
	if err != nil {
		http.Error(w, "Failed to process results: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var meta paginationMeta
	if cursorMode {
		meta = cursorMeta(result, req.Size, true, req.Fields)
	} else {
		totalPages := (result.Total + req.PageSize - 1) / req.PageSize
		page := req.Page
		meta = paginationMeta{
			TotalRecords:   result.Total,
			PageSize:       req.PageSize,
			CurrentPage:    &page,
			TotalPages:     &totalPages,
			HasNext:        req.Page < totalPages,
			HasPrevious:    req.Page > 1,
			SelectedFields: req.Fields,
		}
	}

	writeJSON(w, http.StatusOK, searchResponse{Data: data, Meta: meta})
}

// Scroll pages through an index with an opaque cursor token.
func (h *SearchHandler) Scroll(w http.ResponseWriter, r *http.Request) {
	index := mux.Vars(r)["index"]
	q := r.URL.Query()

	fields := splitParam(q.Get("fields"))
	excludeFields := splitParam(q.Get("exclude_fields"))
	if len(fields) > 0 && len(excludeFields) > 0 {
		http.Error(w, "Cannot specify both fields and exclude_fields", http.StatusBadRequest)
		return
	}

	size := 10
	if s := q.Get("size"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			size = clamp(v, 10)
		}
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{"match_all": map[string]interface{}{}},
		"sort":  parseSortParam(q.Get("sort_by")),
		"size":  size,
	}
	applySourceFilter(query, fields, excludeFields)

	cursor := q.Get("cursor")
	if cursor != "" {
		after, err := decodeCursor(cursor)
		if err != nil {
			http.Error(w, "Invalid pagination token", http.StatusBadRequest)
			return
		}
		query["search_after"] = after
	}

	result, err := h.runSearch(r.Context(), index, query)
	if err != nil {
		http.Error(w, "Search failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	data, err := filterHits(result.Hits, fields, excludeFields)
	if err != nil {
		http.Error(w, "Failed to process results: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Data: data,
		Meta: cursorMeta(result, size, cursor != "", fields),
	})
}

// IndexFields lists the available fields of an index with their types.
func (h *SearchHandler) IndexFields(w http.ResponseWriter, r *http.Request) {
	index := mux.Vars(r)["index"]

	props, err := h.client.GetMapping(r.Context(), index)
	if err != nil {
		http.Error(w, "Failed to get mapping: "+err.Error(), http.StatusInternalServerError)
		return
	}

	fields := make([]string, 0, len(props))
	fieldTypes := make(map[string]string, len(props))
	for name, ft := range props {
		fields = append(fields, name)
		fieldTypes[name] = ft.Type
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"index":       index,
		"fields":      fields,
		"field_types": fieldTypes,
	})
}

// ListIndices returns the cat-indices summary.
func (h *SearchHandler) ListIndices(w http.ResponseWriter, r *http.Request) {
	indices, err := h.client.ListIndices(r.Context())
	if err != nil {
		http.Error(w, "Failed to list indices: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(indices)
}

// Health reports the cluster health, 503 when the cluster is unreachable.
func (h *SearchHandler) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.client.Health(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"cluster_health": json.RawMessage(health),
	})
}

func (h *SearchHandler) runSearch(ctx context.Context, index string, query map[string]interface{}) (search.SearchResult, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return search.SearchResult{}, err
	}
	return h.client.Search(ctx, index, bytes.NewReader(body))
}

// buildBoolQuery translates query_fields into a bool query: lists become
// terms, maps become range clauses, scalars become match clauses.
func buildBoolQuery(queryFields map[string]interface{}) map[string]interface{} {
	must := make([]interface{}, 0, len(queryFields))
	for field, value := range queryFields {
		switch v := value.(type) {
		case []interface{}:
			must = append(must, map[string]interface{}{"terms": map[string]interface{}{field: v}})
		case map[string]interface{}:
			must = append(must, map[string]interface{}{"range": map[string]interface{}{field: v}})
		default:
			must = append(must, map[string]interface{}{"match": map[string]interface{}{field: v}})
		}
	}
	return map[string]interface{}{"bool": map[string]interface{}{"must": must}}
}

func buildSort(sortBy map[string]string) []interface{} {
	if len(sortBy) == 0 {
		return []interface{}{map[string]string{"_id": "asc"}}
	}
	sorts := make([]interface{}, 0, len(sortBy))
	for field, order := range sortBy {
		sorts = append(sorts, map[string]interface{}{
			field: map[string]string{"order": order},
		})
	}
	return sorts
}

// parseSortParam parses the comma-separated "field:order" form.
func parseSortParam(raw string) []interface{} {
	if raw == "" {
		return []interface{}{map[string]string{"_id": "asc"}}
	}
	var sorts []interface{}
	for _, item := range strings.Split(raw, ",") {
		field, order := item, "asc"
		if idx := strings.IndexByte(item, ':'); idx >= 0 {
			field, order = item[:idx], item[idx+1:]
		}
		sorts = append(sorts, map[string]interface{}{
			field: map[string]string{"order": order},
		})
	}
	return sorts
}

func applySourceFilter(query map[string]interface{}, fields, excludeFields []string) {
	if len(fields) > 0 {
		query["_source"] = fields
	} else if len(excludeFields) > 0 {
		query["_source"] = map[string]interface{}{"excludes": excludeFields}
	}
}

// filterHits applies the inclusion/exclusion lists post-fetch as well, so the
// response shape holds even for fields the index returns regardless.
func filterHits(hits []search.Hit, fields, excludeFields []string) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(hits))
	for _, hit := range hits {
		if len(fields) == 0 && len(excludeFields) == 0 {
			out = append(out, hit.Source)
			continue
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, err
		}
		filtered := make(map[string]json.RawMessage)
		if len(excludeFields) > 0 {
			excluded := make(map[string]bool, len(excludeFields))
			for _, f := range excludeFields {
				excluded[f] = true
			}
			for k, v := range doc {
				if !excluded[k] {
					filtered[k] = v
				}
			}
		} else {
			for _, f := range fields {
				if v, ok := doc[f]; ok {
					filtered[f] = v
				}
			}
		}
		raw, err := json.Marshal(filtered)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func cursorMeta(result search.SearchResult, size int, hasPrevious bool, fields []string) paginationMeta {
	meta := paginationMeta{
		TotalRecords:   result.Total,
		PageSize:       size,
		HasNext:        len(result.Hits) == size,
		HasPrevious:    hasPrevious,
		SelectedFields: fields,
	}
	if meta.HasNext && len(result.Hits) > 0 {
		token := encodeCursor(result.Hits[len(result.Hits)-1].Sort)
		meta.NextCursor = &token
	}
	return meta
}

// encodeCursor packs the last hit's sort values into an opaque token.
func encodeCursor(sortValues []interface{}) string {
	raw, _ := json.Marshal(sortValues)
	return base64.StdEncoding.EncodeToString(raw)
}

func decodeCursor(token string) ([]interface{}, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var values []interface{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func clamp(v, fallback int) int {
	if v < 1 {
		return fallback
	}
	if v > 100 {
		return 100
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
