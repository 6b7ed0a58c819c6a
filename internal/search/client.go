package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/datalift/searchsync/internal/models"
	"github.com/datalift/searchsync/internal/retry"
)

// Client wraps the Elasticsearch cluster behind the handful of operations the
// sync engine and the read API need.
type Client struct {
	es     *elasticsearch.Client
	logger zerolog.Logger
}

// Connect builds the client and verifies the cluster answers, retrying per
// the given policy because the cluster may not be reachable yet at startup.
func Connect(ctx context.Context, address, user, password string, policy retry.Policy, logger zerolog.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{address},
		Username:  user,
		Password:  password,
	})
	if err != nil {
		return nil, &models.ConnectionError{Err: errors.Wrap(err, "build elasticsearch client")}
	}

	c := &Client{es: es, logger: logger}
	if err := policy.Do(ctx, func() error {
		res, err := es.Ping(es.Ping.WithContext(ctx))
		if err != nil {
			logger.Warn().Err(err).Msg("Elasticsearch not reachable yet")
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("ping returned %s", res.Status())
		}
		return nil
	}); err != nil {
		return nil, &models.ConnectionError{Err: errors.Wrap(err, "ping elasticsearch")}
	}

	logger.Info().Str("address", address).Msg("Connected to Elasticsearch")
	return c, nil
}

// EnsureIndex creates the index with the given mapping, or pushes the mapping
// onto an existing index. Both paths are idempotent and safe to run every
// cycle, which is how additive schema changes reach the index.
func (c *Client) EnsureIndex(ctx context.Context, index string, m models.FieldMapping) error {
	exists, err := c.indexExists(ctx, index)
	if err != nil {
		return err
	}

	mappingJSON, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "marshal field mapping")
	}

	var res *esapi.Response
	if exists {
		res, err = c.es.Indices.PutMapping(
			[]string{index},
			bytes.NewReader(mappingJSON),
			c.es.Indices.PutMapping.WithContext(ctx),
		)
	} else {
		body, merr := json.Marshal(map[string]models.FieldMapping{"mappings": m})
		if merr != nil {
			return errors.Wrap(merr, "marshal index body")
		}
		res, err = c.es.Indices.Create(
			index,
			c.es.Indices.Create.WithBody(bytes.NewReader(body)),
			c.es.Indices.Create.WithContext(ctx),
		)
	}
	if err != nil {
		return errors.Wrapf(err, "ensure index %s", index)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ensure index %s: %s", index, res.String())
	}
	return nil
}

func (c *Client) indexExists(ctx context.Context, index string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, errors.Wrapf(err, "check index %s", index)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	return res.StatusCode == 200, nil
}

// bulkResponse mirrors the part of the _bulk reply needed to classify
// per-document outcomes.
type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// Bulk submits a prebuilt NDJSON body. Transport or whole-call failure comes
// back as an error; per-document rejections are reported in the result and
// never abort the rest of the batch.
func (c *Client) Bulk(ctx context.Context, body io.Reader) (models.BatchResult, error) {
	res, err := c.es.Bulk(body, c.es.Bulk.WithContext(ctx))
	if err != nil {
		return models.BatchResult{}, errors.Wrap(err, "bulk request")
	}
	defer res.Body.Close()
	if res.IsError() {
		return models.BatchResult{}, fmt.Errorf("bulk request: %s", res.String())
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return models.BatchResult{}, errors.Wrap(err, "decode bulk response")
	}

	var result models.BatchResult
	for _, item := range parsed.Items {
		for _, op := range item {
			if op.Status >= 300 {
				failed := models.FailedItem{DocumentID: op.ID, Status: op.Status}
				if op.Error != nil {
					failed.Reason = op.Error.Reason
				}
				result.Failed = append(result.Failed, failed)
			} else {
				result.Succeeded++
			}
		}
	}
	return result, nil
}

// Hit is one search result with the sort values needed for cursor paging.
type Hit struct {
	Source json.RawMessage `json:"_source"`
	Sort   []interface{}   `json:"sort"`
}

// SearchResult is the subset of the search reply the read API exposes.
type SearchResult struct {
	Total int
	Hits  []Hit
}

// Search runs a raw query body against one index.
func (c *Client) Search(ctx context.Context, index string, body io.Reader) (SearchResult, error) {
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(body),
		c.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return SearchResult{}, errors.Wrapf(err, "search index %s", index)
	}
	defer res.Body.Close()
	if res.IsError() {
		return SearchResult{}, fmt.Errorf("search index %s: %s", index, res.String())
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []Hit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return SearchResult{}, errors.Wrap(err, "decode search response")
	}
	return SearchResult{Total: parsed.Hits.Total.Value, Hits: parsed.Hits.Hits}, nil
}

// GetMapping returns the property name → field-type pairs of an index.
func (c *Client) GetMapping(ctx context.Context, index string) (map[string]models.FieldType, error) {
	res, err := c.es.Indices.GetMapping(
		c.es.Indices.GetMapping.WithContext(ctx),
		c.es.Indices.GetMapping.WithIndex(index),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "get mapping for %s", index)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("get mapping for %s: %s", index, res.String())
	}

	var parsed map[string]struct {
		Mappings struct {
			Properties map[string]models.FieldType `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "decode mapping response")
	}
	entry, ok := parsed[index]
	if !ok {
		return nil, fmt.Errorf("index %s missing from mapping response", index)
	}
	return entry.Mappings.Properties, nil
}

// ListIndices returns the cat-indices summary as raw JSON.
func (c *Client) ListIndices(ctx context.Context) (json.RawMessage, error) {
	res, err := c.es.Cat.Indices(
		c.es.Cat.Indices.WithContext(ctx),
		c.es.Cat.Indices.WithFormat("json"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "cat indices")
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("cat indices: %s", res.String())
	}
	return io.ReadAll(res.Body)
}

// Health returns the cluster health document as raw JSON.
func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "cluster health")
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("cluster health: %s", res.String())
	}
	return io.ReadAll(res.Body)
}
