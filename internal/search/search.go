package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"localpro-backend/internal/common/errors"
)

// Query carries the customer search filters.
type Query struct {
	Skill string
	City  string
	Size  int
}

// Result is one search hit.
type Result struct {
	OwnerID           string   `json:"ownerId"`
	FullName          string   `json:"fullName"`
	City              string   `json:"city,omitempty"`
	Skills            []string `json:"skills,omitempty"`
	ProfilePictureURL string   `json:"profilePictureUrl,omitempty"`
}

const defaultSearchSize = 20

// SearchTechnicians returns approved technician profiles matching the
// filters. Only approved profiles are ever surfaced to customers.
func (i *Indexer) SearchTechnicians(ctx context.Context, q Query) ([]Result, error) {
	size := q.Size
	if size <= 0 || size > 100 {
		size = defaultSearchSize
	}

	must := []map[string]interface{}{
		{"term": map[string]interface{}{"status": "approved"}},
	}
	if q.Skill != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"skills.skills": q.Skill},
		})
	}
	if q.City != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"city": q.City},
		})
	}

	body := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}

	res, err := i.es.Client.Search(
		i.es.Client.Search.WithContext(ctx),
		i.es.Client.Search.WithIndex(i.index),
		i.es.Client.Search.WithBody(bytes.NewReader(raw)),
	)
	if err != nil {
		return nil, errors.NewSearchIndexFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.NewSearchIndexFailedError(
			fmt.Errorf("search %s: %s", i.index, res.Status()))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source struct {
					OwnerID           string                 `json:"ownerId"`
					FullName          string                 `json:"fullName"`
					City              string                 `json:"city"`
					Skills            map[string]interface{} `json:"skills"`
					ProfilePictureURL string                 `json:"profilePictureUrl"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.NewSearchIndexFailedError(err)
	}

	results := make([]Result, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		results = append(results, Result{
			OwnerID:           hit.Source.OwnerID,
			FullName:          hit.Source.FullName,
			City:              hit.Source.City,
			Skills:            skillList(hit.Source.Skills),
			ProfilePictureURL: hit.Source.ProfilePictureURL,
		})
	}
	return results, nil
}

// skillList flattens the skills sub-document's "skills" array.
func skillList(skills map[string]interface{}) []string {
	raw, ok := skills["skills"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
