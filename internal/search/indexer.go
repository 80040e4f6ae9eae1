// Package search maintains the technician profile index and serves the
// customer-facing technician search.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"localpro-backend/internal/common/database"
	"localpro-backend/internal/common/errors"
	"localpro-backend/internal/common/logger"
	"localpro-backend/internal/models"
)

// Indexer writes technician profiles into Elasticsearch. Indexing runs
// post-commit and is best-effort; Postgres remains the source of truth.
type Indexer struct {
	es     *database.ElasticsearchClient
	index  string
	logger logger.Logger
}

func NewIndexer(es *database.ElasticsearchClient, index string, log logger.Logger) *Indexer {
	return &Indexer{
		es:     es,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "profile-indexer"}),
	}
}

// profileDocument is the indexed shape; bank details never leave Postgres.
type profileDocument struct {
	OwnerID           string                 `json:"ownerId"`
	ApplicationID     string                 `json:"applicationId"`
	FullName          string                 `json:"fullName"`
	City              string                 `json:"city,omitempty"`
	Skills            map[string]interface{} `json:"skills"`
	ProfilePictureURL string                 `json:"profilePictureUrl,omitempty"`
	Status            models.ProfileStatus   `json:"status"`
}

// IndexProfile upserts the profile document keyed by owner id, so a
// resubmission replaces the previous document instead of duplicating it.
func (i *Indexer) IndexProfile(ctx context.Context, profile *models.TechnicianProfile) error {
	doc := profileDocument{
		OwnerID:           profile.OwnerID,
		ApplicationID:     profile.ApplicationID,
		FullName:          profile.FullName,
		City:              profile.City,
		Skills:            profile.Skills,
		ProfilePictureURL: profile.ProfilePictureURL,
		Status:            profile.Status,
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return errors.NewSearchIndexFailedError(err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: profile.OwnerID,
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}
	res, err := req.Do(ctx, i.es.Client)
	if err != nil {
		return errors.NewSearchIndexFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewSearchIndexFailedError(
			fmt.Errorf("index %s: %s", i.index, res.Status()))
	}

	i.logger.Debug("indexed technician profile", map[string]interface{}{
		"ownerId": profile.OwnerID,
		"status":  profile.Status,
	})
	return nil
}

// DeleteProfile removes an owner's document, used when a profile is
// suspended or withdrawn.
func (i *Indexer) DeleteProfile(ctx context.Context, ownerID string) error {
	req := esapi.DeleteRequest{
		Index:      i.index,
		DocumentID: ownerID,
	}
	res, err := req.Do(ctx, i.es.Client)
	if err != nil {
		return errors.NewSearchIndexFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return errors.NewSearchIndexFailedError(
			fmt.Errorf("delete from %s: %s", i.index, res.Status()))
	}
	return nil
}
