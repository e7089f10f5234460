// Package knowledge retrieves tenant knowledge snippets for prompt context.
package knowledge

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/model"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
	"github.com/capitalize-ai/ai-engine/pkg/metrics"
)

// Reserved payload keys.
const (
	payloadContent = "content"
	payloadTenant  = "tenant_id"
)

// Hits scoring below this are unrelated (negative cosine).
const minScore = 0.0

// Snippet is one search hit.
type Snippet struct {
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Namespace returns the index namespace holding a tenant's documents.
func Namespace(tenantID string) (string, error) {
	if !model.ValidTenantID(tenantID) {
		return "", model.ErrInvalidTenant
	}
	return "tenant_" + tenantID + "_docs", nil
}

// DocumentID derives a stable id from content: the first 15 hex digits of
// its MD5 digest, which always fit in a uint64.
func DocumentID(content string) uint64 {
	sum := md5.Sum([]byte(content))
	id, _ := strconv.ParseUint(hex.EncodeToString(sum[:])[:15], 16, 64)
	return id
}

// Retriever indexes and searches per-tenant knowledge.
type Retriever struct {
	embedder Embedder
	index    VectorIndex
	logger   *logger.Logger
}

// NewRetriever creates a retriever over an embedder and a vector index.
func NewRetriever(embedder Embedder, index VectorIndex, log *logger.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		logger:   log.Named("knowledge"),
	}
}

// Search returns up to topK snippets for query, most relevant first. Any
// failure is logged and yields an empty result.
func (r *Retriever) Search(ctx context.Context, tenantID, query string, topK int) []Snippet {
	if topK <= 0 || strings.TrimSpace(query) == "" {
		return nil
	}
	ns, err := Namespace(tenantID)
	if err != nil {
		return nil
	}

	snippets, err := r.search(ctx, tenantID, ns, query, topK)
	if err != nil {
		metrics.RetrievalFailures.Inc()
		r.logger.Warn("knowledge search failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return nil
	}

	metrics.RetrievalResults.Observe(float64(len(snippets)))
	return snippets
}

func (r *Retriever) search(ctx context.Context, tenantID, ns, query string, topK int) ([]Snippet, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := r.index.Query(ctx, ns, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	snippets := make([]Snippet, 0, len(hits))
	for _, hit := range hits {
		if hit.Payload[payloadTenant] != tenantID {
			r.logger.Error("foreign document in tenant namespace",
				zap.String("tenant_id", tenantID),
				zap.String("namespace", ns),
				zap.Uint64("document_id", hit.ID),
			)
			continue
		}
		if hit.Score < minScore {
			continue
		}
		snippets = append(snippets, Snippet{
			Content:  hit.Payload[payloadContent],
			Score:    hit.Score,
			Metadata: userMetadata(hit.Payload),
		})
	}
	return snippets, nil
}

// Index embeds content and upserts it into the tenant namespace.
func (r *Retriever) Index(ctx context.Context, tenantID, content string, metadata map[string]string) (uint64, error) {
	ns, err := Namespace(tenantID)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(content) == "" {
		return 0, errors.New("document content is empty")
	}

	if err := r.index.EnsureNamespace(ctx, ns, r.embedder.Dimensions()); err != nil {
		return 0, fmt.Errorf("failed to ensure namespace: %w", err)
	}

	vector, err := r.embedder.Embed(ctx, content)
	if err != nil {
		return 0, fmt.Errorf("failed to embed document: %w", err)
	}

	payload := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		payload[k] = v
	}
	payload[payloadContent] = content
	payload[payloadTenant] = tenantID

	id := DocumentID(content)
	if err := r.index.Upsert(ctx, ns, Point{ID: id, Vector: vector, Payload: payload}); err != nil {
		return 0, fmt.Errorf("failed to upsert document: %w", err)
	}

	r.logger.Info("document indexed",
		zap.String("tenant_id", tenantID),
		zap.Uint64("document_id", id),
		zap.Int("length", len(content)),
	)
	return id, nil
}

// Delete removes one document from the tenant namespace.
func (r *Retriever) Delete(ctx context.Context, tenantID string, id uint64) error {
	ns, err := Namespace(tenantID)
	if err != nil {
		return err
	}
	if err := r.index.Delete(ctx, ns, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Clear drops every document of a tenant.
func (r *Retriever) Clear(ctx context.Context, tenantID string) error {
	ns, err := Namespace(tenantID)
	if err != nil {
		return err
	}
	if err := r.index.Drop(ctx, ns); err != nil {
		return fmt.Errorf("failed to drop namespace: %w", err)
	}
	r.logger.Info("knowledge cleared", zap.String("tenant_id", tenantID))
	return nil
}

func userMetadata(payload map[string]string) map[string]string {
	var md map[string]string
	for k, v := range payload {
		if k == payloadContent || k == payloadTenant {
			continue
		}
		if md == nil {
			md = make(map[string]string)
		}
		md[k] = v
	}
	return md
}
