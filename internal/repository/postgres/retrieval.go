package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
)

var functionNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// DocumentRetriever calls a set-returning SQL function that ranks document
// chunks for a query. The function is provisioned together with the ingested
// documents and must return (id, title, content, page, similarity).
type DocumentRetriever struct {
	pool     *pgxpool.Pool
	function string
	logger   *slog.Logger
}

// NewDocumentRetriever creates a retriever bound to the given SQL function name
func NewDocumentRetriever(pool *pgxpool.Pool, function string, logger *slog.Logger) (services.Retriever, error) {
	if !functionNamePattern.MatchString(function) {
		return nil, fmt.Errorf("invalid retrieval function name %q", function)
	}
	return &DocumentRetriever{pool: pool, function: function, logger: logger}, nil
}

// Retrieve returns a short summary and the top-k evidence items for query
func (r *DocumentRetriever) Retrieve(ctx context.Context, query string, topK int) (string, []orchestration.EvidenceItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	sql := fmt.Sprintf(`
		SELECT id::text, title, content, COALESCE(page::text, ''), similarity
		FROM %s($1, $2)
	`, r.function)

	rows, err := r.pool.Query(ctx, sql, query, topK)
	if err != nil {
		if IsPgUndefinedFunctionError(err) {
			return "", nil, fmt.Errorf("retrieval function %s is not installed: %w", r.function, err)
		}
		return "", nil, fmt.Errorf("retrieve documents: %w", err)
	}
	defer rows.Close()

	var items []orchestration.EvidenceItem
	for rows.Next() {
		var item orchestration.EvidenceItem
		if err := rows.Scan(&item.SourceID, &item.Title, &item.Chunk, &item.Page, &item.Score); err != nil {
			return "", nil, fmt.Errorf("scan evidence: %w", err)
		}
		item.Score = clampScore(item.Score)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return "", nil, fmt.Errorf("iterate evidence: %w", err)
	}

	r.logger.Debug("retrieval complete", "function", r.function, "results", len(items))
	return SummarizeEvidence(items), items, nil
}

// SummarizeEvidence renders a one-paragraph overview of retrieved items.
func SummarizeEvidence(items []orchestration.EvidenceItem) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Found ")
	b.WriteString(strconv.Itoa(len(items)))
	b.WriteString(" relevant passage(s): ")
	for i, item := range items {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(item.Title)
		if item.Page != "" {
			b.WriteString(" p.")
			b.WriteString(item.Page)
		}
	}
	b.WriteString(".")
	return b.String()
}

func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
