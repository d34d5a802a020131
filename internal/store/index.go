package store

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/researcher/models"
)

// Index is a full-text index over archived briefs.
type Index struct {
	bleve bleve.Index
}

// Hit is one search match.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type briefDoc struct {
	Query   string `json:"query"`
	Plan    string `json:"plan"`
	Summary string `json:"summary"`
	Facts   string `json:"facts"`
	Trigger string `json:"trigger"`
}

// NewIndex opens the index at path, creating it if needed. An empty path
// keeps the index in memory.
func NewIndex(path string) (*Index, error) {
	mapping := bleve.NewIndexMapping()
	if path == "" {
		idx, err := bleve.NewMemOnly(mapping)
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
		return &Index{bleve: idx}, nil
	}
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, mapping)
	}
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	return &Index{bleve: idx}, nil
}

func toDoc(run models.Run) briefDoc {
	return briefDoc{
		Query:   run.Query,
		Plan:    run.Plan,
		Summary: run.FinalSummary,
		Facts:   strings.Join(run.Facts, "\n"),
		Trigger: run.Trigger,
	}
}

// Add indexes a finished run. Runs without a brief are skipped.
func (i *Index) Add(run models.Run) error {
	if run.ID == "" || run.FinalSummary == "" {
		return nil
	}
	return i.bleve.Index(run.ID, toDoc(run))
}

// Load indexes runs in one batch, used to warm the index from the archive.
func (i *Index) Load(runs []models.Run) error {
	batch := i.bleve.NewBatch()
	for _, run := range runs {
		if run.ID == "" || run.FinalSummary == "" {
			continue
		}
		if err := batch.Index(run.ID, toDoc(run)); err != nil {
			return err
		}
	}
	return i.bleve.Batch(batch)
}

// Search runs a query-string search and returns matching run ids by score.
func (i *Index) Search(q string, limit int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("search query is required")
	}
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(q), limit, 0, false)
	res, err := i.bleve.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q, err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

func (i *Index) Count() (uint64, error) { return i.bleve.DocCount() }

func (i *Index) Close() error { return i.bleve.Close() }
