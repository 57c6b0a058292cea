package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nicktill/eventdb/pkg/metrics"
	"github.com/nicktill/eventdb/pkg/storage"
)

// MaxImportBatchSize is the maximum number of points written per batch.
const MaxImportBatchSize = 5000

// Importer loads a snapshot back into a store.
type Importer struct {
	store storage.Store
}

// NewImporter creates an importer over store.
func NewImporter(store storage.Store) *Importer {
	return &Importer{store: store}
}

// ImportResult contains stats about an import.
type ImportResult struct {
	SeriesImported int       `json:"series_imported"`
	PointsImported int       `json:"points_imported"`
	BatchesWritten int       `json:"batches_written"`
	ImportedAt     time.Time `json:"imported_at"`
}

// ImportJSON reads a JSON snapshot from r and writes its series and
// points into the store. Series IDs are recomputed from name and
// labels, so snapshots restore identically across stores.
func (im *Importer) ImportJSON(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	result := &ImportResult{ImportedAt: time.Now()}

	var batch []storage.SeriesPoint
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := im.store.AppendBatch(ctx, batch); err != nil {
			return fmt.Errorf("failed to write batch: %w", err)
		}
		result.PointsImported += len(batch)
		result.BatchesWritten++
		batch = batch[:0]
		return nil
	}

	for _, sb := range snap.Series {
		if !sb.Kind.Valid() {
			return nil, fmt.Errorf("snapshot series %q has invalid kind %q", sb.Name, sb.Kind)
		}

		id := metrics.SeriesID(sb.Name, sb.Labels)
		sr := metrics.Series{ID: id, Name: sb.Name, Labels: sb.Labels, Kind: sb.Kind}
		if err := im.store.PutSeries(ctx, sr); err != nil {
			return nil, fmt.Errorf("failed to store series %q: %w", sb.Name, err)
		}
		result.SeriesImported++

		for _, p := range sb.Points {
			batch = append(batch, storage.SeriesPoint{
				SeriesID: id,
				Point:    metrics.Point{Time: time.UnixMicro(p.TsUs), Value: p.Value},
			})
			if len(batch) >= MaxImportBatchSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return result, nil
}
