package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Compactor periodically merges multiple segments into fresh, sorted
// segments, honoring last-writer-wins by segment recency. It is a contract
// invoked on demand (spec.md §4.7); the engine decides when to call Run.
type Compactor struct {
	fc             *FlushController
	dir            *SegmentDirectory
	log            zerolog.Logger
	flushThreshold int64
}

// NewCompactor builds a Compactor that seals its merged output through fc
// and commits it to dir. flushThreshold bounds how many bytes worth of
// records go into each output segment, so a very large merge still rolls
// over into more than one segment rather than one unbounded file.
func NewCompactor(fc *FlushController, dir *SegmentDirectory, flushThreshold int64, log zerolog.Logger) *Compactor {
	return &Compactor{fc: fc, dir: dir, flushThreshold: flushThreshold, log: log}
}

// Run merges inputs (which must have length ≥ 2) into one or more new
// segments and atomically swaps them into dir, deleting the retired files
// only after the replacements are fsynced and registered. nextSeq must hand
// out registration sequence numbers shared with the engine's flush path, so
// the merged output's recency is correctly ordered against any segment
// flushed concurrently.
//
// On any failure before the swap, any segments already sealed for this run
// are discarded and dir is left completely unchanged, per spec.md §7. If the
// swap succeeds but deleting a retired file fails, the error is returned and
// the new segments stay registered and on disk.
func (c *Compactor) Run(ctx context.Context, inputs []*Segment, nextSeq func() uint64) (rerr error) {
	if len(inputs) < 2 {
		return fmt.Errorf("compact: need at least 2 input segments, got %d", len(inputs))
	}

	runID := uuid.NewString()
	log := c.log.With().Str("compaction_id", runID).Logger()
	log.Info().Int("inputs", len(inputs)).Msg("compaction started")

	merged, err := c.mergeInputs(ctx, inputs, log)
	if err != nil {
		return err
	}

	batches := batchBySize(merged, c.flushThreshold)

	var sealed []*Segment
	defer func() {
		if rerr != nil {
			for _, seg := range sealed {
				_ = removeSegmentFile(seg.Path)
			}
		}
	}()

	for _, batch := range batches {
		seg, err := c.fc.Seal(batch, nextSeq())
		if err != nil {
			return fmt.Errorf("compact: seal output batch: %w", err)
		}
		sealed = append(sealed, seg)
	}

	if err := c.dir.Replace(inputs, sealed); err != nil {
		// the swap itself already happened; only removing a retired file
		// failed, so the registered outputs must not be deleted
		sealed = nil
		return fmt.Errorf("compact: replace segments: %w", err)
	}

	log.Info().
		Int("outputs", len(sealed)).
		Int("merged_records", len(merged)).
		Msg("compaction committed")

	return nil
}

// mergeInputs reads every input segment and folds its records into a single
// ascending, duplicate-free run, with last-writer-wins resolved by segment
// recency: inputs are visited oldest-first so that inserting a key again
// (from a newer segment) naturally overwrites the older value, which is
// exactly the "newer writes shadow older ones" rule from spec.md §4.7.
func (c *Compactor) mergeInputs(ctx context.Context, inputs []*Segment, log zerolog.Logger) ([]Record, error) {
	ordered := make([]*Segment, len(inputs))
	copy(ordered, inputs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	merged := NewMemtable()
	for _, seg := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sc, err := seg.Scan()
		if err != nil {
			return nil, fmt.Errorf("compact: scan %q: %w", seg.Path, err)
		}

		for {
			rec, err := sc.Next()
			if err != nil {
				sc.Close()
				return nil, fmt.Errorf("compact: %w", err)
			}
			if rec == nil {
				break
			}
			merged.Insert(rec.Key, rec.Value)
		}
		sc.Close()

		log.Debug().Str("segment", seg.Path).Uint64("seq", seg.Seq).Msg("merged segment")
	}

	return merged.DrainSorted(), nil
}

// batchBySize splits recs (already ascending) into runs whose accumulated
// spec.md size estimate (12 + |v| per record) does not exceed limit, except
// that a single oversized record always gets its own batch rather than
// stalling the split.
func batchBySize(recs []Record, limit int64) [][]Record {
	if len(recs) == 0 {
		return nil
	}

	var batches [][]Record
	var cur []Record
	var curSize int64

	for _, rec := range recs {
		cost := int64(recordOverhead + len(rec.Value))
		if len(cur) > 0 && curSize+cost > limit {
			batches = append(batches, cur)
			cur = nil
			curSize = 0
		}
		cur = append(cur, rec)
		curSize += cost
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}
