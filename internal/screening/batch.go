package screening

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

const (
	// DefaultBatchCap is how many resumes a batch processes when no cap is given.
	DefaultBatchCap = 10
	// MaxBatchCap is the largest accepted cap.
	MaxBatchCap = 20
	// MaxBatchIDs is the largest accepted list of resume ids.
	MaxBatchIDs = 50
)

// BatchItem is one step of a batch: either an evaluation (new or reused) or a
// failure marker for ResumeID.
type BatchItem struct {
	Evaluation *Evaluation
	Reused     bool

	ResumeID string
	Err      error
}

// Failed reports whether the item is a failure marker.
func (i BatchItem) Failed() bool { return i.Err != nil }

// MarshalJSON renders failures as {"resumeId", "error"} and successes as the
// evaluation itself.
func (i BatchItem) MarshalJSON() ([]byte, error) {
	if i.Err != nil {
		return json.Marshal(struct {
			ResumeID string `json:"resumeId"`
			Error    string `json:"error"`
		}{ResumeID: i.ResumeID, Error: i.Err.Error()})
	}
	return json.Marshal(i.Evaluation)
}

// BatchResult is the outcome of EvaluateBatch.
type BatchResult struct {
	OK      bool        `json:"ok"`
	Count   int         `json:"count"`
	Results []BatchItem `json:"results"`
}

// Failures counts failure markers.
func (r *BatchResult) Failures() int {
	n := 0
	for _, item := range r.Results {
		if item.Failed() {
			n++
		}
	}
	return n
}

// EvaluateBatch screens up to limit resumes against one job, one at a time in
// the given order. A failing resume becomes a failure marker and the batch
// moves on. A limit of zero uses the configured default.
func (s *Service) EvaluateBatch(ctx context.Context, p Principal, jobID string, resumeIDs []string, limit int) (*BatchResult, error) {
	if err := requireIDs(p, jobID); err != nil {
		return nil, err
	}
	if len(resumeIDs) == 0 || len(resumeIDs) > MaxBatchIDs {
		return nil, invalid("resumeIds", "must contain between 1 and %d ids", MaxBatchIDs)
	}
	for _, id := range resumeIDs {
		if strings.TrimSpace(id) == "" {
			return nil, invalid("resumeIds", "must not contain empty ids")
		}
	}
	if limit == 0 {
		limit = s.cfg.BatchDefault
	}
	if limit < 1 || limit > MaxBatchCap {
		return nil, invalid("max", "must be between 1 and %d", MaxBatchCap)
	}

	job, err := s.store.FindJob(ctx, p.OwnerID, jobID)
	if err != nil {
		return nil, storeErr("find job", err)
	}

	ids := resumeIDs
	if len(ids) > limit {
		ids = ids[:limit]
	}

	results := foldBatch(ids, func(resumeID string) BatchItem {
		if err := ctx.Err(); err != nil {
			return BatchItem{ResumeID: resumeID, Err: err}
		}
		eval, reused, err := s.evaluate(ctx, p, job, resumeID)
		if err != nil {
			return BatchItem{ResumeID: resumeID, Err: err}
		}
		return BatchItem{Evaluation: eval, Reused: reused, ResumeID: resumeID}
	})

	result := &BatchResult{OK: true, Count: len(results), Results: results}

	s.logger.Info("batch evaluated",
		zap.String("job_id", job.ID),
		zap.Int("requested", len(resumeIDs)),
		zap.Int("processed", result.Count),
		zap.Int("failed", result.Failures()),
	)

	return result, nil
}

// foldBatch applies step to every id in order and collects the items.
func foldBatch(ids []string, step func(string) BatchItem) []BatchItem {
	acc := make([]BatchItem, 0, len(ids))
	for _, id := range ids {
		acc = append(acc, step(id))
	}
	return acc
}
