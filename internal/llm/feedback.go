package llm

import (
	"context"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/store"
)

// RecordFeedback records whether a prior LLM suggestion (tied to an
// interpretation run) matched what was actually used, feeding the
// calibration counter consulted by IsCalibrating/ShouldAutoApply. Grounded
// on the original's record_feedback, which classified CORRECT vs WRONG by
// simple string equality between suggested and actual category.
func (s *Service) RecordFeedback(ctx context.Context, runID int64, suggestedCategory, actualCategory, notes string) error {
	kind := store.FeedbackWrong
	if suggestedCategory == actualCategory {
		kind = store.FeedbackCorrect
	}
	_, err := s.store.LLMFeedback().Record(ctx, &store.LLMFeedback{
		InterpretationRunID: runID,
		SuggestedCategory:   suggestedCategory,
		ActualCategory:      actualCategory,
		Kind:                kind,
		Notes:               notes,
		CreatedAt:           time.Now().UTC(),
	})
	return err
}

// CalibrationStats summarizes how far through the calibration window the
// service is, and the accuracy of suggestions recorded so far.
type CalibrationStats struct {
	Enabled             bool
	Calibrating         bool
	SuggestionCount     int64
	CalibrationTarget   int64
	CalibrationProgress float64
	Accuracy            float64
}

// AccuracyStats reports calibration progress for operational visibility,
// the Go form of the original's get_calibration_stats.
func (s *Service) AccuracyStats(ctx context.Context) (CalibrationStats, error) {
	stats, err := s.store.LLMFeedback().Stats(ctx)
	if err != nil {
		return CalibrationStats{}, err
	}

	progress := 1.0
	if s.cfg.CalibrationN > 0 {
		progress = float64(stats.TotalCount) / float64(s.cfg.CalibrationN)
		if progress > 1.0 {
			progress = 1.0
		}
	}

	return CalibrationStats{
		Enabled:             s.cfg.Enabled,
		Calibrating:         s.IsCalibrating(ctx),
		SuggestionCount:     stats.TotalCount,
		CalibrationTarget:   s.cfg.CalibrationN,
		CalibrationProgress: progress,
		Accuracy:            stats.Accuracy(),
	}, nil
}
