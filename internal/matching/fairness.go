// internal/matching/fairness.go
package matching

import (
	"sort"

	"matching-workers/internal/common/errors"
	"matching-workers/internal/models"
)

// FairnessConfig tunes the disparity audit.
type FairnessConfig struct {
	// DisparityThreshold is the relative gap between the best and worst
	// segment above which a metric is flagged, e.g. 0.2 for 20%.
	DisparityThreshold float64
	// MinSegmentSize excludes segments too small to compare.
	MinSegmentSize int
}

// FairnessSample is one user's matching experience joined with the segment
// the directory reports for them.
type FairnessSample struct {
	Segment string
	Matched bool
	WaitMs  int64
	Outcome models.MatchOutcome // empty when the user never matched
	Rating  *int
}

// SegmentMetrics aggregates one segment. AvgWaitMs averages over matched
// samples only: unmatched users have no wait to report, and counting them
// as zero would credit the segments that match least with the shortest
// waits.
type SegmentMetrics struct {
	Segment     string  `json:"segment"`
	Samples     int     `json:"samples"`
	MatchRate   float64 `json:"matchRate"`
	AvgWaitMs   float64 `json:"avgWaitMs"`
	SuccessRate float64 `json:"successRate"`
	AvgRating   float64 `json:"avgRating"`
	matched     int
	rated       int
	resolved    int
}

// DisparityFlag marks one metric whose spread across segments exceeds the
// configured threshold.
type DisparityFlag struct {
	Metric       string  `json:"metric"`
	BestSegment  string  `json:"bestSegment"`
	WorstSegment string  `json:"worstSegment"`
	RelativeGap  float64 `json:"relativeGap"`
}

// FairnessReport is the read-side audit output. It never feeds back into
// scoring.
type FairnessReport struct {
	Segments []SegmentMetrics `json:"segments"`
	Flags    []DisparityFlag  `json:"flags,omitempty"`
	Biased   bool             `json:"biased"`
}

// BuildFairnessReport aggregates samples per segment and flags metrics
// whose relative gap between the best and worst segment exceeds the
// threshold. Segments below the minimum size are dropped; if none remain
// the caller gets a structured NoSegments error rather than a misleading
// empty report.
func BuildFairnessReport(samples []FairnessSample, cfg FairnessConfig) (*FairnessReport, error) {
	bySegment := make(map[string]*SegmentMetrics)

	for i := range samples {
		s := &samples[i]
		if s.Segment == "" {
			continue
		}

		m, ok := bySegment[s.Segment]
		if !ok {
			m = &SegmentMetrics{Segment: s.Segment}
			bySegment[s.Segment] = m
		}

		m.Samples++
		if s.Matched {
			m.matched++
			m.AvgWaitMs += float64(s.WaitMs)
		}
		switch s.Outcome {
		case models.OutcomeCompleted:
			m.resolved++
			m.SuccessRate++
		case models.OutcomeDeclined:
			m.resolved++
		}
		if s.Rating != nil {
			m.rated++
			m.AvgRating += float64(*s.Rating)
		}
	}

	var segments []SegmentMetrics
	for _, m := range bySegment {
		if m.Samples < cfg.MinSegmentSize {
			continue
		}

		m.MatchRate = float64(m.matched) / float64(m.Samples)
		if m.matched > 0 {
			m.AvgWaitMs /= float64(m.matched)
		}
		if m.resolved > 0 {
			m.SuccessRate /= float64(m.resolved)
		}
		if m.rated > 0 {
			m.AvgRating /= float64(m.rated)
		}

		segments = append(segments, *m)
	}

	if len(segments) == 0 {
		return nil, errors.NewNoSegmentsError(cfg.MinSegmentSize)
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Segment < segments[j].Segment
	})

	report := &FairnessReport{Segments: segments}
	if len(segments) >= 2 {
		report.Flags = detectDisparity(segments, cfg.DisparityThreshold)
		report.Biased = len(report.Flags) > 0
	}

	return report, nil
}

// detectDisparity compares each tracked metric across segments. Higher is
// better for every metric except wait time, which is inverted so "best"
// always means the favoured segment.
func detectDisparity(segments []SegmentMetrics, threshold float64) []DisparityFlag {
	metrics := []struct {
		name          string
		value         func(SegmentMetrics) float64
		lowerIsBetter bool
		eligible      func(SegmentMetrics) bool
	}{
		{"matchRate", func(m SegmentMetrics) float64 { return m.MatchRate }, false, nil},
		// A segment that never matched has no wait to compare.
		{"avgWaitMs", func(m SegmentMetrics) float64 { return m.AvgWaitMs }, true,
			func(m SegmentMetrics) bool { return m.matched > 0 }},
		{"successRate", func(m SegmentMetrics) float64 { return m.SuccessRate }, false, nil},
		{"avgRating", func(m SegmentMetrics) float64 { return m.AvgRating }, false, nil},
	}

	var flags []DisparityFlag
	for _, metric := range metrics {
		pool := segments
		if metric.eligible != nil {
			pool = nil
			for _, m := range segments {
				if metric.eligible(m) {
					pool = append(pool, m)
				}
			}
		}
		if len(pool) < 2 {
			continue
		}

		best, worst := pool[0], pool[0]
		for _, m := range pool[1:] {
			better := metric.value(m) > metric.value(best)
			worse := metric.value(m) < metric.value(worst)
			if metric.lowerIsBetter {
				better = metric.value(m) < metric.value(best)
				worse = metric.value(m) > metric.value(worst)
			}
			if better {
				best = m
			}
			if worse {
				worst = m
			}
		}

		gap := relativeGap(metric.value(best), metric.value(worst), metric.lowerIsBetter)
		if gap > threshold {
			flags = append(flags, DisparityFlag{
				Metric:       metric.name,
				BestSegment:  best.Segment,
				WorstSegment: worst.Segment,
				RelativeGap:  gap,
			})
		}
	}

	return flags
}

func relativeGap(best, worst float64, lowerIsBetter bool) float64 {
	hi, lo := best, worst
	if lowerIsBetter {
		hi, lo = worst, best
	}
	if hi == 0 {
		return 0
	}
	return (hi - lo) / hi
}
