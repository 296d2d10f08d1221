package processors

import (
	"math"
	"sort"

	"videoStitch/core"
)

// Merger reduces per-video timelines to a minimal ordered cut list. Within a
// video the classic interval union applies: sort by start, sweep, extend a
// segment while the next scene overlaps or sits within GapTolerance seconds,
// otherwise close it. Across videos segments are ordered by the originating
// timeline's best similarity score, descending, ties by video id then start.
type Merger struct {
	// GapTolerance merges scenes separated by silence shorter than this many
	// seconds.
	GapTolerance float64
	// VideoDuration bounds segments to their source video. Optional.
	VideoDuration func(videoID string) (float64, bool)
}

// Merge returns the ordered cut list plus the distinct contributing video ids
// in emission order. The total order is deterministic regardless of map
// iteration order.
func (m *Merger) Merge(timelines []core.VideoTimeline) ([]core.MergedSegment, []string) {
	type videoCut struct {
		videoID   string
		bestScore float64
		segments  []core.MergedSegment
	}

	cuts := make([]videoCut, 0, len(timelines))
	for _, tl := range timelines {
		segs := m.segmentsForTimeline(tl)
		if len(segs) == 0 {
			continue
		}
		best := 0.0
		for _, sc := range tl.RelevantScenes {
			best = math.Max(best, sc.Score)
		}
		cuts = append(cuts, videoCut{videoID: tl.VideoID, bestScore: best, segments: segs})
	}

	sort.Slice(cuts, func(i, j int) bool {
		if cuts[i].bestScore != cuts[j].bestScore {
			return cuts[i].bestScore > cuts[j].bestScore
		}
		if cuts[i].videoID != cuts[j].videoID {
			return cuts[i].videoID < cuts[j].videoID
		}
		return cuts[i].segments[0].Start < cuts[j].segments[0].Start
	})

	var segments []core.MergedSegment
	var videoIDs []string
	for _, c := range cuts {
		segments = append(segments, c.segments...)
		videoIDs = append(videoIDs, c.videoID)
	}
	return segments, videoIDs
}

func (m *Merger) segmentsForTimeline(tl core.VideoTimeline) []core.MergedSegment {
	intervals := make([]core.MergedSegment, 0, len(tl.RelevantScenes))
	for _, sc := range tl.RelevantScenes {
		intervals = append(intervals, core.MergedSegment{
			VideoID: tl.VideoID,
			Start:   sc.Scene.StartTime,
			End:     sc.Scene.EndTime,
		})
	}
	merged := MergeIntervals(intervals, m.GapTolerance)

	if m.VideoDuration != nil {
		if dur, ok := m.VideoDuration(tl.VideoID); ok {
			bounded := merged[:0]
			for _, s := range merged {
				s.End = math.Min(s.End, dur)
				if s.Start < s.End {
					bounded = append(bounded, s)
				}
			}
			merged = bounded
		}
	}
	return merged
}

// MergeIntervals unions overlapping or near-adjacent intervals of one video.
// Idempotent: merging an already-merged list yields the same list.
func MergeIntervals(intervals []core.MergedSegment, gapTolerance float64) []core.MergedSegment {
	if len(intervals) == 0 {
		return nil
	}
	sorted := make([]core.MergedSegment, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	out := []core.MergedSegment{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if iv.Start <= last.End+gapTolerance {
			last.End = math.Max(last.End, iv.End)
			continue
		}
		out = append(out, iv)
	}
	return out
}
