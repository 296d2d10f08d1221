package processors

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"videoStitch/core"
	"videoStitch/logging"
)

// Judgment is the oracle's verdict for the candidates of one video: which
// scenes are genuinely relevant and the recommended overall window.
type Judgment struct {
	SelectedSceneIDs []string
	OverallStart     float64
	OverallEnd       float64
	Reasoning        string
}

// Oracle decides relevance for one video's candidate group. Implementations
// may be slow or fail; the synthesizer owns timeouts and fallback.
type Oracle interface {
	Judge(ctx context.Context, query string, candidates []core.SearchResult) (*Judgment, error)
}

// Synthesizer turns ranked search candidates into per-video timelines by
// consulting the oracle, validating its output strictly and degrading to a
// deterministic heuristic when the oracle fails.
type Synthesizer struct {
	Oracle Oracle
	// Padding bounds how far beyond the union of selected scenes the oracle
	// may widen a window, in seconds per side.
	Padding float64
	Timeout time.Duration
	// VideoDuration resolves a video's total length for window clamping.
	// Optional; when nil windows are only clamped at zero.
	VideoDuration func(videoID string) (float64, bool)
}

// Synthesize groups candidates by video and produces at most one timeline per
// video. Videos whose oracle verdict selects zero scenes yield no timeline.
// The method never fails: oracle errors degrade to the candidate-union
// fallback.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, candidates []core.SearchResult) []core.VideoTimeline {
	if len(candidates) == 0 {
		return nil
	}
	logger := logging.Component("relevance")

	groups, order := groupByVideo(candidates)

	timelines := make([]core.VideoTimeline, 0, len(order))
	for _, videoID := range order {
		group := groups[videoID]
		tl, ok := s.synthesizeVideo(ctx, query, videoID, group)
		if !ok {
			logger.Debug().Str("video_id", videoID).Msg("no relevant scenes after judgment")
			continue
		}
		if tl.Fallback {
			logger.Warn().Str("video_id", videoID).Msg("oracle failed, using candidate-union fallback")
		}
		timelines = append(timelines, tl)
	}
	return timelines
}

func (s *Synthesizer) synthesizeVideo(ctx context.Context, query, videoID string, group []core.SearchResult) (core.VideoTimeline, bool) {
	judgeCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		judgeCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	judgment, err := s.Oracle.Judge(judgeCtx, query, group)
	if err == nil {
		err = validateJudgment(judgment, group)
	}
	if err != nil {
		oe := &core.OracleError{VideoID: videoID, Err: err}
		return s.fallbackTimeline(videoID, group, oe), true
	}

	selected := selectScenes(group, judgment.SelectedSceneIDs)
	if len(selected) == 0 {
		return core.VideoTimeline{}, false
	}

	start, end := s.clampWindow(videoID, selected, judgment.OverallStart, judgment.OverallEnd)
	return core.VideoTimeline{
		VideoID:            videoID,
		VideoTitle:         group[0].VideoTitle,
		OverallStart:       start,
		OverallEnd:         end,
		OverallStartClock:  core.FormatClock(start),
		OverallEndClock:    core.FormatClock(end),
		RelevantScenes:     selected,
		RelevanceReasoning: judgment.Reasoning,
	}, true
}

// clampWindow widens the oracle's window to at least the union of the selected
// scenes and limits any extra context to the configured padding and the video
// bounds. The window is never narrower than the union.
func (s *Synthesizer) clampWindow(videoID string, selected []core.SearchResult, start, end float64) (float64, float64) {
	unionStart, unionEnd := sceneUnion(selected)

	start = math.Min(start, unionStart)
	end = math.Max(end, unionEnd)
	start = math.Max(start, unionStart-s.Padding)
	end = math.Min(end, unionEnd+s.Padding)

	start = math.Max(start, 0)
	if s.VideoDuration != nil {
		if dur, ok := s.VideoDuration(videoID); ok {
			end = math.Min(end, dur)
		}
	}
	return start, end
}

// fallbackTimeline is the deterministic degraded result: every candidate kept,
// window equal to the union of candidate intervals.
func (s *Synthesizer) fallbackTimeline(videoID string, group []core.SearchResult, cause error) core.VideoTimeline {
	start, end := sceneUnion(group)
	return core.VideoTimeline{
		VideoID:           videoID,
		VideoTitle:        group[0].VideoTitle,
		OverallStart:      start,
		OverallEnd:        end,
		OverallStartClock: core.FormatClock(start),
		OverallEndClock:   core.FormatClock(end),
		RelevantScenes:    group,
		RelevanceReasoning: fmt.Sprintf(
			"Fallback analysis: %v. Using time range from %s to %s covering all candidate scenes.",
			cause, core.FormatClock(start), core.FormatClock(end)),
		Fallback: true,
	}
}

func validateJudgment(j *Judgment, group []core.SearchResult) error {
	if j == nil {
		return fmt.Errorf("nil judgment")
	}
	if j.OverallStart >= j.OverallEnd {
		return fmt.Errorf("invalid window: start %.2f >= end %.2f", j.OverallStart, j.OverallEnd)
	}
	known := make(map[string]struct{}, len(group))
	for _, c := range group {
		known[c.Scene.SceneID] = struct{}{}
	}
	for _, id := range j.SelectedSceneIDs {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("selected scene %s is not in the candidate set", id)
		}
	}
	return nil
}

// selectScenes keeps the judged-relevant candidates in start-time order.
func selectScenes(group []core.SearchResult, ids []string) []core.SearchResult {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []core.SearchResult
	for _, c := range group {
		if _, ok := want[c.Scene.SceneID]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scene.StartTime < out[j].Scene.StartTime })
	return out
}

func sceneUnion(scenes []core.SearchResult) (float64, float64) {
	start := math.Inf(1)
	end := math.Inf(-1)
	for _, s := range scenes {
		start = math.Min(start, s.Scene.StartTime)
		end = math.Max(end, s.Scene.EndTime)
	}
	return start, end
}

// groupByVideo partitions candidates preserving a deterministic video order:
// videos appear in the order of their best-ranked candidate.
func groupByVideo(candidates []core.SearchResult) (map[string][]core.SearchResult, []string) {
	groups := make(map[string][]core.SearchResult)
	var order []string
	for _, c := range candidates {
		if _, seen := groups[c.Scene.VideoID]; !seen {
			order = append(order, c.Scene.VideoID)
		}
		groups[c.Scene.VideoID] = append(groups[c.Scene.VideoID], c)
	}
	return groups, order
}
