package processors

import "math/bits"

// HashSample is one perceptual-hash observation of a video frame. Samples are
// expected in ascending timestamp order; the hashing itself happens upstream.
type HashSample struct {
	Timestamp float64
	Hash      uint64
}

// Interval is a half-open scene time range within one video.
type Interval struct {
	Start float64
	End   float64
}

// BoundaryPolicy converts a stream of per-frame hash distances into scene
// intervals. A boundary opens when the hamming distance between consecutive
// samples exceeds Threshold; a scene shorter than MinSceneDuration merges into
// its predecessor instead of starting a new one.
type BoundaryPolicy struct {
	Threshold        int
	MinSceneDuration float64
}

// DetectScenes returns ordered, contiguous, non-overlapping intervals covering
// [0, videoDuration]. Deterministic for the same samples and thresholds. Zero
// or one sample, or no distance above the threshold, yields a single scene
// spanning the full duration.
func (p BoundaryPolicy) DetectScenes(samples []HashSample, videoDuration float64) []Interval {
	if videoDuration <= 0 {
		return nil
	}
	if len(samples) < 2 {
		return []Interval{{Start: 0, End: videoDuration}}
	}

	cuts := []float64{0}
	for i := 1; i < len(samples); i++ {
		if hashDistance(samples[i-1].Hash, samples[i].Hash) > p.Threshold {
			ts := samples[i].Timestamp
			if ts <= cuts[len(cuts)-1] || ts >= videoDuration {
				continue
			}
			// Short scenes are false detections; fold them into the
			// preceding scene by dropping the cut.
			if ts-cuts[len(cuts)-1] < p.MinSceneDuration {
				continue
			}
			cuts = append(cuts, ts)
		}
	}

	// The final scene must still satisfy the minimum duration.
	if len(cuts) > 1 && videoDuration-cuts[len(cuts)-1] < p.MinSceneDuration {
		cuts = cuts[:len(cuts)-1]
	}

	scenes := make([]Interval, 0, len(cuts))
	for i, start := range cuts {
		end := videoDuration
		if i+1 < len(cuts) {
			end = cuts[i+1]
		}
		scenes = append(scenes, Interval{Start: start, End: end})
	}
	return scenes
}

func hashDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
