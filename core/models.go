package core

import "time"

// Processing status lifecycle for a video: queued -> processing -> ready | failed.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Scene is one contiguous interval of a video together with the analysis
// produced at ingest time. Scenes are immutable once created; SceneNumber is
// strictly increasing within a video and scenes never overlap.
type Scene struct {
	SceneID         string    `json:"scene_id"`
	VideoID         string    `json:"video_id"`
	SceneNumber     int       `json:"scene_number"`
	StartTime       float64   `json:"start_time"`
	EndTime         float64   `json:"end_time"`
	Transcript      string    `json:"transcript"`
	VisualContext   string    `json:"visual_context,omitempty"`
	CombinedContext string    `json:"combined_context"`
	Embedding       []float32 `json:"embedding,omitempty"`
}

// Video is the catalog record for one uploaded video.
type Video struct {
	VideoID      string    `json:"video_id"`
	Title        string    `json:"title"`
	SourcePath   string    `json:"source_path"`
	Duration     float64   `json:"duration"`
	SceneCount   int       `json:"scene_count"`
	Status       string    `json:"processing_status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// SearchResult is a scene surfaced by similarity search, before relevance
// judgment. Produced per query, never persisted.
type SearchResult struct {
	Scene      Scene   `json:"scene"`
	VideoTitle string  `json:"video_title"`
	Score      float64 `json:"similarity_score"`
}

// VideoTimeline is the per-video, query-specific relevant window plus the
// scenes that justify it. Fallback is set when the judgment oracle failed and
// the window was derived from the raw candidates instead.
type VideoTimeline struct {
	VideoID            string         `json:"video_id"`
	VideoTitle         string         `json:"video_title"`
	OverallStart       float64        `json:"overall_start_time"`
	OverallEnd         float64        `json:"overall_end_time"`
	OverallStartClock  string         `json:"overall_start_time_formatted"`
	OverallEndClock    string         `json:"overall_end_time_formatted"`
	RelevantScenes     []SearchResult `json:"relevant_scenes"`
	RelevanceReasoning string         `json:"relevance_reasoning"`
	Fallback           bool           `json:"fallback"`
}

// MergedSegment is one non-overlapping cut after interval union. The ordered
// segment list is the cut list for assembly.
type MergedSegment struct {
	VideoID string  `json:"video_id"`
	Start   float64 `json:"start_time"`
	End     float64 `json:"end_time"`
}

// Duration returns the segment length in seconds.
func (s MergedSegment) Duration() float64 { return s.End - s.Start }

// MergedArtifact describes one assembled output video and its provenance.
// Artifacts are keyed by Fingerprint so identical queries over identical
// content reuse the same file.
type MergedArtifact struct {
	Query          string          `json:"query"`
	Fingerprint    string          `json:"fingerprint"`
	Segments       []MergedSegment `json:"segments"`
	FilePath       string          `json:"file_path"`
	FileName       string          `json:"file_name"`
	TotalDuration  float64         `json:"total_duration_seconds"`
	FileSizeMB     float64         `json:"file_size_mb"`
	SegmentsCount  int             `json:"segments_count"`
	SourceVideoIDs []string        `json:"source_video_ids"`
	CreatedAt      time.Time       `json:"creation_timestamp"`
	Reasoning      string          `json:"reasoning"`
}
