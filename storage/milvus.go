package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"videoStitch/config"
	"videoStitch/core"
)

const milvusCollection = "video_scenes"

// MilvusVectorStore is the ANN backend. Rankings must match the memory
// reference within floating-point tolerance for the same corpus and query.
type MilvusVectorStore struct {
	mc      client.Client
	catalog *VideoCatalog
	dim     int
}

func newMilvusVectorStore(ctx context.Context, cfg *config.Config, catalog *VideoCatalog) (*MilvusVectorStore, error) {
	mc, err := client.NewClient(ctx, client.Config{Address: cfg.MilvusAddr})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}
	s := &MilvusVectorStore{mc: mc, catalog: catalog, dim: 1536}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MilvusVectorStore) ensureCollection(ctx context.Context) error {
	has, err := s.mc.HasCollection(ctx, milvusCollection)
	if err != nil {
		return err
	}
	if !has {
		schema := entity.NewSchema().WithName(milvusCollection)
		schema.WithField(entity.NewField().WithName("scene_id").WithIsPrimaryKey(true).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))
		schema.WithField(entity.NewField().WithName("video_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))
		schema.WithField(entity.NewField().WithName("scene_number").WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("start_time").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("end_time").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("transcript").WithDataType(entity.FieldTypeVarChar).WithMaxLength(8192))
		schema.WithField(entity.NewField().WithName("visual_context").WithDataType(entity.FieldTypeVarChar).WithMaxLength(8192))
		schema.WithField(entity.NewField().WithName("combined_context").WithDataType(entity.FieldTypeVarChar).WithMaxLength(16384))
		schema.WithField(entity.NewField().WithName("embedding").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))
		if err := s.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, milvusCollection, "embedding", idx, false, client.WithIndexName("idx_embedding")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, milvusCollection, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusVectorStore) Upsert(ctx context.Context, scenes []core.Scene) error {
	if len(scenes) == 0 {
		return nil
	}
	sceneIDs := make([]string, 0, len(scenes))
	videoIDs := make([]string, 0, len(scenes))
	numbers := make([]int64, 0, len(scenes))
	starts := make([]float64, 0, len(scenes))
	ends := make([]float64, 0, len(scenes))
	transcripts := make([]string, 0, len(scenes))
	visuals := make([]string, 0, len(scenes))
	combined := make([]string, 0, len(scenes))
	vectors := make([][]float32, 0, len(scenes))
	for _, sc := range scenes {
		sceneIDs = append(sceneIDs, sc.SceneID)
		videoIDs = append(videoIDs, sc.VideoID)
		numbers = append(numbers, int64(sc.SceneNumber))
		starts = append(starts, sc.StartTime)
		ends = append(ends, sc.EndTime)
		transcripts = append(transcripts, sc.Transcript)
		visuals = append(visuals, sc.VisualContext)
		combined = append(combined, sc.CombinedContext)
		vectors = append(vectors, sc.Embedding)
	}
	_, err := s.mc.Upsert(ctx, milvusCollection, "",
		entity.NewColumnVarChar("scene_id", sceneIDs),
		entity.NewColumnVarChar("video_id", videoIDs),
		entity.NewColumnInt64("scene_number", numbers),
		entity.NewColumnDouble("start_time", starts),
		entity.NewColumnDouble("end_time", ends),
		entity.NewColumnVarChar("transcript", transcripts),
		entity.NewColumnVarChar("visual_context", visuals),
		entity.NewColumnVarChar("combined_context", combined),
		entity.NewColumnFloatVector("embedding", s.dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("milvus upsert: %w", err)
	}
	return nil
}

func (s *MilvusVectorStore) Search(ctx context.Context, queryVec []float32, k int, minScore float64) ([]core.SearchResult, error) {
	if k <= 0 {
		k = 10
	}
	sp, _ := entity.NewIndexHNSWSearchParam(74)
	fields := []string{"scene_id", "video_id", "scene_number", "start_time", "end_time", "transcript", "visual_context", "combined_context"}
	res, err := s.mc.Search(ctx, milvusCollection, []string{}, "", fields,
		[]entity.Vector{entity.FloatVector(queryVec)}, "embedding", entity.COSINE, k, sp)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}

	var results []core.SearchResult
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			score := float64(r.Scores[i])
			if score < minScore {
				continue
			}
			sc := core.Scene{
				SceneID:         varcharAt(cols, "scene_id", i),
				VideoID:         varcharAt(cols, "video_id", i),
				SceneNumber:     int(int64At(cols, "scene_number", i)),
				StartTime:       doubleAt(cols, "start_time", i),
				EndTime:         doubleAt(cols, "end_time", i),
				Transcript:      varcharAt(cols, "transcript", i),
				VisualContext:   varcharAt(cols, "visual_context", i),
				CombinedContext: varcharAt(cols, "combined_context", i),
			}
			title := sc.VideoID
			if s.catalog != nil {
				if v, err := s.catalog.Get(sc.VideoID); err == nil {
					title = v.Title
				}
			}
			results = append(results, core.SearchResult{Scene: sc, VideoTitle: title, Score: score})
		}
	}
	return results, nil
}

func (s *MilvusVectorStore) DeleteVideo(ctx context.Context, videoID string) error {
	expr := fmt.Sprintf("video_id == \"%s\"", strings.ReplaceAll(videoID, "\"", "\\\""))
	if err := s.mc.Delete(ctx, milvusCollection, "", expr); err != nil {
		return fmt.Errorf("milvus delete video %s: %w", videoID, err)
	}
	return nil
}

func varcharAt(cols map[string]entity.Column, name string, i int) string {
	if c, ok := cols[name].(*entity.ColumnVarChar); ok {
		if data := c.Data(); i < len(data) {
			return data[i]
		}
	}
	return ""
}

func doubleAt(cols map[string]entity.Column, name string, i int) float64 {
	if c, ok := cols[name].(*entity.ColumnDouble); ok {
		if data := c.Data(); i < len(data) {
			return data[i]
		}
	}
	return 0
}

func int64At(cols map[string]entity.Column, name string, i int) int64 {
	if c, ok := cols[name].(*entity.ColumnInt64); ok {
		if data := c.Data(); i < len(data) {
			return data[i]
		}
	}
	return 0
}
