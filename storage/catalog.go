package storage

import (
	"sort"
	"sync"

	"videoStitch/core"
)

// VideoCatalog is the in-memory registry of video metadata and lifecycle
// status. It is the source of truth for titles, source paths and durations;
// the vector store only holds scene content.
type VideoCatalog struct {
	mu     sync.RWMutex
	videos map[string]core.Video
}

func NewVideoCatalog() *VideoCatalog {
	return &VideoCatalog{videos: make(map[string]core.Video)}
}

// Put inserts or replaces a video record.
func (c *VideoCatalog) Put(v core.Video) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videos[v.VideoID] = v
}

// Get returns the video or core.ErrNotFound.
func (c *VideoCatalog) Get(videoID string) (core.Video, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.videos[videoID]
	if !ok {
		return core.Video{}, core.ErrNotFound
	}
	return v, nil
}

// SetStatus updates lifecycle status and optional error message.
func (c *VideoCatalog) SetStatus(videoID, status, errMsg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.videos[videoID]
	if !ok {
		return core.ErrNotFound
	}
	v.Status = status
	v.ErrorMessage = errMsg
	c.videos[videoID] = v
	return nil
}

// SetSceneCount records the number of indexed scenes after ingestion.
func (c *VideoCatalog) SetSceneCount(videoID string, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.videos[videoID]
	if !ok {
		return core.ErrNotFound
	}
	v.SceneCount = n
	c.videos[videoID] = v
	return nil
}

// Delete removes the video record.
func (c *VideoCatalog) Delete(videoID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.videos, videoID)
}

// List returns all videos ordered by id for deterministic output.
func (c *VideoCatalog) List() []core.Video {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Video, 0, len(c.videos))
	for _, v := range c.videos {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VideoID < out[j].VideoID })
	return out
}

// SourcePath resolves a video id to its media file path.
func (c *VideoCatalog) SourcePath(videoID string) (string, error) {
	v, err := c.Get(videoID)
	if err != nil {
		return "", err
	}
	return v.SourcePath, nil
}
