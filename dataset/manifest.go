package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jamesainslie/go-writecoach/blob"
)

// Manifest records how a set of splits was produced.
type Manifest struct {
	Seed         uint64          `json:"seed"`
	Ratios       Ratios          `json:"ratios"`
	CorpusDigest string          `json:"corpus_sha256"`
	Labels       []string        `json:"labels"`
	Splits       []ManifestSplit `json:"splits"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ManifestSplit describes one written split.
type ManifestSplit struct {
	Name   string      `json:"name"`
	File   string      `json:"file"`
	Size   int         `json:"size"`
	Counts map[int]int `json:"label_counts"`
	SHA256 string      `json:"sha256"`
}

// Matches reports whether p was produced from the same corpus, seed and
// ratios as the manifest.
func (m *Manifest) Matches(p *Prepared) bool {
	return m.Seed == p.Seed && m.Ratios == p.Ratios && m.CorpusDigest == p.CorpusDigest
}

// ReadManifest loads manifest.json from bucket.
func ReadManifest(ctx context.Context, bucket blob.Bucket) (*Manifest, error) {
	data, err := blob.ReadAll(ctx, bucket, ManifestFile)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestFile, err)
	}
	return &m, nil
}
