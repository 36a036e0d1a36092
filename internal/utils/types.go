package utils

import "time"

// FetchJob carries the parameters of one segmented fetch. It is passed by
// value, so the orchestrator owns an immutable copy for the whole fetch.
type FetchJob struct {
	URL          string        `yaml:"url" validate:"required,http_url"`
	Workers      int           `yaml:"workers" validate:"min=1"`
	BufferSize   int           `yaml:"buffer_size" validate:"gt=0"`
	ReadDelay    time.Duration `yaml:"read_delay" validate:"gte=0"`
	ChunkTimeout time.Duration `yaml:"chunk_timeout" validate:"gte=0"`
	StrictLength bool          `yaml:"strict_length"`
}

// ChunkPlan is one contiguous byte range of the remote resource.
type ChunkPlan struct {
	Index  int
	Offset int64
	Length int64
}

// End returns the inclusive last byte of the range.
func (p ChunkPlan) End() int64 {
	return p.Offset + p.Length - 1
}

type ChunkResult struct {
	Index   int
	Bytes   []byte
	Err     error
	Warning error
	Reads   int
}

type FetchOutcome struct {
	Payload       []byte
	Elapsed       time.Duration
	ContentLength int64
	Chunks        int
	FileName      string
	Warnings      []error
}

// RemoteInfo is what the length probe learns about the resource.
type RemoteInfo struct {
	Length       int64
	FileName     string
	AcceptRanges bool
}

type BatchEntry struct {
	URL        string `yaml:"link"`
	OutputPath string `yaml:"op,omitempty"`
	Workers    int    `yaml:"workers,omitempty"`
}
