package domain

// Chunk is the unit of transfer: a fixed-size slice of the compressed
// snapshot stream. Sequence numbers are dense and 0-based within one
// snapshot; only the final chunk may be shorter than the configured
// chunk size.
type Chunk struct {
	Sequence int
	Data     []byte
	Checksum string // hex BLAKE3 over Data
}

// Length returns the chunk's byte length.
func (c *Chunk) Length() int64 {
	return int64(len(c.Data))
}

// ChunkDescriptor records one uploaded chunk for the manifest.
type ChunkDescriptor struct {
	Sequence int    `yaml:"sequence"`
	Checksum string `yaml:"checksum"`
	Key      string `yaml:"key"`
	Length   int64  `yaml:"length"`
}

// JobStatus is the terminal-state tracking for one chunk upload.
type JobStatus string

const (
	JobPending  JobStatus = "Pending"
	JobInFlight JobStatus = "InFlight"
	JobDone     JobStatus = "Done"
	JobAborted  JobStatus = "Aborted"
)

// UploadJob tracks one chunk through its attempt loop. A job is owned
// by exactly one worker and never shared, so it needs no locking.
type UploadJob struct {
	Chunk    *Chunk
	Attempts int
	LastErr  error
	Status   JobStatus
}

func NewUploadJob(chunk *Chunk) *UploadJob {
	return &UploadJob{Chunk: chunk, Status: JobPending}
}

// Terminal reports whether the job reached Done or Aborted.
func (j *UploadJob) Terminal() bool {
	return j.Status == JobDone || j.Status == JobAborted
}
