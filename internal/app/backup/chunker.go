package backup

import (
	"io"

	"github.com/ChaoticEnigma/zfs3backup/internal/domain"
	"github.com/ChaoticEnigma/zfs3backup/pkg/errors"
	"github.com/ChaoticEnigma/zfs3backup/pkg/utils"
)

// Chunker slices a byte stream into fixed-size, sequence-numbered
// chunks. The stream is read strictly sequentially and one chunk is
// buffered at a time; only the final chunk may be short. Not safe for
// concurrent use; a single producer goroutine drives it.
type Chunker struct {
	r    io.Reader
	size int64
	seq  int
	done bool
	err  error
}

func NewChunker(r io.Reader, size int64) *Chunker {
	return &Chunker{r: r, size: size}
}

// Next returns the next chunk, io.EOF at the end of the stream, or a
// stream-read error. After an error the Chunker produces nothing
// further; chunks already handed off are unaffected.
func (c *Chunker) Next() (*domain.Chunk, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.done {
		return nil, io.EOF
	}

	buf := make([]byte, c.size)
	n, err := io.ReadFull(c.r, buf)
	switch err {
	case nil:
	case io.EOF:
		c.done = true
		return nil, io.EOF
	case io.ErrUnexpectedEOF:
		c.done = true
		buf = buf[:n]
	default:
		c.err = errors.Wrapf(err, errors.ErrCodeStreamRead,
			"failed reading snapshot stream at chunk %d", c.seq)
		return nil, c.err
	}

	chunk := &domain.Chunk{
		Sequence: c.seq,
		Data:     buf,
		Checksum: utils.Checksum(buf),
	}
	c.seq++
	return chunk, nil
}

// Produced returns how many chunks have been handed out so far.
func (c *Chunker) Produced() int {
	return c.seq
}
