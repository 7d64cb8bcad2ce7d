package petsird

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/probe-lab/lmsampler/models"
)

// Reader decodes an acquisition sequentially. The header has to be read before
// the time blocks, and only once.
type Reader struct {
	dec   *decoder
	state protocolState

	// blocks left in the current stream chunk
	remaining uint64
}

// NewReader checks the preamble of the given stream and returns a Reader
// positioned at the header.
func NewReader(r io.Reader) (*Reader, error) {
	dec := newDecoder(r)

	magic := make([]byte, len(magicBytes))
	if err := dec.readRaw(magic); err != nil {
		return nil, errors.Wrap(err, "reading magic bytes")
	}
	if !bytes.Equal(magic, magicBytes) {
		return nil, ErrBadMagic
	}

	version, err := dec.readUint32()
	if err != nil {
		return nil, errors.Wrap(err, "reading format version")
	}
	if version != FormatVersion {
		return nil, errors.Wrapf(ErrVersionMismatch, "got %d, expected %d", version, FormatVersion)
	}

	schema, err := dec.readString()
	if err != nil {
		return nil, errors.Wrap(err, "reading schema")
	}
	if schema != Schema {
		return nil, ErrSchemaMismatch
	}

	return &Reader{
		dec:   dec,
		state: stateHeader,
	}, nil
}

func (r *Reader) ReadHeader() (*models.Header, error) {
	if r.state != stateHeader {
		return nil, errors.Wrapf(ErrUnexpectedState, "reading header in state %s", r.state)
	}
	h, err := r.dec.readHeader()
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	r.state = stateTimeBlocks
	return h, nil
}

// ReadTimeBlock returns the next time block of the stream, or io.EOF once the
// end-of-stream marker has been consumed.
func (r *Reader) ReadTimeBlock() (*models.TimeBlock, error) {
	switch r.state {
	case stateHeader:
		return nil, errors.Wrap(ErrUnexpectedState, "time blocks requested before the header")
	case stateDone:
		return nil, io.EOF
	}

	if r.remaining == 0 {
		count, err := r.dec.readUvarint()
		if err != nil {
			return nil, errors.Wrap(err, "reading time block chunk size")
		}
		if count == 0 {
			r.state = stateDone
			return nil, io.EOF
		}
		r.remaining = count
	}

	tb, err := r.dec.readTimeBlock()
	if err != nil {
		return nil, errors.Wrap(err, "reading time block")
	}
	r.remaining--
	return tb, nil
}

// FileReader is a Reader over a file it owns.
type FileReader struct {
	*Reader
	f *os.File
}

func Open(path string) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening acquisition file")
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return &FileReader{Reader: r, f: f}, nil
}

func (fr *FileReader) Close() error {
	return fr.f.Close()
}
