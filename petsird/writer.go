package petsird

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/probe-lab/lmsampler/models"
)

// Writer encodes an acquisition sequentially: header first, then any number of
// time block chunks. Close terminates the stream and must always be called,
// otherwise the output can't be read back.
type Writer struct {
	enc    *encoder
	state  protocolState
	closed bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		enc:   newEncoder(w),
		state: stateHeader,
	}
}

// WriteHeader writes the preamble followed by the header record.
func (w *Writer) WriteHeader(h *models.Header) error {
	if w.state != stateHeader {
		return errors.Wrapf(ErrUnexpectedState, "writing header in state %s", w.state)
	}
	w.enc.writeRaw(magicBytes)
	w.enc.writeUint32(FormatVersion)
	w.enc.writeString(Schema)
	w.enc.writeHeader(h)
	if w.enc.err != nil {
		return errors.Wrap(w.enc.err, "writing header")
	}
	w.state = stateTimeBlocks
	return nil
}

// WriteTimeBlocks writes the given blocks as a single chunk. Calling it without
// blocks is a no-op, an empty chunk would end the stream.
func (w *Writer) WriteTimeBlocks(blocks ...*models.TimeBlock) error {
	if w.state != stateTimeBlocks {
		return errors.Wrapf(ErrUnexpectedState, "writing time blocks in state %s", w.state)
	}
	if len(blocks) == 0 {
		return nil
	}
	w.enc.writeUvarint(uint64(len(blocks)))
	for _, tb := range blocks {
		w.enc.writeTimeBlock(tb)
	}
	if w.enc.err != nil {
		return errors.Wrap(w.enc.err, "writing time blocks")
	}
	return nil
}

// Close writes the end-of-stream marker and flushes the buffered output. It is
// safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.state != stateTimeBlocks {
		// still flush whatever made it into the buffer
		if err := w.enc.flush(); err != nil {
			return errors.Wrap(err, "flushing output")
		}
		return errors.Wrapf(ErrUnexpectedState, "closing writer in state %s", w.state)
	}
	w.enc.writeUvarint(0)
	w.state = stateDone
	if err := w.enc.flush(); err != nil {
		return errors.Wrap(err, "flushing output")
	}
	return nil
}

// FileWriter is a Writer over a file it owns.
type FileWriter struct {
	*Writer
	f *os.File
}

func Create(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "creating output file")
	}
	return &FileWriter{Writer: NewWriter(f), f: f}, nil
}

// Close terminates the stream and closes the underlying file, even if the
// stream could not be terminated.
func (fw *FileWriter) Close() error {
	werr := fw.Writer.Close()
	ferr := fw.f.Close()
	if werr != nil {
		return werr
	}
	return errors.Wrap(ferr, "closing output file")
}
