package petsird

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/probe-lab/lmsampler/models"
)

// encoder keeps the first write error and turns every following write into a
// no-op, callers only check err() once the whole record is out.
type encoder struct {
	w       *bufio.Writer
	scratch [binary.MaxVarintLen64]byte
	err     error
}

func newEncoder(w io.Writer) *encoder {
	return &encoder{w: bufio.NewWriter(w)}
}

func (e *encoder) writeRaw(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) writeUvarint(v uint64) {
	n := binary.PutUvarint(e.scratch[:], v)
	e.writeRaw(e.scratch[:n])
}

func (e *encoder) writeUint32(v uint32) {
	binary.LittleEndian.PutUint32(e.scratch[:4], v)
	e.writeRaw(e.scratch[:4])
}

func (e *encoder) writeFloat32(v float32) {
	e.writeUint32(math.Float32bits(v))
}

func (e *encoder) writeBool(v bool) {
	if v {
		e.writeRaw([]byte{1})
	} else {
		e.writeRaw([]byte{0})
	}
}

func (e *encoder) writeString(s string) {
	e.writeUvarint(uint64(len(s)))
	e.writeRaw([]byte(s))
}

func (e *encoder) writeFloat32s(vs []float32) {
	e.writeUvarint(uint64(len(vs)))
	for _, v := range vs {
		e.writeFloat32(v)
	}
}

func (e *encoder) writeHeader(h *models.Header) {
	s := &h.Scanner
	e.writeString(s.ModelName)
	e.writeUvarint(uint64(s.NumberOfDetectors))
	e.writeFloat32s(s.TOFBinEdges)
	e.writeFloat32s(s.EnergyBinEdges)
	e.writeFloat32(s.TOFResolution)
	e.writeFloat32(s.EnergyResolutionAt511)

	e.writeBool(h.Exam != nil)
	if h.Exam == nil {
		return
	}
	e.writeString(h.Exam.Subject.ID)
	e.writeBool(h.Exam.Subject.Name != nil)
	if h.Exam.Subject.Name != nil {
		e.writeString(*h.Exam.Subject.Name)
	}
	e.writeString(h.Exam.Institution.Name)
	e.writeString(h.Exam.Institution.Address)
}

func (e *encoder) writeEvents(evs []models.CoincidenceEvent) {
	e.writeUvarint(uint64(len(evs)))
	for _, ev := range evs {
		e.writeUvarint(uint64(ev.DetectorIDs[0]))
		e.writeUvarint(uint64(ev.DetectorIDs[1]))
		e.writeUvarint(uint64(ev.TOFIdx))
		e.writeUvarint(uint64(ev.EnergyIndices[0]))
		e.writeUvarint(uint64(ev.EnergyIndices[1]))
	}
}

func (e *encoder) writeTimeBlock(tb *models.TimeBlock) {
	e.writeUvarint(uint64(tb.ID))
	e.writeEvents(tb.PromptEvents)
	e.writeBool(tb.HasDelayed)
	if tb.HasDelayed {
		e.writeEvents(tb.DelayedEvents)
	}
}

func (e *encoder) flush() error {
	if e.err != nil {
		return e.err
	}
	e.err = e.w.Flush()
	return e.err
}

type decoder struct {
	r       *bufio.Reader
	scratch [4]byte
}

func newDecoder(r io.Reader) *decoder {
	return &decoder{r: bufio.NewReader(r)}
}

// truncated turns a clean EOF found in the middle of a record into
// io.ErrUnexpectedEOF
func truncated(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (d *decoder) readRaw(b []byte) error {
	_, err := io.ReadFull(d.r, b)
	return truncated(err)
}

func (d *decoder) readUvarint() (uint64, error) {
	v, err := binary.ReadUvarint(d.r)
	return v, truncated(err)
}

func (d *decoder) readUint32Varint() (uint32, error) {
	v, err := d.readUvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, errors.Errorf("varint %d overflows uint32", v)
	}
	return uint32(v), nil
}

func (d *decoder) readLen() (int, error) {
	v, err := d.readUvarint()
	if err != nil {
		return 0, err
	}
	if v > maxVectorLen {
		return 0, errors.Errorf("vector length %d exceeds limit", v)
	}
	return int(v), nil
}

func (d *decoder) readUint32() (uint32, error) {
	if err := d.readRaw(d.scratch[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(d.scratch[:]), nil
}

func (d *decoder) readFloat32() (float32, error) {
	v, err := d.readUint32()
	return math.Float32frombits(v), err
}

func (d *decoder) readBool() (bool, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return false, truncated(err)
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errors.Errorf("invalid bool byte 0x%02x", b)
	}
}

func (d *decoder) readString() (string, error) {
	n, err := d.readLen()
	if err != nil {
		return "", err
	}
	// the buffer grows with the bytes actually read, not with the claimed length
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, d.r, int64(n)); err != nil {
		return "", truncated(err)
	}
	return buf.String(), nil
}

func (d *decoder) readFloat32s() ([]float32, error) {
	n, err := d.readLen()
	if err != nil {
		return nil, err
	}
	vs := make([]float32, 0, min(n, 4096))
	for i := 0; i < n; i++ {
		v, err := d.readFloat32()
		if err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	return vs, nil
}

func (d *decoder) readHeader() (*models.Header, error) {
	var (
		h   models.Header
		err error
	)
	s := &h.Scanner
	if s.ModelName, err = d.readString(); err != nil {
		return nil, errors.Wrap(err, "scanner model name")
	}
	if s.NumberOfDetectors, err = d.readUint32Varint(); err != nil {
		return nil, errors.Wrap(err, "number of detectors")
	}
	if s.TOFBinEdges, err = d.readFloat32s(); err != nil {
		return nil, errors.Wrap(err, "tof bin edges")
	}
	if s.EnergyBinEdges, err = d.readFloat32s(); err != nil {
		return nil, errors.Wrap(err, "energy bin edges")
	}
	if s.TOFResolution, err = d.readFloat32(); err != nil {
		return nil, errors.Wrap(err, "tof resolution")
	}
	if s.EnergyResolutionAt511, err = d.readFloat32(); err != nil {
		return nil, errors.Wrap(err, "energy resolution")
	}

	hasExam, err := d.readBool()
	if err != nil {
		return nil, errors.Wrap(err, "exam presence")
	}
	if !hasExam {
		return &h, nil
	}

	exam := &models.ExamInformation{}
	if exam.Subject.ID, err = d.readString(); err != nil {
		return nil, errors.Wrap(err, "subject id")
	}
	hasName, err := d.readBool()
	if err != nil {
		return nil, errors.Wrap(err, "subject name presence")
	}
	if hasName {
		name, err := d.readString()
		if err != nil {
			return nil, errors.Wrap(err, "subject name")
		}
		exam.Subject.Name = &name
	}
	if exam.Institution.Name, err = d.readString(); err != nil {
		return nil, errors.Wrap(err, "institution name")
	}
	if exam.Institution.Address, err = d.readString(); err != nil {
		return nil, errors.Wrap(err, "institution address")
	}
	h.Exam = exam
	return &h, nil
}

func (d *decoder) readEvents() ([]models.CoincidenceEvent, error) {
	n, err := d.readLen()
	if err != nil {
		return nil, err
	}
	evs := make([]models.CoincidenceEvent, 0, min(n, 4096))
	for i := 0; i < n; i++ {
		var ev models.CoincidenceEvent
		fields := []*uint32{
			&ev.DetectorIDs[0], &ev.DetectorIDs[1],
			&ev.TOFIdx,
			&ev.EnergyIndices[0], &ev.EnergyIndices[1],
		}
		for _, f := range fields {
			if *f, err = d.readUint32Varint(); err != nil {
				return nil, errors.Wrapf(err, "event %d", i)
			}
		}
		evs = append(evs, ev)
	}
	return evs, nil
}

func (d *decoder) readTimeBlock() (*models.TimeBlock, error) {
	var (
		tb  models.TimeBlock
		err error
	)
	if tb.ID, err = d.readUint32Varint(); err != nil {
		return nil, errors.Wrap(err, "time block id")
	}
	if tb.PromptEvents, err = d.readEvents(); err != nil {
		return nil, errors.Wrapf(err, "prompt events of time block %d", tb.ID)
	}
	if tb.HasDelayed, err = d.readBool(); err != nil {
		return nil, errors.Wrapf(err, "delayed presence of time block %d", tb.ID)
	}
	if tb.HasDelayed {
		if tb.DelayedEvents, err = d.readEvents(); err != nil {
			return nil, errors.Wrapf(err, "delayed events of time block %d", tb.ID)
		}
	}
	return &tb, nil
}
