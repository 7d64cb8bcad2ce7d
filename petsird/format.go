// Package petsird reads and writes list-mode PET acquisitions in a compact
// binary container: a preamble, one header record and a chunked stream of time
// blocks terminated by an empty chunk.
package petsird

import (
	"github.com/pkg/errors"
)

var (
	magicBytes = []byte("yardl")

	FormatVersion uint32 = 1

	// Schema identifies the protocol carried after the preamble. Files with a
	// different schema are rejected.
	Schema = `{"protocol":{"name":"PETSIRD","sequence":[` +
		`{"name":"header","type":"PETSIRD.Header"},` +
		`{"name":"timeBlocks","type":{"stream":{"items":"PETSIRD.TimeBlock"}}}]}}`
)

var (
	ErrBadMagic        = errors.New("not a list-mode acquisition (bad magic bytes)")
	ErrVersionMismatch = errors.New("unsupported format version")
	ErrSchemaMismatch  = errors.New("unsupported acquisition schema")
	ErrUnexpectedState = errors.New("operation called out of order")
)

// upper bound for any decoded vector length, malformed files shouldn't make us
// allocate gigabytes before failing
const maxVectorLen = 1 << 30

type protocolState int

const (
	stateHeader protocolState = iota
	stateTimeBlocks
	stateDone
)

func (s protocolState) String() string {
	switch s {
	case stateHeader:
		return "HEADER"
	case stateTimeBlocks:
		return "TIME_BLOCKS"
	case stateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}
