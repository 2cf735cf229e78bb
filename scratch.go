package flatgeobuf

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

// scratch is an append-only spill file. Encoded features are written once
// in scan order and read back by slot in any order.
type scratch struct {
	f      *os.File
	w      *bufio.Writer
	offset int64
	slots  []int64 // start offset of every slot
}

func newScratch(dir string) (*scratch, error) {
	f, err := os.CreateTemp(dir, "flatgeobuf-*.tmp")
	if err != nil {
		return nil, errors.Wrap(err, "flatgeobuf: create scratch file")
	}
	return &scratch{f: f, w: bufio.NewWriterSize(f, 1<<16)}, nil
}

// Append stores b as the next slot and returns its index.
func (s *scratch) Append(b []byte) (int, error) {
	if _, err := s.w.Write(b); err != nil {
		return 0, errors.Wrap(err, "flatgeobuf: write scratch file")
	}
	s.slots = append(s.slots, s.offset)
	s.offset += int64(len(b))
	return len(s.slots) - 1, nil
}

// Flush makes all appended slots readable.
func (s *scratch) Flush() error {
	return errors.Wrap(s.w.Flush(), "flatgeobuf: flush scratch file")
}

// ReadSlot reads slot i into buf, which must be exactly the slot's size.
func (s *scratch) ReadSlot(i int, buf []byte) error {
	n, err := s.f.ReadAt(buf, s.slots[i])
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return errors.Wrapf(err, "flatgeobuf: read scratch slot %d", i)
}

// Len returns the number of bytes appended.
func (s *scratch) Len() int64 {
	return s.offset
}

// Close closes and removes the scratch file.
func (s *scratch) Close() error {
	name := s.f.Name()
	cerr := s.f.Close()
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "flatgeobuf: remove scratch file")
	}
	return errors.Wrap(cerr, "flatgeobuf: close scratch file")
}
