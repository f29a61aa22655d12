package rosbag

import (
	"io"
	"os"
	"path/filepath"
)

// Bag is a rosbag backed by a seekable source. Every call to Messages starts a new pass
// from the beginning of the bag.
type Bag struct {
	rs     io.ReadSeeker
	closer io.Closer
	name   string
}

// Open opens the rosbag at path. The caller must Close it.
func Open(path string) (*Bag, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, err
	}

	return NewBagCloser(f, filepath.Base(path)), nil
}

// NewBagCloser wraps rsc under the given name. Closing the returned bag closes rsc.
func NewBagCloser(rsc io.ReadSeekCloser, name string) *Bag {
	return &Bag{
		rs:     rsc,
		closer: rsc,
		name:   name,
	}
}

// NewBag wraps rs. Closing the returned bag doesn't close rs.
func NewBag(rs io.ReadSeeker) *Bag {
	return &Bag{rs: rs}
}

// Name is the file name of the bag, empty when it's not backed by a file.
func (bag *Bag) Name() string {
	return bag.name
}

func (bag *Bag) Close() error {
	if bag.closer == nil {
		return nil
	}
	return bag.closer.Close()
}

// Messages rewinds the bag and returns an iterator over its message records in the order
// they're stored. Starting a new pass invalidates the previous iterator.
func (bag *Bag) Messages() (*MessageIterator, error) {
	if _, err := bag.rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	return &MessageIterator{decoder: NewDecoder(bag.rs)}, nil
}

// MessageIterator yields message data records, skipping all other records.
type MessageIterator struct {
	decoder *Decoder
}

// Next returns the next message. It returns io.EOF once the bag is exhausted. The caller
// owns the returned record and must Close it.
func (it *MessageIterator) Next() (*RecordMessageData, error) {
	for {
		record, err := it.decoder.Read()
		if err != nil {
			return nil, err
		}

		if msg, ok := record.(*RecordMessageData); ok {
			return msg, nil
		}
		record.Close()
	}
}
