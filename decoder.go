package rosbag

import (
	"bufio"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
)

const (
	lenInBytes           = 4
	headerFieldDelimiter = '='
	initialRecordSize    = 4096
)

var (
	errUnsupportedCompression = errors.New("unsupported compression algorithm. Available algortihms: [none, bz2, lz4]")
	errMissingBagHeader       = errors.New("bag doesn't start with a bag header record")
)

var (
	recordPool = sync.Pool{
		New: func() interface{} {
			return &RecordBase{
				Raw: make([]byte, initialRecordSize),
			}
		},
	}
)

type Decoder struct {
	reader         *bufio.Reader
	chunkReader    io.Reader
	chunkLimit     *io.LimitedReader
	checkedVersion bool
	readBagHeader  bool
	conns          map[uint32]*ConnectionHeader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		reader: bufio.NewReader(r),
		conns:  make(map[uint32]*ConnectionHeader),
	}
}

// Read returns the next record in the rosbag. The first call checks that the rosbag format
// version is supported. Records inside a chunk are returned right after the chunk record
// itself. When it reaches EOF, Read returns io.EOF error.
func (decoder *Decoder) Read() (Record, error) {
	if !decoder.checkedVersion {
		if err := decoder.checkVersion(); err != nil {
			return nil, err
		}

		decoder.checkedVersion = true
	}

	record := recordPool.Get().(*RecordBase)
	record.HeaderLen = 0
	record.DataLen = 0
	record.closeFn = func() {
		recordPool.Put(record)
	}
	if decoder.chunkReader != nil {
		specializedRecord, err := decoder.decodeRecord(decoder.chunkReader, record)
		switch err {
		case nil:
			return specializedRecord, nil
		case io.EOF:
			/* explicit ignore */
		default:
			// the record is not usable, so recyle it
			record.Close()
			return nil, err
		}

		// at this point, the error must be EOF, need to reset chunkReader and read from the source
		// again. Compressed readers may stop before the end of the chunk, skip what is left.
		if _, err := io.Copy(io.Discard, decoder.chunkLimit); err != nil {
			record.Close()
			return nil, err
		}
		decoder.chunkReader = nil
		decoder.chunkLimit = nil
	}

	specializedRecord, err := decoder.decodeRecord(decoder.reader, record)
	if err != nil {
		// the record is not usable, so recyle it
		record.Close()
		if !decoder.readBagHeader {
			return nil, unexpectedEOF(err)
		}
		return nil, err
	}

	if !decoder.readBagHeader {
		if _, ok := specializedRecord.(*RecordBagHeader); !ok {
			specializedRecord.Close()
			return nil, errMissingBagHeader
		}
		decoder.readBagHeader = true
	}

	return specializedRecord, nil
}

func (decoder *Decoder) handleChunk(record *RecordBase) (Record, error) {
	chunkRecord := RecordChunk{
		RecordBase: record,
	}

	compression, err := chunkRecord.Compression()
	if err != nil {
		return nil, err
	}

	chunkLimit := &io.LimitedReader{R: decoder.reader, N: int64(record.DataLen)}
	switch compression {
	case CompressionNone:
		decoder.chunkReader = chunkLimit
	case CompressionBZ2:
		decoder.chunkReader = bzip2.NewReader(chunkLimit)
	case CompressionLZ4:
		decoder.chunkReader = lz4.NewReader(chunkLimit)
	default:
		return nil, errUnsupportedCompression
	}
	decoder.chunkLimit = chunkLimit

	return &chunkRecord, nil
}

func (decoder *Decoder) handleConnection(record *RecordBase) (Record, error) {
	connRecord := RecordConnection{
		RecordBase: record,
	}

	conn, err := connRecord.Conn()
	if err != nil {
		return nil, err
	}

	// Connections are repeated in the index section after the chunks
	if hdr, ok := decoder.conns[conn]; ok {
		connRecord.connHdr = hdr
		return &connRecord, nil
	}

	hdr, err := connRecord.ConnectionHeader()
	if err != nil {
		return nil, err
	}

	decoder.conns[conn] = hdr
	return &connRecord, nil
}

func (decoder *Decoder) handleMessageData(record *RecordBase) (Record, error) {
	msgRecord := RecordMessageData{
		RecordBase: record,
	}

	conn, err := msgRecord.Conn()
	if err != nil {
		return nil, err
	}

	connHdr, ok := decoder.conns[conn]
	if !ok {
		return nil, errNotFoundConnectionHeader
	}

	msgRecord.connHdr = connHdr
	return &msgRecord, nil
}

// checkVersion reads the "#ROSBAG V2.0" line. The line must be terminated, a bag cut
// short inside it is reported as io.ErrUnexpectedEOF.
func (decoder *Decoder) checkVersion() error {
	line, err := decoder.reader.ReadString('\n')
	if err != nil {
		return unexpectedEOF(err)
	}

	var version Version
	if _, err := fmt.Sscanf(line, versionFormat, &version.Major, &version.Minor); err != nil {
		return fmt.Errorf("invalid bag format line %q: %w", line, err)
	}

	if version.Major != supportedVersion.Major || version.Minor != supportedVersion.Minor {
		return fmt.Errorf("%s is not supported. %s is the current supported version", &version, &supportedVersion)
	}

	return nil
}

func (decoder *Decoder) decodeRecord(r io.Reader, record *RecordBase) (Record, error) {
	var off uint32
	var err error

	record.grow(off + lenInBytes)
	_, err = io.ReadFull(r, record.Raw[off:off+lenInBytes])
	if err != nil {
		return nil, err
	}
	record.HeaderLen = endian.Uint32(record.Raw[off : off+lenInBytes])
	off += lenInBytes

	record.grow(off + record.HeaderLen)
	_, err = io.ReadFull(r, record.Raw[off:off+record.HeaderLen])
	if err != nil {
		return nil, unexpectedEOF(err)
	}
	off += record.HeaderLen

	op, err := record.Op()
	if err != nil {
		return nil, err
	}

	record.grow(off + lenInBytes)
	_, err = io.ReadFull(r, record.Raw[off:off+lenInBytes])
	if err != nil {
		return nil, unexpectedEOF(err)
	}
	record.DataLen = endian.Uint32(record.Raw[off : off+lenInBytes])
	off += lenInBytes

	// Since RecordChunk contains a lot of messages and connections, we don't parse
	// the data part. We'll let the next iteration to parse this.
	if op == OpChunk {
		return decoder.handleChunk(record)
	}

	record.grow(off + record.DataLen)
	_, err = io.ReadFull(r, record.Raw[off:off+record.DataLen])
	if err != nil {
		return nil, unexpectedEOF(err)
	}

	switch op {
	case OpBagHeader:
		return &RecordBagHeader{RecordBase: record}, nil
	case OpConnection:
		return decoder.handleConnection(record)
	case OpMessageData:
		return decoder.handleMessageData(record)
	case OpIndexData:
		return &RecordIndexData{RecordBase: record}, nil
	case OpChunkInfo:
		return &RecordChunkInfo{RecordBase: record}, nil
	default:
		return nil, errInvalidOp
	}
}

// unexpectedEOF turns io.EOF in the middle of a record into io.ErrUnexpectedEOF, so a
// truncated bag is never mistaken for a complete one.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
