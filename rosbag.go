package rosbag

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

const (
	versionFormat = "#ROSBAG V%d.%d\n"
)

var (
	errInvalidOp                = errors.New("invalid op")
	errInvalidHeader            = errors.New("invalid record header")
	errMissingHeaderField       = errors.New("missing record header field")
	errNotFoundConnectionHeader = errors.New("connection header is not found")
)

var (
	supportedVersion = Version{
		Major: 2,
		Minor: 0,
	}
)

type Op uint8

const (
	// OpInvalid is an extension from the standard. This Op marks an invalid Op.
	OpInvalid     Op = 0x00
	OpBagHeader   Op = 0x03
	OpChunk       Op = 0x05
	OpConnection  Op = 0x07
	OpMessageData Op = 0x02
	OpIndexData   Op = 0x04
	OpChunkInfo   Op = 0x06
)

func (op Op) String() string {
	switch op {
	case OpBagHeader:
		return "bag_header"
	case OpChunk:
		return "chunk"
	case OpConnection:
		return "connection"
	case OpMessageData:
		return "message_data"
	case OpIndexData:
		return "index_data"
	case OpChunkInfo:
		return "chunk_info"
	default:
		return "invalid"
	}
}

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionBZ2  Compression = "bz2"
	CompressionLZ4  Compression = "lz4"
)

type Version struct {
	Major uint
	Minor uint
}

func (version *Version) String() string {
	return fmt.Sprintf("%d.%d", version.Major, version.Minor)
}

// Record is a single record read from a rosbag. Records come from a pool, so Close
// must be called once the record, and anything unmarshalled from it, is no longer used.
type Record interface {
	Op() (Op, error)
	Header() []byte
	Data() []byte
	String() string
	Close()
}

// RecordBase holds the raw bytes of a record: header_len, header, data_len, data.
type RecordBase struct {
	Raw       []byte
	HeaderLen uint32
	DataLen   uint32
	closeFn   func()
}

func (record *RecordBase) grow(size uint32) {
	if uint32(cap(record.Raw)) >= size {
		record.Raw = record.Raw[:size]
		return
	}

	raw := make([]byte, size, size*2)
	copy(raw, record.Raw)
	record.Raw = raw
}

func (record *RecordBase) Header() []byte {
	return record.Raw[lenInBytes : lenInBytes+record.HeaderLen]
}

func (record *RecordBase) Data() []byte {
	off := lenInBytes*2 + record.HeaderLen
	return record.Raw[off : off+record.DataLen]
}

func (record *RecordBase) Op() (Op, error) {
	v, err := record.field("op")
	if err != nil {
		return OpInvalid, err
	}

	if len(v) != 1 {
		return OpInvalid, errInvalidOp
	}

	return Op(v[0]), nil
}

// Close releases the record back to the pool. Calling Close more than once is a no-op.
func (record *RecordBase) Close() {
	if record.closeFn == nil {
		return
	}

	closeFn := record.closeFn
	record.closeFn = nil
	closeFn()
}

func (record *RecordBase) String() string {
	return fmt.Sprintf(`
header_len : %d bytes
data_len   : %d bytes
`, record.HeaderLen, record.DataLen)
}

func (record *RecordBase) field(key string) ([]byte, error) {
	var found []byte
	err := iterateHeaderFields(record.Header(), func(k, v []byte) bool {
		if string(k) == key {
			found = v
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, fmt.Errorf("%w: %s", errMissingHeaderField, key)
	}
	return found, nil
}

func (record *RecordBase) uint32Field(key string) (uint32, error) {
	v, err := record.field(key)
	if err != nil {
		return 0, err
	}

	if len(v) != 4 {
		return 0, errInvalidHeader
	}
	return endian.Uint32(v), nil
}

func (record *RecordBase) uint64Field(key string) (uint64, error) {
	v, err := record.field(key)
	if err != nil {
		return 0, err
	}

	if len(v) != 8 {
		return 0, errInvalidHeader
	}
	return endian.Uint64(v), nil
}

func (record *RecordBase) timeField(key string) (time.Time, error) {
	v, err := record.field(key)
	if err != nil {
		return time.Time{}, err
	}

	if len(v) != 8 {
		return time.Time{}, errInvalidHeader
	}
	return extractTime(v), nil
}

// iterateHeaderFields walks every <field_len><name>=<value> entry in header. Iteration stops
// early when cb returns false.
func iterateHeaderFields(header []byte, cb func(key, value []byte) bool) error {
	for len(header) > 0 {
		if len(header) < lenInBytes {
			return errInvalidHeader
		}

		fieldLen := endian.Uint32(header)
		header = header[lenInBytes:]
		if uint32(len(header)) < fieldLen {
			return errInvalidHeader
		}

		field := header[:fieldLen]
		header = header[fieldLen:]

		idx := bytes.IndexByte(field, headerFieldDelimiter)
		if idx == -1 {
			return errInvalidHeader
		}

		if !cb(field[:idx], field[idx+1:]) {
			return nil
		}
	}

	return nil
}

type RecordBagHeader struct {
	*RecordBase
}

func (record *RecordBagHeader) IndexPos() (uint64, error) {
	return record.uint64Field("index_pos")
}

func (record *RecordBagHeader) ConnCount() (uint32, error) {
	return record.uint32Field("conn_count")
}

func (record *RecordBagHeader) ChunkCount() (uint32, error) {
	return record.uint32Field("chunk_count")
}

func (record *RecordBagHeader) String() string {
	indexPos, _ := record.IndexPos()
	connCount, _ := record.ConnCount()
	chunkCount, _ := record.ChunkCount()
	return fmt.Sprintf(`
index_pos   : %d
conn_count  : %d
chunk_count : %d
`, indexPos, connCount, chunkCount)
}

// RecordChunk only carries its header. The chunk's content is streamed by the decoder as
// the subsequent records.
type RecordChunk struct {
	*RecordBase
}

func (record *RecordChunk) Compression() (Compression, error) {
	v, err := record.field("compression")
	if err != nil {
		return "", err
	}
	return Compression(v), nil
}

// Size returns the uncompressed size of the chunk.
func (record *RecordChunk) Size() (uint32, error) {
	return record.uint32Field("size")
}

func (record *RecordChunk) Data() []byte {
	return nil
}

func (record *RecordChunk) String() string {
	compression, _ := record.Compression()
	size, _ := record.Size()
	return fmt.Sprintf(`
compression : %s
size        : %d bytes
`, compression, size)
}

type RecordConnection struct {
	*RecordBase
	connHdr *ConnectionHeader
}

func (record *RecordConnection) Conn() (uint32, error) {
	return record.uint32Field("conn")
}

func (record *RecordConnection) Topic() (string, error) {
	v, err := record.field("topic")
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// ConnectionHeader returns the parsed connection header stored in the record's data.
func (record *RecordConnection) ConnectionHeader() (*ConnectionHeader, error) {
	if record.connHdr != nil {
		return record.connHdr, nil
	}

	var hdr ConnectionHeader
	if err := hdr.unmarshall(record.Data()); err != nil {
		return nil, err
	}

	// The record header's topic wins over the one in the data, they differ only for
	// remapped topics.
	if topic, err := record.Topic(); err == nil {
		hdr.Topic = topic
	}

	record.connHdr = &hdr
	return record.connHdr, nil
}

func (record *RecordConnection) String() string {
	conn, _ := record.Conn()
	topic, _ := record.Topic()
	return fmt.Sprintf(`
conn  : %d
topic : %s
`, conn, topic)
}

type RecordMessageData struct {
	*RecordBase
	connHdr *ConnectionHeader
}

func (record *RecordMessageData) Conn() (uint32, error) {
	return record.uint32Field("conn")
}

func (record *RecordMessageData) Time() (time.Time, error) {
	return record.timeField("time")
}

func (record *RecordMessageData) ConnectionHeader() *ConnectionHeader {
	return record.connHdr
}

// Topic returns the topic the message was published on.
func (record *RecordMessageData) Topic() string {
	return record.connHdr.Topic
}

// Type returns the ROS message type, e.g. sensor_msgs/Image.
func (record *RecordMessageData) Type() string {
	return record.connHdr.Type
}

// UnmarshallTo decodes the message into v, which must be a map[string]interface{} or a
// pointer to a struct. Struct fields are matched by their rosbag tag, or their name.
//
// Strings and numeric slices may alias the record's memory, so v must not be used after
// the record is closed.
func (record *RecordMessageData) UnmarshallTo(v interface{}) error {
	_, err := decodeMessageData(&record.connHdr.MessageDefinition, record.Data(), v)
	return err
}

func (record *RecordMessageData) String() string {
	t, _ := record.Time()
	return fmt.Sprintf(`
topic : %s
type  : %s
time  : %s
size  : %d bytes
`, record.Topic(), record.Type(), t, record.DataLen)
}

type RecordIndexData struct {
	*RecordBase
}

func (record *RecordIndexData) Conn() (uint32, error) {
	return record.uint32Field("conn")
}

func (record *RecordIndexData) Count() (uint32, error) {
	return record.uint32Field("count")
}

type RecordChunkInfo struct {
	*RecordBase
}

func (record *RecordChunkInfo) ChunkPos() (uint64, error) {
	return record.uint64Field("chunk_pos")
}

func (record *RecordChunkInfo) StartTime() (time.Time, error) {
	return record.timeField("start_time")
}

func (record *RecordChunkInfo) EndTime() (time.Time, error) {
	return record.timeField("end_time")
}
