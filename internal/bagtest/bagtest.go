// Package bagtest builds small rosbags in memory for tests.
package bagtest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pierrec/lz4/v4"

	rosbag "github.com/lherman-cs/rosbag-extract"
	"github.com/lherman-cs/rosbag-extract/sensormsgs"
)

// Writer records connections and messages and lays them out as a v2.0 bag. Messages keep
// the order they were added in.
type Writer struct {
	// Compression puts every record in a single chunk compressed with it. Records aren't
	// chunked when it's empty.
	Compression rosbag.Compression

	conns   map[string]uint32
	records bytes.Buffer
	connRaw [][]byte
}

func NewWriter(compression rosbag.Compression) *Writer {
	return &Writer{
		Compression: compression,
		conns:       make(map[string]uint32),
	}
}

// AddConnection declares topic with a message type known to sensormsgs.
func (w *Writer) AddConnection(topic, msgType string) {
	def, ok := sensormsgs.DefinitionOf(msgType)
	if !ok {
		panic(fmt.Sprintf("no definition for %s", msgType))
	}
	w.AddConnectionDefinition(topic, def)
}

// AddConnectionDefinition declares topic with an arbitrary message definition.
func (w *Writer) AddConnectionDefinition(topic string, def sensormsgs.Definition) {
	if _, ok := w.conns[topic]; ok {
		return
	}
	conn := uint32(len(w.conns))
	w.conns[topic] = conn

	header := fields(
		field("op", []byte{byte(rosbag.OpConnection)}),
		field("conn", u32(conn)),
		field("topic", []byte(topic)),
	)
	data := fields(
		field("topic", []byte(topic)),
		field("type", []byte(def.Type)),
		field("md5sum", []byte(def.MD5Sum)),
		field("message_definition", []byte(def.Text)),
		field("callerid", []byte("/bagtest")),
	)
	raw := record(header, data)
	w.connRaw = append(w.connRaw, raw)
	w.records.Write(raw)
}

// AddMessage appends a serialized message published on topic at t. The topic must have
// been declared.
func (w *Writer) AddMessage(topic string, t time.Time, data []byte) {
	conn, ok := w.conns[topic]
	if !ok {
		panic(fmt.Sprintf("unknown topic %s", topic))
	}

	header := fields(
		field("op", []byte{byte(rosbag.OpMessageData)}),
		field("conn", u32(conn)),
		field("time", rosTime(t)),
	)
	w.records.Write(record(header, data))
}

// Bytes returns the bag.
func (w *Writer) Bytes() []byte {
	var out bytes.Buffer
	out.WriteString("#ROSBAG V2.0\n")
	out.Write(record(fields(
		field("op", []byte{byte(rosbag.OpBagHeader)}),
		field("index_pos", make([]byte, 8)),
		field("conn_count", u32(uint32(len(w.conns)))),
		field("chunk_count", u32(0)),
	), nil))

	if w.Compression == "" {
		out.Write(w.records.Bytes())
		return out.Bytes()
	}

	var compressed bytes.Buffer
	switch w.Compression {
	case rosbag.CompressionNone:
		compressed.Write(w.records.Bytes())
	case rosbag.CompressionLZ4:
		zw := lz4.NewWriter(&compressed)
		if _, err := zw.Write(w.records.Bytes()); err != nil {
			panic(err)
		}
		if err := zw.Close(); err != nil {
			panic(err)
		}
	default:
		panic(fmt.Sprintf("can't write %s chunks", w.Compression))
	}

	out.Write(record(fields(
		field("op", []byte{byte(rosbag.OpChunk)}),
		field("compression", []byte(w.Compression)),
		field("size", u32(uint32(w.records.Len()))),
	), compressed.Bytes()))

	// the index section repeats every connection
	for _, raw := range w.connRaw {
		out.Write(raw)
	}
	return out.Bytes()
}

// Save writes the bag to a file in a temporary directory and returns its path.
func (w *Writer) Save(t testing.TB, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, w.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func record(header, data []byte) []byte {
	raw := make([]byte, 0, 8+len(header)+len(data))
	raw = append(raw, u32(uint32(len(header)))...)
	raw = append(raw, header...)
	raw = append(raw, u32(uint32(len(data)))...)
	return append(raw, data...)
}

func field(name string, value []byte) []byte {
	raw := u32(uint32(len(name) + 1 + len(value)))
	raw = append(raw, name...)
	raw = append(raw, '=')
	return append(raw, value...)
}

func fields(fs ...[]byte) []byte {
	return bytes.Join(fs, nil)
}

func u32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func rosTime(t time.Time) []byte {
	raw := u32(uint32(t.Unix()))
	return append(raw, u32(uint32(t.Nanosecond()))...)
}
