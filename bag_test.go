package rosbag_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	rosbag "github.com/lherman-cs/rosbag-extract"
	"github.com/lherman-cs/rosbag-extract/internal/bagtest"
	"github.com/lherman-cs/rosbag-extract/sensormsgs"
)

type message struct {
	Topic string
	Type  string
	Time  time.Time
	Seq   uint32
}

func newTestBag(compression rosbag.Compression) (*bagtest.Writer, []message) {
	w := bagtest.NewWriter(compression)
	w.AddConnection("/camera", sensormsgs.TypeImage)
	w.AddConnection("/lidar", sensormsgs.TypePointCloud2)

	var expected []message
	for i := 0; i < 3; i++ {
		stamp := time.Unix(int64(1000+i), 500)
		h := sensormsgs.Header{Seq: uint32(i), Stamp: stamp, FrameID: "frame"}

		w.AddMessage("/camera", stamp, bagtest.Image(&sensormsgs.Image{
			Header:   h,
			Height:   1,
			Width:    2,
			Encoding: "rgb8",
			Step:     6,
			Data:     []byte{1, 2, 3, 4, 5, 6},
		}))
		expected = append(expected, message{"/camera", sensormsgs.TypeImage, stamp, uint32(i)})

		cloud := bagtest.XYZ([][3]float32{{1, 2, 3}})
		cloud.Header = h
		w.AddMessage("/lidar", stamp, bagtest.PointCloud2(cloud))
		expected = append(expected, message{"/lidar", sensormsgs.TypePointCloud2, stamp, uint32(i)})
	}
	return w, expected
}

func readAll(t *testing.T, it *rosbag.MessageIterator) []message {
	t.Helper()
	var msgs []message
	for {
		msg, err := it.Next()
		if err == io.EOF {
			return msgs
		}
		if err != nil {
			t.Fatal(err)
		}

		stamp, err := msg.Time()
		if err != nil {
			t.Fatal(err)
		}

		var h struct {
			Header sensormsgs.Header `rosbag:"header"`
		}
		if err := msg.UnmarshallTo(&h); err != nil {
			t.Fatal(err)
		}

		msgs = append(msgs, message{Topic: msg.Topic(), Type: msg.Type(), Time: stamp, Seq: h.Header.Seq})
		msg.Close()
	}
}

func TestBagMessages(t *testing.T) {
	testCases := []struct {
		Name        string
		Compression rosbag.Compression
	}{
		{Name: "Unchunked"},
		{Name: "Uncompressed Chunk", Compression: rosbag.CompressionNone},
		{Name: "LZ4 Chunk", Compression: rosbag.CompressionLZ4},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			w, expected := newTestBag(testCase.Compression)
			bag := rosbag.NewBag(bytes.NewReader(w.Bytes()))
			defer bag.Close()

			// every pass starts over
			for pass := 0; pass < 2; pass++ {
				it, err := bag.Messages()
				if err != nil {
					t.Fatal(err)
				}

				if diff := cmp.Diff(expected, readAll(t, it)); diff != "" {
					t.Fatalf("pass %d: %s", pass, diff)
				}
			}
		})
	}
}

func TestBagOpen(t *testing.T) {
	w, expected := newTestBag(rosbag.CompressionLZ4)
	path := w.Save(t, "drive.bag")

	bag, err := rosbag.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer bag.Close()

	if bag.Name() != "drive.bag" {
		t.Fatalf("expected drive.bag, got %s", bag.Name())
	}

	it, err := bag.Messages()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(expected, readAll(t, it)); diff != "" {
		t.Fatal(diff)
	}
}

func TestBagTruncated(t *testing.T) {
	w, _ := newTestBag("")
	raw := w.Bytes()
	bag := rosbag.NewBag(bytes.NewReader(raw[:len(raw)-3]))

	it, err := bag.Messages()
	if err != nil {
		t.Fatal(err)
	}

	for {
		msg, err := it.Next()
		if err == nil {
			msg.Close()
			continue
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("expected %v, got %v", io.ErrUnexpectedEOF, err)
		}
		return
	}
}

func TestDecoderRead(t *testing.T) {
	w, _ := newTestBag(rosbag.CompressionNone)
	decoder := rosbag.NewDecoder(bytes.NewReader(w.Bytes()))

	var ops []rosbag.Op
	for {
		record, err := decoder.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}

		op, err := record.Op()
		if err != nil {
			t.Fatal(err)
		}
		ops = append(ops, op)

		if conn, ok := record.(*rosbag.RecordConnection); ok {
			hdr, err := conn.ConnectionHeader()
			if err != nil {
				t.Fatal(err)
			}
			def, _ := sensormsgs.DefinitionOf(hdr.Type)
			if hdr.MD5Sum != def.MD5Sum {
				t.Fatalf("expected md5sum %s, got %s", def.MD5Sum, hdr.MD5Sum)
			}
		}
		record.Close()
	}

	expected := []rosbag.Op{rosbag.OpBagHeader, rosbag.OpChunk, rosbag.OpConnection, rosbag.OpConnection}
	for i := 0; i < 6; i++ {
		expected = append(expected, rosbag.OpMessageData)
	}
	expected = append(expected, rosbag.OpConnection, rosbag.OpConnection)
	if diff := cmp.Diff(expected, ops); diff != "" {
		t.Fatal(diff)
	}
}

func BenchmarkBagMessages(b *testing.B) {
	w := bagtest.NewWriter(rosbag.CompressionLZ4)
	w.AddConnection("/camera", sensormsgs.TypeImage)
	img := bagtest.Image(&sensormsgs.Image{
		Height:   1080,
		Width:    1920,
		Encoding: "rgb8",
		Step:     1920 * 3,
		Data:     make([]byte, 1920*1080*3),
	})
	for i := 0; i < 10; i++ {
		w.AddMessage("/camera", time.Unix(int64(i), 0), img)
	}
	bag := rosbag.NewBag(bytes.NewReader(w.Bytes()))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		it, err := bag.Messages()
		if err != nil {
			b.Fatal(err)
		}

		for {
			msg, err := it.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				b.Fatal(err)
			}

			var decoded sensormsgs.Image
			if err := msg.UnmarshallTo(&decoded); err != nil {
				b.Fatal(err)
			}
			msg.Close()
		}
	}
}
