package pcd

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	lzf "github.com/zhuyie/golzf"
	"go.uber.org/multierr"
)

// Save writes pc to path in the given format.
func Save(path string, pc *PointCloud, format DataFormat) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	if err = Write(w, pc, format); err != nil {
		return err
	}
	return w.Flush()
}

// Write encodes pc as a PCD v0.7 file.
func Write(out io.Writer, pc *PointCloud, format DataFormat) error {
	if len(pc.Data) != pc.Points()*pc.PointSize() {
		return errors.Errorf("point cloud data is %d bytes, expected %d", len(pc.Data), pc.Points()*pc.PointSize())
	}

	if err := writeHeader(out, pc, format); err != nil {
		return err
	}

	switch format {
	case ASCII:
		return writeASCII(out, pc)
	case Binary:
		_, err := out.Write(pc.Data)
		return err
	case BinaryCompressed:
		return writeCompressed(out, pc)
	default:
		return errors.Errorf("unknown pcd data format %q", format)
	}
}

func writeHeader(out io.Writer, pc *PointCloud, format DataFormat) error {
	names := make([]string, len(pc.Fields))
	sizes := make([]string, len(pc.Fields))
	types := make([]string, len(pc.Fields))
	counts := make([]string, len(pc.Fields))
	for i, f := range pc.Fields {
		names[i] = f.Name
		sizes[i] = strconv.Itoa(f.Size)
		types[i] = string(f.Type)
		counts[i] = strconv.Itoa(f.Count)
	}

	viewpoint := make([]string, len(pc.Viewpoint))
	for i, v := range pc.Viewpoint {
		viewpoint[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}

	_, err := fmt.Fprintf(out, "# .PCD v0.7 - Point Cloud Data file format\n"+
		"VERSION 0.7\n"+
		"FIELDS %s\n"+
		"SIZE %s\n"+
		"TYPE %s\n"+
		"COUNT %s\n"+
		"WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT %s\n"+
		"POINTS %d\n"+
		"DATA %s\n",
		strings.Join(names, " "),
		strings.Join(sizes, " "),
		strings.Join(types, " "),
		strings.Join(counts, " "),
		pc.Width,
		pc.Height,
		strings.Join(viewpoint, " "),
		pc.Points(),
		format)
	return err
}

func writeASCII(out io.Writer, pc *PointCloud) error {
	pointSize := pc.PointSize()
	var line []byte
	for off := 0; off < len(pc.Data); off += pointSize {
		line = line[:0]
		point := pc.Data[off : off+pointSize]
		for _, f := range pc.Fields {
			for c := 0; c < f.Count; c++ {
				if len(line) > 0 {
					line = append(line, ' ')
				}
				line = f.appendASCII(line, point[:f.Size])
				point = point[f.Size:]
			}
		}
		line = append(line, '\n')
		if _, err := out.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// toColumns reorders packed points so every field's values are contiguous, which is the
// layout binary_compressed expects.
func toColumns(pc *PointCloud) []byte {
	n := pc.Points()
	pointSize := pc.PointSize()
	columns := make([]byte, 0, len(pc.Data))
	fieldOff := 0
	for _, f := range pc.Fields {
		l := f.byteLen()
		for p := 0; p < n; p++ {
			start := p*pointSize + fieldOff
			columns = append(columns, pc.Data[start:start+l]...)
		}
		fieldOff += l
	}
	return columns
}

func fromColumns(pc *PointCloud, columns []byte) {
	n := pc.Points()
	pointSize := pc.PointSize()
	pc.Data = make([]byte, n*pointSize)
	fieldOff := 0
	colOff := 0
	for _, f := range pc.Fields {
		l := f.byteLen()
		for p := 0; p < n; p++ {
			copy(pc.Data[p*pointSize+fieldOff:], columns[colOff:colOff+l])
			colOff += l
		}
		fieldOff += l
	}
}

func writeCompressed(out io.Writer, pc *PointCloud) error {
	columns := toColumns(pc)

	var compressed []byte
	if len(columns) > 0 {
		// lzf may expand incompressible input slightly
		compressed = make([]byte, len(columns)+len(columns)/16+64)
		n, err := lzf.Compress(columns, compressed)
		if err != nil {
			return errors.Wrap(err, "failed to compress point data")
		}
		compressed = compressed[:n]
	}

	var sizes [8]byte
	binary.LittleEndian.PutUint32(sizes[:], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(sizes[4:], uint32(len(columns)))
	if _, err := out.Write(sizes[:]); err != nil {
		return err
	}
	_, err := out.Write(compressed)
	return err
}

func (f Field) appendASCII(dst []byte, b []byte) []byte {
	switch f.Type {
	case 'F':
		if f.Size == 8 {
			return strconv.AppendFloat(dst, math.Float64frombits(binary.LittleEndian.Uint64(b)), 'g', -1, 64)
		}
		return strconv.AppendFloat(dst, float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), 'g', -1, 32)
	case 'I':
		var v int64
		switch f.Size {
		case 1:
			v = int64(int8(b[0]))
		case 2:
			v = int64(int16(binary.LittleEndian.Uint16(b)))
		case 4:
			v = int64(int32(binary.LittleEndian.Uint32(b)))
		default:
			v = int64(binary.LittleEndian.Uint64(b))
		}
		return strconv.AppendInt(dst, v, 10)
	default:
		var v uint64
		switch f.Size {
		case 1:
			v = uint64(b[0])
		case 2:
			v = uint64(binary.LittleEndian.Uint16(b))
		case 4:
			v = uint64(binary.LittleEndian.Uint32(b))
		default:
			v = binary.LittleEndian.Uint64(b)
		}
		return strconv.AppendUint(dst, v, 10)
	}
}

func (f Field) putASCII(dst []byte, s string) error {
	switch f.Type {
	case 'F':
		if f.Size == 8 {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
			return nil
		}
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
		return nil
	case 'I':
		v, err := strconv.ParseInt(s, 10, f.Size*8)
		if err != nil {
			return err
		}
		putUint(dst, f.Size, uint64(v))
		return nil
	default:
		v, err := strconv.ParseUint(s, 10, f.Size*8)
		if err != nil {
			return err
		}
		putUint(dst, f.Size, v)
		return nil
	}
}

func putUint(dst []byte, size int, v uint64) {
	switch size {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	default:
		binary.LittleEndian.PutUint64(dst, v)
	}
}
