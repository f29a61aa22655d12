package pcd

import (
	"bufio"
	"encoding/binary"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	lzf "github.com/zhuyie/golzf"
)

// Read reads a pcd file written in any of the three data formats.
func Read(in io.Reader) (*PointCloud, error) {
	r := bufio.NewReader(in)
	pc, format, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	switch format {
	case ASCII:
		err = readASCII(r, pc)
	case Binary:
		pc.Data = make([]byte, pc.Points()*pc.PointSize())
		_, err = io.ReadFull(r, pc.Data)
	case BinaryCompressed:
		err = readCompressed(r, pc)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s point data", format)
	}
	return pc, nil
}

func readHeader(r *bufio.Reader) (*PointCloud, DataFormat, error) {
	pc := &PointCloud{Viewpoint: defaultViewpoint}
	var sizes, counts []int
	var types []byte
	points := -1

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, "", errors.Wrap(err, "pcd header is incomplete")
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		key, values := parts[0], parts[1:]
		switch key {
		case "VERSION":
		case "FIELDS":
			for _, name := range values {
				pc.Fields = append(pc.Fields, Field{Name: name})
			}
		case "SIZE":
			if sizes, err = atois(values); err != nil {
				return nil, "", errors.Wrap(err, "invalid SIZE")
			}
		case "TYPE":
			for _, v := range values {
				if len(v) != 1 || !strings.Contains("IUF", v) {
					return nil, "", errors.Errorf("invalid TYPE %q", v)
				}
				types = append(types, v[0])
			}
		case "COUNT":
			if counts, err = atois(values); err != nil {
				return nil, "", errors.Wrap(err, "invalid COUNT")
			}
		case "WIDTH", "HEIGHT", "POINTS":
			if len(values) != 1 {
				return nil, "", errors.Errorf("invalid %s", key)
			}
			v, err := strconv.Atoi(values[0])
			if err != nil {
				return nil, "", errors.Wrapf(err, "invalid %s", key)
			}
			switch key {
			case "WIDTH":
				pc.Width = v
			case "HEIGHT":
				pc.Height = v
			default:
				points = v
			}
		case "VIEWPOINT":
			if len(values) != len(pc.Viewpoint) {
				return nil, "", errors.New("invalid VIEWPOINT")
			}
			for i, v := range values {
				if pc.Viewpoint[i], err = strconv.ParseFloat(v, 64); err != nil {
					return nil, "", errors.Wrap(err, "invalid VIEWPOINT")
				}
			}
		case "DATA":
			if len(values) != 1 {
				return nil, "", errors.New("invalid DATA")
			}
			format, err := ParseDataFormat(values[0])
			if err != nil {
				return nil, "", err
			}

			n := len(pc.Fields)
			if len(sizes) != n || len(types) != n || (counts != nil && len(counts) != n) {
				return nil, "", errors.New("FIELDS, SIZE, TYPE and COUNT lengths differ")
			}
			for i := range pc.Fields {
				pc.Fields[i].Size = sizes[i]
				pc.Fields[i].Type = types[i]
				pc.Fields[i].Count = 1
				if counts != nil {
					pc.Fields[i].Count = counts[i]
				}
			}
			if points >= 0 && points != pc.Points() {
				return nil, "", errors.Errorf("POINTS %d doesn't match WIDTH*HEIGHT %d", points, pc.Points())
			}
			return pc, format, nil
		default:
			return nil, "", errors.Errorf("unknown pcd header entry %q", key)
		}
	}
}

func readASCII(r *bufio.Reader, pc *PointCloud) error {
	pointSize := pc.PointSize()
	pc.Data = make([]byte, pc.Points()*pointSize)
	for p := 0; p < pc.Points(); p++ {
		line, err := r.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			return err
		}

		values := strings.Fields(line)
		point := pc.Data[p*pointSize : (p+1)*pointSize]
		for _, f := range pc.Fields {
			for c := 0; c < f.Count; c++ {
				if len(values) == 0 {
					return errors.Errorf("point %d has too few values", p)
				}
				if err := f.putASCII(point, values[0]); err != nil {
					return err
				}
				values = values[1:]
				point = point[f.Size:]
			}
		}
	}
	return nil
}

func readCompressed(r *bufio.Reader, pc *PointCloud) error {
	var sizes [8]byte
	if _, err := io.ReadFull(r, sizes[:]); err != nil {
		return err
	}
	compressedSize := binary.LittleEndian.Uint32(sizes[:])
	uncompressedSize := binary.LittleEndian.Uint32(sizes[4:])
	if int(uncompressedSize) != pc.Points()*pc.PointSize() {
		return errors.Errorf("uncompressed size %d doesn't match %d points", uncompressedSize, pc.Points())
	}

	compressed := make([]byte, compressedSize)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return err
	}

	columns := make([]byte, uncompressedSize)
	if len(compressed) > 0 {
		n, err := lzf.Decompress(compressed, columns)
		if err != nil {
			return err
		}
		if n != len(columns) {
			return errors.Errorf("decompressed %d bytes, expected %d", n, len(columns))
		}
	}

	fromColumns(pc, columns)
	return nil
}

func atois(values []string) ([]int, error) {
	out := make([]int, len(values))
	for i, v := range values {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
