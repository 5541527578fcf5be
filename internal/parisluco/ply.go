package parisluco

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// plyCloud is the vertex content of one PLY frame file.
type plyCloud struct {
	Xs, Ys, Zs  []float32
	Intensities []float32
	Times       []float64
}

type plyProperty struct {
	name string
	typ  string
}

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

var plyTypeSize = map[string]int{
	"char": 1, "int8": 1, "uchar": 1, "uint8": 1,
	"short": 2, "int16": 2, "ushort": 2, "uint16": 2,
	"int": 4, "int32": 4, "uint": 4, "uint32": 4,
	"float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

// loadPLY reads the vertex element of an ASCII or binary-little-endian PLY
// file. Properties named x/y/z are required; intensity and time columns are
// captured when present, everything else is skipped.
func loadPLY(path string) (*plyCloud, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)

	magic, err := readPLYLine(r)
	if err != nil || magic != "ply" {
		return nil, fmt.Errorf("%s: not a PLY file", path)
	}

	var (
		format   string
		elements []*plyElement
		current  *plyElement
	)
	for {
		line, err := readPLYLine(r)
		if err != nil {
			return nil, fmt.Errorf("%s: reading header: %w", path, err)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "comment", "obj_info":
		case "format":
			if len(fields) < 2 {
				return nil, fmt.Errorf("%s: malformed format line", path)
			}
			format = fields[1]
		case "element":
			if len(fields) != 3 {
				return nil, fmt.Errorf("%s: malformed element line %q", path, line)
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%s: bad element count in %q", path, line)
			}
			current = &plyElement{name: fields[1], count: n}
			elements = append(elements, current)
		case "property":
			if current == nil || len(fields) < 3 {
				return nil, fmt.Errorf("%s: property outside element in %q", path, line)
			}
			if fields[1] == "list" {
				return nil, fmt.Errorf("%s: list properties are not supported", path)
			}
			if _, ok := plyTypeSize[fields[1]]; !ok {
				return nil, fmt.Errorf("%s: unknown property type %q", path, fields[1])
			}
			current.props = append(current.props, plyProperty{name: fields[len(fields)-1], typ: fields[1]})
		case "end_header":
			goto headerDone
		default:
			return nil, fmt.Errorf("%s: unexpected header line %q", path, line)
		}
	}
headerDone:

	switch format {
	case "ascii":
		return parsePLYData(path, elements, asciiPLYValues(r))
	case "binary_little_endian":
		return parsePLYData(path, elements, binaryPLYValues(r))
	default:
		return nil, fmt.Errorf("%s: unsupported PLY format %q", path, format)
	}
}

func readPLYLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// valueReader yields the next scalar of the given PLY type.
type valueReader func(typ string) (float64, error)

func asciiPLYValues(r *bufio.Reader) valueReader {
	var fields []string
	return func(string) (float64, error) {
		for len(fields) == 0 {
			line, err := readPLYLine(r)
			if err != nil {
				return 0, err
			}
			fields = strings.Fields(line)
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		fields = fields[1:]
		return v, err
	}
}

func binaryPLYValues(r *bufio.Reader) valueReader {
	var buf [8]byte
	return func(typ string) (float64, error) {
		size := plyTypeSize[typ]
		if _, err := io.ReadFull(r, buf[:size]); err != nil {
			return 0, err
		}
		switch typ {
		case "char", "int8":
			return float64(int8(buf[0])), nil
		case "uchar", "uint8":
			return float64(buf[0]), nil
		case "short", "int16":
			return float64(int16(binary.LittleEndian.Uint16(buf[:2]))), nil
		case "ushort", "uint16":
			return float64(binary.LittleEndian.Uint16(buf[:2])), nil
		case "int", "int32":
			return float64(int32(binary.LittleEndian.Uint32(buf[:4]))), nil
		case "uint", "uint32":
			return float64(binary.LittleEndian.Uint32(buf[:4])), nil
		case "float", "float32":
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[:4]))), nil
		case "double", "float64":
			return math.Float64frombits(binary.LittleEndian.Uint64(buf[:8])), nil
		}
		return 0, fmt.Errorf("unknown PLY type %q", typ)
	}
}

func parsePLYData(path string, elements []*plyElement, next valueReader) (*plyCloud, error) {
	cloud := &plyCloud{}
	for _, el := range elements {
		isVertex := el.name == "vertex"
		for i := 0; i < el.count; i++ {
			for _, prop := range el.props {
				v, err := next(prop.typ)
				if err != nil {
					return nil, fmt.Errorf("%s: element %s row %d: %w", path, el.name, i, err)
				}
				if !isVertex {
					continue
				}
				switch prop.name {
				case "x":
					cloud.Xs = append(cloud.Xs, float32(v))
				case "y":
					cloud.Ys = append(cloud.Ys, float32(v))
				case "z":
					cloud.Zs = append(cloud.Zs, float32(v))
				case "intensity", "scalar_intensity":
					cloud.Intensities = append(cloud.Intensities, float32(v))
				case "time", "timestamp", "t":
					cloud.Times = append(cloud.Times, v)
				}
			}
		}
	}
	if len(cloud.Xs) == 0 || len(cloud.Xs) != len(cloud.Ys) || len(cloud.Xs) != len(cloud.Zs) {
		return nil, fmt.Errorf("%s: PLY vertex element lacks complete x/y/z columns", path)
	}
	return cloud, nil
}
