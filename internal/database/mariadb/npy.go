package mariadb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var npyMagic = []byte("\x93NUMPY")

var (
	npyDescrRe = regexp.MustCompile(`'descr':\s*'([^']+)'`)
	npyOrderRe = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	npyShapeRe = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
)

// DecodeNPY decodes a one-dimensional float array serialized in the NumPy
// .npy format, which is how the legacy schema stored face encodings.
func DecodeNPY(data []byte) ([]float32, error) {
	if len(data) < 10 || !bytes.HasPrefix(data, npyMagic) {
		return nil, errors.New("not an npy payload")
	}

	major := data[6]
	var headerLen, offset int
	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(data[8:10]))
		offset = 10
	case 2, 3:
		if len(data) < 12 {
			return nil, errors.New("truncated npy header")
		}
		headerLen = int(binary.LittleEndian.Uint32(data[8:12]))
		offset = 12
	default:
		return nil, fmt.Errorf("unsupported npy version %d", major)
	}
	if len(data) < offset+headerLen {
		return nil, errors.New("truncated npy header")
	}
	header := string(data[offset : offset+headerLen])
	body := data[offset+headerLen:]

	descr := npyDescrRe.FindStringSubmatch(header)
	if descr == nil {
		return nil, errors.New("npy header has no descr")
	}
	if m := npyOrderRe.FindStringSubmatch(header); m != nil && m[1] == "True" {
		return nil, errors.New("fortran-ordered arrays are not supported")
	}
	shape := npyShapeRe.FindStringSubmatch(header)
	if shape == nil {
		return nil, errors.New("npy header has no shape")
	}
	n, err := npyLength(shape[1])
	if err != nil {
		return nil, err
	}

	var order binary.ByteOrder = binary.LittleEndian
	kind := descr[1]
	switch kind[0] {
	case '>':
		order = binary.BigEndian
		kind = kind[1:]
	case '<', '=', '|':
		kind = kind[1:]
	}

	switch kind {
	case "f8":
		if len(body) < n*8 {
			return nil, errors.New("truncated npy data")
		}
		out := make([]float32, n)
		for i := range n {
			out[i] = float32(math.Float64frombits(order.Uint64(body[i*8:])))
		}
		return out, nil
	case "f4":
		if len(body) < n*4 {
			return nil, errors.New("truncated npy data")
		}
		out := make([]float32, n)
		for i := range n {
			out[i] = math.Float32frombits(order.Uint32(body[i*4:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported npy dtype %q", descr[1])
	}
}

// npyLength parses a one-dimensional shape such as "128," or "128".
func npyLength(shape string) (int, error) {
	parts := strings.Split(strings.TrimSpace(shape), ",")
	var dims []int
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid npy shape %q: %w", shape, err)
		}
		dims = append(dims, d)
	}
	if len(dims) != 1 {
		return 0, fmt.Errorf("expected a one-dimensional array, got shape (%s)", shape)
	}
	return dims[0], nil
}
