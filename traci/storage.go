package traci

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned when a message ends before the value being read.
var ErrShortBuffer = errors.New("traci: message truncated")

// storage serializes values in TraCI wire order (big endian).
type storage struct {
	buf bytes.Buffer
}

func (s *storage) ubyte(v byte) {
	s.buf.WriteByte(v)
}

func (s *storage) int32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	s.buf.Write(b[:])
}

func (s *storage) double(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	s.buf.Write(b[:])
}

func (s *storage) str(v string) {
	s.int32(int32(len(v)))
	s.buf.WriteString(v)
}

func (s *storage) strList(v []string) {
	s.int32(int32(len(v)))
	for _, item := range v {
		s.str(item)
	}
}

func (s *storage) typedInt(v int) {
	s.ubyte(typeInteger)
	s.int32(int32(v))
}

func (s *storage) typedDouble(v float64) {
	s.ubyte(typeDouble)
	s.double(v)
}

func (s *storage) typedString(v string) {
	s.ubyte(typeString)
	s.str(v)
}

func (s *storage) typedStringList(v []string) {
	s.ubyte(typeStringList)
	s.strList(v)
}

func (s *storage) compound(n int) {
	s.ubyte(typeCompound)
	s.int32(int32(n))
}

func (s *storage) bytes() []byte {
	return s.buf.Bytes()
}

// reader decodes values from a received message.
type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) next(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, errors.Wrapf(ErrShortBuffer, "need %d bytes at offset %d, have %d", n, r.pos, r.remaining())
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) ubyte() (byte, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) int32() (int32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *reader) double() (float64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (r *reader) str() (string, error) {
	n, err := r.int32()
	if err != nil {
		return "", err
	}
	b, err := r.next(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) strList() ([]string, error) {
	n, err := r.int32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.Errorf("traci: negative list length %d", n)
	}
	out := make([]string, 0, n)
	for i := int32(0); i < n; i++ {
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// length reads a command length: one byte, or zero followed by an int32 for
// extended commands. The returned value includes the length field itself.
func (r *reader) length() (int, error) {
	b, err := r.ubyte()
	if err != nil {
		return 0, err
	}
	if b != 0 {
		return int(b), nil
	}
	n, err := r.int32()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// value decodes one value of the given type. Compound values decode to []any.
func (r *reader) value(t byte) (any, error) {
	switch t {
	case typeUByte:
		return r.ubyte()
	case typeByte:
		b, err := r.ubyte()
		return int8(b), err
	case typeInteger:
		v, err := r.int32()
		return int(v), err
	case typeDouble:
		return r.double()
	case typeString:
		return r.str()
	case typeStringList:
		return r.strList()
	case typePosition2D:
		x, err := r.double()
		if err != nil {
			return nil, err
		}
		y, err := r.double()
		return [2]float64{x, y}, err
	case typePosition3D:
		var p [3]float64
		for i := range p {
			v, err := r.double()
			if err != nil {
				return nil, err
			}
			p[i] = v
		}
		return p, nil
	case typeColor:
		b, err := r.next(4)
		if err != nil {
			return nil, err
		}
		return [4]byte{b[0], b[1], b[2], b[3]}, nil
	case typeDoubleList:
		n, err := r.int32()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, errors.Errorf("traci: negative list length %d", n)
		}
		out := make([]float64, 0, n)
		for i := int32(0); i < n; i++ {
			v, err := r.double()
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case typeCompound:
		n, err := r.int32()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, errors.Errorf("traci: negative compound size %d", n)
		}
		items := make([]any, 0, n)
		for i := int32(0); i < n; i++ {
			it, err := r.ubyte()
			if err != nil {
				return nil, err
			}
			v, err := r.value(it)
			if err != nil {
				return nil, errors.Wrapf(err, "compound item %d", i)
			}
			items = append(items, v)
		}
		return items, nil
	default:
		return nil, errors.Errorf("traci: unsupported value type 0x%02x", t)
	}
}
