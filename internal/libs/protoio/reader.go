package protoio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gogo/protobuf/proto"
)

// NewDelimitedReader reads varint-delimited Protobuf messages from a reader.
// Messages longer than maxSize are refused.
func NewDelimitedReader(r io.Reader, maxSize int) ReadCloser {
	var closer io.Closer
	if c, ok := r.(io.Closer); ok {
		closer = c
	}
	return &varintReader{bufio.NewReader(r), nil, maxSize, closer}
}

type varintReader struct {
	r       *bufio.Reader
	buf     []byte
	maxSize int
	closer  io.Closer
}

func (r *varintReader) ReadMsg(msg proto.Message) (int, error) {
	// ReadUvarint needs an io.ByteReader, and we also need to keep track of
	// the number of bytes read, so we use our own byteReader.
	cr := &byteReader{r: r.r}
	l, err := binary.ReadUvarint(cr)
	if err != nil {
		return cr.bytesRead, err
	}
	length := int(l)
	if l >= uint64(^uint(0)>>1) || length < 0 || cr.bytesRead+length < 0 {
		return cr.bytesRead, fmt.Errorf("invalid out-of-range message length %v", l)
	}
	if length > r.maxSize {
		return cr.bytesRead, fmt.Errorf("message exceeds max size (%v > %v)", length, r.maxSize)
	}

	if len(r.buf) < length {
		r.buf = make([]byte, length)
	}
	buf := r.buf[:length]
	nr, err := io.ReadFull(r.r, buf)
	if err != nil {
		return cr.bytesRead + nr, err
	}
	return cr.bytesRead + nr, proto.Unmarshal(buf, msg)
}

func (r *varintReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// UnmarshalDelimited decodes a single length-prefixed message. Trailing
// bytes after the message are an error.
func UnmarshalDelimited(data []byte, msg proto.Message) error {
	n, err := NewDelimitedReader(bytes.NewReader(data), len(data)).ReadMsg(msg)
	if err != nil {
		return err
	}
	if n != len(data) {
		return errors.New("unmarshaled bytes do not match data length")
	}
	return nil
}

type byteReader struct {
	r         *bufio.Reader
	bytesRead int
}

func (r *byteReader) ReadByte() (byte, error) {
	c, err := r.r.ReadByte()
	if err == nil {
		r.bytesRead++
	}
	return c, err
}
