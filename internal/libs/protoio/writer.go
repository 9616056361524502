package protoio

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/gogo/protobuf/proto"
)

// NewDelimitedWriter writes a varint-delimited Protobuf message to a writer.
// WriteMsg returns the number of bytes written including the length prefix.
func NewDelimitedWriter(w io.Writer) WriteCloser {
	return &varintWriter{w, make([]byte, binary.MaxVarintLen64)}
}

type varintWriter struct {
	w      io.Writer
	lenBuf []byte
}

func (w *varintWriter) WriteMsg(msg proto.Message) (int, error) {
	data, err := proto.Marshal(msg)
	if err != nil {
		return 0, err
	}
	length := uint64(len(data))
	n := binary.PutUvarint(w.lenBuf, length)
	_, err = w.w.Write(w.lenBuf[:n])
	if err != nil {
		return 0, err
	}
	_, err = w.w.Write(data)
	return len(data) + n, err
}

func (w *varintWriter) Close() error {
	if closer, ok := w.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

var bufPool = &sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// MarshalDelimited encodes msg and prefixes it with its uvarint length.
func MarshalDelimited(msg proto.Message) ([]byte, error) {
	buf := bufPool.Get().(*bytes.Buffer)
	defer bufPool.Put(buf)
	buf.Reset()
	_, err := NewDelimitedWriter(buf).WriteMsg(msg)
	if err != nil {
		return nil, err
	}
	// Given that we are reusing buffers, we should
	// make a copy of the returned bytes.
	bytesCopy := make([]byte, buf.Len())
	copy(bytesCopy, buf.Bytes())
	return bytesCopy, nil
}
