// Package protoio frames self-marshaling Protobuf messages with a uvarint
// length prefix, the framing used for canonical sign bytes and for the
// remote signer request envelopes.
package protoio

import (
	"io"

	"github.com/gogo/protobuf/proto"
)

type Writer interface {
	WriteMsg(proto.Message) (int, error)
}

type WriteCloser interface {
	Writer
	io.Closer
}

type Reader interface {
	ReadMsg(msg proto.Message) (int, error)
}

type ReadCloser interface {
	Reader
	io.Closer
}
