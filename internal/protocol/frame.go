// Package protocol implements the length-prefixed JSON framing used on the
// torrentfsd RPC socket: every message is a 4-byte big-endian length
// followed by exactly that many bytes of UTF-8 JSON. Responses that carry
// bulk read data append a raw byte tail declared by the response's
// data_len field, outside the length prefix.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the largest JSON frame this package will decode. Frames
// declaring a larger length are rejected as a framing error, which — unlike
// a command-level error — closes the connection.
const MaxFrameSize = 16 * 1024 * 1024

// ErrFrameTooLarge is returned by ReadFrame when the declared length
// exceeds MaxFrameSize.
var ErrFrameTooLarge = fmt.Errorf("protocol: frame exceeds %d bytes", MaxFrameSize)

// WriteFrame writes v as a length-prefixed JSON frame to w.
func WriteFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame reads one length-prefixed JSON frame from r and unmarshals it
// into v.
func ReadFrame(r io.Reader, v any) error {
	body, err := ReadFrameBytes(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// ReadFrameBytes reads one length-prefixed frame from r and returns its
// raw JSON body without decoding it.
func ReadFrameBytes(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// ReadTail reads exactly n raw bytes following a header frame that
// declared data_len = n. Short reads are retried until the full payload
// is consumed.
func ReadTail(r io.Reader, n int64) ([]byte, error) {
	if n < 0 {
		return nil, errors.New("protocol: negative tail length")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteTail writes the raw byte tail following a header frame. It is the
// caller's responsibility to have declared data_len = len(data) in the
// preceding header.
func WriteTail(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}
