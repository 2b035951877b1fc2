package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Foo string `json:"foo"`
	Bar int    `json:"bar"`
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	in := sample{Foo: "hello", Bar: 42}
	require.NoError(WriteFrame(&buf, in))

	var out sample
	require.NoError(ReadFrame(&buf, &out))
	require.Equal(in, out)
}

func TestReadFrameTooLarge(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	hdr := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(hdr)

	var out sample
	err := ReadFrame(&buf, &out)
	require.ErrorIs(err, ErrFrameTooLarge)
}

func TestWriteFrameTooLarge(t *testing.T) {
	require := require.New(t)

	big := strings.Repeat("a", MaxFrameSize+1)
	var buf bytes.Buffer
	err := WriteFrame(&buf, sample{Foo: big})
	require.ErrorIs(err, ErrFrameTooLarge)
}

func TestReadFrameShortHeader(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	buf.Write([]byte{0, 0})

	var out sample
	err := ReadFrame(&buf, &out)
	require.Error(err)
}

func TestTailRoundTrip(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	data := []byte("some binary payload")
	require.NoError(WriteTail(&buf, data))

	got, err := ReadTail(&buf, int64(len(data)))
	require.NoError(err)
	require.Equal(data, got)
}

func TestHeaderThenTail(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	type header struct {
		OK      bool  `json:"ok"`
		DataLen int64 `json:"data_len"`
	}
	h := header{OK: true, DataLen: 5}
	require.NoError(WriteFrame(&buf, h))
	require.NoError(WriteTail(&buf, []byte("abcde")))

	var gotHdr header
	require.NoError(ReadFrame(&buf, &gotHdr))
	require.Equal(h, gotHdr)

	tail, err := ReadTail(&buf, gotHdr.DataLen)
	require.NoError(err)
	require.Equal("abcde", string(tail))
}
