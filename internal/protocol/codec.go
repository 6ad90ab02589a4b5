package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/multiformats/go-varint"
)

// MaxPacketSize is the largest frame the client accepts (3 byte VarInt limit).
const MaxPacketSize = 1<<21 - 1

// AppendVarInt appends v in the game's VarInt form. Negative values take five bytes.
func AppendVarInt(dst []byte, v int32) []byte {
	return append(dst, varint.ToUvarint(uint64(uint32(v)))...)
}

// ReadVarInt reads one VarInt. Malformed encodings are ErrProtocol,
// reader failures are returned as is.
func ReadVarInt(r io.ByteReader) (int32, error) {
	v, err := varint.ReadUvarint(r)
	if err != nil {
		if errors.Is(err, varint.ErrOverflow) || errors.Is(err, varint.ErrNotMinimal) {
			return 0, protocolErrorf("varint: %v", err)
		}
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, protocolErrorf("varint exceeds 32 bits")
	}

	return int32(uint32(v)), nil
}

func appendString(dst []byte, s string) []byte {
	dst = AppendVarInt(dst, int32(len(s)))
	return append(dst, s...)
}

func appendPacket(dst []byte, id int32, payload []byte) []byte {
	body := AppendVarInt(make([]byte, 0, len(payload)+1), id)
	body = append(body, payload...)
	dst = AppendVarInt(dst, int32(len(body)))
	return append(dst, body...)
}

// readPacket reads one uncompressed frame and returns its id and payload reader.
func readPacket(r io.Reader) (int32, *bytes.Reader, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = &byteReader{r: r}
	}

	length, err := ReadVarInt(br)
	if err != nil {
		return 0, nil, Classify(err)
	}
	if length <= 0 || length > MaxPacketSize {
		return 0, nil, protocolErrorf("bad packet length %d", length)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		return 0, nil, Classify(err)
	}

	payload := bytes.NewReader(frame)
	id, err := ReadVarInt(payload)
	if err != nil {
		return 0, nil, protocolErrorf("packet id: %v", err)
	}

	return id, payload, nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return "", protocolErrorf("string length: %v", err)
	}
	if n < 0 || int(n) > r.Len() {
		return "", protocolErrorf("string length %d out of bounds", n)
	}

	buf := make([]byte, n)
	_, _ = r.Read(buf)

	return string(buf), nil
}

// byteReader adapts an io.Reader without buffering so no bytes are lost after the header.
type byteReader struct {
	r   io.Reader
	one [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.one[:]); err != nil {
		return 0, err
	}
	return b.one[0], nil
}

func appendUint16(dst []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(dst, v)
}
