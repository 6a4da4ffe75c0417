package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the length prefix that precedes every payload.
const HeaderSize = 4

// MaxFrameSize caps a single declared payload length.
const MaxFrameSize = 16 << 20

var (
	// ErrMalformedPayload reports a complete envelope whose payload is not a JSON object.
	ErrMalformedPayload = errors.New("wire: malformed payload")
	// ErrFrameTooLarge reports a declared payload length above MaxFrameSize.
	ErrFrameTooLarge = errors.New("wire: frame too large")
)

// Encode serializes msg into one envelope: a little-endian uint32 length
// followed by the UTF-8 JSON payload.
func Encode(msg *Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// Decode extracts the first envelope from buf.
//
// It returns (nil, 0, nil) while the header or payload is still incomplete.
// On success it returns the message and the number of bytes the envelope
// occupied; the caller drops exactly that many bytes and calls Decode again
// for pipelined envelopes. A complete envelope whose payload cannot be
// decoded yields ErrMalformedPayload together with its size.
func Decode(buf []byte) (*Message, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, nil
	}
	length := binary.LittleEndian.Uint32(buf[:HeaderSize])
	if length > MaxFrameSize {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	total := HeaderSize + int(length)
	if len(buf) < total {
		return nil, 0, nil
	}
	var msg Message
	if err := json.Unmarshal(buf[HeaderSize:total], &msg); err != nil {
		return nil, total, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &msg, total, nil
}

// WriteMessage encodes msg and writes the whole envelope to w.
func WriteMessage(w io.Writer, msg *Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

// ReadMessage blocks until one full envelope has been read from r.
func ReadMessage(r io.Reader) (*Message, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &msg, nil
}
