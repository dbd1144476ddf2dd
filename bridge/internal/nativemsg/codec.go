package nativemsg

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Native messaging framing: a little-endian uint32 byte length followed
// by a JSON document.

// maxFrameSize bounds a single inbound frame; a probe response carrying
// a large format catalog stays well below this.
const maxFrameSize = 64 << 20

// WriteFrame encodes v as JSON and writes it as one length-prefixed
// frame.
func WriteFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(body))); err != nil {
		return err
	}

	_, err = w.Write(body)
	return err
}

// ReadFrame reads one length-prefixed frame and unmarshals it into v.
func ReadFrame(r io.Reader, v any) error {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return err
	}

	if length > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}
