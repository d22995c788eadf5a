package queue

import (
	"encoding/binary"
	"fmt"
)

// parseSpillFile decodes one mess/<id> spill file's contents per the wire
// format: a 4-byte length prefix, the raw message bytes, a 4-byte flush-ID,
// a 4-byte bound-type, a 4-byte spam flag, a NUL-terminated envelope-from,
// and a double-NUL-terminated sequence of recipients.
//
// A leading length of zero marks an incomplete file; parseSpillFile
// returns errIncomplete for it, and the loader skips such a file.
func parseSpillFile(buf []byte) (*Message, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("queue: spill file shorter than length prefix")
	}

	mailLen := binary.LittleEndian.Uint32(buf[0:4])
	if mailLen == 0 {
		return nil, errIncomplete
	}

	off := 4
	if uint64(off)+uint64(mailLen) > uint64(len(buf)) {
		return nil, fmt.Errorf("queue: declared mail length %d exceeds file size", mailLen)
	}
	body := buf[off : off+int(mailLen)]
	off += int(mailLen)

	if len(buf)-off < 12 {
		return nil, fmt.Errorf("queue: spill file truncated before trailer")
	}
	flushID := binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	boundType := int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	spam := binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4

	from, n, err := readCString(buf[off:])
	if err != nil {
		return nil, fmt.Errorf("queue: reading envelope-from: %w", err)
	}
	off += n

	rcpts, err := readRcptList(buf[off:])
	if err != nil {
		return nil, fmt.Errorf("queue: reading recipient list: %w", err)
	}

	return &Message{
		FlushID:      flushID,
		BoundType:    boundType,
		Spam:         spam != 0,
		EnvelopeFrom: from,
		Rcpts:        rcpts,
		Body:         append([]byte(nil), body...),
	}, nil
}

var errIncomplete = fmt.Errorf("queue: spill file is incomplete (zero length prefix)")

// readCString reads bytes up to and including the first NUL, returning the
// string without the terminator and the total number of bytes consumed.
func readCString(buf []byte) (string, int, error) {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), i + 1, nil
		}
	}
	return "", 0, fmt.Errorf("unterminated string")
}

// readRcptList reads a sequence of NUL-terminated recipient addresses
// ending in a double NUL (an empty string terminates the sequence).
func readRcptList(buf []byte) ([]string, error) {
	var rcpts []string
	off := 0
	for {
		s, n, err := readCString(buf[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if s == "" {
			return rcpts, nil
		}
		rcpts = append(rcpts, s)
	}
}

// encodeSpillFile is the inverse of parseSpillFile, used by tests and by
// anything re-spooling a Message back to disk (e.g. the save/ debug copy).
func encodeSpillFile(m *Message) []byte {
	var buf []byte

	lenField := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenField, uint32(len(m.Body)))
	buf = append(buf, lenField...)
	buf = append(buf, m.Body...)

	var trailer [12]byte
	binary.LittleEndian.PutUint32(trailer[0:4], m.FlushID)
	binary.LittleEndian.PutUint32(trailer[4:8], uint32(m.BoundType))
	if m.Spam {
		binary.LittleEndian.PutUint32(trailer[8:12], 1)
	}
	buf = append(buf, trailer[:]...)

	buf = append(buf, []byte(m.EnvelopeFrom)...)
	buf = append(buf, 0)
	for _, r := range m.Rcpts {
		buf = append(buf, []byte(r)...)
		buf = append(buf, 0)
	}
	buf = append(buf, 0)

	return buf
}
