package text

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
)

var crlfBytes = []byte(CRLF)

// ValueHeader is a parsed "VALUE <key> <flags> <bytes> [<cas>]" line.
type ValueHeader struct {
	Key    string
	Flags  uint32
	Length int
}

// RawValue is a data block as stored on the server, before flag decoding.
type RawValue struct {
	Flags uint32
	Data  []byte
}

// ReadLine reads one CRLF terminated line and returns it without the terminator.
//
// I/O errors are returned as is; the caller owns the decision of what a
// broken stream means. A line ending in a bare LF, or longer than
// MaxLineLength, is a desync ProtocolError.
func ReadLine(r *bufio.Reader) (string, error) {
	const maxRead = MaxLineLength + len(CRLF)

	line, err := r.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		// Line exceeds buffer, collect it chunk by chunk (allocates).
		// The slice is only valid until the next read.
		buf := append([]byte(nil), line...)
		for err == bufio.ErrBufferFull && len(buf) <= maxRead {
			line, err = r.ReadSlice('\n')
			buf = append(buf, line...)
		}
		line = buf
	}
	if len(line) > maxRead {
		return "", desyncError("line too long", string(line[:64]), nil)
	}
	if err != nil {
		return "", err
	}

	if !bytes.HasSuffix(line, crlfBytes) {
		return "", desyncError("line not terminated by CRLF", string(bytes.TrimSuffix(line, []byte("\n"))), nil)
	}
	return string(line[:len(line)-2]), nil
}

// checkErrorLine converts ERROR, CLIENT_ERROR and SERVER_ERROR replies.
//
// ERROR and CLIENT_ERROR mean the server did not understand what was sent, so
// the stream is considered out of sync. SERVER_ERROR leaves it usable.
func checkErrorLine(line string) error {
	switch {
	case line == ReplyError:
		return desyncError("server rejected command", line, nil)
	case strings.HasPrefix(line, ReplyClientError):
		return desyncError("client error", line, nil)
	case strings.HasPrefix(line, ReplyServerError):
		return protocolError("server error", line)
	}
	return nil
}

// DecodeStorageReply maps a storage command reply to its outcome.
//
// STORED is true; NOT_STORED and NOT_FOUND are an explicit false. Anything
// else is a ProtocolError carrying the raw line.
func DecodeStorageReply(line string) (bool, error) {
	switch line {
	case ReplyStored:
		return true, nil
	case ReplyNotStored, ReplyNotFound:
		return false, nil
	}
	if err := checkErrorLine(line); err != nil {
		return false, err
	}
	return false, protocolError("unexpected storage reply", line)
}

// DecodeDeleteReply maps a delete reply: DELETED is true, NOT_FOUND is false.
func DecodeDeleteReply(line string) (bool, error) {
	switch line {
	case ReplyDeleted:
		return true, nil
	case ReplyNotFound:
		return false, nil
	}
	if err := checkErrorLine(line); err != nil {
		return false, err
	}
	return false, protocolError("unexpected delete reply", line)
}

// DecodeOKReply accepts only the OK reply (flush_all).
func DecodeOKReply(line string) error {
	if line == ReplyOK {
		return nil
	}
	if err := checkErrorLine(line); err != nil {
		return err
	}
	return protocolError("unexpected reply", line)
}

// DecodeVersionReply extracts the version number from "VERSION <number>".
func DecodeVersionReply(line string) (string, error) {
	if err := checkErrorLine(line); err != nil {
		return "", err
	}
	version, ok := strings.CutPrefix(line, ReplyVersion+Space)
	if !ok || version == "" || strings.Contains(version, Space) {
		return "", protocolError("unexpected version reply", line)
	}
	return version, nil
}

// DecodeValueLine parses a line of a get reply.
//
// It returns end=true for the END sentinel, or the parsed VALUE header.
// Any other line is a ProtocolError; the stream is out of sync because the
// position of the next reply is unknown.
func DecodeValueLine(line string) (hdr ValueHeader, end bool, err error) {
	if line == ReplyEnd {
		return ValueHeader{}, true, nil
	}
	if err := checkErrorLine(line); err != nil {
		return ValueHeader{}, false, err
	}

	fields := strings.Split(line, Space)
	// VALUE <key> <flags> <bytes> [<cas unique>]
	if (len(fields) != 4 && len(fields) != 5) || fields[0] != ReplyValue {
		return ValueHeader{}, false, desyncError("malformed value line", line, nil)
	}

	flags, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return ValueHeader{}, false, desyncError("invalid flags in value line", line, err)
	}

	length, err := strconv.Atoi(fields[3])
	if err != nil {
		return ValueHeader{}, false, desyncError("invalid size in value line", line, err)
	}
	if length < 0 {
		return ValueHeader{}, false, desyncError("negative size in value line", line, nil)
	}
	if length > MaxValueLength {
		return ValueHeader{}, false, desyncError("value too large", line, nil)
	}

	return ValueHeader{Key: fields[1], Flags: uint32(flags), Length: length}, false, nil
}

// ReadDataBlock reads exactly length bytes plus the CRLF trailer.
func ReadDataBlock(r *bufio.Reader, length int) ([]byte, error) {
	if length < 0 || length > MaxValueLength {
		return nil, desyncError("invalid data block size", strconv.Itoa(length), nil)
	}

	// Read data + CRLF together in single read
	data := make([]byte, length+2)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	if !bytes.HasSuffix(data, crlfBytes) {
		return nil, desyncError("invalid data block terminator", "", nil)
	}
	return data[:length], nil
}

// ReadValues reads a get reply for the requested keys up to the END line.
//
// Keys absent from the result were misses. A key that was not requested, a
// key returned twice, or more results than keys requested is a ProtocolError.
func ReadValues(r *bufio.Reader, keys []string) (map[string]RawValue, error) {
	return ReadValuesLimit(r, keys, MaxValueLength)
}

// ReadValuesLimit is ReadValues with a cap on each data block. A VALUE line
// announcing more than maxLength bytes is a desync ProtocolError and nothing
// is allocated for it. A maxLength outside (0, MaxValueLength] means
// MaxValueLength.
func ReadValuesLimit(r *bufio.Reader, keys []string, maxLength int) (map[string]RawValue, error) {
	if maxLength <= 0 || maxLength > MaxValueLength {
		maxLength = MaxValueLength
	}

	requested := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		requested[key] = struct{}{}
	}

	received := make(map[string]RawValue, len(keys))
	for {
		line, err := ReadLine(r)
		if err != nil {
			return nil, err
		}

		hdr, end, err := DecodeValueLine(line)
		if err != nil {
			return nil, err
		}
		if end {
			return received, nil
		}

		if _, ok := requested[hdr.Key]; !ok {
			return nil, desyncError("unrequested key in results", line, nil)
		}
		if _, dup := received[hdr.Key]; dup {
			return nil, desyncError("duplicate results from server", line, nil)
		}
		if len(received) >= len(requested) {
			return nil, desyncError("received too many responses", line, nil)
		}
		if hdr.Length > maxLength {
			return nil, desyncError("value too large", line, nil)
		}

		data, err := ReadDataBlock(r, hdr.Length)
		if err != nil {
			return nil, err
		}
		received[hdr.Key] = RawValue{Flags: hdr.Flags, Data: data}
	}
}

// ReadStats reads "STAT <name> [<value>]" lines up to the END line.
//
// A STAT line without a value maps the name to an empty string. Values may
// contain spaces.
func ReadStats(r *bufio.Reader) (map[string]string, error) {
	stats := make(map[string]string)

	for {
		line, err := ReadLine(r)
		if err != nil {
			return nil, err
		}

		if line == ReplyEnd {
			return stats, nil
		}

		if err := checkErrorLine(line); err != nil {
			return nil, err
		}

		statLine, ok := strings.CutPrefix(line, ReplyStat+Space)
		if !ok || statLine == "" {
			return nil, desyncError("invalid stats line", line, nil)
		}

		name, value, _ := strings.Cut(statLine, Space)
		stats[name] = value
	}
}
