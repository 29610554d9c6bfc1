package text

import (
	"strconv"
)

// IsStorageCommand reports whether cmd takes a data block.
func IsStorageCommand(cmd string) bool {
	switch cmd {
	case CmdSet, CmdAdd, CmdReplace, CmdAppend, CmdPrepend:
		return true
	default:
		return false
	}
}

// EncodeStorage builds a storage command.
//
// Wire format: <cmd> <key> <flags> <exptime> <bytes>[ noreply]\r\n<data>\r\n
//
// The key and exptime are validated before anything is produced. The server
// decides on the maximum payload size (typically 1MB), so no size check is
// done here.
func EncodeStorage(cmd, key string, flags uint32, exptime int, data []byte, noreply bool) ([]byte, error) {
	if !IsStorageCommand(cmd) {
		return nil, &ValidationError{Message: "not a storage command", Value: cmd}
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ValidateExptime(exptime); err != nil {
		return nil, err
	}

	// cmd + key + 3 numbers + noreply + 2 CRLF, with some slack for the numbers
	b := make([]byte, 0, len(cmd)+len(key)+len(data)+48)
	b = append(b, cmd...)
	b = append(b, ' ')
	b = append(b, key...)
	b = append(b, ' ')
	b = strconv.AppendUint(b, uint64(flags), 10)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(exptime), 10)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(len(data)), 10)
	if noreply {
		b = append(b, ' ')
		b = append(b, NoReply...)
	}
	b = append(b, CRLF...)
	b = append(b, data...)
	b = append(b, CRLF...)
	return b, nil
}

// EncodeSimple builds a single line command.
//
// Wire format: <cmd>[ <arg>]*[ noreply]\r\n
//
// Arguments are written as given; callers validate keys with ValidateKey.
func EncodeSimple(cmd string, noreply bool, args ...string) []byte {
	size := len(cmd) + len(CRLF)
	for _, arg := range args {
		size += len(arg) + 1
	}
	if noreply {
		size += len(NoReply) + 1
	}

	b := make([]byte, 0, size)
	b = append(b, cmd...)
	for _, arg := range args {
		b = append(b, ' ')
		b = append(b, arg...)
	}
	if noreply {
		b = append(b, ' ')
		b = append(b, NoReply...)
	}
	return append(b, CRLF...)
}

// EncodeGet builds a get command for one or more keys.
//
// Wire format: get <key>[ <key>]*\r\n
func EncodeGet(keys ...string) ([]byte, error) {
	if len(keys) == 0 {
		return nil, &ValidationError{Message: "get requires at least one key"}
	}
	for _, key := range keys {
		if err := ValidateKey(key); err != nil {
			return nil, err
		}
	}
	return EncodeSimple(CmdGet, false, keys...), nil
}
