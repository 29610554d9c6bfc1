// Package text implements the memcached text protocol as a set of pure
// encoding and decoding functions.
//
// The package does no connection management. Commands are encoded into
// byte slices that the caller writes to a socket, and replies are parsed
// either from a single line or from a *bufio.Reader positioned at the
// start of a multi-line reply.
//
// # Commands
//
// Storage commands carry a data block:
//
//	cmd, err := text.EncodeStorage(text.CmdSet, "mykey", 0, 0, []byte("hello"), false)
//	// "set mykey 0 0 5\r\nhello\r\n"
//
// Other commands are a single line:
//
//	cmd := text.EncodeSimple(text.CmdDelete, false, "mykey")
//	// "delete mykey\r\n"
//
// # Replies
//
// Single line replies are decoded with DecodeStorageReply, DecodeDeleteReply,
// DecodeOKReply and DecodeVersionReply. Multi-line replies are read with
// ReadValues (get) and ReadStats (stats).
//
// # Values
//
// Values travel as opaque bytes with a 32-bit flag word. EncodeValue picks the
// encoding from the value's Go type and DecodeValue reverses it:
//
//	data, flags, err := text.EncodeValue(42)  // "42", FlagInteger
//	v, err := text.DecodeValue(data, flags)    // int64(42)
//
// # Errors
//
//   - ValidationError: rejected before any byte is produced (bad key, negative
//     exptime, value that cannot be encoded).
//   - ProtocolError: the server reply does not match the expected grammar.
//     Desync reports whether unread reply bytes may remain on the stream.
package text
