package text

// Protocol delimiters
const (
	// CRLF is the line terminator for the memcached protocol
	CRLF = "\r\n"

	// Space separates command tokens
	Space = " "

	// NoReply is the trailing token that suppresses the server reply
	NoReply = "noreply"
)

// Command names.
const (
	CmdSet      = "set"
	CmdAdd      = "add"
	CmdReplace  = "replace"
	CmdAppend   = "append"
	CmdPrepend  = "prepend"
	CmdGet      = "get"
	CmdDelete   = "delete"
	CmdFlushAll = "flush_all"
	CmdStats    = "stats"
	CmdVersion  = "version"
)

// Reply tokens.
const (
	ReplyStored    = "STORED"
	ReplyNotStored = "NOT_STORED"
	ReplyNotFound  = "NOT_FOUND"
	ReplyExists    = "EXISTS"
	ReplyDeleted   = "DELETED"
	ReplyOK        = "OK"
	ReplyEnd       = "END"
	ReplyValue     = "VALUE"
	ReplyStat      = "STAT"
	ReplyVersion   = "VERSION"

	ReplyError       = "ERROR"
	ReplyClientError = "CLIENT_ERROR"
	ReplyServerError = "SERVER_ERROR"
)

// Key constraints
const (
	MinKeyLength = 1
	MaxKeyLength = 250
)

// Reply size limits
const (
	// MaxLineLength caps a reply line, terminator excluded. A VALUE line
	// carrying the longest key is well below it.
	MaxLineLength = 2048

	// MaxValueLength is the largest data block accepted in a get reply,
	// memcached's own item size ceiling.
	MaxValueLength = 1 << 30
)

// Value flag bits. A flag word of zero means raw bytes.
//
// The bit assignment follows the python-memcached/pymemcache family so that
// values written by those clients decode here and vice versa.
const (
	FlagBytes   uint32 = 0
	FlagGeneric uint32 = 1 << 0 // gob-encoded Go value
	FlagInteger uint32 = 1 << 1
	FlagLong    uint32 = 1 << 2 // integers from python 2 clients, decoded as FlagInteger
	FlagText    uint32 = 1 << 4
	FlagBoolean uint32 = 1 << 5
	FlagJSON    uint32 = 1 << 6

	knownFlags = FlagGeneric | FlagInteger | FlagLong | FlagText | FlagBoolean | FlagJSON
)
