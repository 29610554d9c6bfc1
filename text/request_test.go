package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeStorage(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		key      string
		flags    uint32
		exptime  int
		data     string
		noreply  bool
		expected string
	}{
		{
			name:     "basic set",
			cmd:      CmdSet,
			key:      "mykey",
			data:     "hello",
			expected: "set mykey 0 0 5\r\nhello\r\n",
		},
		{
			name:     "set with zero-length value",
			cmd:      CmdSet,
			key:      "mykey",
			expected: "set mykey 0 0 0\r\n\r\n",
		},
		{
			name:     "add with flags and exptime",
			cmd:      CmdAdd,
			key:      "k",
			flags:    FlagInteger,
			exptime:  60,
			data:     "42",
			expected: "add k 2 60 2\r\n42\r\n",
		},
		{
			name:     "append noreply",
			cmd:      CmdAppend,
			key:      "k",
			data:     "x",
			noreply:  true,
			expected: "append k 0 0 1 noreply\r\nx\r\n",
		},
		{
			name:     "payload containing CRLF",
			cmd:      CmdReplace,
			key:      "k",
			data:     "a\r\nb",
			expected: "replace k 0 0 4\r\na\r\nb\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeStorage(tt.cmd, tt.key, tt.flags, tt.exptime, []byte(tt.data), tt.noreply)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestEncodeStorageValidation(t *testing.T) {
	_, err := EncodeStorage(CmdSet, "bad key", 0, 0, nil, false)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = EncodeStorage(CmdSet, "key", 0, -1, nil, false)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "exptime negative")

	_, err = EncodeStorage(CmdGet, "key", 0, 0, nil, false)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestEncodeSimple(t *testing.T) {
	assert.Equal(t, "version\r\n", string(EncodeSimple(CmdVersion, false)))
	assert.Equal(t, "flush_all noreply\r\n", string(EncodeSimple(CmdFlushAll, true)))
	assert.Equal(t, "delete k\r\n", string(EncodeSimple(CmdDelete, false, "k")))
	assert.Equal(t, "delete k noreply\r\n", string(EncodeSimple(CmdDelete, true, "k")))
	assert.Equal(t, "stats slabs\r\n", string(EncodeSimple(CmdStats, false, "slabs")))
}

func TestEncodeGet(t *testing.T) {
	got, err := EncodeGet("a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, "get a b c\r\n", string(got))

	_, err = EncodeGet()
	assert.True(t, IsValidationError(err))

	_, err = EncodeGet("ok", strings.Repeat("x", 251))
	assert.True(t, IsValidationError(err))
}
