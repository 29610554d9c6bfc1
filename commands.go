package asyncmc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ErDmKo/asyncmc/text"
)

// Item is a value stored under a key.
type Item struct {
	Key string

	// Value is encoded by kind on store: []byte is stored raw, string as
	// text, bool and integers as their decimal form, everything else as JSON
	// or, failing that, gob. Retrieval returns []byte, string, bool, int64
	// (uint64 when too large), JSON-decoded values or the gob-decoded value.
	Value any

	// Exptime is the expiration in seconds, or a unix timestamp beyond 30
	// days. Zero never expires.
	Exptime int

	// Flags is the flag word returned by the server. On store it is only
	// used for []byte values, to write a caller-chosen flag word.
	Flags uint32

	Found bool // indicates whether the key was found in cache
}

// ValueOr returns the item value, or def when the key was not found.
func (i Item) ValueOr(def any) any {
	if !i.Found {
		return def
	}
	return i.Value
}

type callOptions struct {
	noreply bool
}

// CallOption modifies a single command.
type CallOption func(*callOptions)

// WithNoReply asks the server not to acknowledge the command. The call
// reports success as soon as the command is written.
func WithNoReply() CallOption {
	return func(o *callOptions) {
		o.noreply = true
	}
}

func applyCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// lineReply adapts a single-line decoder to a reply reader.
func lineReply(decode func(line string) error) func(*bufio.Reader) error {
	return func(br *bufio.Reader) error {
		line, err := text.ReadLine(br)
		if err != nil {
			return err
		}
		return decode(line)
	}
}

// Get retrieves a single item. A miss is not an error: Found is false.
func (c *Client) Get(ctx context.Context, key string) (Item, error) {
	cmd, err := text.EncodeGet(key)
	if err != nil {
		return Item{}, c.observe(err)
	}

	var raw map[string]text.RawValue
	err = c.withRouter(ctx, func(r *Router) error {
		link := r.StreamFor(key)
		return link.Exchange(ctx, cmd, func(br *bufio.Reader) error {
			var err error
			raw, err = link.readValues(br, []string{key})
			return err
		})
	})
	if err != nil {
		return Item{}, c.observe(err)
	}

	item, err := decodeItem(key, raw)
	if err != nil {
		return Item{}, c.observe(err)
	}

	c.stats.recordGets(1, boolToInt(item.Found))
	return item, nil
}

// MultiGet retrieves several items, returned in request order. Missing keys
// have Found false.
//
// Keys are grouped by server and each server is queried once, concurrently.
// Keys owned by a dead server are reported as misses unless every involved
// server is dead. Duplicate keys are rejected. Zero keys return an empty
// slice without any I/O.
func (c *Client) MultiGet(ctx context.Context, keys ...string) ([]Item, error) {
	if len(keys) == 0 {
		return []Item{}, nil
	}

	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if err := text.ValidateKey(key); err != nil {
			return nil, c.observe(err)
		}
		if _, dup := seen[key]; dup {
			return nil, c.observe(&text.ValidationError{Message: "duplicate key", Value: key})
		}
		seen[key] = struct{}{}
	}

	var raw map[string]text.RawValue
	err := c.withRouter(ctx, func(r *Router) error {
		var err error
		raw, err = r.GetMulti(ctx, keys)
		return err
	})
	if err != nil {
		return nil, c.observe(err)
	}

	items := make([]Item, len(keys))
	found := 0
	for i, key := range keys {
		item, err := decodeItem(key, raw)
		if err != nil {
			return nil, c.observe(err)
		}
		if item.Found {
			found++
		}
		items[i] = item
	}

	c.stats.recordGets(len(keys), found)
	return items, nil
}

func decodeItem(key string, raw map[string]text.RawValue) (Item, error) {
	rv, ok := raw[key]
	if !ok {
		return Item{Key: key}, nil
	}

	value, err := text.DecodeValue(rv.Data, rv.Flags)
	if err != nil {
		return Item{}, err
	}
	return Item{Key: key, Value: value, Flags: rv.Flags, Found: true}, nil
}

// Set stores the item unconditionally.
func (c *Client) Set(ctx context.Context, item Item, opts ...CallOption) (bool, error) {
	return c.store(ctx, text.CmdSet, item, opts)
}

// Add stores the item only if the key does not exist. Returns false otherwise.
func (c *Client) Add(ctx context.Context, item Item, opts ...CallOption) (bool, error) {
	return c.store(ctx, text.CmdAdd, item, opts)
}

// Replace stores the item only if the key exists. Returns false otherwise.
func (c *Client) Replace(ctx context.Context, item Item, opts ...CallOption) (bool, error) {
	return c.store(ctx, text.CmdReplace, item, opts)
}

// Append adds the item value after the existing value.
//
// []byte and string values use the append command and concatenate bytes.
// Other values are combined with the stored value and written back with set:
// integers are added, JSON arrays concatenated and JSON objects merged with
// the new fields winning. This read-modify-write is not atomic.
//
// Returns false when the key does not exist.
func (c *Client) Append(ctx context.Context, item Item, opts ...CallOption) (bool, error) {
	return c.concat(ctx, text.CmdAppend, item, opts)
}

// Prepend is Append with the new value placed first. Merged JSON objects keep
// the existing fields.
func (c *Client) Prepend(ctx context.Context, item Item, opts ...CallOption) (bool, error) {
	return c.concat(ctx, text.CmdPrepend, item, opts)
}

func (c *Client) store(ctx context.Context, cmd string, item Item, opts []CallOption) (bool, error) {
	o := applyCallOptions(opts)

	data, flags, err := encodeItem(item)
	if err != nil {
		return false, c.observe(err)
	}

	req, err := text.EncodeStorage(cmd, item.Key, flags, item.Exptime, data, o.noreply)
	if err != nil {
		return false, c.observe(err)
	}

	stored := o.noreply
	err = c.withRouter(ctx, func(r *Router) error {
		if o.noreply {
			return r.DispatchOne(ctx, item.Key, req, nil)
		}
		return r.DispatchOne(ctx, item.Key, req, lineReply(func(line string) error {
			var err error
			stored, err = text.DecodeStorageReply(line)
			return err
		}))
	})
	if err != nil {
		return false, c.observe(err)
	}

	c.stats.recordStore()
	return stored, nil
}

func encodeItem(item Item) ([]byte, uint32, error) {
	if data, ok := item.Value.([]byte); ok && item.Flags != 0 {
		return data, item.Flags, nil
	}
	return text.EncodeValue(item.Value)
}

func (c *Client) concat(ctx context.Context, cmd string, item Item, opts []CallOption) (bool, error) {
	switch item.Value.(type) {
	case []byte, string:
		return c.store(ctx, cmd, item, opts)
	}

	if err := text.ValidateKey(item.Key); err != nil {
		return false, c.observe(err)
	}

	current, err := c.Get(ctx, item.Key)
	if err != nil || !current.Found {
		return false, err
	}

	merged, err := combineValues(current.Value, item.Value, cmd == text.CmdAppend)
	if err != nil {
		return false, c.observe(err)
	}

	return c.store(ctx, text.CmdSet, Item{Key: item.Key, Value: merged, Exptime: item.Exptime}, opts)
}

// combineValues joins a stored value with a new one for Append and Prepend.
func combineValues(current, addition any, after bool) (any, error) {
	if cur, ok := asBigInt(current); ok {
		if add, ok := asBigInt(addition); ok {
			sum := cur.Add(cur, add)
			switch {
			case sum.IsInt64():
				return sum.Int64(), nil
			case sum.IsUint64():
				return sum.Uint64(), nil
			}
			return nil, &text.ValidationError{Message: fmt.Sprintf("integer overflow combining stored %v with %v", current, addition)}
		}
	}

	extra, err := normalizeJSON(addition)
	if err != nil {
		return nil, err
	}

	switch cur := current.(type) {
	case []any:
		if ext, ok := extra.([]any); ok {
			if after {
				return append(cur, ext...), nil
			}
			return append(ext, cur...), nil
		}

	case map[string]any:
		if ext, ok := extra.(map[string]any); ok {
			merged := make(map[string]any, len(cur)+len(ext))
			first, second := cur, ext
			if !after {
				first, second = ext, cur
			}
			for k, v := range first {
				merged[k] = v
			}
			for k, v := range second {
				merged[k] = v
			}
			return merged, nil
		}
	}

	return nil, &text.ValidationError{Message: fmt.Sprintf("cannot combine stored %T with %T", current, addition)}
}

func asBigInt(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case int:
		return big.NewInt(int64(n)), true
	case int8:
		return big.NewInt(int64(n)), true
	case int16:
		return big.NewInt(int64(n)), true
	case int32:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case uint:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	}
	return nil, false
}

// normalizeJSON maps v to the shape json.Unmarshal produces, so it compares
// with a decoded stored value. Values that are not JSON come back as is.
func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &text.ValidationError{Message: "value cannot be combined: " + err.Error()}
	}
	return out, nil
}

// Delete removes the key. Returns false when the key did not exist.
func (c *Client) Delete(ctx context.Context, key string, opts ...CallOption) (bool, error) {
	if err := text.ValidateKey(key); err != nil {
		return false, c.observe(err)
	}

	o := applyCallOptions(opts)
	cmd := text.EncodeSimple(text.CmdDelete, o.noreply, key)

	deleted := o.noreply
	err := c.withRouter(ctx, func(r *Router) error {
		if o.noreply {
			return r.DispatchOne(ctx, key, cmd, nil)
		}
		return r.DispatchOne(ctx, key, cmd, lineReply(func(line string) error {
			var err error
			deleted, err = text.DecodeDeleteReply(line)
			return err
		}))
	})
	if err != nil {
		return false, c.observe(err)
	}

	c.stats.recordDelete()
	return deleted, nil
}

// FlushAll invalidates every item on every server. Dead servers are skipped;
// an error is returned only if no server could be flushed.
func (c *Client) FlushAll(ctx context.Context, opts ...CallOption) error {
	o := applyCallOptions(opts)
	cmd := text.EncodeSimple(text.CmdFlushAll, o.noreply)

	var read func(*bufio.Reader) (struct{}, error)
	if !o.noreply {
		read = func(br *bufio.Reader) (struct{}, error) {
			return struct{}{}, lineReply(text.DecodeOKReply)(br)
		}
	}

	err := c.withRouter(ctx, func(r *Router) error {
		_, err := DispatchAll(ctx, r, cmd, read)
		return err
	})
	if err != nil {
		return c.observe(err)
	}

	c.stats.recordFlush()
	return nil
}

// Stats returns the statistics of every reachable server, keyed by address.
// args selects a statistics group, such as "slabs" or "items".
func (c *Client) Stats(ctx context.Context, args ...string) (map[string]map[string]string, error) {
	for _, arg := range args {
		if arg == "" || strings.ContainsAny(arg, " \t\r\n") {
			return nil, c.observe(&text.ValidationError{Message: "invalid stats argument", Value: arg})
		}
	}

	cmd := text.EncodeSimple(text.CmdStats, false, args...)

	var stats map[string]map[string]string
	err := c.withRouter(ctx, func(r *Router) error {
		var err error
		stats, err = DispatchAll(ctx, r, cmd, text.ReadStats)
		return err
	})
	if err != nil {
		return nil, c.observe(err)
	}
	return stats, nil
}

// Version returns the version of every reachable server, keyed by address.
func (c *Client) Version(ctx context.Context) (map[string]string, error) {
	cmd := text.EncodeSimple(text.CmdVersion, false)

	var versions map[string]string
	err := c.withRouter(ctx, func(r *Router) error {
		var err error
		versions, err = DispatchAll(ctx, r, cmd, func(br *bufio.Reader) (string, error) {
			line, err := text.ReadLine(br)
			if err != nil {
				return "", err
			}
			return text.DecodeVersionReply(line)
		})
		return err
	})
	if err != nil {
		return nil, c.observe(err)
	}
	return versions, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
