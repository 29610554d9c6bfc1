package asyncmc

import (
	"bufio"
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/ErDmKo/asyncmc/text"
)

// Router holds one ServerLink per configured server and routes commands to
// them. Membership is fixed at construction and the order never changes.
//
// A Router serves one operation at a time; the pool guarantees it is lent to
// a single caller.
type Router struct {
	links    []*ServerLink
	selector ServerSelector
	retries  int
}

func newRouter(addrs []string, selector ServerSelector, retries int, opts linkOptions) *Router {
	links := make([]*ServerLink, len(addrs))
	for i, addr := range addrs {
		links[i] = newServerLink(addr, opts)
	}
	if selector == nil {
		selector = DefaultServerSelector
	}
	return &Router{links: links, selector: selector, retries: retries}
}

// Links returns the server links in configuration order.
func (r *Router) Links() []*ServerLink {
	return r.links
}

// SelectServer returns the link that owns key.
//
// When the hashed server is quarantined the key is rehashed up to the
// configured number of retries to find a live server. If none is found the
// originally hashed link is returned and the caller gets its
// ConnectionDeadError.
func (r *Router) SelectServer(key string) *ServerLink {
	n := len(r.links)
	link := r.links[r.selector(key, n)]
	if n == 1 || link.Alive() {
		return link
	}

	for i := 0; i < r.retries; i++ {
		if candidate := r.links[r.selector(strconv.Itoa(i)+key, n)]; candidate.Alive() {
			return candidate
		}
	}
	return link
}

// StreamFor returns the link owning key, for commands with multi-line replies
// that the caller reads itself through ServerLink.Exchange.
func (r *Router) StreamFor(key string) *ServerLink {
	return r.SelectServer(key)
}

// DispatchOne sends cmd to the server owning key. See ServerLink.Exchange for
// the meaning of read.
func (r *Router) DispatchOne(ctx context.Context, key string, cmd []byte, read func(*bufio.Reader) error) error {
	return r.SelectServer(key).Exchange(ctx, cmd, read)
}

// DispatchAll sends cmd to every server concurrently and returns the decoded
// replies keyed by server address.
//
// Servers that fail with a ConnectionDeadError are left out of the result.
// When no server succeeds the error is an aggregate ConnectionDeadError with
// one cause per server. Any other error fails the whole call.
//
// A nil read sends a noreply command; the map then holds zero values for the
// servers the command was written to.
func DispatchAll[T any](ctx context.Context, r *Router, cmd []byte, read func(*bufio.Reader) (T, error)) (map[string]T, error) {
	type outcome struct {
		value T
		err   error
	}

	outcomes := make([]outcome, len(r.links))
	var wg sync.WaitGroup
	for i, link := range r.links {
		wg.Add(1)
		go func() {
			defer wg.Done()

			var reader func(*bufio.Reader) error
			if read != nil {
				reader = func(br *bufio.Reader) error {
					v, err := read(br)
					outcomes[i].value = v
					return err
				}
			}
			outcomes[i].err = link.Exchange(ctx, cmd, reader)
		}()
	}
	wg.Wait()

	results := make(map[string]T, len(r.links))
	var dead []*ConnectionDeadError
	for i, o := range outcomes {
		var derr *ConnectionDeadError
		switch {
		case o.err == nil:
			results[r.links[i].Addr()] = o.value
		case errors.As(o.err, &derr):
			dead = append(dead, derr)
		default:
			return nil, o.err
		}
	}

	if len(results) == 0 && len(dead) > 0 {
		return nil, newAggregateDeadError(dead)
	}
	return results, nil
}

// GetMulti fetches keys grouped by owning server, one get command per server,
// running the servers concurrently.
//
// Keys owned by a server that failed with a ConnectionDeadError are missing
// from the result, like cache misses. If every involved server failed the
// aggregate ConnectionDeadError is returned.
func (r *Router) GetMulti(ctx context.Context, keys []string) (map[string]text.RawValue, error) {
	var order []*ServerLink
	groups := make(map[*ServerLink][]string)
	for _, key := range keys {
		link := r.SelectServer(key)
		if _, ok := groups[link]; !ok {
			order = append(order, link)
		}
		groups[link] = append(groups[link], key)
	}

	type outcome struct {
		values map[string]text.RawValue
		err    error
	}

	outcomes := make([]outcome, len(order))
	var wg sync.WaitGroup
	for i, link := range order {
		wg.Add(1)
		go func() {
			defer wg.Done()

			groupKeys := groups[link]
			cmd, err := text.EncodeGet(groupKeys...)
			if err != nil {
				outcomes[i].err = err
				return
			}
			outcomes[i].err = link.Exchange(ctx, cmd, func(br *bufio.Reader) error {
				values, err := link.readValues(br, groupKeys)
				outcomes[i].values = values
				return err
			})
		}()
	}
	wg.Wait()

	results := make(map[string]text.RawValue, len(keys))
	var dead []*ConnectionDeadError
	for _, o := range outcomes {
		var derr *ConnectionDeadError
		switch {
		case o.err == nil:
			for key, value := range o.values {
				results[key] = value
			}
		case errors.As(o.err, &derr):
			dead = append(dead, derr)
		default:
			return nil, o.err
		}
	}

	if len(dead) > 0 && len(dead) == len(order) {
		return nil, newAggregateDeadError(dead)
	}
	return results, nil
}

// Close closes every link.
func (r *Router) Close() error {
	var errs []error
	for _, link := range r.links {
		if err := link.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
