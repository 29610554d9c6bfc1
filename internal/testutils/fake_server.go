package testutils

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ErDmKo/asyncmc/text"
)

// FakeVersion is the version reported by FakeServer.
const FakeVersion = "1.6.21-fake"

type fakeItem struct {
	flags uint32
	data  []byte
}

// FakeServer is an in-process memcached speaking the text protocol, for
// tests. Expiration times are accepted and ignored.
type FakeServer struct {
	listener net.Listener

	mu       sync.Mutex
	items    map[string]fakeItem
	conns    map[net.Conn]struct{}
	accepted int
	commands []string
	closed   bool
	wg       sync.WaitGroup
}

// NewFakeServer starts a server on a random local port. It is stopped when
// the test ends.
func NewFakeServer(t testing.TB) *FakeServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start fake server: %v", err)
	}

	s := &FakeServer{
		listener: listener,
		items:    make(map[string]fakeItem),
		conns:    make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	t.Cleanup(s.Close)
	return s
}

// ClosedAddr returns a local address nothing listens on.
func ClosedAddr(t testing.TB) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve address: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()
	return addr
}

// Addr returns the listening address.
func (s *FakeServer) Addr() string {
	return s.listener.Addr().String()
}

// Close stops accepting and drops every open connection.
func (s *FakeServer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	_ = s.listener.Close()
	s.wg.Wait()
}

// DropConnections closes the open connections but keeps listening.
func (s *FakeServer) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// Accepted returns the number of connections accepted so far.
func (s *FakeServer) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Commands returns the command verbs received, in order.
func (s *FakeServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Put stores a value directly.
func (s *FakeServer) Put(key string, flags uint32, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = fakeItem{flags: flags, data: append([]byte(nil), data...)}
}

// Lookup returns a stored value.
func (s *FakeServer) Lookup(key string) (data []byte, flags uint32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[key]
	return item.data, item.flags, ok
}

// Len returns the number of stored items.
func (s *FakeServer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *FakeServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.accepted++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *FakeServer) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(strings.TrimSuffix(line, text.CRLF))
		if len(fields) == 0 {
			w.WriteString(text.ReplyError + text.CRLF)
			w.Flush()
			continue
		}

		s.mu.Lock()
		s.commands = append(s.commands, fields[0])
		s.mu.Unlock()

		if err := s.handle(fields, r, w); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (s *FakeServer) handle(fields []string, r *bufio.Reader, w *bufio.Writer) error {
	cmd, args := fields[0], fields[1:]
	noreply := len(args) > 0 && args[len(args)-1] == text.NoReply
	if noreply {
		args = args[:len(args)-1]
	}

	reply := func(msg string) {
		if !noreply {
			w.WriteString(msg + text.CRLF)
		}
	}

	switch cmd {
	case text.CmdSet, text.CmdAdd, text.CmdReplace, text.CmdAppend, text.CmdPrepend:
		if len(args) != 4 {
			reply(text.ReplyError)
			return nil
		}
		flags, err1 := strconv.ParseUint(args[1], 10, 32)
		_, err2 := strconv.Atoi(args[2])
		length, err3 := strconv.Atoi(args[3])
		if err1 != nil || err2 != nil || err3 != nil || length < 0 {
			reply(text.ReplyClientError + " bad command line format")
			return nil
		}
		data := make([]byte, length+2)
		if _, err := io.ReadFull(r, data); err != nil {
			return err
		}
		if string(data[length:]) != text.CRLF {
			reply(text.ReplyClientError + " bad data chunk")
			return nil
		}
		if s.store(cmd, args[0], uint32(flags), data[:length]) {
			reply(text.ReplyStored)
		} else {
			reply(text.ReplyNotStored)
		}

	case text.CmdGet:
		s.mu.Lock()
		for _, key := range args {
			if item, ok := s.items[key]; ok {
				fmt.Fprintf(w, "%s %s %d %d\r\n", text.ReplyValue, key, item.flags, len(item.data))
				w.Write(item.data)
				w.WriteString(text.CRLF)
			}
		}
		s.mu.Unlock()
		w.WriteString(text.ReplyEnd + text.CRLF)

	case text.CmdDelete:
		if len(args) != 1 {
			reply(text.ReplyError)
			return nil
		}
		s.mu.Lock()
		_, ok := s.items[args[0]]
		delete(s.items, args[0])
		s.mu.Unlock()
		if ok {
			reply(text.ReplyDeleted)
		} else {
			reply(text.ReplyNotFound)
		}

	case text.CmdFlushAll:
		s.mu.Lock()
		s.items = make(map[string]fakeItem)
		s.mu.Unlock()
		reply(text.ReplyOK)

	case text.CmdStats:
		s.mu.Lock()
		count := len(s.items)
		s.mu.Unlock()
		fmt.Fprintf(w, "STAT pid 1\r\nSTAT version %s\r\nSTAT curr_items %d\r\n", FakeVersion, count)
		if len(args) > 0 {
			fmt.Fprintf(w, "STAT group %s\r\n", strings.Join(args, " "))
		}
		w.WriteString(text.ReplyEnd + text.CRLF)

	case text.CmdVersion:
		w.WriteString(text.ReplyVersion + " " + FakeVersion + text.CRLF)

	default:
		w.WriteString(text.ReplyError + text.CRLF)
	}
	return nil
}

func (s *FakeServer) store(cmd, key string, flags uint32, data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.items[key]
	switch cmd {
	case text.CmdAdd:
		if exists {
			return false
		}
	case text.CmdReplace:
		if !exists {
			return false
		}
	case text.CmdAppend:
		if !exists {
			return false
		}
		data = append(append([]byte(nil), current.data...), data...)
		flags = current.flags
	case text.CmdPrepend:
		if !exists {
			return false
		}
		data = append(append([]byte(nil), data...), current.data...)
		flags = current.flags
	}

	s.items[key] = fakeItem{flags: flags, data: append([]byte(nil), data...)}
	return true
}
