// Package redisstub runs a tiny in-process RESP2 server covering the Redis
// commands used by the session store, the deletion retry queue and the login
// rate limiter. Unknown commands answer with an error so a client reaching
// for something new fails loudly in tests.
package redisstub

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Options configures the stub. A non-empty Password requires AUTH before any
// data command.
type Options struct {
	Password string
}

type Server struct {
	opts     Options
	listener net.Listener
	closed   chan struct{}
	once     sync.Once

	mu      sync.Mutex
	values  map[string]*value
	lists   map[string][]string
}

type value struct {
	data    string
	expires time.Time
}

func (v *value) live(now time.Time) bool {
	return v.expires.IsZero() || now.Before(v.expires)
}

// Start listens on a random loopback port.
func Start(opts Options) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		opts:     opts,
		listener: ln,
		closed:   make(chan struct{}),
		values:   make(map[string]*value),
		lists:    make(map[string][]string),
	}
	go s.accept()
	return s, nil
}

func (s *Server) Addr() string { return s.listener.Addr().String() }

// Close stops accepting connections and releases blocked BRPOP callers.
func (s *Server) Close() error {
	s.once.Do(func() {
		close(s.closed)
		_ = s.listener.Close()
	})
	return nil
}

// TTL reports the remaining lifetime of key, -1ms without expiry and -2ms
// when absent, mirroring PTTL.
func (s *Server) TTL(key string) time.Duration {
	return time.Duration(s.pttl(key)) * time.Millisecond
}

// ListLen reports the number of queued values under key.
func (s *Server) ListLen(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lists[key])
}

func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				continue
			}
		}
		go s.session(conn)
	}
}

func (s *Server) session(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	authed := s.opts.Password == ""
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		var out reply
		switch name := strings.ToUpper(args[0]); {
		case name == "AUTH":
			out, authed = s.auth(args, authed)
		case !authed && name != "PING" && name != "HELLO":
			out = errorReply("NOAUTH Authentication required.")
		default:
			out = s.exec(name, args[1:])
		}
		if out == nil || writeReply(w, out) != nil || w.Flush() != nil {
			return
		}
	}
}

func (s *Server) auth(args []string, authed bool) (reply, bool) {
	if len(args) < 2 || len(args) > 3 {
		return errorReply("ERR wrong number of arguments for 'auth'"), authed
	}
	if s.opts.Password != "" && args[len(args)-1] != s.opts.Password {
		return errorReply("WRONGPASS invalid username-password pair"), authed
	}
	return statusReply("OK"), true
}

type command struct {
	min, max int // argument bounds; max < 0 is unbounded
	run      func(s *Server, args []string) reply
}

var commands = map[string]command{
	// RESP3 is not spoken here; go-redis falls back to RESP2.
	"HELLO":   {0, -1, func(*Server, []string) reply { return errorReply("ERR unknown command 'hello'") }},
	"PING":    {0, 1, func(*Server, []string) reply { return statusReply("PONG") }},
	"CLIENT":  {1, -1, func(*Server, []string) reply { return statusReply("OK") }},
	"SELECT":  {1, 1, func(*Server, []string) reply { return statusReply("OK") }},
	"SET":     {2, -1, (*Server).cmdSet},
	"GET":     {1, 1, (*Server).cmdGet},
	"DEL":     {1, -1, (*Server).cmdDel},
	"INCR":    {1, 1, (*Server).cmdIncr},
	"PEXPIRE": {2, 2, (*Server).cmdPExpire},
	"PTTL":    {1, 1, func(s *Server, args []string) reply { return intReply(s.pttl(args[0])) }},
	"LPUSH":   {2, -1, (*Server).cmdLPush},
	"LLEN":    {1, 1, func(s *Server, args []string) reply { return intReply(int64(s.ListLen(args[0]))) }},
	"BRPOP":   {2, -1, (*Server).cmdBRPop},
}

func (s *Server) exec(name string, args []string) reply {
	cmd, ok := commands[name]
	if !ok {
		return errorReply(fmt.Sprintf("ERR unknown command '%s'", strings.ToLower(name)))
	}
	if len(args) < cmd.min || (cmd.max >= 0 && len(args) > cmd.max) {
		return errorReply(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name)))
	}
	return cmd.run(s, args)
}

func (s *Server) cmdSet(args []string) reply {
	var ttl time.Duration
	opts := args[2:]
	for i := 0; i < len(opts); i += 2 {
		if i+1 >= len(opts) {
			return errorReply("ERR syntax error")
		}
		n, err := strconv.ParseInt(opts[i+1], 10, 64)
		if err != nil || n <= 0 {
			return errorReply("ERR invalid expire time in 'set' command")
		}
		switch strings.ToUpper(opts[i]) {
		case "EX":
			ttl = time.Duration(n) * time.Second
		case "PX":
			ttl = time.Duration(n) * time.Millisecond
		default:
			return errorReply("ERR syntax error")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &value{data: args[1]}
	if ttl > 0 {
		v.expires = time.Now().Add(ttl)
	}
	s.values[args[0]] = v
	return statusReply("OK")
}

// lookup returns the live value under key, dropping it once expired. The
// caller holds s.mu.
func (s *Server) lookup(key string) *value {
	v := s.values[key]
	if v != nil && !v.live(time.Now()) {
		delete(s.values, key)
		return nil
	}
	return v
}

func (s *Server) cmdGet(args []string) reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v := s.lookup(args[0]); v != nil {
		return bulkReply(v.data)
	}
	return nilReply{}
}

func (s *Server) cmdDel(keys []string) reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, key := range keys {
		if s.lookup(key) != nil {
			delete(s.values, key)
			removed++
		}
		if _, ok := s.lists[key]; ok {
			delete(s.lists, key)
			removed++
		}
	}
	return intReply(removed)
}

func (s *Server) cmdIncr(args []string) reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.lookup(args[0])
	if v == nil {
		v = &value{data: "0"}
		s.values[args[0]] = v
	}
	n, err := strconv.ParseInt(v.data, 10, 64)
	if err != nil {
		return errorReply("ERR value is not an integer or out of range")
	}
	n++
	v.data = strconv.FormatInt(n, 10)
	return intReply(n)
}

func (s *Server) cmdPExpire(args []string) reply {
	ms, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return errorReply("ERR value is not an integer or out of range")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.lookup(args[0])
	if v == nil {
		return intReply(0)
	}
	v.expires = time.Now().Add(time.Duration(ms) * time.Millisecond)
	return intReply(1)
}

func (s *Server) pttl(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.lookup(key)
	switch {
	case v == nil:
		return -2
	case v.expires.IsZero():
		return -1
	default:
		return time.Until(v.expires).Milliseconds()
	}
}

func (s *Server) cmdLPush(args []string) reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[args[0]]
	for _, item := range args[1:] {
		list = append([]string{item}, list...)
	}
	s.lists[args[0]] = list
	return intReply(int64(len(list)))
}

func (s *Server) rpop(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	if len(list) == 0 {
		return "", false
	}
	last := list[len(list)-1]
	if len(list) == 1 {
		delete(s.lists, key)
	} else {
		s.lists[key] = list[:len(list)-1]
	}
	return last, true
}

// cmdBRPop polls the lists until one yields a value or the timeout passes.
// A nil reply ends the connection when the server shuts down mid-wait.
func (s *Server) cmdBRPop(args []string) reply {
	seconds, err := strconv.ParseFloat(args[len(args)-1], 64)
	if err != nil || seconds < 0 {
		return errorReply("ERR timeout is not a float or out of range")
	}
	keys := args[:len(args)-1]
	var deadline <-chan time.Time
	if seconds > 0 {
		timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
		defer timer.Stop()
		deadline = timer.C
	}
	poll := time.NewTicker(5 * time.Millisecond)
	defer poll.Stop()
	for {
		for _, key := range keys {
			if item, ok := s.rpop(key); ok {
				return arrayReply{key, item}
			}
		}
		select {
		case <-s.closed:
			return nil
		case <-deadline:
			return nilArrayReply{}
		case <-poll.C:
		}
	}
}

type (
	reply         interface{}
	statusReply   string
	errorReply    string
	intReply      int64
	bulkReply     string
	nilReply      struct{}
	arrayReply    []string
	nilArrayReply struct{}
)

func writeReply(w *bufio.Writer, r reply) error {
	var err error
	switch v := r.(type) {
	case statusReply:
		_, err = fmt.Fprintf(w, "+%s\r\n", string(v))
	case errorReply:
		_, err = fmt.Fprintf(w, "-%s\r\n", string(v))
	case intReply:
		_, err = fmt.Fprintf(w, ":%d\r\n", int64(v))
	case bulkReply:
		_, err = fmt.Fprintf(w, "$%d\r\n%s\r\n", len(v), string(v))
	case nilReply:
		_, err = w.WriteString("$-1\r\n")
	case nilArrayReply:
		_, err = w.WriteString("*-1\r\n")
	case arrayReply:
		if _, err = fmt.Fprintf(w, "*%d\r\n", len(v)); err != nil {
			return err
		}
		for _, item := range v {
			if err = writeReply(w, bulkReply(item)); err != nil {
				return err
			}
		}
	default:
		err = fmt.Errorf("unsupported reply %T", r)
	}
	return err
}

// readCommand parses one RESP array of bulk strings.
func readCommand(r *bufio.Reader) ([]string, error) {
	n, err := readHeader(r, '*')
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, errors.New("empty command")
	}
	args := make([]string, n)
	for i := range args {
		size, err := readHeader(r, '$')
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args[i] = string(buf[:size])
	}
	return args, nil
}

func readHeader(r *bufio.Reader, prefix byte) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) == 0 || line[0] != prefix {
		return 0, fmt.Errorf("expected %q header, got %q", prefix, line)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad length %q", line)
	}
	return n, nil
}
