package pty

import (
	"bytes"
	"os"
	"os/exec"
	"sync"
	"unicode/utf8"

	gopty "github.com/creack/pty"
	"github.com/agenthub/hub/internal/platform/logger"
	"go.uber.org/zap"
)

// ListenerQueueCapacity bounds each terminal listener's mailbox (§4.F).
const ListenerQueueCapacity = 256

// Size is a terminal window size in character cells.
type Size struct {
	Cols uint16
	Rows uint16
}

// DefaultSize is the PTY size used when a chat starts (§4.E).
var DefaultSize = Size{Cols: 160, Rows: 48}

// listener is one attached consumer of a Runtime's decoded output stream.
type listener struct {
	ch chan string
	mu sync.Mutex
}

// Runtime owns one chat's PTY master fd, its reader goroutine, and the set
// of attached listeners. Exactly one Runtime exists per running chat
// (tracked by the lifecycle supervisor's runtime table, §5 runtime_lock).
type Runtime struct {
	ChatID string
	Cmd    *exec.Cmd
	master *os.File

	mu        sync.Mutex
	listeners map[*listener]struct{}
	backlog   bytes.Buffer
	closed    bool

	logFile *os.File
	log     *logger.Logger

	utf8Carry []byte
}

// Start launches cmd attached to a new PTY of the given size and begins the
// reader goroutine. logPath receives every raw byte read from the master,
// verbatim, before decoding (§4.F).
func Start(cmd *exec.Cmd, size Size, logPath string, log *logger.Logger) (*Runtime, error) {
	if log == nil {
		log = logger.Default()
	}
	master, err := gopty.StartWithSize(cmd, &gopty.Winsize{Cols: size.Cols, Rows: size.Rows})
	if err != nil {
		return nil, err
	}

	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		_ = master.Close()
		return nil, err
	}

	rt := &Runtime{
		Cmd:       cmd,
		master:    master,
		listeners: make(map[*listener]struct{}),
		logFile:   logFile,
		log:       log,
	}
	go rt.readLoop()
	return rt, nil
}

// readLoop owns the master fd; it always closes it on exit, including every
// error path (§5 resource discipline).
func (rt *Runtime) readLoop() {
	defer func() {
		_ = rt.master.Close()
		rt.shutdown()
	}()

	buf := make([]byte, 32*1024)
	for {
		n, err := rt.master.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if _, werr := rt.logFile.Write(chunk); werr != nil {
				rt.log.Warn("pty log write failed", zap.String("chat_id", rt.ChatID), zap.Error(werr))
			}
			rt.dispatch(chunk)
		}
		if err != nil {
			return
		}
	}
}

// dispatch UTF-8-decodes chunk (carrying a partial multi-byte sequence
// across reads) and fans the result out to every listener.
func (rt *Runtime) dispatch(chunk []byte) {
	data := append(rt.utf8Carry, chunk...)
	rt.utf8Carry = nil

	valid := len(data)
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) {
				valid = i
			}
			break
		}
	}
	if valid < len(data) {
		// keep the incomplete trailing rune for the next read
		rt.utf8Carry = append(rt.utf8Carry, data[valid:]...)
		data = data[:valid]
	}

	text := string(data)
	if text == "" {
		return
	}

	rt.mu.Lock()
	rt.backlog.WriteString(text)
	targets := make([]*listener, 0, len(rt.listeners))
	for l := range rt.listeners {
		targets = append(targets, l)
	}
	rt.mu.Unlock()

	for _, l := range targets {
		rt.enqueue(l, text)
	}
}

func (rt *Runtime) enqueue(l *listener, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case l.ch <- text:
	default:
		select {
		case <-l.ch:
		default:
		}
		select {
		case l.ch <- text:
		default:
		}
	}
}

// Attach registers a new listener and returns its channel plus the current
// backlog, so a newly connected UI sees history then live output (§4.F).
func (rt *Runtime) Attach() (<-chan string, string) {
	l := &listener{ch: make(chan string, ListenerQueueCapacity)}
	rt.mu.Lock()
	rt.listeners[l] = struct{}{}
	backlog := rt.backlog.String()
	rt.mu.Unlock()
	return l.ch, backlog
}

// DetachByChan removes the listener whose channel is ch, as returned by
// Attach.
func (rt *Runtime) DetachByChan(ch <-chan string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for l := range rt.listeners {
		if (<-chan string)(l.ch) == ch {
			delete(rt.listeners, l)
			return
		}
	}
}

// Write sends raw bytes to the PTY master (agent stdin).
func (rt *Runtime) Write(p []byte) (int, error) {
	return rt.master.Write(p)
}

// Resize applies a new window size and signals the foreground process group
// with WINCH so interactive agents re-render (§4.E, §4.F).
func (rt *Runtime) Resize(size Size) error {
	if err := gopty.Setsize(rt.master, &gopty.Winsize{Cols: size.Cols, Rows: size.Rows}); err != nil {
		return err
	}
	return signalWinch(rt.Cmd)
}

// Close stops dispatch and releases the master fd; pending listeners receive
// the close sentinel (§4.F, §5 I5).
func (rt *Runtime) Close() error {
	err := rt.master.Close()
	rt.shutdown()
	return err
}

func (rt *Runtime) shutdown() {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return
	}
	rt.closed = true
	listeners := make([]*listener, 0, len(rt.listeners))
	for l := range rt.listeners {
		listeners = append(listeners, l)
	}
	rt.listeners = make(map[*listener]struct{})
	rt.mu.Unlock()

	for _, l := range listeners {
		l.mu.Lock()
		close(l.ch)
		l.mu.Unlock()
	}
	_ = rt.logFile.Close()
}

// ReadBacklogFile loads a chat's persisted terminal log for history replay
// across hub restarts (the PTY itself does not survive a restart).
func ReadBacklogFile(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	size := info.Size()
	if maxBytes > 0 && size > maxBytes {
		if _, err := f.Seek(-maxBytes, 2); err != nil {
			return "", err
		}
		size = maxBytes
	}
	buf := make([]byte, size)
	if _, err := f.Read(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
