//go:build darwin

package platform

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/chenyqthu/mailagent/internal/logging"
)

// darwinSingleInstanceLock uses a Unix socket for single-instance detection.
// The socket lives at ~/Library/Application Support/MailAgent/daemon.sock.
// Unlike a GUI app (which activates its existing window on a second
// launch), a daemon has nothing to activate: a second instance asks the
// first for its PID over the socket and exits.
type darwinSingleInstanceLock struct {
	listener   net.Listener
	socketPath string
	onShow     func()
	mu         sync.Mutex
	done       chan struct{}
}

// NewSingleInstanceLock creates a new single-instance lock.
func NewSingleInstanceLock() SingleInstanceLock {
	return &darwinSingleInstanceLock{
		done: make(chan struct{}),
	}
}

// TryLock attempts to acquire the single-instance lock.
func (l *darwinSingleInstanceLock) TryLock() (bool, error) {
	log := logging.WithComponent("singleinstance")

	socketPath, err := l.buildSocketPath()
	if err != nil {
		return true, fmt.Errorf("failed to build socket path: %w", err)
	}
	l.socketPath = socketPath

	// Try to listen on the socket (atomic — only one process succeeds)
	listener, err := net.Listen("unix", socketPath)
	if err == nil {
		l.listener = listener
		go l.acceptLoop()
		log.Info().Str("socket", socketPath).Msg("Single-instance lock acquired")
		return true, nil
	}

	// Listen failed — an existing instance may be running. Ask it for its PID.
	conn, dialErr := net.DialTimeout("unix", socketPath, 2*time.Second)
	if dialErr == nil {
		pid := l.queryExistingPID(conn)
		conn.Close()
		if pid != "" {
			log.Warn().Str("pid", pid).Msg("Another mailsyncd instance is already running")
		} else {
			log.Warn().Msg("Another mailsyncd instance is already running")
		}
		return false, nil
	}

	// Socket exists but no one is listening — stale socket, remove and retry
	log.Warn().Msg("Stale instance socket found, removing")
	os.Remove(socketPath)

	listener, err = net.Listen("unix", socketPath)
	if err != nil {
		return true, fmt.Errorf("failed to acquire lock after cleanup: %w", err)
	}

	l.listener = listener
	go l.acceptLoop()
	log.Info().Str("socket", socketPath).Msg("Single-instance lock acquired after cleanup")
	return true, nil
}

// queryExistingPID sends a "pid" request and reads back the response line.
func (l *darwinSingleInstanceLock) queryExistingPID(conn net.Conn) string {
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write([]byte("pid\n")); err != nil {
		return ""
	}
	scanner := bufio.NewScanner(conn)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

// SetOnShow is kept to satisfy the SingleInstanceLock interface; mailsyncd
// has no window to show, so callers typically leave this unset.
func (l *darwinSingleInstanceLock) SetOnShow(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onShow = fn
}

// Unlock releases the lock and cleans up resources.
func (l *darwinSingleInstanceLock) Unlock() {
	close(l.done)
	if l.listener != nil {
		l.listener.Close()
	}
	if l.socketPath != "" {
		os.Remove(l.socketPath)
	}
}

// acceptLoop handles incoming connections from second instances.
func (l *darwinSingleInstanceLock) acceptLoop() {
	log := logging.WithComponent("singleinstance")

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
				log.Debug().Err(err).Msg("Accept error")
				return
			}
		}
		go l.handleConnection(conn)
	}
}

// handleConnection answers a "pid" request with this process's PID. Any
// other command (including the legacy "show") is ignored.
func (l *darwinSingleInstanceLock) handleConnection(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	cmd := scanner.Text()
	if cmd != "pid" {
		return
	}

	fmt.Fprintln(conn, strconv.Itoa(os.Getpid()))
}

// buildSocketPath returns the path for the instance lock socket.
func (l *darwinSingleInstanceLock) buildSocketPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	socketDir := filepath.Join(home, "Library", "Application Support", "MailAgent")
	if err := os.MkdirAll(socketDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create socket directory: %w", err)
	}

	return filepath.Join(socketDir, "daemon.sock"), nil
}
