//go:build darwin

package platform

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/chenyqthu/mailagent/internal/logging"
)

// probeInterval is how often connectivity is re-checked while the daemon
// believes it is online. A shorter interval is used while offline so
// connectivity is noticed quickly once it returns.
const (
	probeInterval        = 30 * time.Second
	probeIntervalOffline = 5 * time.Second
	probeTimeout         = 5 * time.Second
)

// probeTargets are dialed in order until one succeeds. Using the DNS port
// on well-known resolvers avoids depending on any single service being up.
var probeTargets = []string{"1.1.1.1:53", "8.8.8.8:53"}

// darwinNetworkMonitor polls outbound TCP reachability on a timer. This
// trades the instant, event-driven signal that Apple's Network.framework
// (NWPathMonitor) would give for a pure-Go implementation with no cgo
// dependency; connectivity changes are noticed within one probe interval.
type darwinNetworkMonitor struct {
	events   chan NetworkEvent
	notifyCh chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu        sync.RWMutex
	connected bool
	running   bool
}

// NewNetworkMonitor creates a new network connectivity monitor for macOS.
func NewNetworkMonitor() NetworkMonitor {
	return &darwinNetworkMonitor{
		events:    make(chan NetworkEvent, 10),
		notifyCh:  make(chan struct{}, 1),
		connected: true, // assume connected until the first probe says otherwise
	}
}

func (m *darwinNetworkMonitor) Start(ctx context.Context) error {
	log := logging.WithComponent("network-monitor")

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.run(runCtx)

	log.Info().Msg("Network monitor started (TCP reachability probe)")
	return nil
}

func (m *darwinNetworkMonitor) run(ctx context.Context) {
	defer m.wg.Done()

	m.probe(ctx)

	for {
		interval := probeInterval
		if !m.IsConnected() {
			interval = probeIntervalOffline
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			m.probe(ctx)
		}
	}
}

func (m *darwinNetworkMonitor) probe(ctx context.Context) {
	connected := false
	for _, target := range probeTargets {
		d := net.Dialer{Timeout: probeTimeout}
		conn, err := d.DialContext(ctx, "tcp", target)
		if err == nil {
			conn.Close()
			connected = true
			break
		}
	}
	m.updateState(connected)
}

func (m *darwinNetworkMonitor) updateState(connected bool) {
	log := logging.WithComponent("network-monitor")

	m.mu.Lock()
	changed := m.connected != connected
	m.connected = connected
	m.mu.Unlock()

	if !changed {
		return
	}

	if connected {
		log.Info().Msg("Network connectivity restored")
	} else {
		log.Info().Msg("Network connectivity lost")
	}

	select {
	case m.events <- NetworkEvent{Connected: connected, Timestamp: time.Now()}:
	default:
		log.Warn().Msg("Network event channel full, dropping event")
	}

	select {
	case m.notifyCh <- struct{}{}:
	default:
	}
}

func (m *darwinNetworkMonitor) Events() <-chan NetworkEvent {
	return m.events
}

func (m *darwinNetworkMonitor) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *darwinNetworkMonitor) WaitForConnection(ctx context.Context) bool {
	if m.IsConnected() {
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case <-m.notifyCh:
			if m.IsConnected() {
				return true
			}
		}
	}
}

func (m *darwinNetworkMonitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	logging.WithComponent("network-monitor").Info().Msg("Network monitor stopped")
	return nil
}
