package failuredetector

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultCheckInterval is how often every peer is probed.
	DefaultCheckInterval = 3 * time.Second
	// ConnectTimeout bounds the TCP dial.
	ConnectTimeout = 500 * time.Millisecond
	// ReadTimeout bounds reading the greeting and the PONG reply.
	ReadTimeout = 800 * time.Millisecond
	// FailuresToMarkDown is the consecutive-miss threshold before a peer
	// flips from up to down.
	FailuresToMarkDown = 3
	// SuccessesToMarkUp is the consecutive-hit threshold before a peer
	// flips from down back to up.
	SuccessesToMarkUp = 1
)

// Listener receives debounced up/down transitions. Implementations must
// not block for long; callbacks run on the detector's single scheduling
// goroutine and serialize all peer events.
type Listener interface {
	OnNodeDown(peer string)
	OnNodeUp(peer string)
}

// PingFunc performs one probe of a peer and reports whether it answered
// correctly. Swappable for testing; the default dials the line transport.
type PingFunc func(peer string) error

type peerState struct {
	isUp       bool
	failStreak int
	okStreak   int
}

// Detector probes a fixed peer set on a fixed interval and emits debounced
// up/down transitions to a Listener.
type Detector struct {
	interval time.Duration
	ping     PingFunc
	listener Listener
	log      *logrus.Entry

	mu     sync.Mutex
	states map[string]*peerState

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New returns a Detector using the default PING/PONG-over-TCP probe. The
// listener may be nil, in which case transitions are computed but not
// reported anywhere.
func New(listener Listener, log *logrus.Entry) *Detector {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	d := &Detector{
		interval: DefaultCheckInterval,
		listener: listener,
		log:      log.WithField("component", "failuredetector"),
		states:   make(map[string]*peerState),
	}
	d.ping = d.dialAndPing
	return d
}

// SetPingFunc overrides the probe implementation, for tests.
func (d *Detector) SetPingFunc(fn PingFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ping = fn
}

// SetInterval overrides the probe interval, for tests that cannot afford
// to wait DefaultCheckInterval.
func (d *Detector) SetInterval(interval time.Duration) {
	d.interval = interval
}

// Start launches the single scheduling goroutine, probing peers() every
// interval until Stop is called or the stop channel is closed.
func (d *Detector) Start(stop <-chan struct{}, peers func() []string) {
	d.stopCh = make(chan struct{})
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.checkAll(peers())
			case <-d.stopCh:
				return
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the scheduling goroutine and waits for it to exit.
func (d *Detector) Stop() {
	if d.stopCh == nil {
		return
	}
	close(d.stopCh)
	d.wg.Wait()
}

// CheckAll probes every peer once, synchronously. Exported so a caller can
// force an out-of-band probe round (e.g. in tests) without waiting for the
// ticker.
func (d *Detector) CheckAll(peers []string) {
	d.checkAll(peers)
}

func (d *Detector) checkAll(peers []string) {
	for _, peer := range peers {
		d.checkPeer(peer)
	}
}

func (d *Detector) checkPeer(peer string) {
	d.mu.Lock()
	fn := d.ping
	d.mu.Unlock()

	err := fn(peer)

	d.mu.Lock()
	st, ok := d.states[peer]
	if !ok {
		st = &peerState{isUp: true}
		d.states[peer] = st
	}

	var fireUp, fireDown bool
	if err == nil {
		st.okStreak++
		st.failStreak = 0
		if !st.isUp && st.okStreak >= SuccessesToMarkUp {
			st.isUp = true
			st.okStreak = 0
			fireUp = true
		}
	} else {
		st.failStreak++
		st.okStreak = 0
		if st.isUp && st.failStreak >= FailuresToMarkDown {
			st.isUp = false
			st.failStreak = 0
			fireDown = true
		}
	}
	listener := d.listener
	d.mu.Unlock()

	if err != nil {
		d.log.WithError(err).WithField("peer", peer).Debug("probe miss")
	}

	if listener == nil {
		return
	}
	if fireDown {
		d.safeNotify(func() { listener.OnNodeDown(peer) }, peer, "down")
	}
	if fireUp {
		d.safeNotify(func() { listener.OnNodeUp(peer) }, peer, "up")
	}
}

func (d *Detector) safeNotify(fn func(), peer, transition string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("peer", peer).WithField("transition", transition).
				Errorf("failure detector listener panicked: %v", r)
		}
	}()
	fn()
}

// IsUp reports the last known state for a peer. Peers never probed are
// reported up, matching the initial state.
func (d *Detector) IsUp(peer string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.states[peer]
	if !ok {
		return true
	}
	return st.isUp
}

func (d *Detector) dialAndPing(peer string) error {
	conn, err := net.DialTimeout("tcp", peer, ConnectTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", peer, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return err
	}

	reader := bufio.NewReader(conn)
	if _, err := reader.ReadString('\n'); err != nil {
		return fmt.Errorf("read greeting from %s: %w", peer, err)
	}

	if _, err := conn.Write([]byte("PING\n")); err != nil {
		return fmt.Errorf("write PING to %s: %w", peer, err)
	}

	reply, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read PONG from %s: %w", peer, err)
	}
	if !strings.EqualFold(strings.TrimSpace(reply), "PONG") {
		return fmt.Errorf("unexpected reply from %s: %q", peer, reply)
	}
	return nil
}
