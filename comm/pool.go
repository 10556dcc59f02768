/*Package comm provides connection plumbing for remote lab instruments.

The central type is Pool, which holds one or more connections to a device.
Connections are created lazily by a CreationFunc, handed out one at a time,
and closed after they have all been returned and sat idle for the pool's
timeout.  Device drivers take a connection with Get, use it for one
command/response exchange, and give it back with Put, or Destroy if it has
gone bad.  ReturnWithError folds that decision into one call suitable for
defer.

TCP and serial CreationFuncs are provided; anything that yields an
io.ReadWriteCloser can back a pool, which is how the fake instruments in the
test suites are injected.
*/
package comm

import (
	"io"
	"sync"
	"time"
)

// DefaultIdleTime is a reasonable idle timeout for pooled instrument
// connections.
const DefaultIdleTime = time.Hour

// CreationFunc returns a new connection to a device.  Use a closure to
// capture the address and any dial options.
type CreationFunc func() (io.ReadWriteCloser, error)

// Pool is a set of reusable connections to a single device.  It is
// concurrent safe.  Pools must be created with NewPool.
type Pool struct {
	maxSize int
	onLease int
	idle    time.Duration
	free    []io.ReadWriteCloser
	timer   *time.Timer
	maker   CreationFunc

	mu   sync.Mutex
	cond *sync.Cond
}

// NewPool creates a new Pool with up to maxSize connections, which are
// freed after all have been returned and idle has elapsed.
func NewPool(maxSize int, idle time.Duration, maker CreationFunc) *Pool {
	p := &Pool{
		maxSize: maxSize,
		idle:    idle,
		timer:   time.NewTimer(idle),
		maker:   maker,
	}
	p.cond = sync.NewCond(&p.mu)
	p.timer.Stop() // nothing to reclaim yet
	return p
}

// Get retrieves a connection, blocking until one is available if all are
// given out.  A Put or a Destroy wakes a blocked Get.  The caller has
// exclusive use of the return until it is given back.  Do not return a
// connection if the error is non-nil.
func (p *Pool) Get() (io.ReadWriter, error) {
	p.timer.Stop()

	p.mu.Lock()
	for len(p.free) == 0 && p.onLease >= p.maxSize {
		p.cond.Wait()
	}
	// a connection is idle in the pool, hand it out
	if n := len(p.free); n > 0 {
		c := p.free[n-1]
		p.free = p.free[:n-1]
		p.onLease++
		p.mu.Unlock()
		return c, nil
	}
	// room to grow; reserve the slot so the dial happens outside the lock
	p.onLease++
	p.mu.Unlock()
	c, err := p.maker()
	if err != nil {
		p.mu.Lock()
		p.onLease--
		p.cond.Signal()
		p.mu.Unlock()
		return nil, err
	}
	return c, nil
}

// Put restores a connection to the pool for reuse.  Connections that have
// gone bad (all calls error) should be given to Destroy instead.
func (p *Pool) Put(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	p.mu.Lock()
	p.free = append(p.free, rwc)
	p.onLease--
	quiet := p.onLease == 0
	p.cond.Signal()
	p.mu.Unlock()
	if quiet {
		p.timer.Reset(p.idle)
		go p.reclaim()
	}
}

// Destroy removes a connection from the pool's accounting and closes it.
// The freed slot lets a blocked Get mint a replacement.
func (p *Pool) Destroy(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	rwc.Close()
	p.mu.Lock()
	p.onLease--
	p.cond.Signal()
	p.mu.Unlock()
}

// ReturnWithError returns the connection with Put if err is nil, otherwise
// Destroys it.  Intended for use in a defer wrapping one exchange.
func (p *Pool) ReturnWithError(rw io.ReadWriter, err error) {
	if err != nil {
		p.Destroy(rw)
		return
	}
	p.Put(rw)
}

// Size returns the number of connections owned by the pool, idle or leased.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free) + p.onLease
}

// Active returns the number of connections currently given out.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onLease
}

// reclaim waits out the idle timer, then closes every idle connection.
// A Get before expiry stops the timer and the drain takes nothing.
func (p *Pool) reclaim() {
	<-p.timer.C
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.free {
		c.Close()
	}
	p.free = nil
}
