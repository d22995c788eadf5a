package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/postalcore/postal/framework/exterrors"
	"github.com/postalcore/postal/framework/log"
)

const (
	blockSize    = 128 * 1024
	roundingUnit = 64 * 1024

	// notifyDepth bounds the "SysV message queue" stand-in: a bounded
	// producer-consumer channel carrying 32-bit spill-file ids. Any MPMC
	// bounded queue with the same semantics would do; this one is a plain
	// Go channel.
	notifyDepth = 4096

	rescanInterval = 5 * time.Second
)

// Engine is the message-dequeue engine: it admits spill files written to
// dir/mess/ into a bounded in-memory working set and hands them to callers
// of Get, with exactly-once hand-off — every admitted message is on exactly
// one of {free, used, checked-out}.
type Engine struct {
	dir, messDir, saveDir string
	maxMemory             int64

	log log.Logger

	notify chan uint32

	freeMu    sync.Mutex
	freeCount int
	arenaSize int

	memMu      sync.Mutex
	currentMem int64

	usedMu sync.Mutex
	used   []*Message

	coMu       sync.Mutex
	checkedOut map[uint32]*Message

	inFlightMu sync.Mutex
	inFlight   map[uint32]struct{}

	dequeuedSinceRead atomic.Uint64

	stop   chan struct{}
	stopO  sync.Once
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New validates the queue directory layout and allocates the node arena,
// but does not start the loader — call Start for that.
func New(dir string, maxMemory int64, logger log.Logger) (*Engine, error) {
	messDir := filepath.Join(dir, "mess")
	saveDir := filepath.Join(dir, "save")

	for _, d := range []string{dir, messDir, saveDir} {
		info, err := os.Stat(d)
		if err != nil {
			return nil, exterrors.Fatal{Err: fmt.Errorf("queue: cannot find directory %s: %w", d, err)}
		}
		if !info.IsDir() {
			return nil, exterrors.Fatal{Err: fmt.Errorf("queue: %s is not a directory", d)}
		}
	}

	token := filepath.Join(dir, "token.ipc")
	f, err := os.OpenFile(token, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, exterrors.Fatal{Err: fmt.Errorf("queue: creating token.ipc: %w", err)}
	}
	f.Close()

	roundedMax := ((maxMemory - 1) / (blockSize / 2)) * (blockSize / 2)
	if roundedMax <= 0 {
		roundedMax = blockSize / 2
	}
	arenaSize := int(roundedMax / (blockSize / 2))
	if arenaSize <= 0 {
		arenaSize = 1
	}

	return &Engine{
		dir:        dir,
		messDir:    messDir,
		saveDir:    saveDir,
		maxMemory:  roundedMax,
		log:        logger,
		notify:     make(chan uint32, notifyDepth),
		freeCount:  arenaSize,
		arenaSize:  arenaSize,
		checkedOut: make(map[uint32]*Message),
		inFlight:   make(map[uint32]struct{}),
		stop:       make(chan struct{}),
	}, nil
}

// Start performs an initial reclaim sweep (so messages already sitting in
// mess/ from before a restart are picked up) and launches the loader
// goroutine. ctx cancellation stops the engine.
func (e *Engine) Start(ctx context.Context) {
	e.reclaimSweep()
	e.wg.Add(1)
	go e.loaderLoop(ctx)
}

// Close stops the loader and waits for it to exit.
func (e *Engine) Close() error {
	e.stopO.Do(func() { close(e.stop) })
	e.closed.Store(true)
	e.wg.Wait()
	return nil
}

// Notify tells the engine that mess/<id> has just been written and is ready
// to load, the Go stand-in for msgsnd(MESSAGE_MESS, id). It never blocks
// indefinitely: if the notification channel is saturated the caller gets
// ErrNotifyFull back, matching the "SysV errors other than EAGAIN are fatal
// to the loader" contract in spirit (callers decide whether to retry).
func (e *Engine) Notify(id uint32) error {
	select {
	case e.notify <- id:
		return nil
	default:
		return ErrNotifyFull
	}
}

// ErrNotifyFull is returned by Notify when the bounded notification channel
// is saturated.
var ErrNotifyFull = errors.New("queue: notification channel is full")

// Get pops one message from the used list and marks it checked-out. It
// returns nil, nil if nothing is pending — callers poll or are woken by
// their own mechanism; the engine itself does not block Get.
func (e *Engine) Get() (*Message, error) {
	e.usedMu.Lock()
	if len(e.used) == 0 {
		e.usedMu.Unlock()
		return nil, nil
	}
	msg := e.used[0]
	e.used = e.used[1:]
	e.usedMu.Unlock()

	e.coMu.Lock()
	e.checkedOut[msg.FlushID] = msg
	e.coMu.Unlock()

	return msg, nil
}

// Put releases a message previously returned by Get: the spill file is
// removed, the node returns to the free list, and the dequeued counter is
// incremented.
func (e *Engine) Put(msg *Message) error {
	e.coMu.Lock()
	delete(e.checkedOut, msg.FlushID)
	e.coMu.Unlock()

	e.inFlightMu.Lock()
	delete(e.inFlight, msg.FlushID)
	e.inFlightMu.Unlock()

	path := filepath.Join(e.messDir, strconv.FormatUint(uint64(msg.FlushID), 10))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		e.log.Error("queue: removing spill file", err, "flush_id", msg.FlushID)
	}

	e.releaseNode(msg.roundedSize)
	e.dequeuedSinceRead.Add(1)
	return nil
}

func (e *Engine) acquireNode(roundedSize int64) bool {
	e.memMu.Lock()
	if e.currentMem+roundedSize > e.maxMemory {
		e.memMu.Unlock()
		return false
	}
	e.currentMem += roundedSize
	e.memMu.Unlock()

	e.freeMu.Lock()
	if e.freeCount == 0 {
		e.freeMu.Unlock()
		e.memMu.Lock()
		e.currentMem -= roundedSize
		e.memMu.Unlock()
		return false
	}
	e.freeCount--
	e.freeMu.Unlock()
	return true
}

func (e *Engine) releaseNode(roundedSize int64) {
	e.memMu.Lock()
	e.currentMem -= roundedSize
	e.memMu.Unlock()

	e.freeMu.Lock()
	e.freeCount++
	e.freeMu.Unlock()
}

// Metrics is a point-in-time snapshot of the engine's working set.
type Metrics struct {
	Holding               int
	Processing            int
	DequeuedSinceLastRead uint64
	AllocatedBlocks       int
}

// Snapshot reports the current Metrics, resetting DequeuedSinceLastRead.
func (e *Engine) Snapshot() Metrics {
	e.usedMu.Lock()
	holding := len(e.used)
	e.usedMu.Unlock()

	e.coMu.Lock()
	processing := len(e.checkedOut)
	e.coMu.Unlock()

	e.freeMu.Lock()
	allocated := e.arenaSize - e.freeCount
	e.freeMu.Unlock()

	return Metrics{
		Holding:               holding,
		Processing:            processing,
		DequeuedSinceLastRead: e.dequeuedSinceRead.Swap(0),
		AllocatedBlocks:       allocated,
	}
}
