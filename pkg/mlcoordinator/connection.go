package mlcoordinator

import (
	"context"
	"fmt"
	"io"
	"log"
	"runtime/debug"

	"github.com/virtengine/mlpipe/pkg/mlwire"
)

// Listener accepts worker connections. The sandbox runtime that dials back
// to the coordinator is out of scope (spec.md §1 Non-goals); Listener is
// the seam a real transport (unix socket, TCP) plugs into.
type Listener interface {
	Accept(ctx context.Context) (io.ReadWriteCloser, error)
}

// workerConn pairs one framed channel with a background reader goroutine
// that forwards decoded messages onto msgs, matching spec.md §5's "one
// goroutine per worker connection" shape.
type workerConn struct {
	id     string
	conn   *mlwire.Conn
	closer io.Closer
	msgs   chan mlwire.Message
	errs   chan error
}

// readyWorker is what the accept loop hands to the coordinator's main loop
// once a freshly launched worker has completed the manifest handshake.
type readyWorker struct {
	wc       *workerConn
	manifest mlwire.Message
}

func safeGo(label string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[mlcoordinator] recovered panic in %s: %v\n%s", label, r, debug.Stack())
			}
		}()
		fn()
	}()
}

// readLoop decodes frames off wc.conn until it errors or ctx is done,
// forwarding each message onto wc.msgs. Per spec.md §5, messages from one
// worker must be processed in arrival order; a single reader goroutine per
// connection plus an unbuffered forwarding channel gives that for free.
func (wc *workerConn) readLoop(ctx context.Context) {
	defer close(wc.msgs)
	for {
		msg, err := wc.conn.ReadMessage()
		if err != nil {
			select {
			case wc.errs <- err:
			case <-ctx.Done():
			}
			return
		}
		select {
		case wc.msgs <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// acceptLoop accepts new worker connections and performs the
// request_manifest/response_manifest handshake (spec.md §6), then hands the
// resulting workerConn to readyCh for the main loop to admit. It never
// touches scheduler or cache state directly — only the main loop goroutine
// does that, preserving the single-threaded mutation invariant (spec.md
// §5).
func (co *Coordinator) acceptLoop(ctx context.Context) {
	for {
		raw, err := co.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[mlcoordinator] accept failed: %v", err)
			continue
		}
		safeGo("mlcoordinator:handshake", func() {
			co.handshake(ctx, raw)
		})
	}
}

func (co *Coordinator) handshake(ctx context.Context, raw io.ReadWriteCloser) {
	conn := mlwire.NewConn(raw, raw)

	hello, err := conn.ReadMessage()
	if err != nil {
		log.Printf("[mlcoordinator] handshake read failed: %v", err)
		raw.Close()
		return
	}
	if hello.Cmd != mlwire.CmdResponseManifest {
		log.Printf("[mlcoordinator] handshake: expected %s, got %s", mlwire.CmdResponseManifest, hello.Cmd)
		raw.Close()
		return
	}

	wc := &workerConn{
		id:     hello.SenderID,
		conn:   conn,
		closer: raw,
		msgs:   make(chan mlwire.Message),
		errs:   make(chan error, 1),
	}
	safeGo(fmt.Sprintf("mlcoordinator:reader:%s", wc.id), func() {
		wc.readLoop(ctx)
	})

	select {
	case co.readyCh <- readyWorker{wc: wc, manifest: hello}:
	case <-ctx.Done():
		raw.Close()
	}
}
