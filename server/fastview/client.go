package fastview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second
	// Maximum message size allowed from peer; the page never sends anything meaningful.
	maxMessageSize = 512

	// Updates arriving faster than pubResolution are dropped.
	pubResolution  = time.Millisecond * 100
	pingResolution = time.Millisecond * 200
	// The number of lost pings to tolerate before concluding the peer is gone.
	pongWait = pingResolution * 4

	sockWait         = time.Second
	closeGracePeriod = time.Second
)

var upgrader = websocket.Upgrader{}

var (
	// ErrPongDeadlineExceeded is returned by Sync when the peer stops answering pings.
	ErrPongDeadlineExceeded = errors.New("client disconnect, pong deadline exceeded")
	// ErrSockCongestion indicates too many waiters on the socket for a given op.
	ErrSockCongestion = errors.New("sock op failed due to congestion")
)

// Client publishes updates unidirectionally to one web page via websocket.
// Items of the updates chan must be idempotent: only the latest one matters, so
// intervening updates received faster than the publication rate are discarded.
type Client[T any] struct {
	updates <-chan T
	sock    *websock
	rootCtx context.Context
}

// NewClient upgrades the request to a websocket publishing the passed updates.
func NewClient[T any](
	updates <-chan T,
	w http.ResponseWriter,
	r *http.Request,
) (*Client[T], error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied to the client.
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	ws.SetReadLimit(maxMessageSize)

	return &Client[T]{
		updates: updates,
		sock:    newWebsock(ws),
		rootCtx: r.Context(),
	}, nil
}

// Sync publishes updates until the client disconnects, the updates chan closes, or an
// error occurs, then closes the socket. The reader, pinger and publisher run as a group:
// whichever fails first tears the others down. A normal disconnect returns nil.
func (cli *Client[T]) Sync() error {
	defer cli.sock.Close()

	group, groupCtx := errgroup.WithContext(cli.rootCtx)
	group.Go(func() error {
		return cli.readMessages(groupCtx)
	})
	group.Go(func() error {
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		return cli.publish(groupCtx)
	})
	// Unblocks the reader once the group is done.
	group.Go(func() error {
		<-groupCtx.Done()
		_ = cli.sock.Conn().SetReadDeadline(time.Now())
		return nil
	})

	if err := group.Wait(); err != nil && !isClosure(err) {
		return err
	}
	return nil
}

// pingPong checks liveness. The pong handler only runs while readMessages is reading.
func (cli *Client[T]) pingPong(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	cli.sock.Conn().SetPongHandler(func(string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			err := cli.sock.Write(ctx, func(ws *websocket.Conn) error {
				return ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			})
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

// readMessages discards client messages; reading is what drives the pong and close handlers.
// Read errors on a websocket are permanent, so any error ends the group.
func (cli *Client[T]) readMessages(ctx context.Context) error {
	for {
		err := cli.sock.Read(ctx, func(ws *websocket.Conn) error {
			_, _, readErr := ws.ReadMessage()
			return readErr
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (cli *Client[T]) publish(ctx context.Context) error {
	var lastSync time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-cli.updates:
			if !ok {
				return nil
			}
			if time.Since(lastSync) < pubResolution {
				continue
			}

			lastSync = time.Now()
			err := cli.sock.Write(ctx, func(ws *websocket.Conn) error {
				if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
					return fmt.Errorf("set write deadline: %w", err)
				}
				return ws.WriteJSON(update)
			})
			if err != nil {
				return fmt.Errorf("publish: %w", err)
			}
		}
	}
}

func isClosure(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) && websocket.IsCloseError(
		closeErr,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived)
}

// websock serializes reads and writes to the websocket, which supports at most one
// concurrent reader and one concurrent writer.
type websock struct {
	// These are merely mutexes, but channel semantics allow a timeout.
	readSem  chan struct{}
	writeSem chan struct{}
	ws       *websocket.Conn
}

func newWebsock(ws *websocket.Conn) *websock {
	return &websock{
		readSem:  make(chan struct{}, 1),
		writeSem: make(chan struct{}, 1),
		ws:       ws,
	}
}

// Conn returns the underlying websocket, for setup only (adding handlers).
func (sock *websock) Conn() *websocket.Conn {
	return sock.ws
}

// Close sends a close frame and closes the socket. Only the write side is acquired:
// a reader blocked in ReadMessage is released by the connection closing.
func (sock *websock) Close() {
	sock.writeSem <- struct{}{}
	_ = sock.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod))
	_ = sock.ws.Close()
}

// Read serializes read operations on the websocket.
func (sock *websock) Read(
	ctx context.Context,
	readFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.readSem <- struct{}{}:
		defer func() { <-sock.readSem }()
		return readFn(sock.ws)
	case <-time.After(sockWait):
		return ErrSockCongestion
	}
}

// Write serializes write operations to the websocket.
func (sock *websock) Write(
	ctx context.Context,
	writeFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.writeSem <- struct{}{}:
		defer func() { <-sock.writeSem }()
		return writeFn(sock.ws)
	case <-time.After(sockWait):
		return ErrSockCongestion
	}
}
