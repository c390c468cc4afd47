package grbl

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/logger"
)

// bufferSize is the grbl serial receive buffer.
const bufferSize = 128

// ErrReset is returned when grbl restarts before every line was run.
var ErrReset = errors.New("grbl reset")

// Conn is a direct connection to a grbl controller. Lines are streamed
// with character counting, keeping grbl's receive buffer full.
type Conn struct {
	rw io.ReadWriter

	ackCh     chan error
	resetCh   chan struct{}
	closeCh   chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once

	// mx guards writes to rw
	mx sync.Mutex
	// wMx serializes Send
	wMx sync.Mutex

	deviceBuf int
	lineSize  []int
	sendErr   error

	sMx    sync.Mutex
	status Status
	resp   []string
	err    error
}

var _ Controller = &Conn{}

// NewConn starts reading responses from rw.
func NewConn(rw io.ReadWriter) *Conn {
	c := &Conn{
		rw:      rw,
		ackCh:   make(chan error, bufferSize),
		resetCh: make(chan struct{}, 1),
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Close aborts in-progress sends and closes the underlying ReadWriter,
// if it implements io.Closer.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		if closer, ok := c.rw.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}

// Status returns the last status report.
func (c *Conn) Status() Status {
	c.sMx.Lock()
	defer c.sMx.Unlock()
	return c.status
}

// PollStatus requests a status report every interval until ctx is done.
func (c *Conn) PollStatus(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-t.C:
		}
		err := c.WriteByte('?')
		if err != nil {
			logger.Logger.Warnw("grbl status request failed", logger.FieldError, err)
			return
		}
	}
}

func (c *Conn) readLoop() {
	defer close(c.doneCh)
	scan := bufio.NewScanner(c.rw)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}

		var ack error
		switch {
		case line == "ok":
		case strings.HasPrefix(line, "error:"):
			ack = errors.Newf("grbl %s", line)
		case strings.HasPrefix(line, "Grbl "):
			logger.Logger.Infow("grbl started", "version", line)
			select {
			case c.resetCh <- struct{}{}:
			default:
			}
			continue
		case strings.HasPrefix(line, "<"):
			c.sMx.Lock()
			st, err := parseStatus(c.status, line)
			if err == nil {
				c.status = *st
			}
			c.sMx.Unlock()
			if err != nil {
				logger.Logger.Warnw("grbl status parse failed", "line", line, logger.FieldError, err)
			}
			continue
		case strings.HasPrefix(line, "ALARM:"):
			logger.Logger.Warnw("grbl alarm", "line", line)
			continue
		default:
			c.sMx.Lock()
			c.resp = append(c.resp, line)
			c.sMx.Unlock()
			continue
		}

		select {
		case c.ackCh <- ack:
		case <-c.closeCh:
			return
		}
	}

	c.sMx.Lock()
	c.err = scan.Err()
	if c.err == nil {
		c.err = io.EOF
	}
	c.sMx.Unlock()
}

func (c *Conn) readErr() error {
	c.sMx.Lock()
	defer c.sMx.Unlock()
	return c.err
}

func (c *Conn) resetBuffer() {
	c.deviceBuf = 0
	c.lineSize = nil
}

// next waits for the oldest outstanding line to be acknowledged.
func (c *Conn) next(ctx context.Context) error {
	select {
	case <-c.resetCh:
		c.resetBuffer()
		return ErrReset
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closeCh:
		return io.ErrClosedPipe
	case <-c.doneCh:
		return errors.Wrap(c.readErr(), "grbl read")
	case <-c.resetCh:
		c.resetBuffer()
		return ErrReset
	case err := <-c.ackCh:
		if len(c.lineSize) > 0 {
			c.deviceBuf -= c.lineSize[0]
			c.lineSize = c.lineSize[1:]
		}
		return err
	}
}

func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, ErrReset) || errors.Is(err, io.ErrClosedPipe) || ctx.Err() != nil
}

// ack waits for the oldest outstanding line, keeping the first error
// grbl reported in sendErr.
func (c *Conn) ack(ctx context.Context) error {
	err := c.next(ctx)
	if err == nil {
		return nil
	}
	if fatal(ctx, err) {
		return err
	}
	if c.sendErr == nil {
		c.sendErr = err
	}
	return nil
}

func (c *Conn) writeLine(ctx context.Context, line []byte) error {
	for c.deviceBuf+len(line) > bufferSize && len(c.lineSize) > 0 {
		err := c.ack(ctx)
		if err != nil {
			return err
		}
	}

	c.mx.Lock()
	_, err := c.rw.Write(line)
	c.mx.Unlock()
	if err != nil {
		return err
	}
	c.deviceBuf += len(line)
	c.lineSize = append(c.lineSize, len(line))
	return nil
}

func splitLinesKeepN(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		return len(data), append(data, '\n'), nil
	}
	return 0, nil, nil
}

// Send streams the lines of r and returns after all of them ran, along
// with any response lines that were not acknowledgements or status
// reports. The first error reported by grbl is returned.
func (c *Conn) Send(ctx context.Context, r io.Reader) ([]string, error) {
	c.wMx.Lock()
	defer c.wMx.Unlock()

	select {
	case <-c.closeCh:
		return nil, io.ErrClosedPipe
	default:
	}

	c.sMx.Lock()
	c.resp = nil
	c.sMx.Unlock()

	c.sendErr = nil
	scan := bufio.NewScanner(r)
	scan.Split(splitLinesKeepN)
	for scan.Scan() {
		line := append([]byte(nil), scan.Bytes()...)
		err := c.writeLine(ctx, line)
		if err != nil {
			return nil, err
		}
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}

	for len(c.lineSize) > 0 {
		err := c.ack(ctx)
		if err != nil {
			return nil, err
		}
	}

	c.sMx.Lock()
	resp := c.resp
	c.resp = nil
	c.sMx.Unlock()
	return resp, c.sendErr
}

// WriteByte writes a realtime command, like '?', without buffer
// accounting.
func (c *Conn) WriteByte(b byte) error {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	default:
	}
	c.mx.Lock()
	_, err := c.rw.Write([]byte{b})
	c.mx.Unlock()
	return err
}
