package grbl

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/logger"
	"github.com/mastercactapus/gpnp/spjs"
)

// MaxSPJSBatch is the most lines queued with a single sendjson.
const MaxSPJSBatch = 100

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "gpnp_" + strconv.FormatInt(id, 36)
}

// SPJSConn talks to grbl through a Serial Port JSON Server, which does
// the buffering.
type SPJSConn struct {
	sp   *spjs.Client
	port string
	baud int

	wMx sync.Mutex

	mx      sync.Mutex
	status  Status
	resp    []string
	sendErr error
	waiting map[string]chan error

	closeCh chan struct{}
	once    sync.Once
}

var _ Controller = &SPJSConn{}

// NewSPJSConn uses port on the server sp is connected to, opening it at
// baud when needed.
func NewSPJSConn(sp *spjs.Client, port string, baud int) *SPJSConn {
	c := &SPJSConn{
		sp:      sp,
		port:    port,
		baud:    baud,
		waiting: make(map[string]chan error),
		closeCh: make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *SPJSConn) Close() error {
	c.once.Do(func() { close(c.closeCh) })
	return c.sp.Close()
}

func (c *SPJSConn) Status() Status {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.status
}

func (c *SPJSConn) loop() {
	for {
		select {
		case <-c.closeCh:
			return
		case msg := <-c.sp.Messages():
			c.handle(msg)
		}
	}
}

func (c *SPJSConn) handle(msg interface{}) {
	c.mx.Lock()
	defer c.mx.Unlock()

	switch msg := msg.(type) {
	case *spjs.DataFrame:
		if msg.Port != "" && msg.Port != c.port {
			return
		}
		for _, line := range strings.Split(msg.Data, "\n") {
			c.handleLine(strings.TrimSpace(line))
		}
	case *spjs.CmdStatus:
		switch msg.Cmd {
		case "WipedQueue":
			for id, ch := range c.waiting {
				ch <- errors.New("spjs wiped queue")
				delete(c.waiting, id)
			}
		case "Complete":
			if ch := c.waiting[msg.ID]; ch != nil {
				ch <- nil
				delete(c.waiting, msg.ID)
			}
		}
	case *spjs.ErrorMessage:
		logger.Logger.Warnw("spjs error", logger.FieldPort, c.port, logger.FieldError, msg.Error)
	case *spjs.SerialPortList:
		for _, p := range msg.SerialPorts {
			if p.Name != c.port || p.IsOpen {
				continue
			}
			logger.Logger.Infow("opening port", logger.FieldPort, c.port)
			go func() {
				err := c.sp.WriteString(context.Background(), "open "+c.port+" "+strconv.Itoa(c.baud)+" grbl")
				if err != nil {
					logger.Logger.Warnw("open port failed", logger.FieldPort, c.port, logger.FieldError, err)
				}
			}()
		}
	}
}

func (c *SPJSConn) handleLine(line string) {
	switch {
	case line == "", line == "ok":
	case strings.HasPrefix(line, "<"):
		st, err := parseStatus(c.status, line)
		if err != nil {
			logger.Logger.Warnw("grbl status parse failed", "line", line, logger.FieldError, err)
			return
		}
		c.status = *st
	case strings.HasPrefix(line, "error:"):
		if c.sendErr == nil {
			c.sendErr = errors.Newf("grbl %s", line)
		}
	case strings.HasPrefix(line, "ALARM:"):
		logger.Logger.Warnw("grbl alarm", "line", line)
	default:
		c.resp = append(c.resp, line)
	}
}

// Send queues the lines of r in batches and waits for the last one to
// complete.
func (c *SPJSConn) Send(ctx context.Context, r io.Reader) ([]string, error) {
	c.wMx.Lock()
	defer c.wMx.Unlock()

	c.mx.Lock()
	c.resp = nil
	c.sendErr = nil
	c.mx.Unlock()

	scan := bufio.NewScanner(r)
	var wait chan error
	for {
		j := spjs.JSON{Port: c.port}
		for len(j.Data) < MaxSPJSBatch && scan.Scan() {
			line := strings.TrimSpace(scan.Text())
			if line == "" {
				continue
			}
			j.Data = append(j.Data, spjs.Data{Data: line + "\n", ID: nextID()})
		}
		if len(j.Data) == 0 {
			break
		}

		wait = make(chan error, 1)
		c.mx.Lock()
		c.waiting[j.Data[len(j.Data)-1].ID] = wait
		c.mx.Unlock()

		err := c.sp.SendJSON(ctx, j)
		if err != nil {
			return nil, err
		}
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	if wait == nil {
		return nil, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, io.ErrClosedPipe
	case err := <-wait:
		if err != nil {
			return nil, err
		}
	}

	c.mx.Lock()
	defer c.mx.Unlock()
	resp := c.resp
	c.resp = nil
	return resp, c.sendErr
}
