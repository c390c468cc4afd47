// Package spjs is a client for the Serial Port JSON Server, which shares
// serial ports, like a grbl board, over a websocket.
package spjs

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/logger"
	"go.uber.org/zap"
)

// ReconnectDelay is the wait between connection attempts.
var ReconnectDelay = 3 * time.Second

// Client keeps a connection to an SPJS server open, reconnecting as
// needed.
type Client struct {
	url string
	log *zap.SugaredLogger

	outgoing chan message
	incoming chan interface{}
	closeCh  chan struct{}
	once     sync.Once
}

type message struct {
	done    chan error
	payload []byte
}

// DataFrame is data read from a serial port.
type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}

// CmdStatus reports progress of queued commands.
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}

type SerialPortList struct {
	SerialPorts []SerialPort
}

type SerialPort struct {
	Name             string
	Friendly         string
	SerialNumber     string
	DeviceClass      string
	IsOpen           bool
	IsPrimary        bool
	RelatedNames     []string
	Baud             int
	BufferAlgorithm  string
	Ver              float64
	USBVID           string
	USBPID           string
	FeedRateOverride float64
}

// JSON is a sendjson request.
type JSON struct {
	Port string `json:"P"`
	Data []Data
}

type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

// NewClient starts connecting to the server at url, like
// ws://localhost:8989/ws.
func NewClient(url string) *Client {
	c := &Client{
		url:      url,
		log:      logger.Named("spjs").With(logger.FieldAddress, url),
		outgoing: make(chan message),
		incoming: make(chan interface{}, 1000),
		closeCh:  make(chan struct{}),
	}
	go c.loop()
	return c
}

// Messages returns parsed server messages: *DataFrame, *CmdStatus,
// *ErrorMessage or *SerialPortList.
func (c *Client) Messages() <-chan interface{} { return c.incoming }

// Close disconnects and stops reconnecting.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.closeCh) })
	return nil
}

func parseMessage(data []byte) (val interface{}, err error) {
	var msg map[string]json.RawMessage
	err = json.Unmarshal(data, &msg)
	if err != nil {
		return nil, err
	}

	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	if check("Error", &ErrorMessage{}) {
		return
	}
	if check("SerialPorts", &SerialPortList{}) {
		return
	}
	if check("Cmd", &CmdStatus{}) {
		return
	}
	if check("D", &DataFrame{}) {
		return
	}

	return nil, errors.Newf("unknown message: %s", data)
}

func (c *Client) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.log.Warnw("read failed", logger.FieldError, err)
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// echo of our own commands
			continue
		}
		val, err := parseMessage(data)
		if err != nil {
			c.log.Warnw("parse failed", logger.FieldError, err)
			continue
		}
		select {
		case c.incoming <- val:
		case <-c.closeCh:
			return
		}
	}
}

func (c *Client) loop() {
	var nextUp *message

	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		c.log.Infow("connecting")
		ws, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			c.log.Warnw("connect failed", logger.FieldError, err)
			select {
			case <-c.closeCh:
				return
			case <-time.After(ReconnectDelay):
			}
			continue
		}
		c.log.Infow("connected")
		done := make(chan struct{})
		go c.readLoop(ws, done)

		// refresh the port list on every connect
		err = ws.WriteMessage(websocket.TextMessage, []byte("list"))

		for err == nil {
			if nextUp != nil {
				err = ws.WriteMessage(websocket.TextMessage, nextUp.payload)
				if err != nil {
					c.log.Warnw("send failed", logger.FieldError, err)
					break
				}
				nextUp.done <- nil
				nextUp = nil
			}

			select {
			case <-c.closeCh:
				ws.Close()
				if nextUp != nil {
					nextUp.done <- errors.New("spjs client closed")
				}
				return
			case <-done:
				err = errors.New("connection lost")
			case m := <-c.outgoing:
				nextUp = &m
			}
		}
		ws.Close()
	}
}

func (c *Client) write(ctx context.Context, payload []byte) error {
	m := message{done: make(chan error, 1), payload: payload}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closeCh:
		return errors.New("spjs client closed")
	case c.outgoing <- m:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-m.done:
		return err
	}
}

// SendJSON queues v with the sendjson command. It returns once the
// request was written to the server.
func (c *Client) SendJSON(ctx context.Context, v JSON) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal sendjson")
	}
	return c.write(ctx, append([]byte("sendjson "), data...))
}

// WriteString sends a raw server command, like "list".
func (c *Client) WriteString(ctx context.Context, cmd string) error {
	return c.write(ctx, []byte(cmd))
}
