package spjs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	v, err := parseMessage([]byte(`{"P":"ttyUSB0","D":"ok\n"}`))
	require.NoError(t, err)
	assert.Equal(t, &DataFrame{Port: "ttyUSB0", Data: "ok\n"}, v)

	v, err = parseMessage([]byte(`{"Cmd":"Complete","Id":"a1","P":"ttyUSB0"}`))
	require.NoError(t, err)
	assert.Equal(t, &CmdStatus{Cmd: "Complete", ID: "a1"}, v)

	v, err = parseMessage([]byte(`{"SerialPorts":[{"Name":"ttyUSB0","IsOpen":true}]}`))
	require.NoError(t, err)
	assert.Equal(t, &SerialPortList{SerialPorts: []SerialPort{{Name: "ttyUSB0", IsOpen: true}}}, v)

	v, err = parseMessage([]byte(`{"Error":"port busy"}`))
	require.NoError(t, err)
	assert.Equal(t, &ErrorMessage{Error: "port busy"}, v)

	_, err = parseMessage([]byte(`{"Foo":1}`))
	assert.Error(t, err)
}

func TestClient(t *testing.T) {
	received := make(chan string, 10)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := up.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			received <- string(data)
			if strings.HasPrefix(string(data), "sendjson ") {
				err = ws.WriteMessage(websocket.TextMessage, []byte(`{"Cmd":"Complete","Id":"x1"}`))
				if err != nil {
					return
				}
			}
		}
	}))
	defer srv.Close()

	c := NewClient("ws" + strings.TrimPrefix(srv.URL, "http"))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.Equal(t, "list", <-received)
	require.NoError(t, c.SendJSON(ctx, JSON{Port: "ttyUSB0", Data: []Data{{Data: "G0X1\n", ID: "x1"}}}))
	assert.Equal(t, `sendjson {"P":"ttyUSB0","Data":[{"D":"G0X1\n","Id":"x1"}]}`, <-received)

	select {
	case msg := <-c.Messages():
		assert.Equal(t, &CmdStatus{Cmd: "Complete", ID: "x1"}, msg)
	case <-ctx.Done():
		t.Fatal("no response")
	}
}
