package grbl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeRW struct {
	io.Reader
	io.Writer
}

// fakeGrbl answers every line with ok, after any configured response.
type fakeGrbl struct {
	in  *io.PipeReader
	out *io.PipeWriter

	mx    sync.Mutex
	lines []string
	resp  map[string]string
}

func newFakeGrbl(t *testing.T) (*fakeGrbl, *Conn) {
	t.Helper()
	toGrbl, fromHost := io.Pipe()
	toHost, fromGrbl := io.Pipe()
	g := &fakeGrbl{in: toGrbl, out: fromGrbl, resp: make(map[string]string)}
	go g.run()

	c := NewConn(pipeRW{Reader: toHost, Writer: fromHost})
	t.Cleanup(func() {
		c.Close()
		toGrbl.Close()
		fromGrbl.Close()
	})
	return g, c
}

func (g *fakeGrbl) run() {
	r := bufio.NewReader(g.in)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		if b == '?' {
			fmt.Fprint(g.out, "<Idle|MPos:1.000,2.000,-3.000|FS:0,0>\n")
			continue
		}
		r.UnreadByte()
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)

		g.mx.Lock()
		g.lines = append(g.lines, line)
		resp := g.resp[line]
		g.mx.Unlock()

		if resp != "" {
			fmt.Fprint(g.out, resp+"\n")
			continue
		}
		fmt.Fprint(g.out, "ok\n")
	}
}

func (g *fakeGrbl) Lines() []string {
	g.mx.Lock()
	defer g.mx.Unlock()
	return append([]string(nil), g.lines...)
}

func TestConn_Send(t *testing.T) {
	g, c := newFakeGrbl(t)
	g.resp["M105"] = "T:21.5\nok"
	g.resp["G0X-1"] = "error:15"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var sb strings.Builder
	var want []string
	for i := 0; i < 40; i++ {
		l := fmt.Sprintf("G0X%dY%d", i, i*2)
		sb.WriteString(l + "\n")
		want = append(want, l)
	}
	resp, err := c.Send(ctx, strings.NewReader(sb.String()))
	require.NoError(t, err)
	assert.Empty(t, resp)
	assert.Equal(t, want, g.Lines())

	resp, err = c.Send(ctx, strings.NewReader("M105"))
	require.NoError(t, err)
	assert.Equal(t, []string{"T:21.5"}, resp)

	_, err = c.Send(ctx, strings.NewReader("G0X-1\nG0X1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error:15")
	assert.Equal(t, "G0X1", g.Lines()[len(g.Lines())-1])
}

func TestConn_PollStatus(t *testing.T) {
	_, c := newFakeGrbl(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.PollStatus(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return c.Status().State == "Idle" }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, coord.Point{X: 1, Y: 2, Z: -3}, c.Status().MPos)
}

func TestConn_Closed(t *testing.T) {
	_, c := newFakeGrbl(t)
	require.NoError(t, c.Close())
	_, err := c.Send(context.Background(), strings.NewReader("G0X1\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestParseStatus(t *testing.T) {
	st, err := parseStatus(Status{WCO: coord.Point{X: 1}}, "<Run|WPos:1,2,3|FS:500,0>")
	require.NoError(t, err)
	assert.Equal(t, "Run", st.State)
	assert.Equal(t, coord.Point{X: 2, Y: 2, Z: 3}, st.MPos)
	assert.Equal(t, coord.Point{X: 1, Y: 2, Z: 3}, st.WPos())

	st, err = parseStatus(Status{}, "<Hold:0|MPos:0,0,0|WCO:1,1,1>")
	require.NoError(t, err)
	assert.Equal(t, "Hold", st.State)
	assert.Equal(t, coord.Point{X: 1, Y: 1, Z: 1}, st.WCO)

	_, err = parseStatus(Status{}, "<Idle|MPos:1,2>")
	assert.Error(t, err)
}
