// Package events streams job and machine activity to browsers over
// server-sent events.
package events

import (
	"encoding/json"
	"net/http"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/logger"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/processor"
	"go.uber.org/zap"
)

// Channel names, relative to the broker prefix.
const (
	ChannelJob     = "/job"
	ChannelMachine = "/machine"
)

// Event types sent on the channels.
const (
	EventStatus = "status"
	EventState  = "state"
	EventHead   = "head"
)

// Status is sent for every text status update of a run.
type Status struct {
	RunID   string    `json:"runId"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// State is sent when a run changes JobState.
type State struct {
	RunID string             `json:"runId"`
	State processor.JobState `json:"state"`
	Time  time.Time          `json:"time"`
}

// NozzleState is the position and load of one nozzle.
type NozzleState struct {
	ID        string         `json:"id"`
	Location  coord.Location `json:"location"`
	NozzleTip string         `json:"nozzleTip,omitempty"`
	Part      string         `json:"part,omitempty"`
}

// Head is sent after a head moves or changes what it holds.
type Head struct {
	ID      string        `json:"id"`
	Nozzles []NozzleState `json:"nozzles"`
}

// Broker fans events out to every connected client. It implements
// processor.Listener.
type Broker struct {
	srv    *sse.Server
	prefix string
	log    *zap.SugaredLogger

	// Now defaults to time.Now.
	Now func() time.Time
}

var _ processor.Listener = &Broker{}

// NewBroker returns a Broker serving channels under prefix, such as
// "/events".
func NewBroker(prefix string) *Broker {
	l := logger.Named("events")
	return &Broker{
		srv: sse.NewServer(&sse.Options{
			Logger: zap.NewStdLog(l.Desugar()),
		}),
		prefix: prefix,
		log:    l,
		Now:    time.Now,
	}
}

func (b *Broker) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	b.srv.ServeHTTP(w, req)
}

func (b *Broker) send(channel, event string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		b.log.Errorw("marshal event", logger.FieldEvent, event, logger.FieldError, err)
		return
	}
	b.srv.SendMessage(b.prefix+channel, sse.NewMessage("", string(data), event))
}

func (b *Broker) TextStatus(runID, msg string) {
	b.send(ChannelJob, EventStatus, Status{RunID: runID, Message: msg, Time: b.Now()})
}

func (b *Broker) JobState(runID string, s processor.JobState) {
	b.send(ChannelJob, EventState, State{RunID: runID, State: s, Time: b.Now()})
}

// HeadActivity reports the nozzles of h. Register it with
// machine.Machine.OnHeadActivity.
func (b *Broker) HeadActivity(h *machine.Head) {
	b.send(ChannelMachine, EventHead, NewHead(h))
}

// NewHead captures the current state of h.
func NewHead(h *machine.Head) Head {
	res := Head{ID: h.ID, Nozzles: make([]NozzleState, 0, len(h.Nozzles))}
	for _, n := range h.Nozzles {
		ns := NozzleState{ID: n.ID(), Location: n.Location()}
		if t := n.NozzleTip(); t != nil {
			ns.NozzleTip = t.ID
		}
		if p := n.Part(); p != nil {
			ns.Part = p.ID
		}
		res.Nozzles = append(res.Nozzles, ns)
	}
	return res
}

// Close disconnects every client.
func (b *Broker) Close() {
	b.srv.Shutdown()
}
