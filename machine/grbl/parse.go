package grbl

import (
	"strconv"
	"strings"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/errors"
)

// Status is a grbl status report.
type Status struct {
	// State is Idle, Run, Hold, Alarm, Home and so on.
	State string

	// MPos is the machine position, WCO the work coordinate offset.
	MPos coord.Point
	WCO  coord.Point
}

// WPos is the work position.
func (s Status) WPos() coord.Point { return s.MPos.Sub(s.WCO) }

func parseCoords(data string) (p coord.Point, err error) {
	parts := strings.Split(data, ",")
	if len(parts) < 3 {
		return p, errors.Newf("invalid number of elements: %s", data)
	}
	p.X, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return p, err
	}
	p.Y, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return p, err
	}
	p.Z, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return p, err
	}
	return p, nil
}

// parseStatus updates stat from a report like <Idle|MPos:1,2,3|FS:0,0>.
func parseStatus(stat Status, data string) (*Status, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "<")
	data = strings.TrimSuffix(data, ">")
	parts := strings.Split(data, "|")
	stat.State = strings.SplitN(parts[0], ":", 2)[0]
	var err error
	for _, s := range parts[1:] {
		sParts := strings.SplitN(s, ":", 2)
		if len(sParts) != 2 {
			continue
		}
		switch sParts[0] {
		case "MPos":
			stat.MPos, err = parseCoords(sParts[1])
		case "WCO":
			stat.WCO, err = parseCoords(sParts[1])
		case "WPos":
			var w coord.Point
			w, err = parseCoords(sParts[1])
			stat.MPos = w.Add(stat.WCO)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", sParts[0])
		}
	}
	return &stat, nil
}
