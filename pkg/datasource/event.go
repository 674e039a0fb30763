package datasource

import (
	"maps"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/randalmurphal/datasource/pkg/datasource/cursor"
	"github.com/randalmurphal/datasource/pkg/datasource/record"
	"github.com/randalmurphal/datasource/pkg/datasource/selector"
	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

const (
	moduleEvr = "EvrData"
	moduleL3T = "L3T"
)

// presentPrefix names event-code presence in selection expressions, as in
// "Evr.present_40".
const presentPrefix = "present_"

// Event is the event-level view of the cursor's current event. It is valid
// until the next Next or Seek.
type Event struct {
	ev    store.Event
	cache *cursor.Cache
	pos   cursor.Position
	flags map[string][]int

	codes []int
}

func newEvent(ev store.Event, c cursor.Cursor, flags map[string][]int) *Event {
	return &Event{ev: ev, cache: c.Cache(), pos: c.Position(), flags: flags}
}

// Raw returns the underlying store event.
func (e *Event) Raw() store.Event { return e.ev }

// Position returns the cursor coordinates of the event.
func (e *Event) Position() cursor.Position { return e.pos }

// EventID returns the event's time: seconds, nanoseconds and fiducial.
func (e *Event) EventID() store.TimeTuple { return e.ev.Time() }

// Sources returns the sources present in the event, sorted.
func (e *Event) Sources() []string {
	return e.cache.Keys().Sources()
}

// Has reports whether a source is present in the event.
func (e *Event) Has(source string) bool {
	return e.cache.Has(source)
}

// EventCodes returns the event codes received by the EVR, in FIFO order.
// Events without EVR data have none.
func (e *Event) EventCodes() []int {
	if e.codes != nil {
		return e.codes
	}
	e.codes = []int{}
	for _, k := range e.cache.Keys().Module(moduleEvr) {
		if !strings.HasPrefix(k.Type.Name, "Data") {
			continue
		}
		sv, ok := e.cache.Source(k.Source)
		if !ok {
			continue
		}
		v, err := sv.View(k)
		if err != nil {
			continue
		}
		fifo, ok := v.Value("fifoEvents").(*record.ListView)
		if !ok {
			continue
		}
		for _, item := range fifo.Items() {
			if code, ok := record.AsInt(item.Value("eventCode")); ok {
				e.codes = append(e.codes, code)
			}
		}
	}
	return e.codes
}

// Present reports whether every code is satisfied. A positive code must be
// among the event codes; a negative code must be absent.
func (e *Event) Present(codes ...int) bool {
	received := e.EventCodes()
	for _, code := range codes {
		if code < 0 {
			if slices.Contains(received, -code) {
				return false
			}
			continue
		}
		if !slices.Contains(received, code) {
			return false
		}
	}
	return true
}

// CodeFlags evaluates each named code list with Present.
func (e *Event) CodeFlags(flags map[string][]int) map[string]bool {
	out := make(map[string]bool, len(flags))
	for name, codes := range flags {
		out[name] = e.Present(codes...)
	}
	return out
}

// Flags evaluates the DataSource's configured code flags.
func (e *Event) Flags() map[string]bool {
	return e.CodeFlags(e.flags)
}

// L3T returns the level 3 trigger decision. ok is false when the event
// carries no L3T record.
func (e *Event) L3T() (accept, ok bool) {
	for _, k := range e.cache.Keys().Module(moduleL3T) {
		sv, found := e.cache.Source(k.Source)
		if !found {
			continue
		}
		v, err := sv.View(k)
		if err != nil || !v.Has("accept") {
			continue
		}
		return selector.IsTruthy(v.Value("accept")), true
	}
	return false, false
}

// EventAttr serves the event-level attributes every detector falls back
// to, plus the configured code flags by name.
func (e *Event) EventAttr(name string) (any, bool) {
	switch name {
	case "EventId":
		return e.EventID(), true
	case "Evr":
		return e.EventCodes(), true
	case "L3T":
		accept, ok := e.L3T()
		return accept, ok
	case "timestamp":
		return e.EventID().Time(), true
	}
	if codes, ok := e.flags[name]; ok {
		return e.Present(codes...), true
	}
	return nil, false
}

// evrAttr resolves "present_N" on the Evr pseudo-alias.
func (e *Event) evrAttr(field string) (any, bool) {
	if field == "codes" || field == "eventCodes" {
		return e.EventCodes(), true
	}
	n, ok := strings.CutPrefix(field, presentPrefix)
	if !ok {
		return nil, false
	}
	code, err := strconv.Atoi(n)
	if err != nil {
		return nil, false
	}
	return e.Present(code), true
}

// flagNames returns the configured flag names, sorted.
func (e *Event) flagNames() []string {
	names := slices.Collect(maps.Keys(e.flags))
	sort.Strings(names)
	return names
}

// String renders the event time and its flags.
func (e *Event) String() string {
	var b strings.Builder
	b.WriteString(e.EventID().String())
	flags := e.Flags()
	for _, name := range e.flagNames() {
		if flags[name] {
			b.WriteString(" " + name)
		}
	}
	return b.String()
}
