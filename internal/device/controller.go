package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/solatis/microproto/internal/codec"
	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/system"
	"github.com/solatis/microproto/internal/types"
)

// ErrUnknownCommand is returned for control lines that are not understood.
var ErrUnknownCommand = errors.New("unknown command")

// EventKind is the verb of a control channel line.
type EventKind string

const (
	EventSelect    EventKind = "select"
	EventAdd       EventKind = "add"
	EventDelete    EventKind = "delete"
	EventLimitLEDs EventKind = "limitLeds"
)

// Event is one line of the control channel, e.g. "select rainbow".
type Event struct {
	Kind EventKind
	Arg  string
}

func (e Event) String() string { return string(e.Kind) + " " + e.Arg }

// ParseCommand parses an inbound control line. Only select and limitLeds
// are accepted from clients.
func ParseCommand(line string) (Event, error) {
	verb, arg, ok := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	if !ok || arg == "" {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownCommand, line)
	}
	switch EventKind(verb) {
	case EventSelect:
		return Event{Kind: EventSelect, Arg: arg}, nil
	case EventLimitLEDs:
		if _, err := strconv.ParseUint(arg, 10, 16); err != nil {
			return Event{}, fmt.Errorf("limitLeds %q: %w", arg, types.ErrCoercionFailed)
		}
		return Event{Kind: EventLimitLEDs, Arg: arg}, nil
	}
	return Event{}, fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
}

// ProgramInfo describes one stored program.
type ProgramInfo struct {
	ID      uint32 `json:"id"`
	Name    string `json:"name"`
	Version uint32 `json:"version"`
	Size    uint32 `json:"size"`
}

// Controller exposes the program catalogue and the control channel of a
// device. Its methods serialise through System.Exec; events are delivered
// synchronously from inside it, so subscribers must not block.
type Controller struct {
	sys   *system.System
	props *Props
	log   zerolog.Logger

	// names caches program names by id; touched only inside Exec.
	names map[uint32]string

	mu      sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// NewController wires the change callbacks of props. The properties must be
// registered with sys.
func NewController(sys *system.System, props *Props, log zerolog.Logger) *Controller {
	c := &Controller{
		sys:   sys,
		props: props,
		log:   log,
		names: make(map[uint32]string),
		subs:  make(map[int]func(Event)),
	}
	props.Program.OnChange(func(_, name string) {
		if name != "" {
			c.emit(Event{Kind: EventSelect, Arg: name})
		}
	})
	props.LEDLimit.OnChange(func(_, n uint16) {
		c.emit(Event{Kind: EventLimitLEDs, Arg: strconv.Itoa(int(n))})
	})
	props.Programs.OnChange(c.programsChanged)
	c.reindex()
	return c
}

// Props returns the device properties.
func (c *Controller) Props() *Props { return c.props }

// Subscribe registers fn for control channel events and returns a function
// that removes it.
func (c *Controller) Subscribe(fn func(Event)) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Controller) emit(e Event) {
	c.mu.Lock()
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	c.log.Debug().Str("event", e.String()).Msg("control event")
	for _, fn := range subs {
		fn(e)
	}
}

func (c *Controller) programsChanged(ev property.ResourceEvent) {
	switch ev.Op {
	case property.ResourceCreated:
		h, _ := c.props.Programs.Header(ev.ID)
		name := headerName(h.Data)
		c.names[ev.ID] = name
		c.emit(Event{Kind: EventAdd, Arg: name})
	case property.ResourceUpdated:
		h, _ := c.props.Programs.Header(ev.ID)
		name := headerName(h.Data)
		if old := c.names[ev.ID]; old != name {
			c.names[ev.ID] = name
			c.emit(Event{Kind: EventDelete, Arg: old})
			c.emit(Event{Kind: EventAdd, Arg: name})
		}
	case property.ResourceDeleted:
		name := c.names[ev.ID]
		delete(c.names, ev.ID)
		c.emit(Event{Kind: EventDelete, Arg: name})
	case property.ResourceReloaded:
		c.reindex()
	}
}

func (c *Controller) reindex() {
	clear(c.names)
	c.props.Programs.ForEach(func(h property.ResourceHeader) bool {
		c.names[h.ID] = headerName(h.Data)
		return true
	})
}

func headerName(data []byte) string {
	return string(bytes.TrimRight(data, "\x00"))
}

// ValidateProgramName accepts 1 to ProgramNameSize printable ASCII bytes
// without spaces.
func ValidateProgramName(name string) error {
	if name == "" || len(name) > ProgramNameSize {
		return fmt.Errorf("%w: %q", types.ErrInvalidName, name)
	}
	for i := 0; i < len(name); i++ {
		if name[i] <= ' ' || name[i] > '~' {
			return fmt.Errorf("%w: %q", types.ErrInvalidName, name)
		}
	}
	return nil
}

// find runs inside Exec.
func (c *Controller) find(name string) (uint32, bool) {
	for id, n := range c.names {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// Programs lists the catalogue in id order.
func (c *Controller) Programs(ctx context.Context) ([]ProgramInfo, error) {
	var out []ProgramInfo
	err := c.sys.Exec(ctx, func() error {
		c.props.Programs.ForEach(func(h property.ResourceHeader) bool {
			out = append(out, ProgramInfo{ID: h.ID, Name: headerName(h.Data), Version: h.Version, Size: h.BodySize})
			return true
		})
		return nil
	})
	return out, err
}

// ReadProgram returns the body of the named program.
func (c *Controller) ReadProgram(ctx context.Context, name string) ([]byte, error) {
	var body []byte
	err := c.sys.Exec(ctx, func() error {
		id, ok := c.find(name)
		if !ok {
			return fmt.Errorf("program %q: %w", name, types.ErrNotFound)
		}
		var err error
		body, err = c.props.Programs.ReadBody(ctx, id)
		return err
	})
	return body, err
}

// UploadProgram stores body under name, replacing an existing program of the
// same name.
func (c *Controller) UploadProgram(ctx context.Context, name string, body []byte) (ProgramInfo, error) {
	if err := ValidateProgramName(name); err != nil {
		return ProgramInfo{}, err
	}
	var info ProgramInfo
	err := c.sys.Exec(ctx, func() error {
		id, ok := c.find(name)
		if ok {
			if err := c.props.Programs.UpdateBody(ctx, id, body); err != nil {
				return err
			}
		} else {
			var err error
			if id, err = c.props.Programs.CreateResource(ctx, []byte(name), body); err != nil {
				return err
			}
		}
		h, _ := c.props.Programs.Header(id)
		info = ProgramInfo{ID: id, Name: name, Version: h.Version, Size: h.BodySize}
		c.persistPrograms(ctx)
		return nil
	})
	return info, err
}

// persistPrograms saves the program table without waiting for the debounce,
// so ids and versions handed out are never reissued after a reset.
func (c *Controller) persistPrograms(ctx context.Context) {
	if err := c.sys.Flush(ctx, c.props.Programs.ID()); err != nil {
		c.log.Warn().Err(err).Msg("program table not saved")
	}
}

// DeleteProgram removes the named program. Deleting the selected program
// clears the selection.
func (c *Controller) DeleteProgram(ctx context.Context, name string) error {
	return c.sys.Exec(ctx, func() error {
		id, ok := c.find(name)
		if !ok {
			return fmt.Errorf("program %q: %w", name, types.ErrNotFound)
		}
		if err := c.props.Programs.DeleteResource(ctx, id); err != nil {
			return err
		}
		c.persistPrograms(ctx)
		if c.props.Program.Get() == name {
			return c.props.Program.Set("")
		}
		return nil
	})
}

// SelectProgram makes the named program current.
func (c *Controller) SelectProgram(ctx context.Context, name string) error {
	return c.sys.Exec(ctx, func() error {
		if _, ok := c.find(name); !ok {
			return fmt.Errorf("program %q: %w", name, types.ErrNotFound)
		}
		if err := c.props.Program.Set(name); err != nil {
			return err
		}
		return c.props.Status.SetByName("ok", uint8(0))
	})
}

// SetLEDLimit limits the number of driven LEDs.
func (c *Controller) SetLEDLimit(ctx context.Context, n int) error {
	return c.sys.Exec(ctx, func() error {
		if n < 1 || n > MaxLEDs {
			return fmt.Errorf("ledLimit %d: %w", n, types.ErrValidation)
		}
		return c.props.LEDLimit.Set(uint16(n))
	})
}

// ReportError publishes a renderer failure through the status property.
func (c *Controller) ReportError(ctx context.Context, code int32) error {
	return c.sys.Exec(ctx, func() error {
		return c.props.Status.SetByName("error", code)
	})
}

// Show is the current selection.
type Show struct {
	Name     string `json:"name"`
	LEDLimit uint16 `json:"ledLimit"`
	Status   any    `json:"status"`
}

// Current returns the selected program and LED limit.
func (c *Controller) Current(ctx context.Context) (Show, error) {
	var s Show
	err := c.sys.Exec(ctx, func() error {
		cur := c.props.Status.Current()
		s = Show{
			Name:     c.props.Program.Get(),
			LEDLimit: c.props.LEDLimit.Get(),
			Status:   map[string]any{cur.Name: codec.ToJSON(cur.Value)},
		}
		return nil
	})
	return s, err
}

// HandleCommand executes an inbound control line.
func (c *Controller) HandleCommand(ctx context.Context, line string) error {
	e, err := ParseCommand(line)
	if err != nil {
		return err
	}
	switch e.Kind {
	case EventSelect:
		return c.SelectProgram(ctx, e.Arg)
	default:
		n, _ := strconv.Atoi(e.Arg)
		return c.SetLEDLimit(ctx, n)
	}
}
