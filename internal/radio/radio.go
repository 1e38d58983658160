// Package radio drives the half-duplex sub-GHz transceiver over a
// ZeroMQ boundary to an external radio daemon, the Radio Gateway
// component: RX/TX/PREAMBLE arbitration plus inbound-frame dispatch.
package radio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/kfroeschl/iohomecontrol-ai/internal/frame"
)

// ErrRadioBusy is returned by Send when the gateway is already in TX
// or PREAMBLE; the caller must retry and must not advance any
// protocol state until a later Send succeeds.
var ErrRadioBusy = errors.New("radio: busy")

// Channel is one of the closed set of named radio channels the
// hardware exposes.
type Channel int

const (
	Channel1 Channel = iota
	Channel2
)

func (c Channel) String() string {
	switch c {
	case Channel1:
		return "CHANNEL1"
	case Channel2:
		return "CHANNEL2"
	default:
		return "UNKNOWN"
	}
}

// State is one of the gateway's three radio states.
type State int

const (
	RX State = iota
	TX
	Preamble
)

func (s State) String() string {
	switch s {
	case RX:
		return "RX"
	case TX:
		return "TX"
	case Preamble:
		return "PREAMBLE"
	default:
		return "UNKNOWN"
	}
}

// SendOptions enumerate the recognized transmission options.
type SendOptions struct {
	Frequency     Channel
	RepeatTime    time.Duration
	Repeat        int
	Lock          bool
	ShortPreamble bool
	Delayed       time.Duration
}

// Config holds the ZeroMQ endpoints of the external radio daemon.
type Config struct {
	EventURL   string // SUB socket, inbound frames and status
	CommandURL string // REQ socket, outbound frames
}

// Gateway is the half-duplex radio boundary. A single Gateway serves
// one physical transceiver; callers must not run two in the same
// process against the same daemon.
type Gateway struct {
	config Config

	mu    sync.Mutex
	state State

	cmdSock   zmq4.Socket
	eventSock zmq4.Socket
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool

	onReceive  func(*frame.Frame)
	downlinkID uint32
}

// New constructs a Gateway that is not yet connected.
func New(config Config) *Gateway {
	return &Gateway{config: config, state: RX}
}

// OnReceive registers the callback invoked for every frame decoded
// from the daemon's event stream. Frames that fail to decode (bad CRC
// or malformed payload) are dropped before reaching the callback.
func (g *Gateway) OnReceive(cb func(*frame.Frame)) {
	g.mu.Lock()
	g.onReceive = cb
	g.mu.Unlock()
}

// Start connects to the radio daemon and begins the receive loop.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return fmt.Errorf("radio: already running")
	}
	g.running = true
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.mu.Unlock()

	g.eventSock = zmq4.NewSub(g.ctx)
	if err := g.eventSock.Dial(g.config.EventURL); err != nil {
		return fmt.Errorf("radio: dial event socket: %w", err)
	}
	if err := g.eventSock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		return fmt.Errorf("radio: subscribe: %w", err)
	}

	g.cmdSock = zmq4.NewReq(g.ctx)
	if err := g.cmdSock.Dial(g.config.CommandURL); err != nil {
		g.eventSock.Close()
		return fmt.Errorf("radio: dial command socket: %w", err)
	}

	g.wg.Add(1)
	go g.eventLoop()

	log.Printf("radio gateway started: event=%s cmd=%s", g.config.EventURL, g.config.CommandURL)
	return nil
}

// Stop disconnects from the radio daemon and waits for the receive
// loop to exit.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	g.running = false
	cancel := g.cancel
	g.mu.Unlock()

	cancel()
	g.wg.Wait()

	if g.eventSock != nil {
		g.eventSock.Close()
	}
	if g.cmdSock != nil {
		g.cmdSock.Close()
	}
	return nil
}

// State reports the gateway's current radio state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Send transmits f according to opts. It returns ErrRadioBusy
// immediately, without transmitting, when the gateway is already in
// TX or PREAMBLE and opts.Lock is false. Ownership of f's bytes
// transfers to the gateway for the duration of the call; the caller
// must not mutate f until Send returns.
func (g *Gateway) Send(f *frame.Frame, opts SendOptions) error {
	g.mu.Lock()
	if !opts.Lock && (g.state == TX || g.state == Preamble) {
		g.mu.Unlock()
		return ErrRadioBusy
	}
	g.state = Preamble
	g.mu.Unlock()

	if opts.Delayed > 0 {
		time.Sleep(opts.Delayed)
	}

	g.mu.Lock()
	g.state = TX
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.state = RX
		g.mu.Unlock()
	}()

	data, err := f.Encode()
	if err != nil {
		return fmt.Errorf("radio: encode frame: %w", err)
	}

	repeat := opts.Repeat
	if repeat < 0 {
		repeat = 0
	}
	for attempt := 0; attempt <= repeat; attempt++ {
		if attempt > 0 && opts.RepeatTime > 0 {
			time.Sleep(opts.RepeatTime)
		}
		if err := g.transmit(data, opts); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) transmit(payload []byte, opts SendOptions) error {
	g.mu.Lock()
	g.downlinkID++
	dlID := g.downlinkID
	g.mu.Unlock()

	cmd := marshalDownlink(dlID, opts.Frequency, opts.ShortPreamble, payload)

	g.mu.Lock()
	sock := g.cmdSock
	g.mu.Unlock()
	if sock == nil {
		return fmt.Errorf("radio: not started")
	}

	if err := sock.Send(zmq4.NewMsgFrom([]byte("down"), cmd)); err != nil {
		return fmt.Errorf("radio: send downlink: %w", err)
	}
	ack, err := sock.Recv()
	if err != nil {
		return fmt.Errorf("radio: receive tx ack: %w", err)
	}
	if len(ack.Frames) > 0 && !ackIsOK(ack.Frames[0]) {
		return fmt.Errorf("radio: transmit rejected by daemon")
	}
	return nil
}

func (g *Gateway) eventLoop() {
	defer g.wg.Done()
	for {
		select {
		case <-g.ctx.Done():
			return
		default:
		}

		msg, err := g.eventSock.Recv()
		if err != nil {
			if g.ctx.Err() != nil {
				return
			}
			continue
		}
		if len(msg.Frames) < 2 {
			continue
		}
		if string(msg.Frames[0]) != "up" {
			continue
		}

		f, err := frame.Decode(msg.Frames[1])
		if err != nil {
			// BadCrc/MalformedPayload/ErrTooShort: frame discarded
			// silently.
			continue
		}

		g.mu.Lock()
		cb := g.onReceive
		g.mu.Unlock()
		if cb != nil {
			cb(f)
		}
	}
}
