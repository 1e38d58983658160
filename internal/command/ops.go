package command

import "github.com/kfroeschl/iohomecontrol-ai/internal/frame"

// Payload templates for the high-level plug and status operations.
// The ON/OFF main-parameter byte mapping is retained exactly as
// observed in captured traffic, not as the "natural" reading: treat
// these as opaque wire constants rather than rationalize them.
var (
	plugOnPayload  = []byte{0x01, 0xe7, 0x00, 0x00, 0x00, 0x00}
	plugOffPayload = []byte{0x01, 0xe7, 0xc8, 0x00, 0x00, 0x00}
	statusPayload  = []byte{0x03, 0x00, 0x00}
)

// PlugOn turns a paired plug actuator on.
func (g *Gateway) PlugOn(addr frame.Address, onResult func(error)) error {
	return g.Send(addr, frame.CmdPlugControl, plugOnPayload, onResult)
}

// PlugOff turns a paired plug actuator off.
func (g *Gateway) PlugOff(addr frame.Address, onResult func(error)) error {
	return g.Send(addr, frame.CmdPlugControl, plugOffPayload, onResult)
}

// StatusQuery asks a paired device to report its current status.
func (g *Gateway) StatusQuery(addr frame.Address, onResult func(error)) error {
	return g.Send(addr, frame.CmdStatusQuery, statusPayload, onResult)
}
