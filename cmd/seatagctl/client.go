package main

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/seatag/firmware/conf"
	"github.com/seatag/firmware/proto"
)

// client is a thin host-side stand-in for the protocol engine: it packs
// and unpacks the same spec.md §6.2 wire structures proto packs on the
// device, but over a plain websocket connection rather than a ring
// buffer, since this process has no Transport of its own to feed.
type client struct {
	conn *websocket.Conn
}

func dialClient(addr string) (*client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "seatagctl: dialing device")
	}
	return &client{conn: conn}, nil
}

func (c *client) Close() error { return c.conn.Close() }

// call sends a command packet (header plus an optional fixed request
// payload) and decodes the single reply packet that follows into resp.
// Download commands and FwSendImage answer with a header packet first,
// so call fits them. An accepted CfgWrite, GpsWrite or BleWrite sends no
// reply until its stream ends; those need sendCommand, sendRaw and recv.
func (c *client) call(cmd proto.Cmd, req, resp interface{}) error {
	if err := c.sendCommand(cmd, req); err != nil {
		return err
	}
	return c.recv(resp)
}

// sendCommand writes a header (plus optional request payload) with no
// reply expected yet — used to open a bulk upload/download sub-state.
func (c *client) sendCommand(cmd proto.Cmd, req interface{}) error {
	hdr, err := restruct.Pack(binary.LittleEndian, &proto.Header{Sync: conf.SyncWord, Cmd: cmd})
	if err != nil {
		return err
	}
	buf := hdr
	if req != nil {
		payload, err := restruct.Pack(binary.LittleEndian, req)
		if err != nil {
			return err
		}
		buf = append(buf, payload...)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
		return errors.Wrap(err, "seatagctl: sending command")
	}
	return nil
}

// recv reads one framed reply (header + fixed payload) and unpacks its
// payload into resp. Pass a nil resp for a response this caller doesn't
// need to inspect.
func (c *client) recv(resp interface{}) error {
	data, err := c.recvRaw()
	if err != nil {
		return err
	}
	if len(data) < proto.HeaderSize {
		return errors.New("seatagctl: short response from device")
	}
	if resp == nil {
		return nil
	}
	return restruct.Unpack(data[proto.HeaderSize:], binary.LittleEndian, resp)
}

// recvRaw reads one websocket message verbatim — either a framed reply
// or a headerless bulk-transfer chunk (spec.md §4.3.1, §4.3.3).
func (c *client) recvRaw() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, errors.Wrap(err, "seatagctl: reading from device")
	}
	return data, nil
}

// sendRaw writes one headerless bulk-transfer chunk.
func (c *client) sendRaw(p []byte) error {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return errors.Wrap(err, "seatagctl: writing to device")
	}
	return nil
}

// recvExactly accumulates raw chunks until total bytes have arrived,
// mirroring how the device streams a download in packetLen-sized
// pieces (spec.md §4.3.3) rather than one message.
func (c *client) recvExactly(total int) ([]byte, error) {
	out := make([]byte, 0, total)
	for len(out) < total {
		chunk, err := c.recvRaw()
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}
