package main

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/seatag/firmware/cfgstore"
	"github.com/seatag/firmware/proto"
)

func parseTag(s string) (cfgstore.Tag, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid tag %q: %w", s, err)
	}
	return cfgstore.Tag(v), nil
}

func encodeValue(width int, v uint64) []byte {
	buf := make([]byte, width)
	for i := 0; i < width; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
	return buf
}

func decodeValue(buf []byte) uint64 {
	var v uint64
	for i, b := range buf {
		v |= uint64(b) << (8 * uint(i))
	}
	return v
}

func cfgGetCommand(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("usage: seatagctl cfg get TAG")
	}
	tag, err := parseTag(ctx.Args().First())
	if err != nil {
		return err
	}

	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var resp proto.CfgReadOneResp
	req := proto.CfgReadReq{Mode: proto.One, Tag: uint16(tag)}
	if err := c.call(proto.CmdCfgRead, &req, &resp); err != nil {
		return err
	}
	if resp.Error != proto.NoError {
		return fmt.Errorf("device: %s", resp.Error)
	}
	fmt.Printf("tag 0x%04x = 0x%x\n", tag, decodeValue(resp.Value[:resp.Len]))
	return nil
}

func cfgSetCommand(ctx *cli.Context) error {
	if ctx.Args().Len() != 2 {
		return fmt.Errorf("usage: seatagctl cfg set TAG VALUE")
	}
	tag, err := parseTag(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	width, ok := cfgstore.WidthOf(tag)
	if !ok {
		return fmt.Errorf("unknown tag 0x%04x", tag)
	}
	value, err := strconv.ParseUint(ctx.Args().Get(1), 0, 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", ctx.Args().Get(1), err)
	}

	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	pair := make([]byte, 2+width)
	binary.LittleEndian.PutUint16(pair, uint16(tag))
	copy(pair[2:], encodeValue(width, value))

	if err := c.sendCommand(proto.CmdCfgWrite, &proto.CfgWriteReq{Len: uint32(len(pair))}); err != nil {
		return err
	}
	if err := c.sendRaw(pair); err != nil {
		return err
	}
	var resp proto.CfgWriteResp
	if err := c.recv(&resp); err != nil {
		return err
	}
	if resp.Error != proto.NoError {
		return fmt.Errorf("device: %s", resp.Error)
	}
	fmt.Println("ok")
	return nil
}

func cfgDumpCommand(ctx *cli.Context) error {
	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var resp proto.CfgReadResp
	req := proto.CfgReadReq{Mode: proto.All}
	if err := c.call(proto.CmdCfgRead, &req, &resp); err != nil {
		return err
	}
	if resp.Error != proto.NoError {
		return fmt.Errorf("device: %s", resp.Error)
	}

	stream, err := c.recvExactly(int(resp.Len))
	if err != nil {
		return err
	}
	fmt.Printf("%s of configuration\n", humanize.Bytes(uint64(len(stream))))

	pos := 0
	for pos+2 <= len(stream) {
		tag := cfgstore.Tag(binary.LittleEndian.Uint16(stream[pos:]))
		width, ok := cfgstore.WidthOf(tag)
		if !ok || pos+2+width > len(stream) {
			break
		}
		value := decodeValue(stream[pos+2 : pos+2+width])
		fmt.Printf("  0x%04x = 0x%x\n", tag, value)
		pos += 2 + width
	}
	return nil
}

func cfgRestoreCommand(ctx *cli.Context) error {
	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var resp proto.CfgRestoreResp
	if err := c.call(proto.CmdCfgRestore, nil, &resp); err != nil {
		return err
	}
	if resp.Error != proto.NoError {
		return fmt.Errorf("device: %s", resp.Error)
	}
	fmt.Println("ok")
	return nil
}
