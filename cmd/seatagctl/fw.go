package main

import (
	"fmt"
	"hash/crc32"
	"os"

	"github.com/mendersoftware/progressbar"
	"github.com/urfave/cli/v2"

	"github.com/seatag/firmware/proto"
)

func parseImageKind(s string) (proto.ImageKind, error) {
	switch s {
	case "stm32":
		return proto.ImageSTM32, nil
	case "ble":
		return proto.ImageBLE, nil
	default:
		return 0, fmt.Errorf("unknown image kind %q (want stm32 or ble)", s)
	}
}

func fwSendCommand(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("usage: seatagctl fw send --kind stm32|ble FILE")
	}
	kind, err := parseImageKind(ctx.String("kind"))
	if err != nil {
		return err
	}
	data, err := os.ReadFile(ctx.Args().First())
	if err != nil {
		return err
	}
	crc := crc32.ChecksumIEEE(data)

	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	req := proto.FwSendImageReq{Kind: kind, Len: uint32(len(data)), Crc32: crc}
	var resp proto.FwSendImageResp
	if err := c.call(proto.CmdFwSendImage, &req, &resp); err != nil {
		return err
	}
	if resp.Error != proto.NoError {
		return fmt.Errorf("device: %s", resp.Error)
	}

	const chunkSize = 512
	bar := progressbar.New(int64(len(data)))
	for sent := 0; sent < len(data); {
		end := sent + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := c.sendRaw(data[sent:end]); err != nil {
			return err
		}
		bar.Tick(int64(end - sent))
		sent = end
	}
	bar.Finish()

	var complete proto.FwSendImageCompleteCnf
	if err := c.recv(&complete); err != nil {
		return err
	}
	if complete.Error != proto.NoError {
		return fmt.Errorf("device rejected image: %s", complete.Error)
	}
	fmt.Println("ok")
	return nil
}

func fwApplyCommand(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("usage: seatagctl fw apply stm32|ble")
	}
	kind, err := parseImageKind(ctx.Args().First())
	if err != nil {
		return err
	}

	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var resp proto.FwApplyImageResp
	req := proto.FwApplyImageReq{Kind: kind}
	if err := c.call(proto.CmdFwApplyImage, &req, &resp); err != nil {
		return err
	}
	if resp.Error != proto.NoError {
		return fmt.Errorf("device: %s", resp.Error)
	}
	fmt.Println("ok")
	return nil
}
