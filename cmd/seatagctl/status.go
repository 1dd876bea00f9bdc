package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/seatag/firmware/proto"
)

func statusCommand(ctx *cli.Context) error {
	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var status proto.StatusResp
	if err := c.call(proto.CmdStatus, nil, &status); err != nil {
		return err
	}
	if status.Error != proto.NoError {
		return fmt.Errorf("device: %s", status.Error)
	}

	var battery proto.BatteryStatusResp
	if err := c.call(proto.CmdBatteryStatus, nil, &battery); err != nil {
		return err
	}

	fmt.Printf("stm32 firmware:  0x%08x\n", status.StmFwVersion)
	fmt.Printf("ble firmware:    0x%08x\n", status.BleFwVersion)
	fmt.Printf("config format:   %d\n", status.CfgFormatVer)
	if battery.Error == proto.NoError {
		charging := "no"
		if battery.Charging != 0 {
			charging = "yes"
		}
		fmt.Printf("battery:         %d mV (charging: %s)\n", battery.MillivoltsNow, charging)
	}
	return nil
}
