package main

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/mendersoftware/progressbar"
	"github.com/urfave/cli/v2"

	"github.com/seatag/firmware/proto"
	"github.com/seatag/firmware/senslog"
)

// logRow flattens senslog.Entry for CSV export: gocsv needs a single
// struct shape per row, so every tag's fields live side by side and a
// row leaves the fields it doesn't use at their zero value.
type logRow struct {
	Tag          string `csv:"tag"`
	Time         string `csv:"time"`
	LatE7        int32  `csv:"lat_e7"`
	LonE7        int32  `csv:"lon_e7"`
	FixValid     uint8  `csv:"fix_valid"`
	MillibarE2   int32  `csv:"millibar_e2"`
	AxlX         int16  `csv:"axl_x"`
	AxlY         int16  `csv:"axl_y"`
	AxlZ         int16  `csv:"axl_z"`
	Millivolts   uint16 `csv:"millivolts"`
	SwitchClosed uint8  `csv:"switch_closed"`
}

func tagName(tag senslog.Tag) string {
	switch tag {
	case senslog.TagGPSPosition:
		return "gps_position"
	case senslog.TagPressure:
		return "pressure"
	case senslog.TagAxl:
		return "axl"
	case senslog.TagBattery:
		return "battery"
	case senslog.TagSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

func toRow(e senslog.Entry) logRow {
	row := logRow{Tag: tagName(e.Tag)}
	if !e.Time.IsZero() {
		row.Time = e.Time.Format("2006-01-02T15:04:05Z07:00")
	}
	switch {
	case e.GPS != nil:
		row.LatE7, row.LonE7, row.FixValid = e.GPS.LatE7, e.GPS.LonE7, e.GPS.FixValid
	case e.Pressure != nil:
		row.MillibarE2 = e.Pressure.MillibarE2
	case e.Axl != nil:
		row.AxlX, row.AxlY, row.AxlZ = e.Axl.X, e.Axl.Y, e.Axl.Z
	case e.Battery != nil:
		row.Millivolts = e.Battery.Millivolts
	case e.Switch != nil:
		row.SwitchClosed = e.Switch.Closed
	}
	return row
}

func logReadCommand(ctx *cli.Context) error {
	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	start := uint32(ctx.Uint64("start"))
	length := uint32(ctx.Uint64("len"))

	var resp proto.LogReadResp
	req := proto.LogReadReq{Start: start, Len: length}
	if err := c.call(proto.CmdLogRead, &req, &resp); err != nil {
		return err
	}
	if resp.Error != proto.NoError {
		return fmt.Errorf("device: %s", resp.Error)
	}

	bar := progressbar.New(int64(resp.Len))
	stream := make([]byte, 0, resp.Len)
	for len(stream) < int(resp.Len) {
		chunk, err := c.recvRaw()
		if err != nil {
			return err
		}
		stream = append(stream, chunk...)
		bar.Tick(int64(len(chunk)))
	}
	bar.Finish()

	entries, err := senslog.Decode(stream)
	if err != nil {
		return fmt.Errorf("decoding downloaded log: %w", err)
	}

	if !ctx.Bool("csv") {
		for _, e := range entries {
			fmt.Printf("%+v\n", toRow(e))
		}
		return nil
	}

	rows := make([]logRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, toRow(e))
	}

	out := os.Stdout
	if path := ctx.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return gocsv.Marshal(rows, out)
}
