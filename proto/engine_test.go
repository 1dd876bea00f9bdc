package proto_test

import (
	"encoding/binary"
	"hash/crc32"
	"testing"
	"time"

	"github.com/go-restruct/restruct"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatag/firmware/cfgstore"
	"github.com/seatag/firmware/conf"
	"github.com/seatag/firmware/flashfs"
	"github.com/seatag/firmware/flashfs/memdevice"
	"github.com/seatag/firmware/proto"
)

func testEngine(t *testing.T) (*proto.Engine, *flashfs.FS, *cfgstore.Store) {
	t.Helper()
	cfg := conf.Default()
	cfg.SectorSize = 2048
	cfg.NumSectors = 8
	cfg.NumWriteSessions = 8
	cfg.TransportPacketLen = 512
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	require.NoError(t, flashfs.Format(dev, cfg))
	fs, err := flashfs.Mount(dev, cfg)
	require.NoError(t, err)
	store := cfgstore.New()
	eng := proto.New(fs, store, cfg.TransportPacketLen, nil, nil)
	return eng, fs, store
}

func sendRaw(t *testing.T, eng *proto.Engine, data []byte) {
	t.Helper()
	w, err := eng.RX().Reserve()
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, eng.RX().Commit(w))
}

func sendCmd(t *testing.T, eng *proto.Engine, cmd proto.Cmd, payload interface{}) {
	t.Helper()
	hdr, err := restruct.Pack(binary.LittleEndian, &proto.Header{Sync: conf.SyncWord, Cmd: cmd})
	require.NoError(t, err)
	if payload != nil {
		body, err := restruct.Pack(binary.LittleEndian, payload)
		require.NoError(t, err)
		hdr = append(hdr, body...)
	}
	sendRaw(t, eng, hdr)
}

func recvPacket(t *testing.T, eng *proto.Engine) []byte {
	t.Helper()
	got, err := eng.TX().Peek()
	require.NoError(t, err)
	out := append([]byte(nil), got...)
	require.NoError(t, eng.TX().Advance())
	return out
}

func TestStatusRequestMatchesE3(t *testing.T) {
	eng, _, _ := testEngine(t)
	sendCmd(t, eng, proto.CmdStatus, nil)
	require.NoError(t, eng.Iterate(time.Now()))

	pkt := recvPacket(t, eng)
	assert.Equal(t, 17, len(pkt))

	var resp proto.StatusResp
	require.NoError(t, restruct.Unpack(pkt[proto.HeaderSize:], binary.LittleEndian, &resp))
	assert.Equal(t, proto.NoError, resp.Error)
	assert.Equal(t, cfgstore.FormatVersion, resp.CfgFormatVer)
}

func TestLogReadMatchesE4(t *testing.T) {
	eng, fs, _ := testEngine(t)

	h, err := fs.Open(conf.FileLog, flashfs.Create, 0)
	require.NoError(t, err)
	payload := make([]byte, 1500)
	for i := range payload {
		payload[i] = byte((i*7 + 1) % 251)
	}
	_, err = h.Write(payload)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	sendCmd(t, eng, proto.CmdLogRead, &proto.LogReadReq{Start: 0, Len: 1500})
	require.NoError(t, eng.Iterate(time.Now()))

	headerPkt := recvPacket(t, eng)
	var resp proto.LogReadResp
	require.NoError(t, restruct.Unpack(headerPkt[proto.HeaderSize:], binary.LittleEndian, &resp))
	assert.Equal(t, proto.NoError, resp.Error)
	assert.EqualValues(t, 1500, resp.Len)

	var got []byte
	var sizes []int
	for len(got) < 1500 {
		require.NoError(t, eng.Iterate(time.Now()))
		pkt := recvPacket(t, eng)
		sizes = append(sizes, len(pkt))
		got = append(got, pkt...)
	}
	assert.Equal(t, []int{512, 512, 476}, sizes)
	assert.Equal(t, payload, got)
	assert.True(t, eng.Idle())
}

func TestCfgWriteThenCfgReadAllRoundTrips(t *testing.T) {
	eng, _, store := testEngine(t)
	require.NoError(t, store.Set(cfgstore.TagLoggingEnable, []byte{1}))
	require.NoError(t, store.Set(cfgstore.TagBatteryLowThresholdMv, []byte{0x10, 0x0C, 0, 0}))

	sendCmd(t, eng, proto.CmdCfgRead, &proto.CfgReadReq{Mode: proto.All})
	require.NoError(t, eng.Iterate(time.Now()))
	headerPkt := recvPacket(t, eng)
	var resp proto.CfgReadResp
	require.NoError(t, restruct.Unpack(headerPkt[proto.HeaderSize:], binary.LittleEndian, &resp))
	require.Equal(t, proto.NoError, resp.Error)

	var stream []byte
	for len(stream) < int(resp.Len) {
		require.NoError(t, eng.Iterate(time.Now()))
		stream = append(stream, recvPacket(t, eng)...)
	}
	assert.True(t, eng.Idle())

	eng2, _, store2 := testEngine(t)
	sendCmd(t, eng2, proto.CmdCfgWrite, &proto.CfgWriteReq{Len: uint32(len(stream))})
	require.NoError(t, eng2.Iterate(time.Now()))
	assert.False(t, eng2.Idle())

	const chunk = 5
	for i := 0; i < len(stream); i += chunk {
		end := i + chunk
		if end > len(stream) {
			end = len(stream)
		}
		sendRaw(t, eng2, stream[i:end])
		require.NoError(t, eng2.Iterate(time.Now()))
	}
	ackPkt := recvPacket(t, eng2)
	var ack proto.CfgWriteResp
	require.NoError(t, restruct.Unpack(ackPkt[proto.HeaderSize:], binary.LittleEndian, &ack))
	assert.Equal(t, proto.NoError, ack.Error)

	v, err := store2.Get(cfgstore.TagLoggingEnable)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, v)
	v, err = store2.Get(cfgstore.TagBatteryLowThresholdMv)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10, 0x0C, 0, 0}, v)
}

func TestFwSendImageCrcMismatchDeletesImage(t *testing.T) {
	eng, fs, _ := testEngine(t)
	data := []byte("firmware-image-bytes")
	crc := crc32.ChecksumIEEE(data)

	sendCmd(t, eng, proto.CmdFwSendImage, &proto.FwSendImageReq{Kind: proto.ImageSTM32, Len: uint32(len(data)), Crc32: crc})
	require.NoError(t, eng.Iterate(time.Now()))
	ackPkt := recvPacket(t, eng)
	var ack proto.FwSendImageResp
	require.NoError(t, restruct.Unpack(ackPkt[proto.HeaderSize:], binary.LittleEndian, &ack))
	require.Equal(t, proto.NoError, ack.Error)

	corrupted := append([]byte(nil), data...)
	corrupted[0] ^= 0xFF
	sendRaw(t, eng, corrupted)
	require.NoError(t, eng.Iterate(time.Now()))

	cnfPkt := recvPacket(t, eng)
	var cnf proto.FwSendImageCompleteCnf
	require.NoError(t, restruct.Unpack(cnfPkt[proto.HeaderSize:], binary.LittleEndian, &cnf))
	assert.Equal(t, proto.ImageCrcMismatch, cnf.Error)

	_, err := fs.Stat(conf.FileSTM32Image)
	assert.ErrorIs(t, err, flashfs.ErrFileNotFound)
}

func TestFwSendImageCorrectCrcEndsInNoErrorAndKeepsImage(t *testing.T) {
	eng, fs, _ := testEngine(t)
	data := []byte("firmware-image-bytes")
	crc := crc32.ChecksumIEEE(data)

	sendCmd(t, eng, proto.CmdFwSendImage, &proto.FwSendImageReq{Kind: proto.ImageSTM32, Len: uint32(len(data)), Crc32: crc})
	require.NoError(t, eng.Iterate(time.Now()))
	ackPkt := recvPacket(t, eng)
	var ack proto.FwSendImageResp
	require.NoError(t, restruct.Unpack(ackPkt[proto.HeaderSize:], binary.LittleEndian, &ack))
	require.Equal(t, proto.NoError, ack.Error)

	sendRaw(t, eng, data)
	require.NoError(t, eng.Iterate(time.Now()))

	cnfPkt := recvPacket(t, eng)
	var cnf proto.FwSendImageCompleteCnf
	require.NoError(t, restruct.Unpack(cnfPkt[proto.HeaderSize:], binary.LittleEndian, &cnf))
	assert.Equal(t, proto.NoError, cnf.Error)

	stat, err := fs.Stat(conf.FileSTM32Image)
	require.NoError(t, err)
	assert.EqualValues(t, len(data), stat.Size)
}

func TestLogCreateSyncEnablePersistsAsFileFlag(t *testing.T) {
	eng, fs, _ := testEngine(t)
	sendCmd(t, eng, proto.CmdLogCreate, &proto.LogCreateReq{Mode: proto.LogFill, SyncEnable: 1})
	require.NoError(t, eng.Iterate(time.Now()))

	pkt := recvPacket(t, eng)
	var resp proto.LogCreateResp
	require.NoError(t, restruct.Unpack(pkt[proto.HeaderSize:], binary.LittleEndian, &resp))
	require.Equal(t, proto.NoError, resp.Error)

	st, err := fs.Stat(conf.FileLog)
	require.NoError(t, err)
	assert.NotZero(t, st.UserFlags&conf.FlagSyncWrite)
}

func TestResetFlashEraseAllWipesFiles(t *testing.T) {
	eng, fs, _ := testEngine(t)
	h, err := fs.Open(conf.FileLog, flashfs.Create, 0)
	require.NoError(t, err)
	_, err = h.Write([]byte("log data"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	sendCmd(t, eng, proto.CmdReset, &proto.ResetReq{Kind: proto.ResetFlashEraseAll})
	require.NoError(t, eng.Iterate(time.Now()))

	pkt := recvPacket(t, eng)
	var resp proto.ResetResp
	require.NoError(t, restruct.Unpack(pkt[proto.HeaderSize:], binary.LittleEndian, &resp))
	assert.Equal(t, proto.NoError, resp.Error)

	_, err = fs.Stat(conf.FileLog)
	assert.ErrorIs(t, err, flashfs.ErrFileNotFound)
}

func TestInactivityTimeoutReturnsToIdle(t *testing.T) {
	eng, _, _ := testEngine(t)
	sendCmd(t, eng, proto.CmdCfgWrite, &proto.CfgWriteReq{Len: 128})
	require.NoError(t, eng.Iterate(time.Now()))
	assert.False(t, eng.Idle())

	later := time.Now().Add(2100 * time.Millisecond)
	require.NoError(t, eng.Iterate(later))
	assert.True(t, eng.Idle())

	sendCmd(t, eng, proto.CmdStatus, nil)
	require.NoError(t, eng.Iterate(later))
	pkt := recvPacket(t, eng)
	assert.Equal(t, 17, len(pkt))
}
