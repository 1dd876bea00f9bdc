package proto

// ErrorCode is the protocol-level failure taxonomy of spec.md §7.1,
// carried in a response's error_code field. The engine never logs these;
// they are the host's problem to interpret (spec.md §4.3.5).
type ErrorCode uint8

const (
	NoError ErrorCode = iota
	InvalidConfigTag
	ConfigTagNotSet
	ConfigProtected
	FileNotFound
	FileAlreadyExists
	FileIncompatible
	InvalidParameter
	InvalidFwImageType
	ImageCrcMismatch
	DataOversize
	BridgingDisabled
	Unknown
)

func (c ErrorCode) String() string {
	switch c {
	case NoError:
		return "NoError"
	case InvalidConfigTag:
		return "InvalidConfigTag"
	case ConfigTagNotSet:
		return "ConfigTagNotSet"
	case ConfigProtected:
		return "ConfigProtected"
	case FileNotFound:
		return "FileNotFound"
	case FileAlreadyExists:
		return "FileAlreadyExists"
	case FileIncompatible:
		return "FileIncompatible"
	case InvalidParameter:
		return "InvalidParameter"
	case InvalidFwImageType:
		return "InvalidFwImageType"
	case ImageCrcMismatch:
		return "ImageCrcMismatch"
	case DataOversize:
		return "DataOversize"
	case BridgingDisabled:
		return "BridgingDisabled"
	default:
		return "Unknown"
	}
}

// Fault is the engine-exception taxonomy of spec.md §7.2: caught at the
// iteration boundary; the only one Iterate returns to its caller is
// FaultTxBufferFull, as back-pressure. It
// mirrors the teacher's menderError in shape (a Cause()-able sentinel)
// but deliberately carries no fatal/transient split of its own — every
// Fault here is by definition non-fatal, since spec.md reserves "fatal"
// for a different taxonomy entirely (state-entry failures, §7.3),
// handled by the sm package instead.
type Fault string

const (
	FaultReqWrongSize            Fault = "request wrong size"
	FaultRespTxPending           Fault = "response tx still pending"
	FaultTxBufferFull            Fault = "tx buffer full"
	FaultTxBusy                  Fault = "tx busy"
	FaultRxBufferFull            Fault = "rx buffer full"
	FaultPacketWrongSize         Fault = "packet wrong size"
	FaultGpsSendError            Fault = "gps send error"
	FaultSpiError                Fault = "spi error"
	FaultLogBufferFull           Fault = "log buffer full"
	FaultBadSysConfigErrorCond   Fault = "bad system configuration error condition"
	FaultFsError                 Fault = "file system error"
)

func (f Fault) Error() string { return string(f) }

func (f Fault) Is(target error) bool {
	t, ok := target.(Fault)
	return ok && t == f
}
