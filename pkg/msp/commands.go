package msp

// MSP command ids (the subset the link engine uses).
const (
	CmdAPIVersion byte = 1
	CmdFCVariant  byte = 2
	CmdFCVersion  byte = 3
	CmdBoardInfo  byte = 4
	CmdBuildInfo  byte = 5
	CmdName       byte = 10
	CmdIdent      byte = 100
	CmdStatus     byte = 101
	CmdRawGPS     byte = 106
	CmdAttitude   byte = 108
	CmdAnalog     byte = 110
	CmdReboot     byte = 68
)

// ProbeCommands is the "who are you" query set sent when heartbeat
// detection times out. Any valid response identifies an MSP device.
var ProbeCommands = []byte{CmdAPIVersion, CmdFCVariant, CmdIdent}
