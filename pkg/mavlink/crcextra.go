package mavlink

// Per-message crc extra constants. The extra byte is folded into the
// checksum seed but never transmitted.
//
// The table is keyed by wire version as well as message id: the v2
// definitions of the mission family fold the mission-type selector into
// the definition hash, so their constants differ from the legacy v1 ones.
// Messages absent from crcExtraV2 share the v1 constant.

var crcExtraV1 = map[uint32]byte{
	MsgIDHeartbeat:          50,
	MsgIDSysStatus:          124,
	MsgIDParamRequestRead:   214,
	MsgIDParamRequestList:   159,
	MsgIDParamValue:         220,
	MsgIDParamSet:           168,
	MsgIDGPSRawInt:          24,
	MsgIDAttitude:           39,
	MsgIDGlobalPositionInt:  104,
	MsgIDMissionItem:        254,
	MsgIDMissionRequest:     230,
	MsgIDMissionSetCurrent:  28,
	MsgIDMissionCurrent:     28,
	MsgIDMissionRequestList: 132,
	MsgIDMissionCount:       221,
	MsgIDMissionClearAll:    232,
	MsgIDMissionItemReached: 11,
	MsgIDMissionAck:         153,
	MsgIDMissionRequestInt:  196,
	MsgIDMissionItemInt:     38,
	MsgIDVFRHUD:             20,
	MsgIDCommandLong:        152,
	MsgIDCommandAck:         143,
	MsgIDRadioStatus:        185,
	MsgIDBatteryStatus:      154,
	MsgIDAutopilotVersion:   178,
	MsgIDStatustext:         83,
}

var crcExtraV2 = map[uint32]byte{
	MsgIDMissionItem:        244,
	MsgIDMissionRequest:     217,
	MsgIDMissionRequestList: 92,
	MsgIDMissionCount:       213,
	MsgIDMissionClearAll:    47,
	MsgIDMissionAck:         84,
	MsgIDMissionRequestInt:  141,
	MsgIDMissionItemInt:     26,
}

// crcExtra returns the checksum seed byte for a message id at the given
// wire version. ok is false for messages outside the supported catalog;
// such frames cannot be validated and are dropped by the scanner.
func crcExtra(msgID uint32, version int) (byte, bool) {
	if version == 2 {
		if x, ok := crcExtraV2[msgID]; ok {
			return x, true
		}
	}
	x, ok := crcExtraV1[msgID]
	return x, ok
}

// Maximum (untrimmed) payload lengths per message id. The v2 mission
// family carries one extra byte for the mission-type selector.
var payloadLenV1 = map[uint32]int{
	MsgIDHeartbeat:          9,
	MsgIDSysStatus:          31,
	MsgIDParamRequestRead:   20,
	MsgIDParamRequestList:   2,
	MsgIDParamValue:         25,
	MsgIDParamSet:           23,
	MsgIDGPSRawInt:          30,
	MsgIDAttitude:           28,
	MsgIDGlobalPositionInt:  28,
	MsgIDMissionItem:        37,
	MsgIDMissionRequest:     4,
	MsgIDMissionSetCurrent:  4,
	MsgIDMissionCurrent:     2,
	MsgIDMissionRequestList: 2,
	MsgIDMissionCount:       4,
	MsgIDMissionClearAll:    2,
	MsgIDMissionItemReached: 2,
	MsgIDMissionAck:         3,
	MsgIDMissionRequestInt:  4,
	MsgIDMissionItemInt:     37,
	MsgIDVFRHUD:             20,
	MsgIDCommandLong:        33,
	MsgIDCommandAck:         3,
	MsgIDRadioStatus:        9,
	MsgIDBatteryStatus:      36,
	MsgIDAutopilotVersion:   60,
	MsgIDStatustext:         51,
}

var payloadLenV2 = map[uint32]int{
	MsgIDMissionItem:        38,
	MsgIDMissionRequest:     5,
	MsgIDMissionRequestList: 3,
	MsgIDMissionCount:       5,
	MsgIDMissionClearAll:    3,
	MsgIDMissionAck:         4,
	MsgIDMissionRequestInt:  5,
	MsgIDMissionItemInt:     38,
}

// PayloadLen returns the full (untrimmed) payload length for a message id
// at the given wire version.
func PayloadLen(msgID uint32, version int) (int, bool) {
	if version == 2 {
		if n, ok := payloadLenV2[msgID]; ok {
			return n, true
		}
	}
	n, ok := payloadLenV1[msgID]
	return n, ok
}
