package busclient

// CAN header layout (29-bit extended identifier):
//
//	bit 28       always 1 on the wire
//	bit 27       1 = OpenLCB message, 0 = CAN link control
//	bits 24..26  frame type (1 = global/addressed MTI)
//	bits 12..23  MTI for OpenLCB frames, low bits of the control field
//	             for link control frames
//	bits 0..11   source alias
const (
	frameBitReserved = 0x10000000
	frameBitOpenLCB  = 0x08000000
	frameTypeGlobal  = 0x01000000

	headerOpenLCB = frameBitReserved | frameBitOpenLCB | frameTypeGlobal
)

// Message type indicators for the global messages the panel uses.
const (
	mtiInitComplete       = 0x100
	mtiVerifyNodeIDGlobal = 0x490
	mtiVerifiedNodeID     = 0x170

	mtiConsumerIdentify        = 0x8F4
	mtiConsumerIdentifiedValid = 0x4C4
	mtiConsumerIdentifiedInval = 0x4C5
	mtiConsumerIdentifiedUnkn  = 0x4C7

	mtiProducerIdentify        = 0x914
	mtiProducerIdentifiedValid = 0x544
	mtiProducerIdentifiedInval = 0x545
	mtiProducerIdentifiedUnkn  = 0x547

	mtiIdentifyEventsGlobal = 0x970
	mtiEventReport          = 0x5B4
)

// Link control frame variable fields (15-bit, bits 12..26). The CID
// frames carry 12 bits of the node ID in their low bits.
const (
	controlRID = 0x0700
	controlAMD = 0x0701
	controlAME = 0x0702
	controlAMR = 0x0703
)

// openLCBHeader builds the CAN header for a global OpenLCB message.
func openLCBHeader(mti uint16, alias uint16) uint32 {
	return headerOpenLCB | uint32(mti&0xFFF)<<12 | uint32(alias&0xFFF)
}

// controlHeader builds the CAN header for a link control frame.
func controlHeader(field uint32, alias uint16) uint32 {
	return frameBitReserved | (field&0x7FFF)<<12 | uint32(alias&0xFFF)
}

// cidHeader builds the header for check-ID frame n (1..4). Frame n
// carries bits (48 - 12n)..(59 - 12n) of the node ID in the low 12
// bits of the variable field, with 8-n in the top 3 bits.
func cidHeader(n int, nodeID uint64, alias uint16) uint32 {
	chunk := uint32(nodeID>>(48-12*n)) & 0xFFF
	field := uint32(8-n)<<12 | chunk
	return controlHeader(field, alias)
}
