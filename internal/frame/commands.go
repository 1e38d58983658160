package frame

// Command bytes are wire-defined and must be reproduced bit-exact;
// names describe purpose, not source-language identifiers.
const (
	CmdDiscoveryWake      byte = 0x28 // C -> broadcast: wake/discovery
	CmdDiscoveryAnswer    byte = 0x29 // P -> C: discovery response
	CmdLegacyPairingBcast byte = 0x2A // C -> broadcast: legacy pairing broadcast, dialect B
	CmdAliveCheckRequest  byte = 0x2C // C -> P
	CmdAliveCheckAnswer   byte = 0x2D // P -> C
	CmdLearningMode       byte = 0x2E // C -> P
	CmdAskChallenge       byte = 0x31 // C -> P: key-push variant
	CmdKeyTransfer        byte = 0x32 // C -> P: encrypted key transfer
	CmdKeyTransferAck     byte = 0x33 // P -> C
	CmdPriorityAddrReq    byte = 0x36 // C -> P, dialect B
	CmdPriorityAddrAns    byte = 0x37 // P -> C, dialect B
	CmdChallenge          byte = 0x3C // C <-> P
	CmdChallengeResponse  byte = 0x3D // C <-> P: mac2W
	CmdPairingConfirm     byte = 0x2F // P -> C: status 0x02 = success
	CmdNameRequest        byte = 0x50 // C -> P
	CmdNameAnswer         byte = 0x51 // P -> C
	CmdGeneralInfo1Req    byte = 0x54 // C -> P
	CmdGeneralInfo1Ans    byte = 0x55 // P -> C
	CmdGeneralInfo2Req    byte = 0x56 // C -> P
	CmdGeneralInfo2Ans    byte = 0x57 // P -> C
	CmdErrorStatus        byte = 0xFE // P -> C

	CmdPlugControl  byte = 0x00 // C -> P: ON/OFF per payload
	CmdStatusQuery  byte = 0x03 // C -> P
	CmdStatusAnswer byte = 0x04 // P -> C
)

// Error-status payload codes carried by CmdErrorStatus.
const (
	StatusPeripheralNotReady byte = 0x08
	StatusAuthRejected       byte = 0x76
)

// PairingConfirmStatusOK is the CmdPairingConfirm payload byte
// denoting success.
const PairingConfirmStatusOK byte = 0x02
