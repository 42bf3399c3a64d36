package traci

// Commands.
const (
	cmdGetVersion = 0x00
	cmdSimStep    = 0x02
	cmdClose      = 0x7F

	cmdGetTLVariable       = 0xa2
	cmdGetLaneVariable     = 0xa3
	cmdGetVehicleVariable  = 0xa4
	cmdGetJunctionVariable = 0xa9
	cmdGetEdgeVariable     = 0xaa
	cmdGetSimVariable      = 0xab

	cmdSetTLVariable      = 0xc2
	cmdSetVehicleVariable = 0xc4

	// A get command is answered by a response command with this offset.
	responseOffset = 0x10
)

// Variables.
const (
	varIDList            = 0x00
	varLastStepMeanSpeed = 0x11
	varLastStepOccupancy = 0x13
	varLastStepHalting   = 0x14
	varTLPhaseIndex      = 0x22
	varSpeed             = 0x40
	varMaxSpeed          = 0x41
	varPosition          = 0x42
	varVehicleClass      = 0x49
	varRoadID            = 0x50
	varEdges             = 0x54
	varRoute             = 0x57
	varMinExpected       = 0x7d
	varFindRoute         = 0x86
)

// Value types.
const (
	typePosition2D = 0x01
	typePosition3D = 0x03
	typeUByte      = 0x07
	typeByte       = 0x08
	typeInteger    = 0x09
	typeDouble     = 0x0B
	typeString     = 0x0C
	typeStringList = 0x0E
	typeCompound   = 0x0F
	typeDoubleList = 0x10
	typeColor      = 0x11
)

// Status results.
const (
	statusOK             = 0x00
	statusNotImplemented = 0x01
	statusError          = 0xFF
)
