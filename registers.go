package nvjpg

import "encoding/binary"

// NVJPG engine register word offsets (class 0xc0), accessed through the THI
// indirect-write protocol in cmdbuf.go.
const (
	nvjpgRegOperationType     uint32 = 128
	nvjpgRegExecute           uint32 = 192
	nvjpgRegPictureInfoOffset uint32 = 448
	nvjpgRegReadInfoOffset    uint32 = 449
	nvjpgRegScanDataOffset    uint32 = 450
	nvjpgRegOutDataOffset     uint32 = 451
	nvjpgRegOutData2Offset    uint32 = 452
	nvjpgRegOutData3Offset    uint32 = 453
)

func binaryLittleEndianUint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
