//go:build linux
// +build linux

package nvjpg

import "unsafe"

// _IOC-family helpers, reproduced from <linux/ioctl.h>'s numbering scheme:
// the request code packs a transfer direction, a driver "magic" byte, a
// per-command number and the size of the payload struct.
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14
	iocDirBits  = 2

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

func io(typ, nr uintptr) uintptr       { return ioc(iocNone, typ, nr, 0) }
func iow(typ, nr, size uintptr) uintptr  { return ioc(iocWrite, typ, nr, size) }
func iowr(typ, nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, typ, nr, size) }

// nvmap payload structs, byte-exact with nvmap_create_args / nvmap_alloc_args
// / nvmap_cache_args from the kernel's nvmap ioctl ABI.
type nvmapCreateArgs struct {
	Size   uint32
	Handle uint32
}

type nvmapAllocArgs struct {
	Handle   uint32
	HeapMask uint32
	Flags    uint32
	Align    uint32
}

type nvmapCacheArgs struct {
	Addr   uint64
	Handle uint32
	Len    uint32
	Op     int32
}

const (
	nvmapCacheOpWB    int32 = 0
	nvmapCacheOpInv   int32 = 1
	nvmapCacheOpWBInv int32 = 2
)

const nvmapIoctlMagic = uintptr('N')

var (
	nvmapIoctlCreate = iowr(nvmapIoctlMagic, 0, unsafe.Sizeof(nvmapCreateArgs{}))
	nvmapIoctlAlloc  = iow(nvmapIoctlMagic, 3, unsafe.Sizeof(nvmapAllocArgs{}))
	nvmapIoctlFree   = io(nvmapIoctlMagic, 4)
	nvmapIoctlCache  = iow(nvmapIoctlMagic, 12, unsafe.Sizeof(nvmapCacheArgs{}))
)

// nvhost payload structs, byte-exact with their ioctl_types.h counterparts.
type nvhostClkRateArgs struct {
	Rate     uint32
	ModuleID uint32
}

type nvhostGetParamArgs struct {
	Param uint32
	Value uint32
}

type nvhostCtrlSyncptWaitexArgs struct {
	ID      uint32
	Thresh  uint32
	Timeout int32
	Value   uint32
}

type nvhostCmdbuf struct {
	Mem    uint32
	Offset uint32
	Words  uint32
}

type nvhostCmdbufExt struct {
	PreFence int32
	Reserved uint32
}

type nvhostReloc struct {
	CmdbufMem    uint32
	CmdbufOffset uint32
	TargetMem    uint32
	TargetOffset uint32
}

type nvhostRelocShift struct {
	Shift uint32
}

type nvhostRelocType struct {
	RelocType uint32
	Padding   uint32
}

type nvhostSyncptIncr struct {
	SyncptID    uint32
	SyncptIncrs uint32
}

// nvhostSubmitArgs mirrors nvhost_submit_args field-for-field. Every
// uintptr_t field below is a Go uintptr, which is 8 bytes on the 64-bit
// targets this driver runs on; with all fields in declaration order and
// none of them needing compiler-inserted padding at these offsets, Go's
// struct layout matches the kernel's exactly without resorting to
// unsafe-cast tricks beyond the pointer-to-slice conversions below.
type nvhostSubmitArgs struct {
	SubmitVersion  uint32
	NumSyncptIncrs uint32
	NumCmdbufs     uint32
	NumRelocs      uint32
	NumWaitchks    uint32
	Timeout        uint32
	Flags          uint32
	Fence          uint32
	SyncptIncrs    uintptr
	CmdbufExts     uintptr

	ChecksumMethods       uint32
	ChecksumFalconMethods uint32

	Pad uint64

	RelocTypes  uintptr
	Cmdbufs     uintptr
	Relocs      uintptr
	RelocShifts uintptr
	Waitchks    uintptr
	Waitbases   uintptr
	ClassIDs    uintptr
	Fences      uintptr
}

const nvhostSubmitVersionV2 uint32 = 2

const nvhostIoctlMagic = uintptr('H')

var (
	nvhostIoctlChannelGetClkRate  = iowr(nvhostIoctlMagic, 9, unsafe.Sizeof(nvhostClkRateArgs{}))
	nvhostIoctlChannelSetClkRate  = iow(nvhostIoctlMagic, 10, unsafe.Sizeof(nvhostClkRateArgs{}))
	nvhostIoctlChannelGetSyncpoint = iowr(nvhostIoctlMagic, 16, unsafe.Sizeof(nvhostGetParamArgs{}))
	nvhostIoctlChannelSubmit      = iowr(nvhostIoctlMagic, 26, unsafe.Sizeof(nvhostSubmitArgs{}))
	nvhostIoctlCtrlSyncptWaitex   = iowr(nvhostIoctlMagic, 6, unsafe.Sizeof(nvhostCtrlSyncptWaitexArgs{}))
)
