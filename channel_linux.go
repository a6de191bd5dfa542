//go:build linux
// +build linux

package nvjpg

import (
	"fmt"
	"log"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	nvmapDevicePath      = "/dev/nvmap"
	nvhostCtrlDevicePath = "/dev/nvhost-ctrl"
)

// LinuxAdapter is the generic-host ChannelAdapter: it talks to the real
// nvmap and nvhost-ctrl character devices with hand-encoded ioctl request
// numbers, in the same style capture_linux.go uses for V4L2.
type LinuxAdapter struct {
	nvmapFD int
	ctrlFD  int
	logger  *log.Logger
}

// NewLinuxAdapter opens the process-wide nvmap and nvhost-ctrl descriptors.
// Both are held open for the adapter's lifetime and released by Close.
func NewLinuxAdapter(logger *log.Logger) (*LinuxAdapter, error) {
	if logger == nil {
		logger = log.Default()
	}

	nvmapFD, err := unix.Open(nvmapDevicePath, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("nvjpg: cannot open %s: %w", nvmapDevicePath, err)
	}

	ctrlFD, err := unix.Open(nvhostCtrlDevicePath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		unix.Close(nvmapFD)
		return nil, fmt.Errorf("nvjpg: cannot open %s: %w", nvhostCtrlDevicePath, err)
	}

	return &LinuxAdapter{nvmapFD: nvmapFD, ctrlFD: ctrlFD, logger: logger}, nil
}

// Close releases the nvmap and nvhost-ctrl descriptors. Safe to call more
// than once.
func (a *LinuxAdapter) Close() error {
	if a.nvmapFD == 0 && a.ctrlFD == 0 {
		return nil
	}
	if a.ctrlFD != 0 {
		unix.Close(a.ctrlFD)
		a.ctrlFD = 0
	}
	if a.nvmapFD != 0 {
		unix.Close(a.nvmapFD)
		a.nvmapFD = 0
	}
	return nil
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctlArg(fd int, req uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

// OpenChannel opens devicePath (e.g. "/dev/nvhost-nvjpg") and binds it to
// the syncpoint the kernel assigns it.
func (a *LinuxAdapter) OpenChannel(devicePath string) (*Channel, error) {
	fd, err := unix.Open(devicePath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("nvjpg: cannot open %s: %w", devicePath, err)
	}

	args := nvhostGetParamArgs{}
	if err := ioctl(fd, nvhostIoctlChannelGetSyncpoint, unsafe.Pointer(&args)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("nvjpg: NVHOST_IOCTL_CHANNEL_GET_SYNCPOINT: %w", err)
	}

	a.logger.Printf("nvjpg: opened channel %s, syncpoint %d", devicePath, args.Value)
	return &Channel{Handle: uint32(fd), SyncpointID: args.Value}, nil
}

// CloseChannel closes a channel opened by OpenChannel. Safe to call more
// than once.
func (a *LinuxAdapter) CloseChannel(ch *Channel) error {
	if ch == nil || ch.Handle == 0 {
		return nil
	}
	err := unix.Close(int(ch.Handle))
	ch.Handle = 0
	return err
}

// Allocate creates and sizes an nvmap handle of size bytes aligned to
// align.
func (a *LinuxAdapter) Allocate(size, align, flags uint32) (*MemoryBlock, error) {
	create := nvmapCreateArgs{Size: size}
	if err := ioctl(a.nvmapFD, nvmapIoctlCreate, unsafe.Pointer(&create)); err != nil {
		return nil, fmt.Errorf("nvjpg: NVMAP_IOCTL_CREATE: %w", err)
	}

	const systemHeap = 0x40000000
	alloc := nvmapAllocArgs{Handle: create.Handle, HeapMask: systemHeap, Flags: flags, Align: align}
	if err := ioctl(a.nvmapFD, nvmapIoctlAlloc, unsafe.Pointer(&alloc)); err != nil {
		ioctlArg(a.nvmapFD, nvmapIoctlFree, uintptr(create.Handle))
		return nil, fmt.Errorf("nvjpg: NVMAP_IOCTL_ALLOC: %w", err)
	}

	return &MemoryBlock{size: size, align: align, flags: flags, handle: create.Handle}, nil
}

// Free releases an nvmap handle. Safe to call more than once.
func (a *LinuxAdapter) Free(mb *MemoryBlock) error {
	if mb == nil || mb.handle == 0 {
		return nil
	}
	// NVMAP_IOCTL_FREE carries no payload struct: the kernel ABI expects
	// the handle itself as the ioctl argument, not a pointer to it.
	err := ioctlArg(a.nvmapFD, nvmapIoctlFree, uintptr(mb.handle))
	mb.handle = 0
	return err
}

// MapCPU mmaps mb for CPU access. The kernel's nvmap mmap implementation
// resolves the mapping from the handle value passed as the mmap file
// descriptor argument, not from nvmapFD.
func (a *LinuxAdapter) MapCPU(mb *MemoryBlock) error {
	data, err := unix.Mmap(int(mb.handle), 0, int(mb.size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("nvjpg: mmap handle %d: %w", mb.handle, err)
	}
	mb.cpu = data
	return nil
}

// UnmapCPU releases a mapping established by MapCPU.
func (a *LinuxAdapter) UnmapCPU(mb *MemoryBlock) error {
	if mb.cpu == nil {
		return nil
	}
	err := unix.Munmap(mb.cpu)
	mb.cpu = nil
	return err
}

// MapDevice makes no kernel call on the generic host and only marks mb as
// device-mapped: the kernel resolves device addresses from a block's handle
// at Submit time via the relocation ledger.
func (a *LinuxAdapter) MapDevice(mb *MemoryBlock, ch *Channel) error {
	mb.deviceMapped = true
	return nil
}

// UnmapDevice is the counterpart to MapDevice: it only clears the mapped
// mark.
func (a *LinuxAdapter) UnmapDevice(mb *MemoryBlock) error {
	mb.deviceMapped = false
	return nil
}

func (a *LinuxAdapter) cacheOp(mb *MemoryBlock, op int32) error {
	if mb.cpu == nil {
		return nil
	}
	args := nvmapCacheArgs{
		Addr:   uint64(uintptr(unsafe.Pointer(&mb.cpu[0]))),
		Handle: mb.handle,
		Len:    mb.size,
		Op:     op,
	}
	if err := ioctl(a.nvmapFD, nvmapIoctlCache, unsafe.Pointer(&args)); err != nil {
		return fmt.Errorf("nvjpg: NVMAP_IOCTL_CACHE: %w", err)
	}
	return nil
}

// FlushCache writes back CPU writes to mb so the engine observes them.
func (a *LinuxAdapter) FlushCache(mb *MemoryBlock) error { return a.cacheOp(mb, nvmapCacheOpWB) }

// InvalidateCache discards stale CPU cache lines over mb so CPU reads
// observe engine writes.
func (a *LinuxAdapter) InvalidateCache(mb *MemoryBlock) error { return a.cacheOp(mb, nvmapCacheOpInv) }

// Submit builds an nvhost_submit_args payload from the command-buffer
// builder's accumulated metadata and issues NVHOST_IOCTL_CHANNEL_SUBMIT.
func (a *LinuxAdapter) Submit(ch *Channel, bufs []CmdBufRange, exts []CmdBufExt, classIDs []uint32,
	relocs []Reloc, shifts []RelocShift, types []RelocType, incrCount uint32) (Fence, error) {

	cbufs := make([]nvhostCmdbuf, len(bufs))
	for i, b := range bufs {
		cbufs[i] = nvhostCmdbuf{Mem: b.Mem, Offset: b.Offset, Words: b.Words}
	}
	cexts := make([]nvhostCmdbufExt, len(exts))
	for i, e := range exts {
		cexts[i] = nvhostCmdbufExt{PreFence: e.PreFence}
	}
	crelocs := make([]nvhostReloc, len(relocs))
	for i, r := range relocs {
		crelocs[i] = nvhostReloc{CmdbufMem: r.CmdBufMem, CmdbufOffset: r.CmdBufOffset, TargetMem: r.TargetMem, TargetOffset: r.TargetOffset}
	}
	cshifts := make([]nvhostRelocShift, len(shifts))
	for i, s := range shifts {
		cshifts[i] = nvhostRelocShift{Shift: s.Shift}
	}
	ctypes := make([]nvhostRelocType, len(types))
	for i, t := range types {
		ctypes[i] = nvhostRelocType{RelocType: uint32(t)}
	}
	incrs := []nvhostSyncptIncr{{SyncptID: ch.SyncpointID, SyncptIncrs: incrCount}}

	args := nvhostSubmitArgs{
		SubmitVersion:  nvhostSubmitVersionV2,
		NumSyncptIncrs: uint32(len(incrs)),
		NumCmdbufs:     uint32(len(cbufs)),
		NumRelocs:      uint32(len(crelocs)),
	}
	if len(incrs) > 0 {
		args.SyncptIncrs = uintptr(unsafe.Pointer(&incrs[0]))
	}
	if len(cexts) > 0 {
		args.CmdbufExts = uintptr(unsafe.Pointer(&cexts[0]))
	}
	if len(ctypes) > 0 {
		args.RelocTypes = uintptr(unsafe.Pointer(&ctypes[0]))
	}
	if len(cbufs) > 0 {
		args.Cmdbufs = uintptr(unsafe.Pointer(&cbufs[0]))
	}
	if len(crelocs) > 0 {
		args.Relocs = uintptr(unsafe.Pointer(&crelocs[0]))
	}
	if len(cshifts) > 0 {
		args.RelocShifts = uintptr(unsafe.Pointer(&cshifts[0]))
	}
	if len(classIDs) > 0 {
		args.ClassIDs = uintptr(unsafe.Pointer(&classIDs[0]))
	}

	err := ioctl(int(ch.Handle), nvhostIoctlChannelSubmit, unsafe.Pointer(&args))

	// The submit struct stores these slices' addresses as bare uintptrs, so
	// the garbage collector does not see them as live references through
	// args; keep them alive until the syscall that reads them has returned.
	runtime.KeepAlive(cbufs)
	runtime.KeepAlive(cexts)
	runtime.KeepAlive(crelocs)
	runtime.KeepAlive(cshifts)
	runtime.KeepAlive(ctypes)
	runtime.KeepAlive(classIDs)
	runtime.KeepAlive(incrs)

	if err != nil {
		return Fence{}, fmt.Errorf("nvjpg: NVHOST_IOCTL_CHANNEL_SUBMIT: %w", err)
	}
	return Fence{SyncpointID: ch.SyncpointID, Value: args.Fence}, nil
}

// Wait blocks on the ctrl device until fence is reached or timeoutUs
// elapses.
func (a *LinuxAdapter) Wait(fence Fence, timeoutUs int32) error {
	args := nvhostCtrlSyncptWaitexArgs{ID: fence.SyncpointID, Thresh: fence.Value, Timeout: timeoutUs}
	err := ioctl(a.ctrlFD, nvhostIoctlCtrlSyncptWaitex, unsafe.Pointer(&args))
	if err == unix.ETIMEDOUT {
		return ErrTimeout
	}
	if err != nil {
		return fmt.Errorf("nvjpg: NVHOST_IOCTL_CTRL_SYNCPT_WAITEX: %w", err)
	}
	return nil
}

// GetClockRate reads the engine clock rate for classID.
func (a *LinuxAdapter) GetClockRate(ch *Channel, classID uint32) (uint32, error) {
	args := nvhostClkRateArgs{ModuleID: classID}
	if err := ioctl(int(ch.Handle), nvhostIoctlChannelGetClkRate, unsafe.Pointer(&args)); err != nil {
		return 0, fmt.Errorf("nvjpg: NVHOST_IOCTL_CHANNEL_GET_CLK_RATE: %w", err)
	}
	return args.Rate, nil
}

// SetClockRate requests a new engine clock rate for classID.
func (a *LinuxAdapter) SetClockRate(ch *Channel, classID uint32, rate uint32) error {
	args := nvhostClkRateArgs{Rate: rate, ModuleID: classID}
	if err := ioctl(int(ch.Handle), nvhostIoctlChannelSetClkRate, unsafe.Pointer(&args)); err != nil {
		return fmt.Errorf("nvjpg: NVHOST_IOCTL_CHANNEL_SET_CLK_RATE: %w", err)
	}
	return nil
}
