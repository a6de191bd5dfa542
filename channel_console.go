package nvjpg

// ConsoleOps models the higher-level nvMap*/nvChannel*/nvFence*-style entry
// points a bare-metal console runtime exposes in place of Linux ioctls.
// Unlike the generic host, a console runtime resolves a command buffer's
// device address through an explicit map/unmap step (MapCommandBuffer /
// UnmapCommandBuffer) rather than implicitly through relocation handles.
// ConsoleAdapter wraps an implementation of this interface so the
// orchestrator never branches on platform itself — the realization is
// chosen once, at construction.
type ConsoleOps interface {
	MapCreate(size, align, flags uint32) (handle uint32, err error)
	MapFree(handle uint32) error
	MapMapCPU(handle uint32, size uint32) ([]byte, error)
	MapUnmapCPU(handle uint32, cpu []byte) error
	MapFlush(handle uint32, size uint32) error
	MapInvalidate(handle uint32, size uint32) error

	// MapCommandBuffer resolves handle to the device virtual address the
	// engine's command stream must address; UnmapCommandBuffer releases it.
	MapCommandBuffer(handle uint32) (deviceVA uint32, err error)
	UnmapCommandBuffer(handle uint32) error

	ChannelOpen(classID uint32) (channelHandle uint32, syncpointID uint32, err error)
	ChannelClose(channelHandle uint32) error
	ChannelGetClockRate(channelHandle, classID uint32) (uint32, error)
	ChannelSetClockRate(channelHandle, classID, rate uint32) error
	ChannelSubmit(channelHandle uint32, bufs []CmdBufRange, exts []CmdBufExt, classIDs []uint32,
		relocs []Reloc, shifts []RelocShift, types []RelocType, incrCount uint32) (fenceValue uint32, err error)

	FenceWait(fence Fence, timeoutUs int32) error

	Close() error
}

// ConsoleAdapter implements ChannelAdapter on top of a ConsoleOps
// realization supplied by the embedder (e.g. a libnx binding).
type ConsoleAdapter struct {
	ops ConsoleOps
}

// NewConsoleAdapter returns a ChannelAdapter backed by ops.
func NewConsoleAdapter(ops ConsoleOps) *ConsoleAdapter {
	return &ConsoleAdapter{ops: ops}
}

const consoleClassID = 0xc0

func (a *ConsoleAdapter) OpenChannel(devicePath string) (*Channel, error) {
	handle, syncpt, err := a.ops.ChannelOpen(consoleClassID)
	if err != nil {
		return nil, err
	}
	return &Channel{Handle: handle, SyncpointID: syncpt}, nil
}

func (a *ConsoleAdapter) CloseChannel(ch *Channel) error {
	if ch == nil || ch.Handle == 0 {
		return nil
	}
	err := a.ops.ChannelClose(ch.Handle)
	ch.Handle = 0
	return err
}

func (a *ConsoleAdapter) Allocate(size, align, flags uint32) (*MemoryBlock, error) {
	handle, err := a.ops.MapCreate(size, align, flags)
	if err != nil {
		return nil, err
	}
	return &MemoryBlock{size: size, align: align, flags: flags, handle: handle}, nil
}

func (a *ConsoleAdapter) Free(mb *MemoryBlock) error {
	if mb == nil || mb.handle == 0 {
		return nil
	}
	err := a.ops.MapFree(mb.handle)
	mb.handle = 0
	return err
}

func (a *ConsoleAdapter) MapCPU(mb *MemoryBlock) error {
	data, err := a.ops.MapMapCPU(mb.handle, mb.size)
	if err != nil {
		return err
	}
	mb.cpu = data
	return nil
}

func (a *ConsoleAdapter) UnmapCPU(mb *MemoryBlock) error {
	if mb.cpu == nil {
		return nil
	}
	err := a.ops.MapUnmapCPU(mb.handle, mb.cpu)
	mb.cpu = nil
	return err
}

func (a *ConsoleAdapter) MapDevice(mb *MemoryBlock, ch *Channel) error {
	va, err := a.ops.MapCommandBuffer(mb.handle)
	if err != nil {
		return err
	}
	mb.deviceVA = va
	mb.deviceMapped = true
	return nil
}

func (a *ConsoleAdapter) UnmapDevice(mb *MemoryBlock) error {
	if !mb.deviceMapped {
		return nil
	}
	err := a.ops.UnmapCommandBuffer(mb.handle)
	mb.deviceVA = 0
	mb.deviceMapped = false
	return err
}

func (a *ConsoleAdapter) FlushCache(mb *MemoryBlock) error {
	return a.ops.MapFlush(mb.handle, mb.size)
}

func (a *ConsoleAdapter) InvalidateCache(mb *MemoryBlock) error {
	return a.ops.MapInvalidate(mb.handle, mb.size)
}

func (a *ConsoleAdapter) Submit(ch *Channel, bufs []CmdBufRange, exts []CmdBufExt, classIDs []uint32,
	relocs []Reloc, shifts []RelocShift, types []RelocType, incrCount uint32) (Fence, error) {

	value, err := a.ops.ChannelSubmit(ch.Handle, bufs, exts, classIDs, relocs, shifts, types, incrCount)
	if err != nil {
		return Fence{}, err
	}
	return Fence{SyncpointID: ch.SyncpointID, Value: value}, nil
}

func (a *ConsoleAdapter) Wait(fence Fence, timeoutUs int32) error {
	return a.ops.FenceWait(fence, timeoutUs)
}

func (a *ConsoleAdapter) GetClockRate(ch *Channel, classID uint32) (uint32, error) {
	return a.ops.ChannelGetClockRate(ch.Handle, classID)
}

func (a *ConsoleAdapter) SetClockRate(ch *Channel, classID uint32, rate uint32) error {
	return a.ops.ChannelSetClockRate(ch.Handle, classID, rate)
}

func (a *ConsoleAdapter) Close() error {
	return a.ops.Close()
}
