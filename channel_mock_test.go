package nvjpg

import "encoding/binary"

// mockAdapter is an in-memory ChannelAdapter standing in for real hardware:
// every allocation lives in a Go byte slice, and Submit simulates the engine
// completing synchronously by writing a used-bytes count into the read-info
// block it was asked to target. It is shared by surface and decoder tests
// that need more than the allocate/map path mockSurfaceAdapter covers.
type mockAdapter struct {
	nextHandle  uint32
	blocks      map[uint32]*MemoryBlock
	syncValue   uint32
	closed      bool
	submitCount int

	waitErr     error
	submitErr   error
	openErr     error
	usedBytes   uint32 // 0 means "report the full scan block size"
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{blocks: make(map[uint32]*MemoryBlock)}
}

func (m *mockAdapter) OpenChannel(devicePath string) (*Channel, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.nextHandle++
	return &Channel{Handle: m.nextHandle, SyncpointID: 1}, nil
}

func (m *mockAdapter) CloseChannel(ch *Channel) error { return nil }

func (m *mockAdapter) Allocate(size, align, flags uint32) (*MemoryBlock, error) {
	m.nextHandle++
	mb := &MemoryBlock{size: size, align: align, flags: flags, handle: m.nextHandle}
	m.blocks[mb.handle] = mb
	return mb, nil
}

func (m *mockAdapter) Free(mb *MemoryBlock) error {
	delete(m.blocks, mb.handle)
	return nil
}

func (m *mockAdapter) MapCPU(mb *MemoryBlock) error {
	mb.cpu = make([]byte, mb.size)
	return nil
}

func (m *mockAdapter) UnmapCPU(mb *MemoryBlock) error {
	mb.cpu = nil
	return nil
}

func (m *mockAdapter) MapDevice(mb *MemoryBlock, ch *Channel) error {
	mb.deviceVA, mb.deviceMapped = mb.handle, true
	return nil
}

func (m *mockAdapter) UnmapDevice(mb *MemoryBlock) error {
	mb.deviceMapped = false
	return nil
}

func (m *mockAdapter) FlushCache(mb *MemoryBlock) error      { return nil }
func (m *mockAdapter) InvalidateCache(mb *MemoryBlock) error { return nil }

// Submit simulates the engine: submitCommon always pushes relocations in the
// fixed order picture_info, read_info, scan_data, out_data[, out_data2,
// out_data3], so relocs[1] names the read-info block and relocs[2] the
// scan-data block regardless of how many output relocs follow.
func (m *mockAdapter) Submit(ch *Channel, bufs []CmdBufRange, exts []CmdBufExt, classIDs []uint32,
	relocs []Reloc, shifts []RelocShift, types []RelocType, incrCount uint32) (Fence, error) {
	if m.submitErr != nil {
		return Fence{}, m.submitErr
	}
	m.submitCount++

	if len(relocs) > 2 {
		readBlock := m.blocks[relocs[1].TargetMem]
		scanBlock := m.blocks[relocs[2].TargetMem]
		if readBlock != nil && readBlock.cpu != nil {
			used := m.usedBytes
			if used == 0 && scanBlock != nil {
				used = scanBlock.size
			}
			binary.LittleEndian.PutUint32(readBlock.cpu, used)
		}
	}

	m.syncValue += incrCount
	return Fence{SyncpointID: ch.SyncpointID, Value: m.syncValue}, nil
}

func (m *mockAdapter) Wait(fence Fence, timeoutUs int32) error { return m.waitErr }

func (m *mockAdapter) GetClockRate(ch *Channel, classID uint32) (uint32, error) { return 408000000, nil }
func (m *mockAdapter) SetClockRate(ch *Channel, classID, rate uint32) error     { return nil }

func (m *mockAdapter) Close() error {
	m.closed = true
	return nil
}
