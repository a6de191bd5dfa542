package nvjpg

// Fence identifies a point in a syncpoint's counter sequence: the engine has
// finished a submit once the syncpoint reaches Value.
type Fence struct {
	SyncpointID uint32
	Value       uint32
}

// MemoryBlock is a handle to device memory, optionally CPU-mapped and
// optionally device-mapped. Its exported accessors let callers outside this
// package (tests, the console adapter's owner) inspect a block without
// reaching into adapter-private state.
type MemoryBlock struct {
	size, align, flags, handle uint32

	cpu []byte

	deviceVA     uint32
	deviceMapped bool
}

// Size returns the block's allocated size in bytes.
func (m *MemoryBlock) Size() uint32 { return m.size }

// Handle returns the kernel (or console runtime) handle identifying this
// block in relocations and ioctl payloads.
func (m *MemoryBlock) Handle() uint32 { return m.handle }

// CPU returns the block's CPU mapping, or nil if it has not been mapped.
func (m *MemoryBlock) CPU() []byte { return m.cpu }

// DeviceVA returns the block's device virtual address and whether it has
// been device-mapped. On the generic Linux adapter the address is always
// 0 (MapDevice only marks the block as mapped): the kernel resolves
// addresses from the handle during submit instead.
func (m *MemoryBlock) DeviceVA() (uint32, bool) { return m.deviceVA, m.deviceMapped }

// Channel is one open connection to the engine: a kernel (or console
// runtime) handle plus the syncpoint the engine increments on completion.
type Channel struct {
	Handle      uint32
	SyncpointID uint32
}

// ChannelAdapter is the seam between the Decoder Orchestrator and the two
// concrete realizations of engine access: a generic Linux host talking
// ioctls (channel_linux.go) and a bare-metal console runtime talking
// higher-level entry points (channel_console.go). The orchestrator only
// ever talks to this interface, so the platform is chosen once, at
// construction, rather than branched on throughout the core logic.
type ChannelAdapter interface {
	// OpenChannel opens a connection to the engine named by devicePath (on
	// the console adapter, devicePath is a hint and may be ignored) and
	// returns it bound to a fresh syncpoint.
	OpenChannel(devicePath string) (*Channel, error)
	// CloseChannel releases a channel opened by OpenChannel. Safe to call
	// more than once.
	CloseChannel(ch *Channel) error

	// Allocate reserves size bytes of device memory aligned to align, with
	// adapter-specific flags (0 for the common case).
	Allocate(size, align, flags uint32) (*MemoryBlock, error)
	// Free releases memory reserved by Allocate. Safe to call more than
	// once.
	Free(mb *MemoryBlock) error
	// MapCPU establishes a CPU-visible mapping for mb, populating its CPU
	// accessor.
	MapCPU(mb *MemoryBlock) error
	// UnmapCPU releases a mapping established by MapCPU.
	UnmapCPU(mb *MemoryBlock) error
	// MapDevice establishes whatever device-side addressing mb needs to be
	// referenced by ch's command streams. On the generic Linux adapter this
	// makes no kernel call and only marks mb as mapped: the kernel resolves
	// addresses from mb's handle during Submit instead.
	MapDevice(mb *MemoryBlock, ch *Channel) error
	// UnmapDevice releases a mapping established by MapDevice.
	UnmapDevice(mb *MemoryBlock) error

	// FlushCache writes back any CPU cache lines covering mb's mapping so
	// the engine observes CPU writes made before the call.
	FlushCache(mb *MemoryBlock) error
	// InvalidateCache discards any stale CPU cache lines covering mb's
	// mapping so CPU reads after the call observe engine writes.
	InvalidateCache(mb *MemoryBlock) error

	// Submit hands a built command stream to the engine and returns the
	// fence that will signal once it completes. incrCount is the number of
	// times the submit increments ch's syncpoint (the orchestrator always
	// passes 1).
	Submit(ch *Channel, bufs []CmdBufRange, exts []CmdBufExt, classIDs []uint32,
		relocs []Reloc, shifts []RelocShift, types []RelocType, incrCount uint32) (Fence, error)
	// Wait blocks until fence is reached or timeoutUs microseconds elapse
	// (negative means wait indefinitely). Returns ErrTimeout on expiry.
	Wait(fence Fence, timeoutUs int32) error

	// GetClockRate and SetClockRate read and write the engine's clock for
	// the given hardware class.
	GetClockRate(ch *Channel, classID uint32) (uint32, error)
	SetClockRate(ch *Channel, classID uint32, rate uint32) error

	// Close releases any process-wide resources the adapter opened
	// (nvmap/ctrl descriptors, or their console equivalents). Safe to call
	// more than once.
	Close() error
}

// GetClockRate reads the engine's current clock rate.
func (ch *Channel) GetClockRate(adapter ChannelAdapter, classID uint32) (uint32, error) {
	return adapter.GetClockRate(ch, classID)
}

// SetClockRate requests a new engine clock rate.
func (ch *Channel) SetClockRate(adapter ChannelAdapter, classID uint32, rate uint32) error {
	return adapter.SetClockRate(ch, classID, rate)
}
