package nvjpg

import "encoding/binary"

// Host1x opcode families: the top bits of every command word select how the
// rest of the word is interpreted.
const (
	opcodeSetClass uint32 = 0
	opcodeIncr     uint32 = 1
	opcodeNonIncr  uint32 = 2
	opcodeMask     uint32 = 3
	opcodeImm      uint32 = 4
)

// THI (Transitional Hardware Interface) indirect registers: every engine
// class accesses its method space through these two fixed offsets.
const (
	thiMethod0    uint32 = 16
	thiIncrSyncpt uint32 = 0
)

// relocPlaceholder is patched by the kernel at submit time to the resolved
// device address; it must never survive into an executed command stream.
const relocPlaceholder uint32 = 0xDEADBEEF

// RelocType selects how the kernel interprets a relocation target when
// patching a command buffer.
type RelocType uint32

const (
	RelocDefault     RelocType = 0
	RelocPitchLinear RelocType = 1
	RelocBlockLinear RelocType = 2
	RelocNvlink      RelocType = 3
)

// CmdBufRange names one contiguous run of words within a mapped command
// buffer. Its layout matches the kernel's nvhost_cmdbuf submit payload
// exactly (see ioctl_linux.go), since the same values flow straight through.
type CmdBufRange struct {
	Mem    uint32
	Offset uint32
	Words  uint32
}

// CmdBufExt carries the optional pre-fence a command buffer waits on before
// the engine executes it. -1 means "no wait".
type CmdBufExt struct {
	PreFence int32
	_        uint32
}

// Reloc records one placeholder word that the kernel must patch with a
// resolved device address before the engine reads it.
type Reloc struct {
	CmdBufMem    uint32
	CmdBufOffset uint32
	TargetMem    uint32
	TargetOffset uint32
}

// RelocShift is the right-shift applied to a resolved device address before
// it is written into the placeholder word.
type RelocShift struct {
	Shift uint32
}

// relocTypeEntry is the wire-shaped companion to RelocShift; kept distinct
// from RelocType so the kernel's zero-padding is visible at the call site.
type relocTypeEntry struct {
	Type uint32
	_    uint32
}

// CmdBuf assembles a Host1x command stream directly into a mapped
// MemoryBlock, recording the buffer ranges and relocations a submit needs
// alongside it. One CmdBuf is reused across renders by calling Clear.
type CmdBuf struct {
	mem    []byte
	handle uint32

	wordPos     int
	bufStart    int
	bufs        []CmdBufRange
	exts        []CmdBufExt
	classIDs    []uint32
	relocs      []Reloc
	shifts      []RelocShift
	relocTypes  []relocTypeEntry
}

// NewCmdBuf returns a builder writing into block's CPU mapping. block must
// already be mapped.
func NewCmdBuf(block *MemoryBlock) *CmdBuf {
	return &CmdBuf{mem: block.cpu, handle: block.handle}
}

// Clear resets the builder to an empty command stream without releasing the
// underlying memory.
func (c *CmdBuf) Clear() {
	c.wordPos = 0
	c.bufStart = 0
	c.bufs = c.bufs[:0]
	c.exts = c.exts[:0]
	c.classIDs = c.classIDs[:0]
	c.relocs = c.relocs[:0]
	c.shifts = c.shifts[:0]
	c.relocTypes = c.relocTypes[:0]
}

// Begin opens a new command-buffer range for the given engine class.
// preFence is the syncpoint fence this range must wait for before
// executing, or -1 for none. A SET_CLASS opcode opens the range only when
// classID differs from the previous range's class since the last Clear.
func (c *CmdBuf) Begin(classID uint32, preFence int32) {
	sameClass := len(c.classIDs) > 0 && c.classIDs[len(c.classIDs)-1] == classID
	c.bufStart = c.wordPos
	c.bufs = append(c.bufs, CmdBufRange{Mem: c.handle, Offset: uint32(c.wordPos * 4)})
	c.exts = append(c.exts, CmdBufExt{PreFence: preFence})
	c.classIDs = append(c.classIDs, classID)

	if !sameClass {
		opcode := opcodeSetClass<<28 | 0<<16 | classID<<6
		c.pushRaw(opcode)
	}
}

// End closes the command-buffer range opened by the most recent Begin,
// recording its final word count.
func (c *CmdBuf) End() {
	c.bufs[len(c.bufs)-1].Words = uint32(c.wordPos - c.bufStart)
}

// pushRaw appends a single word to the command stream.
func (c *CmdBuf) pushRaw(word uint32) {
	binary.LittleEndian.PutUint32(c.mem[c.wordPos*4:], word)
	c.wordPos++
}

// PushValue writes a single engine register through an INCR(method_0, 2)
// pair: the THI indirect-write protocol every NVJPG register access uses.
func (c *CmdBuf) PushValue(regOffset, value uint32) {
	c.pushRaw(opcodeIncr<<28 | thiMethod0<<16 | 2)
	c.pushRaw(regOffset)
	c.pushRaw(value)
}

// PushReloc writes regOffset with a placeholder value and records a
// relocation so the kernel patches it to target's resolved device address
// (target.Handle(), targetOffset) before the engine runs the buffer.
func (c *CmdBuf) PushReloc(regOffset uint32, target *MemoryBlock, targetOffset uint32, shift uint32, typ RelocType) {
	wordOffset := uint32(c.wordPos+2) * 4 // PushValue writes its payload word third
	c.PushValue(regOffset, relocPlaceholder)

	c.relocs = append(c.relocs, Reloc{
		CmdBufMem:    c.handle,
		CmdBufOffset: wordOffset,
		TargetMem:    target.handle,
		TargetOffset: targetOffset,
	})
	c.shifts = append(c.shifts, RelocShift{Shift: shift})
	c.relocTypes = append(c.relocTypes, relocTypeEntry{Type: uint32(typ)})
}

// PushSyncptIncr appends the NON_INCR(incr_syncpt, 1) footer that increments
// syncpointID by one once the engine finishes the preceding buffer.
func (c *CmdBuf) PushSyncptIncr(syncpointID uint32) {
	c.pushRaw(opcodeNonIncr<<28 | thiIncrSyncpt<<16 | 1)
	c.pushRaw(syncpointID | 1<<8)
}

// Bufs, Exts and ClassIDs return the accumulated submit metadata in the
// shapes the channel adapter's Submit expects.
func (c *CmdBuf) Bufs() []CmdBufRange { return c.bufs }
func (c *CmdBuf) Exts() []CmdBufExt   { return c.exts }
func (c *CmdBuf) ClassIDs() []uint32  { return c.classIDs }

// Relocs, Shifts and RelocTypes return the accumulated relocation ledger.
func (c *CmdBuf) Relocs() []Reloc            { return c.relocs }
func (c *CmdBuf) Shifts() []RelocShift       { return c.shifts }
func (c *CmdBuf) RelocTypes() []RelocType {
	out := make([]RelocType, len(c.relocTypes))
	for i, t := range c.relocTypes {
		out[i] = RelocType(t.Type)
	}
	return out
}
