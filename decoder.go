package nvjpg

import (
	"fmt"
	"log"
)

// engineClassID is the Host1x engine class for NVJPG.
const engineClassID = 0xc0

const (
	cmdbufCapacity = 0x8000
	cmdbufAlign    = 32
	picInfoAlign   = 16
	readDataAlign  = 16
	scanDataAlign  = 4096

	// statusUsedBytesOffset is the byte offset of the used_bytes field in
	// the engine's status block, written back after a successful render.
	statusUsedBytesOffset = 0
	statusBlockSize       = 0x20

	// DefaultScanCapacity is the scan-data buffer size a Decoder reserves
	// when Options.ScanCapacity is left at zero: 5 MiB.
	DefaultScanCapacity = 5 * 1024 * 1024
)

// ColorSpace selects the YUV->RGB conversion matrix a Decoder's renders use.
type ColorSpace int

const (
	ColorSpaceBT601 ColorSpace = iota
	ColorSpaceBT709
	// ColorSpaceBT601Ex is BT.601 with full-range (0-255) luma/chroma, the
	// convention JFIF/baseline JPEG actually uses. It is the default.
	ColorSpaceBT601Ex
)

// Options configures a Decoder at construction.
type Options struct {
	// ScanCapacity bounds the largest entropy-coded scan a render can
	// accept. Zero selects DefaultScanCapacity.
	ScanCapacity uint32
	// RingDepth is the number of concurrent in-flight submissions the
	// Decoder allows. Zero or one means a render always waits for the
	// previous one to complete before reusing its memory.
	RingDepth int
	// Logger receives one line when Initialize succeeds; renders and fence
	// waits are not logged. Nil selects log.Default().
	Logger *log.Logger
}

// Decoder orchestrates the NVJPG engine: it owns the channel, the
// picture-info/scan-data memory, and the command-buffer builder, and turns
// a parsed Image plus a destination Surface into a submitted render.
type Decoder struct {
	adapter ChannelAdapter
	channel *Channel
	logger  *log.Logger

	ColorSpace ColorSpace

	scanCapacity uint32
	ring         ring
}

// New returns a Decoder bound to adapter. Call Initialize before rendering.
func New(adapter ChannelAdapter, opts Options) *Decoder {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	capacity := opts.ScanCapacity
	if capacity == 0 {
		capacity = DefaultScanCapacity
	}
	depth := opts.RingDepth
	if depth < 1 {
		depth = 1
	}

	return &Decoder{
		adapter:      adapter,
		logger:       logger,
		ColorSpace:   ColorSpaceBT601Ex,
		scanCapacity: capacity,
		ring:         ring{entries: make([]ringEntry, depth)},
	}
}

// Initialize opens devicePath and allocates every ring entry's memory.
// Failure at any step rolls back everything allocated so far, leaving the
// Decoder in its pre-call state.
func (d *Decoder) Initialize(devicePath string) (err error) {
	ch, err := d.adapter.OpenChannel(devicePath)
	if err != nil {
		return fmt.Errorf("nvjpg: initialize: %w", err)
	}

	allocated := 0
	defer func() {
		if err != nil {
			for i := 0; i < allocated; i++ {
				d.freeEntry(&d.ring.entries[i])
			}
			d.adapter.CloseChannel(ch)
		}
	}()

	for i := range d.ring.entries {
		entry, aerr := d.allocateEntry()
		if aerr != nil {
			err = fmt.Errorf("nvjpg: initialize: ring slot %d: %w", i, aerr)
			return err
		}
		d.ring.entries[i] = *entry
		allocated++
	}

	d.channel = ch
	d.logger.Printf("nvjpg: initialized, %d ring slot(s), scan capacity %d bytes", len(d.ring.entries), d.scanCapacity)
	return nil
}

// Finalize releases every ring entry's memory and closes the channel. Safe
// to call more than once.
func (d *Decoder) Finalize() error {
	if d.channel == nil {
		return nil
	}
	for i := range d.ring.entries {
		d.freeEntry(&d.ring.entries[i])
	}
	err := d.adapter.CloseChannel(d.channel)
	d.channel = nil
	return err
}

func (d *Decoder) allocateEntry() (entry *ringEntry, err error) {
	e := &ringEntry{}
	defer func() {
		if err != nil {
			d.freeEntry(e)
		}
	}()

	if e.cmdbufBlock, err = d.allocateAndMap(cmdbufCapacity, cmdbufAlign); err != nil {
		return nil, err
	}
	if e.picInfoBlock, err = d.allocateAndMap(PictureInfoSize, picInfoAlign); err != nil {
		return nil, err
	}
	if e.readDataBlock, err = d.allocateAndMap(statusBlockSize, readDataAlign); err != nil {
		return nil, err
	}
	if e.scanDataBlock, err = d.allocateAndMap(d.scanCapacity, scanDataAlign); err != nil {
		return nil, err
	}
	e.cmdbuf = NewCmdBuf(e.cmdbufBlock)
	return e, nil
}

func (d *Decoder) allocateAndMap(size, align uint32) (*MemoryBlock, error) {
	block, err := d.adapter.Allocate(size, align, 0)
	if err != nil {
		return nil, err
	}
	if err := d.adapter.MapCPU(block); err != nil {
		d.adapter.Free(block)
		return nil, err
	}
	return block, nil
}

func (d *Decoder) freeEntry(e *ringEntry) {
	for _, b := range []*MemoryBlock{e.cmdbufBlock, e.picInfoBlock, e.readDataBlock, e.scanDataBlock} {
		if b == nil {
			continue
		}
		d.adapter.UnmapCPU(b)
		d.adapter.Free(b)
	}
	*e = ringEntry{}
}

// Resize replaces every ring entry's scan-data buffer with one of the given
// capacity. It must not be called while a render is in flight.
func (d *Decoder) Resize(capacity uint32) error {
	for i := range d.ring.entries {
		e := &d.ring.entries[i]
		block, err := d.allocateAndMap(capacity, scanDataAlign)
		if err != nil {
			return fmt.Errorf("nvjpg: resize: %w", err)
		}
		d.adapter.UnmapCPU(e.scanDataBlock)
		d.adapter.Free(e.scanDataBlock)
		e.scanDataBlock = block
	}
	d.scanCapacity = capacity
	return nil
}

// Capacity returns the largest scan a render currently accepts.
func (d *Decoder) Capacity() uint32 { return d.scanCapacity }

// Channel returns the channel Initialize opened, for allocating Surface and
// VideoSurface destinations against the same adapter. Nil before
// Initialize succeeds or after Finalize.
func (d *Decoder) Channel() *Channel { return d.channel }

// Adapter returns the ChannelAdapter the Decoder was constructed with.
func (d *Decoder) Adapter() ChannelAdapter { return d.adapter }

// GetClockRate reads the engine's current clock rate.
func (d *Decoder) GetClockRate() (uint32, error) {
	return d.adapter.GetClockRate(d.channel, engineClassID)
}

// SetClockRate requests a new engine clock rate.
func (d *Decoder) SetClockRate(rate uint32) error {
	return d.adapter.SetClockRate(d.channel, engineClassID, rate)
}

// validateCommon checks the preconditions every render shares, regardless
// of destination surface kind.
func validateCommon(img *Image, width, height uint32) error {
	if img.Progressive {
		return fmt.Errorf("nvjpg: render: %w: progressive scans are not supported", ErrInvalid)
	}
	if img.Width == 0 || img.Height == 0 {
		return fmt.Errorf("nvjpg: render: %w: zero-sized image", ErrInvalid)
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("nvjpg: render: %w: zero-sized surface", ErrInvalid)
	}
	if img.NumComponents == 1 {
		c := img.Components[0]
		if c.SamplingHoriz != 1 || c.SamplingVert != 1 {
			return fmt.Errorf("nvjpg: render: %w: monochrome image with non-1:1 sampling", ErrInvalid)
		}
	}
	return nil
}

// beginSubmit waits for entry's previous submit to retire (a no-op if it
// already has, or if there was none), then copies img's scan data into
// entry's scan-data block and flushes it. The picture info is staged later,
// by submitCommon.
func (d *Decoder) beginSubmit(entry *ringEntry, img *Image) error {
	if entry.hasPending {
		if err := d.adapter.Wait(entry.pending, -1); err != nil {
			return err
		}
	}

	scanData := img.Buffer.Bytes()[img.ScanOffset:]
	if uint32(len(scanData)) > entry.scanDataBlock.Size() {
		return fmt.Errorf("nvjpg: render: %w: scan is %d bytes, capacity is %d", ErrNoMemory, len(scanData), entry.scanDataBlock.Size())
	}
	copy(entry.scanDataBlock.CPU(), scanData)
	if err := d.adapter.FlushCache(entry.scanDataBlock); err != nil {
		return err
	}
	return nil
}

// submitCommon builds the two-buffer command stream (engine ops, then the
// syncpoint-increment footer) common to both render variants and issues it.
func (d *Decoder) submitCommon(entry *ringEntry, outBlock *MemoryBlock, outOffset, outOffset2, outOffset3 uint32, threePlane bool) (Fence, error) {
	copy(entry.picInfoBlock.CPU(), entry.picInfo.Bytes())

	if err := d.adapter.FlushCache(entry.picInfoBlock); err != nil {
		return Fence{}, err
	}

	cb := entry.cmdbuf
	cb.Clear()

	cb.Begin(engineClassID, -1)
	cb.PushValue(nvjpgRegOperationType, 1)
	cb.PushReloc(nvjpgRegPictureInfoOffset, entry.picInfoBlock, 0, 8, RelocDefault)
	cb.PushReloc(nvjpgRegReadInfoOffset, entry.readDataBlock, 0, 8, RelocDefault)
	cb.PushReloc(nvjpgRegScanDataOffset, entry.scanDataBlock, 0, 8, RelocDefault)
	cb.PushReloc(nvjpgRegOutDataOffset, outBlock, outOffset, 8, RelocDefault)
	if threePlane {
		cb.PushReloc(nvjpgRegOutData2Offset, outBlock, outOffset2, 8, RelocDefault)
		cb.PushReloc(nvjpgRegOutData3Offset, outBlock, outOffset3, 8, RelocDefault)
	}
	cb.PushValue(nvjpgRegExecute, 0x100)
	cb.End()

	cb.Begin(engineClassID, -1)
	cb.PushSyncptIncr(d.channel.SyncpointID)
	cb.End()

	fence, err := d.adapter.Submit(d.channel, cb.Bufs(), cb.Exts(), cb.ClassIDs(), cb.Relocs(), cb.Shifts(), cb.RelocTypes(), 1)
	if err != nil {
		return Fence{}, err
	}

	entry.pending = fence
	entry.hasPending = true
	return fence, nil
}

// Render decodes img into surf as packed pixels. alpha fills the alpha
// channel for formats that have one. downscale requests the engine scale
// the output down by 1, 2, 4 or 8; any other value selects the largest
// power of two dividing it, capped at 8 (see clampDownscaleLog2).
func (d *Decoder) Render(img *Image, surf *Surface, alpha uint8, downscale uint32) error {
	if err := validateCommon(img, surf.Width, surf.Height); err != nil {
		return err
	}

	entry := d.ring.current()
	if err := d.beginSubmit(entry, img); err != nil {
		return err
	}

	entry.picInfo.Populate(img, surf, alpha, downscale)
	entry.picInfo.SetColorSpace(d.ColorSpace)

	fence, err := d.submitCommon(entry, surf.Block, 0, 0, 0, false)
	if err != nil {
		return err
	}
	surf.RenderFence = fence
	d.ring.advance()
	return nil
}

// RenderVideo decodes img into surf as planar YUV. downscale requests the
// engine scale the output down by 1, 2, 4 or 8.
func (d *Decoder) RenderVideo(img *Image, surf *VideoSurface, downscale uint32) error {
	if err := validateCommon(img, surf.Width, surf.Height); err != nil {
		return err
	}

	entry := d.ring.current()
	if err := d.beginSubmit(entry, img); err != nil {
		return err
	}

	entry.picInfo.PopulateVideo(img, surf, downscale)

	threePlane := img.NumComponents != 1
	fence, err := d.submitCommon(entry, surf.Block, 0, surf.ChromaBOffset, surf.ChromaROffset, threePlane)
	if err != nil {
		return err
	}
	surf.RenderFence = fence
	d.ring.advance()
	return nil
}

type renderSurface interface{ fence() Fence }

// Wait blocks until surf's most recent render completes or timeoutUs
// elapses (negative waits indefinitely), then returns the number of scan
// bytes the engine actually consumed.
func (d *Decoder) Wait(surf renderSurface, timeoutUs int32) (uint32, error) {
	fence := surf.fence()
	if err := d.adapter.Wait(fence, timeoutUs); err != nil {
		return 0, err
	}

	entry := d.ring.findByFence(fence)
	if entry == nil {
		return 0, fmt.Errorf("nvjpg: wait: %w: no ring entry for fence", ErrInvalid)
	}
	if err := d.adapter.InvalidateCache(entry.readDataBlock); err != nil {
		return 0, err
	}
	return binaryLittleEndianUint32(entry.readDataBlock.CPU()[statusUsedBytesOffset:]), nil
}
