package nvjpg

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestAlignUp(t *testing.T) {
	c := qt.New(t)
	c.Assert(AlignUp(0, 256), qt.Equals, uint32(0))
	c.Assert(AlignUp(1, 256), qt.Equals, uint32(256))
	c.Assert(AlignUp(256, 256), qt.Equals, uint32(256))
	c.Assert(AlignUp(257, 256), qt.Equals, uint32(512))
}

func TestComputePitchAndSize(t *testing.T) {
	c := qt.New(t)
	c.Assert(computePitch(100), qt.Equals, uint32(256))
	c.Assert(computePitch(300), qt.Equals, uint32(512))
	c.Assert(computeSize(256, 100), qt.Equals, uint32(131072))
	c.Assert(computeSize(4096, 4096), qt.Equals, uint32(AlignUp(4096*4096, 131072)))
}

func TestNewSurfacePitch(t *testing.T) {
	c := qt.New(t)
	s := NewSurface(100, 50, PixelFormatRGBA)
	c.Assert(s.Pitch, qt.Equals, computePitch(100*4))
	c.Assert(s.Pitch%256, qt.Equals, uint32(0))
}

func TestSamplingSubsamplingAllSchemes(t *testing.T) {
	c := qt.New(t)
	cases := []struct {
		s            SamplingScheme
		hDiv, vDiv   uint32
	}{
		{Sampling420, 2, 2},
		{Sampling422, 2, 1},
		{Sampling440, 1, 2},
		{Sampling444, 1, 1},
	}
	for _, tc := range cases {
		h, v := tc.s.subsampling()
		c.Assert(h, qt.Equals, tc.hDiv, qt.Commentf("sampling=%d", tc.s))
		c.Assert(v, qt.Equals, tc.vDiv, qt.Commentf("sampling=%d", tc.s))
	}
}

func TestNewVideoSurfacePlaneLayout(t *testing.T) {
	c := qt.New(t)
	for _, sampling := range []SamplingScheme{Sampling420, Sampling422, Sampling440, Sampling444} {
		s := NewVideoSurface(256, 256, sampling, MemoryModeSemiPlanarNV12)

		c.Assert(s.LumaPitch%256, qt.Equals, uint32(0), qt.Commentf("sampling=%d", sampling))
		c.Assert(s.ChromaPitch%256, qt.Equals, uint32(0), qt.Commentf("sampling=%d", sampling))
		c.Assert(s.ChromaBOffset, qt.Equals, computeSize(s.LumaPitch, s.Height), qt.Commentf("sampling=%d", sampling))
		c.Assert(s.ChromaROffset > s.ChromaBOffset, qt.Equals, true, qt.Commentf("sampling=%d", sampling))

		hDiv, vDiv := sampling.subsampling()
		wantChromaPitch := computePitch(256 / hDiv)
		wantChromaSize := computeSize(wantChromaPitch, 256/vDiv)
		c.Assert(s.ChromaROffset-s.ChromaBOffset, qt.Equals, wantChromaSize, qt.Commentf("sampling=%d", sampling))
	}
}

func TestVideoSurfaceTotalSizeMono(t *testing.T) {
	c := qt.New(t)
	s := NewVideoSurface(128, 128, SamplingMono, MemoryModePlanar)
	c.Assert(s.totalSize(), qt.Equals, computeSize(s.LumaPitch, s.Height))
}

func TestVideoSurfaceTotalSizeIncludesBothChromaPlanes(t *testing.T) {
	c := qt.New(t)
	s := NewVideoSurface(128, 128, Sampling420, MemoryModeSemiPlanarNV12)
	chromaSize := s.ChromaROffset - s.ChromaBOffset
	c.Assert(s.totalSize(), qt.Equals, s.ChromaBOffset+2*chromaSize)
}

// mockSurfaceAdapter is a tiny in-package ChannelAdapter stub exercising only
// the allocate/map path Surface.Allocate and VideoSurface.Allocate drive.
type mockSurfaceAdapter struct {
	nextHandle uint32
}

func (m *mockSurfaceAdapter) OpenChannel(string) (*Channel, error)         { return &Channel{}, nil }
func (m *mockSurfaceAdapter) CloseChannel(*Channel) error                 { return nil }
func (m *mockSurfaceAdapter) Allocate(size, align, flags uint32) (*MemoryBlock, error) {
	m.nextHandle++
	return &MemoryBlock{size: size, align: align, flags: flags, handle: m.nextHandle}, nil
}
func (m *mockSurfaceAdapter) Free(mb *MemoryBlock) error      { return nil }
func (m *mockSurfaceAdapter) MapCPU(mb *MemoryBlock) error    { mb.cpu = make([]byte, mb.size); return nil }
func (m *mockSurfaceAdapter) UnmapCPU(mb *MemoryBlock) error  { mb.cpu = nil; return nil }
func (m *mockSurfaceAdapter) MapDevice(mb *MemoryBlock, ch *Channel) error {
	mb.deviceVA, mb.deviceMapped = mb.handle, true
	return nil
}
func (m *mockSurfaceAdapter) UnmapDevice(mb *MemoryBlock) error { mb.deviceMapped = false; return nil }
func (m *mockSurfaceAdapter) FlushCache(mb *MemoryBlock) error      { return nil }
func (m *mockSurfaceAdapter) InvalidateCache(mb *MemoryBlock) error { return nil }
func (m *mockSurfaceAdapter) Submit(ch *Channel, bufs []CmdBufRange, exts []CmdBufExt, classIDs []uint32, relocs []Reloc, shifts []RelocShift, types []RelocType, incrCount uint32) (Fence, error) {
	return Fence{}, nil
}
func (m *mockSurfaceAdapter) Wait(fence Fence, timeoutUs int32) error             { return nil }
func (m *mockSurfaceAdapter) GetClockRate(ch *Channel, classID uint32) (uint32, error) { return 0, nil }
func (m *mockSurfaceAdapter) SetClockRate(ch *Channel, classID, rate uint32) error     { return nil }
func (m *mockSurfaceAdapter) Close() error                                            { return nil }

func TestSurfaceAllocateFree(t *testing.T) {
	c := qt.New(t)
	adapter := &mockSurfaceAdapter{}
	s := NewSurface(64, 64, PixelFormatRGBA)

	c.Assert(s.Allocate(adapter, &Channel{}), qt.IsNil)
	c.Assert(s.Block, qt.Not(qt.IsNil))
	c.Assert(len(s.Block.CPU()), qt.Equals, int(s.Block.Size()))

	c.Assert(s.Free(adapter), qt.IsNil)
	c.Assert(s.Block, qt.IsNil)
	// Freeing twice is a no-op.
	c.Assert(s.Free(adapter), qt.IsNil)
}
