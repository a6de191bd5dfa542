// Command nvjpgsmoke decodes a single JPEG file through the real NVJPG
// engine and logs the resulting frame's stats, mirroring gocam's smoke-test
// binary. It is a thin external collaborator, not part of the library.
package main

import (
	"log"
	"os"

	"github.com/tx1nvjpg/nvjpg"
)

const devicePath = "/dev/nvhost-nvjpg"

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: nvjpgsmoke <path-to-jpeg>")
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("nvjpg: %v", err)
	}

	img, err := nvjpg.Parse(nvjpg.NewByteBuffer(data))
	if err != nil {
		log.Fatalf("nvjpg: parse: %v", err)
	}
	log.Printf("parsed %dx%d, %d component(s), scan data at byte %d",
		img.Width, img.Height, img.NumComponents, img.ScanOffset)

	adapter, err := nvjpg.NewLinuxAdapter(nil)
	if err != nil {
		log.Fatalf("nvjpg: %v", err)
	}
	defer adapter.Close()

	dec := nvjpg.New(adapter, nvjpg.Options{})
	if err := dec.Initialize(devicePath); err != nil {
		log.Fatalf("nvjpg: initialize: %v", err)
	}
	defer dec.Finalize()

	surf := nvjpg.NewSurface(uint32(img.Width), uint32(img.Height), nvjpg.PixelFormatRGBA)
	if err := surf.Allocate(dec.Adapter(), dec.Channel()); err != nil {
		log.Fatalf("nvjpg: allocate surface: %v", err)
	}
	defer surf.Free(dec.Adapter())

	if err := dec.Render(img, surf, 0xff, 0); err != nil {
		log.Fatalf("nvjpg: render: %v", err)
	}

	usedBytes, err := dec.Wait(surf, -1)
	if err != nil {
		log.Fatalf("nvjpg: wait: %v", err)
	}

	log.Printf("decoded %dx%d into %s surface (pitch %d), engine consumed %d scan bytes",
		surf.Width, surf.Height, pixelFormatName(surf.Format), surf.Pitch, usedBytes)
}

func pixelFormatName(f nvjpg.PixelFormat) string {
	switch f {
	case nvjpg.PixelFormatRGB:
		return "RGB"
	case nvjpg.PixelFormatBGR:
		return "BGR"
	case nvjpg.PixelFormatRGBA:
		return "RGBA"
	case nvjpg.PixelFormatBGRA:
		return "BGRA"
	case nvjpg.PixelFormatABGR:
		return "ABGR"
	case nvjpg.PixelFormatARGB:
		return "ARGB"
	default:
		return "unknown"
	}
}
