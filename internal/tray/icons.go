package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"sync"

	"github.com/tnunamak/gravmeter/internal/present"
)

var gray = color.RGBA{0x88, 0x88, 0x88, 0xff}

var (
	iconMu    sync.Mutex
	iconCache = map[string][]byte{}
)

// iconFor returns the 64px PNG for the tray state; gray until something
// has been fetched.
func iconFor(level present.Level, known bool) []byte {
	if !known {
		return renderIcon(gray, 64)
	}
	return renderIcon(levelColor(level), 64)
}

func levelColor(l present.Level) color.RGBA {
	hex := l.Hex()
	if len(hex) != 7 {
		return gray
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return gray
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 0xff}
}

// renderIcon draws a filled disc of c on a transparent square.
func renderIcon(c color.RGBA, size int) []byte {
	key := strconv.Itoa(size) + "/" + strconv.FormatUint(uint64(c.R)<<16|uint64(c.G)<<8|uint64(c.B), 16)
	iconMu.Lock()
	defer iconMu.Unlock()
	if data, ok := iconCache[key]; ok {
		return data
	}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	r := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)+0.5-r, float64(y)+0.5-r
			if dx*dx+dy*dy <= (r-1)*(r-1) {
				img.SetRGBA(x, y, c)
			}
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	iconCache[key] = buf.Bytes()
	return iconCache[key]
}
