// Package texture is the closed set of texture encodings a mesh may carry and
// the dispatch that turns one into pixels. Only JPEG is decoded here; the GPU
// block formats are handed through untouched for the renderer to upload.
package texture

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
	"strings"

	"rocktree.lol/lol"
)

var log, chk, errorf = lol.Main.Log, lol.Main.Check, lol.Main.Errorf

// Format is the texture encoding tag as carried on the wire.
type Format uint8

const (
	Unknown Format = iota
	Jpeg
	Dxt1
	Etc1
	Pvrtc2
	Pvrtc4
	CrnDxt1
)

var names = map[Format]string{
	Unknown: "unknown",
	Jpeg:    "jpeg",
	Dxt1:    "dxt1",
	Etc1:    "etc1",
	Pvrtc2:  "pvrtc2",
	Pvrtc4:  "pvrtc4",
	CrnDxt1: "crn-dxt1",
}

func (f Format) String() string {
	if s, ok := names[f]; ok {
		return s
	}
	return "unknown"
}

// Valid reports whether f is one of the known encodings.
func (f Format) Valid() bool { return f >= Jpeg && f <= CrnDxt1 }

// Compressed reports whether f is a GPU block format.
func (f Format) Compressed() bool { return f.Valid() && f != Jpeg }

// Bit is the mask bit of f in an availability bitmask.
func (f Format) Bit() uint32 { return 1 << (uint32(f) - 1) }

// Parse returns the format with the given name.
func Parse(s string) (f Format, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, n := range names {
		if f != Unknown && n == s {
			return f, nil
		}
	}
	err = errorf.E("texture: unknown format %q", s)
	return
}

// ParseList parses a comma separated list of format names.
func ParseList(s string) (fs []Format, err error) {
	for _, n := range strings.Split(s, ",") {
		if strings.TrimSpace(n) == "" {
			continue
		}
		var f Format
		if f, err = Parse(n); err != nil {
			return
		}
		fs = append(fs, f)
	}
	return
}

// DefaultPreference asks for crunched DXT1 first and JPEG second.
var DefaultPreference = []Format{CrnDxt1, Jpeg}

// Select picks the first format of prefs present in the availability bitmask.
// When none is available the first preference is returned, which is what the
// server falls back to as well.
func Select(available uint32, prefs []Format) Format {
	if len(prefs) == 0 {
		prefs = DefaultPreference
	}
	for _, f := range prefs {
		if available&f.Bit() != 0 {
			return f
		}
	}
	return prefs[0]
}

// Detect guesses the format of data from its leading signature.
func Detect(data []byte) Format {
	switch {
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		return Jpeg
	case len(data) >= 4 && data[0] == 'H' && data[1] == 'x':
		return CrnDxt1
	}
	return Unknown
}

// Texture is a decoded texture. RGBA is set for formats decoded to pixels,
// Raw holds the untouched payload of the compressed formats.
type Texture struct {
	Format Format
	Width  int
	Height int
	RGBA   []byte
	Raw    []byte
}

// Size is the number of bytes held by t.
func (t *Texture) Size() int { return len(t.RGBA) + len(t.Raw) }

// Decode dispatches on f. JPEG data is decoded to tightly packed RGBA, every
// other valid format is returned as is with the dimensions given.
func Decode(f Format, data []byte, width, height int) (t *Texture, err error) {
	t = &Texture{Format: f, Width: width, Height: height}
	switch {
	case f == Jpeg:
		var img image.Image
		if img, err = jpeg.Decode(bytes.NewReader(data)); chk.D(err) {
			err = errorf.D("texture: jpeg: %w", err)
			return nil, err
		}
		b := img.Bounds()
		rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
		t.Width, t.Height, t.RGBA = b.Dx(), b.Dy(), rgba.Pix
	case f.Compressed():
		if d := Detect(data); f == CrnDxt1 && d != CrnDxt1 {
			log.D.F("crn texture %dx%d without crunch signature", width, height)
		}
		t.Raw = data
	default:
		return nil, errorf.D("texture: cannot decode format %d", f)
	}
	return
}
