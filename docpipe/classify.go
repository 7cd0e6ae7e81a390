package docpipe

import (
	"bytes"
	"encoding/binary"
	"mime"
	"path/filepath"
	"strings"
)

// pdfSniffWindow is how far into the upload the %PDF- marker may appear.
// Some producers prepend junk before the header.
const pdfSniffWindow = 1024

// signatures are matched in order. plausible, when set, must also accept
// the header: short magics such as "BM" start ordinary text too.
var signatures = []struct {
	magic     []byte
	typ       ImageType
	plausible func([]byte) bool
}{
	{[]byte("\x89PNG\r\n\x1a\n"), ImagePNG, nil},
	{[]byte{0xFF, 0xD8, 0xFF}, ImageJPEG, nil},
	{[]byte("II*\x00"), ImageTIFF, nil},
	{[]byte("MM\x00*"), ImageTIFF, nil},
	{[]byte("BM"), ImageBMP, bmpHeader},
}

// bmpHeader checks the BITMAPFILEHEADER reserved fields and the size of
// the DIB header that follows it.
func bmpHeader(data []byte) bool {
	if len(data) < 18 {
		return false
	}
	if binary.LittleEndian.Uint32(data[6:10]) != 0 {
		return false
	}
	switch binary.LittleEndian.Uint32(data[14:18]) {
	case 12, 40, 52, 56, 64, 108, 124:
		return true
	}
	return false
}

var mediaTypes = map[string]ImageType{
	"image/png":      ImagePNG,
	"image/jpeg":     ImageJPEG,
	"image/jpg":      ImageJPEG,
	"image/pjpeg":    ImageJPEG,
	"image/bmp":      ImageBMP,
	"image/x-bmp":    ImageBMP,
	"image/x-ms-bmp": ImageBMP,
	"image/tiff":     ImageTIFF,
	"image/x-tiff":   ImageTIFF,
}

var extensions = map[string]ImageType{
	".png":  ImagePNG,
	".jpg":  ImageJPEG,
	".jpeg": ImageJPEG,
	".jpe":  ImageJPEG,
	".bmp":  ImageBMP,
	".dib":  ImageBMP,
	".tif":  ImageTIFF,
	".tiff": ImageTIFF,
}

// Classify decides how an upload is processed. The byte signature wins
// whenever it is recognised; otherwise the declared media type and then
// the filename extension decide. Empty data is always unsupported.
func Classify(declared, filename string, data []byte) (Format, ImageType) {
	if len(data) == 0 {
		return FormatUnsupported, ""
	}
	if f, t, ok := sniff(data); ok {
		return f, t
	}
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		mt = strings.ToLower(mt)
		if mt == "application/pdf" || mt == "application/x-pdf" {
			return FormatPDF, ""
		}
		if t, ok := mediaTypes[mt]; ok {
			return FormatImage, t
		}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".pdf" {
		return FormatPDF, ""
	}
	if t, ok := extensions[ext]; ok {
		return FormatImage, t
	}
	return FormatUnsupported, ""
}

func sniff(data []byte) (Format, ImageType, bool) {
	for _, s := range signatures {
		if bytes.HasPrefix(data, s.magic) && (s.plausible == nil || s.plausible(data)) {
			return FormatImage, s.typ, true
		}
	}
	head := data
	if len(head) > pdfSniffWindow {
		head = head[:pdfSniffWindow]
	}
	if bytes.Contains(head, []byte("%PDF-")) {
		return FormatPDF, "", true
	}
	return "", "", false
}

// Detect classifies an upload.
func (p *Pipeline) Detect(u Upload) (Format, ImageType) {
	return Classify(u.MediaType, u.Filename, u.Data)
}
