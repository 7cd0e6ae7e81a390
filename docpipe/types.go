package docpipe

import "time"

// Format is the routing decision of the classifier.
type Format string

const (
	FormatImage       Format = "image"
	FormatPDF         Format = "pdf"
	FormatUnsupported Format = "unsupported"
)

// ImageType is the concrete encoding of an image upload.
type ImageType string

const (
	ImagePNG  ImageType = "png"
	ImageJPEG ImageType = "jpeg"
	ImageBMP  ImageType = "bmp"
	ImageTIFF ImageType = "tiff"
)

// Upload is one uploaded document. It lives for a single extraction and is
// never retained by the pipeline.
type Upload struct {
	Filename  string
	MediaType string // as declared by the client, may be empty or wrong
	Data      []byte
}

// Size returns the upload size in bytes.
func (u Upload) Size() int64 { return int64(len(u.Data)) }

// PageResult is the outcome of one page. Failed pages carry empty text.
type PageResult struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	OK    bool   `json:"ok"`
	Kind  Kind   `json:"kind,omitempty"`
	Err   string `json:"error,omitempty"`
}

// Result is the outcome of one extraction. Pages are ordered by index.
type Result struct {
	Filename string        `json:"filename"`
	Format   Format        `json:"format"`
	Pages    []PageResult  `json:"pages"`
	Text     string        `json:"text"`
	Language string        `json:"language,omitempty"`
	Quality  Quality       `json:"quality"`
	Duration time.Duration `json:"duration_ns"`
}

// Failed counts the pages that did not produce text.
func (r *Result) Failed() int {
	n := 0
	for _, p := range r.Pages {
		if !p.OK {
			n++
		}
	}
	return n
}

// Event reports one finished page.
type Event struct {
	Index int    `json:"index"`
	Total int    `json:"total"`
	OK    bool   `json:"ok"`
	Kind  Kind   `json:"kind,omitempty"`
	Text  string `json:"text"`
}
