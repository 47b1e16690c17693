package llm

import (
	"bytes"
	"encoding/base64"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
)

// Image MIME types recognised by DetectMIME.
const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEGIF  = "image/gif"
	MIMEWebP = "image/webp"
)

// DetectMIME identifies PNG, JPEG, GIF and WebP data from its magic bytes.
// It returns "" for anything else.
func DetectMIME(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return MIMEPNG
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return MIMEJPEG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return MIMEGIF
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return MIMEWebP
	}
	return ""
}

// encoded returns the MIME type and base64 payload of img.
func (img Image) encoded() (mime, b64 string, err error) {
	mime = img.MIME
	if mime == "" {
		mime = DetectMIME(img.Data)
	}
	if mime == "" {
		return "", "", &dferrors.ConfigError{Field: "image", Message: "unsupported image format (want PNG, JPEG, GIF or WebP)"}
	}
	return mime, base64.StdEncoding.EncodeToString(img.Data), nil
}

// DataURL encodes img as a data: URL.
func (img Image) DataURL() (string, error) {
	mime, b64, err := img.encoded()
	if err != nil {
		return "", err
	}
	return "data:" + mime + ";base64," + b64, nil
}
