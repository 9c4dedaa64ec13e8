package imgutil

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/shouni/gemini-picture-book/pkg/domain"
)

// ErrUnsupportedImage はアップロードされたデータが画像として扱えないことを表します。
var ErrUnsupportedImage = errors.New("unsupported image upload")

// UploadOptions はアップロード画像を参照画像に変換するときの設定です。
type UploadOptions struct {
	// CompressOverBytes を超えるサイズの画像は JPEG に再圧縮します。0 以下なら圧縮しません。
	CompressOverBytes int
	JPEGQuality       int
}

// DefaultUploadOptions は 1MiB を超えたら品質 85 で圧縮する設定です。
func DefaultUploadOptions() UploadOptions {
	return UploadOptions{
		CompressOverBytes: 1 << 20,
		JPEGQuality:       85,
	}
}

// ToOriginalImage はアップロードされた画像のバイト列を OriginalImage に変換します。
// MIME タイプは申告された値ではなく中身から判定するのだ。
func ToOriginalImage(data []byte, opts UploadOptions) (domain.OriginalImage, error) {
	if len(data) == 0 {
		return domain.OriginalImage{}, fmt.Errorf("%w: empty file", ErrUnsupportedImage)
	}

	mime := mimetype.Detect(data)
	if !isImage(mime) {
		return domain.OriginalImage{}, fmt.Errorf("%w: detected %s", ErrUnsupportedImage, mime.String())
	}
	mimeType := mime.String()

	if opts.CompressOverBytes > 0 && len(data) > opts.CompressOverBytes {
		compressed, err := CompressToJPEG(data, opts.JPEGQuality)
		if err != nil {
			return domain.OriginalImage{}, fmt.Errorf("%w: compress %s: %v", ErrUnsupportedImage, mimeType, err)
		}
		if len(compressed) < len(data) {
			data = compressed
			mimeType = "image/jpeg"
		}
	}

	return domain.OriginalImage{
		Base64:   base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}, nil
}

func isImage(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("image/png") || m.Is("image/jpeg") || m.Is("image/gif") || m.Is("image/webp") {
			return true
		}
	}
	return false
}
