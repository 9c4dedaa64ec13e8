package domain

import "encoding/base64"

// OriginalImage はユーザーがアップロードしたキャラクターの絵 1 枚分です。
// 取り込み後は変更されず、その絵を使って生成した全ページから共有参照されます。
type OriginalImage struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`
}

// Bytes は Base64 をデコードした生データを返します。
func (o OriginalImage) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(o.Base64)
}

// ImageResponse は生成された画像データとそのメタデータです。
type ImageResponse struct {
	Data     []byte
	MimeType string
}

// DataURI は画像を img タグにそのまま渡せる data URI に変換します。
func (r *ImageResponse) DataURI() string {
	return DataURI(r.MimeType, base64.StdEncoding.EncodeToString(r.Data))
}

// DataURI は MIME タイプと Base64 ペイロードから data URI を組み立てます。
func DataURI(mimeType, payload string) string {
	return "data:" + mimeType + ";base64," + payload
}
