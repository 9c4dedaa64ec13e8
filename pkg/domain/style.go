package domain

import "fmt"

// StylePreset は挿絵の画風です。取りうる値は下の定数に限られます。
type StylePreset string

const (
	StyleWatercolor StylePreset = "watercolor"
	StyleCrayon     StylePreset = "crayon"
	StylePopArt     StylePreset = "pop-art"
	StyleManga      StylePreset = "manga"
	StylePixelArt   StylePreset = "pixel-art"
	StyleFantasy    StylePreset = "fantasy"
)

type styleInfo struct {
	label  string
	prompt string
}

var styles = map[StylePreset]styleInfo{
	StyleWatercolor: {label: "水彩画", prompt: "やさしい色合いの水彩画風。にじみと紙の質感を活かしたタッチ"},
	StyleCrayon:     {label: "クレヨン", prompt: "子どもが描いたようなクレヨン画風。太く素朴な線と塗りムラ"},
	StylePopArt:     {label: "ポップアート", prompt: "鮮やかな原色とはっきりした輪郭線のポップアート風"},
	StyleManga:      {label: "マンガ", prompt: "日本のマンガ風。くっきりした線画とトーン表現"},
	StylePixelArt:   {label: "ドット絵", prompt: "レトロゲームのようなドット絵風。限られた色数のピクセル表現"},
	StyleFantasy:    {label: "ファンタジー", prompt: "幻想的なファンタジー絵本風。光と色彩を豊かに使った描写"},
}

// styleOrder は画面に並べる順番です。
var styleOrder = []StylePreset{
	StyleWatercolor,
	StyleCrayon,
	StylePopArt,
	StyleManga,
	StylePixelArt,
	StyleFantasy,
}

// AllStyles は選択可能な全画風を表示順で返します。
func AllStyles() []StylePreset {
	out := make([]StylePreset, len(styleOrder))
	copy(out, styleOrder)
	return out
}

// ParseStylePreset は文字列を StylePreset に変換します。未知の値はエラーです。
func ParseStylePreset(s string) (StylePreset, error) {
	p := StylePreset(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown style preset: %q", s)
	}
	return p, nil
}

func (s StylePreset) Valid() bool {
	_, ok := styles[s]
	return ok
}

// Label は画面表示用の名前です。
func (s StylePreset) Label() string {
	return styles[s].label
}

// PromptDescription は画像生成プロンプトに埋め込む画風の説明です。
func (s StylePreset) PromptDescription() string {
	if info, ok := styles[s]; ok {
		return info.prompt
	}
	return string(s)
}
