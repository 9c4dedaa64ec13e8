package generator

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/shouni/gemini-picture-book/pkg/domain"
)

const storyPromptText = `あなたは小さな子ども向けの絵本作家です。
次のテーマで、{{.PageCount}}ページの絵本の物語を日本語で書いてください。

テーマ: {{.Theme}}

守ってほしいこと:
- 1ページあたり2〜3文の短い文章にしてください。
- 小さな子どもにも分かるやさしい言葉を使ってください。
- 物語には始まりと盛り上がりと結末を入れてください。
- 出力は {"pages": ["1ページ目の文章", "2ページ目の文章"]} の形のJSONだけにしてください。
- pages の要素数はちょうど{{.PageCount}}にしてください。`

const pagePromptText = `添付したキャラクターの絵{{if .ReferenceCount}}（{{.ReferenceCount}}枚）{{end}}をもとに、絵本の挿絵を1枚描いてください。

画風: {{.StyleLabel}}（{{.StyleDescription}}）
場面: {{.StoryText}}

守ってほしいこと:
- 登場するキャラクターは、添付の絵と同じ形や色や特徴で描いてください。
- 画像の中に文字、吹き出し、ロゴ、サインなどの文字要素は一切描かないでください。
{{- if .Variation}}
- 前回とは違う新しいアイデアで、構図や表現を変えて描いてください。
{{- end}}`

var (
	storyPromptTemplate = template.Must(template.New("story").Parse(storyPromptText))
	pagePromptTemplate  = template.Must(template.New("page").Parse(pagePromptText))
)

type storyPromptData struct {
	Theme     string
	PageCount int
}

type pagePromptData struct {
	StoryText        string
	StyleLabel       string
	StyleDescription string
	ReferenceCount   int
	Variation        bool
}

func buildStoryPrompt(theme string, pageCount int) (string, error) {
	return execute(storyPromptTemplate, storyPromptData{Theme: theme, PageCount: pageCount})
}

// buildPagePrompt は挿絵 1 枚分のプロンプトを作ります。variation が true なら再生成用の指示を足します。
func buildPagePrompt(storyText string, style domain.StylePreset, referenceCount int, variation bool) (string, error) {
	label := style.Label()
	if label == "" {
		label = string(style)
	}
	return execute(pagePromptTemplate, pagePromptData{
		StoryText:        storyText,
		StyleLabel:       label,
		StyleDescription: style.PromptDescription(),
		ReferenceCount:   referenceCount,
		Variation:        variation,
	})
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s prompt template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
