package domain

// BookPage は絵本の 1 ページ（物語の一節と挿絵 1 枚）です。
// ID と Text は生成後に変わりません。ImageURL だけが再生成で差し替えられます。
type BookPage struct {
	ID             int             `json:"id"`
	Text           string          `json:"text"`
	ImageURL       string          `json:"imageUrl"`
	OriginalImages []OriginalImage `json:"originalImages"`
}
