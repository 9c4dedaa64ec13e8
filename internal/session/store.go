// Package session は生成済みの絵本をメモリ上に保持します。プロセスを再起動すると消えます。
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shouni/gemini-picture-book/pkg/domain"
)

var (
	ErrBookNotFound = errors.New("book not found")
	ErrPageNotFound = errors.New("page not found")
)

// Book は 1 冊分の生成結果です。
type Book struct {
	ID        string             `json:"id"`
	Theme     string             `json:"theme"`
	Style     domain.StylePreset `json:"style"`
	Pages     []domain.BookPage  `json:"pages"`
	CreatedAt time.Time          `json:"createdAt"`
}

// Store は go-cache を使った TTL 付きの絵本置き場です。
type Store struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
	newID func() string
}

// NewStore は ttl が経過した絵本を自動で捨てる Store を作ります。
func NewStore(ttl time.Duration) *Store {
	return &Store{
		cache: cache.New(ttl, ttl/2),
		ttl:   ttl,
		newID: uuid.NewString,
	}
}

// Save は新しい ID を振って絵本を保存し、保存したものの写しを返します。
func (s *Store) Save(theme string, style domain.StylePreset, pages []domain.BookPage) Book {
	b := &Book{
		ID:        s.newID(),
		Theme:     theme,
		Style:     style,
		Pages:     clonePages(pages),
		CreatedAt: time.Now(),
	}
	s.cache.Set(b.ID, b, s.ttl)
	return b.snapshot()
}

// Get は絵本の写しを返します。
func (s *Store) Get(id string) (Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.lookup(id)
	if !ok {
		return Book{}, ErrBookNotFound
	}
	return b.snapshot(), nil
}

// Page は 1 ページ分の写しを返します。
func (s *Store) Page(bookID string, pageID int) (domain.BookPage, Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.lookup(bookID)
	if !ok {
		return domain.BookPage{}, Book{}, ErrBookNotFound
	}
	i := indexOf(b.Pages, pageID)
	if i < 0 {
		return domain.BookPage{}, Book{}, ErrPageNotFound
	}
	return b.Pages[i], b.snapshot(), nil
}

// UpdatePageImage は id が一致するページの imageUrl だけを差し替えます。
// 文章や他のページには触れません。
func (s *Store) UpdatePageImage(bookID string, pageID int, imageURL string) (domain.BookPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.lookup(bookID)
	if !ok {
		return domain.BookPage{}, ErrBookNotFound
	}
	i := indexOf(b.Pages, pageID)
	if i < 0 {
		return domain.BookPage{}, ErrPageNotFound
	}
	b.Pages[i].ImageURL = imageURL
	// 更新したら有効期限を延ばす
	s.cache.Set(b.ID, b, s.ttl)
	return b.Pages[i], nil
}

func (s *Store) lookup(id string) (*Book, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	b, ok := v.(*Book)
	return b, ok
}

func (b *Book) snapshot() Book {
	out := *b
	out.Pages = clonePages(b.Pages)
	return out
}

// clonePages はページのスライスを複製します。OriginalImages は読み取り専用なので共有したままです。
func clonePages(pages []domain.BookPage) []domain.BookPage {
	out := make([]domain.BookPage, len(pages))
	copy(out, pages)
	return out
}

func indexOf(pages []domain.BookPage, id int) int {
	for i := range pages {
		if pages[i].ID == id {
			return i
		}
	}
	return -1
}
