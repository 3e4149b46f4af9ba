// Package library holds the two in-memory collections served next to
// notes: a book catalogue keyed by ISBN and a friends list keyed by email.
package library

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNotFound = errors.New("not found")
	ErrNoReview = errors.New("review not found")
)

type Book struct {
	ISBN    string            `json:"isbn"`
	Author  string            `json:"author"`
	Title   string            `json:"title"`
	Reviews map[string]string `json:"reviews"`
}

func (b *Book) clone() Book {
	cp := *b
	cp.Reviews = make(map[string]string, len(b.Reviews))
	for k, v := range b.Reviews {
		cp.Reviews[k] = v
	}
	return cp
}

// Books is a catalogue guarded by a single lock. Reviews are keyed by the
// reviewer's username, one review per user and book.
type Books struct {
	mu    sync.RWMutex
	books map[string]*Book
}

func NewBooks(seed ...Book) *Books {
	b := &Books{books: make(map[string]*Book, len(seed))}
	for _, s := range seed {
		s := s
		if s.Reviews == nil {
			s.Reviews = map[string]string{}
		}
		b.books[s.ISBN] = &s
	}
	return b
}

// All returns every book ordered by ISBN.
func (b *Books) All() []Book {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Book, 0, len(b.books))
	for _, bk := range b.books {
		out = append(out, bk.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ISBN < out[j].ISBN })
	return out
}

func (b *Books) ByISBN(isbn string) (Book, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bk, ok := b.books[isbn]
	if !ok {
		return Book{}, ErrNotFound
	}
	return bk.clone(), nil
}

// ByAuthor matches a case-insensitive substring of the author name.
func (b *Books) ByAuthor(q string) []Book {
	return b.filter(func(bk *Book) string { return bk.Author }, q)
}

// ByTitle matches a case-insensitive substring of the title.
func (b *Books) ByTitle(q string) []Book {
	return b.filter(func(bk *Book) string { return bk.Title }, q)
}

func (b *Books) filter(field func(*Book) string, q string) []Book {
	q = strings.ToLower(q)
	out := []Book{}
	for _, bk := range b.All() {
		bk := bk
		if strings.Contains(strings.ToLower(field(&bk)), q) {
			out = append(out, bk)
		}
	}
	return out
}

// SetReview adds or replaces username's review and returns all reviews of
// the book.
func (b *Books) SetReview(isbn, username, review string) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bk, ok := b.books[isbn]
	if !ok {
		return nil, ErrNotFound
	}
	bk.Reviews[username] = review
	return bk.clone().Reviews, nil
}

func (b *Books) DeleteReview(isbn, username string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bk, ok := b.books[isbn]
	if !ok {
		return ErrNotFound
	}
	if _, ok := bk.Reviews[username]; !ok {
		return ErrNoReview
	}
	delete(bk.Reviews, username)
	return nil
}

// DefaultBooks is the catalogue a fresh server starts with.
func DefaultBooks() []Book {
	return []Book{
		{ISBN: "1", Author: "Chinua Achebe", Title: "Things Fall Apart"},
		{ISBN: "2", Author: "Hans Christian Andersen", Title: "Fairy tales"},
		{ISBN: "3", Author: "Dante Alighieri", Title: "The Divine Comedy"},
		{ISBN: "4", Author: "Unknown", Title: "The Epic Of Gilgamesh"},
		{ISBN: "5", Author: "Unknown", Title: "The Book Of Job"},
		{ISBN: "6", Author: "Unknown", Title: "One Thousand and One Nights"},
		{ISBN: "7", Author: "Unknown", Title: "Njál's Saga"},
		{ISBN: "8", Author: "Jane Austen", Title: "Pride and Prejudice"},
		{ISBN: "9", Author: "Honoré de Balzac", Title: "Le Père Goriot"},
		{ISBN: "10", Author: "Samuel Beckett", Title: "Molloy, Malone Dies, The Unnamable, the trilogy"},
	}
}
