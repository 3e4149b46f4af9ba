package library

import (
	"sort"
	"sync"
)

type Friend struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	DOB       string `json:"DOB"`
}

type Friends struct {
	mu      sync.RWMutex
	friends map[string]Friend
}

func NewFriends(seed ...Friend) *Friends {
	f := &Friends{friends: make(map[string]Friend, len(seed))}
	for _, s := range seed {
		f.friends[s.Email] = s
	}
	return f
}

// All returns every friend ordered by email.
func (f *Friends) All() []Friend {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Friend, 0, len(f.friends))
	for _, fr := range f.friends {
		out = append(out, fr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (f *Friends) Get(email string) (Friend, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	fr, ok := f.friends[email]
	if !ok {
		return Friend{}, ErrNotFound
	}
	return fr, nil
}

// Put creates fr or replaces the friend with the same email.
func (f *Friends) Put(fr Friend) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.friends[fr.Email] = fr
}

// Update copies the non-empty fields of patch onto the friend at email.
func (f *Friends) Update(email string, patch Friend) (Friend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fr, ok := f.friends[email]
	if !ok {
		return Friend{}, ErrNotFound
	}
	if patch.FirstName != "" {
		fr.FirstName = patch.FirstName
	}
	if patch.LastName != "" {
		fr.LastName = patch.LastName
	}
	if patch.DOB != "" {
		fr.DOB = patch.DOB
	}
	f.friends[email] = fr
	return fr, nil
}

func (f *Friends) Delete(email string) (Friend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fr, ok := f.friends[email]
	if !ok {
		return Friend{}, ErrNotFound
	}
	delete(f.friends, email)
	return fr, nil
}

func DefaultFriends() []Friend {
	return []Friend{
		{Email: "user1@mail.com", FirstName: "John", LastName: "Doe", DOB: "1990-01-01"},
		{Email: "user2@mail.com", FirstName: "Jane", LastName: "Smith", DOB: "1992-05-12"},
	}
}
