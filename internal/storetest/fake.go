// Package storetest provides an in-memory RecordStore for unit tests.
package storetest

import (
	"context"
	"fmt"
	"sync"

	"jobsprint/discovery-engine/internal/model"
	"jobsprint/discovery-engine/internal/store"
)

// Fake is a thread-safe in-memory RecordStore. Zero value is not usable;
// call New.
type Fake struct {
	mu       sync.Mutex
	users    []store.ActiveUser
	postings map[string]model.Posting          // source URL -> posting
	links    map[string]*model.UserPostingLink // userID+"|"+postingID -> link
	nextID   int

	// Error hooks let tests inject failures per operation.
	UsersErr      error
	ExistsErr     error
	UpsertErr     error
	LinkErr       error
	UnnotifiedErr error
	NotifyErr     error
	UsersCalls    int
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		postings: make(map[string]model.Posting),
		links:    make(map[string]*model.UserPostingLink),
	}
}

// AddUser registers an active user with criteria.
func (f *Fake) AddUser(u model.User, c model.SearchCriteria) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.UserID = u.ID
	f.users = append(f.users, store.ActiveUser{User: u, Criteria: c})
}

// RemoveUser drops a user from the active set, simulating deactivation.
func (f *Fake) RemoveUser(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.users[:0]
	for _, au := range f.users {
		if au.User.ID != userID {
			kept = append(kept, au)
		}
	}
	f.users = kept
}

func (f *Fake) GetActiveUsersWithCriteria(context.Context) ([]store.ActiveUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UsersCalls++
	if f.UsersErr != nil {
		return nil, f.UsersErr
	}
	out := make([]store.ActiveUser, len(f.users))
	copy(out, f.users)
	return out, nil
}

func (f *Fake) ExistsLink(_ context.Context, userID, sourceURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ExistsErr != nil {
		return false, f.ExistsErr
	}
	p, ok := f.postings[sourceURL]
	if !ok {
		return false, nil
	}
	_, ok = f.links[linkKey(userID, p.ID)]
	return ok, nil
}

func (f *Fake) UpsertPosting(_ context.Context, p model.Posting) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpsertErr != nil {
		return "", f.UpsertErr
	}
	if existing, ok := f.postings[p.SourceURL]; ok {
		return existing.ID, nil
	}
	f.nextID++
	p.ID = fmt.Sprintf("posting-%d", f.nextID)
	f.postings[p.SourceURL] = p
	return p.ID, nil
}

func (f *Fake) CreateLink(_ context.Context, userID, postingID string, matchScore int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LinkErr != nil {
		return false, f.LinkErr
	}
	key := linkKey(userID, postingID)
	if _, ok := f.links[key]; ok {
		return false, nil
	}
	f.nextID++
	f.links[key] = &model.UserPostingLink{
		ID:         fmt.Sprintf("link-%d", f.nextID),
		UserID:     userID,
		PostingID:  postingID,
		MatchScore: matchScore,
	}
	return true, nil
}

func (f *Fake) GetUnnotified(_ context.Context, userID string) ([]store.DigestItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UnnotifiedErr != nil {
		return nil, f.UnnotifiedErr
	}
	byID := make(map[string]model.Posting, len(f.postings))
	for _, p := range f.postings {
		byID[p.ID] = p
	}
	var items []store.DigestItem
	for _, link := range f.links {
		if link.UserID != userID || link.IsNotified || link.IsHidden {
			continue
		}
		items = append(items, store.DigestItem{
			Posting:    byID[link.PostingID],
			MatchScore: link.MatchScore,
		})
	}
	return items, nil
}

func (f *Fake) MarkNotified(_ context.Context, userID string, postingIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NotifyErr != nil {
		return f.NotifyErr
	}
	for _, id := range postingIDs {
		if link, ok := f.links[linkKey(userID, id)]; ok {
			link.IsNotified = true
		}
	}
	return nil
}

// PostingCount reports how many distinct postings are stored.
func (f *Fake) PostingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.postings)
}

// LinkCount reports how many user-posting links exist.
func (f *Fake) LinkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.links)
}

// Link returns the link for (userID, postingID), or nil.
func (f *Fake) Link(userID, postingID string) *model.UserPostingLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	if link, ok := f.links[linkKey(userID, postingID)]; ok {
		cp := *link
		return &cp
	}
	return nil
}

// NotifiedCount reports how many of the user's links are flagged notified.
func (f *Fake) NotifiedCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, link := range f.links {
		if link.UserID == userID && link.IsNotified {
			n++
		}
	}
	return n
}

func linkKey(userID, postingID string) string {
	return userID + "|" + postingID
}

var _ store.RecordStore = (*Fake)(nil)
