package models

import (
	"slices"
	"time"
)

// RefreshStoreVersion is the schema version written into new aggregates.
const RefreshStoreVersion = 1

// RefreshStore is the persisted aggregate of all refresh token records.
// UserIndex and FamilyIndex are denormalised views of Tokens and are kept in
// step by Insert and Delete; nothing else should touch them.
type RefreshStore struct {
	Version     int                     `json:"version"`
	UpdatedAt   time.Time               `json:"updatedAt"`
	Tokens      map[string]*TokenRecord `json:"tokens"`
	UserIndex   map[string][]string     `json:"userIndex"`
	FamilyIndex map[string][]string     `json:"familyIndex"`
}

func NewRefreshStore() *RefreshStore {
	return &RefreshStore{
		Version:     RefreshStoreVersion,
		Tokens:      map[string]*TokenRecord{},
		UserIndex:   map[string][]string{},
		FamilyIndex: map[string][]string{},
	}
}

// Normalize fills maps left nil by a decoded document and restores record
// IDs from their keys.
func (s *RefreshStore) Normalize() {
	if s.Version == 0 {
		s.Version = RefreshStoreVersion
	}
	if s.Tokens == nil {
		s.Tokens = map[string]*TokenRecord{}
	}
	if s.UserIndex == nil {
		s.UserIndex = map[string][]string{}
	}
	if s.FamilyIndex == nil {
		s.FamilyIndex = map[string][]string{}
	}
	for id, rec := range s.Tokens {
		if rec == nil {
			delete(s.Tokens, id)
			continue
		}
		rec.ID = id
	}
}

// FindByHash scans for the record with the given token hash.
func (s *RefreshStore) FindByHash(hash string) (*TokenRecord, bool) {
	for _, rec := range s.Tokens {
		if rec.TokenHash == hash {
			return rec, true
		}
	}
	return nil, false
}

// Insert adds rec and appends its id to both indexes.
func (s *RefreshStore) Insert(rec *TokenRecord) {
	s.Tokens[rec.ID] = rec
	s.UserIndex[rec.UserID] = appendUnique(s.UserIndex[rec.UserID], rec.ID)
	s.FamilyIndex[rec.FamilyID] = appendUnique(s.FamilyIndex[rec.FamilyID], rec.ID)
}

// Delete removes the record and prunes it from both indexes, dropping index
// entries that become empty.
func (s *RefreshStore) Delete(id string) {
	rec, ok := s.Tokens[id]
	if !ok {
		return
	}
	delete(s.Tokens, id)
	pruneIndex(s.UserIndex, rec.UserID, id)
	pruneIndex(s.FamilyIndex, rec.FamilyID, id)
}

// Family returns the records indexed under familyID in index order.
func (s *RefreshStore) Family(familyID string) []*TokenRecord {
	return s.collect(s.FamilyIndex[familyID])
}

// UserTokens returns the records indexed under userID in index order.
func (s *RefreshStore) UserTokens(userID string) []*TokenRecord {
	return s.collect(s.UserIndex[userID])
}

func (s *RefreshStore) collect(ids []string) []*TokenRecord {
	out := make([]*TokenRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.Tokens[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

func appendUnique(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

func pruneIndex(index map[string][]string, key, id string) {
	ids := slices.DeleteFunc(index[key], func(v string) bool { return v == id })
	if len(ids) == 0 {
		delete(index, key)
		return
	}
	index[key] = ids
}
