package api

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/platform/httpx"
)

// MemoryStore is a seeded in-process Store for development and tests.
// Subscriber counts are always computed live.
type MemoryStore struct {
	mu          sync.RWMutex
	now         func() time.Time
	users       map[string]UserRecord
	sheets      []domain.Sheet
	subscribers map[int64][]domain.Subscriber
	directory   []domain.DirectoryEntry
	activity    []domain.Activity
	nextUserID  int64
	nextActID   int64
}

var seedSheets = []struct {
	sheet domain.Sheet
	rows  int
}{
	{domain.Sheet{ID: 1, Name: `גיליון תשפ"ד - בראשית`, Number: "001", Parasha: "בראשית"}, 5250},
	{domain.Sheet{ID: 2, Name: `גיליון תשפ"ד - נח`, Number: "002", Parasha: "נח"}, 4180},
	{domain.Sheet{ID: 3, Name: `גיליון תשפ"ד - לך לך`, Number: "003", Parasha: "לך לך"}, 6320},
	{domain.Sheet{ID: 4, Name: `גיליון תשפ"ד - וירא`, Number: "004", Parasha: "וירא"}, 7420},
}

var (
	seedYeshivot   = []string{"מיר", "פוניבז", "חברון"}
	seedLocalities = []string{"ירושלים", "בני ברק", "ביתר עילית", "אלעד"}
	parashaCodes   = []string{"A", "B", "C", "D"}
	halachaCodes   = []string{"H1", "H2", "H3"}
)

// NewMemoryStore returns a store seeded with four sheets, their subscribers,
// a small directory and a recent activity feed.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		now:         time.Now,
		users:       make(map[string]UserRecord),
		subscribers: make(map[int64][]domain.Subscriber),
		directory: []domain.DirectoryEntry{
			{Code: "DIR0001", Name: "יחיאל כהן", IDNumber: "123456789", Yeshiva: "מיר", Locality: "ירושלים"},
			{Code: "DIR0002", Name: "משה לוי", IDNumber: "987654321", Yeshiva: "פוניבז", Locality: "בני ברק"},
			{Code: "DIR0003", Name: "אברהם ברק", IDNumber: "456789123", Yeshiva: "חברון", Locality: "ביתר עילית"},
		},
	}
	rows := SeedRows()
	for _, seed := range seedSheets {
		s.sheets = append(s.sheets, seed.sheet)
		s.subscribers[seed.sheet.ID] = rows[seed.sheet.ID]
	}
	seedActivity := []domain.Activity{
		{Type: domain.ActivitySheetCreated, Description: "נוצר גיליון חדש", Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), SheetName: seedSheets[3].sheet.Name},
		{Type: domain.ActivitySubscriberAdded, Description: "נוסף מנוי חדש", Timestamp: time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC), SheetName: seedSheets[2].sheet.Name},
		{Type: domain.ActivitySubscriberUpdated, Description: "עודכנו פרטי מנוי", Timestamp: time.Date(2024, 1, 14, 16, 45, 0, 0, time.UTC), SheetName: seedSheets[1].sheet.Name},
		{Type: domain.ActivitySheetCreated, Description: "נוצר גיליון חדש", Timestamp: time.Date(2024, 1, 14, 14, 20, 0, 0, time.UTC), SheetName: seedSheets[0].sheet.Name},
		{Type: domain.ActivitySubscriberAdded, Description: "נוסף מנוי חדש", Timestamp: time.Date(2024, 1, 14, 11, 30, 0, 0, time.UTC), SheetName: seedSheets[3].sheet.Name},
	}
	for i := len(seedActivity) - 1; i >= 0; i-- {
		s.appendActivity(seedActivity[i])
	}
	return s
}

// SeedRows generates the development subscribers of each seeded sheet,
// ordered by filing number from 1000.
func SeedRows() map[int64][]domain.Subscriber {
	out := make(map[int64][]domain.Subscriber, len(seedSheets))
	for _, seed := range seedSheets {
		rows := make([]domain.Subscriber, seed.rows)
		for i := range rows {
			rows[i] = seedSubscriber(i)
		}
		out[seed.sheet.ID] = rows
	}
	return out
}

func seedSubscriber(i int) domain.Subscriber {
	return domain.Subscriber{
		FilingNumber:           int64(1000 + i),
		SubscriberCode:         fmt.Sprintf("SUB%04d", i+1),
		Name:                   fmt.Sprintf("מנוי %d", i+1),
		IDNumber:               fmt.Sprintf("%d", 200000000+i),
		Yeshiva:                seedYeshivot[i%len(seedYeshivot)],
		Locality:               seedLocalities[i%len(seedLocalities)],
		NumberOfWins:           i%10 + 1,
		ScholarshipFund:        1000 + (i*37)%5000,
		ParashaAnswersCode:     parashaCodes[i%len(parashaCodes)],
		YiunHalacha:            i%2 == 0,
		YiunHalachaAnswersCode: halachaCodes[i%len(halachaCodes)],
		AnswersText:            fmt.Sprintf("הערות למנוי %d", i+1),
	}
}

// appendActivity stores act, newest last. Callers hold mu.
func (s *MemoryStore) appendActivity(act domain.Activity) {
	s.nextActID++
	act.ID = s.nextActID
	if act.Timestamp.IsZero() {
		act.Timestamp = s.now().UTC()
	}
	s.activity = append(s.activity, act)
}

func (s *MemoryStore) UserByUsername(_ context.Context, username string) (UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return UserRecord{}, fmt.Errorf("user %q: %w", username, httpx.ErrNotFound)
	}
	return u, nil
}

func (s *MemoryStore) UpsertUser(_ context.Context, username, name string, passwordHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		s.nextUserID++
		u = UserRecord{ID: s.nextUserID, Username: username}
	}
	u.Name = name
	u.PasswordHash = passwordHash
	s.users[username] = u
	return nil
}

func (s *MemoryStore) Stats(_ context.Context, now time.Time) (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats domain.Stats
	stats.TotalSheets = len(s.sheets)
	for _, sh := range s.sheets {
		n := len(s.subscribers[sh.ID])
		stats.TotalSubscribers += n
		if n > 0 {
			stats.ActiveSheets++
		}
	}
	since := now.AddDate(0, -1, 0)
	net := 0
	for _, act := range s.activity {
		if act.Timestamp.Before(since) {
			continue
		}
		switch act.Type {
		case domain.ActivitySubscriberAdded:
			net++
		case domain.ActivitySubscriberDeleted:
			net--
		}
	}
	stats.MonthlyGrowth = growth(stats.TotalSubscribers, net)
	return stats, nil
}

func (s *MemoryStore) RecentActivity(_ context.Context, limit int) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Activity, 0, limit)
	for i := len(s.activity) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.activity[i])
	}
	return out, nil
}

func (s *MemoryStore) Sheets(_ context.Context) ([]domain.Sheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Sheet, len(s.sheets))
	for i, sh := range s.sheets {
		sh.SubscriberCount = len(s.subscribers[sh.ID])
		out[i] = sh
	}
	return out, nil
}

func (s *MemoryStore) Sheet(_ context.Context, id int64) (domain.Sheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sheetLocked(id)
}

func (s *MemoryStore) sheetLocked(id int64) (domain.Sheet, error) {
	for _, sh := range s.sheets {
		if sh.ID == id {
			sh.SubscriberCount = len(s.subscribers[id])
			return sh, nil
		}
	}
	return domain.Sheet{}, fmt.Errorf("sheet %d: %w", id, httpx.ErrNotFound)
}

func (s *MemoryStore) Subscribers(_ context.Context, sheetID int64, filter SubscriberFilter, page, pageSize int) (SubscriberPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.sheetLocked(sheetID); err != nil {
		return SubscriberPage{}, err
	}
	offset := (page - 1) * pageSize
	total := 0
	var items []domain.Subscriber
	for _, sub := range s.subscribers[sheetID] {
		if !filter.Matches(sub) {
			continue
		}
		if total >= offset && len(items) < pageSize {
			items = append(items, sub)
		}
		total++
	}
	return newSubscriberPage(items, total, page, pageSize), nil
}

func (s *MemoryStore) CreateSubscriber(_ context.Context, sheetID int64, sub domain.Subscriber, act domain.Activity) (domain.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.sheetLocked(sheetID); err != nil {
		return domain.Subscriber{}, err
	}
	rows := s.subscribers[sheetID]
	next := int64(1000)
	for _, row := range rows {
		if row.SubscriberCode == sub.SubscriberCode {
			return domain.Subscriber{}, fmt.Errorf("subscriber %s in sheet %d: %w", sub.SubscriberCode, sheetID, httpx.ErrDuplicate)
		}
	}
	if len(rows) > 0 {
		next = rows[len(rows)-1].FilingNumber + 1
	}
	sub.FilingNumber = next
	s.subscribers[sheetID] = append(rows, sub)
	s.appendActivity(act)
	return sub, nil
}

func (s *MemoryStore) UpdateSubscriber(_ context.Context, sheetID int64, sub domain.Subscriber, act domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.subscribers[sheetID]
	i, ok := findFiling(rows, sub.FilingNumber)
	if !ok {
		return fmt.Errorf("subscriber %d in sheet %d: %w", sub.FilingNumber, sheetID, httpx.ErrNotFound)
	}
	rows[i] = domain.MergeSubscriber(rows[i], sub)
	s.appendActivity(act)
	return nil
}

func (s *MemoryStore) DeleteSubscriber(_ context.Context, sheetID, filingNumber int64, act domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.subscribers[sheetID]
	i, ok := findFiling(rows, filingNumber)
	if !ok {
		return fmt.Errorf("subscriber %d in sheet %d: %w", filingNumber, sheetID, httpx.ErrNotFound)
	}
	s.subscribers[sheetID] = append(rows[:i], rows[i+1:]...)
	s.appendActivity(act)
	return nil
}

// findFiling binary-searches rows, which are kept ordered by filing number.
func findFiling(rows []domain.Subscriber, filingNumber int64) (int, bool) {
	i := sort.Search(len(rows), func(i int) bool { return rows[i].FilingNumber >= filingNumber })
	return i, i < len(rows) && rows[i].FilingNumber == filingNumber
}

func (s *MemoryStore) SearchDirectory(_ context.Context, query string, limit int) ([]domain.DirectoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query = strings.TrimSpace(query)
	out := []domain.DirectoryEntry{}
	for _, e := range s.directory {
		if limit > 0 && len(out) >= limit {
			break
		}
		if containsFold(e.Code, query) || containsFold(e.Name, query) || containsFold(e.IDNumber, query) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) RecountSheet(_ context.Context, sheetID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, err := s.sheetLocked(sheetID)
	if err != nil {
		return 0, err
	}
	return sh.SubscriberCount, nil
}

func (s *MemoryStore) PruneActivity(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.activity[:0]
	var pruned int64
	for _, act := range s.activity {
		if act.Timestamp.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, act)
	}
	s.activity = kept
	return pruned, nil
}
