package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/platform/httpx"
)

// Defaults and bounds for list endpoints.
const (
	DefaultPageSize      = 50
	DefaultActivityLimit = 10
	MaxActivityLimit     = 50
	DirectoryLimit       = 20
)

// ErrInvalidCredentials is returned by Login for unknown users and wrong
// passwords alike.
var ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", httpx.ErrUnauthorized)

// Enqueuer schedules the per-sheet recount after a mutation.
type Enqueuer interface {
	EnqueueSheetRecount(ctx context.Context, sheetID int64) error
}

// ValidationError carries per-field messages for a rejected payload.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

func (e *ValidationError) Unwrap() error {
	return httpx.ErrValidation
}

// LoginResult is the body of a successful login.
type LoginResult struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

// Service holds the API business rules on top of a Store.
type Service struct {
	store       Store
	tokens      *TokenStore
	jobs        Enqueuer
	validate    *validator.Validate
	logger      *slog.Logger
	maxPageSize int
	now         func() time.Time
}

// ServiceParams groups Service dependencies. Jobs may be nil.
type ServiceParams struct {
	Store       Store
	Tokens      *TokenStore
	Jobs        Enqueuer
	Logger      *slog.Logger
	MaxPageSize int
}

// NewService constructs a Service.
func NewService(p ServiceParams) *Service {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxPage := p.MaxPageSize
	if maxPage <= 0 {
		maxPage = 500
	}
	return &Service{
		store:       p.Store,
		tokens:      p.Tokens,
		jobs:        p.Jobs,
		validate:    domain.NewValidator(),
		logger:      logger,
		maxPageSize: maxPage,
		now:         time.Now,
	}
}

// EnsureUser creates or resets an operator account.
func (s *Service) EnsureUser(ctx context.Context, username, name, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.UpsertUser(ctx, username, name, hash)
}

// Login checks credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	user, err := s.store.UserByUsername(ctx, username)
	if errors.Is(err, httpx.ErrNotFound) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(ctx, Principal{UserID: user.ID, Username: user.Username, Name: user.Name})
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		User:  domain.User{ID: user.ID, Username: user.Username, Name: user.Name},
		Token: token,
	}, nil
}

// Logout revokes token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// Authenticate resolves a bearer token.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	return s.tokens.Resolve(ctx, token)
}

// Stats returns the dashboard counters.
func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	return s.store.Stats(ctx, s.now())
}

// RecentActivity returns the newest entries. limit is clamped to
// [1, MaxActivityLimit] and defaults to DefaultActivityLimit.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]domain.Activity, error) {
	switch {
	case limit <= 0:
		limit = DefaultActivityLimit
	case limit > MaxActivityLimit:
		limit = MaxActivityLimit
	}
	return s.store.RecentActivity(ctx, limit)
}

// Sheets lists every sheet.
func (s *Service) Sheets(ctx context.Context) ([]domain.Sheet, error) {
	return s.store.Sheets(ctx)
}

// Sheet returns one sheet.
func (s *Service) Sheet(ctx context.Context, id int64) (domain.Sheet, error) {
	return s.store.Sheet(ctx, id)
}

// Subscribers returns one page. page defaults to 1 and pageSize to
// DefaultPageSize; pageSize above the configured maximum is rejected.
func (s *Service) Subscribers(ctx context.Context, sheetID int64, filter SubscriberFilter, page, pageSize int) (SubscriberPage, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > s.maxPageSize {
		return SubscriberPage{}, fmt.Errorf("pageSize above %d: %w", s.maxPageSize, httpx.ErrValidation)
	}
	filter = SubscriberFilter{
		FilingNumber:   strings.TrimSpace(filter.FilingNumber),
		SubscriberCode: strings.TrimSpace(filter.SubscriberCode),
		Name:           strings.TrimSpace(filter.Name),
		IDNumber:       strings.TrimSpace(filter.IDNumber),
	}
	return s.store.Subscribers(ctx, sheetID, filter, page, pageSize)
}

// CreateSubscriber validates sub and appends it to the sheet.
func (s *Service) CreateSubscriber(ctx context.Context, sheetID int64, sub domain.Subscriber) (domain.Subscriber, error) {
	if fields := domain.FormErrors(s.validate, domain.AddFormOf(sub)); fields != nil {
		return domain.Subscriber{}, &ValidationError{Fields: fields}
	}
	sheet, err := s.store.Sheet(ctx, sheetID)
	if err != nil {
		return domain.Subscriber{}, err
	}
	created, err := s.store.CreateSubscriber(ctx, sheetID, sub, s.activity(domain.ActivitySubscriberAdded, sheet))
	if err != nil {
		return domain.Subscriber{}, err
	}
	s.recount(ctx, sheetID)
	return created, nil
}

// UpdateSubscriber saves the editable fields of sub.
func (s *Service) UpdateSubscriber(ctx context.Context, sheetID int64, sub domain.Subscriber) error {
	if fields := domain.FormErrors(s.validate, domain.EditFormOf(sub)); fields != nil {
		return &ValidationError{Fields: fields}
	}
	sheet, err := s.store.Sheet(ctx, sheetID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateSubscriber(ctx, sheetID, sub, s.activity(domain.ActivitySubscriberUpdated, sheet)); err != nil {
		return err
	}
	s.recount(ctx, sheetID)
	return nil
}

// DeleteSubscriber removes a row.
func (s *Service) DeleteSubscriber(ctx context.Context, sheetID, filingNumber int64) error {
	sheet, err := s.store.Sheet(ctx, sheetID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSubscriber(ctx, sheetID, filingNumber, s.activity(domain.ActivitySubscriberDeleted, sheet)); err != nil {
		return err
	}
	s.recount(ctx, sheetID)
	return nil
}

// SearchDirectory looks people up by code, name or id number. A blank
// query finds nothing.
func (s *Service) SearchDirectory(ctx context.Context, query string) ([]domain.DirectoryEntry, error) {
	if strings.TrimSpace(query) == "" {
		return []domain.DirectoryEntry{}, nil
	}
	return s.store.SearchDirectory(ctx, query, DirectoryLimit)
}

var activityDescriptions = map[domain.ActivityType]string{
	domain.ActivitySubscriberAdded:   "נוסף מנוי חדש",
	domain.ActivitySubscriberUpdated: "עודכנו פרטי מנוי",
	domain.ActivitySubscriberDeleted: "נמחק מנוי",
}

func (s *Service) activity(t domain.ActivityType, sheet domain.Sheet) domain.Activity {
	return domain.Activity{
		Type:        t,
		Description: activityDescriptions[t],
		Timestamp:   s.now().UTC(),
		SheetName:   sheet.Name,
	}
}

// recount schedules the subscriber count refresh. The mutation has already
// committed, so a queue failure is only logged.
func (s *Service) recount(ctx context.Context, sheetID int64) {
	if s.jobs == nil {
		return
	}
	if err := s.jobs.EnqueueSheetRecount(ctx, sheetID); err != nil {
		s.logger.Warn("enqueue sheet recount", slog.Int64("sheet_id", sheetID), slog.Any("error", err))
	}
}
