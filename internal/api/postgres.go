package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/platform/db"
	"github.com/sheetdesk/sheetdesk/internal/platform/httpx"
)

// PGStore implements Store on PostgreSQL. sheets.subscriber_count is
// maintained by the recount job.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const subscriberColumns = `filing_number, subscriber_code, name, id_number, yeshiva, locality,
	number_of_wins, scholarship_fund, parasha_answers_code, yiun_halacha,
	yiun_halacha_answers_code, answers_text`

const uniqueViolation = "23505"

// translate maps driver errors onto the httpx sentinels.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, httpx.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, httpx.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *PGStore) UserByUsername(ctx context.Context, username string) (UserRecord, error) {
	var u UserRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, name, password_hash FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.Name, &u.PasswordHash)
	return u, translate(err, "user "+strconv.Quote(username))
}

func (s *PGStore) UpsertUser(ctx context.Context, username, name string, passwordHash []byte) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO users (username, name, password_hash) VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET name = EXCLUDED.name, password_hash = EXCLUDED.password_hash`,
		username, name, passwordHash)
	return translate(err, "upsert user")
}

func (s *PGStore) Stats(ctx context.Context, now time.Time) (domain.Stats, error) {
	var stats domain.Stats
	var net int
	err := s.pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM sheets),
		(SELECT COUNT(*) FROM subscribers),
		(SELECT COUNT(DISTINCT sheet_id) FROM subscribers),
		(SELECT COUNT(*) FILTER (WHERE type = 'subscriber_added') - COUNT(*) FILTER (WHERE type = 'subscriber_deleted')
		   FROM activity WHERE created_at >= $1)`,
		now.AddDate(0, -1, 0),
	).Scan(&stats.TotalSheets, &stats.TotalSubscribers, &stats.ActiveSheets, &net)
	if err != nil {
		return domain.Stats{}, translate(err, "stats")
	}
	stats.MonthlyGrowth = growth(stats.TotalSubscribers, net)
	return stats, nil
}

func (s *PGStore) RecentActivity(ctx context.Context, limit int) ([]domain.Activity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, description, created_at, sheet_name FROM activity ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, translate(err, "recent activity")
	}
	defer rows.Close()

	out := []domain.Activity{}
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.Type, &a.Description, &a.Timestamp, &a.SheetName); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PGStore) Sheets(ctx context.Context) ([]domain.Sheet, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, number, parasha, subscriber_count FROM sheets ORDER BY id`)
	if err != nil {
		return nil, translate(err, "sheets")
	}
	defer rows.Close()

	out := []domain.Sheet{}
	for rows.Next() {
		var sh domain.Sheet
		if err := rows.Scan(&sh.ID, &sh.Name, &sh.Number, &sh.Parasha, &sh.SubscriberCount); err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *PGStore) Sheet(ctx context.Context, id int64) (domain.Sheet, error) {
	return sheetRow(ctx, s.pool, id, "")
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func sheetRow(ctx context.Context, q querier, id int64, suffix string) (domain.Sheet, error) {
	var sh domain.Sheet
	err := q.QueryRow(ctx,
		`SELECT id, name, number, parasha, subscriber_count FROM sheets WHERE id = $1`+suffix, id,
	).Scan(&sh.ID, &sh.Name, &sh.Number, &sh.Parasha, &sh.SubscriberCount)
	return sh, translate(err, fmt.Sprintf("sheet %d", id))
}

// escapeLike quotes the LIKE metacharacters of s.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// subscriberWhere builds the WHERE clause and arguments for filter.
func subscriberWhere(sheetID int64, filter SubscriberFilter) (string, []any) {
	clauses := []string{"sheet_id = $1"}
	args := []any{sheetID}
	add := func(clause, value string) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.FilingNumber != "" {
		add("filing_number::text LIKE $%d || '%%'", escapeLike(filter.FilingNumber))
	}
	if filter.SubscriberCode != "" {
		add("subscriber_code ILIKE '%%' || $%d || '%%'", escapeLike(filter.SubscriberCode))
	}
	if filter.Name != "" {
		add("name ILIKE '%%' || $%d || '%%'", escapeLike(filter.Name))
	}
	if filter.IDNumber != "" {
		add("id_number ILIKE '%%' || $%d || '%%'", escapeLike(filter.IDNumber))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanSubscriber(row pgx.Row) (domain.Subscriber, error) {
	var sub domain.Subscriber
	err := row.Scan(&sub.FilingNumber, &sub.SubscriberCode, &sub.Name, &sub.IDNumber, &sub.Yeshiva, &sub.Locality,
		&sub.NumberOfWins, &sub.ScholarshipFund, &sub.ParashaAnswersCode, &sub.YiunHalacha,
		&sub.YiunHalachaAnswersCode, &sub.AnswersText)
	return sub, err
}

func (s *PGStore) Subscribers(ctx context.Context, sheetID int64, filter SubscriberFilter, page, pageSize int) (SubscriberPage, error) {
	if _, err := s.Sheet(ctx, sheetID); err != nil {
		return SubscriberPage{}, err
	}
	where, args := subscriberWhere(sheetID, filter)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscribers`+where, args...).Scan(&total); err != nil {
		return SubscriberPage{}, translate(err, "count subscribers")
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`SELECT %s FROM subscribers%s ORDER BY filing_number LIMIT $%d OFFSET $%d`,
		subscriberColumns, where, len(args)-1, len(args))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return SubscriberPage{}, translate(err, "list subscribers")
	}
	defer rows.Close()

	var items []domain.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return SubscriberPage{}, err
		}
		items = append(items, sub)
	}
	if err := rows.Err(); err != nil {
		return SubscriberPage{}, err
	}
	return newSubscriberPage(items, total, page, pageSize), nil
}

func insertActivity(ctx context.Context, tx pgx.Tx, act domain.Activity) error {
	ts := act.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `INSERT INTO activity (type, description, sheet_name, created_at) VALUES ($1, $2, $3, $4)`,
		act.Type, act.Description, act.SheetName, ts)
	return err
}

func (s *PGStore) CreateSubscriber(ctx context.Context, sheetID int64, sub domain.Subscriber, act domain.Activity) (domain.Subscriber, error) {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		// Row lock on the sheet serialises filing number assignment.
		if _, err := sheetRow(ctx, tx, sheetID, " FOR UPDATE"); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(filing_number) + 1, 1000) FROM subscribers WHERE sheet_id = $1`, sheetID,
		).Scan(&sub.FilingNumber); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO subscribers (sheet_id, `+subscriberColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			sheetID, sub.FilingNumber, sub.SubscriberCode, sub.Name, sub.IDNumber, sub.Yeshiva, sub.Locality,
			sub.NumberOfWins, sub.ScholarshipFund, sub.ParashaAnswersCode, sub.YiunHalacha,
			sub.YiunHalachaAnswersCode, sub.AnswersText)
		if err != nil {
			return translate(err, fmt.Sprintf("subscriber %s in sheet %d", sub.SubscriberCode, sheetID))
		}
		return insertActivity(ctx, tx, act)
	})
	if err != nil {
		return domain.Subscriber{}, err
	}
	return sub, nil
}

func (s *PGStore) UpdateSubscriber(ctx context.Context, sheetID int64, sub domain.Subscriber, act domain.Activity) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE subscribers SET number_of_wins = $3, scholarship_fund = $4,
			parasha_answers_code = $5, yiun_halacha = $6, yiun_halacha_answers_code = $7, answers_text = $8
			WHERE sheet_id = $1 AND filing_number = $2`,
			sheetID, sub.FilingNumber, sub.NumberOfWins, sub.ScholarshipFund, sub.ParashaAnswersCode,
			sub.YiunHalacha, sub.YiunHalachaAnswersCode, sub.AnswersText)
		if err != nil {
			return translate(err, "update subscriber")
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("subscriber %d in sheet %d: %w", sub.FilingNumber, sheetID, httpx.ErrNotFound)
		}
		return insertActivity(ctx, tx, act)
	})
}

func (s *PGStore) DeleteSubscriber(ctx context.Context, sheetID, filingNumber int64, act domain.Activity) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM subscribers WHERE sheet_id = $1 AND filing_number = $2`, sheetID, filingNumber)
		if err != nil {
			return translate(err, "delete subscriber")
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("subscriber %d in sheet %d: %w", filingNumber, sheetID, httpx.ErrNotFound)
		}
		return insertActivity(ctx, tx, act)
	})
}

func (s *PGStore) SearchDirectory(ctx context.Context, query string, limit int) ([]domain.DirectoryEntry, error) {
	pattern := escapeLike(strings.TrimSpace(query))
	rows, err := s.pool.Query(ctx, `SELECT code, name, id_number, yeshiva, locality FROM directory
		WHERE code ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%' OR id_number LIKE '%' || $1 || '%'
		ORDER BY code LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, translate(err, "search directory")
	}
	defer rows.Close()

	out := []domain.DirectoryEntry{}
	for rows.Next() {
		var e domain.DirectoryEntry
		if err := rows.Scan(&e.Code, &e.Name, &e.IDNumber, &e.Yeshiva, &e.Locality); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGStore) RecountSheet(ctx context.Context, sheetID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `UPDATE sheets
		SET subscriber_count = (SELECT COUNT(*) FROM subscribers WHERE sheet_id = $1)
		WHERE id = $1 RETURNING subscriber_count`, sheetID).Scan(&count)
	return count, translate(err, fmt.Sprintf("recount sheet %d", sheetID))
}

func (s *PGStore) PruneActivity(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM activity WHERE created_at < $1`, before)
	if err != nil {
		return 0, translate(err, "prune activity")
	}
	return tag.RowsAffected(), nil
}
