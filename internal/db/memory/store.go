// Package memory — хранилище в памяти для тестов и локальных прогонов.
//
// Ведёт себя как PostgreSQL-реализации: урезает страницы до PageSize строк,
// держит уникальность (battle_id, user_id) у arena_earnings, пишет аудит
// вместе с балансом. Сбои можно подстроить (FailPages, FailWrites, SetUnavailable).
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/arx-reconciler/internal/common"
	"serotonyl.ru/arx-reconciler/internal/features/arena"
	"serotonyl.ru/arx-reconciler/internal/features/balance"
	"serotonyl.ru/arx-reconciler/internal/features/ledger"
	"serotonyl.ru/arx-reconciler/internal/features/source"
	"serotonyl.ru/arx-reconciler/internal/features/users"
)

// Store — всё хранилище сверки в памяти.
type Store struct {
	mu       sync.Mutex
	pageSize int

	tables   map[string][]source.Row
	nextID   int64
	users    []users.User
	balances map[string]storedBalance
	audit    []ledger.AuditRecord

	pageCalls   int
	writes      int
	failPages   map[string]int  // таблица → сколько следующих чтений упадут
	failWrites  map[string]bool // user_id → запись всегда падает
	unavailable bool
}

type storedBalance struct {
	balance.Balance
	UpdatedAt time.Time
}

// New создаёт пустое хранилище. pageSize <= 0 — source.DefaultPageSize.
func New(pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = source.DefaultPageSize
	}
	return &Store{
		pageSize:   pageSize,
		tables:     make(map[string][]source.Row),
		balances:   make(map[string]storedBalance),
		failPages:  make(map[string]int),
		failWrites: make(map[string]bool),
	}
}

// --- Наполнение ---

// AddUser добавляет пользователя.
func (s *Store) AddUser(id, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, users.User{ID: id, Username: username})
	sort.Slice(s.users, func(i, j int) bool { return s.users[i].ID < s.users[j].ID })
}

// Insert добавляет строку в таблицу событий. Значения приводятся к тексту так же,
// как это делает ::text в PostgreSQL; nil — NULL. id назначается, если не задан.
func (s *Store) Insert(table string, values map[string]any) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(table, values)
}

func (s *Store) insertLocked(table string, values map[string]any) int64 {
	row := make(source.Row, len(values)+1)
	for k, v := range values {
		row[k] = toText(v)
	}
	var id int64
	if row["id"] != nil {
		fmt.Sscan(*row["id"], &id)
	} else {
		s.nextID++
		id = s.nextID
		row["id"] = source.Text(fmt.Sprint(id))
	}
	if id > s.nextID {
		s.nextID = id
	}
	s.tables[table] = append(s.tables[table], row)
	return id
}

// SetBalance задаёт сохранённый баланс как есть (в том числе несогласованный).
func (s *Store) SetBalance(userID string, b balance.Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = storedBalance{Balance: b, UpdatedAt: time.Now().UTC()}
}

// --- Сбои ---

// FailPages заставляет следующие n чтений таблицы вернуть ошибку.
// Таблица "users" относится к List и Find.
func (s *Store) FailPages(table string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPages[table] = n
}

// FailWrites заставляет все записи по пользователю падать.
func (s *Store) FailWrites(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites[userID] = true
}

// SetUnavailable включает/выключает недоступность хранилища.
func (s *Store) SetUnavailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = v
}

// --- Наблюдение ---

// Balance возвращает сохранённый баланс.
func (s *Store) Balance(userID string) (balance.Balance, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[userID]
	return b.Balance, b.UpdatedAt, ok
}

// Audit возвращает копию журнала аудита.
func (s *Store) Audit() []ledger.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.AuditRecord(nil), s.audit...)
}

// Writes — сколько раз менялись user_balances и arena_earnings.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// PageCalls — сколько раз вызывался FetchPage.
func (s *Store) PageCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageCalls
}

// Earnings возвращает начисления битвы.
func (s *Store) Earnings(battleID int64) []source.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []source.Row
	for _, row := range s.tables[source.TableArenaEarnings] {
		if row.String("battle_id") == fmt.Sprint(battleID) {
			out = append(out, row)
		}
	}
	return out
}

// --- source.PageSource ---

func (s *Store) PageSize() int {
	return s.pageSize
}

func (s *Store) FetchPage(ctx context.Context, q source.Query, offset, limit int) ([]source.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageCalls++
	if s.unavailable {
		return nil, common.ErrStoreUnavailable
	}
	if n := s.failPages[q.Table]; n > 0 {
		s.failPages[q.Table] = n - 1
		return nil, fmt.Errorf("временная ошибка чтения %s", q.Table)
	}

	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}

	matched := make([]source.Row, 0)
	for _, row := range s.tables[q.Table] {
		if matches(row, q.Filters) {
			matched = append(matched, row)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return rowID(matched[i]) < rowID(matched[j]) })

	if offset >= len(matched) {
		return []source.Row{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]source.Row, 0, end-offset)
	for _, row := range matched[offset:end] {
		projected := make(source.Row, len(q.Fields))
		for _, f := range q.Fields {
			projected[f] = row[f]
		}
		out = append(out, projected)
	}
	return out, nil
}

// --- users ---

func (s *Store) List(ctx context.Context, offset, limit int) ([]users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usersReadableLocked(); err != nil {
		return nil, err
	}
	if offset >= len(s.users) {
		return []users.User{}, nil
	}
	end := offset + limit
	if end > len(s.users) {
		end = len(s.users)
	}
	return append([]users.User(nil), s.users[offset:end]...), nil
}

func (s *Store) Find(ctx context.Context, key string) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usersReadableLocked(); err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	name := strings.TrimPrefix(key, "@")
	for _, u := range s.users {
		if u.ID == key {
			found := u
			return &found, nil
		}
	}
	for _, u := range s.users {
		if u.Username != "" && strings.EqualFold(u.Username, name) {
			found := u
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", common.ErrUserNotFound, key)
}

func (s *Store) usersReadableLocked() error {
	if s.unavailable {
		return common.ErrStoreUnavailable
	}
	if n := s.failPages["users"]; n > 0 {
		s.failPages["users"] = n - 1
		return fmt.Errorf("временная ошибка чтения users")
	}
	return nil
}

// Ping проверяет доступность.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return common.ErrStoreUnavailable
	}
	return nil
}

// --- ledger.Store ---

func (s *Store) GetStoredBalance(ctx context.Context, userID string) (balance.Balance, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return balance.Balance{}, false, common.ErrStoreUnavailable
	}
	b, ok := s.balances[userID]
	return b.Balance, ok, nil
}

func (s *Store) ApplyCorrection(ctx context.Context, c ledger.Correction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(c.UserID); err != nil {
		return false, err
	}

	stored, found := s.balances[c.UserID]
	if found && stored.Balance == c.Computed {
		return false, nil
	}

	now := time.Now().UTC()
	s.balances[c.UserID] = storedBalance{Balance: c.Computed, UpdatedAt: now}
	s.writes++

	rec := c.Audit
	rec.Stored = stored.Balance
	rec.StoredTotal = stored.Total
	rec.Diff = c.Computed.Sub(stored.Balance)
	rec.PointsRestored = rec.Diff.Total
	s.appendAuditLocked(rec, now)
	return true, nil
}

func (s *Store) InsertEarning(ctx context.Context, e arena.Earning, audit ledger.AuditRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(e.UserID); err != nil {
		return false, err
	}

	battleID := fmt.Sprint(e.BattleID)
	for _, row := range s.tables[source.TableArenaEarnings] {
		if row.String("battle_id") == battleID && row.String("user_id") == e.UserID {
			return false, nil
		}
	}

	s.insertLocked(source.TableArenaEarnings, map[string]any{
		"battle_id":         e.BattleID,
		"user_id":           e.UserID,
		"stake":             e.Stake,
		"total_earned":      e.TotalEarned,
		"pool_share_earned": e.PoolShareEarned,
		"is_winner":         e.IsWinner,
	})
	s.writes++
	s.appendAuditLocked(audit, time.Now().UTC())
	return true, nil
}

func (s *Store) AppendAudit(ctx context.Context, rec ledger.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(rec.UserID); err != nil {
		return err
	}
	s.appendAuditLocked(rec, time.Now().UTC())
	return nil
}

func (s *Store) writableLocked(userID string) error {
	if s.unavailable {
		return common.ErrStoreUnavailable
	}
	if s.failWrites[userID] {
		return fmt.Errorf("ошибка записи для %s", userID)
	}
	return nil
}

func (s *Store) appendAuditLocked(rec ledger.AuditRecord, now time.Time) {
	rec.ID = int64(len(s.audit) + 1)
	rec.CreatedAt = now
	s.audit = append(s.audit, rec)
}

// matches проверяет строку по фильтрам так, как их понимает SQL:
// значение сравнивается с текстовым представлением колонки.
func matches(row source.Row, filters []source.Filter) bool {
	for _, f := range filters {
		switch f.Op {
		case source.OpNotNull:
			if row.IsNull(f.Column) {
				return false
			}
		default:
			v := toText(f.Value)
			if v == nil || row.IsNull(f.Column) || *row[f.Column] != *v {
				return false
			}
		}
	}
	return true
}

func rowID(row source.Row) int64 {
	var id int64
	fmt.Sscan(row.String("id"), &id)
	return id
}

func toText(v any) *string {
	switch x := v.(type) {
	case nil:
		return nil
	case *string:
		return x
	case decimal.Decimal:
		return source.Text(x.String())
	default:
		return source.Text(fmt.Sprint(x))
	}
}
