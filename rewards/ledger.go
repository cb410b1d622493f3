package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mcloones/mcloones"
)

var (
	// ErrForbidden is returned when the actor lacks the capability for the call.
	ErrForbidden = errors.New("forbidden")
	// ErrReasonRequired is returned when an award has no reason.
	ErrReasonRequired = errors.New("award reason required")
	// ErrNotEmployee is returned when the award target is not an employee.
	ErrNotEmployee = errors.New("award target is not an employee")
)

// maxReasonLen is the longest kept award reason, in characters.
const maxReasonLen = 280

// Directory is the profile lookup the ledger needs.
type Directory interface {
	GetProfileByID(ctx context.Context, id string) (mcloones.Profile, error)
	ListByRole(ctx context.Context, role mcloones.Role) ([]mcloones.Profile, error)
}

// Actor is the caller of a ledger operation.
type Actor struct {
	ID   string
	View mcloones.AuthorizationView
}

// SnapshotSource is anything holding the current session, such as
// *mcloones.Manager.
type SnapshotSource interface {
	Current() (mcloones.Session, mcloones.AuthorizationView)
}

// ActorOf reads the actor from one consistent snapshot.
func ActorOf(src SnapshotSource) Actor {
	s, v := src.Current()
	a := Actor{View: v}
	if s.Identity != nil {
		a.ID = s.Identity.ID
	}
	return a
}

// Award is one ledger entry.
type Award struct {
	ID          string    `json:"id"`
	EmployeeID  string    `json:"employee_id"`
	AwardedBy   string    `json:"awarded_by"`
	AmountCents int64     `json:"amount_cents"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// RosterEntry is an employee with their balance.
type RosterEntry struct {
	Profile      mcloones.Profile
	BalanceCents int64
}

// Config bounds awards and history.
type Config struct {
	KeyPrefix     string
	MaxAwardCents int64
	HistoryLimit  int64
}

// DefaultConfig caps single awards at 500.00 and keeps the last 100 awards
// per employee.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:     "mc",
		MaxAwardCents: 50000,
		HistoryLimit:  100,
	}
}

// Ledger records awards in Redis.
type Ledger struct {
	cfg    Config
	redis  redis.UniversalClient
	dir    Directory
	logger *slog.Logger
}

// NewLedger creates a Ledger. A nil logger discards.
func NewLedger(cfg Config, client redis.UniversalClient, dir Directory, logger *slog.Logger) *Ledger {
	def := DefaultConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.MaxAwardCents <= 0 {
		cfg.MaxAwardCents = def.MaxAwardCents
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ledger{cfg: cfg, redis: client, dir: dir, logger: logger}
}

func (l *Ledger) balanceKey(id string) string {
	return l.cfg.KeyPrefix + ":bucks:balance:" + id
}

func (l *Ledger) historyKey(id string) string {
	return l.cfg.KeyPrefix + ":bucks:history:" + id
}

// Award credits amountCents to employeeID. The actor needs bucks.award.
func (l *Ledger) Award(ctx context.Context, actor Actor, employeeID string, amountCents int64, reason string) (Award, error) {
	if !actor.View.Can(mcloones.CapBucksAward) || actor.ID == "" {
		return Award{}, ErrForbidden
	}
	if amountCents <= 0 || amountCents > l.cfg.MaxAwardCents {
		return Award{}, ErrInvalidAmount
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Award{}, ErrReasonRequired
	}
	if utf8.RuneCountInString(reason) > maxReasonLen {
		reason = string([]rune(reason)[:maxReasonLen])
	}

	target, err := l.dir.GetProfileByID(ctx, employeeID)
	if err != nil {
		if errors.Is(err, mcloones.ErrProfileNotFound) {
			return Award{}, ErrNotEmployee
		}
		return Award{}, fmt.Errorf("look up award target: %w", err)
	}
	if target.Role != mcloones.RoleEmployee {
		return Award{}, ErrNotEmployee
	}

	a := Award{
		ID:          uuid.NewString(),
		EmployeeID:  employeeID,
		AwardedBy:   actor.ID,
		AmountCents: amountCents,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	}
	entry, err := json.Marshal(a)
	if err != nil {
		return Award{}, err
	}

	_, err = l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.IncrBy(ctx, l.balanceKey(employeeID), amountCents)
		pipe.LPush(ctx, l.historyKey(employeeID), entry)
		pipe.LTrim(ctx, l.historyKey(employeeID), 0, l.cfg.HistoryLimit-1)
		return nil
	})
	if err != nil {
		return Award{}, fmt.Errorf("record award: %w", err)
	}

	l.logger.Info("bucks awarded",
		"award_id", a.ID,
		"employee_id", employeeID,
		"awarded_by", actor.ID,
		"amount", FormatAmount(amountCents),
	)
	return a, nil
}

func (l *Ledger) canRead(actor Actor, employeeID string) bool {
	if actor.View.Can(mcloones.CapEmployeesView) {
		return true
	}
	return actor.ID != "" && actor.ID == employeeID && actor.View.Can(mcloones.CapBucksView)
}

// Balance returns the employee's balance in cents. Employees may read their own
// balance; reading anyone else's needs employees.view.
func (l *Ledger) Balance(ctx context.Context, actor Actor, employeeID string) (int64, error) {
	if !l.canRead(actor, employeeID) {
		return 0, ErrForbidden
	}
	return l.balance(ctx, employeeID)
}

func (l *Ledger) balance(ctx context.Context, employeeID string) (int64, error) {
	n, err := l.redis.Get(ctx, l.balanceKey(employeeID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return n, nil
}

// History returns up to limit awards, newest first.
func (l *Ledger) History(ctx context.Context, actor Actor, employeeID string, limit int64) ([]Award, error) {
	if !l.canRead(actor, employeeID) {
		return nil, ErrForbidden
	}
	if limit <= 0 || limit > l.cfg.HistoryLimit {
		limit = l.cfg.HistoryLimit
	}

	raw, err := l.redis.LRange(ctx, l.historyKey(employeeID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read award history: %w", err)
	}
	out := make([]Award, 0, len(raw))
	for _, r := range raw {
		var a Award
		if err := json.Unmarshal([]byte(r), &a); err != nil {
			l.logger.Warn("skipping corrupt award entry", "employee_id", employeeID, "error", err)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Roster lists every employee with their balance, sorted by name. The actor
// needs employees.view.
func (l *Ledger) Roster(ctx context.Context, actor Actor) ([]RosterEntry, error) {
	if !actor.View.Can(mcloones.CapEmployeesView) {
		return nil, ErrForbidden
	}

	employees, err := l.dir.ListByRole(ctx, mcloones.RoleEmployee)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	if len(employees) == 0 {
		return []RosterEntry{}, nil
	}

	keys := make([]string, len(employees))
	for i, p := range employees {
		keys[i] = l.balanceKey(p.ID)
	}
	vals, err := l.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read balances: %w", err)
	}

	out := make([]RosterEntry, len(employees))
	for i, p := range employees {
		out[i].Profile = p
		if s, ok := vals[i].(string); ok {
			out[i].BalanceCents, _ = strconv.ParseInt(s, 10, 64)
		}
	}
	return out, nil
}
