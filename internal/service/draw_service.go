package service

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sipadmin/funds-engine/internal/ledger"
	"github.com/sipadmin/funds-engine/internal/metrics"
	"github.com/sipadmin/funds-engine/internal/model"
	"github.com/sipadmin/funds-engine/internal/repo"
)

// DrawStore is what the draw service needs from persistence.
type DrawStore interface {
	DB(ctx context.Context) *gorm.DB
	repo.DrawRepository
	repo.BonusRepository
	repo.OutboxRepository
	repo.BalanceCache
}

// ShuffleFunc reorders user ids in place.
type ShuffleFunc func(ids []uint64) error

// DrawService allocates lucky draw prizes to unique users and credits them.
type DrawService struct {
	repo     DrawStore
	ledger   ledger.Applier
	log      *zap.SugaredLogger
	validate *validator.Validate
	shuffle  ShuffleFunc
	now      func() time.Time
}

// NewDrawService returns DrawService using a crypto-seeded shuffle.
func NewDrawService(r DrawStore, l ledger.Applier, logger *zap.SugaredLogger) *DrawService {
	return &DrawService{
		repo:     r,
		ledger:   l,
		log:      logger,
		validate: validator.New(),
		shuffle:  secureShuffle,
		now:      time.Now,
	}
}

// WithShuffle replaces the shuffle, e.g. with a deterministic one in tests.
func (s *DrawService) WithShuffle(fn ShuffleFunc) *DrawService {
	s.shuffle = fn
	return s
}

// Winner is one awarded prize slot.
type Winner struct {
	EntryID       uint64          `json:"entry_id"`
	UserID        uint64          `json:"user_id"`
	Rank          int             `json:"rank"`
	Amount        decimal.Decimal `json:"amount"`
	BonusID       uint64          `json:"bonus_transaction_id"`
	TransactionID uint64          `json:"transaction_id"`
}

// DrawDetails is a draw with its winning entries.
type DrawDetails struct {
	Draw    *model.LuckyDraw       `json:"draw"`
	Winners []model.LuckyDrawEntry `json:"winners"`
}

// CreateDraw stores a new open draw.
func (s *DrawService) CreateDraw(ctx context.Context, name string, drawDate time.Time, tiers model.PrizeStructure) (*model.LuckyDraw, error) {
	if err := s.validate.Var(name, "required,max=128"); err != nil {
		return nil, fmt.Errorf("%w: name: %v", ErrInvalidRequest, err)
	}
	if err := s.validatePrizeStructure(tiers); err != nil {
		return nil, err
	}
	tiers = append(model.PrizeStructure(nil), tiers...)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Rank < tiers[j].Rank })
	d := &model.LuckyDraw{
		Name:           name,
		DrawDate:       drawDate,
		Status:         model.DrawOpen,
		PrizeStructure: tiers,
	}
	if err := s.repo.CreateDraw(ctx, s.repo.DB(ctx), d); err != nil {
		return nil, classify("create draw", 0, err)
	}
	s.log.Infow("lucky draw created", "draw_id", d.ID, "winners", tiers.Winners(), "total", tiers.Total().String())
	return d, nil
}

func (s *DrawService) validatePrizeStructure(tiers model.PrizeStructure) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: no tiers", ErrInvalidPrizeStructure)
	}
	ranks := make(map[int]struct{}, len(tiers))
	for _, t := range tiers {
		if err := s.validate.Struct(t); err != nil {
			return fmt.Errorf("%w: rank %d: %v", ErrInvalidPrizeStructure, t.Rank, err)
		}
		if !t.Amount.IsPositive() {
			return fmt.Errorf("%w: rank %d amount must be positive", ErrInvalidPrizeStructure, t.Rank)
		}
		if _, dup := ranks[t.Rank]; dup {
			return fmt.Errorf("%w: duplicate rank %d", ErrInvalidPrizeStructure, t.Rank)
		}
		ranks[t.Rank] = struct{}{}
	}
	return nil
}

// AddEntry registers a qualifying payment of userID in an open draw.
func (s *DrawService) AddEntry(ctx context.Context, drawID, userID, paymentID uint64) (*model.LuckyDrawEntry, error) {
	if userID == 0 || paymentID == 0 {
		return nil, fmt.Errorf("%w: user and payment are required", ErrInvalidRequest)
	}
	var entry *model.LuckyDrawEntry
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.repo.GetDrawForUpdate(ctx, tx, drawID)
		if err != nil {
			return err
		}
		if d.Status != model.DrawOpen {
			return fmt.Errorf("draw %d is %s: %w", drawID, d.Status, ErrInvalidState)
		}
		var n int64
		if err := tx.WithContext(ctx).Model(&model.LuckyDrawEntry{}).
			Where("lucky_draw_id = ? AND payment_id = ?", drawID, paymentID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateEntry
		}
		e := &model.LuckyDrawEntry{LuckyDrawID: drawID, UserID: userID, PaymentID: paymentID, PrizeAmount: decimal.Zero}
		if err := s.repo.CreateEntry(ctx, tx, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, classify("add draw entry", drawID, err)
	}
	return entry, nil
}

// ExecuteDraw picks the winners of an open draw, credits each prize through
// the ledger and completes the draw. All of it commits together or not at
// all; on failure the draw stays open.
func (s *DrawService) ExecuteDraw(ctx context.Context, drawID uint64) ([]Winner, error) {
	var winners []Winner
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		winners = winners[:0]
		d, err := s.repo.GetDrawForUpdate(ctx, tx, drawID)
		if err != nil {
			return err
		}
		if d.Status != model.DrawOpen {
			return fmt.Errorf("draw %d is %s: %w", drawID, d.Status, ErrInvalidState)
		}
		entries, err := s.repo.ListNonWinningEntries(ctx, tx, drawID)
		if err != nil {
			return err
		}
		slots, err := allocate(entries, d.PrizeStructure, s.shuffle)
		if err != nil {
			return err
		}
		for _, sl := range slots {
			w, err := s.award(ctx, tx, d, sl)
			if err != nil {
				return fmt.Errorf("award rank %d to user %d: %w", sl.tier.Rank, sl.entry.UserID, err)
			}
			winners = append(winners, w)
		}
		return s.repo.CompleteDraw(ctx, tx, drawID, s.now())
	})
	if err != nil {
		err = classify("execute draw", drawID, err)
		if errors.Is(err, ErrExecutionFailed) {
			metrics.DrawExecutions.WithLabelValues("failed").Inc()
			s.log.Errorw("draw execution failed", "draw_id", drawID, "error", err)
		} else {
			metrics.DrawExecutions.WithLabelValues("rejected").Inc()
			s.log.Infow("draw execution rejected", "draw_id", drawID, "reason", err.Error())
		}
		return nil, err
	}

	users := make([]uint64, 0, len(winners))
	total := decimal.Zero
	for _, w := range winners {
		users = append(users, w.UserID)
		total = total.Add(w.Amount)
	}
	if err := s.repo.InvalidateBalance(ctx, users...); err != nil {
		s.log.Warnw("invalidate balances", "draw_id", drawID, "error", err)
	}
	metrics.DrawExecutions.WithLabelValues("completed").Inc()
	metrics.PrizesCredited.Add(total.InexactFloat64())
	metrics.LedgerEntries.WithLabelValues(string(model.TxBonusCredit)).Add(float64(len(winners)))
	s.log.Infow("draw executed", "draw_id", drawID, "winners", len(winners), "total", total.String())
	return winners, nil
}

func (s *DrawService) award(ctx context.Context, tx *gorm.DB, d *model.LuckyDraw, sl slot) (Winner, error) {
	paymentID := sl.entry.PaymentID
	bonus := &model.BonusTransaction{
		UserID:      sl.entry.UserID,
		Type:        model.BonusLuckyDraw,
		Amount:      sl.tier.Amount,
		Multiplier:  decimal.NewFromInt(1),
		Description: fmt.Sprintf("Lucky draw %q rank %d prize", d.Name, sl.tier.Rank),
		PaymentID:   &paymentID,
	}
	if err := s.repo.CreateBonus(ctx, tx, bonus); err != nil {
		return Winner{}, err
	}
	if err := s.repo.MarkEntryWinner(ctx, tx, sl.entry.ID, sl.tier.Rank, sl.tier.Amount); err != nil {
		return Winner{}, err
	}
	t, err := s.ledger.Apply(ctx, tx, ledger.Entry{
		UserID:      sl.entry.UserID,
		Amount:      sl.tier.Amount,
		Type:        model.TxBonusCredit,
		Description: bonus.Description,
		Reference:   model.BonusRef(bonus.ID),
	})
	if err != nil {
		return Winner{}, err
	}
	if err := s.repo.LinkBonusTransaction(ctx, tx, bonus.ID, t.ID); err != nil {
		return Winner{}, err
	}
	err = notify(ctx, s.repo, tx, "LuckyDraw", d.ID, "PrizeAwarded", map[string]interface{}{
		"draw_id":  d.ID,
		"draw":     d.Name,
		"user_id":  sl.entry.UserID,
		"entry_id": sl.entry.ID,
		"rank":     sl.tier.Rank,
		"amount":   sl.tier.Amount,
	})
	if err != nil {
		return Winner{}, err
	}
	return Winner{
		EntryID:       sl.entry.ID,
		UserID:        sl.entry.UserID,
		Rank:          sl.tier.Rank,
		Amount:        sl.tier.Amount,
		BonusID:       bonus.ID,
		TransactionID: t.ID,
	}, nil
}

// GetDraw returns a draw and its winners.
func (s *DrawService) GetDraw(ctx context.Context, drawID uint64) (*DrawDetails, error) {
	db := s.repo.DB(ctx)
	d, err := s.repo.GetDraw(ctx, db, drawID)
	if err != nil {
		return nil, classify("get draw", drawID, err)
	}
	winners, err := s.repo.ListWinners(ctx, db, drawID)
	if err != nil {
		return nil, classify("get draw", drawID, err)
	}
	return &DrawDetails{Draw: d, Winners: winners}, nil
}

// ExecuteDueDraws runs every open draw whose draw date is not after now.
// A failing draw is logged and skipped.
func (s *DrawService) ExecuteDueDraws(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListDueDraws(ctx, now)
	if err != nil {
		return 0, err
	}
	executed := 0
	for _, d := range due {
		if _, err := s.ExecuteDraw(ctx, d.ID); err != nil {
			s.log.Warnw("scheduled draw not executed", "draw_id", d.ID, "error", err)
			continue
		}
		executed++
	}
	return executed, nil
}

type slot struct {
	entry model.LuckyDrawEntry
	tier  model.PrizeTier
}

// allocate assigns one prize slot per user. Users are shuffled once; tiers
// then take users in shuffle order, so nobody can win twice no matter how
// many entries they hold. Each winner's lowest-id entry carries the prize.
func allocate(entries []model.LuckyDrawEntry, tiers model.PrizeStructure, shuffle ShuffleFunc) ([]slot, error) {
	needed := tiers.Winners()
	if len(entries) < needed {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientEntries, len(entries), needed)
	}

	first := make(map[uint64]model.LuckyDrawEntry, len(entries))
	for _, e := range entries {
		if cur, ok := first[e.UserID]; !ok || e.ID < cur.ID {
			first[e.UserID] = e
		}
	}
	users := make([]uint64, 0, len(first))
	for id := range first {
		users = append(users, id)
	}
	if len(users) < needed {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientUniqueUsers, len(users), needed)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	if err := shuffle(users); err != nil {
		return nil, fmt.Errorf("shuffle users: %w", err)
	}

	slots := make([]slot, 0, needed)
	next := 0
	for _, t := range tiers {
		for i := 0; i < t.Count; i++ {
			slots = append(slots, slot{entry: first[users[next]], tier: t})
			next++
		}
	}
	return slots, nil
}

// secureShuffle is a Fisher-Yates shuffle over a ChaCha8 stream seeded from
// crypto/rand.
func secureShuffle(ids []uint64) error {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return err
	}
	rng := mrand.New(mrand.NewChaCha8(seed))
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return nil
}
