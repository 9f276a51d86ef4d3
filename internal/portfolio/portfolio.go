// Package portfolio gates automated execution against account risk limits
// and tracks positions and P&L.
//
// RiskManager reads balances and positions through model.AccountStore and
// keeps its per-user cooldowns and day-start balances in a
// model.RiskStateStore. Portfolio is an in-memory AccountStore for paper
// accounts and tests.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-signalcore/internal/model"
)

var (
	ErrUnknownPosition = errors.New("portfolio: unknown position")
	ErrPositionClosed  = errors.New("portfolio: position already closed")
)

type account struct {
	balance   decimal.Decimal
	positions map[string]*model.Position // key = position ID
}

// Portfolio tracks balances and positions for many users in memory.
type Portfolio struct {
	mu       sync.RWMutex
	accounts map[string]*account
}

var _ model.AccountStore = (*Portfolio)(nil)

// New creates an empty Portfolio.
func New() *Portfolio {
	return &Portfolio{accounts: make(map[string]*account)}
}

func (pf *Portfolio) acct(userID string) *account {
	a, ok := pf.accounts[userID]
	if !ok {
		a = &account{positions: make(map[string]*model.Position)}
		pf.accounts[userID] = a
	}
	return a
}

// Deposit sets or adjusts a user's cash balance.
func (pf *Portfolio) Deposit(userID string, amount float64) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	a := pf.acct(userID)
	a.balance = a.balance.Add(decimal.NewFromFloat(amount))
}

// Open records a new position and returns it with ID and CurrentPrice
// filled in when missing.
func (pf *Portfolio) Open(p model.Position) model.Position {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CurrentPrice == 0 {
		p.CurrentPrice = p.EntryPrice
	}
	p.ClosedAt = nil
	p.RealizedPnL = 0

	pf.mu.Lock()
	defer pf.mu.Unlock()
	cp := p
	pf.acct(p.UserID).positions[p.ID] = &cp
	return p
}

// Close exits a position at price, books the realized P&L into the
// user's balance and returns the closed position.
func (pf *Portfolio) Close(userID, positionID string, price float64, at time.Time) (model.Position, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	a := pf.acct(userID)
	p, ok := a.positions[positionID]
	if !ok {
		return model.Position{}, fmt.Errorf("%w: %s", ErrUnknownPosition, positionID)
	}
	if !p.IsOpen() {
		return *p, fmt.Errorf("%w: %s", ErrPositionClosed, positionID)
	}
	pnl := positionPnL(p.Side, p.EntryPrice, price, p.Quantity)
	closedAt := at
	p.CurrentPrice = price
	p.ClosedAt = &closedAt
	p.RealizedPnL = pnl.InexactFloat64()
	a.balance = a.balance.Add(pnl)
	return *p, nil
}

// UpdatePrice marks every open position in symbol at price.
func (pf *Portfolio) UpdatePrice(symbol string, price float64) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	for _, a := range pf.accounts {
		for _, p := range a.positions {
			if p.Symbol == symbol && p.IsOpen() {
				p.CurrentPrice = price
			}
		}
	}
}

// Balance implements model.AccountStore.
func (pf *Portfolio) Balance(_ context.Context, userID string) (float64, error) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	a, ok := pf.accounts[userID]
	if !ok {
		return 0, nil
	}
	return a.balance.InexactFloat64(), nil
}

// OpenPositions implements model.AccountStore, oldest first.
func (pf *Portfolio) OpenPositions(_ context.Context, userID string) ([]model.Position, error) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	var out []model.Position
	if a, ok := pf.accounts[userID]; ok {
		for _, p := range a.positions {
			if p.IsOpen() {
				out = append(out, *p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

// ClosedPositions implements model.AccountStore, newest first.
func (pf *Portfolio) ClosedPositions(_ context.Context, userID string, since time.Time) ([]model.Position, error) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	var out []model.Position
	if a, ok := pf.accounts[userID]; ok {
		for _, p := range a.positions {
			if !p.IsOpen() && !p.ClosedAt.Before(since) {
				out = append(out, *p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.After(*out[j].ClosedAt) })
	return out, nil
}

// Summary returns the user's P&L summary.
func (pf *Portfolio) Summary(ctx context.Context, userID string) PnLSummary {
	open, _ := pf.OpenPositions(ctx, userID)
	closed, _ := pf.ClosedPositions(ctx, userID, time.Time{})
	return Summarize(open, closed)
}
