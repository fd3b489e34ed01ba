// Package simulator implements the paper-trading position lifecycle of
// §4.4.1: opening, bracket evaluation, and commission-adjusted closing,
// all guarded by one mutex per SimulatorState invariant in §5.
package simulator

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Side is a position's direction.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// CloseReason records why a position was closed.
type CloseReason string

const (
	CloseTakeProfit CloseReason = "TAKE_PROFIT"
	CloseStopLoss   CloseReason = "STOP_LOSS"
	CloseManual     CloseReason = "MANUAL"
)

// Position is an open simulated trade (§3).
type Position struct {
	Symbol           string
	Side             Side
	EntryPrice       decimal.Decimal
	Quantity         decimal.Decimal
	StopLoss         decimal.Decimal
	TakeProfit       decimal.Decimal
	EntryTime        time.Time
	EntryCommission  decimal.Decimal
	Interval         string
	TMValueAtEntry   decimal.Decimal
	TMColorAtEntry   string
	MomentumAtEntry  string
}

// ClosedTrade is the immutable record of a completed trade (§3).
type ClosedTrade struct {
	Position
	ExitPrice        decimal.Decimal
	ExitTime         time.Time
	GrossPnL         decimal.Decimal
	RealizedPnL      decimal.Decimal
	TotalCommissions decimal.Decimal
	CloseReason      CloseReason
	IsWinner         bool
}

// Config controls commission rates and the open-position ceiling.
type Config struct {
	InitialBalance    decimal.Decimal
	MaxPositions      int
	MakerFee          decimal.Decimal
	TakerFee          decimal.Decimal
	AutoCloseOnTarget bool
}

// DefaultConfig returns the documented default fee and position limits.
func DefaultConfig() Config {
	return Config{
		MaxPositions:      5,
		MakerFee:          decimal.NewFromFloat(0.0004),
		TakerFee:          decimal.NewFromFloat(0.0005),
		AutoCloseOnTarget: true,
	}
}

// Simulator owns the open-position map and closed-trade history behind
// one mutex (§5: "SimulatorState: protected by one mutex; all mutators
// take it").
type Simulator struct {
	mu sync.Mutex

	cfg              Config
	balance          decimal.Decimal
	open             map[string]*Position
	closed           []ClosedTrade
	totalCommissions decimal.Decimal

	onTradeClosed func(ClosedTrade)
}

// New constructs a Simulator with the given configuration.
func New(cfg Config) *Simulator {
	return &Simulator{
		cfg:     cfg,
		balance: cfg.InitialBalance,
		open:    make(map[string]*Position),
	}
}

// OnTradeClosed registers a callback invoked (under no lock) whenever a
// trade closes, used to hand the trade to the persistent store.
func (s *Simulator) OnTradeClosed(fn func(ClosedTrade)) {
	s.mu.Lock()
	s.onTradeClosed = fn
	s.mu.Unlock()
}

// CanOpenPosition reports whether the open-position ceiling has room.
func (s *Simulator) CanOpenPosition() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open) < s.cfg.MaxPositions
}

// OpenPosition implements §4.4.1's openPosition: rejects when the
// ceiling is reached, a position for the symbol already exists, or qty
// is non-positive. On acceptance it charges an entry commission and adds
// the position to the open set.
func (s *Simulator) OpenPosition(symbol string, side Side, entry, qty, sl, tp decimal.Decimal, interval string, tmValue decimal.Decimal, tmColor, momentumColor string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.open) >= s.cfg.MaxPositions {
		return false
	}
	if _, exists := s.open[symbol]; exists {
		return false
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return false
	}

	commission := entry.Mul(qty).Mul(s.cfg.MakerFee)
	pos := &Position{
		Symbol:          symbol,
		Side:            side,
		EntryPrice:      entry,
		Quantity:        qty,
		StopLoss:        sl,
		TakeProfit:      tp,
		EntryTime:       time.Now().UTC(),
		EntryCommission: commission,
		Interval:        interval,
		TMValueAtEntry:  tmValue,
		TMColorAtEntry:  tmColor,
		MomentumAtEntry: momentumColor,
	}
	s.open[symbol] = pos
	s.totalCommissions = s.totalCommissions.Add(commission)
	return true
}

// UpdatePositions implements §4.4.1's updatePositions: for every open
// position with a price in priceMap, evaluates its bracket and closes it
// on breach. Stop-loss takes precedence over take-profit when both
// conditions are satisfied in the same update (§4.4.1, E3).
func (s *Simulator) UpdatePositions(priceMap map[string]decimal.Decimal) []ClosedTrade {
	if !s.cfg.AutoCloseOnTarget {
		return nil
	}

	var toClose []struct {
		symbol string
		price  decimal.Decimal
		reason CloseReason
	}

	s.mu.Lock()
	for symbol, pos := range s.open {
		price, ok := priceMap[symbol]
		if !ok {
			continue
		}
		reason, hit := evaluateBracket(pos, price)
		if hit {
			toClose = append(toClose, struct {
				symbol string
				price  decimal.Decimal
				reason CloseReason
			}{symbol, price, reason})
		}
	}
	s.mu.Unlock()

	var closed []ClosedTrade
	for _, c := range toClose {
		trade, ok := s.closePosition(c.symbol, c.price, c.reason)
		if ok {
			closed = append(closed, trade)
		}
	}
	return closed
}

// evaluateBracket checks the stop-loss condition first, so a
// simultaneous SL+TP breach resolves to STOP_LOSS.
func evaluateBracket(pos *Position, price decimal.Decimal) (CloseReason, bool) {
	switch pos.Side {
	case SideLong:
		if price.LessThanOrEqual(pos.StopLoss) {
			return CloseStopLoss, true
		}
		if price.GreaterThanOrEqual(pos.TakeProfit) {
			return CloseTakeProfit, true
		}
	case SideShort:
		if price.GreaterThanOrEqual(pos.StopLoss) {
			return CloseStopLoss, true
		}
		if price.LessThanOrEqual(pos.TakeProfit) {
			return CloseTakeProfit, true
		}
	}
	return "", false
}

// ClosePosition closes an open position manually (close reason MANUAL).
// It shares closePosition with UpdatePositions' bracket-triggered closes.
func (s *Simulator) ClosePosition(symbol string, exitPrice decimal.Decimal) (ClosedTrade, bool) {
	return s.closePosition(symbol, exitPrice, CloseManual)
}

func (s *Simulator) closePosition(symbol string, exitPrice decimal.Decimal, reason CloseReason) (ClosedTrade, bool) {
	s.mu.Lock()
	pos, ok := s.open[symbol]
	if !ok {
		s.mu.Unlock()
		return ClosedTrade{}, false
	}
	delete(s.open, symbol)

	exitCommission := exitPrice.Mul(pos.Quantity).Mul(s.cfg.TakerFee)
	var grossPnL decimal.Decimal
	switch pos.Side {
	case SideLong:
		grossPnL = exitPrice.Sub(pos.EntryPrice).Mul(pos.Quantity)
	case SideShort:
		grossPnL = pos.EntryPrice.Sub(exitPrice).Mul(pos.Quantity)
	}
	totalCommissions := pos.EntryCommission.Add(exitCommission)
	realPnL := grossPnL.Sub(totalCommissions)

	trade := ClosedTrade{
		Position:         *pos,
		ExitPrice:        exitPrice,
		ExitTime:         time.Now().UTC(),
		GrossPnL:         grossPnL,
		RealizedPnL:      realPnL,
		TotalCommissions: totalCommissions,
		CloseReason:      reason,
		IsWinner:         realPnL.GreaterThan(decimal.Zero),
	}

	s.balance = s.balance.Add(realPnL)
	s.totalCommissions = s.totalCommissions.Add(exitCommission)
	s.closed = append(s.closed, trade)
	callback := s.onTradeClosed
	s.mu.Unlock()

	if callback != nil {
		callback(trade)
	}
	return trade, true
}

// Balance returns the current simulated balance.
func (s *Simulator) Balance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// OpenPositions returns a snapshot copy of every open position.
func (s *Simulator) OpenPositions() []Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Position, 0, len(s.open))
	for _, p := range s.open {
		out = append(out, *p)
	}
	return out
}

// GetOpenPosition returns a copy of the open position for a symbol, if
// one exists.
func (s *Simulator) GetOpenPosition(symbol string) (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.open[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// ClosedTrades returns a snapshot copy of the closed-trade history.
func (s *Simulator) ClosedTrades() []ClosedTrade {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ClosedTrade, len(s.closed))
	copy(out, s.closed)
	return out
}

// PerformanceStats summarizes the simulator's observable totals for
// §6's getPerformanceStats.
type PerformanceStats struct {
	Balance          decimal.Decimal
	TotalTrades      int
	Wins             int
	WinRate          float64
	TotalCommissions decimal.Decimal
	OpenPositions    int
	MaxPositions     int
}

// Stats computes PerformanceStats from the current state.
func (s *Simulator) Stats() PerformanceStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	wins := 0
	for _, t := range s.closed {
		if t.IsWinner {
			wins++
		}
	}
	winRate := 0.0
	if len(s.closed) > 0 {
		winRate = float64(wins) / float64(len(s.closed)) * 100
	}
	return PerformanceStats{
		Balance:          s.balance,
		TotalTrades:      len(s.closed),
		Wins:             wins,
		WinRate:          winRate,
		TotalCommissions: s.totalCommissions,
		OpenPositions:    len(s.open),
		MaxPositions:     s.cfg.MaxPositions,
	}
}

// ValidateBracket checks the side-dependent ordering invariant of §3:
// for LONG, stopLoss < entry < takeProfit; reversed for SHORT.
func ValidateBracket(side Side, entry, sl, tp decimal.Decimal) error {
	switch side {
	case SideLong:
		if !(sl.LessThan(entry) && entry.LessThan(tp)) {
			return fmt.Errorf("simulator: invalid LONG bracket: sl=%s entry=%s tp=%s", sl, entry, tp)
		}
	case SideShort:
		if !(tp.LessThan(entry) && entry.LessThan(sl)) {
			return fmt.Errorf("simulator: invalid SHORT bracket: sl=%s entry=%s tp=%s", sl, entry, tp)
		}
	default:
		return fmt.Errorf("simulator: unknown side %q", side)
	}
	return nil
}
