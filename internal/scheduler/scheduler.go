// Package scheduler owns the monitoring process lifecycle of §4.5: a
// periodic, bounded-concurrency fan-out over symbols that couples the
// exchange client, cache, indicator engine, and simulator, and emits
// signals and alerts.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spartan-core/internal/alert"
	"spartan-core/internal/bus"
	"spartan-core/internal/cache"
	"spartan-core/internal/candle"
	"spartan-core/internal/config"
	"spartan-core/internal/exchange"
	"spartan-core/internal/indicator"
	"spartan-core/internal/metrics"
	"spartan-core/internal/simulator"
	"spartan-core/internal/sizing"
	"spartan-core/internal/store"
)

// minCompletenessRatio is the DataQuality threshold of §7: below this
// fraction of expected candles present, the symbol error counter is
// incremented and the rest of that symbol's cycle is skipped.
const minCompletenessRatio = 0.7

// State is the scheduler's overall lifecycle state.
type State string

const (
	StateStopped      State = "STOPPED"
	StateStarting     State = "STARTING"
	StateRunning      State = "RUNNING"
	StateShuttingDown State = "SHUTTING_DOWN"
	StateError        State = "ERROR"
)

// SymbolState is a per-symbol administrative/health state.
type SymbolState string

const (
	SymbolActive SymbolState = "ACTIVE"
	SymbolPaused SymbolState = "PAUSED"
	SymbolError  SymbolState = "ERROR"
)

// SymbolStatus is the scheduler-owned per-symbol state (§3). Never
// written from outside the scheduler.
type SymbolStatus struct {
	Symbol           string
	State            SymbolState
	LastSnapshot     indicator.Snapshot
	HasSnapshot      bool
	UpdateCount      int
	ErrorCount       int
	LastError        string
	LastErrorAt      time.Time
	Permanent        bool // set on InvalidSymbol; excluded from error-count decay
	LatchedDirection indicator.Direction
	LastSignalAt     time.Time
}

// MonitoringStatus is the scheduler-owned aggregate view (§3).
type MonitoringStatus struct {
	State        State
	StartTime    time.Time
	Symbols      map[string]SymbolStatus
	TotalUpdates int
	TotalSignals int
	TotalErrors  int
	HealthScore  float64
}

// Config controls the scheduler's cycle shape and error-quarantine
// policy (§4.5).
type Config struct {
	Symbols                 []string
	Interval                string
	CandlesLimit            int
	CycleSeconds            int
	PerSymbolTimeoutSeconds int
	MaxInflight             int
	MaxErrorsPerSymbol      int
	ErrorResetMinutes       int
	PollSpacingMs           int

	IndicatorParams indicator.Params
	SizingParams    sizing.Params
}

// Deps bundles the scheduler's collaborators (§2 component wiring).
type Deps struct {
	Exchange  *exchange.Client
	Cache     *cache.Cache
	Simulator *simulator.Simulator
	Store     *store.Store
	Sink      alert.Sink
	Bus       *bus.Bus
	Metrics   *metrics.Collector
}

// Scheduler coordinates the periodic fan-out described in §4.5.
type Scheduler struct {
	cfg          Config
	deps         Deps
	intervalStep time.Duration

	mu     sync.Mutex
	status MonitoringStatus

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Scheduler in the STOPPED state.
func New(cfg Config, deps Deps) *Scheduler {
	if cfg.CycleSeconds <= 0 {
		cfg.CycleSeconds = 60
	}
	if cfg.PerSymbolTimeoutSeconds <= 0 {
		cfg.PerSymbolTimeoutSeconds = 30
	}
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = 10
	}
	if cfg.MaxErrorsPerSymbol <= 0 {
		cfg.MaxErrorsPerSymbol = 5
	}
	if cfg.ErrorResetMinutes <= 0 {
		cfg.ErrorResetMinutes = 30
	}
	if cfg.PollSpacingMs <= 0 {
		cfg.PollSpacingMs = 100
	}
	if deps.Sink == nil {
		deps.Sink = alert.NewNoopSink()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	if deps.Bus == nil {
		deps.Bus = bus.New()
	}

	symbols := make(map[string]SymbolStatus, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols[s] = SymbolStatus{Symbol: s, State: SymbolActive}
	}

	step, _ := config.IntervalDuration(cfg.Interval)

	s := &Scheduler{
		cfg:          cfg,
		deps:         deps,
		intervalStep: step,
		status: MonitoringStatus{
			State:   StateStopped,
			Symbols: symbols,
		},
	}
	// closePosition (both the bracket path in UpdatePositions and a
	// direct manual ClosePosition call) always funnels through this
	// callback, so it's the single place trades get persisted.
	if deps.Simulator != nil {
		deps.Simulator.OnTradeClosed(s.persistClosedTrade)
	}
	return s
}

func (s *Scheduler) persistClosedTrade(trade simulator.ClosedTrade) {
	s.deps.Metrics.RecordTradeClosed(trade.Symbol, string(trade.CloseReason))
	if s.deps.Store != nil {
		if err := s.deps.Store.AppendTrade(context.Background(), trade); err != nil {
			log.Printf("scheduler: append trade for %s failed: %v", trade.Symbol, err)
		}
	}
	s.deps.Sink.Notify(context.Background(), alert.Event{
		Kind: "trade_closed", Symbol: trade.Symbol,
		Message: fmt.Sprintf("%s closed %s realPnL=%s", trade.Symbol, trade.CloseReason, trade.RealizedPnL),
	})
}

// Start implements the STOPPED -> STARTING -> RUNNING transition of
// §4.5: it performs a connectivity check, then launches the cycle loop.
// Returns false (and leaves the scheduler in ERROR) on an irrecoverable
// bootstrap failure.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	if s.status.State == StateRunning || s.status.State == StateStarting {
		s.mu.Unlock()
		return true
	}
	s.status.State = StateStarting
	s.mu.Unlock()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.deps.Exchange.Ping(pingCtx); err != nil {
		s.mu.Lock()
		s.status.State = StateError
		s.mu.Unlock()
		log.Printf("scheduler: bootstrap connectivity check failed: %v", err)
		return false
	}

	s.mu.Lock()
	s.status.State = StateRunning
	s.status.StartTime = time.Now().UTC()
	s.mu.Unlock()

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run()
	return true
}

// Stop implements the RUNNING -> SHUTTING_DOWN -> STOPPED transition:
// it signals the loop to exit and waits up to 10s for the in-flight
// cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.status.State != StateRunning {
		s.mu.Unlock()
		return
	}
	s.status.State = StateShuttingDown
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(10 * time.Second):
		log.Printf("scheduler: shutdown timed out waiting for in-flight cycle")
	}

	s.mu.Lock()
	s.status.State = StateStopped
	s.mu.Unlock()
}

func (s *Scheduler) run() {
	defer close(s.doneCh)
	cycleDuration := time.Duration(s.cfg.CycleSeconds) * time.Second

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		cycleStart := time.Now()
		s.runCycle()
		s.deps.Metrics.ObserveCycleDuration(time.Since(cycleStart))

		elapsed := time.Since(cycleStart)
		sleepFor := cycleDuration - elapsed
		if sleepFor < time.Second {
			sleepFor = time.Second
		}

		select {
		case <-s.stopCh:
			return
		case <-time.After(sleepFor):
		}
	}
}

// runCycle implements one sweep of the algorithm in §4.5.
func (s *Scheduler) runCycle() {
	symbols := s.activeSymbols()

	sem := make(chan struct{}, s.cfg.MaxInflight)
	var wg sync.WaitGroup

	for _, symbol := range symbols {
		select {
		case <-s.stopCh:
			return
		default:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.PerSymbolTimeoutSeconds)*time.Second)
			defer cancel()
			s.processSymbol(ctx, symbol)
		}(symbol)

		if s.cfg.PollSpacingMs > 0 {
			time.Sleep(time.Duration(s.cfg.PollSpacingMs) * time.Millisecond)
		}
	}

	wg.Wait()

	// Closed trades are persisted, metered, and alerted from
	// persistClosedTrade via the OnTradeClosed callback, not here.
	s.deps.Simulator.UpdatePositions(s.buildPriceMap())

	s.decayErrorsAndUpdateHealth()
}

func (s *Scheduler) activeSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for symbol, st := range s.status.Symbols {
		if st.State == SymbolActive {
			out = append(out, symbol)
		}
	}
	return out
}

func (s *Scheduler) buildPriceMap() map[string]decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	priceMap := make(map[string]decimal.Decimal, len(s.status.Symbols))
	for symbol, st := range s.status.Symbols {
		if st.HasSnapshot {
			priceMap[symbol] = decimal.NewFromFloat(st.LastSnapshot.CurrentPrice)
		}
	}
	return priceMap
}

// processSymbol implements steps a-f of §4.5.
func (s *Scheduler) processSymbol(ctx context.Context, symbol string) {
	start := time.Now()

	req := candle.Request{Symbol: symbol, Interval: s.cfg.Interval, Limit: s.cfg.CandlesLimit, UseCache: true}
	series, ok := s.deps.Cache.Get(req)
	if !ok {
		fetched, err := s.deps.Exchange.FetchCandles(ctx, symbol, s.cfg.Interval, s.cfg.CandlesLimit)
		if err != nil {
			s.recordSymbolError(symbol, err)
			return
		}
		series = fetched
		s.deps.Cache.Put(req, series, 0)
	}

	if err := series.Validate(); err != nil {
		log.Printf("scheduler: %s candle validation: %v", symbol, err)
	}
	if ratio := series.CompletenessRatio(s.intervalStep); ratio < minCompletenessRatio {
		s.recordSymbolError(symbol, &dataQualityError{symbol: symbol, ratio: ratio})
		return
	}

	snapshot, err := indicator.Compute(series, s.cfg.IndicatorParams)
	if err != nil {
		s.recordSymbolError(symbol, err)
		return
	}

	s.recordSnapshot(symbol, snapshot)
	s.revalidateLatch(symbol, snapshot)
	s.detectAndOpen(symbol, snapshot)

	s.deps.Metrics.ObserveExchangeLatency(symbol, time.Since(start))
}

// dataQualityError marks the DataQuality classification of §7: a series
// whose completeness ratio fell below minCompletenessRatio.
type dataQualityError struct {
	symbol string
	ratio  float64
}

func (e *dataQualityError) Error() string {
	return fmt.Sprintf("data quality: %s completeness ratio %.2f below threshold", e.symbol, e.ratio)
}

// recordSymbolError implements the quarantine policy of §7/§4.5. Every
// kind increments the error counter and decays toward ACTIVE after
// ErrorResetMinutes, except InvalidSymbol: that one is permanent and
// quarantines the symbol on its first occurrence.
func (s *Scheduler) recordSymbolError(symbol string, err error) {
	s.mu.Lock()
	st := s.status.Symbols[symbol]
	st.ErrorCount++
	st.LastError = err.Error()
	st.LastErrorAt = time.Now().UTC()
	if exchange.IsInvalidSymbol(err) {
		st.State = SymbolError
		st.Permanent = true
	} else if st.ErrorCount >= s.cfg.MaxErrorsPerSymbol {
		st.State = SymbolError
	}
	s.status.Symbols[symbol] = st
	s.status.TotalErrors++
	s.mu.Unlock()

	s.deps.Metrics.RecordSymbolError(symbol, classifyErrorKind(err))
}

func classifyErrorKind(err error) string {
	if exErr, ok := err.(*exchange.Error); ok {
		return exErr.Kind.String()
	}
	if _, ok := err.(*dataQualityError); ok {
		return "data_quality"
	}
	return "unknown"
}

func (s *Scheduler) recordSnapshot(symbol string, snapshot indicator.Snapshot) {
	s.mu.Lock()
	st := s.status.Symbols[symbol]
	st.LastSnapshot = snapshot
	st.HasSnapshot = true
	st.UpdateCount++
	st.ErrorCount = 0
	s.status.Symbols[symbol] = st
	s.status.TotalUpdates++
	s.mu.Unlock()
}

// revalidateLatch implements §4.2.3's invalidation rule: if the latched
// direction no longer matches the current indicator context, clear it.
// The open position (if any) is unaffected and continues to be managed
// by the simulator until its bracket is hit.
func (s *Scheduler) revalidateLatch(symbol string, snapshot indicator.Snapshot) {
	s.mu.Lock()
	st := s.status.Symbols[symbol]
	latch := st.LatchedDirection
	s.mu.Unlock()

	if latch == indicator.DirectionNone {
		return
	}
	if !indicator.DirectionStillSupported(latch, snapshot.TMColor, snapshot.MomentumColor) {
		s.mu.Lock()
		st := s.status.Symbols[symbol]
		st.LatchedDirection = indicator.DirectionNone
		s.status.Symbols[symbol] = st
		s.mu.Unlock()
	}
}

// detectAndOpen implements step e of §4.5's processSymbol.
func (s *Scheduler) detectAndOpen(symbol string, snapshot indicator.Snapshot) {
	direction := indicator.DetectSignal(snapshot.OpenPrice, snapshot.CurrentPrice, snapshot.TMValue, snapshot.TMColor, snapshot.MomentumColor)
	if direction == indicator.DirectionNone {
		return
	}

	s.mu.Lock()
	st := s.status.Symbols[symbol]
	alreadyLatched := st.LatchedDirection == direction
	s.mu.Unlock()
	if alreadyLatched {
		return
	}

	s.deps.Metrics.RecordSignal(symbol, string(direction))

	if !s.deps.Simulator.CanOpenPosition() {
		return
	}

	order, err := sizing.Compute(direction, snapshot.CurrentPrice, snapshot.TMValue, s.cfg.Interval, s.cfg.SizingParams)
	if err != nil {
		log.Printf("scheduler: sizing failed for %s: %v", symbol, err)
		return
	}

	side := simulator.SideLong
	if direction == indicator.DirectionShort {
		side = simulator.SideShort
	}

	opened := s.deps.Simulator.OpenPosition(
		symbol, side,
		decimal.NewFromFloat(snapshot.CurrentPrice), decimal.NewFromFloat(order.Quantity),
		decimal.NewFromFloat(order.StopLoss), decimal.NewFromFloat(order.TakeProfit),
		s.cfg.Interval, decimal.NewFromFloat(snapshot.TMValue),
		string(snapshot.TMColor), string(snapshot.MomentumColor),
	)
	if !opened {
		return
	}

	s.mu.Lock()
	st = s.status.Symbols[symbol]
	st.LatchedDirection = direction
	st.LastSignalAt = time.Now().UTC()
	s.status.Symbols[symbol] = st
	s.status.TotalSignals++
	s.mu.Unlock()

	s.deps.Metrics.RecordPositionOpened(symbol, string(side))
	s.deps.Bus.Publish(bus.Event{Type: "signal", Data: map[string]any{"symbol": symbol, "direction": string(direction)}})
	s.deps.Sink.Notify(context.Background(), alert.Event{Kind: "position_opened", Symbol: symbol, Message: fmt.Sprintf("%s %s at %v", symbol, direction, snapshot.CurrentPrice)})
}

// decayErrorsAndUpdateHealth reactivates symbols whose error quarantine
// window has elapsed, and recomputes the aggregate health score.
func (s *Scheduler) decayErrorsAndUpdateHealth() {
	s.mu.Lock()
	defer s.mu.Unlock()

	resetAfter := time.Duration(s.cfg.ErrorResetMinutes) * time.Minute
	active := 0
	for symbol, st := range s.status.Symbols {
		if st.State == SymbolError && !st.Permanent && !st.LastErrorAt.IsZero() && time.Since(st.LastErrorAt) >= resetAfter {
			st.State = SymbolActive
			st.ErrorCount = 0
			s.status.Symbols[symbol] = st
		}
		if s.status.Symbols[symbol].State == SymbolActive {
			active++
		}
	}

	total := len(s.status.Symbols)
	if total == 0 {
		s.status.HealthScore = 1.0
		return
	}
	s.status.HealthScore = float64(active) / float64(total)
}

// GetMonitoringStatus returns a deep-enough snapshot for read-only
// observers (§6).
func (s *Scheduler) GetMonitoringStatus() MonitoringStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	symbolsCopy := make(map[string]SymbolStatus, len(s.status.Symbols))
	for k, v := range s.status.Symbols {
		symbolsCopy[k] = v
	}
	out := s.status
	out.Symbols = symbolsCopy
	return out
}

// GetSymbolStatus returns a copy of one symbol's status.
func (s *Scheduler) GetSymbolStatus(symbol string) (SymbolStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status.Symbols[symbol]
	return st, ok
}

// PauseSymbol administratively pauses a symbol, excluding it from the
// next cycle's fan-out.
func (s *Scheduler) PauseSymbol(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status.Symbols[symbol]
	if !ok {
		return
	}
	st.State = SymbolPaused
	s.status.Symbols[symbol] = st
}

// ResumeSymbol clears an administrative pause.
func (s *Scheduler) ResumeSymbol(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status.Symbols[symbol]
	if !ok || st.State != SymbolPaused {
		return
	}
	st.State = SymbolActive
	s.status.Symbols[symbol] = st
}
