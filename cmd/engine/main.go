// Command engine is the process entrypoint: it loads configuration,
// wires every collaborator described in SPEC_FULL.md §2/§5, starts the
// monitoring scheduler, and serves the read-only HTTP/websocket surface
// until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"spartan-core/internal/alert"
	"spartan-core/internal/bus"
	"spartan-core/internal/cache"
	"spartan-core/internal/config"
	"spartan-core/internal/exchange"
	"spartan-core/internal/httpapi"
	"spartan-core/internal/indicator"
	"spartan-core/internal/metrics"
	"spartan-core/internal/scheduler"
	"spartan-core/internal/simulator"
	"spartan-core/internal/sizing"
	"spartan-core/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	m := metrics.New()

	exchangeClient := exchange.New(exchange.Config{
		BaseURL:           cfg.ExchangeBaseURL,
		MaxRequestsPer60s: cfg.ExchangeMaxReqs60s,
		MaxWeightPer60s:   cfg.ExchangeMaxWeight,
		Metrics:           m,
	})

	candleCache := cache.New(cfg.CacheMaxSizeMB, time.Duration(cfg.CacheDefaultTTLSecond)*time.Second, m)
	defer candleCache.Close()

	indicatorParams := indicator.Params{
		TrendMagic: indicator.TrendMagicParams{
			CCIPeriod: cfg.CCIPeriod,
			Coeff:     cfg.CCICoeff,
			ATRPeriod: cfg.ATRPeriod,
		},
		Squeeze: indicator.SqueezeParams{
			BBLength:     cfg.BBLength,
			BBMult:       cfg.BBMult,
			KCLength:     cfg.KCLength,
			KCMult:       cfg.KCMult,
			UseTrueRange: cfg.UseTrueRange,
		},
	}
	sizingParams := sizing.Params{
		PositionSize:    cfg.PositionSizeUSD,
		RiskRewardRatio: cfg.RiskRewardRatio,
	}

	sim := simulator.New(simulator.Config{
		InitialBalance:    decimal.NewFromInt(10000),
		MaxPositions:      cfg.MaxPositions,
		MakerFee:          decimal.NewFromFloat(cfg.MakerFee),
		TakerFee:          decimal.NewFromFloat(cfg.TakerFee),
		AutoCloseOnTarget: cfg.AutoCloseOnTarget,
	})

	tradeStore, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("opening trade store: %v", err)
	}
	defer tradeStore.Close()

	sink := alert.NewLogSink()
	eventBus := bus.New()

	sch := scheduler.New(scheduler.Config{
		Symbols:                 cfg.Symbols,
		Interval:                cfg.Interval,
		CandlesLimit:            cfg.CandlesLimit,
		CycleSeconds:            cfg.CycleSeconds,
		PerSymbolTimeoutSeconds: cfg.PerSymbolTimeoutSeconds,
		MaxInflight:             cfg.MaxInflight,
		MaxErrorsPerSymbol:      cfg.MaxErrorsPerSymbol,
		ErrorResetMinutes:       cfg.ErrorResetMinutes,
		PollSpacingMs:           cfg.PollSpacingMs,
		IndicatorParams:         indicatorParams,
		SizingParams:            sizingParams,
	}, scheduler.Deps{
		Exchange:  exchangeClient,
		Cache:     candleCache,
		Simulator: sim,
		Store:     tradeStore,
		Sink:      sink,
		Bus:       eventBus,
		Metrics:   m,
	})

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if ok := sch.Start(startCtx); !ok {
		startCancel()
		log.Fatal("scheduler failed to start: exchange connectivity check failed")
	}
	startCancel()

	apiHandler := httpapi.NewHandler(sch, sim, tradeStore)
	wsHandler := httpapi.NewWSHandler(eventBus, cfg.WebSocketOrigin)
	router := httpapi.NewRouter(httpapi.RouterDeps{
		Handler:       apiHandler,
		WSHandler:     wsHandler,
		Metrics:       m,
		InternalToken: cfg.InternalToken,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	log.Printf("engine monitoring %d symbol(s) on interval %s", len(cfg.Symbols), cfg.Interval)
	log.Printf("http listening on %s", cfg.HTTPAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Print("shutdown signal received")
		sch.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
