// Command twsbot talks to a TWS/IB Gateway instance: a long-running daemon
// that supervises the connection and exposes Prometheus metrics, plus
// one-shot subcommands for quotes, history, positions, account state, and
// order entry.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Boostao/tws-tradingbot-sub000/internal/config"
	"github.com/Boostao/tws-tradingbot-sub000/internal/ibgw"
	"github.com/Boostao/tws-tradingbot-sub000/internal/metrics"
	"github.com/Boostao/tws-tradingbot-sub000/internal/model"
	"github.com/Boostao/tws-tradingbot-sub000/internal/session"
)

// Set by ldflags at build time
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	flagConfig   string
	flagHost     string
	flagPort     int
	flagClientID int64
	flagVerbose  bool
)

func main() {
	root := &cobra.Command{
		Use:           "twsbot",
		Short:         "Trading bot gateway session for TWS / IB Gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (key=value)")
	root.PersistentFlags().StringVar(&flagHost, "host", "", "gateway host (overrides config)")
	root.PersistentFlags().IntVar(&flagPort, "port", 0, "gateway port (overrides config)")
	root.PersistentFlags().Int64Var(&flagClientID, "client-id", 0, "API client id (overrides config)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		runCmd(),
		historyCmd(),
		quoteCmd(),
		positionsCmd(),
		accountCmd(),
		ordersCmd(),
		placeCmd(),
		cancelCmd(),
		searchCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setupLogging() zerolog.Logger {
	level := zerolog.InfoLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
	ibgw.SetLogger(logger.With().Str("component", "ibgw").Logger())
	session.SetLogger(logger.With().Str("component", "session").Logger())
	return logger
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagHost != "" {
		cfg.Host = flagHost
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	if flagClientID != 0 {
		cfg.ClientID = flagClientID
	}
	return cfg, nil
}

func newSession(cfg *config.Config) *session.Session {
	return session.NewClient(session.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		ClientID:       cfg.ClientID,
		Account:        cfg.Account,
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
		MarketDataType: cfg.MarketDataType,
	})
}

// connect builds a session for a one-shot command and returns it with its
// cleanup.
func connect() (*session.Session, *config.Config, func(), error) {
	setupLogging()
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	s := newSession(cfg)
	if err := s.Connect(); err != nil {
		return nil, nil, nil, err
	}
	return s, cfg, func() { s.Disconnect() }, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("twsbot %s (built %s)\n", Version, BuildTime)
		},
	}
}

func runCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the gateway session daemon with metrics and reconnect supervision",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogging()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s := newSession(cfg)
			if err := s.Connect(); err != nil {
				// The supervisor keeps retrying; a dead gateway at
				// startup is not fatal.
				logger.Warn().Err(err).Msg("initial connect failed")
			}
			defer s.Disconnect()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.Info().Msg("received signal, shutting down")
				cancel()
			}()

			go s.Run(ctx, cfg.ReconnectInterval)

			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
			go func() {
				logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error().Err(err).Msg("metrics server failed")
				}
			}()
			defer srv.Shutdown(context.Background())

			var watchlist []string
			if cfg.WatchlistPath != "" {
				watchlist, err = config.LoadWatchlist(cfg.WatchlistPath)
				if err != nil {
					return err
				}
				logger.Info().Strs("symbols", watchlist).Msg("watchlist loaded")
			}
			handles := make(map[string]int64)

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if !s.IsConnected() {
						continue
					}
					if _, err := s.PortfolioPositions(); err != nil {
						logger.Warn().Err(err).Msg("portfolio refresh failed")
					}
					for _, sym := range s.WatchlistSymbols(watchlist) {
						if _, ok := handles[sym]; ok {
							continue
						}
						h, err := s.Subscribe(sym)
						if err != nil {
							logger.Warn().Str("symbol", sym).Err(err).Msg("subscribe failed")
							continue
						}
						handles[sym] = h
					}
					if eq, err := s.Equity(); err != nil {
						logger.Warn().Err(err).Msg("equity refresh failed")
					} else {
						logger.Info().Str("equity", eq.String()).Msg("account refreshed")
					}
					for sym, h := range handles {
						tick, ok := s.LatestTick(h)
						if !ok {
							// A reconnect dropped the line. Forget the
							// handle so the next tick resubscribes.
							delete(handles, sym)
							continue
						}
						if px, has := tick.Price(); has {
							logger.Info().Str("symbol", sym).Float64("price", px).Msg("tick")
						}
					}
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "account refresh interval")
	return cmd
}

func historyCmd() *cobra.Command {
	var (
		symbol     string
		duration   string
		barSize    string
		whatToShow string
		useRTH     bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Fetch historical bars",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, done, err := connect()
			if err != nil {
				return err
			}
			defer done()
			bars, err := s.HistoricalBars(symbol, duration, barSize, whatToShow, time.Now(), useRTH)
			if err != nil {
				return err
			}
			return printJSON(bars)
		},
	}
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "symbol")
	cmd.Flags().StringVar(&duration, "duration", "1 D", "lookback duration, e.g. '1 D', '2 W'")
	cmd.Flags().StringVar(&barSize, "bar-size", "5 mins", "bar size, e.g. '1 min', '1 day'")
	cmd.Flags().StringVar(&whatToShow, "what", "TRADES", "data to show (TRADES, MIDPOINT, BID, ASK)")
	cmd.Flags().BoolVar(&useRTH, "rth", true, "regular trading hours only")
	cmd.MarkFlagRequired("symbol")
	return cmd
}

func quoteCmd() *cobra.Command {
	var (
		symbol  string
		delayed bool
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Fetch a market data snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, done, err := connect()
			if err != nil {
				return err
			}
			defer done()
			var tick model.Tick
			if delayed {
				tick, err = s.SnapshotDelayed(symbol)
			} else {
				tick, err = s.Snapshot(symbol)
			}
			if err != nil {
				return err
			}
			return printJSON(tick)
		},
	}
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "symbol")
	cmd.Flags().BoolVar(&delayed, "delayed", false, "use the delayed feed")
	cmd.MarkFlagRequired("symbol")
	return cmd
}

func positionsCmd() *cobra.Command {
	var portfolio bool
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "List positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, done, err := connect()
			if err != nil {
				return err
			}
			defer done()
			var positions []model.Position
			if portfolio {
				// The portfolio stream carries market values and
				// synthesized entry times; backdate them from fills.
				if _, err := s.Executions(time.Time{}); err != nil {
					return err
				}
				positions, err = s.PortfolioPositions()
			} else {
				positions, err = s.Positions()
			}
			if err != nil {
				return err
			}
			return printJSON(positions)
		},
	}
	cmd.Flags().BoolVar(&portfolio, "portfolio", false, "use the account portfolio stream")
	return cmd
}

func accountCmd() *cobra.Command {
	var tags string
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Fetch an account summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, done, err := connect()
			if err != nil {
				return err
			}
			defer done()
			values, err := s.AccountValues(tags)
			if err != nil {
				return err
			}
			rows := make([]model.AccountValue, 0, len(values))
			for _, v := range values {
				rows = append(rows, v)
			}
			return printJSON(rows)
		},
	}
	cmd.Flags().StringVar(&tags, "tags", "", "summary tags, comma separated (default: equity tags)")
	return cmd
}

func ordersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List open orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, done, err := connect()
			if err != nil {
				return err
			}
			defer done()
			orders, err := s.OpenOrders()
			if err != nil {
				return err
			}
			return printJSON(orders)
		},
	}
}

func placeCmd() *cobra.Command {
	var (
		symbol    string
		side      string
		qty       string
		orderType string
		limit     string
		stop      string
		tif       string
	)
	cmd := &cobra.Command{
		Use:   "place",
		Short: "Place an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, done, err := connect()
			if err != nil {
				return err
			}
			defer done()
			quantity, err := decimal.NewFromString(qty)
			if err != nil {
				return fmt.Errorf("quantity: %w", err)
			}
			ticket := session.OrderTicket{
				Symbol:   strings.ToUpper(symbol),
				Side:     model.NormalizeSide(strings.ToUpper(side)),
				Quantity: quantity,
				Type:     model.OrderType(strings.ToUpper(orderType)),
				TIF:      tif,
			}
			if ticket.Side == "" {
				return fmt.Errorf("invalid side %q", side)
			}
			if limit != "" {
				if ticket.LimitPrice, err = decimal.NewFromString(limit); err != nil {
					return fmt.Errorf("limit: %w", err)
				}
			}
			if stop != "" {
				if ticket.StopPrice, err = decimal.NewFromString(stop); err != nil {
					return fmt.Errorf("stop: %w", err)
				}
			}
			orderID, err := s.PlaceOrder(ticket)
			if err != nil {
				return err
			}
			// Give the first status callback a moment before reporting.
			time.Sleep(500 * time.Millisecond)
			if o, ok := s.Order(orderID); ok {
				return printJSON(o)
			}
			fmt.Println(orderID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "symbol")
	cmd.Flags().StringVar(&side, "side", "", "BUY or SELL")
	cmd.Flags().StringVar(&qty, "qty", "", "quantity")
	cmd.Flags().StringVar(&orderType, "type", "MKT", "order type (MKT, LMT, STP, 'STP LMT')")
	cmd.Flags().StringVar(&limit, "limit", "", "limit price")
	cmd.Flags().StringVar(&stop, "stop", "", "stop price")
	cmd.Flags().StringVar(&tif, "tif", "DAY", "time in force")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("side")
	cmd.MarkFlagRequired("qty")
	return cmd
}

func cancelCmd() *cobra.Command {
	var orderID int64
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a working order",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, done, err := connect()
			if err != nil {
				return err
			}
			defer done()
			// The tracker only knows orders from this session; refresh
			// from the gateway first so external orders can be cancelled.
			if _, err := s.OpenOrders(); err != nil {
				return err
			}
			if err := s.CancelOrder(orderID); err != nil {
				return err
			}
			fmt.Printf("cancel requested for order %d\n", orderID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&orderID, "order-id", 0, "order id")
	cmd.MarkFlagRequired("order-id")
	return cmd
}

func searchCmd() *cobra.Command {
	var details bool
	cmd := &cobra.Command{
		Use:   "search <pattern>",
		Short: "Search for contracts matching a pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, done, err := connect()
			if err != nil {
				return err
			}
			defer done()
			var matches []model.ContractMatch
			if details {
				matches, err = s.ContractDetails(strings.ToUpper(args[0]))
			} else {
				matches, err = s.SearchContracts(args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(matches)
		},
	}
	cmd.Flags().BoolVar(&details, "details", false, "resolve full contract details instead of fuzzy matching")
	return cmd
}
