package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"crypto-alert-bot/config"
	"crypto-alert-bot/internal/alert"
	"crypto-alert-bot/internal/commands"
	"crypto-alert-bot/internal/database"
	"crypto-alert-bot/internal/directory"
	"crypto-alert-bot/internal/metrics"
	"crypto-alert-bot/internal/news"
	"crypto-alert-bot/internal/notify"
	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/internal/task"
	"crypto-alert-bot/internal/telegram"
	"crypto-alert-bot/lib/translation"

	"github.com/nightlyone/lockfile"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const metricsSaveInterval = 5 * time.Minute

func init() {
	config.InitConfig()
	setupLogging()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("bot stopped: %v", err)
	}
	log.Info("shut down cleanly")
}

func setupLogging() {
	log.SetLevel(log.ErrorLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting crypto alert bot...")
}

func run(ctx context.Context) error {
	translation.Configure("locales", config.GetString("lang"))
	metrics.Register()

	dataDir, err := filepath.Abs(config.GetString("data_dir"))
	if err != nil {
		return errors.Wrap(err, "data dir")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return errors.Wrapf(err, "create data dir %s", dataDir)
	}

	lockPath := filepath.Join(dataDir, "bot.lock")
	flock, err := lockfile.New(lockPath)
	if err != nil {
		return errors.Wrapf(err, "could not create lock file %q", lockPath)
	}
	if err := flock.TryLock(); err != nil {
		return errors.Wrapf(err, "another instance holds %q", lockPath)
	}
	defer flock.Unlock()

	db, err := database.Open(filepath.Join(dataDir, "bot.db"))
	if err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}
	defer db.Close()
	loadMetrics(db)
	defer saveMetrics(db)

	timeout := config.GetDuration("request_timeout")
	paprika := price.NewClient(config.GetString("api_pro_key"), timeout)
	prices := price.NewPaprika(&paprika.Tickers, config.GetFloat64("rate_limit_per_second"))
	board := price.NewBoard(price.NewBinanceStats())

	coins := directory.New(
		filepath.Join(dataDir, "coins.json"),
		directory.NewPaprikaFetcher(&paprika.Coins),
		config.GetDuration("coin_list_refresh"),
	)
	refreshCtx, cancel := context.WithTimeout(ctx, config.GetDuration("directory_timeout"))
	if n, err := coins.Refresh(refreshCtx, false); err != nil {
		log.Errorf("initial coin list refresh: %v", err)
	} else {
		log.Infof("coin directory ready with %d coins", n)
	}
	cancel()

	newsCache, err := news.OpenCache(filepath.Join(dataDir, "news.db"),
		config.GetInt("news_high_water"), config.GetInt("news_low_water"))
	if err != nil {
		return errors.Wrap(err, "open news cache")
	}
	defer newsCache.Close()

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:          config.GetString("telegram_bot_token"),
		Debug:          config.GetBool("debug"),
		UpdatesTimeout: 60,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create bot")
	}

	var events notify.EventPublisher
	if url := config.GetString("nats_url"); url != "" {
		publisher, err := notify.NewNATSPublisher(url, config.GetString("nats_subject"), timeout)
		if err != nil {
			log.Errorf("alert events disabled: %v", err)
		} else {
			defer publisher.Close()
			events = publisher
		}
	}

	notifier := notify.NewAlertNotifier(bot, config.GetInt64("alerts_chat_id"), events)
	book := alert.NewBook(db.Alerts())
	scheduler := alert.NewScheduler(book, prices, notifier, alert.WithCallTimeout(timeout))

	feeds := news.NewFetcher(config.GetList("news_feeds"), timeout)
	poller := news.NewPoller(feeds, newsCache,
		notify.NewNewsPublisher(bot, config.GetInt64("news_chat_id")), config.GetInt("news_per_poll"))

	handler := telegram.NewHandler(telegram.Deps{
		Book:      book,
		Coins:     coins,
		Prices:    prices,
		Views:     commands.NewService(coins, board, prices, commands.NewChartCache(5*time.Minute)),
		Board:     board,
		TopN:      config.GetInt("top_n"),
		Announcer: notifier,
		News:      feeds,
		NewsCache: newsCache,
		Admins:    config.GetInt64List("admin_ids"),
	})

	runners := []*task.Runner{
		task.New("alert_sweep", config.GetDuration("alert_check_interval"), 0, func(ctx context.Context) error {
			res, err := scheduler.Sweep(ctx)
			if err != nil {
				return err
			}
			if len(res.Triggered) > 0 {
				log.Infof("sweep triggered %d alerts", len(res.Triggered))
			}
			return nil
		}),
		task.New("directory_refresh", config.GetDuration("coin_list_refresh"), config.GetDuration("directory_timeout"), func(ctx context.Context) error {
			_, err := coins.Refresh(ctx, false)
			return err
		}),
		task.New("news_poll", config.GetDuration("news_poll_interval"), 0, func(ctx context.Context) error {
			if config.GetInt64("news_chat_id") == 0 {
				return nil
			}
			_, err := poller.Poll(ctx)
			return err
		}),
		task.New("news_cleanup", config.GetDuration("news_cleanup_interval"), 0, func(ctx context.Context) error {
			_, err := newsCache.Compact()
			return err
		}),
		task.New("metrics_save", metricsSaveInterval, 0, func(ctx context.Context) error {
			saveMetrics(db)
			return nil
		}),
	}
	if chatID := config.GetInt64("price_chat_id"); chatID != 0 {
		topN := config.GetInt("top_n")
		runners = append(runners, task.New("price_board", config.GetDuration("price_update_interval"), 0, func(ctx context.Context) error {
			rows, err := board.Top(ctx, topN)
			if err != nil {
				return err
			}
			return bot.PostBoard(ctx, chatID, commands.FormatBoard(rows, time.Now()))
		}))
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		r := r
		g.Go(func() error { return r.Run(ctx) })
	}
	g.Go(func() error { return bot.Run(ctx, handler) })
	g.Go(func() error { return serveMetricsAndHealth(ctx, config.GetInt("metrics_port")) })

	return g.Wait()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func serveMetricsAndHealth(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthCheckHandler)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("Launching metrics and health endpoint on :%d", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "metrics server")
	}
	return nil
}

func loadMetrics(db *database.DB) {
	for name, counter := range metrics.Persisted {
		value, err := db.GetMetric(name)
		if err != nil {
			log.Errorf("could not load metric %s: %v", name, err)
			continue
		}
		counter.Add(value)
	}
	log.Debug("Metrics loaded from database.")
}

func saveMetrics(db *database.DB) {
	for name, counter := range metrics.Persisted {
		if err := db.SaveMetric(name, metrics.Value(counter)); err != nil {
			log.Errorf("could not save metric %s: %v", name, err)
		}
	}
	log.Debug("Metrics saved to database.")
}
