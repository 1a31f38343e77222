package config

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/xhit/go-str2duration/v2"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		// A missing .env is normal in containers, where the env is set directly.
		_ = godotenv.Load()

		viper.AutomaticEnv()

		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("api_pro_key", "API_PRO_KEY")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("lang", "LANG")
		viper.BindEnv("data_dir", "DATA_DIR")
		viper.BindEnv("alerts_chat_id", "ALERTS_CHAT_ID")
		viper.BindEnv("price_chat_id", "PRICE_CHAT_ID")
		viper.BindEnv("news_chat_id", "NEWS_CHAT_ID")
		viper.BindEnv("admin_ids", "ADMIN_IDS")
		viper.BindEnv("alert_check_interval", "ALERT_CHECK_INTERVAL")
		viper.BindEnv("coin_list_refresh", "COIN_LIST_REFRESH")
		viper.BindEnv("price_update_interval", "PRICE_UPDATE_INTERVAL")
		viper.BindEnv("news_poll_interval", "NEWS_POLL_INTERVAL")
		viper.BindEnv("news_cleanup_interval", "NEWS_CLEANUP_INTERVAL")
		viper.BindEnv("news_high_water", "NEWS_HIGH_WATER")
		viper.BindEnv("news_low_water", "NEWS_LOW_WATER")
		viper.BindEnv("news_per_poll", "NEWS_PER_POLL")
		viper.BindEnv("news_feeds", "NEWS_FEEDS")
		viper.BindEnv("top_n", "TOP_N")
		viper.BindEnv("request_timeout", "REQUEST_TIMEOUT")
		viper.BindEnv("directory_timeout", "DIRECTORY_TIMEOUT")
		viper.BindEnv("rate_limit_per_second", "RATE_LIMIT_PER_SECOND")
		viper.BindEnv("nats_url", "NATS_URL")
		viper.BindEnv("nats_subject", "NATS_SUBJECT")

		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
		viper.SetDefault("data_dir", "/app/data")
		viper.SetDefault("alert_check_interval", "5m")
		viper.SetDefault("coin_list_refresh", "24h")
		viper.SetDefault("price_update_interval", "60s")
		viper.SetDefault("news_poll_interval", "5m")
		viper.SetDefault("news_cleanup_interval", "1h")
		viper.SetDefault("news_high_water", 1000)
		viper.SetDefault("news_low_water", 500)
		viper.SetDefault("news_per_poll", 3)
		viper.SetDefault("news_feeds", strings.Join([]string{
			"https://www.coindesk.com/arc/outboundfeeds/rss/",
			"https://cointelegraph.com/rss",
			"https://cryptopotato.com/feed/",
			"https://beincrypto.com/feed/",
		}, ","))
		viper.SetDefault("top_n", 20)
		viper.SetDefault("request_timeout", "10s")
		viper.SetDefault("directory_timeout", "30s")
		viper.SetDefault("rate_limit_per_second", 5)
		viper.SetDefault("nats_subject", "alerts.triggered")
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetInt64(key string) int64 {
	InitConfig()
	return viper.GetInt64(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetFloat64(key string) float64 {
	InitConfig()
	return viper.GetFloat64(key)
}

// GetDuration accepts Go durations as well as day and week units ("1d", "2w").
// Plain integers are read as seconds.
func GetDuration(key string) time.Duration {
	InitConfig()
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := str2duration.ParseDuration(raw)
	if err != nil {
		log.Errorf("invalid duration %q for %s: %v", raw, key, err)
		return 0
	}
	return d
}

// GetList splits a comma separated value, dropping empty items.
func GetList(key string) []string {
	InitConfig()
	var out []string
	for _, item := range strings.Split(viper.GetString(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// GetInt64List is GetList for numeric identifiers; malformed items are skipped.
func GetInt64List(key string) []int64 {
	var out []int64
	for _, item := range GetList(key) {
		v, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			log.Errorf("invalid id %q in %s", item, key)
			continue
		}
		out = append(out, v)
	}
	return out
}
