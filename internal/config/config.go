package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	WolfBaseURL string
	WolfWSURL   string

	RedisURL    string
	DatabaseURL string

	CommandDir string

	RaceBotID  string
	GuessBotID string
	FishBotID  string

	PollInterval    time.Duration
	RaceSkew        time.Duration
	RaceCooldown    time.Duration
	FishPeriod      time.Duration
	GuessDetectTick time.Duration
	TrainStagger    time.Duration

	InboxLimit int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		RaceBotID:  "80277459",
		GuessBotID: "79216477",
		FishBotID:  "76305584",

		PollInterval:    15 * time.Second,
		RaceSkew:        40 * time.Second,
		RaceCooldown:    90 * time.Second,
		FishPeriod:      3630 * time.Second,
		GuessDetectTick: 5 * time.Second,
		TrainStagger:    2 * time.Second,

		InboxLimit: 50,
	}

	cfg.WolfBaseURL = strings.TrimSpace(os.Getenv("WOLF_BASE_URL"))
	cfg.WolfWSURL = strings.TrimSpace(os.Getenv("WOLF_WS_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.CommandDir = strings.TrimSpace(os.Getenv("COMMAND_DIR"))

	if v := strings.TrimSpace(os.Getenv("RACE_BOT_ID")); v != "" {
		cfg.RaceBotID = v
	}
	if v := strings.TrimSpace(os.Getenv("GUESS_BOT_ID")); v != "" {
		cfg.GuessBotID = v
	}
	if v := strings.TrimSpace(os.Getenv("FISH_BOT_ID")); v != "" {
		cfg.FishBotID = v
	}

	if d, ok := envSeconds("POLL_INTERVAL_SEC"); ok {
		cfg.PollInterval = d
	}
	if d, ok := envSeconds("RACE_SKEW_SEC"); ok {
		cfg.RaceSkew = d
	}
	if d, ok := envSeconds("RACE_COOLDOWN_SEC"); ok {
		cfg.RaceCooldown = d
	}
	if d, ok := envSeconds("FISH_PERIOD_SEC"); ok {
		cfg.FishPeriod = d
	}
	if d, ok := envSeconds("GUESS_DETECT_SEC"); ok {
		cfg.GuessDetectTick = d
	}
	if v := strings.TrimSpace(os.Getenv("TRAIN_STAGGER_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TrainStagger = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("INBOX_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.InboxLimit = n
		}
	}

	if cfg.WolfBaseURL == "" {
		return nil, errors.New("WOLF_BASE_URL is required")
	}
	return cfg, nil
}

func envSeconds(key string) (time.Duration, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
