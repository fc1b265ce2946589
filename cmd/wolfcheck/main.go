// wolfcheck probes the configured gateway, redis and feed endpoints and
// reports what a wolf-autobot process would find at startup.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kapu/wolf-autobot-go/internal/wolf"
)

func main() {
	baseURL := os.Getenv("WOLF_BASE_URL")
	wsURL := os.Getenv("WOLF_WS_URL")
	redisURL := os.Getenv("REDIS_URL")
	username := os.Getenv("WOLF_CHECK_USERNAME")
	secret := os.Getenv("WOLF_CHECK_PASSWORD")

	if baseURL == "" {
		log.Fatal("WOLF_BASE_URL is required")
	}

	client := wolf.NewClient(baseURL, wolf.WithTimeout(8*time.Second))

	if username != "" && secret != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		sess, err := client.Login(ctx, username, secret)
		cancel()
		var pe *wolf.PlatformError
		switch {
		case errors.As(err, &pe):
			log.Printf("login rejected by platform: %s", pe.Message)
		case err != nil:
			log.Printf("login transport error: %v", err)
		default:
			log.Printf("login ok: user_id=%s", sess.UserID)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			msgs, err := client.PrivateMessages(ctx, sess.Token)
			if err != nil {
				log.Printf("private messages error: %v", err)
			} else {
				log.Printf("private messages ok: %d unread", len(msgs))
			}
			_ = client.Logout(ctx, sess.Token)
			cancel()
		}
	} else {
		log.Println("WOLF_CHECK_USERNAME/WOLF_CHECK_PASSWORD not set; skipping login check")
	}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Printf("redis url error: %v", err)
		} else {
			rdb := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := rdb.Ping(ctx).Err(); err != nil {
				log.Printf("redis ping error: %v", err)
			} else {
				log.Println("redis ok")
			}
			cancel()
			_ = rdb.Close()
		}
	} else {
		log.Println("REDIS_URL not set; skipping redis check")
	}

	if wsURL == "" {
		log.Println("WOLF_WS_URL not set; skipping feed check")
		return
	}

	feed := wolf.NewFeed(wsURL, 0, time.Second)
	feed.OnStateChange(func(state wolf.FeedState) {
		log.Printf("feed state: %s", state)
	})
	feed.OnEvent(func(ev *wolf.FeedEvent) {
		log.Printf("feed msg account=%s from=%s", ev.AccountID, ev.Message.SenderName)
	})

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := feed.Connect(cctx); err != nil {
		log.Printf("feed connect error: %v", err)
		return
	}

	// observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C

	_ = feed.Close(context.Background())
}
