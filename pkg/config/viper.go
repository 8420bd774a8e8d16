// Package config initializes the Viper instance the service reads its
// configuration from: defaults, config-file search paths, and environment
// variable binding.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// New builds a Viper instance with the crawler's defaults applied. When
// cfgFile is empty, the usual search paths are consulted; a missing config
// file is not an error because defaults and environment variables suffice.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.admissions_per_minute", 50)
	v.SetDefault("crawler.run_budget", 0)
	v.SetDefault("crawler.run_timeout", "0s")
	v.SetDefault("crawler.min_content_chars", 50)
	v.SetDefault("crawler.max_idle_pulls", 3)
	v.SetDefault("crawler.user_agent", "furniture-crawler/1.0")

	v.SetDefault("render.provider", "chromedp")
	v.SetDefault("render.timeout", "25s")
	v.SetDefault("render.idle_timeout", "8s")
	v.SetDefault("render.domain_rps", 0.0)
	v.SetDefault("render.domain_burst", 1)

	v.SetDefault("queue.provider", "pubsub")
	v.SetDefault("queue.max_batch", 10)
	v.SetDefault("queue.wait_timeout", "10s")

	v.SetDefault("announce.provider", "none")

	v.SetDefault("storage.provider", "gcs")
	v.SetDefault("storage.prefix", "pages")

	v.SetDefault("database.provider", "postgres")
	v.SetDefault("database.table", "pages")
	v.SetDefault("database.events_table", "crawl_events")
	v.SetDefault("database.max_conns", 8)

	v.SetDefault("batch.chunk_size", 100)
	v.SetDefault("batch.max_window", 1000)

	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.batch_events", 256)
	v.SetDefault("progress.batch_wait", "500ms")

	v.SetDefault("shutdown.drain_timeout", "30s")
	v.SetDefault("shutdown.exit_drain_timeout", "5s")

	v.SetDefault("server.metrics_addr", ":8080")
	v.SetDefault("logging.development", false)

	v.SetEnvPrefix("FURNITURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/furniture-crawler/")
		v.AddConfigPath("$HOME/.furniture-crawler")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}
