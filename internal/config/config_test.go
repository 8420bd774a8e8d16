package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func baseViper() *viper.Viper {
	v := viper.New()
	v.Set("crawler.allowed_domains", []string{"shop.example"})
	v.Set("crawler.concurrency", 4)
	v.Set("crawler.admissions_per_minute", 50)
	v.Set("crawler.max_idle_pulls", 3)
	v.Set("render.provider", "static")
	v.Set("render.timeout", "25s")
	v.Set("queue.provider", "memory")
	v.Set("queue.max_batch", 10)
	v.Set("queue.wait_timeout", "10s")
	v.Set("queue.memory.urls", []string{"https://shop.example/products/sofa"})
	v.Set("announce.provider", "none")
	v.Set("storage.provider", "memory")
	v.Set("storage.prefix", "pages")
	v.Set("database.provider", "noop")
	v.Set("batch.chunk_size", 100)
	v.Set("batch.max_window", 1000)
	v.Set("shutdown.drain_timeout", "30s")
	v.Set("server.metrics_addr", ":8080")
	return v
}

func TestLoadValidConfig(t *testing.T) {
	t.Parallel()

	cfg, err := Load(baseViper())
	require.NoError(t, err)

	require.Equal(t, []string{"shop.example"}, cfg.Crawler.AllowedDomains)
	require.Equal(t, 4, cfg.Crawler.Concurrency)
	require.Equal(t, 10*time.Second, cfg.Queue.WaitTimeout)
	require.Equal(t, "memory", cfg.Queue.Provider)
	require.Equal(t, 30*time.Second, cfg.Shutdown.DrainTimeout)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(v *viper.Viper)
	}{
		{"zero concurrency", func(v *viper.Viper) { v.Set("crawler.concurrency", 0) }},
		{"zero admissions rate", func(v *viper.Viper) { v.Set("crawler.admissions_per_minute", 0) }},
		{"negative run budget", func(v *viper.Viper) { v.Set("crawler.run_budget", -1) }},
		{"unknown queue provider", func(v *viper.Viper) { v.Set("queue.provider", "kafka") }},
		{"pubsub queue without project", func(v *viper.Viper) {
			v.Set("queue.provider", "pubsub")
			v.Set("queue.gcp.subscription_id", "crawl-work")
		}},
		{"memory queue without seeds", func(v *viper.Viper) { v.Set("queue.memory.urls", []string{}) }},
		{"unknown announce provider", func(v *viper.Viper) { v.Set("announce.provider", "nats") }},
		{"pubsub announcer without topic", func(v *viper.Viper) {
			v.Set("announce.provider", "pubsub")
			v.Set("announce.gcp.project_id", "furniture-prod")
		}},
		{"gcs storage without bucket", func(v *viper.Viper) { v.Set("storage.provider", "gcs") }},
		{"local storage without base dir", func(v *viper.Viper) { v.Set("storage.provider", "local") }},
		{"postgres without dsn", func(v *viper.Viper) { v.Set("database.provider", "postgres") }},
		{"window smaller than chunk", func(v *viper.Viper) { v.Set("batch.max_window", 10) }},
		{"missing metrics addr", func(v *viper.Viper) { v.Set("server.metrics_addr", "") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			v := baseViper()
			tc.mutate(v)
			_, err := Load(v)
			require.Error(t, err)
		})
	}
}

func TestLoadPubSubQueueAndAnnouncer(t *testing.T) {
	t.Parallel()

	v := baseViper()
	v.Set("queue.provider", "pubsub")
	v.Set("queue.gcp.project_id", "furniture-prod")
	v.Set("queue.gcp.subscription_id", "crawl-work")
	v.Set("announce.provider", "pubsub")
	v.Set("announce.gcp.project_id", "furniture-prod")
	v.Set("announce.gcp.topic_id", "crawl-discovered")

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "crawl-work", cfg.Queue.GCP.SubscriptionID)
	require.Equal(t, "crawl-discovered", cfg.Announce.GCP.TopicID)
}
