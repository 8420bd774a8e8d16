package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/furniture-helper/furniture-crawler/internal/config"
)

func testAppConfig() config.Config {
	return config.Config{
		Crawler: config.CrawlerConfig{
			AllowedDomains:      []string{"shop.example"},
			Concurrency:         2,
			AdmissionsPerMinute: 50,
			MaxIdlePulls:        3,
			UserAgent:           "furniture-crawler-test/1.0",
		},
		Render: config.RenderConfig{Provider: "static"},
		Queue: config.QueueConfig{
			Provider: config.QueueMemory,
			MaxBatch: 10,
			Memory:   config.QueueMemoryConfig{URLs: []string{"https://shop.example/products/sofa"}},
		},
		Announce: config.AnnounceConfig{Provider: config.AnnounceMemory},
		Storage:  config.StorageConfig{Provider: config.StorageMemory, Prefix: "pages"},
		Database: config.DatabaseConfig{Provider: config.DBNoop},
		Batch:    config.BatchConfig{ChunkSize: 10, MaxWindow: 100},
		Server:   config.ServerConfig{MetricsAddr: ":0"},
	}
}

func TestNewWiresMemoryProviders(t *testing.T) {
	ctx := context.Background()

	a, err := New(ctx, testAppConfig())
	require.NoError(t, err)
	defer a.Close(ctx)

	require.NotNil(t, a.Logger())
	require.NotNil(t, a.Storage())
	require.NotNil(t, a.Pages())
	require.NotNil(t, a.Events())
	require.NotNil(t, a.Consumer())
	require.NotNil(t, a.Renderer())
	require.NotNil(t, a.Announcer())
	require.NoError(t, a.Ready(ctx))
}

func TestNewWithoutAnnouncer(t *testing.T) {
	ctx := context.Background()

	cfg := testAppConfig()
	cfg.Announce.Provider = config.AnnounceNone

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	defer a.Close(ctx)

	require.Nil(t, a.Announcer())
}

func TestNewRejectsUnknownProviders(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"storage", func(c *config.Config) { c.Storage.Provider = "s3" }},
		{"database", func(c *config.Config) { c.Database.Provider = "mysql" }},
		{"queue", func(c *config.Config) { c.Queue.Provider = "sqs" }},
		{"announce", func(c *config.Config) { c.Announce.Provider = "sns" }},
		{"render", func(c *config.Config) { c.Render.Provider = "phantomjs" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testAppConfig()
			tc.mutate(&cfg)
			_, err := New(ctx, cfg)
			require.Error(t, err)
		})
	}
}
