package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ARTIFACT_SECRET", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, ":8084", cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "local", cfg.Artifacts.Store)
	assert.Equal(t, 30*time.Second, cfg.Fulfillment.LockTTL)
	assert.Equal(t, 5, cfg.Kafka.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Kafka.RetryBackoff)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingSecret)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ARTIFACT_SECRET", "s3cret")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("ARTIFACT_ISSUE_WORKERS", "8")
	t.Setenv("AUTH_DEV_MODE", "true")
	t.Setenv("TAX_RATE_PERCENT", "7.5")

	cfg := Load()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 8, cfg.Fulfillment.IssueWorkers)
	assert.Equal(t, "7.5", cfg.Fulfillment.TaxRatePercent)
}

func TestValidateS3RequiresBucket(t *testing.T) {
	t.Setenv("ARTIFACT_SECRET", "s3cret")
	t.Setenv("AUTH_DEV_MODE", "true")
	t.Setenv("ARTIFACT_STORE", "s3")
	t.Setenv("ARTIFACT_S3_BUCKET", "")

	assert.Error(t, Load().Validate())
}

func TestTaxRate(t *testing.T) {
	rate, err := FulfillmentConfig{TaxRatePercent: " 19 "}.TaxRate()
	require.NoError(t, err)
	assert.Equal(t, "19", rate.String())

	_, err = FulfillmentConfig{TaxRatePercent: "nineteen"}.TaxRate()
	assert.Error(t, err)
	_, err = FulfillmentConfig{TaxRatePercent: "-1"}.TaxRate()
	assert.Error(t, err)

	t.Setenv("ARTIFACT_SECRET", "s3cret")
	t.Setenv("AUTH_DEV_MODE", "true")
	t.Setenv("TAX_RATE_PERCENT", "abc")
	assert.Error(t, Load().Validate())
}
