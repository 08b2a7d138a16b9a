package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTaxonomy(t *testing.T) {
	tax := DefaultTaxonomy()
	assert.True(t, tax.ValidExpenseCategory("food"))
	assert.False(t, tax.ValidExpenseCategory("lottery"))
	assert.True(t, tax.ValidIncomeSource("salary"))
	assert.False(t, tax.ValidIncomeSource("heist"))
}

func TestLoad(t *testing.T) {
	t.Setenv("DB_SOURCE", "file.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("EXPENSE_CATEGORIES", "rent, groceries")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"rent", "groceries"}, cfg.Taxonomy.ExpenseCategories)
	// Income sources fall back to the defaults.
	assert.True(t, cfg.Taxonomy.ValidIncomeSource("salary"))
}

func TestLoadRequiresDBSource(t *testing.T) {
	t.Setenv("DB_SOURCE", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_SOURCE", "x")
	t.Setenv("DB_DRIVER", "oracle")
	_, err := Load()
	assert.Error(t, err)
}
