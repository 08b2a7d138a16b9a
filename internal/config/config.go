package config

import (
	"fmt"
	"os"
	"strings"
)

// Taxonomy is the fixed enumerated set of valid expense categories and
// income sources. It is injected into the engines; nothing validates
// against a global.
type Taxonomy struct {
	ExpenseCategories []string
	IncomeSources     []string
}

func (t Taxonomy) ValidExpenseCategory(c string) bool {
	for _, v := range t.ExpenseCategories {
		if v == c {
			return true
		}
	}
	return false
}

func (t Taxonomy) ValidIncomeSource(s string) bool {
	for _, v := range t.IncomeSources {
		if v == s {
			return true
		}
	}
	return false
}

// DefaultTaxonomy returns the built-in category lists used when the
// environment does not override them.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		ExpenseCategories: []string{"food", "transport", "housing", "utilities", "entertainment", "health", "shopping", "other"},
		IncomeSources:     []string{"salary", "freelance", "business", "investment", "gift", "other"},
	}
}

type Config struct {
	DBDriver     string // "postgres" or "sqlite"
	DBSource     string
	Port         string
	Env          string
	KafkaBrokers []string
	Taxonomy     Taxonomy
}

func Load() (*Config, error) {
	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "postgres"
	}
	if driver != "postgres" && driver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = splitList(raw)
	}

	taxonomy := DefaultTaxonomy()
	if raw := os.Getenv("EXPENSE_CATEGORIES"); raw != "" {
		taxonomy.ExpenseCategories = splitList(raw)
	}
	if raw := os.Getenv("INCOME_SOURCES"); raw != "" {
		taxonomy.IncomeSources = splitList(raw)
	}

	return &Config{
		DBDriver:     driver,
		DBSource:     dbSource,
		Port:         port,
		Env:          env,
		KafkaBrokers: brokers,
		Taxonomy:     taxonomy,
	}, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
