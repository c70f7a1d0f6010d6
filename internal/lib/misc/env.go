package misc

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
)

// LoadEnvSettings loads .env.local then .env - neither has to exist and
// values already in the environment win.
func LoadEnvSettings(logger *slog.Logger) {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err == nil {
			Debugf(logger, "loaded env file:%s", name)
		}
	}
}

// LoadEnvForPool loads .env.{pool} overrides, ie: .env.testpool
func LoadEnvForPool(logger *slog.Logger, pool string) {
	name := fmt.Sprintf(".env.%s", pool)
	if err := godotenv.Load(name); err == nil {
		Debugf(logger, "loaded env file:%s", name)
	}
}

// LoadNamedEnvFile loads an explicitly requested env file, which must exist.
func LoadNamedEnvFile(logger *slog.Logger, envFile string) error {
	Infof(logger, "loading env file:%s", envFile)
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("unable to load env file %s: %w", envFile, err)
	}
	return nil
}
