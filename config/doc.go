// Package config loads the configuration of a boundguard process.
//
// LoadConfig reads config.yml and .env files found in the standard locations
// (or given explicitly) with Viper, then lets environment variables override
// any key: loop.max_backoff is overridden by BOUNDGUARD_LOOP_MAX_BACKOFF.
// Durations are written as Go duration strings.
//
// Guard aggregates one block per component and converts each block into the
// component's own config:
//
//	g, err := config.Load("boundguard", config.WithConfigFile(path))
//	if err != nil {
//	    return err
//	}
//	cb := resilience.NewCircuitBreaker(g.CircuitBreaker("db", log))
package config
