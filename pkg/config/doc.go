// Package config loads process configuration for delay workers from
// DELAY_* environment variables and optional .env files, and opens the
// database, Redis and MongoDB connections the configuration names.
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	db, err := config.OpenDatabase(cfg.Database)
//
// Variables (all prefixed with DELAY_):
//
//	STORAGE             gorm or redis (default gorm)
//	DB_DRIVER           sqlite or postgres (default sqlite)
//	DB_DSN              database DSN (default delay.db)
//	DB_MAX_OPEN_CONNS   pool size, plus DB_MAX_IDLE_CONNS, DB_CONN_MAX_LIFETIME, DB_CONN_MAX_IDLE_TIME
//	REDIS_URL           redis://host:6379/0, required when STORAGE=redis
//	MONGODB_URL         enables MG record references together with MONGODB_DATABASE
//	QUEUES              queue:concurrency pairs (default default:10,retries:2)
//	POLL_INTERVAL       worker poll interval (default 100ms)
//	SCHEDULER           run recurring calls in this worker
//	TRACING             wrap each call in an OpenTelemetry span
//	LOG_LEVEL           debug, info, warn or error
package config
