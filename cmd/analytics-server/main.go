package main

import (
	"log"
	"net/http"
	"os"

	"he-analytics/internal/audit"
	"he-analytics/internal/config"
	"he-analytics/internal/datastore"
	"he-analytics/internal/inference"
	"he-analytics/internal/scheme"
	"he-analytics/internal/server"
)

func main() {
	cfg := config.FromEnv()

	sc, err := scheme.NewContext()
	if err != nil {
		log.Fatalf("scheme context: %v", err)
	}
	info := sc.Info()
	log.Printf("CKKS parameters: LogN=%d, MaxLevel=%d, MaxSlots=%d", info.LogN, info.MaxLevel, info.MaxSlots)

	models := inference.DefaultRegistry()
	if cfg.ModelPath != "" {
		if models, err = inference.LoadRegistry(cfg.ModelPath); err != nil {
			log.Fatalf("load models: %v", err)
		}
		log.Printf("loaded %d models from %s", len(models.Models()), cfg.ModelPath)
	}

	var auditStore audit.Store
	if cfg.AuditDSN != "" {
		if auditStore, err = audit.NewSQLStore(cfg.AuditDSN); err != nil {
			log.Fatalf("audit store: %v", err)
		}
		log.Printf("audit log backed by MySQL")
	} else {
		auditStore = audit.NewMemoryStore()
		log.Printf("audit log in memory (set ANALYTICS_AUDIT_DSN for persistence)")
	}
	defer auditStore.Close()

	var datasets datastore.Store
	if cfg.RedisAddr != "" {
		if datasets, err = datastore.NewRedisStore(datastore.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}); err != nil {
			log.Fatalf("dataset store: %v", err)
		}
		log.Printf("dataset store backed by Redis at %s", cfg.RedisAddr)
	} else {
		datasets = datastore.NewMemoryStore()
		log.Printf("dataset store in memory (set ANALYTICS_REDIS_ADDR for persistence)")
	}
	defer datasets.Close()

	srv := server.New(sc, models, datasets, auditStore)
	handler := srv.Handler()

	if fileExists(cfg.CertFile) && fileExists(cfg.KeyFile) {
		log.Printf("serving HTTPS on %s", cfg.Addr)
		log.Fatal(http.ListenAndServeTLS(cfg.Addr, cfg.CertFile, cfg.KeyFile, handler))
	}

	log.Printf("serving HTTP on %s (no TLS certificates found)", cfg.Addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, handler))
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
