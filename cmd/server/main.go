package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"greyboard.app/internal/config"
	"greyboard.app/internal/persistence/indexdb"
	persistlog "greyboard.app/internal/persistence/log"
	"greyboard.app/internal/session"
	"greyboard.app/internal/store"
	"greyboard.app/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		configPath = flag.String("config", "", "path to config yaml (optional)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite session index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(*addr) != "" {
		cfg.Addr = *addr
	}
	if strings.TrimSpace(*dataDir) != "" {
		cfg.DataDir = *dataDir
	}
	if *disableDB {
		cfg.DisableIndex = true
	}

	registry := session.NewRegistry(store.NewClient(), log.New(os.Stdout, "[boards] ", log.LstdFlags|log.Lmicroseconds))
	presence := session.NewPresence(log.New(os.Stdout, "[clients] ", log.LstdFlags|log.Lmicroseconds))

	server := ws.NewServer(ws.Options{
		OriginAllowed: cfg.OriginAllowed,
		DefaultOrigin: cfg.DefaultOrigin(),
	}, logger)

	hub := session.NewHub(server, registry, presence, log.New(os.Stdout, "[hub] ", log.LstdFlags|log.Lmicroseconds))
	server.SetHub(hub)

	audit := persistlog.NewActionLogger(cfg.DataDir)
	defer audit.Close()
	hub.WithAudit(audit)

	var index *indexdb.SQLiteIndex
	if !cfg.DisableIndex {
		index, err = indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open session index: %v", err)
		}
		defer index.Close()
		hub.WithIndex(index)
	}

	heartbeat := session.NewHeartbeat(server, registry, presence, time.Duration(cfg.HeartbeatMS)*time.Millisecond)
	heartbeat.Start()
	defer heartbeat.Stop()

	r := mux.NewRouter()
	r.HandleFunc("/boards", server.Handler())
	r.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	if index != nil {
		r.HandleFunc("/api/stats", func(rw http.ResponseWriter, _ *http.Request) {
			index.Flush()
			stats, err := index.Stats()
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(stats)
		})
	}

	ctx, cancel := signalContext()
	defer cancel()

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: corsMiddleware(cfg, r),
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// corsMiddleware reflects allow-listed origins so browser clients can reach
// the websocket endpoint and the stats API with credentials.
func corsMiddleware(cfg config.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && cfg.OriginAllowed(origin) {
			rw.Header().Set("Access-Control-Allow-Origin", origin)
			rw.Header().Set("Access-Control-Allow-Credentials", "true")
			rw.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			rw.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			rw.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(rw, r)
	})
}
