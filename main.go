package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"minitown/server"
)

// minitown entrypoint: HTTP + WebSocket front for the town room server.
func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		panic(err)
	}
	var addr string
	flag.StringVar(&addr, "addr", cfg.Addr, "server listen address, e.g. :8080")
	flag.Parse()
	cfg.Addr = addr

	log := server.NewLogger(cfg.LogFile)
	defer log.Sync()

	chats := server.ChatLog(server.NopChatLog{})
	if cfg.ChatLogPath != "" {
		sqlLog, err := server.OpenChatLog(cfg.ChatLogPath)
		if err != nil {
			log.Fatalf("open chat log: %v", err)
		}
		defer sqlLog.Close()
		chats = sqlLog
	}

	mgr := server.NewManager(cfg, log, chats)
	// Pre-create the default room so the first client pays no setup cost.
	_ = mgr.GetOrCreateRoom(cfg.DefaultRoom)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", mgr.HandleWS)
	mux.Handle("/", http.FileServer(http.Dir("web")))
	mux.HandleFunc("/admin/config", mgr.HandleAdminConfig)
	mux.HandleFunc("/metrics", mgr.HandleMetrics)
	mux.HandleFunc("/history", mgr.HandleHistory)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		log.Infof("minitown listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")
	mgr.Shutdown()
	_ = srv.Close()
}
