package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"fueltracker/internal/api"
	"fueltracker/internal/store"
)

func main() {
	fs := flag.NewFlagSet("api", flag.ExitOnError)
	dbPath := fs.String("db", "fueltracker.db", "sqlite database path")
	addr := fs.String("addr", ":8080", "listen address")
	debug := fs.Bool("debug", false, "gin debug mode")
	fs.Parse(os.Args[1:])

	if !*debug {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "api:", err)
		os.Exit(1)
	}
	defer st.Close()

	server := &http.Server{
		Addr:         *addr,
		Handler:      api.New(st).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	slog.Info("api listening", "addr", *addr, "db", *dbPath)
	if err := server.ListenAndServe(); err != nil {
		fmt.Fprintln(os.Stderr, "api:", err)
		os.Exit(1)
	}
}
