package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"gexflow/cache"
	"gexflow/config"
	"gexflow/database"
	"gexflow/gex"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("🗄️  Connecting to database...")
	dbPort, err := strconv.Atoi(cfg.DatabasePort)
	if err != nil {
		log.Fatalf("invalid database port: %v", err)
	}
	db, err := database.Connect(cfg.DatabaseHost, dbPort, cfg.DatabaseName, cfg.DatabaseUser, cfg.DatabasePassword)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	if err := repo.InitSchema(); err != nil {
		log.Fatalf("schema initialization failed: %v", err)
	}

	fmt.Println("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		fmt.Println("\n🛑 Shutdown signal received, stopping scheduler...")
		cancel()
	}()

	var spotCache gex.SpotCache
	if redisClient != nil {
		spotCache = redisClient
	}

	scheduler := gex.NewScheduler(repo, spotCache, cfg.Symbols, cfg.Ingestion.TargetExpiration, cfg.GEX.Interval)
	scheduler.Run(ctx)

	fmt.Println("✅ Scheduler stopped")
}
