package main

import (
	"fmt"
	"log"
	"strconv"

	"gexflow/auth"
	"gexflow/cache"
	"gexflow/config"
	"gexflow/database"
	"gexflow/ingestion"
	"gexflow/tradestation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.RequireBrokerCredentials(); err != nil {
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
	if redisClient == nil {
		fmt.Println("⚠️  Redis unavailable, spot mirroring disabled")
	}
	defer redisClient.Close()

	tokens := auth.NewTokenManager(auth.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RefreshToken: cfg.RefreshToken,
	})
	client := tradestation.NewClient(tokens, cfg.UseSandbox)

	engine := ingestion.New(cfg, client, repo, redisClient)
	if err := engine.Start(); err != nil {
		log.Fatal(err)
	}
}
