package main

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/geoatlas/poi-admin-api/internal/config"
	"github.com/geoatlas/poi-admin-api/internal/database"
	"github.com/geoatlas/poi-admin-api/internal/handler"
	"github.com/geoatlas/poi-admin-api/internal/ratelimit"
	"github.com/geoatlas/poi-admin-api/internal/repository"
	"github.com/geoatlas/poi-admin-api/internal/router"
	"github.com/geoatlas/poi-admin-api/internal/storage"
)

func main() {
	// .env is a development convenience; in production everything comes
	// from the real environment.
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment variables")
	}

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()
	log.Println("connected to database")

	uploads, err := storage.New(cfg.UploadDir)
	if err != nil {
		log.Fatalf("upload storage init failed: %v", err)
	}

	// The login limiter lives in redis when one is reachable so the counter
	// is shared across instances; otherwise it stays in process memory.
	window := time.Duration(cfg.LoginWindowMin) * time.Minute
	var attempts ratelimit.AttemptStore
	if rdb := config.NewRedisClient(); rdb != nil {
		attempts = ratelimit.NewRedisStore(rdb, cfg.LoginMaxAttempts, window)
		log.Println("login rate limiter backed by redis")
	} else {
		attempts = ratelimit.NewMemoryStore(cfg.LoginMaxAttempts, window)
		log.Println("login rate limiter in memory")
	}

	users := repository.NewUserRepo(db)
	cities := repository.NewCityRepo(db)
	pois := repository.NewPOIRepo(db)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())

	router.Register(e, router.Deps{
		Cfg:      cfg,
		Auth:     handler.NewAuthHandler(cfg, users, uploads, attempts),
		Cities:   handler.NewCityHandler(cities, pois),
		POIs:     handler.NewPOIHandler(pois, cities, uploads),
		Admins:   handler.NewAdminHandler(cfg, users, cities, uploads),
		Attempts: attempts,
	})

	log.Printf("server listening on port %s", cfg.Port)
	if err := e.Start(":" + cfg.Port); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
