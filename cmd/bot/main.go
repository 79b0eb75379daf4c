package main

import (
	"context"
	"log"
	"os"

	"atos/internal/adapters/discord"
	"atos/internal/config"
	"atos/internal/infrastructure/challonge"
	"atos/internal/infrastructure/database"
	"atos/internal/infrastructure/i18n"
	"atos/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Erreur de configuration: %v", err)
	}

	ctx := context.Background()
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Erreur lors de l'initialisation de la base de données: %v", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		log.Fatalf("❌ Erreur lors des migrations: %v", err)
	}

	store := database.NewStateStore(pool)
	bracket := challonge.NewClient(cfg.ChallongeUser, cfg.ChallongeAPIKey)
	translator := i18n.NewTranslator(cfg.Locale)

	sched, err := scheduler.New()
	if err != nil {
		log.Fatalf("❌ Erreur lors de la création du planificateur: %v", err)
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			log.Printf("⚠️ Arrêt du planificateur: %v", err)
		}
	}()

	bot := discord.NewBot(cfg, store, bracket, translator, sched)
	if err := bot.Start(); err != nil {
		log.Printf("❌ Erreur lors du démarrage du bot: %v", err)
		os.Exit(1)
	}
}
