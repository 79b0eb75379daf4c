package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Token   string
	GuildID string
	Prefix  string
	Locale  string

	ChallongeUser   string
	ChallongeAPIKey string

	DatabaseURL    string
	MigrationsPath string

	// Channels used by the orchestration engine.
	SignupChannelID     string
	AnnounceChannelID   string
	CheckInChannelID    string
	ScoresChannelID     string
	QueueChannelID      string
	StreamChannelID     string
	ResultsChannelID    string
	TournamentChannelID string
	// TournamentCategoryID is the fixed category whose channels get purged
	// when registrations open.
	TournamentCategoryID string

	OrganizerRoleID  string
	ChallengerRoleID string
	StreamerRoleID   string

	// BulkMode defers bracket seeding until check-in closes.
	BulkMode bool

	// GreetNewMembers enables the welcome DM on member join. ChatChannelID
	// is the public fallback when the member refuses DMs (optional).
	GreetNewMembers bool
	ChatChannelID   string
}

// Load charge la configuration depuis les variables d'environnement et la valide.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env est optionnel lorsque les variables sont fournies par l'environnement (Docker, CI, etc.).
	}

	cfg := &Config{
		Token:   os.Getenv("TOKEN"),
		GuildID: os.Getenv("GUILD_ID"),
		Prefix:  os.Getenv("BOT_PREFIX"),
		Locale:  os.Getenv("LOCALE"),

		ChallongeUser:   os.Getenv("CHALLONGE_USER"),
		ChallongeAPIKey: os.Getenv("CHALLONGE_API_KEY"),

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MigrationsPath: os.Getenv("MIGRATIONS_PATH"),

		SignupChannelID:      os.Getenv("SIGNUP_CHANNEL_ID"),
		AnnounceChannelID:    os.Getenv("ANNOUNCE_CHANNEL_ID"),
		CheckInChannelID:     os.Getenv("CHECKIN_CHANNEL_ID"),
		ScoresChannelID:      os.Getenv("SCORES_CHANNEL_ID"),
		QueueChannelID:       os.Getenv("QUEUE_CHANNEL_ID"),
		StreamChannelID:      os.Getenv("STREAM_CHANNEL_ID"),
		ResultsChannelID:     os.Getenv("RESULTS_CHANNEL_ID"),
		TournamentChannelID:  os.Getenv("TOURNAMENT_CHANNEL_ID"),
		TournamentCategoryID: os.Getenv("TOURNAMENT_CATEGORY_ID"),

		OrganizerRoleID:  os.Getenv("ORGANIZER_ROLE_ID"),
		ChallengerRoleID: os.Getenv("CHALLENGER_ROLE_ID"),
		StreamerRoleID:   os.Getenv("STREAMER_ROLE_ID"),

		BulkMode: os.Getenv("BULK_MODE") == "true",

		GreetNewMembers: os.Getenv("GREET_NEW_MEMBERS") == "true",
		ChatChannelID:   os.Getenv("CHAT_CHANNEL_ID"),
	}

	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	if cfg.Locale == "" {
		cfg.Locale = "fr"
	}
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "migrations"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate applique toutes les règles métier sur la configuration chargée.
func (c *Config) validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("config: TOKEN est requis et ne peut pas être vide")
	}
	if strings.TrimSpace(c.GuildID) == "" {
		return fmt.Errorf("config: GUILD_ID est requis et ne peut pas être vide")
	}
	if strings.TrimSpace(c.ChallongeUser) == "" || strings.TrimSpace(c.ChallongeAPIKey) == "" {
		return fmt.Errorf("config: CHALLONGE_USER et CHALLONGE_API_KEY sont requis")
	}

	snowflakes := map[string]string{
		"SIGNUP_CHANNEL_ID":      c.SignupChannelID,
		"ANNOUNCE_CHANNEL_ID":    c.AnnounceChannelID,
		"CHECKIN_CHANNEL_ID":     c.CheckInChannelID,
		"SCORES_CHANNEL_ID":      c.ScoresChannelID,
		"QUEUE_CHANNEL_ID":       c.QueueChannelID,
		"STREAM_CHANNEL_ID":      c.StreamChannelID,
		"RESULTS_CHANNEL_ID":     c.ResultsChannelID,
		"TOURNAMENT_CHANNEL_ID":  c.TournamentChannelID,
		"TOURNAMENT_CATEGORY_ID": c.TournamentCategoryID,
		"ORGANIZER_ROLE_ID":      c.OrganizerRoleID,
		"CHALLENGER_ROLE_ID":     c.ChallengerRoleID,
		"STREAMER_ROLE_ID":       c.StreamerRoleID,
	}
	for name, value := range snowflakes {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("config: %s est requis et ne peut pas être vide", name)
		}
		for _, r := range value {
			if r < '0' || r > '9' {
				return fmt.Errorf("config: %s doit être un ID Discord (chiffres uniquement)", name)
			}
		}
	}

	if strings.TrimSpace(c.DatabaseURL) == "" {
		// Valeur par défaut utile en local lorsque DATABASE_URL n'est pas fournie.
		c.DatabaseURL = "postgres://localhost:5432/atos?sslmode=disable"
	}
	parsed, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return fmt.Errorf("config: DATABASE_URL invalide (%q): %w", c.DatabaseURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("config: DATABASE_URL invalide (%q): scheme ou host manquant", c.DatabaseURL)
	}

	return nil
}
