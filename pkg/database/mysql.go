package database

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/centralplastcontato-cell/buffet-dispatch-service/environments"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/domain"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/pkg/logger"
)

func NewMySQLDB(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Connected to MySQL database")
	return db, nil
}

func RunMigrations(db *sqlx.DB) error {
	schemas := []string{
		`
		CREATE TABLE IF NOT EXISTS dispatch_runs (
			id CHAR(36) PRIMARY KEY,
			company_id VARCHAR(64) NOT NULL,
			kind VARCHAR(16) NOT NULL,
			instance VARCHAR(64) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'running',
			total INT NOT NULL DEFAULT 0,
			sent_count INT NOT NULL DEFAULT 0,
			error_count INT NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			completed_at DATETIME,
			INDEX idx_runs_company (company_id),
			INDEX idx_runs_status (status),
			INDEX idx_runs_created_at (created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
		`,
		`
		CREATE TABLE IF NOT EXISTS dispatch_recipients (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id CHAR(36) NOT NULL,
			position INT NOT NULL,
			name VARCHAR(255) NOT NULL,
			address VARCHAR(128) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			message_id VARCHAR(100),
			error_detail TEXT,
			attempted_at DATETIME,
			UNIQUE KEY uq_recipients_run_position (run_id, position),
			INDEX idx_recipients_run_status (run_id, status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
		`,
		`
		CREATE TABLE IF NOT EXISTS dispatch_settings (
			company_id VARCHAR(64) PRIMARY KEY,
			delay_min_seconds INT NOT NULL DEFAULT 5,
			delay_max_seconds INT NOT NULL DEFAULT 15,
			group_base_seconds INT NOT NULL DEFAULT 10,
			group_jitter_seconds INT NOT NULL DEFAULT 4,
			templates JSON,
			default_link VARCHAR(512) NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
		`,
	}

	for _, schema := range schemas {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed")

	return nil
}

func SeedTestData(db *sqlx.DB) error {
	var count int

	err := db.Get(&count, "SELECT COUNT(*) FROM dispatch_settings")
	if err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d settings rows, skipping seed", count)
		return nil
	}

	settings := []domain.DispatchSettings{
		{
			CompanyID:          "buffet-alegria",
			DelayMinSeconds:    5,
			DelayMaxSeconds:    15,
			GroupBaseSeconds:   10,
			GroupJitterSeconds: 4,
			Templates: domain.TemplateList{
				"Olá {name}! Aqui é do {company}. Temos datas abertas para {period}: {link}",
				"Oi {name}, tudo bem? O {company} está com condições especiais para {period}. Dá uma olhada: {link}",
				"{name}, o {company} preparou novidades para sua festa em {period}! Detalhes: {link}",
			},
			DefaultLink: "https://buffetalegria.example.com/orcamento",
		},
		{
			CompanyID:          "buffet-festejar",
			DelayMinSeconds:    8,
			DelayMaxSeconds:    20,
			GroupBaseSeconds:   12,
			GroupJitterSeconds: 5,
			Templates: domain.TemplateList{
				"Olá {name}! O {company} tem um recado sobre {period}: {notes}",
			},
			DefaultLink: "https://festejar.example.com",
		},
	}

	query := `
		INSERT INTO dispatch_settings (company_id, delay_min_seconds, delay_max_seconds, group_base_seconds, group_jitter_seconds, templates, default_link)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	for _, s := range settings {
		_, err := db.Exec(query,
			s.CompanyID, s.DelayMinSeconds, s.DelayMaxSeconds,
			s.GroupBaseSeconds, s.GroupJitterSeconds, s.Templates, s.DefaultLink,
		)
		if err != nil {
			return fmt.Errorf("failed to seed test data: %w", err)
		}
	}

	logger.Infof("Seeded %d company settings", len(settings))
	return nil
}
