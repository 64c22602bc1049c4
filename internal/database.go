package internal

import (
	"fmt"

	"FS-FORMS/internal/config"
	"FS-FORMS/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB(cfg *config.Config) error {
	dsn := cfg.Database.DSN()

	gormLogger := logger.Default.LogMode(logger.Warn)
	if !cfg.Server.IsProduction() {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	var err error
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(DB); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	config.GetLogger().Info("Database connected and migrated successfully")
	return nil
}

// Migrate creates or upgrades the schema. It is safe to run on every start.
func Migrate(db *gorm.DB) error {
	log := config.GetLogger()

	// Submissions were stored in form_data before the rename.
	if db.Migrator().HasTable("form_data") && !db.Migrator().HasTable("form_submissions") {
		log.Info("Renaming legacy form_data table to form_submissions...")
		if err := db.Migrator().RenameTable("form_data", "form_submissions"); err != nil {
			return fmt.Errorf("failed to rename form_data table: %w", err)
		}
	}

	if err := db.AutoMigrate(
		&models.FormTemplate{},
		&models.TemplatePage{},
		&models.TemplateField{},
		&models.FormSubmission{},
		&models.ActivityLog{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	// Rows created before these columns existed need a usable default.
	backfills := map[string]string{
		"usage_count": "UPDATE form_templates SET usage_count = 0 WHERE usage_count IS NULL",
		"version":     "UPDATE form_templates SET version = 1 WHERE version IS NULL OR version = 0",
	}
	for column, stmt := range backfills {
		if err := backfillColumn(db, "form_templates", column, stmt); err != nil {
			return err
		}
	}

	log.Info("Tables created/verified successfully")
	return nil
}

func backfillColumn(db *gorm.DB, table, column, statement string) error {
	if !db.Migrator().HasColumn(table, column) {
		return fmt.Errorf("missing column %s.%s after migration", table, column)
	}
	if err := db.Exec(statement).Error; err != nil {
		return fmt.Errorf("failed to backfill column %s.%s: %w", table, column, err)
	}
	return nil
}

func CloseDB() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
