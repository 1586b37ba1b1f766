package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/jmehdipour/optin-gateway/internal/config"
	"github.com/jmehdipour/optin-gateway/internal/db"
	"github.com/jmehdipour/optin-gateway/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo owners and campaigns",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo owners and campaigns...")

		if err := seedOwners(sqlDB); err != nil {
			return err
		}
		if err := seedCampaigns(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed")
		return nil
	},
}

// seedOwners inserts deterministic demo owners (idempotent).
func seedOwners(dbx *sqlx.DB) error {
	owners := []model.Owner{
		{
			Name:         "Acme Newsletter",
			APIKey:       "11111111111111111111111111111111",
			Status:       "active",
			RateLimitRPS: intptr(20),
		},
		{
			Name:         "Foobar Downloads",
			APIKey:       "22222222222222222222222222222222",
			Status:       "active",
			RateLimitRPS: intptr(50),
		},
		{
			Name:         "Suspended Inc",
			APIKey:       "33333333333333333333333333333333",
			Status:       "suspended",
			RateLimitRPS: nil,
		},
	}

	// idempotent upsert based on api_key (UNIQUE)
	const q = `
INSERT INTO owners
    (name, api_key, status, rate_limit_rps, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    name           = VALUES(name),
    status         = VALUES(status),
    rate_limit_rps = VALUES(rate_limit_rps),
    updated_at     = VALUES(updated_at)
`
	now := time.Now()
	for _, o := range owners {
		if _, err := dbx.Exec(q, o.Name, o.APIKey, o.Status, o.RateLimitRPS, now, now); err != nil {
			return fmt.Errorf("seed owner %s: %w", o.Name, err)
		}
	}
	return nil
}

// seedCampaigns inserts demo campaigns referencing existing reward keys.
func seedCampaigns(dbx *sqlx.DB) error {
	campaigns := []model.Campaign{
		{ID: "camp1", OwnerID: 1, Name: "Launch Ebook", RewardKey: "rewards/launch-ebook.pdf"},
		{ID: "camp2", OwnerID: 1, Name: "Beta Access", RewardKey: "rewards/beta-access.zip"},
		{ID: "camp3", OwnerID: 2, Name: "Sample Pack", RewardKey: "rewards/sample-pack.tar.gz"},
	}

	const q = `
INSERT INTO campaigns
    (campaign_id, owner_id, name, reward_key, created_at)
VALUES
    (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    owner_id   = VALUES(owner_id),
    name       = VALUES(name),
    reward_key = VALUES(reward_key)
`
	now := time.Now()
	for _, c := range campaigns {
		if _, err := dbx.Exec(q, c.ID, c.OwnerID, c.Name, c.RewardKey, now); err != nil {
			return fmt.Errorf("seed campaign %s: %w", c.ID, err)
		}
	}
	return nil
}

func intptr(v int) *int { return &v }
