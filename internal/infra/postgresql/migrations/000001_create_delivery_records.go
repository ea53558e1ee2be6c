package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/streamware/chat-relay/internal/journal"
	"gorm.io/gorm"
)

func createDeliveryRecordsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_delivery_records",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&journal.DeliveryRecordModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_delivery_records_comment_id ON delivery_records (comment_id)`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_records_outcome_recorded ON delivery_records (outcome, recorded_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&journal.DeliveryRecordModel{})
		},
	}
}
