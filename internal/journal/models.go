package journal

import "time"

// DeliveryRecordModel is the persistence model for the delivery_records table.
type DeliveryRecordModel struct {
	ID         string    `gorm:"type:uuid;primaryKey"`
	CommentID  string    `gorm:"type:varchar(64);not null"`
	Text       string    `gorm:"type:text;not null"`
	Priority   int       `gorm:"not null;default:0"`
	Attempts   int       `gorm:"not null;default:0"`
	Outcome    Outcome   `gorm:"type:varchar(20);not null"`
	Reason     *string   `gorm:"type:varchar(40)"`
	Detail     *string   `gorm:"type:text"`
	RecordedAt time.Time `gorm:"type:timestamptz;not null"`
}

func (DeliveryRecordModel) TableName() string {
	return "delivery_records"
}

func deliveryRecordToModel(rec *DeliveryRecord) *DeliveryRecordModel {
	if rec == nil {
		return nil
	}

	return &DeliveryRecordModel{
		ID:         rec.ID,
		CommentID:  rec.CommentID,
		Text:       rec.Text,
		Priority:   rec.Priority,
		Attempts:   rec.Attempts,
		Outcome:    rec.Outcome,
		Reason:     rec.Reason,
		Detail:     rec.Detail,
		RecordedAt: rec.RecordedAt,
	}
}

func deliveryRecordFromModel(m *DeliveryRecordModel) *DeliveryRecord {
	if m == nil {
		return nil
	}

	return &DeliveryRecord{
		ID:         m.ID,
		CommentID:  m.CommentID,
		Text:       m.Text,
		Priority:   m.Priority,
		Attempts:   m.Attempts,
		Outcome:    m.Outcome,
		Reason:     m.Reason,
		Detail:     m.Detail,
		RecordedAt: m.RecordedAt,
	}
}
