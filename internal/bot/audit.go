package bot

import (
	"log"
	"time"

	"github.com/zulandar/matinee/internal/models"
	"gorm.io/gorm"
)

// maxCommandLen bounds the free-text command column.
const maxCommandLen = 256

// Auditor writes CommandAudit rows. Every write is best-effort: a failed
// write is logged locally and never surfaces to the command that triggered
// it — auditing is purely observational.
type Auditor struct {
	db *gorm.DB
}

// NewAuditor creates an Auditor.
func NewAuditor(db *gorm.DB) *Auditor {
	return &Auditor{db: db}
}

// Begin writes a pending audit record at dispatch time and returns it for a
// later Complete call. The returned record is usable even when the insert
// failed (Complete will fall back to a single-shot write).
func (a *Auditor) Begin(rec *models.CommandAudit) *models.CommandAudit {
	rec.Status = models.AuditPending
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	rec.Command = truncate(rec.Command, maxCommandLen)
	if err := a.db.Create(rec).Error; err != nil {
		log.Printf("bot: audit: begin %s for %s: %v", rec.Kind, rec.DiscordUserID, err)
	}
	return rec
}

// Complete finalizes a record begun with Begin: status, error text, elapsed
// milliseconds, and completion time. Records that never made it into the
// database are written in one shot instead.
func (a *Auditor) Complete(rec *models.CommandAudit, status, errText string) {
	now := time.Now()
	elapsed := now.Sub(rec.StartedAt).Milliseconds()
	rec.Status = status
	rec.Error = errText
	rec.ResponseTimeMS = &elapsed
	rec.CompletedAt = &now

	var err error
	if rec.ID == 0 {
		err = a.db.Create(rec).Error
	} else {
		err = a.db.Model(rec).Updates(map[string]interface{}{
			"status":           status,
			"error":            errText,
			"response_time_ms": elapsed,
			"completed_at":     now,
		}).Error
	}
	if err != nil {
		log.Printf("bot: audit: complete %s for %s: %v", rec.Kind, rec.DiscordUserID, err)
	}
}

// Record writes a fully-populated audit row in one call, for instantaneous
// command paths.
func (a *Auditor) Record(rec *models.CommandAudit, status, errText string) {
	now := time.Now()
	if rec.StartedAt.IsZero() {
		rec.StartedAt = now
	}
	elapsed := now.Sub(rec.StartedAt).Milliseconds()
	rec.Status = status
	rec.Error = errText
	rec.ResponseTimeMS = &elapsed
	rec.CompletedAt = &now
	rec.Command = truncate(rec.Command, maxCommandLen)
	if err := a.db.Create(rec).Error; err != nil {
		log.Printf("bot: audit: record %s for %s: %v", rec.Kind, rec.DiscordUserID, err)
	}
}

// PurgeOlderThan deletes audit rows started before the cutoff. Used by the
// nightly retention job.
func (a *Auditor) PurgeOlderThan(cutoff time.Time) (int64, error) {
	result := a.db.Where("started_at < ?", cutoff).Delete(&models.CommandAudit{})
	return result.RowsAffected, result.Error
}

// truncate returns s truncated to maxLen with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
