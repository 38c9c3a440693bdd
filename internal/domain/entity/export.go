package entity

import "time"

// Export records one generated spreadsheet for a job
type Export struct {
	ID                   string    `json:"id"`
	JobID                string    `json:"job_id"`
	UserID               string    `json:"user_id"`
	Format               string    `json:"format"`
	TemplateVersion      string    `json:"template_version"`
	CreditAccountDefault string    `json:"credit_account_default"`
	FileStorageKey       string    `json:"file_storage_key"`
	RowCount             int       `json:"row_count"`
	CreatedAt            time.Time `json:"created_at"`
}
