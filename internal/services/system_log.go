package services

import (
	"encoding/json"
	"time"

	"github.com/huangang/copilot-metrics/internal/config"
	"github.com/huangang/copilot-metrics/internal/models"
	"github.com/huangang/copilot-metrics/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Log modules
const (
	ModuleMetricsProxy = "metrics_proxy"
	ModuleConfig       = "config"
)

// LogEntry is one audit record. Callers must not put credentials in any field.
type LogEntry struct {
	Module     string
	Action     string
	Message    string
	Org        string
	StatusCode int
	Duration   time.Duration
	RequestID  string
	IP         string
	UserAgent  string
	Extra      any
}

// SystemLogService persists audit records. A service built with a nil
// database accepts writes and drops them, and lists nothing.
type SystemLogService struct {
	db            *gorm.DB
	retentionDays int
	cleanupCron   string
	scheduler     *cron.Cron
}

func NewSystemLogService(db *gorm.DB, cfg *config.SystemLogConfig) *SystemLogService {
	return &SystemLogService{
		db:            db,
		retentionDays: cfg.RetentionDays,
		cleanupCron:   cfg.CleanupCron,
	}
}

func (s *SystemLogService) Enabled() bool {
	return s != nil && s.db != nil
}

func (s *SystemLogService) Info(entry LogEntry) {
	s.write(models.LogLevelInfo, entry)
}

func (s *SystemLogService) Warning(entry LogEntry) {
	s.write(models.LogLevelWarning, entry)
}

func (s *SystemLogService) Error(entry LogEntry) {
	s.write(models.LogLevelError, entry)
}

func (s *SystemLogService) write(level string, entry LogEntry) {
	if !s.Enabled() {
		return
	}

	var extraStr string
	if entry.Extra != nil {
		if b, err := json.Marshal(entry.Extra); err == nil {
			extraStr = string(b)
		}
	}

	record := &models.SystemLog{
		Level:      level,
		Module:     entry.Module,
		Action:     entry.Action,
		Message:    entry.Message,
		Org:        entry.Org,
		StatusCode: entry.StatusCode,
		DurationMs: entry.Duration.Milliseconds(),
		RequestID:  entry.RequestID,
		IP:         entry.IP,
		UserAgent:  entry.UserAgent,
		Extra:      extraStr,
		CreatedAt:  time.Now(),
	}
	if err := s.db.Create(record).Error; err != nil {
		logger.Error().Err(err).Str("module", entry.Module).Str("action", entry.Action).
			Msg("[SystemLog] Failed to write log")
	}
}

type SystemLogListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Level    string `form:"level"`
	Module   string `form:"module"`
	Action   string `form:"action"`
	Org      string `form:"org"`
}

type SystemLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []models.SystemLog `json:"items"`
}

func (s *SystemLogService) List(req *SystemLogListRequest) (*SystemLogListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	resp := &SystemLogListResponse{
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    []models.SystemLog{},
	}
	if !s.Enabled() {
		return resp, nil
	}

	query := s.db.Model(&models.SystemLog{})

	if req.Level != "" {
		query = query.Where("level = ?", req.Level)
	}
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.Action != "" {
		query = query.Where("action LIKE ?", "%"+req.Action+"%")
	}
	if req.Org != "" {
		query = query.Where("org = ?", req.Org)
	}

	if err := query.Count(&resp.Total).Error; err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC, id DESC").Find(&resp.Items).Error; err != nil {
		return nil, err
	}
	return resp, nil
}

// CleanupOldLogs deletes logs older than retentionDays and returns the
// number of deleted records.
func (s *SystemLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	if !s.Enabled() || retentionDays <= 0 {
		return 0, nil
	}

	cutoffTime := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoffTime).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// StartCleanupScheduler runs one cleanup now and then on the configured
// cron schedule.
func (s *SystemLogService) StartCleanupScheduler() error {
	if !s.Enabled() {
		return nil
	}
	if s.retentionDays <= 0 {
		logger.Info().Msg("[SystemLog] Log cleanup disabled (retention_days <= 0)")
		return nil
	}

	s.scheduler = cron.New()
	if _, err := s.scheduler.AddFunc(s.cleanupCron, s.runCleanup); err != nil {
		s.scheduler = nil
		return err
	}

	s.runCleanup()
	s.scheduler.Start()
	logger.Info().Str("cron", s.cleanupCron).Int("retention_days", s.retentionDays).
		Msg("[SystemLog] Cleanup scheduler started")
	return nil
}

func (s *SystemLogService) StopCleanupScheduler() {
	if s.scheduler != nil {
		<-s.scheduler.Stop().Done()
	}
}

func (s *SystemLogService) runCleanup() {
	deleted, err := s.CleanupOldLogs(s.retentionDays)
	if err != nil {
		logger.Error().Err(err).Msg("[SystemLog] Failed to cleanup old logs")
		return
	}
	if deleted > 0 {
		logger.Info().Int64("deleted", deleted).Int("retention_days", s.retentionDays).
			Msg("[SystemLog] Cleaned up old logs")
	}
}
