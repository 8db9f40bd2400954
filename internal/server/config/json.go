package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/lfras/internal/flagx"
	"github.com/dmitrijs2005/lfras/internal/timex"
)

// JsonConfig is the on-disk shape of the -c/-config file. Durations accept
// "15m" style strings or integer nanoseconds. Only keys present in the file
// override earlier values.
type JsonConfig struct {
	EndpointAddrGRPC       *string         `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP       *string         `json:"endpoint_addr_http"`
	DatabaseDSN            *string         `json:"database_dsn"`
	SecretKey              *string         `json:"secret_key"`
	LogLevel               *string         `json:"log_level"`
	SiteURL                *string         `json:"site_url"`
	Storage                *string         `json:"storage"`
	S3RootUser             *string         `json:"s3_root_user"`
	S3RootPassword         *string         `json:"s3_root_password"`
	S3Bucket               *string         `json:"s3_bucket"`
	S3Region               *string         `json:"s3_region"`
	S3BaseEndpoint         *string         `json:"s3_base_endpoint"`
	UploadURLTTL           *timex.Duration `json:"upload_url_ttl"`
	Notifier               *string         `json:"notifier"`
	SMTPHost               *string         `json:"smtp_host"`
	SMTPPort               *int            `json:"smtp_port"`
	SMTPUsername           *string         `json:"smtp_username"`
	SMTPPassword           *string         `json:"smtp_password"`
	MailFrom               *string         `json:"mail_from"`
	AMQPURL                *string         `json:"amqp_url"`
	AMQPQueue              *string         `json:"amqp_queue"`
	RedisURL               *string         `json:"redis_url"`
	LockTTL                *timex.Duration `json:"lock_ttl"`
	ReminderOffsets        []int           `json:"reminder_offsets"`
	PostExpiryIntervalDays *int            `json:"post_expiry_interval_days"`
	ReminderSendHourLocal  *int            `json:"reminder_send_hour_local"`
	ReminderTimezone       *string         `json:"reminder_timezone"`
	DocumentsSchedule      *string         `json:"documents_cron"`
	FilesSchedule          *string         `json:"files_cron"`
	JobTimeout             *timex.Duration `json:"job_timeout"`
	ShutdownTimeout        *timex.Duration `json:"shutdown_timeout"`
}

// parseJSON overlays the file named by -c or -config, if any.
func parseJSON(c *Config, args []string) error {
	path := flagx.JSONConfigFlag(args)
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	j := &JsonConfig{}
	if err := json.Unmarshal(b, j); err != nil {
		return fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	setString(&c.EndpointAddrGRPC, j.EndpointAddrGRPC)
	setString(&c.EndpointAddrHTTP, j.EndpointAddrHTTP)
	setString(&c.DatabaseDSN, j.DatabaseDSN)
	setString(&c.SecretKey, j.SecretKey)
	setString(&c.LogLevel, j.LogLevel)
	setString(&c.SiteURL, j.SiteURL)
	setString(&c.Storage, j.Storage)
	setString(&c.S3RootUser, j.S3RootUser)
	setString(&c.S3RootPassword, j.S3RootPassword)
	setString(&c.S3Bucket, j.S3Bucket)
	setString(&c.S3Region, j.S3Region)
	setString(&c.S3BaseEndpoint, j.S3BaseEndpoint)
	setDuration(&c.UploadURLTTL, j.UploadURLTTL)
	setString(&c.Notifier, j.Notifier)
	setString(&c.SMTPHost, j.SMTPHost)
	setInt(&c.SMTPPort, j.SMTPPort)
	setString(&c.SMTPUsername, j.SMTPUsername)
	setString(&c.SMTPPassword, j.SMTPPassword)
	setString(&c.MailFrom, j.MailFrom)
	setString(&c.AMQPURL, j.AMQPURL)
	setString(&c.AMQPQueue, j.AMQPQueue)
	setString(&c.RedisURL, j.RedisURL)
	setDuration(&c.LockTTL, j.LockTTL)
	if j.ReminderOffsets != nil {
		c.ReminderOffsets = j.ReminderOffsets
	}
	setInt(&c.PostExpiryIntervalDays, j.PostExpiryIntervalDays)
	setInt(&c.ReminderSendHourLocal, j.ReminderSendHourLocal)
	setString(&c.ReminderTimezone, j.ReminderTimezone)
	setString(&c.DocumentsSchedule, j.DocumentsSchedule)
	setString(&c.FilesSchedule, j.FilesSchedule)
	setDuration(&c.JobTimeout, j.JobTimeout)
	setDuration(&c.ShutdownTimeout, j.ShutdownTimeout)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
