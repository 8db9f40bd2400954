package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/lfras/internal/flagx"
)

const envPrefix = "LFRAS_"

// parseEnv loads the dotenv file named by -env, if any, and then applies
// LFRAS_* variables. Variables already set in the process win over the
// file.
func parseEnv(c *Config, args []string) error {
	if file := flagx.EnvFileFlag(args); file != "" {
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("error loading env file %s: %w", file, err)
		}
	}

	strs := map[string]*string{
		"GRPC_ADDR":         &c.EndpointAddrGRPC,
		"HTTP_ADDR":         &c.EndpointAddrHTTP,
		"DATABASE_DSN":      &c.DatabaseDSN,
		"SECRET_KEY":        &c.SecretKey,
		"LOG_LEVEL":         &c.LogLevel,
		"SITE_URL":          &c.SiteURL,
		"STORAGE":           &c.Storage,
		"S3_ROOT_USER":      &c.S3RootUser,
		"S3_ROOT_PASSWORD":  &c.S3RootPassword,
		"S3_BUCKET":         &c.S3Bucket,
		"S3_REGION":         &c.S3Region,
		"S3_BASE_ENDPOINT":  &c.S3BaseEndpoint,
		"NOTIFIER":          &c.Notifier,
		"SMTP_HOST":         &c.SMTPHost,
		"SMTP_USERNAME":     &c.SMTPUsername,
		"SMTP_PASSWORD":     &c.SMTPPassword,
		"MAIL_FROM":         &c.MailFrom,
		"AMQP_URL":          &c.AMQPURL,
		"AMQP_QUEUE":        &c.AMQPQueue,
		"REDIS_URL":         &c.RedisURL,
		"REMINDER_TIMEZONE": &c.ReminderTimezone,
		"DOCUMENTS_CRON":    &c.DocumentsSchedule,
		"FILES_CRON":        &c.FilesSchedule,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SMTP_PORT":                 &c.SMTPPort,
		"POST_EXPIRY_INTERVAL_DAYS": &c.PostExpiryIntervalDays,
		"REMINDER_SEND_HOUR_LOCAL":  &c.ReminderSendHourLocal,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"UPLOAD_URL_TTL":   &c.UploadURLTTL,
		"LOCK_TTL":         &c.LockTTL,
		"JOB_TIMEOUT":      &c.JobTimeout,
		"SHUTDOWN_TIMEOUT": &c.ShutdownTimeout,
	}
	for name, dst := range durations {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		*dst = d
	}

	if v, ok := os.LookupEnv(envPrefix + "REMINDER_OFFSETS"); ok {
		var offsets intList
		if err := offsets.Set(v); err != nil {
			return fmt.Errorf("invalid %sREMINDER_OFFSETS: %w", envPrefix, err)
		}
		c.ReminderOffsets = offsets
	}
	return nil
}
