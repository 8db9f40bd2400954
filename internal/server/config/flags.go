package config

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/lfras/internal/flagx"
)

var shortFlags = []string{
	"-a", "-h", "-d", "-s", "-l", "-w",
	"-u", "-p", "-b", "-g", "-e",
	"-n", "-r", "-o", "-k", "-z",
}

// parseFlags applies the short command-line flags:
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-h string   ops HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-l string   log level
//	-w string   site URL used in reminder links
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint
//	-n string   notifier: log, smtp or amqp
//	-r string   Redis URL for the job run lock
//	-o list     reminder offsets in days, e.g. "30,14,7,1"
//	-k int      local send hour
//	-z string   reminder time zone
//
// Other arguments are dropped by flagx.FilterArgs first, so -c and -env
// do not collide.
func parseFlags(c *Config, args []string) error {
	fs := flag.NewFlagSet("lfras", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&c.EndpointAddrGRPC, "a", c.EndpointAddrGRPC, "address and port to run gRPC server")
	fs.StringVar(&c.EndpointAddrHTTP, "h", c.EndpointAddrHTTP, "address and port to run ops HTTP server")
	fs.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "database DSN")
	fs.StringVar(&c.SecretKey, "s", c.SecretKey, "secret key")
	fs.StringVar(&c.LogLevel, "l", c.LogLevel, "log level")
	fs.StringVar(&c.SiteURL, "w", c.SiteURL, "site URL")

	fs.StringVar(&c.S3RootUser, "u", c.S3RootUser, "S3 root user")
	fs.StringVar(&c.S3RootPassword, "p", c.S3RootPassword, "S3 root password")
	fs.StringVar(&c.S3Bucket, "b", c.S3Bucket, "S3 bucket")
	fs.StringVar(&c.S3Region, "g", c.S3Region, "S3 region")
	fs.StringVar(&c.S3BaseEndpoint, "e", c.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&c.Notifier, "n", c.Notifier, "notifier: log, smtp or amqp")
	fs.StringVar(&c.RedisURL, "r", c.RedisURL, "Redis URL")

	offsets := intList(c.ReminderOffsets)
	fs.Var(&offsets, "o", "reminder offsets in days")
	fs.IntVar(&c.ReminderSendHourLocal, "k", c.ReminderSendHourLocal, "local send hour")
	fs.StringVar(&c.ReminderTimezone, "z", c.ReminderTimezone, "reminder time zone")

	if err := fs.Parse(flagx.FilterArgs(args, shortFlags)); err != nil {
		return fmt.Errorf("error parsing flags: %w", err)
	}
	c.ReminderOffsets = offsets
	return nil
}

// intList is a comma separated list of integers.
type intList []int

func (l *intList) String() string {
	parts := make([]string, len(*l))
	for i, n := range *l {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func (l *intList) Set(s string) error {
	var out []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid number %q", p)
		}
		out = append(out, n)
	}
	*l = out
	return nil
}
