// Copyright 2025 Alibaba Group Holding Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flag

import (
	"flag"
	"fmt"
	stdlog "log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alibaba/opensandbox/healthd/pkg/log"
	"github.com/alibaba/opensandbox/healthd/pkg/util/glob"
)

const (
	portEnv                    = "PORT"
	httpsModeEnv               = "HTTPS_MODE"
	logLevelEnv                = "HEALTHD_LOG_LEVEL"
	accessTokenEnv             = "HEALTHD_ACCESS_TOKEN"
	corsOriginsEnv             = "HEALTHD_CORS_ORIGINS"
	tlsKeyEnv                  = "HEALTHD_TLS_KEY"
	tlsCertEnv                 = "HEALTHD_TLS_CERT"
	tlsCAEnv                   = "HEALTHD_TLS_CA"
	intervalEnv                = "HEALTHD_INTERVAL"
	probeTimeoutEnv            = "HEALTHD_PROBE_TIMEOUT"
	probeRetriesEnv            = "HEALTHD_PROBE_RETRIES"
	topProcessesEnv            = "HEALTHD_TOP_N"
	excludeInterfacesEnv       = "HEALTHD_EXCLUDE_INTERFACES"
	excludeMountsEnv           = "HEALTHD_EXCLUDE_MOUNTS"
	excludeFSTypesEnv          = "HEALTHD_EXCLUDE_FSTYPES"
	historyDriverEnv           = "HEALTHD_HISTORY_DRIVER"
	historyDSNEnv              = "HEALTHD_HISTORY_DSN"
	historyRetentionEnv        = "HEALTHD_HISTORY_RETENTION"
	gracefulShutdownTimeoutEnv = "HEALTHD_API_GRACE_SHUTDOWN"
)

// settings mirrors the globals for validation.
type settings struct {
	Port             int           `validate:"min=1,max=65535"`
	Interval         time.Duration `validate:"gt=0"`
	ProbeTimeout     time.Duration `validate:"gt=0"`
	ProbeRetries     int           `validate:"min=0,max=10"`
	TopProcesses     int           `validate:"min=1,max=100"`
	HTTPSMode        bool
	TLSKeyFile       string        `validate:"required_if=HTTPSMode true"`
	TLSCertFile      string        `validate:"required_if=HTTPSMode true"`
	CORSOrigins      []string      `validate:"dive,required,eq=*|http_url"`
	HistoryDriver    string        `validate:"omitempty,oneof=sqlite mysql"`
	HistoryDSN       string        `validate:"required_if=HistoryDriver mysql"`
	HistoryRetention time.Duration `validate:"gte=0"`
	ShutdownTimeout  time.Duration `validate:"gte=0"`
}

func setDefaults() {
	ServerPort = 3000
	ServerLogLevel = 6
	ServerAccessToken = ""
	CORSOrigins = []string{"*"}
	HTTPSMode = false
	TLSKeyFile = "/home/nodeapp/cert/private.key"
	TLSCertFile = "/home/nodeapp/cert/fullchain.pem"
	TLSCABundle = "/home/nodeapp/cert/ca_bundle.crt"
	CollectInterval = 5 * time.Second
	ProbeTimeout = 4 * time.Second
	ProbeRetries = 0
	TopProcesses = 5
	ExcludeInterfaces = []string{"lo"}
	ExcludeMounts = nil
	ExcludeFSTypes = []string{"tmpfs", "devtmpfs", "overlay", "squashfs"}
	HistoryDriver = ""
	HistoryDSN = ""
	HistoryRetention = 24 * time.Hour
	ApiGracefulShutdownTimeout = 3 * time.Second
}

// InitFlags loads defaults, then environment variables, then command line
// flags, and validates the result.
func InitFlags() {
	if err := Load(flag.CommandLine, os.Args[1:], os.Getenv); err != nil {
		stdlog.Panicf("Invalid configuration: %v", err)
	}

	log.Info("collect interval %s, probe timeout %s, retries %d", CollectInterval, ProbeTimeout, ProbeRetries)
	if HistoryDriver != "" {
		log.Info("history driver is: %s", HistoryDriver)
	}
}

// Load fills the globals from getenv and args.
func Load(fs *flag.FlagSet, args []string, getenv func(string) string) error {
	setDefaults()
	if err := loadEnv(getenv); err != nil {
		return err
	}

	logLevel := strconv.Itoa(ServerLogLevel)
	fs.IntVar(&ServerPort, "port", ServerPort, "Server listening port (default: 3000)")
	fs.StringVar(&logLevel, "log-level", logLevel, "Server log level, 0-7 or fatal/error/warn/info/debug (default: 6)")
	fs.StringVar(&ServerAccessToken, "access-token", ServerAccessToken, "Server access token for API authentication")
	fs.Var((*listValue)(&CORSOrigins), "cors-origins", "Comma separated allowed CORS origins, * for any")
	fs.BoolVar(&HTTPSMode, "https", HTTPSMode, "Serve HTTPS with the configured certificate files")
	fs.StringVar(&TLSKeyFile, "tls-key", TLSKeyFile, "TLS private key file")
	fs.StringVar(&TLSCertFile, "tls-cert", TLSCertFile, "TLS certificate chain file")
	fs.StringVar(&TLSCABundle, "tls-ca", TLSCABundle, "Optional CA bundle appended to the certificate chain")
	fs.DurationVar(&CollectInterval, "interval", CollectInterval, "Collection interval (default: 5s)")
	fs.DurationVar(&ProbeTimeout, "probe-timeout", ProbeTimeout, "Timeout of one collection (default: 4s)")
	fs.IntVar(&ProbeRetries, "probe-retries", ProbeRetries, "Retries after a transient collection failure (default: 0)")
	fs.IntVar(&TopProcesses, "top", TopProcesses, "Length of the top process lists (default: 5)")
	fs.Var((*listValue)(&ExcludeInterfaces), "exclude-interfaces", "Comma separated glob patterns of ignored network interfaces")
	fs.Var((*listValue)(&ExcludeMounts), "exclude-mounts", "Comma separated glob patterns of ignored mountpoints")
	fs.Var((*listValue)(&ExcludeFSTypes), "exclude-fstypes", "Comma separated glob patterns of ignored filesystem types")
	fs.StringVar(&HistoryDriver, "history-driver", HistoryDriver, "Snapshot history driver: sqlite or mysql, empty disables history")
	fs.StringVar(&HistoryDSN, "history-dsn", HistoryDSN, "Snapshot history data source name")
	fs.DurationVar(&HistoryRetention, "history-retention", HistoryRetention, "Snapshot history retention, 0 keeps everything (default: 24h)")
	fs.DurationVar(&ApiGracefulShutdownTimeout, "graceful-shutdown-timeout", ApiGracefulShutdownTimeout, "API graceful shutdown timeout duration (default: 3s)")

	// Parse flags - these will override environment variables if provided
	if err := fs.Parse(args); err != nil {
		return err
	}

	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	ServerLogLevel = level

	return validate()
}

func loadEnv(getenv func(string) string) error {
	var errs []string
	lookup := func(key string, apply func(string) error) {
		value := strings.TrimSpace(getenv(key))
		if value == "" {
			return
		}
		if err := apply(value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}

	lookup(portEnv, intSetter(&ServerPort))
	lookup(logLevelEnv, func(v string) (err error) {
		ServerLogLevel, err = log.ParseLevel(v)
		return err
	})
	lookup(accessTokenEnv, func(v string) error {
		ServerAccessToken = v
		return nil
	})
	lookup(corsOriginsEnv, (*listValue)(&CORSOrigins).Set)
	lookup(httpsModeEnv, func(v string) (err error) {
		HTTPSMode, err = parseSwitch(v)
		return err
	})
	lookup(tlsKeyEnv, stringSetter(&TLSKeyFile))
	lookup(tlsCertEnv, stringSetter(&TLSCertFile))
	lookup(tlsCAEnv, stringSetter(&TLSCABundle))
	lookup(intervalEnv, durationSetter(&CollectInterval))
	lookup(probeTimeoutEnv, durationSetter(&ProbeTimeout))
	lookup(probeRetriesEnv, intSetter(&ProbeRetries))
	lookup(topProcessesEnv, intSetter(&TopProcesses))
	lookup(excludeInterfacesEnv, (*listValue)(&ExcludeInterfaces).Set)
	lookup(excludeMountsEnv, (*listValue)(&ExcludeMounts).Set)
	lookup(excludeFSTypesEnv, (*listValue)(&ExcludeFSTypes).Set)
	lookup(historyDriverEnv, stringSetter(&HistoryDriver))
	lookup(historyDSNEnv, stringSetter(&HistoryDSN))
	lookup(historyRetentionEnv, durationSetter(&HistoryRetention))
	lookup(gracefulShutdownTimeoutEnv, durationSetter(&ApiGracefulShutdownTimeout))

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validate() error {
	s := settings{
		Port:             ServerPort,
		Interval:         CollectInterval,
		ProbeTimeout:     ProbeTimeout,
		ProbeRetries:     ProbeRetries,
		TopProcesses:     TopProcesses,
		HTTPSMode:        HTTPSMode,
		TLSKeyFile:       TLSKeyFile,
		TLSCertFile:      TLSCertFile,
		CORSOrigins:      CORSOrigins,
		HistoryDriver:    HistoryDriver,
		HistoryDSN:       HistoryDSN,
		HistoryRetention: HistoryRetention,
		ShutdownTimeout:  ApiGracefulShutdownTimeout,
	}
	if err := validator.New().Struct(s); err != nil {
		return err
	}
	for _, patterns := range [][]string{ExcludeInterfaces, ExcludeMounts, ExcludeFSTypes} {
		if _, err := glob.NewMatcher(patterns...); err != nil {
			return err
		}
	}
	return nil
}

// parseSwitch accepts a number, any non-zero value enables, or a boolean
// literal.
func parseSwitch(v string) (bool, error) {
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n != 0 && !math.IsNaN(n), nil
	}
	return strconv.ParseBool(v)
}

// listValue is a comma separated flag.Value.
type listValue []string

func (l *listValue) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

func (l *listValue) Set(value string) error {
	*l = glob.SplitList(value)
	return nil
}

func intSetter(target *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*target = n
		return nil
	}
}

func durationSetter(target *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*target = d
		return nil
	}
}

func stringSetter(target *string) func(string) error {
	return func(v string) error {
		*target = v
		return nil
	}
}
