// Package config loads the warehouse configuration.
//
// Values come from three layers, later layers winning:
//
//  1. a YAML file (sections usr, aws, cluster, iam_role, s3, log, metrics),
//  2. an optional dotenv file, which only fills variables the process
//     environment does not already define,
//  3. DWH_ prefixed environment variables, e.g. DWH_CLUSTER_DB_PASSWORD.
//
// String values wrapped in single quotes ('us-west-2') are unquoted, so
// files written for the INI-style configuration keep working.
//
// Example:
//
//	usr:
//	  key: AKIA...
//	  secret: ...
//	aws:
//	  region: us-west-2
//	cluster:
//	  name: dwhcluster
//	  db_name: dwh
//	  db_user: dwhuser
//	  db_password: Passw0rd
//	iam_role:
//	  name: dwhRole
//	s3:
//	  log_data: s3://udacity-dend/log_data
//	  log_jsonpath: s3://udacity-dend/log_json_path.json
//	  song_data: s3://udacity-dend/song_data
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DWH_"

// Config is the complete configuration of a run. It is built once by Load
// and passed around by pointer; nothing mutates it afterwards.
type Config struct {
	User    User    `yaml:"usr" envPrefix:"USR_"`
	AWS     AWS     `yaml:"aws" envPrefix:"AWS_"`
	Cluster Cluster `yaml:"cluster" envPrefix:"CLUSTER_"`
	IAMRole IAMRole `yaml:"iam_role" envPrefix:"IAM_ROLE_"`
	S3      S3      `yaml:"s3" envPrefix:"S3_"`
	Log     Log     `yaml:"log" envPrefix:"LOG_"`
	Metrics Metrics `yaml:"metrics" envPrefix:"METRICS_"`
}

// User holds the static AWS credentials of the operator. When both are empty
// the default AWS credential chain is used.
type User struct {
	Key    string `yaml:"key" env:"KEY"`
	Secret string `yaml:"secret" env:"SECRET"`
}

type AWS struct {
	Region string `yaml:"region" env:"REGION"`
}

// Cluster describes the Redshift cluster and its master database.
type Cluster struct {
	Name       string `yaml:"name" env:"NAME"`
	Type       string `yaml:"type" env:"TYPE"`
	NodeType   string `yaml:"node_type" env:"NODE_TYPE"`
	NodeCount  int    `yaml:"node_count" env:"NODE_COUNT"`
	DBName     string `yaml:"db_name" env:"DB_NAME"`
	DBUser     string `yaml:"db_user" env:"DB_USER"`
	DBPassword string `yaml:"db_password" env:"DB_PASSWORD"`
	DBPort     int    `yaml:"db_port" env:"DB_PORT"`
	SSLMode    string `yaml:"db_sslmode" env:"DB_SSLMODE"`
}

// IAMRole names the role the cluster assumes to read from S3. The name is
// created on create-cluster and deleted on delete-cluster.
type IAMRole struct {
	Name string `yaml:"name" env:"NAME"`
}

// S3 lists the bulk-load sources.
type S3 struct {
	LogData     string `yaml:"log_data" env:"LOG_DATA"`
	LogJSONPath string `yaml:"log_jsonpath" env:"LOG_JSONPATH"`
	SongData    string `yaml:"song_data" env:"SONG_DATA"`
}

type Log struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Metrics selects and configures the metrics backend: none, prompush or
// datadog.
type Metrics struct {
	Backend          string   `yaml:"backend" env:"BACKEND"`
	Job              string   `yaml:"job" env:"JOB"`
	PushgatewayURL   string   `yaml:"pushgateway_url" env:"PUSHGATEWAY_URL"`
	DatadogAddr      string   `yaml:"datadog_addr" env:"DATADOG_ADDR"`
	DatadogNamespace string   `yaml:"datadog_namespace" env:"DATADOG_NAMESPACE"`
	Tags             []string `yaml:"tags" env:"TAGS" envSeparator:","`
}

// Default returns the configuration used for keys the file and environment
// leave unset.
func Default() Config {
	return Config{
		Cluster: Cluster{
			Type:      "multi-node",
			NodeType:  "dc2.large",
			NodeCount: 4,
			DBPort:    5439,
			SSLMode:   "require",
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
		Metrics: Metrics{
			Backend: "none",
			Job:     "dwh",
		},
	}
}

// Read builds a Config from the YAML file at path, the dotenv file at
// envFile and the process environment, without validating it. An empty path
// skips the file; a missing envFile is ignored.
func Read(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.unquote()
	return &cfg, nil
}

// Load is Read followed by Validate. Any error-severity issue fails the load
// with a *Error carrying every issue found.
func Load(path, envFile string) (*Config, error) {
	cfg, err := Read(path, envFile)
	if err != nil {
		return nil, err
	}
	issues := Validate(cfg)
	if HasErrors(issues) {
		return nil, &Error{Issues: issues}
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

func (c *Config) unquote() {
	for _, s := range []*string{
		&c.User.Key, &c.User.Secret,
		&c.AWS.Region,
		&c.Cluster.Name, &c.Cluster.Type, &c.Cluster.NodeType,
		&c.Cluster.DBName, &c.Cluster.DBUser, &c.Cluster.DBPassword, &c.Cluster.SSLMode,
		&c.IAMRole.Name,
		&c.S3.LogData, &c.S3.LogJSONPath, &c.S3.SongData,
		&c.Log.Level, &c.Log.Format,
		&c.Metrics.Backend, &c.Metrics.Job, &c.Metrics.PushgatewayURL,
		&c.Metrics.DatadogAddr, &c.Metrics.DatadogNamespace,
	} {
		*s = unquote(*s)
	}
}

// unquote strips surrounding whitespace and one pair of single quotes.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	return s
}

// Redacted returns a copy safe to print: credentials are masked.
func (c *Config) Redacted() Config {
	out := *c
	out.User.Secret = mask(out.User.Secret)
	out.Cluster.DBPassword = mask(out.Cluster.DBPassword)
	if len(out.User.Key) > 4 {
		out.User.Key = out.User.Key[:4] + strings.Repeat("*", len(out.User.Key)-4)
	}
	out.Metrics.Tags = append([]string(nil), c.Metrics.Tags...)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "xxxxx"
}
