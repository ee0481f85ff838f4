package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks every command that needs the configuration.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is the dotted YAML path,
// e.g. "cluster.db_port".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Error is returned by Load when the configuration has error-severity
// issues. It is fatal for every command.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	var msgs []string
	for _, iss := range e.Issues {
		if iss.Severity == SeverityError {
			msgs = append(msgs, iss.Path+": "+iss.Message)
		}
	}
	return fmt.Sprintf("invalid configuration (%d error(s)): %s", len(msgs), strings.Join(msgs, "; "))
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static checks over cfg. It does not mutate it and does
// not contact AWS.
func Validate(cfg *Config) []Issue {
	var issues []Issue
	issues = append(issues, validateUser(cfg.User)...)
	issues = append(issues, required("aws.region", cfg.AWS.Region)...)
	issues = append(issues, validateCluster(cfg.Cluster)...)
	issues = append(issues, required("iam_role.name", cfg.IAMRole.Name)...)
	issues = append(issues, validateS3(cfg.S3)...)
	issues = append(issues, validateLog(cfg.Log)...)
	issues = append(issues, validateMetrics(cfg.Metrics)...)
	return issues
}

func required(path, v string) []Issue {
	if strings.TrimSpace(v) == "" {
		return []Issue{{Severity: SeverityError, Path: path, Message: "must not be empty"}}
	}
	return nil
}

func validateUser(u User) []Issue {
	switch {
	case u.Key == "" && u.Secret == "":
		return []Issue{{
			Severity: SeverityWarning,
			Path:     "usr",
			Message:  "no static credentials; the default AWS credential chain will be used",
		}}
	case u.Key == "":
		return []Issue{{Severity: SeverityError, Path: "usr.key", Message: "usr.secret is set but usr.key is empty"}}
	case u.Secret == "":
		return []Issue{{Severity: SeverityError, Path: "usr.secret", Message: "usr.key is set but usr.secret is empty"}}
	}
	return nil
}

var sslModes = map[string]struct{}{
	"disable": {}, "allow": {}, "prefer": {}, "require": {}, "verify-ca": {}, "verify-full": {},
}

func validateCluster(c Cluster) []Issue {
	var issues []Issue
	issues = append(issues, required("cluster.name", c.Name)...)
	issues = append(issues, required("cluster.db_name", c.DBName)...)
	issues = append(issues, required("cluster.db_user", c.DBUser)...)
	issues = append(issues, required("cluster.db_password", c.DBPassword)...)
	issues = append(issues, required("cluster.node_type", c.NodeType)...)

	switch c.Type {
	case "single-node":
		if c.NodeCount > 1 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "cluster.node_count",
				Message:  fmt.Sprintf("node_count %d is ignored for a single-node cluster", c.NodeCount),
			})
		}
	case "multi-node":
		if c.NodeCount < 2 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "cluster.node_count",
				Message:  fmt.Sprintf("a multi-node cluster needs at least 2 nodes, got %d", c.NodeCount),
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "cluster.type",
			Message:  fmt.Sprintf("unknown cluster type %q; expected single-node or multi-node", c.Type),
		})
	}

	if c.DBPort < 1 || c.DBPort > 65535 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "cluster.db_port",
			Message:  fmt.Sprintf("port %d out of range", c.DBPort),
		})
	}
	if _, ok := sslModes[c.SSLMode]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "cluster.db_sslmode",
			Message:  fmt.Sprintf("unknown sslmode %q", c.SSLMode),
		})
	} else if c.SSLMode == "disable" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "cluster.db_sslmode",
			Message:  "TLS is disabled; credentials travel in clear text",
		})
	}

	if c.DBPassword != "" && !redshiftPassword(c.DBPassword) {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "cluster.db_password",
			Message:  "Redshift requires 8-64 characters with an upper-case letter, a lower-case letter and a digit; create-cluster will be rejected",
		})
	}
	return issues
}

func redshiftPassword(p string) bool {
	if len(p) < 8 || len(p) > 64 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range p {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return upper && lower && digit
}

func validateS3(s S3) []Issue {
	var issues []Issue
	for _, f := range []struct{ path, v string }{
		{"s3.log_data", s.LogData},
		{"s3.log_jsonpath", s.LogJSONPath},
		{"s3.song_data", s.SongData},
	} {
		if strings.TrimSpace(f.v) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: f.path, Message: "must not be empty"})
			continue
		}
		if !strings.HasPrefix(f.v, "s3://") {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     f.path,
				Message:  fmt.Sprintf("%q is not an s3:// location", f.v),
			})
		}
	}
	if s.LogJSONPath != "" && !strings.HasSuffix(strings.ToLower(s.LogJSONPath), ".json") {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "s3.log_jsonpath",
			Message:  "line-format descriptor usually ends in .json",
		})
	}
	return issues
}

func validateLog(l Log) []Issue {
	var issues []Issue
	if l.Level != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(l.Level)); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "log.level",
				Message:  fmt.Sprintf("unknown level %q; falling back to info", l.Level),
			})
		}
	}
	switch l.Format {
	case "", "console", "json":
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "log.format",
			Message:  fmt.Sprintf("unknown format %q; falling back to console", l.Format),
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	switch m.Backend {
	case "", "none":
		return nil
	case "prompush":
		return required("metrics.pushgateway_url", m.PushgatewayURL)
	case "datadog":
		return required("metrics.datadog_addr", m.DatadogAddr)
	default:
		return []Issue{{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown backend %q; expected none, prompush or datadog", m.Backend),
		}}
	}
}
