package statements

import (
	"fmt"
	"strings"

	"dwh/internal/schema"
)

// LoadKind selects a bulk-copy template. The kind, not the template text,
// decides which parameters are bound.
type LoadKind int

const (
	// EventsLoad copies the event log into staging_events using a JSONPaths
	// descriptor for the column mapping.
	EventsLoad LoadKind = iota + 1
	// SongsLoad copies the song catalog into staging_songs with an
	// auto-detected JSON shape.
	SongsLoad
)

func (k LoadKind) String() string {
	switch k {
	case EventsLoad:
		return "events"
	case SongsLoad:
		return "songs"
	default:
		return fmt.Sprintf("LoadKind(%d)", int(k))
	}
}

// Target returns the staging table a kind loads into.
func (k LoadKind) Target() (string, bool) {
	switch k {
	case EventsLoad:
		return schema.StagingEvents, true
	case SongsLoad:
		return schema.StagingSongs, true
	default:
		return "", false
	}
}

// LoadParams carries the values bound into a COPY template.
type LoadParams struct {
	// Source is the object storage location, e.g. s3://udacity-dend/log_data.
	Source string
	// RoleARN is the IAM role the warehouse assumes to read Source.
	RoleARN string
	// Region is the region of the bucket.
	Region string
	// JSONPaths is the line-format descriptor location. Required for
	// EventsLoad, ignored for SongsLoad.
	JSONPaths string
}

// LoadRequest is one bulk-copy to bind and execute.
type LoadRequest struct {
	Kind   LoadKind
	Params LoadParams
}

const (
	eventsCopyTemplate = `COPY staging_events FROM %s
    CREDENTIALS %s
    REGION %s
    TIMEFORMAT AS 'epochmillisecs'
    JSON %s;`

	songsCopyTemplate = `COPY staging_songs FROM %s
    CREDENTIALS %s
    REGION %s
    JSON 'auto';`
)

// Bind renders the COPY statement for the request. A request whose kind maps
// to no known staging table, or which lacks a required parameter, yields a
// *ConfigError.
func (r LoadRequest) Bind() (Statement, error) {
	target, ok := r.Kind.Target()
	name := "load_" + r.Kind.String()
	if !ok {
		return Statement{}, &ConfigError{Statement: name, Reason: "unknown load kind; expected events or songs"}
	}

	p := r.Params
	for _, f := range []struct{ field, val string }{
		{"source", p.Source},
		{"role_arn", p.RoleARN},
		{"region", p.Region},
	} {
		if strings.TrimSpace(f.val) == "" {
			return Statement{}, &ConfigError{Statement: name, Field: f.field, Reason: "must not be empty"}
		}
	}

	creds := quoteLiteral("aws_iam_role=" + strings.TrimSpace(p.RoleARN))
	var sql string
	switch r.Kind {
	case EventsLoad:
		if strings.TrimSpace(p.JSONPaths) == "" {
			return Statement{}, &ConfigError{Statement: name, Field: "json_paths", Reason: "events load requires a line-format descriptor"}
		}
		sql = fmt.Sprintf(eventsCopyTemplate,
			quoteLiteral(p.Source), creds, quoteLiteral(p.Region), quoteLiteral(p.JSONPaths))
	case SongsLoad:
		sql = fmt.Sprintf(songsCopyTemplate, quoteLiteral(p.Source), creds, quoteLiteral(p.Region))
	}

	return Statement{Name: name, Stage: StageLoad, Target: target, SQL: sql}, nil
}

// Sources are the three bulk-load locations from configuration.
type Sources struct {
	Events          string
	EventsJSONPaths string
	Songs           string
}

// LoadRequests returns the load set in execution order: events, then songs.
func LoadRequests(src Sources, roleARN, region string) []LoadRequest {
	return []LoadRequest{
		{Kind: EventsLoad, Params: LoadParams{Source: src.Events, RoleARN: roleARN, Region: region, JSONPaths: src.EventsJSONPaths}},
		{Kind: SongsLoad, Params: LoadParams{Source: src.Songs, RoleARN: roleARN, Region: region}},
	}
}

// BindAll binds every request, stopping at the first configuration error.
func BindAll(reqs []LoadRequest) ([]Statement, error) {
	out := make([]Statement, 0, len(reqs))
	for _, r := range reqs {
		st, err := r.Bind()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// quoteLiteral renders s as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(strings.TrimSpace(s), "'", "''") + "'"
}
