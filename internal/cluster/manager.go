package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	rstypes "github.com/aws/aws-sdk-go-v2/service/redshift/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"dwh/internal/config"
	"dwh/internal/warehouse"
)

const (
	// StatusAvailable is the only status the pipeline connects to.
	StatusAvailable = "available"

	// S3ReadOnlyPolicyARN is attached to the cluster role so COPY can read
	// the sources.
	S3ReadOnlyPolicyARN = "arn:aws:iam::aws:policy/AmazonS3ReadOnlyAccess"

	// DefaultPollInterval is the fixed delay between status checks.
	DefaultPollInterval = 5 * time.Second
)

// ErrClusterNotFound is returned when the configured cluster does not exist.
var ErrClusterNotFound = errors.New("cluster not found")

// UnavailableError means the cluster exists but cannot take connections, or
// does not exist at all. Commands that need the warehouse stop before
// connecting.
type UnavailableError struct {
	Cluster string
	Status  string
	Err     error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cluster %s is unavailable: %v", e.Cluster, e.Err)
	}
	return fmt.Sprintf("cluster %s is not available (status %q)", e.Cluster, e.Status)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Spec is the cluster to create or manage.
type Spec struct {
	Name       string
	Type       string
	NodeType   string
	NodeCount  int
	DBName     string
	DBUser     string
	DBPassword string
	DBPort     int
	RoleName   string
}

// SpecFromConfig extracts the cluster spec from the configuration.
func SpecFromConfig(cfg *config.Config) Spec {
	return Spec{
		Name:       cfg.Cluster.Name,
		Type:       cfg.Cluster.Type,
		NodeType:   cfg.Cluster.NodeType,
		NodeCount:  cfg.Cluster.NodeCount,
		DBName:     cfg.Cluster.DBName,
		DBUser:     cfg.Cluster.DBUser,
		DBPassword: cfg.Cluster.DBPassword,
		DBPort:     cfg.Cluster.DBPort,
		RoleName:   cfg.IAMRole.Name,
	}
}

// Description is the part of a cluster description the tools care about.
type Description struct {
	Identifier     string
	Status         string
	Endpoint       string
	Port           int
	RoleARNs       []string
	VpcID          string
	NodeType       string
	NodeCount      int
	DBName         string
	MasterUsername string
}

// RoleARN returns the first role attached to the cluster, or "".
func (d Description) RoleARN() string {
	if len(d.RoleARNs) == 0 {
		return ""
	}
	return d.RoleARNs[0]
}

// Manager drives the control plane for one cluster.
type Manager struct {
	redshift RedshiftAPI
	iam      IAMAPI
	sts      STSAPI
	spec     Spec

	log      zerolog.Logger
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// WithSleep replaces the context-aware sleep used between polls.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) { m.sleep = fn }
}

func NewManager(rs RedshiftAPI, iamc IAMAPI, stsc STSAPI, spec Spec, opts ...Option) *Manager {
	m := &Manager{
		redshift: rs,
		iam:      iamc,
		sts:      stsc,
		spec:     spec,
		log:      zerolog.Nop(),
		interval: DefaultPollInterval,
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With().Str("cluster", spec.Name).Logger()
	return m
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Describe fetches the current state of the cluster. A missing cluster
// yields ErrClusterNotFound.
func (m *Manager) Describe(ctx context.Context) (Description, error) {
	out, err := m.redshift.DescribeClusters(ctx, &redshift.DescribeClustersInput{
		ClusterIdentifier: aws.String(m.spec.Name),
	})
	if err != nil {
		if isClusterNotFound(err) {
			return Description{}, fmt.Errorf("describe %s: %w", m.spec.Name, ErrClusterNotFound)
		}
		return Description{}, fmt.Errorf("describe %s: %w", m.spec.Name, err)
	}
	if len(out.Clusters) == 0 {
		return Description{}, fmt.Errorf("describe %s: %w", m.spec.Name, ErrClusterNotFound)
	}
	return describe(out.Clusters[0]), nil
}

func describe(c rstypes.Cluster) Description {
	d := Description{
		Identifier:     aws.ToString(c.ClusterIdentifier),
		Status:         aws.ToString(c.ClusterStatus),
		VpcID:          aws.ToString(c.VpcId),
		NodeType:       aws.ToString(c.NodeType),
		NodeCount:      int(aws.ToInt32(c.NumberOfNodes)),
		DBName:         aws.ToString(c.DBName),
		MasterUsername: aws.ToString(c.MasterUsername),
	}
	if c.Endpoint != nil {
		d.Endpoint = aws.ToString(c.Endpoint.Address)
		d.Port = int(aws.ToInt32(c.Endpoint.Port))
	}
	for _, r := range c.IamRoles {
		if arn := aws.ToString(r.IamRoleArn); arn != "" {
			d.RoleARNs = append(d.RoleARNs, arn)
		}
	}
	return d
}

func isClusterNotFound(err error) bool {
	var nf *rstypes.ClusterNotFoundFault
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ClusterNotFound"
}

// EnsureAvailable returns the description when the cluster can take
// connections and a *UnavailableError otherwise.
func (m *Manager) EnsureAvailable(ctx context.Context) (Description, error) {
	d, err := m.Describe(ctx)
	if err != nil {
		if errors.Is(err, ErrClusterNotFound) {
			return Description{}, &UnavailableError{Cluster: m.spec.Name, Err: err}
		}
		return Description{}, err
	}
	if d.Status != StatusAvailable {
		return d, &UnavailableError{Cluster: m.spec.Name, Status: d.Status}
	}
	return d, nil
}

// WaitAvailable polls at a fixed interval until the cluster reports
// "available". There is no deadline; cancel ctx to give up.
func (m *Manager) WaitAvailable(ctx context.Context) (Description, error) {
	for {
		d, err := m.Describe(ctx)
		if err != nil {
			return Description{}, err
		}
		if d.Status == StatusAvailable {
			m.log.Info().Str("endpoint", d.Endpoint).Msg("cluster is available")
			return d, nil
		}
		m.log.Info().Str("status", d.Status).Msg("waiting for cluster to come up")
		if err := m.sleep(ctx, m.interval); err != nil {
			return Description{}, err
		}
	}
}

// WaitDeleted polls at a fixed interval until the cluster no longer exists.
func (m *Manager) WaitDeleted(ctx context.Context) error {
	for {
		d, err := m.Describe(ctx)
		if errors.Is(err, ErrClusterNotFound) {
			m.log.Info().Msg("cluster is deleted")
			return nil
		}
		if err != nil {
			return err
		}
		m.log.Info().Str("status", d.Status).Msg("cluster is being deleted")
		if err := m.sleep(ctx, m.interval); err != nil {
			return err
		}
	}
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect    string            `json:"Effect"`
	Action    string            `json:"Action"`
	Principal map[string]string `json:"Principal"`
}

// AssumeRolePolicy is the trust policy letting Redshift assume the role.
func AssumeRolePolicy() string {
	b, _ := json.Marshal(policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Effect:    "Allow",
			Action:    "sts:AssumeRole",
			Principal: map[string]string{"Service": "redshift.amazonaws.com"},
		}},
	})
	return string(b)
}

// EnsureRole creates the cluster role if needed, attaches the S3 read-only
// policy and returns the role ARN. An existing role is reused.
func (m *Manager) EnsureRole(ctx context.Context) (string, error) {
	role := aws.String(m.spec.RoleName)
	log := m.log.With().Str("role", m.spec.RoleName).Logger()

	_, err := m.iam.CreateRole(ctx, &iam.CreateRoleInput{
		Path:                     aws.String("/"),
		RoleName:                 role,
		Description:              aws.String("Allows Redshift clusters to call AWS services on your behalf."),
		AssumeRolePolicyDocument: aws.String(AssumeRolePolicy()),
	})
	var exists *iamtypes.EntityAlreadyExistsException
	switch {
	case errors.As(err, &exists):
		log.Warn().Msg("role already exists; reusing it")
	case err != nil:
		return "", fmt.Errorf("create role %s: %w", m.spec.RoleName, err)
	default:
		log.Info().Msg("role created")
	}

	if _, err := m.iam.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  role,
		PolicyArn: aws.String(S3ReadOnlyPolicyARN),
	}); err != nil {
		return "", fmt.Errorf("attach policy to %s: %w", m.spec.RoleName, err)
	}

	out, err := m.iam.GetRole(ctx, &iam.GetRoleInput{RoleName: role})
	if err != nil {
		return "", fmt.Errorf("get role %s: %w", m.spec.RoleName, err)
	}
	if out.Role == nil || aws.ToString(out.Role.Arn) == "" {
		return "", fmt.Errorf("get role %s: response has no ARN", m.spec.RoleName)
	}
	arn := aws.ToString(out.Role.Arn)
	log.Info().Str("role_arn", arn).Msg("S3 read-only policy attached")
	return arn, nil
}

// Identity logs and returns the ARN behind the configured credentials.
func (m *Manager) Identity(ctx context.Context) (string, error) {
	out, err := m.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("get caller identity: %w", err)
	}
	arn := aws.ToString(out.Arn)
	m.log.Info().Str("account", aws.ToString(out.Account)).Str("caller", arn).Msg("using AWS identity")
	return arn, nil
}

// Create provisions the role and the cluster and blocks until the cluster is
// available. A cluster that already exists is waited on, not recreated.
func (m *Manager) Create(ctx context.Context) (Description, error) {
	if _, err := m.Identity(ctx); err != nil {
		return Description{}, err
	}
	roleARN, err := m.EnsureRole(ctx)
	if err != nil {
		return Description{}, err
	}

	in := &redshift.CreateClusterInput{
		ClusterIdentifier:  aws.String(m.spec.Name),
		ClusterType:        aws.String(m.spec.Type),
		NodeType:           aws.String(m.spec.NodeType),
		DBName:             aws.String(m.spec.DBName),
		MasterUsername:     aws.String(m.spec.DBUser),
		MasterUserPassword: aws.String(m.spec.DBPassword),
		IamRoles:           []string{roleARN},
	}
	if m.spec.DBPort > 0 {
		in.Port = aws.Int32(int32(m.spec.DBPort))
	}
	// Redshift rejects NumberOfNodes for single-node clusters.
	if m.spec.Type != "single-node" {
		in.NumberOfNodes = aws.Int32(int32(m.spec.NodeCount))
	}

	_, err = m.redshift.CreateCluster(ctx, in)
	var exists *rstypes.ClusterAlreadyExistsFault
	switch {
	case errors.As(err, &exists):
		m.log.Warn().Msg("cluster already exists; waiting for it instead")
	case err != nil:
		return Description{}, fmt.Errorf("create cluster %s: %w", m.spec.Name, err)
	default:
		m.log.Info().Str("node_type", m.spec.NodeType).Int("nodes", m.spec.NodeCount).Msg("cluster creation started")
	}

	d, err := m.WaitAvailable(ctx)
	if err != nil {
		return Description{}, err
	}
	m.log.Info().Str("endpoint", d.Endpoint).Str("role_arn", d.RoleARN()).Msg("cluster ready")
	return d, nil
}

// Delete removes the cluster without a final snapshot, waits until it is
// gone, then detaches the policy and deletes the role.
func (m *Manager) Delete(ctx context.Context) error {
	if _, err := m.Describe(ctx); err != nil {
		return err
	}

	if _, err := m.redshift.DeleteCluster(ctx, &redshift.DeleteClusterInput{
		ClusterIdentifier:        aws.String(m.spec.Name),
		SkipFinalClusterSnapshot: aws.Bool(true),
	}); err != nil {
		return fmt.Errorf("delete cluster %s: %w", m.spec.Name, err)
	}

	if err := m.WaitDeleted(ctx); err != nil {
		return err
	}
	return m.DeleteRole(ctx)
}

// DeleteRole detaches the S3 policy and deletes the cluster role. A role or
// attachment that is already gone is not an error.
func (m *Manager) DeleteRole(ctx context.Context) error {
	role := aws.String(m.spec.RoleName)
	var missing *iamtypes.NoSuchEntityException

	if _, err := m.iam.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  role,
		PolicyArn: aws.String(S3ReadOnlyPolicyARN),
	}); err != nil && !errors.As(err, &missing) {
		return fmt.Errorf("detach policy from %s: %w", m.spec.RoleName, err)
	}
	if _, err := m.iam.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: role}); err != nil {
		if errors.As(err, &missing) {
			m.log.Warn().Str("role", m.spec.RoleName).Msg("role already deleted")
			return nil
		}
		return fmt.Errorf("delete role %s: %w", m.spec.RoleName, err)
	}
	m.log.Info().Str("role", m.spec.RoleName).Msg("policy detached and role deleted")
	return nil
}

// ConnectionParams combines the cluster endpoint with the configured
// database credentials.
func ConnectionParams(d Description, c config.Cluster) warehouse.Params {
	port := d.Port
	if port == 0 {
		port = c.DBPort
	}
	return warehouse.Params{
		Host:     d.Endpoint,
		Port:     port,
		Database: c.DBName,
		User:     c.DBUser,
		Password: c.DBPassword,
		SSLMode:  c.SSLMode,
	}
}
