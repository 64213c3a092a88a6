package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
)

// SecretScheme marks a value stored in AWS Secrets Manager, as
// awssm://<secret-id> or awssm://<secret-id>#<json-key>.
const SecretScheme = "awssm://"

// SecretsManagerAPI is the part of the Secrets Manager client the resolver uses.
type SecretsManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// IsSecretRef reports whether v is a secret reference.
func IsSecretRef(v string) bool {
	return strings.HasPrefix(v, SecretScheme)
}

// SecretResolver resolves secret references. Each secret is fetched once.
type SecretResolver struct {
	api SecretsManagerAPI

	mu    sync.Mutex
	cache map[string]string
}

// NewSecretResolver creates a resolver over api.
func NewSecretResolver(api SecretsManagerAPI) *SecretResolver {
	return &SecretResolver{api: api, cache: make(map[string]string)}
}

// NewAWSSecretResolver creates a resolver using the default AWS credential chain.
func NewAWSSecretResolver(ctx context.Context, region string) (*SecretResolver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSecretResolver(secretsmanager.NewFromConfig(cfg)), nil
}

// Resolve returns v unchanged unless it is a secret reference.
func (r *SecretResolver) Resolve(ctx context.Context, v string) (string, error) {
	if !IsSecretRef(v) {
		return v, nil
	}
	id, key, _ := strings.Cut(strings.TrimPrefix(v, SecretScheme), "#")
	if id == "" {
		return "", fmt.Errorf("secret reference %q has no secret id", v)
	}

	raw, err := r.fetch(ctx, id)
	if err != nil {
		return "", err
	}
	if key == "" {
		return raw, nil
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", fmt.Errorf("secret %s is not a JSON object: %w", id, err)
	}
	val, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("secret %s has no key %q", id, key)
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	return fmt.Sprint(val), nil
}

func (r *SecretResolver) fetch(ctx context.Context, id string) (string, error) {
	r.mu.Lock()
	if v, ok := r.cache[id]; ok {
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	out, err := r.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "ResourceNotFoundException":
				return "", fmt.Errorf("secret %s not found: %w", id, err)
			case "AccessDeniedException":
				return "", fmt.Errorf("access denied to secret %s: %w", id, err)
			}
		}
		return "", fmt.Errorf("failed to get secret %s: %w", id, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", id)
	}

	r.mu.Lock()
	r.cache[id] = *out.SecretString
	r.mu.Unlock()
	return *out.SecretString, nil
}

// secretFields lists every setting that may hold a secret reference.
func (c *Config) secretFields() []*string {
	fields := []*string{&c.Directory.Token, &c.ERP.Token}
	for i := range c.Backoffice.Accounts {
		a := &c.Backoffice.Accounts[i]
		fields = append(fields, &a.Password, &a.Token)
	}
	for i := range c.Locations {
		fields = append(fields, &c.Locations[i].APIKey)
	}
	return fields
}

// HasSecretRefs reports whether any setting needs resolving.
func (c *Config) HasSecretRefs() bool {
	for _, f := range c.secretFields() {
		if IsSecretRef(*f) {
			return true
		}
	}
	return false
}

// ResolveSecrets replaces every secret reference in c with its value.
func (c *Config) ResolveSecrets(ctx context.Context, r *SecretResolver) error {
	for _, f := range c.secretFields() {
		v, err := r.Resolve(ctx, *f)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}
