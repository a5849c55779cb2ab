package secrets

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	crerr "github.com/cockroachdb/errors"
)

// Resolver fetches decrypted parameters from AWS SSM Parameter Store. It is
// the fallback for the API key when the environment does not carry one.
type Resolver struct {
	client *ssm.Client
}

func NewResolver(ctx context.Context, region string) (*Resolver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, crerr.Wrap(err, "load aws config")
	}
	return &Resolver{client: ssm.NewFromConfig(cfg)}, nil
}

func (r *Resolver) Parameter(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", crerr.New("parameter name is required")
	}

	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", crerr.Wrapf(err, "get ssm parameter %s", name)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", crerr.Newf("ssm parameter %s is empty", name)
	}
	return aws.ToString(out.Parameter.Value), nil
}
