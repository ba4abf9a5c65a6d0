// Package s3client constructs the authenticated S3 SDK client from tool
// configuration. It performs the one-time credential work (static keys,
// optional MFA session-token exchange, optional custom TLS trust bundle)
// so the rest of the module only ever sees a ready client capability.
package s3client

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	appconfig "github.com/objstore-tools/s3fetch/config"
)

// New builds an S3 client for the configured endpoint. If an MFA serial is
// configured, mfaToken must carry the one-time password and the static
// credentials are exchanged for session credentials via STS before the
// client is built. Prompting for the token is the caller's concern.
func New(ctx context.Context, cfg *appconfig.Config, mfaToken string) (*s3.Client, error) {
	provider := credentials.StaticCredentialsProvider{
		Value: aws.Credentials{
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
		},
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(provider),
	}

	if cfg.CABundle != "" {
		pem, err := os.ReadFile(cfg.CABundle)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle %s: %w", cfg.CABundle, err)
		}
		loadOpts = append(loadOpts, awsconfig.WithCustomCABundle(bytes.NewReader(pem)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.MFASerial != "" {
		sessionCreds, err := sessionCredentials(ctx, awsCfg, cfg.MFASerial, mfaToken)
		if err != nil {
			return nil, err
		}
		awsCfg.Credentials = sessionCreds
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.EndpointURL)
		o.UsePathStyle = true
	}), nil
}

// sessionCredentials exchanges static credentials plus an MFA one-time
// password for temporary session credentials.
func sessionCredentials(
	ctx context.Context,
	awsCfg aws.Config,
	serial, token string,
) (aws.CredentialsProvider, error) {
	if token == "" {
		return nil, fmt.Errorf("MFA token is required for authentication")
	}

	stsClient := sts.NewFromConfig(awsCfg)
	output, err := stsClient.GetSessionToken(ctx, &sts.GetSessionTokenInput{
		SerialNumber: aws.String(serial),
		TokenCode:    aws.String(token),
	})
	if err != nil {
		return nil, fmt.Errorf("MFA authentication failed: %w", err)
	}

	creds := output.Credentials
	return credentials.StaticCredentialsProvider{
		Value: aws.Credentials{
			AccessKeyID:     aws.ToString(creds.AccessKeyId),
			SecretAccessKey: aws.ToString(creds.SecretAccessKey),
			SessionToken:    aws.ToString(creds.SessionToken),
			Expires:         aws.ToTime(creds.Expiration),
			CanExpire:       true,
		},
	}, nil
}
