// Package app wires configuration into the long-lived clients shared by the
// certificate API and the ledger export tool.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/internal/certificates"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/internal/config"
)

// NewLogger builds a zap logger at the configured level.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

// LoadAWSConfig resolves the default credential chain. Static keys and a
// custom endpoint are applied when set, for LocalStack and MinIO.
func LoadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewLedger returns the configured ledger backend. db is only used by the
// postgres backend and awsCfg only by the dynamodb backend.
func NewLedger(cfg config.LedgerConfig, db *gorm.DB, awsCfg aws.Config) (certificates.Ledger, error) {
	switch cfg.Backend {
	case config.LedgerPostgres, "":
		if db == nil {
			return nil, fmt.Errorf("postgres ledger requires a database")
		}
		return certificates.NewLedger(db, certificates.NewNumberingAuthority(cfg.SerialPrefix)), nil
	case config.LedgerDynamoDB:
		client := dynamodb.NewFromConfig(awsCfg)
		return certificates.NewDynamoLedger(client, cfg.DynamoTable, cfg.DynamoSeqTable, cfg.SerialPrefix), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
