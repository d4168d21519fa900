package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"donations/internal/config"
	"donations/internal/repository"
	"donations/internal/repository/dynamo"
	"donations/internal/repository/postgres"
)

// NewDonationLedger builds the configured ledger backend.
func NewDonationLedger(ctx context.Context, cfg config.LedgerConfig, db *sql.DB) (repository.DonationLedger, error) {
	switch cfg.Backend {
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
			}
		})
		return dynamo.NewDonationLedger(client, cfg.DynamoTable, cfg.DynamoRecentIndex), nil
	case "postgres", "":
		return postgres.NewDonationLedger(db), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
