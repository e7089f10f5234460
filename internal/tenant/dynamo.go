package tenant

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/capitalize-ai/ai-engine/internal/model"
)

// DynamoConfig holds DynamoDB connection settings.
type DynamoConfig struct {
	Region    string
	Table     string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type itemGetter interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// tenantItem is the shape of a row in the tenants table.
type tenantItem struct {
	TenantID string  `dynamodbav:"tenantId"`
	Name     string  `dynamodbav:"name"`
	Settings Profile `dynamodbav:"settings"`
}

// DynamoSource reads profiles from the settings attribute of a tenants table.
type DynamoSource struct {
	client itemGetter
	table  string
}

// NewDynamoSource builds a DynamoDB client from cfg. Static credentials and a
// custom endpoint are optional.
func NewDynamoSource(ctx context.Context, cfg DynamoConfig) (*DynamoSource, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var clientOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return newDynamoSource(dynamodb.NewFromConfig(awsCfg, clientOpts...), cfg.Table), nil
}

func newDynamoSource(client itemGetter, table string) *DynamoSource {
	return &DynamoSource{client: client, table: table}
}

// Lookup fetches the tenant item and decodes its settings.
func (s *DynamoSource) Lookup(ctx context.Context, tenantID string) (Profile, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"tenantId": &types.AttributeValueMemberS{Value: tenantID},
		},
	})
	if err != nil {
		return Profile{}, fmt.Errorf("failed to get tenant item: %w", err)
	}
	if len(out.Item) == 0 {
		return Profile{}, model.ErrNotFound
	}

	var item tenantItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return Profile{}, fmt.Errorf("failed to decode tenant item: %w", err)
	}
	if item.Settings.CompanyName == "" {
		item.Settings.CompanyName = item.Name
	}
	return item.Settings, nil
}
