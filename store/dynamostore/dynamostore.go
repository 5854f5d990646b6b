// Package dynamostore implements [store.Store] on DynamoDB.
//
// Every collection maps to one table named TablePrefix+collection with a
// string hash key "pk". Conditional updates are pushed down to DynamoDB as
// condition expressions; queries are paginated scans with a filter expression.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/MrEthical07/goGuard/store"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// keyAttr is the hash key attribute of every table.
const keyAttr = "pk"

// API is the subset of the DynamoDB client used by Store.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// ClientConfig selects region, credentials and an optional endpoint override.
type ClientConfig struct {
	Region string
	// AccessKeyID and SecretKey are optional static credentials. When empty the
	// default AWS credential chain is used.
	AccessKeyID string
	SecretKey   string
	// EndpointURL overrides the service endpoint, e.g. for LocalStack.
	EndpointURL string
}

// NewClient creates a DynamoDB client from cfg.
func NewClient(ctx context.Context, cfg ClientConfig) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dynamostore: load aws config: %w", err)
	}

	var clientOpts []func(*dynamodb.Options)
	if cfg.EndpointURL != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		})
	}
	return dynamodb.NewFromConfig(awsCfg, clientOpts...), nil
}

// Store is a DynamoDB-backed document store.
type Store struct {
	api         API
	tablePrefix string
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by Bootstrap. A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store. tablePrefix is prepended to every collection name.
func New(api API, tablePrefix string, opts ...Option) *Store {
	s := &Store{api: api, tablePrefix: tablePrefix, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) table(collection string) *string {
	return aws.String(s.tablePrefix + collection)
}

// Bootstrap creates the tables for collections if they do not exist yet.
func (s *Store) Bootstrap(ctx context.Context, collections ...string) error {
	for _, c := range collections {
		_, err := s.api.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName:   s.table(c),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(keyAttr), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(keyAttr), KeyType: types.KeyTypeHash},
			},
		})
		if err != nil {
			var inUse *types.ResourceInUseException
			if errors.As(err, &inUse) {
				s.logger.DebugContext(ctx, "dynamo table already exists", "table", s.tablePrefix+c)
				continue
			}
			return store.Unavailable("create table "+s.tablePrefix+c, err)
		}
		s.logger.InfoContext(ctx, "dynamo table created", "table", s.tablePrefix+c)
	}
	return nil
}

func strKey(value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		keyAttr: &types.AttributeValueMemberS{Value: value},
	}
}

func (s *Store) Get(ctx context.Context, collection, key string) (store.Record, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      s.table(collection),
		Key:            strKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, store.Unavailable("get", err)
	}
	if len(out.Item) == 0 {
		return nil, store.ErrNotFound
	}
	return decodeItem(out.Item)
}

func (s *Store) Put(ctx context.Context, collection, key string, rec store.Record) error {
	item, err := attributevalue.MarshalMap(map[string]any(rec))
	if err != nil {
		return fmt.Errorf("dynamostore: marshal %s/%s: %w", collection, key, err)
	}
	item[keyAttr] = &types.AttributeValueMemberS{Value: key}

	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: s.table(collection),
		Item:      item,
	}); err != nil {
		return store.Unavailable("put", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, collection, key string, rec store.Record) error {
	item, err := attributevalue.MarshalMap(map[string]any(rec))
	if err != nil {
		return fmt.Errorf("dynamostore: marshal %s/%s: %w", collection, key, err)
	}
	item[keyAttr] = &types.AttributeValueMemberS{Value: key}

	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                s.table(collection),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": keyAttr},
	}); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return store.ErrConditionFailed
		}
		return store.Unavailable("create", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, key string, fields store.Record, conds ...store.Predicate) error {
	ue, err := buildUpdateExpr(fields)
	if err != nil {
		return err
	}
	ce, err := buildConditionExpr(conds, true)
	if err != nil {
		return err
	}
	for k, v := range ce.Names {
		ue.Names[k] = v
	}
	for k, v := range ce.Values {
		ue.Values[k] = v
	}

	in := &dynamodb.UpdateItemInput{
		TableName:                           s.table(collection),
		Key:                                 strKey(key),
		UpdateExpression:                    aws.String(ue.Expr),
		ConditionExpression:                 aws.String(ce.Expr),
		ExpressionAttributeNames:            ue.Names,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}
	if len(ue.Values) > 0 {
		in.ExpressionAttributeValues = ue.Values
	}

	if _, err := s.api.UpdateItem(ctx, in); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// The old item is only returned when it exists.
			if len(ccf.Item) == 0 {
				return store.ErrNotFound
			}
			return store.ErrConditionFailed
		}
		return store.Unavailable("update", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if _, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: s.table(collection),
		Key:       strKey(key),
	}); err != nil {
		return store.Unavailable("delete", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, preds []store.Predicate, order *store.Order) ([]store.Record, error) {
	in := &dynamodb.ScanInput{
		TableName:      s.table(collection),
		ConsistentRead: aws.Bool(true),
	}
	if len(preds) > 0 {
		ce, err := buildConditionExpr(preds, false)
		if err != nil {
			return nil, err
		}
		in.FilterExpression = aws.String(ce.Expr)
		in.ExpressionAttributeNames = ce.Names
		in.ExpressionAttributeValues = ce.Values
	}

	var out []store.Record
	pager := dynamodb.NewScanPaginator(s.api, in)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			var missing *types.ResourceNotFoundException
			if errors.As(err, &missing) {
				return []store.Record{}, nil
			}
			return nil, store.Unavailable("query", err)
		}
		for _, item := range page.Items {
			rec, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}
	if out == nil {
		out = []store.Record{}
	}
	store.SortRecords(out, order)
	return out, nil
}

func decodeItem(item map[string]types.AttributeValue) (store.Record, error) {
	var rec map[string]any
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("dynamostore: unmarshal item: %w", err)
	}
	delete(rec, keyAttr)
	return store.Normalize(rec), nil
}

// updateExpr is a rendered update or condition expression.
type updateExpr struct {
	Expr   string
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// buildUpdateExpr renders fields as SET/REMOVE clauses. Keys are sorted so the
// output is deterministic.
func buildUpdateExpr(fields store.Record) (updateExpr, error) {
	ue := updateExpr{
		Names:  make(map[string]string),
		Values: make(map[string]types.AttributeValue),
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == keyAttr {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return updateExpr{}, errors.New("dynamostore: no fields to update")
	}
	sort.Strings(keys)

	var sets, removes []string
	for i, k := range keys {
		nameKey := fmt.Sprintf("#f%d", i)
		ue.Names[nameKey] = k
		if fields[k] == nil {
			removes = append(removes, nameKey)
			continue
		}
		valueKey := fmt.Sprintf(":v%d", i)
		av, err := attributevalue.Marshal(fields[k])
		if err != nil {
			return updateExpr{}, fmt.Errorf("dynamostore: marshal field %s: %w", k, err)
		}
		ue.Values[valueKey] = av
		sets = append(sets, nameKey+" = "+valueKey)
	}

	var parts []string
	if len(sets) > 0 {
		parts = append(parts, "SET "+strings.Join(sets, ", "))
	}
	if len(removes) > 0 {
		parts = append(parts, "REMOVE "+strings.Join(removes, ", "))
	}
	ue.Expr = strings.Join(parts, " ")
	return ue, nil
}

// buildConditionExpr renders preds joined by AND. When requireExists is set
// the expression also asserts the item exists.
func buildConditionExpr(preds []store.Predicate, requireExists bool) (updateExpr, error) {
	ce := updateExpr{
		Names:  make(map[string]string),
		Values: make(map[string]types.AttributeValue),
	}
	var clauses []string
	if requireExists {
		ce.Names["#pk"] = keyAttr
		clauses = append(clauses, "attribute_exists(#pk)")
	}

	for i, p := range preds {
		nameKey := fmt.Sprintf("#c%d", i)
		valueKey := fmt.Sprintf(":c%d", i)
		av, err := attributevalue.Marshal(p.Value)
		if err != nil {
			return updateExpr{}, fmt.Errorf("dynamostore: marshal condition %s: %w", p.Field, err)
		}
		ce.Names[nameKey] = p.Field
		ce.Values[valueKey] = av

		clause := nameKey + " " + p.Op.String() + " " + valueKey
		if p.Op == store.OpNe {
			// A missing attribute satisfies <> in every other backend.
			clause = "(attribute_not_exists(" + nameKey + ") OR " + clause + ")"
		}
		clauses = append(clauses, clause)
	}
	ce.Expr = strings.Join(clauses, " AND ")
	return ce, nil
}
