package certificates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const serialIndexName = "serial_number-index"

// DynamoAPI is the subset of the DynamoDB client used by the ledger.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// certificateItem is the DynamoDB representation of a Certificate, keyed by enrollment_id.
type certificateItem struct {
	EnrollmentID        string `dynamodbav:"enrollment_id"`
	ID                  string `dynamodbav:"id"`
	LearnerID           string `dynamodbav:"learner_id"`
	CourseID            string `dynamodbav:"course_id"`
	SerialNumber        string `dynamodbav:"serial_number"`
	LearnerNameSnapshot string `dynamodbav:"learner_name_snapshot"`
	IssuedAt            string `dynamodbav:"issued_at"`
}

func toItem(c *Certificate) certificateItem {
	return certificateItem{
		EnrollmentID:        c.EnrollmentID.String(),
		ID:                  c.ID.String(),
		LearnerID:           c.LearnerID.String(),
		CourseID:            c.CourseID.String(),
		SerialNumber:        c.SerialNumber,
		LearnerNameSnapshot: c.LearnerNameSnapshot,
		IssuedAt:            c.IssuedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (i certificateItem) toCertificate() (*Certificate, error) {
	var (
		c   Certificate
		err error
	)
	if c.EnrollmentID, err = uuid.Parse(i.EnrollmentID); err != nil {
		return nil, fmt.Errorf("invalid enrollment_id: %w", err)
	}
	if c.ID, err = uuid.Parse(i.ID); err != nil {
		return nil, fmt.Errorf("invalid id: %w", err)
	}
	if c.LearnerID, err = uuid.Parse(i.LearnerID); err != nil {
		return nil, fmt.Errorf("invalid learner_id: %w", err)
	}
	if c.CourseID, err = uuid.Parse(i.CourseID); err != nil {
		return nil, fmt.Errorf("invalid course_id: %w", err)
	}
	if c.IssuedAt, err = time.Parse(time.RFC3339Nano, i.IssuedAt); err != nil {
		return nil, fmt.Errorf("invalid issued_at: %w", err)
	}
	c.SerialNumber = i.SerialNumber
	c.LearnerNameSnapshot = i.LearnerNameSnapshot
	return &c, nil
}

// DynamoLedger stores certificates in DynamoDB. A conditional put on
// enrollment_id is the atomic check-and-insert. Numbers come from an atomic
// counter item, so a lost race leaves a gap in the sequence.
type DynamoLedger struct {
	client        DynamoAPI
	table         string
	sequenceTable string
	prefix        string
	now           func() time.Time
}

func NewDynamoLedger(client DynamoAPI, table, sequenceTable, prefix string) *DynamoLedger {
	return &DynamoLedger{
		client:        client,
		table:         table,
		sequenceTable: sequenceTable,
		prefix:        prefix,
		now:           time.Now,
	}
}

func (l *DynamoLedger) Find(ctx context.Context, enrollmentID uuid.UUID) (*Certificate, error) {
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(l.table),
		Key:            map[string]types.AttributeValue{"enrollment_id": &types.AttributeValueMemberS{Value: enrollmentID.String()}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get certificate: %w", ErrStorage, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	return unmarshalCertificate(out.Item)
}

func (l *DynamoLedger) Create(ctx context.Context, draft Draft) (*Certificate, error) {
	issuedAt := l.now().UTC()
	seq, err := l.nextSequence(ctx, sequenceName(l.prefix, issuedAt.Year()))
	if err != nil {
		return nil, err
	}

	cert := &Certificate{
		ID:                  uuid.New(),
		EnrollmentID:        draft.EnrollmentID,
		LearnerID:           draft.LearnerID,
		CourseID:            draft.CourseID,
		SerialNumber:        FormatSerial(l.prefix, issuedAt.Year(), draft.CourseID, draft.LearnerID, seq),
		LearnerNameSnapshot: draft.LearnerName,
		IssuedAt:            issuedAt,
	}

	item, err := attributevalue.MarshalMap(toItem(cert))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal certificate: %w", err)
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(enrollment_id)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("%w: failed to put certificate: %w", ErrStorage, err)
	}
	return cert, nil
}

func (l *DynamoLedger) nextSequence(ctx context.Context, name string) (int64, error) {
	update := expression.Add(expression.Name("value"), expression.Value(1))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return 0, fmt.Errorf("failed to build expression: %w", err)
	}

	out, err := l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(l.sequenceTable),
		Key:                       map[string]types.AttributeValue{"name": &types.AttributeValueMemberS{Value: name}},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to advance sequence %s: %w", ErrStorage, name, err)
	}

	attr, ok := out.Attributes["value"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("%w: sequence %s returned no value", ErrStorage, name)
	}
	value, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: sequence %s returned %q", ErrStorage, name, attr.Value)
	}
	return value, nil
}

func (l *DynamoLedger) FindBySerial(ctx context.Context, serial string) (*Certificate, error) {
	keyEx := expression.Key("serial_number").Equal(expression.Value(serial))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	out, err := l.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(l.table),
		IndexName:                 aws.String(serialIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query certificate by serial: %w", ErrStorage, err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	return unmarshalCertificate(out.Items[0])
}

func (l *DynamoLedger) List(ctx context.Context, filter ListFilter) ([]Certificate, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(l.table)}

	var (
		cond    expression.ConditionBuilder
		hasCond bool
	)
	and := func(c expression.ConditionBuilder) {
		if hasCond {
			cond = cond.And(c)
		} else {
			cond, hasCond = c, true
		}
	}
	if filter.CourseID != nil {
		and(expression.Name("course_id").Equal(expression.Value(filter.CourseID.String())))
	}
	if filter.From != nil {
		and(expression.Name("issued_at").GreaterThanEqual(expression.Value(filter.From.UTC().Format(time.RFC3339Nano))))
	}
	if filter.To != nil {
		and(expression.Name("issued_at").LessThan(expression.Value(filter.To.UTC().Format(time.RFC3339Nano))))
	}
	if hasCond {
		expr, err := expression.NewBuilder().WithFilter(cond).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build expression: %w", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	var certs []Certificate
	paginator := dynamodb.NewScanPaginator(l.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan certificates: %w", ErrStorage, err)
		}
		for _, item := range page.Items {
			cert, err := unmarshalCertificate(item)
			if err != nil {
				return nil, err
			}
			certs = append(certs, *cert)
		}
	}

	// Scan order is arbitrary, so the limit applies after sorting.
	certs = sortCertificates(certs)
	if filter.Limit > 0 && len(certs) > filter.Limit {
		certs = certs[:filter.Limit]
	}
	return certs, nil
}

func unmarshalCertificate(av map[string]types.AttributeValue) (*Certificate, error) {
	var item certificateItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certificate: %w", err)
	}
	return item.toCertificate()
}

func sortCertificates(certs []Certificate) []Certificate {
	sort.SliceStable(certs, func(i, j int) bool {
		if !certs[i].IssuedAt.Equal(certs[j].IssuedAt) {
			return certs[i].IssuedAt.Before(certs[j].IssuedAt)
		}
		return certs[i].SerialNumber < certs[j].SerialNumber
	})
	return certs
}
