package certificates

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const EventCertificateIssued = "certificate.issued"

// Notifier announces newly issued certificates. Failures never affect issuance.
type Notifier interface {
	CertificateIssued(ctx context.Context, cert *Certificate, courseTitle string) error
}

// IssuedEvent is the message body published for a new certificate.
type IssuedEvent struct {
	Type          string    `json:"type"`
	CertificateID string    `json:"certificate_id"`
	EnrollmentID  string    `json:"enrollment_id"`
	LearnerID     string    `json:"learner_id"`
	CourseID      string    `json:"course_id"`
	CourseTitle   string    `json:"course_title"`
	SerialNumber  string    `json:"serial_number"`
	LearnerName   string    `json:"learner_name"`
	IssuedAt      time.Time `json:"issued_at"`
}

// PublishAPI is the subset of the SNS client used here.
type PublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type snsNotifier struct {
	client   PublishAPI
	topicARN string
}

func NewSNSNotifier(client PublishAPI, topicARN string) Notifier {
	return &snsNotifier{client: client, topicARN: topicARN}
}

func (n *snsNotifier) CertificateIssued(ctx context.Context, cert *Certificate, courseTitle string) error {
	body, err := json.Marshal(IssuedEvent{
		Type:          EventCertificateIssued,
		CertificateID: cert.ID.String(),
		EnrollmentID:  cert.EnrollmentID.String(),
		LearnerID:     cert.LearnerID.String(),
		CourseID:      cert.CourseID.String(),
		CourseTitle:   courseTitle,
		SerialNumber:  cert.SerialNumber,
		LearnerName:   cert.LearnerNameSnapshot,
		IssuedAt:      cert.IssuedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(EventCertificateIssued)},
			"course_id":  {DataType: aws.String("String"), StringValue: aws.String(cert.CourseID.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", EventCertificateIssued, err)
	}
	return nil
}

type noopNotifier struct{}

// NewNoopNotifier returns a notifier that drops every event.
func NewNoopNotifier() Notifier { return noopNotifier{} }

func (noopNotifier) CertificateIssued(context.Context, *Certificate, string) error { return nil }
