// Package queue carries report-generation jobs between the automation
// dispatcher and the report worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/adpulse/adpulse/internal/domain"
)

// ReportJob asks the worker to build one report for a workspace.
type ReportJob struct {
	ID            string            `json:"id"`
	WorkspaceID   string            `json:"workspace_id"`
	AutomationID  string            `json:"automation_id,omitempty"`
	Kind          domain.ReportKind `json:"kind"`
	PeriodStart   time.Time         `json:"period_start"`
	PeriodEnd     time.Time         `json:"period_end"`
	ReceiptHandle string            `json:"-"`
	CreatedAt     time.Time         `json:"created_at"`
}

type Queue interface {
	Enqueue(ctx context.Context, job ReportJob) error
	Dequeue(ctx context.Context, maxJobs int) ([]ReportJob, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type SQSQueue struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSQueue(ctx context.Context, region, queueURL string) (*SQSQueue, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewSQSQueueWithConfig(cfg, queueURL), nil
}

func NewSQSQueueWithConfig(cfg aws.Config, queueURL string) *SQSQueue {
	return &SQSQueue{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}
}

func (q *SQSQueue) Enqueue(ctx context.Context, job ReportJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"WorkspaceID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(job.WorkspaceID),
			},
			"JobID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(job.ID),
			},
		},
	}

	_, err = q.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

func (q *SQSQueue) Dequeue(ctx context.Context, maxJobs int) ([]ReportJob, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.queueURL),
		MaxNumberOfMessages:   int32(maxJobs),
		WaitTimeSeconds:       20,
		MessageAttributeNames: []string{"All"},
	}

	result, err := q.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("receive messages: %w", err)
	}

	jobs := make([]ReportJob, 0, len(result.Messages))
	for _, msg := range result.Messages {
		var job ReportJob
		if err := json.Unmarshal([]byte(*msg.Body), &job); err != nil {
			slog.Warn("failed to unmarshal report job", "error", err)
			continue
		}
		if msg.ReceiptHandle != nil {
			job.ReceiptHandle = *msg.ReceiptHandle
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	input := &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	}

	_, err := q.client.DeleteMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	return nil
}

// InMemoryQueue backs local development and tests.
type InMemoryQueue struct {
	mu   sync.Mutex
	jobs []ReportJob
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		jobs: make([]ReportJob, 0),
	}
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, job ReportJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context, maxJobs int) ([]ReportJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := maxJobs
	if count > len(q.jobs) {
		count = len(q.jobs)
	}

	result := make([]ReportJob, count)
	copy(result, q.jobs[:count])
	q.jobs = q.jobs[count:]

	return result, nil
}

func (q *InMemoryQueue) Delete(ctx context.Context, receiptHandle string) error {
	return nil
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
