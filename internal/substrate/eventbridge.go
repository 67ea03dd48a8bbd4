package substrate

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

// eventBridgeAPI captures the subset of the AWS SDK we use so it can be
// mocked in tests.
type eventBridgeAPI interface {
	PutRule(ctx context.Context, params *eventbridge.PutRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutRuleOutput, error)
	PutTargets(ctx context.Context, params *eventbridge.PutTargetsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutTargetsOutput, error)
}

// EventBridgeScheduler registers recurring handler invocations as
// EventBridge rules targeting the handler's function ARN.
type EventBridgeScheduler struct {
	client     eventBridgeAPI
	prefix     string
	handlerARN func(handlerID string) string
}

func NewEventBridgeScheduler(ctx context.Context, cfg AWSConfig, prefix string, handlerARN func(string) string) (*EventBridgeScheduler, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newEventBridgeScheduler(eventbridge.NewFromConfig(awsCfg), prefix, handlerARN), nil
}

func newEventBridgeScheduler(client eventBridgeAPI, prefix string, handlerARN func(string) string) *EventBridgeScheduler {
	return &EventBridgeScheduler{client: client, prefix: prefix, handlerARN: handlerARN}
}

func (s *EventBridgeScheduler) InvokeOnSchedule(ctx context.Context, handlerID string, intervalMinutes int) error {
	if intervalMinutes <= 0 {
		return fmt.Errorf("interval must be positive, got %d", intervalMinutes)
	}
	expr := fmt.Sprintf("rate(%d minutes)", intervalMinutes)
	if intervalMinutes == 1 {
		expr = "rate(1 minute)"
	}
	return s.putRule(ctx, handlerID, expr)
}

func (s *EventBridgeScheduler) InvokeOnCron(ctx context.Context, handlerID, cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression is required")
	}
	return s.putRule(ctx, handlerID, fmt.Sprintf("cron(%s)", cronExpr))
}

func (s *EventBridgeScheduler) putRule(ctx context.Context, handlerID, scheduleExpr string) error {
	ruleName := fmt.Sprintf("%s-%s", s.prefix, handlerID)
	_, err := s.client.PutRule(ctx, &eventbridge.PutRuleInput{
		Name:               aws.String(ruleName),
		ScheduleExpression: aws.String(scheduleExpr),
		State:              ebtypes.RuleStateEnabled,
	})
	if err != nil {
		return &TransientError{Op: "put rule " + ruleName, Err: err}
	}
	_, err = s.client.PutTargets(ctx, &eventbridge.PutTargetsInput{
		Rule: aws.String(ruleName),
		Targets: []ebtypes.Target{
			{Id: aws.String(handlerID), Arn: aws.String(s.handlerARN(handlerID))},
		},
	})
	if err != nil {
		return &TransientError{Op: "put targets " + ruleName, Err: err}
	}
	return nil
}
