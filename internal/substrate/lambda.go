package substrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// AWSConfig captures the configuration necessary to talk to the AWS substrate.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// LoadAWSConfig resolves SDK configuration for any AWS-backed
// collaborator: region required, static credentials optional.
func LoadAWSConfig(ctx context.Context, cfg AWSConfig) (aws.Config, error) {
	if cfg.Region == "" {
		return aws.Config{}, errors.New("aws region is required")
	}
	loadOpts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// lambdaAPI captures the subset of the AWS SDK we use so it can be mocked in tests.
type lambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaInvoker runs handlers as Lambda functions. Handler ids map to
// function names as "<prefix>-<handlerID>".
type LambdaInvoker struct {
	client lambdaAPI
	prefix string
}

func NewLambdaInvoker(ctx context.Context, cfg AWSConfig, prefix string) (*LambdaInvoker, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newLambdaInvoker(lambda.NewFromConfig(awsCfg), prefix), nil
}

func newLambdaInvoker(client lambdaAPI, prefix string) *LambdaInvoker {
	return &LambdaInvoker{client: client, prefix: prefix}
}

func (l *LambdaInvoker) functionName(handlerID string) string {
	if l.prefix == "" {
		return handlerID
	}
	return l.prefix + "-" + handlerID
}

func (l *LambdaInvoker) InvokeNow(ctx context.Context, handlerID string, payload []byte) ([]byte, error) {
	out, err := l.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(l.functionName(handlerID)),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		// SDK-level failures (timeouts, throttling, unavailability) are
		// retryable; handler-level failures below are not.
		return nil, &TransientError{Op: "invoke " + handlerID, Err: err}
	}
	if out.FunctionError != nil {
		return out.Payload, fmt.Errorf("handler %s failed: %s", handlerID, aws.ToString(out.FunctionError))
	}
	return out.Payload, nil
}
