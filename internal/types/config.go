package types

type RunMode string

const (
	// ModeLocal runs the API server and the event router in one process
	ModeLocal RunMode = "local"
	// ModeAPI is the mode for running just the API server
	ModeAPI RunMode = "api"
	// ModeConsumer runs only the event router and the payment expiry sweep
	ModeConsumer RunMode = "consumer"
	// ModeAWSLambdaAPI is the mode for running the API server in AWS Lambda
	ModeAWSLambdaAPI RunMode = "aws_lambda_api"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)
