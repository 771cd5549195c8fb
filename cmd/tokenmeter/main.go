// tokenmeter meters the token usage and cost of LLM agents calling models
// on Amazon Bedrock, and reports on what was spent.
//
// Usage:
//
//	# Make one metered call
//	tokenmeter invoke --agent triage --incident INC-42 --prompt "Summarise the alert"
//
//	# Cost report for a day
//	tokenmeter report daily --date 2025-01-15
//
//	# Daily cost trend with a chart
//	tokenmeter trends --start 2025-01-01 --end 2025-01-31 --chart
//
//	# Fail with exit code 3 when a cost threshold is exceeded
//	tokenmeter alerts check
//
//	# Create the DynamoDB table and CloudWatch alarms
//	tokenmeter store init
package main

import "os"

func main() {
	os.Exit(Execute())
}
