package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchAPI is the subset of the CloudWatch client used here.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
	PutMetricAlarm(ctx context.Context, params *cloudwatch.PutMetricAlarmInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricAlarmOutput, error)
}

// CloudWatchBackend publishes points to Amazon CloudWatch.
type CloudWatchBackend struct {
	client CloudWatchAPI
	region string
}

// NewCloudWatchBackend creates a backend for client. region is only used to
// build alarm ARNs.
func NewCloudWatchBackend(client CloudWatchAPI, region string) *CloudWatchBackend {
	return &CloudWatchBackend{client: client, region: region}
}

// PutMetricData implements Backend.
func (b *CloudWatchBackend) PutMetricData(ctx context.Context, namespace string, data []Datum) error {
	if len(data) == 0 {
		return nil
	}
	if len(data) > BatchSize {
		return fmt.Errorf("cloudwatch accepts at most %d points per call, got %d", BatchSize, len(data))
	}

	metricData := make([]cwtypes.MetricDatum, 0, len(data))
	for _, d := range data {
		metricData = append(metricData, cwtypes.MetricDatum{
			MetricName: aws.String(d.Name),
			Value:      aws.Float64(d.Value),
			Unit:       cwtypes.StandardUnit(d.Unit),
			Timestamp:  aws.Time(d.Timestamp),
			Dimensions: toCloudWatchDimensions(d.Dimensions),
		})
	}

	_, err := b.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(namespace),
		MetricData: metricData,
	})
	return err
}

// StatisticsQuery selects a metric time series.
type StatisticsQuery struct {
	Namespace  string
	MetricName string
	Start      time.Time
	End        time.Time

	// Period defaults to 5 minutes.
	Period time.Duration

	// Statistics defaults to Sum and Average.
	Statistics []string

	Dimensions map[string]string
}

// Datapoint is one aggregated value of a metric.
type Datapoint struct {
	Timestamp   time.Time
	Sum         float64
	Average     float64
	Minimum     float64
	Maximum     float64
	SampleCount float64
	Unit        string
}

// Statistics reads aggregated values of a metric.
func (b *CloudWatchBackend) Statistics(ctx context.Context, q StatisticsQuery) ([]Datapoint, error) {
	if q.Namespace == "" {
		q.Namespace = DefaultNamespace
	}
	if q.Period <= 0 {
		q.Period = 5 * time.Minute
	}
	if len(q.Statistics) == 0 {
		q.Statistics = []string{string(cwtypes.StatisticSum), string(cwtypes.StatisticAverage)}
	}

	stats := make([]cwtypes.Statistic, len(q.Statistics))
	for i, s := range q.Statistics {
		stats[i] = cwtypes.Statistic(s)
	}

	out, err := b.client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(q.Namespace),
		MetricName: aws.String(q.MetricName),
		StartTime:  aws.Time(q.Start),
		EndTime:    aws.Time(q.End),
		Period:     aws.Int32(int32(q.Period.Seconds())),
		Statistics: stats,
		Dimensions: toCloudWatchDimensions(Dimensions(q.Dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("get statistics for %s: %w", q.MetricName, err)
	}

	points := make([]Datapoint, 0, len(out.Datapoints))
	for _, dp := range out.Datapoints {
		points = append(points, Datapoint{
			Timestamp:   aws.ToTime(dp.Timestamp),
			Sum:         aws.ToFloat64(dp.Sum),
			Average:     aws.ToFloat64(dp.Average),
			Minimum:     aws.ToFloat64(dp.Minimum),
			Maximum:     aws.ToFloat64(dp.Maximum),
			SampleCount: aws.ToFloat64(dp.SampleCount),
			Unit:        string(dp.Unit),
		})
	}
	return points, nil
}

// AlarmSpec describes a threshold alarm on a metric.
type AlarmSpec struct {
	Name       string
	Namespace  string
	MetricName string
	Threshold  float64

	// ComparisonOperator defaults to GreaterThanThreshold.
	ComparisonOperator string

	// EvaluationPeriods defaults to 2.
	EvaluationPeriods int32

	// Period defaults to 5 minutes.
	Period time.Duration

	// Statistic defaults to Sum.
	Statistic string

	Dimensions map[string]string

	// Actions are notified when the alarm fires, typically SNS topic ARNs.
	Actions []string
}

// CreateAlarm creates or updates an alarm and returns its ARN.
func (b *CloudWatchBackend) CreateAlarm(ctx context.Context, spec AlarmSpec) (string, error) {
	if spec.Name == "" || spec.MetricName == "" {
		return "", fmt.Errorf("alarm name and metric name are required")
	}
	if spec.Namespace == "" {
		spec.Namespace = DefaultNamespace
	}
	if spec.ComparisonOperator == "" {
		spec.ComparisonOperator = string(cwtypes.ComparisonOperatorGreaterThanThreshold)
	}
	if spec.EvaluationPeriods <= 0 {
		spec.EvaluationPeriods = 2
	}
	if spec.Period <= 0 {
		spec.Period = 5 * time.Minute
	}
	if spec.Statistic == "" {
		spec.Statistic = string(cwtypes.StatisticSum)
	}

	input := &cloudwatch.PutMetricAlarmInput{
		AlarmName:          aws.String(spec.Name),
		AlarmDescription:   aws.String(fmt.Sprintf("Alarm for %s in %s", spec.MetricName, spec.Namespace)),
		ComparisonOperator: cwtypes.ComparisonOperator(spec.ComparisonOperator),
		EvaluationPeriods:  aws.Int32(spec.EvaluationPeriods),
		MetricName:         aws.String(spec.MetricName),
		Namespace:          aws.String(spec.Namespace),
		Period:             aws.Int32(int32(spec.Period.Seconds())),
		Statistic:          cwtypes.Statistic(spec.Statistic),
		Threshold:          aws.Float64(spec.Threshold),
		ActionsEnabled:     aws.Bool(true),
		Unit:               cwtypes.StandardUnitNone,
		Dimensions:         toCloudWatchDimensions(Dimensions(spec.Dimensions)),
		AlarmActions:       spec.Actions,
	}
	if _, err := b.client.PutMetricAlarm(ctx, input); err != nil {
		return "", fmt.Errorf("create alarm %s: %w", spec.Name, err)
	}

	return fmt.Sprintf("arn:aws:cloudwatch:%s:*:alarm:%s", b.region, spec.Name), nil
}

func toCloudWatchDimensions(dims []Dimension) []cwtypes.Dimension {
	if len(dims) == 0 {
		return nil
	}
	out := make([]cwtypes.Dimension, len(dims))
	for i, d := range dims {
		out[i] = cwtypes.Dimension{Name: aws.String(d.Name), Value: aws.String(d.Value)}
	}
	return out
}
