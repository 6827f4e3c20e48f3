package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riftrewind/rewindx/pkg/utils"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	taskqueuepb "go.temporal.io/api/taskqueue/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/durationpb"
)

// DefaultNamespace holds every sync workflow.
const DefaultNamespace = "rewind"

type Client struct {
	TClient   client.Client
	Namespace string
	HostPort  string
	// Queues are the task queues reported by Health.
	Queues []string
}

// Health reports the connection and the pollers seen per queue.
type Health struct {
	ConnectionOK bool           `json:"connection_ok"`
	Pollers      map[string]int `json:"pollers"`
}

// NewClient connects using TEMPORAL_HOSTPORT and TEMPORAL_NAMESPACE.
func NewClient(ctx context.Context, logger *zap.Logger, queues ...string) (*Client, error) {
	host := utils.Env("TEMPORAL_HOSTPORT", "localhost:7233")
	ns := utils.Env("TEMPORAL_NAMESPACE", DefaultNamespace)

	if utils.EnvBool("TEMPORAL_ENSURE_NAMESPACE", true) {
		retention := utils.EnvDuration("TEMPORAL_RETENTION", 72*time.Hour)
		if err := EnsureNamespace(ctx, logger, host, ns, retention); err != nil {
			return nil, err
		}
	}

	logger.Info("Connecting to Temporal", zap.String("host", host), zap.String("namespace", ns))
	tClient, err := Dial(ctx, host, ns, NewZapAdapter(logger))
	if err != nil {
		return nil, err
	}

	if _, err = tClient.CheckHealth(ctx, nil); err != nil {
		tClient.Close()
		return nil, err
	}

	return &Client{TClient: tClient, Namespace: ns, HostPort: host, Queues: queues}, nil
}

// Dial connects to Temporal using the provided hostPort and namespace.
func Dial(ctx context.Context, hostPort, namespace string, logger log.Logger) (client.Client, error) {
	return client.DialContext(
		ctx,
		client.Options{
			HostPort:  hostPort,
			Namespace: namespace,
			Logger:    logger,
		},
	)
}

// EnsureNamespace registers namespace with the given retention when it does not exist yet.
func EnsureNamespace(ctx context.Context, logger *zap.Logger, hostPort, namespace string, retention time.Duration) error {
	nsClient, err := client.NewNamespaceClient(client.Options{HostPort: hostPort, Logger: NewZapAdapter(logger)})
	if err != nil {
		return fmt.Errorf("failed to create namespace client: %w", err)
	}
	defer nsClient.Close()

	for attempt := 0; attempt < 5; attempt++ {
		_, err = nsClient.Describe(ctx, namespace)
		if err == nil {
			return nil
		}
		var notFound *serviceerror.NamespaceNotFound
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to describe namespace: %w", err)
		}
		if attempt == 0 {
			logger.Info("Creating Temporal namespace", zap.String("namespace", namespace))
			err = nsClient.Register(ctx, &workflowservice.RegisterNamespaceRequest{
				Namespace:                        namespace,
				WorkflowExecutionRetentionPeriod: durationpb.New(retention),
			})
			var exists *serviceerror.NamespaceAlreadyExists
			if err != nil && !errors.As(err, &exists) {
				return fmt.Errorf("failed to register namespace: %w", err)
			}
		}
		// registration is eventually visible
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return fmt.Errorf("namespace %s not visible after registration", namespace)
}

// Close closes the underlying client.
func (c *Client) Close() {
	c.TClient.Close()
}

// Health describes every configured queue. A failing describe leaves that queue out.
func (c *Client) Health(ctx context.Context) (Health, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if _, err := c.TClient.CheckHealth(ctx, nil); err != nil {
		return Health{}, err
	}
	h := Health{ConnectionOK: true, Pollers: map[string]int{}}
	svc := c.TClient.WorkflowService()
	if svc == nil {
		return h, nil
	}
	for _, q := range c.Queues {
		rep, err := svc.DescribeTaskQueue(ctx, &workflowservice.DescribeTaskQueueRequest{
			Namespace:     c.Namespace,
			TaskQueue:     &taskqueuepb.TaskQueue{Name: q},
			TaskQueueType: enums.TASK_QUEUE_TYPE_ACTIVITY,
		})
		if err == nil {
			h.Pollers[q] = len(rep.GetPollers())
		}
	}
	return h, nil
}

// ZapAdapter lets the Temporal SDK log through zap.
type ZapAdapter struct{ *zap.SugaredLogger }

// NewZapAdapter wraps logger; the sugared form forwards Temporal's keyvals as fields.
func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{logger.Sugar()}
}

func (z *ZapAdapter) Debug(msg string, keyvals ...interface{}) { z.Debugw(msg, keyvals...) }
func (z *ZapAdapter) Info(msg string, keyvals ...interface{})  { z.Infow(msg, keyvals...) }
func (z *ZapAdapter) Warn(msg string, keyvals ...interface{})  { z.Warnw(msg, keyvals...) }
func (z *ZapAdapter) Error(msg string, keyvals ...interface{}) { z.Errorw(msg, keyvals...) }
