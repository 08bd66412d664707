// Package notify sends post-run summary emails through SES so
// operators hear about each sync without tailing logs.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/osteele/liquid"

	appconfig "github.com/chapterhq/roster-sync/internal/config"
)

const summaryTemplate = `Roster sync finished for batch {{ batch }}.

Kind:            {{ kind }}
New members:     {{ new_members }}
Updated members: {{ updated_members }}
Removed members: {{ removed_members }}
Duration:        {{ duration }}
{% if dry_run %}
This was a DRY RUN. No directory or identity writes were made.
{% endif %}{% if error != "" %}
The run ended with an error: {{ error }}
{% endif %}`

// Summary is the payload rendered into the notification body.
type Summary struct {
	Batch          string
	Kind           string
	NewMembers     int
	UpdatedMembers int
	RemovedMembers int
	DryRun         bool
	Error          string
	Duration       time.Duration
}

// SESAPI is the slice of the SES v2 client the notifier uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Notifier renders and sends run summaries.
type Notifier struct {
	client SESAPI
	engine *liquid.Engine
	tmpl   *liquid.Template
	from   string
	to     []string
}

// NewNotifier builds an SES-backed notifier.
func NewNotifier(ctx context.Context, cfg appconfig.NotifyConfig) (*Notifier, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewNotifierWithClient(sesv2.NewFromConfig(awsCfg), cfg)
}

// NewNotifierWithClient wires an existing SES client, used by tests.
func NewNotifierWithClient(client SESAPI, cfg appconfig.NotifyConfig) (*Notifier, error) {
	engine := liquid.NewEngine()
	tmpl, err := engine.ParseString(summaryTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing summary template: %w", err)
	}
	return &Notifier{
		client: client,
		engine: engine,
		tmpl:   tmpl,
		from:   cfg.FromEmail,
		to:     cfg.ToEmails,
	}, nil
}

// Send emails the run summary to the configured recipients.
func (n *Notifier) Send(ctx context.Context, summary Summary) error {
	body, err := n.render(summary)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Roster sync %s: batch %s", summary.Kind, summary.Batch)
	if summary.Error != "" {
		subject = fmt.Sprintf("Roster sync %s FAILED: batch %s", summary.Kind, summary.Batch)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination: &types.Destination{
			ToAddresses: n.to,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	}

	if _, err := n.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("sending summary email: %w", err)
	}
	log.Printf("notify: sent %s summary for batch %s to %d recipients",
		summary.Kind, summary.Batch, len(n.to))
	return nil
}

func (n *Notifier) render(summary Summary) (string, error) {
	bindings := map[string]interface{}{
		"batch":           summary.Batch,
		"kind":            summary.Kind,
		"new_members":     summary.NewMembers,
		"updated_members": summary.UpdatedMembers,
		"removed_members": summary.RemovedMembers,
		"dry_run":         summary.DryRun,
		"error":           summary.Error,
		"duration":        summary.Duration.Round(time.Second).String(),
	}
	body, err := n.tmpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("rendering summary template: %w", err)
	}
	return body, nil
}
