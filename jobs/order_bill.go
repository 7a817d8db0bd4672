package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/sage-erp/pharmacy/internal/catalog"
	jobmetrics "github.com/sage-erp/pharmacy/internal/jobs"
	"github.com/sage-erp/pharmacy/internal/orders"
	"github.com/sage-erp/pharmacy/internal/shared"
)

// BillSource renders the bill of a provider's open order.
type BillSource interface {
	RenderBill(ctx context.Context, providerName string) (orders.Bill, []byte, error)
}

// ProviderDirectory resolves provider contact details.
type ProviderDirectory interface {
	ProviderByName(ctx context.Context, name string) (catalog.Provider, error)
}

// Attachment is a file sent along a message.
type Attachment struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Message is an outgoing email.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// OrderBillJob mails a provider the PDF bill of its open order.
type OrderBillJob struct {
	Bills     BillSource
	Providers ProviderDirectory
	Mailer    Mailer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewOrderBillJob constructs the job handler.
func NewOrderBillJob(bills BillSource, providers ProviderDirectory, mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *OrderBillJob {
	return &OrderBillJob{Bills: bills, Providers: providers, Mailer: mailer, Logger: logger, Metrics: metrics}
}

// Handle renders and sends one bill. Missing providers, orders or an
// unusable address are not retried.
func (j *OrderBillJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Bills == nil || j.Providers == nil || j.Mailer == nil {
		return errors.New("order bill: dependencies not configured")
	}
	var payload OrderBillPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("order bill payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskOrderBill)
	err := j.send(ctx, payload)
	if err != nil {
		j.log().Error("order bill", slog.String("provider", payload.ProviderName), slog.Any("error", err))
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrValidation) {
			err = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
	}
	return tracker.End(err)
}

func (j *OrderBillJob) send(ctx context.Context, payload OrderBillPayload) error {
	provider, err := j.Providers.ProviderByName(ctx, payload.ProviderName)
	if err != nil {
		return err
	}
	if provider.Email == "" {
		return fmt.Errorf("provider %s has no email: %w", provider.Name, shared.ErrValidation)
	}
	bill, pdf, err := j.Bills.RenderBill(ctx, payload.ProviderName)
	if err != nil {
		return err
	}
	subject := payload.Subject
	if subject == "" {
		subject = fmt.Sprintf("Bon de commande n°%d", bill.OrderID)
	}
	msg := Message{
		To:      provider.Email,
		Subject: subject,
		Body:    fmt.Sprintf("Bonjour,\n\nVeuillez trouver ci-joint notre commande n°%d (%s TTC).\n", bill.OrderID, bill.Totals.WithTax.StringFixed(2)),
		Attachments: []Attachment{
			{Filename: "facture.pdf", ContentType: "application/pdf", Body: pdf},
		},
	}
	if err := j.Mailer.Send(ctx, msg); err != nil {
		return err
	}
	j.log().Info("order bill sent", slog.String("provider", provider.Name), slog.Int64("order_id", bill.OrderID))
	return nil
}

func (j *OrderBillJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
