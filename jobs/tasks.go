package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskArchiveSweep archives FINISHED orders.
	TaskArchiveSweep = "orders:archive_sweep"
	// TaskOrderBill mails a provider the bill of its open order.
	TaskOrderBill = "mail:order_bill"
)

// OrderBillPayload identifies the bill to mail.
type OrderBillPayload struct {
	ProviderName string `json:"provider_name"`
	Subject      string `json:"subject"`
}

// NewArchiveSweepTask creates the task registered on the scheduler.
func NewArchiveSweepTask() *asynq.Task {
	return asynq.NewTask(TaskArchiveSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(0))
}

// NewOrderBillTask constructs an Asynq task mailing one provider bill.
func NewOrderBillTask(payload OrderBillPayload) (*asynq.Task, error) {
	if payload.ProviderName == "" {
		return nil, errors.New("jobs: order bill needs a provider")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderBill, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}
