package app

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"

	"github.com/Masterminds/sprig/v3"

	"expiry_notifier/internal/domain/account"
)

type notificationParams struct {
	HelpdeskAddress string
	Records         []account.Record
}

var (
	//go:embed templates/notification.html
	notificationTemplateRaw string

	notificationTemplate = template.Must(template.New("notification").Funcs(sprig.HtmlFuncMap()).Parse(notificationTemplateRaw))
)

// RenderBatch builds the HTML body sent to the batch's approver. It performs
// no I/O and gives the same output for the same batch.
func RenderBatch(batch account.Batch, helpdeskAddress string) (string, error) {
	var b bytes.Buffer
	err := notificationTemplate.Execute(&b, notificationParams{
		HelpdeskAddress: helpdeskAddress,
		Records:         batch.Records,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render notification for %s: %w", batch.ApproverEmail, err)
	}
	return b.String(), nil
}
