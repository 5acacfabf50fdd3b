package hook

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"

	"github.com/arlberg/triage/internal/model"
)

// AnomalyNotifier posts a slack message when a finished batch contains
// validation anomalies.
type AnomalyNotifier struct {
	api             *slack.Client
	notifyChannelID string

	log *slog.Logger
}

func NewAnomalyNotifier(channelID, token string, log *slog.Logger) *AnomalyNotifier {
	return &AnomalyNotifier{
		api:             slack.New(token),
		notifyChannelID: channelID,
		log:             log,
	}
}

func (h *AnomalyNotifier) Name() string {
	return "slack-anomaly-notifier"
}

func (h *AnomalyNotifier) Init() error {
	_, err := h.api.AuthTest()
	if err != nil {
		return fmt.Errorf("invalid auth token: %w", err)
	}

	return nil
}

func (h *AnomalyNotifier) BatchFinishedAsync(report model.Report) {
	if len(report.Validation.Anomalies) == 0 {
		return
	}

	msg := strings.Builder{}

	msg.WriteString(fmt.Sprintf("Batch `%s` finished with %d inconsistent test case(s).",
		report.ExecutionID, len(report.Validation.Anomalies)))
	msg.WriteString("\n\n")
	msg.WriteString("Anomalies:\n")

	for _, a := range report.Validation.Anomalies {
		msg.WriteString(fmt.Sprintf("- %s: %s\n", a.TestCaseID, a.Description))
	}

	newMarkdownSection := slack.NewSectionBlock(
		slack.NewTextBlockObject(
			"mrkdwn",
			msg.String(),
			false, false,
		),
		nil, nil)

	_, _, err := h.api.PostMessage(h.notifyChannelID, slack.MsgOptionBlocks(newMarkdownSection))
	if err != nil {
		h.log.Error("unable to send slack message", "error", err)
	}
}
