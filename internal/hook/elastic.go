package hook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/arlberg/triage/internal/model"
)

// ReportIndexHook indexes completed batch reports into elasticsearch so they
// can be queried and visualized alongside application logs.
type ReportIndexHook struct {
	client *elasticsearch.Client
	index  string

	log *slog.Logger
}

func NewReportIndexHook(addresses []string, index string, log *slog.Logger) (*ReportIndexHook, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	return &ReportIndexHook{
		client: client,
		index:  index,
		log:    log,
	}, nil
}

func (h *ReportIndexHook) Name() string {
	return "elastic-report-index"
}

func (h *ReportIndexHook) Init() error {
	res, err := h.client.Info()
	if err != nil {
		return fmt.Errorf("connecting to elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("connecting to elasticsearch: %s", res.Status())
	}

	return nil
}

func (h *ReportIndexHook) BatchFinishedAsync(report model.Report) {
	body, err := json.Marshal(report)
	if err != nil {
		h.log.Error("unable to marshal report", "execution-id", report.ExecutionID, "error", err)
		return
	}

	res, err := h.client.Index(
		h.index,
		bytes.NewReader(body),
		h.client.Index.WithDocumentID(report.ExecutionID),
	)
	if err != nil {
		h.log.Error("indexing report failed", "execution-id", report.ExecutionID, "error", err)
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		h.log.Error("indexing report failed", "execution-id", report.ExecutionID, "status", res.Status())
	}
}
