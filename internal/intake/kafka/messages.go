package kafka

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"shellbox/internal/executor"
	"shellbox/internal/intake"
)

const (
	messageTypeBatch = "batch"
	messageTypeDone  = "done"
)

type batchEnvelope struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Blocks []blockEnvelope `json:"blocks"`
}

type blockEnvelope struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

type resultEnvelope struct {
	ID         string    `json:"id"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Output     string    `json:"output,omitempty"`
	FirstFile  string    `json:"first_file,omitempty"`
	DurationMs *int64    `json:"duration_ms,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func decodeBatchMessage(msg kafkago.Message) (intake.Batch, error) {
	var envelope batchEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return intake.Batch{}, fmt.Errorf("decode message: %w", err)
	}

	msgType := envelope.Type
	if msgType == "" {
		msgType = messageTypeBatch
	}

	switch msgType {
	case messageTypeBatch:
		return envelope.toBatch(msg)
	case messageTypeDone:
		return intake.Batch{}, io.EOF
	default:
		return intake.Batch{}, fmt.Errorf("unknown message type %q", msgType)
	}
}

func (e batchEnvelope) toBatch(msg kafkago.Message) (intake.Batch, error) {
	if len(e.Blocks) == 0 {
		return intake.Batch{}, fmt.Errorf("batch message missing blocks")
	}

	blocks := make([]executor.CodeBlock, len(e.Blocks))
	for idx, block := range e.Blocks {
		if block.Language == "" {
			return intake.Batch{}, fmt.Errorf("block %d missing language", idx)
		}
		blocks[idx] = executor.CodeBlock{
			Language: block.Language,
			Code:     block.Code,
		}
	}

	batchID := e.ID
	if batchID == "" {
		batchID = string(msg.Key)
	}
	if batchID == "" {
		batchID = fmt.Sprintf("%s:%d", msg.Topic, msg.Offset)
	}

	return intake.Batch{
		ID:     batchID,
		Blocks: blocks,
	}, nil
}

func encodeReport(report intake.Report) ([]byte, error) {
	payload, err := json.Marshal(makeResultEnvelope(report))
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return payload, nil
}

func makeResultEnvelope(report intake.Report) resultEnvelope {
	envelope := resultEnvelope{
		ID:        report.Batch.ID,
		Timestamp: time.Now().UTC(),
	}

	if report.Run != nil {
		exit := report.Run.ExitCode
		envelope.ExitCode = &exit

		dur := report.Run.Duration.Milliseconds()
		envelope.DurationMs = &dur

		envelope.Output = report.Run.Output
		envelope.FirstFile = report.Run.FirstFile
		envelope.RunID = report.Run.ID
	}

	if report.Err != nil {
		envelope.Error = report.Err.Error()
	}

	return envelope
}
