package cost

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"
)

// WriteSeedsJSON streams seed records as newline-delimited JSON.
func WriteSeedsJSON(w io.Writer, seeds []SeedRecord) error {
	enc := json.NewEncoder(w)
	for _, s := range seeds {
		if err := enc.Encode(s); err != nil {
			return err
		}
	}
	return nil
}

// WriteSeedsCSV writes seed records as CSV with a header row. The nested cost
// analysis is flattened to its total.
func WriteSeedsCSV(w io.Writer, seeds []SeedRecord) error {
	cw := csv.NewWriter(w)
	header := []string{
		"task_id", "question", "expected_answer", "task_type", "complexity",
		"requires_tool", "source", "created_at", "synthesis_cost_usd",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range seeds {
		row := []string{
			s.TaskID,
			s.Question,
			s.ExpectedAnswer,
			s.TaskType,
			s.Complexity,
			strconv.FormatBool(s.RequiresTool),
			s.Source,
			s.CreatedAt.Format(time.RFC3339),
			strconv.FormatFloat(s.SynthesisCostAnalysis.TotalSynthesisCostUSD, 'f', 6, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRecordsCSV writes per-call accounting records as CSV with a header row.
func WriteRecordsCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	header := []string{"at", "phase", "provider", "model", "input_tokens", "output_tokens", "usd", "estimated"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.At.Format(time.RFC3339),
			string(r.Phase),
			r.Provider,
			r.Model,
			strconv.Itoa(r.InputTokens),
			strconv.Itoa(r.OutputTokens),
			strconv.FormatFloat(r.USD, 'f', 6, 64),
			strconv.FormatBool(r.Estimated),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
