package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/risk-cli/internal/evaluate"
)

// namedMetrics labels a set of scores, e.g. "validation".
type namedMetrics struct {
	Name    string           `json:"name" yaml:"name"`
	Metrics evaluate.Metrics `json:"metrics" yaml:"metrics"`
}

// writeScores renders scores as a table, JSON or YAML.
func writeScores(out io.Writer, scores []namedMetrics, format string) error {
	switch format {
	case "table", "":
		formatScoresTable(out, scores)
		return nil
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(scores), "encode json")
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(scores); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return eris.Wrap(enc.Close(), "encode yaml")
	default:
		return eris.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}

func formatScoresTable(out io.Writer, scores []namedMetrics) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SET\tROWS\tACCURACY\tPRECISION\tRECALL\tF1\tTP\tFP\tTN\tFN")
	_, _ = fmt.Fprintln(w, "---\t----\t--------\t---------\t------\t--\t--\t--\t--\t--")
	for _, s := range scores {
		m := s.Metrics
		_, _ = fmt.Fprintf(w, "%s\t%d\t%.4f\t%.4f\t%.4f\t%.4f\t%d\t%d\t%d\t%d\n",
			s.Name, m.Total(), m.Accuracy, m.Precision, m.Recall, m.F1, m.TP, m.FP, m.TN, m.FN)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of an id or checksum for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
