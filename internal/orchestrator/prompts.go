package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datachat-ai/datachat/internal/dataset"
	"github.com/datachat-ai/datachat/internal/dispatch"
	"github.com/datachat-ai/datachat/internal/ops"
)

// decideSystemPrompt frames turn 1: the backend sees the dataset
// profile and the operation tools, and either answers directly or
// requests calls.
func decideSystemPrompt(summary *dataset.Summary) string {
	var b strings.Builder
	b.WriteString("You are a data analysis assistant. The user has uploaded a tabular dataset; ")
	b.WriteString("its profile follows. Answer questions about the data. ")
	b.WriteString("When a question needs computation, cleaning, or a chart, call the provided tools; ")
	b.WriteString("otherwise answer directly. Call only the tools you need.\n\nDataset profile:\n")
	writeSummary(&b, summary)
	return b.String()
}

// synthesisSystemPrompt frames turn 2: operation results are in the
// conversation and the backend must produce the final narrative.
func synthesisSystemPrompt(summary *dataset.Summary) string {
	var b strings.Builder
	b.WriteString("You are a data analysis assistant. The requested operations have run and their ")
	b.WriteString("results are in the conversation. Write the final answer for the user: a concise ")
	b.WriteString("narrative interpreting the results. Mention any operation that failed and why it ")
	b.WriteString("matters. Do not request further operations.\n\nCurrent dataset profile:\n")
	writeSummary(&b, summary)
	return b.String()
}

func writeSummary(b *strings.Builder, summary *dataset.Summary) {
	data, err := json.Marshal(summary)
	if err != nil {
		fmt.Fprintf(b, "(profile unavailable: %v)", err)
		return
	}
	b.Write(data)
}

// invokeTranscript records the decide turn in the conversation so the
// synthesize turn sees what was requested and why.
func invokeTranscript(turn *dispatch.Turn) string {
	var b strings.Builder
	if turn.Rationale != "" {
		b.WriteString(turn.Rationale)
		b.WriteString("\n")
	}
	b.WriteString("Requested operations: ")
	names := make([]string, len(turn.Calls))
	for i, call := range turn.Calls {
		names[i] = call.Name
	}
	b.WriteString(strings.Join(names, ", "))
	return b.String()
}

// resultsPrompt renders the per-call outcomes for the synthesize turn.
// Failed calls are reported as such; their siblings' results stand.
func resultsPrompt(results []ops.CallResult) string {
	var b strings.Builder
	b.WriteString("Operation results:\n")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(&b, "\n## %s\ncould not perform %s: %v\n", r.Name, r.Name, r.Err)
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n%s\n", r.Name, r.Result.Summary())
	}
	return b.String()
}
