package analysis

import (
	"fmt"
	"strings"
	"time"

	"echowatch/internal/ledger"
)

const systemPrompt = `You analyze batches of transcribed public-safety radio calls.
Identify notable incidents (fires, crashes, medical emergencies, violent crime,
hazardous materials, missing persons, large police responses) and rate how
serious the batch is overall on a 0-10 scale, where 0 is routine traffic and 10
is a mass-casualty or life-threatening emergency in progress.

Transcripts are machine generated and noisy. Do not invent details that are not
supported by the calls.

Respond with JSON only, using exactly this shape:
{"overall_severity": <number 0-10>,
 "summary": "<one or two sentences>",
 "incidents": [{"type": "<short category>", "location": "<place or empty>",
                "severity": <number 0-10>, "details": "<one sentence>"}]}
Use an empty incidents array when nothing notable happened.`

const blankTranscript = "(no intelligible speech)"

// buildUserPrompt renders the pending calls oldest first, one per line.
func buildUserPrompt(calls []ledger.Call) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d radio calls follow.\n", len(calls))
	for _, call := range calls {
		text := strings.Join(strings.Fields(call.Transcript), " ")
		if text == "" {
			text = blankTranscript
		}
		b.WriteString("[")
		b.WriteString(call.ReceivedAt.UTC().Format(time.DateTime))
		b.WriteString("]")
		if tg := strings.TrimSpace(call.Talkgroup); tg != "" {
			b.WriteString(" (")
			b.WriteString(tg)
			b.WriteString(")")
		}
		b.WriteString(" ")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}
