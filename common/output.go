package common

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/JeffreyRichter/enum/enum"
)

var EOutputMessageType = OutputMessageType(0)

// OutputMessageType defines the nature of the output, ex: progress report, job summary, or error.
type OutputMessageType uint8

func (OutputMessageType) Init() OutputMessageType     { return OutputMessageType(0) } // simple print, allowed to float up
func (OutputMessageType) Info() OutputMessageType     { return OutputMessageType(1) } // simple print, allowed to float up
func (OutputMessageType) Progress() OutputMessageType { return OutputMessageType(2) } // reprinted on the same line repeatedly
func (OutputMessageType) EndOfJob() OutputMessageType { return OutputMessageType(3) } // (may) exit after printing
func (OutputMessageType) Error() OutputMessageType    { return OutputMessageType(4) } // indicate fatal error, exit right after
func (OutputMessageType) Prompt() OutputMessageType   { return OutputMessageType(5) } // ask the user a question

func (o OutputMessageType) String() string {
	return enum.StringInt(o, reflect.TypeOf(o))
}

var EOutputFormat = OutputFormat(0)

// OutputFormat selects between human-readable text and machine-readable JSON.
type OutputFormat uint8

func (OutputFormat) Text() OutputFormat { return OutputFormat(0) }
func (OutputFormat) Json() OutputFormat { return OutputFormat(1) }

func (f OutputFormat) String() string {
	return enum.StringInt(f, reflect.TypeOf(f))
}

// OutputBuilder renders a piece of progress/summary state as either a text
// line or a JSON document, deferring the choice of format to the caller
// (§6, CLI output).
type OutputBuilder func(OutputFormat) string

var EPromptType = PromptType("")

// PromptType classifies an interactive prompt raised through JobUIHooks.
type PromptType string

func (PromptType) Cancel() PromptType { return PromptType("Cancel") }

var EResponseOption = ResponseOption{}

// ResponseOption is one answer a user can give to a JobUIHooks.Prompt call.
type ResponseOption struct {
	Name string
}

func (ResponseOption) Default() ResponseOption { return ResponseOption{Name: "Default"} }
func (ResponseOption) Yes() ResponseOption     { return ResponseOption{Name: "Yes"} }
func (ResponseOption) No() ResponseOption      { return ResponseOption{Name: "No"} }

type PromptDetails struct {
	PromptType      PromptType
	ResponseOptions []ResponseOption
}

// GetJsonStringFromTemplate marshals template for the JSON output format,
// panicking (via PanicIfErr) on the impossible case of a marshal failure on
// our own well-formed types.
func GetJsonStringFromTemplate(template interface{}) string {
	jsonOutput, err := json.Marshal(template)
	PanicIfErr(err)
	return string(jsonOutput)
}

// schedulerSummaryJsonTemplate is the JSON rendering of Counters (jobsAdmin),
// kept here rather than in jobsAdmin to avoid a dependency cycle on the CLI's
// output formatting layer.
type schedulerSummaryJsonTemplate struct {
	Active      int   `json:"active"`
	Passive     int   `json:"passive"`
	SyncRunning int   `json:"syncRunning"`
	Cancelled   int   `json:"cancelled"`
	Finished    int   `json:"finished"`
	Activated   int64 `json:"activated"`
	CancelledN  int64 `json:"cancelledTotal"`
}

// GetSchedulerSummaryOutputBuilder renders a scheduler counters snapshot for
// the CLI's `status` output, text or JSON (§6 observability).
func GetSchedulerSummaryOutputBuilder(active, passive, syncRunning, cancelled, finished int, activated, cancelledTotal int64) OutputBuilder {
	return func(format OutputFormat) string {
		if format == EOutputFormat.Json() {
			return GetJsonStringFromTemplate(schedulerSummaryJsonTemplate{
				Active: active, Passive: passive, SyncRunning: syncRunning,
				Cancelled: cancelled, Finished: finished,
				Activated: activated, CancelledN: cancelledTotal,
			})
		}
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("active: %d, passive: %d, syncRunning: %d, cancelled: %d, finished: %d", active, passive, syncRunning, cancelled, finished))
		sb.WriteString(fmt.Sprintf(" (activated total: %d, cancelled total: %d)", activated, cancelledTotal))
		return sb.String()
	}
}
