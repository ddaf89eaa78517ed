package router

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/teslashibe/go-coach/pkg/state"
	"github.com/teslashibe/go-coach/pkg/voice"
)

// UpdateUIName is the name of the dashboard tool.
const UpdateUIName = "update_ui"

// Tool modes accepted by update_ui.
const (
	ModeQuestion = "question"
	ModeFeedback = "feedback"
	ModeWrapup   = "wrapup"
)

var toolModes = []string{ModeQuestion, ModeFeedback, ModeWrapup}

// UpdateUITool returns the tool declaration sent at session setup.
func UpdateUITool() voice.Tool {
	str := func(desc string) *voice.Schema {
		return &voice.Schema{Type: voice.TypeString, Description: desc}
	}
	list := func(desc string) *voice.Schema {
		return &voice.Schema{Type: voice.TypeArray, Description: desc, Items: &voice.Schema{Type: voice.TypeString}}
	}

	return voice.Tool{
		Name:        UpdateUIName,
		Description: "Update the coaching dashboard. Call it whenever you ask a new question, change what you are doing, or have feedback on the candidate's answer.",
		Parameters: &voice.Schema{
			Type: voice.TypeObject,
			Properties: map[string]*voice.Schema{
				"question": str("The interview question currently being asked."),
				"status":   str("Short status line, e.g. \"Listening\" or \"Evaluating answer\"."),
				"feedback": {
					Type:        voice.TypeObject,
					Description: "Complete evaluation of the latest answer. Replaces any previous feedback.",
					Properties: map[string]*voice.Schema{
						"score":        {Type: voice.TypeNumber, Description: "Score from 0 to 10."},
						"strengths":    list("What the candidate did well."),
						"improvements": list("What the candidate should improve."),
						"summary":      str("One or two sentence summary."),
					},
					Required: []string{"score", "strengths", "improvements", "summary"},
				},
				"mode": {
					Type:        voice.TypeString,
					Description: "Which phase of the interview the dashboard should show.",
					Enum:        toolModes,
				},
			},
		},
	}
}

type feedbackArgs struct {
	Score        float64  `mapstructure:"score"`
	Strengths    []string `mapstructure:"strengths"`
	Improvements []string `mapstructure:"improvements"`
	Summary      string   `mapstructure:"summary"`
}

// uiArgs are the decoded update_ui arguments. Absent fields are nil.
type uiArgs struct {
	Question *string       `mapstructure:"question"`
	Status   *string       `mapstructure:"status"`
	Feedback *feedbackArgs `mapstructure:"feedback"`
	Mode     *string       `mapstructure:"mode"`
}

// decodeUIArgs decodes and validates update_ui arguments.
func decodeUIArgs(args map[string]any) (uiArgs, error) {
	var out uiArgs
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(args); err != nil {
		return out, fmt.Errorf("decode %s arguments: %w", UpdateUIName, err)
	}

	if out.Mode != nil && !validMode(*out.Mode) {
		return out, fmt.Errorf("invalid mode %q", *out.Mode)
	}
	return out, nil
}

func validMode(m string) bool {
	for _, v := range toolModes {
		if v == m {
			return true
		}
	}
	return false
}

// updates converts the arguments into state updates.
func (a uiArgs) updates() []state.Update {
	var ups []state.Update
	if a.Question != nil {
		ups = append(ups, state.SetQuestion(*a.Question))
	}
	if a.Status != nil {
		ups = append(ups, state.SetStatusText(*a.Status))
	}
	if a.Feedback != nil {
		ups = append(ups, state.SetFeedback{
			Score:        a.Feedback.Score,
			Strengths:    a.Feedback.Strengths,
			Improvements: a.Feedback.Improvements,
			Summary:      a.Feedback.Summary,
		})
	}
	if a.Mode != nil {
		ups = append(ups, state.SetMode(*a.Mode))
	}
	return ups
}
