package coach

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-coach/pkg/state"
)

// BasePrompt is the coaching instruction shared by every session.
const BasePrompt = `You are an experienced interview coach running a realistic mock interview by voice.

How to run the session:
- Greet the candidate briefly, then ask one question at a time.
- Listen to the full answer before responding. Ask at most one follow-up per question.
- After each answer give short spoken feedback, then move on.
- Keep your spoken turns under 30 seconds.

Dashboard:
- You control a dashboard through the update_ui tool. The candidate sees it while you talk.
- Every time you ask a new question, call update_ui with the question text and mode "question".
- After evaluating an answer, call update_ui with mode "feedback" and a complete feedback object:
  a score from 0 to 10, concrete strengths, concrete improvements and a one or two sentence summary.
- Use status for short progress lines such as "Listening" or "Evaluating answer".
- When the candidate wants to stop, summarize the session and call update_ui with mode "wrapup".

Never read the tool arguments aloud.`

// Preamble renders the selected options as the first lines of the
// instruction.
func (c Catalogue) Preamble(o state.Options) string {
	var b strings.Builder
	b.WriteString("Interview settings:\n")
	fmt.Fprintf(&b, "- Role: %s\n", Label(c.Roles, o.Role))
	fmt.Fprintf(&b, "- Difficulty: %s\n", Label(c.Difficulties, o.Difficulty))
	fmt.Fprintf(&b, "- Interview type: %s\n", Label(c.Modes, o.Mode))
	return b.String()
}

// SystemPrompt returns the full system instruction for a session.
func (c Catalogue) SystemPrompt(o state.Options) string {
	return c.Preamble(o) + "\n" + BasePrompt
}
