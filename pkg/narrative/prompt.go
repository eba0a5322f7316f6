package narrative

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/stethoscope/pkg/scoring"
)

const promptHeader = `You are "Stethoscope AI", a world-class Linux System Administrator and performance analyst.
Your task is to analyze the following server health assessment and provide a concise, actionable health report in Markdown format.

The assessment was computed deterministically before reaching you. Do not change the score or invent findings; explain them.

SECURITY SCORE: %d/100

FINDINGS (most severe first):
%s
NORMALIZED SERVER DATA (in JSON format):
` + "```json\n%s\n```" + `

INSTRUCTIONS:
1.  Start with a brief "## Executive Summary" of the server's overall health, mentioning the score.
2.  If there are critical findings, create a "## 🔴 Critical Issues" section.
3.  If there are warnings, create a "## 🟡 Warnings & Recommendations" section.
4.  For each issue, provide a **Root Cause Analysis** where you correlate different data points to explain WHY it's happening.
5.  For each issue, provide a **Solution** section with specific, copy-pasteable commands to help the user fix the problem.
6.  If some sections could not be collected, say so briefly instead of guessing their contents.
7.  If everything looks good, state that clearly and positively.
8.  The tone must be professional, clear, and reassuring.
`

// BuildPrompt renders the instruction text sent to the model.
func BuildPrompt(report *scoring.Report) (string, error) {
	data, err := json.MarshalIndent(report.NormalizedSnapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot for prompt: %w", err)
	}

	var findings strings.Builder
	if len(report.Findings) == 0 {
		findings.WriteString("- none\n")
	}
	for _, f := range report.Findings {
		fmt.Fprintf(&findings, "- [%s] %s (%s, -%d)\n", strings.ToUpper(string(f.Severity)), f.Message, f.RuleID, f.PointsDeducted)
	}

	return fmt.Sprintf(promptHeader, report.Score, findings.String(), data), nil
}
