package cortexapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/cludeai/cortex/internal/cortex"
)

// kindHeadings maps each record kind to its formatContext subsection
// heading; order here is the order subsections appear in, when present.
var kindHeadings = []struct {
	Kind    cortex.Kind
	Heading string
}{
	{cortex.KindEpisodic, "### Past Interactions"},
	{cortex.KindSemantic, "### Things You Know"},
	{cortex.KindProcedural, "### Behavioral Patterns"},
	{cortex.KindSelfModel, "### Self-Observations"},
}

const formatContextInstruction = "Use the memories above to inform your response; do not mention this context explicitly."

// FormatContext renders records as the stable, downstream-prompt-facing
// markdown block: a top-level heading, one subsection per kind present
// (in the fixed kindHeadings order), each a bulleted "[<age>] <summary>"
// line, and a trailing instruction line.
func (c *Cortex) FormatContext(records []*cortex.Record) string {
	now := c.clock.Now()
	byKind := make(map[cortex.Kind][]*cortex.Record)
	for _, r := range records {
		byKind[r.Kind] = append(byKind[r.Kind], r)
	}

	var sb strings.Builder
	sb.WriteString("## Memory Recall\n")
	for _, sec := range kindHeadings {
		rs := byKind[sec.Kind]
		if len(rs) == 0 {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(sec.Heading)
		sb.WriteString("\n")
		for _, r := range rs {
			fmt.Fprintf(&sb, "- [%s] %s\n", relativeAge(now, r.CreatedAt), r.Summary)
		}
	}
	sb.WriteString("\n")
	sb.WriteString(formatContextInstruction)
	return sb.String()
}

func relativeAge(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		return fmt.Sprintf("%dm ago", m)
	case d < 24*time.Hour:
		h := int(d.Hours())
		return fmt.Sprintf("%dh ago", h)
	default:
		days := int(d.Hours() / 24)
		return fmt.Sprintf("%dd ago", days)
	}
}
