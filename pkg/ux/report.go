// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/netfab/pkg/fabricate"
	"github.com/AleutianAI/netfab/pkg/network"
)

// Plan renders a fabricated plan: its steps in order, the stages, the pruned
// nodes and the fingerprint.
//
// Plain mode emits one tab-separated record per line:
//
//	PLAN	<name>	<fingerprint>	<slots>	<inputs>	<outputs>
//	STEP	<slot>	<node>	<role>	<function>	<src*weight,...>
//	STAGE	<index>	<node ...>
//	PRUNED	<node ...>
func (p *Printer) Plan(name string, plan *fabricate.Plan) {
	steps := plan.Steps()

	if p.plain() {
		fmt.Fprintf(p.w, "PLAN\t%s\t%s\t%d\t%d\t%d\n",
			name, plan.Fingerprint(), plan.SlotCount(), plan.InputCount(), plan.OutputCount())
		for _, s := range steps {
			fmt.Fprintf(p.w, "STEP\t%d\t%d\t%s\t%s\t%s\n",
				s.Slot, s.Node, s.Role, stepFunction(s), sourceList(plan, s))
		}
		for i, stage := range plan.Stages() {
			fmt.Fprintf(p.w, "STAGE\t%d\t%s\n", i, joinIDs(stage))
		}
		fmt.Fprintf(p.w, "PRUNED\t%s\n", joinIDs(plan.Pruned()))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", Styles.Muted.Render("fingerprint"), plan.Fingerprint()[:16])
	fmt.Fprintf(&b, "%s %d  %s %s  %s %s\n",
		Styles.Muted.Render("steps"), plan.SlotCount(),
		Styles.Muted.Render("inputs"), joinIDs(plan.Inputs()),
		Styles.Muted.Render("outputs"), joinIDs(plan.Outputs()))
	b.WriteString("\n")
	for _, s := range steps {
		line := fmt.Sprintf("%3d  %s %-6s %-8s", s.Slot,
			Styles.Highlight.Render(fmt.Sprintf("%4d", s.Node)), s.Role, stepFunction(s))
		if len(s.Sources) > 0 {
			line += " " + Styles.Muted.Render(string(IconArrow)+" "+sourceList(plan, s))
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")
	for i, stage := range plan.Stages() {
		fmt.Fprintf(&b, "%s %s\n", Styles.Subtitle.Render(fmt.Sprintf("stage %d", i)), joinIDs(stage))
	}
	if pruned := plan.Pruned(); len(pruned) > 0 {
		fmt.Fprintf(&b, "%s %s", Styles.Warning.Render("pruned"), joinIDs(pruned))
	} else {
		b.WriteString(Styles.Muted.Render("pruned none"))
	}

	fmt.Fprintln(p.w, Styles.Box.Render(Styles.Title.Render("plan "+name)+"\n"+b.String()))
}

// Outputs prints one evaluated row.
func (p *Printer) Outputs(row int, inputs, outputs []float64) {
	if p.plain() {
		fmt.Fprintf(p.w, "ROW\t%d\t%s\t%s\n", row, joinFloats(inputs, ","), joinFloats(outputs, ","))
		return
	}
	fmt.Fprintf(p.w, "%s [%s] %s [%s]\n",
		Styles.Muted.Render(fmt.Sprintf("#%d", row)),
		joinFloats(inputs, ", "),
		IconArrow,
		Styles.Highlight.Render(joinFloats(outputs, ", ")))
}

// Issues prints every problem carried by err.
//
// A *network.MalformedGraphError contributes one line per issue; any other
// error is printed as a single line.
func (p *Printer) Issues(err error) {
	issues := []error{err}
	var malformed *network.MalformedGraphError
	if errors.As(err, &malformed) {
		issues = malformed.Issues
	}

	if p.plain() {
		for _, issue := range issues {
			fmt.Fprintf(p.w, "ISSUE\t%s\n", issue)
		}
		return
	}
	lines := make([]string, len(issues))
	for i, issue := range issues {
		lines[i] = fmt.Sprintf("%s %s", IconBullet, issue)
	}
	title := Styles.Error.Bold(true).Render(fmt.Sprintf("%d issue(s)", len(issues)))
	fmt.Fprintln(p.w, Styles.ErrorBox.Render(title+"\n"+strings.Join(lines, "\n")))
}

func stepFunction(s fabricate.Step) string {
	if s.Role == network.RoleInput {
		return "-"
	}
	return s.Function.String()
}

func sourceList(plan *fabricate.Plan, s fabricate.Step) string {
	parts := make([]string, len(s.Sources))
	for i, src := range s.Sources {
		parts[i] = fmt.Sprintf("%d*%s", plan.Step(src.Slot).Node, formatFloat(src.Weight))
	}
	return strings.Join(parts, ",")
}

func joinIDs(ids []network.NodeID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, " ")
}

func joinFloats(values []float64, sep string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, sep)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
