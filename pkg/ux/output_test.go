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
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/AleutianAI/netfab/pkg/activation"
	"github.com/AleutianAI/netfab/pkg/fabricate"
	"github.com/AleutianAI/netfab/pkg/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlan(t *testing.T) *fabricate.Plan {
	t.Helper()
	net, err := network.NewBuilder().
		AddInput(1).
		AddBias(2, 1.0).
		AddOutput(3, activation.Builtin(activation.KindSum)).
		AddHidden(4, activation.Builtin(activation.KindSigmoid)).
		AddEdge(1, 3, 1.0).
		AddEdge(2, 3, 0.5).
		AddEdge(1, 4, 2.0).
		Build()
	require.NoError(t, err)
	plan, err := fabricate.New().Fabricate(net)
	require.NoError(t, err)
	return plan
}

// =============================================================================
// Mode Tests
// =============================================================================

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"plain", ModePlain},
		{"MACHINE", ModePlain},
		{"q", ModePlain},
		{"styled", ModeStyled},
		{"", ModeStyled},
		{"fancy", ModeStyled},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseMode(tt.in); got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDetectMode(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	t.Setenv(ModeEnv, "")
	assert.Equal(t, ModePlain, DetectMode(f), "regular file is not a terminal")
	assert.Equal(t, ModePlain, DetectMode(nil))

	t.Setenv(ModeEnv, "styled")
	assert.Equal(t, ModeStyled, DetectMode(f))
}

// =============================================================================
// Printer Tests
// =============================================================================

func TestPrinter_PlainMessages(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, ModePlain)

	p.Title("hidden in plain mode")
	p.Success("built")
	p.Warning("slow")
	p.Error("broken")
	p.Info("note")
	p.Box("name", "xor")

	assert.Equal(t, "OK: built\nWARN: slow\nERROR: broken\nnote\nname: xor\n", buf.String())
}

func TestPrinter_StyledMessages(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, "")
	assert.Equal(t, ModeStyled, p.Mode())

	p.Success("built")
	p.Error("broken")

	out := buf.String()
	assert.Contains(t, out, string(IconSuccess))
	assert.Contains(t, out, "built")
	assert.Contains(t, out, string(IconError))
}

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconArrow, IconBullet} {
		assert.Contains(t, icon.Render(), string(icon))
	}
}

func TestPrinter_PlanPlain(t *testing.T) {
	var buf bytes.Buffer
	plan := samplePlan(t)
	NewPrinter(&buf, ModePlain).Plan("demo", plan)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1+3+2+1)

	assert.Equal(t, fmt.Sprintf("PLAN\tdemo\t%s\t3\t1\t1", plan.Fingerprint()), lines[0])
	assert.Equal(t, "STEP\t0\t1\tinput\t-\t", lines[1])
	assert.Equal(t, "STEP\t1\t2\tbias\tconstant(1)\t", lines[2])
	assert.Equal(t, "STEP\t2\t3\toutput\tsum\t1*1,2*0.5", lines[3])
	assert.Equal(t, "STAGE\t0\t1 2", lines[4])
	assert.Equal(t, "STAGE\t1\t3", lines[5])
	assert.Equal(t, "PRUNED\t4", lines[6])
}

func TestPrinter_PlanStyled(t *testing.T) {
	var buf bytes.Buffer
	plan := samplePlan(t)
	NewPrinter(&buf, ModeStyled).Plan("demo", plan)

	out := buf.String()
	assert.Contains(t, out, "plan demo")
	assert.Contains(t, out, plan.Fingerprint()[:16])
	assert.Contains(t, out, "stage 1")
	assert.Contains(t, out, "pruned")
}

func TestPrinter_Outputs(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, ModePlain).Outputs(0, []float64{2}, []float64{2.5})
	assert.Equal(t, "ROW\t0\t2\t2.5\n", buf.String())
}

func TestPrinter_Issues(t *testing.T) {
	_, err := network.NewBuilder().
		AddOutput(1, activation.Builtin(activation.KindSum)).
		AddOutput(1, activation.Builtin(activation.KindSum)).
		AddEdge(1, 9, 1).
		Build()
	require.Error(t, err)

	var buf bytes.Buffer
	NewPrinter(&buf, ModePlain).Issues(err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "ISSUE\t"), line)
	}

	buf.Reset()
	NewPrinter(&buf, ModeStyled).Issues(fmt.Errorf("plain failure"))
	assert.Contains(t, buf.String(), "1 issue(s)")
	assert.Contains(t, buf.String(), "plain failure")
}
