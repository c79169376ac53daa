package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nudge/internal/rules"
	"github.com/roach88/nudge/internal/timeline"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, time.Local, cfg.Location)
	assert.Equal(t, time.Hour, cfg.PollInterval)
	assert.Equal(t, time.Hour, cfg.PollCooldown)
	assert.Equal(t, 35*24*time.Hour, cfg.Horizon)
	assert.Equal(t, 5*time.Minute, cfg.EvalInterval)
	assert.Equal(t, timeline.PolicyFirstListed, cfg.ScannerPolicy)
	assert.Equal(t, rules.DefaultSettings(), cfg.Rules)
	assert.Empty(t, cfg.ChartURL)
	assert.Empty(t, cfg.AdvisoryAddr)
	assert.Empty(t, cfg.StorePath)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_CUE(t *testing.T) {
	cfg, err := Load("testdata/full.cue")
	require.NoError(t, err)

	assert.Equal(t, "Asia/Kolkata", cfg.Location.String())
	assert.Equal(t, 30*time.Minute, cfg.PollInterval)
	assert.Equal(t, 2*time.Hour, cfg.PollCooldown)
	assert.Equal(t, 40*24*time.Hour, cfg.Horizon)
	assert.Equal(t, time.Minute, cfg.EvalInterval)
	assert.Equal(t, timeline.PolicyEarliest, cfg.ScannerPolicy)
	assert.Equal(t, "https://chart.example.com/v1/periods", cfg.ChartURL)
	assert.Equal(t, "localhost:7443", cfg.AdvisoryAddr)
	assert.Equal(t, "nudge.db", cfg.StorePath)

	assert.Equal(t, rules.Setting{Enabled: true, Cadence: 5 * time.Minute, Window: rules.Window{From: 9, To: 11}}, cfg.Rules[rules.MorningRoutine])
	assert.False(t, cfg.Rules[rules.DailyTransit].Enabled)
	assert.Equal(t, time.Hour, cfg.Rules[rules.Anniversary].Cadence)
	assert.Equal(t, rules.DefaultSettings()[rules.EveningGratitude], cfg.Rules[rules.EveningGratitude])
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load("testdata/full.yaml")
	require.NoError(t, err)

	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, rules.Window{From: 20, To: 22}, cfg.Rules[rules.EveningGratitude].Window)
	assert.Equal(t, time.Hour, cfg.PollCooldown)
}

func TestParse_JSON(t *testing.T) {
	cfg, err := Parse("nudge.json", []byte(`{"evaluator": {"interval": "90s"}}`))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.EvalInterval)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"unknown top-level field", `colour: "blue"`, "not allowed"},
		{"unknown rule", `rules: bedtime: enabled: true`, "not allowed"},
		{"bad policy", `scanner: policy: "latest"`, "scanner.policy"},
		{"bad duration", `poller: cooldown: "soon"`, "poller.cooldown"},
		{"window reversed", `rules: morning_routine: window: {from: 12, to: 10}`, "window"},
		{"window out of range", `rules: morning_routine: window: {from: 10, to: 25}`, "window"},
		{"negative horizon", `poller: horizonDays: 0`, "horizonDays"},
		{"bad timezone", `timezone: "Mars/Olympus"`, "timezone"},
		{"syntax", `poller: {`, "nudge.cue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("nudge.cue", []byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestParse_ErrorHasPosition(t *testing.T) {
	_, err := Parse("nudge.cue", []byte("timezone: \"UTC\"\nposter: 1\n"))
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	require.True(t, ce.Pos.IsValid())
	assert.Equal(t, "nudge.cue", ce.Pos.Filename())
	assert.Equal(t, 2, ce.Pos.Line())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/nope.cue")
	assert.ErrorContains(t, err, "read config")
}

func TestCompileError_Format(t *testing.T) {
	assert.Equal(t, "poller.cooldown: bad", (&CompileError{Field: "poller.cooldown", Message: "bad"}).Error())
}
