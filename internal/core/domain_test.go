package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassification(t *testing.T) {
	c, err := ParseClassification(" Non-Billable ")
	require.NoError(t, err)
	assert.Equal(t, NonBillable, c)

	_, err = ParseClassification("maybe")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestParseRuleSource(t *testing.T) {
	s, err := ParseRuleSource("")
	require.NoError(t, err)
	assert.Equal(t, SourceManual, s)

	s, err = ParseRuleSource("AI")
	require.NoError(t, err)
	assert.Equal(t, SourceAI, s)

	_, err = ParseRuleSource("robot")
	assert.True(t, IsValidation(err))
}

func TestAuthContext_CanManage(t *testing.T) {
	tests := []struct {
		name string
		auth AuthContext
		want bool
	}{
		{"verified manager", AuthContext{Verified: true, IsManager: true}, true},
		{"verified creator", AuthContext{Verified: true, IsCreator: true}, true},
		{"verified member", AuthContext{Verified: true}, false},
		{"unverified manager", AuthContext{IsManager: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.auth.CanManage())
		})
	}
}

func TestTask_Incomplete(t *testing.T) {
	assert.False(t, Task{Status: "Done"}.Incomplete())
	assert.False(t, Task{Status: "completed"}.Incomplete())
	assert.True(t, Task{Status: "in-progress"}.Incomplete())
	assert.True(t, Task{}.Incomplete())
}

func TestRuleInput_Normalize(t *testing.T) {
	in, err := RuleInput{Classification: Billable}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, SourceManual, in.Source)

	_, err = RuleInput{Classification: "nope"}.Normalize()
	assert.True(t, IsValidation(err))

	_, err = RuleInput{Classification: Billable, Source: "bot"}.Normalize()
	assert.True(t, IsValidation(err))
}

func TestRuleFilter_Matches(t *testing.T) {
	r := ClassificationRule{AppName: "visual studio code", Source: SourceManual}
	assert.True(t, RuleFilter{}.Matches(r))
	assert.True(t, RuleFilter{Source: SourceManual, AppNameContains: "Studio"}.Matches(r))
	assert.False(t, RuleFilter{Source: SourceAI}.Matches(r))
	assert.False(t, RuleFilter{AppNameContains: "slack"}.Matches(r))
}

func TestWrapStorage(t *testing.T) {
	assert.NoError(t, WrapStorage("op", nil))
	assert.ErrorIs(t, WrapStorage("op", ErrNotFound), ErrNotFound)

	cause := errors.New("disk full")
	err := WrapStorage("upsert rule", cause)
	assert.True(t, IsStorage(err))
	assert.ErrorIs(t, err, cause)

	again := WrapStorage("outer", fmt.Errorf("ctx: %w", err))
	var se *StorageError
	require.ErrorAs(t, again, &se)
	assert.Equal(t, "upsert rule", se.Op)
}
