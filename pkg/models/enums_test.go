package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
)

func TestAccessMode_WireCodes(t *testing.T) {
	cases := map[AccessMode]int{
		AccessModePublic:    0,
		AccessModeRoleBased: 1,
		AccessModeExplicit:  2,
	}
	for mode, code := range cases {
		got, err := mode.Code()
		require.NoError(t, err)
		assert.Equal(t, code, got)

		back, err := AccessModeFromCode(code)
		require.NoError(t, err)
		assert.Equal(t, mode, back)
	}

	_, err := AccessModeFromCode(3)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestDirection_WireCodes(t *testing.T) {
	cases := map[Direction]int{
		DirectionFactIsSource:      1,
		DirectionFactIsDestination: 2,
		DirectionBiDirectional:     3,
	}
	for d, code := range cases {
		got, err := d.Code()
		require.NoError(t, err)
		assert.Equal(t, code, got)
	}
}

func TestDirection_NoZeroCode(t *testing.T) {
	_, err := DirectionFromCode(0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = Direction("None").Code()
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestDirection_JSONUsesWireCode(t *testing.T) {
	data, err := json.Marshal(FactObjectBinding{Direction: DirectionFactIsDestination})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"direction":2`)

	var b FactObjectBinding
	require.NoError(t, json.Unmarshal([]byte(`{"objectID":"00000000-0000-0000-0000-000000000001","direction":3}`), &b))
	assert.Equal(t, DirectionBiDirectional, b.Direction)

	err = json.Unmarshal([]byte(`{"direction":0}`), &b)
	assert.Error(t, err)
}

func TestFactEntityFlags_RoundTrip(t *testing.T) {
	flags := []FactEntityFlag{FactEntityFlagHasAcl, FactEntityFlagTimeGlobalIndex, FactEntityFlagUsesSeparatedObjectFields}
	codes := FactEntityFlagCodes(flags)
	assert.Equal(t, []int32{1, 5, 4}, codes)

	back, err := FactEntityFlagsFromCodes(codes)
	require.NoError(t, err)
	assert.Equal(t, flags, back)

	_, err = FactEntityFlagsFromCodes([]int32{9})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestFactRecord_Flags(t *testing.T) {
	r := &FactRecord{}
	r.AddFlag(FactRecordFlagHasAcl).AddFlag(FactRecordFlagHasAcl)
	assert.Equal(t, []FactRecordFlag{FactRecordFlagHasAcl}, r.Flags)
	assert.True(t, r.IsSet(FactRecordFlagHasAcl))

	r.RemoveFlag(FactRecordFlagHasAcl)
	assert.False(t, r.IsSet(FactRecordFlagHasAcl))
}

func TestHourBucket(t *testing.T) {
	// 2024-03-01T10:59:59.999Z
	ts := int64(1709290799999)
	assert.Equal(t, int64(1709287200000), HourBucket(ts))
	assert.Equal(t, int64(1709290800000), HourBucket(ts+1))
}
