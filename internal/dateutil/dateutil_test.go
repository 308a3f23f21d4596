package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_DayTokens(t *testing.T) {
	cases := map[string]string{
		"週日": "Sun",
		"週一": "Mon",
		"週二": "Tue",
		"週三": "Wed",
		"週四": "Thu",
		"週五": "Fri",
		"週六": "Sat",
	}
	for token, want := range cases {
		assert.Equal(t, want+", 02 Jan 2006", Normalize(token+", 02 Jan 2006"))
	}
}

func TestNormalize_MonthTokens(t *testing.T) {
	cases := map[string]string{
		"一月":  "Jan",
		"二月":  "Feb",
		"三月":  "Mar",
		"四月":  "Apr",
		"五月":  "May",
		"六月":  "Jun",
		"七月":  "Jul",
		"八月":  "Aug",
		"九月":  "Sep",
		"十月":  "Oct",
		"十一月": "Nov",
		"十二月": "Dec",
	}
	for token, want := range cases {
		assert.Equal(t, "02 "+want+" 2006", Normalize("02 "+token+" 2006"))
	}
}

func TestNormalize_EnglishIsIdentity(t *testing.T) {
	raw := "Mon, 02 Jan 2006 15:04:05 MST"
	assert.Equal(t, raw, Normalize(raw))
}

func TestNormalize_ReplacesEveryOccurrence(t *testing.T) {
	assert.Equal(t, "Sun Sun", Normalize("週日 週日"))
}

func TestNormalize_LeavesOtherCharactersUntouched(t *testing.T) {
	assert.Equal(t, "x Tue y Nov z", Normalize("x 週二 y 十一月 z"))
}

func TestParsePubDate(t *testing.T) {
	got, err := ParsePubDate("週三, 15 一月 2025 08:30:00 +0000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.January, 15, 8, 30, 0, 0, time.UTC), got.UTC())
}

func TestParsePubDate_Unparseable(t *testing.T) {
	_, err := ParsePubDate("not a date")
	assert.Error(t, err)
}
