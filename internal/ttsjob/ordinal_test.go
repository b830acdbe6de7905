package ttsjob

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKoreanOrdinal(t *testing.T) {
	cases := map[int]string{
		1:   "일 번",
		6:   "육 번",
		10:  "십 번",
		11:  "십일 번",
		20:  "이십 번",
		23:  "이십삼 번",
		99:  "구십구 번",
		100: "100 번",
	}

	for n, expected := range cases {
		require.Equal(t, expected, KoreanOrdinal(n), "n=%d", n)
	}
}

func TestAnnouncementText(t *testing.T) {
	require.Equal(t, "삼 번. 오늘은 날씨가 좋다.", AnnouncementText(3, "오늘은 날씨가 좋다."))
}
