package ttsjob

import "strconv"

var sinoKoreanDigits = [...]string{"일", "이", "삼", "사", "오", "육", "칠", "팔", "구"}

// KoreanOrdinal spells n with Sino-Korean numerals followed by "번", e.g. 23 becomes
// "이십삼 번". Numbers outside 1..99 fall back to arabic digits.
func KoreanOrdinal(n int) string {
	return koreanNumeral(n) + " 번"
}

// AnnouncementText prefixes a sentence with its spoken item number.
func AnnouncementText(n int, text string) string {
	return KoreanOrdinal(n) + ". " + text
}

func koreanNumeral(n int) string {
	if n < 1 || n > 99 {
		return strconv.Itoa(n)
	}

	tens, ones := n/10, n%10
	numeral := ""
	switch {
	case tens == 1:
		numeral = "십"
	case tens > 1:
		numeral = sinoKoreanDigits[tens-1] + "십"
	}
	if ones > 0 {
		numeral += sinoKoreanDigits[ones-1]
	}

	return numeral
}
