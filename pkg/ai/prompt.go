package ai

import (
	"fmt"
	"strings"
)

type gradeGuide struct {
	level       string
	length      string
	description string
}

var gradeGuides = map[int]gradeGuide{
	1: {level: "매우 쉬운", length: "10~15자", description: "기본 받침과 간단한 단어 위주, 짧은 문장"},
	2: {level: "쉬운", length: "15~20자", description: "겹받침 일부 포함, 간단한 조사 활용"},
	3: {level: "보통", length: "20~30자", description: "다양한 받침과 조사, 기본적인 연결어미 사용"},
	4: {level: "중간", length: "25~35자", description: "복합 문장 구조, 다양한 어휘 활용"},
	5: {level: "어려운", length: "30~40자", description: "복잡한 문장 구조, 관용 표현 포함 가능"},
	6: {level: "높은", length: "35~45자", description: "고급 어휘와 복잡한 문장, 추상적 개념 포함 가능"},
}

// SplitKeywords splits comma separated keywords and drops blanks.
func SplitKeywords(raw string) []string {
	var keywords []string
	for _, part := range strings.Split(raw, ",") {
		if keyword := strings.TrimSpace(part); keyword != "" {
			keywords = append(keywords, keyword)
		}
	}
	return keywords
}

func generatorSystemPrompt() string {
	return "You write Korean dictation sentences for elementary school students. " +
		`Respond only with a JSON object of the form {"sentences": ["...", "..."]}.`
}

func buildSentencePrompt(req SentenceRequest) string {
	guide, ok := gradeGuides[req.Grade]
	if !ok {
		guide = gradeGuides[3]
	}

	b := strings.Builder{}
	fmt.Fprintf(&b, "당신은 초등학교 %d학년을 위한 받아쓰기 문제를 출제하는 선생님입니다.\n\n", req.Grade)
	fmt.Fprintf(&b, "대상 학년: 초등학교 %d학년\n", req.Grade)
	fmt.Fprintf(&b, "난이도: %s\n", guide.level)
	fmt.Fprintf(&b, "권장 문장 길이: %s\n", guide.length)
	fmt.Fprintf(&b, "특징: %s\n\n", guide.description)
	fmt.Fprintf(&b, "총 %d개의 받아쓰기 문장을 만들어주세요.\n\n", req.Count)

	switch {
	case len(req.Keywords) == 0:
		fmt.Fprintf(&b, "%d학년에게 적합한 내용으로 %d개 문장을 자유롭게 작성해주세요.\n\n", req.Grade, req.Count)
	case len(req.Keywords) <= req.Count:
		b.WriteString("다음 단어/표현을 각각 하나의 문장에만 포함시켜주세요 (각 단어/표현은 전체 문제 세트에서 딱 한 번만 사용):\n")
		for i, keyword := range req.Keywords {
			fmt.Fprintf(&b, "%d번 문장: %q 포함\n", i+1, keyword)
		}
		b.WriteString("\n")
		if rest := req.Count - len(req.Keywords); rest > 0 {
			fmt.Fprintf(&b, "나머지 %d개 문장은 %d학년에게 적합한 내용으로 자유롭게 작성해주세요.\n\n", rest, req.Grade)
		}
	default:
		fmt.Fprintf(&b, "다음 %d개의 단어/표현을 %d개 문장에 골고루 분배하여 포함시켜주세요.\n", len(req.Keywords), req.Count)
		b.WriteString("각 단어/표현은 전체 문제 세트에서 딱 한 번만 사용되어야 합니다.\n\n포함시킬 단어/표현:\n")
		for i, keyword := range req.Keywords {
			fmt.Fprintf(&b, "%d. %q\n", i+1, keyword)
		}
		b.WriteString("\n")
	}

	if extra := strings.TrimSpace(req.AdditionalRequests); extra != "" {
		fmt.Fprintf(&b, "추가 요청사항:\n%s\n\n", extra)
	}

	fmt.Fprintf(&b, "요구사항:\n1. 각 문장은 초등학교 %d학년이 이해하기 쉬운 자연스러운 문장이어야 합니다.\n", req.Grade)
	b.WriteString("2. 교육적이고 긍정적인 내용으로 작성하세요.\n")
	b.WriteString("3. 쉼표나 따옴표를 사용하지 마세요.\n")
	b.WriteString("4. 모든 문장은 마침표(.) 또는 물음표(?)로 끝나야 합니다.\n\n")
	b.WriteString(`반드시 {"sentences": ["문장1", "문장2"]} 형식의 JSON으로만 응답하세요.`)

	return b.String()
}
