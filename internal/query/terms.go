package query

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// TermKind says which part of a frame record a term is matched against.
type TermKind string

const (
	KindObject  TermKind = "object"
	KindPerson  TermKind = "person"
	KindGender  TermKind = "gender"
	KindAge     TermKind = "age"
	KindEmotion TermKind = "emotion"
	KindColor   TermKind = "color"
	KindRegion  TermKind = "region"
)

// IsPersonAttribute reports whether the kind is matched against persons.
func (k TermKind) IsPersonAttribute() bool {
	return k == KindPerson || k == KindGender || k == KindAge || k == KindEmotion
}

type termEntry struct {
	kind   TermKind
	labels []string
}

// Terms is a bidirectional many-to-many map between query vocabulary
// (Korean and English) and index labels: detector classes, attribute
// values, palette colors and clothing regions.
type Terms struct {
	bySource map[string]termEntry
	byLabel  map[string][]string
	// hangul holds Korean sources longest first, for substring matching.
	hangul []string
	// maxWords is the longest English source in words.
	maxWords int
}

var (
	defaultTerms     *Terms
	defaultTermsOnce sync.Once
)

// DefaultTerms returns the built-in table. It is built once and read-only.
func DefaultTerms() *Terms {
	defaultTermsOnce.Do(func() {
		defaultTerms = NewTerms(builtinTerms)
	})
	return defaultTerms
}

type termGroup struct {
	kind    TermKind
	labels  []string
	sources []string
}

func NewTerms(groups []termGroup) *Terms {
	t := &Terms{
		bySource: make(map[string]termEntry),
		byLabel:  make(map[string][]string),
		maxWords: 1,
	}
	for _, g := range groups {
		for _, src := range g.sources {
			src = Normalize(src)
			e := t.bySource[src]
			e.kind = g.kind
			e.labels = appendUnique(e.labels, g.labels...)
			t.bySource[src] = e
			for _, l := range g.labels {
				t.byLabel[l] = appendUnique(t.byLabel[l], src)
			}
			if isHangul(src) {
				t.hangul = append(t.hangul, src)
			} else if n := len(strings.Fields(src)); n > t.maxWords {
				t.maxWords = n
			}
		}
	}
	t.hangul = uniqueStrings(t.hangul)
	sort.SliceStable(t.hangul, func(i, j int) bool {
		return len(t.hangul[i]) > len(t.hangul[j])
	})
	for l := range t.byLabel {
		sort.Strings(t.byLabel[l])
	}
	return t
}

// Expand maps a query term to its labels. Unknown terms expand to nothing.
func (t *Terms) Expand(term string) []string {
	e, ok := t.bySource[Normalize(term)]
	if !ok {
		return nil
	}
	return append([]string(nil), e.labels...)
}

// Sources is the reverse lookup: every query term that expands to label.
func (t *Terms) Sources(label string) []string {
	return append([]string(nil), t.byLabel[label]...)
}

// TermMatch is one occurrence of a known term in query text.
type TermMatch struct {
	Source     string
	Kind       TermKind
	Labels     []string
	Start, End int
}

// Find returns every known term in normalized text, ordered by position.
// Korean terms must start a word and may only be followed by particles;
// English terms match whole words, singular or plural. Overlapping Korean
// matches keep the longest term.
func (t *Terms) Find(text string) []TermMatch {
	var matches []TermMatch
	taken := make([]bool, len(text))

	for _, src := range t.hangul {
		for off := 0; off < len(text); {
			i := strings.Index(text[off:], src)
			if i < 0 {
				break
			}
			start, end := off+i, off+i+len(src)
			off = start + 1
			if !koreanWordAt(text, start, end) || anyTaken(taken, start, end) {
				continue
			}
			off = end
			markTaken(taken, start, end)
			e := t.bySource[src]
			matches = append(matches, TermMatch{Source: src, Kind: e.kind, Labels: e.labels, Start: start, End: end})
		}
	}

	toks := tokenize(text)
	for i := 0; i < len(toks); {
		n := t.matchWords(toks[i:])
		if n == 0 {
			i++
			continue
		}
		start, end := toks[i].start, toks[i+n-1].end
		if !anyTaken(taken, start, end) {
			markTaken(taken, start, end)
			src := joinTokens(toks[i : i+n])
			e, ok := t.bySource[src]
			if !ok {
				src = singularPhrase(src)
				e = t.bySource[src]
			}
			matches = append(matches, TermMatch{Source: src, Kind: e.kind, Labels: e.labels, Start: start, End: end})
		}
		i += n
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })
	return matches
}

// matchWords returns how many leading tokens form the longest known English
// term, or 0.
func (t *Terms) matchWords(toks []token) int {
	for n := min(t.maxWords, len(toks)); n > 0; n-- {
		phrase := joinTokens(toks[:n])
		if isHangul(phrase) {
			continue
		}
		if _, ok := t.bySource[phrase]; ok {
			return n
		}
		if _, ok := t.bySource[singularPhrase(phrase)]; ok {
			return n
		}
	}
	return 0
}

// koreanWordAt reports whether text[start:end] is a whole Korean word,
// allowing trailing particles: "여자가" holds 여자 but "아이스크림" does not
// hold 아이 and "배우는" does not hold 우는.
func koreanWordAt(text string, start, end int) bool {
	if r, _ := utf8.DecodeLastRuneInString(text[:start]); start > 0 && isHangulRune(r) {
		return false
	}
	rest := text[end:]
	if i := strings.IndexFunc(rest, func(r rune) bool { return !isHangulRune(r) }); i >= 0 {
		rest = rest[:i]
	}
	return onlyParticles(rest)
}

// onlyParticles reports whether s is a (possibly empty) chain of particles.
func onlyParticles(s string) bool {
	if s == "" {
		return true
	}
	for _, p := range termSuffixes {
		if strings.HasPrefix(s, p) && onlyParticles(s[len(p):]) {
			return true
		}
	}
	return false
}

func singularPhrase(p string) string {
	i := strings.LastIndexByte(p, ' ')
	return p[:i+1] + singular(p[i+1:])
}

func joinTokens(toks []token) string {
	parts := make([]string, len(toks))
	for i, tk := range toks {
		parts[i] = tk.text
	}
	return strings.Join(parts, " ")
}

func anyTaken(taken []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if taken[i] {
			return true
		}
	}
	return false
}

func markTaken(taken []bool, start, end int) {
	for i := start; i < end; i++ {
		taken[i] = true
	}
}

func appendUnique(dst []string, vals ...string) []string {
	for _, v := range vals {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

var builtinTerms = []termGroup{
	// Objects, keyed to detector (COCO) labels.
	{KindObject, []string{"handbag", "backpack", "suitcase", "purse"}, []string{"가방", "bag", "bags"}},
	{KindObject, []string{"handbag", "purse"}, []string{"핸드백", "손가방", "handbag", "purse"}},
	{KindObject, []string{"backpack"}, []string{"백팩", "배낭", "책가방", "backpack", "rucksack"}},
	{KindObject, []string{"suitcase"}, []string{"캐리어", "여행가방", "suitcase", "luggage"}},
	{KindObject, []string{"car"}, []string{"자동차", "승용차", "차량", "car"}},
	{KindObject, []string{"truck"}, []string{"트럭", "truck"}},
	{KindObject, []string{"bus"}, []string{"버스", "bus"}},
	{KindObject, []string{"bicycle"}, []string{"자전거", "bicycle", "bike"}},
	{KindObject, []string{"motorcycle"}, []string{"오토바이", "motorcycle", "motorbike", "scooter"}},
	{KindObject, []string{"cell phone"}, []string{"휴대폰", "핸드폰", "스마트폰", "전화기", "cell phone", "phone", "smartphone"}},
	{KindObject, []string{"laptop"}, []string{"노트북", "laptop"}},
	{KindObject, []string{"chair"}, []string{"의자", "chair"}},
	{KindObject, []string{"bench"}, []string{"벤치", "bench"}},
	{KindObject, []string{"couch"}, []string{"소파", "couch", "sofa"}},
	{KindObject, []string{"dining table"}, []string{"테이블", "탁자", "식탁", "table", "dining table"}},
	{KindObject, []string{"umbrella"}, []string{"우산", "umbrella"}},
	{KindObject, []string{"dog"}, []string{"강아지", "dog", "puppy"}},
	{KindObject, []string{"cat"}, []string{"고양이", "cat"}},
	{KindObject, []string{"cup"}, []string{"컵", "머그", "cup", "mug"}},
	{KindObject, []string{"bottle"}, []string{"물병", "bottle"}},
	{KindObject, []string{"book"}, []string{"도서", "book"}},
	{KindObject, []string{"clock"}, []string{"시계", "clock"}},
	{KindObject, []string{"tv"}, []string{"티비", "텔레비전", "tv", "television"}},
	{KindObject, []string{"traffic light"}, []string{"신호등", "traffic light"}},
	{KindObject, []string{"tie"}, []string{"넥타이", "tie"}},
	{KindObject, []string{"bird"}, []string{"비둘기", "bird", "pigeon"}},

	// Persons and person attributes.
	{KindPerson, []string{"person"}, []string{"사람", "인물", "행인", "person", "people", "pedestrian"}},
	{KindGender, []string{"male"}, []string{"남자", "남성", "소년", "male", "man", "men", "boy", "guy"}},
	{KindGender, []string{"female"}, []string{"여자", "여성", "소녀", "female", "woman", "women", "girl", "lady"}},
	{KindAge, []string{"child"}, []string{"아이", "어린이", "아기", "꼬마", "child", "children", "kid", "baby"}},
	{KindAge, []string{"teenager"}, []string{"청소년", "학생", "10대", "teenager", "teen", "student"}},
	{KindAge, []string{"young_adult"}, []string{"청년", "젊은", "20대", "young"}},
	{KindAge, []string{"middle_aged"}, []string{"중년", "40대", "middle-aged"}},
	{KindAge, []string{"elderly"}, []string{"노인", "어르신", "할머니", "할아버지", "elderly", "old", "senior"}},
	{KindEmotion, []string{"happy"}, []string{"웃는", "웃고", "행복", "기쁜", "미소", "happy", "smiling", "smile", "laughing"}},
	{KindEmotion, []string{"sad"}, []string{"슬픈", "우는", "울고", "sad", "crying"}},
	{KindEmotion, []string{"angry"}, []string{"화난", "화가 난", "angry", "mad"}},
	{KindEmotion, []string{"surprise"}, []string{"놀란", "surprised", "shocked"}},
	{KindEmotion, []string{"fear"}, []string{"겁먹은", "무서워하는", "scared", "afraid"}},
	{KindEmotion, []string{"neutral"}, []string{"무표정", "neutral", "expressionless"}},

	// Palette colors. Brown tones share the orange slot.
	{KindColor, []string{"pink"}, []string{"분홍", "분홍색", "핑크", "pink"}},
	{KindColor, []string{"red"}, []string{"빨간", "빨강", "빨간색", "붉은", "레드", "red"}},
	{KindColor, []string{"orange"}, []string{"주황", "주황색", "오렌지", "orange"}},
	{KindColor, []string{"orange"}, []string{"갈색", "브라운", "밤색", "brown"}},
	{KindColor, []string{"yellow"}, []string{"노란", "노랑", "노란색", "옐로우", "yellow"}},
	{KindColor, []string{"green"}, []string{"초록", "초록색", "녹색", "연두", "그린", "green"}},
	{KindColor, []string{"blue"}, []string{"파란", "파랑", "파란색", "하늘색", "남색", "블루", "네이비", "blue", "navy"}},
	{KindColor, []string{"purple"}, []string{"보라", "보라색", "퍼플", "purple", "violet"}},
	{KindColor, []string{"black"}, []string{"검은", "검정", "검은색", "검정색", "블랙", "black"}},
	{KindColor, []string{"white"}, []string{"흰", "하얀", "흰색", "하얀색", "화이트", "white"}},
	{KindColor, []string{"gray"}, []string{"회색", "그레이", "gray", "grey"}},

	// Clothing region hints.
	{KindRegion, []string{"upper"}, []string{"상의", "윗옷", "셔츠", "티셔츠", "자켓", "재킷", "코트", "top", "shirt", "t-shirt", "jacket", "coat", "sweater", "hoodie"}},
	{KindRegion, []string{"lower"}, []string{"하의", "바지", "치마", "스커트", "청바지", "반바지", "pants", "trousers", "jeans", "skirt", "shorts"}},
}
