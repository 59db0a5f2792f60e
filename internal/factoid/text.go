package factoid

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// rangePatterns compiles the range separators into the two forms the
// tokenizer needs: one anchored at the front of the text that follows a
// start time, and one that finds a separator surrounded by whitespace.
func rangePatterns(separators []string) (lead, split *regexp.Regexp) {
	sorted := append([]string(nil), separators...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	var words, symbols, all []string
	for _, sep := range sorted {
		quoted := regexp.QuoteMeta(sep)
		all = append(all, quoted)
		if isWord(sep) {
			words = append(words, quoted)
		} else {
			symbols = append(symbols, quoted)
		}
	}

	var alternatives []string
	if len(words) > 0 {
		alternatives = append(alternatives, `\s+(?:`+strings.Join(words, "|")+`)\s+`)
	}
	if len(symbols) > 0 {
		alternatives = append(alternatives, `\s*(?:`+strings.Join(symbols, "|")+`)\s*`)
	}
	lead = regexp.MustCompile(`^(?:` + strings.Join(alternatives, "|") + `)`)
	split = regexp.MustCompile(`\s+(?:` + strings.Join(all, "|") + `)\s+`)
	return lead, split
}

func isWord(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}

// splitItem splits s at the first item separator that is followed by
// whitespace or the end of the string.
func splitItem(s string, separators []string) (head, tail string, found bool) {
	for i := 0; i < len(s); i++ {
		for _, sep := range separators {
			if !strings.HasPrefix(s[i:], sep) {
				continue
			}
			after := s[i+len(sep):]
			if after == "" || startsWithSpace(after) {
				return s[:i], after, true
			}
		}
	}
	return s, "", false
}

// startsWithItem reports whether s, ignoring leading whitespace, opens with
// an item separator followed by whitespace or the end of the string
func startsWithItem(s string, separators []string) bool {
	head, _, found := splitItem(strings.TrimLeftFunc(s, unicode.IsSpace), separators)
	return found && head == ""
}

// trimLeadingItem drops an item separator that directly follows a datetime
func trimLeadingItem(s string, separators []string) string {
	trimmed := strings.TrimLeftFunc(s, unicode.IsSpace)
	for _, sep := range separators {
		if !strings.HasPrefix(trimmed, sep) {
			continue
		}
		after := trimmed[len(sep):]
		if after == "" || startsWithSpace(after) {
			return after
		}
	}
	return s
}

// stampIndexes returns the byte ranges of tag stamps that are not preceded
// by a non-space character and are followed by a non-space character.
func stampIndexes(s string, stamps []string) [][2]int {
	var out [][2]int
	for i := 0; i < len(s); {
		matched := false
		for _, stamp := range stamps {
			if !strings.HasPrefix(s[i:], stamp) {
				continue
			}
			if i > 0 && !endsWithSpace(s[:i]) {
				continue
			}
			after := s[i+len(stamp):]
			if after == "" || startsWithSpace(after) {
				continue
			}
			out = append(out, [2]int{i, i + len(stamp)})
			i += len(stamp)
			matched = true
			break
		}
		if !matched {
			_, width := utf8.DecodeRuneInString(s[i:])
			i += width
		}
	}
	return out
}

// startsWithTag reports whether s, ignoring leading whitespace, opens with a tag stamp
func startsWithTag(s string, stamps []string) bool {
	trimmed := strings.TrimLeftFunc(s, unicode.IsSpace)
	indexes := stampIndexes(trimmed, stamps)
	return len(indexes) > 0 && indexes[0][0] == 0
}

// splitCategoryTags separates a category name from an inline run of tags
func splitCategoryTags(s string, stamps []string) (category, tags string) {
	indexes := stampIndexes(s, stamps)
	if len(indexes) == 0 {
		return strings.TrimSpace(s), ""
	}
	return strings.TrimSpace(s[:indexes[0][0]]), s[indexes[0][0]:]
}

// splitTags returns the tag names in s, trimmed, without blanks or duplicates
func splitTags(s string, stamps []string) []string {
	indexes := stampIndexes(s, stamps)
	names := []string{}
	seen := make(map[string]bool)
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	prev := 0
	for _, idx := range indexes {
		add(s[prev:idx[0]])
		prev = idx[1]
	}
	add(s[prev:])
	return names
}

// indexUnescaped returns the index of the first c in s not preceded by a backslash
func indexUnescaped(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == c {
			return i
		}
	}
	return -1
}

func unescapeAt(s string) string {
	return strings.ReplaceAll(s, `\@`, "@")
}

func startsWithSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}

func endsWithSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}
