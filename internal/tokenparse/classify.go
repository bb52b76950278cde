// Package tokenparse reconstructs comment records from the flat token
// stream lifted off a rendered post page. It is pure: no sessions, no
// I/O, deterministic for a given input.
package tokenparse

import (
	"regexp"
	"strings"
	"unicode"
)

// uiTokens are chrome labels rendered between comments. They carry no
// comment content and are dropped before parsing.
var uiTokens = map[string]struct{}{
	"reply":           {},
	"replies":         {},
	"share":           {},
	"like":            {},
	"liked":           {},
	"follow":          {},
	"following":       {},
	"more":            {},
	"hide":            {},
	"report":          {},
	"edited":          {},
	"pinned":          {},
	"author":          {},
	"verified":        {},
	"see translation": {},
	"translate":       {},
	"most relevant":   {},
	"top comments":    {},
	"newest":          {},
	"all comments":    {},
}

// uiPrefixes catch parameterized chrome labels such as
// "View replies (12)" or "View all 87 comments".
var uiPrefixes = []string{
	"view replies",
	"view all",
	"view more",
	"load more",
	"show more",
	"show replies",
	"see more",
	"hide replies",
	"read more",
	"reply to",
	"log in",
	"sign up",
}

func isUIToken(s string) bool {
	l := strings.ToLower(strings.TrimSpace(s))
	if _, ok := uiTokens[l]; ok {
		return true
	}
	for _, prefix := range uiPrefixes {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]{2,50}$`)

	// compactTimePattern matches a leading relative timestamp like "2h"
	// or "3w", including glued artifacts like "4w14" where reply counts
	// bleed into the timestamp node, and combined tokens like
	// "2h 15 likes" where a likes count shares the node.
	compactTimePattern = regexp.MustCompile(`^(\d+)\s*([wdhm])(\d*)(?:\s|$)`)

	verboseTimePattern = regexp.MustCompile(`(?i)^(a|an|\d+)\s+(second|minute|hour|day|week|month|year)s?\s+ago$`)

	likesPattern = regexp.MustCompile(`(?i)^\d[\d,]*\s*likes?$`)

	embeddedLikesPattern = regexp.MustCompile(`(?i)\d[\d,]*\s*likes?`)
)

// isUsernameToken reports whether s could be a handle: the platform
// username charset, 2..50 runes, no whitespace. Tokens that classify
// as time or likes are never usernames.
func isUsernameToken(s string) bool {
	s = strings.TrimSpace(s)
	if !usernamePattern.MatchString(s) {
		return false
	}
	return !isUIToken(s) && !isTimeToken(s) && !isLikesToken(s)
}

func isTimeToken(s string) bool {
	s = strings.TrimSpace(s)
	if compactTimePattern.MatchString(s) || verboseTimePattern.MatchString(s) {
		return true
	}
	switch strings.ToLower(s) {
	case "yesterday", "today", "just now":
		return true
	}
	return false
}

// normalizeTime canonicalizes a relative timestamp. Glued artifacts
// drop their tail ("4w14" becomes "4w"); verbose forms are lowercased
// and kept as-is.
func normalizeTime(s string) string {
	s = strings.TrimSpace(s)
	if m := compactTimePattern.FindStringSubmatch(s); m != nil {
		return m[1] + m[2]
	}
	return strings.ToLower(s)
}

// splitTimeLikes pulls the timestamp and any likes count sharing the
// same token, as in "2h 15 likes".
func splitTimeLikes(s string) (posted, likes string) {
	s = strings.TrimSpace(s)
	if isTimeToken(s) {
		posted = normalizeTime(s)
	}
	likes = embeddedLikesPattern.FindString(s)
	return posted, likes
}

func isLikesToken(s string) bool {
	s = strings.TrimSpace(s)
	if likesPattern.MatchString(s) {
		return true
	}
	l := strings.ToLower(s)
	return strings.Contains(l, "like") && strings.ContainsAny(l, "0123456789")
}

// hasWordChars reports whether s contains any letter or digit. A
// comment whose text has none is emoji-only.
func hasWordChars(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}

var hashtagPattern = regexp.MustCompile(`#[\pL\pN_]+`)

// ExtractHashtags returns the hashtags present in text, deduplicated
// in first-seen order.
func ExtractHashtags(text string) []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, tag := range hashtagPattern.FindAllString(text, -1) {
		lower := strings.ToLower(tag)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
