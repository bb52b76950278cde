package tokenparse

import (
	"strings"

	"github.com/brandsignal/socialcrawler/internal/scraper"
)

// Result is the reconstructed output of one token stream.
//
// When HasCaption is true, Comments[0] is the caption block (caption
// author plus caption text) emitted as a comment record. Callers that
// already obtained the true caption from page header metadata should
// drop it; otherwise its text is the post caption.
type Result struct {
	HasCaption bool
	Comments   []scraper.Comment
}

// Caption returns the caption block, if one was detected.
func (r Result) Caption() (scraper.Comment, bool) {
	if !r.HasCaption || len(r.Comments) == 0 {
		return scraper.Comment{}, false
	}
	return r.Comments[0], true
}

// Parse reconstructs comment records from a flat token stream.
//
// The stream interleaves usernames, free text, relative timestamps and
// like counts in document order, with platform chrome mixed in. The
// grammar:
//
//   - UI chrome tokens are dropped wherever they appear.
//   - A username token at stream start opens the caption block, unless
//     it is immediately repeated (a repeated username always means a
//     comment). Caption text spans an embedded timestamp and ends at
//     the next username token.
//   - Every other username token opens a comment. A repeated pair is
//     consumed as one author; text runs end at the next time, username,
//     or likes token; a trailing time token (with any embedded likes
//     count) and a trailing likes token complete the record. A lone
//     username additionally collects text after its timestamp.
//   - Orphan time and likes tokens attach to the previous comment
//     where missing; orphan free text appends to its text.
//
// Parsing never fails; an unrecognizable stream yields an empty Result.
func Parse(tokens []scraper.RawToken) Result {
	texts := significant(tokens)

	var result Result
	i := 0

	if len(texts) > 0 && isUsernameToken(texts[0]) && !(len(texts) > 1 && texts[1] == texts[0]) {
		caption, next := parseCaption(texts)
		result.Comments = append(result.Comments, caption)
		result.HasCaption = true
		i = next
	}

	for i < len(texts) {
		t := texts[i]
		switch {
		case isUsernameToken(t):
			var c scraper.Comment
			c, i = parseComment(texts, i)
			result.Comments = append(result.Comments, c)

		case isTimeToken(t):
			if last := lastComment(&result); last != nil {
				posted, likes := splitTimeLikes(t)
				if last.PostedBefore == "" {
					last.PostedBefore = posted
				}
				if likes != "" && last.Likes == "" {
					last.Likes = likes
				}
			}
			i++

		case isLikesToken(t):
			if last := lastComment(&result); last != nil && last.Likes == "" {
				last.Likes = strings.TrimSpace(t)
			}
			i++

		default:
			if last := lastComment(&result); last != nil {
				appendText(last, t)
			}
			i++
		}
	}

	return result
}

// parseCaption consumes the caption block at stream start: author,
// then text spanning an embedded timestamp, ending at the username
// token that follows the timestamp. Like counts inside the block are
// dropped. A repeated-username pair before any timestamp means
// comments began without a caption timestamp and ends the block early.
func parseCaption(texts []string) (scraper.Comment, int) {
	b := building{username: texts[0]}
	timeFound := false
	i := 1
	for ; i < len(texts); i++ {
		t := texts[i]
		switch {
		case isTimeToken(t) && !timeFound:
			b.posted, _ = splitTimeLikes(t)
			timeFound = true
		case isUsernameToken(t) && timeFound:
			return b.finish(), i
		case isUsernameToken(t) && i+1 < len(texts) && texts[i+1] == t:
			return b.finish(), i
		case isLikesToken(t):
		default:
			b.parts = append(b.parts, t)
		}
	}
	return b.finish(), i
}

// parseComment consumes one comment starting at the username token at
// texts[i]. Repeats of the opening username are consumed as one
// author. A lone-username comment keeps collecting text after its
// timestamp, covering layouts that split the comment around the time
// node.
func parseComment(texts []string, i int) (scraper.Comment, int) {
	b := building{username: texts[i]}
	repeated := i+1 < len(texts) && texts[i+1] == b.username
	i++
	for i < len(texts) && texts[i] == b.username {
		i++
	}

	i = consumeText(texts, i, &b)

	if i < len(texts) && isTimeToken(texts[i]) {
		b.posted, b.likes = splitTimeLikes(texts[i])
		i++
		if !repeated {
			i = consumeText(texts, i, &b)
		}
	}
	if i < len(texts) && isLikesToken(texts[i]) && b.likes == "" {
		b.likes = strings.TrimSpace(texts[i])
		i++
	}
	return b.finish(), i
}

// consumeText appends free text to b until a username, time, or likes
// token.
func consumeText(texts []string, i int, b *building) int {
	for i < len(texts) {
		t := texts[i]
		if isUsernameToken(t) || isTimeToken(t) || isLikesToken(t) {
			return i
		}
		b.parts = append(b.parts, t)
		i++
	}
	return i
}

type building struct {
	username string
	parts    []string
	posted   string
	likes    string
}

func (b *building) finish() scraper.Comment {
	c := scraper.Comment{
		Username:     b.username,
		Text:         strings.Join(b.parts, " "),
		PostedBefore: b.posted,
		Likes:        b.likes,
	}
	if c.Text == c.Username {
		c.Text = ""
	}
	if c.Text != "" && !hasWordChars(c.Text) {
		c.Text = ""
		c.IsEmojiOnly = true
	}
	return c
}

func lastComment(r *Result) *scraper.Comment {
	if len(r.Comments) == 0 {
		return nil
	}
	return &r.Comments[len(r.Comments)-1]
}

func appendText(c *scraper.Comment, t string) {
	if c.IsEmojiOnly {
		// Orphan text upgrades an emoji-only comment to a textual one.
		if hasWordChars(t) {
			c.Text = t
			c.IsEmojiOnly = false
		}
		return
	}
	if c.Text == "" {
		c.Text = t
	} else {
		c.Text += " " + t
	}
	if c.Text != "" && !hasWordChars(c.Text) {
		c.Text = ""
		c.IsEmojiOnly = true
	}
}

// significant drops empty and chrome tokens, keeping document order.
func significant(tokens []scraper.RawToken) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		t := strings.TrimSpace(tok.Text)
		if t == "" || isUIToken(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
