// Package mentions extracts @-style mention tokens from message text
// and resolves them against a directory of known participants.
package mentions

import (
	"sort"
	"strings"
)

// trailing punctuation stripped from mention tokens, so "@claude,"
// and "@claude." address the same participant.
const trailingPunct = ".,:;!?)]}\"'"

// reserved group mentions that are reported back to the user rather
// than fanned out.
var reserved = map[string]bool{
	"all":      true,
	"everyone": true,
	"here":     true,
}

// Extract returns the sorted, deduplicated mention tokens in content.
// A token is any whitespace-separated word starting with prefix; the
// prefix and trailing punctuation are stripped and the rest lowercased.
func Extract(content, prefix string) []string {
	if prefix == "" {
		return nil
	}
	seen := make(map[string]bool)
	for _, word := range strings.Fields(content) {
		if !strings.HasPrefix(word, prefix) {
			continue
		}
		token := strings.TrimPrefix(word, prefix)
		token = strings.TrimRight(token, trailingPunct)
		token = strings.ToLower(token)
		if token != "" {
			seen[token] = true
		}
	}
	tokens := make([]string, 0, len(seen))
	for token := range seen {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// Participant is one entry of the directory: a configured agent or a
// participant observed through thread presence.
type Participant struct {
	ID       string
	Nickname string
	Client   string
	Model    string
	Roles    []string
}

// Display renders a participant for user-facing messages as
// "nickname (client/model)", degrading to whichever parts are known.
func Display(p Participant) string {
	var origin string
	switch {
	case p.Client != "" && p.Model != "":
		origin = p.Client + "/" + p.Model
	case p.Client != "":
		origin = p.Client
	case p.Model != "":
		origin = p.Model
	}
	switch {
	case p.Nickname != "" && origin != "":
		return p.Nickname + " (" + origin + ")"
	case p.Nickname != "":
		return p.Nickname
	default:
		return origin
	}
}

// Resolution is the outcome of resolving a single token.
type Resolution struct {
	// IDs are the matched participant ids, sorted.
	IDs []string
	// Reserved reports that the token was a group mention like "all".
	Reserved bool
	// Ambiguous lists nickname candidates when more than one
	// participant answers to the token.
	Ambiguous []Participant
}

// Directory resolves mention tokens to participant ids. Matching is
// case-insensitive; resolved ids keep their original form.
type Directory struct {
	info       map[string]Participant
	byID       map[string]string
	byNickname map[string][]string
	byCategory map[string][]string
}

// NewDirectory indexes participants for resolution. When the same id
// appears more than once, the earlier entry wins field by field, so
// callers list configured agents before presence-derived participants.
func NewDirectory(participants []Participant) *Directory {
	d := &Directory{
		info:       make(map[string]Participant),
		byID:       make(map[string]string),
		byNickname: make(map[string][]string),
		byCategory: make(map[string][]string),
	}
	merged := make(map[string]Participant)
	var order []string
	for _, p := range participants {
		if p.ID == "" {
			continue
		}
		key := strings.ToLower(p.ID)
		prev, ok := merged[key]
		if !ok {
			merged[key] = p
			order = append(order, key)
			continue
		}
		if prev.Nickname == "" {
			prev.Nickname = p.Nickname
		}
		if prev.Client == "" {
			prev.Client = p.Client
		}
		if prev.Model == "" {
			prev.Model = p.Model
		}
		if len(prev.Roles) == 0 {
			prev.Roles = p.Roles
		}
		merged[key] = prev
	}
	for _, key := range order {
		p := merged[key]
		d.info[p.ID] = p
		d.byID[key] = p.ID
		if nick := strings.ToLower(p.Nickname); nick != "" {
			d.byNickname[nick] = append(d.byNickname[nick], p.ID)
		}
		for _, category := range append([]string{p.Client, p.Model}, p.Roles...) {
			if c := strings.ToLower(category); c != "" {
				d.byCategory[c] = append(d.byCategory[c], p.ID)
			}
		}
	}
	return d
}

// Participant returns the directory entry for id.
func (d *Directory) Participant(id string) (Participant, bool) {
	p, ok := d.info[id]
	return p, ok
}

// Resolve maps one extracted token to participant ids. Precedence:
// reserved word, exact id, nickname, then role/client/model category.
// A nickname shared by several participants resolves to none and
// reports them as Ambiguous.
func (d *Directory) Resolve(token string) Resolution {
	token = strings.ToLower(token)
	if reserved[token] {
		return Resolution{Reserved: true}
	}
	if id, ok := d.byID[token]; ok {
		return Resolution{IDs: []string{id}}
	}
	if ids := d.byNickname[token]; len(ids) > 0 {
		if len(ids) == 1 {
			return Resolution{IDs: []string{ids[0]}}
		}
		candidates := make([]Participant, 0, len(ids))
		for _, id := range ids {
			candidates = append(candidates, d.info[id])
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
		return Resolution{Ambiguous: candidates}
	}
	if ids := d.byCategory[token]; len(ids) > 0 {
		out := uniqueSorted(ids)
		return Resolution{IDs: out}
	}
	return Resolution{}
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
