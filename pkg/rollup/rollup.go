// Package rollup builds period summaries from decrypted journal entries.
//
// Summaries are recomputed on every read and never persisted. The only
// stored rollup content is the user's free-text reflection for a period.
//
// A view of one period is assembled in stages: resolve the period bounds,
// fetch the entry window, decrypt, classify by period key, aggregate, attach
// the stored reflection, then attach reflections of the contained
// sub-periods. Records that fail to decrypt are skipped; a cleared key is
// fatal.
package rollup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/peoplesafe/sdlcjournal/pkg/keyring"
	"github.com/peoplesafe/sdlcjournal/pkg/period"
	"github.com/peoplesafe/sdlcjournal/pkg/store"
)

// Item is one non-empty answer attributed to its date.
type Item struct {
	Date      string `json:"date"`
	DateLabel string `json:"dateLabel"`
	Text      string `json:"text"`
}

// Summary is the aggregated content of one period.
type Summary struct {
	PeriodKey  string      `json:"periodKey"`
	Type       period.Type `json:"type"`
	Label      string      `json:"label"`
	EntryCount int         `json:"entryCount"`
	Success    []Item      `json:"success"`
	Delight    []Item      `json:"delight"`
	Learning   []Item      `json:"learning"`
	Compliment []Item      `json:"compliment"`
	Reflection string      `json:"reflection"`
}

// Items returns the list for cat.
func (s *Summary) Items(cat Category) []Item {
	switch cat {
	case Success:
		return s.Success
	case Delight:
		return s.Delight
	case Learning:
		return s.Learning
	case Compliment:
		return s.Compliment
	default:
		return nil
	}
}

func (s *Summary) add(cat Category, item Item) {
	switch cat {
	case Success:
		s.Success = append(s.Success, item)
	case Delight:
		s.Delight = append(s.Delight, item)
	case Learning:
		s.Learning = append(s.Learning, item)
	case Compliment:
		s.Compliment = append(s.Compliment, item)
	}
}

// Periods holds the selectable period keys of each type, newest first.
type Periods struct {
	Weeks    []string `json:"weeks"`
	Months   []string `json:"months"`
	Quarters []string `json:"quarters"`
	Years    []string `json:"years"`
}

// For returns the keys of type t.
func (p *Periods) For(t period.Type) []string {
	switch t {
	case period.Weekly:
		return p.Weeks
	case period.Monthly:
		return p.Months
	case period.Quarterly:
		return p.Quarters
	case period.Yearly:
		return p.Years
	default:
		return nil
	}
}

// SubReflection is a stored reflection of a contained narrower period.
type SubReflection struct {
	PeriodKey  string `json:"periodKey"`
	Label      string `json:"label"`
	Reflection string `json:"reflection"`
}

// View is a summary plus the reflections of its sub-periods.
type View struct {
	Summary
	SubReflections []SubReflection `json:"subReflections"`
	// Skipped counts records omitted because they could not be decrypted.
	Skipped int `json:"skipped"`
}

// AvailablePeriods maps every entry date to its four period keys. Periods
// without entries are never listed. Invalid dates are ignored.
func AvailablePeriods(metas []store.EntryMeta) *Periods {
	sets := make(map[period.Type]map[string]struct{}, len(period.Types))
	for _, t := range period.Types {
		sets[t] = make(map[string]struct{})
	}

	for _, m := range metas {
		for _, t := range period.Types {
			key, err := t.Key(m.Date)
			if err != nil {
				continue
			}
			sets[t][key] = struct{}{}
		}
	}

	desc := func(set map[string]struct{}) []string {
		keys := make([]string, 0, len(set))
		for k := range set {
			keys = append(keys, k)
		}
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
		return keys
	}

	return &Periods{
		Weeks:    desc(sets[period.Weekly]),
		Months:   desc(sets[period.Monthly]),
		Quarters: desc(sets[period.Quarterly]),
		Years:    desc(sets[period.Yearly]),
	}
}

// EntriesForPeriod keeps the entries whose period key of type t equals key.
func EntriesForPeriod(entries []*Entry, t period.Type, key string) []*Entry {
	var result []*Entry
	for _, e := range entries {
		if k, err := t.Key(e.Date); err == nil && k == key {
			result = append(result, e)
		}
	}
	return result
}

// Summarize aggregates the entries belonging to (t, key). Blank answers are
// excluded. reflection is carried through verbatim.
func Summarize(entries []*Entry, key string, t period.Type, reflection string) (*Summary, error) {
	label, err := period.Label(t, key)
	if err != nil {
		return nil, err
	}

	matched := EntriesForPeriod(entries, t, key)
	s := &Summary{
		PeriodKey:  key,
		Type:       t,
		Label:      label,
		EntryCount: len(matched),
		Reflection: reflection,
	}

	for _, e := range matched {
		dateLabel, _ := period.ShortDateLabel(e.Date)
		for _, cat := range Categories {
			text := strings.TrimSpace(e.Content.Field(cat))
			if text == "" {
				continue
			}
			s.add(cat, Item{Date: e.Date, DateLabel: dateLabel, Text: text})
		}
	}
	return s, nil
}

// Source is the read side of the record store used by the engine.
type Source interface {
	ListByDateRange(ctx context.Context, start, end string) ([]*store.Entry, error)
	ListRollupsByType(ctx context.Context, t period.Type) ([]*store.Rollup, error)
	GetRollup(ctx context.Context, id string) (*store.Rollup, error)
}

// Engine assembles period views from a Source.
type Engine struct {
	src Source
	log zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used to report skipped records.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// NewEngine returns an Engine reading from src.
func NewEngine(src Source, opts ...Option) *Engine {
	e := &Engine{src: src, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DecryptEntries opens each stored entry, skipping those that fail
// authentication. The number skipped is returned. ErrNoActiveKey aborts.
func (e *Engine) DecryptEntries(stored []*store.Entry, key *keyring.Key) ([]*Entry, int, error) {
	result := make([]*Entry, 0, len(stored))
	skipped := 0
	for _, s := range stored {
		d, err := OpenEntry(s, key)
		if err != nil {
			if errors.Is(err, keyring.ErrNoActiveKey) {
				return nil, skipped, err
			}
			skipped++
			e.log.Warn().Str("entry", s.ID).Err(err).Msg("skipping unreadable entry")
			continue
		}
		result = append(result, d)
	}
	return result, skipped, nil
}

// Reflection returns the stored reflection for (t, key), or "" when none is
// stored. A reflection that fails to decrypt is logged and returned as ""
// with readable set to false.
func (e *Engine) Reflection(ctx context.Context, t period.Type, key string, k *keyring.Key) (text string, readable bool, err error) {
	r, err := e.src.GetRollup(ctx, store.RollupID(t, key))
	if errors.Is(err, store.ErrNotFound) {
		return "", true, nil
	}
	if err != nil {
		return "", false, err
	}
	if r.Sealed().IsEmpty() {
		return "", true, nil
	}

	text, err = keyring.OpenString(r.Sealed(), k)
	if err != nil {
		if errors.Is(err, keyring.ErrNoActiveKey) {
			return "", false, err
		}
		e.log.Warn().Str("rollup", r.ID).Err(err).Msg("skipping unreadable reflection")
		return "", false, nil
	}
	return text, true, nil
}

// SubPeriodReflections returns the non-blank reflections of the child
// periods contained in (t, key), ordered by child key. Weekly periods have
// no children. Unreadable reflections are skipped.
func (e *Engine) SubPeriodReflections(ctx context.Context, t period.Type, key string, k *keyring.Key) ([]SubReflection, error) {
	subs, _, err := e.subPeriodReflections(ctx, t, key, k)
	return subs, err
}

func (e *Engine) subPeriodReflections(ctx context.Context, t period.Type, key string, k *keyring.Key) ([]SubReflection, int, error) {
	child, ok := t.Child()
	if !ok {
		return nil, 0, nil
	}

	rollups, err := e.src.ListRollupsByType(ctx, child)
	if err != nil {
		return nil, 0, err
	}

	var result []SubReflection
	skipped := 0
	for _, r := range rollups {
		if !period.Contains(t, key, r.PeriodKey) || r.Sealed().IsEmpty() {
			continue
		}
		text, err := keyring.OpenString(r.Sealed(), k)
		if err != nil {
			if errors.Is(err, keyring.ErrNoActiveKey) {
				return nil, skipped, err
			}
			skipped++
			e.log.Warn().Str("rollup", r.ID).Err(err).Msg("skipping unreadable reflection")
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		label, _ := period.Label(child, r.PeriodKey)
		result = append(result, SubReflection{PeriodKey: r.PeriodKey, Label: label, Reflection: text})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].PeriodKey < result[j].PeriodKey })
	return result, skipped, nil
}

// View assembles the full view of (t, key).
func (e *Engine) View(ctx context.Context, t period.Type, key string, k *keyring.Key) (*View, error) {
	if !k.Active() {
		return nil, keyring.ErrNoActiveKey
	}

	span, err := period.Bounds(t, key)
	if err != nil {
		return nil, err
	}

	stored, err := e.src.ListByDateRange(ctx, span.Start, span.End)
	if err != nil {
		return nil, fmt.Errorf("rollup: failed to fetch %s: %w", store.RollupID(t, key), err)
	}

	entries, skipped, err := e.DecryptEntries(stored, k)
	if err != nil {
		return nil, err
	}

	reflection, ok, err := e.Reflection(ctx, t, key, k)
	if err != nil {
		return nil, err
	}
	if !ok {
		skipped++
	}

	summary, err := Summarize(entries, key, t, reflection)
	if err != nil {
		return nil, err
	}

	subs, subSkipped, err := e.subPeriodReflections(ctx, t, key, k)
	if err != nil {
		return nil, err
	}

	return &View{Summary: *summary, SubReflections: subs, Skipped: skipped + subSkipped}, nil
}
