// Package criteria classifies chat messages and recovers evaluation criteria from free text.
package criteria

import (
	"regexp"
	"strings"

	"github.com/fairyhunter13/resume-evaluator/internal/config"
	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	"github.com/fairyhunter13/resume-evaluator/pkg/textx"
)

// Intent is the coarse category of a chat message.
type Intent string

const (
	IntentGreeting   Intent = "greeting"
	IntentEvaluation Intent = "evaluation"
	IntentOffTopic   Intent = "off_topic"
)

// maxJobDescriptionRunes bounds the job description recovered from chat text.
const maxJobDescriptionRunes = 1000

type skillMatcher struct {
	name string
	re   *regexp.Regexp
}

// Matcher holds the compiled vocabulary. It is safe for concurrent use.
type Matcher struct {
	greeting   *regexp.Regexp
	evaluation *regexp.Regexp
	roles      []*regexp.Regexp
	skills     []skillMatcher
}

// New compiles v into a Matcher.
func New(v *config.Vocabulary) *Matcher {
	m := &Matcher{
		greeting:   keywordRegexp(v.GreetingKeywords),
		evaluation: keywordRegexp(v.EvaluationKeywords),
		roles:      v.RoleRegexps(),
	}
	for _, name := range v.SkillNames() {
		m.skills = append(m.skills, skillMatcher{name: name, re: keywordRegexp(v.Synonyms(name))})
	}
	return m
}

// keywordRegexp matches any term bounded by non-alphanumerics. Terms may contain symbols such as c++ or .net.
func keywordRegexp(terms []string) *regexp.Regexp {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(strings.ToLower(t))
		if t == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(t))
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(?:` + strings.Join(quoted, "|") + `)(?:$|[^a-z0-9+#])`)
}

func matches(re *regexp.Regexp, s string) bool { return re != nil && re.MatchString(s) }

// Classify returns the intent of a user message. Evaluation keywords and known skills win over greetings,
// so a follow-up that only lists skills still counts as an evaluation request.
func (m *Matcher) Classify(message string) Intent {
	msg := strings.TrimSpace(message)
	switch {
	case matches(m.evaluation, msg), len(m.Skills(msg)) > 0:
		return IntentEvaluation
	case matches(m.greeting, msg):
		return IntentGreeting
	default:
		return IntentOffTopic
	}
}

// Extract recovers criteria from free text: the first role pattern hit, every vocabulary skill
// mentioned, and the text itself as job description.
func (m *Matcher) Extract(text string) domain.Criteria {
	c := domain.Criteria{
		Role:           m.Role(text),
		Skills:         m.Skills(text),
		JobDescription: textx.TruncateRunes(textx.NormalizeWhitespace(text), maxJobDescriptionRunes),
	}
	return c.Normalize()
}

// Role returns the first role captured by the vocabulary patterns, or "".
func (m *Matcher) Role(text string) string {
	for _, re := range m.roles {
		sub := re.FindStringSubmatch(text)
		if len(sub) < 2 {
			continue
		}
		role := strings.Trim(textx.NormalizeWhitespace(sub[1]), " .,;:-")
		if role != "" {
			return role
		}
	}
	return ""
}

// Skills returns the canonical names of every skill mentioned, in vocabulary order.
func (m *Matcher) Skills(text string) []string {
	out := make([]string, 0)
	for _, s := range m.skills {
		if s.re.MatchString(text) {
			out = append(out, s.name)
		}
	}
	return out
}

// Merge fills gaps in primary from fallback. Skills are unioned, primary first.
func Merge(primary, fallback domain.Criteria) domain.Criteria {
	out := primary
	if strings.TrimSpace(out.Role) == "" {
		out.Role = fallback.Role
	}
	if strings.TrimSpace(out.JobDescription) == "" {
		out.JobDescription = fallback.JobDescription
	}
	out.Skills = append(append([]string(nil), primary.Skills...), fallback.Skills...)
	return out.Normalize()
}
