package routing

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// ErrInvalidTemplate is returned for malformed path templates.
var ErrInvalidTemplate = errors.New("routing: invalid path template")

// regexpCache caches compiled expressions by source. Templates are
// recompiled on every generation that touches them, so this keeps
// refreshes cheap.
var regexpCache sync.Map

func compileRegexp(expr string) (*regexp.Regexp, error) {
	if v, ok := regexpCache.Load(expr); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	actual, _ := regexpCache.LoadOrStore(expr, re)
	return actual.(*regexp.Regexp), nil
}

// template is a compiled path template such as "/id/{id:[0-9]+}".
// Variables default to one path segment.
type template struct {
	source  string
	regexp  *regexp.Regexp
	reverse string // Sprintf form with %s per variable
	vars    []string
	varsR   []*regexp.Regexp
	groups  []int // submatch index per variable
}

func parseTemplate(tpl string, strictSlash bool) (*template, error) {
	if !strings.HasPrefix(tpl, "/") {
		return nil, fmt.Errorf("%w: %q must start with /", ErrInvalidTemplate, tpl)
	}
	idxs, err := braceIndices(tpl)
	if err != nil {
		return nil, err
	}

	var (
		pattern bytes.Buffer
		reverse bytes.Buffer
		vars    []string
		varsR   []*regexp.Regexp
		end     int
	)
	pattern.WriteByte('^')

	for i := 0; i < len(idxs); i += 2 {
		raw := tpl[end:idxs[i]]
		end = idxs[i+1]

		name, patt, found := strings.Cut(tpl[idxs[i]+1:end-1], ":")
		if !found {
			patt = "[^/]+"
		}
		if name == "" {
			return nil, fmt.Errorf("%w: missing name in %q", ErrInvalidTemplate, tpl)
		}
		for _, v := range vars {
			if v == name {
				return nil, fmt.Errorf("%w: duplicated variable %q in %q", ErrInvalidTemplate, name, tpl)
			}
		}
		varR, err := compileRegexp("^(?:" + patt + ")$")
		if err != nil {
			return nil, fmt.Errorf("%w: variable %q: %v", ErrInvalidTemplate, name, err)
		}

		// Named groups keep capture indices stable when patt has groups of its own.
		fmt.Fprintf(&pattern, "%s(?P<v%d>%s)", regexp.QuoteMeta(raw), len(vars), patt)
		reverse.WriteString(strings.ReplaceAll(raw, "%", "%%"))
		reverse.WriteString("%s")
		vars = append(vars, name)
		varsR = append(varsR, varR)
	}

	raw := tpl[end:]
	rawForPattern := raw
	if strictSlash {
		rawForPattern = strings.TrimSuffix(rawForPattern, "/")
	}
	pattern.WriteString(regexp.QuoteMeta(rawForPattern))
	reverse.WriteString(strings.ReplaceAll(raw, "%", "%%"))
	if strictSlash {
		pattern.WriteString("[/]?")
	}
	pattern.WriteByte('$')

	re, err := compileRegexp(pattern.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	groups := make([]int, len(vars))
	for i := range vars {
		groups[i] = re.SubexpIndex(fmt.Sprintf("v%d", i))
	}

	return &template{
		source:  tpl,
		regexp:  re,
		reverse: reverse.String(),
		vars:    vars,
		varsR:   varsR,
		groups:  groups,
	}, nil
}

// key identifies templates that match the same paths.
func (t *template) key() string {
	return t.regexp.String()
}

// match returns the variables captured from path.
func (t *template) match(path string) (map[string]string, bool) {
	m := t.regexp.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	vars := make(map[string]string, len(t.vars))
	for i, name := range t.vars {
		vars[name] = m[t.groups[i]]
	}
	return vars, true
}

// url builds a path from variable values.
func (t *template) url(values map[string]string) (string, error) {
	args := make([]any, len(t.vars))
	for i, name := range t.vars {
		v, ok := values[name]
		if !ok {
			return "", fmt.Errorf("routing: missing variable %q for %q", name, t.source)
		}
		if !t.varsR[i].MatchString(v) {
			return "", fmt.Errorf("routing: variable %q value %q does not match %q", name, v, t.varsR[i].String())
		}
		args[i] = v
	}
	return fmt.Sprintf(t.reverse, args...), nil
}

// braceIndices returns the start and end+1 indices of each top-level
// {...} pair in s.
func braceIndices(s string) ([]int, error) {
	var (
		idxs  []int
		level int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if level++; level == 1 {
				idxs = append(idxs, i)
			}
		case '}':
			if level--; level == 0 {
				idxs = append(idxs, i+1)
			} else if level < 0 {
				return nil, fmt.Errorf("%w: unbalanced braces in %q", ErrInvalidTemplate, s)
			}
		}
	}
	if level != 0 {
		return nil, fmt.Errorf("%w: unbalanced braces in %q", ErrInvalidTemplate, s)
	}
	return idxs, nil
}

// ValidateTemplate reports whether tpl is a usable path template.
func ValidateTemplate(tpl string) error {
	_, err := parseTemplate(tpl, false)
	return err
}

// TemplateVariables returns the variable names of tpl in order.
func TemplateVariables(tpl string) ([]string, error) {
	t, err := parseTemplate(tpl, false)
	if err != nil {
		return nil, err
	}
	return slices.Clone(t.vars), nil
}

// SameVariables reports whether two variable lists name the same
// variables, in any order.
func SameVariables(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
