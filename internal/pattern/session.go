package pattern

import (
	"strings"

	"github.com/imyousuf/daotrace/internal/unit"
)

type sessionPattern struct {
	methods   map[string]Access
	receivers map[string]bool
}

// NewSessionPattern recognizes generic data-access calls whose first argument
// is a "Namespace.Operation" statement key, such as
// sqlSession.selectOne("UserMapper.getUserById", id).
func NewSessionPattern(opts Options) Pattern {
	p := &sessionPattern{
		methods:   make(map[string]Access, len(opts.SessionMethods)),
		receivers: make(map[string]bool, len(opts.SessionReceivers)),
	}
	for name, access := range opts.SessionMethods {
		p.methods[name] = access
	}
	for _, r := range opts.SessionReceivers {
		p.receivers[r] = true
	}
	return p
}

func (p *sessionPattern) Name() string { return "literal-session-call" }

func (p *sessionPattern) Match(site *unit.CallSite, s Scope) (Fact, bool) {
	access, ok := p.methods[site.Member]
	if !ok || len(site.Args) == 0 {
		return Fact{}, false
	}
	if len(p.receivers) > 0 && !p.receivers[receiverName(site.Receiver)] {
		return Fact{}, false
	}
	first := site.Args[0]
	if first.Kind == unit.ArgLiteral && first.Literal != unit.LiteralString {
		return Fact{}, false
	}

	f := Fact{
		Kind:     FactDAOToStatement,
		Pattern:  p.Name(),
		Source:   site.Caller,
		Access:   access,
		Position: site.Position,
	}
	key, ok := evalString(first, s)
	if !ok {
		f.Status = StatusUnresolved
		f.Raw = describeArg(first)
		return f, true
	}
	ref, err := ParseStatementRef(key)
	if err != nil {
		f.Status = StatusMalformed
		f.Raw = key
		return f, true
	}
	f.Status = StatusResolved
	f.Statement = ref
	f.Raw = key
	return f, true
}

// receiverName returns the last name segment of a receiver expression, so
// "this.sqlSession" and "sqlSession" both yield "sqlSession".
func receiverName(a unit.Arg) string {
	switch a.Kind {
	case unit.ArgVariable, unit.ArgField, unit.ArgOpaque:
		v := a.Value
		if i := strings.LastIndexByte(v, '.'); i >= 0 {
			v = v[i+1:]
		}
		return v
	}
	return ""
}
